// Command ledgerd bootstraps and wires together the evidence ledger core:
// configuration, the chain store, the query index, the candidate intake
// queue, the minting pipeline, and the recovery service, then idles until
// a shutdown signal. It carries no RPC/HTTP surface of its own (those are
// external collaborators per the ledger's scope) but demonstrates the
// wiring a real front-end would perform.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/chittyos/chittychain/internal/ledger/chain"
	"github.com/chittyos/chittychain/internal/ledger/config"
	"github.com/chittyos/chittychain/internal/ledger/events"
	"github.com/chittyos/chittychain/internal/ledger/index"
	"github.com/chittyos/chittychain/internal/ledger/intake"
	"github.com/chittyos/chittychain/internal/ledger/minting"
	"github.com/chittyos/chittychain/internal/ledger/recovery"
)

// Node holds every wired-up ledger component a front-end collaborator
// would otherwise construct piecemeal.
type Node struct {
	Config   config.Config
	Chain    *chain.Chain
	Index    *index.Index
	Events   *events.Bus
	Intake   *intake.Queue
	Pipeline *minting.Pipeline
	Recovery *recovery.Store
	MinerID  string
}

// runNode wires the ledger core from cfg and bootstraps genesis if the
// chain is empty.
func runNode(cfg config.Config, minerID string) (*Node, error) {
	log.Println("Initializing evidence ledger components...")

	alg, err := cfg.Algorithm()
	if err != nil {
		return nil, fmt.Errorf("resolve digest algorithm: %w", err)
	}

	ch := chain.New(alg)
	if err := ch.Init(minerID); err != nil {
		return nil, fmt.Errorf("initialize chain: %w", err)
	}
	log.Printf("Chain store initialized. Height: %d", ch.Stats().Height)

	idx := index.New()
	bus := events.New()
	queue := intake.New()
	store := recovery.NewStore(cfg.BackupRetentionCount)

	bus.Subscribe(func(e any) {
		switch ev := e.(type) {
		case events.BlockCommitted:
			log.Printf("LEDGER: block %d committed, hash=%x", ev.Index, ev.Hash)
		case events.ArtifactMinted:
			log.Printf("LEDGER: artifact %s minted into block %d", ev.ID, ev.BlockIndex)
		case events.ArtifactRejected:
			log.Printf("LEDGER: artifact %s rejected: %s", ev.ID, ev.Reason)
		case events.ContradictionRecorded:
			log.Printf("LEDGER: contradiction %s vs %s resolved via %s, winner=%s",
				ev.Record.ArtifactA, ev.Record.ArtifactB, ev.Record.Resolution, ev.Record.WinnerID)
		case events.CheckpointCreated:
			log.Printf("LEDGER: checkpoint %s created", ev.ID)
		case events.RecoveryPerformed:
			log.Printf("LEDGER: recovery strategy=%s outcome=%s", ev.Strategy, ev.Outcome)
		}
	})

	pipeline := &minting.Pipeline{
		Chain:                     ch,
		Index:                     idx,
		Events:                    bus,
		Difficulty:                cfg.Difficulty,
		MinPersonalCorroborations: cfg.MinPersonalCorroborations,
		PartialAmountTolerance:    cfg.PartialAmountTolerance,
	}

	log.Println("Evidence ledger components initialized.")
	return &Node{
		Config:   cfg,
		Chain:    ch,
		Index:    idx,
		Events:   bus,
		Intake:   queue,
		Pipeline: pipeline,
		Recovery: store,
		MinerID:  minerID,
	}, nil
}

// drainAndMint submits every candidate currently waiting in intake as one
// minting batch. Callers (an external evidence collaborator, in the full
// system) are responsible for populating n.Intake between calls.
func (n *Node) drainAndMint(ctx context.Context) (*minting.Result, error) {
	batch := n.Intake.Drain(0)
	if len(batch) == 0 {
		return &minting.Result{}, nil
	}
	return minting.Run(ctx, n.Pipeline, batch, n.MinerID)
}

func main() {
	log.Println("Starting evidence ledger daemon (ledgerd)...")

	cfg := config.Default()
	if path := os.Getenv("LEDGERD_CONFIG"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			log.Fatalf("load config %s: %v", path, err)
		}
		cfg = loaded
	}

	minerID := os.Getenv("LEDGERD_MINER_ID")
	if minerID == "" {
		minerID = "ledgerd-local"
	}

	node, err := runNode(cfg, minerID)
	if err != nil {
		log.Fatalf("node initialization failed: %v", err)
	}

	if _, err := node.Recovery.CreateCheckpoint("startup", node.Chain); err != nil {
		log.Printf("warning: failed to create startup checkpoint: %v", err)
	}

	log.Println("Ledger running... press Ctrl+C to stop.")
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	sig := <-shutdown
	log.Printf("Caught signal: %v. Shutting down...", sig)

	if _, err := node.Recovery.CreateBackup(node.Chain); err != nil {
		log.Printf("warning: failed to create shutdown backup: %v", err)
	}
	log.Println("Evidence ledger daemon shut down gracefully.")
}
