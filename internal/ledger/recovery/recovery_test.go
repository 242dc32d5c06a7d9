package recovery_test

import (
	"context"
	"testing"
	"time"

	"github.com/chittyos/chittychain/internal/ledger/audit"
	"github.com/chittyos/chittychain/internal/ledger/block"
	"github.com/chittyos/chittychain/internal/ledger/chain"
	"github.com/chittyos/chittychain/internal/ledger/events"
	"github.com/chittyos/chittychain/internal/ledger/index"
	"github.com/chittyos/chittychain/internal/ledger/recovery"
	"github.com/chittyos/chittychain/internal/ledgerhash"
	"github.com/chittyos/chittychain/pkg/evidence"
	"github.com/google/uuid"
)

func mkArtifact() *evidence.Artifact {
	a := &evidence.Artifact{
		ID:        uuid.New().String(),
		Tier:      evidence.TierGovernment,
		Weight:    0.95,
		Statement: "signed",
		CaseID:    "C1",
		Type:      "document",
		Timestamp: time.Now().Add(-time.Minute),
	}
	a.ContentHash = a.ComputeContentHash(ledgerhash.AlgorithmSHA256)
	return a
}

func buildTamperedChain(t *testing.T) *chain.Chain {
	t.Helper()
	c := chain.New(ledgerhash.AlgorithmSHA256)
	if err := c.Init("miner-0"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	for i := 0; i < 2; i++ {
		a := mkArtifact()
		tip := c.Tip()
		b, err := block.Build(context.Background(), ledgerhash.AlgorithmSHA256, tip.Index+1, tip.Hash, []*evidence.Artifact{a}, 1, "miner-1", nil)
		if err != nil {
			t.Fatalf("Build: %v", err)
		}
		if err := c.Append(b); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	b1, err := c.BlockAt(1)
	if err != nil {
		t.Fatalf("BlockAt(1): %v", err)
	}
	b1.Artifacts[0].Statement = "tampered statement"
	return c
}

func TestSafeRecoveryReportsNoFixForTamperedContent(t *testing.T) {
	c := buildTamperedChain(t)
	idx := index.New()
	store := recovery.NewStore(10)

	outcome, err := recovery.AutoRecover(context.Background(), c, idx, store, nil, recovery.Safe)
	if err != nil {
		t.Fatalf("AutoRecover(SAFE): %v", err)
	}
	if outcome.Message == "" {
		t.Fatalf("expected a non-empty outcome message")
	}

	report, err := audit.Run(context.Background(), c)
	if err != nil {
		t.Fatalf("audit.Run after SAFE: %v", err)
	}
	if report.OK {
		t.Fatalf("expected chain to remain invalid after SAFE recovery of tampered content")
	}
}

func TestAggressiveRecoveryTruncatesToValidPrefix(t *testing.T) {
	c := buildTamperedChain(t)
	idx := index.New()
	store := recovery.NewStore(10)

	outcome, err := recovery.AutoRecover(context.Background(), c, idx, store, nil, recovery.Aggressive)
	if err != nil {
		t.Fatalf("AutoRecover(AGGRESSIVE): %v", err)
	}
	if !outcome.Applied {
		t.Fatalf("expected AGGRESSIVE recovery to apply a fix")
	}
	if len(outcome.DroppedBlocks) != 2 {
		t.Fatalf("DroppedBlocks = %v, want 2 dropped (blocks 1 and 2)", outcome.DroppedBlocks)
	}

	report, err := audit.Run(context.Background(), c)
	if err != nil {
		t.Fatalf("audit.Run after AGGRESSIVE: %v", err)
	}
	if !report.OK {
		t.Fatalf("expected chain to validate after truncation, errors = %v", report.Errors)
	}
}

func TestRebuildFallsBackToGenesisWithNoCheckpointOrBackup(t *testing.T) {
	c := buildTamperedChain(t)
	idx := index.New()
	store := recovery.NewStore(10)

	outcome, err := recovery.AutoRecover(context.Background(), c, idx, store, nil, recovery.Rebuild)
	if err != nil {
		t.Fatalf("AutoRecover(REBUILD): %v", err)
	}
	if !outcome.Applied {
		t.Fatalf("expected REBUILD to apply")
	}
	if c.Stats().Height != 0 {
		t.Fatalf("Stats().Height = %d, want 0 after reinit to genesis-only", c.Stats().Height)
	}
}

func TestRebuildRestoresFromValidCheckpoint(t *testing.T) {
	c := chain.New(ledgerhash.AlgorithmSHA256)
	if err := c.Init("miner-0"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	a := mkArtifact()
	tip := c.Tip()
	b, err := block.Build(context.Background(), ledgerhash.AlgorithmSHA256, tip.Index+1, tip.Hash, []*evidence.Artifact{a}, 1, "miner-1", nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := c.Append(b); err != nil {
		t.Fatalf("Append: %v", err)
	}

	idx := index.New()
	store := recovery.NewStore(10)
	if _, err := store.CreateCheckpoint("pre-damage", c); err != nil {
		t.Fatalf("CreateCheckpoint: %v", err)
	}

	bus := events.New()
	var recoveryEvents []events.RecoveryPerformed
	bus.Subscribe(func(e any) {
		if r, ok := e.(events.RecoveryPerformed); ok {
			recoveryEvents = append(recoveryEvents, r)
		}
	})

	outcome, err := recovery.AutoRecover(context.Background(), c, idx, store, bus, recovery.Rebuild)
	if err != nil {
		t.Fatalf("AutoRecover(REBUILD): %v", err)
	}
	if !outcome.Applied {
		t.Fatalf("expected REBUILD to apply")
	}
	if len(recoveryEvents) != 1 {
		t.Fatalf("expected exactly one RecoveryPerformed event, got %d", len(recoveryEvents))
	}
	if c.Stats().Height != 1 {
		t.Fatalf("Stats().Height = %d, want 1: checkpoint restore must preserve the committed artifact's block, not fall through to genesis-only", c.Stats().Height)
	}
	restored, _, ok := c.ArtifactByID(a.ID)
	if !ok {
		t.Fatalf("expected artifact %s to survive checkpoint restore", a.ID)
	}
	if restored.Statement != a.Statement || restored.Tier != a.Tier {
		t.Fatalf("restored artifact = %+v, want a statement/tier match for %+v", restored, a)
	}

	restoredIndexed := idx.Query(index.Filter{CaseID: a.CaseID})
	if len(restoredIndexed) != 1 || restoredIndexed[0].ID != a.ID {
		t.Fatalf("expected the query index to be rebuilt with the restored artifact, got %v", restoredIndexed)
	}
}

func TestSafeRecoveryIsIdempotentOnCleanChain(t *testing.T) {
	c := chain.New(ledgerhash.AlgorithmSHA256)
	if err := c.Init("miner-0"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	idx := index.New()
	store := recovery.NewStore(10)

	first, err := recovery.AutoRecover(context.Background(), c, idx, store, nil, recovery.Safe)
	if err != nil {
		t.Fatalf("first AutoRecover(SAFE): %v", err)
	}
	second, err := recovery.AutoRecover(context.Background(), c, idx, store, nil, recovery.Safe)
	if err != nil {
		t.Fatalf("second AutoRecover(SAFE): %v", err)
	}
	if first.Message != second.Message {
		t.Fatalf("expected idempotent SAFE recovery message, got %q then %q", first.Message, second.Message)
	}
}
