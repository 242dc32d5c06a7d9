// Package chain implements the ledger's Chain Store: the ordered sequence
// of sealed blocks, genesis bootstrapping, append-time linkage validation,
// and lookups by index, hash, or artifact id. It is the single owner of
// committed blocks and pending artifacts, mutated by the minting
// pipeline's single writer and, through Swap, by the recovery service.
package chain

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/chittyos/chittychain/internal/ledger/block"
	"github.com/chittyos/chittychain/internal/ledgererr"
	"github.com/chittyos/chittychain/internal/ledgerhash"
	"github.com/chittyos/chittychain/pkg/evidence"
)

// GenesisPreviousHash is the sentinel previous-hash value recorded by the
// genesis block.
const GenesisPreviousHash = "0"

// Stats summarizes the chain's current shape.
type Stats struct {
	Height         int64
	TotalArtifacts int
	TierHistogram  map[evidence.Tier]int
}

// Chain is the ordered, append-only sequence of sealed blocks plus the
// pending-artifact staging area. All mutation happens under mu; readers
// take the read lock to get a consistent snapshot.
type Chain struct {
	mu sync.RWMutex

	alg    ledgerhash.Algorithm
	blocks []*block.Block

	byHash     map[string]*block.Block
	byArtifact map[string]int64 // artifact id -> block index
	pending    []*evidence.Artifact
}

// New constructs an empty Chain store. Call Init to bootstrap genesis.
func New(alg ledgerhash.Algorithm) *Chain {
	return &Chain{
		alg:        alg,
		byHash:     make(map[string]*block.Block),
		byArtifact: make(map[string]int64),
	}
}

// Init creates the genesis block if the chain is empty. It is a no-op if
// the chain already has blocks.
func (c *Chain) Init(minerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.blocks) > 0 {
		return nil
	}
	genesis, err := block.Build(context.Background(), c.alg, 0, []byte(GenesisPreviousHash), nil, 0, minerID, nil)
	if err != nil {
		return fmt.Errorf("chain init: %w", err)
	}
	c.blocks = append(c.blocks, genesis)
	c.byHash[string(genesis.Hash)] = genesis
	return nil
}

// Append validates block against the current tip and, if valid, commits it
// and updates the secondary indices. It is the sole mutation point for
// committed blocks and must be called by the single writer only.
func (c *Chain) Append(b *block.Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tip := c.tipLocked()
	if tip == nil {
		if b.Index != 0 {
			return fmt.Errorf("append: expected genesis index 0, got %d: %w", b.Index, ledgererr.ErrHeightNonMonotone)
		}
	} else {
		if b.Index != tip.Index+1 {
			return fmt.Errorf("append: expected index %d, got %d: %w", tip.Index+1, b.Index, ledgererr.ErrHeightNonMonotone)
		}
		if !bytes.Equal(b.PreviousHash, tip.Hash) {
			return fmt.Errorf("append: block %d: %w", b.Index, ledgererr.ErrLinkageBroken)
		}
		if b.Timestamp.Before(tip.Timestamp) {
			return fmt.Errorf("append: block %d: %w", b.Index, ledgererr.ErrTimestampRegressed)
		}
	}

	if errs, _ := b.Validate(c.alg); len(errs) > 0 {
		return fmt.Errorf("append: block %d self-validation failed: %w", b.Index, errs[0])
	}

	for _, a := range b.Artifacts {
		if _, exists := c.byArtifact[a.ID]; exists {
			return fmt.Errorf("append: block %d: artifact %s: %w", b.Index, a.ID, ledgererr.ErrDuplicateID)
		}
	}

	c.blocks = append(c.blocks, b)
	c.byHash[string(b.Hash)] = b
	for _, a := range b.Artifacts {
		c.byArtifact[a.ID] = b.Index
	}
	return nil
}

// Tip returns the most recently appended block, or nil if the chain is
// empty.
func (c *Chain) Tip() *block.Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tipLocked()
}

func (c *Chain) tipLocked() *block.Block {
	if len(c.blocks) == 0 {
		return nil
	}
	return c.blocks[len(c.blocks)-1]
}

// BlockAt returns the block at index, or an error if out of range.
func (c *Chain) BlockAt(index int64) (*block.Block, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if index < 0 || index >= int64(len(c.blocks)) {
		return nil, fmt.Errorf("block_at %d: %w", index, ledgererr.ErrIndexOutOfRange)
	}
	return c.blocks[index], nil
}

// BlockByHash returns the block with the given hash, or an error if none
// exists.
func (c *Chain) BlockByHash(hash []byte) (*block.Block, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.byHash[string(hash)]
	if !ok {
		return nil, fmt.Errorf("block_by_hash: %w", ledgererr.ErrOrphanReference)
	}
	return b, nil
}

// ArtifactByID resolves id to its committed artifact and containing block
// index, or reports that it does not (yet) exist.
func (c *Chain) ArtifactByID(id string) (*evidence.Artifact, int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	idx, ok := c.byArtifact[id]
	if !ok {
		return nil, 0, false
	}
	for _, a := range c.blocks[idx].Artifacts {
		if a.ID == id {
			return a, idx, true
		}
	}
	return nil, 0, false
}

// Blocks returns a snapshot slice of all committed blocks, safe to iterate
// without holding the chain's lock.
func (c *Chain) Blocks() []*block.Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*block.Block, len(c.blocks))
	copy(out, c.blocks)
	return out
}

// Stats reports the chain's current height, total committed artifact
// count, and a tier histogram.
func (c *Chain) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := Stats{Height: int64(len(c.blocks) - 1), TierHistogram: make(map[evidence.Tier]int)}
	for _, b := range c.blocks {
		s.TotalArtifacts += len(b.Artifacts)
		for _, a := range b.Artifacts {
			s.TierHistogram[a.Tier]++
		}
	}
	return s
}

// PendingArtifacts returns a copy of the candidates accepted but not yet
// sealed into a block.
func (c *Chain) PendingArtifacts() []*evidence.Artifact {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*evidence.Artifact, len(c.pending))
	copy(out, c.pending)
	return out
}

// SetPendingArtifacts replaces the pending-artifacts staging list.
func (c *Chain) SetPendingArtifacts(pending []*evidence.Artifact) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = pending
}

// Algorithm returns the digest algorithm this chain was constructed with.
func (c *Chain) Algorithm() ledgerhash.Algorithm {
	return c.alg
}

// Swap atomically replaces the chain's committed blocks and indices with
// blocks, used by the recovery service once a candidate chain has
// passed validation. blocks must already be self-consistent.
func (c *Chain) Swap(blocks []*block.Block) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocks = blocks
	c.byHash = make(map[string]*block.Block, len(blocks))
	c.byArtifact = make(map[string]int64)
	for _, b := range blocks {
		c.byHash[string(b.Hash)] = b
		for _, a := range b.Artifacts {
			c.byArtifact[a.ID] = b.Index
		}
	}
}
