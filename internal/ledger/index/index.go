// Package index implements the ledger's Query Index: secondary maps over
// committed artifacts. The minting pipeline records a block's artifacts
// after Chain.Append has returned, under the index's own lock rather than
// the chain's, so a query that runs in between can see a committed block
// whose artifacts are not yet indexed. Entries
// are references (case id / tier / date -> artifact id), never mutable
// artifact copies, per the ledger's ownership rule that only the Chain
// Store holds artifact bodies.
package index

import (
	"sort"
	"sync"
	"time"

	"github.com/chittyos/chittychain/pkg/evidence"
)

// Filter selects committed artifacts by any combination of fields; zero
// values are treated as "don't filter on this field".
type Filter struct {
	CaseID    string
	Tier      evidence.Tier
	Type      string
	MinWeight float64
	From, To  time.Time
}

func (f Filter) matches(a *evidence.Artifact) bool {
	if f.CaseID != "" && a.CaseID != f.CaseID {
		return false
	}
	if f.Tier != evidence.TierUnspecified && a.Tier != f.Tier {
		return false
	}
	if f.Type != "" && a.Type != f.Type {
		return false
	}
	if f.MinWeight > 0 && a.EffectiveWeight() < f.MinWeight {
		return false
	}
	if !f.From.IsZero() && a.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && a.Timestamp.After(f.To) {
		return false
	}
	return true
}

// Index holds the ledger's secondary lookup structures. The zero value is
// ready to use.
type Index struct {
	mu sync.RWMutex

	byArtifactID map[string]int64
	byCaseID     map[string][]string
	byTier       map[evidence.Tier][]string
	byDate       []dateEntry

	artifacts map[string]*evidence.Artifact
}

type dateEntry struct {
	when time.Time
	id   string
}

// New constructs an empty Index.
func New() *Index {
	return &Index{
		byArtifactID: make(map[string]int64),
		byCaseID:     make(map[string][]string),
		byTier:       make(map[evidence.Tier][]string),
		artifacts:    make(map[string]*evidence.Artifact),
	}
}

// Record indexes a newly committed artifact. It takes only the index's
// lock; it is not synchronized with the chain append that committed the
// artifact.
func (idx *Index) Record(a *evidence.Artifact, blockIndex int64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.byArtifactID[a.ID] = blockIndex
	idx.byCaseID[a.CaseID] = append(idx.byCaseID[a.CaseID], a.ID)
	idx.byTier[a.Tier] = append(idx.byTier[a.Tier], a.ID)
	idx.byDate = append(idx.byDate, dateEntry{when: a.Timestamp, id: a.ID})
	sort.Slice(idx.byDate, func(i, j int) bool { return idx.byDate[i].when.Before(idx.byDate[j].when) })
	idx.artifacts[a.ID] = a
}

// RebuildEntry pairs a committed artifact with the index of the block that
// contains it, the unit Rebuild repopulates the index from.
type RebuildEntry struct {
	Artifact   *evidence.Artifact
	BlockIndex int64
}

// Rebuild clears and repopulates the index from a full artifact list,
// used by the recovery service after a candidate-chain swap.
func (idx *Index) Rebuild(entries []RebuildEntry) {
	idx.mu.Lock()
	idx.byArtifactID = make(map[string]int64)
	idx.byCaseID = make(map[string][]string)
	idx.byTier = make(map[evidence.Tier][]string)
	idx.byDate = nil
	idx.artifacts = make(map[string]*evidence.Artifact)
	idx.mu.Unlock()

	for _, e := range entries {
		idx.Record(e.Artifact, e.BlockIndex)
	}
}

// BlockIndexFor returns the block index containing artifact id, if known.
func (idx *Index) BlockIndexFor(id string) (int64, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	bi, ok := idx.byArtifactID[id]
	return bi, ok
}

// Query returns every indexed artifact matching f, in ascending timestamp
// order, presenting a consistent snapshot taken under a single read lock.
func (idx *Index) Query(f Filter) []*evidence.Artifact {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var out []*evidence.Artifact
	for _, entry := range idx.byDate {
		a, ok := idx.artifacts[entry.id]
		if !ok {
			continue
		}
		if f.matches(a) {
			out = append(out, a)
		}
	}
	return out
}

// CaseArtifactIDs returns the ordered artifact ids recorded for caseID.
func (idx *Index) CaseArtifactIDs(caseID string) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]string, len(idx.byCaseID[caseID]))
	copy(out, idx.byCaseID[caseID])
	return out
}
