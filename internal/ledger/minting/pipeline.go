// Package minting implements the Minting Pipeline: it orchestrates the
// Artifact Validator and Contradiction Engine over a batch of candidates,
// seals survivors into a block via internal/ledger/block, and appends the
// result through the Chain Store, all or nothing.
package minting

import (
	"context"
	"fmt"
	"time"

	"github.com/chittyos/chittychain/internal/ledger/block"
	"github.com/chittyos/chittychain/internal/ledger/chain"
	"github.com/chittyos/chittychain/internal/ledger/contradiction"
	"github.com/chittyos/chittychain/internal/ledger/events"
	"github.com/chittyos/chittychain/internal/ledger/index"
	"github.com/chittyos/chittychain/internal/ledger/validator"
	"github.com/chittyos/chittychain/pkg/evidence"
)

// RejectedCandidate pairs a candidate with why it did not mint.
type RejectedCandidate struct {
	ID     string
	Reason string
}

// NeedsCorroborationCandidate pairs a candidate with how many more
// corroborations it requires.
type NeedsCorroborationCandidate struct {
	ID       string
	Required int
}

// Result is the outcome of one minting pass over a batch.
type Result struct {
	Minted             []string
	Rejected           []RejectedCandidate
	NeedsCorroboration []NeedsCorroborationCandidate
	Contradictions     []contradiction.Record
	Block              *block.Block
}

// Pipeline orchestrates admission, conflict resolution, sealing, and
// append for one batch at a time. Batches never share a block.
//
// MinPersonalCorroborations and PartialAmountTolerance mirror the
// like-named config.Config fields; a zero value falls back to the
// validator and contradiction packages' own documented defaults, so a
// Pipeline built without setting them behaves exactly as it did before
// config threading existed.
type Pipeline struct {
	Chain      *chain.Chain
	Index      *index.Index
	Events     *events.Bus
	Difficulty int

	MinPersonalCorroborations int
	PartialAmountTolerance    float64
}

func (p *Pipeline) minPersonalCorrob() int {
	if p.MinPersonalCorroborations > 0 {
		return p.MinPersonalCorroborations
	}
	return validator.MinPersonalCorroborations
}

func (p *Pipeline) partialAmountTolerance() float64 {
	if p.PartialAmountTolerance > 0 {
		return p.PartialAmountTolerance
	}
	return contradiction.DefaultPartialAmountTolerance
}

// Run executes the full minting algorithm over candidates for minerID. It
// is safe to call repeatedly for successive batches; each call is atomic.
//
// Contradiction checking covers each Mintable candidate against the
// committed chain and against its already-Mintable batch peers; the loser
// of a conflict is rejected from this batch. NeedsCorroboration
// candidates are not contested: they are not being committed, and they
// get a fresh admission pass when resubmitted with more support.
func Run(ctx context.Context, p *Pipeline, candidates []*evidence.Artifact, minerID string) (*Result, error) {
	result := &Result{}

	deduped := dedupe(candidates)

	var mintable []*evidence.Artifact
	for _, cand := range deduped {
		d := validator.Classify(p.Chain, cand, p.minPersonalCorrob())
		switch d.Outcome {
		case validator.Mintable:
			mintable = append(mintable, cand)
		case validator.NeedsCorroboration:
			result.NeedsCorroboration = append(result.NeedsCorroboration, NeedsCorroborationCandidate{ID: cand.ID, Required: d.RequiredCorroborations})
		case validator.Rejected:
			result.Rejected = append(result.Rejected, RejectedCandidate{ID: cand.ID, Reason: d.Reason.Error()})
		}
	}

	rejectedByContradiction := p.resolveContradictions(mintable, result, p.partialAmountTolerance())

	var survivors []*evidence.Artifact
	for _, cand := range mintable {
		if !rejectedByContradiction[cand.ID] {
			survivors = append(survivors, cand)
		}
	}

	if len(survivors) == 0 {
		return result, nil
	}

	tip := p.Chain.Tip()
	nextIndex := int64(0)
	prevHash := []byte(chain.GenesisPreviousHash)
	if tip != nil {
		nextIndex = tip.Index + 1
		prevHash = tip.Hash
	}

	b, err := block.Build(ctx, p.Chain.Algorithm(), nextIndex, prevHash, survivors, p.Difficulty, minerID, nil)
	if err != nil {
		return result, fmt.Errorf("minting: seal block: %w", err)
	}

	if err := p.Chain.Append(b); err != nil {
		return result, fmt.Errorf("minting: append block: %w", err)
	}

	mintedAt := time.Now().UTC()
	for _, a := range survivors {
		a.BlockIndex = b.Index
		a.MintedAt = mintedAt
		a.MinerID = minerID
		p.Index.Record(a, b.Index)
		result.Minted = append(result.Minted, a.ID)
	}
	result.Block = b

	if p.Events != nil {
		p.Events.Publish(events.BlockCommitted{Index: b.Index, Hash: b.Hash})
		for _, a := range survivors {
			p.Events.Publish(events.ArtifactMinted{ID: a.ID, BlockIndex: b.Index})
		}
		for _, r := range result.Rejected {
			p.Events.Publish(events.ArtifactRejected{ID: r.ID, Reason: r.Reason})
		}
		for _, c := range result.Contradictions {
			p.Events.Publish(events.ContradictionRecorded{Record: c})
		}
	}

	return result, nil
}

// dedupe removes batch-internal duplicates by id or content hash,
// keeping the first occurrence in original order.
func dedupe(candidates []*evidence.Artifact) []*evidence.Artifact {
	seenID := map[string]bool{}
	seenHash := map[string]bool{}
	var out []*evidence.Artifact
	for _, c := range candidates {
		hashKey := string(c.ContentHash)
		if seenID[c.ID] || seenHash[hashKey] {
			continue
		}
		seenID[c.ID] = true
		seenHash[hashKey] = true
		out = append(out, c)
	}
	return out
}

// resolveContradictions checks each Mintable candidate against the
// committed chain (by case) and against its Mintable batch siblings,
// recording every decision and returning the set of ids the engine
// rejected.
func (p *Pipeline) resolveContradictions(contested []*evidence.Artifact, result *Result, tolerance float64) map[string]bool {
	rejected := map[string]bool{}

	checkAgainst := func(cand, other *evidence.Artifact) {
		if rejected[cand.ID] || rejected[other.ID] {
			return
		}
		rec, ok := contradiction.Detect(cand, other, tolerance)
		if !ok {
			return
		}
		result.Contradictions = append(result.Contradictions, *rec)
		loserID, winnerID := cand.ID, other.ID
		if rec.WinnerID == cand.ID {
			loserID, winnerID = other.ID, cand.ID
		}
		rejected[loserID] = true
		result.Rejected = append(result.Rejected, RejectedCandidate{
			ID:     loserID,
			Reason: fmt.Sprintf("contradicts %s via %s", winnerID, rec.Resolution),
		})
	}

	for i, cand := range contested {
		for _, existing := range p.Index.Query(index.Filter{CaseID: cand.CaseID}) {
			checkAgainst(cand, existing)
		}
		for j := i + 1; j < len(contested); j++ {
			checkAgainst(cand, contested[j])
		}
	}

	return rejected
}
