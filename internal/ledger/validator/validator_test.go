package validator_test

import (
	"context"
	"testing"
	"time"

	"github.com/chittyos/chittychain/internal/ledger/block"
	"github.com/chittyos/chittychain/internal/ledger/chain"
	"github.com/chittyos/chittychain/internal/ledger/validator"
	"github.com/chittyos/chittychain/internal/ledgerhash"
	"github.com/chittyos/chittychain/pkg/evidence"
	"github.com/google/uuid"
)

func newChain(t *testing.T) *chain.Chain {
	t.Helper()
	c := chain.New(ledgerhash.AlgorithmSHA256)
	if err := c.Init("miner-1"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return c
}

func newCandidate(tier evidence.Tier, weight float64, auth evidence.AuthenticationMethod) *evidence.Artifact {
	a := &evidence.Artifact{
		ID:                   uuid.New().String(),
		Tier:                 tier,
		Weight:               weight,
		AuthenticationMethod: auth,
		Statement:            "signed",
		CaseID:               "C1",
		Type:                 "document",
		Timestamp:            time.Now().Add(-time.Minute),
	}
	a.ContentHash = a.ComputeContentHash(ledgerhash.AlgorithmSHA256)
	return a
}

func TestGovernmentSealAutoMints(t *testing.T) {
	c := newChain(t)
	cand := newCandidate(evidence.TierGovernment, 0.95, evidence.AuthDigitalSeal)
	d := validator.Classify(c, cand, validator.MinPersonalCorroborations)
	if d.Outcome != validator.Mintable {
		t.Fatalf("Classify() outcome = %v, want Mintable", d.Outcome)
	}
}

func TestGovernmentWithoutSealNeedsCorroboration(t *testing.T) {
	c := newChain(t)
	cand := newCandidate(evidence.TierGovernment, 0.95, evidence.AuthNotarization)
	d := validator.Classify(c, cand, validator.MinPersonalCorroborations)
	if d.Outcome != validator.NeedsCorroboration {
		t.Fatalf("Classify() outcome = %v, want NeedsCorroboration", d.Outcome)
	}
}

func TestPersonalNeverAutoMints(t *testing.T) {
	c := newChain(t)
	cand := newCandidate(evidence.TierPersonal, 0.9, evidence.AuthWitness)
	d := validator.Classify(c, cand, validator.MinPersonalCorroborations)
	if d.Outcome != validator.NeedsCorroboration {
		t.Fatalf("Classify() outcome = %v, want NeedsCorroboration", d.Outcome)
	}
	if d.RequiredCorroborations != validator.MinPersonalCorroborations {
		t.Fatalf("Classify() required = %d, want %d", d.RequiredCorroborations, validator.MinPersonalCorroborations)
	}
}

func TestFinancialBelowThresholdNeedsCorroboration(t *testing.T) {
	c := newChain(t)
	cand := newCandidate(evidence.TierFinancial, 0.80, evidence.AuthDigitalSignature)
	d := validator.Classify(c, cand, validator.MinPersonalCorroborations)
	if d.Outcome != validator.NeedsCorroboration {
		t.Fatalf("Classify() outcome = %v, want NeedsCorroboration", d.Outcome)
	}
}

func TestDuplicateIDRejected(t *testing.T) {
	c := newChain(t)
	cand := newCandidate(evidence.TierGovernment, 0.95, evidence.AuthDigitalSeal)
	d1 := validator.Classify(c, cand, validator.MinPersonalCorroborations)
	if d1.Outcome != validator.Mintable {
		t.Fatalf("first Classify() outcome = %v, want Mintable", d1.Outcome)
	}

	tip := c.Tip()
	b, err := block.Build(context.Background(), ledgerhash.AlgorithmSHA256, tip.Index+1, tip.Hash, []*evidence.Artifact{cand}, 1, "miner-1", nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := c.Append(b); err != nil {
		t.Fatalf("Append: %v", err)
	}

	d2 := validator.Classify(c, cand, validator.MinPersonalCorroborations)
	if d2.Outcome != validator.Rejected {
		t.Fatalf("Classify() outcome = %v, want Rejected for already-committed id", d2.Outcome)
	}
}

func TestUnresolvedCorroboratingIDRejected(t *testing.T) {
	c := newChain(t)
	cand := newCandidate(evidence.TierPersonal, 0.9, evidence.AuthWitness)
	cand.CorroboratingIDs = []string{uuid.New().String()}
	d := validator.Classify(c, cand, validator.MinPersonalCorroborations)
	if d.Outcome != validator.Rejected {
		t.Fatalf("Classify() outcome = %v, want Rejected for unresolved corroboration", d.Outcome)
	}
}

func TestMalformedShapeRejected(t *testing.T) {
	c := newChain(t)
	cand := newCandidate(evidence.TierGovernment, 1.5, evidence.AuthDigitalSeal)
	d := validator.Classify(c, cand, validator.MinPersonalCorroborations)
	if d.Outcome != validator.Rejected {
		t.Fatalf("Classify() outcome = %v, want Rejected for malformed shape", d.Outcome)
	}
}
