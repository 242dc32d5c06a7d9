package proof_test

import (
	"context"
	"testing"
	"time"

	"github.com/chittyos/chittychain/internal/ledger/block"
	"github.com/chittyos/chittychain/internal/ledger/chain"
	"github.com/chittyos/chittychain/internal/ledger/proof"
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

func buildChain(t *testing.T) (*chain.Chain, *evidence.Artifact) {
	t.Helper()
	c := chain.New(ledgerhash.AlgorithmSHA256)
	if err := c.Init("miner-0"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	a1, a2 := mkArtifact(), mkArtifact()
	tip := c.Tip()
	b, err := block.Build(context.Background(), ledgerhash.AlgorithmSHA256, tip.Index+1, tip.Hash, []*evidence.Artifact{a1, a2}, 1, "miner-1", nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := c.Append(b); err != nil {
		t.Fatalf("Append: %v", err)
	}
	return c, a2
}

func TestCertifyAndVerify(t *testing.T) {
	c, target := buildChain(t)
	cert, err := proof.Certify(c, target.ID)
	if err != nil {
		t.Fatalf("Certify: %v", err)
	}
	if cert.BlockIndex != 1 {
		t.Fatalf("BlockIndex = %d, want 1", cert.BlockIndex)
	}
	leafHash := ledgerhash.Sum(ledgerhash.AlgorithmSHA256, ledgerhash.Encode(target.CanonicalFields()))
	if !proof.Verify(ledgerhash.AlgorithmSHA256, leafHash, cert) {
		t.Fatalf("expected certificate to verify")
	}
}

func TestVerifyFailsAfterTamper(t *testing.T) {
	c, target := buildChain(t)
	cert, err := proof.Certify(c, target.ID)
	if err != nil {
		t.Fatalf("Certify: %v", err)
	}
	tamperedHash := ledgerhash.Sum(ledgerhash.AlgorithmSHA256, []byte("not the artifact"))
	if proof.Verify(ledgerhash.AlgorithmSHA256, tamperedHash, cert) {
		t.Fatalf("expected verification to fail for a mismatched leaf hash")
	}
}

func TestCertifyUnknownArtifact(t *testing.T) {
	c, _ := buildChain(t)
	if _, err := proof.Certify(c, uuid.New().String()); err == nil {
		t.Fatalf("expected an error for an unknown artifact id")
	}
}
