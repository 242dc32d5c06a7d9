package audit_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/chittyos/chittychain/internal/ledger/audit"
	"github.com/chittyos/chittychain/internal/ledger/block"
	"github.com/chittyos/chittychain/internal/ledger/chain"
	"github.com/chittyos/chittychain/internal/ledgerhash"
	"github.com/chittyos/chittychain/pkg/evidence"
	"github.com/google/uuid"
)

func mkArtifact() *evidence.Artifact {
	a := &evidence.Artifact{
		ID:                   uuid.New().String(),
		Tier:                 evidence.TierGovernment,
		Weight:               0.95,
		AuthenticationMethod: evidence.AuthDigitalSeal,
		Statement:            "signed",
		CaseID:               "C1",
		Type:                 "document",
		Timestamp:            time.Now().Add(-time.Minute),
	}
	a.ContentHash = a.ComputeContentHash(ledgerhash.AlgorithmSHA256)
	return a
}

func buildChainWithTwoBlocks(t *testing.T) (*chain.Chain, *evidence.Artifact) {
	t.Helper()
	c := chain.New(ledgerhash.AlgorithmSHA256)
	if err := c.Init("miner-0"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	a1 := mkArtifact()
	tip := c.Tip()
	b1, err := block.Build(context.Background(), ledgerhash.AlgorithmSHA256, tip.Index+1, tip.Hash, []*evidence.Artifact{a1}, 1, "miner-1", nil)
	if err != nil {
		t.Fatalf("Build b1: %v", err)
	}
	if err := c.Append(b1); err != nil {
		t.Fatalf("Append b1: %v", err)
	}

	a2 := mkArtifact()
	tip = c.Tip()
	b2, err := block.Build(context.Background(), ledgerhash.AlgorithmSHA256, tip.Index+1, tip.Hash, []*evidence.Artifact{a2}, 1, "miner-1", nil)
	if err != nil {
		t.Fatalf("Build b2: %v", err)
	}
	if err := c.Append(b2); err != nil {
		t.Fatalf("Append b2: %v", err)
	}
	return c, a1
}

func TestCleanChainValidates(t *testing.T) {
	c, _ := buildChainWithTwoBlocks(t)
	report, err := audit.Run(context.Background(), c)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !report.OK {
		t.Fatalf("report.OK = false, errors = %v", report.Errors)
	}
	if report.Summary.Blocks != 3 {
		t.Fatalf("Summary.Blocks = %d, want 3 (genesis + 2)", report.Summary.Blocks)
	}
}

func TestTamperDetection(t *testing.T) {
	c, a1 := buildChainWithTwoBlocks(t)
	b1, err := c.BlockAt(1)
	if err != nil {
		t.Fatalf("BlockAt(1): %v", err)
	}
	b1.Artifacts[0].Statement = "tampered statement"
	_ = a1

	report, err := audit.Run(context.Background(), c)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.OK {
		t.Fatalf("expected report.OK = false after tampering")
	}
	foundMerkle := false
	for _, e := range report.Errors {
		if strings.Contains(e.Message, "merkle") {
			foundMerkle = true
		}
	}
	if !foundMerkle {
		t.Fatalf("expected a merkle mismatch error, got %v", report.Errors)
	}
}

func TestTamperDetectionReportsContentHashMismatch(t *testing.T) {
	c, _ := buildChainWithTwoBlocks(t)
	b1, err := c.BlockAt(1)
	if err != nil {
		t.Fatalf("BlockAt(1): %v", err)
	}
	b1.Artifacts[0].Statement = "tampered statement"

	report, err := audit.Run(context.Background(), c)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	foundCritical := false
	for _, e := range report.Errors {
		if e.Severity == audit.Critical && strings.Contains(e.Message, "content hash mismatch") {
			foundCritical = true
		}
	}
	if !foundCritical {
		t.Fatalf("expected a CRITICAL content hash mismatch error, got %v", report.Errors)
	}
}

func TestGenesisMissingIsCritical(t *testing.T) {
	c := chain.New(ledgerhash.AlgorithmSHA256)
	report, err := audit.Run(context.Background(), c)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.OK {
		t.Fatalf("expected report.OK = false for empty chain")
	}
	if len(report.Errors) == 0 || report.Errors[0].Severity != audit.Critical {
		t.Fatalf("expected a CRITICAL genesis-missing error, got %v", report.Errors)
	}
}
