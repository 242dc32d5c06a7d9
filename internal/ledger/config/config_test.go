package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/chittyos/chittychain/internal/ledger/config"
	"github.com/chittyos/chittychain/internal/ledgerhash"
)

func TestDefaultMatchesDocumentedDefaults(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() on defaults: %v", err)
	}
	if cfg.Difficulty != 4 {
		t.Fatalf("Difficulty = %d, want 4", cfg.Difficulty)
	}
	if cfg.BackupRetentionCount != 10 {
		t.Fatalf("BackupRetentionCount = %d, want 10", cfg.BackupRetentionCount)
	}
	if cfg.MinPersonalCorroborations != 3 {
		t.Fatalf("MinPersonalCorroborations = %d, want 3", cfg.MinPersonalCorroborations)
	}
}

func TestLoadAppliesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.yaml")
	contents := "difficulty: 6\ndigest_algorithm: SHA-256\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Difficulty != 6 {
		t.Fatalf("Difficulty = %d, want 6 (from file)", cfg.Difficulty)
	}
	if cfg.BackupRetentionCount != 10 {
		t.Fatalf("BackupRetentionCount = %d, want 10 (unset field keeps default)", cfg.BackupRetentionCount)
	}
	alg, err := cfg.Algorithm()
	if err != nil {
		t.Fatalf("Algorithm: %v", err)
	}
	if alg != ledgerhash.AlgorithmSHA256 {
		t.Fatalf("Algorithm() = %v, want SHA-256", alg)
	}
}

func TestLoadRejectsUnknownAlgorithm(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.yaml")
	if err := os.WriteFile(path, []byte("digest_algorithm: MD5\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := config.Load(path); err == nil {
		t.Fatalf("expected Load to reject an unrecognized digest algorithm")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := config.Load("/nonexistent/ledger.yaml"); err == nil {
		t.Fatalf("expected an error for a missing config file")
	}
}

func TestLoadPreservesUnknownFieldsOnRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.yaml")
	contents := "difficulty: 6\nfuture_field: from-a-newer-version\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Difficulty != 6 {
		t.Fatalf("Difficulty = %d, want 6", cfg.Difficulty)
	}

	out, err := yaml.Marshal(cfg)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(out), "future_field: from-a-newer-version") {
		t.Fatalf("expected round-tripped config to preserve future_field, got:\n%s", out)
	}
}
