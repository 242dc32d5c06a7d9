// Package config loads the ledger's tunables from a YAML file: the digest
// algorithm, proof-of-work difficulty, clock-skew tolerance, backup
// retention, contradiction amount tolerance, and personal-tier
// corroboration minimum. Fields the file leaves unset fall back to the
// documented defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chittyos/chittychain/internal/ledgerhash"
	"github.com/chittyos/chittychain/internal/yamlutil"
)

// Config holds every tunable enumerated in the ledger's external
// interface.
type Config struct {
	Difficulty                int     `yaml:"difficulty"`
	DigestAlgorithm           string  `yaml:"digest_algorithm"`
	MaxFutureSkewSeconds      int     `yaml:"max_future_skew_seconds"`
	BackupRetentionCount      int     `yaml:"backup_retention_count"`
	PartialAmountTolerance    float64 `yaml:"partial_amount_tolerance"`
	MinPersonalCorroborations int     `yaml:"min_personal_corroborations"`

	// extra carries forward any YAML field this version of Config does
	// not recognize, so a file written by a newer ledger version round
	// trips through Load without losing that field.
	extra yamlutil.Extra
}

// UnmarshalYAML decodes node into c's known fields and preserves any
// field it does not recognize in c.extra, so a file written by a newer
// ledger version survives a read-modify-write cycle through this one.
func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type plain Config
	p := plain(*c)
	extra, err := yamlutil.DecodeKnown(node, &p)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	*c = Config(p)
	c.extra = extra
	return nil
}

// MarshalYAML writes c's known fields plus any field preserved by a
// prior UnmarshalYAML.
func (c Config) MarshalYAML() (interface{}, error) {
	type plain Config
	return yamlutil.EncodeWithExtra(plain(c), c.extra)
}

// Default returns the ledger's documented default configuration.
func Default() Config {
	return Config{
		Difficulty:                4,
		DigestAlgorithm:           "SHA3-256",
		MaxFutureSkewSeconds:      60,
		BackupRetentionCount:      10,
		PartialAmountTolerance:    0.05,
		MinPersonalCorroborations: 3,
	}
}

// Load reads a YAML config file at path and fills in any field the file
// leaves unset with the documented default.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that every field holds a value the ledger core can act
// on.
func (c Config) Validate() error {
	if c.Difficulty < 0 {
		return fmt.Errorf("difficulty %d must be >= 0", c.Difficulty)
	}
	if _, err := c.Algorithm(); err != nil {
		return err
	}
	if c.MaxFutureSkewSeconds < 0 {
		return fmt.Errorf("max_future_skew_seconds %d must be >= 0", c.MaxFutureSkewSeconds)
	}
	if c.BackupRetentionCount <= 0 {
		return fmt.Errorf("backup_retention_count %d must be > 0", c.BackupRetentionCount)
	}
	if c.PartialAmountTolerance < 0 || c.PartialAmountTolerance > 1 {
		return fmt.Errorf("partial_amount_tolerance %f must be in [0,1]", c.PartialAmountTolerance)
	}
	if c.MinPersonalCorroborations <= 0 {
		return fmt.Errorf("min_personal_corroborations %d must be > 0", c.MinPersonalCorroborations)
	}
	return nil
}

// Algorithm resolves the configured digest algorithm name to the
// ledgerhash.Algorithm value the chain records and hashes with.
func (c Config) Algorithm() (ledgerhash.Algorithm, error) {
	switch c.DigestAlgorithm {
	case "SHA3-256", "sha3-256":
		return ledgerhash.AlgorithmSHA3_256, nil
	case "SHA-256", "sha256", "SHA256":
		return ledgerhash.AlgorithmSHA256, nil
	default:
		return ledgerhash.AlgorithmUnspecified, fmt.Errorf("digest_algorithm %q is not SHA3-256 or SHA-256", c.DigestAlgorithm)
	}
}

// MaxFutureSkew returns the configured clock-skew tolerance as a
// time.Duration.
func (c Config) MaxFutureSkew() time.Duration {
	return time.Duration(c.MaxFutureSkewSeconds) * time.Second
}
