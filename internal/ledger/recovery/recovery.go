// Package recovery implements the Recovery Service: checkpoints, backups,
// and the staged SAFE/AGGRESSIVE/REBUILD repair strategies. Every repair
// builds a candidate chain off to the side, audits it, and swaps it in
// only if at least as valid as the original.
package recovery

import (
	"context"
	"fmt"
	"sort"
	"time"

	"google.golang.org/protobuf/types/known/timestamppb"
	"gopkg.in/yaml.v3"

	"github.com/chittyos/chittychain/internal/ledger/audit"
	"github.com/chittyos/chittychain/internal/ledger/block"
	"github.com/chittyos/chittychain/internal/ledger/chain"
	"github.com/chittyos/chittychain/internal/ledger/events"
	"github.com/chittyos/chittychain/internal/ledger/index"
	"github.com/chittyos/chittychain/internal/ledgererr"
	"github.com/chittyos/chittychain/internal/ledgerhash"
	"github.com/chittyos/chittychain/internal/yamlutil"
	"github.com/chittyos/chittychain/pkg/evidence"
)

// Strategy selects how aggressively auto_recover repairs the chain.
type Strategy int32

const (
	StrategyUnspecified Strategy = iota
	Safe
	Aggressive
	Rebuild
)

func (s Strategy) String() string {
	switch s {
	case Safe:
		return "SAFE"
	case Aggressive:
		return "AGGRESSIVE"
	case Rebuild:
		return "REBUILD"
	default:
		return "UNSPECIFIED"
	}
}

// Snapshot is the self-describing, versioned serialization of a chain:
// its blocks plus metadata, the format persisted to checkpoint and backup
// files. Its fields are tagged and any field an older reader does not
// recognize is preserved verbatim across a read-then-write cycle (see
// UnmarshalYAML), so a file written by a newer ledger version round trips
// through an older one without losing data.
type Snapshot struct {
	Version    int           `yaml:"version"`
	CreatedAt  time.Time     `yaml:"created_at"`
	ChainHash  string        `yaml:"chain_hash"`
	BlockCount int           `yaml:"block_count"`
	Blocks     []BlockRecord `yaml:"blocks"`

	extra yamlutil.Extra
}

// UnmarshalYAML decodes node into s's known fields, preserving any field
// it does not recognize in s.extra.
func (s *Snapshot) UnmarshalYAML(node *yaml.Node) error {
	type plain Snapshot
	p := plain(*s)
	extra, err := yamlutil.DecodeKnown(node, &p)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	*s = Snapshot(p)
	s.extra = extra
	return nil
}

// MarshalYAML writes s's known fields plus any field preserved by a prior
// UnmarshalYAML.
func (s Snapshot) MarshalYAML() (interface{}, error) {
	type plain Snapshot
	return yamlutil.EncodeWithExtra(plain(s), s.extra)
}

// BlockRecord is the serializable shape of a block.Block, including its
// artifact bodies so a restored block's Merkle root and hash can be
// recomputed over the same leaves they were originally sealed with.
type BlockRecord struct {
	Index        int64            `yaml:"index"`
	Timestamp    time.Time        `yaml:"timestamp"`
	PreviousHash []byte           `yaml:"previous_hash"`
	MerkleRoot   []byte           `yaml:"merkle_root"`
	Nonce        uint64           `yaml:"nonce"`
	Difficulty   int              `yaml:"difficulty"`
	MinerID      string           `yaml:"miner_id"`
	Hash         []byte           `yaml:"hash"`
	Artifacts    []ArtifactRecord `yaml:"artifacts"`

	extra yamlutil.Extra
}

// UnmarshalYAML decodes node into r's known fields, preserving any field
// it does not recognize in r.extra.
func (r *BlockRecord) UnmarshalYAML(node *yaml.Node) error {
	type plain BlockRecord
	p := plain(*r)
	extra, err := yamlutil.DecodeKnown(node, &p)
	if err != nil {
		return fmt.Errorf("block_record: %w", err)
	}
	*r = BlockRecord(p)
	r.extra = extra
	return nil
}

// MarshalYAML writes r's known fields plus any field preserved by a prior
// UnmarshalYAML.
func (r BlockRecord) MarshalYAML() (interface{}, error) {
	type plain BlockRecord
	return yamlutil.EncodeWithExtra(plain(r), r.extra)
}

// ArtifactRecord is the serializable shape of an evidence.Artifact.
type ArtifactRecord struct {
	ID                   string            `yaml:"id"`
	ContentHash          []byte            `yaml:"content_hash"`
	Tier                 string            `yaml:"tier"`
	Weight               float64           `yaml:"weight"`
	AuthenticationMethod string            `yaml:"authentication_method"`
	Statement            string            `yaml:"statement"`
	CaseID               string            `yaml:"case_id"`
	Type                 string            `yaml:"type"`
	Timestamp            time.Time         `yaml:"timestamp"`
	CorroboratingIDs     []string          `yaml:"corroborating_ids"`
	Metadata             map[string]string `yaml:"metadata"`
	AdverseAdmission     bool              `yaml:"adverse_admission"`
	Contemporaneous      bool              `yaml:"contemporaneous"`
	BlockIndex           int64             `yaml:"block_index"`
	MintedAt             time.Time         `yaml:"minted_at"`
	MinerID              string            `yaml:"miner_id"`
}

func artifactRecordOf(a *evidence.Artifact) ArtifactRecord {
	return ArtifactRecord{
		ID:                   a.ID,
		ContentHash:          a.ContentHash,
		Tier:                 a.Tier.String(),
		Weight:               a.Weight,
		AuthenticationMethod: a.AuthenticationMethod.String(),
		Statement:            a.Statement,
		CaseID:               a.CaseID,
		Type:                 a.Type,
		Timestamp:            a.Timestamp,
		CorroboratingIDs:     a.CorroboratingIDs,
		Metadata:             a.Metadata,
		AdverseAdmission:     a.AdverseAdmission,
		Contemporaneous:      a.Contemporaneous,
		BlockIndex:           a.BlockIndex,
		MintedAt:             a.MintedAt,
		MinerID:              a.MinerID,
	}
}

// toArtifact reverses artifactRecordOf, resolving the record's
// string-encoded tier and authentication method back to their typed
// values.
func (r ArtifactRecord) toArtifact() (*evidence.Artifact, error) {
	tier, err := evidence.ParseTier(r.Tier)
	if err != nil {
		return nil, fmt.Errorf("artifact %s: %w", r.ID, err)
	}
	auth, err := evidence.ParseAuthenticationMethod(r.AuthenticationMethod)
	if err != nil {
		return nil, fmt.Errorf("artifact %s: %w", r.ID, err)
	}
	return &evidence.Artifact{
		ID:                   r.ID,
		ContentHash:          r.ContentHash,
		Tier:                 tier,
		Weight:               r.Weight,
		AuthenticationMethod: auth,
		Statement:            r.Statement,
		CaseID:               r.CaseID,
		Type:                 r.Type,
		Timestamp:            r.Timestamp,
		CorroboratingIDs:     r.CorroboratingIDs,
		Metadata:             r.Metadata,
		AdverseAdmission:     r.AdverseAdmission,
		Contemporaneous:      r.Contemporaneous,
		BlockIndex:           r.BlockIndex,
		MintedAt:             r.MintedAt,
		MinerID:              r.MinerID,
	}, nil
}

// Checkpoint records a validated, recoverable chain state at a point in
// time.
type Checkpoint struct {
	ID          string
	CreatedAt   time.Time
	ChainHeight int64
	ChainHash   []byte
	Snapshot    Snapshot
}

// CreatedAtProto renders c.CreatedAt in the wire format external
// collaborators exchange with the ledger; the checkpoint itself is
// persisted to disk as YAML.
func (c *Checkpoint) CreatedAtProto() *timestamppb.Timestamp {
	return timestamppb.New(c.CreatedAt)
}

// Outcome summarizes what a recovery run changed.
type Outcome struct {
	Strategy      Strategy
	Applied       bool
	DroppedBlocks []int64
	Message       string
	NewCheckpoint *Checkpoint
}

// Store owns checkpoints and backups in memory, standing in for the
// on-disk retention the ledger's config layer points at. Retention is
// enforced by count, oldest first.
type Store struct {
	checkpoints     []*Checkpoint
	backups         []*Checkpoint
	backupRetention int
}

// NewStore constructs a Store with the given backup retention count.
func NewStore(backupRetention int) *Store {
	if backupRetention <= 0 {
		backupRetention = 10
	}
	return &Store{backupRetention: backupRetention}
}

func snapshotOf(blocks []*block.Block) Snapshot {
	records := make([]BlockRecord, len(blocks))
	for i, b := range blocks {
		artifacts := make([]ArtifactRecord, len(b.Artifacts))
		for j, a := range b.Artifacts {
			artifacts[j] = artifactRecordOf(a)
		}
		records[i] = BlockRecord{
			Index: b.Index, Timestamp: b.Timestamp, PreviousHash: b.PreviousHash,
			MerkleRoot: b.MerkleRoot, Nonce: b.Nonce, Difficulty: b.Difficulty,
			MinerID: b.MinerID, Hash: b.Hash, Artifacts: artifacts,
		}
	}
	var chainHash string
	if len(blocks) > 0 {
		chainHash = fmt.Sprintf("%x", blocks[len(blocks)-1].Hash)
	}
	return Snapshot{Version: 1, CreatedAt: time.Now(), ChainHash: chainHash, BlockCount: len(blocks), Blocks: records}
}

// CreateCheckpoint snapshots ch's current state under label and retains
// it in the store.
func (s *Store) CreateCheckpoint(label string, ch *chain.Chain) (*Checkpoint, error) {
	blocks := ch.Blocks()
	snap := snapshotOf(blocks)
	cp := &Checkpoint{
		ID:          label,
		CreatedAt:   time.Now(),
		ChainHeight: int64(len(blocks) - 1),
		ChainHash:   tipHash(blocks),
		Snapshot:    snap,
	}
	s.checkpoints = append(s.checkpoints, cp)
	return cp, nil
}

// CreateBackup writes a backup-format snapshot (checkpoint format plus
// retention bookkeeping) and returns its logical path/id. Retention is
// enforced: the oldest backup is dropped once the count exceeds
// backupRetention.
func (s *Store) CreateBackup(ch *chain.Chain) (string, error) {
	blocks := ch.Blocks()
	cp := &Checkpoint{
		ID:          fmt.Sprintf("backup-%d", time.Now().UnixNano()),
		CreatedAt:   time.Now(),
		ChainHeight: int64(len(blocks) - 1),
		ChainHash:   tipHash(blocks),
		Snapshot:    snapshotOf(blocks),
	}
	if _, err := yaml.Marshal(cp.Snapshot); err != nil {
		return "", fmt.Errorf("create backup: %w", ledgererr.ErrSnapshotCorrupt)
	}
	s.backups = append(s.backups, cp)
	if len(s.backups) > s.backupRetention {
		s.backups = s.backups[len(s.backups)-s.backupRetention:]
	}
	return cp.ID, nil
}

// RestoreBackup finds the backup with the given path/id and returns its
// snapshot for the caller to reconstruct a chain from.
func (s *Store) RestoreBackup(path string) (*Checkpoint, error) {
	for _, b := range s.backups {
		if b.ID == path {
			return b, nil
		}
	}
	return nil, fmt.Errorf("restore backup %q: %w", path, ledgererr.ErrBackupNotFound)
}

func (s *Store) latestValidCheckpoint(ctx context.Context, alg ledgerhash.Algorithm) (*Checkpoint, bool) {
	sorted := append([]*Checkpoint{}, s.checkpoints...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].CreatedAt.After(sorted[j].CreatedAt) })
	for _, cp := range sorted {
		candidate, err := chainFromSnapshot(cp.Snapshot, alg)
		if err != nil {
			continue
		}
		if report, err := audit.Run(ctx, candidate); err == nil && report.OK {
			return cp, true
		}
	}
	return nil, false
}

func (s *Store) latestBackup() (*Checkpoint, bool) {
	if len(s.backups) == 0 {
		return nil, false
	}
	return s.backups[len(s.backups)-1], true
}

func tipHash(blocks []*block.Block) []byte {
	if len(blocks) == 0 {
		return nil
	}
	return blocks[len(blocks)-1].Hash
}

// chainFromSnapshot reconstructs a Chain from a snapshot, replaying each
// block's persisted artifact bodies so the block's Merkle root and hash
// recompute over the same leaves they were originally sealed with.
func chainFromSnapshot(snap Snapshot, alg ledgerhash.Algorithm) (*chain.Chain, error) {
	c := chain.New(alg)
	blocks := make([]*block.Block, len(snap.Blocks))
	for i, r := range snap.Blocks {
		artifacts := make([]*evidence.Artifact, len(r.Artifacts))
		for j, ar := range r.Artifacts {
			a, err := ar.toArtifact()
			if err != nil {
				return nil, fmt.Errorf("chain_from_snapshot: block %d: %w", r.Index, err)
			}
			artifacts[j] = a
		}
		blocks[i] = &block.Block{
			Index: r.Index, Timestamp: r.Timestamp, PreviousHash: r.PreviousHash,
			MerkleRoot: r.MerkleRoot, Nonce: r.Nonce, Difficulty: r.Difficulty,
			MinerID: r.MinerID, Hash: r.Hash, Artifacts: artifacts,
		}
	}
	c.Swap(blocks)
	return c, nil
}

// AutoRecover runs the audit service, then applies strategy to produce a
// candidate chain; the candidate is only swapped in if it is at least as
// valid as the original. Every recovery, successful or not, produces a
// new checkpoint.
func AutoRecover(ctx context.Context, ch *chain.Chain, idx *index.Index, s *Store, bus *events.Bus, strategy Strategy) (*Outcome, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("recovery: %w", ledgererr.ErrRecoveryCancelled)
	default:
	}

	before, err := audit.Run(ctx, ch)
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{Strategy: strategy}
	blocks := ch.Blocks()

	switch strategy {
	case Safe:
		if before.OK {
			outcome.Message = "chain already valid; no changes made"
			outcome.Applied = true
			break
		}
		resealed := reseal(ch.Algorithm(), blocks)
		after, err := auditCandidate(ctx, ch.Algorithm(), resealed)
		if err != nil {
			return nil, err
		}
		if after.OK || fewerCriticalErrors(after, before) {
			if err := trySwap(ctx, ch, idx, resealed); err != nil {
				return nil, err
			}
			outcome.Applied = true
			if after.OK {
				outcome.Message = "recomputed merkle roots and block hashes; chain now valid"
			} else {
				outcome.Message = "recomputed merkle roots and block hashes where derivable; some errors remain"
			}
		} else {
			outcome.Message = "no safe fix: artifact content hashes do not verify against Merkle leaves"
		}
	case Aggressive:
		truncateAt := earliestCriticalBlock(before)
		if truncateAt < 0 {
			outcome.Message = "no critical errors found; nothing to truncate"
		} else {
			for i := truncateAt; i < len(blocks); i++ {
				outcome.DroppedBlocks = append(outcome.DroppedBlocks, blocks[i].Index)
			}
			// SAFE plus truncate: reseal the retained prefix the same way
			// SAFE would, then cut it at the earliest unrecoverable block.
			resealedPrefix := reseal(ch.Algorithm(), blocks[:truncateAt])
			if err := trySwap(ctx, ch, idx, resealedPrefix); err != nil {
				return nil, err
			}
			outcome.Applied = true
			outcome.Message = fmt.Sprintf("truncated chain at block %d, restoring longest valid prefix", truncateAt)
		}
	case Rebuild:
		if cp, ok := s.latestValidCheckpoint(ctx, ch.Algorithm()); ok {
			candidate, err := chainFromSnapshot(cp.Snapshot, ch.Algorithm())
			if err != nil {
				return nil, err
			}
			restored := candidate.Blocks()
			ch.Swap(restored)
			idx.Rebuild(rebuildEntriesFrom(restored))
			outcome.Applied = true
			outcome.Message = fmt.Sprintf("restored from checkpoint %s", cp.ID)
		} else if bk, ok := s.latestBackup(); ok {
			candidate, err := chainFromSnapshot(bk.Snapshot, ch.Algorithm())
			if err != nil {
				return nil, err
			}
			if err := trySwap(ctx, ch, idx, candidate.Blocks()); err != nil {
				return nil, err
			}
			outcome.Applied = true
			outcome.Message = fmt.Sprintf("restored from backup %s", bk.ID)
		} else {
			fresh := chain.New(ch.Algorithm())
			if err := fresh.Init("recovery"); err != nil {
				return nil, err
			}
			if err := trySwap(ctx, ch, idx, fresh.Blocks()); err != nil {
				return nil, err
			}
			outcome.Applied = true
			outcome.Message = "no valid checkpoint or backup found; reinitialized with genesis only"
		}
	default:
		return nil, fmt.Errorf("auto_recover: unknown strategy %d", strategy)
	}

	cp, err := s.CreateCheckpoint(fmt.Sprintf("recovery-%s-%d", strategy, time.Now().UnixNano()), ch)
	if err != nil {
		return nil, err
	}
	outcome.NewCheckpoint = cp

	if bus != nil {
		bus.Publish(events.CheckpointCreated{ID: cp.ID})
		bus.Publish(events.RecoveryPerformed{Strategy: strategy.String(), Outcome: outcome.Message})
	}
	return outcome, nil
}

// reseal rebuilds every block whose stored merkle_root/hash no longer
// matches its current artifacts, recomputing from the artifacts as they
// stand. A block whose artifacts were themselves tampered with still ends
// up with a self-consistent merkle_root/hash after reseal, but the
// resulting hash will typically fail its recorded PoW difficulty, which
// audit still reports. That is the genuinely unrecoverable case.
func reseal(alg ledgerhash.Algorithm, blocks []*block.Block) []*block.Block {
	out := make([]*block.Block, len(blocks))
	for i, b := range blocks {
		out[i] = block.Reseal(alg, b)
	}
	// Relink previous_hash pointers since a resealed predecessor's hash
	// may have changed.
	for i := 1; i < len(out); i++ {
		out[i].PreviousHash = out[i-1].Hash
		out[i] = block.Reseal(alg, out[i])
	}
	return out
}

func auditCandidate(ctx context.Context, alg ledgerhash.Algorithm, blocks []*block.Block) (*audit.Report, error) {
	candidate := chain.New(alg)
	candidate.Swap(blocks)
	return audit.Run(ctx, candidate)
}

func fewerCriticalErrors(after, before *audit.Report) bool {
	countCritical := func(r *audit.Report) int {
		n := 0
		for _, e := range r.Errors {
			if e.Severity == audit.Critical {
				n++
			}
		}
		return n
	}
	return countCritical(after) < countCritical(before)
}

func earliestCriticalBlock(report *audit.Report) int {
	earliest := -1
	for _, e := range report.Errors {
		if e.Severity != audit.Critical || e.BlockIndex == nil {
			continue
		}
		idx := int(*e.BlockIndex)
		if earliest == -1 || idx < earliest {
			earliest = idx
		}
	}
	return earliest
}

// trySwap builds a candidate from blocks, audits it, and swaps it in only
// if the candidate validates at least as well as doing nothing.
func trySwap(ctx context.Context, ch *chain.Chain, idx *index.Index, candidateBlocks []*block.Block) error {
	before, err := audit.Run(ctx, ch)
	if err != nil {
		return err
	}
	after, err := auditCandidate(ctx, ch.Algorithm(), candidateBlocks)
	if err != nil {
		return err
	}
	if !after.OK && fewerCriticalErrors(before, after) {
		return fmt.Errorf("recovery: candidate chain has more critical errors than the current chain; not swapped")
	}
	ch.Swap(candidateBlocks)
	idx.Rebuild(rebuildEntriesFrom(candidateBlocks))
	return nil
}

// rebuildEntriesFrom flattens blocks' artifacts into the entries the
// query index needs to rebuild itself after a chain swap.
func rebuildEntriesFrom(blocks []*block.Block) []index.RebuildEntry {
	var entries []index.RebuildEntry
	for _, b := range blocks {
		for _, a := range b.Artifacts {
			entries = append(entries, index.RebuildEntry{Artifact: a, BlockIndex: b.Index})
		}
	}
	return entries
}
