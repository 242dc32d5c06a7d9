// Package block implements the ledger's sealed block type: header
// construction, Merkle commitment, proof-of-work sealing, and
// self-validation. Sealing is grounded in a standard leading-zero-hex
// proof-of-work, generalized from a simple nonce-search miner and made
// cancellable and progress-reporting per the ledger's concurrency model.
package block

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/chittyos/chittychain/internal/ledgererr"
	"github.com/chittyos/chittychain/internal/ledgerhash"
	"github.com/chittyos/chittychain/pkg/evidence"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// MaxFutureSkew bounds how far a block timestamp may sit ahead of wall
// clock time before validate() rejects it. It is a fixed constant equal to
// the config default; the clock-skew value in internal/ledger/config is
// not consulted.
const MaxFutureSkew = 60 * time.Second

// Block is an immutable, sealed ledger record. Once built, its fields must
// not be mutated; a changed field invalidates Hash.
type Block struct {
	Index        int64
	Timestamp    time.Time
	PreviousHash []byte
	MerkleRoot   []byte
	Nonce        uint64
	Difficulty   int
	MinerID      string
	Artifacts    []*evidence.Artifact
	Hash         []byte
}

// TimestampProto renders b.Timestamp in the wire format external
// collaborators exchange with the ledger.
func (b *Block) TimestampProto() *timestamppb.Timestamp {
	return timestamppb.New(b.Timestamp)
}

// ProgressFunc is invoked periodically during mining with the number of
// nonce attempts made so far. It must not block the miner for long.
type ProgressFunc func(attempts uint64)

// Build seals a new block: it computes the Merkle root over artifacts,
// then searches for a nonce whose resulting header hash has Difficulty
// leading zero hex digits, reporting progress and honoring cancellation.
func Build(ctx context.Context, alg ledgerhash.Algorithm, index int64, previousHash []byte, artifacts []*evidence.Artifact, difficulty int, minerID string, progress ProgressFunc) (*Block, error) {
	leaves := make([][]byte, len(artifacts))
	for i, a := range artifacts {
		leaves[i] = ledgerhash.Encode(a.CanonicalFields())
	}
	tree := ledgerhash.BuildTree(alg, leaves)

	b := &Block{
		Index:        index,
		Timestamp:    time.Now().UTC(),
		PreviousHash: append([]byte(nil), previousHash...),
		MerkleRoot:   tree.Root(),
		Difficulty:   difficulty,
		MinerID:      minerID,
		Artifacts:    artifacts,
	}

	hash, nonce, err := mine(ctx, alg, b, progress)
	if err != nil {
		return nil, err
	}
	b.Nonce = nonce
	b.Hash = hash
	return b, nil
}

func mine(ctx context.Context, alg ledgerhash.Algorithm, b *Block, progress ProgressFunc) ([]byte, uint64, error) {
	var attempts uint64
	for nonce := uint64(0); ; nonce++ {
		select {
		case <-ctx.Done():
			return nil, 0, fmt.Errorf("mining block %d: %w", b.Index, ledgererr.ErrMiningCancelled)
		default:
		}
		hash := headerHash(alg, b, nonce)
		attempts++
		if progress != nil && attempts%4096 == 0 {
			progress(attempts)
		}
		if hasLeadingZeroHex(hash, b.Difficulty) {
			return hash, nonce, nil
		}
	}
}

func headerHash(alg ledgerhash.Algorithm, b *Block, nonce uint64) []byte {
	return ledgerhash.Sum(alg, headerBytes(b, nonce))
}

func headerBytes(b *Block, nonce uint64) []byte {
	return ledgerhash.Encode(ledgerhash.Fields{
		"index":         []byte(strconv.FormatInt(b.Index, 10)),
		"timestamp":     []byte(b.Timestamp.UTC().Truncate(time.Second).Format(time.RFC3339)),
		"previous_hash": b.PreviousHash,
		"merkle_root":   b.MerkleRoot,
		"nonce":         []byte(strconv.FormatUint(nonce, 10)),
		"difficulty":    []byte(strconv.Itoa(b.Difficulty)),
		"miner_id":      []byte(b.MinerID),
	})
}

// hasLeadingZeroHex reports whether hash, hex-encoded, begins with n zero
// digits.
func hasLeadingZeroHex(hash []byte, n int) bool {
	if n <= 0 {
		return true
	}
	hexChars := n
	needBytes := (hexChars + 1) / 2
	if len(hash) < needBytes {
		return false
	}
	hexStr := strings.ToLower(fmt.Sprintf("%x", hash[:needBytes]))
	return strings.HasPrefix(hexStr, strings.Repeat("0", hexChars))
}

// Validate recomputes the block's Merkle root and header hash and checks
// its structural invariants. It returns the list of errors found (empty
// means valid) and a separate list of warnings.
func (b *Block) Validate(alg ledgerhash.Algorithm) (errs []error, warnings []error) {
	if b.Index < 0 {
		errs = append(errs, fmt.Errorf("block index %d: %w", b.Index, ledgererr.ErrIndexOutOfRange))
	}

	leaves := make([][]byte, len(b.Artifacts))
	for i, a := range b.Artifacts {
		leaves[i] = ledgerhash.Encode(a.CanonicalFields())
	}
	tree := ledgerhash.BuildTree(alg, leaves)
	if !ledgerhash.Equal(tree.Root(), b.MerkleRoot) {
		errs = append(errs, fmt.Errorf("block %d: %w", b.Index, ledgererr.ErrMerkleMismatch))
	}

	recomputed := headerHash(alg, b, b.Nonce)
	if !ledgerhash.Equal(recomputed, b.Hash) {
		errs = append(errs, fmt.Errorf("block %d: %w", b.Index, ledgererr.ErrHashMismatch))
	} else if !hasLeadingZeroHex(b.Hash, b.Difficulty) {
		errs = append(errs, fmt.Errorf("block %d: %w", b.Index, ledgererr.ErrProofOfWorkInvalid))
	}

	if b.Timestamp.After(time.Now().Add(MaxFutureSkew)) {
		errs = append(errs, fmt.Errorf("block %d: %w", b.Index, ledgererr.ErrTimestampFuture))
	}

	for i, a := range b.Artifacts {
		if a.ID == "" {
			errs = append(errs, fmt.Errorf("block %d artifact %d: %w", b.Index, i, ledgererr.ErrMissingField))
		}
		if len(a.ContentHash) != 32 {
			errs = append(errs, fmt.Errorf("block %d artifact %d: %w", b.Index, i, ledgererr.ErrInvalidDigest))
		}
	}

	return errs, warnings
}

// Reseal recomputes b's Merkle root and header hash from its current
// artifacts and existing nonce, without searching for a new nonce. It is
// used by the recovery service's SAFE strategy to repair a block whose
// stored merkle_root/hash fields drifted from its (unmodified) artifact
// bytes; if the artifacts themselves were altered, the resealed hash will
// generally no longer satisfy the recorded difficulty, and validation
// continues to report the block as unrecoverable by this means alone.
func Reseal(alg ledgerhash.Algorithm, b *Block) *Block {
	leaves := make([][]byte, len(b.Artifacts))
	for i, a := range b.Artifacts {
		leaves[i] = ledgerhash.Encode(a.CanonicalFields())
	}
	tree := ledgerhash.BuildTree(alg, leaves)

	resealed := &Block{
		Index:        b.Index,
		Timestamp:    b.Timestamp,
		PreviousHash: append([]byte(nil), b.PreviousHash...),
		MerkleRoot:   tree.Root(),
		Nonce:        b.Nonce,
		Difficulty:   b.Difficulty,
		MinerID:      b.MinerID,
		Artifacts:    b.Artifacts,
	}
	resealed.Hash = headerHash(alg, resealed, resealed.Nonce)
	return resealed
}

// InclusionProof returns a Merkle inclusion proof for the artifact at
// leafIndex, verifiable offline against b.MerkleRoot.
func (b *Block) InclusionProof(alg ledgerhash.Algorithm, leafIndex int) (*ledgerhash.InclusionProof, error) {
	leaves := make([][]byte, len(b.Artifacts))
	for i, a := range b.Artifacts {
		leaves[i] = ledgerhash.Encode(a.CanonicalFields())
	}
	tree := ledgerhash.BuildTree(alg, leaves)
	return tree.GenerateProof(leafIndex)
}
