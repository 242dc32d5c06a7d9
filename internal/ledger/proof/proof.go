// Package proof implements the Merkle proof service: given a committed
// artifact id, it certifies inclusion as an externally-persisted
// certificate verifiable offline against the containing block's stored
// Merkle root alone.
package proof

import (
	"fmt"

	"github.com/chittyos/chittychain/internal/ledger/chain"
	"github.com/chittyos/chittychain/internal/ledgererr"
	"github.com/chittyos/chittychain/internal/ledgerhash"
)

// SiblingSide names which side of its pair a sibling hash sits on.
type SiblingSide string

const (
	SideLeft  SiblingSide = "left"
	SideRight SiblingSide = "right"
)

// Sibling is one step of a certificate's inclusion path.
type Sibling struct {
	Hash []byte
	Side SiblingSide
}

// Certificate is the self-describing, offline-verifiable proof that an
// artifact was included in a specific committed block.
type Certificate struct {
	ArtifactID  string
	BlockIndex  int64
	LeafIndex   int
	Siblings    []Sibling
	ClaimedRoot []byte
}

// Certify builds a Certificate for artifactID by locating its committed
// block in ch and generating a Merkle inclusion proof over that block's
// artifacts.
func Certify(ch *chain.Chain, artifactID string) (*Certificate, error) {
	_, blockIndex, ok := ch.ArtifactByID(artifactID)
	if !ok {
		return nil, fmt.Errorf("proof: artifact %s: %w", artifactID, ledgererr.ErrOrphanReference)
	}
	b, err := ch.BlockAt(blockIndex)
	if err != nil {
		return nil, fmt.Errorf("proof: %w", err)
	}

	leafIndex := -1
	for i, a := range b.Artifacts {
		if a.ID == artifactID {
			leafIndex = i
			break
		}
	}
	if leafIndex < 0 {
		return nil, fmt.Errorf("proof: artifact %s not found in block %d: %w", artifactID, blockIndex, ledgererr.ErrOrphanReference)
	}

	raw, err := b.InclusionProof(ch.Algorithm(), leafIndex)
	if err != nil {
		return nil, fmt.Errorf("proof: %w", err)
	}

	cert := &Certificate{
		ArtifactID:  artifactID,
		BlockIndex:  blockIndex,
		LeafIndex:   leafIndex,
		ClaimedRoot: raw.Root,
	}
	for _, n := range raw.Nodes {
		side := SideRight
		if n.Position == ledgerhash.Left {
			side = SideLeft
		}
		cert.Siblings = append(cert.Siblings, Sibling{Hash: n.Hash, Side: side})
	}
	return cert, nil
}

// Verify checks cert against the artifact's leaf hash, recomputing the
// root from the certificate's sibling path alone; no access to the chain
// or any other block state is required.
func Verify(alg ledgerhash.Algorithm, leafHash []byte, cert *Certificate) bool {
	if cert == nil {
		return false
	}
	var nodes []ledgerhash.ProofNode
	for _, s := range cert.Siblings {
		pos := ledgerhash.Right
		if s.Side == SideLeft {
			pos = ledgerhash.Left
		}
		nodes = append(nodes, ledgerhash.ProofNode{Hash: s.Hash, Position: pos})
	}
	return ledgerhash.VerifyProof(alg, &ledgerhash.InclusionProof{
		LeafHash: leafHash,
		Index:    cert.LeafIndex,
		Nodes:    nodes,
		Root:     cert.ClaimedRoot,
	})
}
