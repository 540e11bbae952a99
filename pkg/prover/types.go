// Package prover is the boundary to the external zero-knowledge
// prover. The prover is a black box that turns a recipient's leaf
// opening into a Groth16 proof of "this leaf is in the tree rooted at
// R and its nullifier is N". Everything that comes back is validated
// against fixed byte sizes before it goes anywhere near the ledger; a
// blob of the wrong shape is rejected outright, never truncated or
// padded.
package prover

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/shadowdrop/shadowdrop-go/pkg/types"
)

// Fixed wire sizes. These mirror the circuit's compiled artifacts and
// the ledger program's instruction layout; none of them is negotiable
// at runtime.
const (
	// Groth16ProofSize is the serialized proof length in bytes.
	Groth16ProofSize = 388

	// PublicWitnessSize is the serialized public witness length: a
	// 12-byte vector header followed by the three 32-byte public
	// inputs (merkle root, nullifier, recipient field element).
	PublicWitnessSize = 108

	// NullifierSize is the nullifier length in bytes.
	NullifierSize = 32

	witnessHeaderSize = 12
	publicInputCount  = 3
)

// ProofRequest is the full opening of one leaf, everything the circuit
// needs as private and public input. Secret is private key material:
// it may cross this boundary to the prover, but it must never be
// logged or persisted outside the store.
type ProofRequest struct {
	CampaignID types.Hash       `json:"campaignId"`
	MerkleRoot types.Hash       `json:"merkleRoot"`
	Wallet     string           `json:"wallet"`
	Amount     uint64           `json:"amount"`
	Secret     types.Hash       `json:"secret"`
	Nullifier  types.Hash       `json:"nullifier"`
	LeafIndex  int              `json:"leafIndex"`
	Path       types.MerklePath `json:"path"`
}

// Proof is the prover's output, ready for ledger submission.
type Proof struct {
	Groth16Proof  []byte     `json:"groth16Proof"`
	PublicWitness []byte     `json:"publicWitness"`
	Nullifier     types.Hash `json:"nullifier"`
	MerkleRoot    types.Hash `json:"merkleRoot"`
	Amount        uint64     `json:"amount"`
	LeafIndex     int        `json:"leafIndex"`
}

// IProver requests proofs from a proving backend.
type IProver interface {
	// Prove generates a membership proof for one leaf opening.
	// Returns types.ErrProofServiceUnavailable when the backend cannot
	// be reached and types.ErrMalformedProof when it answers with a
	// blob of the wrong shape.
	Prove(ctx context.Context, req *ProofRequest) (*Proof, error)
}

// EncodePublicWitness lays out the public witness: header (number of
// public inputs, number of secret inputs, vector length, each
// big-endian uint32) followed by root, nullifier and recipient.
func EncodePublicWitness(root, nullifier, recipient types.Hash) []byte {
	out := make([]byte, 0, PublicWitnessSize)

	var header [witnessHeaderSize]byte
	binary.BigEndian.PutUint32(header[0:4], publicInputCount)
	binary.BigEndian.PutUint32(header[4:8], 0)
	binary.BigEndian.PutUint32(header[8:12], publicInputCount)
	out = append(out, header[:]...)

	out = append(out, root[:]...)
	out = append(out, nullifier[:]...)
	out = append(out, recipient[:]...)
	return out
}

// ValidateProof hard-checks a proof's shape before submission. Size
// mismatches and a witness that disagrees with the proof's own root or
// nullifier are all types.ErrMalformedProof.
func ValidateProof(p *Proof) error {
	if p == nil {
		return fmt.Errorf("%w: nil proof", types.ErrMalformedProof)
	}
	if len(p.Groth16Proof) != Groth16ProofSize {
		return fmt.Errorf("%w: proof is %d bytes, want %d",
			types.ErrMalformedProof, len(p.Groth16Proof), Groth16ProofSize)
	}
	if len(p.PublicWitness) != PublicWitnessSize {
		return fmt.Errorf("%w: public witness is %d bytes, want %d",
			types.ErrMalformedProof, len(p.PublicWitness), PublicWitnessSize)
	}
	if p.Nullifier.IsZero() {
		return fmt.Errorf("%w: zero nullifier", types.ErrMalformedProof)
	}

	var witnessRoot, witnessNullifier types.Hash
	copy(witnessRoot[:], p.PublicWitness[witnessHeaderSize:witnessHeaderSize+32])
	copy(witnessNullifier[:], p.PublicWitness[witnessHeaderSize+32:witnessHeaderSize+64])

	if witnessRoot != p.MerkleRoot {
		return fmt.Errorf("%w: witness root does not match proof root", types.ErrMalformedProof)
	}
	if witnessNullifier != p.Nullifier {
		return fmt.Errorf("%w: witness nullifier does not match proof nullifier", types.ErrMalformedProof)
	}
	return nil
}
