package prover

import (
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/shadowdrop/shadowdrop-go/pkg/fieldhash"
	"github.com/shadowdrop/shadowdrop-go/pkg/merkle"
	"github.com/shadowdrop/shadowdrop-go/pkg/types"
)

var _ IProver = (*StubProver)(nil)

// StubProver produces well-formed but cryptographically meaningless
// proofs for development and tests. It does verify the request's own
// story first — the leaf must actually open to the claimed root — so a
// test that hands it a broken path fails here instead of passing on a
// fake proof.
type StubProver struct{}

// NewStubProver creates the stub backend.
func NewStubProver() *StubProver {
	return &StubProver{}
}

// Prove checks the leaf opening and fabricates a fixed-size proof
// deterministically from the request.
func (s *StubProver) Prove(_ context.Context, req *ProofRequest) (*Proof, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: nil proof request", types.ErrInvalidInput)
	}

	leaf, err := fieldhash.LeafHash(req.Wallet, req.Amount, req.Secret)
	if err != nil {
		return nil, err
	}
	if !merkle.VerifyPath(leaf, req.LeafIndex, req.Path, req.MerkleRoot) {
		return nil, fmt.Errorf("%w: leaf does not open to the claimed root", types.ErrInvalidInput)
	}

	recipient, err := fieldhash.WalletToField(req.Wallet)
	if err != nil {
		return nil, err
	}

	return &Proof{
		Groth16Proof:  fabricate(req, Groth16ProofSize),
		PublicWitness: EncodePublicWitness(req.MerkleRoot, req.Nullifier, recipient),
		Nullifier:     req.Nullifier,
		MerkleRoot:    req.MerkleRoot,
		Amount:        req.Amount,
		LeafIndex:     req.LeafIndex,
	}, nil
}

// fabricate expands a request into n deterministic bytes.
func fabricate(req *ProofRequest, n int) []byte {
	seed := sha256.New()
	seed.Write(req.CampaignID[:])
	seed.Write(req.MerkleRoot[:])
	seed.Write(req.Nullifier[:])
	state := seed.Sum(nil)

	out := make([]byte, 0, n)
	for len(out) < n {
		next := sha256.Sum256(state)
		state = next[:]
		out = append(out, state...)
	}
	return out[:n]
}
