// Package commitment builds the creation-time artifact of a campaign:
// per-recipient secrets, the membership tree and its root, and each
// recipient's sibling path. The artifact is write-once — regenerating
// it with fresh secrets would orphan an already-published root.
package commitment

import (
	"fmt"
	"io"

	"github.com/shadowdrop/shadowdrop-go/pkg/fieldhash"
	"github.com/shadowdrop/shadowdrop-go/pkg/merkle"
	"github.com/shadowdrop/shadowdrop-go/pkg/types"
)

// Entry is one row of the ordered recipient list. Duplicate
// (wallet, amount) pairs are allowed and deliberately produce two
// independent leaves, i.e. two independent claims.
type Entry struct {
	Wallet string `json:"wallet"`
	Amount uint64 `json:"amount"`
}

// Artifact is the persisted output of commitment construction. Root is
// published on-chain; everything else stays in the off-chain store.
type Artifact struct {
	Root       types.Hash
	Recipients []types.Recipient
}

// Build draws a fresh secret per recipient from random, computes the
// leaves, assembles the fixed-depth tree and records every sibling
// path. The input order is preserved: leaf_index i belongs to
// entries[i], so the same list always commits to the same positions.
func Build(entries []Entry, random io.Reader) (*Artifact, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: recipient list is empty", types.ErrInvalidInput)
	}
	if len(entries) > merkle.MaxLeaves {
		return nil, fmt.Errorf("%w: %d recipients exceed campaign capacity %d",
			types.ErrInvalidInput, len(entries), merkle.MaxLeaves)
	}

	recipients := make([]types.Recipient, len(entries))
	leaves := make([]types.Hash, len(entries))
	for i, entry := range entries {
		if entry.Amount == 0 {
			return nil, fmt.Errorf("%w: recipient %d (%s) has zero amount",
				types.ErrInvalidInput, i, entry.Wallet)
		}

		secret, err := fieldhash.RandomSecret(random)
		if err != nil {
			return nil, fmt.Errorf("drawing secret for recipient %d: %w", i, err)
		}

		leaf, err := fieldhash.LeafHash(entry.Wallet, entry.Amount, secret)
		if err != nil {
			return nil, fmt.Errorf("hashing leaf for recipient %d: %w", i, err)
		}

		leaves[i] = leaf
		recipients[i] = types.Recipient{
			Wallet:    entry.Wallet,
			Amount:    entry.Amount,
			Secret:    secret,
			LeafIndex: i,
		}
	}

	tree, err := merkle.BuildTree(leaves)
	if err != nil {
		return nil, err
	}

	for i := range recipients {
		path, err := tree.Proof(i)
		if err != nil {
			return nil, err
		}
		recipients[i].Path = path
	}

	return &Artifact{
		Root:       tree.Root,
		Recipients: recipients,
	}, nil
}

// TotalAmount sums the committed allocations.
func (a *Artifact) TotalAmount() uint64 {
	var total uint64
	for i := range a.Recipients {
		total += a.Recipients[i].Amount
	}
	return total
}
