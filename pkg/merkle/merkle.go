// Package merkle builds the fixed-depth membership tree the campaign
// root commits to. Leaf order is the stable insertion order of the
// recipient list, so the same list always yields the same root and
// every leaf position stays recoverable.
package merkle

import (
	"fmt"

	"github.com/shadowdrop/shadowdrop-go/pkg/fieldhash"
	"github.com/shadowdrop/shadowdrop-go/pkg/types"
)

const (
	// Depth is fixed by the proving circuit.
	Depth = 8

	// MaxLeaves is the recipient capacity of one campaign.
	MaxLeaves = 1 << Depth
)

// BuildTree creates the fixed-depth merkle tree from the leaf layer.
// The leaf slice is padded with the canonical zero leaf up to 2^Depth,
// so every level has even length and a single recipient still gets a
// Depth-long path of zero-subtree siblings.
func BuildTree(leaves []types.Hash) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, fmt.Errorf("%w: cannot build merkle tree from empty leaf list", types.ErrInvalidInput)
	}
	if len(leaves) > MaxLeaves {
		return nil, fmt.Errorf("%w: %d leaves exceed tree capacity %d", types.ErrInvalidInput, len(leaves), MaxLeaves)
	}

	padded := make([]types.Hash, MaxLeaves)
	copy(padded, leaves)

	levels := make([][]types.Hash, 0, Depth+1)
	levels = append(levels, padded)

	currentLevel := padded
	for len(currentLevel) > 1 {
		nextLevel := make([]types.Hash, len(currentLevel)/2)
		for i := 0; i < len(currentLevel); i += 2 {
			nextLevel[i/2] = fieldhash.Hash2(currentLevel[i], currentLevel[i+1])
		}
		levels = append(levels, nextLevel)
		currentLevel = nextLevel
	}

	return &Tree{
		Leaves:    padded,
		LeafCount: len(leaves),
		Root:      currentLevel[0],
		levels:    levels,
	}, nil
}

// Proof returns the sibling path for the leaf at the given index.
// proof[0] is the leaf's sibling, proof[Depth-1] sits just below the
// root. Directions are implied by the index bits, matching VerifyPath.
func (t *Tree) Proof(leafIndex int) (types.MerklePath, error) {
	if leafIndex < 0 || leafIndex >= t.LeafCount {
		return nil, fmt.Errorf("leaf index %d out of bounds (tree has %d leaves)", leafIndex, t.LeafCount)
	}

	path := make(types.MerklePath, 0, Depth)
	index := leafIndex
	for level := 0; level < Depth; level++ {
		siblingIndex := index ^ 1
		path = append(path, t.levels[level][siblingIndex])
		index /= 2
	}
	return path, nil
}

// VerifyPath recomputes the root from (leaf, path, leafIndex) and
// checks it against the expected root. Bit i of the index says whether
// the running node is the right child at level i.
func VerifyPath(leaf types.Hash, leafIndex int, path types.MerklePath, root types.Hash) bool {
	if len(path) != Depth || leafIndex < 0 || leafIndex >= MaxLeaves {
		return false
	}

	current := leaf
	index := leafIndex
	for _, sibling := range path {
		if index%2 == 0 {
			current = fieldhash.Hash2(current, sibling)
		} else {
			current = fieldhash.Hash2(sibling, current)
		}
		index /= 2
	}
	return current == root
}
