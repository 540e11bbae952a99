package merkle

import "github.com/shadowdrop/shadowdrop-go/pkg/types"

// Tree is the fixed-depth binary merkle tree over recipient leaves.
// The tree uses the Poseidon2 field hash so the proving circuit can
// recompute every node.
type Tree struct {
	// Leaves contains the padded leaf layer: real leaves first, in
	// input order, then canonical zero leaves up to 2^Depth.
	Leaves []types.Hash

	// LeafCount is the number of real (non-padding) leaves.
	LeafCount int

	// Root is the merkle root, the only value published on-chain.
	Root types.Hash

	// levels stores all tree levels for proof generation.
	// levels[0] = leaves, levels[Depth] = [root]
	levels [][]types.Hash
}
