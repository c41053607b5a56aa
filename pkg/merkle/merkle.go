// Copyright 2025 Certen Protocol
//
// Package merkle computes deterministic binary Merkle roots and
// inclusion paths over an ordered list of CIDs.
//
// Construction: pairwise SHA-256(left||right) per level, duplicating
// the last element when a level's length is odd, until one value
// remains. The root of an empty list is cid.Empty (the hash of the
// empty byte string); the root of a single-element list is that
// element's own CID, unhashed.
package merkle

import (
	"errors"
	"fmt"

	"github.com/certen/pojchain/pkg/cid"
)

// Side records which side of a hash pairing a sibling occupied, so a
// verifier can recompute the parent in the right order.
type Side bool

const (
	// SideLeft means the sibling hash is combined on the left of the
	// running hash: parent = H(sibling || current).
	SideLeft Side = false
	// SideRight means the sibling hash is combined on the right of the
	// running hash: parent = H(current || sibling).
	SideRight Side = true
)

// ProofStep is one sibling hash on the path from a leaf to the root.
type ProofStep struct {
	Sibling cid.CID
	Side    Side
}

// ErrIndexRange is returned when a requested leaf index falls outside
// the list being proven.
var ErrIndexRange = errors.New("merkle: leaf index out of range")

// Root computes the Merkle root over an ordered list of CIDs.
func Root(leaves []cid.CID) (cid.CID, error) {
	if len(leaves) == 0 {
		return cid.Empty, nil
	}
	if len(leaves) == 1 {
		return leaves[0], nil
	}

	levels, err := buildLevels(leaves)
	if err != nil {
		return "", err
	}
	top := levels[len(levels)-1]
	return top[0], nil
}

// Path returns the sibling hashes needed to recompute the root from
// the element at index. For a single-leaf list it returns an empty,
// non-nil path: the leaf already is the root. An empty list has no
// element to prove, so any index yields ErrIndexRange.
func Path(leaves []cid.CID, index int) ([]ProofStep, error) {
	if index < 0 || index >= len(leaves) {
		return nil, fmt.Errorf("%w: index %d, len %d", ErrIndexRange, index, len(leaves))
	}
	if len(leaves) == 1 {
		return []ProofStep{}, nil
	}

	levels, err := buildLevels(leaves)
	if err != nil {
		return nil, err
	}

	path := make([]ProofStep, 0, len(levels)-1)
	current := index
	for level := 0; level < len(levels)-1; level++ {
		nodes := levels[level]

		var siblingIndex int
		var side Side
		if current%2 == 0 {
			siblingIndex = current + 1
			side = SideRight
			if siblingIndex >= len(nodes) {
				// Odd level length: the last node was duplicated
				// against itself when building the parent.
				siblingIndex = current
			}
		} else {
			siblingIndex = current - 1
			side = SideLeft
		}

		path = append(path, ProofStep{Sibling: nodes[siblingIndex], Side: side})
		current /= 2
	}
	return path, nil
}

// VerifyPath recomputes the root from leaf and its path (each step's
// Side says which side its sibling is hashed on), and reports whether
// it equals root.
func VerifyPath(leaf cid.CID, path []ProofStep, root cid.CID) (bool, error) {
	current := leaf
	for _, step := range path {
		var combined cid.CID
		var err error
		if step.Side == SideLeft {
			combined, err = cid.Pair(step.Sibling, current)
		} else {
			combined, err = cid.Pair(current, step.Sibling)
		}
		if err != nil {
			return false, err
		}
		current = combined
	}
	return current == root, nil
}

// buildLevels constructs every level of the tree, level 0 being the
// leaves themselves and the last entry being the single root node.
func buildLevels(leaves []cid.CID) ([][]cid.CID, error) {
	levels := make([][]cid.CID, 0, 8)
	current := make([]cid.CID, len(leaves))
	copy(current, leaves)
	levels = append(levels, current)

	for len(current) > 1 {
		next := make([]cid.CID, 0, (len(current)+1)/2)
		for i := 0; i < len(current); i += 2 {
			var (
				parent cid.CID
				err    error
			)
			if i+1 < len(current) {
				parent, err = cid.Pair(current[i], current[i+1])
			} else {
				parent, err = cid.Pair(current[i], current[i])
			}
			if err != nil {
				return nil, err
			}
			next = append(next, parent)
		}
		levels = append(levels, next)
		current = next
	}
	return levels, nil
}
