package airdrop

import (
	"bytes"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrLeafAmount indicates an allotment amount outside the 256-bit range the
// commitment encodes.
var ErrLeafAmount = errors.New("airdrop: leaf amount out of range")

// LeafHash commits to an (account, amount) allotment. The leaf is double
// hashed so the leaf domain stays disjoint from internal nodes: an attacker
// cannot present an intermediate node value as a (account, amount) pair.
func LeafHash(account common.Address, amount *big.Int) ([32]byte, error) {
	var leaf [32]byte
	if amount == nil || amount.Sign() < 0 || amount.BitLen() > 256 {
		return leaf, ErrLeafAmount
	}
	buf := make([]byte, len(account)+32)
	copy(buf, account.Bytes())
	amount.FillBytes(buf[len(account):])
	inner := crypto.Keccak256(buf)
	copy(leaf[:], crypto.Keccak256(inner))
	return leaf, nil
}

// nodeHash combines two child hashes with the pair sorted, so the proof path
// carries no left/right ordering bits.
func nodeHash(a, b [32]byte) [32]byte {
	var node [32]byte
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	copy(node[:], crypto.Keccak256(a[:], b[:]))
	return node
}

// VerifyProof folds the proof path into the leaf and compares against root.
func VerifyProof(root [32]byte, leaf [32]byte, proof [][32]byte) bool {
	computed := leaf
	for _, sibling := range proof {
		computed = nodeHash(computed, sibling)
	}
	return computed == root
}

// Tree is a precomputed allotment commitment with per-leaf proofs, used by
// the operator tool and tests. The claim path only needs VerifyProof.
type Tree struct {
	Root   [32]byte
	proofs map[[32]byte][][32]byte
}

// Proof returns the proof path for the given leaf hash.
func (t *Tree) Proof(leaf [32]byte) ([][32]byte, bool) {
	if t == nil {
		return nil, false
	}
	proof, ok := t.proofs[leaf]
	return proof, ok
}

// BuildTree constructs the sorted-pair merkle tree over the allotment leaves.
// An odd node is promoted to the next level unpaired.
func BuildTree(allocations []Allocation) (*Tree, error) {
	if len(allocations) == 0 {
		return nil, errors.New("airdrop: no allocations")
	}
	leaves := make([][32]byte, 0, len(allocations))
	for _, alloc := range allocations {
		leaf, err := LeafHash(alloc.Account, alloc.Amount)
		if err != nil {
			return nil, err
		}
		leaves = append(leaves, leaf)
	}

	proofs := make(map[[32]byte][][32]byte, len(leaves))
	// index of the node each original leaf currently folds into
	position := make([]int, len(leaves))
	for i := range position {
		position[i] = i
	}

	level := leaves
	for len(level) > 1 {
		next := make([][32]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, level[i])
				continue
			}
			next = append(next, nodeHash(level[i], level[i+1]))
		}
		for leafIdx, pos := range position {
			sibling := pos ^ 1
			if sibling < len(level) {
				proofs[leaves[leafIdx]] = append(proofs[leaves[leafIdx]], level[sibling])
			}
			position[leafIdx] = pos / 2
		}
		level = next
	}

	return &Tree{Root: level[0], proofs: proofs}, nil
}
