package airdrop

import (
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

func testAllocations(n int) []Allocation {
	allocations := make([]Allocation, 0, n)
	for i := 0; i < n; i++ {
		addr := common.HexToAddress(fmt.Sprintf("0x%040x", i+1))
		allocations = append(allocations, Allocation{Account: addr, Amount: big.NewInt(int64(100 * (i + 1)))})
	}
	return allocations
}

func TestBuildTreeProofsVerify(t *testing.T) {
	for _, n := range []int{1, 2, 3, 5, 8, 13} {
		allocations := testAllocations(n)
		tree, err := BuildTree(allocations)
		if err != nil {
			t.Fatalf("n=%d build: %v", n, err)
		}
		for _, alloc := range allocations {
			leaf, err := LeafHash(alloc.Account, alloc.Amount)
			if err != nil {
				t.Fatalf("leaf: %v", err)
			}
			proof, ok := tree.Proof(leaf)
			if !ok {
				t.Fatalf("n=%d missing proof for %s", n, alloc.Account.Hex())
			}
			if !VerifyProof(tree.Root, leaf, proof) {
				t.Fatalf("n=%d proof for %s does not verify", n, alloc.Account.Hex())
			}
		}
	}
}

func TestVerifyProofRejectsForgedLeaf(t *testing.T) {
	allocations := testAllocations(6)
	tree, err := BuildTree(allocations)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	leaf, _ := LeafHash(allocations[0].Account, allocations[0].Amount)
	proof, _ := tree.Proof(leaf)

	// Same account, inflated amount.
	forged, _ := LeafHash(allocations[0].Account, big.NewInt(1_000_000))
	if VerifyProof(tree.Root, forged, proof) {
		t.Fatalf("forged amount verified")
	}
	// Different account, legitimate amount.
	forged, _ = LeafHash(common.HexToAddress("0xdeadbeef00000000000000000000000000000000"), allocations[0].Amount)
	if VerifyProof(tree.Root, forged, proof) {
		t.Fatalf("forged account verified")
	}
	// Truncated proof.
	if len(proof) > 0 && VerifyProof(tree.Root, leaf, proof[:len(proof)-1]) {
		t.Fatalf("truncated proof verified")
	}
}

func TestLeafDomainSeparation(t *testing.T) {
	account := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	amount := big.NewInt(12345)

	buf := make([]byte, 52)
	copy(buf, account.Bytes())
	amount.FillBytes(buf[20:])
	inner := crypto.Keccak256(buf)

	leaf, err := LeafHash(account, amount)
	if err != nil {
		t.Fatalf("leaf: %v", err)
	}
	// Leaves are double hashed: the single-hash value lives in the node
	// domain and must never equal a leaf commitment, so an internal node
	// cannot be replayed as a (account, amount) pair.
	var want [32]byte
	copy(want[:], crypto.Keccak256(inner))
	if leaf != want {
		t.Fatalf("leaf is not the double hash of its encoding")
	}
	var single [32]byte
	copy(single[:], inner)
	if leaf == single {
		t.Fatalf("leaf collides with its single-hash node-domain value")
	}
}

func TestLeafHashRejectsBadAmounts(t *testing.T) {
	addr := common.HexToAddress("0x0000000000000000000000000000000000000001")
	if _, err := LeafHash(addr, nil); err == nil {
		t.Fatalf("nil amount accepted")
	}
	if _, err := LeafHash(addr, big.NewInt(-1)); err == nil {
		t.Fatalf("negative amount accepted")
	}
	huge := new(big.Int).Lsh(big.NewInt(1), 256)
	if _, err := LeafHash(addr, huge); err == nil {
		t.Fatalf("oversized amount accepted")
	}
}

func TestBuildTreeSingleLeaf(t *testing.T) {
	allocations := testAllocations(1)
	tree, err := BuildTree(allocations)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	leaf, _ := LeafHash(allocations[0].Account, allocations[0].Amount)
	if tree.Root != leaf {
		t.Fatalf("single-leaf root must equal the leaf")
	}
	proof, ok := tree.Proof(leaf)
	if !ok || len(proof) != 0 {
		t.Fatalf("single-leaf proof should be empty, got %v ok=%v", proof, ok)
	}
	if !VerifyProof(tree.Root, leaf, proof) {
		t.Fatalf("single-leaf proof failed")
	}
}
