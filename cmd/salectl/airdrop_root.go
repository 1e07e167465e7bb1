package main

import (
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"tokensale/native/airdrop"
)

type proofPackClaim struct {
	Account string   `json:"account"`
	Amount  string   `json:"amount"`
	Proof   []string `json:"proof"`
}

type proofPack struct {
	MerkleRoot  string           `json:"merkleRoot"`
	Allocations int              `json:"allocations"`
	Claims      []proofPackClaim `json:"claims"`
}

func runAirdropRoot(args []string) {
	fs := flag.NewFlagSet(airdropRootCommand, flag.ExitOnError)
	manifestPath := fs.String("manifest", "", "Path to the YAML allocation manifest")
	outPath := fs.String("out", "airdrop-proofs.json", "Output path for the proof pack")
	fs.Parse(args)

	if *manifestPath == "" {
		fatalf("airdrop-root: -manifest is required")
	}
	allocations, err := airdrop.LoadManifest(*manifestPath)
	if err != nil {
		fatalf("airdrop-root: %v", err)
	}
	pack, err := buildProofPack(allocations)
	if err != nil {
		fatalf("airdrop-root: %v", err)
	}
	encoded, err := json.MarshalIndent(pack, "", "  ")
	if err != nil {
		fatalf("airdrop-root: encode pack: %v", err)
	}
	if err := os.WriteFile(*outPath, append(encoded, '\n'), 0o644); err != nil {
		fatalf("airdrop-root: write pack: %v", err)
	}
	fmt.Printf("merkle root: %s\n", pack.MerkleRoot)
	fmt.Printf("allocations: %d\n", pack.Allocations)
	fmt.Printf("proof pack:  %s\n", *outPath)
}

// buildProofPack computes the merkle tree for the manifest and collects a
// claim entry with its inclusion proof for every allocation. Operators hand
// the pack to the claim frontend after configuring the root on chain.
func buildProofPack(allocations []airdrop.Allocation) (*proofPack, error) {
	tree, err := airdrop.BuildTree(allocations)
	if err != nil {
		return nil, err
	}
	pack := &proofPack{
		MerkleRoot:  "0x" + hex.EncodeToString(tree.Root[:]),
		Allocations: len(allocations),
		Claims:      make([]proofPackClaim, 0, len(allocations)),
	}
	for _, alloc := range allocations {
		leaf, err := airdrop.LeafHash(alloc.Account, alloc.Amount)
		if err != nil {
			return nil, err
		}
		proof, ok := tree.Proof(leaf)
		if !ok {
			return nil, fmt.Errorf("no proof for %s", alloc.Account.Hex())
		}
		encodedProof := make([]string, 0, len(proof))
		for _, node := range proof {
			encodedProof = append(encodedProof, "0x"+hex.EncodeToString(node[:]))
		}
		pack.Claims = append(pack.Claims, proofPackClaim{
			Account: alloc.Account.Hex(),
			Amount:  alloc.Amount.String(),
			Proof:   encodedProof,
		})
	}
	return pack, nil
}
