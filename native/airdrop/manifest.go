package airdrop

import (
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// Allocation is one (account, amount) allotment committed into the tree.
type Allocation struct {
	Account common.Address
	Amount  *big.Int
}

// manifestEntry mirrors the YAML representation of an allocation.
type manifestEntry struct {
	Account string `yaml:"account"`
	Amount  string `yaml:"amount"`
}

// LoadManifest reads an allocation list from a YAML file. Accounts are hex
// addresses; amounts are base-10 token units. Duplicate accounts and
// non-positive amounts are rejected so the committed tree stays unambiguous.
func LoadManifest(path string) ([]Allocation, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer file.Close()
	dec := yaml.NewDecoder(file)
	var entries []manifestEntry
	if err := dec.Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return parseManifest(entries)
}

func parseManifest(entries []manifestEntry) ([]Allocation, error) {
	allocations := make([]Allocation, 0, len(entries))
	seen := make(map[common.Address]struct{})
	for i, entry := range entries {
		addr := strings.TrimSpace(entry.Account)
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("entry %d: invalid account %q", i, entry.Account)
		}
		account := common.HexToAddress(addr)
		if _, exists := seen[account]; exists {
			return nil, fmt.Errorf("entry %d: duplicate account %s", i, account.Hex())
		}
		amount, ok := new(big.Int).SetString(strings.TrimSpace(entry.Amount), 10)
		if !ok || amount.Sign() <= 0 {
			return nil, fmt.Errorf("entry %d: invalid amount %q", i, entry.Amount)
		}
		seen[account] = struct{}{}
		allocations = append(allocations, Allocation{Account: account, Amount: amount})
	}
	if len(allocations) == 0 {
		return nil, fmt.Errorf("manifest holds no allocations")
	}
	return allocations, nil
}
