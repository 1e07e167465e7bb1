package events

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"tokensale/core/types"
)

const (
	// TypeAirdropClaimed is emitted when a merkle-proven allotment is claimed.
	TypeAirdropClaimed = "airdrop.claimed"
)

// AirdropClaimed reports a verified airdrop claim handed to vesting.
type AirdropClaimed struct {
	Account      common.Address
	Amount       *big.Int
	TotalClaimed *big.Int
}

func (AirdropClaimed) EventType() string { return TypeAirdropClaimed }

func (e AirdropClaimed) Event() *types.Event {
	return &types.Event{
		Type: TypeAirdropClaimed,
		Attributes: map[string]string{
			"account":      e.Account.Hex(),
			"amount":       bigAttr(e.Amount),
			"totalClaimed": bigAttr(e.TotalClaimed),
		},
	}
}
