package events

import (
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"tokensale/core/types"
)

const (
	// TypeVestingScheduleCreated is emitted when an account receives a fresh schedule.
	TypeVestingScheduleCreated = "vesting.schedule_created"
	// TypeVestingScheduleIncreased is emitted when a grant accumulates into an
	// existing active schedule with the same release curve.
	TypeVestingScheduleIncreased = "vesting.schedule_increased"
	// TypeVestingClaimed is emitted for every successful claim payout.
	TypeVestingClaimed = "vesting.claimed"
	// TypeVestingBatchCreated summarises schedule creation over a batch credit.
	TypeVestingBatchCreated = "vesting.batch_created"
)

// VestingScheduleCreated carries the curve parameters copied into the schedule.
type VestingScheduleCreated struct {
	Account         common.Address
	TotalAmount     *big.Int
	StartTime       uint64
	Duration        uint64
	CliffPeriod     uint64
	CliffPercentage uint64
	Source          string
}

func (VestingScheduleCreated) EventType() string { return TypeVestingScheduleCreated }

func (e VestingScheduleCreated) Event() *types.Event {
	return &types.Event{
		Type: TypeVestingScheduleCreated,
		Attributes: map[string]string{
			"account":         e.Account.Hex(),
			"totalAmount":     bigAttr(e.TotalAmount),
			"startTime":       strconv.FormatUint(e.StartTime, 10),
			"duration":        strconv.FormatUint(e.Duration, 10),
			"cliffPeriod":     strconv.FormatUint(e.CliffPeriod, 10),
			"cliffPercentage": strconv.FormatUint(e.CliffPercentage, 10),
			"source":          strings.TrimSpace(e.Source),
		},
	}
}

// VestingScheduleIncreased reports an accumulate-style second grant.
type VestingScheduleIncreased struct {
	Account     common.Address
	Added       *big.Int
	TotalAmount *big.Int
	Source      string
}

func (VestingScheduleIncreased) EventType() string { return TypeVestingScheduleIncreased }

func (e VestingScheduleIncreased) Event() *types.Event {
	return &types.Event{
		Type: TypeVestingScheduleIncreased,
		Attributes: map[string]string{
			"account":     e.Account.Hex(),
			"added":       bigAttr(e.Added),
			"totalAmount": bigAttr(e.TotalAmount),
			"source":      strings.TrimSpace(e.Source),
		},
	}
}

// VestingClaimed reports tokens released to an account.
type VestingClaimed struct {
	Account       common.Address
	Amount        *big.Int
	ClaimedAmount *big.Int
	Batch         bool
}

func (VestingClaimed) EventType() string { return TypeVestingClaimed }

func (e VestingClaimed) Event() *types.Event {
	return &types.Event{
		Type: TypeVestingClaimed,
		Attributes: map[string]string{
			"account":       e.Account.Hex(),
			"amount":        bigAttr(e.Amount),
			"claimedAmount": bigAttr(e.ClaimedAmount),
			"batch":         strconv.FormatBool(e.Batch),
		},
	}
}

// VestingBatchCreated summarises a batch of schedule grants.
type VestingBatchCreated struct {
	Count       uint64
	TotalAmount *big.Int
	Source      string
}

func (VestingBatchCreated) EventType() string { return TypeVestingBatchCreated }

func (e VestingBatchCreated) Event() *types.Event {
	return &types.Event{
		Type: TypeVestingBatchCreated,
		Attributes: map[string]string{
			"count":       strconv.FormatUint(e.Count, 10),
			"totalAmount": bigAttr(e.TotalAmount),
			"source":      strings.TrimSpace(e.Source),
		},
	}
}
