package vesting

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrInvalidTemplate indicates release-curve parameters that cannot vest
	// fully (zero duration, cliff beyond duration, percentage above 100).
	ErrInvalidTemplate = errors.New("vesting: invalid template")
	// ErrInvalidAmount indicates a nil or non-positive grant amount.
	ErrInvalidAmount = errors.New("vesting: invalid amount")
	// ErrScheduleConflict indicates a grant for an account whose active
	// schedule still holds unclaimed balance under a different release curve.
	// Grants never silently overwrite unclaimed value.
	ErrScheduleConflict = errors.New("vesting: conflicting active schedule")
	// ErrNothingToClaim indicates a claim while the claimable amount is zero.
	ErrNothingToClaim = errors.New("vesting: nothing to claim")
	// ErrNoAccounts indicates a batch claim over an empty account list.
	ErrNoAccounts = errors.New("vesting: no accounts")
)

// Template is the release curve copied into a schedule at grant time. Times
// are in seconds; CliffPercentage is the share unlocked at the cliff.
type Template struct {
	Duration        uint64
	CliffPeriod     uint64
	CliffPercentage uint64
}

// Validate rejects curves that cannot release the full amount. A 100% cliff
// template may have cliff == duration; anything less needs room for the
// linear ramp so the interpolation divisor stays positive.
func (t Template) Validate() error {
	if t.Duration == 0 {
		return ErrInvalidTemplate
	}
	if t.CliffPercentage > 100 {
		return ErrInvalidTemplate
	}
	if t.CliffPeriod > t.Duration {
		return ErrInvalidTemplate
	}
	if t.CliffPercentage < 100 && t.CliffPeriod == t.Duration {
		return ErrInvalidTemplate
	}
	return nil
}

// Schedule is an account's vesting position.
type Schedule struct {
	TotalAmount     *big.Int
	ClaimedAmount   *big.Int
	StartTime       uint64
	Duration        uint64
	CliffPeriod     uint64
	CliffPercentage uint64
	Active          bool
}

// Clone returns a deep copy.
func (s *Schedule) Clone() *Schedule {
	if s == nil {
		return nil
	}
	clone := *s
	clone.TotalAmount = cloneBigInt(s.TotalAmount)
	clone.ClaimedAmount = cloneBigInt(s.ClaimedAmount)
	return &clone
}

func (s *Schedule) curve() Template {
	return Template{Duration: s.Duration, CliffPeriod: s.CliffPeriod, CliffPercentage: s.CliffPercentage}
}

func (s *Schedule) fullyClaimed() bool {
	if s.TotalAmount == nil {
		return true
	}
	if s.ClaimedAmount == nil {
		return s.TotalAmount.Sign() == 0
	}
	return s.ClaimedAmount.Cmp(s.TotalAmount) >= 0
}

type storedSchedule struct {
	Total    *big.Int
	Claimed  *big.Int
	Start    uint64
	Duration uint64
	Cliff    uint64
	CliffPct uint64
	Active   bool
}

func (s *Schedule) toStored() *storedSchedule {
	return &storedSchedule{
		Total:    cloneBigInt(s.TotalAmount),
		Claimed:  cloneBigInt(s.ClaimedAmount),
		Start:    s.StartTime,
		Duration: s.Duration,
		Cliff:    s.CliffPeriod,
		CliffPct: s.CliffPercentage,
		Active:   s.Active,
	}
}

func (s *storedSchedule) toSchedule() *Schedule {
	return &Schedule{
		TotalAmount:     cloneBigInt(s.Total),
		ClaimedAmount:   cloneBigInt(s.Claimed),
		StartTime:       s.Start,
		Duration:        s.Duration,
		CliffPeriod:     s.Cliff,
		CliffPercentage: s.CliffPct,
		Active:          s.Active,
	}
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

var schedulePrefix = []byte("vesting/schedule/")

func scheduleKey(account common.Address) []byte {
	key := make([]byte, len(schedulePrefix)+len(account))
	copy(key, schedulePrefix)
	copy(key[len(schedulePrefix):], account.Bytes())
	return key
}
