package vesting

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"tokensale/core/events"
)

// Storage is the slice of keyed state the vesting engine uses.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// TokenSource releases tokens to an external address. The state-backed bank
// satisfies it; tests substitute failing fakes to exercise abort paths.
type TokenSource interface {
	TransferToken(to common.Address, amount *big.Int) error
}

// Engine creates and settles per-account vesting schedules under a
// linear-with-cliff release curve. It is shared by the purchase, airdrop,
// fiat-credit and batch paths.
type Engine struct {
	store   Storage
	tokens  TokenSource
	emitter events.Emitter
	clock   func() time.Time
}

// NewEngine binds a vesting engine to the provided state view.
func NewEngine(store Storage) *Engine {
	return &Engine{
		store:   store,
		emitter: events.NoopEmitter{},
		clock:   time.Now,
	}
}

// SetStorage rebinds the engine to a different state view.
func (e *Engine) SetStorage(store Storage) {
	if e == nil {
		return
	}
	e.store = store
}

// SetTokenSource wires the external token transfer used by claims.
func (e *Engine) SetTokenSource(tokens TokenSource) {
	if e == nil {
		return
	}
	e.tokens = tokens
}

// SetEmitter configures the event emitter. A nil emitter silences events.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetClock overrides the time source. Tests use this for determinism.
func (e *Engine) SetClock(clock func() time.Time) {
	if e == nil || clock == nil {
		return
	}
	e.clock = clock
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) now() uint64 {
	ts := e.clock().Unix()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

// Schedule returns the account's schedule, or (nil, nil) when none exists.
func (e *Engine) Schedule(account common.Address) (*Schedule, error) {
	if e == nil || e.store == nil {
		return nil, fmt.Errorf("vesting: engine not initialised")
	}
	var stored storedSchedule
	ok, err := e.store.KVGet(scheduleKey(account), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return stored.toSchedule(), nil
}

func (e *Engine) putSchedule(account common.Address, schedule *Schedule) error {
	return e.store.KVPut(scheduleKey(account), schedule.toStored())
}

// Grant establishes amount as vesting entitlement for account under the
// template's curve. A fresh schedule starts now. When an active schedule with
// unclaimed balance exists, the grant accumulates into it if the curve
// matches and fails with ErrScheduleConflict otherwise, so a second grant can
// never silently drop unclaimed value.
func (e *Engine) Grant(account common.Address, amount *big.Int, tpl Template, source string) error {
	if e == nil || e.store == nil {
		return fmt.Errorf("vesting: engine not initialised")
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if err := tpl.Validate(); err != nil {
		return err
	}
	existing, err := e.Schedule(account)
	if err != nil {
		return err
	}
	if existing != nil && existing.Active && !existing.fullyClaimed() {
		if existing.curve() != tpl {
			return ErrScheduleConflict
		}
		existing.TotalAmount = new(big.Int).Add(existing.TotalAmount, amount)
		if err := e.putSchedule(account, existing); err != nil {
			return err
		}
		e.emit(events.VestingScheduleIncreased{
			Account:     account,
			Added:       cloneBigInt(amount),
			TotalAmount: cloneBigInt(existing.TotalAmount),
			Source:      source,
		})
		return nil
	}
	schedule := &Schedule{
		TotalAmount:     cloneBigInt(amount),
		ClaimedAmount:   big.NewInt(0),
		StartTime:       e.now(),
		Duration:        tpl.Duration,
		CliffPeriod:     tpl.CliffPeriod,
		CliffPercentage: tpl.CliffPercentage,
		Active:          true,
	}
	if err := e.putSchedule(account, schedule); err != nil {
		return err
	}
	e.emit(events.VestingScheduleCreated{
		Account:         account,
		TotalAmount:     cloneBigInt(schedule.TotalAmount),
		StartTime:       schedule.StartTime,
		Duration:        schedule.Duration,
		CliffPeriod:     schedule.CliffPeriod,
		CliffPercentage: schedule.CliffPercentage,
		Source:          source,
	})
	return nil
}

// Claimable computes the amount the account could withdraw right now: zero
// before the cliff, the full unclaimed remainder once the duration elapsed,
// and a linear interpolation between cliff release and full duration in
// between.
func (e *Engine) Claimable(account common.Address) (*big.Int, error) {
	if e == nil || e.store == nil {
		return nil, fmt.Errorf("vesting: engine not initialised")
	}
	schedule, err := e.Schedule(account)
	if err != nil {
		return nil, err
	}
	return claimableAt(schedule, e.now()), nil
}

func claimableAt(s *Schedule, now uint64) *big.Int {
	if s == nil || !s.Active || s.TotalAmount == nil || s.TotalAmount.Sign() == 0 {
		return big.NewInt(0)
	}
	if now < s.StartTime {
		return big.NewInt(0)
	}
	elapsed := now - s.StartTime
	if elapsed < s.CliffPeriod {
		return big.NewInt(0)
	}
	claimed := cloneBigInt(s.ClaimedAmount)
	if elapsed >= s.Duration {
		remaining := new(big.Int).Sub(s.TotalAmount, claimed)
		if remaining.Sign() < 0 {
			return big.NewInt(0)
		}
		return remaining
	}
	cliffAmount := new(big.Int).Mul(s.TotalAmount, new(big.Int).SetUint64(s.CliffPercentage))
	cliffAmount.Div(cliffAmount, big.NewInt(100))
	ramp := new(big.Int).Sub(s.TotalAmount, cliffAmount)
	ramp.Mul(ramp, new(big.Int).SetUint64(elapsed-s.CliffPeriod))
	ramp.Div(ramp, new(big.Int).SetUint64(s.Duration-s.CliffPeriod))
	vested := new(big.Int).Add(cliffAmount, ramp)
	claimable := new(big.Int).Sub(vested, claimed)
	if claimable.Sign() < 0 {
		return big.NewInt(0)
	}
	return claimable
}

// Claim releases the claimable amount to the account through the token
// source. The claimed counter moves before the transfer; a transfer failure
// aborts the operation so the enclosing transaction discards the move.
func (e *Engine) Claim(account common.Address) (*big.Int, error) {
	return e.claim(account, false)
}

func (e *Engine) claim(account common.Address, batch bool) (*big.Int, error) {
	if e == nil || e.store == nil {
		return nil, fmt.Errorf("vesting: engine not initialised")
	}
	if e.tokens == nil {
		return nil, fmt.Errorf("vesting: token source not configured")
	}
	schedule, err := e.Schedule(account)
	if err != nil {
		return nil, err
	}
	amount := claimableAt(schedule, e.now())
	if amount.Sign() == 0 {
		return nil, ErrNothingToClaim
	}
	schedule.ClaimedAmount = new(big.Int).Add(schedule.ClaimedAmount, amount)
	if err := e.putSchedule(account, schedule); err != nil {
		return nil, err
	}
	if err := e.tokens.TransferToken(account, amount); err != nil {
		return nil, fmt.Errorf("vesting: token transfer: %w", err)
	}
	e.emit(events.VestingClaimed{
		Account:       account,
		Amount:        cloneBigInt(amount),
		ClaimedAmount: cloneBigInt(schedule.ClaimedAmount),
		Batch:         batch,
	})
	return amount, nil
}

// BatchClaim settles claims for every account in the list as one unit.
// Accounts with nothing claimable are skipped; a transfer failure aborts the
// whole batch. Returns the total released and the number of paid accounts.
func (e *Engine) BatchClaim(accounts []common.Address) (*big.Int, int, error) {
	if e == nil || e.store == nil {
		return nil, 0, fmt.Errorf("vesting: engine not initialised")
	}
	if len(accounts) == 0 {
		return nil, 0, ErrNoAccounts
	}
	total := big.NewInt(0)
	paid := 0
	for _, account := range accounts {
		amount, err := e.claim(account, true)
		if err != nil {
			if err == ErrNothingToClaim {
				continue
			}
			return nil, 0, err
		}
		total.Add(total, amount)
		paid++
	}
	return total, paid, nil
}
