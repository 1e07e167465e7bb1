package sale

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"tokensale/core/events"
	nativecommon "tokensale/native/common"
	"tokensale/native/vesting"
)

// ModuleName is the pause-gate scope for the sale engine.
const ModuleName = "sale"

// Storage is the key/value surface the engine persists through.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVAppend(key []byte, value []byte) error
	KVGetList(key []byte, out interface{}) error
}

// Bank moves native and token value between the treasury, the token pool
// and individual accounts. Implementations mutate the same state overlay
// as the engine so a failed transfer aborts the whole operation.
type Bank interface {
	DepositNative(account common.Address, amount *big.Int) error
	PayNative(to common.Address, amount *big.Int) error
	TransferToken(to common.Address, amount *big.Int) error
	TreasuryBalance() (*big.Int, error)
	TokenPoolBalance() (*big.Int, error)
}

// Granter hands purchased or credited tokens to the vesting engine.
type Granter interface {
	Grant(account common.Address, amount *big.Int, tpl vesting.Template, source string) error
}

// Engine owns the sale state machine: pricing, eligibility, the purchase
// validation order, fiat credits, refunds, the multisig-gated lifecycle
// actions and the owner configuration surface.
type Engine struct {
	store   Storage
	bank    Bank
	granter Granter
	feed    PriceFeed
	emitter events.Emitter
	clock   func() time.Time
}

// NewEngine returns an engine bound to the provided storage.
func NewEngine(store Storage) *Engine {
	return &Engine{
		store:   store,
		emitter: events.NoopEmitter{},
		clock:   time.Now,
	}
}

// SetStorage rebinds the engine to a different storage view, typically a
// pending transaction overlay.
func (e *Engine) SetStorage(store Storage) { e.store = store }

// SetBank wires the value-transfer surface.
func (e *Engine) SetBank(bank Bank) { e.bank = bank }

// SetGranter wires the vesting hand-off for purchases and fiat credits.
func (e *Engine) SetGranter(granter Granter) { e.granter = granter }

// SetPriceFeed wires the external usd-per-native feed.
func (e *Engine) SetPriceFeed(feed PriceFeed) { e.feed = feed }

// SetEmitter configures the event sink.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// SetClock overrides the time source. Tests use this for determinism.
func (e *Engine) SetClock(clock func() time.Time) {
	if clock == nil {
		clock = time.Now
	}
	e.clock = clock
}

func (e *Engine) now() uint64 {
	ts := e.clock().Unix()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

type storedFlag struct {
	Set bool
}

func (e *Engine) initRecord() (*InitRecord, bool, error) {
	var rec InitRecord
	ok, err := e.store.KVGet(initKey, &rec)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &rec, true, nil
}

func (e *Engine) saleConfig() (*SaleConfig, bool, error) {
	var stored storedSaleConfig
	ok, err := e.store.KVGet(saleConfigKey, &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return stored.config(), true, nil
}

func (e *Engine) putSaleConfig(cfg *SaleConfig) error {
	return e.store.KVPut(saleConfigKey, cfg.stored())
}

func (e *Engine) securityConfig() (*SecurityConfig, bool, error) {
	var stored storedSecurityConfig
	ok, err := e.store.KVGet(securityConfigKey, &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return stored.config(), true, nil
}

func (e *Engine) pricingConfig() (*PricingConfig, bool, error) {
	var stored storedPricingConfig
	ok, err := e.store.KVGet(pricingConfigKey, &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return stored.config(), true, nil
}

func (e *Engine) vestingTemplate(key []byte) (vesting.Template, bool, error) {
	var tpl vesting.Template
	ok, err := e.store.KVGet(key, &tpl)
	return tpl, ok, err
}

func (e *Engine) userRecord(addr common.Address) (*UserRecord, error) {
	var stored storedUserRecord
	ok, err := e.store.KVGet(userKey(addr), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return newUserRecord(), nil
	}
	return stored.record(), nil
}

func (e *Engine) putUserRecord(addr common.Address, user *UserRecord) error {
	return e.store.KVPut(userKey(addr), user.stored())
}

func (e *Engine) statusRecord(addr common.Address) (StatusRecord, error) {
	var status StatusRecord
	if _, err := e.store.KVGet(statusKey(addr), &status); err != nil {
		return StatusRecord{}, err
	}
	return status, nil
}

func (e *Engine) pausedFlag() (bool, error) {
	var flag storedFlag
	if _, err := e.store.KVGet(pausedKey, &flag); err != nil {
		return false, err
	}
	return flag.Set, nil
}

// IsPaused implements common.PauseView. Storage failures read as paused
// so the gate fails closed.
func (e *Engine) IsPaused(module string) bool {
	if e == nil || e.store == nil || module != ModuleName {
		return false
	}
	paused, err := e.pausedFlag()
	if err != nil {
		return true
	}
	return paused
}

// Paused reports the persisted pause flag.
func (e *Engine) Paused() (bool, error) {
	if e == nil || e.store == nil {
		return false, ErrNotInitialized
	}
	return e.pausedFlag()
}

func (e *Engine) requireOwner(caller common.Address) (*InitRecord, error) {
	init, ok, err := e.initRecord()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInitialized
	}
	if caller != init.Owner {
		return nil, ErrUnauthorized
	}
	return init, nil
}

// RequireOwner verifies that caller is the initialized owner. Callers
// outside the module use it to gate operations the engine does not own,
// such as airdrop configuration.
func (e *Engine) RequireOwner(caller common.Address) error {
	_, err := e.requireOwner(caller)
	return err
}

func (e *Engine) requireReady() error {
	if e == nil || e.store == nil {
		return ErrNotInitialized
	}
	if e.bank == nil || e.granter == nil {
		return fmt.Errorf("sale: engine not fully wired")
	}
	return nil
}

// Initialize writes the one-time initialization record fixing the owner,
// the token identity, the fund and fee wallets and the fee percentage.
func (e *Engine) Initialize(rec InitRecord) error {
	if e == nil || e.store == nil {
		return ErrNotInitialized
	}
	if err := rec.Validate(); err != nil {
		return err
	}
	if _, ok, err := e.initRecord(); err != nil {
		return err
	} else if ok {
		return ErrAlreadyInitialized
	}
	if err := e.store.KVPut(initKey, rec); err != nil {
		return err
	}
	e.emitter.Emit(events.SaleInitialized{
		Owner:         rec.Owner,
		Token:         rec.Token,
		FundWallet:    rec.FundWallet,
		FeeWallet:     rec.FeeWallet,
		FeePercentage: rec.FeePercentage,
	})
	return nil
}

// Purchase prices a native contribution, validates it against the capacity
// checks in their fixed order, moves the funds and grants the purchased
// tokens into vesting. Any failure leaves no partial state behind once the
// enclosing transaction is discarded.
func (e *Engine) Purchase(buyer common.Address, nativeAmount *big.Int) (*PurchaseRecord, error) {
	if err := e.requireReady(); err != nil {
		return nil, err
	}
	var zero common.Address
	if buyer == zero {
		return nil, ErrZeroAddress
	}
	init, ok, err := e.initRecord()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInitialized
	}
	if err := nativecommon.Guard(e, ModuleName); err != nil {
		return nil, err
	}
	cfg, sec, pricing, tpl, err := e.purchaseState()
	if err != nil {
		return nil, err
	}
	if cfg.Finalized {
		return nil, ErrSaleFinalized
	}
	now := e.now()
	if now < cfg.StartTime || now > cfg.EndTime {
		return nil, ErrSaleNotActive
	}
	status, err := e.statusRecord(buyer)
	if err != nil {
		return nil, err
	}
	if !status.Eligible() {
		return nil, ErrNotEligible
	}
	user, err := e.userRecord(buyer)
	if err != nil {
		return nil, err
	}
	if err := checkThrottles(sec, user, now); err != nil {
		return nil, err
	}
	quote, err := computeQuote(pricing, e.feed, nativeAmount)
	if err != nil {
		return nil, err
	}
	if quote.TokenAmount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if err := validatePurchase(cfg, sec, user, quote.TokenAmount); err != nil {
		return nil, err
	}
	if err := e.bank.DepositNative(buyer, nativeAmount); err != nil {
		return nil, err
	}
	fee := new(big.Int).Mul(nativeAmount, new(big.Int).SetUint64(init.FeePercentage))
	fee.Div(fee, big.NewInt(10000))
	if fee.Sign() > 0 {
		if err := e.bank.PayNative(init.FeeWallet, fee); err != nil {
			return nil, fmt.Errorf("sale: fee transfer: %w", err)
		}
		cfg.TotalFeeCollected = new(big.Int).Add(cfg.TotalFeeCollected, fee)
		e.emitter.Emit(events.SaleFeeCollected{Buyer: buyer, FeeWallet: init.FeeWallet, Amount: fee})
	}
	user.PurchasedTokens = new(big.Int).Add(user.PurchasedTokens, quote.TokenAmount)
	user.RefundableNative = new(big.Int).Add(user.RefundableNative, quote.NativeAmount)
	user.LastPurchaseTime = now
	user.LastPurchaseSlot = purchaseSlot(sec, now)
	if err := e.putUserRecord(buyer, user); err != nil {
		return nil, err
	}
	cfg.TotalSold = new(big.Int).Add(cfg.TotalSold, quote.TokenAmount)
	if err := e.putSaleConfig(cfg); err != nil {
		return nil, err
	}
	id, err := e.nextPurchaseID()
	if err != nil {
		return nil, err
	}
	rec := &PurchaseRecord{
		ID:           id,
		Account:      buyer,
		Source:       SourceNative,
		NativeAmount: quote.NativeAmount,
		UsdAmount:    quote.UsdAmount,
		TokenAmount:  quote.TokenAmount,
		Timestamp:    now,
	}
	if err := e.appendPurchase(rec); err != nil {
		return nil, err
	}
	if err := e.granter.Grant(buyer, quote.TokenAmount, tpl, SourceNative); err != nil {
		return nil, fmt.Errorf("sale: vesting grant: %w", err)
	}
	e.emitter.Emit(events.SalePurchase{
		PurchaseID:   id,
		Buyer:        buyer,
		NativeAmount: quote.NativeAmount,
		UsdAmount:    quote.UsdAmount,
		TokenAmount:  quote.TokenAmount,
		TotalSold:    cfg.TotalSold,
	})
	return rec, nil
}

func (e *Engine) purchaseState() (*SaleConfig, *SecurityConfig, *PricingConfig, vesting.Template, error) {
	cfg, ok, err := e.saleConfig()
	if err != nil {
		return nil, nil, nil, vesting.Template{}, err
	}
	if !ok {
		return nil, nil, nil, vesting.Template{}, ErrSaleNotConfigured
	}
	sec, ok, err := e.securityConfig()
	if err != nil {
		return nil, nil, nil, vesting.Template{}, err
	}
	if !ok {
		return nil, nil, nil, vesting.Template{}, ErrSaleNotConfigured
	}
	pricing, ok, err := e.pricingConfig()
	if err != nil {
		return nil, nil, nil, vesting.Template{}, err
	}
	if !ok {
		return nil, nil, nil, vesting.Template{}, ErrSaleNotConfigured
	}
	tpl, ok, err := e.vestingTemplate(purchaseVestingKey)
	if err != nil {
		return nil, nil, nil, vesting.Template{}, err
	}
	if !ok {
		return nil, nil, nil, vesting.Template{}, ErrSaleNotConfigured
	}
	return cfg, sec, pricing, tpl, nil
}

// ProcessFiatPayment credits tokens purchased off-chain. The path bypasses
// pricing, eligibility and the per-account limits; only the total supply
// bound applies. Payment identifiers are one-shot.
func (e *Engine) ProcessFiatPayment(caller, recipient common.Address, tokenAmount *big.Int, paymentID string) (*PurchaseRecord, error) {
	if err := e.requireReady(); err != nil {
		return nil, err
	}
	if _, err := e.requireOwner(caller); err != nil {
		return nil, err
	}
	cfg, tpl, err := e.fiatState()
	if err != nil {
		return nil, err
	}
	rec, err := e.fiatCredit(cfg, tpl, recipient, tokenAmount, paymentID, false)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// BatchProcessFiatPayments credits several fiat purchases as one atomic
// operation. Any element failing, including a duplicate payment id inside
// the batch, aborts the whole batch.
func (e *Engine) BatchProcessFiatPayments(caller common.Address, recipients []common.Address, amounts []*big.Int, paymentIDs []string) ([]*PurchaseRecord, error) {
	if err := e.requireReady(); err != nil {
		return nil, err
	}
	if _, err := e.requireOwner(caller); err != nil {
		return nil, err
	}
	if len(recipients) != len(amounts) || len(recipients) != len(paymentIDs) {
		return nil, ErrLengthMismatch
	}
	cfg, tpl, err := e.fiatState()
	if err != nil {
		return nil, err
	}
	records := make([]*PurchaseRecord, 0, len(recipients))
	total := big.NewInt(0)
	for i := range recipients {
		rec, err := e.fiatCredit(cfg, tpl, recipients[i], amounts[i], paymentIDs[i], true)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
		total.Add(total, rec.TokenAmount)
	}
	e.emitter.Emit(events.VestingBatchCreated{
		Count:       uint64(len(records)),
		TotalAmount: total,
		Source:      SourceFiat,
	})
	return records, nil
}

func (e *Engine) fiatState() (*SaleConfig, vesting.Template, error) {
	cfg, ok, err := e.saleConfig()
	if err != nil {
		return nil, vesting.Template{}, err
	}
	if !ok {
		return nil, vesting.Template{}, ErrSaleNotConfigured
	}
	if cfg.Finalized {
		return nil, vesting.Template{}, ErrSaleFinalized
	}
	tpl, ok, err := e.vestingTemplate(purchaseVestingKey)
	if err != nil {
		return nil, vesting.Template{}, err
	}
	if !ok {
		return nil, vesting.Template{}, ErrSaleNotConfigured
	}
	return cfg, tpl, nil
}

func (e *Engine) fiatCredit(cfg *SaleConfig, tpl vesting.Template, recipient common.Address, amount *big.Int, paymentID string, batch bool) (*PurchaseRecord, error) {
	var zero common.Address
	if recipient == zero {
		return nil, ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	id := strings.TrimSpace(paymentID)
	if id == "" {
		return nil, ErrInvalidPaymentID
	}
	var used storedFlag
	ok, err := e.store.KVGet(paymentKey(id), &used)
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, ErrPaymentProcessed
	}
	soldTotal := new(big.Int).Add(cfg.TotalSold, amount)
	if soldTotal.Cmp(cfg.TotalSupply) > 0 {
		return nil, ErrExceedsTotalSupply
	}
	user, err := e.userRecord(recipient)
	if err != nil {
		return nil, err
	}
	user.PurchasedTokens = new(big.Int).Add(user.PurchasedTokens, amount)
	if err := e.putUserRecord(recipient, user); err != nil {
		return nil, err
	}
	cfg.TotalSold = soldTotal
	if err := e.putSaleConfig(cfg); err != nil {
		return nil, err
	}
	if err := e.store.KVPut(paymentKey(id), storedFlag{Set: true}); err != nil {
		return nil, err
	}
	recID, err := e.nextPurchaseID()
	if err != nil {
		return nil, err
	}
	rec := &PurchaseRecord{
		ID:           recID,
		Account:      recipient,
		Source:       SourceFiat,
		PaymentID:    id,
		NativeAmount: big.NewInt(0),
		UsdAmount:    big.NewInt(0),
		TokenAmount:  new(big.Int).Set(amount),
		Timestamp:    e.now(),
	}
	if err := e.appendPurchase(rec); err != nil {
		return nil, err
	}
	if err := e.granter.Grant(recipient, amount, tpl, SourceFiat); err != nil {
		return nil, fmt.Errorf("sale: vesting grant: %w", err)
	}
	e.emitter.Emit(events.SaleFiatPayment{
		PaymentID:   id,
		Recipient:   recipient,
		TokenAmount: rec.TokenAmount,
		Batch:       batch,
	})
	return rec, nil
}

// ProcessRefund pays back an account's native credit after a failed sale.
// The credit is zeroed before the transfer; a transfer failure aborts the
// operation and the enclosing transaction restores the credit.
func (e *Engine) ProcessRefund(account common.Address) (*big.Int, error) {
	if err := e.requireReady(); err != nil {
		return nil, err
	}
	var zero common.Address
	if account == zero {
		return nil, ErrZeroAddress
	}
	if _, ok, err := e.initRecord(); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrNotInitialized
	}
	if err := nativecommon.Guard(e, ModuleName); err != nil {
		return nil, err
	}
	cfg, ok, err := e.saleConfig()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSaleNotConfigured
	}
	if !cfg.RefundEnabled {
		return nil, ErrRefundsDisabled
	}
	now := e.now()
	if now <= cfg.EndTime || cfg.TotalSold.Cmp(cfg.SoftCap) >= 0 {
		return nil, ErrRefundConditionsNotMet
	}
	user, err := e.userRecord(account)
	if err != nil {
		return nil, err
	}
	credit := user.RefundableNative
	if credit.Sign() <= 0 {
		return nil, ErrNoRefund
	}
	user.RefundableNative = big.NewInt(0)
	if err := e.putUserRecord(account, user); err != nil {
		return nil, err
	}
	if err := e.bank.PayNative(account, credit); err != nil {
		return nil, fmt.Errorf("sale: refund transfer: %w", err)
	}
	e.emitter.Emit(events.SaleRefund{Account: account, Amount: credit})
	return credit, nil
}

// FinalizeSale records one multisig approval toward finalization and, at
// the threshold, finalizes: the flag flips one-way, refunds are disabled
// when the soft cap was met, and the collected native funds sweep to the
// fund wallet.
func (e *Engine) FinalizeSale(signer common.Address) (uint64, bool, error) {
	if err := e.requireReady(); err != nil {
		return 0, false, err
	}
	init, ok, err := e.initRecord()
	if err != nil {
		return 0, false, err
	}
	if !ok {
		return 0, false, ErrNotInitialized
	}
	cfg, ok, err := e.saleConfig()
	if err != nil {
		return 0, false, err
	}
	if !ok {
		return 0, false, ErrSaleNotConfigured
	}
	if cfg.Finalized {
		return 0, false, ErrSaleFinalized
	}
	sec, ok, err := e.securityConfig()
	if err != nil {
		return 0, false, err
	}
	if !ok {
		return 0, false, ErrSaleNotConfigured
	}
	approvals, executed, err := e.approve(signer, ActionFinalizeSale, sec.MultisigThreshold)
	if err != nil {
		return 0, false, err
	}
	e.emitter.Emit(events.SaleMultisigApproval{
		Signer:    signer,
		ActionID:  ActionFinalizeSale,
		Approvals: approvals,
		Threshold: sec.MultisigThreshold,
		Executed:  executed,
	})
	if !executed {
		return approvals, false, nil
	}
	cfg.Finalized = true
	softCapMet := cfg.TotalSold.Cmp(cfg.SoftCap) >= 0
	if softCapMet {
		cfg.RefundEnabled = false
	}
	swept := big.NewInt(0)
	balance, err := e.bank.TreasuryBalance()
	if err != nil {
		return 0, false, err
	}
	if balance.Sign() > 0 {
		if err := e.bank.PayNative(init.FundWallet, balance); err != nil {
			return 0, false, fmt.Errorf("sale: fund sweep: %w", err)
		}
		swept = balance
	}
	if err := e.putSaleConfig(cfg); err != nil {
		return 0, false, err
	}
	e.emitter.Emit(events.SaleFinalized{
		TotalSold:     cfg.TotalSold,
		SoftCapMet:    softCapMet,
		FundsSwept:    swept,
		RefundEnabled: cfg.RefundEnabled,
	})
	return approvals, true, nil
}

// WithdrawUnsoldTokens records one multisig approval and, at the
// threshold, moves the unsold supply (totalSupply - totalSold) from the
// token pool to the fund wallet. The withdrawal is one-shot.
func (e *Engine) WithdrawUnsoldTokens(signer common.Address) (uint64, bool, error) {
	if err := e.requireReady(); err != nil {
		return 0, false, err
	}
	init, ok, err := e.initRecord()
	if err != nil {
		return 0, false, err
	}
	if !ok {
		return 0, false, ErrNotInitialized
	}
	cfg, ok, err := e.saleConfig()
	if err != nil {
		return 0, false, err
	}
	if !ok {
		return 0, false, ErrSaleNotConfigured
	}
	if !cfg.Finalized {
		return 0, false, ErrNotFinalized
	}
	var done storedFlag
	if _, err := e.store.KVGet(unsoldWithdrawnKey, &done); err != nil {
		return 0, false, err
	}
	if done.Set {
		return 0, false, ErrUnsoldWithdrawn
	}
	sec, ok, err := e.securityConfig()
	if err != nil {
		return 0, false, err
	}
	if !ok {
		return 0, false, ErrSaleNotConfigured
	}
	approvals, executed, err := e.approve(signer, ActionWithdrawUnsold, sec.MultisigThreshold)
	if err != nil {
		return 0, false, err
	}
	e.emitter.Emit(events.SaleMultisigApproval{
		Signer:    signer,
		ActionID:  ActionWithdrawUnsold,
		Approvals: approvals,
		Threshold: sec.MultisigThreshold,
		Executed:  executed,
	})
	if !executed {
		return approvals, false, nil
	}
	unsold := new(big.Int).Sub(cfg.TotalSupply, cfg.TotalSold)
	if unsold.Sign() > 0 {
		if err := e.bank.TransferToken(init.FundWallet, unsold); err != nil {
			return 0, false, fmt.Errorf("sale: unsold transfer: %w", err)
		}
	} else {
		unsold = big.NewInt(0)
	}
	if err := e.store.KVPut(unsoldWithdrawnKey, storedFlag{Set: true}); err != nil {
		return 0, false, err
	}
	e.emitter.Emit(events.SaleUnsoldWithdrawn{Recipient: init.FundWallet, Amount: unsold})
	return approvals, true, nil
}

// EmergencyWithdraw drains the full token pool to the recipient. The sale
// must be paused first.
func (e *Engine) EmergencyWithdraw(caller, recipient common.Address) (*big.Int, error) {
	if err := e.requireReady(); err != nil {
		return nil, err
	}
	if _, err := e.requireOwner(caller); err != nil {
		return nil, err
	}
	var zero common.Address
	if recipient == zero {
		return nil, ErrZeroAddress
	}
	paused, err := e.pausedFlag()
	if err != nil {
		return nil, err
	}
	if !paused {
		return nil, ErrNotPaused
	}
	balance, err := e.bank.TokenPoolBalance()
	if err != nil {
		return nil, err
	}
	if balance.Sign() > 0 {
		if err := e.bank.TransferToken(recipient, balance); err != nil {
			return nil, fmt.Errorf("sale: emergency transfer: %w", err)
		}
	}
	e.emitter.Emit(events.SaleEmergencyWithdrawal{Recipient: recipient, Amount: balance})
	return balance, nil
}

// Pause closes the user-facing gates. Pausing an already paused sale is a
// no-op.
func (e *Engine) Pause(caller common.Address) error {
	if e == nil || e.store == nil {
		return ErrNotInitialized
	}
	if _, err := e.requireOwner(caller); err != nil {
		return err
	}
	paused, err := e.pausedFlag()
	if err != nil {
		return err
	}
	if paused {
		return nil
	}
	if err := e.store.KVPut(pausedKey, storedFlag{Set: true}); err != nil {
		return err
	}
	e.emitter.Emit(events.SalePaused{})
	return nil
}

// Unpause reopens the user-facing gates.
func (e *Engine) Unpause(caller common.Address) error {
	if e == nil || e.store == nil {
		return ErrNotInitialized
	}
	if _, err := e.requireOwner(caller); err != nil {
		return err
	}
	paused, err := e.pausedFlag()
	if err != nil {
		return err
	}
	if !paused {
		return nil
	}
	if err := e.store.KVPut(pausedKey, storedFlag{Set: false}); err != nil {
		return err
	}
	e.emitter.Emit(events.SaleUnpaused{})
	return nil
}
