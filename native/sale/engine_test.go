package sale

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"tokensale/core/events"
	"tokensale/core/state"
	nativecommon "tokensale/native/common"
	"tokensale/native/vesting"
	"tokensale/storage"
)

const (
	baseTime = int64(1_755_000_000)
	saleDays = 7
)

var (
	ownerAddr  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	tokenAddr  = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	fundAddr   = common.HexToAddress("0x00000000000000000000000000000000000000a3")
	feeAddr    = common.HexToAddress("0x00000000000000000000000000000000000000a4")
	buyerAddr  = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	secondAddr = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	signerAddr = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	extraAddr  = common.HexToAddress("0x00000000000000000000000000000000000000c2")
	rescueAddr = common.HexToAddress("0x00000000000000000000000000000000000000d1")
)

type recordingEmitter struct {
	events []events.Event
}

func (r *recordingEmitter) Emit(evt events.Event) {
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) count(eventType string) int {
	n := 0
	for _, evt := range r.events {
		if evt.EventType() == eventType {
			n++
		}
	}
	return n
}

type failingBank struct {
	Bank
	failPay      bool
	failTransfer bool
}

func (f *failingBank) PayNative(to common.Address, amount *big.Int) error {
	if f.failPay {
		return errors.New("native transfer rejected")
	}
	return f.Bank.PayNative(to, amount)
}

func (f *failingBank) TransferToken(to common.Address, amount *big.Int) error {
	if f.failTransfer {
		return errors.New("token transfer rejected")
	}
	return f.Bank.TransferToken(to, amount)
}

type saleFixture struct {
	t       *testing.T
	manager *state.Manager
	bank    *state.BankLedger
	vest    *vesting.Engine
	engine  *Engine
	sink    *recordingEmitter
	now     int64
}

func newSaleFixture(t *testing.T) *saleFixture {
	t.Helper()
	manager := state.NewManager(storage.NewMemDB())
	bank := state.NewBankLedger(manager)
	vest := vesting.NewEngine(manager)
	vest.SetTokenSource(bank)
	engine := NewEngine(manager)
	engine.SetBank(bank)
	engine.SetGranter(vest)
	sink := &recordingEmitter{}
	engine.SetEmitter(sink)
	f := &saleFixture{
		t:       t,
		manager: manager,
		bank:    bank,
		vest:    vest,
		engine:  engine,
		sink:    sink,
		now:     baseTime + 3600,
	}
	clock := func() time.Time { return time.Unix(f.now, 0) }
	engine.SetClock(clock)
	vest.SetClock(clock)
	if err := bank.FundTokenPool(big.NewInt(1200)); err != nil {
		t.Fatalf("fund pool: %v", err)
	}
	return f
}

func (f *saleFixture) advance(seconds int64) {
	f.now += seconds
}

func (f *saleFixture) initialize(feeBps uint64) {
	f.t.Helper()
	err := f.engine.Initialize(InitRecord{
		Owner:         ownerAddr,
		Token:         tokenAddr,
		FundWallet:    fundAddr,
		FeeWallet:     feeAddr,
		FeePercentage: feeBps,
	})
	if err != nil {
		f.t.Fatalf("initialize: %v", err)
	}
}

type caps struct {
	maxTx, whale, wallet, soft, hard, supply int64
}

func defaultCaps() caps {
	return caps{maxTx: 500, whale: 400, wallet: 800, soft: 300, hard: 1000, supply: 1200}
}

func (f *saleFixture) configureCaps(c caps, threshold uint64) {
	f.t.Helper()
	err := f.engine.ConfigureSale(ownerAddr, SaleParams{
		StartTime:         uint64(baseTime),
		EndTime:           uint64(baseTime + saleDays*86400),
		MaxPerTransaction: big.NewInt(c.maxTx),
		MaxPerWallet:      big.NewInt(c.wallet),
		SoftCap:           big.NewInt(c.soft),
		HardCap:           big.NewInt(c.hard),
		TotalSupply:       big.NewInt(c.supply),
	})
	if err != nil {
		f.t.Fatalf("configure sale: %v", err)
	}
	err = f.engine.ConfigureSecurity(ownerAddr, SecurityConfig{
		AntiWhaleLimit:     big.NewInt(c.whale),
		CooldownSeconds:    600,
		AntiBotSlotSeconds: 3,
		MultisigThreshold:  threshold,
	})
	if err != nil {
		f.t.Fatalf("configure security: %v", err)
	}
}

func (f *saleFixture) configureAll() {
	f.t.Helper()
	f.configureCaps(defaultCaps(), 1)
	err := f.engine.ConfigurePricing(ownerAddr, PricingConfig{
		UseManualPrice: true,
		ManualPrice:    big.NewInt(2),
		TokenPerUsd:    big.NewInt(25),
	})
	if err != nil {
		f.t.Fatalf("configure pricing: %v", err)
	}
	tpl := vesting.Template{Duration: 365 * 86400, CliffPeriod: 30 * 86400, CliffPercentage: 20}
	if err := f.engine.ConfigureVesting(ownerAddr, tpl); err != nil {
		f.t.Fatalf("configure vesting: %v", err)
	}
	if err := f.engine.ConfigureAirdropVesting(ownerAddr, tpl); err != nil {
		f.t.Fatalf("configure airdrop vesting: %v", err)
	}
	if err := f.engine.AddMultisigSigner(ownerAddr, signerAddr); err != nil {
		f.t.Fatalf("add signer: %v", err)
	}
}

func (f *saleFixture) whitelist(addr common.Address) {
	f.t.Helper()
	if err := f.engine.SetWhitelisted(ownerAddr, addr, true); err != nil {
		f.t.Fatalf("whitelist: %v", err)
	}
	if err := f.engine.SetKYCVerified(ownerAddr, addr, true); err != nil {
		f.t.Fatalf("kyc: %v", err)
	}
}

func nativeCoins(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), bigPow10(18))
}

func readySaleFixture(t *testing.T) *saleFixture {
	t.Helper()
	f := newSaleFixture(t)
	f.initialize(250)
	f.configureAll()
	f.whitelist(buyerAddr)
	return f
}

func TestInitializeValidation(t *testing.T) {
	f := newSaleFixture(t)
	bad := InitRecord{Token: tokenAddr, FundWallet: fundAddr, FeeWallet: feeAddr}
	if err := f.engine.Initialize(bad); !errors.Is(err, ErrZeroAddress) {
		t.Fatalf("zero owner: err = %v, want ErrZeroAddress", err)
	}
	overFee := InitRecord{Owner: ownerAddr, Token: tokenAddr, FundWallet: fundAddr, FeeWallet: feeAddr, FeePercentage: 1001}
	if err := f.engine.Initialize(overFee); !errors.Is(err, ErrFeeTooHigh) {
		t.Fatalf("fee 1001: err = %v, want ErrFeeTooHigh", err)
	}
	f.initialize(1000)
	if err := f.engine.Initialize(InitRecord{Owner: ownerAddr, Token: tokenAddr, FundWallet: fundAddr, FeeWallet: feeAddr}); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("second initialize: err = %v, want ErrAlreadyInitialized", err)
	}
	if got := f.sink.count(events.TypeSaleInitialized); got != 1 {
		t.Fatalf("initialized events = %d, want 1", got)
	}
}

func TestPurchaseHappyPath(t *testing.T) {
	f := readySaleFixture(t)
	rec, err := f.engine.Purchase(buyerAddr, nativeCoins(4))
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if rec.ID != "sale-000001" {
		t.Fatalf("record id = %q", rec.ID)
	}
	if rec.Source != SourceNative {
		t.Fatalf("record source = %q", rec.Source)
	}
	if rec.UsdAmount.Cmp(big.NewInt(8)) != 0 {
		t.Fatalf("usd = %s, want 8", rec.UsdAmount)
	}
	if rec.TokenAmount.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("tokens = %s, want 200", rec.TokenAmount)
	}

	fee := new(big.Int).Div(new(big.Int).Mul(nativeCoins(4), big.NewInt(250)), big.NewInt(10000))
	wantTreasury := new(big.Int).Sub(nativeCoins(4), fee)
	treasury, err := f.bank.TreasuryBalance()
	if err != nil {
		t.Fatalf("treasury: %v", err)
	}
	if treasury.Cmp(wantTreasury) != 0 {
		t.Fatalf("treasury = %s, want %s", treasury, wantTreasury)
	}
	feeAcct, err := f.bank.Account(feeAddr)
	if err != nil {
		t.Fatalf("fee account: %v", err)
	}
	if feeAcct.NativeBalance.Cmp(fee) != 0 {
		t.Fatalf("fee wallet = %s, want %s", feeAcct.NativeBalance, fee)
	}

	user, err := f.engine.UserInfo(buyerAddr)
	if err != nil {
		t.Fatalf("user info: %v", err)
	}
	if user.PurchasedTokens.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("user purchases = %s, want 200", user.PurchasedTokens)
	}
	if user.RefundableNative.Cmp(nativeCoins(4)) != 0 {
		t.Fatalf("refundable = %s, want %s", user.RefundableNative, nativeCoins(4))
	}
	if user.LastPurchaseTime != uint64(f.now) {
		t.Fatalf("last purchase time = %d, want %d", user.LastPurchaseTime, f.now)
	}
	if user.LastPurchaseSlot != uint64(f.now)/3 {
		t.Fatalf("last purchase slot = %d, want %d", user.LastPurchaseSlot, uint64(f.now)/3)
	}

	info, err := f.engine.SaleInfo()
	if err != nil {
		t.Fatalf("sale info: %v", err)
	}
	if info.Config.TotalSold.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("total sold = %s, want 200", info.Config.TotalSold)
	}
	if info.Config.TotalFeeCollected.Cmp(fee) != 0 {
		t.Fatalf("fee collected = %s, want %s", info.Config.TotalFeeCollected, fee)
	}

	sched, err := f.vest.Schedule(buyerAddr)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if sched == nil || sched.TotalAmount.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("vesting schedule = %+v, want total 200", sched)
	}

	if got := f.sink.count(events.TypeSalePurchase); got != 1 {
		t.Fatalf("purchase events = %d, want 1", got)
	}
	if got := f.sink.count(events.TypeSaleFeeCollected); got != 1 {
		t.Fatalf("fee events = %d, want 1", got)
	}
}

func TestPurchaseRequiresEligibility(t *testing.T) {
	f := newSaleFixture(t)
	f.initialize(250)
	f.configureAll()

	if _, err := f.engine.Purchase(buyerAddr, nativeCoins(4)); !errors.Is(err, ErrNotEligible) {
		t.Fatalf("no flags: err = %v, want ErrNotEligible", err)
	}
	if err := f.engine.SetWhitelisted(ownerAddr, buyerAddr, true); err != nil {
		t.Fatalf("whitelist: %v", err)
	}
	if _, err := f.engine.Purchase(buyerAddr, nativeCoins(4)); !errors.Is(err, ErrNotEligible) {
		t.Fatalf("whitelist only: err = %v, want ErrNotEligible", err)
	}
	if err := f.engine.SetKYCVerified(ownerAddr, buyerAddr, true); err != nil {
		t.Fatalf("kyc: %v", err)
	}
	if err := f.engine.SetBlacklisted(ownerAddr, buyerAddr, true); err != nil {
		t.Fatalf("blacklist: %v", err)
	}
	if _, err := f.engine.Purchase(buyerAddr, nativeCoins(4)); !errors.Is(err, ErrNotEligible) {
		t.Fatalf("blacklisted: err = %v, want ErrNotEligible", err)
	}
	if err := f.engine.SetBlacklisted(ownerAddr, buyerAddr, false); err != nil {
		t.Fatalf("unblacklist: %v", err)
	}
	if _, err := f.engine.Purchase(buyerAddr, nativeCoins(4)); err != nil {
		t.Fatalf("eligible purchase: %v", err)
	}
}

func TestPurchaseLifecycleGates(t *testing.T) {
	f := newSaleFixture(t)
	if _, err := f.engine.Purchase(buyerAddr, nativeCoins(4)); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("uninitialized: err = %v, want ErrNotInitialized", err)
	}
	f.initialize(250)
	if _, err := f.engine.Purchase(buyerAddr, nativeCoins(4)); !errors.Is(err, ErrSaleNotConfigured) {
		t.Fatalf("unconfigured: err = %v, want ErrSaleNotConfigured", err)
	}
	f.configureAll()
	f.whitelist(buyerAddr)

	f.now = baseTime - 10
	if _, err := f.engine.Purchase(buyerAddr, nativeCoins(4)); !errors.Is(err, ErrSaleNotActive) {
		t.Fatalf("before start: err = %v, want ErrSaleNotActive", err)
	}
	f.now = baseTime + saleDays*86400 + 10
	if _, err := f.engine.Purchase(buyerAddr, nativeCoins(4)); !errors.Is(err, ErrSaleNotActive) {
		t.Fatalf("after end: err = %v, want ErrSaleNotActive", err)
	}

	f.now = baseTime + 3600
	if err := f.engine.Pause(ownerAddr); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, err := f.engine.Purchase(buyerAddr, nativeCoins(4)); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("paused: err = %v, want ErrModulePaused", err)
	}
	if err := f.engine.Unpause(ownerAddr); err != nil {
		t.Fatalf("unpause: %v", err)
	}

	if _, _, err := f.engine.FinalizeSale(signerAddr); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if _, err := f.engine.Purchase(buyerAddr, nativeCoins(4)); !errors.Is(err, ErrSaleFinalized) {
		t.Fatalf("finalized: err = %v, want ErrSaleFinalized", err)
	}
}

func TestPurchaseThrottles(t *testing.T) {
	f := readySaleFixture(t)
	if _, err := f.engine.Purchase(buyerAddr, nativeCoins(4)); err != nil {
		t.Fatalf("first purchase: %v", err)
	}
	if _, err := f.engine.Purchase(buyerAddr, nativeCoins(4)); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("same slot: err = %v, want ErrRateLimited", err)
	}
	f.advance(6)
	if _, err := f.engine.Purchase(buyerAddr, nativeCoins(4)); !errors.Is(err, ErrCooldownActive) {
		t.Fatalf("inside cooldown: err = %v, want ErrCooldownActive", err)
	}
	f.advance(600)
	if _, err := f.engine.Purchase(buyerAddr, nativeCoins(4)); err != nil {
		t.Fatalf("after cooldown: %v", err)
	}
}

func TestPurchaseValidationOrder(t *testing.T) {
	cases := []struct {
		name string
		caps caps
		want error
	}{
		{"per transaction first", caps{maxTx: 100, whale: 50, wallet: 10, soft: 10, hard: 50, supply: 50}, ErrExceedsMaxPerTransaction},
		{"anti whale second", caps{maxTx: 500, whale: 50, wallet: 10, soft: 10, hard: 50, supply: 50}, ErrExceedsAntiWhaleLimit},
		{"per wallet third", caps{maxTx: 500, whale: 500, wallet: 10, soft: 10, hard: 50, supply: 50}, ErrExceedsMaxPerWallet},
		{"hard cap fourth", caps{maxTx: 500, whale: 500, wallet: 500, soft: 10, hard: 50, supply: 50}, ErrExceedsHardCap},
		{"total supply fifth", caps{maxTx: 500, whale: 500, wallet: 500, soft: 10, hard: 500, supply: 50}, ErrExceedsTotalSupply},
		{"all pass", caps{maxTx: 500, whale: 500, wallet: 500, soft: 10, hard: 500, supply: 500}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newSaleFixture(t)
			f.initialize(250)
			f.configureAll()
			f.configureCaps(tc.caps, 1)
			f.whitelist(buyerAddr)
			_, err := f.engine.Purchase(buyerAddr, nativeCoins(4))
			if tc.want == nil {
				if err != nil {
					t.Fatalf("purchase: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestPurchaseFeeTransferFailureAborts(t *testing.T) {
	f := readySaleFixture(t)
	f.engine.SetBank(&failingBank{Bank: f.bank, failPay: true})
	if _, err := f.engine.Purchase(buyerAddr, nativeCoins(4)); err == nil {
		t.Fatal("expected fee transfer failure to abort the purchase")
	}
}

func TestPurchaseDustRejected(t *testing.T) {
	f := readySaleFixture(t)
	// One wei prices to zero tokens under the manual config.
	if _, err := f.engine.Purchase(buyerAddr, big.NewInt(1)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("dust: err = %v, want ErrInvalidAmount", err)
	}
}

func TestFiatPayment(t *testing.T) {
	f := readySaleFixture(t)
	// The fiat recipient is deliberately not whitelisted.
	rec, err := f.engine.ProcessFiatPayment(ownerAddr, secondAddr, big.NewInt(150), "INV-001")
	if err != nil {
		t.Fatalf("fiat payment: %v", err)
	}
	if rec.Source != SourceFiat || rec.PaymentID != "INV-001" {
		t.Fatalf("record = %+v", rec)
	}
	user, err := f.engine.UserInfo(secondAddr)
	if err != nil {
		t.Fatalf("user info: %v", err)
	}
	if user.PurchasedTokens.Cmp(big.NewInt(150)) != 0 {
		t.Fatalf("purchases = %s, want 150", user.PurchasedTokens)
	}
	if user.RefundableNative.Sign() != 0 {
		t.Fatalf("fiat credit must not create refundable native, got %s", user.RefundableNative)
	}
	sched, err := f.vest.Schedule(secondAddr)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if sched == nil || sched.TotalAmount.Cmp(big.NewInt(150)) != 0 {
		t.Fatalf("vesting schedule = %+v, want total 150", sched)
	}

	if _, err := f.engine.ProcessFiatPayment(ownerAddr, secondAddr, big.NewInt(1), "INV-001"); !errors.Is(err, ErrPaymentProcessed) {
		t.Fatalf("replayed id: err = %v, want ErrPaymentProcessed", err)
	}
	if _, err := f.engine.ProcessFiatPayment(ownerAddr, secondAddr, big.NewInt(1), "   "); !errors.Is(err, ErrInvalidPaymentID) {
		t.Fatalf("blank id: err = %v, want ErrInvalidPaymentID", err)
	}
	if _, err := f.engine.ProcessFiatPayment(extraAddr, secondAddr, big.NewInt(1), "INV-002"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("non-owner: err = %v, want ErrUnauthorized", err)
	}
	if _, err := f.engine.ProcessFiatPayment(ownerAddr, secondAddr, big.NewInt(0), "INV-003"); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero amount: err = %v, want ErrInvalidAmount", err)
	}
	if got := f.sink.count(events.TypeSaleFiatPayment); got != 1 {
		t.Fatalf("fiat events = %d, want 1", got)
	}
}

func TestFiatPaymentChecksSupplyOnly(t *testing.T) {
	f := readySaleFixture(t)
	// 1050 tokens exceed maxPerTransaction (500), the anti-whale limit
	// (400), maxPerWallet (800) and the hard cap (1000), but fit the total
	// supply (1200).
	if _, err := f.engine.ProcessFiatPayment(ownerAddr, secondAddr, big.NewInt(1050), "INV-BIG"); err != nil {
		t.Fatalf("supply-bounded credit: %v", err)
	}
	if _, err := f.engine.ProcessFiatPayment(ownerAddr, extraAddr, big.NewInt(151), "INV-OVER"); !errors.Is(err, ErrExceedsTotalSupply) {
		t.Fatalf("over supply: err = %v, want ErrExceedsTotalSupply", err)
	}
}

func TestFiatBatch(t *testing.T) {
	f := readySaleFixture(t)
	recipients := []common.Address{secondAddr, extraAddr, secondAddr}
	amounts := []*big.Int{big.NewInt(10), big.NewInt(20), big.NewInt(5)}
	ids := []string{"B-1", "B-2", "B-3"}
	records, err := f.engine.BatchProcessFiatPayments(ownerAddr, recipients, amounts, ids)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records = %d, want 3", len(records))
	}
	user, err := f.engine.UserInfo(secondAddr)
	if err != nil {
		t.Fatalf("user info: %v", err)
	}
	if user.PurchasedTokens.Cmp(big.NewInt(15)) != 0 {
		t.Fatalf("accumulated purchases = %s, want 15", user.PurchasedTokens)
	}
	if got := f.sink.count(events.TypeVestingBatchCreated); got != 1 {
		t.Fatalf("batch summary events = %d, want 1", got)
	}

	if _, err := f.engine.BatchProcessFiatPayments(ownerAddr, recipients[:2], amounts[:2], ids[:1]); !errors.Is(err, ErrLengthMismatch) {
		t.Fatalf("length mismatch: err = %v, want ErrLengthMismatch", err)
	}
	dupIDs := []string{"B-9", "B-9"}
	_, err = f.engine.BatchProcessFiatPayments(ownerAddr, recipients[:2], amounts[:2], dupIDs)
	if !errors.Is(err, ErrPaymentProcessed) {
		t.Fatalf("duplicate in batch: err = %v, want ErrPaymentProcessed", err)
	}
}

func TestRefundFlow(t *testing.T) {
	f := newSaleFixture(t)
	f.initialize(0)
	f.configureAll()
	f.whitelist(buyerAddr)
	if _, err := f.engine.Purchase(buyerAddr, nativeCoins(4)); err != nil {
		t.Fatalf("purchase: %v", err)
	}

	if _, err := f.engine.ProcessRefund(buyerAddr); !errors.Is(err, ErrRefundConditionsNotMet) {
		t.Fatalf("before end: err = %v, want ErrRefundConditionsNotMet", err)
	}

	f.now = baseTime + saleDays*86400 + 10
	refunded, err := f.engine.ProcessRefund(buyerAddr)
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if refunded.Cmp(nativeCoins(4)) != 0 {
		t.Fatalf("refunded = %s, want %s", refunded, nativeCoins(4))
	}
	user, err := f.engine.UserInfo(buyerAddr)
	if err != nil {
		t.Fatalf("user info: %v", err)
	}
	if user.RefundableNative.Sign() != 0 {
		t.Fatalf("credit not zeroed: %s", user.RefundableNative)
	}
	acct, err := f.bank.Account(buyerAddr)
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if acct.NativeBalance.Cmp(nativeCoins(4)) != 0 {
		t.Fatalf("paid out = %s, want %s", acct.NativeBalance, nativeCoins(4))
	}
	treasury, err := f.bank.TreasuryBalance()
	if err != nil {
		t.Fatalf("treasury: %v", err)
	}
	if treasury.Sign() != 0 {
		t.Fatalf("treasury = %s, want 0", treasury)
	}

	if _, err := f.engine.ProcessRefund(buyerAddr); !errors.Is(err, ErrNoRefund) {
		t.Fatalf("second refund: err = %v, want ErrNoRefund", err)
	}
	if err := f.engine.SetRefundEnabled(ownerAddr, false); err != nil {
		t.Fatalf("disable refunds: %v", err)
	}
	if _, err := f.engine.ProcessRefund(secondAddr); !errors.Is(err, ErrRefundsDisabled) {
		t.Fatalf("disabled: err = %v, want ErrRefundsDisabled", err)
	}
	if got := f.sink.count(events.TypeSaleRefund); got != 1 {
		t.Fatalf("refund events = %d, want 1", got)
	}
}

func TestRefundBlockedWhenSoftCapMet(t *testing.T) {
	f := newSaleFixture(t)
	f.initialize(0)
	f.configureAll()
	f.whitelist(buyerAddr)
	if _, err := f.engine.Purchase(buyerAddr, nativeCoins(4)); err != nil {
		t.Fatalf("first purchase: %v", err)
	}
	f.advance(700)
	if _, err := f.engine.Purchase(buyerAddr, nativeCoins(4)); err != nil {
		t.Fatalf("second purchase: %v", err)
	}
	// totalSold 400 >= softCap 300.
	f.now = baseTime + saleDays*86400 + 10
	if _, err := f.engine.ProcessRefund(buyerAddr); !errors.Is(err, ErrRefundConditionsNotMet) {
		t.Fatalf("soft cap met: err = %v, want ErrRefundConditionsNotMet", err)
	}
}

func TestFinalizeMultisig(t *testing.T) {
	f := newSaleFixture(t)
	f.initialize(250)
	f.configureAll()
	f.configureCaps(caps{maxTx: 500, whale: 400, wallet: 800, soft: 100, hard: 1000, supply: 1200}, 2)
	f.whitelist(buyerAddr)
	if _, err := f.engine.Purchase(buyerAddr, nativeCoins(4)); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	treasuryBefore, err := f.bank.TreasuryBalance()
	if err != nil {
		t.Fatalf("treasury: %v", err)
	}

	approvals, executed, err := f.engine.FinalizeSale(signerAddr)
	if err != nil {
		t.Fatalf("first approval: %v", err)
	}
	if approvals != 1 || executed {
		t.Fatalf("first approval = (%d, %v), want (1, false)", approvals, executed)
	}
	if _, _, err := f.engine.FinalizeSale(extraAddr); !errors.Is(err, ErrUnauthorizedSigner) {
		t.Fatalf("unregistered signer: err = %v, want ErrUnauthorizedSigner", err)
	}

	// The counter is not attributed per signer, so a repeat approval from
	// the same signer reaches the threshold.
	approvals, executed, err = f.engine.FinalizeSale(signerAddr)
	if err != nil {
		t.Fatalf("second approval: %v", err)
	}
	if approvals != 2 || !executed {
		t.Fatalf("second approval = (%d, %v), want (2, true)", approvals, executed)
	}

	info, err := f.engine.SaleInfo()
	if err != nil {
		t.Fatalf("sale info: %v", err)
	}
	if !info.Config.Finalized {
		t.Fatal("sale not finalized")
	}
	if info.Config.RefundEnabled {
		t.Fatal("refunds still enabled after soft cap met")
	}
	fundAcct, err := f.bank.Account(fundAddr)
	if err != nil {
		t.Fatalf("fund account: %v", err)
	}
	if fundAcct.NativeBalance.Cmp(treasuryBefore) != 0 {
		t.Fatalf("swept = %s, want %s", fundAcct.NativeBalance, treasuryBefore)
	}
	treasury, err := f.bank.TreasuryBalance()
	if err != nil {
		t.Fatalf("treasury: %v", err)
	}
	if treasury.Sign() != 0 {
		t.Fatalf("treasury = %s, want 0 after sweep", treasury)
	}
	pending, err := f.engine.Approvals(ActionFinalizeSale)
	if err != nil {
		t.Fatalf("approvals: %v", err)
	}
	if pending != 0 {
		t.Fatalf("counter = %d, want reset to 0", pending)
	}

	if _, _, err := f.engine.FinalizeSale(signerAddr); !errors.Is(err, ErrSaleFinalized) {
		t.Fatalf("finalize again: err = %v, want ErrSaleFinalized", err)
	}
	if got := f.sink.count(events.TypeSaleMultisigApproval); got != 2 {
		t.Fatalf("approval events = %d, want 2", got)
	}
	if got := f.sink.count(events.TypeSaleFinalized); got != 1 {
		t.Fatalf("finalized events = %d, want 1", got)
	}
}

func TestWithdrawUnsoldTokens(t *testing.T) {
	f := readySaleFixture(t)
	if _, err := f.engine.Purchase(buyerAddr, nativeCoins(4)); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if _, _, err := f.engine.WithdrawUnsoldTokens(signerAddr); !errors.Is(err, ErrNotFinalized) {
		t.Fatalf("before finalize: err = %v, want ErrNotFinalized", err)
	}
	if _, _, err := f.engine.FinalizeSale(signerAddr); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	_, executed, err := f.engine.WithdrawUnsoldTokens(signerAddr)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if !executed {
		t.Fatal("threshold 1 should execute immediately")
	}
	fundAcct, err := f.bank.Account(fundAddr)
	if err != nil {
		t.Fatalf("fund account: %v", err)
	}
	if fundAcct.TokenBalance.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("withdrawn = %s, want 1000", fundAcct.TokenBalance)
	}
	pool, err := f.bank.TokenPoolBalance()
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	// Exactly the sold (vesting-reserved) tokens stay behind.
	if pool.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("pool = %s, want 200", pool)
	}
	if _, _, err := f.engine.WithdrawUnsoldTokens(signerAddr); !errors.Is(err, ErrUnsoldWithdrawn) {
		t.Fatalf("second withdraw: err = %v, want ErrUnsoldWithdrawn", err)
	}
}

func TestEmergencyWithdraw(t *testing.T) {
	f := readySaleFixture(t)
	if _, err := f.engine.EmergencyWithdraw(ownerAddr, rescueAddr); !errors.Is(err, ErrNotPaused) {
		t.Fatalf("not paused: err = %v, want ErrNotPaused", err)
	}
	if err := f.engine.Pause(ownerAddr); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, err := f.engine.EmergencyWithdraw(extraAddr, rescueAddr); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("non-owner: err = %v, want ErrUnauthorized", err)
	}
	var zero common.Address
	if _, err := f.engine.EmergencyWithdraw(ownerAddr, zero); !errors.Is(err, ErrZeroAddress) {
		t.Fatalf("zero recipient: err = %v, want ErrZeroAddress", err)
	}
	amount, err := f.engine.EmergencyWithdraw(ownerAddr, rescueAddr)
	if err != nil {
		t.Fatalf("emergency withdraw: %v", err)
	}
	if amount.Cmp(big.NewInt(1200)) != 0 {
		t.Fatalf("drained = %s, want 1200", amount)
	}
	rescue, err := f.bank.Account(rescueAddr)
	if err != nil {
		t.Fatalf("rescue account: %v", err)
	}
	if rescue.TokenBalance.Cmp(big.NewInt(1200)) != 0 {
		t.Fatalf("rescued = %s, want 1200", rescue.TokenBalance)
	}
	pool, err := f.bank.TokenPoolBalance()
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	if pool.Sign() != 0 {
		t.Fatalf("pool = %s, want 0", pool)
	}
}

func TestAdminRequiresOwner(t *testing.T) {
	f := readySaleFixture(t)
	tpl := vesting.Template{Duration: 100, CliffPeriod: 10, CliffPercentage: 10}
	checks := map[string]error{
		"configure sale":     f.engine.ConfigureSale(extraAddr, SaleParams{StartTime: 1, EndTime: 2, MaxPerTransaction: big.NewInt(1), MaxPerWallet: big.NewInt(1), SoftCap: big.NewInt(0), HardCap: big.NewInt(1), TotalSupply: big.NewInt(1)}),
		"configure security": f.engine.ConfigureSecurity(extraAddr, SecurityConfig{AntiWhaleLimit: big.NewInt(1), AntiBotSlotSeconds: 3, MultisigThreshold: 1}),
		"configure pricing":  f.engine.ConfigurePricing(extraAddr, PricingConfig{TokenPerUsd: big.NewInt(1)}),
		"configure vesting":  f.engine.ConfigureVesting(extraAddr, tpl),
		"set whitelisted":    f.engine.SetWhitelisted(extraAddr, buyerAddr, true),
		"add signer":         f.engine.AddMultisigSigner(extraAddr, extraAddr),
		"pause":              f.engine.Pause(extraAddr),
		"refund gate":        f.engine.SetRefundEnabled(extraAddr, false),
	}
	for name, err := range checks {
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("%s: err = %v, want ErrUnauthorized", name, err)
		}
	}
}

func TestSignerRegistration(t *testing.T) {
	f := readySaleFixture(t)
	if err := f.engine.AddMultisigSigner(ownerAddr, extraAddr); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := f.engine.AddMultisigSigner(ownerAddr, extraAddr); !errors.Is(err, ErrSignerExists) {
		t.Fatalf("duplicate add: err = %v, want ErrSignerExists", err)
	}
	signers, err := f.engine.Signers()
	if err != nil {
		t.Fatalf("signers: %v", err)
	}
	if len(signers) != 2 {
		t.Fatalf("signers = %d, want 2", len(signers))
	}
	if err := f.engine.RemoveMultisigSigner(ownerAddr, extraAddr); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := f.engine.RemoveMultisigSigner(ownerAddr, extraAddr); !errors.Is(err, ErrSignerUnknown) {
		t.Fatalf("remove unknown: err = %v, want ErrSignerUnknown", err)
	}
	var zero common.Address
	if err := f.engine.AddMultisigSigner(ownerAddr, zero); !errors.Is(err, ErrZeroAddress) {
		t.Fatalf("zero signer: err = %v, want ErrZeroAddress", err)
	}
}

func TestStatusBatchUpdates(t *testing.T) {
	f := readySaleFixture(t)
	accounts := []common.Address{buyerAddr, secondAddr, extraAddr}
	if err := f.engine.SetWhitelistedBatch(ownerAddr, accounts, true); err != nil {
		t.Fatalf("whitelist batch: %v", err)
	}
	if err := f.engine.SetKYCVerifiedBatch(ownerAddr, accounts[:2], true); err != nil {
		t.Fatalf("kyc batch: %v", err)
	}
	for i, addr := range accounts {
		info, err := f.engine.UserInfo(addr)
		if err != nil {
			t.Fatalf("user info: %v", err)
		}
		if !info.Status.Whitelisted {
			t.Fatalf("account %d not whitelisted", i)
		}
		wantKYC := i < 2
		if info.Status.KYCVerified != wantKYC {
			t.Fatalf("account %d kyc = %v, want %v", i, info.Status.KYCVerified, wantKYC)
		}
	}
	var zero common.Address
	err := f.engine.SetWhitelistedBatch(ownerAddr, []common.Address{secondAddr, zero}, true)
	if !errors.Is(err, ErrZeroAddress) {
		t.Fatalf("zero in batch: err = %v, want ErrZeroAddress", err)
	}
}

func TestCurrentPriceView(t *testing.T) {
	f := readySaleFixture(t)
	price, err := f.engine.CurrentPrice()
	if err != nil {
		t.Fatalf("current price: %v", err)
	}
	if price.Mode != "manual" || price.UsdPerNative.Cmp(big.NewInt(2)) != 0 {
		t.Fatalf("manual price = %+v", price)
	}

	if err := f.engine.ConfigurePricing(ownerAddr, PricingConfig{UseExternalFeed: true, TokenPerUsd: big.NewInt(25)}); err != nil {
		t.Fatalf("switch to feed: %v", err)
	}
	if _, err := f.engine.CurrentPrice(); !errors.Is(err, ErrOracleUnavailable) {
		t.Fatalf("feed unset: err = %v, want ErrOracleUnavailable", err)
	}
	f.engine.SetPriceFeed(&stubFeed{price: big.NewInt(700_000_000)})
	price, err = f.engine.CurrentPrice()
	if err != nil {
		t.Fatalf("feed price: %v", err)
	}
	if price.Mode != "feed" || price.UsdPerNative.Cmp(big.NewInt(7)) != 0 {
		t.Fatalf("feed price = %+v", price)
	}

	if err := f.engine.ConfigurePricing(ownerAddr, PricingConfig{TokenPerUsd: big.NewInt(25)}); err != nil {
		t.Fatalf("switch to fallback: %v", err)
	}
	price, err = f.engine.CurrentPrice()
	if err != nil {
		t.Fatalf("fallback price: %v", err)
	}
	if price.Mode != "fallback" || price.UsdPerNative.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("fallback price = %+v", price)
	}
}

func TestSaleInfoUnconfigured(t *testing.T) {
	f := newSaleFixture(t)
	info, err := f.engine.SaleInfo()
	if err != nil {
		t.Fatalf("sale info: %v", err)
	}
	if info.Initialized || info.Config != nil || info.Security != nil {
		t.Fatalf("expected empty view, got %+v", info)
	}
	if info.PricingMode != "fallback" {
		t.Fatalf("pricing mode = %q, want fallback", info.PricingMode)
	}
}

func TestConfigureVestingRejectsBadTemplate(t *testing.T) {
	f := readySaleFixture(t)
	bad := vesting.Template{Duration: 0, CliffPeriod: 0, CliffPercentage: 0}
	if err := f.engine.ConfigureVesting(ownerAddr, bad); !errors.Is(err, vesting.ErrInvalidTemplate) {
		t.Fatalf("bad template: err = %v, want ErrInvalidTemplate", err)
	}
	tpl, ok, err := f.engine.PurchaseVestingTemplate()
	if err != nil || !ok {
		t.Fatalf("template readback: ok=%v err=%v", ok, err)
	}
	if tpl.CliffPercentage != 20 {
		t.Fatalf("template = %+v, want untouched cliff 20", tpl)
	}
}

func TestConfigureSaleValidation(t *testing.T) {
	f := newSaleFixture(t)
	f.initialize(250)
	badWindow := SaleParams{StartTime: 10, EndTime: 10, MaxPerTransaction: big.NewInt(1), MaxPerWallet: big.NewInt(1), SoftCap: big.NewInt(0), HardCap: big.NewInt(1), TotalSupply: big.NewInt(1)}
	if err := f.engine.ConfigureSale(ownerAddr, badWindow); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("start==end: err = %v, want ErrInvalidConfig", err)
	}
	softOverHard := SaleParams{StartTime: 1, EndTime: 2, MaxPerTransaction: big.NewInt(1), MaxPerWallet: big.NewInt(1), SoftCap: big.NewInt(5), HardCap: big.NewInt(1), TotalSupply: big.NewInt(1)}
	if err := f.engine.ConfigureSale(ownerAddr, softOverHard); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("soft > hard: err = %v, want ErrInvalidConfig", err)
	}
	if err := f.engine.ConfigureSecurity(ownerAddr, SecurityConfig{AntiWhaleLimit: big.NewInt(0), AntiBotSlotSeconds: 3, MultisigThreshold: 1}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("zero whale limit: err = %v, want ErrInvalidConfig", err)
	}
	if err := f.engine.ConfigurePricing(ownerAddr, PricingConfig{UseManualPrice: true, TokenPerUsd: big.NewInt(1)}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("manual without price: err = %v, want ErrInvalidConfig", err)
	}
}

func TestConfigureSalePreservesTallies(t *testing.T) {
	f := readySaleFixture(t)
	if _, err := f.engine.Purchase(buyerAddr, nativeCoins(4)); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	f.configureCaps(caps{maxTx: 900, whale: 900, wallet: 900, soft: 10, hard: 2000, supply: 2000}, 1)
	info, err := f.engine.SaleInfo()
	if err != nil {
		t.Fatalf("sale info: %v", err)
	}
	if info.Config.TotalSold.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("total sold = %s, want preserved 200", info.Config.TotalSold)
	}
	if info.Config.TotalFeeCollected.Sign() == 0 {
		t.Fatal("fee tally lost on reconfigure")
	}
}
