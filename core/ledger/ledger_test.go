package ledger

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"tokensale/core/events"
	"tokensale/core/state"
	"tokensale/native/airdrop"
	nativecommon "tokensale/native/common"
	"tokensale/native/sale"
	"tokensale/native/vesting"
	"tokensale/storage"
)

const (
	baseTime = int64(1_755_000_000)
	day      = int64(86_400)
)

var (
	ownerAddr  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	tokenAddr  = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	fundAddr   = common.HexToAddress("0x00000000000000000000000000000000000000a3")
	feeAddr    = common.HexToAddress("0x00000000000000000000000000000000000000a4")
	buyerAddr  = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	secondAddr = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	thirdAddr  = common.HexToAddress("0x00000000000000000000000000000000000000b3")
	signerAddr = common.HexToAddress("0x00000000000000000000000000000000000000c1")
)

type recordingSink struct {
	ops    []string
	failed []bool
}

func (r *recordingSink) ObserveOperation(op string, d time.Duration, err error) {
	r.ops = append(r.ops, op)
	r.failed = append(r.failed, err != nil)
}

type ledgerFixture struct {
	t      *testing.T
	db     *storage.MemDB
	ledger *Ledger
	now    int64
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()
	db := storage.NewMemDB()
	l := New(state.NewManager(db))
	f := &ledgerFixture{t: t, db: db, ledger: l, now: baseTime + 3600}
	l.SetClock(func() time.Time { return time.Unix(f.now, 0) })
	if err := l.Bank().FundTokenPool(big.NewInt(1200)); err != nil {
		t.Fatalf("fund pool: %v", err)
	}
	return f
}

func (f *ledgerFixture) advance(seconds int64) {
	f.now += seconds
}

func (f *ledgerFixture) initialize() {
	f.t.Helper()
	err := f.ledger.Initialize(sale.InitRecord{
		Owner:      ownerAddr,
		Token:      tokenAddr,
		FundWallet: fundAddr,
		FeeWallet:  feeAddr,
	})
	if err != nil {
		f.t.Fatalf("initialize: %v", err)
	}
}

func (f *ledgerFixture) configure() {
	f.t.Helper()
	l := f.ledger
	err := l.ConfigureSale(ownerAddr, sale.SaleParams{
		StartTime:         uint64(baseTime),
		EndTime:           uint64(baseTime + 7*day),
		MaxPerTransaction: big.NewInt(500),
		MaxPerWallet:      big.NewInt(800),
		SoftCap:           big.NewInt(300),
		HardCap:           big.NewInt(1000),
		TotalSupply:       big.NewInt(1200),
	})
	if err != nil {
		f.t.Fatalf("configure sale: %v", err)
	}
	err = l.ConfigureSecurity(ownerAddr, sale.SecurityConfig{
		AntiWhaleLimit:     big.NewInt(400),
		CooldownSeconds:    600,
		AntiBotSlotSeconds: 3,
		MultisigThreshold:  1,
	})
	if err != nil {
		f.t.Fatalf("configure security: %v", err)
	}
	err = l.ConfigurePricing(ownerAddr, sale.PricingConfig{
		UseManualPrice: true,
		ManualPrice:    big.NewInt(2),
		TokenPerUsd:    big.NewInt(25),
	})
	if err != nil {
		f.t.Fatalf("configure pricing: %v", err)
	}
	tpl := vesting.Template{Duration: uint64(365 * day), CliffPeriod: uint64(30 * day), CliffPercentage: 20}
	if err := l.ConfigureVesting(ownerAddr, tpl); err != nil {
		f.t.Fatalf("configure vesting: %v", err)
	}
	if err := l.ConfigureAirdropVesting(ownerAddr, tpl); err != nil {
		f.t.Fatalf("configure airdrop vesting: %v", err)
	}
	if err := l.AddMultisigSigner(ownerAddr, signerAddr); err != nil {
		f.t.Fatalf("add signer: %v", err)
	}
}

func (f *ledgerFixture) whitelist(addr common.Address) {
	f.t.Helper()
	if err := f.ledger.SetWhitelisted(ownerAddr, addr, true); err != nil {
		f.t.Fatalf("whitelist: %v", err)
	}
	if err := f.ledger.SetKYCVerified(ownerAddr, addr, true); err != nil {
		f.t.Fatalf("kyc: %v", err)
	}
}

func readyLedger(t *testing.T) *ledgerFixture {
	t.Helper()
	f := newLedgerFixture(t)
	f.initialize()
	f.configure()
	f.whitelist(buyerAddr)
	return f
}

func nativeCoins(n int64) *big.Int {
	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	return unit.Mul(unit, big.NewInt(n))
}

func TestLifecycleEndToEnd(t *testing.T) {
	f := readyLedger(t)
	l := f.ledger
	f.whitelist(secondAddr)

	rec, err := l.Purchase(buyerAddr, nativeCoins(4))
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if rec.TokenAmount.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("token amount = %s, want 200", rec.TokenAmount)
	}
	if _, err := l.Purchase(secondAddr, nativeCoins(4)); err != nil {
		t.Fatalf("second purchase: %v", err)
	}

	info, err := l.SaleInfo()
	if err != nil {
		t.Fatalf("sale info: %v", err)
	}
	if info.Config.TotalSold.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("total sold = %s, want 400", info.Config.TotalSold)
	}

	profile, err := l.UserProfile(buyerAddr)
	if err != nil {
		t.Fatalf("user profile: %v", err)
	}
	if profile.Sale.PurchasedTokens.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("purchased = %s, want 200", profile.Sale.PurchasedTokens)
	}
	if profile.Schedule == nil || profile.Schedule.TotalAmount.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("schedule = %+v, want total 200", profile.Schedule)
	}
	if profile.Claimable.Sign() != 0 {
		t.Fatalf("claimable before cliff = %s, want 0", profile.Claimable)
	}

	f.advance(30*day + 60)
	claimed, err := l.ClaimVested(buyerAddr)
	if err != nil {
		t.Fatalf("claim vested: %v", err)
	}
	if claimed.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("claimed = %s, want 40 (cliff release)", claimed)
	}

	approvals, executed, err := l.FinalizeSale(signerAddr)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if approvals != 1 || !executed {
		t.Fatalf("finalize approvals = %d executed = %v", approvals, executed)
	}
	info, err = l.SaleInfo()
	if err != nil {
		t.Fatalf("sale info: %v", err)
	}
	if !info.Config.Finalized || info.Config.RefundEnabled {
		t.Fatalf("post-finalize config = %+v", info.Config)
	}

	approvals, executed, err = l.WithdrawUnsoldTokens(signerAddr)
	if err != nil {
		t.Fatalf("withdraw unsold: %v", err)
	}
	if approvals != 1 || !executed {
		t.Fatalf("withdraw approvals = %d executed = %v", approvals, executed)
	}

	fund, err := l.Bank().Account(fundAddr)
	if err != nil {
		t.Fatalf("fund account: %v", err)
	}
	if fund.TokenBalance.Cmp(big.NewInt(800)) != 0 {
		t.Fatalf("unsold swept = %s, want 800", fund.TokenBalance)
	}
	if fund.NativeBalance.Cmp(nativeCoins(8)) != 0 {
		t.Fatalf("treasury swept = %s, want %s", fund.NativeBalance, nativeCoins(8))
	}
}

func TestBatchFiatFailureRollsBackAllWrites(t *testing.T) {
	f := readyLedger(t)
	l := f.ledger

	if _, err := l.ProcessFiatPayment(ownerAddr, buyerAddr, big.NewInt(100), "pay-1"); err != nil {
		t.Fatalf("seed fiat payment: %v", err)
	}
	keysBefore := f.db.Len()
	seqBefore := l.EventSeq()

	_, err := l.BatchProcessFiatPayments(ownerAddr,
		[]common.Address{secondAddr, thirdAddr},
		[]*big.Int{big.NewInt(50), big.NewInt(60)},
		[]string{"pay-2", "pay-1"},
	)
	if !errors.Is(err, sale.ErrPaymentProcessed) {
		t.Fatalf("batch err = %v, want ErrPaymentProcessed", err)
	}

	if got := f.db.Len(); got != keysBefore {
		t.Fatalf("stored keys = %d, want %d (no partial writes)", got, keysBefore)
	}
	if got := l.EventSeq(); got != seqBefore {
		t.Fatalf("event seq = %d, want %d (no partial events)", got, seqBefore)
	}
	profile, err := l.UserProfile(secondAddr)
	if err != nil {
		t.Fatalf("user profile: %v", err)
	}
	if profile.Sale.PurchasedTokens.Sign() != 0 {
		t.Fatalf("first batch entry credited %s despite batch failure", profile.Sale.PurchasedTokens)
	}
	info, err := l.SaleInfo()
	if err != nil {
		t.Fatalf("sale info: %v", err)
	}
	if info.Config.TotalSold.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("total sold = %s, want 100", info.Config.TotalSold)
	}
	recs, _, err := l.Purchases("", 10)
	if err != nil {
		t.Fatalf("purchases: %v", err)
	}
	if len(recs) != 1 || recs[0].PaymentID != "pay-1" {
		t.Fatalf("journal = %d records, want the seed entry only", len(recs))
	}
}

func TestReentrantOperationRejected(t *testing.T) {
	f := readyLedger(t)
	l := f.ledger

	if err := l.guard.Enter(opScope); err != nil {
		t.Fatalf("enter scope: %v", err)
	}
	_, err := l.Purchase(buyerAddr, nativeCoins(4))
	if !errors.Is(err, nativecommon.ErrOperationInProgress) {
		t.Fatalf("nested op err = %v, want ErrOperationInProgress", err)
	}
	l.guard.Exit(opScope)

	if _, err := l.Purchase(buyerAddr, nativeCoins(4)); err != nil {
		t.Fatalf("purchase after release: %v", err)
	}
}

func TestEventsFlushOnlyOnCommit(t *testing.T) {
	f := newLedgerFixture(t)
	l := f.ledger

	backlog, ch, cancel := l.SubscribeEvents(0, 8)
	defer cancel()
	if len(backlog) != 0 {
		t.Fatalf("backlog = %d entries, want 0", len(backlog))
	}

	err := l.ConfigureSale(ownerAddr, sale.SaleParams{})
	if !errors.Is(err, sale.ErrNotInitialized) {
		t.Fatalf("configure before init err = %v", err)
	}
	if got := l.EventSeq(); got != 0 {
		t.Fatalf("event seq after failed op = %d, want 0", got)
	}

	f.initialize()
	select {
	case entry := <-ch:
		if entry.Seq != 1 || entry.Event.Type != events.TypeSaleInitialized {
			t.Fatalf("entry = seq %d type %q", entry.Seq, entry.Event.Type)
		}
	default:
		t.Fatal("no event delivered after commit")
	}

	all := l.Events(0, 10)
	if len(all) != 1 || all[0].Event.Type != events.TypeSaleInitialized {
		t.Fatalf("committed log = %+v", all)
	}
}

func TestEventCursorSkipsSeen(t *testing.T) {
	f := readyLedger(t)
	l := f.ledger

	seen := l.EventSeq()
	if seen == 0 {
		t.Fatal("setup emitted no events")
	}
	if _, err := l.Purchase(buyerAddr, nativeCoins(4)); err != nil {
		t.Fatalf("purchase: %v", err)
	}

	fresh := l.Events(seen, 100)
	if len(fresh) == 0 {
		t.Fatal("no entries past cursor")
	}
	for _, entry := range fresh {
		if entry.Seq <= seen {
			t.Fatalf("entry seq %d not past cursor %d", entry.Seq, seen)
		}
	}
	last := fresh[len(fresh)-1]
	if last.Event.Type != events.TypeSalePurchase {
		t.Fatalf("last event = %q, want %q", last.Event.Type, events.TypeSalePurchase)
	}
	if got := l.Events(last.Seq, 100); len(got) != 0 {
		t.Fatalf("entries past tip = %d, want 0", len(got))
	}
}

func TestConfigureAirdropRequiresOwner(t *testing.T) {
	f := readyLedger(t)
	l := f.ledger
	root := [32]byte{1}

	err := l.ConfigureAirdrop(secondAddr, root, uint64(f.now+10*day))
	if !errors.Is(err, sale.ErrUnauthorized) {
		t.Fatalf("non-owner err = %v, want ErrUnauthorized", err)
	}
	if err := l.ConfigureAirdrop(ownerAddr, root, uint64(f.now+10*day)); err != nil {
		t.Fatalf("owner configure: %v", err)
	}
	cfg, err := l.AirdropInfo()
	if err != nil {
		t.Fatalf("airdrop info: %v", err)
	}
	if cfg == nil || cfg.MerkleRoot != root {
		t.Fatalf("airdrop config = %+v", cfg)
	}
}

func TestAirdropClaimFlow(t *testing.T) {
	f := readyLedger(t)
	l := f.ledger

	tree, err := airdrop.BuildTree([]airdrop.Allocation{
		{Account: buyerAddr, Amount: big.NewInt(70)},
		{Account: secondAddr, Amount: big.NewInt(30)},
	})
	if err != nil {
		t.Fatalf("build tree: %v", err)
	}
	if err := l.ConfigureAirdrop(ownerAddr, tree.Root, uint64(f.now+10*day)); err != nil {
		t.Fatalf("configure airdrop: %v", err)
	}

	leaf, err := airdrop.LeafHash(buyerAddr, big.NewInt(70))
	if err != nil {
		t.Fatalf("leaf: %v", err)
	}
	proof, ok := tree.Proof(leaf)
	if !ok {
		t.Fatal("missing proof")
	}
	if err := l.ClaimAirdrop(buyerAddr, big.NewInt(70), proof); err != nil {
		t.Fatalf("claim: %v", err)
	}

	profile, err := l.UserProfile(buyerAddr)
	if err != nil {
		t.Fatalf("user profile: %v", err)
	}
	if !profile.AirdropClaimed {
		t.Fatal("claimed flag not set")
	}
	if profile.Schedule == nil || profile.Schedule.TotalAmount.Cmp(big.NewInt(70)) != 0 {
		t.Fatalf("schedule = %+v, want vested 70", profile.Schedule)
	}

	err = l.ClaimAirdrop(buyerAddr, big.NewInt(70), proof)
	if !errors.Is(err, airdrop.ErrAlreadyClaimed) {
		t.Fatalf("second claim err = %v, want ErrAlreadyClaimed", err)
	}

	if err := l.Pause(ownerAddr); err != nil {
		t.Fatalf("pause: %v", err)
	}
	secondLeaf, err := airdrop.LeafHash(secondAddr, big.NewInt(30))
	if err != nil {
		t.Fatalf("leaf: %v", err)
	}
	secondProof, _ := tree.Proof(secondLeaf)
	err = l.ClaimAirdrop(secondAddr, big.NewInt(30), secondProof)
	if !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("paused claim err = %v, want ErrModulePaused", err)
	}
	if err := l.Unpause(ownerAddr); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	if err := l.ClaimAirdrop(secondAddr, big.NewInt(30), secondProof); err != nil {
		t.Fatalf("claim after unpause: %v", err)
	}

	cfg, err := l.AirdropInfo()
	if err != nil {
		t.Fatalf("airdrop info: %v", err)
	}
	if cfg.TotalClaimed.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("total claimed = %s, want 100", cfg.TotalClaimed)
	}
}

func TestAirdropClaimNeedsTemplate(t *testing.T) {
	f := newLedgerFixture(t)
	l := f.ledger
	f.initialize()

	root := [32]byte{7}
	if err := l.ConfigureAirdrop(ownerAddr, root, uint64(f.now+day)); err != nil {
		t.Fatalf("configure airdrop: %v", err)
	}
	err := l.ClaimAirdrop(buyerAddr, big.NewInt(5), nil)
	if !errors.Is(err, sale.ErrSaleNotConfigured) {
		t.Fatalf("claim err = %v, want ErrSaleNotConfigured", err)
	}
}

func TestPauseGatesVestingClaims(t *testing.T) {
	f := readyLedger(t)
	l := f.ledger

	if _, err := l.Purchase(buyerAddr, nativeCoins(4)); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if err := l.Pause(ownerAddr); err != nil {
		t.Fatalf("pause: %v", err)
	}
	f.advance(30*day + 60)

	if _, err := l.ClaimVested(buyerAddr); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("claim err = %v, want ErrModulePaused", err)
	}
	_, _, err := l.BatchClaimVested([]common.Address{buyerAddr})
	if !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("batch claim err = %v, want ErrModulePaused", err)
	}

	if err := l.Unpause(ownerAddr); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	claimed, err := l.ClaimVested(buyerAddr)
	if err != nil {
		t.Fatalf("claim after unpause: %v", err)
	}
	if claimed.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("claimed = %s, want 40", claimed)
	}
}

func TestMetricsObserveEveryOperation(t *testing.T) {
	f := newLedgerFixture(t)
	l := f.ledger
	sink := &recordingSink{}
	l.SetMetrics(sink)

	f.initialize()
	err := l.ConfigureSale(secondAddr, sale.SaleParams{})
	if !errors.Is(err, sale.ErrUnauthorized) {
		t.Fatalf("configure err = %v", err)
	}

	if len(sink.ops) != 2 {
		t.Fatalf("observed %d ops, want 2", len(sink.ops))
	}
	if sink.ops[0] != "initialize" || sink.failed[0] {
		t.Fatalf("first observation = %q failed=%v", sink.ops[0], sink.failed[0])
	}
	if sink.ops[1] != "configure_sale" || !sink.failed[1] {
		t.Fatalf("second observation = %q failed=%v", sink.ops[1], sink.failed[1])
	}
}

func TestViewsOnFreshLedger(t *testing.T) {
	f := newLedgerFixture(t)
	l := f.ledger

	info, err := l.SaleInfo()
	if err != nil {
		t.Fatalf("sale info: %v", err)
	}
	if info.Initialized {
		t.Fatal("fresh ledger reports initialized")
	}

	profile, err := l.UserProfile(buyerAddr)
	if err != nil {
		t.Fatalf("user profile: %v", err)
	}
	if profile.Schedule != nil || profile.AirdropClaimed {
		t.Fatalf("fresh profile = %+v", profile)
	}
	if profile.Claimable.Sign() != 0 {
		t.Fatalf("claimable = %s, want 0", profile.Claimable)
	}

	cfg, err := l.AirdropInfo()
	if err != nil {
		t.Fatalf("airdrop info: %v", err)
	}
	if cfg != nil {
		t.Fatalf("airdrop config = %+v, want nil", cfg)
	}

	if _, err := l.CurrentPrice(); !errors.Is(err, sale.ErrSaleNotConfigured) {
		t.Fatalf("price err = %v, want ErrSaleNotConfigured", err)
	}
}

func TestRefundThroughLedger(t *testing.T) {
	f := readyLedger(t)
	l := f.ledger

	if _, err := l.Purchase(buyerAddr, nativeCoins(4)); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	f.advance(8 * day)

	amount, err := l.ProcessRefund(buyerAddr)
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if amount.Cmp(nativeCoins(4)) != 0 {
		t.Fatalf("refund = %s, want %s", amount, nativeCoins(4))
	}
	profile, err := l.UserProfile(buyerAddr)
	if err != nil {
		t.Fatalf("user profile: %v", err)
	}
	if profile.Sale.RefundableNative.Sign() != 0 {
		t.Fatalf("refundable after refund = %s", profile.Sale.RefundableNative)
	}
}
