package ledger

import (
	"sync"
	"time"

	"tokensale/core/state"
	"tokensale/native/airdrop"
	nativecommon "tokensale/native/common"
	"tokensale/native/sale"
	"tokensale/native/vesting"
)

// opScope is the guard scope shared by every mutating operation. A single
// scope makes any re-entrant mutation attempt fail, whichever operation
// pair is involved.
const opScope = "ledger"

// stateView is the keyed-state surface the ledger hands to its engines.
// Both *state.Manager and *state.Txn satisfy it, so the same wiring serves
// committed reads and the overlay of an operation in flight.
type stateView interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVAppend(key []byte, value []byte) error
	KVGetList(key []byte, out interface{}) error
}

// MetricsSink observes completed mutating operations.
type MetricsSink interface {
	ObserveOperation(op string, d time.Duration, err error)
}

// Ledger is the single-writer coordinator over the sale, vesting and
// airdrop engines. Every mutating operation runs under one mutex, inside
// one state overlay, with events buffered until commit; a failed operation
// leaves neither state nor events behind.
type Ledger struct {
	mu       sync.Mutex
	manager  *state.Manager
	bank     *state.BankLedger
	sale     *sale.Engine
	vesting  *vesting.Engine
	airdrop  *airdrop.Engine
	guard    *nativecommon.OpGuard
	recorder *Recorder
	metrics  MetricsSink
	clock    func() time.Time
}

// New wires a ledger over the given state manager. The bank and all three
// engines start bound to the manager; operations rebind them to a
// transaction overlay for their duration.
func New(manager *state.Manager) *Ledger {
	l := &Ledger{
		manager:  manager,
		guard:    nativecommon.NewOpGuard(),
		recorder: newRecorder(),
		clock:    time.Now,
	}
	l.bank = state.NewBankLedger(manager)

	l.vesting = vesting.NewEngine(manager)
	l.vesting.SetTokenSource(l.bank)
	l.vesting.SetEmitter(l.recorder)

	l.sale = sale.NewEngine(manager)
	l.sale.SetBank(l.bank)
	l.sale.SetGranter(l.vesting)
	l.sale.SetEmitter(l.recorder)

	l.airdrop = airdrop.NewEngine(manager)
	l.airdrop.SetGranter(l.vesting)
	l.airdrop.SetEmitter(l.recorder)
	return l
}

// SetPriceFeed wires the external price feed used by feed-mode pricing.
func (l *Ledger) SetPriceFeed(feed sale.PriceFeed) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sale.SetPriceFeed(feed)
}

// SetMetrics wires an operation observer. A nil sink disables observation.
func (l *Ledger) SetMetrics(sink MetricsSink) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.metrics = sink
}

// SetClock overrides the shared time source. Tests use this for
// determinism.
func (l *Ledger) SetClock(clock func() time.Time) {
	if clock == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clock = clock
	l.sale.SetClock(clock)
	l.vesting.SetClock(clock)
	l.airdrop.SetClock(clock)
}

// Bank exposes the underlying value ledger for wiring at process startup,
// e.g. funding the token pool before the sale opens.
func (l *Ledger) Bank() *state.BankLedger {
	return l.bank
}

// Events returns committed event entries past the cursor.
func (l *Ledger) Events(cursor uint64, limit int) []EventEntry {
	return l.recorder.Events(cursor, limit)
}

// SubscribeEvents registers a live event consumer. See Recorder.Subscribe.
func (l *Ledger) SubscribeEvents(cursor uint64, buffer int) ([]EventEntry, <-chan EventEntry, func()) {
	return l.recorder.Subscribe(cursor, buffer)
}

// EventSeq reports the newest committed event sequence number.
func (l *Ledger) EventSeq() uint64 {
	return l.recorder.Seq()
}

func (l *Ledger) bind(view stateView) {
	l.sale.SetStorage(view)
	l.vesting.SetStorage(view)
	l.airdrop.SetStorage(view)
	l.bank.SetStore(view)
}

// run executes one mutating operation: lock, mark the guard scope, open an
// overlay, rebind the engines into it, and either commit state and flush
// events or discard both.
func (l *Ledger) run(op string, fn func() error) error {
	start := l.clock()
	l.mu.Lock()
	defer l.mu.Unlock()
	err := l.execute(fn)
	l.observe(op, l.clock().Sub(start), err)
	return err
}

func (l *Ledger) execute(fn func() error) error {
	if err := l.guard.Enter(opScope); err != nil {
		return err
	}
	defer l.guard.Exit(opScope)

	txn := l.manager.Begin()
	l.bind(txn)
	defer l.bind(l.manager)

	l.recorder.begin()
	if err := fn(); err != nil {
		txn.Discard()
		l.recorder.discard()
		return err
	}
	if err := txn.Commit(); err != nil {
		l.recorder.discard()
		return err
	}
	l.recorder.flush()
	return nil
}

func (l *Ledger) observe(op string, d time.Duration, err error) {
	if l.metrics == nil {
		return
	}
	l.metrics.ObserveOperation(op, d, err)
}
