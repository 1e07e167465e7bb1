package airdrop

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"tokensale/core/events"
	"tokensale/native/vesting"
)

var (
	// ErrNotConfigured indicates no merkle root has been committed yet.
	ErrNotConfigured = errors.New("airdrop: not configured")
	// ErrExpired indicates a claim after the configured deadline.
	ErrExpired = errors.New("airdrop: claim window expired")
	// ErrAlreadyClaimed indicates the account's one-shot flag is set.
	ErrAlreadyClaimed = errors.New("airdrop: already claimed")
	// ErrInvalidProof indicates the proof path does not fold into the root.
	ErrInvalidProof = errors.New("airdrop: invalid proof")
	// ErrInvalidRoot indicates an all-zero root in SetConfig.
	ErrInvalidRoot = errors.New("airdrop: invalid merkle root")
)

// Config is the airdrop commitment: the merkle root over allotments, the
// claim deadline, and a running tally of claimed amounts. The tally is
// informational; it is not a cap enforced against itself.
type Config struct {
	MerkleRoot   [32]byte
	Deadline     uint64
	TotalClaimed *big.Int
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	if c.TotalClaimed != nil {
		clone.TotalClaimed = new(big.Int).Set(c.TotalClaimed)
	} else {
		clone.TotalClaimed = big.NewInt(0)
	}
	return &clone
}

type storedConfig struct {
	Root     [32]byte
	Deadline uint64
	Claimed  *big.Int
}

var (
	configKey     = []byte("airdrop/config")
	claimedPrefix = []byte("airdrop/claimed/")
)

func claimedKey(account common.Address) []byte {
	key := make([]byte, len(claimedPrefix)+len(account))
	copy(key, claimedPrefix)
	copy(key[len(claimedPrefix):], account.Bytes())
	return key
}

// Storage is the slice of keyed state the airdrop engine uses.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Granter hands a verified allotment to the vesting engine.
type Granter interface {
	Grant(account common.Address, amount *big.Int, tpl vesting.Template, source string) error
}

// Engine verifies merkle-proven allotment claims and forwards them to
// vesting. Claims are one-shot per account.
type Engine struct {
	store   Storage
	granter Granter
	emitter events.Emitter
	clock   func() time.Time
}

// NewEngine binds an airdrop engine to the provided state view.
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

// SetGranter wires the vesting hand-off.
func (e *Engine) SetGranter(granter Granter) {
	if e == nil {
		return
	}
	e.granter = granter
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

// Configure commits a new merkle root and deadline. The claimed tally starts
// at zero for a first configuration and is preserved across root rotations so
// the running total stays meaningful.
func (e *Engine) Configure(root [32]byte, deadline uint64) error {
	if e == nil || e.store == nil {
		return fmt.Errorf("airdrop: engine not initialised")
	}
	if root == ([32]byte{}) {
		return ErrInvalidRoot
	}
	current, err := e.Config()
	if err != nil {
		return err
	}
	claimed := big.NewInt(0)
	if current != nil {
		claimed = current.TotalClaimed
	}
	if err := e.store.KVPut(configKey, &storedConfig{Root: root, Deadline: deadline, Claimed: claimed}); err != nil {
		return err
	}
	e.emit(events.SaleConfigUpdated{Section: "airdrop"})
	return nil
}

// Config returns the committed configuration, or (nil, nil) when none exists.
func (e *Engine) Config() (*Config, error) {
	if e == nil || e.store == nil {
		return nil, fmt.Errorf("airdrop: engine not initialised")
	}
	var stored storedConfig
	ok, err := e.store.KVGet(configKey, &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	claimed := stored.Claimed
	if claimed == nil {
		claimed = big.NewInt(0)
	}
	return &Config{MerkleRoot: stored.Root, Deadline: stored.Deadline, TotalClaimed: new(big.Int).Set(claimed)}, nil
}

// Claimed reports whether the account's one-shot flag is set.
func (e *Engine) Claimed(account common.Address) (bool, error) {
	if e == nil || e.store == nil {
		return false, fmt.Errorf("airdrop: engine not initialised")
	}
	var flag bool
	ok, err := e.store.KVGet(claimedKey(account), &flag)
	if err != nil {
		return false, err
	}
	return ok && flag, nil
}

// Claim verifies the proof for (account, amount) against the committed root
// and, exactly once per account, hands the allotment to vesting under the
// supplied template.
func (e *Engine) Claim(account common.Address, amount *big.Int, proof [][32]byte, tpl vesting.Template) error {
	if e == nil || e.store == nil {
		return fmt.Errorf("airdrop: engine not initialised")
	}
	if e.granter == nil {
		return fmt.Errorf("airdrop: granter not configured")
	}
	cfg, err := e.Config()
	if err != nil {
		return err
	}
	if cfg == nil {
		return ErrNotConfigured
	}
	now := e.clock().Unix()
	if now > 0 && uint64(now) > cfg.Deadline {
		return ErrExpired
	}
	claimed, err := e.Claimed(account)
	if err != nil {
		return err
	}
	if claimed {
		return ErrAlreadyClaimed
	}
	leaf, err := LeafHash(account, amount)
	if err != nil {
		return err
	}
	if !VerifyProof(cfg.MerkleRoot, leaf, proof) {
		return ErrInvalidProof
	}
	if err := e.store.KVPut(claimedKey(account), true); err != nil {
		return err
	}
	total := new(big.Int).Add(cfg.TotalClaimed, amount)
	if err := e.store.KVPut(configKey, &storedConfig{Root: cfg.MerkleRoot, Deadline: cfg.Deadline, Claimed: total}); err != nil {
		return err
	}
	if err := e.granter.Grant(account, amount, tpl, "airdrop"); err != nil {
		return err
	}
	e.emit(events.AirdropClaimed{
		Account:      account,
		Amount:       new(big.Int).Set(amount),
		TotalClaimed: total,
	})
	return nil
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(evt)
}
