package state

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrInsufficientFunds is returned when a transfer would overdraw the
	// treasury or the token pool.
	ErrInsufficientFunds = errors.New("bank: insufficient funds")
	// ErrInvalidAmount is returned for nil or negative transfer amounts.
	ErrInvalidAmount = errors.New("bank: invalid amount")
)

var (
	bankTreasuryKey   = []byte("bank/treasury")
	bankTokenPoolKey  = []byte("bank/pool")
	bankAccountPrefix = []byte("bank/acct/")
)

// kvStore is the slice of the state manager the bank needs. Both *Manager and
// *Txn satisfy it, so bank mutations join whatever overlay the current
// operation runs in.
type kvStore interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// BankAccount tracks what the ledger owes an external address.
type BankAccount struct {
	NativeBalance *big.Int
	TokenBalance  *big.Int
}

type storedBankAccount struct {
	Native *big.Int
	Token  *big.Int
}

// BankLedger is the state-backed implementation of the sale's external value
// collaborators: the native-currency treasury the sale holds payments in, the
// token pool it distributes from, and per-address payout balances.
type BankLedger struct {
	store kvStore
}

// NewBankLedger binds a bank to the provided state view.
func NewBankLedger(store kvStore) *BankLedger {
	return &BankLedger{store: store}
}

// SetStore rebinds the bank to a different state view. The ledger uses this to
// point the bank at the overlay transaction of the operation in flight.
func (b *BankLedger) SetStore(store kvStore) {
	b.store = store
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	return nil
}

func accountKey(addr common.Address) []byte {
	key := make([]byte, len(bankAccountPrefix)+len(addr))
	copy(key, bankAccountPrefix)
	copy(key[len(bankAccountPrefix):], addr.Bytes())
	return key
}

func (b *BankLedger) balance(key []byte) (*big.Int, error) {
	if b == nil || b.store == nil {
		return nil, errors.New("bank: store not initialised")
	}
	var stored big.Int
	ok, err := b.store.KVGet(key, &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return &stored, nil
}

func (b *BankLedger) setBalance(key []byte, amount *big.Int) error {
	return b.store.KVPut(key, amount)
}

// Account returns the payout balances owed to addr.
func (b *BankLedger) Account(addr common.Address) (*BankAccount, error) {
	if b == nil || b.store == nil {
		return nil, errors.New("bank: store not initialised")
	}
	var stored storedBankAccount
	ok, err := b.store.KVGet(accountKey(addr), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &BankAccount{NativeBalance: big.NewInt(0), TokenBalance: big.NewInt(0)}, nil
	}
	return &BankAccount{
		NativeBalance: cloneBigInt(stored.Native),
		TokenBalance:  cloneBigInt(stored.Token),
	}, nil
}

func (b *BankLedger) putAccount(addr common.Address, acct *BankAccount) error {
	return b.store.KVPut(accountKey(addr), &storedBankAccount{
		Native: cloneBigInt(acct.NativeBalance),
		Token:  cloneBigInt(acct.TokenBalance),
	})
}

// TreasuryBalance reports the native currency currently held by the sale.
func (b *BankLedger) TreasuryBalance() (*big.Int, error) {
	return b.balance(bankTreasuryKey)
}

// TokenPoolBalance reports the undistributed token supply.
func (b *BankLedger) TokenPoolBalance() (*big.Int, error) {
	return b.balance(bankTokenPoolKey)
}

// FundTokenPool credits tokens into the distribution pool. Called during
// wiring when the operator deposits sale supply.
func (b *BankLedger) FundTokenPool(amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	pool, err := b.TokenPoolBalance()
	if err != nil {
		return err
	}
	return b.setBalance(bankTokenPoolKey, new(big.Int).Add(pool, amount))
}

// DepositNative records a buyer's payment arriving in the sale treasury.
func (b *BankLedger) DepositNative(from common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	treasury, err := b.TreasuryBalance()
	if err != nil {
		return err
	}
	return b.setBalance(bankTreasuryKey, new(big.Int).Add(treasury, amount))
}

// PayNative moves native currency from the treasury to an external address.
// Fee transfers, refunds and the finalization sweep all flow through here.
func (b *BankLedger) PayNative(to common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	treasury, err := b.TreasuryBalance()
	if err != nil {
		return err
	}
	if treasury.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	if err := b.setBalance(bankTreasuryKey, new(big.Int).Sub(treasury, amount)); err != nil {
		return err
	}
	acct, err := b.Account(to)
	if err != nil {
		return err
	}
	acct.NativeBalance = new(big.Int).Add(acct.NativeBalance, amount)
	return b.putAccount(to, acct)
}

// TransferToken releases tokens from the pool to an external address. Vesting
// claims, unsold withdrawal and the emergency drain all flow through here.
func (b *BankLedger) TransferToken(to common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	pool, err := b.TokenPoolBalance()
	if err != nil {
		return err
	}
	if pool.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	if err := b.setBalance(bankTokenPoolKey, new(big.Int).Sub(pool, amount)); err != nil {
		return err
	}
	acct, err := b.Account(to)
	if err != nil {
		return err
	}
	acct.TokenBalance = new(big.Int).Add(acct.TokenBalance, amount)
	return b.putAccount(to, acct)
}
