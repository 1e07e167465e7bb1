package sale

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// MaxFeeBps caps the platform fee at 10% of contributed native value.
const MaxFeeBps = 1000

// DefaultAntiBotSlotSeconds is the width of the purchase rate-limit slot
// when the operator does not override it.
const DefaultAntiBotSlotSeconds = 3

// InitRecord captures the immutable identities fixed at initialization.
type InitRecord struct {
	Owner         common.Address
	Token         common.Address
	FundWallet    common.Address
	FeeWallet     common.Address
	FeePercentage uint64
}

// Validate rejects zero addresses and fees above the cap.
func (r InitRecord) Validate() error {
	var zero common.Address
	if r.Owner == zero || r.Token == zero || r.FundWallet == zero || r.FeeWallet == zero {
		return ErrZeroAddress
	}
	if r.FeePercentage > MaxFeeBps {
		return ErrFeeTooHigh
	}
	return nil
}

// SaleParams are the operator-tunable sale window and caps. They are the
// input to ConfigureSale; run state such as the sold tally lives in
// SaleConfig and survives reconfiguration.
type SaleParams struct {
	StartTime         uint64
	EndTime           uint64
	MaxPerTransaction *big.Int
	MaxPerWallet      *big.Int
	SoftCap           *big.Int
	HardCap           *big.Int
	TotalSupply       *big.Int
}

// Validate checks the window ordering and cap consistency.
func (p SaleParams) Validate() error {
	if p.StartTime >= p.EndTime {
		return ErrInvalidConfig
	}
	for _, amount := range []*big.Int{p.MaxPerTransaction, p.MaxPerWallet, p.HardCap, p.TotalSupply} {
		if amount == nil || amount.Sign() <= 0 {
			return ErrInvalidConfig
		}
	}
	if p.SoftCap == nil || p.SoftCap.Sign() < 0 {
		return ErrInvalidConfig
	}
	if p.SoftCap.Cmp(p.HardCap) > 0 {
		return ErrInvalidConfig
	}
	return nil
}

// SaleConfig is the persisted sale state: the configured parameters plus
// the running tallies and lifecycle flags.
type SaleConfig struct {
	StartTime         uint64
	EndTime           uint64
	MaxPerTransaction *big.Int
	MaxPerWallet      *big.Int
	SoftCap           *big.Int
	HardCap           *big.Int
	TotalSupply       *big.Int
	TotalSold         *big.Int
	TotalFeeCollected *big.Int
	RefundEnabled     bool
	Finalized         bool
}

// Clone returns a deep copy.
func (c *SaleConfig) Clone() *SaleConfig {
	if c == nil {
		return nil
	}
	clone := *c
	clone.MaxPerTransaction = cloneBigInt(c.MaxPerTransaction)
	clone.MaxPerWallet = cloneBigInt(c.MaxPerWallet)
	clone.SoftCap = cloneBigInt(c.SoftCap)
	clone.HardCap = cloneBigInt(c.HardCap)
	clone.TotalSupply = cloneBigInt(c.TotalSupply)
	clone.TotalSold = cloneBigInt(c.TotalSold)
	clone.TotalFeeCollected = cloneBigInt(c.TotalFeeCollected)
	return &clone
}

type storedSaleConfig struct {
	StartTime         uint64
	EndTime           uint64
	MaxPerTransaction *big.Int
	MaxPerWallet      *big.Int
	SoftCap           *big.Int
	HardCap           *big.Int
	TotalSupply       *big.Int
	TotalSold         *big.Int
	TotalFeeCollected *big.Int
	RefundEnabled     bool
	Finalized         bool
}

func (c *SaleConfig) stored() *storedSaleConfig {
	return &storedSaleConfig{
		StartTime:         c.StartTime,
		EndTime:           c.EndTime,
		MaxPerTransaction: cloneBigInt(c.MaxPerTransaction),
		MaxPerWallet:      cloneBigInt(c.MaxPerWallet),
		SoftCap:           cloneBigInt(c.SoftCap),
		HardCap:           cloneBigInt(c.HardCap),
		TotalSupply:       cloneBigInt(c.TotalSupply),
		TotalSold:         cloneBigInt(c.TotalSold),
		TotalFeeCollected: cloneBigInt(c.TotalFeeCollected),
		RefundEnabled:     c.RefundEnabled,
		Finalized:         c.Finalized,
	}
}

func (s *storedSaleConfig) config() *SaleConfig {
	return &SaleConfig{
		StartTime:         s.StartTime,
		EndTime:           s.EndTime,
		MaxPerTransaction: cloneBigInt(s.MaxPerTransaction),
		MaxPerWallet:      cloneBigInt(s.MaxPerWallet),
		SoftCap:           cloneBigInt(s.SoftCap),
		HardCap:           cloneBigInt(s.HardCap),
		TotalSupply:       cloneBigInt(s.TotalSupply),
		TotalSold:         cloneBigInt(s.TotalSold),
		TotalFeeCollected: cloneBigInt(s.TotalFeeCollected),
		RefundEnabled:     s.RefundEnabled,
		Finalized:         s.Finalized,
	}
}

// SecurityConfig holds the purchase throttles and the multisig threshold.
type SecurityConfig struct {
	AntiWhaleLimit     *big.Int
	CooldownSeconds    uint64
	AntiBotSlotSeconds uint64
	MultisigThreshold  uint64
}

// Validate checks the throttle bounds.
func (c SecurityConfig) Validate() error {
	if c.AntiWhaleLimit == nil || c.AntiWhaleLimit.Sign() <= 0 {
		return ErrInvalidConfig
	}
	if c.AntiBotSlotSeconds == 0 {
		return ErrInvalidConfig
	}
	if c.MultisigThreshold == 0 {
		return ErrInvalidConfig
	}
	return nil
}

// Clone returns a deep copy.
func (c *SecurityConfig) Clone() *SecurityConfig {
	if c == nil {
		return nil
	}
	clone := *c
	clone.AntiWhaleLimit = cloneBigInt(c.AntiWhaleLimit)
	return &clone
}

type storedSecurityConfig struct {
	AntiWhaleLimit     *big.Int
	CooldownSeconds    uint64
	AntiBotSlotSeconds uint64
	MultisigThreshold  uint64
}

func (c *SecurityConfig) stored() *storedSecurityConfig {
	return &storedSecurityConfig{
		AntiWhaleLimit:     cloneBigInt(c.AntiWhaleLimit),
		CooldownSeconds:    c.CooldownSeconds,
		AntiBotSlotSeconds: c.AntiBotSlotSeconds,
		MultisigThreshold:  c.MultisigThreshold,
	}
}

func (s *storedSecurityConfig) config() *SecurityConfig {
	return &SecurityConfig{
		AntiWhaleLimit:     cloneBigInt(s.AntiWhaleLimit),
		CooldownSeconds:    s.CooldownSeconds,
		AntiBotSlotSeconds: s.AntiBotSlotSeconds,
		MultisigThreshold:  s.MultisigThreshold,
	}
}

// PricingConfig selects the conversion mode for native contributions.
// Manual mode takes precedence over the external feed; with neither flag
// set the fixed fallback divisor applies.
type PricingConfig struct {
	UseManualPrice  bool
	UseExternalFeed bool
	ManualPrice     *big.Int
	TokenPerUsd     *big.Int
}

// Validate checks the exchange rate and, in manual mode, the manual price.
func (c PricingConfig) Validate() error {
	if c.TokenPerUsd == nil || c.TokenPerUsd.Sign() <= 0 {
		return ErrInvalidConfig
	}
	if c.UseManualPrice && (c.ManualPrice == nil || c.ManualPrice.Sign() <= 0) {
		return ErrInvalidConfig
	}
	return nil
}

// Clone returns a deep copy.
func (c *PricingConfig) Clone() *PricingConfig {
	if c == nil {
		return nil
	}
	clone := *c
	clone.ManualPrice = cloneBigInt(c.ManualPrice)
	clone.TokenPerUsd = cloneBigInt(c.TokenPerUsd)
	return &clone
}

type storedPricingConfig struct {
	UseManualPrice  bool
	UseExternalFeed bool
	ManualPrice     *big.Int
	TokenPerUsd     *big.Int
}

func (c *PricingConfig) stored() *storedPricingConfig {
	return &storedPricingConfig{
		UseManualPrice:  c.UseManualPrice,
		UseExternalFeed: c.UseExternalFeed,
		ManualPrice:     cloneBigInt(c.ManualPrice),
		TokenPerUsd:     cloneBigInt(c.TokenPerUsd),
	}
}

func (s *storedPricingConfig) config() *PricingConfig {
	return &PricingConfig{
		UseManualPrice:  s.UseManualPrice,
		UseExternalFeed: s.UseExternalFeed,
		ManualPrice:     cloneBigInt(s.ManualPrice),
		TokenPerUsd:     cloneBigInt(s.TokenPerUsd),
	}
}

// StatusRecord carries the three independent eligibility markers for an
// account. Eligibility requires the whitelist and KYC flags set and the
// blacklist flag clear.
type StatusRecord struct {
	Whitelisted bool
	KYCVerified bool
	Blacklisted bool
}

// Eligible reports whether the account may purchase.
func (s StatusRecord) Eligible() bool {
	return s.Whitelisted && s.KYCVerified && !s.Blacklisted
}

// UserRecord tracks an account's cumulative purchases and throttle state.
type UserRecord struct {
	PurchasedTokens  *big.Int
	RefundableNative *big.Int
	LastPurchaseTime uint64
	LastPurchaseSlot uint64
}

// Clone returns a deep copy.
func (u *UserRecord) Clone() *UserRecord {
	if u == nil {
		return nil
	}
	clone := *u
	clone.PurchasedTokens = cloneBigInt(u.PurchasedTokens)
	clone.RefundableNative = cloneBigInt(u.RefundableNative)
	return &clone
}

type storedUserRecord struct {
	PurchasedTokens  *big.Int
	RefundableNative *big.Int
	LastPurchaseTime uint64
	LastPurchaseSlot uint64
}

func (u *UserRecord) stored() *storedUserRecord {
	return &storedUserRecord{
		PurchasedTokens:  cloneBigInt(u.PurchasedTokens),
		RefundableNative: cloneBigInt(u.RefundableNative),
		LastPurchaseTime: u.LastPurchaseTime,
		LastPurchaseSlot: u.LastPurchaseSlot,
	}
}

func (s *storedUserRecord) record() *UserRecord {
	return &UserRecord{
		PurchasedTokens:  cloneBigInt(s.PurchasedTokens),
		RefundableNative: cloneBigInt(s.RefundableNative),
		LastPurchaseTime: s.LastPurchaseTime,
		LastPurchaseSlot: s.LastPurchaseSlot,
	}
}

func newUserRecord() *UserRecord {
	return &UserRecord{
		PurchasedTokens:  big.NewInt(0),
		RefundableNative: big.NewInt(0),
	}
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
