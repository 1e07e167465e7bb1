package sale

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"tokensale/native/vesting"
)

// SaleInfo is the composite read view over the sale state.
type SaleInfo struct {
	Initialized   bool
	Owner         common.Address
	Token         common.Address
	FundWallet    common.Address
	FeeWallet     common.Address
	FeePercentage uint64
	Paused        bool
	Config        *SaleConfig
	Security      *SecurityConfig
	PricingMode   string
	TokenPerUsd   *big.Int
	Signers       []common.Address
}

// SaleInfo returns the composite sale view from committed state. Config
// sections left unconfigured come back nil.
func (e *Engine) SaleInfo() (*SaleInfo, error) {
	if e == nil || e.store == nil {
		return nil, ErrNotInitialized
	}
	info := &SaleInfo{PricingMode: "fallback", TokenPerUsd: big.NewInt(0)}
	init, ok, err := e.initRecord()
	if err != nil {
		return nil, err
	}
	if ok {
		info.Initialized = true
		info.Owner = init.Owner
		info.Token = init.Token
		info.FundWallet = init.FundWallet
		info.FeeWallet = init.FeeWallet
		info.FeePercentage = init.FeePercentage
	}
	paused, err := e.pausedFlag()
	if err != nil {
		return nil, err
	}
	info.Paused = paused
	cfg, ok, err := e.saleConfig()
	if err != nil {
		return nil, err
	}
	if ok {
		info.Config = cfg
	}
	sec, ok, err := e.securityConfig()
	if err != nil {
		return nil, err
	}
	if ok {
		info.Security = sec
	}
	pricing, ok, err := e.pricingConfig()
	if err != nil {
		return nil, err
	}
	if ok {
		info.PricingMode = pricing.Mode()
		info.TokenPerUsd = cloneBigInt(pricing.TokenPerUsd)
	}
	signers, err := e.signers()
	if err != nil {
		return nil, err
	}
	info.Signers = signers
	return info, nil
}

// UserInfo is the per-account read view.
type UserInfo struct {
	Address          common.Address
	Status           StatusRecord
	PurchasedTokens  *big.Int
	RefundableNative *big.Int
	LastPurchaseTime uint64
	LastPurchaseSlot uint64
}

// UserInfo returns the per-account sale view. Unknown accounts come back
// with zero balances and a cleared status record.
func (e *Engine) UserInfo(account common.Address) (*UserInfo, error) {
	if e == nil || e.store == nil {
		return nil, ErrNotInitialized
	}
	var zero common.Address
	if account == zero {
		return nil, ErrZeroAddress
	}
	status, err := e.statusRecord(account)
	if err != nil {
		return nil, err
	}
	user, err := e.userRecord(account)
	if err != nil {
		return nil, err
	}
	return &UserInfo{
		Address:          account,
		Status:           status,
		PurchasedTokens:  user.PurchasedTokens,
		RefundableNative: user.RefundableNative,
		LastPurchaseTime: user.LastPurchaseTime,
		LastPurchaseSlot: user.LastPurchaseSlot,
	}, nil
}

// PriceInfo reports the active conversion mode and the quote a purchase of
// one whole native unit would observe right now.
type PriceInfo struct {
	Mode         string
	UsdPerNative *big.Int
	TokenPerUsd  *big.Int
}

// CurrentPrice quotes one native unit under the active mode. Feed-mode
// errors (oracle unavailable, invalid price) surface to the caller.
func (e *Engine) CurrentPrice() (*PriceInfo, error) {
	if e == nil || e.store == nil {
		return nil, ErrNotInitialized
	}
	pricing, ok, err := e.pricingConfig()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSaleNotConfigured
	}
	quote, err := computeQuote(pricing, e.feed, nativeUnit.ToBig())
	if err != nil {
		return nil, err
	}
	return &PriceInfo{
		Mode:         pricing.Mode(),
		UsdPerNative: quote.UsdAmount,
		TokenPerUsd:  cloneBigInt(pricing.TokenPerUsd),
	}, nil
}

// PurchaseVestingTemplate returns the template applied to purchase grants.
func (e *Engine) PurchaseVestingTemplate() (vesting.Template, bool, error) {
	if e == nil || e.store == nil {
		return vesting.Template{}, false, ErrNotInitialized
	}
	return e.vestingTemplate(purchaseVestingKey)
}

// AirdropVestingTemplate returns the template applied to airdrop grants.
func (e *Engine) AirdropVestingTemplate() (vesting.Template, bool, error) {
	if e == nil || e.store == nil {
		return vesting.Template{}, false, ErrNotInitialized
	}
	return e.vestingTemplate(airdropVestingKey)
}
