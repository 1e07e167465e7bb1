package sale

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"tokensale/core/events"
	"tokensale/native/vesting"
)

// ConfigureSale writes the sale window and caps. The running tallies and
// lifecycle flags carry over; reconfiguring a finalized sale is rejected.
func (e *Engine) ConfigureSale(caller common.Address, params SaleParams) error {
	if e == nil || e.store == nil {
		return ErrNotInitialized
	}
	if _, err := e.requireOwner(caller); err != nil {
		return err
	}
	if err := params.Validate(); err != nil {
		return err
	}
	cfg, ok, err := e.saleConfig()
	if err != nil {
		return err
	}
	if !ok {
		cfg = &SaleConfig{
			TotalSold:         big.NewInt(0),
			TotalFeeCollected: big.NewInt(0),
			RefundEnabled:     true,
		}
	}
	if cfg.Finalized {
		return ErrSaleFinalized
	}
	cfg.StartTime = params.StartTime
	cfg.EndTime = params.EndTime
	cfg.MaxPerTransaction = cloneBigInt(params.MaxPerTransaction)
	cfg.MaxPerWallet = cloneBigInt(params.MaxPerWallet)
	cfg.SoftCap = cloneBigInt(params.SoftCap)
	cfg.HardCap = cloneBigInt(params.HardCap)
	cfg.TotalSupply = cloneBigInt(params.TotalSupply)
	if err := e.putSaleConfig(cfg); err != nil {
		return err
	}
	e.emitter.Emit(events.SaleConfigUpdated{Section: "sale"})
	return nil
}

// SetRefundEnabled flips the refund gate. Finalization may have cleared it
// already; setting it back on a finalized sale is still allowed so a
// failed sale can honor late refunds.
func (e *Engine) SetRefundEnabled(caller common.Address, enabled bool) error {
	if e == nil || e.store == nil {
		return ErrNotInitialized
	}
	if _, err := e.requireOwner(caller); err != nil {
		return err
	}
	cfg, ok, err := e.saleConfig()
	if err != nil {
		return err
	}
	if !ok {
		return ErrSaleNotConfigured
	}
	cfg.RefundEnabled = enabled
	if err := e.putSaleConfig(cfg); err != nil {
		return err
	}
	e.emitter.Emit(events.SaleConfigUpdated{Section: "refund"})
	return nil
}

// ConfigureSecurity writes the purchase throttles and multisig threshold.
func (e *Engine) ConfigureSecurity(caller common.Address, cfg SecurityConfig) error {
	if e == nil || e.store == nil {
		return ErrNotInitialized
	}
	if _, err := e.requireOwner(caller); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := e.store.KVPut(securityConfigKey, cfg.stored()); err != nil {
		return err
	}
	e.emitter.Emit(events.SaleConfigUpdated{Section: "security"})
	return nil
}

// ConfigurePricing writes the conversion mode and exchange rate.
func (e *Engine) ConfigurePricing(caller common.Address, cfg PricingConfig) error {
	if e == nil || e.store == nil {
		return ErrNotInitialized
	}
	if _, err := e.requireOwner(caller); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := e.store.KVPut(pricingConfigKey, cfg.stored()); err != nil {
		return err
	}
	e.emitter.Emit(events.SaleConfigUpdated{Section: "pricing"})
	return nil
}

// ConfigureVesting writes the template applied to purchase and fiat
// grants. Existing schedules keep the parameters they were created with.
func (e *Engine) ConfigureVesting(caller common.Address, tpl vesting.Template) error {
	return e.putVestingTemplate(caller, purchaseVestingKey, "vesting", tpl)
}

// ConfigureAirdropVesting writes the template applied to airdrop grants.
func (e *Engine) ConfigureAirdropVesting(caller common.Address, tpl vesting.Template) error {
	return e.putVestingTemplate(caller, airdropVestingKey, "airdrop-vesting", tpl)
}

func (e *Engine) putVestingTemplate(caller common.Address, key []byte, section string, tpl vesting.Template) error {
	if e == nil || e.store == nil {
		return ErrNotInitialized
	}
	if _, err := e.requireOwner(caller); err != nil {
		return err
	}
	if err := tpl.Validate(); err != nil {
		return err
	}
	if err := e.store.KVPut(key, tpl); err != nil {
		return err
	}
	e.emitter.Emit(events.SaleConfigUpdated{Section: section})
	return nil
}

type statusField uint8

const (
	fieldWhitelisted statusField = iota
	fieldKYCVerified
	fieldBlacklisted
)

func (e *Engine) setStatus(account common.Address, field statusField, value bool) error {
	var zero common.Address
	if account == zero {
		return ErrZeroAddress
	}
	status, err := e.statusRecord(account)
	if err != nil {
		return err
	}
	switch field {
	case fieldWhitelisted:
		status.Whitelisted = value
	case fieldKYCVerified:
		status.KYCVerified = value
	case fieldBlacklisted:
		status.Blacklisted = value
	}
	if err := e.store.KVPut(statusKey(account), status); err != nil {
		return err
	}
	e.emitter.Emit(events.SaleUserStatus{
		Account:     account,
		Whitelisted: status.Whitelisted,
		KYCVerified: status.KYCVerified,
		Blacklisted: status.Blacklisted,
	})
	return nil
}

func (e *Engine) setStatusBatch(caller common.Address, accounts []common.Address, field statusField, value bool) error {
	if e == nil || e.store == nil {
		return ErrNotInitialized
	}
	if _, err := e.requireOwner(caller); err != nil {
		return err
	}
	for _, account := range accounts {
		if err := e.setStatus(account, field, value); err != nil {
			return err
		}
	}
	return nil
}

// SetWhitelisted marks one account's whitelist flag.
func (e *Engine) SetWhitelisted(caller, account common.Address, value bool) error {
	return e.setStatusBatch(caller, []common.Address{account}, fieldWhitelisted, value)
}

// SetKYCVerified marks one account's KYC flag.
func (e *Engine) SetKYCVerified(caller, account common.Address, value bool) error {
	return e.setStatusBatch(caller, []common.Address{account}, fieldKYCVerified, value)
}

// SetBlacklisted marks one account's blacklist flag.
func (e *Engine) SetBlacklisted(caller, account common.Address, value bool) error {
	return e.setStatusBatch(caller, []common.Address{account}, fieldBlacklisted, value)
}

// SetWhitelistedBatch marks the whitelist flag across accounts atomically.
func (e *Engine) SetWhitelistedBatch(caller common.Address, accounts []common.Address, value bool) error {
	return e.setStatusBatch(caller, accounts, fieldWhitelisted, value)
}

// SetKYCVerifiedBatch marks the KYC flag across accounts atomically.
func (e *Engine) SetKYCVerifiedBatch(caller common.Address, accounts []common.Address, value bool) error {
	return e.setStatusBatch(caller, accounts, fieldKYCVerified, value)
}

// SetBlacklistedBatch marks the blacklist flag across accounts atomically.
func (e *Engine) SetBlacklistedBatch(caller common.Address, accounts []common.Address, value bool) error {
	return e.setStatusBatch(caller, accounts, fieldBlacklisted, value)
}

// AddMultisigSigner registers a signer for the guarded actions.
func (e *Engine) AddMultisigSigner(caller, signer common.Address) error {
	if e == nil || e.store == nil {
		return ErrNotInitialized
	}
	if _, err := e.requireOwner(caller); err != nil {
		return err
	}
	if err := e.addSigner(signer); err != nil {
		return err
	}
	e.emitter.Emit(events.SaleSignerUpdated{Signer: signer, Added: true})
	return nil
}

// RemoveMultisigSigner drops a signer from the guarded actions.
func (e *Engine) RemoveMultisigSigner(caller, signer common.Address) error {
	if e == nil || e.store == nil {
		return ErrNotInitialized
	}
	if _, err := e.requireOwner(caller); err != nil {
		return err
	}
	if err := e.removeSigner(signer); err != nil {
		return err
	}
	e.emitter.Emit(events.SaleSignerUpdated{Signer: signer, Added: false})
	return nil
}
