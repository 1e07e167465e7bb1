package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	nativecommon "tokensale/native/common"
	"tokensale/native/sale"
	"tokensale/native/vesting"
)

// Initialize writes the one-time ownership record.
func (l *Ledger) Initialize(rec sale.InitRecord) error {
	return l.run("initialize", func() error {
		return l.sale.Initialize(rec)
	})
}

// ConfigureSale commits the sale window and cap parameters.
func (l *Ledger) ConfigureSale(caller common.Address, params sale.SaleParams) error {
	return l.run("configure_sale", func() error {
		return l.sale.ConfigureSale(caller, params)
	})
}

// SetRefundEnabled toggles the refund gate.
func (l *Ledger) SetRefundEnabled(caller common.Address, enabled bool) error {
	return l.run("set_refund_enabled", func() error {
		return l.sale.SetRefundEnabled(caller, enabled)
	})
}

// ConfigureSecurity commits throttle and multisig parameters.
func (l *Ledger) ConfigureSecurity(caller common.Address, cfg sale.SecurityConfig) error {
	return l.run("configure_security", func() error {
		return l.sale.ConfigureSecurity(caller, cfg)
	})
}

// ConfigurePricing commits the pricing mode and rates.
func (l *Ledger) ConfigurePricing(caller common.Address, cfg sale.PricingConfig) error {
	return l.run("configure_pricing", func() error {
		return l.sale.ConfigurePricing(caller, cfg)
	})
}

// ConfigureVesting commits the template applied to purchases and fiat
// credits.
func (l *Ledger) ConfigureVesting(caller common.Address, tpl vesting.Template) error {
	return l.run("configure_vesting", func() error {
		return l.sale.ConfigureVesting(caller, tpl)
	})
}

// ConfigureAirdropVesting commits the template applied to airdrop claims.
func (l *Ledger) ConfigureAirdropVesting(caller common.Address, tpl vesting.Template) error {
	return l.run("configure_airdrop_vesting", func() error {
		return l.sale.ConfigureAirdropVesting(caller, tpl)
	})
}

// ConfigureAirdrop commits a merkle root and claim deadline. Ownership is
// checked against the sale's initialization record; the airdrop engine has
// no owner of its own.
func (l *Ledger) ConfigureAirdrop(caller common.Address, root [32]byte, deadline uint64) error {
	return l.run("configure_airdrop", func() error {
		if err := l.sale.RequireOwner(caller); err != nil {
			return err
		}
		return l.airdrop.Configure(root, deadline)
	})
}

// SetWhitelisted updates one account's whitelist flag.
func (l *Ledger) SetWhitelisted(caller, account common.Address, value bool) error {
	return l.run("set_whitelisted", func() error {
		return l.sale.SetWhitelisted(caller, account, value)
	})
}

// SetKYCVerified updates one account's KYC flag.
func (l *Ledger) SetKYCVerified(caller, account common.Address, value bool) error {
	return l.run("set_kyc_verified", func() error {
		return l.sale.SetKYCVerified(caller, account, value)
	})
}

// SetBlacklisted updates one account's blacklist flag.
func (l *Ledger) SetBlacklisted(caller, account common.Address, value bool) error {
	return l.run("set_blacklisted", func() error {
		return l.sale.SetBlacklisted(caller, account, value)
	})
}

// SetWhitelistedBatch updates the whitelist flag for a batch of accounts.
func (l *Ledger) SetWhitelistedBatch(caller common.Address, accounts []common.Address, value bool) error {
	return l.run("set_whitelisted_batch", func() error {
		return l.sale.SetWhitelistedBatch(caller, accounts, value)
	})
}

// SetKYCVerifiedBatch updates the KYC flag for a batch of accounts.
func (l *Ledger) SetKYCVerifiedBatch(caller common.Address, accounts []common.Address, value bool) error {
	return l.run("set_kyc_verified_batch", func() error {
		return l.sale.SetKYCVerifiedBatch(caller, accounts, value)
	})
}

// SetBlacklistedBatch updates the blacklist flag for a batch of accounts.
func (l *Ledger) SetBlacklistedBatch(caller common.Address, accounts []common.Address, value bool) error {
	return l.run("set_blacklisted_batch", func() error {
		return l.sale.SetBlacklistedBatch(caller, accounts, value)
	})
}

// AddMultisigSigner registers a signer for threshold approvals.
func (l *Ledger) AddMultisigSigner(caller, signer common.Address) error {
	return l.run("add_signer", func() error {
		return l.sale.AddMultisigSigner(caller, signer)
	})
}

// RemoveMultisigSigner removes a registered signer.
func (l *Ledger) RemoveMultisigSigner(caller, signer common.Address) error {
	return l.run("remove_signer", func() error {
		return l.sale.RemoveMultisigSigner(caller, signer)
	})
}

// Pause halts purchases, refunds and claims.
func (l *Ledger) Pause(caller common.Address) error {
	return l.run("pause", func() error {
		return l.sale.Pause(caller)
	})
}

// Unpause lifts the pause flag.
func (l *Ledger) Unpause(caller common.Address) error {
	return l.run("unpause", func() error {
		return l.sale.Unpause(caller)
	})
}

// Purchase converts a native payment into vested tokens for buyer.
func (l *Ledger) Purchase(buyer common.Address, nativeAmount *big.Int) (*sale.PurchaseRecord, error) {
	var rec *sale.PurchaseRecord
	err := l.run("purchase", func() error {
		var err error
		rec, err = l.sale.Purchase(buyer, nativeAmount)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ProcessFiatPayment credits tokens for an off-chain payment.
func (l *Ledger) ProcessFiatPayment(caller, recipient common.Address, tokenAmount *big.Int, paymentID string) (*sale.PurchaseRecord, error) {
	var rec *sale.PurchaseRecord
	err := l.run("process_fiat", func() error {
		var err error
		rec, err = l.sale.ProcessFiatPayment(caller, recipient, tokenAmount, paymentID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// BatchProcessFiatPayments credits a batch of off-chain payments
// atomically.
func (l *Ledger) BatchProcessFiatPayments(caller common.Address, recipients []common.Address, amounts []*big.Int, paymentIDs []string) ([]*sale.PurchaseRecord, error) {
	var recs []*sale.PurchaseRecord
	err := l.run("process_fiat_batch", func() error {
		var err error
		recs, err = l.sale.BatchProcessFiatPayments(caller, recipients, amounts, paymentIDs)
		return err
	})
	if err != nil {
		return nil, err
	}
	return recs, nil
}

// ProcessRefund returns the account's refundable native balance after a
// failed sale.
func (l *Ledger) ProcessRefund(account common.Address) (*big.Int, error) {
	var amount *big.Int
	err := l.run("process_refund", func() error {
		var err error
		amount, err = l.sale.ProcessRefund(account)
		return err
	})
	if err != nil {
		return nil, err
	}
	return amount, nil
}

// FinalizeSale records a threshold approval for finalization and executes
// it when the threshold is met. It returns the approval count and whether
// the action executed.
func (l *Ledger) FinalizeSale(signer common.Address) (uint64, bool, error) {
	var (
		approvals uint64
		executed  bool
	)
	err := l.run("finalize_sale", func() error {
		var err error
		approvals, executed, err = l.sale.FinalizeSale(signer)
		return err
	})
	if err != nil {
		return 0, false, err
	}
	return approvals, executed, nil
}

// WithdrawUnsoldTokens records a threshold approval for the one-shot
// unsold-token sweep and executes it when the threshold is met.
func (l *Ledger) WithdrawUnsoldTokens(signer common.Address) (uint64, bool, error) {
	var (
		approvals uint64
		executed  bool
	)
	err := l.run("withdraw_unsold", func() error {
		var err error
		approvals, executed, err = l.sale.WithdrawUnsoldTokens(signer)
		return err
	})
	if err != nil {
		return 0, false, err
	}
	return approvals, executed, nil
}

// EmergencyWithdraw drains the token pool to recipient while paused.
func (l *Ledger) EmergencyWithdraw(caller, recipient common.Address) (*big.Int, error) {
	var amount *big.Int
	err := l.run("emergency_withdraw", func() error {
		var err error
		amount, err = l.sale.EmergencyWithdraw(caller, recipient)
		return err
	})
	if err != nil {
		return nil, err
	}
	return amount, nil
}

// ClaimVested releases the account's currently claimable vested tokens.
// Claims respect the sale pause flag.
func (l *Ledger) ClaimVested(account common.Address) (*big.Int, error) {
	var amount *big.Int
	err := l.run("claim_vested", func() error {
		if err := nativecommon.Guard(l.sale, sale.ModuleName); err != nil {
			return err
		}
		var err error
		amount, err = l.vesting.Claim(account)
		return err
	})
	if err != nil {
		return nil, err
	}
	return amount, nil
}

// BatchClaimVested releases claimable tokens for a batch of accounts. It
// returns the total released and the number of accounts with a non-zero
// release.
func (l *Ledger) BatchClaimVested(accounts []common.Address) (*big.Int, int, error) {
	var (
		total   *big.Int
		settled int
	)
	err := l.run("batch_claim_vested", func() error {
		if err := nativecommon.Guard(l.sale, sale.ModuleName); err != nil {
			return err
		}
		var err error
		total, settled, err = l.vesting.BatchClaim(accounts)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	return total, settled, nil
}

// ClaimAirdrop verifies a merkle-proven allotment and grants it under the
// airdrop vesting template. Claims respect the sale pause flag.
func (l *Ledger) ClaimAirdrop(account common.Address, amount *big.Int, proof [][32]byte) error {
	return l.run("claim_airdrop", func() error {
		if err := nativecommon.Guard(l.sale, sale.ModuleName); err != nil {
			return err
		}
		tpl, ok, err := l.sale.AirdropVestingTemplate()
		if err != nil {
			return err
		}
		if !ok {
			return sale.ErrSaleNotConfigured
		}
		return l.airdrop.Claim(account, amount, proof, tpl)
	})
}
