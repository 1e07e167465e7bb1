package sale

import "math/big"

// validatePurchase runs the capacity checks in their fixed order:
// per-transaction limit, anti-whale limit, per-wallet limit, hard cap,
// total supply. The first failing check decides the error.
func validatePurchase(cfg *SaleConfig, sec *SecurityConfig, user *UserRecord, tokenAmount *big.Int) error {
	if tokenAmount == nil || tokenAmount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if tokenAmount.Cmp(cfg.MaxPerTransaction) > 0 {
		return ErrExceedsMaxPerTransaction
	}
	if tokenAmount.Cmp(sec.AntiWhaleLimit) > 0 {
		return ErrExceedsAntiWhaleLimit
	}
	walletTotal := new(big.Int).Add(user.PurchasedTokens, tokenAmount)
	if walletTotal.Cmp(cfg.MaxPerWallet) > 0 {
		return ErrExceedsMaxPerWallet
	}
	soldTotal := new(big.Int).Add(cfg.TotalSold, tokenAmount)
	if soldTotal.Cmp(cfg.HardCap) > 0 {
		return ErrExceedsHardCap
	}
	if soldTotal.Cmp(cfg.TotalSupply) > 0 {
		return ErrExceedsTotalSupply
	}
	return nil
}

// checkThrottles enforces the per-slot rate limit and the cooldown window
// against the caller's last committed purchase.
func checkThrottles(sec *SecurityConfig, user *UserRecord, now uint64) error {
	slot := purchaseSlot(sec, now)
	if user.LastPurchaseSlot > 0 && slot <= user.LastPurchaseSlot {
		return ErrRateLimited
	}
	if now < user.LastPurchaseTime+sec.CooldownSeconds {
		return ErrCooldownActive
	}
	return nil
}

// purchaseSlot computes the rate-limit slot a purchase at the given time
// lands in.
func purchaseSlot(sec *SecurityConfig, now uint64) uint64 {
	slotSeconds := sec.AntiBotSlotSeconds
	if slotSeconds == 0 {
		slotSeconds = DefaultAntiBotSlotSeconds
	}
	return now / slotSeconds
}
