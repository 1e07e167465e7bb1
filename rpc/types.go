package rpc

import (
	"encoding/hex"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"tokensale/core/ledger"
	"tokensale/native/sale"
	"tokensale/native/vesting"
)

var errInvalidHashLength = errors.New("hash must be 32 bytes")

type saleConfigJSON struct {
	StartTime         uint64 `json:"startTime"`
	EndTime           uint64 `json:"endTime"`
	MaxPerTransaction string `json:"maxPerTransaction"`
	MaxPerWallet      string `json:"maxPerWallet"`
	SoftCap           string `json:"softCap"`
	HardCap           string `json:"hardCap"`
	TotalSupply       string `json:"totalSupply"`
	TotalSold         string `json:"totalSold"`
	TotalFeeCollected string `json:"totalFeeCollected"`
	RefundEnabled     bool   `json:"refundEnabled"`
	Finalized         bool   `json:"finalized"`
}

type securityJSON struct {
	AntiWhaleLimit     string `json:"antiWhaleLimit"`
	CooldownSeconds    uint64 `json:"cooldownSeconds"`
	AntiBotSlotSeconds uint64 `json:"antiBotSlotSeconds"`
	MultisigThreshold  uint64 `json:"multisigThreshold"`
}

type saleInfoJSON struct {
	Initialized   bool            `json:"initialized"`
	Owner         string          `json:"owner,omitempty"`
	Token         string          `json:"token,omitempty"`
	FundWallet    string          `json:"fundWallet,omitempty"`
	FeeWallet     string          `json:"feeWallet,omitempty"`
	FeePercentage uint64          `json:"feePercentage"`
	Paused        bool            `json:"paused"`
	Config        *saleConfigJSON `json:"config,omitempty"`
	Security      *securityJSON   `json:"security,omitempty"`
	PricingMode   string          `json:"pricingMode"`
	TokenPerUsd   string          `json:"tokenPerUsd"`
	Signers       []string        `json:"signers"`
}

type statusJSON struct {
	Whitelisted bool `json:"whitelisted"`
	KYCVerified bool `json:"kycVerified"`
	Blacklisted bool `json:"blacklisted"`
	Eligible    bool `json:"eligible"`
}

type userInfoJSON struct {
	Address          string     `json:"address"`
	Status           statusJSON `json:"status"`
	PurchasedTokens  string     `json:"purchasedTokens"`
	RefundableNative string     `json:"refundableNative"`
	LastPurchaseTime uint64     `json:"lastPurchaseTime"`
	LastPurchaseSlot uint64     `json:"lastPurchaseSlot"`
}

type scheduleJSON struct {
	TotalAmount     string `json:"totalAmount"`
	ClaimedAmount   string `json:"claimedAmount"`
	StartTime       uint64 `json:"startTime"`
	Duration        uint64 `json:"duration"`
	CliffPeriod     uint64 `json:"cliffPeriod"`
	CliffPercentage uint64 `json:"cliffPercentage"`
	Active          bool   `json:"active"`
}

type purchaseJSON struct {
	ID           string `json:"id"`
	Account      string `json:"account"`
	Source       string `json:"source"`
	PaymentID    string `json:"paymentId,omitempty"`
	NativeAmount string `json:"nativeAmount"`
	UsdAmount    string `json:"usdAmount"`
	TokenAmount  string `json:"tokenAmount"`
	Timestamp    uint64 `json:"timestamp"`
}

func saleInfoFromView(info *sale.SaleInfo) *saleInfoJSON {
	out := &saleInfoJSON{
		Initialized:   info.Initialized,
		FeePercentage: info.FeePercentage,
		Paused:        info.Paused,
		PricingMode:   info.PricingMode,
		TokenPerUsd:   bigString(info.TokenPerUsd),
		Signers:       make([]string, 0, len(info.Signers)),
	}
	if info.Initialized {
		out.Owner = info.Owner.Hex()
		out.Token = info.Token.Hex()
		out.FundWallet = info.FundWallet.Hex()
		out.FeeWallet = info.FeeWallet.Hex()
	}
	if cfg := info.Config; cfg != nil {
		out.Config = &saleConfigJSON{
			StartTime:         cfg.StartTime,
			EndTime:           cfg.EndTime,
			MaxPerTransaction: bigString(cfg.MaxPerTransaction),
			MaxPerWallet:      bigString(cfg.MaxPerWallet),
			SoftCap:           bigString(cfg.SoftCap),
			HardCap:           bigString(cfg.HardCap),
			TotalSupply:       bigString(cfg.TotalSupply),
			TotalSold:         bigString(cfg.TotalSold),
			TotalFeeCollected: bigString(cfg.TotalFeeCollected),
			RefundEnabled:     cfg.RefundEnabled,
			Finalized:         cfg.Finalized,
		}
	}
	if sec := info.Security; sec != nil {
		out.Security = &securityJSON{
			AntiWhaleLimit:     bigString(sec.AntiWhaleLimit),
			CooldownSeconds:    sec.CooldownSeconds,
			AntiBotSlotSeconds: sec.AntiBotSlotSeconds,
			MultisigThreshold:  sec.MultisigThreshold,
		}
	}
	for _, signer := range info.Signers {
		out.Signers = append(out.Signers, signer.Hex())
	}
	return out
}

func userInfoFromView(info *sale.UserInfo) *userInfoJSON {
	return &userInfoJSON{
		Address: info.Address.Hex(),
		Status: statusJSON{
			Whitelisted: info.Status.Whitelisted,
			KYCVerified: info.Status.KYCVerified,
			Blacklisted: info.Status.Blacklisted,
			Eligible:    info.Status.Eligible(),
		},
		PurchasedTokens:  bigString(info.PurchasedTokens),
		RefundableNative: bigString(info.RefundableNative),
		LastPurchaseTime: info.LastPurchaseTime,
		LastPurchaseSlot: info.LastPurchaseSlot,
	}
}

func scheduleFromView(schedule *vesting.Schedule) *scheduleJSON {
	if schedule == nil {
		return nil
	}
	return &scheduleJSON{
		TotalAmount:     bigString(schedule.TotalAmount),
		ClaimedAmount:   bigString(schedule.ClaimedAmount),
		StartTime:       schedule.StartTime,
		Duration:        schedule.Duration,
		CliffPeriod:     schedule.CliffPeriod,
		CliffPercentage: schedule.CliffPercentage,
		Active:          schedule.Active,
	}
}

func purchaseFromRecord(rec *sale.PurchaseRecord) *purchaseJSON {
	if rec == nil {
		return nil
	}
	return &purchaseJSON{
		ID:           rec.ID,
		Account:      rec.Account.Hex(),
		Source:       rec.Source,
		PaymentID:    rec.PaymentID,
		NativeAmount: bigString(rec.NativeAmount),
		UsdAmount:    bigString(rec.UsdAmount),
		TokenAmount:  bigString(rec.TokenAmount),
		Timestamp:    rec.Timestamp,
	}
}

type userProfileJSON struct {
	Sale           *userInfoJSON `json:"sale"`
	Schedule       *scheduleJSON `json:"schedule,omitempty"`
	Claimable      string        `json:"claimable"`
	AirdropClaimed bool          `json:"airdropClaimed"`
}

func profileFromView(profile *ledger.UserProfile) *userProfileJSON {
	return &userProfileJSON{
		Sale:           userInfoFromView(profile.Sale),
		Schedule:       scheduleFromView(profile.Schedule),
		Claimable:      bigString(profile.Claimable),
		AirdropClaimed: profile.AirdropClaimed,
	}
}

func parseAddressList(raw []string) ([]common.Address, error) {
	accounts := make([]common.Address, 0, len(raw))
	for _, entry := range raw {
		addr, err := parseAddress(entry)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, addr)
	}
	return accounts, nil
}

func parseHash(raw string) ([32]byte, error) {
	var out [32]byte
	trimmed := raw
	if len(trimmed) >= 2 && (trimmed[:2] == "0x" || trimmed[:2] == "0X") {
		trimmed = trimmed[2:]
	}
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return out, err
	}
	if len(decoded) != 32 {
		return out, errInvalidHashLength
	}
	copy(out[:], decoded)
	return out, nil
}
