package events

import (
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"tokensale/core/types"
)

const (
	// TypeSaleInitialized is emitted exactly once when the sale ledger is set up.
	TypeSaleInitialized = "sale.initialized"
	// TypeSalePurchase is emitted for every committed native-currency purchase.
	TypeSalePurchase = "sale.purchase"
	// TypeSaleFeeCollected is emitted when a purchase fee reaches the fee wallet.
	TypeSaleFeeCollected = "sale.fee_collected"
	// TypeSaleFiatPayment is emitted for every committed fiat credit.
	TypeSaleFiatPayment = "sale.fiat_payment"
	// TypeSaleRefund is emitted when a refund credit is paid out.
	TypeSaleRefund = "sale.refund"
	// TypeSaleFinalized is emitted when the multisig finalizes the sale.
	TypeSaleFinalized = "sale.finalized"
	// TypeSaleUnsoldWithdrawn is emitted when unsold supply leaves the pool.
	TypeSaleUnsoldWithdrawn = "sale.unsold_withdrawn"
	// TypeSaleEmergencyWithdrawal is emitted on an owner emergency drain.
	TypeSaleEmergencyWithdrawal = "sale.emergency_withdrawal"
	// TypeSaleConfigUpdated is emitted when an owner rewrites a config record.
	TypeSaleConfigUpdated = "sale.config_updated"
	// TypeSaleUserStatus is emitted when an owner edits an account's status.
	TypeSaleUserStatus = "sale.user_status"
	// TypeSaleSignerUpdated is emitted when the multisig signer set changes.
	TypeSaleSignerUpdated = "sale.signer_updated"
	// TypeSalePaused / TypeSaleUnpaused mark the pause gate flipping.
	TypeSalePaused   = "sale.paused"
	TypeSaleUnpaused = "sale.unpaused"
	// TypeSaleMultisigApproval records a single approval toward an action.
	TypeSaleMultisigApproval = "sale.multisig_approval"
)

func bigAttr(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// SaleInitialized is emitted once the initialization record is written.
type SaleInitialized struct {
	Owner         common.Address
	Token         common.Address
	FundWallet    common.Address
	FeeWallet     common.Address
	FeePercentage uint64
}

func (SaleInitialized) EventType() string { return TypeSaleInitialized }

func (e SaleInitialized) Event() *types.Event {
	return &types.Event{
		Type: TypeSaleInitialized,
		Attributes: map[string]string{
			"owner":         e.Owner.Hex(),
			"token":         e.Token.Hex(),
			"fundWallet":    e.FundWallet.Hex(),
			"feeWallet":     e.FeeWallet.Hex(),
			"feePercentage": strconv.FormatUint(e.FeePercentage, 10),
		},
	}
}

// SalePurchase carries the amounts of a committed purchase.
type SalePurchase struct {
	PurchaseID   string
	Buyer        common.Address
	NativeAmount *big.Int
	UsdAmount    *big.Int
	TokenAmount  *big.Int
	TotalSold    *big.Int
}

func (SalePurchase) EventType() string { return TypeSalePurchase }

func (e SalePurchase) Event() *types.Event {
	return &types.Event{
		Type: TypeSalePurchase,
		Attributes: map[string]string{
			"purchaseId":   strings.TrimSpace(e.PurchaseID),
			"buyer":        e.Buyer.Hex(),
			"nativeAmount": bigAttr(e.NativeAmount),
			"usdAmount":    bigAttr(e.UsdAmount),
			"tokenAmount":  bigAttr(e.TokenAmount),
			"totalSold":    bigAttr(e.TotalSold),
		},
	}
}

// SaleFeeCollected reports the fee slice of a purchase.
type SaleFeeCollected struct {
	Buyer     common.Address
	FeeWallet common.Address
	Amount    *big.Int
}

func (SaleFeeCollected) EventType() string { return TypeSaleFeeCollected }

func (e SaleFeeCollected) Event() *types.Event {
	return &types.Event{
		Type: TypeSaleFeeCollected,
		Attributes: map[string]string{
			"buyer":     e.Buyer.Hex(),
			"feeWallet": e.FeeWallet.Hex(),
			"amount":    bigAttr(e.Amount),
		},
	}
}

// SaleFiatPayment reports an owner-credited fiat purchase.
type SaleFiatPayment struct {
	PaymentID   string
	Recipient   common.Address
	TokenAmount *big.Int
	Batch       bool
}

func (SaleFiatPayment) EventType() string { return TypeSaleFiatPayment }

func (e SaleFiatPayment) Event() *types.Event {
	return &types.Event{
		Type: TypeSaleFiatPayment,
		Attributes: map[string]string{
			"paymentId":   strings.TrimSpace(e.PaymentID),
			"recipient":   e.Recipient.Hex(),
			"tokenAmount": bigAttr(e.TokenAmount),
			"batch":       strconv.FormatBool(e.Batch),
		},
	}
}

// SaleRefund reports a paid-out refund credit.
type SaleRefund struct {
	Account common.Address
	Amount  *big.Int
}

func (SaleRefund) EventType() string { return TypeSaleRefund }

func (e SaleRefund) Event() *types.Event {
	return &types.Event{
		Type: TypeSaleRefund,
		Attributes: map[string]string{
			"account": e.Account.Hex(),
			"amount":  bigAttr(e.Amount),
		},
	}
}

// SaleFinalized marks the one-way finalization of the sale.
type SaleFinalized struct {
	TotalSold     *big.Int
	SoftCapMet    bool
	FundsSwept    *big.Int
	RefundEnabled bool
}

func (SaleFinalized) EventType() string { return TypeSaleFinalized }

func (e SaleFinalized) Event() *types.Event {
	return &types.Event{
		Type: TypeSaleFinalized,
		Attributes: map[string]string{
			"totalSold":     bigAttr(e.TotalSold),
			"softCapMet":    strconv.FormatBool(e.SoftCapMet),
			"fundsSwept":    bigAttr(e.FundsSwept),
			"refundEnabled": strconv.FormatBool(e.RefundEnabled),
		},
	}
}

// SaleUnsoldWithdrawn reports the post-finalization sweep of unsold supply.
type SaleUnsoldWithdrawn struct {
	Recipient common.Address
	Amount    *big.Int
}

func (SaleUnsoldWithdrawn) EventType() string { return TypeSaleUnsoldWithdrawn }

func (e SaleUnsoldWithdrawn) Event() *types.Event {
	return &types.Event{
		Type: TypeSaleUnsoldWithdrawn,
		Attributes: map[string]string{
			"recipient": e.Recipient.Hex(),
			"amount":    bigAttr(e.Amount),
		},
	}
}

// SaleEmergencyWithdrawal reports an owner draining the token pool while paused.
type SaleEmergencyWithdrawal struct {
	Recipient common.Address
	Amount    *big.Int
}

func (SaleEmergencyWithdrawal) EventType() string { return TypeSaleEmergencyWithdrawal }

func (e SaleEmergencyWithdrawal) Event() *types.Event {
	return &types.Event{
		Type: TypeSaleEmergencyWithdrawal,
		Attributes: map[string]string{
			"recipient": e.Recipient.Hex(),
			"amount":    bigAttr(e.Amount),
		},
	}
}

// SaleConfigUpdated names the configuration record an owner rewrote.
type SaleConfigUpdated struct {
	Section string
}

func (SaleConfigUpdated) EventType() string { return TypeSaleConfigUpdated }

func (e SaleConfigUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeSaleConfigUpdated,
		Attributes: map[string]string{
			"section": strings.TrimSpace(e.Section),
		},
	}
}

// SaleUserStatus reports an owner edit to an account's eligibility record.
type SaleUserStatus struct {
	Account     common.Address
	Whitelisted bool
	KYCVerified bool
	Blacklisted bool
}

func (SaleUserStatus) EventType() string { return TypeSaleUserStatus }

func (e SaleUserStatus) Event() *types.Event {
	return &types.Event{
		Type: TypeSaleUserStatus,
		Attributes: map[string]string{
			"account":     e.Account.Hex(),
			"whitelisted": strconv.FormatBool(e.Whitelisted),
			"kycVerified": strconv.FormatBool(e.KYCVerified),
			"blacklisted": strconv.FormatBool(e.Blacklisted),
		},
	}
}

// SaleSignerUpdated reports a multisig signer registration change.
type SaleSignerUpdated struct {
	Signer common.Address
	Added  bool
}

func (SaleSignerUpdated) EventType() string { return TypeSaleSignerUpdated }

func (e SaleSignerUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeSaleSignerUpdated,
		Attributes: map[string]string{
			"signer": e.Signer.Hex(),
			"added":  strconv.FormatBool(e.Added),
		},
	}
}

// SalePaused / SaleUnpaused mark the pause gate flipping.
type SalePaused struct{}

func (SalePaused) EventType() string { return TypeSalePaused }

func (SalePaused) Event() *types.Event {
	return &types.Event{Type: TypeSalePaused, Attributes: map[string]string{}}
}

type SaleUnpaused struct{}

func (SaleUnpaused) EventType() string { return TypeSaleUnpaused }

func (SaleUnpaused) Event() *types.Event {
	return &types.Event{Type: TypeSaleUnpaused, Attributes: map[string]string{}}
}

// SaleMultisigApproval records one approval call toward a guarded action.
type SaleMultisigApproval struct {
	Signer    common.Address
	ActionID  string
	Approvals uint64
	Threshold uint64
	Executed  bool
}

func (SaleMultisigApproval) EventType() string { return TypeSaleMultisigApproval }

func (e SaleMultisigApproval) Event() *types.Event {
	return &types.Event{
		Type: TypeSaleMultisigApproval,
		Attributes: map[string]string{
			"signer":    e.Signer.Hex(),
			"actionId":  strings.TrimSpace(e.ActionID),
			"approvals": strconv.FormatUint(e.Approvals, 10),
			"threshold": strconv.FormatUint(e.Threshold, 10),
			"executed":  strconv.FormatBool(e.Executed),
		},
	}
}
