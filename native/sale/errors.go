package sale

import (
	"errors"

	"tokensale/core/state"
	"tokensale/native/airdrop"
	"tokensale/native/common"
	"tokensale/native/vesting"
)

var (
	// ErrNotInitialized indicates an operation before Initialize ran.
	ErrNotInitialized = errors.New("sale: not initialized")
	// ErrAlreadyInitialized indicates a repeated Initialize call.
	ErrAlreadyInitialized = errors.New("sale: already initialized")
	// ErrZeroAddress indicates a required address parameter left at zero.
	ErrZeroAddress = errors.New("sale: zero address")
	// ErrFeeTooHigh indicates a fee above the 10% (1000 bps) cap.
	ErrFeeTooHigh = errors.New("sale: fee percentage above cap")
	// ErrUnauthorized indicates a caller without the owner capability.
	ErrUnauthorized = errors.New("sale: caller is not the owner")
	// ErrUnauthorizedSigner indicates an approval by an unregistered signer.
	ErrUnauthorizedSigner = errors.New("sale: caller is not a multisig signer")
	// ErrNotEligible indicates the whitelist/KYC/blacklist triple failed.
	ErrNotEligible = errors.New("sale: account not eligible")
	// ErrRateLimited indicates a second purchase within the same execution slot.
	ErrRateLimited = errors.New("sale: rate limited")
	// ErrCooldownActive indicates a purchase inside the cooldown window.
	ErrCooldownActive = errors.New("sale: cooldown active")
	// ErrSaleNotConfigured indicates sale, security or pricing records are missing.
	ErrSaleNotConfigured = errors.New("sale: not configured")
	// ErrSaleNotActive indicates the clock is outside the sale window.
	ErrSaleNotActive = errors.New("sale: not active")
	// ErrSaleFinalized indicates a purchase path after finalization.
	ErrSaleFinalized = errors.New("sale: already finalized")
	// ErrNotFinalized indicates a withdrawal before finalization.
	ErrNotFinalized = errors.New("sale: not finalized")
	// ErrUnsoldWithdrawn indicates a second unsold-supply withdrawal.
	ErrUnsoldWithdrawn = errors.New("sale: unsold supply already withdrawn")
	// ErrExceedsMaxPerTransaction is the first check of the purchase validation order.
	ErrExceedsMaxPerTransaction = errors.New("sale: exceeds max per transaction")
	// ErrExceedsAntiWhaleLimit is the second check of the purchase validation order.
	ErrExceedsAntiWhaleLimit = errors.New("sale: exceeds anti-whale limit")
	// ErrExceedsMaxPerWallet is the third check of the purchase validation order.
	ErrExceedsMaxPerWallet = errors.New("sale: exceeds max per wallet")
	// ErrExceedsHardCap is the fourth check of the purchase validation order.
	ErrExceedsHardCap = errors.New("sale: exceeds hard cap")
	// ErrExceedsTotalSupply is the fifth check of the purchase validation order.
	ErrExceedsTotalSupply = errors.New("sale: exceeds total supply")
	// ErrInvalidAmount indicates a nil, negative or dust amount.
	ErrInvalidAmount = errors.New("sale: invalid amount")
	// ErrAmountOverflow indicates fixed-point arithmetic left the 256-bit range.
	ErrAmountOverflow = errors.New("sale: amount overflow")
	// ErrOracleUnavailable indicates feed mode without a usable feed.
	ErrOracleUnavailable = errors.New("sale: price oracle unavailable")
	// ErrInvalidPrice indicates the feed returned a non-positive price.
	ErrInvalidPrice = errors.New("sale: invalid oracle price")
	// ErrRefundsDisabled indicates the refund gate is off.
	ErrRefundsDisabled = errors.New("sale: refunds disabled")
	// ErrRefundConditionsNotMet indicates the sale outcome does not allow refunds.
	ErrRefundConditionsNotMet = errors.New("sale: refund conditions not met")
	// ErrNoRefund indicates a zero refund credit.
	ErrNoRefund = errors.New("sale: no refund credit")
	// ErrPaymentProcessed indicates a reused fiat payment identifier.
	ErrPaymentProcessed = errors.New("sale: payment already processed")
	// ErrInvalidPaymentID indicates an empty fiat payment identifier.
	ErrInvalidPaymentID = errors.New("sale: invalid payment id")
	// ErrLengthMismatch indicates batch arrays of different lengths.
	ErrLengthMismatch = errors.New("sale: array length mismatch")
	// ErrInvalidConfig indicates a configuration record that fails validation.
	ErrInvalidConfig = errors.New("sale: invalid configuration")
	// ErrSignerExists indicates registering an already-registered signer.
	ErrSignerExists = errors.New("sale: signer already registered")
	// ErrSignerUnknown indicates removing a signer that is not registered.
	ErrSignerUnknown = errors.New("sale: signer not registered")
	// ErrNotPaused indicates an emergency withdrawal while the sale is live.
	ErrNotPaused = errors.New("sale: not paused")
)

// Kind is the coarse failure taxonomy surfaced to callers, so a UI can
// distinguish retryable failures (cooldown) from permanent ones (proof
// invalid) from operator problems (oracle unavailable).
type Kind uint8

const (
	KindInternal Kind = iota
	KindInvalidArgument
	KindUnauthorized
	KindStateViolation
	KindExternalDependency
	KindReplayRejected
	KindProofInvalid
)

// String returns the taxonomy label.
func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid_argument"
	case KindUnauthorized:
		return "unauthorized"
	case KindStateViolation:
		return "state_violation"
	case KindExternalDependency:
		return "external_dependency_failure"
	case KindReplayRejected:
		return "replay_rejected"
	case KindProofInvalid:
		return "proof_invalid"
	default:
		return "internal"
	}
}

var kindTable = []struct {
	err  error
	kind Kind
}{
	{ErrZeroAddress, KindInvalidArgument},
	{ErrFeeTooHigh, KindInvalidArgument},
	{ErrInvalidAmount, KindInvalidArgument},
	{ErrLengthMismatch, KindInvalidArgument},
	{ErrInvalidConfig, KindInvalidArgument},
	{ErrAmountOverflow, KindInvalidArgument},
	{vesting.ErrInvalidAmount, KindInvalidArgument},
	{vesting.ErrInvalidTemplate, KindInvalidArgument},
	{vesting.ErrNoAccounts, KindInvalidArgument},
	{airdrop.ErrLeafAmount, KindInvalidArgument},
	{airdrop.ErrInvalidRoot, KindInvalidArgument},
	{state.ErrInvalidAmount, KindInvalidArgument},
	{ErrInvalidPaymentID, KindInvalidArgument},

	{ErrUnauthorized, KindUnauthorized},
	{ErrUnauthorizedSigner, KindUnauthorized},
	{ErrNotEligible, KindUnauthorized},

	{ErrNotInitialized, KindStateViolation},
	{ErrAlreadyInitialized, KindStateViolation},
	{ErrRateLimited, KindStateViolation},
	{ErrCooldownActive, KindStateViolation},
	{ErrSaleNotConfigured, KindStateViolation},
	{ErrSaleNotActive, KindStateViolation},
	{ErrSaleFinalized, KindStateViolation},
	{ErrNotFinalized, KindStateViolation},
	{ErrUnsoldWithdrawn, KindStateViolation},
	{ErrExceedsMaxPerTransaction, KindStateViolation},
	{ErrExceedsAntiWhaleLimit, KindStateViolation},
	{ErrExceedsMaxPerWallet, KindStateViolation},
	{ErrExceedsHardCap, KindStateViolation},
	{ErrExceedsTotalSupply, KindStateViolation},
	{ErrRefundsDisabled, KindStateViolation},
	{ErrRefundConditionsNotMet, KindStateViolation},
	{ErrNoRefund, KindStateViolation},
	{ErrSignerExists, KindStateViolation},
	{ErrSignerUnknown, KindStateViolation},
	{ErrNotPaused, KindStateViolation},
	{common.ErrModulePaused, KindStateViolation},
	{common.ErrOperationInProgress, KindStateViolation},
	{vesting.ErrNothingToClaim, KindStateViolation},
	{vesting.ErrScheduleConflict, KindStateViolation},
	{airdrop.ErrNotConfigured, KindStateViolation},
	{airdrop.ErrExpired, KindStateViolation},
	{state.ErrInsufficientFunds, KindStateViolation},

	{ErrOracleUnavailable, KindExternalDependency},
	{ErrInvalidPrice, KindExternalDependency},

	{ErrPaymentProcessed, KindReplayRejected},
	{airdrop.ErrAlreadyClaimed, KindReplayRejected},

	{airdrop.ErrInvalidProof, KindProofInvalid},
}

// KindOf classifies an error from any ledger operation into the taxonomy.
// Unknown errors classify as internal.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	for _, entry := range kindTable {
		if errors.Is(err, entry.err) {
			return entry.kind
		}
	}
	return KindInternal
}
