package ledger

import (
	"errors"
	"fmt"

	"crowdfund-ledger/internal/domain"
)

// Code is a machine-readable rejection code.
type Code string

const (
	// Campaign errors
	CodeCampaignNotFound      Code = "CAMPAIGN_NOT_FOUND"
	CodeDuplicateCampaign     Code = "DUPLICATE_CAMPAIGN"
	CodeInvalidTitle          Code = "INVALID_TITLE"
	CodeInvalidGoal           Code = "INVALID_GOAL"
	CodeInvalidDeadline       Code = "INVALID_DEADLINE"
	CodeInvalidDonationAmount Code = "INVALID_DONATION_AMOUNT"
	CodeCampaignExpired       Code = "CAMPAIGN_EXPIRED"
	CodeCampaignAlreadyFunded Code = "CAMPAIGN_ALREADY_FUNDED"

	// Token errors
	CodeTokenTransferFailed Code = "TOKEN_TRANSFER_FAILED"
	CodeInsufficientBalance Code = "INSUFFICIENT_BALANCE"

	// Pool errors
	CodeInvalidPoolName            Code = "INVALID_POOL_NAME"
	CodeInvalidPoolTarget          Code = "INVALID_POOL_TARGET"
	CodeInvalidPoolDeadline        Code = "INVALID_POOL_DEADLINE"
	CodeInvalidMetadata            Code = "INVALID_METADATA"
	CodeInvalidMultiSigConfig      Code = "INVALID_MULTISIG_CONFIG"
	CodeInvalidSignerCount         Code = "INVALID_SIGNER_COUNT"
	CodePoolNotFound               Code = "POOL_NOT_FOUND"
	CodeInvalidPoolState           Code = "INVALID_POOL_STATE"
	CodeInvalidAmount              Code = "INVALID_AMOUNT"
	CodePoolAlreadyClosed          Code = "POOL_ALREADY_CLOSED"
	CodePoolNotDisbursedOrRefunded Code = "POOL_NOT_DISBURSED_OR_REFUNDED"

	// Refund errors
	CodeRefundNotAvailable         Code = "REFUND_NOT_AVAILABLE"
	CodePoolNotExpired             Code = "POOL_NOT_EXPIRED"
	CodePoolAlreadyDisbursed       Code = "POOL_ALREADY_DISBURSED"
	CodeRefundGracePeriodNotPassed Code = "REFUND_GRACE_PERIOD_NOT_PASSED"
	CodeNoContributionToRefund     Code = "NO_CONTRIBUTION_TO_REFUND"

	// Emergency withdrawal errors
	CodeEmergencyWithdrawalAlreadyRequested Code = "EMERGENCY_WITHDRAWAL_ALREADY_REQUESTED"
	CodeEmergencyWithdrawalNotRequested     Code = "EMERGENCY_WITHDRAWAL_NOT_REQUESTED"
	CodeEmergencyWithdrawalPeriodNotPassed  Code = "EMERGENCY_WITHDRAWAL_PERIOD_NOT_PASSED"

	// Admin errors
	CodeNotInitialized             Code = "NOT_INITIALIZED"
	CodeContractAlreadyInitialized Code = "CONTRACT_ALREADY_INITIALIZED"
	CodeInvalidFee                 Code = "INVALID_FEE"
	CodeContractPaused             Code = "CONTRACT_PAUSED"
	CodeContractAlreadyPaused      Code = "CONTRACT_ALREADY_PAUSED"
	CodeContractAlreadyUnpaused    Code = "CONTRACT_ALREADY_UNPAUSED"
	CodeUnauthorized               Code = "UNAUTHORIZED"

	// Arithmetic errors
	CodeAmountOverflow Code = "AMOUNT_OVERFLOW"
)

// Category groups codes by what the caller can do about them.
type Category int

const (
	// CategoryInput covers bad arguments, missing records and wrong states.
	CategoryInput Category = iota + 1
	// CategoryInvariant covers calls that would break a contract-wide invariant.
	CategoryInvariant
	// CategoryAuth covers calls the caller is not allowed to make.
	CategoryAuth
)

func (c Category) String() string {
	switch c {
	case CategoryInput:
		return "input"
	case CategoryInvariant:
		return "invariant"
	case CategoryAuth:
		return "auth"
	default:
		return "unknown"
	}
}

// Category returns the category of the code.
func (c Code) Category() Category {
	switch c {
	case CodeUnauthorized:
		return CategoryAuth

	case CodeContractAlreadyInitialized,
		CodeContractAlreadyPaused,
		CodeContractAlreadyUnpaused,
		CodeContractPaused,
		CodeNotInitialized,
		CodeDuplicateCampaign,
		CodeEmergencyWithdrawalAlreadyRequested,
		CodeAmountOverflow:
		return CategoryInvariant

	default:
		return CategoryInput
	}
}

// Error is a rejection with a closed code. Two errors match under errors.Is
// when their codes are equal, so callers compare against the Err* sentinels.
type Error struct {
	Code  Code
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.cause)
	}
	return string(e.Code)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target carries the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// wrap returns a copy of e carrying cause.
func (e *Error) wrap(cause error) error {
	return &Error{Code: e.Code, cause: cause}
}

// CodeOf extracts the code from err.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}

// Sentinel errors, one per code.
var (
	ErrCampaignNotFound      = &Error{Code: CodeCampaignNotFound}
	ErrDuplicateCampaign     = &Error{Code: CodeDuplicateCampaign}
	ErrInvalidTitle          = &Error{Code: CodeInvalidTitle}
	ErrInvalidGoal           = &Error{Code: CodeInvalidGoal}
	ErrInvalidDeadline       = &Error{Code: CodeInvalidDeadline}
	ErrInvalidDonationAmount = &Error{Code: CodeInvalidDonationAmount}
	ErrCampaignExpired       = &Error{Code: CodeCampaignExpired}
	ErrCampaignAlreadyFunded = &Error{Code: CodeCampaignAlreadyFunded}

	ErrTokenTransferFailed = &Error{Code: CodeTokenTransferFailed}
	ErrInsufficientBalance = &Error{Code: CodeInsufficientBalance}

	ErrInvalidPoolName            = &Error{Code: CodeInvalidPoolName}
	ErrInvalidPoolTarget          = &Error{Code: CodeInvalidPoolTarget}
	ErrInvalidPoolDeadline        = &Error{Code: CodeInvalidPoolDeadline}
	ErrInvalidMetadata            = &Error{Code: CodeInvalidMetadata}
	ErrInvalidMultiSigConfig      = &Error{Code: CodeInvalidMultiSigConfig}
	ErrInvalidSignerCount         = &Error{Code: CodeInvalidSignerCount}
	ErrPoolNotFound               = &Error{Code: CodePoolNotFound}
	ErrInvalidPoolState           = &Error{Code: CodeInvalidPoolState}
	ErrInvalidAmount              = &Error{Code: CodeInvalidAmount}
	ErrPoolAlreadyClosed          = &Error{Code: CodePoolAlreadyClosed}
	ErrPoolNotDisbursedOrRefunded = &Error{Code: CodePoolNotDisbursedOrRefunded}

	ErrRefundNotAvailable         = &Error{Code: CodeRefundNotAvailable}
	ErrPoolNotExpired             = &Error{Code: CodePoolNotExpired}
	ErrPoolAlreadyDisbursed       = &Error{Code: CodePoolAlreadyDisbursed}
	ErrRefundGracePeriodNotPassed = &Error{Code: CodeRefundGracePeriodNotPassed}
	ErrNoContributionToRefund     = &Error{Code: CodeNoContributionToRefund}

	ErrEmergencyWithdrawalAlreadyRequested = &Error{Code: CodeEmergencyWithdrawalAlreadyRequested}
	ErrEmergencyWithdrawalNotRequested     = &Error{Code: CodeEmergencyWithdrawalNotRequested}
	ErrEmergencyWithdrawalPeriodNotPassed  = &Error{Code: CodeEmergencyWithdrawalPeriodNotPassed}

	ErrNotInitialized             = &Error{Code: CodeNotInitialized}
	ErrContractAlreadyInitialized = &Error{Code: CodeContractAlreadyInitialized}
	ErrInvalidFee                 = &Error{Code: CodeInvalidFee}
	ErrContractPaused             = &Error{Code: CodeContractPaused}
	ErrContractAlreadyPaused      = &Error{Code: CodeContractAlreadyPaused}
	ErrContractAlreadyUnpaused    = &Error{Code: CodeContractAlreadyUnpaused}
	ErrUnauthorized               = &Error{Code: CodeUnauthorized}

	// ErrAmountOverflow also matches domain.ErrAmountOverflow.
	ErrAmountOverflow = &Error{Code: CodeAmountOverflow, cause: domain.ErrAmountOverflow}
)

// arith maps amount arithmetic failures onto ErrAmountOverflow.
func arith(err error) error {
	if errors.Is(err, domain.ErrAmountOverflow) {
		return ErrAmountOverflow
	}
	return err
}
