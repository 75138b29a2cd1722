package domain

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrRateLimited       = errors.New("rate limited")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrLockHeld          = errors.New("lock already held")
	ErrValidation        = errors.New("validation failed")
	ErrMalformedTuple    = errors.New("malformed contract tuple")
	ErrWalletRejected    = errors.New("request rejected by wallet")
	ErrBatchUnsupported  = errors.New("wallet does not support batch calls")
	ErrReverted          = errors.New("transaction reverted")
	ErrPartialBatch      = errors.New("approval succeeded but action failed")
	ErrAllowanceTooLow   = errors.New("allowance below required approval")
	ErrNotRetryable      = errors.New("purchase is not awaiting retry")
	ErrDuplicateIntent   = errors.New("intent already submitted")
	ErrMissingPermission = errors.New("account lacks required role")
)

// ValidationError is a pre-flight input error. It never reaches the wallet.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid builds a ValidationError for field.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// InsufficientBalanceError reports the shortfall between the cost of an
// action and the account's token balance. Amounts are base units; the
// Display fields carry the same values formatted with the token decimals.
type InsufficientBalanceError struct {
	Required         *big.Int
	Available        *big.Int
	RequiredDisplay  string
	AvailableDisplay string
	Symbol           string
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: need %s %s, have %s %s",
		e.RequiredDisplay, e.Symbol, e.AvailableDisplay, e.Symbol)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrValidation }

// Shortfall returns Required - Available.
func (e *InsufficientBalanceError) Shortfall() *big.Int {
	return new(big.Int).Sub(e.Required, e.Available)
}

// RevertError is an on-chain revert whose custom error name could be
// recovered from the revert data. Message is the human-readable text.
type RevertError struct {
	Name    string
	Message string
}

func (e *RevertError) Error() string {
	if e.Name == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

func (e *RevertError) Unwrap() error { return ErrReverted }
