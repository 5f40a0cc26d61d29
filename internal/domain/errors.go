package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ValidationError reports bad caller input, caught before any network call.
// Always locally recoverable: correct the input and retry.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}

// NewValidationError builds a ValidationError with a formatted reason.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// AuthError reports an operation that needs a signing key the session
// does not hold.
type AuthError struct {
	Op string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s requires a signing key but the session is watch-only", e.Op)
}

// FetchError reports a failed read of ledger state. The previous snapshot
// stays untouched when this is returned.
type FetchError struct {
	Cause error
}

func (e *FetchError) Error() string {
	return "ledger fetch failed: " + e.Cause.Error()
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}

// SubmissionError reports a transaction the ledger rejected. The reason
// the ledger gave is preserved verbatim and surfaced to the caller.
type SubmissionError struct {
	TxCode  string
	OpCodes []string
	Cause   error
}

func (e *SubmissionError) Error() string {
	msg := "transaction rejected"
	if e.TxCode != "" {
		msg += ": " + e.TxCode
	}
	if len(e.OpCodes) > 0 {
		msg += " [" + strings.Join(e.OpCodes, ", ") + "]"
	}
	if e.TxCode == "" && len(e.OpCodes) == 0 && e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *SubmissionError) Unwrap() error {
	return e.Cause
}

// SlippageExceededError reports that the pool moved beyond the caller's
// tolerance between simulation and submission.
type SlippageExceededError struct {
	ReserveRatioChangePct decimal.Decimal
	TotalSharesChangePct  decimal.Decimal
	TolerancePct          decimal.Decimal
}

func (e *SlippageExceededError) Error() string {
	return fmt.Sprintf("pool moved beyond slippage tolerance %s%% (reserve ratio drift %s%%, total shares drift %s%%)",
		e.TolerancePct, e.ReserveRatioChangePct, e.TotalSharesChangePct)
}
