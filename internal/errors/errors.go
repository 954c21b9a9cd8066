// Package errors provides the domain error taxonomy from §7: validation,
// risk-denied, transient/permanent exchange failure, and invariant
// violation. Callers classify with errors.As / errors.Is against the
// sentinels and typed errors below rather than string-matching messages.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors.
var (
	ErrNotFound            = errors.New("not found")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrInvalidOrder        = errors.New("invalid order")
	ErrOrderRejected       = errors.New("order rejected")
	ErrPositionNotFound    = errors.New("position not found")
	ErrSymbolNotFound      = errors.New("symbol not found")
	ErrRateLimited         = errors.New("rate limited")
	ErrConnectionFailed    = errors.New("connection failed")
	ErrTimeout             = errors.New("operation timed out")
	ErrConfigInvalid       = errors.New("invalid configuration")
	ErrDatabaseError       = errors.New("database error")
	ErrInputValidation     = errors.New("input validation failed")
	ErrCredentialAccess    = errors.New("credential access denied")
	ErrAlreadyResolved     = errors.New("pending decision already resolved")
	ErrDuplicatePending    = errors.New("a pending decision already exists for this model and coin")
	ErrInvariantViolation  = errors.New("invariant violation")
)

// ExchangeErrorKind classifies an exchange call failure per §6/§7.
type ExchangeErrorKind string

const (
	ExchangeErrAuth           ExchangeErrorKind = "auth"
	ExchangeErrInsufficient   ExchangeErrorKind = "insufficient_funds"
	ExchangeErrSymbolFilter   ExchangeErrorKind = "symbol_filter"
	ExchangeErrRateLimit      ExchangeErrorKind = "rate_limit"
	ExchangeErrNetwork        ExchangeErrorKind = "network"
	ExchangeErrOther          ExchangeErrorKind = "other"
)

// Transient reports whether this kind of exchange failure should be
// treated as transient (incident, continue with next coin) rather than
// permanent (incident, skip coin, no remediation). Network and rate-limit
// failures are transient; everything else is permanent.
func (k ExchangeErrorKind) Transient() bool {
	return k == ExchangeErrNetwork || k == ExchangeErrRateLimit
}

// ExchangeError is returned by internal/exchange call sites.
type ExchangeError struct {
	Kind    ExchangeErrorKind
	Code    string
	Message string
	Err     error
}

func (e *ExchangeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("exchange error [%s/%s]: %s: %v", e.Kind, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("exchange error [%s/%s]: %s", e.Kind, e.Code, e.Message)
}

func (e *ExchangeError) Unwrap() error { return e.Err }

// NewExchangeError builds an ExchangeError.
func NewExchangeError(kind ExchangeErrorKind, code, message string, err error) *ExchangeError {
	return &ExchangeError{Kind: kind, Code: code, Message: message, Err: err}
}

// RiskDeniedError is not a Go error in the failure sense — it is the
// structured reason a RiskManager check returned deny. It implements
// error so callers that want to propagate a denial through an error-
// returning signature can, but the ordinary path is the bool/reason
// return described in §4.1.
type RiskDeniedError struct {
	Rule    string
	Message string
}

func (e *RiskDeniedError) Error() string {
	return fmt.Sprintf("risk denied [%s]: %s", e.Rule, e.Message)
}

// NewRiskDeniedError builds a RiskDeniedError.
func NewRiskDeniedError(rule, message string) *RiskDeniedError {
	return &RiskDeniedError{Rule: rule, Message: message}
}

// ValidationError represents an input rejected before any side effect.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// InvariantError signals a storage read revealed inconsistent state (e.g.
// a negative position quantity). Severity is always critical; the caller
// is expected to pause the model's scheduler entry.
type InvariantError struct {
	ModelID int64
	Detail  string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violation (model %d): %s", e.ModelID, e.Detail)
}

func (e *InvariantError) Unwrap() error { return ErrInvariantViolation }

// NewInvariantError builds an InvariantError.
func NewInvariantError(modelID int64, detail string) *InvariantError {
	return &InvariantError{ModelID: modelID, Detail: detail}
}

// SecurityError represents a credential or encryption failure.
type SecurityError struct {
	Operation string
	Reason    string
	Err       error
}

func (e *SecurityError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("security error [%s]: %s: %v", e.Operation, e.Reason, e.Err)
	}
	return fmt.Sprintf("security error [%s]: %s", e.Operation, e.Reason)
}

func (e *SecurityError) Unwrap() error { return e.Err }

// NewSecurityError creates a new SecurityError.
func NewSecurityError(operation, reason string, err error) *SecurityError {
	return &SecurityError{Operation: operation, Reason: reason, Err: err}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return errors.Is(err, target) }

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool { return errors.As(err, target) }
