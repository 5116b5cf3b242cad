// Package apperr defines the error kinds trade execution can surface.
//
// Every structured error unwraps to one of the sentinel kinds so callers can
// branch with errors.Is and pull details with errors.As.
package apperr

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrValidation           = errors.New("validation_error")
	ErrNotFound             = errors.New("not_found")
	ErrPermission           = errors.New("permission_denied")
	ErrStalePrice           = errors.New("stale_price")
	ErrPriceUnavailable     = errors.New("price_unavailable")
	ErrInsufficientFunds    = errors.New("insufficient_funds")
	ErrInsufficientHoldings = errors.New("insufficient_holdings")
	ErrConcurrencyConflict  = errors.New("concurrency_conflict")
)

// Validation returns an ErrValidation wrapping a formatted message.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFound returns an ErrNotFound for the named entity.
func NotFound(entity, id string) error {
	return fmt.Errorf("%w: %s %q", ErrNotFound, entity, id)
}

// PermissionError explains why a symbol is not tradable for an account.
type PermissionError struct {
	Symbol string
	Reason string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("symbol %s not tradable: %s", e.Symbol, e.Reason)
}

func (e *PermissionError) Unwrap() error { return ErrPermission }

// StalePriceError reports a stored price older than the freshness window.
// LastUpdate is zero when the symbol was never priced.
type StalePriceError struct {
	Symbol     string
	LastUpdate time.Time
	Window     time.Duration
}

func (e *StalePriceError) Error() string {
	if e.LastUpdate.IsZero() {
		return fmt.Sprintf("price for %s has never been collected", e.Symbol)
	}
	return fmt.Sprintf("price for %s last updated %s, older than %s", e.Symbol, e.LastUpdate.UTC().Format(time.RFC3339), e.Window)
}

func (e *StalePriceError) Unwrap() error { return ErrStalePrice }

// PriceUnavailableError means no provider returned a usable quote.
type PriceUnavailableError struct {
	Symbol   string
	Attempts int
}

func (e *PriceUnavailableError) Error() string {
	return fmt.Sprintf("no price available for %s after %d attempts", e.Symbol, e.Attempts)
}

func (e *PriceUnavailableError) Unwrap() error { return ErrPriceUnavailable }

// InsufficientFundsError carries the cash shortfall of a buy.
type InsufficientFundsError struct {
	Cash     decimal.Decimal
	Required decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: cash %s, required %s", e.Cash.String(), e.Required.String())
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// InsufficientHoldingsError carries the held and requested quantities of a sell.
type InsufficientHoldingsError struct {
	Symbol    string
	Held      int64
	Requested int64
}

func (e *InsufficientHoldingsError) Error() string {
	return fmt.Sprintf("insufficient holdings of %s: held %d, requested %d", e.Symbol, e.Held, e.Requested)
}

func (e *InsufficientHoldingsError) Unwrap() error { return ErrInsufficientHoldings }

// ConflictError is a retryable failure of the atomic section.
type ConflictError struct {
	Reason string
	// Err is the cause, such as the caller's context ending while waiting.
	Err error
}

func (e *ConflictError) Error() string {
	return "concurrency conflict: " + e.Reason
}

func (e *ConflictError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrConcurrencyConflict}
	}
	return []error{ErrConcurrencyConflict, e.Err}
}

// Retryable is always true; nothing was mutated.
func (e *ConflictError) Retryable() bool { return true }

// IsRetryable reports whether err may succeed if submitted again.
func IsRetryable(err error) bool {
	var r interface{ Retryable() bool }
	return errors.As(err, &r) && r.Retryable()
}
