/*
errors.go - Centralized error types for the commission engine

PURPOSE:
  All domain error types in one place. Callers branch with errors.Is()
  against the sentinels; the structured types carry the context dashboards
  and batch reports need.

ERROR CATEGORIES:
  1. Resolution errors - no grid entry, or an ambiguous grid
  2. Split errors - misconfigured contract percentages
  3. Settlement errors - illegal state transitions
  4. Store errors - missing rows, optimistic concurrency conflicts

NOT AN ERROR:
  A compliance cap breach is reported as an Alert record alongside a
  successful calculation (see compliance.go). The engine never refuses to
  calculate because a rate exceeded the cap, and never hides the breach.

USAGE:
  if errors.Is(err, commission.ErrRateNotFound) {
      // flag the policy for manual review; never default to zero
  }
*/
package commission

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrRateNotFound is returned when no active grid entry matches a
	// policy. The caller decides the fallback; the resolver never guesses.
	ErrRateNotFound = errors.New("no matching commission grid entry")

	// ErrAmbiguousRate is returned when two grid entries tie on specificity
	// and validity. Ambiguity is a data defect, not a coin flip.
	ErrAmbiguousRate = errors.New("ambiguous commission grid match")

	// ErrNegativeShare is returned when a split formula produces a negative
	// party share. Indicates misconfigured contract rates.
	ErrNegativeShare = errors.New("negative commission share")

	// ErrInvalidTransition is returned for a settlement action that the
	// state machine does not permit.
	ErrInvalidTransition = errors.New("invalid settlement transition")

	// ErrVarianceExceedsTolerance is returned when approval is attempted
	// on a settlement whose variance is outside tolerance.
	ErrVarianceExceedsTolerance = errors.New("settlement variance exceeds tolerance")

	// ErrConcurrentModification is returned when an optimistic version
	// check fails on a status update.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrGridNotFound is returned when a referenced grid entry doesn't exist.
	ErrGridNotFound = errors.New("grid entry not found")

	// ErrSettlementNotFound is returned when a referenced settlement doesn't exist.
	ErrSettlementNotFound = errors.New("settlement not found")

	// ErrRecordNotFound is returned when a referenced revenue record doesn't exist.
	ErrRecordNotFound = errors.New("revenue record not found")

	// ErrTenantRequired is returned when an operation is missing its org scope.
	ErrTenantRequired = errors.New("tenant id required")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// RateNotFoundError reports the lookup that found nothing.
type RateNotFoundError struct {
	ProductType ProductType
	Provider    string
	AsOf        time.Time
}

func (e *RateNotFoundError) Error() string {
	return fmt.Sprintf("no %s grid entry for provider %q as of %s",
		e.ProductType, e.Provider, e.AsOf.Format("2006-01-02"))
}

func (e *RateNotFoundError) Unwrap() error { return ErrRateNotFound }

// AmbiguousRateError reports a specificity tie between grid entries.
type AmbiguousRateError struct {
	ProductType ProductType
	Provider    string
	EntryIDs    []GridEntryID
}

func (e *AmbiguousRateError) Error() string {
	return fmt.Sprintf("ambiguous %s grid match for provider %q: %d entries tie",
		e.ProductType, e.Provider, len(e.EntryIDs))
}

func (e *AmbiguousRateError) Unwrap() error { return ErrAmbiguousRate }

// NegativeShareError identifies which party's computed share went negative.
type NegativeShareError struct {
	SourceType SourceType
	Party      string
	Amount     Money
}

func (e *NegativeShareError) Error() string {
	return fmt.Sprintf("%s split produced negative %s share %s",
		e.SourceType, e.Party, e.Amount.StringFixed(2))
}

func (e *NegativeShareError) Unwrap() error { return ErrNegativeShare }

// InvalidTransitionError reports a rejected settlement action.
type InvalidTransitionError struct {
	From   SettlementStatus
	Action SettlementAction
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s a settlement in state %s", e.Action, e.From)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid input or data
// configuration rather than an infrastructure failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrRateNotFound) ||
		errors.Is(err, ErrAmbiguousRate) ||
		errors.Is(err, ErrNegativeShare) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrVarianceExceedsTolerance) ||
		errors.Is(err, ErrTenantRequired)
}

// IsNotFound returns true if the error indicates a missing row.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrGridNotFound) ||
		errors.Is(err, ErrSettlementNotFound) ||
		errors.Is(err, ErrRecordNotFound)
}

// IsRetryable returns true if the operation might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}
