/*
settlement.go - Insurer statement reconciliation

PURPOSE:
  Each period an insurer reports what it settled. The reconciler compares
  that against the sum of our calculated revenue records for the same
  insurer and period, computes the variance, and drives an explicit status
  lifecycle:

    Pending ──approve──▶ Reconciled        (variance within tolerance)
    Pending ──dispute──▶ Disputed
    Disputed ─resubmit─▶ Pending           (corrected statement, re-evaluated)

  Reconciled is terminal. Disputed is NOT terminal: it is an open
  exception. Disputed never moves straight to Reconciled; a corrected
  statement must pass back through Pending and re-evaluation.

PURITY:
  Reconcile() only computes {variance, suggested status}. The actual
  transition is a separate action carrying the actor, so the audit trail
  records who moved state and when.
*/
package commission

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// SETTLEMENT
// =============================================================================

// SettlementStatus is the reconciliation lifecycle state.
type SettlementStatus string

const (
	SettlementPending    SettlementStatus = "pending"
	SettlementReconciled SettlementStatus = "reconciled"
	SettlementDisputed   SettlementStatus = "disputed"
)

// SettlementAction is an explicit, audited state change request.
type SettlementAction string

const (
	ActionApprove  SettlementAction = "approve"
	ActionDispute  SettlementAction = "dispute"
	ActionResubmit SettlementAction = "resubmit"
)

// Settlement matches an insurer statement against expected totals for one
// (insurer, period) pair. Period is the first day of the statement month.
type Settlement struct {
	ID       SettlementID
	TenantID TenantID
	Insurer  string
	Period   time.Time

	Expected Money // sum of revenue records for insurer+period
	Received Money // insurer-reported amount
	Variance Money // Received - Expected

	Status     SettlementStatus
	ApprovedBy string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ActionRecord is one audit entry of a state change.
type ActionRecord struct {
	SettlementID SettlementID
	Action       SettlementAction
	Actor        string
	Note         string
	At           time.Time
}

// =============================================================================
// RECONCILER
// =============================================================================

// ReconcileResult is the pure output of comparing a statement.
type ReconcileResult struct {
	Variance        Money
	SuggestedStatus SettlementStatus
	WithinTolerance bool
}

// Reconciler evaluates settlements against a variance tolerance expressed
// as a fraction of the expected amount (0.005 = 0.5%).
type Reconciler struct {
	Tolerance decimal.Decimal
}

// DefaultTolerance allows variance up to 0.5% of expected.
var DefaultTolerance = decimal.RequireFromString("0.005")

func NewReconciler(tolerance decimal.Decimal) *Reconciler {
	if tolerance.IsNegative() {
		tolerance = decimal.Zero
	}
	return &Reconciler{Tolerance: tolerance}
}

// Reconcile computes variance and a suggested status. It mutates nothing:
// the caller applies a transition via Apply with an explicit action.
func (rc *Reconciler) Reconcile(s Settlement) ReconcileResult {
	variance := s.Received.Sub(s.Expected)
	allowed := s.Expected.Abs().Mul(rc.Tolerance)
	within := variance.Abs().LessThanOrEqual(allowed)

	suggested := SettlementDisputed
	if within {
		suggested = SettlementReconciled
	}
	return ReconcileResult{Variance: variance, SuggestedStatus: suggested, WithinTolerance: within}
}

// Apply executes an explicit action against a settlement and returns the
// updated settlement plus the audit record. Illegal transitions return
// InvalidTransitionError; approving outside tolerance returns
// ErrVarianceExceedsTolerance. The input settlement is not mutated.
func (rc *Reconciler) Apply(s Settlement, action SettlementAction, actor string, correctedReceived *Money, at time.Time) (Settlement, ActionRecord, error) {
	rec := ActionRecord{SettlementID: s.ID, Action: action, Actor: actor, At: at}

	switch action {
	case ActionApprove:
		if s.Status != SettlementPending {
			return s, rec, &InvalidTransitionError{From: s.Status, Action: action}
		}
		if !rc.Reconcile(s).WithinTolerance {
			return s, rec, ErrVarianceExceedsTolerance
		}
		s.Status = SettlementReconciled
		s.ApprovedBy = actor

	case ActionDispute:
		if s.Status != SettlementPending {
			return s, rec, &InvalidTransitionError{From: s.Status, Action: action}
		}
		s.Status = SettlementDisputed

	case ActionResubmit:
		if s.Status != SettlementDisputed {
			return s, rec, &InvalidTransitionError{From: s.Status, Action: action}
		}
		if correctedReceived != nil {
			s.Received = RoundMoney(*correctedReceived)
		}
		s.Variance = s.Received.Sub(s.Expected)
		s.Status = SettlementPending
		s.ApprovedBy = ""

	default:
		return s, rec, &InvalidTransitionError{From: s.Status, Action: action}
	}

	s.UpdatedAt = at
	return s, rec, nil
}

// NewSettlement creates a Pending settlement from an ingested statement.
func NewSettlement(id SettlementID, tenant TenantID, insurer string, period time.Time, expected, received Money, at time.Time) Settlement {
	expected = RoundMoney(expected)
	received = RoundMoney(received)
	return Settlement{
		ID:        id,
		TenantID:  tenant,
		Insurer:   insurer,
		Period:    monthStart(period),
		Expected:  expected,
		Received:  received,
		Variance:  received.Sub(expected),
		Status:    SettlementPending,
		CreatedAt: at,
		UpdatedAt: at,
	}
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// DeterministicSettlementID derives a stable UUID from the settlement's
// natural key. The same (tenant, insurer, period) always maps to the same
// settlement, so re-submitting a statement updates rather than duplicates.
func DeterministicSettlementID(tenant TenantID, insurer string, period time.Time) SettlementID {
	key := string(tenant) + "/" + strings.ToLower(insurer) + "/" + period.Format("2006-01")
	return SettlementID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String())
}
