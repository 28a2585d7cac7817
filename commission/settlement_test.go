package commission_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keystone/broking-engine/commission"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newSettlement(expected, received string) commission.Settlement {
	return commission.NewSettlement(
		"stl-1", "org-1", "Acme General",
		date(2025, time.June, 1),
		money(expected), money(received),
		date(2025, time.July, 5),
	)
}

func defaultReconciler() *commission.Reconciler {
	return commission.NewReconciler(commission.DefaultTolerance)
}

// =============================================================================
// VARIANCE TESTS
// =============================================================================

func TestReconcile_ShortPayment_VarianceNegative_SuggestsDisputed(t *testing.T) {
	// GIVEN: Expected ₹150,000, insurer reported ₹148,500
	// WHEN: Reconciling at 0.5% tolerance
	// THEN: Variance −1500 exceeds the ₹750 allowance; status stays Pending
	//       with Disputed suggested

	s := newSettlement("150000", "148500")
	res := defaultReconciler().Reconcile(s)

	assert.True(t, res.Variance.Equal(money("-1500")))
	assert.False(t, res.WithinTolerance)
	assert.Equal(t, commission.SettlementDisputed, res.SuggestedStatus)
	assert.Equal(t, commission.SettlementPending, s.Status, "Reconcile never mutates status")
}

func TestReconcile_ExactMatch_Approvable(t *testing.T) {
	// GIVEN: Expected and received both ₹200,000
	// WHEN: Reconciling
	// THEN: Zero variance, within tolerance, Reconciled suggested

	res := defaultReconciler().Reconcile(newSettlement("200000", "200000"))

	assert.True(t, res.Variance.IsZero())
	assert.True(t, res.WithinTolerance)
	assert.Equal(t, commission.SettlementReconciled, res.SuggestedStatus)
}

func TestReconcile_VarianceAtToleranceBoundary_IsWithin(t *testing.T) {
	// GIVEN: Expected ₹100,000 and a ₹500 shortfall (exactly 0.5%)
	// WHEN: Reconciling
	// THEN: Within tolerance, boundary inclusive

	res := defaultReconciler().Reconcile(newSettlement("100000", "99500"))
	assert.True(t, res.WithinTolerance)
}

// =============================================================================
// TRANSITION TESTS
// =============================================================================

func TestApply_ApproveWithinTolerance_Reconciles(t *testing.T) {
	// GIVEN: A pending settlement with zero variance
	// WHEN: An ops user approves it
	// THEN: Reconciled, approver recorded, audit entry emitted

	s := newSettlement("200000", "200000")
	at := date(2025, time.July, 10)

	updated, rec, err := defaultReconciler().Apply(s, commission.ActionApprove, "ops@broker", nil, at)

	require.NoError(t, err)
	assert.Equal(t, commission.SettlementReconciled, updated.Status)
	assert.Equal(t, "ops@broker", updated.ApprovedBy)
	assert.Equal(t, commission.ActionApprove, rec.Action)
	assert.Equal(t, "ops@broker", rec.Actor)
	assert.Equal(t, at, updated.UpdatedAt)
}

func TestApply_ApproveOutsideTolerance_Rejected(t *testing.T) {
	// GIVEN: A pending settlement ₹1,500 short
	// WHEN: Approving
	// THEN: ErrVarianceExceedsTolerance; status unchanged

	s := newSettlement("150000", "148500")

	updated, _, err := defaultReconciler().Apply(s, commission.ActionApprove, "ops@broker", nil, date(2025, time.July, 10))

	assert.ErrorIs(t, err, commission.ErrVarianceExceedsTolerance)
	assert.Equal(t, commission.SettlementPending, updated.Status)
}

func TestApply_DisputeFromPending_Allowed(t *testing.T) {
	s := newSettlement("150000", "148500")

	updated, _, err := defaultReconciler().Apply(s, commission.ActionDispute, "ops@broker", nil, date(2025, time.July, 10))

	require.NoError(t, err)
	assert.Equal(t, commission.SettlementDisputed, updated.Status)
}

func TestApply_ResubmitCorrection_ReturnsToPendingAndRecomputes(t *testing.T) {
	// GIVEN: A disputed short payment, then a corrected statement
	// WHEN: Resubmitting with the corrected received amount
	// THEN: Back to Pending, variance recomputed, approver cleared

	rc := defaultReconciler()
	s := newSettlement("150000", "148500")
	s, _, err := rc.Apply(s, commission.ActionDispute, "ops@broker", nil, date(2025, time.July, 10))
	require.NoError(t, err)

	corrected := money("150000")
	updated, _, err := rc.Apply(s, commission.ActionResubmit, "insurer-desk", &corrected, date(2025, time.July, 12))

	require.NoError(t, err)
	assert.Equal(t, commission.SettlementPending, updated.Status)
	assert.True(t, updated.Variance.IsZero())
	assert.Empty(t, updated.ApprovedBy)

	// Now approvable.
	final, _, err := rc.Apply(updated, commission.ActionApprove, "ops@broker", nil, date(2025, time.July, 13))
	require.NoError(t, err)
	assert.Equal(t, commission.SettlementReconciled, final.Status)
}

func TestApply_IllegalTransitions_Rejected(t *testing.T) {
	rc := defaultReconciler()

	reconciled := newSettlement("200000", "200000")
	reconciled, _, err := rc.Apply(reconciled, commission.ActionApprove, "ops@broker", nil, date(2025, time.July, 10))
	require.NoError(t, err)

	disputed := newSettlement("150000", "148500")
	disputed, _, err = rc.Apply(disputed, commission.ActionDispute, "ops@broker", nil, date(2025, time.July, 10))
	require.NoError(t, err)

	cases := []struct {
		name   string
		s      commission.Settlement
		action commission.SettlementAction
	}{
		{"approve reconciled", reconciled, commission.ActionApprove},
		{"dispute reconciled", reconciled, commission.ActionDispute},
		{"resubmit reconciled", reconciled, commission.ActionResubmit},
		{"approve disputed directly", disputed, commission.ActionApprove},
		{"resubmit pending", newSettlement("1", "1"), commission.ActionResubmit},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := rc.Apply(tc.s, tc.action, "ops@broker", nil, date(2025, time.July, 11))
			require.Error(t, err)
			assert.ErrorIs(t, err, commission.ErrInvalidTransition)

			var invalid *commission.InvalidTransitionError
			assert.ErrorAs(t, err, &invalid)
		})
	}
}

func TestNewSettlement_NormalizesPeriodToMonthStart(t *testing.T) {
	// GIVEN: A statement dated mid-month
	// WHEN: Creating the settlement
	// THEN: Period snaps to the first of the month

	s := commission.NewSettlement("stl-2", "org-1", "Acme", date(2025, time.June, 17), money("100"), money("100"), date(2025, time.July, 1))
	assert.Equal(t, date(2025, time.June, 1), s.Period)
	assert.Equal(t, commission.SettlementPending, s.Status)
}
