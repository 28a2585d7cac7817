package commission_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keystone/broking-engine/commission"
)

func money(s string) commission.Money { return commission.MustRate(s) }

// =============================================================================
// SOURCE TYPE DISPATCH TESTS
// =============================================================================

func TestSplit_AgentSource_AgentPlusOverridePlusBrokerResidual(t *testing.T) {
	// GIVEN: ₹6000 insurer commission, agent on 70% with a 5% override
	// WHEN: Splitting an agent-sourced policy
	// THEN: Agent ₹4200, override ₹300, broker ₹1500

	s, err := commission.SplitCommission(money("6000"), commission.SourceAgent, commission.Parties{
		AgentSharePct:             commission.MustRate("70"),
		ReportingEmployeeOverride: commission.MustRate("5"),
	})

	require.NoError(t, err)
	assert.True(t, s.AgentCommission.Equal(money("4200")), "agent got %s", s.AgentCommission)
	assert.True(t, s.ReportingEmployeeCommission.Equal(money("300")), "override got %s", s.ReportingEmployeeCommission)
	assert.True(t, s.EmployeeCommission.IsZero())
	assert.True(t, s.BrokerShare.Equal(money("1500")), "broker got %s", s.BrokerShare)
}

func TestSplit_EmployeeSource_IncentiveOnly(t *testing.T) {
	// GIVEN: Employee-sourced policy with a 10% incentive
	// WHEN: Splitting ₹5000
	// THEN: Employee ₹500, broker ₹4500, nothing to agent

	s, err := commission.SplitCommission(money("5000"), commission.SourceEmployee, commission.Parties{
		EmployeeIncentivePct: commission.MustRate("10"),
	})

	require.NoError(t, err)
	assert.True(t, s.EmployeeCommission.Equal(money("500")))
	assert.True(t, s.AgentCommission.IsZero())
	assert.True(t, s.BrokerShare.Equal(money("4500")))
}

func TestSplit_MISPSource_PayoutRidesAgentColumn(t *testing.T) {
	// GIVEN: MISP-sourced policy, 60% contracted share, 3% override
	// WHEN: Splitting ₹10000
	// THEN: MISP payout appears in the agent commission column

	s, err := commission.SplitCommission(money("10000"), commission.SourceMISP, commission.Parties{
		MISPSharePct:              commission.MustRate("60"),
		ReportingEmployeeOverride: commission.MustRate("3"),
	})

	require.NoError(t, err)
	assert.True(t, s.AgentCommission.Equal(money("6000")))
	assert.True(t, s.ReportingEmployeeCommission.Equal(money("300")))
	assert.True(t, s.BrokerShare.Equal(money("3700")))
}

func TestSplit_DirectSource_AllToBroker(t *testing.T) {
	// GIVEN: A direct policy with party percentages configured anyway
	// WHEN: Splitting
	// THEN: Every paisa stays with the broker

	s, err := commission.SplitCommission(money("1234.56"), commission.SourceDirect, commission.Parties{
		AgentSharePct: commission.MustRate("70"),
	})

	require.NoError(t, err)
	assert.True(t, s.BrokerShare.Equal(money("1234.56")))
	assert.True(t, s.AgentCommission.IsZero())
}

// =============================================================================
// RECONCILIATION TESTS
// =============================================================================

func TestSplit_PartsSumExactlyToCommission(t *testing.T) {
	// GIVEN: Percentages that force rounding on every computed share
	// WHEN: Splitting awkward amounts
	// THEN: The four shares sum exactly; broker absorbs the remainder

	cases := []struct {
		name       string
		commission string
		parties    commission.Parties
		source     commission.SourceType
	}{
		{"thirds", "1000.01", commission.Parties{AgentSharePct: commission.MustRate("33.33"), ReportingEmployeeOverride: commission.MustRate("3.33")}, commission.SourceAgent},
		{"sevenths", "999.97", commission.Parties{AgentSharePct: commission.MustRate("14.2857")}, commission.SourceAgent},
		{"incentive", "777.77", commission.Parties{EmployeeIncentivePct: commission.MustRate("12.5")}, commission.SourceEmployee},
		{"misp", "6543.21", commission.Parties{MISPSharePct: commission.MustRate("66.67"), ReportingEmployeeOverride: commission.MustRate("1.11")}, commission.SourceMISP},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := commission.SplitCommission(money(tc.commission), tc.source, tc.parties)
			require.NoError(t, err)
			assert.True(t, s.Total().Equal(money(tc.commission)),
				"parts %s do not reconcile to %s", s.Total(), tc.commission)
		})
	}
}

// =============================================================================
// NEGATIVE SHARE TESTS
// =============================================================================

func TestSplit_SharesPast100Percent_IsNegativeShareError(t *testing.T) {
	// GIVEN: Agent 80% plus 25% override, which overruns the commission
	// WHEN: Splitting
	// THEN: NegativeShareError for the broker residual, never a clamp

	_, err := commission.SplitCommission(money("1000"), commission.SourceAgent, commission.Parties{
		AgentSharePct:             commission.MustRate("80"),
		ReportingEmployeeOverride: commission.MustRate("25"),
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, commission.ErrNegativeShare)

	var negative *commission.NegativeShareError
	require.ErrorAs(t, err, &negative)
	assert.Equal(t, "broker", negative.Party)
	assert.True(t, negative.Amount.IsNegative())
}

func TestSplit_NegativeContractedShare_IsNegativeShareError(t *testing.T) {
	// GIVEN: A corrupted contract with a negative agent share
	// WHEN: Splitting
	// THEN: NegativeShareError for the agent

	_, err := commission.SplitCommission(money("1000"), commission.SourceAgent, commission.Parties{
		AgentSharePct: commission.MustRate("-10"),
	})

	require.Error(t, err)
	var negative *commission.NegativeShareError
	require.ErrorAs(t, err, &negative)
	assert.Equal(t, "agent", negative.Party)
}
