/*
split.go - Multi-party commission apportionment

PURPOSE:
  Splits the insurer commission for one policy across the earning parties.
  The formula dispatches on the policy's source type:

    agent:    agent share % of insurer commission, plus a reporting-employee
              override % when the agent reports to an employee; broker keeps
              the residual.
    employee: employee incentive % per the incentive schedule; broker keeps
              the residual.
    misp:     MISP contracted share %, same override mechanics as agent.
    direct:   everything accrues to the broker.

ROUNDING:
  Party shares are rounded to paise as they are computed; the broker
  residual is derived by subtraction, so the four outputs always sum
  EXACTLY to the insurer commission. The broker absorbs the rounding
  remainder.

NEGATIVE SHARES:
  A negative computed share (e.g. contracted percentages that sum past
  100%) is NegativeShareError, never a silent clamp to zero. It means the
  party contract is misconfigured and must be fixed, not papered over.
*/
package commission

import "github.com/shopspring/decimal"

// =============================================================================
// SPLIT
// =============================================================================

// Split is the apportionment of one policy's insurer commission.
type Split struct {
	AgentCommission             Money
	EmployeeCommission          Money
	ReportingEmployeeCommission Money
	BrokerShare                 Money
}

// SplitCommission apportions insurerCommission across parties for the
// given source type. The four output fields sum exactly to
// insurerCommission.
func SplitCommission(insurerCommission Money, sourceType SourceType, parties Parties) (Split, error) {
	insurerCommission = RoundMoney(insurerCommission)

	s := Split{
		AgentCommission:             decimal.Zero,
		EmployeeCommission:          decimal.Zero,
		ReportingEmployeeCommission: decimal.Zero,
	}

	switch sourceType {
	case SourceAgent:
		s.AgentCommission = PercentOf(insurerCommission, parties.AgentSharePct)
		s.ReportingEmployeeCommission = PercentOf(insurerCommission, parties.ReportingEmployeeOverride)

	case SourceEmployee:
		s.EmployeeCommission = PercentOf(insurerCommission, parties.EmployeeIncentivePct)

	case SourceMISP:
		// MISP payout is carried in the agent commission column, the way
		// the revenue table reports intermediary payouts.
		s.AgentCommission = PercentOf(insurerCommission, parties.MISPSharePct)
		s.ReportingEmployeeCommission = PercentOf(insurerCommission, parties.ReportingEmployeeOverride)

	case SourceDirect:
		// No intermediary: broker keeps everything.

	default:
		return Split{}, &NegativeShareError{SourceType: sourceType, Party: "unknown source type", Amount: insurerCommission}
	}

	s.BrokerShare = insurerCommission.
		Sub(s.AgentCommission).
		Sub(s.EmployeeCommission).
		Sub(s.ReportingEmployeeCommission)

	if err := s.validate(sourceType); err != nil {
		return Split{}, err
	}
	return s, nil
}

func (s Split) validate(sourceType SourceType) error {
	checks := []struct {
		party  string
		amount Money
	}{
		{"agent", s.AgentCommission},
		{"employee", s.EmployeeCommission},
		{"reporting employee", s.ReportingEmployeeCommission},
		{"broker", s.BrokerShare},
	}
	for _, c := range checks {
		if c.amount.IsNegative() {
			return &NegativeShareError{SourceType: sourceType, Party: c.party, Amount: c.amount}
		}
	}
	return nil
}

// Total returns the sum of all four shares.
func (s Split) Total() Money {
	return s.AgentCommission.
		Add(s.EmployeeCommission).
		Add(s.ReportingEmployeeCommission).
		Add(s.BrokerShare)
}
