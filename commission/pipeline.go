/*
pipeline.go - The policy-to-revenue calculation pipeline

PURPOSE:
  Chains the calculation stages for one policy:

    PolicyInput → Rate Resolver → Campaign Engine → Compliance Guard
                → Split Calculator → RevenueRecord (+ optional Alert)

  The Calculator is a snapshot of rule state (grids, campaigns, compliance
  rules) taken at construction. It holds no mutable state afterwards, so a
  single Calculator is safe for concurrent use across policies, and
  recalculating the same input against the same snapshot is byte-for-byte
  idempotent.

ERROR BEHAVIOR:
  Resolution and split errors abort the calculation for that single policy
  and surface to the caller. A compliance breach does NOT abort: the rate
  is capped, the record is produced, and the breach rides along as an
  Alert.

SEE ALSO:
  - resolver.go, campaign.go, compliance.go, split.go: The stages
  - api/sync.go: Batch orchestration with per-row error isolation
*/
package commission

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// CALCULATOR
// =============================================================================

// Calculator runs the full pipeline against a rule snapshot.
type Calculator struct {
	resolver  *Resolver
	campaigns []Campaign
	guard     *Guard
	now       func() time.Time
}

// NewCalculator builds a calculator over the given rule snapshot.
func NewCalculator(grids []GridEntry, campaigns []Campaign, rules []ComplianceRule, config GuardConfig) *Calculator {
	return &Calculator{
		resolver:  NewResolver(grids),
		campaigns: campaigns,
		guard:     NewGuard(rules, config),
		now:       time.Now,
	}
}

// WithClock overrides the calculation timestamp source. Tests use this to
// pin CalcDate so idempotence can be asserted byte-for-byte.
func (c *Calculator) WithClock(now func() time.Time) *Calculator {
	c.now = now
	return c
}

// Calculate runs the pipeline for one policy. The returned Alert is
// non-nil exactly when the pre-cap rate breached the category cap.
func (c *Calculator) Calculate(ctx context.Context, in PolicyInput) (RevenueRecord, *Alert, error) {
	if err := ctx.Err(); err != nil {
		return RevenueRecord{}, nil, err
	}

	res, err := c.resolver.ResolveBaseRate(in.ProductType, in.Provider, in.Context, in.IssueDate)
	if err != nil {
		return RevenueRecord{}, nil, err
	}

	bonus := ApplyCampaignBonus(c.campaigns, in.IssueDate, in.ProductType, in.Provider)

	preCap := res.BaseRate.Add(res.RewardRate).Add(bonus)
	capped, alert := c.guard.CheckCompliance(preCap, in.ProductType)

	insurerCommission := PercentOf(in.Premium, capped)

	split, err := SplitCommission(insurerCommission, in.SourceType, in.Parties)
	if err != nil {
		return RevenueRecord{}, nil, err
	}

	rec := RevenueRecord{
		ID:           deterministicRecordID(in.TenantID, in.PolicyID),
		TenantID:     in.TenantID,
		PolicyID:     in.PolicyID,
		PolicyNumber: in.PolicyNumber,
		Provider:     in.Provider,
		ProductType:  in.ProductType,
		SourceType:   in.SourceType,

		CustomerName: in.CustomerName,
		AgentName:    in.AgentName,
		EmployeeName: in.EmployeeName,
		MISPName:     in.MISPName,

		Premium:    in.Premium,
		BaseRate:   res.BaseRate,
		RewardRate: res.RewardRate,
		BonusRate:  bonus,
		TotalRate:  capped,

		InsurerCommission:           insurerCommission,
		AgentCommission:             split.AgentCommission,
		EmployeeCommission:          split.EmployeeCommission,
		ReportingEmployeeCommission: split.ReportingEmployeeCommission,
		BrokerShare:                 split.BrokerShare,

		Status:         StatusPending,
		CalcDate:       DateOnly(c.now()),
		MatchedEntryID: res.MatchedEntryID,
		Version:        1,
	}

	return rec, alert, nil
}

// deterministicRecordID derives a stable UUID from the record's identity,
// so re-running a sync over the same policy set reproduces the same IDs
// instead of minting duplicates.
func deterministicRecordID(tenantID TenantID, policyID string) RecordID {
	id := uuid.NewSHA1(uuid.NameSpaceOID, []byte(string(tenantID)+"/"+policyID))
	return RecordID(id.String())
}
