/*
Package commission implements the commission and revenue calculation engine
for a multi-line insurance broking back office.

PURPOSE:
  This package contains the pure calculation core: resolving base commission
  rates from line-of-business grids, layering campaign bonuses, enforcing
  regulatory rate caps, splitting commission amounts across parties, and
  aggregating calculated records into reportable totals. Settlement
  reconciliation against insurer statements lives here too.

KEY CONCEPTS IN THIS FILE (types.go):
  - Rate: A commission percentage expressed as a decimal (12.5 = 12.5%)
  - Money: A monetary amount in rupees with paise precision
  - ProductType / SourceType: Line-of-business and sales-channel enums
  - RevenueRecord: One immutable calculation result per policy
  - PolicyInput: The normalized policy row the pipeline consumes

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal everywhere money or rates appear; float64
     never touches a commission amount.
  2. Purity: resolver, campaign engine, compliance guard, and split
     calculator are stateless functions over their inputs, safe to call
     concurrently across independent policies.
  3. Immutability: RevenueRecords are never mutated past pending status;
     corrections are new records or explicit recalculation runs.
  4. Auditability: every record keeps the grid entry it matched.

USAGE:
  calc := commission.NewCalculator(grids, campaigns, rules, commission.DefaultGuardConfig())
  rec, alert, err := calc.Calculate(ctx, input)

SEE ALSO:
  - resolver.go: Grid lookup with specificity ranking
  - split.go: Party apportionment per source type
  - aggregate.go: Totals for dashboards and export
  - settlement.go: Statement reconciliation state machine
*/
package commission

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RATES AND MONEY
// =============================================================================

// Rate is a commission percentage. A Rate of 12.5 means 12.5% of premium.
type Rate = decimal.Decimal

// Money is a monetary amount in rupees. Persisted and compared at paise
// (two decimal place) precision.
type Money = decimal.Decimal

// RoundMoney normalizes an amount to paise precision.
func RoundMoney(m Money) Money { return m.Round(2) }

// PercentOf returns rate% of amount, rounded to paise.
func PercentOf(amount Money, rate Rate) Money {
	return RoundMoney(amount.Mul(rate).Div(decimal.NewFromInt(100)))
}

// MustRate parses a decimal rate string, panicking on malformed input.
// Intended for constants and tests, not request paths.
func MustRate(s string) Rate {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic("commission: bad rate literal " + s)
	}
	return d
}

// =============================================================================
// ENUMS
// =============================================================================

// ProductType identifies the line of business a policy belongs to.
type ProductType string

const (
	ProductMotor  ProductType = "motor"
	ProductHealth ProductType = "health"
	ProductLife   ProductType = "life"
)

// Valid reports whether pt is a known line of business.
func (pt ProductType) Valid() bool {
	switch pt {
	case ProductMotor, ProductHealth, ProductLife:
		return true
	}
	return false
}

// SourceType identifies the sales channel that produced a policy.
// The commission split formula dispatches on this.
type SourceType string

const (
	SourceAgent    SourceType = "agent"
	SourceEmployee SourceType = "employee"
	SourceMISP     SourceType = "misp"
	SourceDirect   SourceType = "direct"
)

func (st SourceType) Valid() bool {
	switch st {
	case SourceAgent, SourceEmployee, SourceMISP, SourceDirect:
		return true
	}
	return false
}

// CommissionStatus tracks a RevenueRecord through its lifecycle.
// A record is mutable only while pending; later statuses are reached via
// guarded conditional updates.
type CommissionStatus string

const (
	StatusPending  CommissionStatus = "pending"
	StatusApproved CommissionStatus = "approved"
	StatusPaid     CommissionStatus = "paid"
	StatusDisputed CommissionStatus = "disputed"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type GridEntryID string
type CampaignID string
type RuleID string
type RecordID string
type SettlementID string
type TenantID string

// =============================================================================
// POLICY INPUT - Normalized row handed to the calculation pipeline
// =============================================================================

// PolicyInput is one normalized policy as produced by upstream import or
// policy-entry screens. The pipeline treats it as read-only.
type PolicyInput struct {
	PolicyID     string
	PolicyNumber string
	TenantID     TenantID
	ProductType  ProductType
	Provider     string
	SourceType   SourceType
	Premium      Money
	IssueDate    time.Time

	// Product-specific discriminators used by grid resolution.
	Context ResolutionContext

	// Party context used by the split calculator.
	Parties Parties

	// Display names carried through to reports.
	CustomerName string
	AgentName    string
	EmployeeName string
	MISPName     string
}

// ResolutionContext carries the product-type-specific discriminators a
// grid lookup matches against. Only the fields for the policy's product
// type are consulted; the rest stay zero.
type ResolutionContext struct {
	// Motor
	VehicleMake string
	FuelType    string

	// Health
	SumInsured Money

	// Life
	AnnualPremium Money
	PPT           int // premium payment term, years
	PT            int // policy term, years
}

// Parties holds the contracted share percentages for the channel that
// sold the policy. Shares are Rates (percent of insurer commission).
type Parties struct {
	AgentSharePct             Rate
	EmployeeIncentivePct      Rate
	MISPSharePct              Rate
	ReportingEmployeeOverride Rate // 0 when the seller reports to nobody
}

// =============================================================================
// REVENUE RECORD - One calculation result per policy
// =============================================================================

// RevenueRecord is the immutable output of a pipeline run for one policy.
//
// INVARIANTS:
//   - TotalRate = BaseRate + RewardRate + BonusRate, then capped by compliance
//   - InsurerCommission = Premium x TotalRate / 100
//   - AgentCommission + EmployeeCommission + ReportingEmployeeCommission +
//     BrokerShare == InsurerCommission (exact; broker absorbs rounding)
type RevenueRecord struct {
	ID           RecordID
	TenantID     TenantID
	PolicyID     string
	PolicyNumber string
	Provider     string
	ProductType  ProductType
	SourceType   SourceType

	CustomerName string
	AgentName    string
	EmployeeName string
	MISPName     string

	Premium    Money
	BaseRate   Rate
	RewardRate Rate
	BonusRate  Rate
	TotalRate  Rate // post-cap

	InsurerCommission           Money
	AgentCommission             Money
	EmployeeCommission          Money
	ReportingEmployeeCommission Money
	BrokerShare                 Money

	Status   CommissionStatus
	CalcDate time.Time

	// MatchedEntryID records which grid entry priced this policy.
	MatchedEntryID GridEntryID

	// Version guards concurrent status updates (optimistic concurrency).
	Version int
}

// PartySum returns the sum of the four party shares. Equals
// InsurerCommission for any record produced by the pipeline.
func (r RevenueRecord) PartySum() Money {
	return r.AgentCommission.
		Add(r.EmployeeCommission).
		Add(r.ReportingEmployeeCommission).
		Add(r.BrokerShare)
}

// =============================================================================
// VALIDITY WINDOW - Shared by grids and campaigns
// =============================================================================

// Window is an inclusive [From, To] date range. Comparisons are at day
// granularity in UTC.
type Window struct {
	From time.Time
	To   time.Time
}

// Contains reports whether d falls inside the window, both ends inclusive.
func (w Window) Contains(d time.Time) bool {
	day := DateOnly(d)
	return !day.Before(DateOnly(w.From)) && !day.After(DateOnly(w.To))
}

// DateOnly truncates t to midnight UTC.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
