/*
dto.go - Request/response shapes for the HTTP API

PURPOSE:
  Defines the JSON contracts between frontend and backend. DTOs are
  deliberately decoupled from domain types: decimals travel as strings,
  dates as YYYY-MM-DD, and the dimension variant is flattened into one
  object so the grid screen can bind columns directly.

VALIDATION:
  Mutation DTOs carry validator/v10 tags and are checked before any
  domain code runs. A failed validation is always a 400.

SEE ALSO:
  - handlers.go: Where these DTOs are consumed and produced
*/
package api

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/keystone/broking-engine/commission"
)

var validate = validator.New()

const dateLayout = "2006-01-02"

// =============================================================================
// GRID DTOs
// =============================================================================

// GridEntryRequest creates or updates a grid entry. The dims block is
// interpreted by product_type; irrelevant fields are ignored.
type GridEntryRequest struct {
	ProductType    string `json:"product_type" validate:"required,oneof=motor health life"`
	Provider       string `json:"provider" validate:"required"`
	ProductSubType string `json:"product_sub_type"`
	PlanName       string `json:"plan_name"`
	CommissionRate string `json:"commission_rate" validate:"required"`
	RewardRate     string `json:"reward_rate"`
	ValidFrom      string `json:"valid_from" validate:"required"`
	ValidTo        string `json:"valid_to" validate:"required"`

	VehicleMake   string `json:"vehicle_make,omitempty"`
	FuelType      string `json:"fuel_type,omitempty"`
	SumInsuredMin string `json:"sum_insured_min,omitempty"`
	SumInsuredMax string `json:"sum_insured_max,omitempty"`
	PremiumStart  string `json:"premium_start,omitempty"`
	PremiumEnd    string `json:"premium_end,omitempty"`
	PPT           int    `json:"ppt,omitempty"`
	PT            int    `json:"pt,omitempty"`
}

func (req GridEntryRequest) toDomain(tenant commission.TenantID, id commission.GridEntryID) (commission.GridEntry, error) {
	if err := validate.Struct(req); err != nil {
		return commission.GridEntry{}, err
	}

	productType := commission.ProductType(req.ProductType)

	commissionRate, err := parseDecimalField(req.CommissionRate, "commission_rate")
	if err != nil {
		return commission.GridEntry{}, err
	}
	rewardRate, err := parseOptionalDecimal(req.RewardRate, "reward_rate")
	if err != nil {
		return commission.GridEntry{}, err
	}

	validFrom, err := parseDateField(req.ValidFrom, "valid_from")
	if err != nil {
		return commission.GridEntry{}, err
	}
	validTo, err := parseDateField(req.ValidTo, "valid_to")
	if err != nil {
		return commission.GridEntry{}, err
	}
	if validTo.Before(validFrom) {
		return commission.GridEntry{}, fmt.Errorf("valid_to precedes valid_from")
	}

	dims, err := req.dimensions(productType)
	if err != nil {
		return commission.GridEntry{}, err
	}

	return commission.GridEntry{
		ID:             id,
		TenantID:       tenant,
		ProductType:    productType,
		Provider:       req.Provider,
		ProductSubType: req.ProductSubType,
		PlanName:       req.PlanName,
		CommissionRate: commissionRate,
		RewardRate:     rewardRate,
		Validity:       commission.Window{From: validFrom, To: validTo},
		IsActive:       true,
		Dimensions:     dims,
	}, nil
}

func (req GridEntryRequest) dimensions(productType commission.ProductType) (commission.Dimensions, error) {
	switch productType {
	case commission.ProductMotor:
		return commission.MotorDimensions{
			VehicleMake: req.VehicleMake,
			FuelType:    req.FuelType,
		}, nil
	case commission.ProductHealth:
		min, err := parseOptionalDecimal(req.SumInsuredMin, "sum_insured_min")
		if err != nil {
			return nil, err
		}
		max, err := parseOptionalDecimal(req.SumInsuredMax, "sum_insured_max")
		if err != nil {
			return nil, err
		}
		return commission.HealthDimensions{SumInsuredMin: min, SumInsuredMax: max}, nil
	case commission.ProductLife:
		start, err := parseOptionalDecimal(req.PremiumStart, "premium_start")
		if err != nil {
			return nil, err
		}
		end, err := parseOptionalDecimal(req.PremiumEnd, "premium_end")
		if err != nil {
			return nil, err
		}
		return commission.LifeDimensions{
			PremiumStart: start,
			PremiumEnd:   end,
			PPT:          req.PPT,
			PT:           req.PT,
		}, nil
	}
	return commission.WildcardDimensions{ProductType: productType}, nil
}

// GridEntryResponse mirrors GridEntryRequest with identity fields added.
type GridEntryResponse struct {
	ID             string `json:"id"`
	ProductType    string `json:"product_type"`
	Provider       string `json:"provider"`
	ProductSubType string `json:"product_sub_type,omitempty"`
	PlanName       string `json:"plan_name,omitempty"`
	CommissionRate string `json:"commission_rate"`
	RewardRate     string `json:"reward_rate"`
	ValidFrom      string `json:"valid_from"`
	ValidTo        string `json:"valid_to"`
	IsActive       bool   `json:"is_active"`

	VehicleMake   string `json:"vehicle_make,omitempty"`
	FuelType      string `json:"fuel_type,omitempty"`
	SumInsuredMin string `json:"sum_insured_min,omitempty"`
	SumInsuredMax string `json:"sum_insured_max,omitempty"`
	PremiumStart  string `json:"premium_start,omitempty"`
	PremiumEnd    string `json:"premium_end,omitempty"`
	PPT           int    `json:"ppt,omitempty"`
	PT            int    `json:"pt,omitempty"`
}

func toGridEntryResponse(e commission.GridEntry) GridEntryResponse {
	resp := GridEntryResponse{
		ID:             string(e.ID),
		ProductType:    string(e.ProductType),
		Provider:       e.Provider,
		ProductSubType: e.ProductSubType,
		PlanName:       e.PlanName,
		CommissionRate: e.CommissionRate.String(),
		RewardRate:     e.RewardRate.String(),
		ValidFrom:      e.Validity.From.Format(dateLayout),
		ValidTo:        e.Validity.To.Format(dateLayout),
		IsActive:       e.IsActive,
	}
	switch d := e.Dimensions.(type) {
	case commission.MotorDimensions:
		resp.VehicleMake = d.VehicleMake
		resp.FuelType = d.FuelType
	case commission.HealthDimensions:
		if !d.SumInsuredMin.IsZero() {
			resp.SumInsuredMin = d.SumInsuredMin.String()
		}
		if !d.SumInsuredMax.IsZero() {
			resp.SumInsuredMax = d.SumInsuredMax.String()
		}
	case commission.LifeDimensions:
		if !d.PremiumStart.IsZero() {
			resp.PremiumStart = d.PremiumStart.String()
		}
		if !d.PremiumEnd.IsZero() {
			resp.PremiumEnd = d.PremiumEnd.String()
		}
		resp.PPT = d.PPT
		resp.PT = d.PT
	}
	return resp
}

// =============================================================================
// CAMPAIGN DTOs
// =============================================================================

type CampaignRequest struct {
	Name         string   `json:"name" validate:"required"`
	BonusRate    string   `json:"bonus_rate" validate:"required"`
	ValidFrom    string   `json:"valid_from" validate:"required"`
	ValidTo      string   `json:"valid_to" validate:"required"`
	Exclusive    bool     `json:"exclusive"`
	ProductTypes []string `json:"product_types" validate:"dive,oneof=motor health life"`
	Providers    []string `json:"providers"`
}

func (req CampaignRequest) toDomain(tenant commission.TenantID, id commission.CampaignID, now time.Time) (commission.Campaign, error) {
	if err := validate.Struct(req); err != nil {
		return commission.Campaign{}, err
	}
	bonus, err := parseDecimalField(req.BonusRate, "bonus_rate")
	if err != nil {
		return commission.Campaign{}, err
	}
	if bonus.IsNegative() {
		return commission.Campaign{}, fmt.Errorf("bonus_rate cannot be negative")
	}
	validFrom, err := parseDateField(req.ValidFrom, "valid_from")
	if err != nil {
		return commission.Campaign{}, err
	}
	validTo, err := parseDateField(req.ValidTo, "valid_to")
	if err != nil {
		return commission.Campaign{}, err
	}

	productTypes := make([]commission.ProductType, 0, len(req.ProductTypes))
	for _, p := range req.ProductTypes {
		productTypes = append(productTypes, commission.ProductType(p))
	}

	return commission.Campaign{
		ID:           id,
		TenantID:     tenant,
		Name:         req.Name,
		BonusRate:    bonus,
		Validity:     commission.Window{From: validFrom, To: validTo},
		IsActive:     true,
		Exclusive:    req.Exclusive,
		ProductTypes: productTypes,
		Providers:    req.Providers,
		CreatedAt:    now,
	}, nil
}

type CampaignResponse struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	BonusRate    string   `json:"bonus_rate"`
	ValidFrom    string   `json:"valid_from"`
	ValidTo      string   `json:"valid_to"`
	IsActive     bool     `json:"is_active"`
	Exclusive    bool     `json:"exclusive"`
	ProductTypes []string `json:"product_types,omitempty"`
	Providers    []string `json:"providers,omitempty"`
}

func toCampaignResponse(c commission.Campaign) CampaignResponse {
	productTypes := make([]string, 0, len(c.ProductTypes))
	for _, p := range c.ProductTypes {
		productTypes = append(productTypes, string(p))
	}
	return CampaignResponse{
		ID:           string(c.ID),
		Name:         c.Name,
		BonusRate:    c.BonusRate.String(),
		ValidFrom:    c.Validity.From.Format(dateLayout),
		ValidTo:      c.Validity.To.Format(dateLayout),
		IsActive:     c.IsActive,
		Exclusive:    c.Exclusive,
		ProductTypes: productTypes,
		Providers:    c.Providers,
	}
}

// =============================================================================
// COMPLIANCE DTOs
// =============================================================================

type ComplianceRuleRequest struct {
	ProductCategory string `json:"product_category" validate:"required,oneof=motor health life"`
	MaxAllowedRate  string `json:"max_allowed_rate" validate:"required"`
	ProviderName    string `json:"provider_name"`
	ProductName     string `json:"product_name"`
}

func (req ComplianceRuleRequest) toDomain(tenant commission.TenantID, id commission.RuleID) (commission.ComplianceRule, error) {
	if err := validate.Struct(req); err != nil {
		return commission.ComplianceRule{}, err
	}
	max, err := parseDecimalField(req.MaxAllowedRate, "max_allowed_rate")
	if err != nil {
		return commission.ComplianceRule{}, err
	}
	return commission.ComplianceRule{
		ID:              id,
		TenantID:        tenant,
		ProductCategory: commission.ProductType(req.ProductCategory),
		MaxAllowedRate:  max,
		ProviderName:    req.ProviderName,
		ProductName:     req.ProductName,
	}, nil
}

type ComplianceRuleResponse struct {
	ID              string `json:"id"`
	ProductCategory string `json:"product_category"`
	MaxAllowedRate  string `json:"max_allowed_rate"`
	ProviderName    string `json:"provider_name,omitempty"`
	ProductName     string `json:"product_name,omitempty"`
}

func toComplianceRuleResponse(r commission.ComplianceRule) ComplianceRuleResponse {
	return ComplianceRuleResponse{
		ID:              string(r.ID),
		ProductCategory: string(r.ProductCategory),
		MaxAllowedRate:  r.MaxAllowedRate.String(),
		ProviderName:    r.ProviderName,
		ProductName:     r.ProductName,
	}
}

type AlertResponse struct {
	RuleID       string `json:"rule_id"`
	ProviderName string `json:"provider_name,omitempty"`
	ProductName  string `json:"product_name,omitempty"`
	CurrentRate  string `json:"current_rate"`
	MaxAllowed   string `json:"max_allowed"`
	Excess       string `json:"excess"`
	Severity     string `json:"severity"`
	CreatedAt    string `json:"created_at,omitempty"`
}

func toAlertResponse(a commission.Alert, createdAt time.Time) AlertResponse {
	resp := AlertResponse{
		RuleID:       string(a.RuleID),
		ProviderName: a.ProviderName,
		ProductName:  a.ProductName,
		CurrentRate:  a.CurrentRate.String(),
		MaxAllowed:   a.MaxAllowed.String(),
		Excess:       a.Excess.String(),
		Severity:     string(a.Severity),
	}
	if !createdAt.IsZero() {
		resp.CreatedAt = createdAt.Format(time.RFC3339)
	}
	return resp
}

// =============================================================================
// POLICY / CALCULATE DTOs
// =============================================================================

// PolicyRequest is one policy's calculation input, used both by the
// sync endpoints (batch) and /api/calculate (preview).
type PolicyRequest struct {
	PolicyID     string `json:"policy_id" validate:"required"`
	PolicyNumber string `json:"policy_number"`
	ProductType  string `json:"product_type" validate:"required,oneof=motor health life"`
	Provider     string `json:"provider" validate:"required"`
	SourceType   string `json:"source_type" validate:"required,oneof=agent employee misp direct"`
	Premium      string `json:"premium" validate:"required"`
	IssueDate    string `json:"issue_date" validate:"required"`

	VehicleMake   string `json:"vehicle_make,omitempty"`
	FuelType      string `json:"fuel_type,omitempty"`
	SumInsured    string `json:"sum_insured,omitempty"`
	AnnualPremium string `json:"annual_premium,omitempty"`
	PPT           int    `json:"ppt,omitempty"`
	PT            int    `json:"pt,omitempty"`

	AgentSharePct             string `json:"agent_share_pct,omitempty"`
	EmployeeIncentivePct      string `json:"employee_incentive_pct,omitempty"`
	MISPSharePct              string `json:"misp_share_pct,omitempty"`
	ReportingEmployeeOverride string `json:"reporting_employee_override_pct,omitempty"`

	CustomerName string `json:"customer_name,omitempty"`
	AgentName    string `json:"agent_name,omitempty"`
	EmployeeName string `json:"employee_name,omitempty"`
	MISPName     string `json:"misp_name,omitempty"`
}

func (req PolicyRequest) toDomain(tenant commission.TenantID) (commission.PolicyInput, error) {
	if err := validate.Struct(req); err != nil {
		return commission.PolicyInput{}, err
	}

	premium, err := parseDecimalField(req.Premium, "premium")
	if err != nil {
		return commission.PolicyInput{}, err
	}
	issueDate, err := parseDateField(req.IssueDate, "issue_date")
	if err != nil {
		return commission.PolicyInput{}, err
	}

	sumInsured, err := parseOptionalDecimal(req.SumInsured, "sum_insured")
	if err != nil {
		return commission.PolicyInput{}, err
	}
	annualPremium, err := parseOptionalDecimal(req.AnnualPremium, "annual_premium")
	if err != nil {
		return commission.PolicyInput{}, err
	}

	agentShare, err := parseOptionalDecimal(req.AgentSharePct, "agent_share_pct")
	if err != nil {
		return commission.PolicyInput{}, err
	}
	employeeIncentive, err := parseOptionalDecimal(req.EmployeeIncentivePct, "employee_incentive_pct")
	if err != nil {
		return commission.PolicyInput{}, err
	}
	mispShare, err := parseOptionalDecimal(req.MISPSharePct, "misp_share_pct")
	if err != nil {
		return commission.PolicyInput{}, err
	}
	override, err := parseOptionalDecimal(req.ReportingEmployeeOverride, "reporting_employee_override_pct")
	if err != nil {
		return commission.PolicyInput{}, err
	}

	return commission.PolicyInput{
		PolicyID:     req.PolicyID,
		PolicyNumber: req.PolicyNumber,
		TenantID:     tenant,
		ProductType:  commission.ProductType(req.ProductType),
		Provider:     req.Provider,
		SourceType:   commission.SourceType(req.SourceType),
		Premium:      premium,
		IssueDate:    issueDate,
		Context: commission.ResolutionContext{
			VehicleMake:   req.VehicleMake,
			FuelType:      req.FuelType,
			SumInsured:    sumInsured,
			AnnualPremium: annualPremium,
			PPT:           req.PPT,
			PT:            req.PT,
		},
		Parties: commission.Parties{
			AgentSharePct:             agentShare,
			EmployeeIncentivePct:      employeeIncentive,
			MISPSharePct:              mispShare,
			ReportingEmployeeOverride: override,
		},
		CustomerName: req.CustomerName,
		AgentName:    req.AgentName,
		EmployeeName: req.EmployeeName,
		MISPName:     req.MISPName,
	}, nil
}

// =============================================================================
// REVENUE DTOs
// =============================================================================

type RevenueRecordResponse struct {
	ID                          string `json:"id"`
	PolicyID                    string `json:"policy_id"`
	PolicyNumber                string `json:"policy_number"`
	Provider                    string `json:"provider"`
	ProductType                 string `json:"product_type"`
	SourceType                  string `json:"source_type"`
	CustomerName                string `json:"customer_name,omitempty"`
	AgentName                   string `json:"agent_name,omitempty"`
	EmployeeName                string `json:"employee_name,omitempty"`
	MISPName                    string `json:"misp_name,omitempty"`
	Premium                     string `json:"premium"`
	BaseRate                    string `json:"base_rate"`
	RewardRate                  string `json:"reward_rate"`
	BonusRate                   string `json:"bonus_rate"`
	TotalRate                   string `json:"total_rate"`
	InsurerCommission           string `json:"insurer_commission"`
	AgentCommission             string `json:"agent_commission"`
	EmployeeCommission          string `json:"employee_commission"`
	ReportingEmployeeCommission string `json:"reporting_employee_commission"`
	BrokerShare                 string `json:"broker_share"`
	Status                      string `json:"status"`
	CalcDate                    string `json:"calc_date"`
	Version                     int    `json:"version"`
	MatchedEntryID              string `json:"matched_entry_id,omitempty"`
}

func toRevenueRecordResponse(r commission.RevenueRecord) RevenueRecordResponse {
	return RevenueRecordResponse{
		ID:                          string(r.ID),
		PolicyID:                    r.PolicyID,
		PolicyNumber:                r.PolicyNumber,
		Provider:                    r.Provider,
		ProductType:                 string(r.ProductType),
		SourceType:                  string(r.SourceType),
		CustomerName:                r.CustomerName,
		AgentName:                   r.AgentName,
		EmployeeName:                r.EmployeeName,
		MISPName:                    r.MISPName,
		Premium:                     r.Premium.String(),
		BaseRate:                    r.BaseRate.String(),
		RewardRate:                  r.RewardRate.String(),
		BonusRate:                   r.BonusRate.String(),
		TotalRate:                   r.TotalRate.String(),
		InsurerCommission:           r.InsurerCommission.String(),
		AgentCommission:             r.AgentCommission.String(),
		EmployeeCommission:          r.EmployeeCommission.String(),
		ReportingEmployeeCommission: r.ReportingEmployeeCommission.String(),
		BrokerShare:                 r.BrokerShare.String(),
		Status:                      string(r.Status),
		CalcDate:                    r.CalcDate.Format(dateLayout),
		Version:                     r.Version,
		MatchedEntryID:              string(r.MatchedEntryID),
	}
}

type TotalsResponse struct {
	TotalCommission string `json:"total_commission"`
	TotalInsurer    string `json:"total_insurer"`
	TotalAgent      string `json:"total_agent"`
	TotalEmployee   string `json:"total_employee"`
	TotalBroker     string `json:"total_broker"`
	TotalPremium    string `json:"total_premium"`
	AvgBaseRate     string `json:"avg_base_rate"`
	Count           int    `json:"count"`
}

func toTotalsResponse(t commission.Totals) TotalsResponse {
	return TotalsResponse{
		TotalCommission: t.TotalCommission.String(),
		TotalInsurer:    t.TotalInsurer.String(),
		TotalAgent:      t.TotalAgent.String(),
		TotalEmployee:   t.TotalEmployee.String(),
		TotalBroker:     t.TotalBroker.String(),
		TotalPremium:    t.TotalPremium.String(),
		AvgBaseRate:     t.AvgBaseRate.String(),
		Count:           t.Count,
	}
}

// =============================================================================
// SETTLEMENT DTOs
// =============================================================================

type SettlementRequest struct {
	Insurer  string `json:"insurer" validate:"required"`
	Period   string `json:"period" validate:"required"` // YYYY-MM
	Expected string `json:"expected" validate:"required"`
	Received string `json:"received" validate:"required"`
}

type SettlementActionRequest struct {
	Actor    string  `json:"actor" validate:"required"`
	Note     string  `json:"note"`
	Received *string `json:"received,omitempty"` // resubmit correction
}

type SettlementResponse struct {
	ID         string `json:"id"`
	Insurer    string `json:"insurer"`
	Period     string `json:"period"`
	Expected   string `json:"expected"`
	Received   string `json:"received"`
	Variance   string `json:"variance"`
	Status     string `json:"status"`
	ApprovedBy string `json:"approved_by,omitempty"`
}

func toSettlementResponse(s commission.Settlement) SettlementResponse {
	return SettlementResponse{
		ID:         string(s.ID),
		Insurer:    s.Insurer,
		Period:     s.Period.Format("2006-01"),
		Expected:   s.Expected.String(),
		Received:   s.Received.String(),
		Variance:   s.Variance.String(),
		Status:     string(s.Status),
		ApprovedBy: s.ApprovedBy,
	}
}

// =============================================================================
// FIELD PARSERS
// =============================================================================

func parseDecimalField(s, field string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s: %q", field, s)
	}
	return d, nil
}

func parseOptionalDecimal(s, field string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return parseDecimalField(s, field)
}

func parseDateField(s, field string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s: %q (want YYYY-MM-DD)", field, s)
	}
	return t, nil
}
