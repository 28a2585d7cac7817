/*
compliance.go - Regulatory rate cap enforcement

PURPOSE:
  IRDAI-style regulations cap the total commission rate per product
  category. The guard compares the combined rate (base + reward + bonus)
  against the category maximum, caps the rate used for calculation, and
  RECORDS the breach as an alert. Two rules it never breaks:

    1. Never silently exceed a cap.
    2. Never block a calculation because of a breach. Report and continue.

SEVERITY:
  A breach is `high` when the excess is more than a configured multiple of
  the allowed excess threshold, `medium` otherwise. The thresholds are
  policy configuration, not business logic baked into code.
*/
package commission

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// COMPLIANCE RULE
// =============================================================================

// ComplianceRule caps the total commission rate for a product category.
type ComplianceRule struct {
	ID              RuleID
	TenantID        TenantID
	ProductCategory ProductType
	MaxAllowedRate  Rate

	// Display context carried into dashboard alerts.
	ProviderName string
	ProductName  string
}

// AlertSeverity classifies how far past the cap a rate went.
type AlertSeverity string

const (
	SeverityMedium AlertSeverity = "medium"
	SeverityHigh   AlertSeverity = "high"
)

// Alert records a cap breach. It accompanies a successful calculation;
// it is data for the compliance dashboard, not an error.
type Alert struct {
	RuleID       RuleID
	ProviderName string
	ProductName  string
	CurrentRate  Rate
	MaxAllowed   Rate
	Excess       Rate
	Severity     AlertSeverity
}

// =============================================================================
// GUARD
// =============================================================================

// GuardConfig tunes severity classification.
type GuardConfig struct {
	// HighExcessThreshold: excess (in rate points) at or below which a
	// breach is medium. Above ExcessMultiple x this threshold it is high.
	HighExcessThreshold Rate
	ExcessMultiple      Rate
}

// DefaultGuardConfig classifies an excess above 2 rate points as high.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		HighExcessThreshold: decimal.NewFromInt(1),
		ExcessMultiple:      decimal.NewFromInt(2),
	}
}

// Guard applies category caps to combined rates.
type Guard struct {
	rules  map[ProductType]ComplianceRule
	config GuardConfig
}

// NewGuard indexes rules by product category. When a category has several
// rules the tightest cap wins.
func NewGuard(rules []ComplianceRule, config GuardConfig) *Guard {
	idx := make(map[ProductType]ComplianceRule, len(rules))
	for _, r := range rules {
		if existing, ok := idx[r.ProductCategory]; ok && existing.MaxAllowedRate.LessThanOrEqual(r.MaxAllowedRate) {
			continue
		}
		idx[r.ProductCategory] = r
	}
	return &Guard{rules: idx, config: config}
}

// CheckCompliance caps totalRate against the category maximum. The second
// return is non-nil exactly when the pre-cap rate breached the cap.
func (g *Guard) CheckCompliance(totalRate Rate, category ProductType) (Rate, *Alert) {
	rule, ok := g.rules[category]
	if !ok {
		// No rule for the category: nothing to cap against.
		return totalRate, nil
	}

	if totalRate.LessThanOrEqual(rule.MaxAllowedRate) {
		return totalRate, nil
	}

	excess := totalRate.Sub(rule.MaxAllowedRate)
	severity := SeverityMedium
	if excess.GreaterThan(g.config.HighExcessThreshold.Mul(g.config.ExcessMultiple)) {
		severity = SeverityHigh
	}

	return rule.MaxAllowedRate, &Alert{
		RuleID:       rule.ID,
		ProviderName: rule.ProviderName,
		ProductName:  rule.ProductName,
		CurrentRate:  totalRate,
		MaxAllowed:   rule.MaxAllowedRate,
		Excess:       excess,
		Severity:     severity,
	}
}
