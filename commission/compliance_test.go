package commission_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keystone/broking-engine/commission"
)

func motorCap(rate string) commission.ComplianceRule {
	return commission.ComplianceRule{
		ID:              "cap-motor",
		TenantID:        "org-1",
		ProductCategory: commission.ProductMotor,
		MaxAllowedRate:  commission.MustRate(rate),
		ProviderName:    "Acme General",
	}
}

func TestGuard_RateWithinCap_NoAlert(t *testing.T) {
	// GIVEN: A 15% motor cap
	// WHEN: Checking a 12% total rate
	// THEN: Rate passes through untouched, no alert

	g := commission.NewGuard([]commission.ComplianceRule{motorCap("15")}, commission.DefaultGuardConfig())

	capped, alert := g.CheckCompliance(commission.MustRate("12"), commission.ProductMotor)

	assert.True(t, capped.Equal(commission.MustRate("12")))
	assert.Nil(t, alert)
}

func TestGuard_RateAtCap_NoAlert(t *testing.T) {
	// GIVEN: A 15% cap
	// WHEN: Checking exactly 15%
	// THEN: No breach

	g := commission.NewGuard([]commission.ComplianceRule{motorCap("15")}, commission.DefaultGuardConfig())

	capped, alert := g.CheckCompliance(commission.MustRate("15"), commission.ProductMotor)

	assert.True(t, capped.Equal(commission.MustRate("15")))
	assert.Nil(t, alert)
}

func TestGuard_Breach_CapsAndAlertsMedium(t *testing.T) {
	// GIVEN: A 12% cap and default severity thresholds
	// WHEN: Checking 13% (excess 1 point)
	// THEN: Capped to 12% with a medium alert carrying both rates

	g := commission.NewGuard([]commission.ComplianceRule{motorCap("12")}, commission.DefaultGuardConfig())

	capped, alert := g.CheckCompliance(commission.MustRate("13"), commission.ProductMotor)

	assert.True(t, capped.Equal(commission.MustRate("12")))
	require.NotNil(t, alert)
	assert.Equal(t, commission.SeverityMedium, alert.Severity)
	assert.True(t, alert.CurrentRate.Equal(commission.MustRate("13")))
	assert.True(t, alert.MaxAllowed.Equal(commission.MustRate("12")))
	assert.True(t, alert.Excess.Equal(commission.MustRate("1")))
}

func TestGuard_LargeBreach_AlertsHigh(t *testing.T) {
	// GIVEN: A 12% cap; high severity above 2 points of excess
	// WHEN: Checking 15% (excess 3 points)
	// THEN: High severity alert

	g := commission.NewGuard([]commission.ComplianceRule{motorCap("12")}, commission.DefaultGuardConfig())

	capped, alert := g.CheckCompliance(commission.MustRate("15"), commission.ProductMotor)

	assert.True(t, capped.Equal(commission.MustRate("12")))
	require.NotNil(t, alert)
	assert.Equal(t, commission.SeverityHigh, alert.Severity)
}

func TestGuard_NoRuleForCategory_NothingToCap(t *testing.T) {
	// GIVEN: Only a motor cap configured
	// WHEN: Checking a health rate
	// THEN: Passes through uncapped

	g := commission.NewGuard([]commission.ComplianceRule{motorCap("12")}, commission.DefaultGuardConfig())

	capped, alert := g.CheckCompliance(commission.MustRate("40"), commission.ProductHealth)

	assert.True(t, capped.Equal(commission.MustRate("40")))
	assert.Nil(t, alert)
}

func TestGuard_MultipleRulesForCategory_TightestCapWins(t *testing.T) {
	// GIVEN: Two motor caps, 15% and 12%
	// WHEN: Checking 14%
	// THEN: The 12% cap applies

	loose := motorCap("15")
	tight := motorCap("12")
	tight.ID = "cap-motor-tight"

	g := commission.NewGuard([]commission.ComplianceRule{loose, tight}, commission.DefaultGuardConfig())

	capped, alert := g.CheckCompliance(commission.MustRate("14"), commission.ProductMotor)

	assert.True(t, capped.Equal(commission.MustRate("12")))
	require.NotNil(t, alert)
	assert.Equal(t, commission.RuleID("cap-motor-tight"), alert.RuleID)
}
