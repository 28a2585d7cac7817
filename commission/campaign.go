/*
campaign.go - Time-bounded campaign bonuses

PURPOSE:
  Campaigns layer an extra bonus rate on top of a resolved base rate while
  a policy's date falls inside the campaign window and the campaign's
  eligibility criteria match. Bonuses are additive only: a campaign can
  never reduce a base rate, and a bonus rate is never negative.

STACKING:
  Multiple qualifying non-exclusive campaigns SUM. If any qualifying
  campaign is marked exclusive, the single highest-bonus exclusive campaign
  applies and the other exclusive campaigns are ignored; non-exclusive
  campaigns still stack on top of it.

WINDOWS:
  [ValidFrom, ValidTo] is inclusive at both ends: a policy dated exactly on
  ValidTo earns the bonus, one dated the next day does not. Expired
  campaigns are excluded from selection but retained for audit.
*/
package commission

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CAMPAIGN
// =============================================================================

// Campaign is a time-bounded bonus on top of grid rates.
type Campaign struct {
	ID        CampaignID
	TenantID  TenantID
	Name      string
	BonusRate Rate
	Validity  Window
	IsActive  bool

	// Exclusive campaigns do not stack with other exclusive campaigns;
	// the highest bonus among qualifying exclusives wins.
	Exclusive bool

	// Eligibility criteria. Empty slices match any value.
	ProductTypes []ProductType
	Providers    []string

	CreatedAt time.Time
}

// EligibleFor reports whether the campaign applies to a policy with the
// given product type and provider on policyDate.
func (c Campaign) EligibleFor(policyDate time.Time, productType ProductType, provider string) bool {
	if !c.IsActive || !c.Validity.Contains(policyDate) {
		return false
	}
	if len(c.ProductTypes) > 0 && !containsProduct(c.ProductTypes, productType) {
		return false
	}
	if len(c.Providers) > 0 && !containsProvider(c.Providers, provider) {
		return false
	}
	return true
}

// =============================================================================
// BONUS ENGINE
// =============================================================================

// ApplyCampaignBonus returns the total bonus rate earned by a policy.
// Pure function over the campaign snapshot; returns zero when nothing
// qualifies. Negative configured bonus rates are treated as zero.
func ApplyCampaignBonus(campaigns []Campaign, policyDate time.Time, productType ProductType, provider string) Rate {
	total := decimal.Zero
	bestExclusive := decimal.Zero
	haveExclusive := false

	for _, c := range campaigns {
		if !c.EligibleFor(policyDate, productType, provider) {
			continue
		}
		bonus := c.BonusRate
		if bonus.IsNegative() {
			continue
		}
		if c.Exclusive {
			if !haveExclusive || bonus.GreaterThan(bestExclusive) {
				bestExclusive = bonus
				haveExclusive = true
			}
			continue
		}
		total = total.Add(bonus)
	}

	if haveExclusive {
		total = total.Add(bestExclusive)
	}
	return total
}

// UpcomingCampaigns returns active campaigns whose window has not yet
// closed as of asOf, for the dashboard's campaign panel.
func UpcomingCampaigns(campaigns []Campaign, asOf time.Time) []Campaign {
	var out []Campaign
	day := DateOnly(asOf)
	for _, c := range campaigns {
		if c.IsActive && !DateOnly(c.Validity.To).Before(day) {
			out = append(out, c)
		}
	}
	return out
}

func containsProduct(list []ProductType, pt ProductType) bool {
	for _, p := range list {
		if p == pt {
			return true
		}
	}
	return false
}

func containsProvider(list []string, provider string) bool {
	for _, p := range list {
		if equalProvider(p, provider) {
			return true
		}
	}
	return false
}
