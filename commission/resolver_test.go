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

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func window2025() commission.Window {
	return commission.Window{From: date(2025, time.January, 1), To: date(2025, time.December, 31)}
}

func motorEntry(id string, rate string, dims commission.MotorDimensions) commission.GridEntry {
	return commission.GridEntry{
		ID:             commission.GridEntryID(id),
		TenantID:       "org-1",
		ProductType:    commission.ProductMotor,
		Provider:       "Acme General",
		CommissionRate: commission.MustRate(rate),
		Validity:       window2025(),
		IsActive:       true,
		Dimensions:     dims,
	}
}

// =============================================================================
// SPECIFICITY RANKING TESTS
// =============================================================================

func TestResolver_SpecificEntryBeatsWildcard(t *testing.T) {
	// GIVEN: A wildcard motor entry and one pinned to Maruti petrol
	// WHEN: Resolving a Maruti petrol policy
	// THEN: The pinned entry wins

	r := commission.NewResolver([]commission.GridEntry{
		motorEntry("wildcard", "10", commission.MotorDimensions{}),
		motorEntry("maruti-petrol", "12", commission.MotorDimensions{VehicleMake: "Maruti", FuelType: "Petrol"}),
	})

	res, err := r.ResolveBaseRate(commission.ProductMotor, "Acme General",
		commission.ResolutionContext{VehicleMake: "Maruti", FuelType: "Petrol"}, date(2025, time.June, 1))

	require.NoError(t, err)
	assert.Equal(t, commission.GridEntryID("maruti-petrol"), res.MatchedEntryID)
	assert.True(t, res.BaseRate.Equal(commission.MustRate("12")))
}

func TestResolver_WildcardCatchesUnmatchedContext(t *testing.T) {
	// GIVEN: A wildcard entry and a Maruti-only entry
	// WHEN: Resolving a Hyundai policy
	// THEN: The wildcard entry prices it

	r := commission.NewResolver([]commission.GridEntry{
		motorEntry("wildcard", "10", commission.MotorDimensions{}),
		motorEntry("maruti", "12", commission.MotorDimensions{VehicleMake: "Maruti"}),
	})

	res, err := r.ResolveBaseRate(commission.ProductMotor, "Acme General",
		commission.ResolutionContext{VehicleMake: "Hyundai", FuelType: "Diesel"}, date(2025, time.June, 1))

	require.NoError(t, err)
	assert.Equal(t, commission.GridEntryID("wildcard"), res.MatchedEntryID)
}

func TestResolver_MoreRecentValidFromBreaksSpecificityTie(t *testing.T) {
	// GIVEN: Two equally specific entries with different valid_from dates
	// WHEN: Resolving while both are in force
	// THEN: The more recently effective entry wins

	older := motorEntry("older", "10", commission.MotorDimensions{VehicleMake: "Maruti"})
	older.Validity = commission.Window{From: date(2025, time.January, 1), To: date(2025, time.December, 31)}

	newer := motorEntry("newer", "11", commission.MotorDimensions{VehicleMake: "Maruti"})
	newer.Validity = commission.Window{From: date(2025, time.April, 1), To: date(2025, time.December, 31)}

	r := commission.NewResolver([]commission.GridEntry{older, newer})

	res, err := r.ResolveBaseRate(commission.ProductMotor, "Acme General",
		commission.ResolutionContext{VehicleMake: "Maruti"}, date(2025, time.June, 1))

	require.NoError(t, err)
	assert.Equal(t, commission.GridEntryID("newer"), res.MatchedEntryID)
}

func TestResolver_SubTypeAndPlanPinsCountAsSpecificity(t *testing.T) {
	// GIVEN: A dimension wildcard pinned to a plan name vs a bare wildcard
	// WHEN: Resolving
	// THEN: The plan-pinned entry wins

	plain := motorEntry("plain", "10", commission.MotorDimensions{})
	pinned := motorEntry("pinned", "13", commission.MotorDimensions{})
	pinned.PlanName = "Comprehensive"

	r := commission.NewResolver([]commission.GridEntry{plain, pinned})

	res, err := r.ResolveBaseRate(commission.ProductMotor, "Acme General",
		commission.ResolutionContext{}, date(2025, time.June, 1))

	require.NoError(t, err)
	assert.Equal(t, commission.GridEntryID("pinned"), res.MatchedEntryID)
}

// =============================================================================
// ERROR TESTS
// =============================================================================

func TestResolver_NoMatch_ReturnsRateNotFound(t *testing.T) {
	// GIVEN: A grid with only Acme entries
	// WHEN: Resolving a policy from an unknown provider
	// THEN: RateNotFoundError, never a default rate

	r := commission.NewResolver([]commission.GridEntry{
		motorEntry("only", "10", commission.MotorDimensions{}),
	})

	_, err := r.ResolveBaseRate(commission.ProductMotor, "Nowhere Insurance",
		commission.ResolutionContext{}, date(2025, time.June, 1))

	require.Error(t, err)
	assert.ErrorIs(t, err, commission.ErrRateNotFound)

	var notFound *commission.RateNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "Nowhere Insurance", notFound.Provider)
}

func TestResolver_ExpiredEntry_DoesNotMatch(t *testing.T) {
	// GIVEN: An entry whose validity ended before the policy issue date
	// WHEN: Resolving past the window
	// THEN: RateNotFoundError

	e := motorEntry("expired", "10", commission.MotorDimensions{})
	e.Validity = commission.Window{From: date(2024, time.January, 1), To: date(2024, time.December, 31)}
	r := commission.NewResolver([]commission.GridEntry{e})

	_, err := r.ResolveBaseRate(commission.ProductMotor, "Acme General",
		commission.ResolutionContext{}, date(2025, time.June, 1))

	assert.ErrorIs(t, err, commission.ErrRateNotFound)
}

func TestResolver_DeactivatedEntry_DoesNotMatch(t *testing.T) {
	// GIVEN: A soft-deleted entry
	// WHEN: Resolving
	// THEN: It no longer prices new policies

	e := motorEntry("inactive", "10", commission.MotorDimensions{})
	e.IsActive = false
	r := commission.NewResolver([]commission.GridEntry{e})

	_, err := r.ResolveBaseRate(commission.ProductMotor, "Acme General",
		commission.ResolutionContext{}, date(2025, time.June, 1))

	assert.ErrorIs(t, err, commission.ErrRateNotFound)
}

func TestResolver_EqualSpecificityTie_IsAmbiguous(t *testing.T) {
	// GIVEN: Two identical-specificity entries with the same valid_from
	// WHEN: Resolving a policy both match
	// THEN: AmbiguousRateError naming both entries, never an arbitrary pick

	a := motorEntry("tie-a", "10", commission.MotorDimensions{VehicleMake: "Maruti"})
	b := motorEntry("tie-b", "11", commission.MotorDimensions{VehicleMake: "Maruti"})
	r := commission.NewResolver([]commission.GridEntry{a, b})

	_, err := r.ResolveBaseRate(commission.ProductMotor, "Acme General",
		commission.ResolutionContext{VehicleMake: "Maruti"}, date(2025, time.June, 1))

	require.Error(t, err)
	assert.ErrorIs(t, err, commission.ErrAmbiguousRate)

	var ambiguous *commission.AmbiguousRateError
	require.ErrorAs(t, err, &ambiguous)
	assert.Len(t, ambiguous.EntryIDs, 2)
}

// =============================================================================
// DETERMINISM TESTS
// =============================================================================

func TestResolver_Deterministic_RegardlessOfEntryOrder(t *testing.T) {
	// GIVEN: The same grid in two different slice orders
	// WHEN: Resolving the same policy against both
	// THEN: The same entry wins both times

	entries := []commission.GridEntry{
		motorEntry("wildcard", "10", commission.MotorDimensions{}),
		motorEntry("make-only", "11", commission.MotorDimensions{VehicleMake: "Maruti"}),
		motorEntry("make-fuel", "12", commission.MotorDimensions{VehicleMake: "Maruti", FuelType: "Petrol"}),
	}
	reversed := []commission.GridEntry{entries[2], entries[1], entries[0]}

	ctx := commission.ResolutionContext{VehicleMake: "Maruti", FuelType: "Petrol"}
	asOf := date(2025, time.June, 1)

	res1, err := commission.NewResolver(entries).ResolveBaseRate(commission.ProductMotor, "Acme General", ctx, asOf)
	require.NoError(t, err)
	res2, err := commission.NewResolver(reversed).ResolveBaseRate(commission.ProductMotor, "Acme General", ctx, asOf)
	require.NoError(t, err)

	assert.Equal(t, res1.MatchedEntryID, res2.MatchedEntryID)
	assert.Equal(t, commission.GridEntryID("make-fuel"), res1.MatchedEntryID)
}

func TestResolver_ProviderMatch_IgnoresCaseAndPadding(t *testing.T) {
	// GIVEN: A grid entry for "Acme General"
	// WHEN: Resolving with "  acme general " as typed upstream
	// THEN: The entry still matches

	r := commission.NewResolver([]commission.GridEntry{
		motorEntry("acme", "10", commission.MotorDimensions{}),
	})

	res, err := r.ResolveBaseRate(commission.ProductMotor, "  acme general ",
		commission.ResolutionContext{}, date(2025, time.June, 1))

	require.NoError(t, err)
	assert.Equal(t, commission.GridEntryID("acme"), res.MatchedEntryID)
}

// =============================================================================
// HEALTH AND LIFE DIMENSION TESTS
// =============================================================================

func TestResolver_HealthBand_MatchesInclusiveBounds(t *testing.T) {
	// GIVEN: A health entry for sum insured 500000..1000000
	// WHEN: Resolving at the exact lower bound
	// THEN: The banded entry matches

	banded := commission.GridEntry{
		ID:             "band",
		TenantID:       "org-1",
		ProductType:    commission.ProductHealth,
		Provider:       "Acme Health",
		CommissionRate: commission.MustRate("15"),
		Validity:       window2025(),
		IsActive:       true,
		Dimensions: commission.HealthDimensions{
			SumInsuredMin: commission.MustRate("500000"),
			SumInsuredMax: commission.MustRate("1000000"),
		},
	}
	r := commission.NewResolver([]commission.GridEntry{banded})

	res, err := r.ResolveBaseRate(commission.ProductHealth, "Acme Health",
		commission.ResolutionContext{SumInsured: commission.MustRate("500000")}, date(2025, time.June, 1))

	require.NoError(t, err)
	assert.Equal(t, commission.GridEntryID("band"), res.MatchedEntryID)
}

func TestResolver_LifeTermPair_MustMatchExactly(t *testing.T) {
	// GIVEN: A life entry pinned to PPT 10 / PT 20
	// WHEN: Resolving a PPT 10 / PT 15 policy
	// THEN: No match

	pinned := commission.GridEntry{
		ID:             "term",
		TenantID:       "org-1",
		ProductType:    commission.ProductLife,
		Provider:       "Acme Life",
		CommissionRate: commission.MustRate("25"),
		Validity:       window2025(),
		IsActive:       true,
		Dimensions:     commission.LifeDimensions{PPT: 10, PT: 20},
	}
	r := commission.NewResolver([]commission.GridEntry{pinned})

	_, err := r.ResolveBaseRate(commission.ProductLife, "Acme Life",
		commission.ResolutionContext{PPT: 10, PT: 15}, date(2025, time.June, 1))

	assert.ErrorIs(t, err, commission.ErrRateNotFound)
}
