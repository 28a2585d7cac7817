/*
grid.go - Line-of-business commission grids

PURPOSE:
  A GridEntry prices one (provider, product, plan) combination for a
  validity window. Each line of business carries its own discriminator
  fields: motor matches on vehicle make and fuel type, health on a
  sum-insured band, life on an annual-premium band plus the PPT/PT term
  pair. Rather than one loosely-typed row with a bag of optional columns,
  the dimensions are a tagged variant keyed by ProductType.

LIFECYCLE:
  Entries are created and edited from admin screens and DEACTIVATED, never
  hard-deleted, so historical policy calculations stay reproducible.

SPECIFICITY:
  An entry that pins a dimension (e.g. vehicle_make="Maruti") is more
  specific than one that leaves it as a wildcard. Resolution prefers the
  most specific match; see resolver.go.

SEE ALSO:
  - resolver.go: Matching and ranking over these entries
  - store/sqlite: Persistence with dimension columns per product type
*/
package commission

import (
	"strings"
	"time"
)

// =============================================================================
// GRID ENTRY
// =============================================================================

// GridEntry is one row of a line-of-business commission grid.
type GridEntry struct {
	ID             GridEntryID
	TenantID       TenantID
	ProductType    ProductType
	Provider       string
	ProductSubType string
	PlanName       string

	CommissionRate Rate
	RewardRate     Rate

	Validity Window
	IsActive bool

	Dimensions Dimensions

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ActiveOn reports whether the entry can price a policy evaluated on d.
func (g GridEntry) ActiveOn(d time.Time) bool {
	return g.IsActive && g.Validity.Contains(d)
}

// =============================================================================
// DIMENSIONS - Tagged variant per product type
// =============================================================================

// Dimensions is the product-type-specific discriminator set of a grid
// entry. Implementations are value types; an entry with a zero-value
// dimension set is a wildcard row for its product type.
type Dimensions interface {
	// Matches reports whether the policy context satisfies the dimensions.
	// A wildcard (unset) field always matches.
	Matches(ctx ResolutionContext) bool

	// Specificity counts populated dimension fields that constrain the
	// match. Higher wins ties during resolution.
	Specificity() int

	// Product returns the product type these dimensions belong to.
	Product() ProductType
}

// MotorDimensions matches on vehicle make and fuel type.
type MotorDimensions struct {
	VehicleMake string
	FuelType    string
}

func (d MotorDimensions) Product() ProductType { return ProductMotor }

func (d MotorDimensions) Matches(ctx ResolutionContext) bool {
	if d.VehicleMake != "" && !strings.EqualFold(d.VehicleMake, ctx.VehicleMake) {
		return false
	}
	if d.FuelType != "" && !strings.EqualFold(d.FuelType, ctx.FuelType) {
		return false
	}
	return true
}

func (d MotorDimensions) Specificity() int {
	n := 0
	if d.VehicleMake != "" {
		n++
	}
	if d.FuelType != "" {
		n++
	}
	return n
}

// HealthDimensions matches when the policy's sum insured falls inside
// [SumInsuredMin, SumInsuredMax]. A zero Max means unbounded above.
type HealthDimensions struct {
	SumInsuredMin Money
	SumInsuredMax Money
}

func (d HealthDimensions) Product() ProductType { return ProductHealth }

func (d HealthDimensions) Matches(ctx ResolutionContext) bool {
	if d.SumInsuredMin.IsPositive() && ctx.SumInsured.LessThan(d.SumInsuredMin) {
		return false
	}
	if d.SumInsuredMax.IsPositive() && ctx.SumInsured.GreaterThan(d.SumInsuredMax) {
		return false
	}
	return true
}

func (d HealthDimensions) Specificity() int {
	n := 0
	if d.SumInsuredMin.IsPositive() {
		n++
	}
	if d.SumInsuredMax.IsPositive() {
		n++
	}
	return n
}

// LifeDimensions matches on an annual-premium band and the PPT/PT term
// pair. Zero fields are wildcards.
type LifeDimensions struct {
	PremiumStart Money
	PremiumEnd   Money
	PPT          int
	PT           int
}

func (d LifeDimensions) Product() ProductType { return ProductLife }

func (d LifeDimensions) Matches(ctx ResolutionContext) bool {
	if d.PremiumStart.IsPositive() && ctx.AnnualPremium.LessThan(d.PremiumStart) {
		return false
	}
	if d.PremiumEnd.IsPositive() && ctx.AnnualPremium.GreaterThan(d.PremiumEnd) {
		return false
	}
	if d.PPT != 0 && d.PPT != ctx.PPT {
		return false
	}
	if d.PT != 0 && d.PT != ctx.PT {
		return false
	}
	return true
}

func (d LifeDimensions) Specificity() int {
	n := 0
	if d.PremiumStart.IsPositive() {
		n++
	}
	if d.PremiumEnd.IsPositive() {
		n++
	}
	if d.PPT != 0 {
		n++
	}
	if d.PT != 0 {
		n++
	}
	return n
}

// WildcardDimensions is the catch-all row for any product type: no
// constraints, zero specificity.
type WildcardDimensions struct {
	ProductType ProductType
}

func (d WildcardDimensions) Product() ProductType           { return d.ProductType }
func (d WildcardDimensions) Matches(ResolutionContext) bool { return true }
func (d WildcardDimensions) Specificity() int               { return 0 }
