/*
resolver.go - Base rate resolution over line-of-business grids

PURPOSE:
  Given a policy's product type, provider, and discriminator context, find
  the single grid entry that prices it. The resolver never invents a rate:
  no match is an error the caller must handle (typically a manual-review
  flag), and a specificity tie is an error too: an ambiguous grid is a data
  defect that must surface, not be resolved by row order.

RANKING:
  1. Only active entries whose validity window contains the evaluation
     date (usually the policy issue date) and whose dimensions match.
  2. Higher dimension Specificity() wins.
  3. Among equals, the more recent ValidFrom wins.
  4. A surviving tie is AmbiguousRateError.

DETERMINISM:
  Resolving twice with identical inputs yields the identical MatchedEntryID.
  Nothing in the ranking depends on slice order.
*/
package commission

import (
	"strings"
	"time"
)

// =============================================================================
// RESOLUTION
// =============================================================================

// Resolution is a successful grid lookup.
type Resolution struct {
	BaseRate       Rate
	RewardRate     Rate
	MatchedEntryID GridEntryID
}

// Resolver selects the applicable grid entry for a policy.
type Resolver struct {
	entries []GridEntry
}

// NewResolver builds a resolver over a grid snapshot. The entries slice is
// not copied; callers must not mutate it while resolving.
func NewResolver(entries []GridEntry) *Resolver {
	return &Resolver{entries: entries}
}

// ResolveBaseRate finds the applicable base and reward rate for the given
// product/provider/context as of asOf. Returns RateNotFoundError when no
// entry matches and AmbiguousRateError on an unresolvable tie.
func (r *Resolver) ResolveBaseRate(productType ProductType, provider string, ctx ResolutionContext, asOf time.Time) (Resolution, error) {
	var best []GridEntry

	for _, e := range r.entries {
		if e.ProductType != productType {
			continue
		}
		if !equalProvider(e.Provider, provider) {
			continue
		}
		if !e.ActiveOn(asOf) {
			continue
		}
		if e.Dimensions != nil && !e.Dimensions.Matches(ctx) {
			continue
		}

		switch {
		case len(best) == 0:
			best = append(best, e)
		default:
			switch compareEntries(e, best[0]) {
			case 1:
				best = best[:0]
				best = append(best, e)
			case 0:
				best = append(best, e)
			}
		}
	}

	switch len(best) {
	case 0:
		return Resolution{}, &RateNotFoundError{ProductType: productType, Provider: provider, AsOf: asOf}
	case 1:
		e := best[0]
		return Resolution{BaseRate: e.CommissionRate, RewardRate: e.RewardRate, MatchedEntryID: e.ID}, nil
	default:
		ids := make([]GridEntryID, len(best))
		for i, e := range best {
			ids[i] = e.ID
		}
		return Resolution{}, &AmbiguousRateError{ProductType: productType, Provider: provider, EntryIDs: ids}
	}
}

// compareEntries ranks a against b: 1 if a wins, -1 if b wins, 0 on a tie.
// Specificity first, then the more recent ValidFrom.
func compareEntries(a, b GridEntry) int {
	sa, sb := specificity(a), specificity(b)
	if sa != sb {
		if sa > sb {
			return 1
		}
		return -1
	}
	af, bf := DateOnly(a.Validity.From), DateOnly(b.Validity.From)
	if af.After(bf) {
		return 1
	}
	if af.Before(bf) {
		return -1
	}
	return 0
}

func specificity(e GridEntry) int {
	n := 0
	if e.Dimensions != nil {
		n = e.Dimensions.Specificity()
	}
	// Sub-type and plan pins count toward specificity the same way a
	// populated dimension does.
	if e.ProductSubType != "" {
		n++
	}
	if e.PlanName != "" {
		n++
	}
	return n
}

func equalProvider(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
