/*
aggregate.go - Revenue totals for dashboards and export

PURPOSE:
  Rolls calculated RevenueRecords into the reportable totals the frontend
  charts and the CSV export footer show. Aggregation is a pure reduction;
  the FilteredAggregator adds a read-through cache so a dashboard that
  re-renders with unchanged filters does not re-scan the full record set.

CORRECTNESS FIRST:
  The cache key is the complete filter value. Any change to any filter
  field misses the cache and recomputes from the full set. Incremental
  update is an optimization layered over a correct full recompute, never a
  substitute for it.
*/
package commission

import (
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// TOTALS
// =============================================================================

// Totals is the reduction over a set of revenue records.
type Totals struct {
	TotalCommission Money // insurer commission, synonym kept for dashboards
	TotalInsurer    Money
	TotalAgent      Money
	TotalEmployee   Money
	TotalBroker     Money
	TotalPremium    Money
	AvgBaseRate     Rate
	Count           int
}

// Aggregate reduces records to totals. AvgBaseRate guards divide-by-zero:
// it is zero when the set is empty.
func Aggregate(records []RevenueRecord) Totals {
	t := Totals{
		TotalCommission: decimal.Zero,
		TotalInsurer:    decimal.Zero,
		TotalAgent:      decimal.Zero,
		TotalEmployee:   decimal.Zero,
		TotalBroker:     decimal.Zero,
		TotalPremium:    decimal.Zero,
		AvgBaseRate:     decimal.Zero,
	}

	baseSum := decimal.Zero
	for _, r := range records {
		t.TotalInsurer = t.TotalInsurer.Add(r.InsurerCommission)
		t.TotalAgent = t.TotalAgent.Add(r.AgentCommission)
		t.TotalEmployee = t.TotalEmployee.Add(r.EmployeeCommission)
		t.TotalBroker = t.TotalBroker.Add(r.BrokerShare)
		t.TotalPremium = t.TotalPremium.Add(r.Premium)
		baseSum = baseSum.Add(r.BaseRate)
		t.Count++
	}
	t.TotalCommission = t.TotalInsurer

	if t.Count > 0 {
		t.AvgBaseRate = baseSum.Div(decimal.NewFromInt(int64(t.Count)))
	}
	return t
}

// =============================================================================
// FILTERS
// =============================================================================

// Filter narrows a revenue record set. Zero-value fields are no-ops.
type Filter struct {
	ProductType ProductType
	SourceType  SourceType
	Provider    string
	Search      string // matches policy number and party names, case-insensitive
	DateFrom    time.Time
	DateTo      time.Time
}

// IsZero reports whether the filter narrows nothing.
func (f Filter) IsZero() bool {
	return f.ProductType == "" && f.SourceType == "" && f.Provider == "" &&
		f.Search == "" && f.DateFrom.IsZero() && f.DateTo.IsZero()
}

// Matches reports whether a record survives the filter.
func (f Filter) Matches(r RevenueRecord) bool {
	if f.ProductType != "" && r.ProductType != f.ProductType {
		return false
	}
	if f.SourceType != "" && r.SourceType != f.SourceType {
		return false
	}
	if f.Provider != "" && !equalProvider(r.Provider, f.Provider) {
		return false
	}
	if !f.DateFrom.IsZero() && r.CalcDate.Before(DateOnly(f.DateFrom)) {
		return false
	}
	if !f.DateTo.IsZero() && r.CalcDate.After(DateOnly(f.DateTo)) {
		return false
	}
	if f.Search != "" && !searchMatches(r, f.Search) {
		return false
	}
	return true
}

func searchMatches(r RevenueRecord, q string) bool {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return true
	}
	for _, field := range []string{r.PolicyNumber, r.CustomerName, r.AgentName, r.EmployeeName, r.MISPName, r.Provider} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}

// ApplyFilter returns the records that survive the filter, preserving order.
func ApplyFilter(records []RevenueRecord, f Filter) []RevenueRecord {
	if f.IsZero() {
		return records
	}
	var out []RevenueRecord
	for _, r := range records {
		if f.Matches(r) {
			out = append(out, r)
		}
	}
	return out
}

// =============================================================================
// FILTERED AGGREGATOR - Read-through cache keyed by (tenant, filter)
// =============================================================================

type cacheKey struct {
	tenant TenantID
	filter Filter
}

type cacheEntry struct {
	records []RevenueRecord
	totals  Totals
}

// FilteredAggregator caches filtered slices and their totals per tenant.
// Writes to the underlying record set must call Invalidate.
type FilteredAggregator struct {
	mu    sync.RWMutex
	cache map[cacheKey]cacheEntry
}

func NewFilteredAggregator() *FilteredAggregator {
	return &FilteredAggregator{cache: make(map[cacheKey]cacheEntry)}
}

// AggregateFiltered filters and reduces, serving repeat (tenant, filter)
// pairs from cache.
func (fa *FilteredAggregator) AggregateFiltered(tenant TenantID, records []RevenueRecord, f Filter) ([]RevenueRecord, Totals) {
	key := cacheKey{tenant: tenant, filter: f}

	fa.mu.RLock()
	if entry, ok := fa.cache[key]; ok {
		fa.mu.RUnlock()
		return entry.records, entry.totals
	}
	fa.mu.RUnlock()

	filtered := ApplyFilter(records, f)
	totals := Aggregate(filtered)

	fa.mu.Lock()
	fa.cache[key] = cacheEntry{records: filtered, totals: totals}
	fa.mu.Unlock()

	return filtered, totals
}

// Invalidate drops every cached slice for a tenant. Called on any write
// that touches the tenant's revenue records.
func (fa *FilteredAggregator) Invalidate(tenant TenantID) {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	for key := range fa.cache {
		if key.tenant == tenant {
			delete(fa.cache, key)
		}
	}
}

// =============================================================================
// LOB PERFORMANCE - Dashboard panel
// =============================================================================

// LOBPerformance is one line-of-business row on the dashboard.
type LOBPerformance struct {
	Name    ProductType
	AvgRate Rate
	Count   int
}

// PerformanceByLOB groups records by product type and averages base rates.
// Output order is fixed (motor, health, life) so dashboards render stably.
func PerformanceByLOB(records []RevenueRecord) []LOBPerformance {
	sums := map[ProductType]Rate{}
	counts := map[ProductType]int{}
	for _, r := range records {
		sum, ok := sums[r.ProductType]
		if !ok {
			sum = decimal.Zero
		}
		sums[r.ProductType] = sum.Add(r.BaseRate)
		counts[r.ProductType]++
	}

	var out []LOBPerformance
	for _, pt := range []ProductType{ProductMotor, ProductHealth, ProductLife} {
		n := counts[pt]
		if n == 0 {
			continue
		}
		out = append(out, LOBPerformance{
			Name:    pt,
			AvgRate: sums[pt].Div(decimal.NewFromInt(int64(n))),
			Count:   n,
		})
	}
	return out
}
