// Package store provides commission.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/keystone/broking-engine/commission"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	grids       map[gridKey]commission.GridEntry
	campaigns   map[campaignKey]commission.Campaign
	rules       map[ruleKey]commission.ComplianceRule
	alerts      map[commission.TenantID][]commission.StoredAlert
	policies    map[commission.TenantID]map[string]commission.PolicyInput
	records     map[commission.TenantID]map[commission.RecordID]commission.RevenueRecord
	settlements map[settlementKey]commission.Settlement
	actions     map[settlementKey][]commission.ActionRecord
	syncRuns    map[commission.TenantID][]commission.SyncRun
}

type gridKey struct {
	Tenant commission.TenantID
	ID     commission.GridEntryID
}

type campaignKey struct {
	Tenant commission.TenantID
	ID     commission.CampaignID
}

type ruleKey struct {
	Tenant commission.TenantID
	ID     commission.RuleID
}

type settlementKey struct {
	Tenant commission.TenantID
	ID     commission.SettlementID
}

func NewMemory() *Memory {
	return &Memory{
		grids:       make(map[gridKey]commission.GridEntry),
		campaigns:   make(map[campaignKey]commission.Campaign),
		rules:       make(map[ruleKey]commission.ComplianceRule),
		alerts:      make(map[commission.TenantID][]commission.StoredAlert),
		policies:    make(map[commission.TenantID]map[string]commission.PolicyInput),
		records:     make(map[commission.TenantID]map[commission.RecordID]commission.RevenueRecord),
		settlements: make(map[settlementKey]commission.Settlement),
		actions:     make(map[settlementKey][]commission.ActionRecord),
		syncRuns:    make(map[commission.TenantID][]commission.SyncRun),
	}
}

var _ commission.Store = (*Memory)(nil)

// =============================================================================
// GRID ENTRIES
// =============================================================================

func (m *Memory) SaveGridEntry(_ context.Context, e commission.GridEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grids[gridKey{Tenant: e.TenantID, ID: e.ID}] = e
	return nil
}

func (m *Memory) GetGridEntry(_ context.Context, tenant commission.TenantID, id commission.GridEntryID) (*commission.GridEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.grids[gridKey{Tenant: tenant, ID: id}]
	if !ok {
		return nil, commission.ErrGridNotFound
	}
	return &e, nil
}

func (m *Memory) ListGridEntries(_ context.Context, tenant commission.TenantID) ([]commission.GridEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []commission.GridEntry
	for k, e := range m.grids {
		if k.Tenant == tenant {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) DeactivateGridEntry(_ context.Context, tenant commission.TenantID, id commission.GridEntryID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := gridKey{Tenant: tenant, ID: id}
	e, ok := m.grids[k]
	if !ok {
		return commission.ErrGridNotFound
	}
	e.IsActive = false
	e.UpdatedAt = time.Now().UTC()
	m.grids[k] = e
	return nil
}

// =============================================================================
// CAMPAIGNS
// =============================================================================

func (m *Memory) SaveCampaign(_ context.Context, c commission.Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.campaigns[campaignKey{Tenant: c.TenantID, ID: c.ID}] = c
	return nil
}

func (m *Memory) ListCampaigns(_ context.Context, tenant commission.TenantID) ([]commission.Campaign, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []commission.Campaign
	for k, c := range m.campaigns {
		if k.Tenant == tenant {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// =============================================================================
// COMPLIANCE RULES AND ALERTS
// =============================================================================

func (m *Memory) SaveComplianceRule(_ context.Context, r commission.ComplianceRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[ruleKey{Tenant: r.TenantID, ID: r.ID}] = r
	return nil
}

func (m *Memory) ListComplianceRules(_ context.Context, tenant commission.TenantID) ([]commission.ComplianceRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []commission.ComplianceRule
	for k, r := range m.rules {
		if k.Tenant == tenant {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) AppendAlert(_ context.Context, tenant commission.TenantID, a commission.Alert, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts[tenant] = append(m.alerts[tenant], commission.StoredAlert{Alert: a, TenantID: tenant, CreatedAt: at})
	return nil
}

func (m *Memory) ListAlerts(_ context.Context, tenant commission.TenantID) ([]commission.StoredAlert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]commission.StoredAlert, len(m.alerts[tenant]))
	copy(out, m.alerts[tenant])
	return out, nil
}

func (m *Memory) ClearAlerts(_ context.Context, tenant commission.TenantID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.alerts, tenant)
	return nil
}

// =============================================================================
// POLICY INPUTS
// =============================================================================

func (m *Memory) SavePolicy(_ context.Context, p commission.PolicyInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.policies[p.TenantID] == nil {
		m.policies[p.TenantID] = make(map[string]commission.PolicyInput)
	}
	m.policies[p.TenantID][p.PolicyID] = p
	return nil
}

func (m *Memory) ListPolicies(_ context.Context, tenant commission.TenantID) ([]commission.PolicyInput, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []commission.PolicyInput
	for _, p := range m.policies[tenant] {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PolicyID < out[j].PolicyID })
	return out, nil
}

// =============================================================================
// REVENUE RECORDS
// =============================================================================

func (m *Memory) ReplaceRecords(_ context.Context, tenant commission.TenantID, records []commission.RevenueRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := make(map[commission.RecordID]commission.RevenueRecord, len(records))
	for _, r := range records {
		next[r.ID] = r
	}
	m.records[tenant] = next
	return nil
}

func (m *Memory) ListRecords(_ context.Context, tenant commission.TenantID) ([]commission.RevenueRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []commission.RevenueRecord
	for _, r := range m.records[tenant] {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PolicyID < out[j].PolicyID })
	return out, nil
}

func (m *Memory) GetRecord(_ context.Context, tenant commission.TenantID, id commission.RecordID) (*commission.RevenueRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[tenant][id]
	if !ok {
		return nil, commission.ErrRecordNotFound
	}
	return &r, nil
}

func (m *Memory) UpdateRecordStatus(_ context.Context, tenant commission.TenantID, id commission.RecordID, status commission.CommissionStatus, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[tenant][id]
	if !ok {
		return commission.ErrRecordNotFound
	}
	if r.Version != expectedVersion {
		return commission.ErrConcurrentModification
	}
	r.Status = status
	r.Version++
	m.records[tenant][id] = r
	return nil
}

// =============================================================================
// SETTLEMENTS
// =============================================================================

func (m *Memory) SaveSettlement(_ context.Context, s commission.Settlement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settlements[settlementKey{Tenant: s.TenantID, ID: s.ID}] = s
	return nil
}

func (m *Memory) GetSettlement(_ context.Context, tenant commission.TenantID, id commission.SettlementID) (*commission.Settlement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.settlements[settlementKey{Tenant: tenant, ID: id}]
	if !ok {
		return nil, commission.ErrSettlementNotFound
	}
	return &s, nil
}

func (m *Memory) ListSettlements(_ context.Context, tenant commission.TenantID) ([]commission.Settlement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []commission.Settlement
	for k, s := range m.settlements {
		if k.Tenant == tenant {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) AppendAction(_ context.Context, tenant commission.TenantID, a commission.ActionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := settlementKey{Tenant: tenant, ID: a.SettlementID}
	m.actions[k] = append(m.actions[k], a)
	return nil
}

func (m *Memory) ListActions(_ context.Context, tenant commission.TenantID, id commission.SettlementID) ([]commission.ActionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	k := settlementKey{Tenant: tenant, ID: id}
	out := make([]commission.ActionRecord, len(m.actions[k]))
	copy(out, m.actions[k])
	return out, nil
}

// =============================================================================
// SYNC RUNS
// =============================================================================

func (m *Memory) AppendSyncRun(_ context.Context, run commission.SyncRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncRuns[run.TenantID] = append(m.syncRuns[run.TenantID], run)
	return nil
}

func (m *Memory) ListSyncRuns(_ context.Context, tenant commission.TenantID) ([]commission.SyncRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]commission.SyncRun, len(m.syncRuns[tenant]))
	copy(out, m.syncRuns[tenant])
	return out, nil
}
