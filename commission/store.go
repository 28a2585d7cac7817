/*
store.go - Persistence interfaces for the commission engine

PURPOSE:
  Defines the boundary between calculation logic and the database. The
  engine itself is pure; everything stateful goes through these
  interfaces. Implementations: store/sqlite (production) and
  commission/store (in-memory, for tests and dev).

TENANCY:
  Every read and write is scoped by TenantID. An empty tenant is
  ErrTenantRequired at the API layer; stores may assume it is set.

MUTATION RULES:
  - Grid entries are deactivated, never deleted, so historical policy
    calculations stay reproducible.
  - Revenue records are replaced wholesale per sync run inside a single
    store transaction (complete-or-retry; partial application would leave
    records inconsistent with their source policies).
  - Status changes on revenue records are conditional updates guarded by
    the record version; a stale version is ErrConcurrentModification.

SEE ALSO:
  - store/sqlite/sqlite.go: SQLite implementation
  - commission/store/memory.go: In-memory implementation
*/
package commission

import (
	"context"
	"time"
)

// =============================================================================
// RULE STATE - Grids, campaigns, compliance rules
// =============================================================================

// GridStore persists commission grid entries.
type GridStore interface {
	SaveGridEntry(ctx context.Context, e GridEntry) error
	GetGridEntry(ctx context.Context, tenant TenantID, id GridEntryID) (*GridEntry, error)
	ListGridEntries(ctx context.Context, tenant TenantID) ([]GridEntry, error)

	// DeactivateGridEntry soft-deletes: the entry stops matching new
	// policies but remains for historical audit.
	DeactivateGridEntry(ctx context.Context, tenant TenantID, id GridEntryID) error
}

// CampaignStore persists campaign bonuses. Expired campaigns stay stored.
type CampaignStore interface {
	SaveCampaign(ctx context.Context, c Campaign) error
	ListCampaigns(ctx context.Context, tenant TenantID) ([]Campaign, error)
}

// RuleStore persists compliance rules.
type RuleStore interface {
	SaveComplianceRule(ctx context.Context, r ComplianceRule) error
	ListComplianceRules(ctx context.Context, tenant TenantID) ([]ComplianceRule, error)
}

// AlertStore records cap breaches for the compliance dashboard.
// Append-only: an alert is evidence, not mutable state.
type AlertStore interface {
	AppendAlert(ctx context.Context, tenant TenantID, a Alert, at time.Time) error
	ListAlerts(ctx context.Context, tenant TenantID) ([]StoredAlert, error)
	// ClearAlerts drops alerts before a fresh sync re-derives them.
	ClearAlerts(ctx context.Context, tenant TenantID) error
}

// StoredAlert is an Alert with storage metadata.
type StoredAlert struct {
	Alert
	TenantID  TenantID
	CreatedAt time.Time
}

// =============================================================================
// POLICY INPUTS
// =============================================================================

// PolicyStore holds normalized policy rows, the input to sync runs.
type PolicyStore interface {
	SavePolicy(ctx context.Context, p PolicyInput) error
	ListPolicies(ctx context.Context, tenant TenantID) ([]PolicyInput, error)
}

// =============================================================================
// REVENUE RECORDS
// =============================================================================

// RevenueStore persists calculation output.
type RevenueStore interface {
	// ReplaceRecords atomically swaps the tenant's record set for the new
	// one. Either the whole batch lands or none of it does, which is what
	// makes sync runs retryable.
	ReplaceRecords(ctx context.Context, tenant TenantID, records []RevenueRecord) error

	ListRecords(ctx context.Context, tenant TenantID) ([]RevenueRecord, error)
	GetRecord(ctx context.Context, tenant TenantID, id RecordID) (*RevenueRecord, error)

	// UpdateRecordStatus is a conditional write: it succeeds only when the
	// stored version equals expectedVersion, bumping the version by one.
	// Returns ErrConcurrentModification otherwise.
	UpdateRecordStatus(ctx context.Context, tenant TenantID, id RecordID, status CommissionStatus, expectedVersion int) error
}

// =============================================================================
// SETTLEMENTS
// =============================================================================

// SettlementStore persists settlements and their action audit trail.
type SettlementStore interface {
	SaveSettlement(ctx context.Context, s Settlement) error
	GetSettlement(ctx context.Context, tenant TenantID, id SettlementID) (*Settlement, error)
	ListSettlements(ctx context.Context, tenant TenantID) ([]Settlement, error)

	AppendAction(ctx context.Context, tenant TenantID, a ActionRecord) error
	ListActions(ctx context.Context, tenant TenantID, id SettlementID) ([]ActionRecord, error)
}

// =============================================================================
// SYNC RUNS
// =============================================================================

// SyncRun records one batch run for operational visibility.
type SyncRun struct {
	ID         string
	TenantID   TenantID
	Kind       string // "commissions" | "revenue"
	Total      int
	Successful int
	Failed     int
	StartedAt  time.Time
	FinishedAt time.Time
}

// SyncRunStore is append-only run history.
type SyncRunStore interface {
	AppendSyncRun(ctx context.Context, run SyncRun) error
	ListSyncRuns(ctx context.Context, tenant TenantID) ([]SyncRun, error)
}

// =============================================================================
// COMBINED STORE
// =============================================================================

// Store is the full persistence surface the API layer depends on.
type Store interface {
	GridStore
	CampaignStore
	RuleStore
	AlertStore
	PolicyStore
	RevenueStore
	SettlementStore
	SyncRunStore
}
