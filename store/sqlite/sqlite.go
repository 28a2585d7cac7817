/*
Package sqlite provides a SQLite-backed implementation of the commission
store interfaces.

PURPOSE:
  Implements commission.Store using SQLite. In production the same
  patterns apply to a hosted PostgreSQL - only minor SQL dialect
  differences.

KEY TABLES:
  grid_entries:       Line-of-business commission grids (soft-deleted)
  campaigns:          Time-bounded bonus campaigns (kept after expiry)
  compliance_rules:   Per-category rate caps
  compliance_alerts:  Cap breaches recorded by sync runs
  policies:           Normalized policy input rows
  revenue_records:    Calculation output, replaced wholesale per sync
  settlements:        Insurer statement reconciliation state
  settlement_actions: Audit trail of explicit state changes
  sync_runs:          Batch run history

DECIMALS:
  Rates and money are stored as TEXT and parsed with shopspring/decimal.
  Never as REAL: floating point has no place under a commission amount.

CONCURRENCY:
  Uses sync.RWMutex for in-process safety plus WAL mode for the database
  file. Revenue record status changes are conditional UPDATEs guarded by
  the version column; zero rows affected maps to
  commission.ErrConcurrentModification.

IDEMPOTENT SYNC:
  ReplaceRecords swaps a tenant's record set inside one database
  transaction: DELETE then INSERT, commit or nothing. Two identical runs
  produce identical tables.

USAGE:
  store, err := sqlite.New("./data/broking.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - commission/store.go: Interface definitions
  - commission/store/memory.go: In-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/keystone/broking-engine/commission"
)

// Store implements commission.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ commission.Store = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Line-of-business commission grids. Soft-deleted via is_active so
	-- historical policy calculations stay reproducible.
	CREATE TABLE IF NOT EXISTS grid_entries (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		product_type TEXT NOT NULL,
		provider TEXT NOT NULL,
		product_sub_type TEXT,
		plan_name TEXT,
		commission_rate TEXT NOT NULL,
		reward_rate TEXT NOT NULL,
		valid_from TEXT NOT NULL,
		valid_to TEXT NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		vehicle_make TEXT,
		fuel_type TEXT,
		sum_insured_min TEXT,
		sum_insured_max TEXT,
		premium_start TEXT,
		premium_end TEXT,
		ppt INTEGER,
		pt INTEGER,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_grid_entries_lookup
		ON grid_entries(tenant_id, product_type, provider, is_active);

	-- Campaigns are retained after expiry for audit.
	CREATE TABLE IF NOT EXISTS campaigns (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		name TEXT NOT NULL,
		bonus_rate TEXT NOT NULL,
		valid_from TEXT NOT NULL,
		valid_to TEXT NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		exclusive INTEGER NOT NULL DEFAULT 0,
		product_types_json TEXT,
		providers_json TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_campaigns_tenant ON campaigns(tenant_id);

	CREATE TABLE IF NOT EXISTS compliance_rules (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		product_category TEXT NOT NULL,
		max_allowed_rate TEXT NOT NULL,
		provider_name TEXT,
		product_name TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_compliance_rules_tenant
		ON compliance_rules(tenant_id, product_category);

	CREATE TABLE IF NOT EXISTS compliance_alerts (
		tenant_id TEXT NOT NULL,
		rule_id TEXT NOT NULL,
		provider_name TEXT,
		product_name TEXT,
		current_rate TEXT NOT NULL,
		max_allowed TEXT NOT NULL,
		excess TEXT NOT NULL,
		severity TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_compliance_alerts_tenant
		ON compliance_alerts(tenant_id);

	-- Normalized policy rows, the input to sync runs.
	CREATE TABLE IF NOT EXISTS policies (
		policy_id TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		policy_number TEXT NOT NULL,
		product_type TEXT NOT NULL,
		provider TEXT NOT NULL,
		source_type TEXT NOT NULL,
		premium TEXT NOT NULL,
		issue_date TEXT NOT NULL,
		context_json TEXT NOT NULL,
		parties_json TEXT NOT NULL,
		customer_name TEXT,
		agent_name TEXT,
		employee_name TEXT,
		misp_name TEXT,
		PRIMARY KEY (tenant_id, policy_id)
	);

	CREATE TABLE IF NOT EXISTS revenue_records (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		policy_id TEXT NOT NULL,
		policy_number TEXT NOT NULL,
		provider TEXT NOT NULL,
		product_type TEXT NOT NULL,
		source_type TEXT NOT NULL,
		customer_name TEXT,
		agent_name TEXT,
		employee_name TEXT,
		misp_name TEXT,
		premium TEXT NOT NULL,
		base_rate TEXT NOT NULL,
		reward_rate TEXT NOT NULL,
		bonus_rate TEXT NOT NULL,
		total_rate TEXT NOT NULL,
		insurer_commission TEXT NOT NULL,
		agent_commission TEXT NOT NULL,
		employee_commission TEXT NOT NULL,
		reporting_employee_commission TEXT NOT NULL,
		broker_share TEXT NOT NULL,
		status TEXT NOT NULL,
		calc_date TEXT NOT NULL,
		matched_entry_id TEXT,
		version INTEGER NOT NULL DEFAULT 1
	);

	CREATE INDEX IF NOT EXISTS idx_revenue_records_tenant
		ON revenue_records(tenant_id);
	CREATE INDEX IF NOT EXISTS idx_revenue_records_filters
		ON revenue_records(tenant_id, product_type, source_type, provider);

	CREATE TABLE IF NOT EXISTS settlements (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		insurer TEXT NOT NULL,
		period TEXT NOT NULL,
		expected TEXT NOT NULL,
		received TEXT NOT NULL,
		variance TEXT NOT NULL,
		status TEXT NOT NULL,
		approved_by TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_settlements_period
		ON settlements(tenant_id, insurer, period);

	-- Audit trail: who moved settlement state, and when. Append-only.
	CREATE TABLE IF NOT EXISTS settlement_actions (
		tenant_id TEXT NOT NULL,
		settlement_id TEXT NOT NULL,
		action TEXT NOT NULL,
		actor TEXT NOT NULL,
		note TEXT,
		at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_settlement_actions
		ON settlement_actions(tenant_id, settlement_id);

	CREATE TABLE IF NOT EXISTS sync_runs (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		total INTEGER NOT NULL,
		successful INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// GRID ENTRIES
// =============================================================================

func (s *Store) SaveGridEntry(ctx context.Context, e commission.GridEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	motor, health, life := splitDimensions(e.Dimensions)

	query := `
		INSERT INTO grid_entries
		(id, tenant_id, product_type, provider, product_sub_type, plan_name,
		 commission_rate, reward_rate, valid_from, valid_to, is_active,
		 vehicle_make, fuel_type, sum_insured_min, sum_insured_max,
		 premium_start, premium_end, ppt, pt, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		 provider=excluded.provider, product_sub_type=excluded.product_sub_type,
		 plan_name=excluded.plan_name, commission_rate=excluded.commission_rate,
		 reward_rate=excluded.reward_rate, valid_from=excluded.valid_from,
		 valid_to=excluded.valid_to, is_active=excluded.is_active,
		 vehicle_make=excluded.vehicle_make, fuel_type=excluded.fuel_type,
		 sum_insured_min=excluded.sum_insured_min, sum_insured_max=excluded.sum_insured_max,
		 premium_start=excluded.premium_start, premium_end=excluded.premium_end,
		 ppt=excluded.ppt, pt=excluded.pt, updated_at=excluded.updated_at
	`

	now := time.Now().UTC().Format(time.RFC3339)
	createdAt := now
	if !e.CreatedAt.IsZero() {
		createdAt = e.CreatedAt.UTC().Format(time.RFC3339)
	}

	_, err := s.db.ExecContext(ctx, query,
		e.ID, e.TenantID, e.ProductType, e.Provider, e.ProductSubType, e.PlanName,
		e.CommissionRate.String(), e.RewardRate.String(),
		formatDate(e.Validity.From), formatDate(e.Validity.To), boolToInt(e.IsActive),
		motor.VehicleMake, motor.FuelType,
		nullDecimal(health.SumInsuredMin), nullDecimal(health.SumInsuredMax),
		nullDecimal(life.PremiumStart), nullDecimal(life.PremiumEnd),
		life.PPT, life.PT,
		createdAt, now,
	)
	if err != nil {
		return fmt.Errorf("failed to save grid entry: %w", err)
	}
	return nil
}

func (s *Store) GetGridEntry(ctx context.Context, tenant commission.TenantID, id commission.GridEntryID) (*commission.GridEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, gridSelect+` WHERE tenant_id = ? AND id = ?`, tenant, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query grid entry: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, commission.ErrGridNotFound
	}
	e, err := scanGridEntry(rows)
	if err != nil {
		return nil, err
	}
	return &e, rows.Err()
}

func (s *Store) ListGridEntries(ctx context.Context, tenant commission.TenantID) ([]commission.GridEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, gridSelect+` WHERE tenant_id = ? ORDER BY id`, tenant)
	if err != nil {
		return nil, fmt.Errorf("failed to list grid entries: %w", err)
	}
	defer rows.Close()

	var out []commission.GridEntry
	for rows.Next() {
		e, err := scanGridEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) DeactivateGridEntry(ctx context.Context, tenant commission.TenantID, id commission.GridEntryID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE grid_entries SET is_active = 0, updated_at = ? WHERE tenant_id = ? AND id = ?`,
		time.Now().UTC().Format(time.RFC3339), tenant, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate grid entry: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return commission.ErrGridNotFound
	}
	return nil
}

const gridSelect = `
	SELECT id, tenant_id, product_type, provider, product_sub_type, plan_name,
	       commission_rate, reward_rate, valid_from, valid_to, is_active,
	       vehicle_make, fuel_type, sum_insured_min, sum_insured_max,
	       premium_start, premium_end, ppt, pt, created_at, updated_at
	FROM grid_entries`

func scanGridEntry(rows *sql.Rows) (commission.GridEntry, error) {
	var (
		e                          commission.GridEntry
		commissionRate, rewardRate string
		validFrom, validTo         string
		isActive                   int
		vehicleMake, fuelType      sql.NullString
		siMin, siMax               sql.NullString
		premStart, premEnd         sql.NullString
		ppt, pt                    sql.NullInt64
		createdAt, updatedAt       string
	)

	err := rows.Scan(
		&e.ID, &e.TenantID, &e.ProductType, &e.Provider, &e.ProductSubType, &e.PlanName,
		&commissionRate, &rewardRate, &validFrom, &validTo, &isActive,
		&vehicleMake, &fuelType, &siMin, &siMax,
		&premStart, &premEnd, &ppt, &pt, &createdAt, &updatedAt,
	)
	if err != nil {
		return e, fmt.Errorf("failed to scan grid entry: %w", err)
	}

	e.CommissionRate = parseDecimal(commissionRate)
	e.RewardRate = parseDecimal(rewardRate)
	e.Validity = commission.Window{From: parseDate(validFrom), To: parseDate(validTo)}
	e.IsActive = isActive != 0
	e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	e.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	switch e.ProductType {
	case commission.ProductMotor:
		e.Dimensions = commission.MotorDimensions{
			VehicleMake: vehicleMake.String,
			FuelType:    fuelType.String,
		}
	case commission.ProductHealth:
		e.Dimensions = commission.HealthDimensions{
			SumInsuredMin: parseDecimal(siMin.String),
			SumInsuredMax: parseDecimal(siMax.String),
		}
	case commission.ProductLife:
		e.Dimensions = commission.LifeDimensions{
			PremiumStart: parseDecimal(premStart.String),
			PremiumEnd:   parseDecimal(premEnd.String),
			PPT:          int(ppt.Int64),
			PT:           int(pt.Int64),
		}
	default:
		e.Dimensions = commission.WildcardDimensions{ProductType: e.ProductType}
	}

	return e, nil
}

// splitDimensions flattens a Dimensions variant into its column set.
func splitDimensions(d commission.Dimensions) (commission.MotorDimensions, commission.HealthDimensions, commission.LifeDimensions) {
	var motor commission.MotorDimensions
	var health commission.HealthDimensions
	var life commission.LifeDimensions
	switch v := d.(type) {
	case commission.MotorDimensions:
		motor = v
	case commission.HealthDimensions:
		health = v
	case commission.LifeDimensions:
		life = v
	}
	return motor, health, life
}

// =============================================================================
// CAMPAIGNS
// =============================================================================

func (s *Store) SaveCampaign(ctx context.Context, c commission.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	productsJSON, _ := json.Marshal(c.ProductTypes)
	providersJSON, _ := json.Marshal(c.Providers)

	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO campaigns
		(id, tenant_id, name, bonus_rate, valid_from, valid_to, is_active, exclusive,
		 product_types_json, providers_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		 name=excluded.name, bonus_rate=excluded.bonus_rate,
		 valid_from=excluded.valid_from, valid_to=excluded.valid_to,
		 is_active=excluded.is_active, exclusive=excluded.exclusive,
		 product_types_json=excluded.product_types_json,
		 providers_json=excluded.providers_json
	`,
		c.ID, c.TenantID, c.Name, c.BonusRate.String(),
		formatDate(c.Validity.From), formatDate(c.Validity.To),
		boolToInt(c.IsActive), boolToInt(c.Exclusive),
		string(productsJSON), string(providersJSON),
		createdAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save campaign: %w", err)
	}
	return nil
}

func (s *Store) ListCampaigns(ctx context.Context, tenant commission.TenantID) ([]commission.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, name, bonus_rate, valid_from, valid_to, is_active, exclusive,
		       product_types_json, providers_json, created_at
		FROM campaigns WHERE tenant_id = ? ORDER BY id
	`, tenant)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	defer rows.Close()

	var out []commission.Campaign
	for rows.Next() {
		var (
			c                  commission.Campaign
			bonusRate          string
			validFrom, validTo string
			isActive, excl     int
			productsJSON       sql.NullString
			providersJSON      sql.NullString
			createdAt          string
		)
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Name, &bonusRate, &validFrom, &validTo,
			&isActive, &excl, &productsJSON, &providersJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan campaign: %w", err)
		}
		c.BonusRate = parseDecimal(bonusRate)
		c.Validity = commission.Window{From: parseDate(validFrom), To: parseDate(validTo)}
		c.IsActive = isActive != 0
		c.Exclusive = excl != 0
		if productsJSON.Valid && productsJSON.String != "" {
			json.Unmarshal([]byte(productsJSON.String), &c.ProductTypes)
		}
		if providersJSON.Valid && providersJSON.String != "" {
			json.Unmarshal([]byte(providersJSON.String), &c.Providers)
		}
		c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, c)
	}
	return out, rows.Err()
}

// =============================================================================
// COMPLIANCE RULES AND ALERTS
// =============================================================================

func (s *Store) SaveComplianceRule(ctx context.Context, r commission.ComplianceRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO compliance_rules
		(id, tenant_id, product_category, max_allowed_rate, provider_name, product_name)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		 product_category=excluded.product_category,
		 max_allowed_rate=excluded.max_allowed_rate,
		 provider_name=excluded.provider_name, product_name=excluded.product_name
	`, r.ID, r.TenantID, r.ProductCategory, r.MaxAllowedRate.String(), r.ProviderName, r.ProductName)
	if err != nil {
		return fmt.Errorf("failed to save compliance rule: %w", err)
	}
	return nil
}

func (s *Store) ListComplianceRules(ctx context.Context, tenant commission.TenantID) ([]commission.ComplianceRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, product_category, max_allowed_rate, provider_name, product_name
		FROM compliance_rules WHERE tenant_id = ? ORDER BY id
	`, tenant)
	if err != nil {
		return nil, fmt.Errorf("failed to list compliance rules: %w", err)
	}
	defer rows.Close()

	var out []commission.ComplianceRule
	for rows.Next() {
		var (
			r          commission.ComplianceRule
			maxAllowed string
		)
		if err := rows.Scan(&r.ID, &r.TenantID, &r.ProductCategory, &maxAllowed, &r.ProviderName, &r.ProductName); err != nil {
			return nil, fmt.Errorf("failed to scan compliance rule: %w", err)
		}
		r.MaxAllowedRate = parseDecimal(maxAllowed)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) AppendAlert(ctx context.Context, tenant commission.TenantID, a commission.Alert, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO compliance_alerts
		(tenant_id, rule_id, provider_name, product_name, current_rate, max_allowed, excess, severity, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, tenant, a.RuleID, a.ProviderName, a.ProductName,
		a.CurrentRate.String(), a.MaxAllowed.String(), a.Excess.String(),
		a.Severity, at.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to append alert: %w", err)
	}
	return nil
}

func (s *Store) ListAlerts(ctx context.Context, tenant commission.TenantID) ([]commission.StoredAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT tenant_id, rule_id, provider_name, product_name, current_rate, max_allowed, excess, severity, created_at
		FROM compliance_alerts WHERE tenant_id = ? ORDER BY created_at
	`, tenant)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var out []commission.StoredAlert
	for rows.Next() {
		var (
			a                               commission.StoredAlert
			currentRate, maxAllowed, excess string
			createdAt                       string
		)
		if err := rows.Scan(&a.TenantID, &a.RuleID, &a.ProviderName, &a.ProductName,
			&currentRate, &maxAllowed, &excess, &a.Severity, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		a.CurrentRate = parseDecimal(currentRate)
		a.MaxAllowed = parseDecimal(maxAllowed)
		a.Excess = parseDecimal(excess)
		a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) ClearAlerts(ctx context.Context, tenant commission.TenantID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM compliance_alerts WHERE tenant_id = ?`, tenant)
	if err != nil {
		return fmt.Errorf("failed to clear alerts: %w", err)
	}
	return nil
}

// =============================================================================
// POLICY INPUTS
// =============================================================================

func (s *Store) SavePolicy(ctx context.Context, p commission.PolicyInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	contextJSON, _ := json.Marshal(p.Context)
	partiesJSON, _ := json.Marshal(p.Parties)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO policies
		(policy_id, tenant_id, policy_number, product_type, provider, source_type,
		 premium, issue_date, context_json, parties_json,
		 customer_name, agent_name, employee_name, misp_name)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, policy_id) DO UPDATE SET
		 policy_number=excluded.policy_number, product_type=excluded.product_type,
		 provider=excluded.provider, source_type=excluded.source_type,
		 premium=excluded.premium, issue_date=excluded.issue_date,
		 context_json=excluded.context_json, parties_json=excluded.parties_json,
		 customer_name=excluded.customer_name, agent_name=excluded.agent_name,
		 employee_name=excluded.employee_name, misp_name=excluded.misp_name
	`,
		p.PolicyID, p.TenantID, p.PolicyNumber, p.ProductType, p.Provider, p.SourceType,
		p.Premium.String(), formatDate(p.IssueDate), string(contextJSON), string(partiesJSON),
		p.CustomerName, p.AgentName, p.EmployeeName, p.MISPName,
	)
	if err != nil {
		return fmt.Errorf("failed to save policy: %w", err)
	}
	return nil
}

func (s *Store) ListPolicies(ctx context.Context, tenant commission.TenantID) ([]commission.PolicyInput, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT policy_id, tenant_id, policy_number, product_type, provider, source_type,
		       premium, issue_date, context_json, parties_json,
		       customer_name, agent_name, employee_name, misp_name
		FROM policies WHERE tenant_id = ? ORDER BY policy_id
	`, tenant)
	if err != nil {
		return nil, fmt.Errorf("failed to list policies: %w", err)
	}
	defer rows.Close()

	var out []commission.PolicyInput
	for rows.Next() {
		var (
			p                        commission.PolicyInput
			premium, issueDate       string
			contextJSON, partiesJSON string
		)
		if err := rows.Scan(&p.PolicyID, &p.TenantID, &p.PolicyNumber, &p.ProductType,
			&p.Provider, &p.SourceType, &premium, &issueDate, &contextJSON, &partiesJSON,
			&p.CustomerName, &p.AgentName, &p.EmployeeName, &p.MISPName); err != nil {
			return nil, fmt.Errorf("failed to scan policy: %w", err)
		}
		p.Premium = parseDecimal(premium)
		p.IssueDate = parseDate(issueDate)
		json.Unmarshal([]byte(contextJSON), &p.Context)
		json.Unmarshal([]byte(partiesJSON), &p.Parties)
		out = append(out, p)
	}
	return out, rows.Err()
}

// =============================================================================
// REVENUE RECORDS
// =============================================================================

func (s *Store) ReplaceRecords(ctx context.Context, tenant commission.TenantID, records []commission.RevenueRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM revenue_records WHERE tenant_id = ?`, tenant); err != nil {
		return fmt.Errorf("failed to clear revenue records: %w", err)
	}

	for _, r := range records {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO revenue_records
			(id, tenant_id, policy_id, policy_number, provider, product_type, source_type,
			 customer_name, agent_name, employee_name, misp_name,
			 premium, base_rate, reward_rate, bonus_rate, total_rate,
			 insurer_commission, agent_commission, employee_commission,
			 reporting_employee_commission, broker_share, status, calc_date,
			 matched_entry_id, version)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			r.ID, r.TenantID, r.PolicyID, r.PolicyNumber, r.Provider, r.ProductType, r.SourceType,
			r.CustomerName, r.AgentName, r.EmployeeName, r.MISPName,
			r.Premium.String(), r.BaseRate.String(), r.RewardRate.String(),
			r.BonusRate.String(), r.TotalRate.String(),
			r.InsurerCommission.String(), r.AgentCommission.String(),
			r.EmployeeCommission.String(), r.ReportingEmployeeCommission.String(),
			r.BrokerShare.String(), r.Status, formatDate(r.CalcDate),
			r.MatchedEntryID, r.Version,
		); err != nil {
			return fmt.Errorf("failed to insert revenue record: %w", err)
		}
	}

	return tx.Commit()
}

const revenueSelect = `
	SELECT id, tenant_id, policy_id, policy_number, provider, product_type, source_type,
	       customer_name, agent_name, employee_name, misp_name,
	       premium, base_rate, reward_rate, bonus_rate, total_rate,
	       insurer_commission, agent_commission, employee_commission,
	       reporting_employee_commission, broker_share, status, calc_date,
	       matched_entry_id, version
	FROM revenue_records`

func (s *Store) ListRecords(ctx context.Context, tenant commission.TenantID) ([]commission.RevenueRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, revenueSelect+` WHERE tenant_id = ? ORDER BY policy_id`, tenant)
	if err != nil {
		return nil, fmt.Errorf("failed to list revenue records: %w", err)
	}
	defer rows.Close()

	var out []commission.RevenueRecord
	for rows.Next() {
		r, err := scanRevenueRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) GetRecord(ctx context.Context, tenant commission.TenantID, id commission.RecordID) (*commission.RevenueRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, revenueSelect+` WHERE tenant_id = ? AND id = ?`, tenant, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query revenue record: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, commission.ErrRecordNotFound
	}
	r, err := scanRevenueRecord(rows)
	if err != nil {
		return nil, err
	}
	return &r, rows.Err()
}

// UpdateRecordStatus is the optimistic-concurrency write: the UPDATE only
// lands when the stored version still matches.
func (s *Store) UpdateRecordStatus(ctx context.Context, tenant commission.TenantID, id commission.RecordID, status commission.CommissionStatus, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE revenue_records SET status = ?, version = version + 1
		WHERE tenant_id = ? AND id = ? AND version = ?
	`, status, tenant, id, expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to update record status: %w", err)
	}

	n, _ := res.RowsAffected()
	if n == 0 {
		// Distinguish a missing row from a stale version.
		var count int
		if err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM revenue_records WHERE tenant_id = ? AND id = ?`,
			tenant, id).Scan(&count); err != nil {
			return err
		}
		if count == 0 {
			return commission.ErrRecordNotFound
		}
		return commission.ErrConcurrentModification
	}
	return nil
}

func scanRevenueRecord(rows *sql.Rows) (commission.RevenueRecord, error) {
	var (
		r                                        commission.RevenueRecord
		premium, baseRate, rewardRate, bonusRate string
		totalRate, insurer, agent, employee      string
		reporting, broker                        string
		calcDate                                 string
	)

	err := rows.Scan(
		&r.ID, &r.TenantID, &r.PolicyID, &r.PolicyNumber, &r.Provider, &r.ProductType, &r.SourceType,
		&r.CustomerName, &r.AgentName, &r.EmployeeName, &r.MISPName,
		&premium, &baseRate, &rewardRate, &bonusRate, &totalRate,
		&insurer, &agent, &employee, &reporting, &broker,
		&r.Status, &calcDate, &r.MatchedEntryID, &r.Version,
	)
	if err != nil {
		return r, fmt.Errorf("failed to scan revenue record: %w", err)
	}

	r.Premium = parseDecimal(premium)
	r.BaseRate = parseDecimal(baseRate)
	r.RewardRate = parseDecimal(rewardRate)
	r.BonusRate = parseDecimal(bonusRate)
	r.TotalRate = parseDecimal(totalRate)
	r.InsurerCommission = parseDecimal(insurer)
	r.AgentCommission = parseDecimal(agent)
	r.EmployeeCommission = parseDecimal(employee)
	r.ReportingEmployeeCommission = parseDecimal(reporting)
	r.BrokerShare = parseDecimal(broker)
	r.CalcDate = parseDate(calcDate)
	return r, nil
}

// =============================================================================
// SETTLEMENTS
// =============================================================================

func (s *Store) SaveSettlement(ctx context.Context, st commission.Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settlements
		(id, tenant_id, insurer, period, expected, received, variance, status, approved_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		 expected=excluded.expected, received=excluded.received,
		 variance=excluded.variance, status=excluded.status,
		 approved_by=excluded.approved_by, updated_at=excluded.updated_at
	`,
		st.ID, st.TenantID, st.Insurer, formatDate(st.Period),
		st.Expected.String(), st.Received.String(), st.Variance.String(),
		st.Status, st.ApprovedBy,
		st.CreatedAt.UTC().Format(time.RFC3339), st.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save settlement: %w", err)
	}
	return nil
}

const settlementSelect = `
	SELECT id, tenant_id, insurer, period, expected, received, variance, status, approved_by, created_at, updated_at
	FROM settlements`

func (s *Store) GetSettlement(ctx context.Context, tenant commission.TenantID, id commission.SettlementID) (*commission.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, settlementSelect+` WHERE tenant_id = ? AND id = ?`, tenant, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query settlement: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, commission.ErrSettlementNotFound
	}
	st, err := scanSettlement(rows)
	if err != nil {
		return nil, err
	}
	return &st, rows.Err()
}

func (s *Store) ListSettlements(ctx context.Context, tenant commission.TenantID) ([]commission.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, settlementSelect+` WHERE tenant_id = ? ORDER BY period, insurer`, tenant)
	if err != nil {
		return nil, fmt.Errorf("failed to list settlements: %w", err)
	}
	defer rows.Close()

	var out []commission.Settlement
	for rows.Next() {
		st, err := scanSettlement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func scanSettlement(rows *sql.Rows) (commission.Settlement, error) {
	var (
		st                           commission.Settlement
		period                       string
		expected, received, variance string
		approvedBy                   sql.NullString
		createdAt, updatedAt         string
	)
	err := rows.Scan(&st.ID, &st.TenantID, &st.Insurer, &period,
		&expected, &received, &variance, &st.Status, &approvedBy, &createdAt, &updatedAt)
	if err != nil {
		return st, fmt.Errorf("failed to scan settlement: %w", err)
	}
	st.Period = parseDate(period)
	st.Expected = parseDecimal(expected)
	st.Received = parseDecimal(received)
	st.Variance = parseDecimal(variance)
	st.ApprovedBy = approvedBy.String
	st.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	st.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return st, nil
}

func (s *Store) AppendAction(ctx context.Context, tenant commission.TenantID, a commission.ActionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settlement_actions (tenant_id, settlement_id, action, actor, note, at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, tenant, a.SettlementID, a.Action, a.Actor, a.Note, a.At.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to append settlement action: %w", err)
	}
	return nil
}

func (s *Store) ListActions(ctx context.Context, tenant commission.TenantID, id commission.SettlementID) ([]commission.ActionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT settlement_id, action, actor, note, at
		FROM settlement_actions WHERE tenant_id = ? AND settlement_id = ? ORDER BY at
	`, tenant, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list settlement actions: %w", err)
	}
	defer rows.Close()

	var out []commission.ActionRecord
	for rows.Next() {
		var (
			a    commission.ActionRecord
			note sql.NullString
			at   string
		)
		if err := rows.Scan(&a.SettlementID, &a.Action, &a.Actor, &note, &at); err != nil {
			return nil, fmt.Errorf("failed to scan settlement action: %w", err)
		}
		a.Note = note.String
		a.At, _ = time.Parse(time.RFC3339, at)
		out = append(out, a)
	}
	return out, rows.Err()
}

// =============================================================================
// SYNC RUNS
// =============================================================================

func (s *Store) AppendSyncRun(ctx context.Context, run commission.SyncRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_runs (id, tenant_id, kind, total, successful, failed, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.TenantID, run.Kind, run.Total, run.Successful, run.Failed,
		run.StartedAt.UTC().Format(time.RFC3339), run.FinishedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to append sync run: %w", err)
	}
	return nil
}

func (s *Store) ListSyncRuns(ctx context.Context, tenant commission.TenantID) ([]commission.SyncRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, kind, total, successful, failed, started_at, finished_at
		FROM sync_runs WHERE tenant_id = ? ORDER BY started_at
	`, tenant)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync runs: %w", err)
	}
	defer rows.Close()

	var out []commission.SyncRun
	for rows.Next() {
		var (
			run                 commission.SyncRun
			startedAt, finished string
		)
		if err := rows.Scan(&run.ID, &run.TenantID, &run.Kind, &run.Total,
			&run.Successful, &run.Failed, &startedAt, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}
		run.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
		run.FinishedAt, _ = time.Parse(time.RFC3339, finished)
		out = append(out, run)
	}
	return out, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func parseDecimal(s string) decimal.Decimal {
	if strings.TrimSpace(s) == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func nullDecimal(d decimal.Decimal) any {
	if d.IsZero() {
		return nil
	}
	return d.String()
}

func formatDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func parseDate(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
