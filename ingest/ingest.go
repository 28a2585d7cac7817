/*
Package ingest loads normalized batch rows into the commission store.

PURPOSE:
  Back-office teams hand the system spreadsheets: commission grid rows
  and insurer settlement statements. Upstream tooling has already
  normalized the columns; this package parses values, validates each row,
  and writes the survivors. One bad row never aborts the batch - failures
  are collected per row so the report screen can show exactly which lines
  to fix and the batch can be retried row by row.

ROW FORMATS (column order fixed):
  Grid rows:
    product_type, provider, sub_type, plan, commission_rate, reward_rate,
    valid_from, valid_to, dim1, dim2, dim3, dim4
    dim columns by product type:
      motor:  vehicle_make, fuel_type, -, -
      health: sum_insured_min, sum_insured_max, -, -
      life:   premium_start, premium_end, ppt, pt

  Statement rows:
    insurer, period (YYYY-MM), received_amount

DATES: YYYY-MM-DD.
*/
package ingest

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/keystone/broking-engine/commission"
)

// =============================================================================
// BATCH RESULT
// =============================================================================

// RowError is one failed row in a batch.
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// Result summarizes a batch run. Partial success is visible and the
// failed rows are individually retryable.
type Result struct {
	Total      int        `json:"total"`
	Successful int        `json:"successful"`
	Failed     int        `json:"failed"`
	Errors     []RowError `json:"errors,omitempty"`
}

func (r *Result) fail(row int, err error) {
	r.Failed++
	r.Errors = append(r.Errors, RowError{Row: row, Message: err.Error()})
}

// =============================================================================
// GRID ROWS
// =============================================================================

const gridRowColumns = 12

// Loader writes parsed rows into the store.
type Loader struct {
	Store commission.Store
	Log   *zap.Logger
}

func NewLoader(store commission.Store, log *zap.Logger) *Loader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{Store: store, Log: log}
}

// LoadGridRows parses and persists normalized grid rows. Row numbers in
// the result are 1-based over the input slice.
func (l *Loader) LoadGridRows(ctx context.Context, tenant commission.TenantID, rows [][]string) (Result, error) {
	if tenant == "" {
		return Result{}, commission.ErrTenantRequired
	}

	res := Result{Total: len(rows)}
	for i, row := range rows {
		entry, err := parseGridRow(tenant, row)
		if err != nil {
			res.fail(i+1, err)
			continue
		}
		if err := l.Store.SaveGridEntry(ctx, entry); err != nil {
			res.fail(i+1, err)
			continue
		}
		res.Successful++
	}

	l.Log.Info("grid batch loaded",
		zap.String("tenant", string(tenant)),
		zap.Int("total", res.Total),
		zap.Int("failed", res.Failed))
	return res, nil
}

func parseGridRow(tenant commission.TenantID, row []string) (commission.GridEntry, error) {
	if len(row) < gridRowColumns {
		return commission.GridEntry{}, fmt.Errorf("expected %d columns, got %d", gridRowColumns, len(row))
	}

	productType := commission.ProductType(strings.ToLower(strings.TrimSpace(row[0])))
	if !productType.Valid() {
		return commission.GridEntry{}, fmt.Errorf("unknown product type %q", row[0])
	}

	provider := strings.TrimSpace(row[1])
	if provider == "" {
		return commission.GridEntry{}, fmt.Errorf("provider is required")
	}

	commissionRate, err := parseRate(row[4], "commission_rate")
	if err != nil {
		return commission.GridEntry{}, err
	}
	rewardRate, err := parseRate(row[5], "reward_rate")
	if err != nil {
		return commission.GridEntry{}, err
	}

	validFrom, err := parseDate(row[6], "valid_from")
	if err != nil {
		return commission.GridEntry{}, err
	}
	validTo, err := parseDate(row[7], "valid_to")
	if err != nil {
		return commission.GridEntry{}, err
	}
	if validTo.Before(validFrom) {
		return commission.GridEntry{}, fmt.Errorf("valid_to precedes valid_from")
	}

	dims, err := parseDimensions(productType, row[8:12])
	if err != nil {
		return commission.GridEntry{}, err
	}

	return commission.GridEntry{
		ID:             commission.GridEntryID(uuid.NewString()),
		TenantID:       tenant,
		ProductType:    productType,
		Provider:       provider,
		ProductSubType: strings.TrimSpace(row[2]),
		PlanName:       strings.TrimSpace(row[3]),
		CommissionRate: commissionRate,
		RewardRate:     rewardRate,
		Validity:       commission.Window{From: validFrom, To: validTo},
		IsActive:       true,
		Dimensions:     dims,
	}, nil
}

func parseDimensions(productType commission.ProductType, dims []string) (commission.Dimensions, error) {
	switch productType {
	case commission.ProductMotor:
		return commission.MotorDimensions{
			VehicleMake: strings.TrimSpace(dims[0]),
			FuelType:    strings.TrimSpace(dims[1]),
		}, nil

	case commission.ProductHealth:
		min, err := parseOptionalAmount(dims[0], "sum_insured_min")
		if err != nil {
			return nil, err
		}
		max, err := parseOptionalAmount(dims[1], "sum_insured_max")
		if err != nil {
			return nil, err
		}
		return commission.HealthDimensions{SumInsuredMin: min, SumInsuredMax: max}, nil

	case commission.ProductLife:
		start, err := parseOptionalAmount(dims[0], "premium_start")
		if err != nil {
			return nil, err
		}
		end, err := parseOptionalAmount(dims[1], "premium_end")
		if err != nil {
			return nil, err
		}
		ppt, err := parseOptionalInt(dims[2], "ppt")
		if err != nil {
			return nil, err
		}
		pt, err := parseOptionalInt(dims[3], "pt")
		if err != nil {
			return nil, err
		}
		return commission.LifeDimensions{PremiumStart: start, PremiumEnd: end, PPT: ppt, PT: pt}, nil
	}
	return commission.WildcardDimensions{ProductType: productType}, nil
}

// =============================================================================
// STATEMENT ROWS
// =============================================================================

const statementRowColumns = 3

// LoadStatementRows ingests insurer statement rows, creating Pending
// settlements. Expected amounts come from the tenant's revenue records
// for the statement insurer and period.
func (l *Loader) LoadStatementRows(ctx context.Context, tenant commission.TenantID, rows [][]string) (Result, error) {
	if tenant == "" {
		return Result{}, commission.ErrTenantRequired
	}

	records, err := l.Store.ListRecords(ctx, tenant)
	if err != nil {
		return Result{}, err
	}

	res := Result{Total: len(rows)}
	now := time.Now().UTC()

	for i, row := range rows {
		st, err := parseStatementRow(tenant, row, records, now)
		if err != nil {
			res.fail(i+1, err)
			continue
		}
		if err := l.Store.SaveSettlement(ctx, st); err != nil {
			res.fail(i+1, err)
			continue
		}
		res.Successful++
	}

	l.Log.Info("statement batch loaded",
		zap.String("tenant", string(tenant)),
		zap.Int("total", res.Total),
		zap.Int("failed", res.Failed))
	return res, nil
}

func parseStatementRow(tenant commission.TenantID, row []string, records []commission.RevenueRecord, now time.Time) (commission.Settlement, error) {
	if len(row) < statementRowColumns {
		return commission.Settlement{}, fmt.Errorf("expected %d columns, got %d", statementRowColumns, len(row))
	}

	insurer := strings.TrimSpace(row[0])
	if insurer == "" {
		return commission.Settlement{}, fmt.Errorf("insurer is required")
	}

	period, err := time.Parse("2006-01", strings.TrimSpace(row[1]))
	if err != nil {
		return commission.Settlement{}, fmt.Errorf("bad period %q: want YYYY-MM", row[1])
	}

	received, err := decimal.NewFromString(strings.TrimSpace(row[2]))
	if err != nil {
		return commission.Settlement{}, fmt.Errorf("bad received_amount %q", row[2])
	}

	expected := expectedForPeriod(records, insurer, period)

	return commission.NewSettlement(
		commission.DeterministicSettlementID(tenant, insurer, period),
		tenant, insurer, period, expected, received, now,
	), nil
}

// expectedForPeriod sums insurer commission over the records calculated
// in the statement month for the statement insurer.
func expectedForPeriod(records []commission.RevenueRecord, insurer string, period time.Time) commission.Money {
	sum := decimal.Zero
	for _, r := range records {
		if !strings.EqualFold(r.Provider, insurer) {
			continue
		}
		if r.CalcDate.Year() == period.Year() && r.CalcDate.Month() == period.Month() {
			sum = sum.Add(r.InsurerCommission)
		}
	}
	return sum
}

// =============================================================================
// XLSX
// =============================================================================

// ReadWorkbook extracts rows from the first sheet of an XLSX file,
// skipping the given number of header rows.
func ReadWorkbook(path string, skipRows int) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	if len(f.Sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	var rows [][]string
	for i, row := range f.Sheets[0].Rows {
		if i < skipRows {
			continue
		}
		cells := make([]string, len(row.Cells))
		for j, c := range row.Cells {
			cells[j] = c.String()
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

// =============================================================================
// FIELD PARSERS
// =============================================================================

func parseRate(s, field string) (commission.Rate, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("bad %s %q", field, s)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s cannot be negative", field)
	}
	return d, nil
}

func parseOptionalAmount(s, field string) (commission.Money, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("bad %s %q", field, s)
	}
	return d, nil
}

func parseOptionalInt(s, field string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("bad %s %q", field, s)
	}
	return n, nil
}

func parseDate(s, field string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("bad %s %q: want YYYY-MM-DD", field, s)
	}
	return t, nil
}
