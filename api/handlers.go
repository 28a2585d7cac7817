/*
handlers.go - HTTP handler implementations

PURPOSE:
  Implements the HTTP handlers for the commission engine API. Handlers
  decode DTOs, scope everything to the request's tenant, call into the
  commission package, and map domain errors to HTTP status codes.

ERROR MAPPING:
  400  validation failures, malformed input, missing tenant
  404  grid entry / settlement / record not found
  409  version conflict (concurrent status update)
  422  negative computed share (misconfigured contract)
  500  everything else

HANDLER PATTERN:
  1. Read tenant from request
  2. Decode and validate request body (if any)
  3. Call domain logic
  4. Map errors, write JSON response

SEE ALSO:
  - dto.go: Request/response shapes
  - sync.go: Sync orchestration handlers
  - export.go: CSV/XLSX export handlers
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/keystone/broking-engine/commission"
	"github.com/keystone/broking-engine/ingest"
)

// Handler holds dependencies for all HTTP handlers.
type Handler struct {
	store      commission.Store
	guardCfg   commission.GuardConfig
	reconciler *commission.Reconciler
	agg        *commission.FilteredAggregator
	loader     *ingest.Loader
	log        *zap.Logger
	now        func() time.Time
}

// NewHandler creates a handler backed by the given store.
func NewHandler(store commission.Store, guardCfg commission.GuardConfig, reconciler *commission.Reconciler, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		store:      store,
		guardCfg:   guardCfg,
		reconciler: reconciler,
		agg:        commission.NewFilteredAggregator(),
		loader:     ingest.NewLoader(store, log),
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the handler clock. Test use.
func (h *Handler) WithClock(now func() time.Time) *Handler {
	h.now = now
	return h
}

// =============================================================================
// DASHBOARD
// =============================================================================

// GetDashboard returns the aggregated landing-page payload: performance
// split by line of business, rule counts, open compliance alerts, and
// campaigns starting soon.
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r)
	ctx := r.Context()

	records, err := h.store.ListRecords(ctx, tenant)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	grids, err := h.store.ListGridEntries(ctx, tenant)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	rules, err := h.store.ListComplianceRules(ctx, tenant)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	campaigns, err := h.store.ListCampaigns(ctx, tenant)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	alerts, err := h.store.ListAlerts(ctx, tenant)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	lob := commission.PerformanceByLOB(records)
	lobPayload := make([]map[string]any, 0, len(lob))
	for _, p := range lob {
		lobPayload = append(lobPayload, map[string]any{
			"product_type": string(p.Name),
			"policy_count": p.Count,
			"avg_rate":     p.AvgRate.String(),
		})
	}

	alertPayload := make([]AlertResponse, 0, len(alerts))
	for _, a := range alerts {
		alertPayload = append(alertPayload, toAlertResponse(a.Alert, a.CreatedAt))
	}

	upcoming := commission.UpcomingCampaigns(campaigns, h.now())
	campaignPayload := make([]CampaignResponse, 0, len(upcoming))
	for _, c := range upcoming {
		campaignPayload = append(campaignPayload, toCampaignResponse(c))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"lobPerformance":    lobPayload,
		"rulesCount":        map[string]int{"grids": len(grids), "compliance": len(rules)},
		"complianceAlerts":  alertPayload,
		"upcomingCampaigns": campaignPayload,
	})
}

// =============================================================================
// REVENUE
// =============================================================================

// GetRevenue returns the filtered revenue table plus totals.
// Filters: product_type, source_type, provider, search, date_from, date_to.
func (h *Handler) GetRevenue(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r)

	records, err := h.store.ListRecords(r.Context(), tenant)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	filter, err := filterFromQuery(r)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	filtered, totals := h.agg.AggregateFiltered(tenant, records, filter)

	rows := make([]RevenueRecordResponse, 0, len(filtered))
	for _, rec := range filtered {
		rows = append(rows, toRevenueRecordResponse(rec))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"records": rows,
		"totals":  toTotalsResponse(totals),
	})
}

// UpdateRecordStatus moves a revenue record between commission statuses,
// guarded by the record version.
func (h *Handler) UpdateRecordStatus(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r)
	id := commission.RecordID(chi.URLParam(r, "id"))

	var req struct {
		Status  string `json:"status" validate:"required,oneof=pending approved paid disputed"`
		Version int    `json:"version" validate:"required,min=1"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validate.Struct(req); err != nil {
		h.writeError(w, r, err)
		return
	}

	err := h.store.UpdateRecordStatus(r.Context(), tenant, id, commission.CommissionStatus(req.Status), req.Version)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.agg.Invalidate(tenant)
	writeJSON(w, http.StatusOK, map[string]string{"status": req.Status})
}

// =============================================================================
// GRIDS
// =============================================================================

func (h *Handler) ListGridEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := h.store.ListGridEntries(r.Context(), tenantFrom(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := make([]GridEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, toGridEntryResponse(e))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) CreateGridEntry(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r)

	var req GridEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	entry, err := req.toDomain(tenant, commission.GridEntryID(uuid.NewString()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	entry.CreatedAt = h.now()
	entry.UpdatedAt = entry.CreatedAt

	if err := h.store.SaveGridEntry(r.Context(), entry); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toGridEntryResponse(entry))
}

func (h *Handler) UpdateGridEntry(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r)
	id := commission.GridEntryID(chi.URLParam(r, "id"))

	existing, err := h.store.GetGridEntry(r.Context(), tenant, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req GridEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	entry, err := req.toDomain(tenant, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	entry.IsActive = existing.IsActive
	entry.CreatedAt = existing.CreatedAt
	entry.UpdatedAt = h.now()

	if err := h.store.SaveGridEntry(r.Context(), entry); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toGridEntryResponse(entry))
}

// DeactivateGridEntry soft-deletes: historical calculations keep their
// matched entry for audit.
func (h *Handler) DeactivateGridEntry(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r)
	id := commission.GridEntryID(chi.URLParam(r, "id"))

	if err := h.store.DeactivateGridEntry(r.Context(), tenant, id); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

// =============================================================================
// CAMPAIGNS
// =============================================================================

func (h *Handler) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	campaigns, err := h.store.ListCampaigns(r.Context(), tenantFrom(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := make([]CampaignResponse, 0, len(campaigns))
	for _, c := range campaigns {
		resp = append(resp, toCampaignResponse(c))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r)

	var req CampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	campaign, err := req.toDomain(tenant, commission.CampaignID(uuid.NewString()), h.now())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.store.SaveCampaign(r.Context(), campaign); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCampaignResponse(campaign))
}

// =============================================================================
// COMPLIANCE
// =============================================================================

func (h *Handler) ListComplianceAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.store.ListAlerts(r.Context(), tenantFrom(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := make([]AlertResponse, 0, len(alerts))
	for _, a := range alerts {
		resp = append(resp, toAlertResponse(a.Alert, a.CreatedAt))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) ListComplianceRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.store.ListComplianceRules(r.Context(), tenantFrom(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := make([]ComplianceRuleResponse, 0, len(rules))
	for _, rule := range rules {
		resp = append(resp, toComplianceRuleResponse(rule))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) CreateComplianceRule(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r)

	var req ComplianceRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	rule, err := req.toDomain(tenant, commission.RuleID(uuid.NewString()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.store.SaveComplianceRule(r.Context(), rule); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toComplianceRuleResponse(rule))
}

// =============================================================================
// SETTLEMENTS
// =============================================================================

func (h *Handler) ListSettlements(w http.ResponseWriter, r *http.Request) {
	settlements, err := h.store.ListSettlements(r.Context(), tenantFrom(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := make([]SettlementResponse, 0, len(settlements))
	for _, s := range settlements {
		resp = append(resp, toSettlementResponse(s))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) CreateSettlement(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r)

	var req SettlementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validate.Struct(req); err != nil {
		h.writeError(w, r, err)
		return
	}

	period, err := time.Parse("2006-01", req.Period)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid period: want YYYY-MM")
		return
	}
	expected, err := parseDecimalField(req.Expected, "expected")
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	received, err := parseDecimalField(req.Received, "received")
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	s := commission.NewSettlement(
		commission.DeterministicSettlementID(tenant, req.Insurer, period),
		tenant, req.Insurer, period, expected, received, h.now(),
	)

	if err := h.store.SaveSettlement(r.Context(), s); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSettlementResponse(s))
}

func (h *Handler) ApproveSettlement(w http.ResponseWriter, r *http.Request) {
	h.applySettlementAction(w, r, commission.ActionApprove)
}

func (h *Handler) DisputeSettlement(w http.ResponseWriter, r *http.Request) {
	h.applySettlementAction(w, r, commission.ActionDispute)
}

func (h *Handler) ResubmitSettlement(w http.ResponseWriter, r *http.Request) {
	h.applySettlementAction(w, r, commission.ActionResubmit)
}

func (h *Handler) applySettlementAction(w http.ResponseWriter, r *http.Request, action commission.SettlementAction) {
	tenant := tenantFrom(r)
	id := commission.SettlementID(chi.URLParam(r, "id"))

	var req SettlementActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validate.Struct(req); err != nil {
		h.writeError(w, r, err)
		return
	}

	s, err := h.store.GetSettlement(r.Context(), tenant, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var corrected *commission.Money
	if req.Received != nil {
		d, err := parseDecimalField(*req.Received, "received")
		if err != nil {
			writeErrorMessage(w, http.StatusBadRequest, err.Error())
			return
		}
		corrected = &d
	}

	updated, record, err := h.reconciler.Apply(*s, action, req.Actor, corrected, h.now())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.store.SaveSettlement(r.Context(), updated); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.store.AppendAction(r.Context(), tenant, record); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.log.Info("settlement action applied",
		zap.String("tenant", string(tenant)),
		zap.String("settlement", string(id)),
		zap.String("action", string(action)),
		zap.String("actor", req.Actor))

	writeJSON(w, http.StatusOK, toSettlementResponse(updated))
}

// =============================================================================
// CALCULATE PREVIEW
// =============================================================================

// CalculatePreview runs the full calculation pipeline for one policy
// without persisting anything. The what-if screen uses this.
func (h *Handler) CalculatePreview(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r)
	ctx := r.Context()

	var req PolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	input, err := req.toDomain(tenant)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	calc, err := h.calculator(ctx, tenant)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	record, alert, err := calc.Calculate(ctx, input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	payload := map[string]any{"record": toRevenueRecordResponse(record)}
	if alert != nil {
		payload["alert"] = toAlertResponse(*alert, time.Time{})
	}
	writeJSON(w, http.StatusOK, payload)
}

// calculator assembles a Calculator from the tenant's current rule state.
func (h *Handler) calculator(ctx context.Context, tenant commission.TenantID) (*commission.Calculator, error) {
	grids, err := h.store.ListGridEntries(ctx, tenant)
	if err != nil {
		return nil, err
	}
	campaigns, err := h.store.ListCampaigns(ctx, tenant)
	if err != nil {
		return nil, err
	}
	rules, err := h.store.ListComplianceRules(ctx, tenant)
	if err != nil {
		return nil, err
	}
	return commission.NewCalculator(grids, campaigns, rules, h.guardCfg).WithClock(h.now), nil
}

// =============================================================================
// INGEST
// =============================================================================

// IngestGridRows accepts normalized grid rows as a JSON array of string
// arrays and loads them with per-row error collection.
func (h *Handler) IngestGridRows(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r)

	var rows [][]string
	if err := json.NewDecoder(r.Body).Decode(&rows); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid JSON body: want array of row arrays")
		return
	}

	result, err := h.loader.LoadGridRows(r.Context(), tenant, rows)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// IngestStatementRows accepts normalized insurer statement rows and
// creates pending settlements.
func (h *Handler) IngestStatementRows(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r)

	var rows [][]string
	if err := json.NewDecoder(r.Body).Decode(&rows); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid JSON body: want array of row arrays")
		return
	}

	result, err := h.loader.LoadStatementRows(r.Context(), tenant, rows)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// =============================================================================
// SHARED HELPERS
// =============================================================================

// tenantFrom extracts the org ID from the X-Org-ID header, falling back
// to the org_id query param.
func tenantFrom(r *http.Request) commission.TenantID {
	if v := r.Header.Get("X-Org-ID"); v != "" {
		return commission.TenantID(v)
	}
	return commission.TenantID(r.URL.Query().Get("org_id"))
}

// filterFromQuery builds a revenue filter from query params.
func filterFromQuery(r *http.Request) (commission.Filter, error) {
	q := r.URL.Query()
	f := commission.Filter{
		ProductType: commission.ProductType(q.Get("product_type")),
		SourceType:  commission.SourceType(q.Get("source_type")),
		Provider:    q.Get("provider"),
		Search:      q.Get("search"),
	}
	if v := q.Get("date_from"); v != "" {
		t, err := parseDateField(v, "date_from")
		if err != nil {
			return commission.Filter{}, err
		}
		f.DateFrom = t
	}
	if v := q.Get("date_to"); v != "" {
		t, err := parseDateField(v, "date_to")
		if err != nil {
			return commission.Filter{}, err
		}
		f.DateTo = t
	}
	return f, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeErrorMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeError maps domain errors to HTTP status codes.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verrs validator.ValidationErrors
	status := http.StatusInternalServerError

	switch {
	case errors.As(err, &verrs):
		status = http.StatusBadRequest
	case errors.Is(err, commission.ErrNegativeShare):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, commission.ErrConcurrentModification):
		status = http.StatusConflict
	case commission.IsNotFound(err):
		status = http.StatusNotFound
	case commission.IsClientError(err):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		h.log.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	writeErrorMessage(w, status, err.Error())
}
