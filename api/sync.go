/*
sync.go - Idempotent batch sync orchestration

PURPOSE:
  Implements the two sync operations. Both rebuild the tenant's revenue
  records from policy inputs by running every policy through the
  calculation pipeline, then swap the record set atomically.

IDEMPOTENCE:
  Record IDs derive deterministically from (tenant, policy), and the
  whole output set replaces the previous one in a single store
  transaction. Running the same sync twice therefore yields a
  byte-identical record set: safe to retry after any failure.

OPERATIONS:
  POST /api/sync/commissions  accepts a policy batch, persists it, then
                              recalculates everything
  POST /api/sync/revenue      recalculates from already-stored policies

ALERTS:
  Compliance alerts are derived state. Each sync clears the tenant's
  alerts and re-appends the ones the fresh run produced, so the
  dashboard always reflects the current rule set.

SEE ALSO:
  - commission/pipeline.go: The per-policy calculation
  - handlers.go: Shared helpers and error mapping
*/
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/keystone/broking-engine/commission"
	"github.com/keystone/broking-engine/ingest"
)

// SyncCommissions ingests a policy batch and recalculates the tenant's
// revenue records. Per-row failures are collected; one bad policy never
// aborts the batch.
func (h *Handler) SyncCommissions(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r)
	ctx := r.Context()

	var reqs []PolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid JSON body: want array of policies")
		return
	}

	// Persist the batch first so a later revenue sync sees the same inputs.
	result := ingest.Result{Total: len(reqs)}
	for i, req := range reqs {
		input, err := req.toDomain(tenant)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, ingest.RowError{Row: i + 1, Message: err.Error()})
			continue
		}
		if err := h.store.SavePolicy(ctx, input); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, ingest.RowError{Row: i + 1, Message: err.Error()})
			continue
		}
		result.Successful++
	}

	recalc, err := h.recalculate(ctx, tenant, "commissions")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ingest": result,
		"sync":   recalc,
	})
}

// SyncRevenue recalculates revenue records from the stored policies.
func (h *Handler) SyncRevenue(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r)

	result, err := h.recalculate(r.Context(), tenant, "revenue")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// recalculate runs every stored policy through the pipeline and swaps
// the tenant's record set. Calculation failures are reported per row;
// the successful records still land.
func (h *Handler) recalculate(ctx context.Context, tenant commission.TenantID, kind string) (ingest.Result, error) {
	started := h.now()

	policies, err := h.store.ListPolicies(ctx, tenant)
	if err != nil {
		return ingest.Result{}, err
	}

	calc, err := h.calculator(ctx, tenant)
	if err != nil {
		return ingest.Result{}, err
	}

	result := ingest.Result{Total: len(policies)}
	records := make([]commission.RevenueRecord, 0, len(policies))
	var alerts []commission.Alert

	for i, p := range policies {
		record, alert, err := calc.Calculate(ctx, p)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, ingest.RowError{Row: i + 1, Message: err.Error()})
			continue
		}
		records = append(records, record)
		if alert != nil {
			alerts = append(alerts, *alert)
		}
		result.Successful++
	}

	if err := h.store.ReplaceRecords(ctx, tenant, records); err != nil {
		return ingest.Result{}, err
	}

	// Alerts are derived from this run; replace the previous set.
	if err := h.store.ClearAlerts(ctx, tenant); err != nil {
		return ingest.Result{}, err
	}
	for _, a := range alerts {
		if err := h.store.AppendAlert(ctx, tenant, a, started); err != nil {
			return ingest.Result{}, err
		}
	}

	h.agg.Invalidate(tenant)

	run := commission.SyncRun{
		ID:         uuid.NewString(),
		TenantID:   tenant,
		Kind:       kind,
		Total:      result.Total,
		Successful: result.Successful,
		Failed:     result.Failed,
		StartedAt:  started,
		FinishedAt: h.now(),
	}
	if err := h.store.AppendSyncRun(ctx, run); err != nil {
		return ingest.Result{}, err
	}

	h.log.Info("sync completed",
		zap.String("tenant", string(tenant)),
		zap.String("kind", kind),
		zap.Int("total", result.Total),
		zap.Int("failed", result.Failed),
		zap.Int("alerts", len(alerts)))

	return result, nil
}
