package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/keystone/broking-engine/api"
	"github.com/keystone/broking-engine/commission"
	"github.com/keystone/broking-engine/commission/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const testOrg = "org-test"

func newTestServer(t *testing.T) (*httptest.Server, *store.Memory) {
	t.Helper()

	mem := store.NewMemory()
	h := api.NewHandler(
		mem,
		commission.DefaultGuardConfig(),
		commission.NewReconciler(commission.DefaultTolerance),
		zap.NewNop(),
	).WithClock(func() time.Time {
		return time.Date(2025, time.July, 15, 0, 0, 0, 0, time.UTC)
	})

	srv := httptest.NewServer(api.NewRouter(h, []string{"*"}))
	t.Cleanup(srv.Close)
	return srv, mem
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Org-ID", testOrg)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, into any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(into))
}

func gridBody(provider, rate string) map[string]any {
	return map[string]any{
		"product_type":    "motor",
		"provider":        provider,
		"commission_rate": rate,
		"reward_rate":     "2",
		"valid_from":      "2025-01-01",
		"valid_to":        "2025-12-31",
	}
}

func policyBody(policyID, premium string) map[string]any {
	return map[string]any{
		"policy_id":       policyID,
		"policy_number":   "MOT/2025/" + policyID,
		"product_type":    "motor",
		"provider":        "Acme General",
		"source_type":     "agent",
		"premium":         premium,
		"issue_date":      "2025-06-10",
		"agent_share_pct": "70",
		"reporting_employee_override_pct": "5",
	}
}

// seedBook creates a grid entry and a 12% motor cap through the API.
func seedBook(t *testing.T, srv *httptest.Server) {
	t.Helper()

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/grids", gridBody("Acme General", "10"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/compliance/rules", map[string]any{
		"product_category": "motor",
		"max_allowed_rate": "12",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

// =============================================================================
// TENANT SCOPING TESTS
// =============================================================================

func TestAPI_MissingOrgID_Rejected(t *testing.T) {
	// GIVEN: A request with neither header nor query param
	// WHEN: Hitting any API route
	// THEN: 400 before the handler runs

	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/dashboard")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_OrgIDViaQueryParam_Accepted(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/dashboard?org_id=" + testOrg)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// =============================================================================
// GRID CRUD TESTS
// =============================================================================

func TestAPI_GridLifecycle(t *testing.T) {
	// GIVEN: A freshly created grid entry
	// WHEN: Listing, updating, and deactivating it
	// THEN: Each step round-trips

	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/grids", gridBody("Acme General", "10"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created struct {
		ID string `json:"id"`
	}
	decode(t, resp, &created)
	require.NotEmpty(t, created.ID)

	var listed []map[string]any
	resp = doJSON(t, http.MethodGet, srv.URL+"/api/grids", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &listed)
	require.Len(t, listed, 1)

	resp = doJSON(t, http.MethodPut, srv.URL+"/api/grids/"+created.ID, gridBody("Acme General", "11"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var updated map[string]any
	decode(t, resp, &updated)
	assert.Equal(t, "11", updated["commission_rate"])

	resp = doJSON(t, http.MethodDelete, srv.URL+"/api/grids/"+created.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/grids", nil)
	decode(t, resp, &listed)
	require.Len(t, listed, 1, "deactivation is soft")
	assert.Equal(t, false, listed[0]["is_active"])
}

func TestAPI_GridValidation_MissingProviderAndRate(t *testing.T) {
	// GIVEN: A grid payload without provider or commission_rate
	// WHEN: Creating
	// THEN: 400 with nothing persisted

	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/grids", map[string]any{
		"product_type": "motor",
		"valid_from":   "2025-01-01",
		"valid_to":     "2025-12-31",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var listed []map[string]any
	resp = doJSON(t, http.MethodGet, srv.URL+"/api/grids", nil)
	decode(t, resp, &listed)
	assert.Empty(t, listed)
}

func TestAPI_GridUpdate_UnknownID_Is404(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPut, srv.URL+"/api/grids/no-such-id", gridBody("Acme General", "10"))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// =============================================================================
// SYNC TESTS
// =============================================================================

func syncResult(t *testing.T, resp *http.Response) (total, successful, failed int) {
	t.Helper()
	var body struct {
		Sync struct {
			Total      int `json:"total"`
			Successful int `json:"successful"`
			Failed     int `json:"failed"`
		} `json:"sync"`
	}
	decode(t, resp, &body)
	return body.Sync.Total, body.Sync.Successful, body.Sync.Failed
}

func TestAPI_SyncCommissions_CalculatesAndPersists(t *testing.T) {
	// GIVEN: A seeded grid and cap
	// WHEN: Syncing a two-policy batch
	// THEN: Both records land with capped rates

	srv, _ := newTestServer(t)
	seedBook(t, srv)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/sync/commissions", []map[string]any{
		policyBody("pol-1", "50000"),
		policyBody("pol-2", "30000"),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	total, successful, failed := syncResult(t, resp)
	assert.Equal(t, 2, total)
	assert.Equal(t, 2, successful)
	assert.Equal(t, 0, failed)

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/revenue", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var revenue struct {
		Records []map[string]any `json:"records"`
		Totals  struct {
			Count int `json:"count"`
		} `json:"totals"`
	}
	decode(t, resp, &revenue)
	assert.Equal(t, 2, revenue.Totals.Count)
	require.Len(t, revenue.Records, 2)
	assert.Equal(t, "12", revenue.Records[0]["total_rate"], "10+2 reward stays within the 12 cap")
}

func TestAPI_SyncTwice_IsIdempotent(t *testing.T) {
	// GIVEN: One completed sync
	// WHEN: Running the identical sync again
	// THEN: Same record count and same record IDs, no duplicates

	srv, _ := newTestServer(t)
	seedBook(t, srv)

	batch := []map[string]any{policyBody("pol-1", "50000")}

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/sync/commissions", batch)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var first struct {
		Records []map[string]any `json:"records"`
	}
	resp = doJSON(t, http.MethodGet, srv.URL+"/api/revenue", nil)
	decode(t, resp, &first)
	require.Len(t, first.Records, 1)
	firstID := first.Records[0]["id"]

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/sync/commissions", batch)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var second struct {
		Records []map[string]any `json:"records"`
	}
	resp = doJSON(t, http.MethodGet, srv.URL+"/api/revenue", nil)
	decode(t, resp, &second)
	require.Len(t, second.Records, 1, "re-running sync must not duplicate records")
	assert.Equal(t, firstID, second.Records[0]["id"])
}

func TestAPI_SyncRevenue_PartialFailure_ReportsPerRow(t *testing.T) {
	// GIVEN: One resolvable and one unresolvable policy stored
	// WHEN: Syncing revenue
	// THEN: The good record lands; the bad row is reported, not fatal

	srv, _ := newTestServer(t)
	seedBook(t, srv)

	badPolicy := policyBody("pol-bad", "10000")
	badPolicy["provider"] = "Nowhere Insurance"

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/sync/commissions", []map[string]any{
		policyBody("pol-good", "50000"),
		badPolicy,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	total, successful, failed := syncResult(t, resp)
	assert.Equal(t, 2, total)
	assert.Equal(t, 1, successful)
	assert.Equal(t, 1, failed)

	var revenue struct {
		Records []map[string]any `json:"records"`
	}
	resp = doJSON(t, http.MethodGet, srv.URL+"/api/revenue", nil)
	decode(t, resp, &revenue)
	assert.Len(t, revenue.Records, 1)
}

// =============================================================================
// DASHBOARD TESTS
// =============================================================================

func TestAPI_Dashboard_ShapeAndAlerts(t *testing.T) {
	// GIVEN: A synced book whose campaign pushes the rate past the cap
	// WHEN: Fetching the dashboard
	// THEN: LOB performance, rule counts, the breach alert, and the
	//       campaign panel are all populated

	srv, _ := newTestServer(t)
	seedBook(t, srv)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/campaigns", map[string]any{
		"name":       "festive",
		"bonus_rate": "1",
		"valid_from": "2025-06-01",
		"valid_to":   "2025-12-31",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/sync/commissions", []map[string]any{
		policyBody("pol-1", "50000"),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/dashboard", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var dash struct {
		LOBPerformance []map[string]any `json:"lobPerformance"`
		RulesCount     map[string]int   `json:"rulesCount"`
		Alerts         []map[string]any `json:"complianceAlerts"`
		Upcoming       []map[string]any `json:"upcomingCampaigns"`
	}
	decode(t, resp, &dash)

	require.Len(t, dash.LOBPerformance, 1)
	assert.Equal(t, "motor", dash.LOBPerformance[0]["product_type"])
	assert.Equal(t, 1, dash.RulesCount["grids"])
	assert.Equal(t, 1, dash.RulesCount["compliance"])
	require.Len(t, dash.Alerts, 1, "10+2+1 breaches the 12 cap by one point")
	assert.Equal(t, "medium", dash.Alerts[0]["severity"])
	assert.Len(t, dash.Upcoming, 1)
}

// =============================================================================
// EXPORT TESTS
// =============================================================================

func TestAPI_ExportCSV_FixedColumnOrder(t *testing.T) {
	// GIVEN: A synced record
	// WHEN: Exporting CSV
	// THEN: The header row is the fixed 18-column contract

	srv, _ := newTestServer(t)
	seedBook(t, srv)
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/sync/commissions", []map[string]any{
		policyBody("pol-1", "50000"),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/revenue/export", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))

	var buf bytes.Buffer
	_, err := buf.ReadFrom(resp.Body)
	require.NoError(t, err)

	want := "Policy Number,Provider,Product Type,Source Type,Customer Name," +
		"Agent Name,Employee Name,MISP Name,Premium,Base Rate %,Reward Rate %," +
		"Total Rate %,Insurer Commission,Agent Commission,Employee Commission," +
		"Broker Share,Status,Calc Date"
	lines := bytes.Split(buf.Bytes(), []byte("\n"))
	require.GreaterOrEqual(t, len(lines), 2)
	assert.Equal(t, want, string(lines[0]))
}

// =============================================================================
// RECORD STATUS TESTS
// =============================================================================

func TestAPI_UpdateRecordStatus_VersionConflict_Is409(t *testing.T) {
	// GIVEN: A synced record at version 1
	// WHEN: Updating with a stale version
	// THEN: 409; correct version succeeds

	srv, _ := newTestServer(t)
	seedBook(t, srv)
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/sync/commissions", []map[string]any{
		policyBody("pol-1", "50000"),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var revenue struct {
		Records []struct {
			ID      string `json:"id"`
			Version int    `json:"version"`
		} `json:"records"`
	}
	resp = doJSON(t, http.MethodGet, srv.URL+"/api/revenue", nil)
	decode(t, resp, &revenue)
	require.Len(t, revenue.Records, 1)
	id := revenue.Records[0].ID

	url := fmt.Sprintf("%s/api/revenue/%s/status", srv.URL, id)

	resp = doJSON(t, http.MethodPost, url, map[string]any{"status": "approved", "version": 99})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, url, map[string]any{"status": "approved", "version": 1})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// =============================================================================
// SETTLEMENT WORKFLOW TESTS
// =============================================================================

func TestAPI_SettlementWorkflow_DisputeResubmitApprove(t *testing.T) {
	// GIVEN: A settlement ₹1,500 short
	// WHEN: Walking dispute → resubmit(corrected) → approve
	// THEN: Each transition succeeds and the final state is reconciled

	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/settlements", map[string]any{
		"insurer":  "Acme General",
		"period":   "2025-06",
		"expected": "150000",
		"received": "148500",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	decode(t, resp, &created)
	assert.Equal(t, "pending", created.Status)

	base := srv.URL + "/api/settlements/" + created.ID

	// Approving outside tolerance must fail first.
	resp = doJSON(t, http.MethodPost, base+"/approve", map[string]any{"actor": "ops@broker"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, base+"/dispute", map[string]any{"actor": "ops@broker"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, base+"/resubmit", map[string]any{
		"actor":    "insurer-desk",
		"received": "150000",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var resubmitted struct {
		Status   string `json:"status"`
		Variance string `json:"variance"`
	}
	decode(t, resp, &resubmitted)
	assert.Equal(t, "pending", resubmitted.Status)
	assert.Equal(t, "0", resubmitted.Variance)

	resp = doJSON(t, http.MethodPost, base+"/approve", map[string]any{"actor": "ops@broker"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var final struct {
		Status     string `json:"status"`
		ApprovedBy string `json:"approved_by"`
	}
	decode(t, resp, &final)
	assert.Equal(t, "reconciled", final.Status)
	assert.Equal(t, "ops@broker", final.ApprovedBy)
}

func TestAPI_SettlementRepost_SamePeriod_UpdatesInPlace(t *testing.T) {
	// GIVEN: A settlement already posted for an insurer and period
	// WHEN: Posting a corrected statement for the same insurer and period
	// THEN: The same settlement is updated, not duplicated

	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/settlements", map[string]any{
		"insurer":  "Acme General",
		"period":   "2025-06",
		"expected": "150000",
		"received": "148500",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var first struct {
		ID string `json:"id"`
	}
	decode(t, resp, &first)

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/settlements", map[string]any{
		"insurer":  "Acme General",
		"period":   "2025-06",
		"expected": "150000",
		"received": "150000",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var second struct {
		ID       string `json:"id"`
		Received string `json:"received"`
		Variance string `json:"variance"`
	}
	decode(t, resp, &second)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "150000", second.Received)
	assert.Equal(t, "0", second.Variance)

	var listed []map[string]any
	resp = doJSON(t, http.MethodGet, srv.URL+"/api/settlements", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &listed)
	assert.Len(t, listed, 1)
}

func TestAPI_SettlementAction_UnknownID_Is404(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/settlements/no-such/approve", map[string]any{"actor": "ops@broker"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// =============================================================================
// CALCULATE PREVIEW TESTS
// =============================================================================

func TestAPI_CalculatePreview_DoesNotPersist(t *testing.T) {
	// GIVEN: A seeded book
	// WHEN: Previewing a calculation
	// THEN: The record comes back but the revenue table stays empty

	srv, _ := newTestServer(t)
	seedBook(t, srv)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/calculate", policyBody("pol-preview", "50000"))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var preview struct {
		Record struct {
			InsurerCommission string `json:"insurer_commission"`
			AgentCommission   string `json:"agent_commission"`
		} `json:"record"`
	}
	decode(t, resp, &preview)
	assert.Equal(t, "6000", preview.Record.InsurerCommission)
	assert.Equal(t, "4200", preview.Record.AgentCommission)

	var revenue struct {
		Records []map[string]any `json:"records"`
	}
	resp = doJSON(t, http.MethodGet, srv.URL+"/api/revenue", nil)
	decode(t, resp, &revenue)
	assert.Empty(t, revenue.Records)
}

func TestAPI_CalculatePreview_NegativeShare_Is422(t *testing.T) {
	srv, _ := newTestServer(t)
	seedBook(t, srv)

	body := policyBody("pol-bad", "50000")
	body["agent_share_pct"] = "90"
	body["reporting_employee_override_pct"] = "20"

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/calculate", body)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

// =============================================================================
// INGEST TESTS
// =============================================================================

func TestAPI_IngestGrids_PerRowErrors(t *testing.T) {
	// GIVEN: One good and one malformed grid row
	// WHEN: Ingesting
	// THEN: One succeeds, one is reported by row number

	srv, _ := newTestServer(t)

	rows := [][]string{
		{"motor", "Acme General", "", "", "10", "2", "2025-01-01", "2025-12-31", "Maruti", "Petrol", "", ""},
		{"motor", "", "", "", "not-a-rate", "0", "2025-01-01", "2025-12-31", "", "", "", ""},
	}

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/ingest/grids", rows)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Total      int `json:"total"`
		Successful int `json:"successful"`
		Failed     int `json:"failed"`
		Errors     []struct {
			Row int `json:"row"`
		} `json:"errors"`
	}
	decode(t, resp, &result)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 1, result.Successful)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, 2, result.Errors[0].Row)
}
