/*
export.go - Revenue report export (CSV and XLSX)

PURPOSE:
  Streams the filtered revenue report as a downloadable file. The CSV
  column order is a fixed contract with downstream finance tooling and
  must not change; XLSX mirrors the same columns for users who want a
  workbook.

SEE ALSO:
  - handlers.go: Filter parsing and shared helpers
*/
package api

import (
	"encoding/csv"
	"fmt"
	"net/http"

	"github.com/tealeg/xlsx/v2"

	"github.com/keystone/broking-engine/commission"
)

// exportColumns is the fixed column order. Downstream imports depend on
// positions, not headers.
var exportColumns = []string{
	"Policy Number", "Provider", "Product Type", "Source Type",
	"Customer Name", "Agent Name", "Employee Name", "MISP Name",
	"Premium", "Base Rate %", "Reward Rate %", "Total Rate %",
	"Insurer Commission", "Agent Commission", "Employee Commission",
	"Broker Share", "Status", "Calc Date",
}

func exportRow(r commission.RevenueRecord) []string {
	return []string{
		r.PolicyNumber,
		r.Provider,
		string(r.ProductType),
		string(r.SourceType),
		r.CustomerName,
		r.AgentName,
		r.EmployeeName,
		r.MISPName,
		r.Premium.String(),
		r.BaseRate.String(),
		r.RewardRate.String(),
		r.TotalRate.String(),
		r.InsurerCommission.String(),
		r.AgentCommission.String(),
		r.EmployeeCommission.String(),
		r.BrokerShare.String(),
		string(r.Status),
		r.CalcDate.Format(dateLayout),
	}
}

// filteredRecords applies the request's query filters to the tenant's
// record set.
func (h *Handler) filteredRecords(r *http.Request) ([]commission.RevenueRecord, error) {
	tenant := tenantFrom(r)

	records, err := h.store.ListRecords(r.Context(), tenant)
	if err != nil {
		return nil, err
	}
	filter, err := filterFromQuery(r)
	if err != nil {
		return nil, err
	}
	return commission.ApplyFilter(records, filter), nil
}

// ExportRevenueCSV writes the filtered revenue report as CSV.
func (h *Handler) ExportRevenueCSV(w http.ResponseWriter, r *http.Request) {
	records, err := h.filteredRecords(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="revenue_report.csv"`)

	cw := csv.NewWriter(w)
	if err := cw.Write(exportColumns); err != nil {
		return
	}
	for _, rec := range records {
		if err := cw.Write(exportRow(rec)); err != nil {
			return
		}
	}
	cw.Flush()
}

// ExportRevenueXLSX writes the same report as a single-sheet workbook.
func (h *Handler) ExportRevenueXLSX(w http.ResponseWriter, r *http.Request) {
	records, err := h.filteredRecords(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Revenue")
	if err != nil {
		h.writeError(w, r, fmt.Errorf("build workbook: %w", err))
		return
	}

	header := sheet.AddRow()
	for _, col := range exportColumns {
		header.AddCell().SetString(col)
	}
	for _, rec := range records {
		row := sheet.AddRow()
		for _, cell := range exportRow(rec) {
			row.AddCell().SetString(cell)
		}
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="revenue_report.xlsx"`)
	if err := f.Write(w); err != nil {
		h.log.Warn("xlsx export write failed")
	}
}
