package httpapi

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"mercadinho/backend/internal/domain"
	"mercadinho/backend/internal/money"
)

const currencyPrefix = "R$"

func (a *API) handleOpenRegister(w http.ResponseWriter, r *http.Request) {
	var req domain.OpenRegisterRequest
	if !a.decode(w, r, &req) {
		return
	}

	session, err := a.service.OpenRegister(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newSessionResponse(session))
}

func (a *API) handleCloseRegister(w http.ResponseWriter, r *http.Request) {
	var req domain.CloseRegisterRequest
	if !a.decode(w, r, &req) {
		return
	}

	record, err := a.service.CloseRegister(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newClosingResponse(record))
}

func (a *API) handleCurrentRegister(w http.ResponseWriter, r *http.Request) {
	current, err := a.service.GetOpenRegisterSession(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}

	var payload *sessionResponse
	if session, ok := current.Get(); ok {
		resp := newSessionResponse(session)
		payload = &resp
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": payload})
}

func (a *API) handleListRegisterSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := a.service.ListRegisterSessions(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}

	out := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, newSessionResponse(s))
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

func (a *API) handleListClosings(w http.ResponseWriter, r *http.Request) {
	records, err := a.service.ListClosingRecords(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}

	out := make([]closingResponse, 0, len(records))
	for _, c := range records {
		out = append(out, newClosingResponse(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"closings": out})
}

func (a *API) handleSessionReport(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}

	report, err := a.service.SessionReport(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}

	switch strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format"))) {
	case "", "json":
		writeJSON(w, http.StatusOK, newReportResponse(report))
	case "csv":
		body, err := sessionReportToCSV(report)
		if err != nil {
			a.writeError(w, r, http.StatusInternalServerError, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"session-%d-report.csv\"", report.Session.ID))
		_, _ = w.Write(body)
	default:
		a.writeError(w, r, http.StatusBadRequest, fmt.Errorf("unsupported format %q", r.URL.Query().Get("format")))
	}
}

func sessionReportToCSV(report domain.SessionReport) ([]byte, error) {
	cents := func(v int64) string { return money.Cents(v).Format(currencyPrefix) }

	rows := [][]string{
		{"section", "key", "value"},
		{"session", "id", strconv.FormatInt(report.Session.ID, 10)},
		{"session", "open", strconv.FormatBool(report.Session.IsOpen)},
		{"session", "initial_float", cents(report.Session.InitialFloatCents)},
		{"summary", "sales_count", strconv.Itoa(report.SalesCount)},
	}
	for _, method := range domain.PaymentMethods() {
		rows = append(rows, []string{"payment", method.String(), cents(report.Breakdown.PerMethod[method])})
	}
	if report.Breakdown.UnbucketedCents != 0 {
		rows = append(rows, []string{"payment", "other", cents(report.Breakdown.UnbucketedCents)})
	}
	rows = append(rows,
		[]string{"summary", "sales_total", cents(report.Breakdown.TotalCents)},
		[]string{"summary", "grand_total", cents(report.GrandTotalCents)},
		[]string{"summary", "expected_cash", cents(report.ExpectedCashCents)},
	)
	if final, ok := report.Session.FinalBalanceCents.Get(); ok {
		rows = append(rows, []string{"summary", "final_balance", cents(final)})
	}
	if diff, ok := report.DifferenceCents.Get(); ok {
		rows = append(rows, []string{"summary", "difference", cents(diff)})
	}

	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("write report csv: %w", err)
	}
	return buf.Bytes(), nil
}
