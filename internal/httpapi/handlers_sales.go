package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"mercadinho/backend/internal/domain"
	"mercadinho/backend/internal/store"
)

func (a *API) handleRecordSale(w http.ResponseWriter, r *http.Request) {
	var req domain.RecordSaleRequest
	if !a.decode(w, r, &req) {
		return
	}
	req.IdempotencyKey = strings.TrimSpace(r.Header.Get(idempotencyHeader))

	result, err := a.service.RecordSale(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]any{
		"sale":      newSaleResponse(result.Sale),
		"duplicate": result.Duplicate,
	})
}

// handleListSales serves every sale, or one filtered view selected by a
// single query parameter: status=active, customer_id or session_id.
func (a *API) handleListSales(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := strings.TrimSpace(q.Get("status"))
	customerID := strings.TrimSpace(q.Get("customer_id"))
	sessionRaw := strings.TrimSpace(q.Get("session_id"))

	filters := 0
	for _, v := range []string{status, customerID, sessionRaw} {
		if v != "" {
			filters++
		}
	}
	if filters > 1 {
		a.writeError(w, r, http.StatusBadRequest, errors.New("use at most one of status, customer_id, session_id"))
		return
	}

	var (
		sales []domain.Sale
		err   error
	)
	switch {
	case status != "":
		if status != string(domain.SaleStatusActive) {
			a.writeServiceError(w, r, store.Invalid("status", "only \"active\" is supported"))
			return
		}
		sales, err = a.service.GetActiveSales(r.Context())
	case customerID != "":
		sales, err = a.service.ListSalesByCustomer(r.Context(), customerID)
	case sessionRaw != "":
		sessionID, parseErr := strconv.ParseInt(sessionRaw, 10, 64)
		if parseErr != nil {
			a.writeServiceError(w, r, store.Invalid("session_id", "must be an integer"))
			return
		}
		sales, err = a.service.ListSalesBySession(r.Context(), sessionID)
	default:
		sales, err = a.service.ListSales(r.Context())
	}
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sales": newSaleResponses(sales)})
}

func (a *API) handleGetSale(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}

	found, err := a.service.GetSale(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	sale, ok := found.Get()
	if !ok {
		a.writeError(w, r, http.StatusNotFound, errors.New("sale not found"))
		return
	}
	writeJSON(w, http.StatusOK, newSaleResponse(sale))
}

func (a *API) handleCancelSale(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}

	ok, err := a.service.CancelSaleToday(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": ok})
}

func (a *API) handleEditSale(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}

	var req domain.EditSaleRequest
	if !a.decode(w, r, &req) {
		return
	}

	ok, err := a.service.EditSaleToday(r.Context(), id, req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": ok})
}

func (a *API) handleDeleteSale(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}

	if err := a.service.DeleteSale(r.Context(), id); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleSaleEditLogs(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}

	logs, err := a.service.GetSaleEditLogsBySale(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"edit_logs": newEditLogResponses(logs)})
}

func (a *API) handleEditLogsByEditor(w http.ResponseWriter, r *http.Request) {
	logs, err := a.service.GetSaleEditLogsByEditor(r.Context(), r.URL.Query().Get("editor"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"edit_logs": newEditLogResponses(logs)})
}
