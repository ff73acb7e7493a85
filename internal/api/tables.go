package api

import (
	"net/http"
	"time"

	"ms-tableside/internal/models"
	"ms-tableside/internal/tables"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) ListTables(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	list, err := h.Tables.List(r.Context(), caller)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, "", list)
}

func (h *Handler) GetTable(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	table, err := h.Tables.Get(r.Context(), caller, chi.URLParam(r, "tableId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, "", table)
}

func (h *Handler) UpdateTable(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var patch tables.TablePatch
	if err := decode(r, &patch); err != nil {
		h.fail(w, r, err)
		return
	}
	table, err := h.Tables.Update(r.Context(), caller, chi.URLParam(r, "tableId"), patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, "Table updated", table)
}

func (h *Handler) SetTableStatus(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var body struct {
		Status models.TableStatus `json:"status"`
	}
	if err := decode(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	table, err := h.Tables.SetStatus(r.Context(), caller, chi.URLParam(r, "tableId"), body.Status)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, "Table status updated", table)
}

func (h *Handler) AssignTable(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var body struct {
		ServerID string `json:"serverId"`
	}
	if err := decode(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	table, err := h.Tables.Assign(r.Context(), caller, chi.URLParam(r, "tableId"), body.ServerID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, "Table assigned", table)
}

func (h *Handler) ReleaseTable(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	table, err := h.Tables.Release(r.Context(), caller, chi.URLParam(r, "tableId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, "Table released", table)
}

func (h *Handler) IssueTableSession(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var ttl time.Duration
	if raw := r.URL.Query().Get("ttl"); raw != "" {
		ttl, err = time.ParseDuration(raw)
		if err != nil || ttl <= 0 {
			h.badRequest(w, r, "ttl must be a positive duration such as 12h")
			return
		}
	}
	issued, err := h.Tables.IssueSession(r.Context(), caller, chi.URLParam(r, "tableId"), ttl)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.created(w, "Table session issued", issued)
}

func (h *Handler) RevokeTableSessions(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	n, err := h.Tables.RevokeSessions(r.Context(), caller, chi.URLParam(r, "tableId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, "Table sessions revoked", map[string]int64{"revoked": n})
}

// TableQRCode serves the PNG directly so it can be used as an <img> source.
func (h *Handler) TableQRCode(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	issued, png, err := h.Tables.QRCode(r.Context(), caller, chi.URLParam(r, "tableId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Table-URL", issued.URL)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (h *Handler) TableBill(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	bill, err := h.Billing.TableBill(r.Context(), caller, chi.URLParam(r, "tableId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, "", bill)
}

func (h *Handler) TablesOverview(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	overview, err := h.Billing.TablesOverview(r.Context(), caller)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, "", overview)
}
