package api

import (
	"net/http"

	"ms-tableside/internal/billing"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req billing.AllocateRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	alloc, err := h.Billing.ProcessPayment(r.Context(), caller, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.created(w, "Payment processed", alloc)
}

func (h *Handler) PendingBillRequests(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	pending, err := h.Billing.PendingBillRequests(r.Context(), caller)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, "", pending)
}

func (h *Handler) MarkBillRequestProcessed(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.Billing.MarkBillRequestProcessed(r.Context(), caller, chi.URLParam(r, "requestId")); err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, "Bill request processed", nil)
}

func (h *Handler) ServerStats(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	stats, err := h.Billing.ServerStats(r.Context(), caller)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, "", stats)
}
