package api

import (
	"net/http"
	"strconv"

	"ms-tableside/internal/models"
	"ms-tableside/internal/order"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q := r.URL.Query()
	f := order.ListFilter{
		Status:  models.OrderStatus(q.Get("status")),
		TableID: q.Get("tableId"),
	}
	if raw := q.Get("mine"); raw != "" {
		f.Mine, err = strconv.ParseBool(raw)
		if err != nil {
			h.badRequest(w, r, "mine must be true or false")
			return
		}
	}
	orders, err := h.Orders.List(r.Context(), caller, f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, "", orders)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	o, err := h.Orders.Get(r.Context(), caller, chi.URLParam(r, "orderId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, "", o)
}

func (h *Handler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var patch order.OrderPatch
	if err := decode(r, &patch); err != nil {
		h.fail(w, r, err)
		return
	}
	o, err := h.Orders.Update(r.Context(), caller, chi.URLParam(r, "orderId"), patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, "Order updated", o)
}

func (h *Handler) ReviewOrder(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var body struct {
		Notes         string `json:"notes"`
		SendToKitchen bool   `json:"sendToKitchen"`
	}
	if err := decode(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	o, err := h.Orders.Review(r.Context(), caller, chi.URLParam(r, "orderId"), body.Notes, body.SendToKitchen)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, "Order reviewed", o)
}

func (h *Handler) ClaimOrder(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	o, err := h.Orders.Claim(r.Context(), caller, chi.URLParam(r, "orderId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, "Order claimed", o)
}

func (h *Handler) SetOrderStatus(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var body struct {
		Status models.OrderStatus `json:"status"`
	}
	if err := decode(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	o, err := h.Orders.SetStatus(r.Context(), caller, chi.URLParam(r, "orderId"), body.Status)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, "Order status updated", o)
}
