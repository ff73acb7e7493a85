package api

import (
	"net/http"

	"ms-tableside/internal/billing"
	"ms-tableside/internal/order"
)

// Customer endpoints authenticate with the table session token instead of a staff JWT.

func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if err := decode(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	table, err := h.Tables.ValidateSession(r.Context(), body.Token)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, "Session valid", table)
}

func (h *Handler) PublicOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.Orders.ListForTable(r.Context(), r.URL.Query().Get("t"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, "", orders)
}

func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req order.CreateOrderRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	o, err := h.Orders.Create(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.created(w, "Order placed", o)
}

func (h *Handler) PublicBill(w http.ResponseWriter, r *http.Request) {
	bill, err := h.Billing.SessionBill(r.Context(), r.URL.Query().Get("t"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, "", bill)
}

func (h *Handler) RequestBill(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
		billing.BillRequestInput
	}
	if err := decode(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	br, err := h.Billing.RequestBill(r.Context(), body.Token, body.BillRequestInput)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.created(w, "Bill requested", billing.PendingRequest{BillRequest: *br, OrderIDs: br.OrderIDs()})
}

func (h *Handler) CallWaiter(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token    string `json:"token"`
		DeviceID string `json:"deviceId"`
		Message  string `json:"message"`
	}
	if err := decode(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.Tables.CallWaiter(r.Context(), body.Token, body.DeviceID, body.Message); err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, "Waiter called", nil)
}

func (h *Handler) PublicPayment(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token    string `json:"token"`
		DeviceID string `json:"deviceId"`
		billing.AllocateRequest
	}
	if err := decode(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	alloc, err := h.Billing.PayFromDevice(r.Context(), body.Token, body.DeviceID, body.AllocateRequest)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.created(w, "Payment processed", alloc)
}
