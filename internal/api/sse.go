package api

import (
	"fmt"
	"net/http"
	"time"

	"ms-tableside/internal/apperr"
	"ms-tableside/internal/bus"
)

// StaffEvents streams the caller's restaurant topic.
func (h *Handler) StaffEvents(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	restaurantID := caller.RestaurantID
	if rid := r.URL.Query().Get("restaurantId"); rid != "" {
		if !caller.OwnsRestaurant(rid) {
			h.fail(w, r, apperr.NotFound("api.StaffEvents", "restaurant %s not found", rid))
			return
		}
		restaurantID = rid
	}
	if restaurantID == "" {
		h.badRequest(w, r, "restaurantId is required")
		return
	}
	h.stream(w, r, bus.RestaurantTopic(restaurantID))
}

// TableEvents streams the table topic of the session token in ?t=.
func (h *Handler) TableEvents(w http.ResponseWriter, r *http.Request) {
	table, err := h.Tables.SessionTable(r.Context(), r.URL.Query().Get("t"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.stream(w, r, bus.TableTopic(table.ID))
}

func (h *Handler) stream(w http.ResponseWriter, r *http.Request, topic string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.fail(w, r, fmt.Errorf("streaming unsupported by response writer"))
		return
	}

	setupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	ctx := r.Context()
	events := h.Broker.Subscribe(ctx, topic)

	fmt.Fprintf(w, "event: connected\ndata: {\"topic\":%q}\n\n", topic)
	flusher.Flush()
	h.Logger.Info("SSE", fmt.Sprintf("client subscribed to %s", topic))

	keepAlive := h.KeepAlive
	if keepAlive <= 0 {
		keepAlive = 25 * time.Second
	}
	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-events:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Event, msg.Payload); err != nil {
				h.Logger.Debug("SSE", fmt.Sprintf("write to %s subscriber failed: %v", topic, err))
				return
			}
			flusher.Flush()

		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()

		case <-ctx.Done():
			h.Logger.Debug("SSE", fmt.Sprintf("client left %s", topic))
			return
		}
	}
}

func setupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream;charset=UTF-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}
