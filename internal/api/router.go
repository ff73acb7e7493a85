package api

import (
	"net/http"
	"time"

	"ms-tableside/internal/auth"
	"ms-tableside/internal/logger"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
)

// NewRouter mounts customer routes under /api/public and staff routes behind the token verifier.
func NewRouter(h *Handler, verifier auth.Verifier, allowedOrigins []string, log *logger.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/public", func(r chi.Router) {
		r.Post("/session", h.StartSession)
		r.Get("/orders", h.PublicOrders)
		r.Post("/orders", h.PlaceOrder)
		r.Get("/bill", h.PublicBill)
		r.Post("/bill-request", h.RequestBill)
		r.Post("/call-waiter", h.CallWaiter)
		r.Post("/payments", h.PublicPayment)
		r.Get("/events", h.TableEvents)
	})
	log.Info("ROUTER", "Customer routes registered under /api/public")

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(verifier, log))

		r.Route("/api/tables", func(r chi.Router) {
			r.Get("/", h.ListTables)
			r.Get("/overview", h.TablesOverview)
			r.Get("/{tableId}", h.GetTable)
			r.Patch("/{tableId}", h.UpdateTable)
			r.Put("/{tableId}/status", h.SetTableStatus)
			r.Post("/{tableId}/assign", h.AssignTable)
			r.Post("/{tableId}/release", h.ReleaseTable)
			r.Post("/{tableId}/session", h.IssueTableSession)
			r.Post("/{tableId}/revoke-token", h.RevokeTableSessions)
			r.Get("/{tableId}/qr", h.TableQRCode)
			r.Get("/{tableId}/bill", h.TableBill)
		})

		r.Route("/api/orders", func(r chi.Router) {
			r.Get("/", h.ListOrders)
			r.Get("/{orderId}", h.GetOrder)
			r.Patch("/{orderId}", h.UpdateOrder)
			r.Post("/{orderId}/review", h.ReviewOrder)
			r.Post("/{orderId}/claim", h.ClaimOrder)
			r.Put("/{orderId}/status", h.SetOrderStatus)
		})

		r.Post("/api/payments", h.ProcessPayment)
		r.Get("/api/bill-requests", h.PendingBillRequests)
		r.Post("/api/bill-requests/{requestId}/processed", h.MarkBillRequestProcessed)
		r.Get("/api/stats/servers", h.ServerStats)
		r.Get("/api/events", h.StaffEvents)
	})
	log.Info("ROUTER", "Staff routes registered under /api")

	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Table-URL"},
		AllowCredentials: true,
		MaxAge:           300,
	})
	return c.Handler(r)
}

func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.LogAPI(r.Method, r.URL.Path, ww.Status(), time.Since(start))
		})
	}
}
