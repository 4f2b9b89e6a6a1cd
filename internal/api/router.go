package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MikeSquared-Agency/Cortex/internal/broker"
)

func NewRouter(b *broker.Broker, adminToken string, requestsPerMinute int, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.RequestID)
	r.Use(RequestLogger(logger))
	r.Use(RateLimitMiddleware(requestsPerMinute))

	assign := NewAssignHandler(b)
	ledger := NewLedgerHandler(b)
	admin := NewAdminHandler(b)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/ledger/{modality}", ledger.Get)
		r.Get("/explain/{modality}/{skill}", assign.Explain)

		r.Group(func(r chi.Router) {
			r.Use(AdminAuthMiddleware(adminToken))
			r.Get("/admin/stats", ledger.Stats)

			r.Get("/admin/roster", admin.GetRoster)
			r.Put("/admin/roster", admin.PutRoster)
			r.Post("/admin/roster/reload", admin.ReloadRoster)
			r.Get("/admin/roster/skills", admin.ExportSkills)
			r.Put("/admin/roster/skills", admin.ImportSkills)

			r.Put("/admin/workers/{id}", admin.PutWorker)
			r.Delete("/admin/workers/{id}", admin.DeleteWorker)
			r.Post("/admin/workers/{id}/drain", admin.Drain)
			r.Post("/admin/workers/{id}/undrain", admin.Undrain)

			r.Post("/admin/ledger/reset", admin.ResetLedger)
			r.Get("/admin/ledger/snapshot", admin.GetSnapshot)
			r.Put("/admin/ledger/snapshot", admin.PutSnapshot)
			r.Get("/admin/assignments", admin.Assignments)
		})
	})

	r.Get("/api/quick_reload", ledger.QuickReload)
	r.Get("/api/{modality}/{skill}", assign.Assign)
	r.Get("/api/{modality}/{skill}/strict", assign.AssignStrict)

	return r
}

// NewMetricsRouter serves health and the metrics of gatherer; nil means the
// default registry.
func NewMetricsRouter(gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if gatherer == nil {
		r.Handle("/metrics", promhttp.Handler())
	} else {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return r
}
