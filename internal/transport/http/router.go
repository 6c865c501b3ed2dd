package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"helixpass/internal/platform/metrics"
	mw "helixpass/internal/platform/middleware"
)

// HealthFunc reports dependency health for /healthz. A nil func means the
// process answers for itself only.
type HealthFunc func() error

// NewRouter assembles the full middleware chain and routes.
//
// The request timeout applies to reads only: a grant saga must outlive its
// caller once minting starts, and its one long wait (the association
// signature) is bounded by its own configured timeout.
func NewRouter(h *Handler, validator mw.JWTValidator, logger *slog.Logger, m *metrics.Metrics, health HealthFunc) *chi.Mux {
	r := chi.NewRouter()
	r.Use(
		mw.Recovery(logger),
		mw.RequestID,
		mw.RequestTime,
		mw.ClientInfo,
		mw.Logger(logger),
		mw.Latency(m),
		mw.ContentTypeJSON,
	)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if health != nil {
			if err := health(); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(mw.RequireAuth(validator, logger))

		r.Post("/consents", h.GrantConsent)
		r.Post("/consents/{consentID}/revoke", h.RevokeConsent)

		r.Group(func(r chi.Router) {
			r.Use(mw.Timeout(15 * time.Second))
			r.Get("/consents", h.ListConsents)
			r.Get("/consents/{consentID}/validity", h.CheckValidity)
			r.Get("/activity", h.ListActivity)
		})
	})
	return r
}
