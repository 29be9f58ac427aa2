// Package controlplane exposes the daemon's HTTP administration API: live
// session listing, quota inspection, and quota grants.
package controlplane

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marmos91/paylink/internal/logger"
	"github.com/marmos91/paylink/pkg/metrics"
	"github.com/marmos91/paylink/pkg/registry"
)

// NewRouter creates the control-plane router.
//
// Routes:
//   - GET  /health - liveness probe
//   - GET  /health/ready - readiness probe
//   - GET  /metrics - prometheus metrics (when enabled)
//   - GET  /api/v1/sessions - live session listing
//   - GET  /api/v1/quotas/{caller} - caller's remaining quota
//   - POST /api/v1/quotas/{caller}/grant - raise a caller's quota
func NewRouter(reg *registry.Registry) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	healthHandler := NewHealthHandler(reg)
	r.Route("/health", func(r chi.Router) {
		r.Get("/", healthHandler.Liveness)
		r.Get("/ready", healthHandler.Readiness)
	})

	if metrics.IsEnabled() {
		r.Handle("/metrics", promhttp.HandlerFor(
			metrics.GetRegistry(), promhttp.HandlerOpts{}))
	}

	sessionHandler := NewSessionHandler(reg)
	quotaHandler := NewQuotaHandler(reg)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/sessions", sessionHandler.List)
		r.Route("/quotas/{caller}", func(r chi.Router) {
			r.Get("/", func(w http.ResponseWriter, req *http.Request) {
				quotaHandler.Get(chi.URLParam(req, "caller"))(w, req)
			})
			r.Post("/grant", func(w http.ResponseWriter, req *http.Request) {
				quotaHandler.Grant(chi.URLParam(req, "caller"))(w, req)
			})
		})
	})

	return r
}

func isHealthPath(path string) bool {
	return path == "/health" || strings.HasPrefix(path, "/health/")
}

// requestLogger logs requests through the internal logger; health probes log
// at debug to keep the noise down.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logArgs := []any{
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start).String(),
		}
		if isHealthPath(r.URL.Path) {
			logger.Debug("API request completed", logArgs...)
		} else {
			logger.Info("API request completed", logArgs...)
		}
	})
}
