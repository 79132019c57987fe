package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tpeyrard/hivefuzz/internal/logger"
	"github.com/tpeyrard/hivefuzz/pkg/broker"
	"github.com/tpeyrard/hivefuzz/pkg/metrics"
)

// NewRouter builds the control API router.
//
// Routes:
//   - GET  /health                 liveness probe
//   - GET  /metrics                Prometheus metrics (when enabled)
//   - GET  /api/v1/campaign        campaign summary
//   - POST /api/v1/campaign/stop   operator stop
//   - GET  /api/v1/clients         fleet listing
//   - GET  /api/v1/alerts          defect report state
//   - GET  /api/v1/stats           per-client telemetry
func NewRouter(b *broker.Broker) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		JSON(w, http.StatusOK, OK(map[string]string{"state": b.State().String()}))
	})

	if metrics.IsEnabled() {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(
			metrics.GetRegistry(), promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/campaign", func(w http.ResponseWriter, _ *http.Request) {
			JSON(w, http.StatusOK, OK(b.Campaign()))
		})
		r.Post("/campaign/stop", func(w http.ResponseWriter, _ *http.Request) {
			b.Stop()
			JSON(w, http.StatusAccepted, OK(map[string]string{"state": b.State().String()}))
		})
		r.Get("/clients", func(w http.ResponseWriter, _ *http.Request) {
			JSON(w, http.StatusOK, OK(b.Clients()))
		})
		r.Get("/alerts", func(w http.ResponseWriter, _ *http.Request) {
			JSON(w, http.StatusOK, OK(b.Alerts()))
		})
		r.Get("/stats", func(w http.ResponseWriter, _ *http.Request) {
			JSON(w, http.StatusOK, OK(b.Stats()))
		})
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/health", http.StatusTemporaryRedirect)
	})

	return r
}

// requestLogger logs each request through the internal logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger.Debug("api request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start))
	})
}
