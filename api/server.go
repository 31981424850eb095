/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. Metrics:    Prometheus request counter by route pattern
  5. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/scenarios/*      Scenario lifecycle, envelopes, resources
  /api/templates        Calendar templates
  /api/holidays/*       Static and imported holidays
  /api/ws/*             WebSocket subscriptions
  /api/demo/*           Demo projects
  /api/admin/*          Admin operations
  /metrics              Prometheus exposition

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "http_requests_total",
	Help: "HTTP requests by method, route pattern and status",
}, []string{"method", "route", "status"})

// DefaultAllowedOrigins are used when NewRouter gets none.
var DefaultAllowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins ...string) *chi.Mux {
	if len(allowedOrigins) == 0 {
		allowedOrigins = DefaultAllowedOrigins
	}
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(countRequests)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", ownerHeader},
		AllowCredentials: true,
	}))

	r.Handle("/metrics", promhttp.Handler())

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/init", h.InitProject)
			r.Get("/active", h.GetActiveScenario)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetScenario)
				r.Delete("/", h.DeleteScenario)
				r.Post("/fork", h.ForkScenario)
				r.Post("/publish", h.PublishScenario)
				r.Post("/restore", h.RestoreScenario)
				r.Get("/budget", h.GetBudget)

				r.Post("/envelopes", h.AddEnvelope)
				r.Put("/envelopes/{eid}", h.UpdateEnvelope)
				r.Delete("/envelopes/{eid}", h.DeleteEnvelope)

				r.Route("/resources", func(r chi.Router) {
					r.Get("/", h.ListResources)
					r.Post("/", h.CreateResource)
					r.Put("/{rid}", h.UpdateResource)
					r.Delete("/{rid}", h.DeleteResource)
					r.Put("/{rid}/overrides", h.SetOverride)
					r.Post("/{rid}/overrides/range", h.SetOverrideRange)
					r.Post("/{rid}/holidays", h.ApplyHolidays)
					r.Get("/{rid}/stats", h.GetResourceStats)
					r.Get("/{rid}/calendar", h.GetResourceCalendar)
				})
			})
		})

		// Template routes
		r.Route("/templates", func(r chi.Router) {
			r.Get("/", h.ListTemplates)
			r.Post("/", h.CreateTemplate)
		})

		// Holiday routes
		r.Get("/holidays/{country}", h.GetHolidays)

		// Subscriptions
		r.Route("/ws", func(r chi.Router) {
			r.Get("/scenarios", h.StreamScenarios)
			r.Get("/scenarios/{id}/resources", h.StreamResources)
		})

		// Demo routes
		r.Route("/demo", func(r chi.Router) {
			r.Get("/", h.ListDemos)
			r.Post("/load", h.LoadDemo)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/reset", h.ResetDatabase)
		})
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>Presence Engine</title></head>
<body style="font-family: system-ui; max-width: 800px; margin: 50px auto; padding: 20px;">
<h1>Presence Engine API</h1>
<h2>API Endpoints</h2>
<ul>
<li><a href="/api/scenarios">/api/scenarios</a> - List scenarios</li>
<li><a href="/api/scenarios/active">/api/scenarios/active</a> - Active scenario</li>
<li><a href="/api/templates">/api/templates</a> - Calendar templates</li>
<li><a href="/api/demo">/api/demo</a> - Demo projects</li>
<li><a href="/metrics">/metrics</a> - Prometheus metrics</li>
</ul>
</body>
</html>`))
	})

	return r
}

// countRequests records every request under its route pattern, so ids in
// paths do not blow up label cardinality.
func countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
	})
}
