package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/zoe-analytics/zoe/pkg/facade"
	"github.com/zoe-analytics/zoe/pkg/manager"
	"github.com/zoe-analytics/zoe/pkg/metrics"
)

// Config holds the REST layer's own settings, distinct from pkg/config's
// deployment-wide Config so this package stays usable without it in tests.
type Config struct {
	// APIVersion is the path segment after /api, e.g. "v1".
	APIVersion string
	// SessionSigningKey signs the zoe_session cookie. A server restarted
	// with a different key invalidates every outstanding session.
	SessionSigningKey string
	// CORSAllowedOrigins is passed straight to go-chi/cors; "*" if empty.
	CORSAllowedOrigins []string
}

// Server is the REST API: a thin adapter from chi routes to facade calls.
type Server struct {
	facade   *facade.Facade
	manager  *manager.Manager
	sessions sessionSigner
	cfg      Config
	events   http.Handler
}

// NewServer builds the REST API server.
func NewServer(f *facade.Facade, mgr *manager.Manager, cfg Config) *Server {
	if cfg.APIVersion == "" {
		cfg.APIVersion = "v1"
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"*"}
	}
	return &Server{
		facade:   f,
		manager:  mgr,
		sessions: newSessionSigner(cfg.SessionSigningKey),
		cfg:      cfg,
	}
}

func isWildcardOrigins(origins []string) bool {
	return len(origins) == 1 && origins[0] == "*"
}

// SetEventIngest mounts the container observer event endpoint at
// POST /events. A Server built without calling this never registers the
// route, which is the right shape for tests that have no observer.
func (s *Server) SetEventIngest(h http.Handler) {
	s.events = h
}

// Router builds the chi.Mux serving /api/<version>, /cluster/join,
// /metrics and /health, /ready.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestMetrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		// A wildcard origin can never be paired with credentialed
		// requests - browsers reject it outright - so the zoe_session
		// cookie only rides cross-origin once a real origin list is
		// configured.
		AllowCredentials: !isWildcardOrigins(s.cfg.CORSAllowedOrigins),
		MaxAge:           300,
	}))

	r.Route("/api/"+s.cfg.APIVersion, func(api chi.Router) {
		api.Post("/login", s.loginHandler)

		api.Get("/execution", s.requireAuth(s.executionList))
		api.Post("/execution", s.requireAuth(s.executionStart))
		api.Get("/execution/{id}", s.requireAuth(s.executionByID))
		api.Delete("/execution/{id}", s.requireAuth(s.executionDelete))
		api.Get("/execution/{id}/endpoints", s.requireAuth(s.executionEndpoints))

		api.Get("/service/{id}", s.requireAuth(s.serviceByID))
		api.Get("/service/{id}/logs", s.requireAuth(s.serviceLogs))

		api.Get("/statistics/scheduler", s.requireAuth(s.statisticsScheduler))

		api.Get("/user", s.requireAuth(s.userList))
		api.Get("/user/{name}", s.requireAuth(s.userByName))
		api.Put("/user/{name}", s.requireAuth(s.userUpdate))
	})

	r.Post("/cluster/join", s.clusterJoin)
	r.Handle("/metrics", metrics.Handler())
	if s.events != nil {
		r.Post("/events", s.events.ServeHTTP)
	}

	hs := newHealthServer(s.manager)
	r.Get("/health", hs.healthHandler)
	r.Get("/ready", hs.readyHandler)

	return r
}

// requestMetrics records zoe_api_requests_total and
// zoe_api_request_duration_seconds for every request, keyed by chi's
// matched route pattern rather than the raw path so per-ID routes don't
// explode the metric's cardinality.
func (s *Server) requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.APIRequestsTotal.WithLabelValues(r.Method, route, http.StatusText(status)).Inc()
		metrics.APIRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
