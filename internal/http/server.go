// Package http serves the read and sync API over the reconciliation services.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	plog "poen/internal/log"
	"poen/internal/middleware/ratelimit"
	"poen/internal/middleware/security"
	"poen/internal/middleware/trace"
)

// Options tune the middleware stack.
type Options struct {
	Logger    *plog.Logger
	RateLimit float64 // requests per second per client
	RateBurst int
}

type Server struct {
	http.Server
	limiter      *ratelimit.Limiter
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, deps Deps, opts Options) *Server {
	detector := security.NewDetector()
	limiter := ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerSecond: opts.RateLimit,
		Burst:             opts.RateBurst,
	})
	tracer := trace.NewMiddleware(opts.Logger, detector.ExtractClientIP)
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	h := &handlers{Deps: deps}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(tracer.Middleware)
	r.Use(detector.Middleware)
	r.Use(headers.Middleware)

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", h.handleReady)

	r.Route("/api", func(r chi.Router) {
		r.Use(limiter.Middleware(detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
		}))

		r.Get("/totals", h.handleTotals)

		r.Route("/projects/{id}", func(r chi.Router) {
			r.Get("/amounts", h.handleProjectAmounts)
			r.Post("/sync", h.handleSync)
			r.Get("/ibans", h.handleListIBANs)
			r.Post("/ibans/refresh", h.handleRefreshIBANs)
			r.Put("/iban", h.handleSetProjectIBAN)
			r.Get("/payments", h.handleProjectPayments)
			r.Get("/payments.csv", h.handleExport)
			r.Get("/funders", h.handleListFunders)
		})

		r.Route("/subprojects/{id}", func(r chi.Router) {
			r.Get("/amounts", h.handleSubprojectAmounts)
			r.Put("/iban", h.handleSetSubprojectIBAN)
		})
	})

	return &Server{
		Server: http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			// Inline syncs page through the bank provider.
			WriteTimeout:   2 * time.Minute,
			IdleTimeout:    60 * time.Second,
			MaxHeaderBytes: 1 << 16,
		},
		limiter: limiter,
	}
}

// Shutdown stops the rate limiter and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}
