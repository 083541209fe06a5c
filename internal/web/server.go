// Package web serves the mart HTTP API: run triggering, run status and
// report reads for the BionicPRO frontend.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pvmasny/yandex-arch-pro-09/internal/journal"
	"github.com/pvmasny/yandex-arch-pro-09/internal/olap"
	"github.com/pvmasny/yandex-arch-pro-09/internal/pipeline"
	mw "github.com/pvmasny/yandex-arch-pro-09/internal/web/middleware"
)

// RunTrigger starts a run unless one is already active.
// Satisfied by *pipeline.Runner.
type RunTrigger interface {
	RunExclusive(ctx context.Context, runDate time.Time) (pipeline.Report, error)
}

// RunHistory reads the run journal. Satisfied by *journal.Journal.
type RunHistory interface {
	Last(ctx context.Context, runDate time.Time) (journal.Run, error)
}

// ReportReader reads stored mart rows. Satisfied by *olap.Reader.
type ReportReader interface {
	Reports(ctx context.Context, f olap.ReportFilter) ([]olap.Report, error)
	Summary(ctx context.Context, userID string) (olap.Summary, error)
}

// ReportCache stores report exports. Satisfied by *reportstore.Cache.
type ReportCache interface {
	Lookup(ctx context.Context, key string) (url string, found bool, err error)
	Save(ctx context.Context, key string, body []byte, contentType string) (url string, err error)
	Expiry() time.Duration
}

// Options tunes the HTTP server.
type Options struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
	// RateLimit is requests per minute per client IP on report reads; 0 disables.
	RateLimit int
	// ReportCache enables GET /api/reports/{userID}/export when set.
	ReportCache ReportCache
}

// Server is the HTTP server of the mart service.
type Server struct {
	runs    RunTrigger
	history RunHistory // nil when the journal is disabled
	reports ReportReader
	opts    Options
	now     func() time.Time

	router  *chi.Mux
	limiter *rateLimiter
	server  *http.Server
}

// NewServer creates a Server. history may be nil.
func NewServer(runs RunTrigger, history RunHistory, reports ReportReader, opts Options) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	s := &Server{
		runs:    runs,
		history: history,
		reports: reports,
		opts:    opts,
		now:     time.Now,
		router:  chi.NewRouter(),
	}
	if opts.RateLimit > 0 {
		s.limiter = newRateLimiter(opts.RateLimit, time.Minute)
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(s.opts.RequestTimeout))
	s.router.Use(apiHeaders)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		// Runs
		r.Post("/runs", s.handleTriggerRun)
		r.Get("/runs/last", s.handleLastRun)

		// Report reads
		r.Group(func(r chi.Router) {
			if s.limiter != nil {
				r.Use(s.limiter.middleware)
			}
			r.Get("/reports/{userID}", s.handleReports)
			r.Get("/reports/{userID}/summary", s.handleSummary)
			if s.opts.ReportCache != nil {
				r.Get("/reports/{userID}/export", s.handleReportExport)
			}
		})
	})
}

// Start begins listening for HTTP requests. It returns http.ErrServerClosed
// after Shutdown.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  s.opts.IdleTimeout,
	}

	slog.Info("starting server", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.limiter != nil {
		s.limiter.stop()
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// apiHeaders adds the response headers every API answer carries.
func apiHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
