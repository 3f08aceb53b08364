package http

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"fintrack/internal/log"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/middleware/security"
	"fintrack/internal/middleware/trace"
	"fintrack/internal/services"
	appweb "fintrack/web"
)

const (
	apiTimeout      = 5 * time.Second
	staticMaxAge    = 3600
	maxHeaderBytes  = 64 << 10
	msgRateLimited  = "rate limit exceeded, try again later"
	msgNotFound     = "not found"
	allowCollection = "GET, HEAD, POST"
	allowReadOnly   = "GET, HEAD"
)

// RetryStatsSource reports the state of the event retry queue.
type RetryStatsSource interface {
	Stats() services.RetryStats
}

// Options configures NewServer. Zero values fall back to defaults.
type Options struct {
	Addr            string
	Logger          *log.Logger
	RateLimitPerMin int
	// Retry is optional; when set its counters appear on /metrics.
	Retry RetryStatsSource
}

// Server is the HTTP front end: the JSON API, the index page and the
// operational endpoints.
type Server struct {
	http.Server

	svc       TransactionService
	templates *template.Template
	logger    *log.Logger
	retry     RetryStatsSource

	tracer   *trace.Middleware
	limiter  *ratelimit.Limiter
	detector *security.Detector

	started      time.Time
	recorded     atomic.Int64
	shutdownOnce sync.Once
}

// NewServer wires routes and middleware around svc.
func NewServer(svc TransactionService, opts Options) (*Server, error) {
	if svc == nil {
		return nil, errors.New("transaction service is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}

	templates, err := parseTemplates()
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	limitCfg := ratelimit.DefaultConfig()
	if opts.RateLimitPerMin > 0 {
		limitCfg.RequestsPerMinute = opts.RateLimitPerMin
	}

	detector := security.NewDetector(logger)
	s := &Server{
		svc:       svc,
		templates: templates,
		logger:    logger.WithComponent(log.ComponentHTTP),
		retry:     opts.Retry,
		tracer:    trace.NewMiddleware(detector.ExtractClientIP, logger),
		limiter:   ratelimit.NewLimiter(limitCfg),
		detector:  detector,
		started:   time.Now(),
	}

	mux, err := s.routes()
	if err != nil {
		s.limiter.Stop()
		return nil, err
	}

	var handler http.Handler = mux
	handler = log.Middleware(s.logger, trace.GetRequestID)(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = detector.Middleware(handler)
	handler = s.tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:           opts.Addr,
		Handler:        handler,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: maxHeaderBytes,
	}
	return s, nil
}

func (s *Server) routes() (*http.ServeMux, error) {
	mux := http.NewServeMux()

	static, err := fs.Sub(appweb.StaticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("mount static assets: %w", err)
	}
	mux.Handle("GET /static/", security.StaticAssetMiddleware(staticMaxAge)(
		http.StripPrefix("/static/", http.FileServer(http.FS(static)))))

	mux.HandleFunc("GET /{$}", s.handleIndex)

	limited := s.limiter.Middleware(s.detector.ExtractClientIP, s.rejectRateLimited)
	mux.Handle("GET /api/transactions", api(http.HandlerFunc(s.handleListTransactions)))
	mux.Handle("POST /api/transactions", limited(api(http.HandlerFunc(s.handleCreateTransaction))))
	mux.Handle("/api/transactions", methodNotAllowed(allowCollection))

	readOnly := map[string]http.HandlerFunc{
		"/api/summary":            s.handleSummary,
		"/api/summary/categories": s.handleBreakdown,
		"/api/summary/trend":      s.handleTrend,
		"/api/categories":         s.handleCategories,
	}
	for path, h := range readOnly {
		mux.Handle("GET "+path, api(h))
		mux.Handle(path, methodNotAllowed(allowReadOnly))
	}
	mux.Handle("/api/", security.NoStore(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, msgNotFound)
	})))

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /readyz", security.NoStore(http.HandlerFunc(s.handleReady)))
	mux.Handle("GET /metrics", security.NoStore(http.HandlerFunc(s.handleMetrics)))
	return mux, nil
}

// api marks responses uncacheable and bounds the time handlers may spend on
// the store.
func api(next http.Handler) http.Handler {
	return security.NoStore(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), apiTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	}))
}

func (s *Server) rejectRateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	writeError(w, http.StatusTooManyRequests, msgRateLimited)
}

// Shutdown stops background goroutines and drains the HTTP server. Only the
// first call has any effect.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}
