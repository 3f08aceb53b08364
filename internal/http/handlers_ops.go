package http

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// handleHealth is a liveness probe: the process is up and serving.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

// handleReady checks that the store answers within a short deadline.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, code := "ready", http.StatusOK
	checks := map[string]string{"templates": "ok", "store": "ok"}
	if err := s.svc.Ping(ctx); err != nil {
		checks["store"] = "failed: " + err.Error()
		status, code = "not_ready", http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics writes counters in the Prometheus text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	traceMetrics := s.tracer.GetMetrics()
	limitMetrics := s.limiter.GetMetrics()
	securityMetrics := s.detector.GetMetrics()
	cacheStats := s.svc.CacheStats()

	metric := func(name, kind, help string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %v\n\n", name, help, name, kind, name, value)
	}

	metric("http_requests_total", "counter", "Total number of HTTP requests", traceMetrics.TotalRequests)
	metric("http_server_errors_total", "counter", "HTTP responses with a 5xx status", traceMetrics.ServerErrors)
	metric("http_response_time_avg_seconds", "gauge", "Average response time", fmt.Sprintf("%.6f", traceMetrics.AverageResponseTime.Seconds()))
	metric("transactions_recorded_total", "counter", "Transactions accepted through the API", s.recorded.Load())
	metric("summary_cache_hits_total", "counter", "Summary cache hits", cacheStats.Hits)
	metric("summary_cache_misses_total", "counter", "Summary cache misses", cacheStats.Misses)
	metric("summary_cache_entries", "gauge", "Current summary cache entries", cacheStats.Size)
	metric("rate_limit_hits_total", "counter", "Requests rejected by the rate limiter", limitMetrics.TotalHits)
	metric("active_rate_limit_clients", "gauge", "Currently tracked rate limit clients", limitMetrics.ClientCount)
	metric("suspicious_requests_total", "counter", "Total suspicious requests detected", securityMetrics.SuspiciousRequests)

	if s.retry != nil {
		stats := s.retry.Stats()
		metric("event_retry_pending", "gauge", "Events waiting to be republished", stats.Pending)
		metric("event_retry_published_total", "counter", "Events republished after a failure", stats.Published)
		metric("event_retry_dropped_total", "counter", "Events dropped after exhausting retries", stats.Dropped)
	}

	metric("uptime_seconds", "gauge", "Application uptime in seconds", fmt.Sprintf("%.0f", time.Since(s.started).Seconds()))
}
