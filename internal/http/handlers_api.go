package http

import (
	"context"
	"net/http"
	"strings"

	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/log"
)

// TransactionService is what the handlers need from the service layer.
type TransactionService interface {
	Record(ctx context.Context, t core.Transaction) (string, error)
	List(ctx context.Context, q core.Query) ([]core.Transaction, error)
	Summary(ctx context.Context) (core.Summary, error)
	Breakdown(ctx context.Context) (core.Breakdown, error)
	Trend(ctx context.Context) ([]core.TrendPoint, error)
	Categories(ctx context.Context) (core.Taxonomy, error)
	Ping(ctx context.Context) error
	CacheStats() cache.Stats
}

const msgTransactionAdded = "Transaction added"

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	t, err := parseTransaction(w, r)
	if err != nil {
		logRejected(r, err)
		writeRequestError(w, r, log.OpParse, err)
		return
	}

	if _, err := s.svc.Record(r.Context(), t); err != nil {
		writeRequestError(w, r, log.OpCreate, err)
		return
	}
	s.recorded.Add(1)

	if isFormRequest(r) && acceptsHTML(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusCreated, messageResponse{Message: msgTransactionAdded})
}

func logRejected(r *http.Request, err error) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rejected request body",
		log.NewFields().
			WithError(err).
			WithErrorType(log.ErrorTypeValidation).
			WithOperation(log.OpParse).
			ToSlice()...)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r.URL.Query())
	if err != nil {
		writeRequestError(w, r, log.OpList, err)
		return
	}
	ts, err := s.svc.List(r.Context(), q)
	if err != nil {
		writeRequestError(w, r, log.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, ts)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.svc.Summary(r.Context())
	if err != nil {
		writeRequestError(w, r, log.OpSummary, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleBreakdown(w http.ResponseWriter, r *http.Request) {
	b, err := s.svc.Breakdown(r.Context())
	if err != nil {
		writeRequestError(w, r, log.OpSummary, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleTrend(w http.ResponseWriter, r *http.Request) {
	points, err := s.svc.Trend(r.Context())
	if err != nil {
		writeRequestError(w, r, log.OpSummary, err)
		return
	}
	writeJSON(w, http.StatusOK, points)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	tax, err := s.svc.Categories(r.Context())
	if err != nil {
		writeRequestError(w, r, log.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, tax)
}

func acceptsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
