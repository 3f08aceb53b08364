package http

import (
	"bytes"
	"html/template"
	"net/http"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/log"
	appweb "fintrack/web"
)

type indexData struct {
	Summary      core.Summary
	Breakdown    core.Breakdown
	Transactions []core.Transaction
	Query        core.Query
	Categories   core.Taxonomy
	Today        string
}

var templateFuncs = template.FuncMap{
	"money": func(m core.Money) string { return m.Fixed() },
}

func parseTemplates() (*template.Template, error) {
	return template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.FromContext(ctx)

	q, err := parseQuery(r.URL.Query())
	if err == nil {
		err = q.Validate()
	}
	if err != nil {
		http.Error(w, errorMessage(err, core.ErrInvalidSort, core.ErrInvalidOrder), http.StatusBadRequest)
		return
	}

	data := indexData{Query: q, Today: time.Now().Format(core.DateLayout)}
	if data.Summary, err = s.svc.Summary(ctx); err == nil {
		if data.Breakdown, err = s.svc.Breakdown(ctx); err == nil {
			if data.Transactions, err = s.svc.List(ctx, q); err == nil {
				data.Categories, err = s.svc.Categories(ctx)
			}
		}
	}
	if err != nil {
		logger.LogError(ctx, "Index data load failed", err, log.OpRender,
			log.NewFields().WithErrorType(log.ErrorTypeInternal))
		http.Error(w, msgInternal, http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, "index.html", data); err != nil {
		logger.LogError(ctx, "Index template execution failed", err, log.OpRender,
			log.NewFields().WithErrorType(log.ErrorTypeInternal))
		http.Error(w, msgInternal, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}
