package dashboard

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/2beens/repstats/internal/sessions"
	"github.com/2beens/repstats/internal/telemetry/tracing"
	"github.com/2beens/repstats/pkg"

	log "github.com/sirupsen/logrus"
)

//go:embed templates/index.html
var templatesFS embed.FS

type reportAnalyzer interface {
	Report(ctx context.Context, now time.Time) (*sessions.Report, error)
}

type Handler struct {
	analyzer reportAnalyzer
	tmpl     *template.Template
}

func NewHandler(analyzer reportAnalyzer) (*Handler, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/index.html")
	if err != nil {
		return nil, fmt.Errorf("parse dashboard template: %w", err)
	}
	return &Handler{
		analyzer: analyzer,
		tmpl:     tmpl,
	}, nil
}

func (handler *Handler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.dashboard.index")
	defer span.End()

	report, err := handler.analyzer.Report(ctx, time.Now().UTC())
	if err != nil {
		log.Errorf("failed to build dashboard report: %s", err)
		http.Error(w, "failed to build dashboard report", http.StatusInternalServerError)
		return
	}

	// render to a buffer first, a half-written page helps nobody
	var buf bytes.Buffer
	if err := handler.tmpl.Execute(&buf, report); err != nil {
		log.Errorf("failed to render dashboard: %s", err)
		http.Error(w, "failed to render dashboard", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.HTML, buf.Bytes(), http.StatusOK)
}

func (handler *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.dashboard.stats")
	defer span.End()

	report, err := handler.analyzer.Report(ctx, time.Now().UTC())
	if err != nil {
		log.Errorf("failed to build stats report: %s", err)
		http.Error(w, "failed to build stats report", http.StatusInternalServerError)
		return
	}

	reportJson, err := json.Marshal(report)
	if err != nil {
		log.Errorf("failed to marshal stats report: %s", err)
		http.Error(w, "failed to marshal stats report", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, reportJson, http.StatusOK)
}
