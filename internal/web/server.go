// Package web serves the CRM assistant over HTTP: the question page, JSON
// endpoints for the core operations and the dashboard reports.
package web

import (
	"context"
	"database/sql"
	_ "embed"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JonMunkholm/CrmAssist/internal/assistant"
	"github.com/JonMunkholm/CrmAssist/internal/crmdb"
	"github.com/JonMunkholm/CrmAssist/internal/observability"
	"github.com/JonMunkholm/CrmAssist/internal/prompt"
	"github.com/JonMunkholm/CrmAssist/internal/query"
	"github.com/JonMunkholm/CrmAssist/internal/schema"
)

const (
	defaultLimit   = 200
	maxLimit       = 1000
	queryTimeout   = 8 * time.Second
	refreshTimeout = 30 * time.Second
	systemName     = "Support Solutions CRM"
)

// Dashboard is the reporting side of the store.
type Dashboard interface {
	Stats(ctx context.Context) (crmdb.Stats, error)
	Overview(ctx context.Context) (crmdb.Overview, error)
	CustomerCount(ctx context.Context) (int64, error)
	List(ctx context.Context, entity string) (crmdb.Listing, error)
}

// Deps are the collaborators of the HTTP layer. Schema and DB may be nil; the
// schema endpoints then answer 503.
type Deps struct {
	Assistant *assistant.Assistant
	Dashboard Dashboard
	Executor  query.Executor
	Schema    *schema.Cache
	DB        *sql.DB
	Examples  []prompt.Example
	Logger    *slog.Logger
}

type Server struct {
	assistant *assistant.Assistant
	dashboard Dashboard
	executor  query.Executor
	schema    *schema.Cache
	db        *sql.DB
	examples  []prompt.Example
	logger    *slog.Logger
	tmpl      *template.Template
}

func New(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		assistant: deps.Assistant,
		dashboard: deps.Dashboard,
		executor:  deps.Executor,
		schema:    deps.Schema,
		db:        deps.DB,
		examples:  deps.Examples,
		logger:    logger,
		tmpl:      template.Must(template.New("index").Parse(indexHTML)),
	}
}

// Routes builds the router with tracing, request logging and metrics applied.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(observability.TraceMiddleware)
	r.Use(observability.LoggingMiddleware(s.logger))
	r.Use(observability.MetricsMiddleware)

	r.Get("/", s.handleIndex)
	r.Post("/", s.handleAskForm)

	r.Route("/api", func(r chi.Router) {
		r.Post("/ask", s.handleAsk)
		r.Post("/translate", s.handleTranslate)
		r.Post("/query", s.handleQuery)
		r.Post("/export", s.handleExportCSV)
		r.Get("/status", s.handleStatus)
		r.Get("/crm/stats", s.handleStats)
		r.Get("/crm/dashboard", s.handleDashboard)
		r.Get("/crm/{entity}", s.handleEntity)
		r.Get("/schema", s.handleSchema)
		r.Post("/schema/refresh", s.handleSchemaRefresh)
	})

	r.Handle("/metrics", promhttp.Handler())
	return r
}

//go:embed templates/index.html
var indexHTML string
