package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opensource-finance/contas/internal/domain"
	"github.com/opensource-finance/contas/internal/insight"
	"github.com/opensource-finance/contas/internal/metrics"
	"github.com/opensource-finance/contas/internal/rules"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// Deps groups the collaborators of the API.
type Deps struct {
	Repo      domain.Repository
	Cache     domain.Cache
	Bus       domain.EventBus
	Engine    *rules.Engine
	Processor *insight.Processor
	Metrics   *metrics.Metrics

	Version string

	// SummaryMonths is the default window of GET /summary.
	SummaryMonths int

	// SummaryTTL is the cache lifetime of summaries computed on a miss.
	SummaryTTL time.Duration
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, deps Deps) *Server {
	handler := NewHandler(deps)
	router := chi.NewRouter()

	router.Use(CORSMiddleware)
	router.Use(RecoverMiddleware)
	router.Use(TracingMiddleware)
	router.Use(MetricsMiddleware(deps.Metrics))
	router.Use(LoggingMiddleware)
	router.Use(middleware.RealIP)
	router.Use(middleware.Compress(5))

	// No tenant required
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	router.Handle("/metrics", deps.Metrics.Handler())
	router.Get("/account-types", handler.ListAccountTypes)

	router.Group(func(r chi.Router) {
		r.Use(TenantMiddleware)

		// Account form
		r.Post("/drafts", handler.NewDraft)
		r.Post("/drafts/apply", handler.ApplyDraft)
		r.Post("/drafts/validate", handler.ValidateDraft)

		// Bills
		r.Get("/bills", handler.ListBills)
		r.Post("/bills", handler.CreateBill)
		r.Get("/bills/{id}", handler.GetBill)
		r.Put("/bills/{id}", handler.UpdateBill)
		r.Delete("/bills/{id}", handler.DeleteBill)
		r.Get("/bills/{id}/draft", handler.GetBillDraft)
		r.Get("/bills/{id}/schedule", handler.GetBillSchedule)

		// Monthly figures and dashboard
		r.Get("/figures", handler.ListFigures)
		r.Put("/figures/{year}/{month}", handler.PutFigure)
		r.Get("/summary", handler.GetSummary)
		r.Get("/summary/export.xlsx", handler.ExportSummary)
		r.Get("/summary/{year}/{month}/report", handler.GetMonthReport)

		// Insight rules
		r.Get("/insight-rules", handler.ListInsightRules)
		r.Post("/insight-rules", handler.CreateInsightRule)
		r.Post("/insight-rules/reload", handler.ReloadInsightRules)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
