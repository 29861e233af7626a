// Package worker keeps dashboard summaries fresh: it recomputes a tenant's
// summary when bills or figures change and refreshes every tenant on a schedule.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/contas/internal/domain"
	"github.com/opensource-finance/contas/internal/insight"
	"github.com/opensource-finance/contas/internal/metrics"
	"github.com/opensource-finance/contas/internal/rules"
	"github.com/opensource-finance/contas/internal/summary"
	"github.com/robfig/cron/v3"
)

// Worker consumes change events from the EventBus.
type Worker struct {
	bus       domain.EventBus
	repo      domain.Repository
	cache     domain.Cache
	engine    *rules.Engine
	processor *insight.Processor
	metrics   *metrics.Metrics

	cfg       Config
	scheduler *cron.Cron
	refreshMu sync.Mutex
	running   bool

	mu            sync.Mutex
	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// SummaryMonths is the window the worker keeps warm.
	SummaryMonths int

	// SummaryTTL is the cache lifetime of a refreshed summary.
	SummaryTTL time.Duration

	// RefreshSchedule is a cron expression; empty disables the periodic refresh.
	RefreshSchedule string
}

// Deps groups the collaborators of a Worker.
type Deps struct {
	Bus       domain.EventBus
	Repo      domain.Repository
	Cache     domain.Cache
	Engine    *rules.Engine
	Processor *insight.Processor
	Metrics   *metrics.Metrics
}

// NewWorker creates a new worker. Engine and Processor may be nil, which
// disables month reports and alerts.
func NewWorker(deps Deps, cfg Config) *Worker {
	if cfg.SummaryMonths <= 0 {
		cfg.SummaryMonths = 6
	}
	if cfg.SummaryTTL <= 0 {
		cfg.SummaryTTL = 10 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:       deps.Bus,
		repo:      deps.Repo,
		cache:     deps.Cache,
		engine:    deps.Engine,
		processor: deps.Processor,
		metrics:   deps.Metrics,
		cfg:       cfg,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Topics returns the topics the worker consumes.
func Topics() []string {
	return []string{
		domain.TopicFigureRecorded,
		domain.TopicBillSaved,
		domain.TopicBillDeleted,
	}
}

// Start subscribes to change events of every tenant and starts the schedule.
func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("worker already started")
	}

	for _, topic := range Topics() {
		sub, err := w.bus.Subscribe(w.ctx, domain.AllTenants, topic, w.handleMessage)
		if err != nil {
			w.unsubscribeAll()
			return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
		}
		w.subscriptions = append(w.subscriptions, sub)
	}

	if w.cfg.RefreshSchedule != "" {
		w.scheduler = cron.New()
		_, err := w.scheduler.AddFunc(w.cfg.RefreshSchedule, func() {
			if err := w.RefreshAll(w.ctx); err != nil {
				slog.Error("scheduled refresh failed", "error", err)
			}
		})
		if err != nil {
			w.unsubscribeAll()
			return fmt.Errorf("invalid refresh schedule %q: %w", w.cfg.RefreshSchedule, err)
		}
		w.scheduler.Start()
	}

	w.running = true
	slog.Info("worker started",
		"topics", Topics(),
		"schedule", w.cfg.RefreshSchedule,
		"summary_months", w.cfg.SummaryMonths,
	)
	return nil
}

// handleMessage handles a bill or figure change of any tenant.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	var event domain.ChangeEvent
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &event); err != nil {
			slog.Error("failed to parse change event",
				"message_id", msg.ID,
				"topic", msg.Topic,
				"error", err,
			)
			return err
		}
	}

	tenantID := msg.TenantID
	if tenantID == "" {
		tenantID = event.TenantID
	}
	traceID := event.TraceID
	if traceID == "" {
		traceID = msg.ID
	}

	slog.Debug("processing change event",
		"topic", msg.Topic,
		"tenant_id", tenantID,
		"trace_id", traceID,
	)

	if _, err := w.refresh(ctx, tenantID, metrics.TriggerEvent); err != nil {
		return err
	}

	if msg.Topic == domain.TopicFigureRecorded && event.Figure != nil {
		w.ReportMonth(ctx, tenantID, traceID, *event.Figure)
	}
	return nil
}

// Refresh recomputes and caches the tenant's summary over the configured
// window, then publishes it on TopicSummaryUpdated.
func (w *Worker) Refresh(ctx context.Context, tenantID string) (*domain.MonthlySummary, error) {
	return w.refresh(ctx, tenantID, metrics.TriggerRequest)
}

func (w *Worker) refresh(ctx context.Context, tenantID, trigger string) (*domain.MonthlySummary, error) {
	s, err := w.recompute(ctx, tenantID)
	w.metrics.SummaryRefreshed(trigger, err)
	if err != nil {
		slog.Error("summary refresh failed",
			"tenant_id", tenantID,
			"trigger", trigger,
			"error", err,
		)
		return nil, err
	}

	payload, _ := json.Marshal(s)
	if err := w.bus.Publish(ctx, tenantID, domain.TopicSummaryUpdated, payload); err != nil {
		slog.Error("failed to publish summary",
			"tenant_id", tenantID,
			"error", err,
		)
	}

	slog.Info("summary refreshed",
		"tenant_id", tenantID,
		"trigger", trigger,
		"status", s.OverallStatus,
		"months", len(s.Months),
	)
	return s, nil
}

func (w *Worker) recompute(ctx context.Context, tenantID string) (*domain.MonthlySummary, error) {
	if w.cache != nil {
		if err := w.cache.InvalidateSummaries(ctx, tenantID); err != nil {
			slog.Warn("failed to invalidate summaries", "tenant_id", tenantID, "error", err)
		}
	}

	figures, err := w.repo.ListFigures(ctx, tenantID, w.cfg.SummaryMonths)
	if err != nil {
		return nil, fmt.Errorf("failed to list figures: %w", err)
	}

	s := summary.Summarize(figures)
	if w.cache != nil {
		if err := w.cache.SetSummary(ctx, tenantID, w.cfg.SummaryMonths, &s, w.cfg.SummaryTTL); err != nil {
			slog.Warn("failed to cache summary", "tenant_id", tenantID, "error", err)
		}
	}
	return &s, nil
}

// RefreshAll refreshes every tenant known to the repository. Runs of the
// schedule never overlap; a run that finds one in progress is skipped.
func (w *Worker) RefreshAll(ctx context.Context) error {
	if !w.refreshMu.TryLock() {
		slog.Warn("refresh already running, skipped")
		return nil
	}
	defer w.refreshMu.Unlock()

	tenants, err := w.repo.ListTenants(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tenants: %w", err)
	}

	var failed int
	for _, tenantID := range tenants {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := w.refresh(ctx, tenantID, metrics.TriggerCron); err != nil {
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d tenant refreshes failed", failed, len(tenants))
	}
	return nil
}

// ReportMonth evaluates the tenant's insight rules for one month and
// publishes the report on TopicAlert when it raises an alert.
func (w *Worker) ReportMonth(ctx context.Context, tenantID, traceID string, figure domain.MonthlyFigure) *domain.MonthReport {
	if w.engine == nil || w.processor == nil {
		return nil
	}

	start := time.Now()
	results, err := w.engine.EvaluateAll(ctx, tenantID, figure)
	if err != nil {
		slog.Error("rule evaluation failed",
			"tenant_id", tenantID,
			"period", figure.Period(),
			"error", err,
		)
	}
	rulesMs := time.Since(start).Milliseconds()

	for _, r := range results {
		w.metrics.RuleOutcome(r.Outcome)
	}

	report := w.processor.Process(ctx, &insight.ReportInput{
		TenantID:    tenantID,
		TraceID:     traceID,
		Figure:      figure,
		RuleResults: results,
		RulesMs:     rulesMs,
		StartTime:   start,
	})

	if insight.ShouldAlert(report) {
		w.metrics.AlertRaised()
		payload, _ := json.Marshal(report)
		if err := w.bus.Publish(ctx, tenantID, domain.TopicAlert, payload); err != nil {
			slog.Error("failed to publish alert",
				"tenant_id", tenantID,
				"period", figure.Period(),
				"error", err,
			)
		}
	}

	slog.Info("month reported",
		"tenant_id", tenantID,
		"period", figure.Period(),
		"status", report.Status,
		"alert", report.Alert,
		"rules", len(results),
	)
	return report
}

// Stop gracefully stops the schedule and all subscriptions.
func (w *Worker) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.cancel()

	if w.scheduler != nil {
		<-w.scheduler.Stop().Done()
		w.scheduler = nil
	}
	w.unsubscribeAll()
	w.running = false

	slog.Info("worker stopped")
	return nil
}

func (w *Worker) unsubscribeAll() {
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil
}

// Stats returns worker statistics.
type Stats struct {
	Running           bool     `json:"running"`
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	Schedule          string   `json:"schedule,omitempty"`
	NextRefresh       string   `json:"nextRefresh,omitempty"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}

	stats := Stats{
		Running:           w.running,
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
		Schedule:          w.cfg.RefreshSchedule,
	}
	if w.scheduler != nil {
		if entries := w.scheduler.Entries(); len(entries) > 0 {
			stats.NextRefresh = entries[0].Next.UTC().Format(time.RFC3339)
		}
	}
	return stats
}
