// Package insight turns a month's rule results into a report.
package insight

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/contas/internal/domain"
	"github.com/opensource-finance/contas/internal/summary"
)

// EngineVersion is stamped on every report.
const EngineVersion = "contas-1.0"

// Processor aggregates rule results and the month's tier into a report.
type Processor struct {
	// Raise an alert for a CRITICAL month even when every rule passes
	AlertOnCritical bool

	// Raise an alert for .review outcomes, not only .fail
	AlertOnReview bool
}

// NewProcessor creates a processor with default settings.
func NewProcessor() *Processor {
	return &Processor{
		AlertOnCritical: true,
		AlertOnReview:   false,
	}
}

// ReportInput contains all data needed for a report.
type ReportInput struct {
	TenantID    string
	TraceID     string
	Figure      domain.MonthlyFigure
	RuleResults []domain.RuleResult
	RulesMs     int64
	StartTime   time.Time
}

// Process builds the month report.
func (p *Processor) Process(ctx context.Context, input *ReportInput) *domain.MonthReport {
	start := input.StartTime
	if start.IsZero() {
		start = time.Now()
	}

	report := &domain.MonthReport{
		ID:          uuid.New().String(),
		TenantID:    input.TenantID,
		Figure:      input.Figure,
		Status:      summary.Classify(input.Figure.SurplusCents(), input.Figure.IncomeCents),
		RuleResults: input.RuleResults,
		Timestamp:   time.Now().UTC(),
	}
	if report.RuleResults == nil {
		report.RuleResults = []domain.RuleResult{}
	}

	agg := aggregate(input.RuleResults)
	report.Alert = agg.Failed > 0 ||
		(p.AlertOnCritical && report.Status == domain.StatusCritical) ||
		(p.AlertOnReview && agg.Review > 0)
	report.Reasons = GetReasons(report)

	report.Metadata = domain.ReportMetadata{
		TraceID:        input.TraceID,
		RulesMs:        input.RulesMs,
		TotalMs:        time.Since(start).Milliseconds(),
		RulesEvaluated: len(input.RuleResults),
		EngineVersion:  EngineVersion,
	}

	return report
}

// Tally counts rule outcomes.
type Tally struct {
	Passed int
	Review int
	Failed int
	Errors int
}

func aggregate(results []domain.RuleResult) Tally {
	var t Tally
	for _, r := range results {
		switch r.Outcome {
		case domain.RuleOutcomeFail:
			t.Failed++
		case domain.RuleOutcomeReview:
			t.Review++
		case domain.RuleOutcomeError:
			t.Errors++
		default:
			t.Passed++
		}
	}
	return t
}

// ShouldAlert returns true if the report should raise an alert.
func ShouldAlert(report *domain.MonthReport) bool {
	return report.Alert
}

// GetReasons extracts human-readable reasons from a report.
func GetReasons(report *domain.MonthReport) []string {
	var reasons []string
	if report.Status == domain.StatusCritical {
		reasons = append(reasons, "surplus below 5% of income")
	}
	for _, r := range report.RuleResults {
		if r.Outcome == domain.RuleOutcomeFail || r.Outcome == domain.RuleOutcomeReview {
			if r.Reason != "" {
				reasons = append(reasons, r.Reason)
			}
		}
	}
	return reasons
}
