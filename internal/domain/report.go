package domain

import (
	"time"
)

// MonthReport is the insight produced for one month.
type MonthReport struct {
	ID          string          `json:"id"`
	TenantID    string          `json:"tenantId"`
	Figure      MonthlyFigure   `json:"figure"`
	Status      FinancialStatus `json:"status"`
	Alert       bool            `json:"alert"`
	RuleResults []RuleResult    `json:"ruleResults"`
	Reasons     []string        `json:"reasons,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`

	Metadata ReportMetadata `json:"metadata"`
}

// ReportMetadata contains processing information.
type ReportMetadata struct {
	TraceID        string `json:"traceId,omitempty"`
	RulesMs        int64  `json:"rulesMs"`
	TotalMs        int64  `json:"totalMs"`
	RulesEvaluated int    `json:"rulesEvaluated"`
	EngineVersion  string `json:"engineVersion"`
}
