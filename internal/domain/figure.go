package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// MonthlyFigure is the balance of one calendar month in minor currency units.
type MonthlyFigure struct {
	Year          int   `json:"year"`
	Month         int   `json:"month"`
	IncomeCents   int64 `json:"incomeCents"`
	ExpensesCents int64 `json:"expensesCents"`
}

// SurplusCents returns income minus expenses. It may be negative.
func (f MonthlyFigure) SurplusCents() int64 {
	return f.IncomeCents - f.ExpensesCents
}

// Period returns the month as "YYYY-MM".
func (f MonthlyFigure) Period() string {
	return fmt.Sprintf("%04d-%02d", f.Year, f.Month)
}

// Before reports whether f is chronologically earlier than other.
func (f MonthlyFigure) Before(other MonthlyFigure) bool {
	if f.Year != other.Year {
		return f.Year < other.Year
	}
	return f.Month < other.Month
}

// Validate checks the figure shape accepted from the balance query.
func (f MonthlyFigure) Validate() error {
	if f.Month < 1 || f.Month > 12 {
		return fmt.Errorf("month must be between 1 and 12, got %d", f.Month)
	}
	if f.Year < 1 {
		return fmt.Errorf("year must be positive, got %d", f.Year)
	}
	if f.IncomeCents < 0 || f.ExpensesCents < 0 {
		return fmt.Errorf("income and expenses must not be negative")
	}
	return nil
}

// FinancialStatus is the health tier of a month's surplus-to-income ratio.
type FinancialStatus string

const (
	StatusExcellent FinancialStatus = "EXCELLENT"
	StatusGood      FinancialStatus = "GOOD"
	StatusWarning   FinancialStatus = "WARNING"
	StatusCritical  FinancialStatus = "CRITICAL"
)

// TrendSummary holds the simple means of a list of months.
type TrendSummary struct {
	AverageIncomeCents   int64  `json:"averageIncomeCents"`
	AverageExpensesCents int64  `json:"averageExpensesCents"`
	AverageSurplusCents  int64  `json:"averageSurplusCents"`
	PeriodLabel          string `json:"periodLabel"`
}

// MonthComparison is one row of the month-over-month table.
type MonthComparison struct {
	Period        string          `json:"period"`
	IncomeCents   int64           `json:"incomeCents"`
	ExpensesCents int64           `json:"expensesCents"`
	SurplusCents  int64           `json:"surplusCents"`
	Status        FinancialStatus `json:"status"`

	// Percentage change versus the previous row; nil when there is no usable base.
	IncomeChangePct  *decimal.Decimal `json:"incomeChangePct,omitempty"`
	ExpenseChangePct *decimal.Decimal `json:"expenseChangePct,omitempty"`
}

// MonthlySummary is the dashboard view over a list of months.
type MonthlySummary struct {
	Trend         TrendSummary      `json:"trend"`
	OverallStatus FinancialStatus   `json:"overallStatus"`
	Months        []MonthComparison `json:"months"`
	GeneratedAt   time.Time         `json:"generatedAt"`
}
