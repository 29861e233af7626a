// Package summary computes the monthly dashboard figures: the health tier of a
// month, the average of a list of months and the month-over-month table.
package summary

import (
	"fmt"
	"sort"
	"time"

	"github.com/opensource-finance/contas/internal/domain"
	"github.com/shopspring/decimal"
)

// NoDataLabel is the period label of an empty average.
const NoDataLabel = "no data available"

// Status thresholds on surplus/income, inclusive at the lower bound.
var (
	excellentRatio = decimal.RequireFromString("0.20")
	goodRatio      = decimal.RequireFromString("0.10")
	warningRatio   = decimal.RequireFromString("0.05")

	hundred = decimal.NewFromInt(100)
)

// Classify returns the health tier of a month. A month without income is CRITICAL.
func Classify(surplusCents, incomeCents int64) domain.FinancialStatus {
	if incomeCents <= 0 {
		return domain.StatusCritical
	}

	// surplus/income >= threshold  <=>  surplus >= threshold*income, with income > 0.
	surplus := decimal.NewFromInt(surplusCents)
	income := decimal.NewFromInt(incomeCents)

	switch {
	case surplus.GreaterThanOrEqual(excellentRatio.Mul(income)):
		return domain.StatusExcellent
	case surplus.GreaterThanOrEqual(goodRatio.Mul(income)):
		return domain.StatusGood
	case surplus.GreaterThanOrEqual(warningRatio.Mul(income)):
		return domain.StatusWarning
	default:
		return domain.StatusCritical
	}
}

// Ratio returns surplus/income, or zero when there is no income.
func Ratio(surplusCents, incomeCents int64) decimal.Decimal {
	if incomeCents == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(surplusCents).Div(decimal.NewFromInt(incomeCents))
}

// Average returns the simple mean of income, expenses and surplus over figures.
// Means are rounded to the nearest cent, halves away from zero.
func Average(figures []domain.MonthlyFigure) domain.TrendSummary {
	if len(figures) == 0 {
		return domain.TrendSummary{PeriodLabel: NoDataLabel}
	}

	var income, expenses, surplus decimal.Decimal
	for _, f := range figures {
		income = income.Add(decimal.NewFromInt(f.IncomeCents))
		expenses = expenses.Add(decimal.NewFromInt(f.ExpensesCents))
		surplus = surplus.Add(decimal.NewFromInt(f.SurplusCents()))
	}

	n := decimal.NewFromInt(int64(len(figures)))
	return domain.TrendSummary{
		AverageIncomeCents:   income.Div(n).Round(0).IntPart(),
		AverageExpensesCents: expenses.Div(n).Round(0).IntPart(),
		AverageSurplusCents:  surplus.Div(n).Round(0).IntPart(),
		PeriodLabel:          periodLabel(len(figures)),
	}
}

func periodLabel(n int) string {
	if n == 1 {
		return "last 1 month"
	}
	return fmt.Sprintf("last %d months", n)
}

// Sorted returns a chronologically ordered copy of figures.
func Sorted(figures []domain.MonthlyFigure) []domain.MonthlyFigure {
	out := make([]domain.MonthlyFigure, len(figures))
	copy(out, figures)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Before(out[j])
	})
	return out
}

// Compare builds the month-over-month table in chronological order.
func Compare(figures []domain.MonthlyFigure) []domain.MonthComparison {
	sorted := Sorted(figures)
	rows := make([]domain.MonthComparison, len(sorted))

	for i, f := range sorted {
		rows[i] = domain.MonthComparison{
			Period:        f.Period(),
			IncomeCents:   f.IncomeCents,
			ExpensesCents: f.ExpensesCents,
			SurplusCents:  f.SurplusCents(),
			Status:        Classify(f.SurplusCents(), f.IncomeCents),
		}
		if i > 0 {
			prev := sorted[i-1]
			rows[i].IncomeChangePct = changePct(prev.IncomeCents, f.IncomeCents)
			rows[i].ExpenseChangePct = changePct(prev.ExpensesCents, f.ExpensesCents)
		}
	}
	return rows
}

// changePct returns the percentage change from prev to cur with two decimals.
func changePct(prev, cur int64) *decimal.Decimal {
	if prev == 0 {
		return nil
	}
	base := decimal.NewFromInt(prev)
	pct := decimal.NewFromInt(cur).Sub(base).Div(base).Mul(hundred).Round(2)
	return &pct
}

// Summarize builds the dashboard summary of figures.
func Summarize(figures []domain.MonthlyFigure) domain.MonthlySummary {
	trend := Average(figures)
	status := domain.StatusCritical
	if len(figures) > 0 {
		status = Classify(trend.AverageSurplusCents, trend.AverageIncomeCents)
	}

	return domain.MonthlySummary{
		Trend:         trend,
		OverallStatus: status,
		Months:        Compare(figures),
		GeneratedAt:   time.Now().UTC(),
	}
}

// FormatCents renders minor units as a fixed two-decimal amount, e.g. "1234.56".
func FormatCents(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}
