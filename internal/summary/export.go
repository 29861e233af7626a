package summary

import (
	"fmt"
	"io"

	"github.com/opensource-finance/contas/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const (
	trendSheet  = "summary"
	monthsSheet = "months"
)

// ExportXLSX writes the summary as a workbook with a trend sheet and a
// month-over-month sheet. Amounts are written as currency units, not cents.
func ExportXLSX(s domain.MonthlySummary, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", trendSheet); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}
	if _, err := f.NewSheet(monthsSheet); err != nil {
		return fmt.Errorf("failed to add sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create style: %w", err)
	}

	trendRows := [][]any{
		{"Period", s.Trend.PeriodLabel},
		{"Average income", units(s.Trend.AverageIncomeCents)},
		{"Average expenses", units(s.Trend.AverageExpensesCents)},
		{"Average surplus", units(s.Trend.AverageSurplusCents)},
		{"Status", string(s.OverallStatus)},
	}
	for i, row := range trendRows {
		if err := setRow(f, trendSheet, i+1, row); err != nil {
			return err
		}
	}
	_ = f.SetCellStyle(trendSheet, "A1", fmt.Sprintf("A%d", len(trendRows)), bold)

	header := []any{"Month", "Income", "Expenses", "Surplus", "Status", "Income change %", "Expense change %"}
	if err := setRow(f, monthsSheet, 1, header); err != nil {
		return err
	}
	_ = f.SetCellStyle(monthsSheet, "A1", "G1", bold)

	for i, m := range s.Months {
		row := []any{
			m.Period,
			units(m.IncomeCents),
			units(m.ExpensesCents),
			units(m.SurplusCents),
			string(m.Status),
			pctCell(m.IncomeChangePct),
			pctCell(m.ExpenseChangePct),
		}
		if err := setRow(f, monthsSheet, i+2, row); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write row %d of %s: %w", row, sheet, err)
	}
	return nil
}

func units(cents int64) float64 {
	v, _ := decimal.New(cents, -2).Float64()
	return v
}

func pctCell(p *decimal.Decimal) any {
	if p == nil {
		return ""
	}
	v, _ := p.Float64()
	return v
}
