package bills

import (
	"fmt"
	"time"

	"github.com/opensource-finance/contas/internal/domain"
)

// ToBill converts a valid draft into the account payload. Invalid drafts return
// their domain.ValidationErrors as the error.
func ToBill(d domain.BillDraft) (*domain.Bill, error) {
	if errs := Validate(d); len(errs) > 0 {
		return nil, errs
	}

	p := PolicyFor(d.Type)
	bill := &domain.Bill{
		ID:        d.ID,
		Name:      d.Name,
		Type:      d.Type,
		IsPreview: d.IsPreview && p.PreviewAllowed,
		StartDate: d.StartDate,
		DueDay:    d.DueDay,
	}

	switch {
	case p.UsesCreditLimit:
		bill.CreditLimitCents = d.CreditLimitCents
		bill.ClosingDate = d.ClosingDate
		bill.InstallmentCount = 1
	case perInstallmentActive(d):
		total, ok := installmentTotal(d.PerInstallmentAmountCents, d.InstallmentCount)
		if !ok {
			return nil, domain.ValidationErrors{*totalOverflow(d.InstallmentCount)}
		}
		bill.HasInstallments = true
		bill.InstallmentCount = d.InstallmentCount
		bill.PerInstallmentAmountCents = d.PerInstallmentAmountCents
		bill.TotalAmountCents = total
	default:
		bill.HasInstallments = d.HasInstallments
		bill.InstallmentCount = max(d.InstallmentCount, 1)
		bill.TotalAmountCents = d.TotalAmountCents
	}

	return bill, nil
}

// FromBill rebuilds the edit draft of a stored bill.
func FromBill(b *domain.Bill) domain.BillDraft {
	return domain.BillDraft{
		ID:                        b.ID,
		Name:                      b.Name,
		Type:                      b.Type,
		IsPreview:                 b.IsPreview,
		HasInstallments:           b.HasInstallments,
		InstallmentCount:          max(b.InstallmentCount, 1),
		PerInstallmentAmountCents: b.PerInstallmentAmountCents,
		TotalAmountCents:          b.TotalAmountCents,
		StartDate:                 b.StartDate,
		DueDay:                    b.DueDay,
		CreditLimitCents:          b.CreditLimitCents,
		ClosingDate:               b.ClosingDate,
	}
}

// InstallmentSchedule lists the due dates of a bill. The first installment is
// due on the first due day on or after the start date; a due day past the end
// of a month falls on that month's last day. Without a per-installment amount
// the total is split evenly and the last installment absorbs the remainder.
// Credit cards have no schedule, and counts above MaxInstallments are rejected.
func InstallmentSchedule(b *domain.Bill) ([]domain.InstallmentDue, error) {
	if PolicyFor(b.Type).UsesCreditLimit {
		return []domain.InstallmentDue{}, nil
	}

	start, err := time.Parse(DateLayout, b.StartDate)
	if err != nil {
		return nil, fmt.Errorf("invalid start date %q: %w", b.StartDate, err)
	}
	if !validDay(b.DueDay) {
		return nil, fmt.Errorf("invalid due day %d", b.DueDay)
	}

	count := 1
	if b.HasInstallments {
		count = max(b.InstallmentCount, 1)
	}
	if count > MaxInstallments {
		return nil, fmt.Errorf("installment count %d exceeds %d", count, MaxInstallments)
	}

	amounts := splitAmount(b, count)

	first := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
	if dueIn(first, b.DueDay).Before(start) {
		first = first.AddDate(0, 1, 0)
	}

	schedule := make([]domain.InstallmentDue, count)
	for i := 0; i < count; i++ {
		month := first.AddDate(0, i, 0)
		schedule[i] = domain.InstallmentDue{
			Number:      i + 1,
			DueDate:     dueIn(month, b.DueDay).Format(DateLayout),
			AmountCents: amounts[i],
		}
	}
	return schedule, nil
}

func splitAmount(b *domain.Bill, count int) []int64 {
	amounts := make([]int64, count)
	if b.PerInstallmentAmountCents > 0 {
		for i := range amounts {
			amounts[i] = b.PerInstallmentAmountCents
		}
		return amounts
	}

	share := b.TotalAmountCents / int64(count)
	for i := range amounts {
		amounts[i] = share
	}
	amounts[count-1] += b.TotalAmountCents - share*int64(count)
	return amounts
}

// dueIn returns the due date inside the month starting at monthStart.
func dueIn(monthStart time.Time, dueDay int) time.Time {
	last := monthStart.AddDate(0, 1, -1).Day()
	return monthStart.AddDate(0, 0, min(dueDay, last)-1)
}
