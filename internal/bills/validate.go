package bills

import (
	"fmt"
	"strings"
	"time"

	"github.com/opensource-finance/contas/internal/domain"
)

// DateLayout is the wire format of StartDate.
const DateLayout = "2006-01-02"

// Validate reports every violated field rule of d at once. A nil result means
// the draft can be submitted.
func Validate(d domain.BillDraft) domain.ValidationErrors {
	var errs domain.ValidationErrors
	add := func(field, reason string) {
		errs = append(errs, domain.ValidationError{Field: field, Reason: reason})
	}

	if strings.TrimSpace(d.Name) == "" {
		add(domain.FieldName, "is required")
	}
	if !d.Type.Valid() {
		add(domain.FieldType, "is not a known account type")
	}

	p := PolicyFor(d.Type)
	perPath := perInstallmentActive(d)

	// The per-installment path validates its own amount instead of the total.
	if !p.UsesCreditLimit && !perPath && d.TotalAmountCents <= 0 {
		add(domain.FieldTotalAmount, "must be greater than zero")
	}
	if perPath && d.PerInstallmentAmountCents <= 0 {
		add(domain.FieldInstallmentAmt, "must be greater than zero")
	}
	if perPath && d.PerInstallmentAmountCents > 0 && d.InstallmentCount >= 1 {
		if _, ok := installmentTotal(d.PerInstallmentAmountCents, d.InstallmentCount); !ok {
			errs = append(errs, *totalOverflow(d.InstallmentCount))
		}
	}

	if p.UsesCreditLimit {
		if d.CreditLimitCents <= 0 {
			add(domain.FieldCreditLimit, "must be greater than zero")
		}
		if !validDay(d.ClosingDate) {
			add(domain.FieldClosingDate, "must be between 1 and 31")
		}
	}

	fixedCommitted := d.Type == domain.AccountFixed && !d.IsPreview
	if (fixedCommitted || d.HasInstallments) && d.InstallmentCount < 1 {
		add(domain.FieldInstallmentCount, "must be at least 1")
	}
	if d.InstallmentCount > MaxInstallments {
		add(domain.FieldInstallmentCount, fmt.Sprintf("must be at most %d", MaxInstallments))
	}

	if strings.TrimSpace(d.StartDate) == "" {
		add(domain.FieldStartDate, "is required")
	} else if _, err := time.Parse(DateLayout, d.StartDate); err != nil {
		add(domain.FieldStartDate, "must be a date in YYYY-MM-DD format")
	}

	if !validDay(d.DueDay) {
		add(domain.FieldDueDay, "must be between 1 and 31")
	}

	return errs
}

func validDay(day int) bool {
	return day >= 1 && day <= 31
}
