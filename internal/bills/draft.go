package bills

import (
	"fmt"
	"strings"

	"github.com/opensource-finance/contas/internal/domain"
)

// NewDraft returns an empty draft of type t with the policy defaults applied.
func NewDraft(t domain.AccountType) domain.BillDraft {
	return ApplyTypeChange(domain.BillDraft{InstallmentCount: 1}, t)
}

// ApplyTypeChange switches the draft to t and resets the toggles to the policy
// defaults of t. A per-installment amount does not survive a type change, and
// neither does a total derived from it. Unknown types leave the draft unchanged.
func ApplyTypeChange(d domain.BillDraft, t domain.AccountType) domain.BillDraft {
	if !t.Valid() {
		return d
	}
	p := PolicyFor(t)

	if perInstallmentActive(d) && d.PerInstallmentAmountCents > 0 {
		d.TotalAmountCents = 0
	}
	if !p.UsesCreditLimit {
		d.CreditLimitCents = 0
		d.ClosingDate = 0
	}

	d.Type = t
	d.IsPreview = false
	d.HasInstallments = p.DefaultInstallments
	d.InstallmentCount = 1
	d.PerInstallmentAmountCents = 0
	if p.UsesCreditLimit {
		d.TotalAmountCents = 0
	}
	return d
}

// ApplyPreviewToggle sets isPreview when the type permits it. For FIXED bills
// preview and installments are mutually exclusive.
func ApplyPreviewToggle(d domain.BillDraft, value bool) domain.BillDraft {
	p := PolicyFor(d.Type)
	if !p.PreviewAllowed {
		return d
	}

	d.IsPreview = value
	if p.PreviewExcludesInstallments {
		if value {
			d.HasInstallments = false
			d.PerInstallmentAmountCents = 0
			d.InstallmentCount = 1
		} else {
			d.HasInstallments = true
		}
	}
	return d
}

// ToggleInstallments sets hasInstallments for types where it is neither forced
// nor locked. Turning installments off drops the per-installment entry.
func ToggleInstallments(d domain.BillDraft, value bool) domain.BillDraft {
	p := PolicyFor(d.Type)
	if !p.InstallmentsAllowed || p.InstallmentsLocked {
		return d
	}

	d.HasInstallments = value
	if !value {
		d.PerInstallmentAmountCents = 0
		d.InstallmentCount = 1
	}
	return d
}

// SetInstallmentCount sets the number of installments, between 1 and
// MaxInstallments, and keeps the total in sync with a per-installment amount
// that is already set.
func SetInstallmentCount(d domain.BillDraft, count int) (domain.BillDraft, error) {
	if count < 1 {
		return d, &domain.ValidationError{
			Field:  domain.FieldInstallmentCount,
			Reason: "must be at least 1",
		}
	}
	if count > MaxInstallments {
		return d, &domain.ValidationError{
			Field:  domain.FieldInstallmentCount,
			Reason: fmt.Sprintf("must be at most %d", MaxInstallments),
		}
	}
	if !PolicyFor(d.Type).InstallmentsAllowed {
		return d, nil
	}

	if perInstallmentActive(d) && d.PerInstallmentAmountCents > 0 {
		total, ok := installmentTotal(d.PerInstallmentAmountCents, count)
		if !ok {
			return d, totalOverflow(count)
		}
		d.TotalAmountCents = total
	}
	d.InstallmentCount = count
	return d, nil
}

// SetPerInstallmentAmount sets the amount of one installment and recomputes the
// total. Only drafts with installments on FIXED and the general types
// (SUBSCRIPTION, INSURANCE, TAX, PENSION, EDUCATION, HEALTH, OTHER) accept it;
// LOAN takes its total through SetDirectTotalAmount, and the card types have
// no installments, so for them the call leaves the draft unchanged.
func SetPerInstallmentAmount(d domain.BillDraft, cents int64) (domain.BillDraft, error) {
	if cents < 0 {
		return d, &domain.ValidationError{
			Field:  domain.FieldInstallmentAmt,
			Reason: "must not be negative",
		}
	}
	if !perInstallmentActive(d) {
		return d, nil
	}

	count := max(d.InstallmentCount, 1)
	total, ok := installmentTotal(cents, count)
	if !ok {
		return d, totalOverflow(count)
	}
	d.PerInstallmentAmountCents = cents
	d.TotalAmountCents = total
	return d, nil
}

// ClearPerInstallmentAmount is the empty-input path of the per-installment
// field: both the installment amount and the total go back to zero.
func ClearPerInstallmentAmount(d domain.BillDraft) domain.BillDraft {
	if !perInstallmentActive(d) {
		return d
	}
	d.PerInstallmentAmountCents = 0
	d.TotalAmountCents = 0
	return d
}

// SetDirectTotalAmount sets the total directly. It only applies to loans and to
// drafts without installments that are not credit cards.
func SetDirectTotalAmount(d domain.BillDraft, cents int64) (domain.BillDraft, error) {
	if cents < 0 {
		return d, &domain.ValidationError{
			Field:  domain.FieldTotalAmount,
			Reason: "must not be negative",
		}
	}
	if !directTotalAllowed(d) {
		return d, nil
	}
	d.TotalAmountCents = cents
	return d, nil
}

// SetName sets the bill name.
func SetName(d domain.BillDraft, name string) domain.BillDraft {
	d.Name = strings.TrimSpace(name)
	return d
}

// SetStartDate sets the first date the bill applies to (YYYY-MM-DD).
func SetStartDate(d domain.BillDraft, date string) domain.BillDraft {
	d.StartDate = strings.TrimSpace(date)
	return d
}

// SetDueDay sets the day of month the bill is due. Range is checked by Validate.
func SetDueDay(d domain.BillDraft, day int) domain.BillDraft {
	d.DueDay = day
	return d
}

// SetCreditLimit sets the credit card limit. Ignored for other types.
func SetCreditLimit(d domain.BillDraft, cents int64) (domain.BillDraft, error) {
	if cents < 0 {
		return d, &domain.ValidationError{
			Field:  domain.FieldCreditLimit,
			Reason: "must not be negative",
		}
	}
	if !PolicyFor(d.Type).UsesCreditLimit {
		return d, nil
	}
	d.CreditLimitCents = cents
	return d, nil
}

// SetClosingDate sets the credit card statement closing day. Ignored for other types.
func SetClosingDate(d domain.BillDraft, day int) domain.BillDraft {
	if !PolicyFor(d.Type).UsesCreditLimit {
		return d
	}
	d.ClosingDate = day
	return d
}
