package bills

import (
	"errors"
	"fmt"

	"github.com/opensource-finance/contas/internal/domain"
)

// ErrUnknownOp is returned by Apply for an action it does not recognise.
var ErrUnknownOp = errors.New("unknown draft operation")

// Apply runs one form interaction against d.
func Apply(d domain.BillDraft, a domain.DraftAction) (domain.BillDraft, error) {
	switch a.Op {
	case domain.OpChangeType:
		t, err := domain.ParseAccountType(string(a.Type))
		if err != nil {
			return d, err
		}
		return ApplyTypeChange(d, t), nil
	case domain.OpTogglePreview:
		return ApplyPreviewToggle(d, a.Flag), nil
	case domain.OpToggleInstallments:
		return ToggleInstallments(d, a.Flag), nil
	case domain.OpSetInstallmentCount:
		return SetInstallmentCount(d, int(a.Number))
	case domain.OpSetInstallmentAmount:
		return SetPerInstallmentAmount(d, a.Number)
	case domain.OpClearInstallmentAmount:
		return ClearPerInstallmentAmount(d), nil
	case domain.OpSetTotalAmount:
		return SetDirectTotalAmount(d, a.Number)
	case domain.OpSetName:
		return SetName(d, a.Text), nil
	case domain.OpSetStartDate:
		return SetStartDate(d, a.Text), nil
	case domain.OpSetDueDay:
		return SetDueDay(d, int(a.Number)), nil
	case domain.OpSetCreditLimit:
		return SetCreditLimit(d, a.Number)
	case domain.OpSetClosingDate:
		return SetClosingDate(d, int(a.Number)), nil
	default:
		return d, fmt.Errorf("%w: %q", ErrUnknownOp, a.Op)
	}
}

// ApplyAll runs actions in order and stops at the first error.
func ApplyAll(d domain.BillDraft, actions []domain.DraftAction) (domain.BillDraft, error) {
	for i, a := range actions {
		next, err := Apply(d, a)
		if err != nil {
			return d, fmt.Errorf("action %d (%s): %w", i, a.Op, err)
		}
		d = next
	}
	return d, nil
}
