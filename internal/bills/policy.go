// Package bills holds the account form rules: which toggles each account type
// permits, how drafts change in response to form interactions, and how a draft
// is validated and turned into a bill.
package bills

import (
	"fmt"
	"math"

	"github.com/opensource-finance/contas/internal/domain"
	"github.com/shopspring/decimal"
)

// MaxInstallments is the largest installmentCount a bill may have.
const MaxInstallments = 600

var maxCents = decimal.NewFromInt(math.MaxInt64)

// Policy is the behaviour of the form for one account type.
type Policy struct {
	Type domain.AccountType `json:"type"`

	// PreviewAllowed is false when isPreview is forced to false.
	PreviewAllowed bool `json:"previewAllowed"`

	// InstallmentsAllowed is false when hasInstallments is forced off.
	InstallmentsAllowed bool `json:"installmentsAllowed"`

	// InstallmentsLocked means the user cannot toggle hasInstallments directly.
	InstallmentsLocked bool `json:"installmentsLocked"`

	// DefaultInstallments is the hasInstallments value after a type change.
	DefaultInstallments bool `json:"defaultInstallments"`

	// PreviewExcludesInstallments ties hasInstallments to !isPreview.
	PreviewExcludesInstallments bool `json:"previewExcludesInstallments"`

	// PerInstallmentEntry enables the per-installment amount path.
	PerInstallmentEntry bool `json:"perInstallmentEntry"`

	// UsesCreditLimit replaces the total amount with credit limit and closing date.
	UsesCreditLimit bool `json:"usesCreditLimit"`
}

var defaultPolicy = Policy{
	PreviewAllowed:      true,
	InstallmentsAllowed: true,
	PerInstallmentEntry: true,
}

// PolicyFor returns the policy of t. Unknown types get a policy that allows nothing.
func PolicyFor(t domain.AccountType) Policy {
	var p Policy
	switch t {
	case domain.AccountFixed:
		p = Policy{
			PreviewAllowed:              true,
			InstallmentsAllowed:         true,
			InstallmentsLocked:          true,
			DefaultInstallments:         true,
			PreviewExcludesInstallments: true,
			PerInstallmentEntry:         true,
		}
	case domain.AccountLoan:
		p = Policy{
			InstallmentsAllowed: true,
			InstallmentsLocked:  true,
			DefaultInstallments: true,
		}
	case domain.AccountCreditCard:
		p = Policy{
			InstallmentsLocked: true,
			UsesCreditLimit:    true,
		}
	case domain.AccountDebitCard:
		p = Policy{
			InstallmentsLocked: true,
		}
	case domain.AccountSubscription,
		domain.AccountInsurance,
		domain.AccountTax,
		domain.AccountPension,
		domain.AccountEducation,
		domain.AccountHealth,
		domain.AccountOther:
		p = defaultPolicy
	default:
		return Policy{Type: t, InstallmentsLocked: true}
	}
	p.Type = t
	return p
}

// Policies returns the policy of every account type in display order.
func Policies() []Policy {
	types := domain.AccountTypes()
	out := make([]Policy, len(types))
	for i, t := range types {
		out[i] = PolicyFor(t)
	}
	return out
}

// perInstallmentActive reports whether the draft's total is derived from the
// per-installment amount.
func perInstallmentActive(d domain.BillDraft) bool {
	return d.HasInstallments && PolicyFor(d.Type).PerInstallmentEntry
}

// installmentTotal returns per * count; ok is false when the product does not
// fit in int64 cents.
func installmentTotal(per int64, count int) (total int64, ok bool) {
	product := decimal.NewFromInt(per).Mul(decimal.NewFromInt(int64(count)))
	if product.GreaterThan(maxCents) {
		return 0, false
	}
	return product.IntPart(), true
}

func totalOverflow(count int) *domain.ValidationError {
	return &domain.ValidationError{
		Field:  domain.FieldInstallmentAmt,
		Reason: fmt.Sprintf("times %d installments exceeds the largest supported total", count),
	}
}

// directTotalAllowed reports whether the total amount may be entered directly.
func directTotalAllowed(d domain.BillDraft) bool {
	if d.Type == domain.AccountLoan {
		return true
	}
	return !d.HasInstallments && d.Type.Valid() && !PolicyFor(d.Type).UsesCreditLimit
}
