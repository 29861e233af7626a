package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownAccountType is returned when a string does not name an AccountType.
var ErrUnknownAccountType = errors.New("unknown account type")

// AccountType classifies a bill. The set is closed.
type AccountType string

const (
	AccountFixed        AccountType = "FIXED"
	AccountLoan         AccountType = "LOAN"
	AccountCreditCard   AccountType = "CREDIT_CARD"
	AccountDebitCard    AccountType = "DEBIT_CARD"
	AccountSubscription AccountType = "SUBSCRIPTION"
	AccountInsurance    AccountType = "INSURANCE"
	AccountTax          AccountType = "TAX"
	AccountPension      AccountType = "PENSION"
	AccountEducation    AccountType = "EDUCATION"
	AccountHealth       AccountType = "HEALTH"
	AccountOther        AccountType = "OTHER"
)

// AccountTypes lists every AccountType in display order.
func AccountTypes() []AccountType {
	return []AccountType{
		AccountFixed,
		AccountLoan,
		AccountCreditCard,
		AccountDebitCard,
		AccountSubscription,
		AccountInsurance,
		AccountTax,
		AccountPension,
		AccountEducation,
		AccountHealth,
		AccountOther,
	}
}

// ParseAccountType converts a case-insensitive name into an AccountType.
func ParseAccountType(s string) (AccountType, error) {
	candidate := AccountType(strings.ToUpper(strings.TrimSpace(s)))
	for _, t := range AccountTypes() {
		if t == candidate {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAccountType, s)
}

// Valid reports whether t is one of the known account types.
func (t AccountType) Valid() bool {
	_, err := ParseAccountType(string(t))
	return err == nil
}

// BillDraft is the editable state of the account form.
// It is a value: reducers in package bills return a new draft instead of mutating one.
type BillDraft struct {
	Name string      `json:"name"`
	Type AccountType `json:"type"`

	IsPreview       bool `json:"isPreview"`
	HasInstallments bool `json:"hasInstallments"`

	// InstallmentCount is at least 1 for every draft built by package bills.
	InstallmentCount          int   `json:"installmentCount"`
	PerInstallmentAmountCents int64 `json:"perInstallmentAmountCents"`

	// TotalAmountCents is either derived from the per-installment path or entered directly.
	TotalAmountCents int64 `json:"totalAmountCents"`

	StartDate string `json:"startDate"` // YYYY-MM-DD
	DueDay    int    `json:"dueDay"`

	// Credit card only
	CreditLimitCents int64 `json:"creditLimitCents,omitempty"`
	ClosingDate      int   `json:"closingDate,omitempty"`

	// ID is set when the draft edits an existing bill.
	ID string `json:"id,omitempty"`
}

// Bill is a validated account as stored and returned by the API.
type Bill struct {
	ID       string      `json:"id"`
	TenantID string      `json:"tenantId"`
	Name     string      `json:"name"`
	Type     AccountType `json:"type"`

	IsPreview                 bool  `json:"isPreview"`
	HasInstallments           bool  `json:"hasInstallments"`
	InstallmentCount          int   `json:"installmentCount"`
	PerInstallmentAmountCents int64 `json:"perInstallmentAmountCents,omitempty"`
	TotalAmountCents          int64 `json:"totalAmountCents,omitempty"`

	StartDate string `json:"startDate"`
	DueDay    int    `json:"dueDay"`

	CreditLimitCents int64 `json:"creditLimitCents,omitempty"`
	ClosingDate      int   `json:"closingDate,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// InstallmentDue is one scheduled payment of a bill.
type InstallmentDue struct {
	Number      int    `json:"number"`
	DueDate     string `json:"dueDate"` // YYYY-MM-DD
	AmountCents int64  `json:"amountCents"`
}

// DraftOp names a single form interaction.
type DraftOp string

const (
	OpChangeType             DraftOp = "changeType"
	OpTogglePreview          DraftOp = "togglePreview"
	OpToggleInstallments     DraftOp = "toggleInstallments"
	OpSetInstallmentCount    DraftOp = "setInstallmentCount"
	OpSetInstallmentAmount   DraftOp = "setInstallmentAmount"
	OpClearInstallmentAmount DraftOp = "clearInstallmentAmount"
	OpSetTotalAmount         DraftOp = "setTotalAmount"
	OpSetName                DraftOp = "setName"
	OpSetStartDate           DraftOp = "setStartDate"
	OpSetDueDay              DraftOp = "setDueDay"
	OpSetCreditLimit         DraftOp = "setCreditLimit"
	OpSetClosingDate         DraftOp = "setClosingDate"
)

// DraftAction is a form interaction as sent over the wire.
// Only the field matching Op is read.
type DraftAction struct {
	Op     DraftOp     `json:"op"`
	Type   AccountType `json:"type,omitempty"`
	Flag   bool        `json:"flag,omitempty"`
	Number int64       `json:"number,omitempty"`
	Text   string      `json:"text,omitempty"`
}

// Field identifiers reported by ValidationError.
const (
	FieldName             = "name"
	FieldType             = "type"
	FieldTotalAmount      = "totalAmount"
	FieldInstallmentAmt   = "installmentAmount"
	FieldInstallmentCount = "installmentCount"
	FieldCreditLimit      = "creditLimit"
	FieldClosingDate      = "closingDate"
	FieldStartDate        = "startDate"
	FieldDueDay           = "dueDay"
)

// ValidationError describes one violated field rule.
type ValidationError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Reason
}

// ValidationErrors is the complete list of problems found in a draft.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	parts := make([]string, len(v))
	for i := range v {
		parts[i] = v[i].Error()
	}
	return strings.Join(parts, "; ")
}

// Has reports whether any error was recorded for field.
func (v ValidationErrors) Has(field string) bool {
	for _, e := range v {
		if e.Field == field {
			return true
		}
	}
	return false
}
