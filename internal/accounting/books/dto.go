package books

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/trialbalance/internal/accounting"
	"github.com/odyssey-erp/trialbalance/internal/accounting/reports"
	"github.com/odyssey-erp/trialbalance/internal/accounting/shared"
)

// EntryInput carries a new trial balance line. An empty date means today.
type EntryInput struct {
	Date          string          `json:"date" validate:"omitempty,datetime=2006-01-02"`
	AccountNumber string          `json:"accountNumber" validate:"max=64"`
	AccountName   string          `json:"accountName" validate:"max=200"`
	Reference     string          `json:"reference" validate:"max=200"`
	Debit         decimal.Decimal `json:"debit" validate:"gte=0"`
	Credit        decimal.Decimal `json:"credit" validate:"gte=0"`
}

// EntryPatch changes selected fields of a trial balance line.
type EntryPatch struct {
	Date          *string          `json:"date" validate:"omitempty,datetime=2006-01-02"`
	AccountNumber *string          `json:"accountNumber" validate:"omitempty,max=64"`
	AccountName   *string          `json:"accountName" validate:"omitempty,max=200"`
	Reference     *string          `json:"reference" validate:"omitempty,max=200"`
	Debit         *decimal.Decimal `json:"debit" validate:"omitempty,gte=0"`
	Credit        *decimal.Decimal `json:"credit" validate:"omitempty,gte=0"`
}

func (p EntryPatch) apply(entry *accounting.TrialBalanceEntry) {
	if p.Date != nil {
		entry.Date = *p.Date
	}
	if p.AccountNumber != nil {
		entry.AccountNumber = *p.AccountNumber
	}
	if p.AccountName != nil {
		entry.AccountName = *p.AccountName
	}
	if p.Reference != nil {
		entry.Reference = *p.Reference
	}
	if p.Debit != nil {
		entry.Debit = *p.Debit
	}
	if p.Credit != nil {
		entry.Credit = *p.Credit
	}
}

// AdjustmentInput carries a new adjustment. An empty account name is filled
// from the trial balance accounts.
type AdjustmentInput struct {
	Date             string          `json:"date" validate:"omitempty,datetime=2006-01-02"`
	AccountNumber    string          `json:"accountNumber" validate:"max=64"`
	AccountName      string          `json:"accountName" validate:"max=200"`
	Description      string          `json:"description" validate:"max=500"`
	AdjustmentDebit  decimal.Decimal `json:"adjustmentDebit" validate:"gte=0"`
	AdjustmentCredit decimal.Decimal `json:"adjustmentCredit" validate:"gte=0"`
}

// AdjustmentPatch changes selected fields of an adjustment.
type AdjustmentPatch struct {
	Date             *string          `json:"date" validate:"omitempty,datetime=2006-01-02"`
	AccountNumber    *string          `json:"accountNumber" validate:"omitempty,max=64"`
	AccountName      *string          `json:"accountName" validate:"omitempty,max=200"`
	Description      *string          `json:"description" validate:"omitempty,max=500"`
	AdjustmentDebit  *decimal.Decimal `json:"adjustmentDebit" validate:"omitempty,gte=0"`
	AdjustmentCredit *decimal.Decimal `json:"adjustmentCredit" validate:"omitempty,gte=0"`
}

func (p AdjustmentPatch) apply(adj *accounting.AdjustmentEntry) {
	if p.Date != nil {
		adj.Date = *p.Date
	}
	if p.AccountNumber != nil {
		adj.AccountNumber = *p.AccountNumber
	}
	if p.AccountName != nil {
		adj.AccountName = *p.AccountName
	}
	if p.Description != nil {
		adj.Description = *p.Description
	}
	if p.AdjustmentDebit != nil {
		adj.AdjustmentDebit = *p.AdjustmentDebit
	}
	if p.AdjustmentCredit != nil {
		adj.AdjustmentCredit = *p.AdjustmentCredit
	}
}

// AdjustmentsView lists the adjustments with their running totals.
type AdjustmentsView struct {
	Adjustments []accounting.AdjustmentEntry `json:"adjustments"`
	Totals      reports.Totals               `json:"totals"`
	Balanced    bool                         `json:"balanced"`
}

// ComparisonView is the original vs adjusted comparison with column totals.
type ComparisonView struct {
	Rows   []reports.ComparisonRow  `json:"rows"`
	Totals reports.ComparisonTotals `json:"totals"`
}

// LedgerView is the general ledger with its grand totals.
type LedgerView struct {
	Accounts []reports.LedgerAccount `json:"accounts"`
	Totals   reports.Totals          `json:"totals"`
}

// ApplyResult reports the trial balance that replaced the original.
type ApplyResult struct {
	Entries []accounting.TrialBalanceEntry `json:"entries"`
	Totals  reports.Totals                 `json:"totals"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// validationError wraps validator failures as shared.ErrInvalidEntry.
func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", shared.ErrInvalidEntry, err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", shared.ErrInvalidEntry, strings.Join(msgs, "; "))
}
