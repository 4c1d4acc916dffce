package reports

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/trialbalance/internal/accounting"
)

// AccountTotal holds the aggregated debit and credit of one account.
type AccountTotal struct {
	Date   string          `json:"date"`
	Debit  decimal.Decimal `json:"totalDebit"`
	Credit decimal.Decimal `json:"totalCredit"`
}

// AccountTotals maps account numbers to their aggregated totals.
type AccountTotals map[string]AccountTotal

// Accounts returns the account numbers in ordinal order.
func (t AccountTotals) Accounts() []string {
	keys := make([]string, 0, len(t))
	for key := range t {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// add folds one line into the totals. The first non-empty date wins.
func (t AccountTotals) add(account, date string, debit, credit decimal.Decimal) {
	cur := t[account]
	if cur.Date == "" {
		cur.Date = date
	}
	cur.Debit = cur.Debit.Add(debit)
	cur.Credit = cur.Credit.Add(credit)
	t[account] = cur
}

// Aggregate sums debit and credit per account number. Entries without an
// account number are skipped.
func Aggregate(entries []accounting.TrialBalanceEntry) AccountTotals {
	totals := make(AccountTotals)
	for _, entry := range entries {
		if entry.AccountNumber == "" {
			continue
		}
		totals.add(entry.AccountNumber, entry.Date, entry.Debit, entry.Credit)
	}
	return totals
}

// AggregateAdjustments sums adjustment debit and credit per account number.
func AggregateAdjustments(adjustments []accounting.AdjustmentEntry) AccountTotals {
	totals := make(AccountTotals)
	for _, adj := range adjustments {
		if adj.AccountNumber == "" {
			continue
		}
		totals.add(adj.AccountNumber, adj.Date, adj.AdjustmentDebit, adj.AdjustmentCredit)
	}
	return totals
}

// Totals is a debit/credit pair summed over a record set.
type Totals struct {
	Debit  decimal.Decimal `json:"totalDebit"`
	Credit decimal.Decimal `json:"totalCredit"`
}

// Balanced reports whether debit and credit agree within tolerance.
func (t Totals) Balanced() bool {
	return !accounting.Differs(t.Debit, t.Credit)
}

// Difference returns debit minus credit.
func (t Totals) Difference() decimal.Decimal {
	return t.Debit.Sub(t.Credit)
}

// TrialBalanceTotals sums every entry, including those without an account number.
func TrialBalanceTotals(entries []accounting.TrialBalanceEntry) Totals {
	var totals Totals
	for _, entry := range entries {
		totals.Debit = totals.Debit.Add(entry.Debit)
		totals.Credit = totals.Credit.Add(entry.Credit)
	}
	return totals
}

// AdjustmentTotals sums every adjustment line.
func AdjustmentTotals(adjustments []accounting.AdjustmentEntry) Totals {
	var totals Totals
	for _, adj := range adjustments {
		totals.Debit = totals.Debit.Add(adj.AdjustmentDebit)
		totals.Credit = totals.Credit.Add(adj.AdjustmentCredit)
	}
	return totals
}

// TrialBalance is the trial balance view with its totals.
type TrialBalance struct {
	Entries  []accounting.TrialBalanceEntry `json:"entries"`
	Totals   Totals                         `json:"totals"`
	Balanced bool                           `json:"balanced"`
}

// BuildTrialBalance wraps entries with their totals and balance flag.
func BuildTrialBalance(entries []accounting.TrialBalanceEntry) TrialBalance {
	if entries == nil {
		entries = []accounting.TrialBalanceEntry{}
	}
	totals := TrialBalanceTotals(entries)
	return TrialBalance{Entries: entries, Totals: totals, Balanced: totals.Balanced()}
}
