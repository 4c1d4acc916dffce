package reports

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/trialbalance/internal/accounting"
	"github.com/odyssey-erp/trialbalance/internal/accounting/shared"
)

// AdjustedReference marks trial balance entries produced by reconciliation.
const AdjustedReference = "ADJ"

// BuildAdjustedTrialBalance merges the aggregated original entries with the
// adjustments, producing one entry per account found in either set.
func BuildAdjustedTrialBalance(original []accounting.TrialBalanceEntry, adjustments []accounting.AdjustmentEntry) []accounting.TrialBalanceEntry {
	totals := Aggregate(original)
	for _, adj := range adjustments {
		if adj.AccountNumber == "" {
			continue
		}
		cur := totals[adj.AccountNumber]
		if adj.Date != "" {
			cur.Date = adj.Date
		}
		cur.Debit = cur.Debit.Add(adj.AdjustmentDebit)
		cur.Credit = cur.Credit.Add(adj.AdjustmentCredit)
		totals[adj.AccountNumber] = cur
	}

	names := accountNames(original, adjustments)
	adjusted := make([]accounting.TrialBalanceEntry, 0, len(totals))
	for _, number := range totals.Accounts() {
		total := totals[number]
		adjusted = append(adjusted, accounting.TrialBalanceEntry{
			ID:            number,
			Date:          total.Date,
			AccountNumber: number,
			AccountName:   names[number],
			Reference:     AdjustedReference,
			Debit:         total.Debit,
			Credit:        total.Credit,
		})
	}
	return adjusted
}

// accountNames resolves each account name from the first original entry,
// falling back to the first adjustment carrying that number.
func accountNames(original []accounting.TrialBalanceEntry, adjustments []accounting.AdjustmentEntry) map[string]string {
	names := make(map[string]string)
	for _, entry := range original {
		if _, ok := names[entry.AccountNumber]; !ok {
			names[entry.AccountNumber] = entry.AccountName
		}
	}
	for _, adj := range adjustments {
		if _, ok := names[adj.AccountNumber]; !ok {
			names[adj.AccountNumber] = adj.AccountName
		}
	}
	return names
}

// ComparisonRow sets the original and adjusted totals of an account side by side.
type ComparisonRow struct {
	Date             string          `json:"date"`
	AccountNumber    string          `json:"accountNumber"`
	AccountName      string          `json:"accountName"`
	OriginalDebit    decimal.Decimal `json:"originalDebit"`
	OriginalCredit   decimal.Decimal `json:"originalCredit"`
	AdjustedDebit    decimal.Decimal `json:"adjustedDebit"`
	AdjustedCredit   decimal.Decimal `json:"adjustedCredit"`
	DebitDifference  decimal.Decimal `json:"debitDifference"`
	CreditDifference decimal.Decimal `json:"creditDifference"`
	HasChanged       bool            `json:"hasChanged"`
}

// BuildComparison compares the aggregated original entries with the adjusted
// trial balance for every account present in either.
func BuildComparison(original, adjusted []accounting.TrialBalanceEntry) []ComparisonRow {
	origTotals := Aggregate(original)
	adjustedByAccount := make(map[string]accounting.TrialBalanceEntry, len(adjusted))
	for _, entry := range adjusted {
		if entry.AccountNumber == "" {
			continue
		}
		if _, ok := adjustedByAccount[entry.AccountNumber]; !ok {
			adjustedByAccount[entry.AccountNumber] = entry
		}
	}

	keys := origTotals.Accounts()
	for number := range adjustedByAccount {
		if _, ok := origTotals[number]; !ok {
			keys = append(keys, number)
		}
	}
	sort.Strings(keys)

	names := accountNames(original, nil)
	rows := make([]ComparisonRow, 0, len(keys))
	for _, number := range keys {
		orig := origTotals[number]
		adj := adjustedByAccount[number]
		row := ComparisonRow{
			Date:             adj.Date,
			AccountNumber:    number,
			AccountName:      adj.AccountName,
			OriginalDebit:    orig.Debit,
			OriginalCredit:   orig.Credit,
			AdjustedDebit:    adj.Debit,
			AdjustedCredit:   adj.Credit,
			DebitDifference:  adj.Debit.Sub(orig.Debit),
			CreditDifference: adj.Credit.Sub(orig.Credit),
		}
		if row.Date == "" {
			row.Date = orig.Date
		}
		if row.AccountName == "" {
			row.AccountName = names[number]
		}
		row.HasChanged = row.DebitDifference.Abs().GreaterThan(accounting.Tolerance) ||
			row.CreditDifference.Abs().GreaterThan(accounting.Tolerance)
		rows = append(rows, row)
	}
	return rows
}

// ComparisonTotals sums every numeric column of a comparison view.
type ComparisonTotals struct {
	Original   Totals `json:"original"`
	Adjustment Totals `json:"adjustment"`
	Adjusted   Totals `json:"adjusted"`
}

// SumComparison totals the comparison rows column by column.
func SumComparison(rows []ComparisonRow) ComparisonTotals {
	var totals ComparisonTotals
	for _, row := range rows {
		totals.Original.Debit = totals.Original.Debit.Add(row.OriginalDebit)
		totals.Original.Credit = totals.Original.Credit.Add(row.OriginalCredit)
		totals.Adjustment.Debit = totals.Adjustment.Debit.Add(row.DebitDifference)
		totals.Adjustment.Credit = totals.Adjustment.Credit.Add(row.CreditDifference)
		totals.Adjusted.Debit = totals.Adjusted.Debit.Add(row.AdjustedDebit)
		totals.Adjusted.Credit = totals.Adjusted.Credit.Add(row.AdjustedCredit)
	}
	return totals
}

// CheckAdjustmentBalance returns the adjustment totals and fails with
// shared.ErrUnbalancedAdjustments when debit and credit differ by more than
// the tolerance. A difference of exactly the tolerance is accepted.
func CheckAdjustmentBalance(adjustments []accounting.AdjustmentEntry) (Totals, error) {
	totals := AdjustmentTotals(adjustments)
	if !totals.Balanced() {
		return totals, fmt.Errorf("%w: debit %s, credit %s",
			shared.ErrUnbalancedAdjustments, totals.Debit.StringFixed(2), totals.Credit.StringFixed(2))
	}
	return totals, nil
}
