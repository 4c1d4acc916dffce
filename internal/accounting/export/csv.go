package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/trialbalance/internal/accounting"
	"github.com/odyssey-erp/trialbalance/internal/accounting/reports"
	"github.com/odyssey-erp/trialbalance/internal/accounting/shared"
)

// View names an exportable record set.
type View string

const (
	ViewTrialBalance View = "trial-balance"
	ViewLedger       View = "ledger"
	ViewAdjusted     View = "adjusted"
	ViewJournal      View = "journal"
)

// Views lists every supported view.
var Views = []View{ViewTrialBalance, ViewLedger, ViewAdjusted, ViewJournal}

// ParseView validates a view name.
func ParseView(name string) (View, error) {
	for _, v := range Views {
		if string(v) == name {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: %q", shared.ErrUnknownView, name)
}

// Filename returns the download name for the view.
func (v View) Filename() string {
	switch v {
	case ViewTrialBalance:
		return "trial_balance.csv"
	case ViewLedger:
		return "general_ledger.csv"
	case ViewAdjusted:
		return "adjusted_trial_balance.csv"
	case ViewJournal:
		return "adjustment_journal.csv"
	}
	return string(v) + ".csv"
}

var (
	trialBalanceHeader = []string{"Date", "Account Number", "Account Name", "Reference", "Debit", "Credit"}
	ledgerHeader       = []string{"Date", "Account Number", "Account Name", "Reference", "Description", "Debit", "Credit", "Balance"}
	adjustedHeader     = []string{"Date", "Account Number", "Account Name", "Original Debit", "Original Credit", "Adjustment Debit", "Adjustment Credit", "Adjusted Debit", "Adjusted Credit"}
	journalHeader      = []string{"Description", "Date", "Account Number", "Account Name", "Debit", "Credit"}
)

// table is a header, its records and the trailing total row.
type table struct {
	header []string
	rows   [][]string
	total  []string
}

func (t table) write(w io.Writer) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(t.header); err != nil {
		return err
	}
	for _, row := range t.rows {
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	if err := writer.Write(t.total); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}

// totalRow labels the first cell, leaves the non-numeric cells blank and
// fills the trailing numeric cells.
func totalRow(width int, sums ...decimal.Decimal) []string {
	row := make([]string, width)
	row[0] = "Total"
	offset := width - len(sums)
	for i, sum := range sums {
		row[offset+i] = formatMoney(sum)
	}
	return row
}

// WriteTrialBalanceCSV serialises the trial balance entries.
func WriteTrialBalanceCSV(w io.Writer, entries []accounting.TrialBalanceEntry) error {
	t := table{header: trialBalanceHeader}
	for _, e := range entries {
		t.rows = append(t.rows, []string{
			e.Date,
			e.AccountNumber,
			e.AccountName,
			e.Reference,
			formatMoney(e.Debit),
			formatMoney(e.Credit),
		})
	}
	totals := reports.TrialBalanceTotals(entries)
	t.total = totalRow(len(trialBalanceHeader), totals.Debit, totals.Credit)
	return t.write(w)
}

// WriteLedgerCSV serialises every ledger line across all accounts. The total
// row carries the debit and credit sums and the net balance.
func WriteLedgerCSV(w io.Writer, ledger []reports.LedgerAccount) error {
	t := table{header: ledgerHeader}
	for _, acc := range ledger {
		for _, item := range acc.Entries {
			t.rows = append(t.rows, []string{
				item.Date,
				acc.AccountNumber,
				acc.AccountName,
				item.Reference,
				item.Description,
				formatMoney(item.Debit),
				formatMoney(item.Credit),
				formatMoney(item.Balance),
			})
		}
	}
	totals := reports.LedgerTotals(ledger)
	t.total = totalRow(len(ledgerHeader), totals.Debit, totals.Credit, totals.Difference())
	return t.write(w)
}

// WriteComparisonCSV serialises the original vs adjusted comparison. The
// adjustment columns hold the per-account difference.
func WriteComparisonCSV(w io.Writer, rows []reports.ComparisonRow) error {
	t := table{header: adjustedHeader}
	for _, r := range rows {
		t.rows = append(t.rows, []string{
			r.Date,
			r.AccountNumber,
			r.AccountName,
			formatMoney(r.OriginalDebit),
			formatMoney(r.OriginalCredit),
			formatMoney(r.DebitDifference),
			formatMoney(r.CreditDifference),
			formatMoney(r.AdjustedDebit),
			formatMoney(r.AdjustedCredit),
		})
	}
	sums := reports.SumComparison(rows)
	t.total = totalRow(len(adjustedHeader),
		sums.Original.Debit, sums.Original.Credit,
		sums.Adjustment.Debit, sums.Adjustment.Credit,
		sums.Adjusted.Debit, sums.Adjusted.Credit,
	)
	return t.write(w)
}

// WriteJournalCSV serialises grouped adjustment lines.
func WriteJournalCSV(w io.Writer, groups []reports.JournalGroup) error {
	t := table{header: journalHeader}
	var debit, credit decimal.Decimal
	for _, grp := range groups {
		for _, line := range grp.Lines {
			t.rows = append(t.rows, []string{
				grp.Description,
				line.Date,
				line.AccountNumber,
				line.AccountName,
				formatMoney(line.AdjustmentDebit),
				formatMoney(line.AdjustmentCredit),
			})
		}
		debit = debit.Add(grp.Debit)
		credit = credit.Add(grp.Credit)
	}
	t.total = totalRow(len(journalHeader), debit, credit)
	return t.write(w)
}

func formatMoney(v decimal.Decimal) string {
	return v.StringFixed(2)
}
