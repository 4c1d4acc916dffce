package accounting

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar date format used by entries and snapshots.
const DateLayout = "2006-01-02"

// Tolerance is the absolute difference under which two amounts are treated as equal.
var Tolerance = decimal.New(1, -2)

func init() {
	// Snapshots store amounts as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// TrialBalanceEntry is a single trial balance line.
type TrialBalanceEntry struct {
	ID            string          `json:"id"`
	Date          string          `json:"date"`
	AccountNumber string          `json:"accountNumber"`
	AccountName   string          `json:"accountName"`
	Reference     string          `json:"reference"`
	Debit         decimal.Decimal `json:"debit"`
	Credit        decimal.Decimal `json:"credit"`
}

// AdjustmentEntry is a manual correcting line applied on top of the trial balance.
type AdjustmentEntry struct {
	ID               string          `json:"id"`
	Date             string          `json:"date"`
	AccountNumber    string          `json:"accountNumber"`
	AccountName      string          `json:"accountName"`
	Description      string          `json:"description"`
	AdjustmentDebit  decimal.Decimal `json:"adjustmentDebit"`
	AdjustmentCredit decimal.Decimal `json:"adjustmentCredit"`
}

// Account pairs an account number with its display name.
type Account struct {
	Number string `json:"accountNumber"`
	Name   string `json:"accountName"`
}

// Differs reports whether two amounts are further apart than Tolerance.
func Differs(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().GreaterThan(Tolerance)
}

// FormatDate renders t as a calendar date.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// SeedTrialBalance returns the default trial balance used for new or reset books.
func SeedTrialBalance(date string) []TrialBalanceEntry {
	seed := []struct {
		number, name, ref string
		debit, credit     int64
	}{
		{"1000", "Cash", "GL1", 5000, 0},
		{"1200", "Accounts Receivable", "GL2", 3000, 0},
		{"1300", "Inventory", "GL3", 7000, 0},
		{"2000", "Accounts Payable", "GL4", 0, 2500},
		{"2100", "Notes Payable", "GL5", 0, 5000},
		{"3000", "Capital", "GL6", 0, 7500},
	}
	entries := make([]TrialBalanceEntry, 0, len(seed))
	for i, s := range seed {
		entries = append(entries, TrialBalanceEntry{
			ID:            strconv.Itoa(i + 1),
			Date:          date,
			AccountNumber: s.number,
			AccountName:   s.name,
			Reference:     s.ref,
			Debit:         decimal.NewFromInt(s.debit),
			Credit:        decimal.NewFromInt(s.credit),
		})
	}
	return entries
}
