package reports

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/trialbalance/internal/accounting"
)

// LedgerDescription labels every ledger line derived from a trial balance entry.
const LedgerDescription = "Transaction"

// LedgerItem is one posting inside a ledger account with its running balance.
type LedgerItem struct {
	Date        string          `json:"date"`
	Reference   string          `json:"reference"`
	Description string          `json:"description"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Balance     decimal.Decimal `json:"balance"`
}

// LedgerAccount groups postings of one account number.
type LedgerAccount struct {
	AccountNumber string       `json:"accountNumber"`
	AccountName   string       `json:"accountName"`
	Entries       []LedgerItem `json:"entries"`
}

// Closing returns the last running balance, or zero for an empty account.
func (a LedgerAccount) Closing() decimal.Decimal {
	if len(a.Entries) == 0 {
		return decimal.Zero
	}
	return a.Entries[len(a.Entries)-1].Balance
}

// BuildLedger groups entries by account number keeping entry order within
// each account. The account name comes from the first entry of the group.
// Accounts are ordered by ordinal comparison of their numbers.
func BuildLedger(entries []accounting.TrialBalanceEntry) []LedgerAccount {
	groups := make(map[string]*LedgerAccount)
	keys := make([]string, 0)
	for _, entry := range entries {
		if entry.AccountNumber == "" {
			continue
		}
		acc, ok := groups[entry.AccountNumber]
		if !ok {
			acc = &LedgerAccount{AccountNumber: entry.AccountNumber, AccountName: entry.AccountName}
			groups[entry.AccountNumber] = acc
			keys = append(keys, entry.AccountNumber)
		}
		balance := acc.Closing().Add(entry.Debit).Sub(entry.Credit)
		acc.Entries = append(acc.Entries, LedgerItem{
			Date:        entry.Date,
			Reference:   entry.Reference,
			Description: LedgerDescription,
			Debit:       entry.Debit,
			Credit:      entry.Credit,
			Balance:     balance,
		})
	}

	sort.Strings(keys)
	ledger := make([]LedgerAccount, 0, len(keys))
	for _, key := range keys {
		ledger = append(ledger, *groups[key])
	}
	return ledger
}

// LedgerTotals sums debit and credit across every ledger line.
func LedgerTotals(ledger []LedgerAccount) Totals {
	var totals Totals
	for _, acc := range ledger {
		for _, item := range acc.Entries {
			totals.Debit = totals.Debit.Add(item.Debit)
			totals.Credit = totals.Credit.Add(item.Credit)
		}
	}
	return totals
}
