package reports

import (
	"sort"

	"github.com/odyssey-erp/trialbalance/internal/accounting"
)

// Accounts lists the distinct accounts of a trial balance. Only entries with
// both a number and a name count; a later entry overrides an earlier name.
func Accounts(entries []accounting.TrialBalanceEntry) []accounting.Account {
	names := make(map[string]string)
	for _, entry := range entries {
		if entry.AccountNumber == "" || entry.AccountName == "" {
			continue
		}
		names[entry.AccountNumber] = entry.AccountName
	}
	accounts := make([]accounting.Account, 0, len(names))
	for number, name := range names {
		accounts = append(accounts, accounting.Account{Number: number, Name: name})
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].Number < accounts[j].Number
	})
	return accounts
}
