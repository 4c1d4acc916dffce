package reports

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/trialbalance/internal/accounting"
)

// DefaultJournalDescription groups adjustments that carry no description.
const DefaultJournalDescription = "Miscellaneous Adjustment"

// JournalGroup is a set of adjustment lines sharing a description.
type JournalGroup struct {
	Description string                       `json:"description"`
	Lines       []accounting.AdjustmentEntry `json:"lines"`
	Debit       decimal.Decimal              `json:"totalDebit"`
	Credit      decimal.Decimal              `json:"totalCredit"`
}

// Balanced reports whether the group debits equal its credits within tolerance.
// Grouping never enforces it.
func (g JournalGroup) Balanced() bool {
	return !accounting.Differs(g.Debit, g.Credit)
}

// GroupJournal groups non-zero adjustments by description. Groups keep the
// order of their first line and lines keep input order.
func GroupJournal(adjustments []accounting.AdjustmentEntry) []JournalGroup {
	index := make(map[string]int)
	groups := make([]JournalGroup, 0)
	for _, adj := range adjustments {
		if adj.AdjustmentDebit.IsZero() && adj.AdjustmentCredit.IsZero() {
			continue
		}
		key := adj.Description
		if key == "" {
			key = DefaultJournalDescription
		}
		idx, ok := index[key]
		if !ok {
			idx = len(groups)
			index[key] = idx
			groups = append(groups, JournalGroup{Description: key})
		}
		grp := &groups[idx]
		grp.Lines = append(grp.Lines, adj)
		grp.Debit = grp.Debit.Add(adj.AdjustmentDebit)
		grp.Credit = grp.Credit.Add(adj.AdjustmentCredit)
	}
	return groups
}
