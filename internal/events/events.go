// Package events publishes trial balance domain events.
package events

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// TypeAdjustmentsApplied is emitted after adjustments replace the trial balance.
const TypeAdjustmentsApplied = "trialbalance.adjustments_applied"

// Publisher delivers events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, eventType string, payload any) error
}

// AdjustmentsApplied describes a successful apply.
type AdjustmentsApplied struct {
	AppliedAt       time.Time       `json:"appliedAt"`
	AdjustmentCount int             `json:"adjustmentCount"`
	AccountCount    int             `json:"accountCount"`
	TotalDebit      decimal.Decimal `json:"totalDebit"`
	TotalCredit     decimal.Decimal `json:"totalCredit"`
}

// NopPublisher drops every event.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, string, any) error { return nil }
