package shared

import "errors"

var (
	// ErrUnbalancedAdjustments indicates adjustment debits and credits differ beyond tolerance.
	ErrUnbalancedAdjustments = errors.New("accounting: adjustments must have equal debits and credits")
	// ErrUnbalancedTrialBalance indicates the trial balance totals disagree beyond tolerance.
	ErrUnbalancedTrialBalance = errors.New("accounting: trial balance is not balanced")
	// ErrEntryNotFound indicates a missing trial balance entry.
	ErrEntryNotFound = errors.New("accounting: trial balance entry not found")
	// ErrAdjustmentNotFound indicates a missing adjustment.
	ErrAdjustmentNotFound = errors.New("accounting: adjustment not found")
	// ErrInvalidEntry indicates input failed validation.
	ErrInvalidEntry = errors.New("accounting: invalid entry")
	// ErrUnknownView indicates an export view name is not supported.
	ErrUnknownView = errors.New("accounting: unknown export view")
)
