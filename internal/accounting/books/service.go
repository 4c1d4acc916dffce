// Package books orchestrates the trial balance, its adjustments and the
// derived views over a snapshot store.
package books

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/odyssey-erp/trialbalance/internal/accounting"
	"github.com/odyssey-erp/trialbalance/internal/accounting/export"
	"github.com/odyssey-erp/trialbalance/internal/accounting/reports"
	"github.com/odyssey-erp/trialbalance/internal/accounting/shared"
	"github.com/odyssey-erp/trialbalance/internal/events"
)

// Apply outcomes reported to Metrics.
const (
	ApplyApplied    = "applied"
	ApplyUnbalanced = "unbalanced"
	ApplyFailed     = "failed"
)

// Metrics receives service level observations.
type Metrics interface {
	ObserveApply(outcome string)
	ObserveExport(view string, err error)
}

// Service coordinates mutations of the books and serves derived views.
type Service struct {
	repo      *Repository
	cache     *ViewCache
	publisher events.Publisher
	metrics   Metrics
	logger    *slog.Logger
	validate  *validator.Validate
	now       func() time.Time
	newID     func() string

	mu sync.Mutex
}

// NewService constructs the books service. cache and publisher may be nil.
func NewService(repo *Repository, cache *ViewCache, publisher events.Publisher, logger *slog.Logger) *Service {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		cache:     cache,
		publisher: publisher,
		logger:    logger,
		validate:  newValidator(),
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// WithNow overrides the clock for the service and its repository.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
		s.repo.WithNow(now)
	}
}

// WithMetrics attaches a metrics sink.
func (s *Service) WithMetrics(m Metrics) {
	s.metrics = m
}

// TrialBalance returns the root entries with their totals.
func (s *Service) TrialBalance(ctx context.Context) (reports.TrialBalance, error) {
	entries, err := s.repo.LoadTrialBalance(ctx)
	if err != nil {
		return reports.TrialBalance{}, err
	}
	return reports.BuildTrialBalance(entries), nil
}

// AddEntry appends a trial balance line.
func (s *Service) AddEntry(ctx context.Context, in EntryInput) (accounting.TrialBalanceEntry, error) {
	if err := s.validate.Struct(in); err != nil {
		return accounting.TrialBalanceEntry{}, validationError(err)
	}
	entry := accounting.TrialBalanceEntry{
		ID:            s.newID(),
		Date:          in.Date,
		AccountNumber: in.AccountNumber,
		AccountName:   in.AccountName,
		Reference:     in.Reference,
		Debit:         in.Debit,
		Credit:        in.Credit,
	}
	if entry.Date == "" {
		entry.Date = accounting.FormatDate(s.now())
	}
	err := s.mutateEntries(ctx, func(entries []accounting.TrialBalanceEntry) ([]accounting.TrialBalanceEntry, error) {
		return append(entries, entry), nil
	})
	if err != nil {
		return accounting.TrialBalanceEntry{}, err
	}
	return entry, nil
}

// UpdateEntry patches the line with the given id.
func (s *Service) UpdateEntry(ctx context.Context, id string, patch EntryPatch) (accounting.TrialBalanceEntry, error) {
	if err := s.validate.Struct(patch); err != nil {
		return accounting.TrialBalanceEntry{}, validationError(err)
	}
	var updated accounting.TrialBalanceEntry
	err := s.mutateEntries(ctx, func(entries []accounting.TrialBalanceEntry) ([]accounting.TrialBalanceEntry, error) {
		for i := range entries {
			if entries[i].ID == id {
				patch.apply(&entries[i])
				updated = entries[i]
				return entries, nil
			}
		}
		return nil, fmt.Errorf("%w: %s", shared.ErrEntryNotFound, id)
	})
	return updated, err
}

// RemoveEntry deletes the line with the given id.
func (s *Service) RemoveEntry(ctx context.Context, id string) error {
	return s.mutateEntries(ctx, func(entries []accounting.TrialBalanceEntry) ([]accounting.TrialBalanceEntry, error) {
		for i := range entries {
			if entries[i].ID == id {
				return append(entries[:i], entries[i+1:]...), nil
			}
		}
		return nil, fmt.Errorf("%w: %s", shared.ErrEntryNotFound, id)
	})
}

// ResetTrialBalance replaces the root entries with the seed trial balance.
func (s *Service) ResetTrialBalance(ctx context.Context) ([]accounting.TrialBalanceEntry, error) {
	seed := accounting.SeedTrialBalance(accounting.FormatDate(s.now()))
	err := s.mutateEntries(ctx, func([]accounting.TrialBalanceEntry) ([]accounting.TrialBalanceEntry, error) {
		return seed, nil
	})
	if err != nil {
		return nil, err
	}
	return seed, nil
}

// Ledger returns the general ledger derived from the trial balance.
func (s *Service) Ledger(ctx context.Context) (LedgerView, error) {
	var view LedgerView
	err := s.cached(ctx, "ledger", &view, func(snap Snapshot) any {
		ledger := reports.BuildLedger(snap.Entries)
		return LedgerView{Accounts: ledger, Totals: reports.LedgerTotals(ledger)}
	})
	return view, err
}

// Accounts lists the distinct trial balance accounts.
func (s *Service) Accounts(ctx context.Context) ([]accounting.Account, error) {
	entries, err := s.repo.LoadTrialBalance(ctx)
	if err != nil {
		return nil, err
	}
	return reports.Accounts(entries), nil
}

// Adjustments lists the adjustments with their totals.
func (s *Service) Adjustments(ctx context.Context) (AdjustmentsView, error) {
	adjustments, err := s.repo.LoadAdjustments(ctx)
	if err != nil {
		return AdjustmentsView{}, err
	}
	totals := reports.AdjustmentTotals(adjustments)
	return AdjustmentsView{Adjustments: adjustments, Totals: totals, Balanced: totals.Balanced()}, nil
}

// AddAdjustment appends an adjustment. A missing account name is taken from
// the trial balance account with the same number.
func (s *Service) AddAdjustment(ctx context.Context, in AdjustmentInput) (accounting.AdjustmentEntry, error) {
	if err := s.validate.Struct(in); err != nil {
		return accounting.AdjustmentEntry{}, validationError(err)
	}
	adj := accounting.AdjustmentEntry{
		ID:               s.newID(),
		Date:             in.Date,
		AccountNumber:    in.AccountNumber,
		AccountName:      in.AccountName,
		Description:      in.Description,
		AdjustmentDebit:  in.AdjustmentDebit,
		AdjustmentCredit: in.AdjustmentCredit,
	}
	if adj.Date == "" {
		adj.Date = accounting.FormatDate(s.now())
	}
	err := s.mutateAdjustments(ctx, func(snap Snapshot) ([]accounting.AdjustmentEntry, error) {
		if adj.AccountName == "" {
			adj.AccountName = accountName(snap.Entries, adj.AccountNumber)
		}
		return append(snap.Adjustments, adj), nil
	})
	if err != nil {
		return accounting.AdjustmentEntry{}, err
	}
	return adj, nil
}

// UpdateAdjustment patches the adjustment with the given id. Changing the
// account number without a name refreshes the name from the trial balance.
func (s *Service) UpdateAdjustment(ctx context.Context, id string, patch AdjustmentPatch) (accounting.AdjustmentEntry, error) {
	if err := s.validate.Struct(patch); err != nil {
		return accounting.AdjustmentEntry{}, validationError(err)
	}
	var updated accounting.AdjustmentEntry
	err := s.mutateAdjustments(ctx, func(snap Snapshot) ([]accounting.AdjustmentEntry, error) {
		for i := range snap.Adjustments {
			adj := &snap.Adjustments[i]
			if adj.ID != id {
				continue
			}
			patch.apply(adj)
			if patch.AccountNumber != nil && patch.AccountName == nil {
				if name := accountName(snap.Entries, adj.AccountNumber); name != "" {
					adj.AccountName = name
				}
			}
			updated = *adj
			return snap.Adjustments, nil
		}
		return nil, fmt.Errorf("%w: %s", shared.ErrAdjustmentNotFound, id)
	})
	return updated, err
}

// RemoveAdjustment deletes the adjustment with the given id.
func (s *Service) RemoveAdjustment(ctx context.Context, id string) error {
	return s.mutateAdjustments(ctx, func(snap Snapshot) ([]accounting.AdjustmentEntry, error) {
		for i := range snap.Adjustments {
			if snap.Adjustments[i].ID == id {
				return append(snap.Adjustments[:i], snap.Adjustments[i+1:]...), nil
			}
		}
		return nil, fmt.Errorf("%w: %s", shared.ErrAdjustmentNotFound, id)
	})
}

// AdjustedTrialBalance returns the trial balance with adjustments merged in.
func (s *Service) AdjustedTrialBalance(ctx context.Context) (reports.TrialBalance, error) {
	var view reports.TrialBalance
	err := s.cached(ctx, "adjusted", &view, func(snap Snapshot) any {
		return reports.BuildTrialBalance(reports.BuildAdjustedTrialBalance(snap.Entries, snap.Adjustments))
	})
	return view, err
}

// Comparison returns the original vs adjusted comparison.
func (s *Service) Comparison(ctx context.Context) (ComparisonView, error) {
	var view ComparisonView
	err := s.cached(ctx, "comparison", &view, func(snap Snapshot) any {
		return buildComparison(snap)
	})
	return view, err
}

// Journal returns the adjustments grouped by description.
func (s *Service) Journal(ctx context.Context) ([]reports.JournalGroup, error) {
	var groups []reports.JournalGroup
	err := s.cached(ctx, "journal", &groups, func(snap Snapshot) any {
		return reports.GroupJournal(snap.Adjustments)
	})
	return groups, err
}

// ApplyAdjustments replaces the trial balance with the adjusted trial
// balance. Unbalanced adjustments are rejected and nothing is written.
func (s *Service) ApplyAdjustments(ctx context.Context) (ApplyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.repo.Load(ctx)
	if err != nil {
		s.observeApply(ApplyFailed)
		return ApplyResult{}, err
	}
	adjTotals, err := reports.CheckAdjustmentBalance(snap.Adjustments)
	if err != nil {
		s.observeApply(ApplyUnbalanced)
		s.logger.Warn("apply rejected", slog.Any("error", err))
		return ApplyResult{}, err
	}
	adjusted := reports.BuildAdjustedTrialBalance(snap.Entries, snap.Adjustments)
	if err := s.repo.SaveTrialBalance(ctx, adjusted); err != nil {
		s.observeApply(ApplyFailed)
		return ApplyResult{}, err
	}
	s.invalidate(ctx)
	s.observeApply(ApplyApplied)

	totals := reports.TrialBalanceTotals(adjusted)
	event := events.AdjustmentsApplied{
		AppliedAt:       s.now().UTC(),
		AdjustmentCount: len(snap.Adjustments),
		AccountCount:    len(adjusted),
		TotalDebit:      adjTotals.Debit,
		TotalCredit:     adjTotals.Credit,
	}
	if err := s.publisher.Publish(ctx, events.TypeAdjustmentsApplied, event); err != nil {
		s.logger.Error("publish adjustments applied", slog.Any("error", err))
	}
	s.logger.Info("adjustments applied",
		slog.Int("adjustments", len(snap.Adjustments)),
		slog.Int("accounts", len(adjusted)))
	return ApplyResult{Entries: adjusted, Totals: totals}, nil
}

// CheckIntegrity fails with shared.ErrUnbalancedTrialBalance when the trial
// balance totals disagree beyond tolerance.
func (s *Service) CheckIntegrity(ctx context.Context) (reports.Totals, error) {
	entries, err := s.repo.LoadTrialBalance(ctx)
	if err != nil {
		return reports.Totals{}, err
	}
	totals := reports.TrialBalanceTotals(entries)
	if !totals.Balanced() {
		return totals, fmt.Errorf("%w: debit %s, credit %s",
			shared.ErrUnbalancedTrialBalance, totals.Debit.StringFixed(2), totals.Credit.StringFixed(2))
	}
	return totals, nil
}

// Export renders view as CSV into w.
func (s *Service) Export(ctx context.Context, view export.View, w io.Writer) (err error) {
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveExport(string(view), err)
		}
	}()
	snap, err := s.repo.Load(ctx)
	if err != nil {
		return err
	}
	switch view {
	case export.ViewTrialBalance:
		return export.WriteTrialBalanceCSV(w, snap.Entries)
	case export.ViewLedger:
		return export.WriteLedgerCSV(w, reports.BuildLedger(snap.Entries))
	case export.ViewAdjusted:
		return export.WriteComparisonCSV(w, buildComparison(snap).Rows)
	case export.ViewJournal:
		return export.WriteJournalCSV(w, reports.GroupJournal(snap.Adjustments))
	}
	return fmt.Errorf("%w: %q", shared.ErrUnknownView, view)
}

// StoreExport renders view and keeps the CSV in the snapshot store.
func (s *Service) StoreExport(ctx context.Context, view export.View) (int, error) {
	var buf bytes.Buffer
	if err := s.Export(ctx, view, &buf); err != nil {
		return 0, err
	}
	if err := s.repo.SaveExport(ctx, string(view), buf.Bytes()); err != nil {
		return 0, err
	}
	return buf.Len(), nil
}

// StoredExport returns the last CSV kept by StoreExport.
func (s *Service) StoredExport(ctx context.Context, view export.View) ([]byte, error) {
	return s.repo.LoadExport(ctx, string(view))
}

func buildComparison(snap Snapshot) ComparisonView {
	adjusted := reports.BuildAdjustedTrialBalance(snap.Entries, snap.Adjustments)
	rows := reports.BuildComparison(snap.Entries, adjusted)
	return ComparisonView{Rows: rows, Totals: reports.SumComparison(rows)}
}

func (s *Service) mutateEntries(ctx context.Context, fn func([]accounting.TrialBalanceEntry) ([]accounting.TrialBalanceEntry, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.repo.LoadTrialBalance(ctx)
	if err != nil {
		return err
	}
	next, err := fn(entries)
	if err != nil {
		return err
	}
	if err := s.repo.SaveTrialBalance(ctx, next); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *Service) mutateAdjustments(ctx context.Context, fn func(Snapshot) ([]accounting.AdjustmentEntry, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.repo.Load(ctx)
	if err != nil {
		return err
	}
	next, err := fn(snap)
	if err != nil {
		return err
	}
	if err := s.repo.SaveAdjustments(ctx, next); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// cached serves a derived view from the view cache, building it from a
// fresh snapshot on a miss.
func (s *Service) cached(ctx context.Context, name string, dest any, build func(Snapshot) any) error {
	key, err := s.cache.Key(ctx, name)
	if err != nil {
		s.logger.Warn("view cache unavailable", slog.String("view", name), slog.Any("error", err))
		snap, lerr := s.repo.Load(ctx)
		if lerr != nil {
			return lerr
		}
		return roundTrip(build(snap), dest)
	}
	return s.cache.FetchJSON(ctx, key, dest, func(ctx context.Context) (any, error) {
		snap, err := s.repo.Load(ctx)
		if err != nil {
			return nil, err
		}
		return build(snap), nil
	})
}

func (s *Service) invalidate(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("view cache bump failed", slog.Any("error", err))
	}
}

func (s *Service) observeApply(outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveApply(outcome)
	}
}

func accountName(entries []accounting.TrialBalanceEntry, number string) string {
	for _, acc := range reports.Accounts(entries) {
		if acc.Number == number {
			return acc.Name
		}
	}
	return ""
}
