package books

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/trialbalance/internal/accounting"
	"github.com/odyssey-erp/trialbalance/internal/platform/kv"
)

// Snapshot keys shared with every store driver.
const (
	TrialBalanceKey = "trial-balance-data"
	AdjustmentsKey  = "trial-balance-adjustments"
)

// Snapshot is the persisted state of the books.
type Snapshot struct {
	Entries     []accounting.TrialBalanceEntry
	Adjustments []accounting.AdjustmentEntry
}

// Repository reads and writes JSON snapshots through a key-value store.
type Repository struct {
	store  kv.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewRepository builds a snapshot repository.
func NewRepository(store kv.Store, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{store: store, logger: logger, now: time.Now}
}

// WithNow overrides the clock used for date back-fill and seeding.
func (r *Repository) WithNow(now func() time.Time) {
	if now != nil {
		r.now = now
	}
}

// Load reads both snapshots concurrently.
func (r *Repository) Load(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		entries, err := r.LoadTrialBalance(ctx)
		snap.Entries = entries
		return err
	})
	g.Go(func() error {
		adjustments, err := r.LoadAdjustments(ctx)
		snap.Adjustments = adjustments
		return err
	})
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// LoadTrialBalance returns the stored entries. A missing or unreadable
// snapshot yields the seed trial balance. Entries without a date get today.
func (r *Repository) LoadTrialBalance(ctx context.Context) ([]accounting.TrialBalanceEntry, error) {
	today := accounting.FormatDate(r.now())
	raw, err := r.store.Get(ctx, TrialBalanceKey)
	if errors.Is(err, kv.ErrNotFound) {
		return accounting.SeedTrialBalance(today), nil
	}
	if err != nil {
		return nil, fmt.Errorf("books: load trial balance: %w", err)
	}
	var entries []accounting.TrialBalanceEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		r.logger.Warn("trial balance snapshot unreadable, using seed data", slog.Any("error", err))
		return accounting.SeedTrialBalance(today), nil
	}
	if entries == nil {
		entries = []accounting.TrialBalanceEntry{}
	}
	for i := range entries {
		if entries[i].Date == "" {
			entries[i].Date = today
		}
	}
	return entries, nil
}

// LoadAdjustments returns the stored adjustments. A missing or unreadable
// snapshot yields an empty collection. Adjustments without a date get today.
func (r *Repository) LoadAdjustments(ctx context.Context) ([]accounting.AdjustmentEntry, error) {
	raw, err := r.store.Get(ctx, AdjustmentsKey)
	if errors.Is(err, kv.ErrNotFound) {
		return []accounting.AdjustmentEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("books: load adjustments: %w", err)
	}
	var adjustments []accounting.AdjustmentEntry
	if err := json.Unmarshal(raw, &adjustments); err != nil {
		r.logger.Warn("adjustments snapshot unreadable, starting empty", slog.Any("error", err))
		return []accounting.AdjustmentEntry{}, nil
	}
	if adjustments == nil {
		return []accounting.AdjustmentEntry{}, nil
	}
	today := accounting.FormatDate(r.now())
	for i := range adjustments {
		if adjustments[i].Date == "" {
			adjustments[i].Date = today
		}
	}
	return adjustments, nil
}

// SaveTrialBalance overwrites the trial balance snapshot.
func (r *Repository) SaveTrialBalance(ctx context.Context, entries []accounting.TrialBalanceEntry) error {
	return r.save(ctx, TrialBalanceKey, entries)
}

// SaveAdjustments overwrites the adjustments snapshot.
func (r *Repository) SaveAdjustments(ctx context.Context, adjustments []accounting.AdjustmentEntry) error {
	return r.save(ctx, AdjustmentsKey, adjustments)
}

// SaveExport stores a rendered export under exports:<name>.
func (r *Repository) SaveExport(ctx context.Context, name string, payload []byte) error {
	if err := r.store.Set(ctx, ExportKey(name), payload); err != nil {
		return fmt.Errorf("books: save export %s: %w", name, err)
	}
	return nil
}

// LoadExport returns a stored export or kv.ErrNotFound.
func (r *Repository) LoadExport(ctx context.Context, name string) ([]byte, error) {
	return r.store.Get(ctx, ExportKey(name))
}

// ExportKey names the store key of a rendered export.
func ExportKey(name string) string {
	return "exports:" + name
}

func (r *Repository) save(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("books: encode %s: %w", key, err)
	}
	if err := r.store.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("books: save %s: %w", key, err)
	}
	return nil
}
