package books

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/trialbalance/internal/accounting"
	"github.com/odyssey-erp/trialbalance/internal/accounting/export"
	"github.com/odyssey-erp/trialbalance/internal/accounting/shared"
	"github.com/odyssey-erp/trialbalance/internal/events"
	"github.com/odyssey-erp/trialbalance/internal/platform/kv"
	_ "github.com/odyssey-erp/trialbalance/testing"
)

var fixedNow = func() time.Time { return time.Date(2024, 3, 31, 9, 0, 0, 0, time.UTC) }

type recordingPublisher struct {
	mu     sync.Mutex
	events []any
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, payload)
	return nil
}

type recordingMetrics struct {
	applies []string
	exports []string
}

func (m *recordingMetrics) ObserveApply(outcome string)     { m.applies = append(m.applies, outcome) }
func (m *recordingMetrics) ObserveExport(view string, _ error) { m.exports = append(m.exports, view) }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	store     *kv.MemoryStore
	service   *Service
	publisher *recordingPublisher
	metrics   *recordingMetrics
}

func newFixture(t *testing.T, withCache bool) fixture {
	t.Helper()
	store := kv.NewMemoryStore()
	repo := NewRepository(store, discardLogger())

	var cache *ViewCache
	if withCache {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		cache = NewViewCache(client, "tb:memory:", time.Minute)
	}

	publisher := &recordingPublisher{}
	metrics := &recordingMetrics{}
	svc := NewService(repo, cache, publisher, discardLogger())
	svc.WithNow(fixedNow)
	svc.WithMetrics(metrics)
	return fixture{store: store, service: svc, publisher: publisher, metrics: metrics}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestRepositorySeedsMissingTrialBalance(t *testing.T) {
	repo := NewRepository(kv.NewMemoryStore(), discardLogger())
	repo.WithNow(fixedNow)

	entries, err := repo.LoadTrialBalance(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 6)
	assert.Equal(t, "2024-03-31", entries[0].Date)
	assert.Equal(t, "Cash", entries[0].AccountName)
}

func TestRepositoryFallsBackOnMalformedSnapshots(t *testing.T) {
	store := kv.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, TrialBalanceKey, []byte("{not json")))
	require.NoError(t, store.Set(ctx, AdjustmentsKey, []byte("[1,2")))
	repo := NewRepository(store, discardLogger())

	snap, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Entries, 6)
	assert.Empty(t, snap.Adjustments)
	assert.NotNil(t, snap.Adjustments)
}

func TestRepositoryBackfillsDatesWithoutPersisting(t *testing.T) {
	store := kv.NewMemoryStore()
	ctx := context.Background()
	raw := `[{"id":"a","accountNumber":"1000","accountName":"Cash","reference":"R","debit":10,"credit":0}]`
	require.NoError(t, store.Set(ctx, TrialBalanceKey, []byte(raw)))
	require.NoError(t, store.Set(ctx, AdjustmentsKey, []byte(`[{"id":"x","accountNumber":"1000","adjustmentDebit":1}]`)))
	repo := NewRepository(store, discardLogger())
	repo.WithNow(fixedNow)

	snap, err := repo.Load(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Entries, 1)
	assert.Equal(t, "2024-03-31", snap.Entries[0].Date)
	assert.True(t, snap.Entries[0].Debit.Equal(decimal.NewFromInt(10)))
	require.Len(t, snap.Adjustments, 1)
	assert.Equal(t, "2024-03-31", snap.Adjustments[0].Date)

	stored, err := store.Get(ctx, TrialBalanceKey)
	require.NoError(t, err)
	assert.Equal(t, raw, string(stored))
}

func TestRepositoryPersistsAmountsAsNumbers(t *testing.T) {
	store := kv.NewMemoryStore()
	repo := NewRepository(store, discardLogger())
	ctx := context.Background()
	require.NoError(t, repo.SaveTrialBalance(ctx, []accounting.TrialBalanceEntry{
		{ID: "1", Date: "2024-01-01", AccountNumber: "1000", AccountName: "Cash", Debit: dec("12.5")},
	}))
	raw, err := store.Get(ctx, TrialBalanceKey)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"debit":12.5`)
	assert.Contains(t, string(raw), `"accountNumber":"1000"`)
}

func TestApplyRejectsUnbalancedAdjustments(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	before, err := f.service.TrialBalance(ctx)
	require.NoError(t, err)

	_, err = f.service.AddAdjustment(ctx, AdjustmentInput{AccountNumber: "1000", AdjustmentDebit: dec("1000")})
	require.NoError(t, err)
	_, err = f.service.AddAdjustment(ctx, AdjustmentInput{AccountNumber: "2000", AdjustmentCredit: dec("999")})
	require.NoError(t, err)

	_, err = f.service.ApplyAdjustments(ctx)
	require.ErrorIs(t, err, shared.ErrUnbalancedAdjustments)
	assert.Contains(t, err.Error(), "1000.00")

	after, err := f.service.TrialBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(before.Entries), len(after.Entries))
	assert.Equal(t, []string{ApplyUnbalanced}, f.metrics.applies)
	assert.Empty(t, f.publisher.events)
}

func TestApplyReplacesTrialBalance(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	_, err := f.service.AddAdjustment(ctx, AdjustmentInput{
		Date: "2024-03-31", AccountNumber: "5000", AccountName: "Rent Expense",
		Description: "Accrue rent", AdjustmentDebit: dec("300"),
	})
	require.NoError(t, err)
	_, err = f.service.AddAdjustment(ctx, AdjustmentInput{
		Date: "2024-03-31", AccountNumber: "2000", Description: "Accrue rent", AdjustmentCredit: dec("300"),
	})
	require.NoError(t, err)

	result, err := f.service.ApplyAdjustments(ctx)
	require.NoError(t, err)
	require.Len(t, result.Entries, 7)
	assert.True(t, result.Totals.Balanced())
	assert.True(t, result.Totals.Debit.Equal(dec("15300")))

	tb, err := f.service.TrialBalance(ctx)
	require.NoError(t, err)
	byAccount := map[string]accounting.TrialBalanceEntry{}
	for _, e := range tb.Entries {
		assert.Equal(t, "ADJ", e.Reference)
		assert.Equal(t, e.AccountNumber, e.ID)
		byAccount[e.AccountNumber] = e
	}
	assert.True(t, byAccount["2000"].Credit.Equal(dec("2800")))
	assert.Equal(t, "Rent Expense", byAccount["5000"].AccountName)

	adjustments, err := f.service.Adjustments(ctx)
	require.NoError(t, err)
	assert.Len(t, adjustments.Adjustments, 2)

	require.Len(t, f.publisher.events, 1)
	event := f.publisher.events[0].(events.AdjustmentsApplied)
	assert.Equal(t, 2, event.AdjustmentCount)
	assert.True(t, event.TotalDebit.Equal(dec("300")))
	assert.Equal(t, []string{ApplyApplied}, f.metrics.applies)
}

func TestApplyAcceptsToleranceBoundary(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	_, err := f.service.AddAdjustment(ctx, AdjustmentInput{AccountNumber: "1000", AdjustmentDebit: dec("100.00")})
	require.NoError(t, err)
	_, err = f.service.AddAdjustment(ctx, AdjustmentInput{AccountNumber: "2000", AdjustmentCredit: dec("100.01")})
	require.NoError(t, err)

	_, err = f.service.ApplyAdjustments(ctx)
	require.NoError(t, err)
}

func TestAdjustmentAccountNameAutoFill(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	adj, err := f.service.AddAdjustment(ctx, AdjustmentInput{AccountNumber: "1000", AdjustmentDebit: dec("5")})
	require.NoError(t, err)
	assert.Equal(t, "Cash", adj.AccountName)
	assert.Equal(t, "2024-03-31", adj.Date)
	assert.NotEmpty(t, adj.ID)

	number := "1200"
	updated, err := f.service.UpdateAdjustment(ctx, adj.ID, AdjustmentPatch{AccountNumber: &number})
	require.NoError(t, err)
	assert.Equal(t, "Accounts Receivable", updated.AccountName)

	_, err = f.service.UpdateAdjustment(ctx, "missing", AdjustmentPatch{})
	require.ErrorIs(t, err, shared.ErrAdjustmentNotFound)

	require.NoError(t, f.service.RemoveAdjustment(ctx, adj.ID))
	require.ErrorIs(t, f.service.RemoveAdjustment(ctx, adj.ID), shared.ErrAdjustmentNotFound)
}

func TestEntryLifecycle(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	ledger, err := f.service.Ledger(ctx)
	require.NoError(t, err)
	require.Len(t, ledger.Accounts, 6)

	entry, err := f.service.AddEntry(ctx, EntryInput{AccountNumber: "1000", AccountName: "Cash", Reference: "GL7", Credit: dec("1000")})
	require.NoError(t, err)

	ledger, err = f.service.Ledger(ctx)
	require.NoError(t, err)
	cash := ledger.Accounts[0]
	require.Equal(t, "1000", cash.AccountNumber)
	require.Len(t, cash.Entries, 2)
	assert.True(t, cash.Entries[1].Balance.Equal(dec("4000")))

	debit := dec("250")
	updated, err := f.service.UpdateEntry(ctx, entry.ID, EntryPatch{Debit: &debit})
	require.NoError(t, err)
	assert.True(t, updated.Debit.Equal(debit))
	assert.True(t, updated.Credit.Equal(dec("1000")))

	_, err = f.service.UpdateEntry(ctx, "missing", EntryPatch{Debit: &debit})
	require.ErrorIs(t, err, shared.ErrEntryNotFound)

	require.NoError(t, f.service.RemoveEntry(ctx, entry.ID))
	tb, err := f.service.TrialBalance(ctx)
	require.NoError(t, err)
	assert.Len(t, tb.Entries, 6)
	assert.True(t, tb.Balanced)
}

func TestEntryValidation(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	_, err := f.service.AddEntry(ctx, EntryInput{AccountNumber: "1000", Debit: dec("-1")})
	require.ErrorIs(t, err, shared.ErrInvalidEntry)
	assert.Contains(t, err.Error(), "debit")

	_, err = f.service.AddEntry(ctx, EntryInput{AccountNumber: "1000", Date: "31/03/2024"})
	require.ErrorIs(t, err, shared.ErrInvalidEntry)

	negative := dec("-5")
	_, err = f.service.UpdateAdjustment(ctx, "x", AdjustmentPatch{AdjustmentCredit: &negative})
	require.ErrorIs(t, err, shared.ErrInvalidEntry)
}

func TestResetRestoresSeed(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	require.NoError(t, f.service.RemoveEntry(ctx, "1"))

	entries, err := f.service.ResetTrialBalance(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 6)

	raw, err := f.store.Get(ctx, TrialBalanceKey)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"id":"1"`)
}

func TestDerivedViews(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	_, err := f.service.AddAdjustment(ctx, AdjustmentInput{AccountNumber: "1000", Description: "Write-down", AdjustmentCredit: dec("500")})
	require.NoError(t, err)
	_, err = f.service.AddAdjustment(ctx, AdjustmentInput{AccountNumber: "3000", AdjustmentDebit: dec("500")})
	require.NoError(t, err)

	comparison, err := f.service.Comparison(ctx)
	require.NoError(t, err)
	require.Len(t, comparison.Rows, 6)
	assert.True(t, comparison.Rows[0].HasChanged)
	assert.True(t, comparison.Rows[0].CreditDifference.Equal(dec("500")))
	assert.True(t, comparison.Totals.Adjusted.Debit.Equal(dec("15500")))

	adjusted, err := f.service.AdjustedTrialBalance(ctx)
	require.NoError(t, err)
	assert.True(t, adjusted.Balanced)

	journal, err := f.service.Journal(ctx)
	require.NoError(t, err)
	require.Len(t, journal, 2)
	assert.Equal(t, "Write-down", journal[0].Description)
	assert.Equal(t, "Miscellaneous Adjustment", journal[1].Description)

	accounts, err := f.service.Accounts(ctx)
	require.NoError(t, err)
	assert.Len(t, accounts, 6)
}

func TestExportAndStoredExport(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	buf := &bytes.Buffer{}
	require.NoError(t, f.service.Export(ctx, export.ViewTrialBalance, buf))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 8)
	assert.Equal(t, "Total,,,,15000.00,15000.00", lines[7])

	err := f.service.Export(ctx, export.View("pl"), io.Discard)
	require.ErrorIs(t, err, shared.ErrUnknownView)

	_, err = f.service.StoredExport(ctx, export.ViewLedger)
	require.True(t, errors.Is(err, kv.ErrNotFound))

	n, err := f.service.StoreExport(ctx, export.ViewLedger)
	require.NoError(t, err)
	stored, err := f.service.StoredExport(ctx, export.ViewLedger)
	require.NoError(t, err)
	assert.Len(t, stored, n)
	assert.True(t, strings.HasPrefix(string(stored), "Date,Account Number"))
	assert.Equal(t, []string{"trial-balance", "pl", "ledger"}, f.metrics.exports)
}

func TestCheckIntegrity(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	totals, err := f.service.CheckIntegrity(ctx)
	require.NoError(t, err)
	assert.True(t, totals.Debit.Equal(dec("15000")))

	_, err = f.service.AddEntry(ctx, EntryInput{AccountNumber: "1000", Debit: dec("0.02")})
	require.NoError(t, err)
	_, err = f.service.CheckIntegrity(ctx)
	require.ErrorIs(t, err, shared.ErrUnbalancedTrialBalance)
}

func TestViewCacheSharesVersionAndBumps(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	cache := NewViewCache(client, "tb:postgres:", time.Minute)
	ctx := context.Background()

	key, err := cache.Key(ctx, "ledger")
	require.NoError(t, err)
	assert.Equal(t, "tb:postgres:books:views:ledger:1", key)

	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return []string{"a"}, nil
	}
	var out []string
	require.NoError(t, cache.FetchJSON(ctx, key, &out, loader))
	require.NoError(t, cache.FetchJSON(ctx, key, &out, loader))
	assert.Equal(t, 1, calls)
	assert.Equal(t, []string{"a"}, out)

	require.NoError(t, cache.Bump(ctx))
	key, err = cache.Key(ctx, "ledger")
	require.NoError(t, err)
	assert.Equal(t, "tb:postgres:books:views:ledger:2", key)
}

func TestViewCacheNamespacesDoNotShareViews(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	ctx := context.Background()
	server := NewViewCache(client, "tb:postgres:", time.Minute)
	cli := NewViewCache(client, "tb:memory:local:", time.Minute)

	key, err := server.Key(ctx, "ledger")
	require.NoError(t, err)
	var out []string
	require.NoError(t, server.FetchJSON(ctx, key, &out, func(context.Context) (any, error) {
		return []string{"server"}, nil
	}))

	key, err = cli.Key(ctx, "ledger")
	require.NoError(t, err)
	require.NoError(t, cli.FetchJSON(ctx, key, &out, func(context.Context) (any, error) {
		return []string{"cli"}, nil
	}))
	assert.Equal(t, []string{"cli"}, out)

	require.NoError(t, cli.Bump(ctx))
	ver, err := server.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), ver)
}

func TestNilViewCacheComputesDirectly(t *testing.T) {
	var cache *ViewCache
	ctx := context.Background()
	key, err := cache.Key(ctx, "journal")
	require.NoError(t, err)
	var out map[string]int
	require.NoError(t, cache.FetchJSON(ctx, key, &out, func(context.Context) (any, error) {
		return map[string]int{"n": 1}, nil
	}))
	assert.Equal(t, 1, out["n"])
	require.NoError(t, cache.Bump(ctx))
}
