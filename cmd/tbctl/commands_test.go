package main

import (
	"bytes"
	"context"
	"flag"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/trialbalance/internal/accounting/books"
	"github.com/odyssey-erp/trialbalance/internal/platform/kv"
	_ "github.com/odyssey-erp/trialbalance/testing"
)

type harness struct {
	svc    *books.Service
	out    *bytes.Buffer
	errOut *bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := books.NewService(books.NewRepository(kv.NewMemoryStore(), logger), nil, nil, logger)
	return &harness{svc: svc, out: &bytes.Buffer{}, errOut: &bytes.Buffer{}}
}

func (h *harness) run(t *testing.T, args ...string) subcommands.ExitStatus {
	t.Helper()
	h.out.Reset()
	h.errOut.Reset()
	env := &environment{
		open: func(context.Context) (*books.Service, func(), error) {
			return h.svc, func() {}, nil
		},
		out:    h.out,
		errOut: h.errOut,
	}
	fs := flag.NewFlagSet("tbctl", flag.ContinueOnError)
	cdr := subcommands.NewCommander(fs, "tbctl")
	for _, c := range commands(env) {
		cdr.Register(c, "")
	}
	require.NoError(t, fs.Parse(args))
	return cdr.Execute(context.Background())
}

func TestSummary(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, subcommands.ExitSuccess, h.run(t, "summary"))
	out := h.out.String()
	assert.Contains(t, out, "Trial balance: 6 entries")
	assert.Contains(t, out, "15,000.00")
	assert.Contains(t, out, "Adjustments: 0 entries")
	assert.NotContains(t, out, "NOT balanced")
}

func TestApplyCommand(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.svc.AddAdjustment(ctx, books.AdjustmentInput{AccountNumber: "1000", AdjustmentDebit: decimal.NewFromInt(1000)})
	require.NoError(t, err)
	_, err = h.svc.AddAdjustment(ctx, books.AdjustmentInput{AccountNumber: "2000", AdjustmentCredit: decimal.NewFromInt(999)})
	require.NoError(t, err)

	require.Equal(t, subcommands.ExitFailure, h.run(t, "apply"))
	assert.Contains(t, h.errOut.String(), "equal debits and credits")

	require.Equal(t, subcommands.ExitSuccess, h.run(t, "summary"))
	assert.Contains(t, h.out.String(), "NOT balanced, difference 1.00")

	_, err = h.svc.AddAdjustment(ctx, books.AdjustmentInput{AccountNumber: "2000", AdjustmentCredit: decimal.NewFromInt(1)})
	require.NoError(t, err)
	require.Equal(t, subcommands.ExitSuccess, h.run(t, "apply"))
	assert.Equal(t, "applied: 6 accounts, debit 16000.00, credit 16000.00\n", h.out.String())
}

func TestLedgerCommand(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, subcommands.ExitSuccess, h.run(t, "ledger", "-account", "1000"))
	out := h.out.String()
	assert.Contains(t, out, "1000 Cash")
	assert.Contains(t, out, "5000.00")
	assert.NotContains(t, out, "Capital")
}

func TestExportCommand(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, subcommands.ExitSuccess, h.run(t, "export", "-view", "journal"))
	assert.Equal(t, "Description,Date,Account Number,Account Name,Debit,Credit\nTotal,,,,0.00,0.00\n", h.out.String())

	path := filepath.Join(t.TempDir(), "tb.csv")
	require.Equal(t, subcommands.ExitSuccess, h.run(t, "export", "-o", path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "Date,Account Number,Account Name,Reference,Debit,Credit\n"))

	require.Equal(t, subcommands.ExitUsageError, h.run(t, "export", "-view", "cash-flow"))
	assert.Contains(t, h.errOut.String(), "unknown export view")
}

func TestResetAndCheck(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.svc.AddEntry(ctx, books.EntryInput{AccountNumber: "9000", Debit: decimal.NewFromInt(5)})
	require.NoError(t, err)

	require.Equal(t, subcommands.ExitFailure, h.run(t, "check"))
	assert.Contains(t, h.errOut.String(), "not balanced")

	require.Equal(t, subcommands.ExitSuccess, h.run(t, "reset"))
	assert.Equal(t, "reset: 6 entries\n", h.out.String())

	require.Equal(t, subcommands.ExitSuccess, h.run(t, "check"))
	assert.Equal(t, "balanced: 15000.00\n", h.out.String())
}

func TestMoneyKeepsLargeAmountsExact(t *testing.T) {
	cases := map[string]string{
		"0":                     "0.00",
		"999.5":                 "999.50",
		"-1234.5":               "-1,234.50",
		"123456789012345678.91": "123,456,789,012,345,678.91",
		"90071992547409931.07":  "90,071,992,547,409,931.07",
	}
	for in, want := range cases {
		assert.Equal(t, want, money(decimal.RequireFromString(in)), in)
	}
}
