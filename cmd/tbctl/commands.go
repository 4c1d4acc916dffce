package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/odyssey-erp/trialbalance/internal/accounting/books"
	"github.com/odyssey-erp/trialbalance/internal/accounting/export"
	"github.com/odyssey-erp/trialbalance/internal/accounting/reports"
)

// environment carries what every command needs to reach the books.
type environment struct {
	open   func(context.Context) (*books.Service, func(), error)
	out    io.Writer
	errOut io.Writer
}

func commands(env *environment) []subcommands.Command {
	return []subcommands.Command{
		&summaryCmd{env: env},
		&ledgerCmd{env: env},
		&exportCmd{env: env},
		&applyCmd{env: env},
		&resetCmd{env: env},
		&checkCmd{env: env},
	}
}

// run opens the service, hands it to fn and reports failures.
func (e *environment) run(ctx context.Context, fn func(*books.Service) error) subcommands.ExitStatus {
	svc, closeFn, err := e.open(ctx)
	if err != nil {
		fmt.Fprintln(e.errOut, "open books:", err)
		return subcommands.ExitFailure
	}
	defer closeFn()
	if err := fn(svc); err != nil {
		fmt.Fprintln(e.errOut, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type summaryCmd struct{ env *environment }

func (*summaryCmd) Name() string     { return "summary" }
func (*summaryCmd) Synopsis() string { return "print trial balance and adjustment totals" }
func (*summaryCmd) Usage() string {
	return `tbctl summary

  Prints the number of entries, debit and credit totals and the balance
  status of the trial balance and of the pending adjustments.
`
}
func (*summaryCmd) SetFlags(*flag.FlagSet) {}

func (c *summaryCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.env.run(ctx, func(svc *books.Service) error {
		tb, err := svc.TrialBalance(ctx)
		if err != nil {
			return err
		}
		adj, err := svc.Adjustments(ctx)
		if err != nil {
			return err
		}
		p := message.NewPrinter(language.English)
		printTotals(p, c.env.out, "Trial balance", len(tb.Entries), tb.Totals)
		printTotals(p, c.env.out, "Adjustments", len(adj.Adjustments), adj.Totals)
		return nil
	})
}

func printTotals(p *message.Printer, w io.Writer, title string, count int, totals reports.Totals) {
	status := "balanced"
	if !totals.Balanced() {
		status = "NOT balanced, difference " + money(totals.Difference())
	}
	p.Fprintf(w, "%s: %d entries\n", title, count)
	p.Fprintf(w, "  Debit   %s\n", money(totals.Debit))
	p.Fprintf(w, "  Credit  %s\n", money(totals.Credit))
	p.Fprintf(w, "  Status  %s\n", status)
}

// money renders d with two decimals and English digit grouping without
// passing through float64.
func money(d decimal.Decimal) string {
	fixed := d.StringFixed(2)
	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign, fixed = "-", fixed[1:]
	}
	whole, frac, _ := strings.Cut(fixed, ".")
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return sign + b.String() + "." + frac
}

type ledgerCmd struct {
	env     *environment
	account string
}

func (*ledgerCmd) Name() string     { return "ledger" }
func (*ledgerCmd) Synopsis() string { return "print the general ledger with running balances" }
func (*ledgerCmd) Usage() string {
	return `tbctl ledger [-account <number>]
`
}

func (c *ledgerCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.account, "account", "", "Only print this account number.")
}

func (c *ledgerCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.env.run(ctx, func(svc *books.Service) error {
		ledger, err := svc.Ledger(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(c.env.out, 0, 4, 2, ' ', tabwriter.AlignRight)
		for _, acc := range ledger.Accounts {
			if c.account != "" && acc.AccountNumber != c.account {
				continue
			}
			fmt.Fprintf(tw, "%s %s\t\t\t\t\n", acc.AccountNumber, acc.AccountName)
			for _, item := range acc.Entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t\n",
					item.Date, item.Reference,
					item.Debit.StringFixed(2), item.Credit.StringFixed(2), item.Balance.StringFixed(2))
			}
		}
		return tw.Flush()
	})
}

type exportCmd struct {
	env    *environment
	view   string
	output string
}

func (*exportCmd) Name() string     { return "export" }
func (*exportCmd) Synopsis() string { return "write a view as CSV" }
func (*exportCmd) Usage() string {
	return `tbctl export -view <trial-balance|ledger|adjusted|journal> [-o <file>]
`
}

func (c *exportCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.view, "view", string(export.ViewTrialBalance), "View to export.")
	f.StringVar(&c.output, "o", "", "Output file. Defaults to stdout.")
}

func (c *exportCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	view, err := export.ParseView(c.view)
	if err != nil {
		fmt.Fprintln(c.env.errOut, err)
		return subcommands.ExitUsageError
	}
	return c.env.run(ctx, func(svc *books.Service) error {
		if c.output == "" {
			return svc.Export(ctx, view, c.env.out)
		}
		f, err := os.Create(c.output)
		if err != nil {
			return err
		}
		if err := svc.Export(ctx, view, f); err != nil {
			_ = f.Close()
			return err
		}
		return f.Close()
	})
}

type applyCmd struct{ env *environment }

func (*applyCmd) Name() string     { return "apply" }
func (*applyCmd) Synopsis() string { return "replace the trial balance with the adjusted trial balance" }
func (*applyCmd) Usage() string {
	return `tbctl apply

  Fails without changes when adjustment debits and credits differ by more
  than 0.01.
`
}
func (*applyCmd) SetFlags(*flag.FlagSet) {}

func (c *applyCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.env.run(ctx, func(svc *books.Service) error {
		result, err := svc.ApplyAdjustments(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.env.out, "applied: %d accounts, debit %s, credit %s\n",
			len(result.Entries), result.Totals.Debit.StringFixed(2), result.Totals.Credit.StringFixed(2))
		return nil
	})
}

type resetCmd struct{ env *environment }

func (*resetCmd) Name() string           { return "reset" }
func (*resetCmd) Synopsis() string       { return "restore the default trial balance" }
func (*resetCmd) Usage() string          { return "tbctl reset\n" }
func (*resetCmd) SetFlags(*flag.FlagSet) {}

func (c *resetCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.env.run(ctx, func(svc *books.Service) error {
		entries, err := svc.ResetTrialBalance(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.env.out, "reset: %d entries\n", len(entries))
		return nil
	})
}

type checkCmd struct{ env *environment }

func (*checkCmd) Name() string           { return "check" }
func (*checkCmd) Synopsis() string       { return "exit non-zero when the trial balance does not balance" }
func (*checkCmd) Usage() string          { return "tbctl check\n" }
func (*checkCmd) SetFlags(*flag.FlagSet) {}

func (c *checkCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.env.run(ctx, func(svc *books.Service) error {
		totals, err := svc.CheckIntegrity(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.env.out, "balanced: %s\n", totals.Debit.StringFixed(2))
		return nil
	})
}
