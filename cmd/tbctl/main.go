// Command tbctl inspects and maintains the trial balance from the shell.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"path"

	"github.com/google/subcommands"
	"github.com/joho/godotenv"

	"github.com/odyssey-erp/trialbalance/internal/accounting/books"
	"github.com/odyssey-erp/trialbalance/internal/app"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Default().Warn("load .env", slog.Any("error", err))
	}

	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")

	env := &environment{open: openConfigured, out: os.Stdout, errOut: os.Stderr}
	for _, c := range commands(env) {
		commander.Register(c, "books")
	}

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}

// openConfigured builds the books service from the environment configuration.
func openConfigured(ctx context.Context) (*books.Service, func(), error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	res, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return res.BooksService(cfg, logger), res.Close, nil
}
