// Package main is the operator CLI for the delivery engine.
// Usage: deliveryctl <command> [flags]
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"guest-delivery/internal/app"
	"guest-delivery/internal/infra/db"
	"guest-delivery/internal/observability/logging"
)

// command is one subcommand. needsApp commands get the wired services; the rest only a database.
type command struct {
	summary  string
	needsApp bool
	run      func(ctx context.Context, env *cliEnv, args []string) error
}

// cliEnv is what a subcommand runs against.
type cliEnv struct {
	logger *slog.Logger
	db     *sql.DB
	app    *app.App
	out    io.Writer
	errOut io.Writer
}

var commands = map[string]command{
	"send":          {summary: "deliver a message now", needsApp: true, run: runSend},
	"enqueue":       {summary: "queue a message for the worker", needsApp: true, run: runEnqueue},
	"stats":         {summary: "print queue counts by status", needsApp: true, run: runStats},
	"status":        {summary: "print a queued message and its receipt", needsApp: true, run: runStatus},
	"ledger-send":   {summary: "send an invitation to recipients", needsApp: true, run: runLedgerSend},
	"ledger-retry":  {summary: "retry a failed ledger entry", needsApp: true, run: runLedgerRetry},
	"mark-external": {summary: "log an invitation sent outside the system", needsApp: true, run: runMarkExternal},
	"record-phones": {summary: "record phone contacts of a ledger entry", needsApp: true, run: runRecordPhones},
	"migrate":       {summary: "apply (up) or roll back (down) the schema", run: runMigrate},
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: deliveryctl <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-14s %s\n", name, commands[name].summary)
	}
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Run 'deliveryctl <command> -h' for the flags of a command.")
}

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}
	cmd, ok := commands[os.Args[1]]
	if !ok {
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", os.Args[1])
		usage(os.Stderr)
		os.Exit(2)
	}

	_ = godotenv.Load()
	logger := logging.NewTextLogger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	if err := execute(ctx, logger, cmd, os.Args[2:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %s\n", logging.SanitizeError(err))
		os.Exit(1)
	}
}

func execute(ctx context.Context, logger *slog.Logger, cmd command, args []string) error {
	database, err := db.Open(ctx, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()

	env := &cliEnv{logger: logger, db: database, out: os.Stdout, errOut: os.Stderr}
	if cmd.needsApp {
		a, err := app.New(ctx, logger, database, app.OptionsFromEnv(logger))
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()
		env.app = a
	}
	return cmd.run(ctx, env, args)
}
