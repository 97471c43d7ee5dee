package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/migadu/sera/config"
	"github.com/migadu/sera/db"
	"github.com/migadu/sera/engine"
	"github.com/migadu/sera/helpers"
	"github.com/migadu/sera/mailer"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "list-scheduled":
		handleListScheduled()
	case "run-sweep":
		handleRunSweep()
	case "show-logs":
		handleShowLogs()
	case "purge":
		handlePurge()
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: sera-admin <command> [options]

Commands:
  list-scheduled   List pending scheduled replies
  run-sweep        Run one sweep now, for all rules or a single rule
  show-logs        Show recent reply log entries
  purge            Delete reply logs and terminal scheduled replies past a retention window
  help             Show this help

Common options:
  --config <path>  Path to the TOML configuration file (default "config.toml")

Run 'sera-admin <command> --help' for command-specific options.`)
}

func openDatabase(fs *flag.FlagSet, args []string) (*db.Database, *config.Config) {
	configPath := fs.String("config", "config.toml", "Path to TOML configuration file")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg := config.NewDefaultConfig()
	if _, err := config.Load(*configPath, &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	database, err := db.NewDatabaseFromConfig(context.Background(), &cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	return database, &cfg
}

func handleListScheduled() {
	fs := flag.NewFlagSet("list-scheduled", flag.ExitOnError)
	limit := fs.Int("limit", 100, "Maximum rows to list")
	database, _ := openDatabase(fs, os.Args[2:])
	defer database.Close()

	pending, err := database.ListPendingScheduledReplies(context.Background(), *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to list scheduled replies: %v\n", err)
		os.Exit(1)
	}

	if len(pending) == 0 {
		fmt.Println("No pending scheduled replies.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tRULE\tUSER\tMESSAGE\tFIRES AT")
	for _, s := range pending {
		fmt.Fprintf(w, "%d\t%d\t%d\t%s\t%s\n",
			s.ID, s.RuleID, s.UserID, s.ProviderMessageID,
			s.ScheduledAt.Format(time.RFC3339))
	}
	w.Flush()
}

func handleRunSweep() {
	fs := flag.NewFlagSet("run-sweep", flag.ExitOnError)
	ruleID := fs.Int64("rule", 0, "Sweep only this rule id (0 = all active rules)")
	database, cfg := openDatabase(fs, os.Args[2:])
	defer database.Close()

	messenger := mailer.New(&cfg.Mailer, database)
	eng := engine.New(database, messenger, nil, engine.Options{
		CandidateBatchSize: cfg.Engine.GetCandidateBatchSize(),
	})
	defer eng.Stop()

	counts, err := eng.RunSweep(context.Background(), *ruleID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sweep failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Sweep complete: processed=%d sent=%d skipped=%d failed=%d not_matched=%d\n",
		counts.Processed, counts.Sent, counts.Skipped, counts.Failed, counts.NotMatched)
}

func handleShowLogs() {
	fs := flag.NewFlagSet("show-logs", flag.ExitOnError)
	hours := fs.Int("hours", 24, "Show entries from the last N hours")
	limit := fs.Int("limit", 200, "Maximum rows to show")
	database, _ := openDatabase(fs, os.Args[2:])
	defer database.Close()

	since := time.Now().UTC().Add(-time.Duration(*hours) * time.Hour)
	logs, err := database.ListRecentReplyLogs(context.Background(), since, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to list reply logs: %v\n", err)
		os.Exit(1)
	}

	if len(logs) == 0 {
		fmt.Printf("No reply log entries in the last %d hours.\n", *hours)
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tRULE\tRECIPIENT\tSTATUS\tREASON\tCREATED")
	for _, l := range logs {
		reason := l.SkipReason
		if reason == "" {
			reason = l.ErrorMessage
		}
		fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\t%s\n",
			l.ID, l.RuleID, l.Recipient, l.Status, reason,
			l.CreatedAt.Format(time.RFC3339))
	}
	w.Flush()
}

func handlePurge() {
	fs := flag.NewFlagSet("purge", flag.ExitOnError)
	olderThan := fs.String("older-than", "90d", "Retention window, e.g. 30d or 720h")
	database, cfg := openDatabase(fs, os.Args[2:])
	defer database.Close()

	window, err := helpers.ParseDuration(*olderThan)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid --older-than value: %v\n", err)
		os.Exit(1)
	}

	messenger := mailer.New(&cfg.Mailer, database)
	eng := engine.New(database, messenger, nil, engine.Options{})
	defer eng.Stop()

	if err := eng.RunPurge(context.Background(), window); err != nil {
		fmt.Fprintf(os.Stderr, "purge failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Purge complete.")
}
