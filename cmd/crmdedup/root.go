package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/halvari/crmdedup/internal/config"
	"github.com/halvari/crmdedup/internal/crm"
	"github.com/halvari/crmdedup/internal/logging"
	"github.com/halvari/crmdedup/internal/types"
)

var (
	cfgFile     string
	dbPath      string
	logLevel    string
	concurrency int
)

var rootCmd = &cobra.Command{
	Use:   "crmdedup",
	Short: "Find and merge duplicate company records in HubSpot",
	Long: `crmdedup finds duplicate company records in a HubSpot portal and merges
them safely.

Duplicates are found two ways: deterministic matching on normalized keys
(domain, company name, business ID, contact email domain) and fuzzy name
similarity with blocking. Before anything is touched, every candidate is
resolved through merged-record forwarding chains, so merge plans are built
against live canonical records only.

Nothing mutates without --apply: the default merge mode is a dry run that
writes the same reports and audit rows a real run would. Reports go to
stdout (or -o <file>); diagnostics and progress go to stderr.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default crmdedup.yaml; a missing default is fine)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", config.DefaultDBPath, "audit database path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", config.DefaultLogLevel, "log level: debug, info, warn, or error")
	rootCmd.PersistentFlags().IntVar(&concurrency, "concurrency", 4, "merge plans processed in parallel")
}

// loadConfig resolves the layered configuration and applies the root flag
// overrides on top. Flags beat environment beats file beats defaults.
func loadConfig() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, nil, err
	}

	flags := rootCmd.PersistentFlags()
	if flags.Changed("db") {
		cfg.DBPath = dbPath
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("concurrency") {
		cfg.Merge.Concurrency = concurrency
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, err
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	zap.ReplaceGlobals(logger)
	return cfg, logger, nil
}

// signalContext returns a context canceled by the first SIGINT or SIGTERM.
// The handler is removed after firing, so a second signal terminates the
// process the usual way instead of waiting for a graceful stop.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			fmt.Fprintf(os.Stderr, "\nReceived %v, finishing in-flight work...\n", sig)
			signal.Stop(sigCh)
			cancel()
		case <-ctx.Done():
			signal.Stop(sigCh)
		}
	}()
	return ctx, cancel
}

// fetchRecords drains the full company snapshot into memory. Matching and
// planning work on this snapshot; only the executor goes back to the store.
func fetchRecords(ctx context.Context, store crm.RecordStore, logger *zap.Logger) ([]types.Record, error) {
	var records []types.Record
	err := store.FetchAll(ctx, func(page []types.Record) error {
		records = append(records, page...)
		logger.Debug("fetched page", zap.Int("page_size", len(page)), zap.Int("total", len(records)))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetching companies: %w", err)
	}
	return records, nil
}

// writeReport writes one report to path, or to stdout when path is empty.
func writeReport(path string, write func(w io.Writer) error) error {
	if path == "" {
		return write(os.Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	return nil
}
