// Command replay runs YAML ledger scenarios and reports every step outcome.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"crowdfund-ledger/internal/events"
	"crowdfund-ledger/internal/logger"
	"crowdfund-ledger/internal/replay"
	"crowdfund-ledger/internal/storage"
	chstore "crowdfund-ledger/internal/storage/clickhouse"
	"crowdfund-ledger/internal/storage/memory"
	"crowdfund-ledger/internal/storage/migrations"
	pgstore "crowdfund-ledger/internal/storage/postgres"
)

// errScenarioFailed is returned when at least one step missed its expectation.
var errScenarioFailed = errors.New("scenario failed")

var opts struct {
	envFile       string
	gateway       string
	auth          string
	postgresDSN   string
	clickhouseDSN string
	format        string
	logLevel      string
}

var rootCmd = &cobra.Command{
	Use:           "replay scenario.yaml [scenario.yaml...]",
	Short:         "Replay ledger scenarios on a controlled clock",
	Args:          cobra.MinimumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), cmd.OutOrStdout(), args)
	},
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the environment is parsed")
	f.StringVar(&opts.gateway, "gateway", "", "token gateway: memory or rpc (overrides CROWDFUND_GATEWAY)")
	f.StringVar(&opts.auth, "auth", "", "caller authorization: trusted or ed25519 (overrides CROWDFUND_AUTH)")
	f.StringVar(&opts.postgresDSN, "postgres-dsn", "", "replay against PostgreSQL instead of memory (expects an empty database)")
	f.StringVar(&opts.clickhouseDSN, "clickhouse-dsn", "", "also append replayed events to ClickHouse")
	f.StringVar(&opts.format, "format", "text", "output format: text, json or yaml")
	f.StringVar(&opts.logLevel, "log-level", "warn", "log level")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, out io.Writer, paths []string) error {
	log, err := logger.New(logger.Config{Level: opts.logLevel, Format: "console"})
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	gateway := newGateway(cfg)
	log.Info("replay starting",
		zap.String("gateway", cfg.Gateway.Mode),
		zap.String("auth", cfg.Auth),
		zap.Int("scenarios", len(paths)),
	)

	var sinks []events.Sink
	if opts.clickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, opts.clickhouseDSN, log)
		if err != nil {
			return fmt.Errorf("migrate clickhouse: %w", err)
		}
		defer conn.Close()
		sinks = append(sinks, chstore.NewEventStore(conn))
	}

	failed := false
	for _, path := range paths {
		sc, err := replay.LoadFile(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}

		store, closeStore, err := openStore(ctx, log)
		if err != nil {
			return err
		}
		report, err := replay.NewRunner(store, runnerOptions(cfg, gateway, log, sinks)...).Run(ctx, sc)
		closeStore()
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}

		if err := write(out, report); err != nil {
			return err
		}
		if !report.OK() {
			failed = true
		}
	}
	if failed {
		return errScenarioFailed
	}
	return nil
}

// openStore returns a fresh memory store, or the configured postgres store.
func openStore(ctx context.Context, log *zap.Logger) (storage.Store, func(), error) {
	if opts.postgresDSN == "" {
		return memory.NewStore(), func() {}, nil
	}
	pool, err := pgstore.NewPool(ctx, opts.postgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if _, err := migrations.RunPostgresMigrations(ctx, pool, log); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migrate postgres: %w", err)
	}
	return pgstore.NewStore(pool), pool.Close, nil
}

func write(out io.Writer, r *replay.Report) error {
	switch opts.format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case "yaml":
		enc := yaml.NewEncoder(out)
		defer enc.Close()
		return enc.Encode(r)
	case "text":
		return writeText(out, r)
	default:
		return fmt.Errorf("unknown format %q", opts.format)
	}
}

func writeText(out io.Writer, r *replay.Report) error {
	fmt.Fprintf(out, "=== %s ===\n", r.Scenario)
	for _, st := range r.Steps {
		mark := "ok  "
		if !st.Pass {
			mark = "FAIL"
		}
		fmt.Fprintf(out, "%s #%-3d t=%d %-28s expect=%s got=%s", mark, st.Index, st.At, st.Op, st.Expect, st.Got)
		if st.Detail != "" {
			fmt.Fprintf(out, " (%s)", st.Detail)
		}
		fmt.Fprintln(out)
	}
	fmt.Fprintln(out, "--- balances ---")
	for _, h := range r.Holdings {
		fmt.Fprintf(out, "%-10s %-10s %s\n", h.Asset, h.Holder, h.Balance)
	}
	_, err := fmt.Fprintf(out, "passed=%d failed=%d events=%d\n\n", r.Passed, r.Failed, len(r.Events))
	return err
}
