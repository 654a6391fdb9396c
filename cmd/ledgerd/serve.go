package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"crowdfund-ledger/internal/api"
	"crowdfund-ledger/internal/events"
	"crowdfund-ledger/internal/idhash"
	"crowdfund-ledger/internal/ledger"
	"crowdfund-ledger/internal/token"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ledger engine and its HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return serve(cmd.Context())
	},
}

func serve(parent context.Context) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	eventLog, querier, closeEvents, err := openEventLog(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeEvents()

	vault, err := idhash.VaultAddress(cfg.VaultSeed)
	if err != nil {
		return err
	}

	hub := events.NewHub(nil)

	// The HTTP surface only reads, so no transfer leaves this process.
	engine := ledger.New(store, token.NewLedger(), vault,
		ledger.WithSink(events.Multi{eventLog, hub}),
		ledger.WithLogger(log.Named("ledger")),
	)

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: api.New(engine,
			api.WithEventLog(querier),
			api.WithEventStream(hub),
			api.WithLogger(log.Named("api")),
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info("ledgerd starting",
		zap.String("addr", cfg.HTTPAddr),
		zap.String("store", cfg.Store),
		zap.String("vault", vault.String()),
		zap.Bool("clickhouse", cfg.ClickhouseDSN != ""),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down", zap.Duration("timeout", cfg.ShutdownTimeout))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		if cerr := hub.Close(); cerr != nil {
			log.Warn("close event hub", zap.Error(cerr))
		}
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("shutdown complete")
	return nil
}
