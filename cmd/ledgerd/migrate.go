package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"crowdfund-ledger/internal/config"
	"crowdfund-ledger/internal/storage/migrations"
	pgstore "crowdfund-ledger/internal/storage/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply postgres and clickhouse schema migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()
		return migrate(cmd.Context(), cfg, log)
	},
}

func migrate(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	if cfg.PostgresDSN == "" && cfg.ClickhouseDSN == "" {
		return errors.New("nothing to migrate: set CROWDFUND_POSTGRES_DSN or CROWDFUND_CLICKHOUSE_DSN")
	}

	if cfg.PostgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()

		applied, err := migrations.RunPostgresMigrations(ctx, pool, log)
		if err != nil {
			return fmt.Errorf("migrate postgres: %w", err)
		}
		log.Info("postgres migrated", zap.Strings("applied", applied))
	}

	if cfg.ClickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN, log)
		if err != nil {
			return fmt.Errorf("migrate clickhouse: %w", err)
		}
		if err := conn.Close(); err != nil {
			log.Warn("close clickhouse", zap.Error(err))
		}
		log.Info("clickhouse migrated")
	}
	return nil
}
