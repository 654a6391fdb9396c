package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"crowdfund-ledger/internal/config"
	"crowdfund-ledger/internal/events"
	"crowdfund-ledger/internal/storage"
	chstore "crowdfund-ledger/internal/storage/clickhouse"
	"crowdfund-ledger/internal/storage/memory"
	"crowdfund-ledger/internal/storage/migrations"
	pgstore "crowdfund-ledger/internal/storage/postgres"
)

// openStore returns the configured ledger state store, migrating postgres first.
func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (storage.Store, func(), error) {
	if cfg.Store == config.StoreMemory {
		log.Warn("using in-memory store; state is lost on exit")
		return memory.NewStore(), func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if _, err := migrations.RunPostgresMigrations(ctx, pool, log); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migrate postgres: %w", err)
	}
	return pgstore.NewStore(pool), pool.Close, nil
}

// openEventLog returns the queryable event log: ClickHouse when configured,
// otherwise an in-memory log.
func openEventLog(ctx context.Context, cfg *config.Config, log *zap.Logger) (events.Sink, events.Querier, func(), error) {
	if cfg.ClickhouseDSN == "" {
		l := events.NewLog()
		return l, l, func() {}, nil
	}

	conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN, log)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("migrate clickhouse: %w", err)
	}
	store := chstore.NewEventStore(conn)
	closeFn := func() {
		if err := conn.Close(); err != nil {
			log.Warn("close clickhouse", zap.Error(err))
		}
	}
	return store, store, closeFn, nil
}
