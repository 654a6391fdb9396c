package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"crowdfund-ledger/internal/events"
	"crowdfund-ledger/internal/observability"
)

// EventStore is an append-only ClickHouse log of committed ledger events.
// It implements events.Sink.
type EventStore struct {
	conn *Conn
}

// NewEventStore creates a new EventStore.
func NewEventStore(conn *Conn) *EventStore {
	return &EventStore{conn: conn}
}

// Compile-time interface check.
var (
	_ events.Sink    = (*EventStore)(nil)
	_ events.Querier = (*EventStore)(nil)
)

// Publish appends one event.
func (s *EventStore) Publish(ctx context.Context, e events.Event) error {
	return s.Append(ctx, []events.Event{e})
}

// Append writes events in one batch.
func (s *EventStore) Append(ctx context.Context, evs []events.Event) (err error) {
	if len(evs) == 0 {
		return nil
	}

	start := time.Now()
	defer func() {
		observability.RecordDBQuery("clickhouse", "append_events", time.Since(start).Seconds(), err)
	}()

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO ledger_events (event_id, topic, at, attrs)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range evs {
		attrs := e.Attrs
		if attrs == nil {
			attrs = map[string]string{}
		}
		if err := batch.Append(e.ID, e.Topic, e.At, attrs); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// List returns events matching f ordered by time.
func (s *EventStore) List(ctx context.Context, f events.Filter) (out []events.Event, err error) {
	start := time.Now()
	defer func() {
		observability.RecordDBQuery("clickhouse", "list_events", time.Since(start).Seconds(), err)
	}()

	query := `
		SELECT event_id, topic, at, attrs
		FROM ledger_events
		WHERE (? = '' OR topic = ?) AND at >= ?
		ORDER BY at ASC, inserted_at ASC, event_id ASC
	`
	args := []any{f.Topic, f.Topic, f.Since}
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, uint64(f.Limit))
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id    uuid.UUID
			e     events.Event
			attrs map[string]string
		)
		if err := rows.Scan(&id, &e.Topic, &e.At, &attrs); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.ID = id
		e.Attrs = attrs
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}
