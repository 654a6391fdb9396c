package clickhouse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crowdfund-ledger/internal/events"
)

func TestEventStore_PublishAndList(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewEventStore(conn)
	ctx := context.Background()

	created := events.New(events.TopicPoolCreated, 100, map[string]string{"pool_id": "1"})
	contributed := events.New(events.TopicContribution, 110, map[string]string{"pool_id": "1", "amount": "2000"})
	refunded := events.New(events.TopicRefund, 900, nil)

	require.NoError(t, store.Publish(ctx, created))
	require.NoError(t, store.Append(ctx, []events.Event{contributed, refunded}))

	all, err := store.List(ctx, events.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, created.ID, all[0].ID)
	assert.Equal(t, "2000", all[1].Attrs["amount"])
	assert.Empty(t, all[2].Attrs)

	byTopic, err := store.List(ctx, events.Filter{Topic: events.TopicContribution})
	require.NoError(t, err)
	require.Len(t, byTopic, 1)
	assert.Equal(t, contributed.ID, byTopic[0].ID)

	recent, err := store.List(ctx, events.Filter{Since: 110, Limit: 1})
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, uint64(110), recent[0].At)
}

func TestEventStore_AppendEmpty(t *testing.T) {
	store := NewEventStore(nil)
	assert.NoError(t, store.Append(context.Background(), nil))
}
