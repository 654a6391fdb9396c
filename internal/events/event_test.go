package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingSink struct{ err error }

func (f failingSink) Publish(context.Context, Event) error { return f.err }

func TestLog_AppendOnlyOrder(t *testing.T) {
	ctx := context.Background()
	l := NewLog()

	require.NoError(t, l.Publish(ctx, New(TopicCampaignCreated, 1, nil)))
	require.NoError(t, l.Publish(ctx, New(TopicDonationMade, 2, map[string]string{"amount": "10"})))
	require.NoError(t, l.Publish(ctx, New(TopicDonationMade, 3, nil)))

	assert.Equal(t, []string{TopicCampaignCreated, TopicDonationMade, TopicDonationMade}, l.Topics())
	donations := l.ByTopic(TopicDonationMade)
	require.Len(t, donations, 2)
	assert.Equal(t, "10", donations[0].Attrs["amount"])
	assert.Equal(t, uint64(3), donations[1].At)

	events := l.Events()
	events[0].Topic = "mutated"
	assert.Equal(t, TopicCampaignCreated, l.Events()[0].Topic)
}

func TestNew_AssignsDistinctIDs(t *testing.T) {
	a := New(TopicRefund, 1, nil)
	b := New(TopicRefund, 1, nil)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestMulti_DeliversToEverySinkAndJoinsErrors(t *testing.T) {
	ctx := context.Background()
	first, second := NewLog(), NewLog()
	boom := errors.New("boom")

	m := Multi{first, failingSink{err: boom}, second}
	err := m.Publish(ctx, New(TopicPoolCreated, 5, nil))

	assert.ErrorIs(t, err, boom)
	assert.Len(t, first.Events(), 1)
	assert.Len(t, second.Events(), 1)
}

func TestDiscard(t *testing.T) {
	assert.NoError(t, Discard.Publish(context.Background(), New(TopicRefund, 0, nil)))
}

func TestLog_ListFilters(t *testing.T) {
	ctx := context.Background()
	l := NewLog()
	for i, topic := range []string{TopicPoolCreated, TopicContribution, TopicContribution, TopicRefund} {
		require.NoError(t, l.Publish(ctx, New(topic, uint64(100+i), nil)))
	}

	all, err := l.List(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	contributions, err := l.List(ctx, Filter{Topic: TopicContribution})
	require.NoError(t, err)
	require.Len(t, contributions, 2)
	assert.Equal(t, uint64(101), contributions[0].At)

	recent, err := l.List(ctx, Filter{Since: 102, Limit: 1})
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, TopicContribution, recent[0].Topic)
	assert.Equal(t, uint64(102), recent[0].At)
}
