// Package events carries ledger notifications to observers.
package events

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// Topics emitted by the ledger engine.
const (
	TopicCampaignCreated            = "campaign_created"
	TopicDonationMade               = "donation_made"
	TopicCreationFeePaid            = "creation_fee_paid"
	TopicCreationFeeSet             = "creation_fee_set"
	TopicCrowdfundingTokenSet       = "crowdfunding_token_set"
	TopicPoolCreated                = "pool_created"
	TopicPoolStateUpdated           = "pool_state_updated"
	TopicPoolClosed                 = "pool_closed"
	TopicContribution               = "contribution"
	TopicRefund                     = "refund"
	TopicContractPaused             = "contract_paused"
	TopicContractUnpaused           = "contract_unpaused"
	TopicEmergencyWithdrawRequested = "emergency_withdraw_requested"
	TopicEmergencyWithdrawExecuted  = "emergency_withdraw_executed"
)

// Event is one append-only notification.
type Event struct {
	ID    uuid.UUID         `json:"id"`
	Topic string            `json:"topic"`
	At    uint64            `json:"at"` // ledger clock, unix seconds
	Attrs map[string]string `json:"attrs,omitempty"`
}

// New creates an event with a fresh id.
func New(topic string, at uint64, attrs map[string]string) Event {
	return Event{ID: uuid.New(), Topic: topic, At: at, Attrs: attrs}
}

// Sink accepts published events. Publish must not block for long.
type Sink interface {
	Publish(ctx context.Context, e Event) error
}

// Discard drops every event.
var Discard Sink = discard{}

type discard struct{}

func (discard) Publish(context.Context, Event) error { return nil }

// Multi fans an event out to several sinks. Every sink is tried; errors are joined.
type Multi []Sink

// Publish delivers e to every sink.
func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Filter narrows a Query. Zero values match everything.
type Filter struct {
	Topic string
	Since uint64 // inclusive, ledger clock
	Limit int    // 0 means no limit
}

// Match reports whether e passes the topic and time bounds of f.
func (f Filter) Match(e Event) bool {
	return (f.Topic == "" || e.Topic == f.Topic) && e.At >= f.Since
}

// Querier reads back published events.
type Querier interface {
	List(ctx context.Context, f Filter) ([]Event, error)
}

// Log is an in-memory append-only sink.
type Log struct {
	mu     sync.RWMutex
	events []Event
}

// NewLog creates an empty in-memory event log.
func NewLog() *Log {
	return &Log{}
}

// Publish appends e.
func (l *Log) Publish(_ context.Context, e Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.events = append(l.events, e)
	return nil
}

// Events returns a copy of every event in publish order.
func (l *Log) Events() []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// Topics returns the topic of every event in publish order.
func (l *Log) Topics() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]string, len(l.events))
	for i, e := range l.events {
		out[i] = e.Topic
	}
	return out
}

// List implements Querier. Events come back in publish order.
func (l *Log) List(_ context.Context, f Filter) ([]Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Event
	for _, e := range l.events {
		if !f.Match(e) {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

// ByTopic returns the events with the given topic in publish order.
func (l *Log) ByTopic(topic string) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Event
	for _, e := range l.events {
		if e.Topic == topic {
			out = append(out, e)
		}
	}
	return out
}
