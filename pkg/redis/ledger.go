package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/cashier/pkg/subscription"
)

var _ subscription.EventLedger = (*EventLedger)(nil)

// EventLedger remembers applied webhook event IDs for a limited time.
// The TTL should exceed the gateway's redelivery window.
type EventLedger struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewEventLedger returns a ledger storing claims under prefix+"event:<id>" for ttl.
func NewEventLedger(client redis.UniversalClient, prefix string, ttl time.Duration) *EventLedger {
	if client == nil {
		panic("redis: client is required")
	}
	if prefix == "" {
		prefix = "cashier:"
	}
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &EventLedger{client: client, prefix: prefix + "event:", ttl: ttl}
}

// Claim records eventID. It returns false when the event was already claimed.
func (l *EventLedger) Claim(ctx context.Context, eventID string) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.prefix+eventID, time.Now().Unix(), l.ttl).Result()
	if err != nil {
		return false, errors.Join(ErrLedgerFailed, err)
	}
	return ok, nil
}

// Release drops a claim so a redelivered event can be processed again.
func (l *EventLedger) Release(ctx context.Context, eventID string) error {
	if err := l.client.Del(ctx, l.prefix+eventID).Err(); err != nil {
		return errors.Join(ErrLedgerFailed, err)
	}
	return nil
}
