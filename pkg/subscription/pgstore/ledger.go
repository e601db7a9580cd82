package pgstore

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/cashier/pkg/subscription"
)

var _ subscription.EventLedger = (*EventLedger)(nil)

// EventLedger is a subscription.EventLedger kept in the cashier_webhook_events table.
type EventLedger struct {
	pool *pgxpool.Pool
}

// NewEventLedger returns a ledger backed by the cashier_webhook_events table.
func NewEventLedger(pool *pgxpool.Pool) *EventLedger {
	if pool == nil {
		panic("pgstore: pool is required")
	}
	return &EventLedger{pool: pool}
}

func (l *EventLedger) Claim(ctx context.Context, eventID string) (bool, error) {
	tag, err := l.pool.Exec(ctx,
		`INSERT INTO cashier_webhook_events (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`,
		eventID,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (l *EventLedger) Release(ctx context.Context, eventID string) error {
	_, err := l.pool.Exec(ctx, `DELETE FROM cashier_webhook_events WHERE id = $1`, eventID)
	return err
}

// Prune forgets events claimed before the given time and returns how many were removed.
func (l *EventLedger) Prune(ctx context.Context, before time.Time) (int64, error) {
	tag, err := l.pool.Exec(ctx, `DELETE FROM cashier_webhook_events WHERE claimed_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
