package subscription

import (
	"context"
	"sync"
)

var _ EventLedger = (*MemoryLedger)(nil)

// EventLedger records which webhook events have been applied.
type EventLedger interface {
	// Claim marks the event as being applied. It returns false if the event
	// was already claimed.
	Claim(ctx context.Context, eventID string) (bool, error)
	// Release forgets a claim so a redelivery can apply the event again.
	Release(ctx context.Context, eventID string) error
}

// MemoryLedger is an in-process EventLedger.
type MemoryLedger struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewMemoryLedger returns an empty in-process EventLedger. Claims never expire.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{seen: make(map[string]struct{})}
}

func (l *MemoryLedger) Claim(_ context.Context, eventID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.seen[eventID]; ok {
		return false, nil
	}
	l.seen[eventID] = struct{}{}
	return true, nil
}

func (l *MemoryLedger) Release(_ context.Context, eventID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.seen, eventID)
	return nil
}
