package subscription

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*memoryTx)(nil)
)

// MemoryStore is a Store kept in process memory. Values are copied on the way
// in and out, so callers never share state with the store.
type MemoryStore struct {
	mu     sync.RWMutex
	txMu   sync.Mutex
	plans  map[PlanID]*Plan
	owners map[uuid.UUID]*Owner
	subs   map[uuid.UUID]*Subscription
}

// NewMemoryStore returns an empty store. Records are copied in and out.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		plans:  make(map[PlanID]*Plan),
		owners: make(map[uuid.UUID]*Owner),
		subs:   make(map[uuid.UUID]*Subscription),
	}
}

func (s *MemoryStore) FindPlan(_ context.Context, id PlanID) (*Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.plans[id]
	if !ok {
		return nil, ErrPlanNotFound
	}
	return clonePlan(p), nil
}

func (s *MemoryStore) UpsertPlan(_ context.Context, plan *Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertPlan(plan)
	return nil
}

func (s *MemoryStore) upsertPlan(plan *Plan) {
	p := clonePlan(plan)
	if existing, ok := s.plans[p.ID]; ok && !existing.CreatedAt.IsZero() {
		p.CreatedAt = existing.CreatedAt
	}
	s.plans[p.ID] = p
}

func (s *MemoryStore) FindOwner(_ context.Context, id uuid.UUID) (*Owner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.owners[id]
	if !ok {
		return nil, ErrOwnerNotFound
	}
	return cloneOwner(o), nil
}

func (s *MemoryStore) FindOwnerByCustomerID(_ context.Context, id CustomerID) (*Owner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id == "" {
		return nil, ErrOwnerNotFound
	}
	for _, o := range s.owners {
		if o.CustomerID == id {
			return cloneOwner(o), nil
		}
	}
	return nil, ErrOwnerNotFound
}

func (s *MemoryStore) SaveOwner(_ context.Context, owner *Owner) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owners[owner.ID] = cloneOwner(owner)
	return nil
}

func (s *MemoryStore) ListSubscriptions(_ context.Context, ownerID uuid.UUID) ([]*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var subs []*Subscription
	for _, sub := range s.subs {
		if sub.OwnerID == ownerID {
			subs = append(subs, sub.clone())
		}
	}
	sortSubscriptions(subs)
	return subs, nil
}

func (s *MemoryStore) FindSubscription(_ context.Context, id uuid.UUID) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subs[id]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	return sub.clone(), nil
}

func (s *MemoryStore) SaveSubscription(_ context.Context, sub *Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[sub.ID] = sub.clone()
	return nil
}

// Atomic stages writes made by fn and applies them together once fn succeeds.
// Atomic units are serialized against each other.
func (s *MemoryStore) Atomic(ctx context.Context, fn func(Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx := &memoryTx{parent: s, staged: NewMemoryStore()}
	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range tx.staged.plans {
		s.upsertPlan(p)
	}
	for id, o := range tx.staged.owners {
		s.owners[id] = o
	}
	for id, sub := range tx.staged.subs {
		s.subs[id] = sub
	}
	return nil
}

// memoryTx reads through staged writes to the parent store.
type memoryTx struct {
	parent *MemoryStore
	staged *MemoryStore
}

func (t *memoryTx) FindPlan(ctx context.Context, id PlanID) (*Plan, error) {
	if p, err := t.staged.FindPlan(ctx, id); err == nil {
		return p, nil
	}
	return t.parent.FindPlan(ctx, id)
}

func (t *memoryTx) UpsertPlan(ctx context.Context, plan *Plan) error {
	return t.staged.UpsertPlan(ctx, plan)
}

func (t *memoryTx) FindOwner(ctx context.Context, id uuid.UUID) (*Owner, error) {
	if o, err := t.staged.FindOwner(ctx, id); err == nil {
		return o, nil
	}
	return t.parent.FindOwner(ctx, id)
}

func (t *memoryTx) FindOwnerByCustomerID(ctx context.Context, id CustomerID) (*Owner, error) {
	if o, err := t.staged.FindOwnerByCustomerID(ctx, id); err == nil {
		return o, nil
	}
	return t.parent.FindOwnerByCustomerID(ctx, id)
}

func (t *memoryTx) SaveOwner(ctx context.Context, owner *Owner) error {
	return t.staged.SaveOwner(ctx, owner)
}

func (t *memoryTx) ListSubscriptions(ctx context.Context, ownerID uuid.UUID) ([]*Subscription, error) {
	base, err := t.parent.ListSubscriptions(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	staged, _ := t.staged.ListSubscriptions(ctx, ownerID)
	byID := make(map[uuid.UUID]int, len(base))
	for i, sub := range base {
		byID[sub.ID] = i
	}
	for _, sub := range staged {
		if i, ok := byID[sub.ID]; ok {
			base[i] = sub
			continue
		}
		base = append(base, sub)
	}
	sortSubscriptions(base)
	return base, nil
}

func (t *memoryTx) FindSubscription(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	if sub, err := t.staged.FindSubscription(ctx, id); err == nil {
		return sub, nil
	}
	return t.parent.FindSubscription(ctx, id)
}

func (t *memoryTx) SaveSubscription(ctx context.Context, sub *Subscription) error {
	return t.staged.SaveSubscription(ctx, sub)
}

func (t *memoryTx) Atomic(_ context.Context, fn func(Store) error) error {
	return fn(t)
}

func clonePlan(p *Plan) *Plan {
	c := *p
	c.TrialEndsAt = cloneTime(p.TrialEndsAt)
	return &c
}

func cloneOwner(o *Owner) *Owner {
	c := *o
	c.TrialEndsAt = cloneTime(o.TrialEndsAt)
	return &c
}
