package subscription_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/cashier/pkg/subscription"
)

var errNotFound = errors.New("resource_missing")

// clock is a manually advanced time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Now().Truncate(time.Second)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeCustomer struct {
	customer  subscription.Customer
	sources   []subscription.PaymentSource
	defaultID string
}

// fakeGateway is an in-memory payment gateway.
type fakeGateway struct {
	mu        sync.Mutex
	now       func() time.Time
	seq       int
	customers map[subscription.CustomerID]*fakeCustomer
	plans     map[subscription.PlanID]subscription.RemotePlan
	subs      map[subscription.SubscriptionID]*subscription.RemoteSubscription
	events    map[string]*subscription.Event
	calls     []string

	failCreateSubscription error
}

func newFakeGateway(now func() time.Time) *fakeGateway {
	return &fakeGateway{
		now:       now,
		customers: make(map[subscription.CustomerID]*fakeCustomer),
		plans:     make(map[subscription.PlanID]subscription.RemotePlan),
		subs:      make(map[subscription.SubscriptionID]*subscription.RemoteSubscription),
		events:    make(map[string]*subscription.Event),
	}
}

func (g *fakeGateway) nextID(prefix string) string {
	g.seq++
	return fmt.Sprintf("%s_%d", prefix, g.seq)
}

func (g *fakeGateway) record(call string) {
	g.calls = append(g.calls, call)
}

func (g *fakeGateway) Calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

func (g *fakeGateway) CreateCustomer(_ context.Context, p subscription.CustomerParams) (*subscription.Customer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("CreateCustomer")
	c := &fakeCustomer{customer: subscription.Customer{
		ID:    subscription.CustomerID(g.nextID("cus")),
		Email: p.Email,
		Name:  p.Name,
	}}
	g.customers[c.customer.ID] = c
	if p.PaymentToken != "" {
		g.attach(c, p.PaymentToken)
	}
	out := c.customer
	return &out, nil
}

func (g *fakeGateway) FindCustomer(_ context.Context, id subscription.CustomerID) (*subscription.Customer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.customers[id]
	if !ok {
		return nil, errNotFound
	}
	out := c.customer
	out.DefaultSourceID = c.defaultID
	return &out, nil
}

func (g *fakeGateway) DeleteCustomer(_ context.Context, id subscription.CustomerID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("DeleteCustomer")
	if _, ok := g.customers[id]; !ok {
		return errNotFound
	}
	delete(g.customers, id)
	return nil
}

func (g *fakeGateway) CreatePlan(_ context.Context, p subscription.RemotePlan) (*subscription.RemotePlan, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("CreatePlan")
	if _, ok := g.plans[p.ID]; ok {
		return nil, errors.New("plan already exists")
	}
	g.plans[p.ID] = p
	return &p, nil
}

func (g *fakeGateway) FindPlan(_ context.Context, id subscription.PlanID) (*subscription.RemotePlan, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.plans[id]
	if !ok {
		return nil, errNotFound
	}
	return &p, nil
}

func (g *fakeGateway) DeletePlan(_ context.Context, id subscription.PlanID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("DeletePlan")
	if _, ok := g.plans[id]; !ok {
		return errNotFound
	}
	delete(g.plans, id)
	return nil
}

func (g *fakeGateway) CreateSubscription(_ context.Context, p subscription.SubscriptionParams) (*subscription.RemoteSubscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("CreateSubscription")
	if g.failCreateSubscription != nil {
		return nil, g.failCreateSubscription
	}
	if _, ok := g.customers[p.Customer]; !ok {
		return nil, errNotFound
	}
	plan, ok := g.plans[p.Plan]
	if !ok {
		return nil, errNotFound
	}

	now := g.now()
	rs := &subscription.RemoteSubscription{
		ID:                 subscription.SubscriptionID(g.nextID("sub")),
		Customer:           p.Customer,
		Plan:               p.Plan,
		Status:             "active",
		BillingCycleAnchor: now,
		CurrentPeriodEnd:   now.AddDate(0, 1, 0),
	}
	switch {
	case p.TrialEnd != nil:
		end := *p.TrialEnd
		rs.TrialEnd = &end
	case plan.TrialPeriodDays > 0:
		end := now.AddDate(0, 0, plan.TrialPeriodDays)
		rs.TrialEnd = &end
	}
	if rs.TrialEnd != nil {
		rs.Status = "trialing"
		rs.CurrentPeriodEnd = *rs.TrialEnd
	}
	g.subs[rs.ID] = rs
	out := *rs
	return &out, nil
}

func (g *fakeGateway) FindSubscription(_ context.Context, id subscription.SubscriptionID) (*subscription.RemoteSubscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rs, ok := g.subs[id]
	if !ok {
		return nil, errNotFound
	}
	out := *rs
	return &out, nil
}

func (g *fakeGateway) UpdateSubscription(_ context.Context, id subscription.SubscriptionID, upd subscription.SubscriptionUpdate) (*subscription.RemoteSubscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("UpdateSubscription")
	rs, ok := g.subs[id]
	if !ok {
		return nil, errNotFound
	}
	if _, ok := g.plans[upd.Plan]; !ok {
		return nil, errNotFound
	}
	rs.Plan = upd.Plan
	rs.CancelAtPeriodEnd = false
	switch {
	case upd.TrialEnd != nil:
		end := *upd.TrialEnd
		rs.TrialEnd = &end
		rs.Status = "trialing"
	case upd.EndTrialNow:
		rs.TrialEnd = nil
		rs.Status = "active"
	}
	if upd.AnchorNow {
		now := g.now()
		rs.BillingCycleAnchor = now
		rs.CurrentPeriodEnd = now.AddDate(0, 1, 0)
	}
	out := *rs
	return &out, nil
}

func (g *fakeGateway) CancelSubscription(_ context.Context, id subscription.SubscriptionID, atPeriodEnd bool) (*subscription.RemoteSubscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record(fmt.Sprintf("CancelSubscription(atPeriodEnd=%t)", atPeriodEnd))
	rs, ok := g.subs[id]
	if !ok {
		return nil, errNotFound
	}
	if atPeriodEnd {
		rs.CancelAtPeriodEnd = true
	} else {
		now := g.now()
		rs.Status = "canceled"
		rs.CanceledAt = &now
	}
	out := *rs
	return &out, nil
}

func (g *fakeGateway) ResumeSubscription(_ context.Context, id subscription.SubscriptionID) (*subscription.RemoteSubscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("ResumeSubscription")
	rs, ok := g.subs[id]
	if !ok {
		return nil, errNotFound
	}
	rs.CancelAtPeriodEnd = false
	out := *rs
	return &out, nil
}

func (g *fakeGateway) ListPaymentSources(_ context.Context, customer subscription.CustomerID) ([]subscription.PaymentSource, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.customers[customer]
	if !ok {
		return nil, errNotFound
	}
	return append([]subscription.PaymentSource(nil), c.sources...), nil
}

func (g *fakeGateway) AttachPaymentSource(_ context.Context, customer subscription.CustomerID, token string) (*subscription.PaymentSource, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("AttachPaymentSource")
	c, ok := g.customers[customer]
	if !ok {
		return nil, errNotFound
	}
	src := g.attach(c, token)
	return &src, nil
}

func (g *fakeGateway) attach(c *fakeCustomer, token string) subscription.PaymentSource {
	src := subscription.PaymentSource{ID: g.nextID("pm"), Brand: "visa", LastFour: "4242", ExpMonth: 12, ExpYear: 2030}
	if token == "tok_mastercard" {
		src.Brand = "mastercard"
		src.LastFour = "4444"
	}
	c.sources = append(c.sources, src)
	c.defaultID = src.ID
	return src
}

func (g *fakeGateway) DeletePaymentSource(_ context.Context, customer subscription.CustomerID, sourceID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("DeletePaymentSource")
	c, ok := g.customers[customer]
	if !ok {
		return errNotFound
	}
	for i, src := range c.sources {
		if src.ID == sourceID {
			c.sources = append(c.sources[:i], c.sources[i+1:]...)
			if c.defaultID == sourceID {
				c.defaultID = ""
			}
			return nil
		}
	}
	return errNotFound
}

func (g *fakeGateway) DefaultPaymentSource(_ context.Context, customer subscription.CustomerID) (*subscription.PaymentSource, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.customers[customer]
	if !ok {
		return nil, errNotFound
	}
	for _, src := range c.sources {
		if src.ID == c.defaultID {
			out := src
			return &out, nil
		}
	}
	return nil, nil
}

func (g *fakeGateway) FindEvent(_ context.Context, id string) (*subscription.Event, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.events[id]
	if !ok {
		return nil, errNotFound
	}
	out := *e
	return &out, nil
}

func (g *fakeGateway) AddEvent(e *subscription.Event) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.events[e.ID] = e
}

func (g *fakeGateway) Remote(id subscription.SubscriptionID) subscription.RemoteSubscription {
	g.mu.Lock()
	defer g.mu.Unlock()
	return *g.subs[id]
}

func (g *fakeGateway) HasCustomer(id subscription.CustomerID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.customers[id]
	return ok
}

// mockGateway is a testify mock for gateway error paths.
type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) CreateCustomer(ctx context.Context, p subscription.CustomerParams) (*subscription.Customer, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.Customer), args.Error(1)
}

func (m *mockGateway) FindCustomer(ctx context.Context, id subscription.CustomerID) (*subscription.Customer, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.Customer), args.Error(1)
}

func (m *mockGateway) DeleteCustomer(ctx context.Context, id subscription.CustomerID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockGateway) CreatePlan(ctx context.Context, p subscription.RemotePlan) (*subscription.RemotePlan, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.RemotePlan), args.Error(1)
}

func (m *mockGateway) FindPlan(ctx context.Context, id subscription.PlanID) (*subscription.RemotePlan, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.RemotePlan), args.Error(1)
}

func (m *mockGateway) DeletePlan(ctx context.Context, id subscription.PlanID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockGateway) CreateSubscription(ctx context.Context, p subscription.SubscriptionParams) (*subscription.RemoteSubscription, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.RemoteSubscription), args.Error(1)
}

func (m *mockGateway) FindSubscription(ctx context.Context, id subscription.SubscriptionID) (*subscription.RemoteSubscription, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.RemoteSubscription), args.Error(1)
}

func (m *mockGateway) UpdateSubscription(ctx context.Context, id subscription.SubscriptionID, upd subscription.SubscriptionUpdate) (*subscription.RemoteSubscription, error) {
	args := m.Called(ctx, id, upd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.RemoteSubscription), args.Error(1)
}

func (m *mockGateway) CancelSubscription(ctx context.Context, id subscription.SubscriptionID, atPeriodEnd bool) (*subscription.RemoteSubscription, error) {
	args := m.Called(ctx, id, atPeriodEnd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.RemoteSubscription), args.Error(1)
}

func (m *mockGateway) ResumeSubscription(ctx context.Context, id subscription.SubscriptionID) (*subscription.RemoteSubscription, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.RemoteSubscription), args.Error(1)
}

func (m *mockGateway) ListPaymentSources(ctx context.Context, customer subscription.CustomerID) ([]subscription.PaymentSource, error) {
	args := m.Called(ctx, customer)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]subscription.PaymentSource), args.Error(1)
}

func (m *mockGateway) AttachPaymentSource(ctx context.Context, customer subscription.CustomerID, token string) (*subscription.PaymentSource, error) {
	args := m.Called(ctx, customer, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.PaymentSource), args.Error(1)
}

func (m *mockGateway) DeletePaymentSource(ctx context.Context, customer subscription.CustomerID, sourceID string) error {
	return m.Called(ctx, customer, sourceID).Error(0)
}

func (m *mockGateway) DefaultPaymentSource(ctx context.Context, customer subscription.CustomerID) (*subscription.PaymentSource, error) {
	args := m.Called(ctx, customer)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.PaymentSource), args.Error(1)
}

func (m *mockGateway) FindEvent(ctx context.Context, id string) (*subscription.Event, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.Event), args.Error(1)
}

// failingStore fails Atomic units while leaving reads and single writes intact.
type failingStore struct {
	*subscription.MemoryStore
	atomicErr error
}

func (s *failingStore) Atomic(ctx context.Context, fn func(subscription.Store) error) error {
	if s.atomicErr != nil {
		return s.atomicErr
	}
	return s.MemoryStore.Atomic(ctx, fn)
}

// env bundles a service wired to in-memory collaborators.
type env struct {
	clock   *clock
	gateway *fakeGateway
	store   *subscription.MemoryStore
	svc     subscription.Service
}

func newEnv(t *testing.T, opts ...subscription.ServiceOption) *env {
	t.Helper()
	c := newClock()
	gw := newFakeGateway(c.Now)
	store := subscription.NewMemoryStore()
	opts = append([]subscription.ServiceOption{subscription.WithClock(c.Now)}, opts...)
	return &env{
		clock:   c,
		gateway: gw,
		store:   store,
		svc:     subscription.NewService(gw, store, opts...),
	}
}

func (e *env) plan(t *testing.T, def subscription.PlanDefinition) *subscription.Plan {
	t.Helper()
	plan, err := e.svc.EnsurePlan(context.Background(), def)
	require.NoError(t, err)
	return plan
}

func (e *env) owner(t *testing.T) *subscription.Owner {
	t.Helper()
	owner := &subscription.Owner{
		ID:        uuid.New(),
		Email:     "owner@example.com",
		Name:      "Owner",
		CreatedAt: e.clock.Now(),
	}
	require.NoError(t, e.store.SaveOwner(context.Background(), owner))
	return owner
}

func (e *env) subscribe(t *testing.T, ownerID uuid.UUID, planID subscription.PlanID) *subscription.Subscription {
	t.Helper()
	sub, err := e.svc.NewSubscription(context.Background(), ownerID, planID, subscription.CreateOptions{
		PaymentToken: "tok_visa",
	})
	require.NoError(t, err)
	return sub
}
