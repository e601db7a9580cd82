package subscription

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/cashier/pkg/logger"
)

// Service is the billing core: plan identity, the subscription lifecycle and
// the owner's customer and card projections.
type Service interface {
	// Plans
	EnsurePlan(ctx context.Context, def PlanDefinition) (*Plan, error)
	SyncCatalog(ctx context.Context, defs []PlanDefinition) ([]*Plan, error)

	// Subscription lifecycle
	NewSubscription(ctx context.Context, ownerID uuid.UUID, planID PlanID, opts CreateOptions) (*Subscription, error)
	Swap(ctx context.Context, sub *Subscription, planID PlanID, opts ...SwapOption) error
	Cancel(ctx context.Context, sub *Subscription) error
	CancelNow(ctx context.Context, sub *Subscription) error
	Resume(ctx context.Context, sub *Subscription) error
	MarkAsCancelled(ctx context.Context, sub *Subscription) error
	SubscriptionAsRemote(ctx context.Context, sub *Subscription) (*RemoteSubscription, error)

	// Owners and customers
	Billable(ctx context.Context, ownerID uuid.UUID) (*Billable, error)
	BillableByCustomer(ctx context.Context, customerID CustomerID) (*Billable, error)
	CreateCustomer(ctx context.Context, ownerID uuid.UUID, token string, opts CustomerOptions) (*Customer, error)
	Customer(ctx context.Context, ownerID uuid.UUID) (*Customer, error)

	// Cards
	UpdateCard(ctx context.Context, ownerID uuid.UUID, token string) error
	SyncCard(ctx context.Context, ownerID uuid.UUID) error
	DeleteCards(ctx context.Context, ownerID uuid.UUID) error
	Cards(ctx context.Context, ownerID uuid.UUID) ([]PaymentSource, error)
	DefaultCard(ctx context.Context, ownerID uuid.UUID) (*PaymentSource, error)
}

type service struct {
	gateway  Gateway
	store    Store
	locker   Locker
	logger   *slog.Logger
	metrics  *metrics
	now      func() time.Time
	currency string
}

// NewService creates a Service backed by the given gateway and store.
// Panics if gateway or store is nil. Without options it uses an in-process
// locker, a discarding logger and no metrics.
func NewService(gateway Gateway, store Store, opts ...ServiceOption) Service {
	if gateway == nil {
		panic("subscription: Gateway is required")
	}
	if store == nil {
		panic("subscription: Store is required")
	}

	s := &service{
		gateway:  gateway,
		store:    store,
		locker:   NewMemoryLocker(),
		logger:   slog.New(slog.DiscardHandler),
		now:      time.Now,
		currency: DefaultCurrency,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Billable loads an owner together with its subscriptions.
func (s *service) Billable(ctx context.Context, ownerID uuid.UUID) (*Billable, error) {
	owner, err := s.store.FindOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return s.billable(ctx, owner)
}

// BillableByCustomer loads the owner linked to a gateway customer.
func (s *service) BillableByCustomer(ctx context.Context, customerID CustomerID) (*Billable, error) {
	owner, err := s.store.FindOwnerByCustomerID(ctx, customerID)
	if err != nil {
		return nil, err
	}
	return s.billable(ctx, owner)
}

func (s *service) billable(ctx context.Context, owner *Owner) (*Billable, error) {
	subs, err := s.store.ListSubscriptions(ctx, owner.ID)
	if err != nil {
		return nil, err
	}
	return &Billable{Owner: owner, Subscriptions: subs}, nil
}

// withLock runs fn while holding the lock for key.
func (s *service) withLock(ctx context.Context, key string, fn func() error) error {
	unlock, err := s.locker.Lock(ctx, key)
	if err != nil {
		return err
	}
	defer unlock()
	return fn()
}

func gatewayError(err error) error {
	if err == nil || errors.Is(err, ErrGatewayRequest) {
		return err
	}
	return errors.Join(ErrGatewayRequest, err)
}

func (s *service) logError(ctx context.Context, msg string, err error, attrs ...slog.Attr) {
	attrs = append(attrs, logger.Error(err))
	s.logger.LogAttrs(ctx, slog.LevelError, msg, attrs...)
}
