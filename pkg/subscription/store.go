package subscription

import (
	"context"

	"github.com/google/uuid"
)

// Store persists plans, owners and subscriptions.
// Lookups return ErrPlanNotFound, ErrOwnerNotFound or ErrSubscriptionNotFound on a miss.
type Store interface {
	FindPlan(ctx context.Context, id PlanID) (*Plan, error)
	// UpsertPlan inserts the plan or updates the record with the same ID.
	UpsertPlan(ctx context.Context, plan *Plan) error

	FindOwner(ctx context.Context, id uuid.UUID) (*Owner, error)
	FindOwnerByCustomerID(ctx context.Context, id CustomerID) (*Owner, error)
	SaveOwner(ctx context.Context, owner *Owner) error

	// ListSubscriptions returns the owner's subscriptions, most recent first.
	ListSubscriptions(ctx context.Context, ownerID uuid.UUID) ([]*Subscription, error)
	FindSubscription(ctx context.Context, id uuid.UUID) (*Subscription, error)
	SaveSubscription(ctx context.Context, sub *Subscription) error

	// Atomic runs fn in a single unit of work. Writes made through the Store
	// passed to fn are discarded if fn returns an error.
	Atomic(ctx context.Context, fn func(Store) error) error
}
