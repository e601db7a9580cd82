package pgstore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/cashier/pkg/pg"
	"github.com/dmitrymomot/cashier/pkg/subscription"
)

var _ subscription.Store = (*Store)(nil)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is a subscription.Store backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool // nil inside a transaction
	db   querier
}

// New returns a Store on pool.
func New(pool *pgxpool.Pool) *Store {
	if pool == nil {
		panic("pgstore: pool is required")
	}
	return &Store{pool: pool, db: pool}
}

// Atomic runs fn inside a transaction. Nested calls join the outer transaction.
func (s *Store) Atomic(ctx context.Context, fn func(subscription.Store) error) error {
	if s.pool == nil {
		return fn(s)
	}
	return pg.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&Store{db: tx})
	})
}

const planColumns = `id, name, trial_ends_at, created_at, updated_at`

func (s *Store) FindPlan(ctx context.Context, id subscription.PlanID) (*subscription.Plan, error) {
	var (
		p      subscription.Plan
		planID string
	)
	err := s.db.QueryRow(ctx, `SELECT `+planColumns+` FROM cashier_plans WHERE id = $1`, string(id)).
		Scan(&planID, &p.Name, &p.TrialEndsAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, subscription.ErrPlanNotFound
		}
		return nil, err
	}
	p.ID = subscription.PlanID(planID)
	return &p, nil
}

func (s *Store) UpsertPlan(ctx context.Context, plan *subscription.Plan) error {
	createdAt, updatedAt := timestamps(plan.CreatedAt, plan.UpdatedAt)
	_, err := s.db.Exec(ctx, `
		INSERT INTO cashier_plans (`+planColumns+`)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name          = EXCLUDED.name,
			trial_ends_at = EXCLUDED.trial_ends_at,
			updated_at    = EXCLUDED.updated_at`,
		string(plan.ID), plan.Name, plan.TrialEndsAt, createdAt, updatedAt,
	)
	return err
}

const ownerColumns = `id, email, name, COALESCE(customer_id, ''), card_brand, card_last_four, trial_ends_at, created_at, updated_at`

func (s *Store) FindOwner(ctx context.Context, id uuid.UUID) (*subscription.Owner, error) {
	return s.findOwner(ctx, `SELECT `+ownerColumns+` FROM cashier_owners WHERE id = $1`, id)
}

func (s *Store) FindOwnerByCustomerID(ctx context.Context, id subscription.CustomerID) (*subscription.Owner, error) {
	if id == "" {
		return nil, subscription.ErrOwnerNotFound
	}
	return s.findOwner(ctx, `SELECT `+ownerColumns+` FROM cashier_owners WHERE customer_id = $1`, string(id))
}

func (s *Store) findOwner(ctx context.Context, query string, arg any) (*subscription.Owner, error) {
	var (
		o          subscription.Owner
		customerID string
	)
	err := s.db.QueryRow(ctx, query, arg).Scan(
		&o.ID, &o.Email, &o.Name, &customerID, &o.CardBrand, &o.CardLastFour,
		&o.TrialEndsAt, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, subscription.ErrOwnerNotFound
		}
		return nil, err
	}
	o.CustomerID = subscription.CustomerID(customerID)
	return &o, nil
}

func (s *Store) SaveOwner(ctx context.Context, owner *subscription.Owner) error {
	createdAt, updatedAt := timestamps(owner.CreatedAt, owner.UpdatedAt)
	_, err := s.db.Exec(ctx, `
		INSERT INTO cashier_owners (id, email, name, customer_id, card_brand, card_last_four, trial_ends_at, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			email          = EXCLUDED.email,
			name           = EXCLUDED.name,
			customer_id    = EXCLUDED.customer_id,
			card_brand     = EXCLUDED.card_brand,
			card_last_four = EXCLUDED.card_last_four,
			trial_ends_at  = EXCLUDED.trial_ends_at,
			updated_at     = EXCLUDED.updated_at`,
		owner.ID, owner.Email, owner.Name, string(owner.CustomerID), owner.CardBrand, owner.CardLastFour,
		owner.TrialEndsAt, createdAt, updatedAt,
	)
	return err
}

const subscriptionColumns = `id, owner_id, provider_id, plan_id, trial_ends_at, ends_at, created_at, updated_at`

func (s *Store) ListSubscriptions(ctx context.Context, ownerID uuid.UUID) ([]*subscription.Subscription, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+subscriptionColumns+` FROM cashier_subscriptions WHERE owner_id = $1 ORDER BY created_at DESC, id`,
		ownerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []*subscription.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func (s *Store) FindSubscription(ctx context.Context, id uuid.UUID) (*subscription.Subscription, error) {
	sub, err := scanSubscription(s.db.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM cashier_subscriptions WHERE id = $1`, id,
	))
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, subscription.ErrSubscriptionNotFound
		}
		return nil, err
	}
	return sub, nil
}

func (s *Store) SaveSubscription(ctx context.Context, sub *subscription.Subscription) error {
	createdAt, updatedAt := timestamps(sub.CreatedAt, sub.UpdatedAt)
	_, err := s.db.Exec(ctx, `
		INSERT INTO cashier_subscriptions (`+subscriptionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			provider_id   = EXCLUDED.provider_id,
			plan_id       = EXCLUDED.plan_id,
			trial_ends_at = EXCLUDED.trial_ends_at,
			ends_at       = EXCLUDED.ends_at,
			updated_at    = EXCLUDED.updated_at`,
		sub.ID, sub.OwnerID, string(sub.ProviderID), string(sub.PlanID),
		sub.TrialEndsAt, sub.EndsAt, createdAt, updatedAt,
	)
	return err
}

func scanSubscription(row pgx.Row) (*subscription.Subscription, error) {
	var (
		sub        subscription.Subscription
		providerID string
		planID     string
	)
	if err := row.Scan(
		&sub.ID, &sub.OwnerID, &providerID, &planID,
		&sub.TrialEndsAt, &sub.EndsAt, &sub.CreatedAt, &sub.UpdatedAt,
	); err != nil {
		return nil, err
	}
	sub.ProviderID = subscription.SubscriptionID(providerID)
	sub.PlanID = subscription.PlanID(planID)
	return &sub, nil
}

// timestamps fills zero values so inserted rows always carry both times.
func timestamps(createdAt, updatedAt time.Time) (time.Time, time.Time) {
	now := time.Now().UTC()
	if createdAt.IsZero() {
		createdAt = now
	}
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}
	return createdAt, updatedAt
}

// IsConflict reports whether err is a unique violation, such as two owners
// linked to the same gateway customer.
func IsConflict(err error) bool {
	return pg.IsDuplicateKeyError(err)
}
