package subscription

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/cashier/pkg/logger"
)

// CreateOptions carries the optional inputs of NewSubscription.
type CreateOptions struct {
	// PaymentToken is attached as the default payment source before subscribing.
	PaymentToken string
	// Email and Name override the owner's details when a customer is created.
	Email    string
	Name     string
	Metadata map[string]string
}

// NewSubscription subscribes the owner to a plan. It ensures a gateway
// customer exists, creates the gateway subscription and only then stores the
// local record. If storing fails, the gateway subscription is cancelled and a
// customer created by this call is deleted, so no half-created state survives.
func (s *service) NewSubscription(ctx context.Context, ownerID uuid.UUID, planID PlanID, opts CreateOptions) (*Subscription, error) {
	var sub *Subscription
	err := s.withLock(ctx, ownerLockKey(ownerID), func() error {
		var err error
		sub, err = s.createSubscription(ctx, ownerID, planID, opts)
		return err
	})
	s.metrics.transition("create", err)
	if err != nil {
		s.logError(ctx, "failed to create subscription", err, logger.OwnerID(ownerID), logger.PlanID(planID))
		return nil, err
	}

	s.logger.LogAttrs(ctx, slog.LevelInfo, "subscription created",
		logger.OwnerID(ownerID),
		logger.PlanID(planID),
		logger.SubscriptionID(sub.ID),
	)
	return sub, nil
}

func (s *service) createSubscription(ctx context.Context, ownerID uuid.UUID, planID PlanID, opts CreateOptions) (*Subscription, error) {
	plan, err := s.store.FindPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	remotePlan, err := s.gateway.FindPlan(ctx, planID)
	if err != nil {
		return nil, errors.Join(ErrRemotePlanMissing, gatewayError(err))
	}
	owner, err := s.store.FindOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	createdCustomer := false
	if !owner.HasCustomerID() {
		customer, err := s.gateway.CreateCustomer(ctx, s.customerParams(owner, opts.PaymentToken, CustomerOptions{
			Email:    opts.Email,
			Name:     opts.Name,
			Metadata: opts.Metadata,
		}))
		if err != nil {
			return nil, gatewayError(err)
		}
		owner.CustomerID = customer.ID
		createdCustomer = true
	} else if opts.PaymentToken != "" {
		if _, err := s.gateway.AttachPaymentSource(ctx, owner.CustomerID, opts.PaymentToken); err != nil {
			return nil, gatewayError(err)
		}
	}

	rollback := func(cause error) error {
		if !createdCustomer {
			return cause
		}
		if err := s.gateway.DeleteCustomer(ctx, owner.CustomerID); err != nil {
			return errors.Join(cause, gatewayError(err))
		}
		return cause
	}

	if opts.PaymentToken != "" {
		if err := s.refreshCard(ctx, owner); err != nil {
			s.logger.WarnContext(ctx, "card cache not refreshed", logger.OwnerID(owner.ID), logger.Error(err))
		}
	}

	now := s.now()
	params := SubscriptionParams{
		Customer: owner.CustomerID,
		Plan:     planID,
		Metadata: opts.Metadata,
	}
	if plan.TrialEndsAt != nil && plan.TrialEndsAt.After(now) {
		params.TrialEnd = cloneTime(plan.TrialEndsAt)
	}
	rs, err := s.gateway.CreateSubscription(ctx, params)
	if err != nil {
		return nil, rollback(gatewayError(err))
	}

	sub := &Subscription{
		ID:          uuid.New(),
		OwnerID:     owner.ID,
		ProviderID:  rs.ID,
		PlanID:      planID,
		TrialEndsAt: trialEnd(plan, remotePlan, now),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	owner.UpdatedAt = now

	err = s.store.Atomic(ctx, func(tx Store) error {
		if err := tx.SaveOwner(ctx, owner); err != nil {
			return err
		}
		return tx.SaveSubscription(ctx, sub)
	})
	if err != nil {
		if _, cerr := s.gateway.CancelSubscription(ctx, rs.ID, false); cerr != nil {
			err = errors.Join(err, gatewayError(cerr))
		}
		return nil, rollback(err)
	}

	return sub, nil
}

// trialEnd is the plan's fixed trial end when it has one, otherwise the
// gateway plan's trial length counted from now. Plans without a trial yield now.
func trialEnd(plan *Plan, remote *RemotePlan, now time.Time) *time.Time {
	if plan.TrialEndsAt != nil {
		return cloneTime(plan.TrialEndsAt)
	}
	return timePtr(now.AddDate(0, 0, remote.TrialPeriodDays))
}
