package subscription

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dmitrymomot/cashier/pkg/logger"
)

// transitionFunc mutates cur in place. It must not save.
type transitionFunc func(ctx context.Context, cur *Subscription, now time.Time) error

// transition applies fn to the stored record of sub under the subscription
// lock and saves the result. The caller's copy only identifies the record, so
// a stale copy never writes old values back. The one exception is a trial the
// caller cleared with SkipTrial, which is carried into the stored record when
// skipTrial is set.
//
// On success sub is overwritten with the saved state; on failure sub and the
// stored record are left untouched.
func (s *service) transition(ctx context.Context, op string, sub *Subscription, skipTrial bool, fn transitionFunc) error {
	err := s.withLock(ctx, subscriptionLockKey(sub.ID), func() error {
		cur, err := s.store.FindSubscription(ctx, sub.ID)
		if err != nil {
			return err
		}
		if skipTrial && sub.TrialEndsAt == nil {
			cur.TrialEndsAt = nil
		}

		now := s.now()
		if err := fn(ctx, cur, now); err != nil {
			return err
		}

		cur.UpdatedAt = now
		if err := s.store.SaveSubscription(ctx, cur); err != nil {
			return err
		}
		*sub = *cur
		return nil
	})
	s.metrics.transition(op, err)

	attrs := []slog.Attr{
		logger.Operation(op),
		logger.SubscriptionID(sub.ID),
		logger.PlanID(sub.PlanID),
	}
	if err != nil {
		s.logError(ctx, "subscription transition failed", err, attrs...)
		return err
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, "subscription transition applied",
		append(attrs, slog.String("state", string(sub.StateAt(s.now()))))...)
	return nil
}

// remote resolves the gateway counterpart of sub.
func (s *service) remote(ctx context.Context, sub *Subscription) (*RemoteSubscription, error) {
	if sub.ProviderID == "" {
		return nil, ErrNoRemoteSubscription
	}
	rs, err := s.gateway.FindSubscription(ctx, sub.ProviderID)
	if err != nil {
		return nil, errors.Join(ErrNoRemoteSubscription, gatewayError(err))
	}
	if rs == nil {
		return nil, ErrNoRemoteSubscription
	}
	return rs, nil
}

// SubscriptionAsRemote returns the gateway's view of sub.
func (s *service) SubscriptionAsRemote(ctx context.Context, sub *Subscription) (*RemoteSubscription, error) {
	return s.remote(ctx, sub)
}

type swapOptions struct {
	anchorNow bool
}

// SwapOption adjusts a plan swap.
type SwapOption func(*swapOptions)

// AnchorBillingCycleNow restarts the billing cycle at the moment of the swap
// instead of keeping the current anchor.
func AnchorBillingCycleNow() SwapOption {
	return func(o *swapOptions) { o.anchorNow = true }
}

// Swap moves sub to another plan. A remaining trial carries over; otherwise
// the gateway ends the trial immediately. A pending cancellation is withdrawn.
// Call SkipTrial on sub first to end the trial as part of the swap.
func (s *service) Swap(ctx context.Context, sub *Subscription, planID PlanID, opts ...SwapOption) error {
	var o swapOptions
	for _, opt := range opts {
		opt(&o)
	}

	return s.transition(ctx, "swap", sub, true, func(ctx context.Context, cur *Subscription, now time.Time) error {
		if _, err := s.store.FindPlan(ctx, planID); err != nil {
			return err
		}
		rs, err := s.remote(ctx, cur)
		if err != nil {
			return err
		}

		upd := SubscriptionUpdate{Plan: planID, AnchorNow: o.anchorNow}
		if cur.OnTrialAt(now) {
			upd.TrialEnd = cloneTime(cur.TrialEndsAt)
		} else {
			upd.EndTrialNow = true
		}
		if _, err := s.gateway.UpdateSubscription(ctx, rs.ID, upd); err != nil {
			return gatewayError(err)
		}

		cur.PlanID = planID
		cur.EndsAt = nil
		return nil
	})
}

// Cancel schedules cancellation at the end of the current period: during a
// trial that is the plan's trial length counted from now, otherwise the
// gateway's billing-period end. The subscription stays active until then.
func (s *service) Cancel(ctx context.Context, sub *Subscription) error {
	return s.transition(ctx, "cancel", sub, true, func(ctx context.Context, cur *Subscription, now time.Time) error {
		rs, err := s.remote(ctx, cur)
		if err != nil {
			return err
		}

		var endsAt time.Time
		onTrial := cur.OnTrialAt(now)
		if onTrial {
			plan, err := s.gateway.FindPlan(ctx, cur.PlanID)
			if err != nil {
				return errors.Join(ErrRemotePlanMissing, gatewayError(err))
			}
			endsAt = now.AddDate(0, 0, plan.TrialPeriodDays)
		}

		cancelled, err := s.gateway.CancelSubscription(ctx, rs.ID, true)
		if err != nil {
			return gatewayError(err)
		}
		if !onTrial {
			endsAt = cancelled.CurrentPeriodEnd
		}

		cur.EndsAt = &endsAt
		return nil
	})
}

// CancelNow cancels at the gateway immediately. There is no grace period.
func (s *service) CancelNow(ctx context.Context, sub *Subscription) error {
	return s.transition(ctx, "cancel_now", sub, true, func(ctx context.Context, cur *Subscription, now time.Time) error {
		rs, err := s.remote(ctx, cur)
		if err != nil {
			return err
		}
		if _, err := s.gateway.CancelSubscription(ctx, rs.ID, false); err != nil {
			return gatewayError(err)
		}
		cur.EndsAt = timePtr(now)
		return nil
	})
}

// MarkAsCancelled records a cancellation the gateway already performed.
// It makes no gateway call and writes only EndsAt. A subscription that has
// already ended keeps its end.
func (s *service) MarkAsCancelled(ctx context.Context, sub *Subscription) error {
	return s.transition(ctx, "mark_cancelled", sub, false, func(_ context.Context, cur *Subscription, now time.Time) error {
		if cur.EndedAt(now) {
			return nil
		}
		cur.EndsAt = timePtr(now)
		return nil
	})
}

// Resume withdraws a pending cancellation. It fails with
// ErrSubscriptionNotResumable unless sub is within its grace period.
func (s *service) Resume(ctx context.Context, sub *Subscription) error {
	return s.transition(ctx, "resume", sub, true, func(ctx context.Context, cur *Subscription, now time.Time) error {
		if !cur.OnGracePeriodAt(now) {
			return ErrSubscriptionNotResumable
		}
		rs, err := s.remote(ctx, cur)
		if err != nil {
			return err
		}
		if _, err := s.gateway.ResumeSubscription(ctx, rs.ID); err != nil {
			return gatewayError(err)
		}
		cur.EndsAt = nil
		return nil
	})
}
