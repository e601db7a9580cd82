package subscription

import (
	"time"

	"github.com/google/uuid"
)

// Subscription is the local record of one gateway subscription.
// An owner may have many; ended subscriptions are kept as history.
type Subscription struct {
	ID          uuid.UUID
	OwnerID     uuid.UUID
	ProviderID  SubscriptionID // Gateway subscription ID
	PlanID      PlanID
	TrialEndsAt *time.Time
	EndsAt      *time.Time // Set once cancelled; in the future during the grace period
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Valid reports whether the subscription still grants access.
func (s *Subscription) Valid() bool { return s.ValidAt(time.Now()) }

// ValidAt is Valid evaluated at a given time.
func (s *Subscription) ValidAt(now time.Time) bool {
	return s.ActiveAt(now) || s.OnTrialAt(now) || s.OnGracePeriodAt(now)
}

// Active reports whether the subscription is not cancelled or still within its grace period.
func (s *Subscription) Active() bool { return s.ActiveAt(time.Now()) }

// ActiveAt reports whether the subscription has not been cancelled or is
// still within its grace period at now.
func (s *Subscription) ActiveAt(now time.Time) bool {
	return s.EndsAt == nil || s.OnGracePeriodAt(now)
}

// Recurring reports whether the subscription is past its trial and not cancelled.
func (s *Subscription) Recurring() bool { return s.RecurringAt(time.Now()) }

// RecurringAt reports whether the subscription renews: past its trial
// and not cancelled.
func (s *Subscription) RecurringAt(now time.Time) bool {
	return !s.OnTrialAt(now) && !s.Cancelled()
}

// Cancelled reports whether a cancellation has been recorded, effective or not.
func (s *Subscription) Cancelled() bool {
	return s.EndsAt != nil
}

// Ended reports whether the subscription is cancelled and the grace period is over.
func (s *Subscription) Ended() bool { return s.EndedAt(time.Now()) }

// EndedAt reports whether the subscription was cancelled and its grace period is over.
func (s *Subscription) EndedAt(now time.Time) bool {
	return s.Cancelled() && !s.OnGracePeriodAt(now)
}

// OnTrial reports whether the subscription trial has not yet ended.
func (s *Subscription) OnTrial() bool { return s.OnTrialAt(time.Now()) }

// OnTrialAt is OnTrial evaluated at a given time.
func (s *Subscription) OnTrialAt(now time.Time) bool {
	return s.TrialEndsAt != nil && now.Before(*s.TrialEndsAt)
}

// OnGracePeriod reports whether the subscription is cancelled but EndsAt is still ahead.
func (s *Subscription) OnGracePeriod() bool { return s.OnGracePeriodAt(time.Now()) }

// OnGracePeriodAt is OnGracePeriod evaluated at a given time.
func (s *Subscription) OnGracePeriodAt(now time.Time) bool {
	return s.EndsAt != nil && now.Before(*s.EndsAt)
}

// StateAt returns a label for the subscription's lifecycle position at now.
// A cancelled subscription in its grace period reports StateGracePeriod even while on trial.
func (s *Subscription) StateAt(now time.Time) State {
	switch {
	case s.EndedAt(now):
		return StateEnded
	case s.OnGracePeriodAt(now):
		return StateGracePeriod
	case s.OnTrialAt(now):
		return StateTrialing
	default:
		return StateActive
	}
}

// SkipTrial clears the trial end locally. It only reaches the gateway
// through the next mutating call, typically Swap.
func (s *Subscription) SkipTrial() *Subscription {
	s.TrialEndsAt = nil
	return s
}

// TrialDaysRemainingAt returns the number of whole days left on the trial at now.
func (s *Subscription) TrialDaysRemainingAt(now time.Time) int {
	if !s.OnTrialAt(now) {
		return 0
	}
	return daysBetween(now, *s.TrialEndsAt)
}

func (s *Subscription) clone() *Subscription {
	c := *s
	c.TrialEndsAt = cloneTime(s.TrialEndsAt)
	c.EndsAt = cloneTime(s.EndsAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func timePtr(t time.Time) *time.Time {
	return &t
}
