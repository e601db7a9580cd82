package subscription

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Owner is the billable party: the entity that holds a gateway customer and subscriptions.
type Owner struct {
	ID           uuid.UUID
	Email        string
	Name         string
	CustomerID   CustomerID // Empty until the first gateway customer is created
	CardBrand    string
	CardLastFour string
	TrialEndsAt  *time.Time // Generic trial, independent of any subscription
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasCustomerID reports whether the owner is linked to a gateway customer.
func (o *Owner) HasCustomerID() bool {
	return o.CustomerID != ""
}

// HasCardOnFile reports whether a default card is cached locally.
func (o *Owner) HasCardOnFile() bool {
	return o.CardBrand != ""
}

// OnGenericTrial reports whether the owner is on a trial not tied to any subscription.
func (o *Owner) OnGenericTrial() bool { return o.OnGenericTrialAt(time.Now()) }

func (o *Owner) OnGenericTrialAt(now time.Time) bool {
	return o.TrialEndsAt != nil && now.Before(*o.TrialEndsAt)
}

func (o *Owner) fillCard(src *PaymentSource) {
	if src == nil {
		o.CardBrand = ""
		o.CardLastFour = ""
		return
	}
	o.CardBrand = src.Brand
	o.CardLastFour = src.LastFour
}

// Billable pairs an owner with its subscriptions, most recent first.
type Billable struct {
	Owner         *Owner
	Subscriptions []*Subscription
}

// Subscription returns the most recent subscription, or nil.
func (b *Billable) Subscription() *Subscription {
	if len(b.Subscriptions) == 0 {
		return nil
	}
	return b.Subscriptions[0]
}

// Subscribed reports whether the most recent subscription is valid and,
// when a plan is given, on that plan.
func (b *Billable) Subscribed(plan ...PlanID) bool { return b.SubscribedAt(time.Now(), plan...) }

// SubscribedAt is Subscribed evaluated at a given time.
func (b *Billable) SubscribedAt(now time.Time, plan ...PlanID) bool {
	sub := b.Subscription()
	if sub == nil || !sub.ValidAt(now) {
		return false
	}
	return len(plan) == 0 || sub.PlanID == plan[0]
}

// SubscribedToPlan reports whether the most recent subscription is valid and on one of plans.
func (b *Billable) SubscribedToPlan(plans ...PlanID) bool {
	return b.SubscribedToPlanAt(time.Now(), plans...)
}

// SubscribedToPlanAt is SubscribedToPlan evaluated at a given time.
func (b *Billable) SubscribedToPlanAt(now time.Time, plans ...PlanID) bool {
	sub := b.Subscription()
	if sub == nil || !sub.ValidAt(now) {
		return false
	}
	return slices.Contains(plans, sub.PlanID)
}

// OnPlan reports whether any valid subscription is on plan.
func (b *Billable) OnPlan(plan PlanID) bool { return b.OnPlanAt(time.Now(), plan) }

// OnPlanAt is OnPlan evaluated at a given time.
func (b *Billable) OnPlanAt(now time.Time, plan PlanID) bool {
	return slices.ContainsFunc(b.Subscriptions, func(s *Subscription) bool {
		return s.PlanID == plan && s.ValidAt(now)
	})
}

// OnTrial reports whether the owner is trialing. Without a plan the generic
// owner trial counts too; with a plan only the most recent subscription on that plan does.
func (b *Billable) OnTrial(plan ...PlanID) bool { return b.OnTrialAt(time.Now(), plan...) }

// OnTrialAt is OnTrial evaluated at a given time.
func (b *Billable) OnTrialAt(now time.Time, plan ...PlanID) bool {
	if len(plan) == 0 && b.Owner != nil && b.Owner.OnGenericTrialAt(now) {
		return true
	}
	sub := b.Subscription()
	if sub == nil || !sub.OnTrialAt(now) {
		return false
	}
	return len(plan) == 0 || sub.PlanID == plan[0]
}

// OnGenericTrial reports whether the owner is on a generic trial.
func (b *Billable) OnGenericTrial() bool {
	return b.Owner != nil && b.Owner.OnGenericTrial()
}

// HasCardOnFile reports whether the owner has a cached default card.
func (b *Billable) HasCardOnFile() bool {
	return b.Owner != nil && b.Owner.HasCardOnFile()
}

// HasCustomerID reports whether the owner is linked to a gateway customer.
func (b *Billable) HasCustomerID() bool {
	return b.Owner != nil && b.Owner.HasCustomerID()
}

// sortSubscriptions orders subscriptions most recent first.
func sortSubscriptions(subs []*Subscription) {
	slices.SortStableFunc(subs, func(a, b *Subscription) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
}
