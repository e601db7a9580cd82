package subscription

import "slices"

// PlanID identifies a plan. The same value keys the local record and the gateway object.
type PlanID string

func (id PlanID) String() string { return string(id) }

// SubscriptionID is the gateway identifier of a subscription.
type SubscriptionID string

func (id SubscriptionID) String() string { return string(id) }

// CustomerID is the gateway identifier of a customer.
type CustomerID string

func (id CustomerID) String() string { return string(id) }

// EventType is a dot-delimited gateway event name.
type EventType string

func (t EventType) String() string { return string(t) }

const (
	EventSubscriptionDeleted EventType = "customer.subscription.deleted"
)

// Interval is the billing period unit of a plan.
type Interval string

const (
	IntervalDay   Interval = "day"
	IntervalWeek  Interval = "week"
	IntervalMonth Interval = "month"
	IntervalYear  Interval = "year"
)

var validIntervals = []Interval{IntervalDay, IntervalWeek, IntervalMonth, IntervalYear}

// Valid reports whether the interval is one the gateway understands.
func (i Interval) Valid() bool {
	return slices.Contains(validIntervals, i)
}

// State is a label derived from a subscription's timestamps. It is never stored.
type State string

const (
	StateTrialing    State = "trialing"
	StateActive      State = "active"
	StateGracePeriod State = "grace_period"
	StateEnded       State = "ended"
)
