package subscription

import "time"

// PlanDefinition is the caller's description of a plan, before identity resolution.
// TrialPeriodDays and TrialEndsAt are mutually exclusive; when both are set, TrialEndsAt wins.
type PlanDefinition struct {
	Name            string     `yaml:"name"`
	Amount          int64      `yaml:"amount"`
	Currency        string     `yaml:"currency"`
	Interval        Interval   `yaml:"interval"`
	Frequency       int        `yaml:"frequency"`
	TrialPeriodDays int        `yaml:"trial_period_days"`
	TrialEndsAt     *time.Time `yaml:"trial_ends_at"`
	ExpiryCount     int        `yaml:"expiry_count"`
}

// Plan is the local record of a plan. It is linked to the gateway plan by ID.
type Plan struct {
	ID   PlanID
	Name string

	// TrialEndsAt is set only when the plan was defined with a concrete trial end.
	// Subscriptions created on this plan share that end instead of computing their own.
	TrialEndsAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// RemotePlan is the gateway's view of a plan.
type RemotePlan struct {
	ID              PlanID
	Name            string
	Amount          int64
	Currency        string
	Interval        Interval
	Frequency       int
	TrialPeriodDays int
	ExpiryCount     int
}
