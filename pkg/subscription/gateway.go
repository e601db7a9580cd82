package subscription

import (
	"context"
	"time"
)

// Gateway is the payment gateway client the package drives.
// Implementations own transport concerns: timeouts, retries and credentials.
type Gateway interface {
	CreateCustomer(ctx context.Context, params CustomerParams) (*Customer, error)
	FindCustomer(ctx context.Context, id CustomerID) (*Customer, error)
	DeleteCustomer(ctx context.Context, id CustomerID) error

	CreatePlan(ctx context.Context, plan RemotePlan) (*RemotePlan, error)
	FindPlan(ctx context.Context, id PlanID) (*RemotePlan, error)
	DeletePlan(ctx context.Context, id PlanID) error

	CreateSubscription(ctx context.Context, params SubscriptionParams) (*RemoteSubscription, error)
	FindSubscription(ctx context.Context, id SubscriptionID) (*RemoteSubscription, error)
	UpdateSubscription(ctx context.Context, id SubscriptionID, params SubscriptionUpdate) (*RemoteSubscription, error)
	// CancelSubscription cancels immediately, or at the end of the current
	// billing period when atPeriodEnd is true.
	CancelSubscription(ctx context.Context, id SubscriptionID, atPeriodEnd bool) (*RemoteSubscription, error)
	// ResumeSubscription withdraws a pending cancellation.
	ResumeSubscription(ctx context.Context, id SubscriptionID) (*RemoteSubscription, error)

	ListPaymentSources(ctx context.Context, customer CustomerID) ([]PaymentSource, error)
	// AttachPaymentSource adds the tokenized source to the customer and makes it the default.
	AttachPaymentSource(ctx context.Context, customer CustomerID, token string) (*PaymentSource, error)
	DeletePaymentSource(ctx context.Context, customer CustomerID, sourceID string) error
	// DefaultPaymentSource returns nil without error when the customer has no default source.
	DefaultPaymentSource(ctx context.Context, customer CustomerID) (*PaymentSource, error)

	FindEvent(ctx context.Context, id string) (*Event, error)
}

// CustomerParams describes a gateway customer to create.
type CustomerParams struct {
	Email        string
	Name         string
	PaymentToken string // Optional; attached and made default on creation
	Metadata     map[string]string
}

// Customer is the gateway's view of a customer.
type Customer struct {
	ID              CustomerID
	Email           string
	Name            string
	DefaultSourceID string
}

// SubscriptionParams describes a gateway subscription to create.
type SubscriptionParams struct {
	Customer CustomerID
	Plan     PlanID
	// TrialEnd pins the trial to a concrete time. When nil the plan's trial length applies.
	TrialEnd *time.Time
	Metadata map[string]string
}

// SubscriptionUpdate changes the plan of a gateway subscription.
// Exactly one of TrialEnd and EndTrialNow should be set.
type SubscriptionUpdate struct {
	Plan        PlanID
	TrialEnd    *time.Time
	EndTrialNow bool
	AnchorNow   bool // Restart the billing cycle at the update
}

// RemoteSubscription is the gateway's view of a subscription.
type RemoteSubscription struct {
	ID                 SubscriptionID
	Customer           CustomerID
	Plan               PlanID
	Status             string
	TrialEnd           *time.Time
	BillingCycleAnchor time.Time
	CurrentPeriodEnd   time.Time
	CancelAtPeriodEnd  bool
	CanceledAt         *time.Time
}

// PaymentSource is a stored payment method, reduced to what is cached locally.
type PaymentSource struct {
	ID       string
	Brand    string
	LastFour string
	ExpMonth int
	ExpYear  int
}
