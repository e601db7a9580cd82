package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeConfig holds configuration for the Stripe gateway.
type StripeConfig struct {
	SecretKey         string        `env:"STRIPE_SECRET_KEY,required"`
	WebhookSecret     string        `env:"STRIPE_WEBHOOK_SECRET"`
	MaxNetworkRetries int64         `env:"STRIPE_MAX_NETWORK_RETRIES" envDefault:"2"`
	Timeout           time.Duration `env:"STRIPE_TIMEOUT" envDefault:"30s"`
	APIURL            string        `env:"STRIPE_API_URL"` // Overrides the API base URL, e.g. for stripe-mock
}

// MaxCallDuration is the longest a single gateway call can block, counting
// the client's retries.
func (c StripeConfig) MaxCallDuration() time.Duration {
	return time.Duration(c.MaxNetworkRetries+1) * c.Timeout
}

const expiryCountMetadataKey = "expiry_count"

var _ Gateway = (*StripeGateway)(nil)

// StripeGateway implements Gateway on the Stripe API. Each gateway owns its
// client and key; nothing is stored in package-level state.
type StripeGateway struct {
	api           *client.API
	webhookSecret string
}

// NewStripeGateway creates a Stripe gateway. log receives the client's own
// diagnostics and may be nil.
func NewStripeGateway(cfg StripeConfig, log *slog.Logger) (*StripeGateway, error) {
	if cfg.SecretKey == "" {
		return nil, ErrMissingAPIKey
	}

	backendCfg := func(url string) *stripe.BackendConfig {
		bc := &stripe.BackendConfig{
			HTTPClient:        &http.Client{Timeout: cfg.Timeout},
			MaxNetworkRetries: stripe.Int64(cfg.MaxNetworkRetries),
		}
		if url != "" {
			bc.URL = stripe.String(url)
		}
		if log != nil {
			bc.LeveledLogger = &stripeLogger{log: log}
		}
		return bc
	}

	api := &client.API{}
	api.Init(cfg.SecretKey, &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg(cfg.APIURL)),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendCfg("")),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendCfg("")),
	})

	return &StripeGateway{api: api, webhookSecret: cfg.WebhookSecret}, nil
}

// VerifySignature checks the Stripe-Signature header against the webhook
// secret. It satisfies SignatureVerifier.
func (g *StripeGateway) VerifySignature(payload []byte, header http.Header) error {
	if g.webhookSecret == "" {
		return errors.New("stripe webhook secret is not configured")
	}
	return webhook.ValidatePayload(payload, header.Get("Stripe-Signature"), g.webhookSecret)
}

func (g *StripeGateway) CreateCustomer(ctx context.Context, p CustomerParams) (*Customer, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx
	if p.Email != "" {
		params.Email = stripe.String(p.Email)
	}
	if p.Name != "" {
		params.Name = stripe.String(p.Name)
	}
	if p.PaymentToken != "" {
		params.PaymentMethod = stripe.String(p.PaymentToken)
		params.InvoiceSettings = &stripe.CustomerInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(p.PaymentToken),
		}
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}

	c, err := g.api.Customers.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: create customer: %w", err)
	}
	return toCustomer(c), nil
}

func (g *StripeGateway) FindCustomer(ctx context.Context, id CustomerID) (*Customer, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx
	c, err := g.api.Customers.Get(string(id), params)
	if err != nil {
		return nil, fmt.Errorf("stripe: get customer %s: %w", id, err)
	}
	if c.Deleted {
		return nil, fmt.Errorf("stripe: customer %s is deleted", id)
	}
	return toCustomer(c), nil
}

func (g *StripeGateway) DeleteCustomer(ctx context.Context, id CustomerID) error {
	params := &stripe.CustomerParams{}
	params.Context = ctx
	if _, err := g.api.Customers.Del(string(id), params); err != nil {
		return fmt.Errorf("stripe: delete customer %s: %w", id, err)
	}
	return nil
}

// CreatePlan creates a Stripe plan with an inline product named after it.
func (g *StripeGateway) CreatePlan(ctx context.Context, p RemotePlan) (*RemotePlan, error) {
	name := p.Name
	if name == "" {
		name = string(p.ID)
	}
	params := &stripe.PlanParams{
		ID:            stripe.String(string(p.ID)),
		Nickname:      stripe.String(name),
		Amount:        stripe.Int64(p.Amount),
		Currency:      stripe.String(strings.ToLower(p.Currency)),
		Interval:      stripe.String(string(p.Interval)),
		IntervalCount: stripe.Int64(int64(p.Frequency)),
		Product:       &stripe.PlanProductParams{Name: stripe.String(name)},
	}
	params.Context = ctx
	if p.TrialPeriodDays > 0 {
		params.TrialPeriodDays = stripe.Int64(int64(p.TrialPeriodDays))
	}
	// Stripe plans have no expiry count; keep it alongside for round trips.
	if p.ExpiryCount > 0 {
		params.AddMetadata(expiryCountMetadataKey, strconv.Itoa(p.ExpiryCount))
	}

	plan, err := g.api.Plans.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: create plan %s: %w", p.ID, err)
	}
	return toRemotePlan(plan), nil
}

func (g *StripeGateway) FindPlan(ctx context.Context, id PlanID) (*RemotePlan, error) {
	params := &stripe.PlanParams{}
	params.Context = ctx
	plan, err := g.api.Plans.Get(string(id), params)
	if err != nil {
		return nil, fmt.Errorf("stripe: get plan %s: %w", id, err)
	}
	return toRemotePlan(plan), nil
}

func (g *StripeGateway) DeletePlan(ctx context.Context, id PlanID) error {
	params := &stripe.PlanParams{}
	params.Context = ctx
	if _, err := g.api.Plans.Del(string(id), params); err != nil {
		return fmt.Errorf("stripe: delete plan %s: %w", id, err)
	}
	return nil
}

// CreateSubscription subscribes the customer to a single plan item. Without an
// explicit trial end the plan's trial applies.
func (g *StripeGateway) CreateSubscription(ctx context.Context, p SubscriptionParams) (*RemoteSubscription, error) {
	params := &stripe.SubscriptionParams{
		Customer: stripe.String(string(p.Customer)),
		Items: []*stripe.SubscriptionItemsParams{
			{Plan: stripe.String(string(p.Plan))},
		},
	}
	params.Context = ctx
	if p.TrialEnd != nil {
		params.TrialEnd = stripe.Int64(p.TrialEnd.Unix())
	} else {
		params.TrialFromPlan = stripe.Bool(true)
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}

	sub, err := g.api.Subscriptions.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: create subscription: %w", err)
	}
	return toRemoteSubscription(sub), nil
}

func (g *StripeGateway) FindSubscription(ctx context.Context, id SubscriptionID) (*RemoteSubscription, error) {
	sub, err := g.getSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	return toRemoteSubscription(sub), nil
}

func (g *StripeGateway) getSubscription(ctx context.Context, id SubscriptionID) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	sub, err := g.api.Subscriptions.Get(string(id), params)
	if err != nil {
		return nil, fmt.Errorf("stripe: get subscription %s: %w", id, err)
	}
	return sub, nil
}

// UpdateSubscription swaps the plan of the subscription's single item and
// withdraws any pending cancellation.
func (g *StripeGateway) UpdateSubscription(ctx context.Context, id SubscriptionID, upd SubscriptionUpdate) (*RemoteSubscription, error) {
	current, err := g.getSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Items == nil || len(current.Items.Data) == 0 {
		return nil, fmt.Errorf("stripe: subscription %s has no items", id)
	}

	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(false),
		Items: []*stripe.SubscriptionItemsParams{
			{
				ID:   stripe.String(current.Items.Data[0].ID),
				Plan: stripe.String(string(upd.Plan)),
			},
		},
	}
	params.Context = ctx
	switch {
	case upd.TrialEnd != nil:
		params.TrialEnd = stripe.Int64(upd.TrialEnd.Unix())
	case upd.EndTrialNow:
		params.TrialEndNow = stripe.Bool(true)
	}
	if upd.AnchorNow {
		params.BillingCycleAnchorNow = stripe.Bool(true)
	}

	sub, err := g.api.Subscriptions.Update(string(id), params)
	if err != nil {
		return nil, fmt.Errorf("stripe: update subscription %s: %w", id, err)
	}
	return toRemoteSubscription(sub), nil
}

// CancelSubscription cancels immediately, or at the period end when atPeriodEnd is set.
func (g *StripeGateway) CancelSubscription(ctx context.Context, id SubscriptionID, atPeriodEnd bool) (*RemoteSubscription, error) {
	if atPeriodEnd {
		return g.setCancelAtPeriodEnd(ctx, id, true)
	}
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx
	sub, err := g.api.Subscriptions.Cancel(string(id), params)
	if err != nil {
		return nil, fmt.Errorf("stripe: cancel subscription %s: %w", id, err)
	}
	return toRemoteSubscription(sub), nil
}

func (g *StripeGateway) ResumeSubscription(ctx context.Context, id SubscriptionID) (*RemoteSubscription, error) {
	return g.setCancelAtPeriodEnd(ctx, id, false)
}

func (g *StripeGateway) setCancelAtPeriodEnd(ctx context.Context, id SubscriptionID, v bool) (*RemoteSubscription, error) {
	params := &stripe.SubscriptionParams{CancelAtPeriodEnd: stripe.Bool(v)}
	params.Context = ctx
	sub, err := g.api.Subscriptions.Update(string(id), params)
	if err != nil {
		return nil, fmt.Errorf("stripe: update subscription %s: %w", id, err)
	}
	return toRemoteSubscription(sub), nil
}

func (g *StripeGateway) ListPaymentSources(ctx context.Context, customer CustomerID) ([]PaymentSource, error) {
	params := &stripe.PaymentMethodListParams{
		Customer: stripe.String(string(customer)),
		Type:     stripe.String(string(stripe.PaymentMethodTypeCard)),
	}
	params.Context = ctx

	var sources []PaymentSource
	it := g.api.PaymentMethods.List(params)
	for it.Next() {
		sources = append(sources, toPaymentSource(it.PaymentMethod()))
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("stripe: list payment methods of %s: %w", customer, err)
	}
	return sources, nil
}

// AttachPaymentSource attaches a payment method and makes it the invoice default.
func (g *StripeGateway) AttachPaymentSource(ctx context.Context, customer CustomerID, token string) (*PaymentSource, error) {
	attach := &stripe.PaymentMethodAttachParams{Customer: stripe.String(string(customer))}
	attach.Context = ctx
	pm, err := g.api.PaymentMethods.Attach(token, attach)
	if err != nil {
		return nil, fmt.Errorf("stripe: attach payment method to %s: %w", customer, err)
	}

	params := &stripe.CustomerParams{
		InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(pm.ID),
		},
	}
	params.Context = ctx
	if _, err := g.api.Customers.Update(string(customer), params); err != nil {
		return nil, fmt.Errorf("stripe: set default payment method of %s: %w", customer, err)
	}

	src := toPaymentSource(pm)
	return &src, nil
}

func (g *StripeGateway) DeletePaymentSource(ctx context.Context, customer CustomerID, sourceID string) error {
	params := &stripe.PaymentMethodDetachParams{}
	params.Context = ctx
	if _, err := g.api.PaymentMethods.Detach(sourceID, params); err != nil {
		return fmt.Errorf("stripe: detach payment method %s of %s: %w", sourceID, customer, err)
	}
	return nil
}

func (g *StripeGateway) DefaultPaymentSource(ctx context.Context, customer CustomerID) (*PaymentSource, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx
	params.AddExpand("invoice_settings.default_payment_method")

	c, err := g.api.Customers.Get(string(customer), params)
	if err != nil {
		return nil, fmt.Errorf("stripe: get customer %s: %w", customer, err)
	}
	if c.InvoiceSettings == nil || c.InvoiceSettings.DefaultPaymentMethod == nil {
		return nil, nil
	}
	src := toPaymentSource(c.InvoiceSettings.DefaultPaymentMethod)
	return &src, nil
}

// FindEvent fetches an event, keeping its data object as raw JSON.
func (g *StripeGateway) FindEvent(ctx context.Context, id string) (*Event, error) {
	params := &stripe.EventParams{}
	params.Context = ctx
	e, err := g.api.Events.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("stripe: get event %s: %w", id, err)
	}
	event := &Event{ID: e.ID, Type: EventType(e.Type)}
	if e.Data != nil {
		event.Data.Object = e.Data.Raw
	}
	return event, nil
}

// IsStripeNotFound reports whether err is Stripe's resource_missing error.
func IsStripeNotFound(err error) bool {
	var serr *stripe.Error
	return errors.As(err, &serr) && serr.Code == stripe.ErrorCodeResourceMissing
}

func toCustomer(c *stripe.Customer) *Customer {
	customer := &Customer{ID: CustomerID(c.ID), Email: c.Email, Name: c.Name}
	if c.InvoiceSettings != nil && c.InvoiceSettings.DefaultPaymentMethod != nil {
		customer.DefaultSourceID = c.InvoiceSettings.DefaultPaymentMethod.ID
	}
	return customer
}

func toRemotePlan(p *stripe.Plan) *RemotePlan {
	rp := &RemotePlan{
		ID:              PlanID(p.ID),
		Name:            p.Nickname,
		Amount:          p.Amount,
		Currency:        strings.ToUpper(string(p.Currency)),
		Interval:        Interval(p.Interval),
		Frequency:       int(p.IntervalCount),
		TrialPeriodDays: int(p.TrialPeriodDays),
	}
	if v, ok := p.Metadata[expiryCountMetadataKey]; ok {
		rp.ExpiryCount, _ = strconv.Atoi(v)
	}
	return rp
}

func toRemoteSubscription(s *stripe.Subscription) *RemoteSubscription {
	rs := &RemoteSubscription{
		ID:                SubscriptionID(s.ID),
		Status:            string(s.Status),
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
		TrialEnd:          unixPtr(s.TrialEnd),
		CanceledAt:        unixPtr(s.CanceledAt),
	}
	if s.BillingCycleAnchor != 0 {
		rs.BillingCycleAnchor = time.Unix(s.BillingCycleAnchor, 0)
	}
	if s.Customer != nil {
		rs.Customer = CustomerID(s.Customer.ID)
	}
	if s.Items != nil && len(s.Items.Data) > 0 {
		item := s.Items.Data[0]
		if item.Plan != nil {
			rs.Plan = PlanID(item.Plan.ID)
		}
		rs.CurrentPeriodEnd = time.Unix(item.CurrentPeriodEnd, 0)
	}
	return rs
}

func toPaymentSource(pm *stripe.PaymentMethod) PaymentSource {
	src := PaymentSource{ID: pm.ID}
	if pm.Card != nil {
		src.Brand = string(pm.Card.Brand)
		src.LastFour = pm.Card.Last4
		src.ExpMonth = int(pm.Card.ExpMonth)
		src.ExpYear = int(pm.Card.ExpYear)
	}
	return src
}

func unixPtr(v int64) *time.Time {
	if v == 0 {
		return nil
	}
	return timePtr(time.Unix(v, 0))
}

// stripeLogger routes the Stripe client's diagnostics to slog.
type stripeLogger struct {
	log *slog.Logger
}

func (l *stripeLogger) Debugf(format string, v ...any) { l.log.Debug(fmt.Sprintf(format, v...)) }
func (l *stripeLogger) Infof(format string, v ...any)  { l.log.Info(fmt.Sprintf(format, v...)) }
func (l *stripeLogger) Warnf(format string, v ...any)  { l.log.Warn(fmt.Sprintf(format, v...)) }
func (l *stripeLogger) Errorf(format string, v ...any) { l.log.Error(fmt.Sprintf(format, v...)) }
