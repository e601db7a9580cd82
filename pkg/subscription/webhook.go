package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dmitrymomot/cashier/pkg/logger"
)

// Event is a gateway webhook envelope.
type Event struct {
	ID   string    `json:"id"`
	Type EventType `json:"type"`
	Data EventData `json:"data"`
}

// EventData holds the event's subject as raw JSON; handlers decode what they need.
type EventData struct {
	Object json.RawMessage `json:"object"`
}

// ParseEvent decodes a webhook body. Both id and type are required.
func ParseEvent(payload []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, errors.Join(ErrInvalidEvent, err)
	}
	if event.ID == "" || event.Type == "" {
		return nil, errors.Join(ErrInvalidEvent, errors.New("event id and type are required"))
	}
	return &event, nil
}

// EventHandler applies one event type to local state.
type EventHandler func(ctx context.Context, event *Event) error

// Outcome is the result of reconciling one delivery.
type Outcome string

const (
	OutcomeHandled    Outcome = "handled"
	OutcomeIgnored    Outcome = "ignored"
	OutcomeUnverified Outcome = "unverified"
	OutcomeDuplicate  Outcome = "duplicate"
	OutcomeFailed     Outcome = "failed"
	OutcomeInvalid    Outcome = "invalid"
)

// Message is the response body reported to the sender for this outcome.
func (o Outcome) Message() string {
	switch o {
	case OutcomeHandled:
		return "Webhook Handled"
	case OutcomeIgnored:
		return "Webhook Ignored"
	case OutcomeUnverified:
		return "Webhook Unverified"
	case OutcomeDuplicate:
		return "Webhook Duplicate"
	case OutcomeFailed:
		return "Webhook Failed"
	default:
		return "Invalid webhook payload"
	}
}

// unverifiedEventType labels metrics for events whose type cannot be trusted.
const unverifiedEventType EventType = "unverified"

// Reconciler applies gateway webhook events to local state.
type Reconciler struct {
	svc      Service
	gateway  Gateway
	ledger   EventLedger
	handlers map[EventType]EventHandler
	testMode bool
	logger   *slog.Logger
	metrics  *metrics
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithTestMode skips the gateway re-fetch that authenticates events.
// Off by default; only for test environments.
func WithTestMode(enabled bool) ReconcilerOption {
	return func(r *Reconciler) {
		r.testMode = enabled
	}
}

// WithEventLedger replaces the in-process ledger used to drop duplicate deliveries.
func WithEventLedger(l EventLedger) ReconcilerOption {
	return func(r *Reconciler) {
		if l != nil {
			r.ledger = l
		}
	}
}

// WithEventHandler registers a handler for an event type.
// Panics on a nil handler or if the type already has one.
func WithEventHandler(t EventType, h EventHandler) ReconcilerOption {
	return func(r *Reconciler) {
		if h == nil {
			panic("subscription: nil handler for event type " + string(t))
		}
		if _, exists := r.handlers[t]; exists {
			panic("subscription: handler for event type " + string(t) + " already registered")
		}
		r.handlers[t] = h
	}
}

// WithEventHandlerOverride registers h for t, replacing any existing handler.
func WithEventHandlerOverride(t EventType, h EventHandler) ReconcilerOption {
	return func(r *Reconciler) {
		if h == nil {
			panic("subscription: nil handler for event type " + string(t))
		}
		r.handlers[t] = h
	}
}

// WithReconcilerLogger sets the reconciler logger.
func WithReconcilerLogger(l *slog.Logger) ReconcilerOption {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithReconcilerMetrics registers the webhook event counter with reg.
func WithReconcilerMetrics(reg prometheus.Registerer) ReconcilerOption {
	return func(r *Reconciler) {
		if reg != nil {
			r.metrics = newMetrics(reg)
		}
	}
}

// NewReconciler creates a Reconciler with the customer.subscription.deleted
// handler registered. Panics if svc or gateway is nil.
func NewReconciler(svc Service, gateway Gateway, opts ...ReconcilerOption) *Reconciler {
	if svc == nil {
		panic("subscription: Service is required")
	}
	if gateway == nil {
		panic("subscription: Gateway is required")
	}

	r := &Reconciler{
		svc:      svc,
		gateway:  gateway,
		ledger:   NewMemoryLedger(),
		handlers: make(map[EventType]EventHandler),
		logger:   slog.New(slog.DiscardHandler),
	}
	r.handlers[EventSubscriptionDeleted] = r.handleSubscriptionDeleted

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Reconcile authenticates a raw delivery and applies it.
//
// Outside test mode the payload is only trusted for its ID: the event is
// fetched from the gateway and the fetched copy is applied. A failed fetch
// yields OutcomeUnverified with an error wrapping ErrUnverifiedWebhookEvent.
// Only OutcomeInvalid means the delivery itself was malformed.
func (r *Reconciler) Reconcile(ctx context.Context, payload []byte) (Outcome, error) {
	event, err := ParseEvent(payload)
	if err != nil {
		r.metrics.webhookEvent(unverifiedEventType, OutcomeInvalid)
		r.logger.WarnContext(ctx, "malformed webhook payload", logger.Error(err))
		return OutcomeInvalid, err
	}
	ctx = WithEventID(ctx, event.ID)

	if !r.testMode {
		verified, err := r.gateway.FindEvent(ctx, event.ID)
		if err == nil && verified == nil {
			err = errors.New("gateway returned no event")
		}
		if err != nil {
			err = errors.Join(ErrUnverifiedWebhookEvent, err)
			r.metrics.webhookEvent(unverifiedEventType, OutcomeUnverified)
			r.logger.WarnContext(ctx, "webhook event not verified", logger.EventID(event.ID), logger.Error(err))
			return OutcomeUnverified, err
		}
		event = verified
	}

	return r.HandleEvent(ctx, event)
}

// HandleEvent dispatches an already authenticated event. Unknown types are
// ignored. Each event ID is applied at most once; a failed handler releases
// the claim so a redelivery can retry.
func (r *Reconciler) HandleEvent(ctx context.Context, event *Event) (Outcome, error) {
	ctx = WithEventID(ctx, event.ID)
	outcome, err := r.dispatch(ctx, event)
	r.metrics.webhookEvent(event.Type, outcome)

	attrs := []slog.Attr{
		logger.EventID(event.ID),
		logger.EventType(string(event.Type)),
		logger.Outcome(string(outcome)),
	}
	if err != nil {
		attrs = append(attrs, logger.Error(err))
		r.logger.LogAttrs(ctx, slog.LevelError, "webhook event failed", attrs...)
		return outcome, err
	}
	r.logger.LogAttrs(ctx, slog.LevelInfo, "webhook event reconciled", attrs...)
	return outcome, nil
}

func (r *Reconciler) dispatch(ctx context.Context, event *Event) (Outcome, error) {
	handler, ok := r.handlers[event.Type]
	if !ok {
		return OutcomeIgnored, nil
	}

	claimed, err := r.ledger.Claim(ctx, event.ID)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("claim event %s: %w", event.ID, err)
	}
	if !claimed {
		return OutcomeDuplicate, nil
	}

	if err := handler(ctx, event); err != nil {
		if rerr := r.ledger.Release(ctx, event.ID); rerr != nil {
			err = errors.Join(err, rerr)
		}
		return OutcomeFailed, err
	}
	return OutcomeHandled, nil
}

type subscriptionObject struct {
	ID       SubscriptionID `json:"id"`
	Customer CustomerID     `json:"customer"`
}

// handleSubscriptionDeleted marks every local subscription matching the
// deleted gateway subscription as cancelled. Unknown customers and
// subscriptions are skipped; MarkAsCancelled leaves ended ones as they are.
func (r *Reconciler) handleSubscriptionDeleted(ctx context.Context, event *Event) error {
	var obj subscriptionObject
	if err := json.Unmarshal(event.Data.Object, &obj); err != nil {
		return errors.Join(ErrInvalidEvent, err)
	}
	if obj.ID == "" || obj.Customer == "" {
		return nil
	}

	billable, err := r.svc.BillableByCustomer(ctx, obj.Customer)
	if errors.Is(err, ErrOwnerNotFound) {
		r.logger.DebugContext(ctx, "no owner for customer", logger.CustomerID(obj.Customer))
		return nil
	}
	if err != nil {
		return err
	}

	for _, sub := range billable.Subscriptions {
		if sub.ProviderID != obj.ID {
			continue
		}
		if err := r.svc.MarkAsCancelled(ctx, sub); err != nil {
			return err
		}
	}
	return nil
}
