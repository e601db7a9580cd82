// Package subscription manages recurring billing subscriptions bound to an
// external payment gateway and reconciles them against the gateway's webhooks.
//
// The gateway is the source of truth for money. This package only tracks
// lifecycle state (trial, grace period, ended) and identity locally.
//
// # Architecture
//
//   - Service: plan identity, the subscription lifecycle, customers and cards
//   - Reconciler: authenticates, deduplicates and applies webhook events
//   - Gateway: the payment gateway client (StripeGateway is provided)
//   - Store: persistence of plans, owners and subscriptions (MemoryStore here, PostgreSQL in pgstore)
//   - Locker: per-key mutual exclusion (MemoryLocker here, Redis in pkg/redis)
//   - EventLedger: applied webhook events (MemoryLedger here, Redis and PostgreSQL adapters elsewhere)
//
// # Plan Identity
//
// A plan's identifier is derived from its billing attributes, so equivalent
// definitions always resolve to the same gateway plan:
//
//	id, _ := subscription.CanonicalPlanID(subscription.PlanDefinition{
//		Amount:          1000,
//		TrialPeriodDays: 7,
//	}, time.Now())
//	// id == "mxn-1000-month-1-7--"
//
// EnsurePlan replaces an existing gateway plan with the same identifier rather
// than reusing it, then upserts the local record.
//
// # Lifecycle
//
// States are derived from two timestamps and never stored. TrialEndsAt in the
// future means the subscription is trialing. EndsAt set means it was cancelled;
// while EndsAt is in the future the subscription is in its grace period and
// still active.
//
//	sub, err := svc.NewSubscription(ctx, ownerID, planID, subscription.CreateOptions{
//		PaymentToken: "pm_card_visa",
//	})
//	err = svc.Cancel(ctx, sub)  // grace period until the period (or trial) ends
//	err = svc.Resume(ctx, sub)  // only within the grace period
//	err = svc.Swap(ctx, sub.SkipTrial(), otherPlanID, subscription.AnchorBillingCycleNow())
//
// Every mutation takes the subscription's lock, so direct calls and webhook
// deliveries for the same subscription never interleave.
//
// # Webhooks
//
//	rec := subscription.NewReconciler(svc, gateway,
//		subscription.WithEventLedger(ledger),
//		subscription.WithEventHandler("invoice.paid", onInvoicePaid),
//	)
//	r.Mount("/webhooks/stripe", subscription.WebhookRoutes(rec))
//
// Outside test mode an event is only trusted after it has been fetched back
// from the gateway by ID. Unknown types, unverified events and handler
// failures all answer 200 so the gateway does not retry events this service
// deliberately ignores.
//
// # Error Handling
//
// Sentinel errors are joined with their causes and can be matched with errors.Is:
//
//	if errors.Is(err, subscription.ErrSubscriptionNotResumable) {
//		// the grace period is over; create a new subscription instead
//	}
package subscription
