package subscription

import "errors"

var (
	ErrPlanNotFound          = errors.New("subscription plan not found")
	ErrRemotePlanMissing     = errors.New("subscription plan not found on gateway")
	ErrInvalidPlanDefinition = errors.New("invalid subscription plan definition")
	ErrInvalidCatalog        = errors.New("invalid subscription plan catalog")

	ErrSubscriptionNotFound     = errors.New("subscription not found")
	ErrSubscriptionNotResumable = errors.New("subscription is not within its grace period and cannot be resumed")
	ErrNoRemoteSubscription     = errors.New("subscription has no gateway counterpart")

	ErrOwnerNotFound  = errors.New("billable owner not found")
	ErrCustomerExists = errors.New("billable owner already has a gateway customer")
	ErrNoCustomer     = errors.New("billable owner has no gateway customer")

	ErrGatewayRequest = errors.New("payment gateway request failed")
	ErrMissingAPIKey  = errors.New("payment gateway API key is required")

	ErrInvalidEvent           = errors.New("invalid webhook event")
	ErrUnverifiedWebhookEvent = errors.New("webhook event could not be verified")

	ErrLockTimeout = errors.New("timed out acquiring lock")
)
