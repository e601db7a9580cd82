package logger

import (
	"log/slog"
	"strconv"
)

// Group creates a slog group attribute from the provided attributes.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

// Errors groups multiple non-nil errors under the key "errors".
// If all errors are nil, it returns an empty Attr.
func Errors(errs ...error) slog.Attr {
	as := make([]slog.Attr, 0, len(errs))
	for i, err := range errs {
		if err != nil {
			as = append(as, slog.Any(strconv.Itoa(i), err))
		}
	}
	if len(as) == 0 {
		return slog.Attr{}
	}
	return slog.Attr{Key: "errors", Value: slog.GroupValue(as...)}
}

// Error records err under the key "error". A nil err yields an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Component names the part of the service emitting the record.
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Operation records the lifecycle operation, e.g. "cancel" or "swap".
func Operation(name string) slog.Attr {
	return slog.String("operation", name)
}

// Outcome is the result of processing a webhook event.
func Outcome(outcome string) slog.Attr {
	return slog.String("outcome", outcome)
}

// EventType is the gateway event type, e.g. customer.subscription.deleted.
func EventType(eventType string) slog.Attr {
	return slog.String("event_type", eventType)
}

// EventID is the gateway event identifier.
func EventID(id string) slog.Attr {
	return slog.String("event_id", id)
}

// OwnerID records the billable owner under the key "owner_id".
// A nil id yields an empty Attr.
func OwnerID(id any) slog.Attr {
	return anyID("owner_id", id)
}

// SubscriptionID records a local subscription identifier under "subscription_id".
func SubscriptionID(id any) slog.Attr {
	return anyID("subscription_id", id)
}

// PlanID accepts any string-like plan identifier.
func PlanID(id any) slog.Attr {
	return anyID("plan_id", id)
}

// CustomerID accepts any string-like gateway customer identifier.
func CustomerID(id any) slog.Attr {
	return anyID("customer_id", id)
}

// Duration records a duration under the key "duration".
func Duration(d any) slog.Attr {
	return slog.Any("duration", d)
}

func anyID(key string, id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	if s, ok := id.(interface{ String() string }); ok {
		return slog.String(key, s.String())
	}
	return slog.Any(key, id)
}
