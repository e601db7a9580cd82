package subscription

import (
	"context"
	"log/slog"
)

type eventIDCtxKey struct{}

// WithEventID stores the webhook event being applied in ctx.
func WithEventID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, eventIDCtxKey{}, id)
}

// EventIDFromContext returns the webhook event ID stored by WithEventID.
func EventIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(eventIDCtxKey{}).(string)
	return id, ok && id != ""
}

// LogEventID is a logger context extractor that adds the webhook event ID
// to records logged while an event is applied.
func LogEventID(ctx context.Context) (slog.Attr, bool) {
	id, ok := EventIDFromContext(ctx)
	if !ok {
		return slog.Attr{}, false
	}
	return slog.String("event_id", id), true
}
