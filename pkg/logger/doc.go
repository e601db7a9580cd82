// Package logger builds *slog.Logger instances from functional options and
// provides attribute helpers so that keys stay consistent across packages.
//
// New picks a text or JSON handler, applies static attributes and, when
// extractors are registered, wraps the handler so that values carried in a
// context.Context (such as a webhook event ID) are added to every record
// logged with that context.
//
// # Usage
//
//	import "github.com/dmitrymomot/cashier/pkg/logger"
//
//	log := logger.New(
//		logger.WithConfig(cfg),
//		logger.WithService("cashier", ""),
//		logger.WithContextExtractors(subscription.LogEventID),
//	)
//	log.InfoContext(ctx, "subscription created",
//		logger.OwnerID(ownerID),
//		logger.PlanID(planID),
//	)
//
// Environment variables (see Config):
//
//	LOG_LEVEL   debug, info, warn or error (default info)
//	LOG_FORMAT  json or text (default json)
//	APP_ENV     added to every record as env (default production)
package logger
