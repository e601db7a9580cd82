// Package requestid correlates the log records of one HTTP delivery.
//
// Middleware keeps a client supplied X-Request-ID when it is made of letters,
// digits, '-' and '_' and is at most 128 bytes long; otherwise it generates a
// UUID. LogRequestID plugs into logger.WithContextExtractors so every record
// logged while handling a webhook carries the same request_id:
//
//	log := logger.New(logger.WithContextExtractors(requestid.LogRequestID))
//	r.Use(requestid.Middleware)
package requestid
