package subscription

import (
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ServiceOption configures a Service instance.
type ServiceOption func(*service)

// WithLocker replaces the in-process locker, e.g. with a Redis-backed one when
// several instances serve the same database.
func WithLocker(l Locker) ServiceOption {
	return func(s *service) {
		if l != nil {
			s.locker = l
		}
	}
}

// WithLogger sets the service logger. The default discards everything.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics registers lifecycle counters with reg.
func WithMetrics(reg prometheus.Registerer) ServiceOption {
	return func(s *service) {
		if reg != nil {
			s.metrics = newMetrics(reg)
		}
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithDefaultCurrency sets the currency applied to plan definitions without one.
func WithDefaultCurrency(code string) ServiceOption {
	return func(s *service) {
		if code = strings.TrimSpace(code); code != "" {
			s.currency = strings.ToUpper(code)
		}
	}
}
