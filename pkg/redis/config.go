package redis

import "time"

// Config holds Redis connection settings.
type Config struct {
	ConnectionURL  string        `env:"REDIS_URL"` // redis://:password@localhost:6379/0
	RetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"2s"`
	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"30s"`

	KeyPrefix string        `env:"REDIS_KEY_PREFIX" envDefault:"cashier:"`
	LockTTL   time.Duration `env:"REDIS_LOCK_TTL" envDefault:"30s"`
	EventTTL  time.Duration `env:"REDIS_EVENT_TTL" envDefault:"72h"` // How long applied webhook event IDs are remembered
}
