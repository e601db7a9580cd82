package subscription

import "strings"

// Config holds process-wide settings for the billing core.
type Config struct {
	// Env set to "testing" skips gateway re-fetch of webhook events. Never enable it in production.
	Env       string `env:"CASHIER_ENV" envDefault:"production"`
	Currency  string `env:"CASHIER_CURRENCY" envDefault:"MXN"`
	PlansFile string `env:"CASHIER_PLANS_FILE"`
}

// TestMode reports whether webhook authentication is bypassed.
func (c Config) TestMode() bool {
	return strings.EqualFold(strings.TrimSpace(c.Env), "testing")
}
