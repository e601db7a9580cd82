package subscription

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/currency"
)

// DefaultCurrency is applied to plan definitions that do not name one.
const DefaultCurrency = "MXN"

const planIDSeparator = "-"

const day = 24 * time.Hour

// CanonicalPlanID returns the deterministic identifier of a plan definition.
// Definitions that agree on currency, amount, interval, frequency, trial length
// and expiry count resolve to the same identifier.
func CanonicalPlanID(def PlanDefinition, now time.Time) (PlanID, error) {
	norm, err := NormalizePlanDefinition(def, DefaultCurrency, now)
	if err != nil {
		return "", err
	}
	return canonicalPlanID(norm), nil
}

// NormalizePlanDefinition fills defaults and folds a concrete trial end into a
// trial length counted in whole days from now. TrialEndsAt is kept on the result
// so the caller can store it with the local plan.
func NormalizePlanDefinition(def PlanDefinition, defaultCurrency string, now time.Time) (PlanDefinition, error) {
	if def.Amount <= 0 {
		return def, errors.Join(ErrInvalidPlanDefinition, fmt.Errorf("amount must be positive, got %d", def.Amount))
	}

	if def.Currency == "" {
		def.Currency = defaultCurrency
	}
	unit, err := currency.ParseISO(def.Currency)
	if err != nil {
		return def, errors.Join(ErrInvalidPlanDefinition, fmt.Errorf("currency %q: %w", def.Currency, err))
	}
	def.Currency = unit.String()

	if def.Interval == "" {
		def.Interval = IntervalMonth
	}
	if !def.Interval.Valid() {
		return def, errors.Join(ErrInvalidPlanDefinition, fmt.Errorf("unknown interval %q", def.Interval))
	}

	if def.Frequency == 0 {
		def.Frequency = 1
	}
	if def.Frequency < 0 || def.TrialPeriodDays < 0 || def.ExpiryCount < 0 {
		return def, errors.Join(ErrInvalidPlanDefinition, errors.New("frequency, trial period and expiry count must not be negative"))
	}

	if def.TrialEndsAt != nil {
		def.TrialPeriodDays = daysBetween(now, *def.TrialEndsAt)
	}

	return def, nil
}

// canonicalPlanID projects a normalized definition onto the fixed key order
// currency, amount, interval, frequency, trial_period_days, trial_ends_at, expiry_count.
// The trial_ends_at slot is always empty: by now it has been folded into the trial length.
func canonicalPlanID(def PlanDefinition) PlanID {
	parts := []string{
		def.Currency,
		strconv.FormatInt(def.Amount, 10),
		string(def.Interval),
		strconv.Itoa(def.Frequency),
		optionalInt(def.TrialPeriodDays),
		"",
		optionalInt(def.ExpiryCount),
	}
	return PlanID(strings.ToLower(strings.Join(parts, planIDSeparator)))
}

func optionalInt(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}

// daysBetween counts whole days from now until t, never negative.
func daysBetween(now, t time.Time) int {
	if !t.After(now) {
		return 0
	}
	return int(t.Sub(now) / day)
}
