package subscription_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/cashier/pkg/subscription"
)

func TestCanonicalPlanID(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		def  subscription.PlanDefinition
		want subscription.PlanID
	}{
		{
			name: "defaults",
			def:  subscription.PlanDefinition{Amount: 1000},
			want: "mxn-1000-month-1---",
		},
		{
			name: "with trial",
			def:  subscription.PlanDefinition{Amount: 1000, TrialPeriodDays: 7},
			want: "mxn-1000-month-1-7--",
		},
		{
			name: "all attributes",
			def: subscription.PlanDefinition{
				Amount:          25000,
				Currency:        "usd",
				Interval:        subscription.IntervalYear,
				Frequency:       2,
				TrialPeriodDays: 14,
				ExpiryCount:     12,
			},
			want: "usd-25000-year-2-14--12",
		},
		{
			name: "trial end folds into trial length",
			def:  subscription.PlanDefinition{Amount: 1000, TrialEndsAt: ptr(now.AddDate(0, 0, 10))},
			want: "mxn-1000-month-1-10--",
		},
		{
			name: "trial end wins over trial length",
			def:  subscription.PlanDefinition{Amount: 1000, TrialPeriodDays: 3, TrialEndsAt: ptr(now.AddDate(0, 0, 5))},
			want: "mxn-1000-month-1-5--",
		},
		{
			name: "past trial end means no trial",
			def:  subscription.PlanDefinition{Amount: 1000, TrialEndsAt: ptr(now.Add(-time.Hour))},
			want: "mxn-1000-month-1---",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			id, err := subscription.CanonicalPlanID(tt.def, now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, id)
		})
	}
}

func TestCanonicalPlanIDExplicitDefaultsCollide(t *testing.T) {
	t.Parallel()
	now := time.Now()

	implicit, err := subscription.CanonicalPlanID(subscription.PlanDefinition{Amount: 500}, now)
	require.NoError(t, err)
	explicit, err := subscription.CanonicalPlanID(subscription.PlanDefinition{
		Name:      "Different label",
		Amount:    500,
		Currency:  "MXN",
		Interval:  subscription.IntervalMonth,
		Frequency: 1,
	}, now)
	require.NoError(t, err)

	assert.Equal(t, implicit, explicit)
}

func TestCanonicalPlanIDDistinguishesAttributes(t *testing.T) {
	t.Parallel()
	now := time.Now()
	base := subscription.PlanDefinition{Amount: 500}

	variants := []subscription.PlanDefinition{
		{Amount: 501},
		{Amount: 500, Currency: "USD"},
		{Amount: 500, Interval: subscription.IntervalWeek},
		{Amount: 500, Frequency: 3},
		{Amount: 500, TrialPeriodDays: 1},
		{Amount: 500, ExpiryCount: 6},
	}

	baseID, err := subscription.CanonicalPlanID(base, now)
	require.NoError(t, err)
	for _, v := range variants {
		id, err := subscription.CanonicalPlanID(v, now)
		require.NoError(t, err)
		assert.NotEqual(t, baseID, id)
	}
}

func TestNormalizePlanDefinitionRejectsInvalid(t *testing.T) {
	t.Parallel()
	now := time.Now()

	tests := []struct {
		name string
		def  subscription.PlanDefinition
	}{
		{"zero amount", subscription.PlanDefinition{}},
		{"negative amount", subscription.PlanDefinition{Amount: -1}},
		{"unknown currency", subscription.PlanDefinition{Amount: 1, Currency: "ZZZ"}},
		{"unknown interval", subscription.PlanDefinition{Amount: 1, Interval: "fortnight"}},
		{"negative frequency", subscription.PlanDefinition{Amount: 1, Frequency: -1}},
		{"negative trial", subscription.PlanDefinition{Amount: 1, TrialPeriodDays: -1}},
		{"negative expiry", subscription.PlanDefinition{Amount: 1, ExpiryCount: -2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := subscription.NormalizePlanDefinition(tt.def, subscription.DefaultCurrency, now)
			assert.ErrorIs(t, err, subscription.ErrInvalidPlanDefinition)
		})
	}
}

func TestNormalizePlanDefinitionKeepsTrialEnd(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	end := now.AddDate(0, 0, 3)

	norm, err := subscription.NormalizePlanDefinition(subscription.PlanDefinition{
		Amount:      100,
		Currency:    "eur",
		TrialEndsAt: &end,
	}, "USD", now)
	require.NoError(t, err)

	assert.Equal(t, "EUR", norm.Currency)
	assert.Equal(t, 3, norm.TrialPeriodDays)
	require.NotNil(t, norm.TrialEndsAt)
	assert.True(t, end.Equal(*norm.TrialEndsAt))
}
