package subscription_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/cashier/pkg/subscription"
)

func TestEnsurePlan(t *testing.T) {
	t.Parallel()

	t.Run("creates remote and local plan", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)

		plan := e.plan(t, subscription.PlanDefinition{Name: "Basic", Amount: 1000, TrialPeriodDays: 7})
		assert.Equal(t, subscription.PlanID("mxn-1000-month-1-7--"), plan.ID)
		assert.Nil(t, plan.TrialEndsAt)

		remote, err := e.gateway.FindPlan(t.Context(), plan.ID)
		require.NoError(t, err)
		assert.Equal(t, 7, remote.TrialPeriodDays)
		assert.Equal(t, "MXN", remote.Currency)

		stored, err := e.store.FindPlan(t.Context(), plan.ID)
		require.NoError(t, err)
		assert.Equal(t, "Basic", stored.Name)
	})

	t.Run("replaces existing remote plan and upserts local", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)

		first := e.plan(t, subscription.PlanDefinition{Name: "Basic", Amount: 1000})
		e.clock.Advance(time.Hour)
		second := e.plan(t, subscription.PlanDefinition{Name: "Basic renamed", Amount: 1000})

		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, []string{"CreatePlan", "DeletePlan", "CreatePlan"}, e.gateway.Calls())

		stored, err := e.store.FindPlan(t.Context(), first.ID)
		require.NoError(t, err)
		assert.Equal(t, "Basic renamed", stored.Name)
		assert.True(t, first.CreatedAt.Equal(stored.CreatedAt))
	})

	t.Run("explicit trial end is kept on the local plan", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		end := e.clock.Now().AddDate(0, 0, 10)

		plan := e.plan(t, subscription.PlanDefinition{Amount: 1000, TrialEndsAt: &end})
		assert.Equal(t, subscription.PlanID("mxn-1000-month-1-10--"), plan.ID)
		require.NotNil(t, plan.TrialEndsAt)
		assert.True(t, end.Equal(*plan.TrialEndsAt))
	})

	t.Run("lookup failure is treated as absent", func(t *testing.T) {
		t.Parallel()
		gw := &mockGateway{}
		svc := subscription.NewService(gw, subscription.NewMemoryStore())

		gw.On("FindPlan", mock.Anything, subscription.PlanID("mxn-1000-month-1---")).
			Return(nil, errors.New("network down")).Once()
		gw.On("CreatePlan", mock.Anything, mock.MatchedBy(func(p subscription.RemotePlan) bool {
			return p.ID == "mxn-1000-month-1---" && p.Amount == 1000
		})).Return(&subscription.RemotePlan{ID: "mxn-1000-month-1---"}, nil).Once()

		plan, err := svc.EnsurePlan(context.Background(), subscription.PlanDefinition{Amount: 1000})
		require.NoError(t, err)
		assert.Equal(t, subscription.PlanID("mxn-1000-month-1---"), plan.ID)

		gw.AssertExpectations(t)
		gw.AssertNotCalled(t, "DeletePlan", mock.Anything, mock.Anything)
	})

	t.Run("create failure leaves no local record", func(t *testing.T) {
		t.Parallel()
		gw := &mockGateway{}
		store := subscription.NewMemoryStore()
		svc := subscription.NewService(gw, store)

		gw.On("FindPlan", mock.Anything, mock.Anything).Return(nil, errors.New("missing"))
		gw.On("CreatePlan", mock.Anything, mock.Anything).Return(nil, errors.New("declined"))

		_, err := svc.EnsurePlan(context.Background(), subscription.PlanDefinition{Amount: 1000})
		assert.ErrorIs(t, err, subscription.ErrGatewayRequest)

		_, err = store.FindPlan(context.Background(), "mxn-1000-month-1---")
		assert.ErrorIs(t, err, subscription.ErrPlanNotFound)
	})

	t.Run("concurrent calls on one definition", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		def := subscription.PlanDefinition{Name: "Basic", Amount: 1000, TrialPeriodDays: 7}

		const n = 20
		var wg sync.WaitGroup
		errs := make([]error, n)
		ids := make([]subscription.PlanID, n)
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				plan, err := e.svc.EnsurePlan(t.Context(), def)
				errs[i] = err
				if plan != nil {
					ids[i] = plan.ID
				}
			}()
		}
		wg.Wait()

		for i := range n {
			require.NoError(t, errs[i])
			assert.Equal(t, subscription.PlanID("mxn-1000-month-1-7--"), ids[i])
		}

		counts := map[string]int{}
		for _, call := range e.gateway.Calls() {
			counts[call]++
		}
		assert.Equal(t, n, counts["CreatePlan"])
		assert.Equal(t, n-1, counts["DeletePlan"])

		remote, err := e.gateway.FindPlan(t.Context(), "mxn-1000-month-1-7--")
		require.NoError(t, err)
		assert.Equal(t, 7, remote.TrialPeriodDays)
	})

	t.Run("invalid definition", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		_, err := e.svc.EnsurePlan(t.Context(), subscription.PlanDefinition{Amount: 0})
		assert.ErrorIs(t, err, subscription.ErrInvalidPlanDefinition)
		assert.Empty(t, e.gateway.Calls())
	})

	t.Run("default currency option", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t, subscription.WithDefaultCurrency("USD"))
		plan := e.plan(t, subscription.PlanDefinition{Amount: 1000})
		assert.Equal(t, subscription.PlanID("usd-1000-month-1---"), plan.ID)
	})
}

func TestNewServicePanicsWithoutCollaborators(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() { subscription.NewService(nil, subscription.NewMemoryStore()) })
	assert.Panics(t, func() { subscription.NewService(&mockGateway{}, nil) })
}
