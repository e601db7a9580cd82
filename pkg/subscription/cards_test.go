package subscription_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/cashier/pkg/subscription"
)

func TestCreateCustomer(t *testing.T) {
	t.Parallel()

	t.Run("links customer and caches card", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		owner := e.owner(t)

		customer, err := e.svc.CreateCustomer(t.Context(), owner.ID, "tok_visa", subscription.CustomerOptions{
			Email: "billing@example.com",
			Name:  "Billing",
		})
		require.NoError(t, err)
		assert.Equal(t, "billing@example.com", customer.Email)

		b, err := e.svc.Billable(t.Context(), owner.ID)
		require.NoError(t, err)
		assert.Equal(t, customer.ID, b.Owner.CustomerID)
		assert.True(t, b.HasCardOnFile())

		byCustomer, err := e.svc.BillableByCustomer(t.Context(), customer.ID)
		require.NoError(t, err)
		assert.Equal(t, owner.ID, byCustomer.Owner.ID)
	})

	t.Run("partial overrides fall back to owner details", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		owner := e.owner(t)

		customer, err := e.svc.CreateCustomer(t.Context(), owner.ID, "", subscription.CustomerOptions{Email: "only@example.com"})
		require.NoError(t, err)
		assert.Equal(t, owner.Email, customer.Email)
		assert.Equal(t, owner.Name, customer.Name)
	})

	t.Run("already linked", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		owner := e.owner(t)
		_, err := e.svc.CreateCustomer(t.Context(), owner.ID, "", subscription.CustomerOptions{})
		require.NoError(t, err)

		_, err = e.svc.CreateCustomer(t.Context(), owner.ID, "", subscription.CustomerOptions{})
		assert.ErrorIs(t, err, subscription.ErrCustomerExists)
	})

	t.Run("customer created on first use", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		owner := e.owner(t)

		first, err := e.svc.Customer(t.Context(), owner.ID)
		require.NoError(t, err)
		second, err := e.svc.Customer(t.Context(), owner.ID)
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
	})

	t.Run("unknown owner", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		_, err := e.svc.CreateCustomer(t.Context(), uuid.New(), "", subscription.CustomerOptions{})
		assert.ErrorIs(t, err, subscription.ErrOwnerNotFound)
		_, err = e.svc.BillableByCustomer(t.Context(), "cus_unknown")
		assert.ErrorIs(t, err, subscription.ErrOwnerNotFound)
	})
}

func TestCards(t *testing.T) {
	t.Parallel()

	t.Run("update card replaces the cached default", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		ctx := t.Context()
		owner := e.owner(t)
		_, err := e.svc.CreateCustomer(ctx, owner.ID, "tok_visa", subscription.CustomerOptions{})
		require.NoError(t, err)

		require.NoError(t, e.svc.UpdateCard(ctx, owner.ID, "tok_mastercard"))

		b, err := e.svc.Billable(ctx, owner.ID)
		require.NoError(t, err)
		assert.Equal(t, "mastercard", b.Owner.CardBrand)
		assert.Equal(t, "4444", b.Owner.CardLastFour)

		cards, err := e.svc.Cards(ctx, owner.ID)
		require.NoError(t, err)
		assert.Len(t, cards, 2)

		def, err := e.svc.DefaultCard(ctx, owner.ID)
		require.NoError(t, err)
		require.NotNil(t, def)
		assert.Equal(t, "mastercard", def.Brand)
	})

	t.Run("delete cards clears the cache", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		ctx := t.Context()
		owner := e.owner(t)
		_, err := e.svc.CreateCustomer(ctx, owner.ID, "tok_visa", subscription.CustomerOptions{})
		require.NoError(t, err)
		require.NoError(t, e.svc.UpdateCard(ctx, owner.ID, "tok_mastercard"))

		require.NoError(t, e.svc.DeleteCards(ctx, owner.ID))

		b, err := e.svc.Billable(ctx, owner.ID)
		require.NoError(t, err)
		assert.False(t, b.HasCardOnFile())
		assert.Empty(t, b.Owner.CardLastFour)

		cards, err := e.svc.Cards(ctx, owner.ID)
		require.NoError(t, err)
		assert.Empty(t, cards)
		def, err := e.svc.DefaultCard(ctx, owner.ID)
		require.NoError(t, err)
		assert.Nil(t, def)
	})

	t.Run("sync without customer clears stale cache", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		ctx := t.Context()
		owner := e.owner(t)
		owner.CardBrand = "amex"
		owner.CardLastFour = "0005"
		require.NoError(t, e.store.SaveOwner(ctx, owner))

		require.NoError(t, e.svc.SyncCard(ctx, owner.ID))

		stored, err := e.store.FindOwner(ctx, owner.ID)
		require.NoError(t, err)
		assert.Empty(t, stored.CardBrand)
		assert.Empty(t, stored.CardLastFour)

		cards, err := e.svc.Cards(ctx, owner.ID)
		require.NoError(t, err)
		assert.Nil(t, cards)
	})

	t.Run("update card requires a customer", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		owner := e.owner(t)
		err := e.svc.UpdateCard(t.Context(), owner.ID, "tok_visa")
		assert.ErrorIs(t, err, subscription.ErrNoCustomer)
	})
}

func TestSyncCardGatewayFailureKeepsCache(t *testing.T) {
	t.Parallel()
	gw := &mockGateway{}
	store := subscription.NewMemoryStore()
	svc := subscription.NewService(gw, store)
	ctx := context.Background()

	owner := &subscription.Owner{ID: uuid.New(), CustomerID: "cus_1", CardBrand: "visa", CardLastFour: "4242"}
	require.NoError(t, store.SaveOwner(ctx, owner))
	gw.On("DefaultPaymentSource", mock.Anything, subscription.CustomerID("cus_1")).Return(nil, errors.New("unavailable"))

	err := svc.SyncCard(ctx, owner.ID)
	assert.ErrorIs(t, err, subscription.ErrGatewayRequest)

	stored, err := store.FindOwner(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, "4242", stored.CardLastFour)
}
