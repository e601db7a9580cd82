package subscription

import (
	"context"

	"github.com/google/uuid"

	"github.com/dmitrymomot/cashier/pkg/logger"
)

// UpdateCard adds a tokenized card to the owner's customer, makes it the
// default and refreshes the cached card details.
func (s *service) UpdateCard(ctx context.Context, ownerID uuid.UUID, token string) error {
	return s.mutateOwner(ctx, "update_card", ownerID, func(owner *Owner) error {
		if !owner.HasCustomerID() {
			return ErrNoCustomer
		}
		if _, err := s.gateway.AttachPaymentSource(ctx, owner.CustomerID, token); err != nil {
			return gatewayError(err)
		}
		return s.refreshCard(ctx, owner)
	})
}

// SyncCard copies the brand and last four digits of the default payment
// source into the owner record, clearing them when there is no default.
func (s *service) SyncCard(ctx context.Context, ownerID uuid.UUID) error {
	return s.mutateOwner(ctx, "sync_card", ownerID, func(owner *Owner) error {
		return s.refreshCard(ctx, owner)
	})
}

// DeleteCards removes every payment source of the owner's customer and
// refreshes the cached card details.
func (s *service) DeleteCards(ctx context.Context, ownerID uuid.UUID) error {
	return s.mutateOwner(ctx, "delete_cards", ownerID, func(owner *Owner) error {
		if owner.HasCustomerID() {
			sources, err := s.gateway.ListPaymentSources(ctx, owner.CustomerID)
			if err != nil {
				return gatewayError(err)
			}
			for _, src := range sources {
				if err := s.gateway.DeletePaymentSource(ctx, owner.CustomerID, src.ID); err != nil {
					return gatewayError(err)
				}
			}
		}
		return s.refreshCard(ctx, owner)
	})
}

// Cards lists the owner's payment sources at the gateway. Owners without a
// customer have none.
func (s *service) Cards(ctx context.Context, ownerID uuid.UUID) ([]PaymentSource, error) {
	owner, err := s.store.FindOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if !owner.HasCustomerID() {
		return nil, nil
	}
	sources, err := s.gateway.ListPaymentSources(ctx, owner.CustomerID)
	if err != nil {
		return nil, gatewayError(err)
	}
	return sources, nil
}

// DefaultCard returns the owner's default payment source, or nil if none.
func (s *service) DefaultCard(ctx context.Context, ownerID uuid.UUID) (*PaymentSource, error) {
	owner, err := s.store.FindOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if !owner.HasCustomerID() {
		return nil, nil
	}
	src, err := s.gateway.DefaultPaymentSource(ctx, owner.CustomerID)
	if err != nil {
		return nil, gatewayError(err)
	}
	return src, nil
}

// refreshCard fills the owner's card cache from the gateway without saving.
func (s *service) refreshCard(ctx context.Context, owner *Owner) error {
	if !owner.HasCustomerID() {
		owner.fillCard(nil)
		return nil
	}
	src, err := s.gateway.DefaultPaymentSource(ctx, owner.CustomerID)
	if err != nil {
		return gatewayError(err)
	}
	owner.fillCard(src)
	return nil
}

// mutateOwner loads the owner under its lock, applies fn and saves the result.
func (s *service) mutateOwner(ctx context.Context, op string, ownerID uuid.UUID, fn func(*Owner) error) error {
	err := s.withLock(ctx, ownerLockKey(ownerID), func() error {
		owner, err := s.store.FindOwner(ctx, ownerID)
		if err != nil {
			return err
		}
		if err := fn(owner); err != nil {
			return err
		}
		owner.UpdatedAt = s.now()
		return s.store.SaveOwner(ctx, owner)
	})
	s.metrics.transition(op, err)
	if err != nil {
		s.logError(ctx, "owner update failed", err, logger.Operation(op), logger.OwnerID(ownerID))
	}
	return err
}
