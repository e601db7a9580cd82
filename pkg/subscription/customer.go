package subscription

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/dmitrymomot/cashier/pkg/logger"
)

// CustomerOptions overrides the owner's details sent to the gateway.
type CustomerOptions struct {
	Email    string
	Name     string
	Metadata map[string]string
}

// CreateCustomer creates the owner's gateway customer, optionally with a
// default payment source. Fails with ErrCustomerExists if one is already linked.
func (s *service) CreateCustomer(ctx context.Context, ownerID uuid.UUID, token string, opts CustomerOptions) (*Customer, error) {
	var customer *Customer
	err := s.withLock(ctx, ownerLockKey(ownerID), func() error {
		owner, err := s.store.FindOwner(ctx, ownerID)
		if err != nil {
			return err
		}
		if owner.HasCustomerID() {
			return ErrCustomerExists
		}
		customer, err = s.createCustomer(ctx, owner, token, opts)
		return err
	})
	if err != nil {
		s.logError(ctx, "failed to create customer", err, logger.OwnerID(ownerID))
		return nil, err
	}
	return customer, nil
}

// Customer returns the owner's gateway customer, creating it on first use.
func (s *service) Customer(ctx context.Context, ownerID uuid.UUID) (*Customer, error) {
	var customer *Customer
	err := s.withLock(ctx, ownerLockKey(ownerID), func() error {
		owner, err := s.store.FindOwner(ctx, ownerID)
		if err != nil {
			return err
		}
		if !owner.HasCustomerID() {
			customer, err = s.createCustomer(ctx, owner, "", CustomerOptions{})
			return err
		}
		customer, err = s.gateway.FindCustomer(ctx, owner.CustomerID)
		return gatewayError(err)
	})
	if err != nil {
		return nil, err
	}
	return customer, nil
}

// createCustomer links owner to a new gateway customer and saves it.
// The gateway customer is deleted again if the owner cannot be saved.
func (s *service) createCustomer(ctx context.Context, owner *Owner, token string, opts CustomerOptions) (*Customer, error) {
	customer, err := s.gateway.CreateCustomer(ctx, s.customerParams(owner, token, opts))
	if err != nil {
		return nil, gatewayError(err)
	}
	owner.CustomerID = customer.ID

	if token != "" {
		if err := s.refreshCard(ctx, owner); err != nil {
			s.logger.WarnContext(ctx, "card cache not refreshed", logger.OwnerID(owner.ID), logger.Error(err))
		}
	}

	owner.UpdatedAt = s.now()
	if err := s.store.SaveOwner(ctx, owner); err != nil {
		if derr := s.gateway.DeleteCustomer(ctx, customer.ID); derr != nil {
			err = errors.Join(err, gatewayError(derr))
		}
		return nil, err
	}

	s.logger.InfoContext(ctx, "customer created", logger.OwnerID(owner.ID), logger.CustomerID(customer.ID))
	return customer, nil
}

// customerParams uses the options' email and name only when both are given,
// otherwise the owner's.
func (s *service) customerParams(owner *Owner, token string, opts CustomerOptions) CustomerParams {
	params := CustomerParams{
		Email:        owner.Email,
		Name:         owner.Name,
		PaymentToken: token,
		Metadata:     opts.Metadata,
	}
	if opts.Email != "" && opts.Name != "" {
		params.Email = opts.Email
		params.Name = opts.Name
	}
	return params
}
