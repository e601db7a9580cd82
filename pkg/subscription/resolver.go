package subscription

import (
	"context"
	"log/slog"

	"github.com/dmitrymomot/cashier/pkg/logger"
)

// EnsurePlan resolves the canonical identifier of def and makes the gateway
// plan match it. An existing gateway plan with that identifier is deleted and
// recreated, so its subscribers must not rely on the old object. The local
// record is upserted by identifier.
func (s *service) EnsurePlan(ctx context.Context, def PlanDefinition) (*Plan, error) {
	now := s.now()
	norm, err := NormalizePlanDefinition(def, s.currency, now)
	if err != nil {
		return nil, err
	}
	id := canonicalPlanID(norm)

	var plan *Plan
	err = s.withLock(ctx, planLockKey(id), func() error {
		// A failed lookup means the plan is treated as absent.
		if existing, err := s.gateway.FindPlan(ctx, id); err == nil && existing != nil {
			if err := s.gateway.DeletePlan(ctx, id); err != nil {
				return gatewayError(err)
			}
		} else if err != nil {
			s.logger.DebugContext(ctx, "plan lookup failed, creating", logger.PlanID(id), logger.Error(err))
		}

		if _, err := s.gateway.CreatePlan(ctx, RemotePlan{
			ID:              id,
			Name:            norm.Name,
			Amount:          norm.Amount,
			Currency:        norm.Currency,
			Interval:        norm.Interval,
			Frequency:       norm.Frequency,
			TrialPeriodDays: norm.TrialPeriodDays,
			ExpiryCount:     norm.ExpiryCount,
		}); err != nil {
			return gatewayError(err)
		}

		plan = &Plan{
			ID:          id,
			Name:        norm.Name,
			TrialEndsAt: cloneTime(norm.TrialEndsAt),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		return s.store.UpsertPlan(ctx, plan)
	})
	s.metrics.transition("ensure_plan", err)
	if err != nil {
		s.logError(ctx, "failed to ensure plan", err, logger.PlanID(id))
		return nil, err
	}

	s.logger.LogAttrs(ctx, slog.LevelInfo, "plan ensured", logger.PlanID(id))
	return plan, nil
}

// SyncCatalog ensures every plan in defs and returns them in the same order.
// It stops at the first failure.
func (s *service) SyncCatalog(ctx context.Context, defs []PlanDefinition) ([]*Plan, error) {
	plans := make([]*Plan, 0, len(defs))
	for _, def := range defs {
		plan, err := s.EnsurePlan(ctx, def)
		if err != nil {
			return plans, err
		}
		plans = append(plans, plan)
	}
	return plans, nil
}
