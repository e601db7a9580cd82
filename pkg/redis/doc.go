// Package redis connects to Redis with go-redis/v9 and provides Redis-backed
// implementations of the subscription package's coordination ports:
//
//   - Locker serializes lifecycle operations on the same subscription or plan
//     across processes (SET NX PX with a token-checked release).
//   - EventLedger drops duplicate webhook deliveries across processes.
//
// Usage:
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	svc := subscription.NewService(gateway, store,
//		subscription.WithLocker(redis.NewLocker(client, redis.WithLockTTL(cfg.LockTTL))),
//	)
//	rec := subscription.NewReconciler(svc, gateway,
//		subscription.WithEventLedger(redis.NewEventLedger(client, cfg.KeyPrefix, cfg.EventTTL)),
//	)
package redis
