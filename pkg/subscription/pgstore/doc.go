// Package pgstore provides PostgreSQL implementations of subscription.Store and
// subscription.EventLedger on top of pgx/v5.
//
// Apply the embedded migrations before use:
//
//	if err := pg.Migrate(ctx, pool, pgCfg, pgstore.Migrations, pgstore.MigrationsDir, log); err != nil {
//		return err
//	}
//	store := pgstore.New(pool)
//	ledger := pgstore.NewEventLedger(pool)
package pgstore
