// Package pg wires PostgreSQL through pgx/v5: a retrying pool constructor,
// goose migrations read from an fs.FS, a transaction helper and a few error
// predicates.
//
//	var cfg pg.Config
//	config.MustLoad(&cfg)
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, cfg, pgstore.Migrations, "migrations", log); err != nil {
//		return err
//	}
//
// Environment variables are listed on Config; DATABASE_URL is required.
package pg
