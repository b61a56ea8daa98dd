// Package pgstore implements the queue repositories on PostgreSQL with pgx.
//
// The schema is embedded and applied with goose:
//
//	pool, err := pgstore.Connect(ctx, cfg)
//	if err := pgstore.Migrate(ctx, pool, cfg, log); err != nil { ... }
//	store := pgstore.New(pool)
//
// Claims run a single UPDATE over a FOR UPDATE SKIP LOCKED subquery, so
// any number of workers can poll the same table. Completed entries are kept
// until PurgeCompleted removes them.
package pgstore
