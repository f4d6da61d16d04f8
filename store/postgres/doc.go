// Package postgres implements store.Store using pgx/v5 with raw SQL.
// Upserts keyed by run carry checkpoint replacement, row locks on the
// record key carry first-writer-wins, and embedded SQL migrations set
// up the schema:
//
//	store, err := postgres.New(ctx, "postgres://localhost:5432/corda")
//	if err != nil { ... }
//	defer store.Close()
//	store.Migrate(ctx)
package postgres
