// Package sqlite implements store.Store on SQLite via Bun and the
// pure-Go modernc driver. Suitable for embedded/edge deployments, CLI
// tools, and single-node engines that want durability without running a
// database server.
//
// Open owns the connection and configures WAL journaling:
//
//	store, err := sqlite.Open("corda.db")
//	if err != nil { ... }
//	defer store.Close()
//	store.Migrate(ctx)
//
// Alternatively pass an existing Bun handle; the caller then owns its
// lifecycle and Close is a no-op:
//
//	sqldb, _ := sql.Open("sqlite", dsn)
//	db := bun.NewDB(sqldb, sqlitedialect.New())
//	store := sqlite.New(db)
package sqlite
