// Package database provides SQLite connectivity for the fleet's
// measurement store.
//
// This package manages:
//   - Database connection with WAL mode for cross-process access
//   - Schema migrations from SQL files embedded in the binary
//   - Connection lifecycle and health checks
//
// The database file is shared between the supervisor daemon and every
// worker process it spawns. Each process holds a single connection;
// WAL mode plus the busy-timeout pragma arbitrate between processes.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migration files live in the migrations package as
// <YYYYMMDD_HHMMSS>_<name>.up.sql / .down.sql pairs; each applies in its
// own transaction and is recorded in schema_migrations.
package database
