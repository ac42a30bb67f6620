// Package database provides the SQLite connection used by the registry.
//
// It owns the connection lifecycle, the pragmas (WAL, busy timeout,
// foreign keys) and the schema migrations embedded from the top-level
// migrations package. The SQLite device store and the audit log both
// run on the *DB returned by Open.
//
// SQLite has a single writer, so the pool is pinned to one connection.
// That is what makes the device store's read-check-write transaction
// serialisable without extra locking.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with an
// optional matching .down.sql.
package database
