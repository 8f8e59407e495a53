// Package database provides SQLite storage for the Gray Logic Hub.
//
// This package manages:
//   - The connection (WAL mode, foreign keys, busy timeout, single writer)
//   - Versioned schema migrations read from an fs.FS (see package migrations)
//   - A transaction helper used by the thing, user and token repositories
//
// Security Considerations:
//   - All queries use parameterised statements
//   - The database file is chmod 0600
//   - Session tokens are stored only as SHA-256 hashes
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if _, err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
