// Package database provides the SQLite handle behind the actuation journal.
//
// This package manages:
//   - Opening the database with WAL mode and a busy timeout
//   - Versioned schema migrations read from an fs.FS
//   - Connectivity health checks
//
// Security Considerations:
//   - All queries use parameterised statements
//   - The database file is restricted to 0600
//
// Usage:
//
//	db, err := database.Open(cfg.Journal)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
