// Package database provides the SQLite connection used by timetabled.
//
// It owns:
//   - Opening the database file with WAL mode and a busy timeout
//   - Versioned schema migrations embedded into the binary
//   - Health checks and a transaction helper
//
// The timetable repositories (storage collection, restore state, state
// history) take the embedded *sql.DB and hold no other database state.
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
// Migrations are additive: new columns are NULLABLE or have DEFAULT values,
// and every .up.sql ships with a .down.sql.
package database
