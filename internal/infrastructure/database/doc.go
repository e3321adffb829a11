// Package database provides SQLite connectivity for shadecore.
//
// This package manages:
//   - Opening the SQLite database with WAL mode and busy timeout
//   - Schema migrations from an embedded filesystem
//   - Connection health checks and pool statistics
//
// SQLite is a deliberate choice: the shade catalog is small, read-mostly,
// and must survive power cycles on an embedded controller without an
// external database server.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: "./data/shadecore.db", WALMode: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
package database
