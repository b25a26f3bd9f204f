// Package database handles database connections and schema inspection.
//
// It wraps GORM to open MySQL, PostgreSQL, SQL Server or SQLite connections based on
// the application's configuration.
//
// # Connect
//
// Connect builds the dialector for the configured driver, sizes the pool and pings
// the server before returning.
//
// # Schema Inspection
//
// InspectTable reads the live shape of a table: its columns, primary key, identity
// column and unique indexes. The bulk engine uses the shape to detect identities
// and to decide whether an upsert needs a transient unique index.
//
// # Usage
//
//	db, err := database.Connect(cfg.Database)
//	if err != nil {
//	    log.Fatal("Database connection failed", err)
//	}
//
//	shape, err := database.InspectTable(ctx, db, "", "catalog_items")
package database
