// Package engine resolves which database engine a bulk call runs against and what that
// engine can do.
//
// # Engines
//
// Engine is a closed set (SQLServer, PostgreSQL, MySQL, SQLite). Every engine specific
// branch elsewhere in the bulk packages is a switch over it, so adding an engine means
// following the compiler through those switches.
//
// # Registry
//
// A Registry is created once and injected into the executor. It resolves an Adapter
// (engine, dialect, capabilities) per provider identifier and caches live table shapes
// (primary key, identity column, unique indexes, datetime precision) for a TTL:
//
//	registry := engine.NewRegistry(5*time.Minute, nil)
//	adapter := registry.ForDB(db)
//	shape, err := registry.Shape(ctx, db, adapter, "", "catalog_items")
package engine
