// Package bulk synchronizes in-memory object collections with relational tables.
//
// A call resolves the table layout of the objects, loads them into a staging table
// with the engine's native bulk path, runs one generated merge against the target
// and writes generated keys and column values back onto the objects.
//
// # Engines
//
// SQL Server, PostgreSQL, MySQL and SQLite are supported. The engine is taken from
// the gorm dialector. Delete-sync (InsertOrUpdateOrDelete) needs SQL Server or
// PostgreSQL.
//
// # Usage
//
//	registry := engine.NewRegistry(0, nil)
//	exec := bulk.NewExecutor(registry, logger, metrics.Nop{})
//
//	opts := op.Defaults()
//	opts.SetOutputIdentity = true
//	opts.UpdateByProperties = []string{"SKU"}
//	res, err := bulk.InsertOrUpdate(ctx, exec, db, items, opts)
//
// Calls made with a db inside a transaction join it. Otherwise the executor pins
// one connection for the call and releases it afterwards. Nothing is retried and an
// issued merge is never rolled back by the executor.
//
// # Errors
//
// Configuration and pairing failures are *op.Error values:
//
//	if errors.Is(err, op.ErrAmbiguousOutputIdentity) { ... }
//
// Driver failures are wrapped with the step that failed.
package bulk
