// Package table resolves the table layout of one bulk call.
//
// Resolve checks the call options against the mapped entity, then produces a Descriptor
// listing the columns that are staged, inserted, updated, compared and read back. It
// also picks the match key, the identity column and the staging table names. Option
// mistakes (both sides of a filter axis set, unknown property names, no match key, an
// update with nothing to update) fail here, before any SQL runs.
//
// Identity detection depends on the engine. SQLite treats a single integer primary key
// generated on add as the rowid identity. The other engines use an explicit identity
// annotation, then the live table probe, and finally gorm's implicit auto increment
// primary key.
package table
