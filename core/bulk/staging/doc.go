// Package staging loads objects into staging or target tables.
//
// Each engine gets its native bulk path: TDS bulk copy on SQL Server, COPY FROM STDIN on
// PostgreSQL (through the pgx connection behind database/sql), LOAD DATA LOCAL INFILE on
// MySQL when enabled, and a prepared single-row insert on SQLite. When the native path is
// unavailable, for example PostgreSQL inside a caller transaction, rows are sent as
// multi-row INSERT statements sized to the engine's bind parameter limit.
//
// RowBuilder converts objects to provider values: converters run first, then pointers and
// driver.Valuer are resolved, times are rounded when requested and the staging ordinal
// is appended.
package staging
