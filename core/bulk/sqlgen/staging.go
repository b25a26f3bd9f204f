package sqlgen

import (
	"fmt"
	"strings"

	"bulksync/core/bulk/engine"
	"bulksync/core/bulk/op"
	"bulksync/core/bulk/table"
)

// stagingSelect lists the target columns copied into an empty staging table. SQL
// Server row versions are cast so the copy holds plain binary values.
func stagingSelect(d *table.Descriptor, alias string, cols []*table.Column) string {
	q := d.Dialect()
	parts := make([]string, len(cols))
	for i, c := range cols {
		ref := q.Column(alias, c.Name)
		if d.Engine() == engine.SQLServer && c.Property.ConcurrencyToken {
			ref = fmt.Sprintf("CAST(%s AS varbinary(8)) AS %s", ref, q.Quote(c.Name))
		}
		parts[i] = ref
	}
	return strings.Join(parts, ", ")
}

func ordinalType(e engine.Engine) string {
	switch e {
	case engine.MySQL:
		return "SIGNED"
	case engine.SQLite:
		return "INTEGER"
	default:
		return "int"
	}
}

// CreateStaging returns the statements creating an empty staging table shaped like
// the transferred target columns, plus the ordinal column when used. On SQL Server
// the output table is created too when the merge captures output.
func CreateStaging(d *table.Descriptor) []Statement {
	q := d.Dialect()
	cols := stagingSelect(d, "T", d.Transfer)
	if d.UseOrdinal {
		cols += fmt.Sprintf(", CAST(NULL AS %s) AS %s", ordinalType(d.Engine()), q.Quote(table.OrdinalColumn))
	}
	var stmts []Statement
	switch d.Engine() {
	case engine.SQLServer:
		// The self join on 1 = 0 keeps the column types and drops the IDENTITY property.
		stmts = append(stmts, Statement{SQL: fmt.Sprintf(
			"SELECT TOP 0 %s INTO %s FROM %s AS T LEFT JOIN %s AS Source ON 1 = 0",
			cols, d.Staging(), d.Target(), d.Target())})
		if d.Options.NeedsOutput(d.Kind) && d.Kind != op.Read {
			out := stagingSelect(d, "Source", d.Output)
			out += fmt.Sprintf(", CAST(NULL AS int) AS %s, CAST(NULL AS char(1)) AS %s",
				q.Quote(table.OrdinalColumn), q.Quote(table.ActionColumn))
			stmts = append(stmts, Statement{SQL: fmt.Sprintf(
				"SELECT TOP 0 %s INTO %s FROM %s AS T LEFT JOIN %s AS Source ON 1 = 0",
				out, d.OutputName(), d.Target(), d.Target())})
		}
	case engine.PostgreSQL:
		stmts = append(stmts, Statement{SQL: fmt.Sprintf(
			"CREATE %sTABLE %s AS SELECT %s FROM %s AS T LIMIT 0",
			temporary(d), d.Staging(), cols, d.Target())})
	case engine.MySQL:
		stmts = append(stmts, Statement{SQL: fmt.Sprintf(
			"CREATE %sTABLE %s SELECT %s FROM %s AS T LIMIT 0",
			temporary(d), d.Staging(), cols, d.Target())})
	case engine.SQLite:
		stmts = append(stmts, Statement{SQL: fmt.Sprintf(
			"CREATE %sTABLE %s AS SELECT %s FROM %s AS T LIMIT 0",
			temporary(d), d.Staging(), cols, d.Target())})
	}
	return stmts
}

func temporary(d *table.Descriptor) string {
	if d.Temporary {
		return "TEMPORARY "
	}
	return ""
}

// DropStaging returns the statements dropping staging and output tables. A custom
// source table is never dropped.
func DropStaging(d *table.Descriptor) []Statement {
	var stmts []Statement
	if !d.HasCustomSource() {
		stmts = append(stmts, DropTable(d, d.Staging(), d.StagingTable))
	}
	if d.Engine() == engine.SQLServer && d.Options.NeedsOutput(d.Kind) && d.Kind != op.Read {
		stmts = append(stmts, DropTable(d, d.OutputName(), d.OutputTable))
	}
	return stmts
}

// DropTable drops a table if it exists. quoted is the qualified quoted name, name
// the bare table name used by SQL Server's OBJECT_ID lookup.
func DropTable(d *table.Descriptor, quoted, name string) Statement {
	switch d.Engine() {
	case engine.SQLServer:
		return Statement{SQL: fmt.Sprintf("IF OBJECT_ID('%s', 'U') IS NOT NULL DROP TABLE %s", objectID(d, quoted, name), quoted)}
	case engine.MySQL:
		return Statement{SQL: fmt.Sprintf("DROP %sTABLE IF EXISTS %s", temporary(d), quoted)}
	default:
		return Statement{SQL: "DROP TABLE IF EXISTS " + quoted}
	}
}

func objectID(d *table.Descriptor, quoted, name string) string {
	if strings.HasPrefix(name, "#") {
		return "tempdb.." + name
	}
	return strings.ReplaceAll(quoted, "'", "''")
}

// StagingExists returns a query yielding 1 when the staging table exists and 0 otherwise.
// MySQL temporary tables are invisible to information_schema, so it returns ok=false
// and the caller probes the table directly.
func StagingExists(d *table.Descriptor) (Statement, bool) {
	switch d.Engine() {
	case engine.SQLServer:
		return Statement{
			SQL:  "SELECT CASE WHEN OBJECT_ID(@p1, 'U') IS NULL THEN 0 ELSE 1 END",
			Args: []any{objectID(d, d.Staging(), d.StagingTable)},
		}, true
	case engine.PostgreSQL:
		return Statement{
			SQL:  "SELECT CASE WHEN to_regclass($1) IS NULL THEN 0 ELSE 1 END",
			Args: []any{d.Staging()},
		}, true
	case engine.MySQL:
		if d.Temporary {
			return Statement{SQL: fmt.Sprintf("SELECT 1 FROM %s LIMIT 0", d.Staging())}, false
		}
		return Statement{
			SQL:  "SELECT COUNT(*) FROM information_schema.TABLES WHERE TABLE_SCHEMA = COALESCE(NULLIF(?, ''), DATABASE()) AND TABLE_NAME = ?",
			Args: []any{d.StagingSchema, d.StagingTable},
		}, true
	default:
		return Statement{
			SQL: "SELECT (SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?) + " +
				"(SELECT COUNT(*) FROM sqlite_temp_master WHERE type = 'table' AND name = ?)",
			Args: []any{d.StagingTable, d.StagingTable},
		}, true
	}
}

// Truncate removes every row of the target table.
func Truncate(d *table.Descriptor) Statement {
	if d.Engine() == engine.SQLite {
		return Statement{SQL: "DELETE FROM " + d.Target()}
	}
	return Statement{SQL: "TRUNCATE TABLE " + d.Target()}
}

// UniqueIndexName names the transient unique index created over the match key.
func UniqueIndexName(d *table.Descriptor) string {
	return "ux_" + d.Table + "_" + strings.Join(table.Names(d.MatchKeys), "_") + "_bulk"
}

// CreateUniqueIndex creates the transient unique index an upsert needs.
func CreateUniqueIndex(d *table.Descriptor) Statement {
	q := d.Dialect()
	return Statement{SQL: fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (%s)",
		q.Quote(UniqueIndexName(d)), d.Target(), q.Columns("", table.Names(d.MatchKeys)))}
}

// DropUniqueIndex drops the transient unique index.
func DropUniqueIndex(d *table.Descriptor) Statement {
	return Statement{SQL: "DROP INDEX IF EXISTS " + d.Dialect().Qualify(d.Schema, UniqueIndexName(d))}
}
