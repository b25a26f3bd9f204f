package engine

import (
	"strconv"
	"strings"
)

// Dialect renders identifiers and bind parameters for one engine.
type Dialect struct {
	Engine Engine
}

// Quote quotes a single identifier, escaping the closing quote character.
func (d Dialect) Quote(name string) string {
	switch d.Engine {
	case SQLServer:
		return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
	case MySQL:
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	default:
		return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
	}
}

// Qualify quotes a schema-qualified table name. An empty schema is omitted.
func (d Dialect) Qualify(schema, table string) string {
	if schema == "" {
		return d.Quote(table)
	}
	return d.Quote(schema) + "." + d.Quote(table)
}

// Column quotes a column reference under a table alias.
func (d Dialect) Column(alias, column string) string {
	if alias == "" {
		return d.Quote(column)
	}
	return alias + "." + d.Quote(column)
}

// Columns quotes a list of columns under a table alias and joins them with commas.
func (d Dialect) Columns(alias string, columns []string) string {
	parts := make([]string, len(columns))
	for i, c := range columns {
		parts[i] = d.Column(alias, c)
	}
	return strings.Join(parts, ", ")
}

// Placeholder returns the n-th (1-based) bind parameter marker.
func (d Dialect) Placeholder(n int) string {
	switch d.Engine {
	case SQLServer:
		return "@p" + strconv.Itoa(n)
	case PostgreSQL:
		return "$" + strconv.Itoa(n)
	default:
		return "?"
	}
}

// Rebind rewrites '?' markers in a caller supplied fragment into this dialect's
// placeholders, numbering them from offset+1. Quoted literals are left untouched.
func (d Dialect) Rebind(fragment string, offset int) string {
	if d.Engine == MySQL || d.Engine == SQLite {
		return fragment
	}
	var b strings.Builder
	n := offset
	inQuote := false
	for _, r := range fragment {
		switch {
		case r == '\'':
			inQuote = !inQuote
			b.WriteRune(r)
		case r == '?' && !inQuote:
			n++
			b.WriteString(d.Placeholder(n))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
