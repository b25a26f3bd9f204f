package engine

import "strings"

// Engine is the closed set of database engines bulk operations can target.
type Engine int

const (
	SQLServer Engine = iota
	PostgreSQL
	MySQL
	SQLite
)

// String returns the lower-case engine name used in logs, errors and metric labels.
func (e Engine) String() string {
	switch e {
	case SQLServer:
		return "sqlserver"
	case PostgreSQL:
		return "postgres"
	case MySQL:
		return "mysql"
	case SQLite:
		return "sqlite"
	default:
		return "unknown"
	}
}

// Parse maps a provider identifier (a gorm dialector name, a driver name or a fully
// qualified provider type name) to an engine by case-insensitive suffix. Anything
// unrecognized is treated as SQL Server.
func Parse(provider string) Engine {
	p := strings.ToLower(strings.TrimSpace(provider))
	switch {
	case hasAnySuffix(p, "postgres", "postgresql", "pgx", "npgsql"):
		return PostgreSQL
	case hasAnySuffix(p, "mysql", "mariadb"):
		return MySQL
	case hasAnySuffix(p, "sqlite", "sqlite3"):
		return SQLite
	default:
		return SQLServer
	}
}

func hasAnySuffix(s string, suffixes ...string) bool {
	for _, suffix := range suffixes {
		if strings.HasSuffix(s, suffix) {
			return true
		}
	}
	return false
}
