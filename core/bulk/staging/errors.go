package staging

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	mssql "github.com/microsoft/go-mssqldb"
)

// IsMissingTable reports whether err says the destination table does not exist.
// Bulk copy column mapping failures surface this way when staging was never created
// or was dropped by a concurrent session.
func IsMissingTable(err error) bool {
	if err == nil {
		return false
	}
	var msErr mssql.Error
	if errors.As(err, &msErr) {
		return msErr.Number == 208
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "42P01"
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1146
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) && liteErr.Code != sqlite3.ErrError {
		return false
	}
	return strings.Contains(err.Error(), "no such table")
}

// IsAbortedTransaction reports whether err is PostgreSQL's "current transaction is
// aborted" error, raised by every statement after a failed one in the same transaction.
func IsAbortedTransaction(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "25P02"
}
