package staging

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"bulksync/core/bulk/engine"
	"bulksync/core/bulk/op"
	"bulksync/core/bulk/table"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	mssql "github.com/microsoft/go-mssqldb"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var errNoNativeConn = errors.New("connection does not expose a native driver connection")

// Request describes one load.
type Request struct {
	Adapter *engine.Adapter
	// Schema and Table name the destination, unquoted.
	Schema string
	Table  string
	// Rows builds the values of each object.
	Rows RowBuilder
	// Options are the call options.
	Options op.Options
}

func (r Request) quoted() string {
	return r.Adapter.Dialect.Qualify(r.Schema, r.Table)
}

func (r Request) columnNames() []string {
	names := table.Names(r.Rows.Columns)
	if r.Rows.Ordinal {
		names = append(names, table.OrdinalColumn)
	}
	return names
}

// Loader writes objects into staging or target tables with the fastest path the
// engine and connection allow.
type Loader struct {
	logger *zap.Logger
}

// NewLoader creates a loader.
func NewLoader(logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{logger: logger}
}

// Load writes every object through pool, which must be a pinned connection or a
// transaction. It returns the number of rows written.
func (l *Loader) Load(ctx context.Context, pool gorm.ConnPool, req Request, entities []any) (int64, error) {
	if len(entities) == 0 {
		return 0, nil
	}
	if req.Rows.Width() == 0 {
		return 0, fmt.Errorf("no columns to load into %s", req.quoted())
	}
	started := time.Now()
	var (
		n    int64
		err  error
		path string
	)
	switch req.Adapter.Engine {
	case engine.SQLServer:
		path = "bulk_copy"
		n, err = l.loadSQLServer(ctx, pool, req, entities)
	case engine.PostgreSQL:
		path = "copy"
		n, err = l.loadPostgres(ctx, pool, req, entities)
		if errors.Is(err, errNoNativeConn) {
			path = "batched_insert"
			n, err = l.loadBatched(ctx, pool, req, entities)
		}
	case engine.MySQL:
		if req.Options.MySQLLocalInfile {
			path = "load_data"
			n, err = l.loadMySQLInfile(ctx, pool, req, entities)
		} else {
			path = "batched_insert"
			n, err = l.loadBatched(ctx, pool, req, entities)
		}
	case engine.SQLite:
		path = "prepared_insert"
		n, err = l.loadRows(ctx, pool, req, entities)
	default:
		return 0, fmt.Errorf("no loader for engine %s", req.Adapter.Engine)
	}
	if err != nil {
		return n, err
	}
	l.logger.Debug("Loaded rows",
		zap.String("table", req.quoted()),
		zap.String("path", path),
		zap.Int64("rows", n),
		zap.Duration("duration", time.Since(started)))
	return n, nil
}

// loadSQLServer streams rows through the TDS bulk copy protocol.
func (l *Loader) loadSQLServer(ctx context.Context, pool gorm.ConnPool, req Request, entities []any) (int64, error) {
	opts := mssql.BulkOptions{
		KeepNulls:    true,
		RowsPerBatch: req.Options.EffectiveBatchSize(),
	}
	stmt, err := pool.PrepareContext(ctx, mssql.CopyIn(req.quoted(), opts, req.columnNames()...))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare bulk copy: %w", err)
	}
	defer stmt.Close()

	prog := NewProgress(req.Options, len(entities))
	for i, e := range entities {
		if i%req.Options.EffectiveBatchSize() == 0 {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
		}
		vals, err := req.Rows.Values(e, i)
		if err != nil {
			return 0, err
		}
		if _, err := stmt.ExecContext(ctx, vals...); err != nil {
			return 0, fmt.Errorf("failed to buffer bulk copy row %d: %w", i, err)
		}
		prog.Add(1)
	}
	res, err := stmt.ExecContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to flush bulk copy: %w", err)
	}
	return res.RowsAffected()
}

// loadPostgres uses COPY FROM STDIN on the raw pgx connection. A transaction handle
// has no reachable raw connection, in which case errNoNativeConn is returned.
func (l *Loader) loadPostgres(ctx context.Context, pool gorm.ConnPool, req Request, entities []any) (int64, error) {
	conn, ok := pool.(*sql.Conn)
	if !ok {
		return 0, errNoNativeConn
	}
	ident := pgx.Identifier{req.Table}
	if req.Schema != "" {
		ident = pgx.Identifier{req.Schema, req.Table}
	}
	prog := NewProgress(req.Options, len(entities))
	var n int64
	err := conn.Raw(func(driverConn any) error {
		sc, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return errNoNativeConn
		}
		var err error
		n, err = sc.Conn().CopyFrom(ctx, ident, req.columnNames(), pgx.CopyFromSlice(len(entities), func(i int) ([]any, error) {
			vals, err := req.Rows.Values(entities[i], i)
			if err == nil {
				prog.Add(1)
			}
			return vals, err
		}))
		return err
	})
	if err != nil && !errors.Is(err, errNoNativeConn) {
		err = fmt.Errorf("failed to copy rows: %w", err)
	}
	return n, err
}

// loadMySQLInfile streams tab separated rows through LOAD DATA LOCAL INFILE.
func (l *Loader) loadMySQLInfile(ctx context.Context, pool gorm.ConnPool, req Request, entities []any) (int64, error) {
	name := "bulk_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	pr, pw := io.Pipe()
	mysql.RegisterReaderHandler(name, func() io.Reader { return pr })
	defer mysql.DeregisterReaderHandler(name)

	// The writer goroutine only feeds the pipe. Progress is reported by the caller
	// once the statement returns.
	go func() {
		for i, e := range entities {
			vals, err := req.Rows.Values(e, i)
			if err != nil {
				pw.CloseWithError(err)
				return
			}
			if _, err := io.WriteString(pw, tsvLine(vals)); err != nil {
				return
			}
		}
		pw.Close()
	}()

	q := req.Adapter.Dialect
	query := fmt.Sprintf("LOAD DATA LOCAL INFILE 'Reader::%s' INTO TABLE %s CHARACTER SET utf8mb4 "+
		"FIELDS TERMINATED BY '\\t' ESCAPED BY '\\\\' LINES TERMINATED BY '\\n' (%s)",
		name, req.quoted(), q.Columns("", req.columnNames()))
	res, err := pool.ExecContext(ctx, query)
	pr.CloseWithError(io.ErrClosedPipe)
	if err != nil {
		return 0, fmt.Errorf("failed to load data: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	NewProgress(req.Options, len(entities)).Add(len(entities))
	return n, nil
}

// tsvLine renders one LOAD DATA line. NULL is \N.
func tsvLine(vals []any) string {
	var b strings.Builder
	for i, v := range vals {
		if i > 0 {
			b.WriteByte('\t')
		}
		switch x := v.(type) {
		case nil:
			b.WriteString(`\N`)
		case bool:
			if x {
				b.WriteByte('1')
			} else {
				b.WriteByte('0')
			}
		case time.Time:
			b.WriteString(x.Format("2006-01-02 15:04:05.999999"))
		case []byte:
			b.WriteString(escapeTSV(string(x)))
		default:
			b.WriteString(escapeTSV(fmt.Sprint(x)))
		}
	}
	b.WriteByte('\n')
	return b.String()
}

var tsvEscaper = strings.NewReplacer(`\`, `\\`, "\t", `\t`, "\n", `\n`, "\r", `\r`, "\x00", `\0`)

func escapeTSV(s string) string {
	return tsvEscaper.Replace(s)
}

// loadBatched sends multi-row INSERT statements that stay under the engine's bind
// parameter limit.
func (l *Loader) loadBatched(ctx context.Context, pool gorm.ConnPool, req Request, entities []any) (int64, error) {
	q := req.Adapter.Dialect
	width := req.Rows.Width()
	per := req.Options.EffectiveBatchSize()
	if limit := req.Adapter.Capabilities.MaxParams / width; limit > 0 && per > limit {
		per = limit
	}
	head := fmt.Sprintf("INSERT INTO %s (%s) VALUES ", req.quoted(), q.Columns("", req.columnNames()))
	prog := NewProgress(req.Options, len(entities))

	var total int64
	for start := 0; start < len(entities); start += per {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		end := min(start+per, len(entities))
		var b strings.Builder
		b.WriteString(head)
		args := make([]any, 0, (end-start)*width)
		for i := start; i < end; i++ {
			vals, err := req.Rows.Values(entities[i], i)
			if err != nil {
				return total, err
			}
			if i > start {
				b.WriteString(", ")
			}
			b.WriteByte('(')
			for j := range vals {
				if j > 0 {
					b.WriteString(", ")
				}
				b.WriteString(q.Placeholder(len(args) + j + 1))
			}
			b.WriteByte(')')
			args = append(args, vals...)
		}
		res, err := pool.ExecContext(ctx, b.String(), args...)
		if err != nil {
			return total, fmt.Errorf("failed to insert rows %d-%d: %w", start, end-1, err)
		}
		n, _ := res.RowsAffected()
		total += n
		prog.Add(end - start)
	}
	return total, nil
}

// loadRows runs one prepared single-row insert per object.
func (l *Loader) loadRows(ctx context.Context, pool gorm.ConnPool, req Request, entities []any) (int64, error) {
	q := req.Adapter.Dialect
	marks := make([]string, req.Rows.Width())
	for i := range marks {
		marks[i] = q.Placeholder(i + 1)
	}
	stmt, err := pool.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		req.quoted(), q.Columns("", req.columnNames()), strings.Join(marks, ", ")))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	prog := NewProgress(req.Options, len(entities))
	var total int64
	for i, e := range entities {
		if i%req.Options.EffectiveBatchSize() == 0 {
			if err := ctx.Err(); err != nil {
				return total, err
			}
		}
		vals, err := req.Rows.Values(e, i)
		if err != nil {
			return total, err
		}
		if _, err := stmt.ExecContext(ctx, vals...); err != nil {
			return total, fmt.Errorf("failed to insert row %d: %w", i, err)
		}
		total++
		prog.Add(1)
	}
	return total, nil
}
