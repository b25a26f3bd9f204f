package bulk

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bulksync/core/bulk/engine"
	"bulksync/core/bulk/metrics"
	"bulksync/core/bulk/model"
	"bulksync/core/bulk/op"
	"bulksync/core/bulk/output"
	"bulksync/core/bulk/sqlgen"
	"bulksync/core/bulk/staging"
	"bulksync/core/bulk/table"
	"bulksync/core/database"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Request is one bulk call.
type Request struct {
	// Kind is the operation to run.
	Kind op.Kind
	// Entities are pointers to the objects to write, delete or read.
	Entities []any
	// Model is a pointer to the mapped struct. It is required when Entities is empty.
	Model any
	// Schema overrides the schema of the mapped table.
	Schema string
	// Options configure the call.
	Options op.Options
}

// Executor runs bulk calls. It is safe for concurrent use.
type Executor struct {
	registry *engine.Registry
	loader   *staging.Loader
	logger   *zap.Logger
	reporter metrics.Reporter
}

// NewExecutor creates an executor. A nil logger or reporter discards output.
func NewExecutor(registry *engine.Registry, logger *zap.Logger, reporter metrics.Reporter) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reporter == nil {
		reporter = metrics.Nop{}
	}
	if registry == nil {
		registry = engine.NewRegistry(0, nil)
	}
	return &Executor{
		registry: registry,
		loader:   staging.NewLoader(logger),
		logger:   logger,
		reporter: reporter,
	}
}

// call carries the state of one Execute.
type call struct {
	d        *table.Descriptor
	plan     *sqlgen.Plan
	entities []any
	result   *op.Result
	rows     []output.Row
	stats    op.Stats
	// matched is the MySQL pre-merge match count.
	matched int64
}

// Execute runs one bulk call against db. When db is inside a transaction the call
// joins it; otherwise one connection is pinned for the duration of the call.
func (x *Executor) Execute(ctx context.Context, db *gorm.DB, req Request) (res *op.Result, err error) {
	started := time.Now()
	o := req.Options
	if o.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}

	a := x.registry.ForDB(db)
	res = &op.Result{Kind: req.Kind, Engine: a.Engine.String()}
	defer func() {
		x.report(res, err, time.Since(started))
	}()

	if len(req.Entities) == 0 && req.Kind != op.Truncate && req.Kind != op.InsertOrUpdateOrDelete && !o.HasCustomSource() {
		return res, nil
	}

	value := req.Model
	if value == nil && len(req.Entities) > 0 {
		value = req.Entities[0]
	}
	if value == nil {
		return res, op.Errorf(op.ReasonInvalidConfig, "a model is required when no objects are given").WithContext(req.Kind, a.Engine.String())
	}
	entity, err := model.FromGorm(db, value)
	if err != nil {
		return res, err
	}
	res.Table = a.Dialect.Qualify(firstNonEmpty(req.Schema, entity.Schema), entity.Table)

	_, inTx := db.Statement.ConnPool.(gorm.TxCommitter)
	if o.UseTempDB && !inTx && req.Kind != op.Truncate && !(req.Kind == op.Insert && !o.SetOutputIdentity) {
		return res, op.Errorf(op.ReasonTransactionRequired, "UseTempDB needs a caller transaction").WithContext(req.Kind, a.Engine.String())
	}

	var shape *database.TableShape
	if req.Kind != op.Truncate {
		shape, err = x.registry.Shape(ctx, db, a, firstNonEmpty(req.Schema, entity.Schema), entity.Table)
		if err != nil {
			x.logger.Warn("Failed to inspect table, continuing with model metadata",
				zap.String("table", res.Table), zap.Error(err))
			shape = nil
		}
	}

	d, err := table.Resolve(table.Input{
		Kind:     req.Kind,
		Entity:   entity,
		Adapter:  a,
		Shape:    shape,
		Options:  o,
		Entities: req.Entities,
		Schema:   req.Schema,
	})
	if err != nil {
		return res, err
	}
	res.Table = d.Target()

	plan, err := sqlgen.Build(d, len(req.Entities))
	if err != nil {
		return res, err
	}
	x.logger.Debug("Bulk plan built", zap.Stringer("descriptor", d), zap.Bool("staging", plan.NeedsStaging()))

	if o.Ordering == op.OrderingPlaceholder && o.SetOutputIdentity && d.Identity != nil && req.Kind != op.Read && req.Kind != op.Delete {
		restore, perr := output.Placeholders(d, req.Entities)
		if perr != nil {
			return res, perr
		}
		defer func() {
			if rerr := restore(); rerr != nil && err == nil {
				err = rerr
			}
		}()
	}

	c := &call{d: d, plan: plan, entities: req.Entities, result: res}
	if inTx {
		err = x.run(ctx, db.Statement.ConnPool, c)
	} else {
		err = db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
			return x.run(ctx, conn.Statement.ConnPool, c)
		})
	}
	if err != nil {
		return res, err
	}

	x.logger.Debug("Bulk operation completed",
		zap.String("kind", req.Kind.String()),
		zap.String("table", res.Table),
		zap.Int64("loaded", res.Loaded),
		zap.Int64("rows_affected", res.RowsAffected),
		zap.Duration("duration", time.Since(started)))
	return res, nil
}

// run executes the plan on a pinned connection or transaction.
func (x *Executor) run(ctx context.Context, pool gorm.ConnPool, c *call) (err error) {
	d, plan := c.d, c.plan

	// Cleanup outlives cancellation of the call.
	defer x.cleanup(context.WithoutCancel(ctx), pool, plan.Cleanup)
	if plan.NeedsStaging() {
		if _, err := x.exec(ctx, pool, plan.CreateStaging); err != nil {
			return fmt.Errorf("failed to create staging table: %w", err)
		}
		x.logger.Debug("Staging table created", zap.String("table", d.Staging()))
	}

	if plan.DirectLoad || plan.NeedsStaging() {
		if err := x.load(ctx, pool, c); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, s := range plan.Setup {
		if err := x.setup(ctx, pool, c, s); err != nil {
			return err
		}
	}
	if len(plan.Teardown) > 0 {
		defer func() {
			if _, terr := x.exec(context.WithoutCancel(ctx), pool, plan.Teardown); terr != nil {
				if err == nil {
					err = fmt.Errorf("failed to restore session settings: %w", terr)
					return
				}
				x.logger.Warn("Failed to restore session settings", zap.Error(terr))
			}
		}()
	}

	if plan.Row != nil {
		if err := x.runRows(ctx, pool, c); err != nil {
			return err
		}
	}
	for _, s := range plan.Merge {
		if err := x.statement(ctx, pool, c, s); err != nil {
			return err
		}
	}
	x.logger.Debug("Merge executed", zap.String("table", d.Target()), zap.Int64("rows_affected", c.result.RowsAffected))

	if err := ctx.Err(); err != nil {
		return err
	}
	for _, s := range plan.Collect {
		if err := x.statement(ctx, pool, c, s); err != nil {
			return err
		}
	}
	return x.reconcile(c)
}

// load writes the objects to staging or, for direct inserts, to the target.
func (x *Executor) load(ctx context.Context, pool gorm.ConnPool, c *call) error {
	d, plan := c.d, c.plan
	req := staging.Request{
		Adapter: d.Adapter,
		Schema:  d.StagingSchema,
		Table:   d.StagingTable,
		Rows: staging.RowBuilder{
			Engine:  d.Engine(),
			Columns: plan.LoadColumns,
			Ordinal: plan.LoadOrdinal,
			Options: d.Options,
		},
		Options: d.Options,
	}
	if plan.DirectLoad {
		req.Schema, req.Table = d.Schema, d.Table
	}
	n, err := x.loader.Load(ctx, pool, req, c.entities)
	if err != nil {
		if plan.NeedsStaging() && !x.stagingExists(ctx, pool, d) {
			if _, cerr := x.exec(ctx, pool, plan.CreateStaging); cerr != nil {
				x.logger.Warn("Failed to recreate staging table", zap.String("table", d.Staging()), zap.Error(cerr))
			}
		}
		return err
	}
	c.result.Loaded = n
	if plan.DirectLoad {
		c.result.RowsAffected = n
		c.stats.Inserted = n
	}
	return nil
}

// stagingExists probes the staging table after a failed load.
func (x *Executor) stagingExists(ctx context.Context, pool gorm.ConnPool, d *table.Descriptor) bool {
	stmt, counted := sqlgen.StagingExists(d)
	if !counted {
		rows, err := pool.QueryContext(ctx, stmt.SQL, stmt.Args...)
		if err != nil {
			return !staging.IsMissingTable(err)
		}
		rows.Close()
		return true
	}
	var n int64
	if err := pool.QueryRowContext(ctx, stmt.SQL, stmt.Args...).Scan(&n); err != nil {
		// An unknown answer is treated as present so nothing is created twice.
		return true
	}
	return n > 0
}

func (x *Executor) setup(ctx context.Context, pool gorm.ConnPool, c *call, s sqlgen.Statement) error {
	if s.Purpose == sqlgen.Count {
		if err := pool.QueryRowContext(ctx, s.SQL, s.Args...).Scan(&c.matched); err != nil {
			return fmt.Errorf("failed to count matched rows: %w", err)
		}
		return nil
	}
	if _, err := pool.ExecContext(ctx, s.SQL, s.Args...); err != nil {
		return fmt.Errorf("failed to prepare merge: %w", err)
	}
	return nil
}

// statement runs a merge or collect statement according to its purpose.
func (x *Executor) statement(ctx context.Context, pool gorm.ConnPool, c *call, s sqlgen.Statement) error {
	switch s.Purpose {
	case sqlgen.Output:
		rows, err := pool.QueryContext(ctx, s.SQL, s.Args...)
		if err != nil {
			return fmt.Errorf("failed to execute %s: %w", c.d.Kind, err)
		}
		defer rows.Close()
		out, err := output.Scan(rows, len(c.plan.OutputColumns))
		if err != nil {
			return err
		}
		c.rows = append(c.rows, out...)
		if c.d.Kind != op.Read && c.d.Engine() != engine.SQLServer {
			c.result.RowsAffected += int64(len(out))
		}
	case sqlgen.LastInsertID:
		var first sql.NullInt64
		if err := pool.QueryRowContext(ctx, s.SQL, s.Args...).Scan(&first); err != nil {
			return fmt.Errorf("failed to read generated identity: %w", err)
		}
		if first.Valid && first.Int64 > 0 {
			n, err := output.NewReconciler(c.d, c.entities).AssignSequential(first.Int64)
			if err != nil {
				return err
			}
			c.result.Matched = n
		}
	default:
		res, err := pool.ExecContext(ctx, s.SQL, s.Args...)
		if err != nil {
			return fmt.Errorf("failed to execute %s: %w", c.d.Kind, err)
		}
		n, _ := res.RowsAffected()
		c.result.RowsAffected += n
	}
	return nil
}

// runRows executes the per-object statement of engines without a set based upsert.
func (x *Executor) runRows(ctx context.Context, pool gorm.ConnPool, c *call) error {
	d, row := c.d, c.plan.Row
	stmt, err := pool.PrepareContext(ctx, row.SQL)
	if err != nil {
		return fmt.Errorf("failed to prepare %s: %w", d.Kind, err)
	}
	defer stmt.Close()

	values := staging.RowBuilder{Engine: d.Engine(), Columns: row.Columns, Options: d.Options}
	if row.NullIdentity {
		values.NullIdentity = d.Identity
	}

	var (
		exists     *sql.Stmt
		existsVals staging.RowBuilder
	)
	if row.Exists != nil {
		exists, err = pool.PrepareContext(ctx, row.Exists.SQL)
		if err != nil {
			return fmt.Errorf("failed to prepare existence check: %w", err)
		}
		defer exists.Close()
		existsVals = staging.RowBuilder{Engine: d.Engine(), Columns: row.Exists.Columns, Options: d.Options}
		if row.Exists.NullIdentity {
			existsVals.NullIdentity = d.Identity
		}
	}

	prog := staging.NewProgress(d.Options, len(c.entities))
	batch := d.Options.EffectiveBatchSize()
	for i, e := range c.entities {
		if i%batch == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		existed := false
		if exists != nil {
			args, err := existsVals.Values(e, i)
			if err != nil {
				return err
			}
			var n int64
			if err := exists.QueryRowContext(ctx, args...).Scan(&n); err != nil {
				return fmt.Errorf("failed to check row %d: %w", i, err)
			}
			existed = n > 0
		}

		args, err := values.Values(e, i)
		if err != nil {
			return err
		}
		var changed int64
		if row.Returns {
			rows, err := stmt.QueryContext(ctx, args...)
			if err != nil {
				return fmt.Errorf("failed to write row %d: %w", i, err)
			}
			out, err := output.ScanValues(rows, len(c.plan.OutputColumns))
			rows.Close()
			if err != nil {
				return err
			}
			for _, v := range out {
				c.rows = append(c.rows, output.Row{Values: v, Ordinal: i, Action: rowAction(d.Kind, existed, exists != nil)})
			}
			changed = int64(len(out))
		} else {
			res, err := stmt.ExecContext(ctx, args...)
			if err != nil {
				return fmt.Errorf("failed to write row %d: %w", i, err)
			}
			changed, _ = res.RowsAffected()
		}

		if changed > 0 {
			c.result.RowsAffected += changed
			if existed {
				c.stats.Updated++
			} else {
				c.stats.Inserted++
			}
		}
		c.result.Loaded++
		prog.Add(1)
	}
	return nil
}

// rowAction tags a row written by a per-object statement. Without an existence
// check an upserted row cannot tell an insert from an update.
func rowAction(k op.Kind, existed, checked bool) byte {
	switch {
	case k == op.Insert:
		return output.Inserted
	case checked && !existed:
		return output.Inserted
	default:
		return output.Updated
	}
}

// reconcile pairs output with the input objects and settles the statistics.
func (x *Executor) reconcile(c *call) error {
	d, res := c.d, c.result
	o := d.Options

	if len(c.rows) > 0 || d.Kind == op.Read {
		out, err := output.NewReconciler(d, c.entities).Apply(c.rows)
		if err != nil {
			return err
		}
		if d.Kind == op.Read || o.SetOutputIdentity {
			res.Matched = out.Matched
			res.SkippedForUpdate = out.Skipped
			res.Replaced = out.Replaced
		}
		if c.plan.Row == nil && d.Engine() != engine.MySQL {
			c.stats = out.Stats
		}
	}

	if !o.CalculateStats || d.Kind == op.Read {
		return nil
	}
	stats := c.stats
	if d.Engine() == engine.MySQL && !c.plan.DirectLoad {
		switch d.Kind {
		case op.Insert:
			stats = op.Stats{Inserted: res.RowsAffected}
		case op.Update:
			stats = op.Stats{Updated: res.RowsAffected}
		case op.Delete:
			stats = op.Stats{Deleted: res.RowsAffected}
		case op.InsertOrUpdate:
			stats = output.UpsertStats(int64(len(c.entities)), c.matched, res.RowsAffected)
		}
	}
	res.Stats = &stats
	return nil
}

// exec runs statements in order and returns the summed affected row count.
func (x *Executor) exec(ctx context.Context, pool gorm.ConnPool, stmts []sqlgen.Statement) (int64, error) {
	var total int64
	for _, s := range stmts {
		res, err := pool.ExecContext(ctx, s.SQL, s.Args...)
		if err != nil {
			return total, err
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

// cleanup drops transient objects. Failures are logged, never returned.
func (x *Executor) cleanup(ctx context.Context, pool gorm.ConnPool, stmts []sqlgen.Statement) {
	for _, s := range stmts {
		if _, err := pool.ExecContext(ctx, s.SQL, s.Args...); err != nil {
			if staging.IsAbortedTransaction(err) {
				continue
			}
			x.logger.Warn("Failed to clean up", zap.String("statement", s.SQL), zap.Error(err))
		}
	}
}

func (x *Executor) report(res *op.Result, err error, elapsed time.Duration) {
	o := metrics.Observation{
		Engine:    res.Engine,
		Table:     res.Table,
		Operation: res.Kind.String(),
		Status:    metrics.StatusSuccess,
		Loaded:    res.Loaded,
		Stats:     res.Stats,
		Duration:  elapsed,
	}
	if err != nil {
		o.Status = metrics.StatusFailure
		o.Reason = "error"
		var bulkErr *op.Error
		switch {
		case errors.As(err, &bulkErr):
			o.Reason = string(bulkErr.Reason)
		case errors.Is(err, context.DeadlineExceeded):
			o.Reason = "timeout"
		case errors.Is(err, context.Canceled):
			o.Reason = "canceled"
		}
	}
	x.reporter.Observe(o)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
