package sqlgen

import (
	"fmt"
	"strings"

	"bulksync/core/bulk/engine"
	"bulksync/core/bulk/op"
	"bulksync/core/bulk/table"
)

// NewIdentityColumn holds identities drawn ahead of a PostgreSQL insert.
const NewIdentityColumn = "BulkSync_NewID"

// Purpose tells the executor how to run a statement and what to collect.
type Purpose int

const (
	// Exec runs the statement and records the affected row count.
	Exec Purpose = iota
	// Output queries rows shaped as the output columns, then ordinal, then action.
	Output
	// Count queries a single integer: the number of target rows matched before the merge.
	Count
	// LastInsertID queries the first identity generated by the previous statement.
	LastInsertID
)

// Statement is one SQL statement with its bind arguments.
type Statement struct {
	SQL     string
	Args    []any
	Purpose Purpose
}

func (s Statement) String() string {
	return s.SQL
}

// RowStatement is executed once per input object with the values of Columns bound
// in order. SQLite writes run this way.
type RowStatement struct {
	// SQL is the statement text.
	SQL string
	// Columns are bound from each object in order.
	Columns []*table.Column
	// NullIdentity binds a zero identity value as NULL so the engine generates it.
	NullIdentity bool
	// Returns is true when the statement yields the output columns.
	Returns bool
	// Exists counts matching target rows for the same object, used for stats.
	Exists *RowStatement
}

// Plan is every statement of one bulk call, in execution order.
type Plan struct {
	// DirectLoad loads rows straight into the target instead of staging.
	DirectLoad bool
	// LoadColumns are the columns the loader writes, target or staging.
	LoadColumns []*table.Column
	// LoadOrdinal is true when the loader writes the ordinal column.
	LoadOrdinal bool
	// CreateStaging creates the staging (and output) tables.
	CreateStaging []Statement
	// Setup runs after loading and before the merge.
	Setup []Statement
	// Merge holds the merge statements.
	Merge []Statement
	// Row replaces staging and Merge with one statement per object.
	Row *RowStatement
	// Teardown always runs after the merge, even on failure.
	Teardown []Statement
	// Collect reads output after the merge.
	Collect []Statement
	// Cleanup drops transient objects. Failures are not fatal.
	Cleanup []Statement
	// OutputColumns are the columns of Output rows before the ordinal and action.
	OutputColumns []*table.Column
}

// NeedsStaging reports whether a staging table is created and loaded.
func (p *Plan) NeedsStaging() bool {
	return len(p.CreateStaging) > 0
}

// Build produces the plan for a descriptor. count is the number of input objects.
func Build(d *table.Descriptor, count int) (*Plan, error) {
	if d.Kind == op.Truncate {
		return &Plan{Merge: []Statement{Truncate(d)}}, nil
	}
	p := &Plan{OutputColumns: d.Output}
	var err error
	switch d.Engine() {
	case engine.SQLServer:
		err = buildSQLServer(p, d, count)
	case engine.PostgreSQL:
		err = buildPostgres(p, d)
	case engine.MySQL:
		err = buildMySQL(p, d)
	case engine.SQLite:
		err = buildSQLite(p, d)
	default:
		return nil, fmt.Errorf("no statement generator for engine %s", d.Engine())
	}
	if err != nil {
		return nil, err
	}
	if p.NeedsStaging() {
		p.LoadColumns = d.Transfer
		p.LoadOrdinal = d.UseOrdinal
	}
	return p, nil
}

// directInsert reports whether a plain insert can skip staging.
func directInsert(d *table.Descriptor) bool {
	if d.Kind != op.Insert || d.Options.NeedsOutput(d.Kind) || d.HasCustomSource() {
		return false
	}
	return !(d.Engine() == engine.SQLServer && d.Options.KeepIdentity)
}

// matchPredicate renders the match key join between target alias t and source alias s.
func matchPredicate(d *table.Descriptor, t, s string) string {
	q := d.Dialect()
	parts := make([]string, len(d.MatchKeys))
	for i, c := range d.MatchKeys {
		left, right := q.Column(t, c.Name), q.Column(s, c.Source)
		if d.NullableMatch {
			parts[i] = fmt.Sprintf("(%s = %s OR (%s IS NULL AND %s IS NULL))", left, right, left, right)
		} else {
			parts[i] = left + " = " + right
		}
	}
	return strings.Join(parts, " AND ")
}

// spatialCompare reports whether any compare column is spatial, in which case the
// change check is skipped and the update always fires.
func spatialCompare(d *table.Descriptor) bool {
	for _, c := range d.Compare {
		if c.Property.Spatial {
			return true
		}
	}
	return false
}

// distinctPredicate renders "any compare column differs" with the engine's null-safe
// inequality operator. It returns "" when no check applies.
func distinctPredicate(d *table.Descriptor, t, s string, sourceColumn func(*table.Column) string) string {
	if len(d.Compare) == 0 || d.Options.OmitClauseExistsExcept || spatialCompare(d) {
		return ""
	}
	q := d.Dialect()
	op := "IS DISTINCT FROM"
	if d.Engine() == engine.SQLite {
		op = "IS NOT"
	}
	parts := make([]string, len(d.Compare))
	for i, c := range d.Compare {
		parts[i] = fmt.Sprintf("%s %s %s", q.Column(t, c.Name), op, q.Column(s, sourceColumn(c)))
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}

// updateWhere renders the caller's OnConflictUpdateWhere condition.
func updateWhere(d *table.Descriptor, t, s string) string {
	if d.Options.OnConflictUpdateWhere == nil {
		return ""
	}
	cond := strings.TrimSpace(d.Options.OnConflictUpdateWhere(t, s))
	if cond == "" {
		return ""
	}
	return "(" + cond + ")"
}

// syncFilter renders the synchronize filter with placeholders numbered from offset.
func syncFilter(d *table.Descriptor, offset int) (string, []any) {
	if strings.TrimSpace(d.Options.SynchronizeFilter) == "" {
		return "", nil
	}
	return "(" + d.Dialect().Rebind(d.Options.SynchronizeFilter, offset) + ")", d.Options.SynchronizeFilterArgs
}

func and(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " AND ")
}

// insertColumns returns the insert branch columns. MySQL and SQLite upserts matched
// on the identity keep the identity column so existing rows conflict; a zero value
// still generates a new key.
func insertColumns(d *table.Descriptor) []*table.Column {
	cols := d.Insert
	if d.Identity == nil || !d.IdentityIsMatchKey() || d.Options.KeepIdentity {
		return cols
	}
	if d.Kind != op.InsertOrUpdate && d.Kind != op.InsertOrUpdateOrDelete {
		return cols
	}
	switch d.Engine() {
	case engine.MySQL, engine.SQLite:
		return append([]*table.Column{d.Identity}, cols...)
	}
	return cols
}

func noInsertColumns(d *table.Descriptor) error {
	return op.Errorf(op.ReasonInvalidConfig, "%s has no insertable columns", d.Entity.Name).WithContext(d.Kind, d.Engine().String())
}

func sourceName(c *table.Column) string { return c.Source }
