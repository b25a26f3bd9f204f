package sqlgen

import (
	"fmt"
	"strings"

	"bulksync/core/bulk/op"
	"bulksync/core/bulk/table"
)

const noopVariable = "@bulk_noop"

func buildSQLServer(p *Plan, d *table.Descriptor, count int) error {
	if directInsert(d) {
		p.DirectLoad = true
		p.LoadColumns = d.Insert
		return nil
	}
	if !d.HasCustomSource() {
		p.CreateStaging = CreateStaging(d)
	}
	p.Cleanup = DropStaging(d)
	q := d.Dialect()

	if d.Kind == op.Read {
		p.Merge = []Statement{readJoin(d)}
		return nil
	}

	identityInsert := d.Options.KeepIdentity && d.Identity != nil && d.Kind != op.Delete && d.Kind != op.Update
	if identityInsert {
		p.Setup = append(p.Setup, Statement{SQL: fmt.Sprintf("SET IDENTITY_INSERT %s ON", d.Target())})
		p.Teardown = append(p.Teardown, Statement{SQL: fmt.Sprintf("SET IDENTITY_INSERT %s OFF", d.Target())})
	}

	merge, err := sqlServerMerge(d, count)
	if err != nil {
		return err
	}
	p.Merge = []Statement{merge}

	if d.Options.NeedsOutput(d.Kind) {
		cols := append(table.Names(d.Output), table.OrdinalColumn, table.ActionColumn)
		p.Collect = []Statement{{
			SQL:     fmt.Sprintf("SELECT %s FROM %s", q.Columns("", cols), d.OutputName()),
			Purpose: Output,
		}}
	}
	return nil
}

// sqlServerMerge renders the single MERGE statement of every write kind.
func sqlServerMerge(d *table.Descriptor, count int) (Statement, error) {
	q := d.Dialect()
	var b strings.Builder
	var args []any
	noop := d.Kind.Writes() && d.Kind != op.Insert && d.Kind != op.Delete && len(d.Update) == 0
	if noop {
		fmt.Fprintf(&b, "DECLARE %s INT; ", noopVariable)
	}

	b.WriteString("MERGE " + d.Target())
	if d.Options.WithHoldlock {
		b.WriteString(" WITH (HOLDLOCK)")
	}
	b.WriteString(" AS T USING ")
	switch {
	case d.HasCustomSource():
		b.WriteString(d.Staging())
	case d.Options.Ordering == op.OrderingPlaceholder && d.Identity != nil:
		fmt.Fprintf(&b, "(SELECT TOP %d * FROM %s ORDER BY %s)", count, d.Staging(), q.Quote(d.Identity.Name))
	case d.PreserveOrder && d.UseOrdinal:
		fmt.Fprintf(&b, "(SELECT TOP %d * FROM %s ORDER BY %s)", count, d.Staging(), q.Quote(table.OrdinalColumn))
	default:
		b.WriteString(d.Staging())
	}
	b.WriteString(" AS S ON ")
	if d.Kind == op.Insert {
		b.WriteString("1 = 0")
	} else {
		b.WriteString(matchPredicate(d, "T", "S"))
	}

	if d.Kind == op.Insert || d.Kind == op.InsertOrUpdate || d.Kind == op.InsertOrUpdateOrDelete {
		b.WriteString(" WHEN NOT MATCHED BY TARGET THEN INSERT")
		if len(d.Insert) == 0 {
			b.WriteString(" DEFAULT VALUES")
		} else {
			fmt.Fprintf(&b, " (%s) VALUES (%s)", q.Columns("", table.Names(d.Insert)), q.Columns("S", table.Sources(d.Insert)))
		}
	}

	switch d.Kind {
	case op.Update, op.InsertOrUpdate, op.InsertOrUpdateOrDelete:
		cond := and(sqlServerChanged(d), sqlServerTimestamp(d), updateWhere(d, "T", "S"))
		b.WriteString(" WHEN MATCHED")
		if cond != "" {
			b.WriteString(" AND " + cond)
		}
		b.WriteString(" THEN UPDATE SET ")
		if noop {
			b.WriteString(noopVariable + " = 1")
		} else {
			b.WriteString(assignments(d, d.Update, "T", "S", sourceName))
		}
	case op.Delete:
		b.WriteString(" WHEN MATCHED THEN DELETE")
	}

	if d.Kind == op.InsertOrUpdateOrDelete {
		b.WriteString(" WHEN NOT MATCHED BY SOURCE")
		filter, filterArgs := syncFilter(d, 0)
		if filter != "" {
			b.WriteString(" AND " + filter)
			args = append(args, filterArgs...)
		}
		b.WriteString(" THEN DELETE")
	}

	if d.Options.NeedsOutput(d.Kind) {
		b.WriteString(" OUTPUT " + sqlServerOutput(d))
		cols := append(table.Names(d.Output), table.OrdinalColumn, table.ActionColumn)
		fmt.Fprintf(&b, " INTO %s (%s)", d.OutputName(), q.Columns("", cols))
	}
	b.WriteString(";")
	return Statement{SQL: b.String(), Args: args}, nil
}

// sqlServerChanged renders the EXISTS ... EXCEPT change check.
func sqlServerChanged(d *table.Descriptor) string {
	if len(d.Compare) == 0 || d.Options.OmitClauseExistsExcept || spatialCompare(d) {
		return ""
	}
	q := d.Dialect()
	return fmt.Sprintf("EXISTS (SELECT %s EXCEPT SELECT %s)",
		q.Columns("S", table.Sources(d.Compare)), q.Columns("T", table.Names(d.Compare)))
}

func sqlServerTimestamp(d *table.Descriptor) string {
	if d.Timestamp == nil {
		return ""
	}
	q := d.Dialect()
	return fmt.Sprintf("%s = %s", q.Column("S", d.Timestamp.Source), q.Column("T", d.Timestamp.Name))
}

// sqlServerOutput lists the OUTPUT columns: the row image, the source ordinal and
// the first letter of $action. Deleted rows come from DELETED.
func sqlServerOutput(d *table.Descriptor) string {
	q := d.Dialect()
	parts := make([]string, 0, len(d.Output)+2)
	for _, c := range d.Output {
		var ref string
		switch d.Kind {
		case op.Delete:
			ref = q.Column("DELETED", c.Name)
		case op.InsertOrUpdateOrDelete:
			ref = fmt.Sprintf("COALESCE(%s, %s)", q.Column("INSERTED", c.Name), q.Column("DELETED", c.Name))
		default:
			ref = q.Column("INSERTED", c.Name)
		}
		if c.Property.ConcurrencyToken {
			ref = fmt.Sprintf("CAST(%s AS varbinary(8))", ref)
		}
		parts = append(parts, ref)
	}
	if d.UseOrdinal {
		parts = append(parts, q.Column("S", table.OrdinalColumn))
	} else {
		parts = append(parts, "NULL")
	}
	parts = append(parts, "SUBSTRING($action, 1, 1)")
	return strings.Join(parts, ", ")
}

// assignments renders "t.col = s.src" pairs.
func assignments(d *table.Descriptor, cols []*table.Column, t, s string, src func(*table.Column) string) string {
	q := d.Dialect()
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = fmt.Sprintf("%s = %s", q.Column(t, c.Name), q.Column(s, src(c)))
	}
	return strings.Join(parts, ", ")
}

// readJoin selects matched target rows with the source ordinal.
func readJoin(d *table.Descriptor) Statement {
	q := d.Dialect()
	cols := q.Columns("T", table.Names(d.Output))
	if d.UseOrdinal {
		cols += ", " + q.Column("S", table.OrdinalColumn)
	} else {
		cols += ", NULL"
	}
	cols += ", 'R'"
	return Statement{
		SQL: fmt.Sprintf("SELECT %s FROM %s AS T INNER JOIN %s AS S ON %s",
			cols, d.Target(), d.Staging(), matchPredicate(d, "T", "S")),
		Purpose: Output,
	}
}
