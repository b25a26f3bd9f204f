package sqlgen

import (
	"fmt"
	"strings"

	"bulksync/core/bulk/op"
	"bulksync/core/bulk/table"
)

func buildSQLite(p *Plan, d *table.Descriptor) error {
	if directInsert(d) {
		p.DirectLoad = true
		p.LoadColumns = d.Insert
		return nil
	}
	returning := d.Options.NeedsOutput(d.Kind)

	switch d.Kind {
	case op.Insert, op.InsertOrUpdate:
		if d.HasCustomSource() {
			return sqliteFromSource(p, d, returning)
		}
		row, err := sqliteRow(d, returning)
		if err != nil {
			return err
		}
		p.Row = row
		if d.NeedsUniqueIndex {
			p.Setup = append(p.Setup, CreateUniqueIndex(d))
			p.Cleanup = append(p.Cleanup, DropUniqueIndex(d))
		}
		return nil
	}

	if !d.HasCustomSource() {
		p.CreateStaging = CreateStaging(d)
	}
	p.Cleanup = DropStaging(d)

	switch d.Kind {
	case op.Read:
		p.Merge = []Statement{readJoin(d)}
	case op.Update:
		where := and(matchPredicate(d, "T", "S"), distinctPredicate(d, "T", "S", sourceName), updateWhere(d, "T", "S"))
		stmt := Statement{SQL: fmt.Sprintf("UPDATE %s AS T SET %s FROM %s AS S WHERE %s",
			d.Target(), assignments(d, d.Update, "", "S", sourceName), d.Staging(), where)}
		if returning {
			stmt.SQL += " RETURNING " + sqliteReturning(d, "'U'")
			stmt.Purpose = Output
		}
		p.Merge = []Statement{stmt}
	case op.Delete:
		stmt := Statement{SQL: fmt.Sprintf("DELETE FROM %s AS T WHERE EXISTS (SELECT 1 FROM %s AS S WHERE %s)",
			d.Target(), d.Staging(), matchPredicate(d, "T", "S"))}
		if returning {
			stmt.SQL += " RETURNING " + sqliteReturning(d, "'D'")
			stmt.Purpose = Output
		}
		p.Merge = []Statement{stmt}
	default:
		return op.Unsupported(d.Kind, d.Engine().String())
	}
	return nil
}

// sqliteReturning lists RETURNING columns. SQLite only lets RETURNING reference the
// modified table, so names stay unqualified and the ordinal is NULL.
func sqliteReturning(d *table.Descriptor, action string) string {
	return d.Dialect().Columns("", table.Names(d.Output)) + ", NULL, " + action
}

// sqliteRow builds the per-object insert or upsert. RETURNING yields the bare
// output columns since the caller knows each object's ordinal.
func sqliteRow(d *table.Descriptor, returning bool) (*RowStatement, error) {
	q := d.Dialect()
	cols := insertColumns(d)
	if len(cols) == 0 {
		return nil, noInsertColumns(d)
	}
	marks := make([]string, len(cols))
	for i := range cols {
		marks[i] = "?"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s AS T (%s) VALUES (%s)", d.Target(), q.Columns("", table.Names(cols)), strings.Join(marks, ", "))
	if d.Kind == op.InsertOrUpdate {
		b.WriteString(sqliteConflict(d))
	}
	row := &RowStatement{Columns: cols, Returns: returning}
	if returning {
		b.WriteString(" RETURNING " + q.Columns("", table.Names(d.Output)))
	}
	row.SQL = b.String()
	for _, c := range cols {
		if d.Identity != nil && c.Name == d.Identity.Name && !d.Options.KeepIdentity {
			row.NullIdentity = true
		}
	}
	if d.Kind == op.InsertOrUpdate && d.Options.CalculateStats {
		conds := make([]string, len(d.MatchKeys))
		for i, k := range d.MatchKeys {
			if d.NullableMatch {
				conds[i] = q.Quote(k.Name) + " IS ?"
			} else {
				conds[i] = q.Quote(k.Name) + " = ?"
			}
		}
		row.Exists = &RowStatement{
			SQL:          fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", d.Target(), strings.Join(conds, " AND ")),
			Columns:      d.MatchKeys,
			NullIdentity: row.NullIdentity,
		}
	}
	return row, nil
}

// sqliteFromSource inserts or upserts straight from a caller table in one statement.
// Upserts against a select need the WHERE true disambiguation.
func sqliteFromSource(p *Plan, d *table.Descriptor, returning bool) error {
	q := d.Dialect()
	cols := insertColumns(d)
	if len(cols) == 0 {
		return noInsertColumns(d)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s AS T (%s) SELECT %s FROM %s AS S WHERE true",
		d.Target(), q.Columns("", table.Names(cols)), q.Columns("S", table.Sources(cols)), d.Staging())
	if d.Kind == op.InsertOrUpdate {
		b.WriteString(sqliteConflict(d))
		if d.NeedsUniqueIndex {
			p.Setup = append(p.Setup, CreateUniqueIndex(d))
			p.Cleanup = append(p.Cleanup, DropUniqueIndex(d))
		}
	}
	stmt := Statement{SQL: b.String()}
	if returning {
		stmt.SQL += " RETURNING " + sqliteReturning(d, "'U'")
		stmt.Purpose = Output
	}
	p.Merge = []Statement{stmt}
	return nil
}

// sqliteConflict renders the ON CONFLICT clause of an upsert.
func sqliteConflict(d *table.Descriptor) string {
	q := d.Dialect()
	excluded := func(c *table.Column) string { return c.Name }
	s := fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET ", q.Columns("", table.Names(d.MatchKeys)))
	if len(d.Update) == 0 {
		return s + assignments(d, d.MatchKeys[:1], "", "excluded", excluded)
	}
	s += assignments(d, d.Update, "", "excluded", excluded)
	if cond := and(distinctPredicate(d, "T", "excluded", excluded), updateWhere(d, "T", "excluded")); cond != "" {
		s += " WHERE " + cond
	}
	return s
}
