package sqlgen

import (
	"fmt"
	"strings"

	"bulksync/core/bulk/op"
	"bulksync/core/bulk/table"
)

func buildPostgres(p *Plan, d *table.Descriptor) error {
	if directInsert(d) {
		p.DirectLoad = true
		p.LoadColumns = d.Insert
		return nil
	}
	if !d.HasCustomSource() {
		p.CreateStaging = CreateStaging(d)
	}
	p.Cleanup = DropStaging(d)
	returning := d.Options.NeedsOutput(d.Kind)

	switch d.Kind {
	case op.Read:
		p.Merge = []Statement{readJoin(d)}
	case op.Insert:
		if len(d.Insert) == 0 {
			return noInsertColumns(d)
		}
		p.Merge = []Statement{postgresInsert(d, "", returning)}
	case op.Update:
		p.Merge = []Statement{postgresUpdate(d, returning)}
	case op.Delete:
		stmt := Statement{SQL: fmt.Sprintf("DELETE FROM %s AS T USING %s AS S WHERE %s",
			d.Target(), d.Staging(), matchPredicate(d, "T", "S"))}
		if returning {
			stmt.SQL += " RETURNING " + postgresReturning(d, "S", "'D'")
			stmt.Purpose = Output
		}
		p.Merge = []Statement{stmt}
	case op.InsertOrUpdate, op.InsertOrUpdateOrDelete:
		if len(d.Insert) == 0 {
			return noInsertColumns(d)
		}
		if d.NeedsUniqueIndex {
			p.Setup = append(p.Setup, CreateUniqueIndex(d))
			p.Cleanup = append(p.Cleanup, DropUniqueIndex(d))
		}
		if d.IdentityIsMatchKey() && !d.Options.KeepIdentity {
			// New rows carry no identity, so they cannot conflict on it: existing
			// rows are updated first, then every row missing from the target is
			// inserted with a fresh identity.
			if len(d.Update) > 0 {
				p.Merge = append(p.Merge, postgresUpdate(d, returning))
			}
			if returning && d.UseOrdinal {
				p.Merge = append(p.Merge, postgresInsertMissing(d))
			} else {
				p.Merge = append(p.Merge, postgresInsert(d, missingFromTarget(d), returning))
			}
		} else {
			p.Merge = append(p.Merge, postgresUpsert(d, returning))
		}
		if d.Kind == op.InsertOrUpdateOrDelete {
			p.Merge = append(p.Merge, postgresSyncDelete(d, returning))
		}
	}
	return nil
}

// postgresReturning lists the RETURNING columns: the row image, the source ordinal
// (when the source alias is visible) and an action literal or expression.
func postgresReturning(d *table.Descriptor, source, action string) string {
	q := d.Dialect()
	cols := q.Columns("T", table.Names(d.Output))
	if source != "" && d.UseOrdinal {
		cols += ", " + q.Column(source, table.OrdinalColumn)
	} else {
		cols += ", NULL::integer"
	}
	return cols + ", " + action
}

func orderByOrdinal(d *table.Descriptor, alias string) string {
	if !d.UseOrdinal {
		return ""
	}
	return " ORDER BY " + d.Dialect().Column(alias, table.OrdinalColumn)
}

// postgresInsert inserts staged rows in ordinal order. where filters the source rows.
func postgresInsert(d *table.Descriptor, where string, returning bool) Statement {
	q := d.Dialect()
	sql := fmt.Sprintf("INSERT INTO %s AS T (%s) SELECT %s FROM %s AS S",
		d.Target(), q.Columns("", table.Names(d.Insert)), q.Columns("S", table.Sources(d.Insert)), d.Staging())
	if where != "" {
		sql += " WHERE " + where
	}
	sql += orderByOrdinal(d, "S")
	stmt := Statement{SQL: sql}
	if returning {
		stmt.SQL += " RETURNING " + postgresReturning(d, "", "'I'")
		stmt.Purpose = Output
	}
	return stmt
}

// missingFromTarget selects staged rows with no target row of the same key.
func missingFromTarget(d *table.Descriptor) string {
	return fmt.Sprintf("NOT EXISTS (SELECT 1 FROM %s AS T WHERE %s)", d.Target(), matchPredicate(d, "T", "S"))
}

// postgresInsertMissing inserts staged rows missing from the target and returns
// them with their source ordinal. Identities are drawn from the column sequence
// up front so each returned row can be joined back to the staged row it came from.
func postgresInsertMissing(d *table.Descriptor) Statement {
	q := d.Dialect()
	newID := q.Quote(NewIdentityColumn)
	ordinal := q.Quote(table.OrdinalColumn)
	sequence := fmt.Sprintf("pg_get_serial_sequence('%s', '%s')",
		strings.ReplaceAll(d.Target(), "'", "''"), strings.ReplaceAll(d.Identity.Name, "'", "''"))

	var b strings.Builder
	fmt.Fprintf(&b, "WITH src AS (SELECT S.*, nextval(%s) AS %s FROM %s AS S WHERE %s ORDER BY S.%s)",
		sequence, newID, d.Staging(), missingFromTarget(d), ordinal)
	fmt.Fprintf(&b, ", ins AS (INSERT INTO %s AS T (%s, %s) OVERRIDING SYSTEM VALUE SELECT src.%s, %s FROM src ORDER BY src.%s RETURNING %s)",
		d.Target(), q.Quote(d.Identity.Name), q.Columns("", table.Names(d.Insert)),
		newID, q.Columns("src", table.Sources(d.Insert)), newID,
		q.Columns("T", table.Names(d.Output)))
	fmt.Fprintf(&b, " SELECT %s, src.%s, 'I' FROM ins INNER JOIN src ON %s = src.%s",
		q.Columns("ins", table.Names(d.Output)), ordinal, q.Column("ins", d.Identity.Name), newID)
	return Statement{SQL: b.String(), Purpose: Output}
}

// postgresUpsert renders INSERT ... ON CONFLICT DO UPDATE. Whether a returned row
// was inserted is read from xmax, which is zero for fresh tuples.
func postgresUpsert(d *table.Descriptor, returning bool) Statement {
	q := d.Dialect()
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s AS T (%s) SELECT %s FROM %s AS S",
		d.Target(), q.Columns("", table.Names(d.Insert)), q.Columns("S", table.Sources(d.Insert)), d.Staging())
	b.WriteString(orderByOrdinal(d, "S"))
	fmt.Fprintf(&b, " ON CONFLICT (%s) DO UPDATE SET ", q.Columns("", table.Names(d.MatchKeys)))
	excluded := func(c *table.Column) string { return c.Name }
	if len(d.Update) == 0 {
		// Touch the key so the conflicting row is still returned.
		b.WriteString(assignments(d, d.MatchKeys[:1], "", "EXCLUDED", excluded))
	} else {
		b.WriteString(assignments(d, d.Update, "", "EXCLUDED", excluded))
		if cond := and(distinctPredicate(d, "T", "EXCLUDED", excluded), updateWhere(d, "T", "EXCLUDED")); cond != "" {
			b.WriteString(" WHERE " + cond)
		}
	}
	stmt := Statement{SQL: b.String()}
	if returning {
		stmt.SQL += " RETURNING " + postgresReturning(d, "", "CASE WHEN T.xmax = 0 THEN 'I' ELSE 'U' END")
		stmt.Purpose = Output
	}
	return stmt
}

// postgresUpdate renders UPDATE ... FROM staging.
func postgresUpdate(d *table.Descriptor, returning bool) Statement {
	var b strings.Builder
	fmt.Fprintf(&b, "UPDATE %s AS T SET %s FROM %s AS S WHERE ",
		d.Target(), assignments(d, d.Update, "", "S", sourceName), d.Staging())
	b.WriteString(and(matchPredicate(d, "T", "S"), distinctPredicate(d, "T", "S", sourceName), updateWhere(d, "T", "S")))
	stmt := Statement{SQL: b.String()}
	if returning {
		stmt.SQL += " RETURNING " + postgresReturning(d, "S", "'U'")
		stmt.Purpose = Output
	}
	return stmt
}

// postgresSyncDelete removes target rows missing from the source, limited by the
// synchronize filter.
func postgresSyncDelete(d *table.Descriptor, returning bool) Statement {
	filter, args := syncFilter(d, 0)
	where := and(fmt.Sprintf("NOT EXISTS (SELECT 1 FROM %s AS S WHERE %s)", d.Staging(), matchPredicate(d, "T", "S")), filter)
	stmt := Statement{SQL: fmt.Sprintf("DELETE FROM %s AS T WHERE %s", d.Target(), where), Args: args}
	if returning {
		stmt.SQL += " RETURNING " + postgresReturning(d, "", "'D'")
		stmt.Purpose = Output
	}
	return stmt
}
