package sqlgen

import (
	"fmt"
	"strings"

	"bulksync/core/bulk/op"
	"bulksync/core/bulk/table"
)

func buildMySQL(p *Plan, d *table.Descriptor) error {
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

	switch d.Kind {
	case op.Read:
		p.Merge = []Statement{readJoin(d)}
		return nil
	case op.Delete:
		p.Merge = []Statement{{SQL: fmt.Sprintf("DELETE T FROM %s AS T INNER JOIN %s AS S ON %s",
			d.Target(), d.Staging(), matchPredicate(d, "T", "S"))}}
		return nil
	case op.Update:
		where := updateWhere(d, "T", "S")
		sql := fmt.Sprintf("UPDATE %s AS T INNER JOIN %s AS S ON %s SET %s",
			d.Target(), d.Staging(), matchPredicate(d, "T", "S"), assignments(d, d.Update, "T", "S", sourceName))
		if where != "" {
			sql += " WHERE " + where
		}
		p.Merge = []Statement{{SQL: sql}}
		if d.Options.SetOutputIdentity {
			p.Collect = []Statement{readJoin(d)}
		}
		return nil
	}

	cols := insertColumns(d)
	if len(cols) == 0 {
		return noInsertColumns(d)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) SELECT %s FROM %s AS S",
		d.Target(), q.Columns("", table.Names(cols)), q.Columns("S", table.Sources(cols)), d.Staging())
	b.WriteString(orderByOrdinal(d, "S"))
	if d.Kind == op.InsertOrUpdate {
		b.WriteString(" ON DUPLICATE KEY UPDATE " + mysqlDuplicateUpdate(d))
		if d.Options.CalculateStats {
			p.Setup = append(p.Setup, Statement{
				SQL: fmt.Sprintf("SELECT COUNT(*) FROM %s AS T INNER JOIN %s AS S ON %s",
					d.Target(), d.Staging(), matchPredicate(d, "T", "S")),
				Purpose: Count,
			})
		}
	}
	p.Merge = []Statement{{SQL: b.String()}}

	if !d.Options.SetOutputIdentity {
		return nil
	}
	switch {
	case d.Identity != nil && (d.IdentityIsMatchKey() || d.Kind == op.Insert):
		// Rows inserted by one statement receive consecutive identities starting
		// at LAST_INSERT_ID, in ordinal order.
		p.Collect = []Statement{{SQL: "SELECT LAST_INSERT_ID()", Purpose: LastInsertID}}
	case d.Kind != op.Insert:
		p.Collect = []Statement{readJoin(d)}
	}
	return nil
}

// mysqlDuplicateUpdate renders the ON DUPLICATE KEY UPDATE assignments. Columns are
// assigned from the staged row; an OnConflictUpdateWhere condition guards each one.
func mysqlDuplicateUpdate(d *table.Descriptor) string {
	q := d.Dialect()
	target := q.Quote(d.Table)
	if len(d.Update) == 0 {
		k := d.MatchKeys[0]
		return fmt.Sprintf("%s = %s", q.Quote(k.Name), q.Column(target, k.Name))
	}
	cond := updateWhere(d, target, "S")
	parts := make([]string, len(d.Update))
	for i, c := range d.Update {
		value := q.Column("S", c.Source)
		if cond != "" {
			value = fmt.Sprintf("IF(%s, %s, %s)", cond, value, q.Column(target, c.Name))
		}
		parts[i] = fmt.Sprintf("%s = %s", q.Quote(c.Name), value)
	}
	return strings.Join(parts, ", ")
}
