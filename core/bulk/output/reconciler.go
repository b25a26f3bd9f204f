package output

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"bulksync/core/bulk/op"
	"bulksync/core/bulk/table"
	"bulksync/core/utils"
)

// IndexToGeneratedID maps an input position to the identity the engine reported for it.
type IndexToGeneratedID map[int]any

// Outcome is what reconciling output rows produced.
type Outcome struct {
	// Stats counts rows per action.
	Stats op.Stats
	// Matched is the number of input objects paired with an output row.
	Matched int
	// Skipped is the number of input objects that expected an output row and got none.
	Skipped int
	// Replaced holds new objects built from Read rows when ReplaceReadEntities is set.
	Replaced []any
	// Generated holds the identities of paired objects, nil when the table has none.
	Generated IndexToGeneratedID
}

// Reconciler pairs output rows with the input objects and writes values back.
type Reconciler struct {
	d        *table.Descriptor
	entities []any
}

// NewReconciler creates a reconciler for one call.
func NewReconciler(d *table.Descriptor, entities []any) *Reconciler {
	return &Reconciler{d: d, entities: entities}
}

// CountActions tallies the action letters of output rows.
func CountActions(rows []Row) op.Stats {
	var s op.Stats
	for _, r := range rows {
		switch r.Action {
		case Inserted:
			s.Inserted++
		case Updated:
			s.Updated++
		case Deleted:
			s.Deleted++
		}
	}
	return s
}

// Apply pairs rows with input objects. Write kinds copy the row image onto the paired
// objects when SetOutputIdentity is on; Read copies it always. Pairing uses the ordinal
// when the engine reported one, then the match key. Rows inserted with a generated
// identity that was also the match key are handed out in identity order to the objects
// that had no identity yet. Nothing is written when the pairing is ambiguous.
func (r *Reconciler) Apply(rows []Row) (Outcome, error) {
	out := Outcome{Stats: CountActions(rows)}
	write := r.d.Options.SetOutputIdentity || r.d.Kind == op.Read
	if !write {
		return out, nil
	}

	pairs, err := r.pair(rows)
	if err != nil {
		return out, err
	}

	if r.d.Kind == op.Read && r.d.Options.ReplaceReadEntities {
		for i := range r.entities {
			row, ok := pairs[i]
			if !ok {
				continue
			}
			fresh := r.d.Entity.New()
			if err := r.store(fresh, row); err != nil {
				return out, err
			}
			out.Replaced = append(out.Replaced, fresh)
		}
		out.Matched = len(out.Replaced)
		return out, nil
	}

	idIdx := -1
	if r.d.Identity != nil && r.d.Kind != op.Read {
		idIdx = r.outputIndex(r.d.Identity.Name)
		out.Generated = make(IndexToGeneratedID, len(pairs))
	}
	for i, e := range r.entities {
		row, ok := pairs[i]
		if !ok {
			if r.d.Kind == op.Read {
				if err := r.resetKeys(e); err != nil {
					return out, err
				}
			} else if r.expectsRow(e) {
				out.Skipped++
			}
			continue
		}
		if err := r.store(e, row); err != nil {
			return out, err
		}
		if idIdx >= 0 && idIdx < len(row.Values) {
			out.Generated[i] = row.Values[idIdx]
		}
		out.Matched++
	}
	return out, nil
}

// expectsRow reports whether an unpaired object was meant to produce output. Updates
// filtered by the change check or a concurrency token produce none.
func (r *Reconciler) expectsRow(entity any) bool {
	switch r.d.Kind {
	case op.Update, op.InsertOrUpdate, op.InsertOrUpdateOrDelete:
		return !r.pending(entity)
	}
	return false
}

// pending reports whether the object still waits for a generated identity.
func (r *Reconciler) pending(entity any) bool {
	if r.d.Identity == nil || !r.d.IdentityIsMatchKey() {
		return false
	}
	v, err := r.d.Identity.Property.Value(entity)
	if err != nil {
		return false
	}
	return utils.IsZero(v) || utils.ToInt64(v) < 0
}

func (r *Reconciler) pair(rows []Row) (map[int]Row, error) {
	pairs := make(map[int]Row, len(rows))
	var byKey, fresh []Row
	var repeated []int
	for _, row := range rows {
		if row.Action == Deleted && r.d.Kind != op.Delete {
			continue
		}
		switch {
		case row.Ordinal >= 0 && row.Ordinal < len(r.entities):
			if _, dup := pairs[row.Ordinal]; dup {
				repeated = append(repeated, row.Ordinal)
			}
			pairs[row.Ordinal] = row
		case row.Action == Inserted && r.d.IdentityIsMatchKey() && !r.d.Options.KeepIdentity:
			fresh = append(fresh, row)
		default:
			byKey = append(byKey, row)
		}
	}
	if len(repeated) > 0 {
		return nil, r.ambiguousOrdinals(repeated)
	}

	if len(fresh) > 0 {
		if err := r.pairFresh(pairs, fresh); err != nil {
			return nil, err
		}
	}
	if len(byKey) > 0 {
		if err := r.pairByKey(pairs, byKey); err != nil {
			return nil, err
		}
	}
	return pairs, nil
}

// pairFresh hands inserted rows, in identity order, to the objects still waiting for
// an identity, in input order. Negative placeholders sort before zero values. More
// inserted rows than waiting objects means objects that carried an identity were
// inserted too, and the rows cannot be told apart.
func (r *Reconciler) pairFresh(pairs map[int]Row, fresh []Row) error {
	idx := r.outputIndex(r.d.Identity.Name)
	sort.SliceStable(fresh, func(i, j int) bool {
		return utils.ToInt64(fresh[i].Values[idx]) < utils.ToInt64(fresh[j].Values[idx])
	})
	type waiting struct {
		pos         int
		placeholder int64
	}
	var queue []waiting
	for i, e := range r.entities {
		if _, taken := pairs[i]; taken || !r.pending(e) {
			continue
		}
		v, _ := r.d.Identity.Property.Value(e)
		queue = append(queue, waiting{pos: i, placeholder: utils.ToInt64(v)})
	}
	sort.SliceStable(queue, func(i, j int) bool {
		a, b := queue[i].placeholder, queue[j].placeholder
		if a < 0 && b < 0 {
			return a < b
		}
		return a < 0 && b >= 0
	})
	if len(fresh) > len(queue) {
		return op.Errorf(op.ReasonAmbiguousOutputIdentity, "%d inserted rows cannot be paired with %d objects waiting for an identity",
			len(fresh), len(queue)).WithContext(r.d.Kind, r.d.Engine().String())
	}
	for i, row := range fresh {
		pairs[queue[i].pos] = row
	}
	return nil
}

// pairByKey matches rows on the match key tuple. Duplicate input tuples or duplicate
// row tuples make the pairing ambiguous.
func (r *Reconciler) pairByKey(pairs map[int]Row, rows []Row) error {
	keyIdx := make([]int, len(r.d.MatchKeys))
	for i, k := range r.d.MatchKeys {
		keyIdx[i] = r.outputIndex(k.Name)
		if keyIdx[i] < 0 {
			return op.Errorf(op.ReasonAmbiguousOutputIdentity, "match key %s is not part of the output", k.Name)
		}
	}

	inputs := make(map[string][]int)
	for i, e := range r.entities {
		if _, taken := pairs[i]; taken {
			continue
		}
		parts := make([]string, len(r.d.MatchKeys))
		for j, k := range r.d.MatchKeys {
			v, err := k.Property.Value(e)
			if err != nil {
				return err
			}
			parts[j] = utils.KeyString(v)
		}
		key := strings.Join(parts, "|")
		inputs[key] = append(inputs[key], i)
	}

	seen := make(map[string]int)
	var ambiguous []string
	for _, row := range rows {
		parts := make([]string, len(keyIdx))
		for j, idx := range keyIdx {
			parts[j] = utils.KeyString(row.Values[idx])
		}
		key := strings.Join(parts, "|")
		seen[key]++
		if len(inputs[key]) > 1 || seen[key] == 2 {
			ambiguous = append(ambiguous, "("+strings.Join(parts, ", ")+")")
		}
	}
	if len(ambiguous) > 0 {
		sort.Strings(ambiguous)
		keys := dedupe(ambiguous)
		err := op.Errorf(op.ReasonAmbiguousOutputIdentity, "%d key values cannot be paired with a single input by %s",
			len(keys), strings.Join(table.Names(r.d.MatchKeys), ", "))
		err.Keys = keys
		return err.WithContext(r.d.Kind, r.d.Engine().String())
	}

	for _, row := range rows {
		parts := make([]string, len(keyIdx))
		for j, idx := range keyIdx {
			parts[j] = utils.KeyString(row.Values[idx])
		}
		if match := inputs[strings.Join(parts, "|")]; len(match) == 1 {
			pairs[match[0]] = row
		}
	}
	return nil
}

// ambiguousOrdinals reports inputs that produced more than one output row, which
// happens when one staged row matches several target rows.
func (r *Reconciler) ambiguousOrdinals(ordinals []int) error {
	var keys []string
	for _, i := range ordinals {
		parts := make([]string, len(r.d.MatchKeys))
		for j, k := range r.d.MatchKeys {
			v, err := k.Property.Value(r.entities[i])
			if err != nil {
				return err
			}
			parts[j] = utils.KeyString(v)
		}
		keys = append(keys, "("+strings.Join(parts, ", ")+")")
	}
	sort.Strings(keys)
	keys = dedupe(keys)
	err := op.Errorf(op.ReasonAmbiguousOutputIdentity, "%d inputs matched more than one row by %s",
		len(keys), strings.Join(table.Names(r.d.MatchKeys), ", "))
	err.Keys = keys
	return err.WithContext(r.d.Kind, r.d.Engine().String())
}

func (r *Reconciler) store(entity any, row Row) error {
	for i, c := range r.d.Output {
		if i >= len(row.Values) {
			break
		}
		if err := c.Property.Store(entity, row.Values[i]); err != nil {
			return err
		}
	}
	return nil
}

// resetKeys clears the match key of an object that Read found no row for.
func (r *Reconciler) resetKeys(entity any) error {
	for _, k := range r.d.MatchKeys {
		if err := k.Property.Store(entity, nil); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reconciler) outputIndex(column string) int {
	for i, c := range r.d.Output {
		if c.Name == column {
			return i
		}
	}
	return -1
}

// AssignSequential gives consecutive identities starting at first to the objects
// still waiting for one, in input order. MySQL reports only the first identity of a
// multi-row insert.
func (r *Reconciler) AssignSequential(first int64) (int, error) {
	if r.d.Identity == nil || first <= 0 {
		return 0, nil
	}
	next := first
	n := 0
	for _, e := range r.entities {
		v, err := r.d.Identity.Property.Value(e)
		if err != nil {
			return n, err
		}
		if !utils.IsZero(v) && utils.ToInt64(v) > 0 {
			continue
		}
		if err := r.d.Identity.Property.Store(e, next); err != nil {
			return n, err
		}
		next++
		n++
	}
	return n, nil
}

// UpsertStats derives MySQL upsert counts. ON DUPLICATE KEY UPDATE reports one
// affected row per insert and two per changed update.
func UpsertStats(total, matched, affected int64) op.Stats {
	inserted := total - matched
	if inserted < 0 {
		inserted = 0
	}
	updated := (affected - inserted) / 2
	if updated < 0 {
		updated = 0
	}
	return op.Stats{Inserted: inserted, Updated: updated}
}

func dedupe(sorted []string) []string {
	out := sorted[:0]
	for i, s := range sorted {
		if i == 0 || s != sorted[i-1] {
			out = append(out, s)
		}
	}
	return out
}

// Placeholders assigns negative identities -N..-1 to objects without one, in input
// order, so staging can be ordered by identity. The returned restore func resets
// every placeholder still present back to zero.
func Placeholders(d *table.Descriptor, entities []any) (restore func() error, err error) {
	if d.Identity == nil {
		return func() error { return nil }, nil
	}
	switch d.Identity.Property.GoType.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return nil, op.Errorf(op.ReasonInvalidConfig, "placeholder ordering needs a signed identity, %s is %s",
			d.Identity.Property.Name, d.Identity.Property.GoType).WithContext(d.Kind, d.Engine().String())
	}
	var pending []int
	for i, e := range entities {
		v, err := d.Identity.Property.Value(e)
		if err != nil {
			return nil, err
		}
		if utils.IsZero(v) {
			pending = append(pending, i)
		}
	}
	for j, i := range pending {
		if err := d.Identity.Property.Store(entities[i], int64(j-len(pending))); err != nil {
			return nil, fmt.Errorf("failed to assign placeholder identity: %w", err)
		}
	}
	return func() error {
		for _, i := range pending {
			v, err := d.Identity.Property.Value(entities[i])
			if err != nil {
				return err
			}
			if utils.ToInt64(v) < 0 {
				if err := d.Identity.Property.Store(entities[i], nil); err != nil {
					return err
				}
			}
		}
		return nil
	}, nil
}
