package table

import (
	"fmt"
	"reflect"
	"strings"

	"bulksync/core/bulk/engine"
	"bulksync/core/bulk/model"
	"bulksync/core/bulk/op"
	"bulksync/core/database"
	"bulksync/core/utils"

	"github.com/google/uuid"
)

// Input holds everything the resolver needs for one call.
type Input struct {
	// Kind is the requested operation.
	Kind op.Kind
	// Entity is the mapped object type.
	Entity *model.Entity
	// Adapter is the engine adapter.
	Adapter *engine.Adapter
	// Shape is the live target shape. Nil when it was not probed.
	Shape *database.TableShape
	// Options are the call options.
	Options op.Options
	// Entities are the input objects, used to decide which defaults can be omitted.
	Entities []any
	// Schema overrides the entity schema when set.
	Schema string
}

// axis is one include/exclude filter pair.
type axis struct {
	name    string
	include []string
	exclude []string
}

// Resolve validates the options against the entity and builds the descriptor.
func Resolve(in Input) (*Descriptor, error) {
	o := in.Options
	e := in.Entity
	d := &Descriptor{
		Kind:    in.Kind,
		Adapter: in.Adapter,
		Entity:  e,
		Options: o,
		Schema:  e.Schema,
		Table:   e.Table,
	}
	if in.Schema != "" {
		d.Schema = in.Schema
	}
	fail := func(err *op.Error) error {
		return err.WithContext(in.Kind, in.Adapter.Engine.String())
	}

	if !in.Adapter.Capabilities.Supports(in.Kind) {
		return nil, op.Unsupported(in.Kind, in.Adapter.Engine.String())
	}

	axes := []axis{
		{"PropertiesToInclude/PropertiesToExclude", o.PropertiesToInclude, o.PropertiesToExclude},
		{"PropertiesToIncludeOnCompare/PropertiesToExcludeOnCompare", o.PropertiesToIncludeOnCompare, o.PropertiesToExcludeOnCompare},
		{"PropertiesToIncludeOnUpdate/PropertiesToExcludeOnUpdate", o.PropertiesToIncludeOnUpdate, o.PropertiesToExcludeOnUpdate},
	}
	for _, a := range axes {
		if len(a.include) > 0 && len(a.exclude) > 0 {
			return nil, fail(op.Errorf(op.ReasonMultiplePropertyListSet, "only one of %s may be set", a.name))
		}
	}

	lists := map[string][]string{
		"PropertiesToInclude":          o.PropertiesToInclude,
		"PropertiesToExclude":          o.PropertiesToExclude,
		"PropertiesToIncludeOnCompare": o.PropertiesToIncludeOnCompare,
		"PropertiesToExcludeOnCompare": o.PropertiesToExcludeOnCompare,
		"PropertiesToExcludeOnUpdate":  o.PropertiesToExcludeOnUpdate,
		"UpdateByProperties":           o.UpdateByProperties,
	}
	if !o.SkipUpdate() {
		lists["PropertiesToIncludeOnUpdate"] = o.PropertiesToIncludeOnUpdate
	}
	for _, list := range []string{"PropertiesToInclude", "PropertiesToExclude", "PropertiesToIncludeOnCompare", "PropertiesToExcludeOnCompare", "PropertiesToIncludeOnUpdate", "PropertiesToExcludeOnUpdate", "UpdateByProperties"} {
		for _, name := range lists[list] {
			if !hasName(e, name) {
				return nil, fail(op.Errorf(op.ReasonUnknownProperty, "%s names unknown property %q", list, name))
			}
		}
	}

	columns := make(map[*model.Property]*Column, len(e.Properties))
	col := func(p *model.Property) *Column {
		if c, ok := columns[p]; ok {
			return c
		}
		c := &Column{Property: p, Name: p.Column, Type: p.ColumnType, Source: p.Column, Nullable: p.Nullable, Precision: p.Precision}
		if src, ok := o.CustomSourceMapping[p.Name]; ok {
			c.Source = src
		}
		if in.Shape != nil {
			if info, ok := in.Shape.Column(p.Column); ok {
				if info.Nullable() && !p.PrimaryKey {
					c.Nullable = true
				}
				if c.Precision < 0 && info.Precision >= 0 {
					c.Precision = info.Precision
				}
				if c.Type == "" || c.Type == "time" {
					c.Type = info.Type
				}
			}
		}
		columns[p] = c
		return c
	}

	// Match keys
	var keyProps []*model.Property
	if len(o.UpdateByProperties) > 0 {
		// An owned type name stands for all of its flattened properties.
		for _, name := range o.UpdateByProperties {
			if p, ok := e.Property(name); ok {
				keyProps = appendUnique(keyProps, p)
				continue
			}
			for _, p := range e.Properties {
				if matches(p, name) {
					keyProps = appendUnique(keyProps, p)
				}
			}
		}
	} else {
		keyProps = e.PrimaryKey()
	}
	if len(keyProps) == 0 && in.Kind.MatchesRows() {
		return nil, fail(op.Errorf(op.ReasonMissingMatchKey, "%s has no primary key and no UpdateByProperties", e.Name))
	}
	for _, p := range keyProps {
		c := col(p)
		d.MatchKeys = append(d.MatchKeys, c)
		if c.Nullable {
			d.NullableMatch = true
		}
	}

	// Identity
	if p := detectIdentity(in.Adapter.Engine, e, in.Shape); p != nil {
		d.Identity = col(p)
	}

	// Concurrency token
	for _, p := range e.Properties {
		if p.ConcurrencyToken {
			d.Timestamp = col(p)
			break
		}
	}
	useTimestamp := d.Timestamp != nil && o.DoNotUpdateIfTimestampChanged && in.Adapter.Engine == engine.SQLServer

	// Transfer set
	for _, p := range e.Properties {
		c := col(p)
		isKey := d.IsMatchKey(c)
		switch {
		case isKey:
		case p.Strategy == model.StrategyComputed:
			continue
		case p.ConcurrencyToken:
			if !useTimestamp {
				continue
			}
		case len(o.PropertiesToInclude) > 0 && !matchesAny(p, o.PropertiesToInclude):
			continue
		case matchesAny(p, o.PropertiesToExclude):
			continue
		}
		if in.Kind == op.Delete || in.Kind == op.Read {
			if !isKey {
				continue
			}
		}
		if d.Identity != nil && c == d.Identity && !d.stagesIdentity(in.Kind, isKey) {
			continue
		}
		d.Transfer = append(d.Transfer, c)
	}

	// Default valued columns are omitted from the insert only when no input sets them.
	for _, c := range d.Transfer {
		if c == d.Identity || d.IsMatchKey(c) {
			continue
		}
		if !c.Property.HasDefault && !shapeHasDefault(in.Shape, c.Name) {
			continue
		}
		if allZero(c.Property, in.Entities) {
			d.DefaultValued = append(d.DefaultValued, c)
		}
	}

	// Insert branch
	if in.Kind == op.Insert || in.Kind == op.InsertOrUpdate || in.Kind == op.InsertOrUpdateOrDelete {
		for _, c := range d.Transfer {
			switch {
			case c == d.Identity && !o.KeepIdentity:
			case c.Property.ConcurrencyToken:
			case !c.Property.Insertable && c != d.Identity:
			case containsColumn(d.DefaultValued, c):
			default:
				d.Insert = append(d.Insert, c)
			}
		}
	}

	// Update branch
	if in.Kind == op.Update || in.Kind == op.InsertOrUpdate || in.Kind == op.InsertOrUpdateOrDelete {
		if !o.SkipUpdate() {
			for _, c := range d.Transfer {
				switch {
				case d.IsMatchKey(c), c == d.Identity, c.Property.ConcurrencyToken, !c.Property.Updatable:
					continue
				case len(o.PropertiesToIncludeOnUpdate) > 0 && !matchesAny(c.Property, o.PropertiesToIncludeOnUpdate):
					continue
				case matchesAny(c.Property, o.PropertiesToExcludeOnUpdate):
					continue
				}
				d.Update = append(d.Update, c)
			}
		}
		if in.Kind == op.Update && len(d.Update) == 0 {
			return nil, fail(op.Errorf(op.ReasonInvalidConfig, "update of %s has no columns to update", e.Name))
		}

		base := d.Update
		if len(o.PropertiesToIncludeOnCompare) > 0 {
			base = nil
			for _, c := range d.Transfer {
				if !d.IsMatchKey(c) && !c.Property.ConcurrencyToken && matchesAny(c.Property, o.PropertiesToIncludeOnCompare) {
					base = append(base, c)
				}
			}
		}
		for _, c := range base {
			if !matchesAny(c.Property, o.PropertiesToExcludeOnCompare) {
				d.Compare = append(d.Compare, c)
			}
		}
	}
	if !useTimestamp {
		d.Timestamp = nil
	}

	// Output set
	for _, p := range e.Properties {
		d.Output = append(d.Output, col(p))
	}

	d.PreserveOrder = o.PreserveInsertOrder && d.IdentityIsMatchKey()
	d.UseOrdinal = o.Ordering == op.OrderingOrdinal && !d.HasCustomSource() && in.Kind != op.Truncate
	if in.Adapter.Capabilities.NeedsUniqueIndex && (in.Kind == op.InsertOrUpdate || in.Kind == op.InsertOrUpdateOrDelete) {
		d.NeedsUniqueIndex = !hasUniqueIndex(in.Shape, e, d.MatchKeys)
	}

	d.nameStaging(in.Adapter.Engine)
	return d, nil
}

// stagesIdentity decides whether the identity column is written to staging. Plain
// inserts leave it out unless the caller supplies identities or placeholders.
func (d *Descriptor) stagesIdentity(k op.Kind, isKey bool) bool {
	if d.Options.KeepIdentity || d.Options.Ordering == op.OrderingPlaceholder {
		return true
	}
	return k != op.Insert && isKey
}

func (d *Descriptor) nameStaging(e engine.Engine) {
	if d.HasCustomSource() {
		d.StagingSchema = d.Schema
		d.StagingTable = d.Options.CustomSourceTable
		if i := strings.LastIndex(d.StagingTable, "."); i > 0 {
			d.StagingSchema, d.StagingTable = d.StagingTable[:i], d.StagingTable[i+1:]
		}
		d.OutputTable = d.Table + "TempOutput"
		return
	}
	name := d.Table + "Temp"
	if d.Options.UniqueTableNameTempDB {
		name += strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	}
	d.Temporary = d.Options.UseTempDB
	if d.Temporary {
		if e == engine.SQLServer {
			name = "#" + name
		}
	} else {
		d.StagingSchema = d.Schema
	}
	d.StagingTable = name
	d.OutputTable = name + "Output"
}

// detectIdentity finds the engine generated key property.
func detectIdentity(e engine.Engine, ent *model.Entity, shape *database.TableShape) *model.Property {
	if e == engine.SQLite {
		pk := ent.PrimaryKey()
		if len(pk) == 1 && pk[0].Generated == model.GeneratedOnAdd && isIntegerLike(pk[0]) {
			return pk[0]
		}
		return nil
	}

	annotated := false
	for _, p := range ent.Properties {
		if p.Strategy == model.StrategyIdentity {
			return p
		}
		if p.Strategy != model.StrategyNone {
			annotated = true
		}
	}
	if shape != nil && shape.Exists {
		if shape.Identity == "" {
			return nil
		}
		for _, p := range ent.Properties {
			if strings.EqualFold(p.Column, shape.Identity) {
				return p
			}
		}
		return nil
	}
	if annotated {
		return nil
	}
	pk := ent.PrimaryKey()
	if len(pk) == 1 && pk[0].Generated == model.GeneratedOnAdd && isIntegerLike(pk[0]) {
		return pk[0]
	}
	return nil
}

func isIntegerLike(p *model.Property) bool {
	t := strings.ToLower(p.ColumnType)
	if strings.Contains(t, "int") || t == "uint" || t == "serial" || t == "bigserial" {
		return true
	}
	if p.GoType == nil {
		return false
	}
	switch p.GoType.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

func hasUniqueIndex(shape *database.TableShape, e *model.Entity, keys []*Column) bool {
	names := Names(keys)
	if shape != nil && shape.Exists {
		return shape.HasUniqueIndex(names)
	}
	pk := e.PrimaryKey()
	if len(pk) != len(keys) {
		return false
	}
	for _, p := range pk {
		if !containsFold(names, p.Column) {
			return false
		}
	}
	return true
}

func shapeHasDefault(shape *database.TableShape, column string) bool {
	if shape == nil {
		return false
	}
	info, ok := shape.Column(column)
	return ok && info.Default != nil
}

func allZero(p *model.Property, entities []any) bool {
	for _, ent := range entities {
		if !utils.IsZero(p.Get(ent)) {
			return false
		}
	}
	return true
}

// hasName reports whether a filter entry names a property, its column, or an owner
// of dotted properties.
func hasName(e *model.Entity, name string) bool {
	for _, p := range e.Properties {
		if matches(p, name) {
			return true
		}
	}
	return false
}

func matches(p *model.Property, name string) bool {
	if strings.EqualFold(p.Name, name) || strings.EqualFold(p.Column, name) {
		return true
	}
	return len(p.Name) > len(name) && strings.EqualFold(p.Name[:len(name)], name) && p.Name[len(name)] == '.'
}

func matchesAny(p *model.Property, names []string) bool {
	for _, n := range names {
		if matches(p, n) {
			return true
		}
	}
	return false
}

func appendUnique(list []*model.Property, p *model.Property) []*model.Property {
	for _, x := range list {
		if x == p {
			return list
		}
	}
	return append(list, p)
}

func containsColumn(list []*Column, c *Column) bool {
	for _, x := range list {
		if x == c {
			return true
		}
	}
	return false
}

func containsFold(list []string, s string) bool {
	for _, x := range list {
		if strings.EqualFold(x, s) {
			return true
		}
	}
	return false
}

// String renders the descriptor for debug logs.
func (d *Descriptor) String() string {
	return fmt.Sprintf("%s %s staging=%s keys=%v transfer=%d update=%d", d.Kind, d.Target(), d.StagingTable, Names(d.MatchKeys), len(d.Transfer), len(d.Update))
}
