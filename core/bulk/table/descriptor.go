package table

import (
	"bulksync/core/bulk/engine"
	"bulksync/core/bulk/model"
	"bulksync/core/bulk/op"
)

const (
	// OrdinalColumn is the staging column holding each row's input position.
	OrdinalColumn = "BulkSync_OriginalIndex"
	// ActionColumn is the output column holding the single character action tag.
	ActionColumn = "BulkSync_MergeAction"
)

// Column is one mapped column of a descriptor.
type Column struct {
	// Property is the mapped property.
	Property *model.Property
	// Name is the target column name.
	Name string
	// Type is the provider column type.
	Type string
	// Source is the column name in the merge source (staging or custom source table).
	Source string
	// Nullable is true when the column accepts NULL.
	Nullable bool
	// Precision is the fractional seconds precision, -1 when unknown.
	Precision int
}

// Descriptor is the resolved table layout of one bulk call. It is built fresh per
// call and never modified afterwards.
type Descriptor struct {
	// Kind is the operation the descriptor was resolved for.
	Kind op.Kind
	// Adapter is the engine adapter.
	Adapter *engine.Adapter
	// Entity is the mapped object type.
	Entity *model.Entity
	// Options are the call options.
	Options op.Options

	// Schema is the target schema, empty for the connection default.
	Schema string
	// Table is the target table.
	Table string
	// StagingSchema is the staging schema, empty for temporary tables.
	StagingSchema string
	// StagingTable is the staging table name. It is the custom source table when one is set.
	StagingTable string
	// OutputTable is the table capturing merge output, used by SQL Server.
	OutputTable string
	// Temporary is true when staging lives in session temporary storage.
	Temporary bool

	// Transfer lists the columns written to staging.
	Transfer []*Column
	// Insert lists the columns of the insert branch.
	Insert []*Column
	// Update lists the columns of the update branch. Empty means a no-op update.
	Update []*Column
	// Compare lists the columns checked for changes before an update.
	Compare []*Column
	// Output lists the columns read back after the merge.
	Output []*Column
	// MatchKeys lists the columns rows are matched on.
	MatchKeys []*Column

	// Identity is the engine generated key column, nil when the table has none.
	Identity *Column
	// Timestamp is the concurrency token column, nil when not used.
	Timestamp *Column
	// DefaultValued lists columns left to their database default on insert.
	DefaultValued []*Column

	// NullableMatch is true when any match key accepts NULL.
	NullableMatch bool
	// PreserveOrder is true when the sole match key is the identity and inserts
	// must follow input order.
	PreserveOrder bool
	// UseOrdinal is true when staging carries OrdinalColumn.
	UseOrdinal bool
	// NeedsUniqueIndex is true when a transient unique index over the match key
	// must exist for the upsert.
	NeedsUniqueIndex bool
}

// Engine returns the engine of the descriptor.
func (d *Descriptor) Engine() engine.Engine {
	return d.Adapter.Engine
}

// Dialect returns the engine dialect.
func (d *Descriptor) Dialect() engine.Dialect {
	return d.Adapter.Dialect
}

// Target returns the quoted qualified target table.
func (d *Descriptor) Target() string {
	return d.Dialect().Qualify(d.Schema, d.Table)
}

// Staging returns the quoted qualified staging table.
func (d *Descriptor) Staging() string {
	return d.Dialect().Qualify(d.StagingSchema, d.StagingTable)
}

// OutputName returns the quoted qualified output table.
func (d *Descriptor) OutputName() string {
	return d.Dialect().Qualify(d.StagingSchema, d.OutputTable)
}

// Names returns the target column names of a column list.
func Names(cols []*Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}

// Sources returns the source column names of a column list.
func Sources(cols []*Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Source
	}
	return out
}

// IsMatchKey reports whether a column is one of the match keys.
func (d *Descriptor) IsMatchKey(c *Column) bool {
	for _, k := range d.MatchKeys {
		if k.Name == c.Name {
			return true
		}
	}
	return false
}

// IdentityIsMatchKey reports whether the identity column is the only match key.
func (d *Descriptor) IdentityIsMatchKey() bool {
	return d.Identity != nil && len(d.MatchKeys) == 1 && d.MatchKeys[0].Name == d.Identity.Name
}

// InTransfer reports whether a column name is part of the staged columns.
func (d *Descriptor) InTransfer(name string) bool {
	for _, c := range d.Transfer {
		if c.Name == name {
			return true
		}
	}
	return false
}

// HasCustomSource reports whether the merge reads from a caller table.
func (d *Descriptor) HasCustomSource() bool {
	return d.Options.HasCustomSource()
}
