package engine

import "bulksync/core/bulk/op"

// Capabilities describes what an engine supports natively.
type Capabilities struct {
	// Merge is true when the engine has a MERGE statement with captured output.
	Merge bool
	// DeleteSync is true when InsertOrUpdateOrDelete can run.
	DeleteSync bool
	// Returning is true when DML can return rows directly.
	Returning bool
	// OrdinalOutput is true when output rows can carry the staging ordinal.
	OrdinalOutput bool
	// NeedsUniqueIndex is true when upserts require a unique index over the match key.
	NeedsUniqueIndex bool
	// SessionTempTables is true when temporary staging tables are session scoped.
	SessionTempTables bool
	// MaxParams is the bind parameter limit of a single statement.
	MaxParams int
}

// CapabilitiesOf returns the static capabilities of an engine.
func CapabilitiesOf(e Engine) Capabilities {
	switch e {
	case SQLServer:
		return Capabilities{Merge: true, DeleteSync: true, Returning: true, OrdinalOutput: true, SessionTempTables: true, MaxParams: 2100}
	case PostgreSQL:
		return Capabilities{DeleteSync: true, Returning: true, NeedsUniqueIndex: true, SessionTempTables: true, MaxParams: 65535}
	case MySQL:
		return Capabilities{OrdinalOutput: true, SessionTempTables: true, MaxParams: 65535}
	default:
		return Capabilities{Returning: true, OrdinalOutput: true, NeedsUniqueIndex: true, SessionTempTables: true, MaxParams: 32766}
	}
}

// Supports reports whether the operation kind can run on this engine.
func (c Capabilities) Supports(k op.Kind) bool {
	if k == op.InsertOrUpdateOrDelete {
		return c.DeleteSync
	}
	return true
}
