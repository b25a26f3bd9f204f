package op

import "time"

// DefaultBatchSize is the number of rows sent per loader round trip when Options.BatchSize is zero.
const DefaultBatchSize = 2000

// Ordering selects how generated keys are matched back to input objects when the
// match key is the identity column.
type Ordering int

const (
	// OrderingOrdinal stages an ordinal column next to every row and maps output rows
	// back by that ordinal.
	OrderingOrdinal Ordering = iota
	// OrderingPlaceholder assigns negative placeholder identities to new objects,
	// orders staging by key and consumes output rows positionally.
	OrderingPlaceholder
)

// Options configures a single bulk call. It is copied by value into the executor and
// never modified there.
type Options struct {
	// PropertiesToInclude limits the transferred properties. Match keys are always added.
	PropertiesToInclude []string
	// PropertiesToExclude removes properties from the transferred set.
	PropertiesToExclude []string

	// PropertiesToIncludeOnCompare limits the properties checked for changes before an update.
	PropertiesToIncludeOnCompare []string
	// PropertiesToExcludeOnCompare removes properties from the change check.
	PropertiesToExcludeOnCompare []string

	// PropertiesToIncludeOnUpdate limits the properties written by the update branch.
	// A single empty entry disables the update branch.
	PropertiesToIncludeOnUpdate []string
	// PropertiesToExcludeOnUpdate removes properties from the update branch.
	PropertiesToExcludeOnUpdate []string

	// UpdateByProperties overrides the match key (the primary key by default).
	UpdateByProperties []string

	// SetOutputIdentity writes generated and default values back onto the input objects.
	SetOutputIdentity bool
	// PreserveInsertOrder inserts new rows in input order so generated keys follow it.
	PreserveInsertOrder bool
	// KeepIdentity inserts caller-provided identity values instead of generating them.
	KeepIdentity bool
	// Ordering selects the key echo strategy used when SetOutputIdentity is on.
	Ordering Ordering

	// BatchSize is the number of rows per loader batch. Zero means DefaultBatchSize.
	BatchSize int
	// NotifyAfter is the row cadence of Progress. Zero means BatchSize.
	NotifyAfter int
	// Progress receives the loaded fraction, rounded to four decimals. It is always
	// called on the calling goroutine. MySQL LOAD DATA reports once, on completion.
	Progress func(fraction float64)
	// Timeout bounds the whole call. Zero means no extra deadline.
	Timeout time.Duration

	// SynchronizeFilter restricts which target rows InsertOrUpdateOrDelete may delete.
	// It is raw SQL over target columns qualified with the alias T, e.g. "T.category = ?".
	SynchronizeFilter string
	// SynchronizeFilterArgs are bound to the placeholders of SynchronizeFilter.
	SynchronizeFilterArgs []any
	// OnConflictUpdateWhere returns an extra update condition given the target and
	// source aliases.
	OnConflictUpdateWhere func(target, source string) string

	// CustomSourceTable merges from an existing table instead of a staging copy of the input.
	CustomSourceTable string
	// CustomSourceMapping maps property names to CustomSourceTable columns where they differ.
	CustomSourceMapping map[string]string

	// CalculateStats counts inserted, updated and deleted rows.
	CalculateStats bool
	// UseTempDB creates staging as a session temporary table. It requires a caller
	// transaction unless the call is a plain Insert without output identity.
	UseTempDB bool
	// UniqueTableNameTempDB appends a random suffix to staging names.
	UniqueTableNameTempDB bool
	// WithHoldlock adds the HOLDLOCK hint to SQL Server MERGE statements.
	WithHoldlock bool
	// OmitClauseExistsExcept drops the change check from the update branch.
	OmitClauseExistsExcept bool
	// DoNotUpdateIfTimestampChanged skips updates whose concurrency token differs.
	DoNotUpdateIfTimestampChanged bool
	// SRID is applied to spatial values before transfer.
	SRID int
	// DateTime2PrecisionForceRound rounds datetime values to the column precision before transfer.
	DateTime2PrecisionForceRound bool
	// ReplaceReadEntities makes Read return the matched rows instead of updating inputs in place.
	ReplaceReadEntities bool
	// MySQLLocalInfile streams MySQL staging rows with LOAD DATA LOCAL INFILE.
	MySQLLocalInfile bool
}

// Defaults returns the baseline options.
func Defaults() Options {
	return Options{
		PreserveInsertOrder:   true,
		UniqueTableNameTempDB: true,
		WithHoldlock:          true,
		BatchSize:             DefaultBatchSize,
	}
}

// EffectiveBatchSize returns BatchSize or its default.
func (o Options) EffectiveBatchSize() int {
	if o.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return o.BatchSize
}

// EffectiveNotifyAfter returns NotifyAfter or the batch size.
func (o Options) EffectiveNotifyAfter() int {
	if o.NotifyAfter <= 0 {
		return o.EffectiveBatchSize()
	}
	return o.NotifyAfter
}

// SkipUpdate reports whether the update branch was disabled with a single empty
// PropertiesToIncludeOnUpdate entry.
func (o Options) SkipUpdate() bool {
	return len(o.PropertiesToIncludeOnUpdate) == 1 && o.PropertiesToIncludeOnUpdate[0] == ""
}

// HasCustomSource reports whether the merge reads from CustomSourceTable.
func (o Options) HasCustomSource() bool {
	return o.CustomSourceTable != ""
}

// NeedsOutput reports whether the merge must capture output rows.
func (o Options) NeedsOutput(k Kind) bool {
	return o.SetOutputIdentity || o.CalculateStats || k == Read
}
