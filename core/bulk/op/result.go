package op

// Stats holds per-action row counts captured from the merge output.
type Stats struct {
	// Inserted is the number of rows inserted.
	Inserted int64 `json:"inserted"`
	// Updated is the number of rows updated.
	Updated int64 `json:"updated"`
	// Deleted is the number of rows deleted.
	Deleted int64 `json:"deleted"`
}

// Total returns the sum of all counts.
func (s Stats) Total() int64 {
	return s.Inserted + s.Updated + s.Deleted
}

// Add returns the element-wise sum of two stats values.
func (s Stats) Add(other Stats) Stats {
	return Stats{
		Inserted: s.Inserted + other.Inserted,
		Updated:  s.Updated + other.Updated,
		Deleted:  s.Deleted + other.Deleted,
	}
}

// Result describes what a bulk call did.
type Result struct {
	// Kind is the executed operation.
	Kind Kind `json:"kind"`
	// Engine is the engine the call ran against.
	Engine string `json:"engine"`
	// Table is the qualified target table.
	Table string `json:"table"`
	// Loaded is the number of rows written to staging.
	Loaded int64 `json:"loaded"`
	// RowsAffected is the affected row count reported by the merge statement.
	RowsAffected int64 `json:"rows_affected"`
	// Stats is filled when Options.CalculateStats is set.
	Stats *Stats `json:"stats,omitempty"`
	// SkippedForUpdate is the number of inputs that produced no output row, for example
	// because their concurrency token changed.
	SkippedForUpdate int `json:"skipped_for_update"`
	// Matched is the number of inputs paired with a target row, for Read and for
	// writes that echo output back.
	Matched int `json:"matched"`
	// Replaced holds the rows read when Options.ReplaceReadEntities is set.
	Replaced []any `json:"-"`
}
