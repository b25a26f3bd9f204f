package bulk

import (
	"time"

	"bulksync/core/bulk/op"
)

// Config holds the baseline options applied to every bulk call the application makes.
type Config struct {
	// BatchSize is the number of rows per loader round trip.
	BatchSize int `mapstructure:"batch_size" default:"2000"`
	// NotifyAfter is the progress cadence in rows. Zero follows the batch size.
	NotifyAfter int `mapstructure:"notify_after" default:"0"`
	// TimeoutSeconds bounds a single call. Zero means no extra deadline.
	TimeoutSeconds int `mapstructure:"timeout_seconds" default:"0"`
	// Holdlock adds HOLDLOCK to SQL Server merges.
	Holdlock bool `mapstructure:"holdlock" default:"true"`
	// UniqueStagingNames suffixes staging tables with a random id.
	UniqueStagingNames bool `mapstructure:"unique_staging_names" default:"true"`
	// PreserveOrder inserts new rows in input order.
	PreserveOrder bool `mapstructure:"preserve_order" default:"true"`
	// CalculateStats counts inserted, updated and deleted rows.
	CalculateStats bool `mapstructure:"calculate_stats" default:"true"`
	// SetOutputIdentity writes generated keys back onto the input objects.
	SetOutputIdentity bool `mapstructure:"set_output_identity" default:"false"`
	// UseTempDB stages into session temporary tables.
	UseTempDB bool `mapstructure:"use_temp_db" default:"false"`
	// MySQLLocalInfile streams MySQL staging rows with LOAD DATA LOCAL INFILE.
	MySQLLocalInfile bool `mapstructure:"mysql_local_infile" default:"false"`
	// ShapeCacheSeconds is how long probed table shapes are reused.
	ShapeCacheSeconds int `mapstructure:"shape_cache_seconds" default:"300"`
}

// Options returns the baseline options described by the configuration.
func (c Config) Options() op.Options {
	o := op.Defaults()
	if c.BatchSize > 0 {
		o.BatchSize = c.BatchSize
	}
	o.NotifyAfter = c.NotifyAfter
	o.Timeout = time.Duration(c.TimeoutSeconds) * time.Second
	o.WithHoldlock = c.Holdlock
	o.UniqueTableNameTempDB = c.UniqueStagingNames
	o.PreserveInsertOrder = c.PreserveOrder
	o.CalculateStats = c.CalculateStats
	o.SetOutputIdentity = c.SetOutputIdentity
	o.UseTempDB = c.UseTempDB
	o.MySQLLocalInfile = c.MySQLLocalInfile
	return o
}

// ShapeTTL returns the shape cache lifetime.
func (c Config) ShapeTTL() time.Duration {
	return time.Duration(c.ShapeCacheSeconds) * time.Second
}
