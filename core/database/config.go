package database

// Config holds configuration for the database connection.
type Config struct {
	// Host is the database host.
	Host string `mapstructure:"host" default:"localhost"`
	// Port is the database port. Zero selects the driver default.
	Port int `mapstructure:"port" default:"0"`
	// User is the database user.
	User string `mapstructure:"user" default:"root"`
	// Password is the database password.
	Password string `mapstructure:"password" default:""`
	// Name is the database name, or the file path for sqlite.
	Name string `mapstructure:"name" default:"bulksync"`
	// Schema is the default schema for postgres and sqlserver tables.
	Schema string `mapstructure:"schema" default:""`
	// Driver is the database driver (mysql, postgres, sqlserver, sqlite).
	Driver string `mapstructure:"driver" default:"mysql"`
	// TimeoutSeconds bounds connection setup, reads and writes.
	TimeoutSeconds int `mapstructure:"timeout_seconds" default:"30"`
	// MaxOpenConns caps the pool size.
	MaxOpenConns int `mapstructure:"max_open_conns" default:"100"`
	// MaxIdleConns caps idle pooled connections.
	MaxIdleConns int `mapstructure:"max_idle_conns" default:"10"`
}

// DefaultPort returns the configured port or the well known port of the driver.
func (c Config) DefaultPort() int {
	if c.Port > 0 {
		return c.Port
	}
	switch c.Driver {
	case "postgres":
		return 5432
	case "sqlserver":
		return 1433
	default:
		return 3306
	}
}
