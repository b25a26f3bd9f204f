package database

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/driver/sqlserver"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect establishes a connection to the configured database.
// It returns a *gorm.DB connection or an error if the connection fails.
func Connect(cfg Config) (*gorm.DB, error) {
	// Ensure timeout defaults if not set (Config struct sets default but verifying safety)
	timeout := cfg.TimeoutSeconds
	if timeout <= 0 {
		timeout = 30
	}

	dialector, err := Dialector(cfg, timeout)
	if err != nil {
		return nil, err
	}

	// Suppress GORM logging for cleaner optional warnings in main logger
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	maxOpen, maxIdle := cfg.MaxOpenConns, cfg.MaxIdleConns
	if maxOpen <= 0 {
		maxOpen = 100
	}
	if maxIdle <= 0 {
		maxIdle = 10
	}
	// Every connection to an in-memory sqlite database sees a different database.
	if cfg.Driver == "sqlite" && isMemory(cfg.Name) {
		maxOpen, maxIdle = 1, 1
	}
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// Verify connection with context timeout
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout)*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// Dialector builds the gorm dialector for the configured driver.
func Dialector(cfg Config, timeout int) (gorm.Dialector, error) {
	// Special characters in the password must be URL encoded.
	userInfo := url.UserPassword(cfg.User, cfg.Password)

	switch cfg.Driver {
	case "sqlite":
		return sqlite.Open(cfg.Name), nil
	case "postgres":
		dsn := url.URL{
			Scheme:   "postgres",
			User:     userInfo,
			Host:     fmt.Sprintf("%s:%d", cfg.Host, cfg.DefaultPort()),
			Path:     "/" + cfg.Name,
			RawQuery: fmt.Sprintf("sslmode=disable&connect_timeout=%d", timeout),
		}
		if cfg.Schema != "" {
			dsn.RawQuery += "&search_path=" + url.QueryEscape(cfg.Schema)
		}
		return postgres.Open(dsn.String()), nil
	case "sqlserver":
		query := url.Values{}
		query.Set("database", cfg.Name)
		query.Set("dial timeout", fmt.Sprint(timeout))
		dsn := url.URL{
			Scheme:   "sqlserver",
			User:     userInfo,
			Host:     fmt.Sprintf("%s:%d", cfg.Host, cfg.DefaultPort()),
			RawQuery: query.Encode(),
		}
		return sqlserver.Open(dsn.String()), nil
	case "mysql", "":
		// [username[:password]@][protocol[(address)]]/dbname[?param1=value1&...&paramN=valueN]
		dsn := fmt.Sprintf("%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local&timeout=%ds&readTimeout=%ds&writeTimeout=%ds",
			userInfo.String(), cfg.Host, cfg.DefaultPort(), cfg.Name, timeout, timeout, timeout)
		return mysql.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func isMemory(name string) bool {
	return name == ":memory:" || strings.Contains(name, "mode=memory")
}
