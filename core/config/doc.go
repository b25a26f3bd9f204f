// Package config provides configuration management for bulksync.
//
// It uses godotenv to load a .env file and Viper to map environment variables onto
// the configuration structs. Defaults come from the `default` struct tags.
//
// # Configuration Structure
//
// The Config struct is divided into subsections:
//   - Server: HTTP server settings (port, API key, body limit)
//   - Database: connection details for mysql, postgres, sqlserver or sqlite
//   - Storage: S3/MinIO credentials and bucket settings
//   - Log: Logging level and format
//   - Bulk: baseline options of bulk calls (batch size, timeouts, staging naming)
//   - Metrics: Prometheus reporter settings
//
// Nested keys map to upper-case environment variables joined by underscores,
// so bulk.batch_size is read from BULK_BATCH_SIZE.
//
// # Usage
//
//	cfg, err := config.LoadConfig(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	opts := cfg.Bulk.Options()
package config
