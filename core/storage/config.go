package storage

import (
	"strings"
	"time"
)

// Config holds configuration for the storage provider.
type Config struct {
	// Endpoint is the URL of the storage service.
	Endpoint string `mapstructure:"endpoint" default:"localhost:9000"`
	// AccessKey is the access key ID for authentication.
	AccessKey string `mapstructure:"access_key" default:"minioadmin"`
	// SecretKey is the secret access key for authentication.
	SecretKey string `mapstructure:"secret_key" default:"minioadmin"`
	// UseSSL indicates whether to use SSL/TLS for connections.
	UseSSL bool `mapstructure:"use_ssl" default:"false"`
	// Bucket is the name of the bucket holding catalog exports.
	Bucket string `mapstructure:"bucket" default:"assets"`
	// CatalogPrefix is the key prefix of catalog export objects.
	CatalogPrefix string `mapstructure:"catalog_prefix" default:"catalog/"`
	// Region is the location of the bucket (e.g., us-east-1).
	Region string `mapstructure:"region" default:""`
	// TimeoutSeconds is the connection timeout in seconds.
	TimeoutSeconds int `mapstructure:"timeout_seconds" default:"30"`
}

// Host returns the endpoint without its scheme.
func (c Config) Host() string {
	return trimScheme(c.Endpoint)
}

// Timeout returns the connection timeout, 30 seconds when unset.
func (c Config) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ExportPrefix returns CatalogPrefix as a relative key prefix ending in a slash.
// An empty prefix lists the whole bucket.
func (c Config) ExportPrefix() string {
	p := strings.Trim(c.CatalogPrefix, "/")
	if p == "" {
		return ""
	}
	return p + "/"
}
