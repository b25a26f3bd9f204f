package metrics

// Config holds configuration for bulk call metrics.
type Config struct {
	// Enabled turns on the Prometheus reporter and the metrics endpoint.
	Enabled bool `mapstructure:"enabled" default:"true"`
	// Namespace prefixes every metric name.
	Namespace string `mapstructure:"namespace" default:"bulksync"`
	// Path is where the serve command exposes the metrics.
	Path string `mapstructure:"path" default:"/metrics"`
}

// NewReporter returns a Prometheus reporter when metrics are enabled, Nop otherwise.
func NewReporter(cfg Config) Reporter {
	if !cfg.Enabled {
		return Nop{}
	}
	ns := cfg.Namespace
	if ns == "" {
		ns = "bulksync"
	}
	return NewPrometheus(ns)
}
