package metrics

import "time"

type Config struct {
	Enabled bool `conf:"enabled" yaml:"enabled" json:"enabled"`
	// Exporter is one of stdout, otlphttp, otlpgrpc.
	Exporter ExporterConfig `conf:"exporter" yaml:"exporter" json:"exporter"`
	Interval time.Duration  `conf:"interval" yaml:"interval" json:"interval"`
}

type ExporterConfig struct {
	Type     string `conf:"type" yaml:"type" json:"type"`
	Endpoint string `conf:"endpoint" yaml:"endpoint" json:"endpoint"`
	Insecure bool   `conf:"insecure" yaml:"insecure" json:"insecure"`
}
