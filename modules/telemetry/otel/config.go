package otel

import (
	"fmt"
	"time"
)

const (
	defaultServiceName  = "tavern"
	defaultSampleRatio  = 1.0
	defaultBatchTimeout = 5 * time.Second
)

// Exporter names.
const (
	ExporterOTLP   = "otlp"
	ExporterStdout = "stdout"
	ExporterNone   = "none"
)

// Config holds the telemetry.otel module configuration.
type Config struct {
	// Exporter selects where spans go: "otlp" (default when Endpoint is
	// set), "stdout" (default otherwise) or "none".
	Exporter string `yaml:"exporter"`

	// Endpoint is the OTLP/HTTP collector host:port.
	Endpoint string `yaml:"endpoint"`

	// Headers are sent with every export request.
	Headers map[string]string `yaml:"headers"`

	// Insecure disables TLS towards the collector.
	Insecure bool `yaml:"insecure"`

	ServiceName string `yaml:"service_name"`
	Environment string `yaml:"environment"`

	// SampleRatio is the fraction of root traces sampled, 0 to 1.
	SampleRatio *float64 `yaml:"sample_ratio"`

	BatchTimeout time.Duration `yaml:"batch_timeout"`
}

func (c *Config) defaults() {
	if c.Exporter == "" {
		c.Exporter = ExporterStdout
		if c.Endpoint != "" {
			c.Exporter = ExporterOTLP
		}
	}
	if c.ServiceName == "" {
		c.ServiceName = defaultServiceName
	}
	if c.SampleRatio == nil {
		r := defaultSampleRatio
		c.SampleRatio = &r
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = defaultBatchTimeout
	}
}

func (c *Config) validate() error {
	switch c.Exporter {
	case ExporterOTLP:
		if c.Endpoint == "" {
			return fmt.Errorf("otel: exporter %q requires an endpoint", c.Exporter)
		}
	case ExporterStdout, ExporterNone:
	default:
		return fmt.Errorf("otel: unknown exporter %q", c.Exporter)
	}
	if r := *c.SampleRatio; r < 0 || r > 1 {
		return fmt.Errorf("otel: sample_ratio must be between 0 and 1, got %g", r)
	}
	return nil
}
