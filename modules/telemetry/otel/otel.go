// Package otel implements the telemetry.otel module. It installs a global
// OpenTelemetry tracer provider so that the spans started by the gateway
// and the assembly service are exported.
package otel

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"gopkg.in/yaml.v3"

	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/internal/core"
)

// ModuleID is the module identifier.
const ModuleID = "telemetry.otel"

func init() {
	core.RegisterModule(&Module{})
}

var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)

// Module owns the process tracer provider.
type Module struct {
	config   Config
	logger   *slog.Logger
	provider *sdktrace.TracerProvider

	// stdout receives spans for the stdout exporter. Tests swap it.
	stdout io.Writer
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  ModuleID,
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("otel: decode config: %w", err)
	}
	m.config.defaults()
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	return m.config.validate()
}

// Provision implements core.Provisioner. It builds the exporter and
// installs the tracer provider and W3C propagators globally.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger
	if err := m.config.validate(); err != nil {
		return err
	}

	bg := context.Background()
	res, err := resource.New(bg, resource.WithAttributes(
		attribute.String("service.name", m.config.ServiceName),
		attribute.String("deployment.environment", m.config.Environment),
	))
	if err != nil {
		m.logger.Warn("otel resource init failed (continuing)", "error", err)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(*m.config.SampleRatio))),
		sdktrace.WithResource(res),
	}
	exporter, err := m.buildExporter(bg)
	if err != nil {
		return err
	}
	if exporter != nil {
		opts = append(opts, sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(m.config.BatchTimeout)))
	}

	m.provider = sdktrace.NewTracerProvider(opts...)
	otelapi.SetTracerProvider(m.provider)
	otelapi.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	ctx.RegisterService("telemetry.tracer_provider", m.provider)

	m.logger.Info("otel tracing initialized",
		"service", m.config.ServiceName,
		"exporter", m.config.Exporter,
		"endpoint", m.config.Endpoint,
	)
	return nil
}

func (m *Module) buildExporter(ctx context.Context) (sdktrace.SpanExporter, error) {
	switch m.config.Exporter {
	case ExporterOTLP:
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(m.config.Endpoint)}
		if m.config.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if len(m.config.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(m.config.Headers))
		}
		exp, err := otlptracehttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("otel: otlp exporter: %w", err)
		}
		return exp, nil
	case ExporterStdout:
		w := m.stdout
		if w == nil {
			w = os.Stdout
		}
		exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			return nil, fmt.Errorf("otel: stdout exporter: %w", err)
		}
		return exp, nil
	}
	return nil, nil
}

// Stop implements core.Stopper. Pending spans are flushed.
func (m *Module) Stop(ctx context.Context) error {
	if m.provider == nil {
		return nil
	}
	m.logger.Info("otel tracing shutting down")
	return m.provider.Shutdown(ctx)
}

// TracerProvider returns the installed provider. It is nil before Provision.
func (m *Module) TracerProvider() *sdktrace.TracerProvider {
	return m.provider
}
