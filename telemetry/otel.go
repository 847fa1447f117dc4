package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

// ExporterKind selects where a Provider ships its telemetry.
type ExporterKind string

const (
	// ExporterStdout writes traces/metrics to stdout - the zero-dependency
	// default for local development.
	ExporterStdout ExporterKind = "stdout"
	// ExporterOTLP ships to a collector over OTLP/gRPC, using the
	// otlptracegrpc/otlpmetricgrpc exporter pair.
	ExporterOTLP ExporterKind = "otlp"
)

// ProviderConfig configures Provider construction.
type ProviderConfig struct {
	ServiceName    string
	Exporter       ExporterKind
	OTLPEndpoint   string        // host:port, only used when Exporter == ExporterOTLP
	ExportInterval time.Duration // metric periodic-reader interval; defaults to 30s
}

// Provider owns the OTEL SDK trace/metric providers backing every
// component's Registry, plus the kernel-wide event Bus. It wires the
// resource/provider/shutdown lifecycle, exporting traces and metrics to
// stdout by default or over OTLP/gRPC with ExporterOTLP.
type Provider struct {
	tracer trace.Tracer

	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider

	Events *Bus

	mu         sync.Mutex
	registries map[string]*Registry
}

// NewProvider builds a Provider. serviceName must be non-empty; an empty
// OTLPEndpoint under ExporterOTLP defaults to "localhost:4317".
func NewProvider(ctx context.Context, cfg ProviderConfig, eventQueueDepth int) (*Provider, error) {
	if cfg.ServiceName == "" {
		return nil, fmt.Errorf("telemetry: service name is required")
	}
	if cfg.ExportInterval <= 0 {
		cfg.ExportInterval = 30 * time.Second
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(cfg.ServiceName),
	)

	var (
		traceExp sdktrace.SpanExporter
		metricExp sdkmetric.Exporter
		err      error
	)

	switch cfg.Exporter {
	case ExporterOTLP:
		endpoint := cfg.OTLPEndpoint
		if endpoint == "" {
			endpoint = "localhost:4317"
		}
		traceExp, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("telemetry: create OTLP trace exporter: %w", err)
		}
		metricExp, err = otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(endpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("telemetry: create OTLP metric exporter: %w", err)
		}
	default:
		traceExp, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("telemetry: create stdout trace exporter: %w", err)
		}
		metricExp, err = stdoutmetric.New()
		if err != nil {
			return nil, fmt.Errorf("telemetry: create stdout metric exporter: %w", err)
		}
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp, sdkmetric.WithInterval(cfg.ExportInterval))),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	return &Provider{
		tracer:         tp.Tracer(cfg.ServiceName),
		tracerProvider: tp,
		meterProvider:  mp,
		Events:         NewBus(eventQueueDepth),
		registries:     make(map[string]*Registry),
	}, nil
}

// Registry returns (creating if needed) the per-component metrics Registry
// named component, tagged with a retention window of retention (0 = unbounded).
func (p *Provider) Registry(component string, retention time.Duration) *Registry {
	p.mu.Lock()
	defer p.mu.Unlock()
	if r, ok := p.registries[component]; ok {
		return r
	}
	r := NewRegistry(component, p.meterProvider.Meter(component), retention)
	p.registries[component] = r
	return r
}

// Tracer returns the provider's single shared tracer.
func (p *Provider) Tracer() trace.Tracer { return p.tracer }

// Shutdown flushes and tears down both the trace and metric providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	if err := p.meterProvider.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
	}
	if err := p.tracerProvider.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("tracer provider shutdown: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("telemetry shutdown errors: %v", errs)
	}
	return nil
}
