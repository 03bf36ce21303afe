package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

const defaultExportInterval = 10 * time.Second

// ShutdownFunc flushes and stops the exporters.
type ShutdownFunc func(context.Context) error

// Options selects which signals are exported and how the console identifies
// itself. Exporter endpoints come from the OTEL_EXPORTER_OTLP_* environment.
type Options struct {
	ServiceName    string
	Version        string
	ExportInterval time.Duration

	// DisableTraces skips the span exporter for backend calls.
	DisableTraces bool
	// DisableMetrics skips the session lifecycle counters.
	DisableMetrics bool
}

func (o Options) withDefaults() Options {
	if o.ServiceName == "" {
		o.ServiceName = "timax-console"
	}
	if o.Version == "" {
		o.Version = "dev"
	}
	if o.ExportInterval <= 0 {
		o.ExportInterval = defaultExportInterval
	}
	return o
}

type provider struct {
	name  string
	start func(ctx context.Context, res *resource.Resource, opts Options) (ShutdownFunc, error)
}

// InitTelemetry installs the global tracer and meter providers. A signal
// whose exporter cannot be created is logged and skipped so the console
// keeps running without it.
func InitTelemetry(ctx context.Context, opts Options) (ShutdownFunc, error) {
	opts = opts.withDefaults()

	res, err := sessionResource(ctx, opts)
	if err != nil {
		return nil, err
	}

	var providers []provider
	if !opts.DisableTraces {
		providers = append(providers, provider{name: "trace", start: startTracing})
	}
	if !opts.DisableMetrics {
		providers = append(providers, provider{name: "metric", start: startMetrics})
	}

	stops := make(map[string]ShutdownFunc, len(providers))
	for _, p := range providers {
		stop, err := p.start(ctx, res, opts)
		if err != nil {
			log.Warn().Err(err).Str("signal", p.name).Msg("Exporter unavailable, signal disabled")
			continue
		}
		stops[p.name] = stop
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	log.Info().
		Str("service", opts.ServiceName).
		Str("version", opts.Version).
		Int("signals", len(stops)).
		Dur("exportInterval", opts.ExportInterval).
		Msg("Telemetry initialized")

	return func(ctx context.Context) error {
		var errs []error
		for _, p := range providers {
			stop, ok := stops[p.name]
			if !ok {
				continue
			}
			if err := stop(ctx); err != nil {
				errs = append(errs, fmt.Errorf("%s shutdown: %w", p.name, err))
			}
		}
		return errors.Join(errs...)
	}, nil
}

func sessionResource(ctx context.Context, opts Options) (*resource.Resource, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(opts.ServiceName),
			semconv.ServiceVersion(opts.Version),
		),
		resource.WithFromEnv(),
		resource.WithHost(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to describe telemetry resource: %w", err)
	}
	return res, nil
}

func startTracing(ctx context.Context, res *resource.Resource, _ Options) (ShutdownFunc, error) {
	exporter, err := otlptracegrpc.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

func startMetrics(ctx context.Context, res *resource.Resource, opts Options) (ShutdownFunc, error) {
	exporter, err := otlpmetricgrpc.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}
	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(opts.ExportInterval))
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)
	return mp.Shutdown, nil
}
