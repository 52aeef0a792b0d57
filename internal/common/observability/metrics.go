package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

// Observability owns the OpenTelemetry meter and tracer providers. Meters are
// exported through the default prometheus registry served on /metrics.
type Observability struct {
	meterProvider  *metric.MeterProvider
	tracerProvider shutdowner
	meter          otelmetric.Meter
	runCounter     otelmetric.Int64Counter
	runDuration    otelmetric.Float64Histogram
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

// New installs the global meter provider and, when cfg enables tracing, the
// global tracer provider.
func New(cfg Config) (*Observability, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(cfg.ServiceName)

	runCounter, err := meter.Int64Counter(
		"loan.workflow.runs",
		otelmetric.WithDescription("Number of workflow runs by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("create run counter: %w", err)
	}

	runDuration, err := meter.Float64Histogram(
		"loan.workflow.duration",
		otelmetric.WithDescription("Workflow run duration"),
		otelmetric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("create run histogram: %w", err)
	}

	o := &Observability{
		meterProvider: provider,
		meter:         meter,
		runCounter:    runCounter,
		runDuration:   runDuration,
	}

	if cfg.Tracing.Enabled {
		tp, err := newTracerProvider(cfg)
		if err != nil {
			return nil, err
		}
		otel.SetTracerProvider(tp)
		o.tracerProvider = tp
	}

	return o, nil
}

// RecordRun counts a finished workflow run. outcome is the final loan status,
// or "error" when the run failed.
func (o *Observability) RecordRun(ctx context.Context, outcome string, duration time.Duration) {
	attrs := otelmetric.WithAttributes(attribute.String("outcome", outcome))
	if o.runCounter != nil {
		o.runCounter.Add(ctx, 1, attrs)
	}
	if o.runDuration != nil {
		o.runDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	}
}

// Shutdown flushes pending spans and stops the providers.
func (o *Observability) Shutdown(ctx context.Context) error {
	var firstErr error
	if o.tracerProvider != nil {
		if err := o.tracerProvider.Shutdown(ctx); err != nil {
			firstErr = fmt.Errorf("shutdown tracer provider: %w", err)
		}
	}
	if o.meterProvider != nil {
		if err := o.meterProvider.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("shutdown meter provider: %w", err)
		}
	}
	return firstErr
}
