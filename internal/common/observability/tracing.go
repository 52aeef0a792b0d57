package observability

import (
	"fmt"

	"loan-workflow/internal/common/config"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Config is the observability section of the service config.
type Config = config.ObservabilityConfig

// newTracerProvider samples by ratio and exports to jaeger when an endpoint is
// configured. Without one, spans are sampled but dropped.
func newTracerProvider(cfg Config) (*sdktrace.TracerProvider, error) {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.Tracing.SampleRatio))),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", cfg.ServiceName),
		)),
	}

	if cfg.Tracing.JaegerEndpoint != "" {
		exporter, err := jaeger.New(jaeger.WithCollectorEndpoint(
			jaeger.WithEndpoint(cfg.Tracing.JaegerEndpoint),
		))
		if err != nil {
			return nil, fmt.Errorf("create jaeger exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	return sdktrace.NewTracerProvider(opts...), nil
}
