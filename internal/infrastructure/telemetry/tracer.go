package telemetry

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// TracerProvider is exposed for use with otelhttp and other instrumentation
var TracerProvider *sdktrace.TracerProvider

// parseEndpoint extracts host:port from the OTLP endpoint URL and reports
// whether the exporter should skip TLS.
func parseEndpoint(endpoint string) (string, bool) {
	endpoint = strings.TrimSpace(endpoint)
	insecure := !strings.HasPrefix(endpoint, "https://")
	endpoint = strings.TrimPrefix(endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")
	endpoint = strings.TrimSuffix(endpoint, "/v1/traces")
	endpoint = strings.TrimSuffix(endpoint, "/")
	return endpoint, insecure
}

// InitTracer installs a batching OTLP/HTTP tracer provider and the W3C
// propagators, and returns its shutdown function.
func InitTracer(ctx context.Context, otelEndpoint, serviceName, serviceVersion, environment string) (func(context.Context) error, error) {
	endpoint, insecure := parseEndpoint(otelEndpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("empty OTLP endpoint")
	}

	exporterOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
	if insecure {
		exporterOpts = append(exporterOpts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptracehttp.New(ctx, exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
			semconv.DeploymentEnvironment(environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build otel resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	TracerProvider = tp
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}
