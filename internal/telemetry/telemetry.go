// Package telemetry installs the OpenTelemetry providers behind the
// package-level tracers, meters and slog loggers.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const ServiceName = "ema-phone"

type options struct {
	writer         io.Writer
	exportSignals  bool
	serviceVersion string
}

type Option func(*options)

// WithWriter sets where exported records are written. Defaults to stderr.
func WithWriter(w io.Writer) Option {
	return func(o *options) {
		if w != nil {
			o.writer = w
		}
	}
}

// WithTracesAndMetrics also exports spans and metrics. Logs are always
// exported.
func WithTracesAndMetrics(enabled bool) Option {
	return func(o *options) { o.exportSignals = enabled }
}

func WithServiceVersion(version string) Option {
	return func(o *options) { o.serviceVersion = version }
}

// Setup installs global providers and returns a function that flushes and
// shuts them down.
func Setup(ctx context.Context, opts ...Option) (shutdown func(context.Context) error, err error) {
	options := options{writer: os.Stderr}
	for _, opt := range opts {
		opt(&options)
	}

	var shutdownFuncs []func(context.Context) error
	shutdown = func(ctx context.Context) error {
		var errs []error
		for i := len(shutdownFuncs) - 1; i >= 0; i-- {
			errs = append(errs, shutdownFuncs[i](ctx))
		}
		shutdownFuncs = nil
		return errors.Join(errs...)
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, shutdown(ctx))
		}
	}()

	attrs := []attribute.KeyValue{attribute.String("service.name", ServiceName)}
	if options.serviceVersion != "" {
		attrs = append(attrs, attribute.String("service.version", options.serviceVersion))
	}
	res := resource.NewSchemaless(attrs...)

	logExporter, err := stdoutlog.New(stdoutlog.WithWriter(options.writer))
	if err != nil {
		return nil, fmt.Errorf("failed to create log exporter: %w", err)
	}
	loggerProvider := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)),
	)
	shutdownFuncs = append(shutdownFuncs, loggerProvider.Shutdown)
	global.SetLoggerProvider(loggerProvider)

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if !options.exportSignals {
		return shutdown, nil
	}

	traceExporter, err := stdouttrace.New(stdouttrace.WithWriter(options.writer))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}
	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(traceExporter),
	)
	shutdownFuncs = append(shutdownFuncs, tracerProvider.Shutdown)
	otel.SetTracerProvider(tracerProvider)

	metricExporter, err := stdoutmetric.New(stdoutmetric.WithWriter(options.writer))
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
	)
	shutdownFuncs = append(shutdownFuncs, meterProvider.Shutdown)
	otel.SetMeterProvider(meterProvider)

	return shutdown, nil
}
