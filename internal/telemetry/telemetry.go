package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

const (
	ServiceName    = "bloom"
	ServiceVersion = "1.1.0"

	DefaultMetricsInterval = 10 * time.Second
)

func rotatingFile(logDir, name string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   filepath.Join(logDir, name),
		MaxSize:    10, // 10 MB
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}
}

// InitLogger initializes structured logging with rotation into
// logDir/bloom.log. The returned closer flushes and closes the file.
func InitLogger(logDir string, debug bool) (*slog.Logger, io.Closer, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	file := rotatingFile(logDir, "bloom.log")

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	// Log only to file; stdout belongs to the conversation
	handler := slog.NewJSONHandler(file, &slog.HandlerOptions{
		Level: level,
	})

	logger := slog.New(handler).With("service", ServiceName)
	slog.SetDefault(logger)

	return logger, file, nil
}

// Options controls where and how often telemetry is exported.
type Options struct {
	LogDir          string
	MetricsInterval time.Duration
	// Disabled yields no-op providers and writes no files.
	Disabled bool
}

// Telemetry holds the tracer and meter handed to the client, backend and
// stream controller.
type Telemetry struct {
	Tracer trace.Tracer
	Meter  metric.Meter

	tp    *sdktrace.TracerProvider
	mp    *sdkmetric.MeterProvider
	files []io.Closer
}

// Setup builds the trace and meter providers. Traces go to
// LogDir/bloom_traces.log and metrics to LogDir/bloom_metrics.log, each
// rotated like the log file.
func Setup(ctx context.Context, opts Options) (*Telemetry, error) {
	if opts.Disabled {
		return &Telemetry{
			Tracer: tracenoop.NewTracerProvider().Tracer(ServiceName),
			Meter:  metricnoop.NewMeterProvider().Meter(ServiceName),
		}, nil
	}
	if opts.MetricsInterval <= 0 {
		opts.MetricsInterval = DefaultMetricsInterval
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(ServiceName),
			semconv.ServiceVersion(ServiceVersion),
			semconv.ServiceInstanceID(uuid.NewString()),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	if err := os.MkdirAll(opts.LogDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	t := &Telemetry{}
	if t.tp, err = t.traceProvider(opts.LogDir, res); err != nil {
		_ = t.Shutdown(ctx)
		return nil, err
	}
	if t.mp, err = t.meterProvider(opts.LogDir, opts.MetricsInterval, res); err != nil {
		_ = t.Shutdown(ctx)
		return nil, err
	}

	otel.SetTracerProvider(t.tp)
	otel.SetMeterProvider(t.mp)
	t.Tracer = t.tp.Tracer(ServiceName)
	t.Meter = t.mp.Meter(ServiceName)
	return t, nil
}

func (t *Telemetry) traceProvider(logDir string, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	file := rotatingFile(logDir, "bloom_traces.log")
	t.files = append(t.files, file)

	exporter, err := stdouttrace.New(
		stdouttrace.WithWriter(file),
		stdouttrace.WithPrettyPrint(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	), nil
}

func (t *Telemetry) meterProvider(logDir string, interval time.Duration, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	file := rotatingFile(logDir, "bloom_metrics.log")
	t.files = append(t.files, file)

	exporter, err := stdoutmetric.New(
		stdoutmetric.WithWriter(file),
		stdoutmetric.WithPrettyPrint(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
		sdkmetric.WithResource(res),
	), nil
}

// Shutdown flushes pending spans and metrics and closes the export files.
// It is safe to call on disabled telemetry.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	if t.tp != nil {
		if err := t.tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer provider: %w", err))
		}
	}
	if t.mp != nil {
		if err := t.mp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown meter provider: %w", err))
		}
	}
	for _, f := range t.files {
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	t.files = nil
	return errors.Join(errs...)
}
