// Package trace wraps OpenTelemetry tracing. With the performance report
// enabled, finished spans are written as JSON to the output directory.
package trace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

var logger = log.WithField("package", "trace")

const PerformanceReportFileName = "performance-report.json"

var tracer oteltrace.Tracer = otel.Tracer("layoutchk")

// InitTracer installs the global tracer. The returned func flushes spans and
// must be called before exit.
func InitTracer(serviceName string, enabled bool, outputDir string) (func(), error) {
	if !enabled {
		tracer = otel.Tracer(serviceName)
		return func() {}, nil
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	path := filepath.Join(outputDir, PerformanceReportFileName)
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create performance report: %w", err)
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(f), stdouttrace.WithPrettyPrint())
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	tracer = tp.Tracer(serviceName)
	logger.WithField("path", path).Info("Performance report enabled")

	return func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.WithError(err).Warn("Failed to shut down tracer")
		}
		_ = f.Close()
	}, nil
}

func StartSpan(ctx context.Context, name string) (context.Context, oteltrace.Span) {
	return tracer.Start(ctx, name)
}
