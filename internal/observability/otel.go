package observability

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/Ridou/Omnii-One-sub008/internal/platform/logger"
)

const tracerName = "omnii-graph-pipeline"

type OtelConfig struct {
	ServiceName string
	Environment string
	Version     string
}

var (
	otelOnce     sync.Once
	otelShutdown func(context.Context) error
)

// InitOTel wires the tracer provider. Exporter selection follows
// OTEL_EXPORTER: "otlp" ships to OTEL_EXPORTER_OTLP_ENDPOINT, "stdout" prints,
// anything else disables tracing entirely.
func InitOTel(ctx context.Context, log *logger.Logger, cfg OtelConfig) func(context.Context) error {
	otelOnce.Do(func() {
		mode := strings.TrimSpace(strings.ToLower(os.Getenv("OTEL_EXPORTER")))
		if mode == "" || mode == "off" || mode == "none" {
			return
		}

		serviceName := strings.TrimSpace(cfg.ServiceName)
		if serviceName == "" {
			serviceName = tracerName
		}

		res, err := resource.New(ctx,
			resource.WithAttributes(
				semconv.ServiceNameKey.String(serviceName),
				semconv.ServiceVersionKey.String(strings.TrimSpace(cfg.Version)),
			),
		)
		if err != nil {
			if log != nil {
				log.Warn("otel resource init failed", "error", err)
			}
			return
		}

		var exporter sdktrace.SpanExporter
		switch mode {
		case "otlp":
			exporter, err = otlptracehttp.New(ctx)
		default:
			exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
		}
		if err != nil {
			if log != nil {
				log.Warn("otel exporter init failed", "error", err)
			}
			return
		}

		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
		otelShutdown = tp.Shutdown
		if log != nil {
			log.Info("otel tracing enabled", "exporter", mode, "service", serviceName)
		}
	})

	if otelShutdown != nil {
		return otelShutdown
	}
	return func(context.Context) error { return nil }
}

// Tracer returns the pipeline tracer. Safe to call before InitOTel; spans are
// no-ops until a provider is installed.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}
