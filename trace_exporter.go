package main

import (
	"context"
	"fmt"

	texporter "github.com/GoogleCloudPlatform/opentelemetry-operations-go/exporter/trace"
	"github.com/sirupsen/logrus"
	octrace "go.opencensus.io/trace"
	"go.opentelemetry.io/contrib/detectors/gcp"
	"go.opentelemetry.io/contrib/exporters/autoexport"
	"go.opentelemetry.io/contrib/propagators/autoprop"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/bridge/opencensus"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

const tracerName = "perfgraph"

// enableTraceExport turns on Open Telemetry tracing. kind "gcp" exports to
// Cloud Trace, "auto" follows OTEL_TRACES_EXPORTER.
func enableTraceExport(ctx context.Context, kind, projectID string, sampleRate float64) (func(), error) {
	var (
		exporter sdktrace.SpanExporter
		err      error
	)
	switch kind {
	case "gcp":
		exporter, err = texporter.New(texporter.WithProjectID(projectID))
	case "auto":
		exporter, err = autoexport.NewSpanExporter(ctx)
	default:
		return nil, fmt.Errorf("unknown trace exporter %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("while creating %s trace exporter: %w", kind, err)
	}

	res, err := resource.New(ctx,
		resource.WithDetectors(gcp.NewDetector()),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			semconv.ServiceName(tracerName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		// Detection is best effort outside of GCP; res is still usable.
		logrus.WithError(err).Warn("Partial trace resource")
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(sampleRate)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(autoprop.NewTextMapPropagator())

	// Use opencensus bridge to pick up OC traces from the storage library.
	octrace.DefaultTracer = opencensus.NewTracer(tp.Tracer(tracerName))
	logrus.WithField("exporter", kind).Info("Trace export enabled")

	return func() {
		_ = tp.ForceFlush(ctx)
		if err := tp.Shutdown(context.Background()); err != nil {
			logrus.WithError(err).Error("Trace provider shutdown")
		}
	}, nil
}
