package main

import (
	"context"
	"fmt"
	"time"

	"contrib.go.opencensus.io/exporter/stackdriver"
	"github.com/sirupsen/logrus"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opentelemetry.io/contrib/exporters/autoexport"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

var (
	rowsLoaded     = stats.Int64("rows_loaded", "Rows read from the results table", stats.UnitDimensionless)
	seriesRendered = stats.Int64("series_rendered", "Series drawn across all panels", stats.UnitDimensionless)
	renderLatency  = stats.Float64("render_latency", "Time to render one artifact", stats.UnitMilliseconds)
)

var latencyViews = []*view.View{
	{
		Name:        "perfgraph/rows_loaded",
		Measure:     rowsLoaded,
		Description: "Total rows read from the results table",
		Aggregation: view.Sum(),
	},
	{
		Name:        "perfgraph/series_rendered",
		Measure:     seriesRendered,
		Description: "Total series drawn",
		Aggregation: view.Sum(),
	},
	{
		Name:        "perfgraph/render_latency",
		Measure:     renderLatency,
		Description: "Distribution of per-artifact render latency",
		Aggregation: view.Distribution(1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000),
	},
}

func registerViews() error {
	if err := view.Register(latencyViews...); err != nil {
		return fmt.Errorf("while registering views: %w", err)
	}
	return nil
}

var sdExporter *stackdriver.Exporter

func enableSDExporter(projectID string) error {
	exporter, err := stackdriver.NewExporter(stackdriver.Options{
		ProjectID:         projectID,
		MetricPrefix:      "perfgraph",
		ReportingInterval: 30 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("while creating stackdriver exporter: %w", err)
	}

	if err = exporter.StartMetricsExporter(); err != nil {
		return fmt.Errorf("start stackdriver exporter: %w", err)
	}

	sdExporter = exporter
	logrus.Info("Stackdriver metrics exporter started")
	return nil
}

// closeSDExporter flushes pending views; a run is usually shorter than the
// reporting interval.
func closeSDExporter() {
	if sdExporter != nil {
		sdExporter.StopMetricsExporter()
		sdExporter.Flush()
	}

	sdExporter = nil
}

// instruments are the OpenTelemetry counterparts of the OpenCensus measures,
// for backends reached through the OTEL_* environment.
type instruments struct {
	artifactBytes  metric.Int64Counter
	renderDuration metric.Float64Histogram
}

func newInstruments(mp metric.MeterProvider) (*instruments, error) {
	meter := mp.Meter(tracerName)

	artifactBytes, err := meter.Int64Counter("perfgraph.artifact.size",
		metric.WithUnit("By"),
		metric.WithDescription("Bytes written per rendered artifact"))
	if err != nil {
		return nil, err
	}

	renderDuration, err := meter.Float64Histogram("perfgraph.render.duration",
		metric.WithUnit("ms"),
		metric.WithDescription("Time to render one artifact"))
	if err != nil {
		return nil, err
	}

	return &instruments{artifactBytes: artifactBytes, renderDuration: renderDuration}, nil
}

// enableOTelMetrics installs a global meter provider whose reader is chosen
// by OTEL_METRICS_EXPORTER. Call the returned func before exit.
func enableOTelMetrics(ctx context.Context) (func(context.Context) error, error) {
	reader, err := autoexport.NewMetricReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("while creating metric reader: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(mp)
	return mp.Shutdown, nil
}
