package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"cloud.google.com/go/profiler"
	"cloud.google.com/go/storage"
	"github.com/raj-prince/perfgraph/chart"
	"github.com/raj-prince/perfgraph/util"
	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
	"go.opencensus.io/stats"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var (
	input            = flag.StringP("input", "i", ".perf-out/all.csv", "Results table: a CSV file, a directory of CSV files, or a gs:// object.")
	outputs          = flag.StringSliceP("output", "o", []string{".perf-out/results.html"}, "Chart files to write; format follows the extension (html, png, svg, pdf).")
	configPath       = flag.String("config", "", "YAML file overriding palette and layout.")
	outputBucketPath = flag.String("output-bucket-path", "", "gs:// prefix to publish the rendered charts to.")
	clientProtocol   = flag.String("client-protocol", "http", "GCS client protocol: http or grpc.")
	projectID        = flag.String("project", "", "GCP project for profiler, metrics and traces; only required when running outside of GCP.")

	enableCloudProfiler = flag.Bool("enable-cloud-profiler", false, "Enable cloud profiler")
	metricsExporter     = flag.String("metrics-exporter", "none", "Metrics export: none, stackdriver, or auto (OTEL_METRICS_EXPORTER).")
	traceExporter       = flag.String("trace-exporter", "none", "Trace export: none, gcp, or auto (OTEL_TRACES_EXPORTER).")
	traceSampleRate     = flag.Float64("trace-sample-rate", 1.0, "Fraction of runs to trace.")

	logLevel  = flag.String("log-level", "info", "Log level.")
	logFormat = flag.String("log-format", "text", "Log format: text or json.")

	version = "dev"
)

// pipeline renders one results table into every requested output.
type pipeline struct {
	input      string
	outputs    []string
	configPath string
	bucketPath string
	protocol   string

	log    *logrus.Entry
	tracer trace.Tracer
	inst   *instruments

	client *storage.Client
}

type artifact struct {
	path string
	data []byte
}

func (p *pipeline) run(ctx context.Context) error {
	defer func() {
		if p.client != nil {
			p.client.Close()
		}
	}()

	// Resolve every renderer before touching the filesystem so a bad
	// extension fails the run without partial output.
	renderers := make([]chart.Renderer, len(p.outputs))
	for i, out := range p.outputs {
		r, err := chart.RendererFor(out)
		if err != nil {
			return err
		}
		renderers[i] = r
	}
	var bucketName, prefix string
	if p.bucketPath != "" {
		var err error
		if bucketName, prefix, err = util.ParseBucketAndPrefixFromUri(p.bucketPath); err != nil {
			return fmt.Errorf("while parsing output bucket path: %w", err)
		}
	}

	cfg := chart.DefaultConfig()
	if p.configPath != "" {
		var err error
		if cfg, err = chart.LoadConfig(p.configPath); err != nil {
			return fmt.Errorf("while loading config %s: %w", p.configPath, err)
		}
	}

	ds, err := p.load(ctx)
	if err != nil {
		return err
	}

	_, span := p.tracer.Start(ctx, "build")
	fig, err := chart.Build(ds, cfg)
	if err != nil {
		span.End()
		return err
	}
	servers := ds.Servers()
	span.SetAttributes(attribute.Int("servers", len(servers)), attribute.Int("series", fig.SeriesCount()))
	span.End()
	stats.Record(ctx, seriesRendered.M(int64(fig.SeriesCount())))
	p.log.WithFields(logrus.Fields{"servers": servers, "series": fig.SeriesCount()}).Debug("Built figure")

	// Render everything in memory and check every destination before the
	// first write, so one bad output does not leave the others overwritten.
	artifacts := make([]artifact, len(p.outputs))
	eG, gctx := errgroup.WithContext(ctx)
	for i, out := range p.outputs {
		eG.Go(func() error {
			data, err := p.render(gctx, out, renderers[i], fig)
			if err != nil {
				return fmt.Errorf("while rendering %s: %w", out, err)
			}
			artifacts[i] = artifact{path: out, data: data}
			return nil
		})
	}
	if err := eG.Wait(); err != nil {
		return err
	}
	for _, a := range artifacts {
		if err := chart.CheckOutputDir(a.path); err != nil {
			return fmt.Errorf("while writing %s: %w", a.path, err)
		}
	}
	for _, a := range artifacts {
		if err := p.write(ctx, a); err != nil {
			return err
		}
	}

	if p.bucketPath != "" {
		if err := p.publish(ctx, bucketName, prefix, artifacts); err != nil {
			return err
		}
	}

	for _, s := range chart.Summarize(ds) {
		p.log.WithFields(logrus.Fields{
			"server":     s.Server,
			"points":     s.Points,
			"peak_reqps": s.PeakReqPS,
			"peak_size":  s.PeakSize,
			"worst_p99":  fmt.Sprintf("%.2fms", s.WorstLat99),
		}).Info("Summary")
	}
	return nil
}

func (p *pipeline) storageClient(ctx context.Context) (*storage.Client, error) {
	if p.client == nil {
		client, err := util.CreateClient(ctx, p.protocol)
		if err != nil {
			return nil, err
		}
		p.client = client
	}
	return p.client, nil
}

func (p *pipeline) load(ctx context.Context) (ds *chart.Dataset, err error) {
	ctx, span := p.tracer.Start(ctx, "load", trace.WithAttributes(attribute.String("input", p.input)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if ds, err = p.readInput(ctx); err != nil {
		return nil, err
	}

	stats.Record(ctx, rowsLoaded.M(int64(len(ds.Rows))))
	p.log.WithFields(logrus.Fields{"input": p.input, "rows": len(ds.Rows)}).Info("Loaded results")
	return ds, nil
}

func (p *pipeline) readInput(ctx context.Context) (*chart.Dataset, error) {
	if util.IsGCSUri(p.input) {
		client, err := p.storageClient(ctx)
		if err != nil {
			return nil, err
		}
		data, err := util.ReadObject(ctx, client, p.input)
		if err != nil {
			return nil, err
		}
		ds, err := chart.ReadCSV(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p.input, err)
		}
		return ds, nil
	}

	if info, err := os.Stat(p.input); err == nil && info.IsDir() {
		return chart.LoadDir(ctx, p.input)
	}
	return chart.LoadFile(p.input)
}

func (p *pipeline) render(ctx context.Context, out string, r chart.Renderer, fig *chart.Figure) ([]byte, error) {
	_, span := p.tracer.Start(ctx, "render", trace.WithAttributes(attribute.String("output", out)))
	defer span.End()

	start := time.Now()
	data, err := chart.Bytes(r, fig)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	ms := float64(time.Since(start)) / float64(time.Millisecond)

	stats.Record(ctx, renderLatency.M(ms))
	p.inst.renderDuration.Record(ctx, ms, metric.WithAttributes(attribute.String("format", filepath.Ext(out))))
	return data, nil
}

// write overwrites a.path. Concurrent runs on the same path race; the last
// writer wins.
func (p *pipeline) write(ctx context.Context, a artifact) error {
	if err := os.WriteFile(a.path, a.data, 0644); err != nil {
		return fmt.Errorf("while writing %s: %w", a.path, err)
	}
	p.inst.artifactBytes.Add(ctx, int64(len(a.data)), metric.WithAttributes(attribute.String("format", filepath.Ext(a.path))))
	p.log.WithFields(logrus.Fields{"output": a.path, "bytes": len(a.data)}).Info("Wrote chart")
	return nil
}

func (p *pipeline) publish(ctx context.Context, bucketName, prefix string, artifacts []artifact) error {
	ctx, span := p.tracer.Start(ctx, "publish", trace.WithAttributes(attribute.String("bucket_path", p.bucketPath)))
	defer span.End()

	client, err := p.storageClient(ctx)
	if err != nil {
		return err
	}

	eG, ctx := errgroup.WithContext(ctx)
	for _, a := range artifacts {
		eG.Go(func() error {
			name := path.Join(prefix, filepath.Base(a.path))
			req := util.NewArtifactRequest(name, chart.ContentType(a.path), a.data)
			if err := util.WriteObject(ctx, client, bucketName, req, a.data); err != nil {
				return err
			}
			p.log.WithField("object", fmt.Sprintf("gs://%s/%s", bucketName, name)).Info("Published chart")
			return nil
		})
	}
	if err := eG.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func setupLogging() error {
	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)

	switch *logFormat {
	case "text":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("unknown log format %q", *logFormat)
	}
	return nil
}

func main() {
	flag.Parse()
	os.Exit(runMain())
}

// runMain returns the process exit code, after deferred exporter flushes.
func runMain() int {
	ctx := context.Background()

	if err := setupLogging(); err != nil {
		logrus.Errorf("Invalid logging flags: %v", err)
		return 1
	}

	if *enableCloudProfiler {
		if err := profiler.Start(profiler.Config{
			Service:        "perfgraph",
			ServiceVersion: version,
			ProjectID:      *projectID,
		}); err != nil {
			logrus.Errorf("Failed to start profiler: %v", err)
			return 1
		}
	}

	if err := registerViews(); err != nil {
		logrus.Error(err)
		return 1
	}
	switch *metricsExporter {
	case "none":
	case "stackdriver":
		if err := enableSDExporter(*projectID); err != nil {
			logrus.Error(err)
			return 1
		}
		defer closeSDExporter()
	case "auto":
		shutdown, err := enableOTelMetrics(ctx)
		if err != nil {
			logrus.Error(err)
			return 1
		}
		defer shutdown(context.Background())
	default:
		logrus.Errorf("Unknown metrics exporter %q", *metricsExporter)
		return 1
	}

	if *traceExporter != "none" {
		stop, err := enableTraceExport(ctx, *traceExporter, *projectID, *traceSampleRate)
		if err != nil {
			logrus.Error(err)
			return 1
		}
		defer stop()
	}

	inst, err := newInstruments(otel.GetMeterProvider())
	if err != nil {
		logrus.Errorf("while creating instruments: %v", err)
		return 1
	}

	p := &pipeline{
		input:      *input,
		outputs:    *outputs,
		configPath: *configPath,
		bucketPath: *outputBucketPath,
		protocol:   *clientProtocol,
		log:        logrus.WithField("run", time.Now().UTC().Format(time.RFC3339)),
		tracer:     otel.Tracer(tracerName),
		inst:       inst,
	}
	if err := p.run(ctx); err != nil {
		logrus.Error(err)
		return 1
	}
	return 0
}
