package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/openfroyo/tdre/pkg/engine"
)

// Span names.
const (
	SpanResolve = "tdre.resolve"
	SpanBuild   = "tdre.build"
)

// Attribute keys for resolution and build spans.
var (
	AttrTarget      = attribute.Key("tdre.target")
	AttrCoerce      = attribute.Key("tdre.coerce")
	AttrChainLength = attribute.Key("tdre.chain_length")
	AttrOutcome     = attribute.Key("tdre.outcome")
	AttrSource      = attribute.Key("tdre.source")
	AttrProvenance  = attribute.Key("tdre.provenance")
	AttrCandidates  = attribute.Key("tdre.candidates")
	AttrCycle       = attribute.Key("tdre.cycle")
	AttrSnapshot    = attribute.Key("tdre.snapshot_id")
	AttrManifest    = attribute.Key("tdre.manifest")
)

// Tracer produces spans for resolutions and registry builds.
type Tracer struct {
	provider *sdktrace.TracerProvider // nil when tracing is disabled
	tracer   trace.Tracer
}

// NewTracer creates the tracer described by cfg. With tracing disabled the
// tracer is a no-op and nothing is registered globally.
func NewTracer(cfg *Config) (*Tracer, error) {
	if !cfg.Tracing.Enabled {
		return &Tracer{tracer: noop.NewTracerProvider().Tracer(cfg.ServiceName)}, nil
	}

	res, err := newResource(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace resource: %w", err)
	}

	exporter, err := newExporter(cfg.Tracing, cfg.ServiceName)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.Tracing.SamplingRate))),
	}
	// with "none" spans are sampled but never exported
	if exporter != nil {
		opts = append(opts, sdktrace.WithBatcher(exporter,
			sdktrace.WithMaxExportBatchSize(cfg.Tracing.MaxExportBatchSize),
			sdktrace.WithExportTimeout(cfg.Tracing.ExportTimeout),
		))
	}

	provider := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return NewTracerWithProvider(provider, cfg.ServiceName), nil
}

// NewTracerWithProvider wraps an existing provider. Used by tests with an
// in-memory span recorder.
func NewTracerWithProvider(provider *sdktrace.TracerProvider, serviceName string) *Tracer {
	return &Tracer{
		provider: provider,
		tracer:   provider.Tracer(serviceName),
	}
}

// newResource describes the process, including any configured resource
// attributes in key order.
func newResource(cfg *Config) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceNameKey.String(cfg.ServiceName),
		semconv.ServiceVersionKey.String(cfg.ServiceVersion),
		semconv.DeploymentEnvironmentKey.String(cfg.Environment),
	}

	keys := make([]string, 0, len(cfg.ResourceAttributes))
	for k := range cfg.ResourceAttributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, attribute.String(k, cfg.ResourceAttributes[k]))
	}

	return resource.New(context.Background(), resource.WithAttributes(attrs...))
}

func newExporter(cfg TracingConfig, userAgent string) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case "otlp":
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
			otlptracegrpc.WithDialOption(grpc.WithUserAgent(userAgent)),
		}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithTLSCredentials(insecure.NewCredentials()))
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
		}
		return otlptracegrpc.New(context.Background(), opts...)
	case "stdout":
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported trace exporter: %s", cfg.Exporter)
	}
}

// StartSpan starts a span for a named operation.
func (t *Tracer) StartSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, operation, trace.WithAttributes(attrs...))
}

// StartResolve starts the span of a top-level resolution against the
// snapshot identified by snapshotID.
func (t *Tracer) StartResolve(ctx context.Context, req engine.Request, snapshotID string) (context.Context, trace.Span) {
	return t.StartSpan(ctx, SpanResolve,
		AttrTarget.String(req.Target.String()),
		AttrCoerce.Bool(req.Coerce),
		AttrChainLength.Int(len(req.Chain)),
		AttrSnapshot.String(snapshotID),
	)
}

// EndResolve records the outcome of a resolution on span and ends it.
// Ambiguities carry the competing labels and cycles the key path.
func EndResolve(span trace.Span, w *engine.Witness, err error) {
	defer span.End()

	span.SetAttributes(AttrOutcome.String(outcomeOf(err)))
	if err == nil {
		span.SetAttributes(
			AttrSource.String(string(w.Provenance.Source)),
			AttrProvenance.String(w.Provenance.String()),
		)
		span.SetStatus(codes.Ok, "")
		return
	}

	var re *engine.ResolutionError
	if errors.As(err, &re) {
		if len(re.Candidates) > 0 {
			labels := make([]string, len(re.Candidates))
			for i, c := range re.Candidates {
				labels[i] = c.Label
			}
			span.SetAttributes(AttrCandidates.StringSlice(labels))
		}
		if len(re.Cycle) > 0 {
			path := make([]string, len(re.Cycle))
			for i, k := range re.Cycle {
				path[i] = k.String()
			}
			span.SetAttributes(AttrCycle.StringSlice(path))
		}
	}
	markFailed(span, err)
}

func markFailed(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// Shutdown flushes pending spans and stops the exporter.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// ForceFlush exports all pending spans.
func (t *Tracer) ForceFlush(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return t.provider.ForceFlush(ctx)
}
