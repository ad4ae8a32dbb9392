package telemetry

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/openfroyo/tdre/pkg/engine"
)

// Telemetry bundles the logger, tracer and metrics of one process.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Config  *Config
}

type telemetryContextKey struct{}

// NewTelemetry validates cfg and builds every component from it.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}
	tracer, err := NewTracer(cfg)
	if err != nil {
		return nil, err
	}
	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Logger: logger.WithFields(map[string]interface{}{
			"service": cfg.ServiceName,
			"version": cfg.ServiceVersion,
		}),
		Tracer:  tracer,
		Metrics: metrics,
		Config:  cfg,
	}, nil
}

// WithContext stores t and its logger in ctx.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	return t.Logger.WithContext(context.WithValue(ctx, telemetryContextKey{}, t))
}

// FromTelemetryContext returns the telemetry stored in ctx, or nil.
func FromTelemetryContext(ctx context.Context) *Telemetry {
	t, _ := ctx.Value(telemetryContextKey{}).(*Telemetry)
	return t
}

// Shutdown flushes and stops the tracer.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return errors.Join(t.Tracer.ForceFlush(ctx), t.Tracer.Shutdown(ctx))
}

// ResolverOptions returns engine options that route resolver logs, spans and
// metrics through t for the frozen registry reg.
func (t *Telemetry) ResolverOptions(reg *engine.Registry) []engine.Option {
	return []engine.Option{
		engine.WithLogger(t.Logger.NewComponentLogger("engine").Zerolog()),
		engine.WithObserver(NewResolutionObserver(t, reg.SnapshotID())),
	}
}

// PublishRegistry records the contents of a newly frozen registry.
func (t *Telemetry) PublishRegistry(reg *engine.Registry) {
	st := reg.Stats()
	t.Metrics.SetRegistryStats(st)
	t.Logger.WithSnapshot(st.SnapshotID).WithFields(map[string]interface{}{
		"scopes":      st.Scopes,
		"bindings":    st.Bindings,
		"conversions": st.Conversions,
		"subtypes":    st.Subtypes,
	}).Info("Registry snapshot published")
}

// Operation is a traced, timed unit of work such as a registry build.
type Operation struct {
	Ctx    context.Context
	Span   trace.Span
	Logger *Logger
	Timer  *Timer
}

// StartOperation starts an operation using the telemetry stored in ctx.
// Without telemetry the operation only times and logs through the context
// logger.
func StartOperation(ctx context.Context, name string, attrs ...attribute.KeyValue) *Operation {
	op := &Operation{Ctx: ctx, Timer: NewTimer()}

	tel := FromTelemetryContext(ctx)
	if tel == nil {
		op.Logger = FromContext(ctx).WithField("operation", name)
		return op
	}

	op.Ctx, op.Span = tel.Tracer.StartSpan(ctx, name, attrs...)
	op.Logger = tel.Logger.WithField("operation", name)
	if sc := op.Span.SpanContext(); sc.IsValid() {
		op.Logger = op.Logger.WithFields(map[string]interface{}{
			"trace_id": sc.TraceID().String(),
			"span_id":  sc.SpanID().String(),
		})
	}
	return op
}

// End closes the operation's span, marking it failed when err is non-nil.
func (op *Operation) End(err error) {
	if op.Span == nil {
		return
	}
	if err != nil {
		markFailed(op.Span, err)
	} else {
		op.Span.SetStatus(codes.Ok, "")
	}
	op.Span.End()
}
