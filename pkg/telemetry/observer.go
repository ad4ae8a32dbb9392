package telemetry

import (
	"context"

	"github.com/openfroyo/tdre/pkg/engine"
)

// ResolutionObserver reports resolutions as spans, metrics and debug logs.
// It implements engine.Observer.
type ResolutionObserver struct {
	tracer   *Tracer
	metrics  *Metrics
	logger   *Logger
	snapshot string
}

var _ engine.Observer = (*ResolutionObserver)(nil)

// NewResolutionObserver creates an observer for resolutions against the
// registry snapshot identified by snapshotID.
func NewResolutionObserver(tel *Telemetry, snapshotID string) *ResolutionObserver {
	return &ResolutionObserver{
		tracer:   tel.Tracer,
		metrics:  tel.Metrics,
		logger:   tel.Logger.NewComponentLogger("resolver").WithSnapshot(snapshotID),
		snapshot: snapshotID,
	}
}

// BeginResolve implements engine.Observer.
func (o *ResolutionObserver) BeginResolve(ctx context.Context, req engine.Request) (context.Context, func(*engine.Witness, error)) {
	timer := NewTimer()
	ctx, span := o.tracer.StartResolve(ctx, req, o.snapshot)

	return ctx, func(w *engine.Witness, err error) {
		EndResolve(span, w, err)

		source := "none"
		if err != nil {
			o.metrics.RecordError(err)
			o.logger.WithTypeKey(req.Target).WithError(err).Debug("Resolution failed")
		} else {
			source = string(w.Provenance.Source)
			if w.Provenance.Source == engine.SourceConversion {
				o.metrics.RecordConversion(w.Provenance.Label)
			}
		}

		o.metrics.RecordResolution(outcomeOf(err), source, timer.Duration())
	}
}
