package telemetry

import (
	"context"
	"errors"
	"io"
	"testing"

	"go.opentelemetry.io/otel/codes"
)

func TestStartOperation_RecordsSpan(t *testing.T) {
	tel, recorder := setupTestTelemetry(t, io.Discard)
	ctx := tel.WithContext(context.Background())

	ok := StartOperation(ctx, SpanBuild, AttrManifest.String("billing"))
	ok.End(nil)
	failed := StartOperation(ctx, SpanBuild)
	failed.End(errors.New("duplicate binding"))

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("Expected 2 spans, got %d", len(spans))
	}
	if spans[0].Name() != SpanBuild || spans[0].Status().Code != codes.Ok {
		t.Errorf("Unexpected first span %s %v", spans[0].Name(), spans[0].Status())
	}
	if spans[1].Status().Code != codes.Error || spans[1].Status().Description != "duplicate binding" {
		t.Errorf("Expected failed span, got %v", spans[1].Status())
	}
}

func TestStartOperation_WithoutTelemetry(t *testing.T) {
	op := StartOperation(context.Background(), SpanBuild)
	if op.Span != nil || op.Logger == nil || op.Timer == nil {
		t.Fatalf("Unexpected operation %+v", op)
	}
	op.End(errors.New("ignored"))
}
