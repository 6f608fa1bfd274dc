package driver

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultTracerName is the name of the tracer used when none is configured.
const DefaultTracerName = "viewcore"

// defaultTracer resolves the tracer from the global provider, so it only
// records once the application has installed one with otel.SetTracerProvider.
func defaultTracer() trace.Tracer {
	return otel.Tracer(DefaultTracerName)
}

func (d *Driver[S]) startCycle(ctx context.Context, seq uint64) (context.Context, trace.Span) {
	return d.tracer.Start(ctx, "viewcore.cycle",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.Int64("viewcore.cycle", int64(seq))),
		trace.WithTimestamp(time.Now()),
	)
}

func endCycle(span trace.Span, c Cycle, err error) {
	span.SetAttributes(
		attribute.Int("viewcore.messages", c.Messages),
		attribute.Int("viewcore.actions", c.Actions),
		attribute.Int("viewcore.stale", c.Stale),
		attribute.Int("viewcore.ops", c.Ops),
		attribute.Bool("viewcore.rebuilt", c.Rebuilt),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
