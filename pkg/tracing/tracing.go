// Package tracing exports series engine activity as OpenTelemetry spans.
//
// Observer implements api.Observer and opens one span per drive, the
// synchronous burst that carries a progress row from enrollment or resume
// to its next suspension or terminal status. Block executions, wait
// scheduling and retry scheduling are attached to the drive span as span
// events.
package tracing

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/opencom-org/series/pkg/api"
)

// InstrumentationName is the OTel instrumentation scope name.
const InstrumentationName = "github.com/opencom-org/series"

// Observer converts engine callbacks into OTel spans. It is safe for
// concurrent use.
type Observer struct {
	tracer trace.Tracer

	mu       sync.Mutex
	inflight map[string]trace.Span // progress ID -> open drive span
}

var _ api.Observer = (*Observer)(nil)

// New creates an Observer using the globally registered tracer provider.
func New() *Observer {
	return NewWithTracer(otel.GetTracerProvider().Tracer(InstrumentationName))
}

// NewWithTracer creates an Observer that starts spans on the given tracer.
func NewWithTracer(tracer trace.Tracer) *Observer {
	return &Observer{
		tracer:   tracer,
		inflight: make(map[string]trace.Span),
	}
}

// driveSpan returns the open drive span for prog, starting one when
// needed. Resume and sweep drives produce no enrollment callback, so the
// first event of any drive may have to open the span.
func (o *Observer) driveSpan(ctx context.Context, prog *api.Progress) trace.Span {
	o.mu.Lock()
	if s, ok := o.inflight[prog.ID]; ok {
		o.mu.Unlock()
		return s
	}
	o.mu.Unlock()

	_, span := o.tracer.Start(ctx, "series.drive",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("progress.id", prog.ID),
			attribute.String("series.id", prog.SeriesID),
			attribute.String("visitor.id", prog.VisitorID),
			attribute.String("workspace.id", prog.WorkspaceID),
		),
	)
	o.mu.Lock()
	o.inflight[prog.ID] = span
	o.mu.Unlock()
	return span
}

// endDrive closes and forgets the drive span for prog.
func (o *Observer) endDrive(prog *api.Progress, status codes.Code, desc string) {
	o.mu.Lock()
	span, ok := o.inflight[prog.ID]
	if ok {
		delete(o.inflight, prog.ID)
	}
	o.mu.Unlock()
	if !ok {
		return
	}
	span.SetStatus(status, desc)
	span.End()
}

func (o *Observer) OnEnrolled(ctx context.Context, prog *api.Progress) {
	o.driveSpan(ctx, prog)
}

func (o *Observer) OnBlockExecuted(ctx context.Context, prog *api.Progress, block *api.Block, err error, d time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.String("block.id", block.ID),
		attribute.String("block.type", string(block.Type)),
		attribute.Int64("block.duration_ms", d.Milliseconds()),
	}
	if err != nil {
		attrs = append(attrs, attribute.String("block.error", err.Error()))
	}
	o.driveSpan(ctx, prog).AddEvent("series.block.executed", trace.WithAttributes(attrs...))
}

func (o *Observer) OnWaitScheduled(ctx context.Context, prog *api.Progress, block *api.Block) {
	attrs := []attribute.KeyValue{
		attribute.String("block.id", block.ID),
	}
	if prog.WaitUntil != nil {
		attrs = append(attrs, attribute.String("wait.until", prog.WaitUntil.Format(time.RFC3339)))
	}
	if prog.WaitEventName != "" {
		attrs = append(attrs, attribute.String("wait.event", prog.WaitEventName))
	}
	span := o.driveSpan(ctx, prog)
	span.AddEvent("series.wait.scheduled", trace.WithAttributes(attrs...))
	o.endDrive(prog, codes.Ok, "")
}

func (o *Observer) OnRetryScheduled(ctx context.Context, prog *api.Progress, block *api.Block, nextAt time.Time) {
	span := o.driveSpan(ctx, prog)
	span.AddEvent("series.retry.scheduled", trace.WithAttributes(
		attribute.String("block.id", block.ID),
		attribute.Int("retry.attempt", prog.AttemptCount),
		attribute.String("retry.at", nextAt.Format(time.RFC3339)),
	))
	o.endDrive(prog, codes.Error, prog.LastExecutionError)
}

func (o *Observer) OnProgressFinished(ctx context.Context, prog *api.Progress) {
	span := o.driveSpan(ctx, prog)
	span.SetAttributes(attribute.String("progress.status", string(prog.Status)))
	if prog.Status == api.ProgressFailed {
		o.endDrive(prog, codes.Error, prog.LastExecutionError)
		return
	}
	o.endDrive(prog, codes.Ok, "")
}
