package observer

import (
	"context"
	"time"

	mica "github.com/avelline/mica"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	micalog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ObservedRunner wraps a mica.SessionRunner with OTEL instrumentation.
// Each Run call becomes an agent.round span carrying tokens, stop reason,
// and the stream event count.
type ObservedRunner struct {
	inner mica.SessionRunner
	inst  *Instruments
}

// WrapRunner returns an instrumented runner that emits traces, metrics, and logs.
func WrapRunner(inner mica.SessionRunner, inst *Instruments) *ObservedRunner {
	return &ObservedRunner{inner: inner, inst: inst}
}

func (o *ObservedRunner) Run(ctx context.Context, req mica.Request, emit func(mica.StreamEvent)) (mica.RoundResult, error) {
	ctx, span := o.inst.Tracer.Start(ctx, "agent.round", trace.WithAttributes(
		AttrSessionResumed.Bool(req.SessionID != ""),
		AttrToolCount.Int(len(req.Tools)),
	))
	defer span.End()
	start := time.Now()

	// Count stream events on the way through.
	events := 0
	counted := func(ev mica.StreamEvent) {
		events++
		emit(ev)
	}

	result, err := o.inner.Run(ctx, req, counted)

	durationMs := float64(time.Since(start).Milliseconds())
	status := "ok"
	if err != nil {
		status = "error"
		if ctx.Err() != nil {
			status = "aborted"
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	span.SetAttributes(
		AttrStopReason.String(string(result.StopReason)),
		AttrStreamEvents.Int(events),
		AttrTokensInput.Int(result.Usage.InputTokens),
		AttrTokensOutput.Int(result.Usage.OutputTokens),
	)

	o.inst.RoundCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
	))
	o.inst.RoundDuration.Record(ctx, durationMs)
	if result.Usage.InputTokens > 0 {
		o.inst.TokenUsage.Add(ctx, int64(result.Usage.InputTokens), metric.WithAttributes(
			attribute.String("direction", "input"),
		))
	}
	if result.Usage.OutputTokens > 0 {
		o.inst.TokenUsage.Add(ctx, int64(result.Usage.OutputTokens), metric.WithAttributes(
			attribute.String("direction", "output"),
		))
	}

	// Structured log
	var rec micalog.Record
	rec.SetSeverity(micalog.SeverityInfo)
	rec.SetBody(micalog.StringValue("round completed"))
	rec.AddAttributes(
		micalog.String("round.status", status),
		micalog.String("round.stop_reason", string(result.StopReason)),
		micalog.Int("round.stream_events", events),
		micalog.Int("round.tokens_input", result.Usage.InputTokens),
		micalog.Int("round.tokens_output", result.Usage.OutputTokens),
		micalog.Float64("round.duration_ms", durationMs),
	)
	o.inst.Logger.Emit(ctx, rec)

	return result, err
}

var _ mica.SessionRunner = (*ObservedRunner)(nil)
