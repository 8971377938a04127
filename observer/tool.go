package observer

import (
	"context"
	"encoding/json"
	"time"

	mica "github.com/avelline/mica"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	micalog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ObservedTool wraps a mica.Tool with OTEL instrumentation.
type ObservedTool struct {
	inner mica.Tool
	inst  *Instruments
}

// WrapTool returns an instrumented tool.
func WrapTool(inner mica.Tool, inst *Instruments) *ObservedTool {
	return &ObservedTool{inner: inner, inst: inst}
}

func (o *ObservedTool) Definitions() []mica.ToolDefinition {
	return o.inner.Definitions()
}

func (o *ObservedTool) Execute(ctx context.Context, name string, args json.RawMessage) (mica.ToolResult, error) {
	ctx, span := o.inst.Tracer.Start(ctx, "tool.execute", trace.WithAttributes(
		AttrToolName.String(name),
	))
	defer span.End()
	start := time.Now()

	result, err := o.inner.Execute(ctx, name, args)

	durationMs := float64(time.Since(start).Milliseconds())
	status := "ok"
	if result.Error != "" {
		status = "tool_error"
	}
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	span.SetAttributes(
		AttrToolStatus.String(status),
		AttrToolResultLength.Int(len(result.Content)),
	)

	o.inst.ToolExecutions.Add(ctx, 1, metric.WithAttributes(
		AttrToolName.String(name),
		attribute.String("status", status),
	))
	o.inst.ToolDuration.Record(ctx, durationMs, metric.WithAttributes(
		AttrToolName.String(name),
	))

	// Structured log
	var rec micalog.Record
	rec.SetSeverity(micalog.SeverityInfo)
	rec.SetBody(micalog.StringValue("tool executed"))
	rec.AddAttributes(
		micalog.String("tool.name", name),
		micalog.String("tool.status", status),
		micalog.Int("tool.result_length", len(result.Content)),
		micalog.Float64("tool.duration_ms", durationMs),
	)
	o.inst.Logger.Emit(ctx, rec)

	return result, err
}

var _ mica.Tool = (*ObservedTool)(nil)
