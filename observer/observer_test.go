package observer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	mica "github.com/avelline/mica"
)

// mockRunner for observer tests.
type mockRunner struct {
	result mica.RoundResult
	err    error
	events []mica.StreamEvent
	gotReq mica.Request
}

func (m *mockRunner) Run(_ context.Context, req mica.Request, emit func(mica.StreamEvent)) (mica.RoundResult, error) {
	m.gotReq = req
	for _, ev := range m.events {
		emit(ev)
	}
	return m.result, m.err
}

// mockTool for observer tests.
type mockTool struct {
	defs   []mica.ToolDefinition
	result mica.ToolResult
	err    error
}

func (m *mockTool) Definitions() []mica.ToolDefinition { return m.defs }
func (m *mockTool) Execute(_ context.Context, _ string, _ json.RawMessage) (mica.ToolResult, error) {
	return m.result, m.err
}

// testInstruments creates a no-op Instruments using the global OTEL providers
// (which are no-ops by default). This is safe for testing delegation behavior
// without any real OTEL backend.
func testInstruments(t *testing.T) *Instruments {
	t.Helper()
	inst, err := newInstruments()
	if err != nil {
		t.Fatalf("newInstruments: %v", err)
	}
	return inst
}

func TestObservedRunnerRun(t *testing.T) {
	want := mica.RoundResult{
		StopReason: mica.StopEndTurn,
		Text:       "hello from the agent",
		Usage:      mica.Usage{InputTokens: 10, OutputTokens: 5},
	}
	inner := &mockRunner{
		result: want,
		events: []mica.StreamEvent{
			{Type: mica.EventText, Text: "hello"},
			{Type: mica.EventText, Text: " from the agent"},
		},
	}
	or := WrapRunner(inner, testInstruments(t))

	var got []mica.StreamEvent
	result, err := or.Run(context.Background(), mica.Request{SessionID: "s-1"}, func(ev mica.StreamEvent) {
		got = append(got, ev)
	})
	if err != nil {
		t.Fatalf("Run returned unexpected error: %v", err)
	}
	if result.Text != want.Text {
		t.Errorf("Text = %q, want %q", result.Text, want.Text)
	}
	if result.Usage != want.Usage {
		t.Errorf("Usage = %+v, want %+v", result.Usage, want.Usage)
	}
	if len(got) != 2 {
		t.Fatalf("forwarded %d events, want 2", len(got))
	}
	if got[0].Text != "hello" {
		t.Errorf("events[0].Text = %q, want %q", got[0].Text, "hello")
	}
	if inner.gotReq.SessionID != "s-1" {
		t.Errorf("SessionID = %q, want passed through", inner.gotReq.SessionID)
	}
}

func TestObservedRunnerError(t *testing.T) {
	wantErr := errors.New("subprocess failed")
	inner := &mockRunner{err: wantErr}
	or := WrapRunner(inner, testInstruments(t))

	_, err := or.Run(context.Background(), mica.Request{}, func(mica.StreamEvent) {})
	if !errors.Is(err, wantErr) {
		t.Errorf("Run error = %v, want %v", err, wantErr)
	}
}

func TestObservedToolDefinitions(t *testing.T) {
	defs := []mica.ToolDefinition{
		{Name: "web_search", Description: "search the web"},
		{Name: "propose_note", Description: "propose a note"},
	}
	inner := &mockTool{defs: defs}
	ot := WrapTool(inner, testInstruments(t))

	got := ot.Definitions()
	if len(got) != len(defs) {
		t.Fatalf("Definitions length = %d, want %d", len(got), len(defs))
	}
	for i, d := range got {
		if d.Name != defs[i].Name {
			t.Errorf("Definitions[%d].Name = %q, want %q", i, d.Name, defs[i].Name)
		}
	}
}

func TestObservedToolExecute(t *testing.T) {
	want := mica.ToolResult{Content: "result data"}
	inner := &mockTool{result: want}
	ot := WrapTool(inner, testInstruments(t))

	got, err := ot.Execute(context.Background(), "web_search", json.RawMessage(`{"query":"go"}`))
	if err != nil {
		t.Fatalf("Execute returned unexpected error: %v", err)
	}
	if got.Content != want.Content {
		t.Errorf("Content = %q, want %q", got.Content, want.Content)
	}
	if got.Error != "" {
		t.Errorf("Error = %q, want empty", got.Error)
	}
}

func TestObservedToolExecuteError(t *testing.T) {
	wantErr := errors.New("tool broken")
	inner := &mockTool{err: wantErr}
	ot := WrapTool(inner, testInstruments(t))

	_, err := ot.Execute(context.Background(), "web_search", json.RawMessage(`{}`))
	if !errors.Is(err, wantErr) {
		t.Errorf("Execute error = %v, want %v", err, wantErr)
	}
}

func TestTracerRoundTrip(t *testing.T) {
	tr := NewTracer()
	ctx, span := tr.Start(context.Background(), "exchange",
		mica.StringAttr("idea.id", "i-1"), mica.IntAttr("round", 1))
	if ctx == nil {
		t.Fatal("Start returned nil context")
	}
	span.SetAttr(mica.BoolAttr("resumed", true))
	span.Event("round started", mica.IntAttr("delivered", 3))
	span.Error(errors.New("x"))
	span.End()
}
