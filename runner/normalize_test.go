package runner

import (
	"encoding/json"
	"testing"

	mica "github.com/avelline/mica"
)

type sink struct {
	events []mica.StreamEvent
	blocks []mica.ContentBlock
	scopes []string
}

func (s *sink) emit(ev mica.StreamEvent) { s.events = append(s.events, ev) }

func (s *sink) block(scope string, b mica.ContentBlock) {
	s.scopes = append(s.scopes, scope)
	s.blocks = append(s.blocks, b)
}

func (s *sink) ofType(t mica.StreamEventType) []mica.StreamEvent {
	var out []mica.StreamEvent
	for _, ev := range s.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func startBlock(index int, typ, id, name string) *wireEvent {
	return &wireEvent{Type: eventBlockStart, Index: index, ContentBlock: &wireBlock{Type: typ, ID: id, Name: name}}
}

func textDelta(index int, s string) *wireEvent {
	return &wireEvent{Type: eventBlockDelta, Index: index, Delta: &wireDelta{Type: deltaText, Text: s}}
}

func thinkingDelta(index int, s string) *wireEvent {
	return &wireEvent{Type: eventBlockDelta, Index: index, Delta: &wireDelta{Type: deltaThinking, Thinking: s}}
}

func signatureDelta(index int, s string) *wireEvent {
	return &wireEvent{Type: eventBlockDelta, Index: index, Delta: &wireDelta{Type: deltaSignature, Signature: s}}
}

func inputDelta(index int, s string) *wireEvent {
	return &wireEvent{Type: eventBlockDelta, Index: index, Delta: &wireDelta{Type: deltaInputJSON, PartialJSON: s}}
}

func stopBlock(index int) *wireEvent {
	return &wireEvent{Type: eventBlockStop, Index: index}
}

func TestNormalizerTextBlock(t *testing.T) {
	var s sink
	n := newNormalizer(s.emit, s.block, nopLogger)

	n.handle(scopeRoot, startBlock(0, "text", "", ""))
	n.handle(scopeRoot, textDelta(0, "Hel"))
	n.handle(scopeRoot, textDelta(0, "lo"))
	n.handle(scopeRoot, stopBlock(0))

	texts := s.ofType(mica.EventText)
	if len(texts) != 2 {
		t.Fatalf("expected 2 text events, got %d", len(texts))
	}
	if texts[0].Text != "Hel" || texts[1].Text != "lo" {
		t.Errorf("unexpected chunks: %q %q", texts[0].Text, texts[1].Text)
	}
	if len(s.blocks) != 1 || s.blocks[0].Type != mica.BlockText || s.blocks[0].Text != "Hello" {
		t.Errorf("expected assembled text block, got %+v", s.blocks)
	}
	if n.open() != 0 {
		t.Errorf("expected no open blocks, got %d", n.open())
	}
}

func TestNormalizerThinkingSignature(t *testing.T) {
	var s sink
	n := newNormalizer(s.emit, s.block, nopLogger)

	n.handle(scopeRoot, startBlock(0, "thinking", "", ""))
	n.handle(scopeRoot, thinkingDelta(0, "let me "))
	n.handle(scopeRoot, thinkingDelta(0, "see"))
	n.handle(scopeRoot, signatureDelta(0, "AAA"))
	n.handle(scopeRoot, signatureDelta(0, "BBB"))
	n.handle(scopeRoot, stopBlock(0))

	if got := len(s.ofType(mica.EventThinkingStart)); got != 1 {
		t.Fatalf("expected exactly one thinking-start, got %d", got)
	}
	if s.events[0].Type != mica.EventThinkingStart {
		t.Errorf("thinking-start must precede the first chunk, got %v first", s.events[0].Type)
	}
	done := s.ofType(mica.EventThinkingDone)
	if len(done) != 1 || done[0].Signature != "AAABBB" {
		t.Fatalf("expected one thinking-done with joined signature, got %+v", done)
	}
	if len(s.blocks) != 1 || s.blocks[0].Thinking != "let me see" || s.blocks[0].Signature != "AAABBB" {
		t.Errorf("unexpected thinking block: %+v", s.blocks)
	}
	// Signature fragments stream silently.
	if got := len(s.events); got != 4 {
		t.Errorf("expected 4 events (start, 2 chunks, done), got %d", got)
	}
}

func TestNormalizerToolInputChunking(t *testing.T) {
	const input = `{"query":"go concurrency","limit":3}`

	run := func(chunks []string) (*sink, mica.StreamEvent) {
		var s sink
		n := newNormalizer(s.emit, s.block, nopLogger)
		n.handle(scopeRoot, startBlock(1, "tool_use", "tu_1", "mcp__ideas__web_search"))
		for _, c := range chunks {
			n.handle(scopeRoot, inputDelta(1, c))
		}
		n.handle(scopeRoot, stopBlock(1))
		uses := s.ofType(mica.EventToolUse)
		if len(uses) != 1 {
			t.Fatalf("expected one tool-use event, got %d", len(uses))
		}
		return &s, uses[0]
	}

	// Any split of the same fragments must assemble identically.
	var perChar []string
	for _, r := range input {
		perChar = append(perChar, string(r))
	}
	sWhole, whole := run([]string{input})
	sSplit, split := run(perChar)

	if string(whole.Input) != input || string(split.Input) != string(whole.Input) {
		t.Errorf("chunked assembly diverged: %q vs %q", whole.Input, split.Input)
	}
	if whole.ToolName != "web_search" || split.ToolName != "web_search" {
		t.Errorf("expected routing prefix stripped, got %q", whole.ToolName)
	}

	starts := sWhole.ofType(mica.EventToolStart)
	if len(starts) != 1 || starts[0].ToolName != "web_search" || starts[0].ToolID != "tu_1" {
		t.Errorf("unexpected tool-start: %+v", starts)
	}
	deltas := sSplit.ofType(mica.EventToolInputDelta)
	if len(deltas) != len(perChar) {
		t.Fatalf("expected %d input deltas, got %d", len(perChar), len(deltas))
	}
	if deltas[len(deltas)-1].Partial != input {
		t.Errorf("final partial should hold the whole input, got %q", deltas[len(deltas)-1].Partial)
	}
	for i := 1; i < len(deltas); i++ {
		if len(deltas[i].Partial) <= len(deltas[i-1].Partial) {
			t.Fatalf("partials must grow cumulatively, got %q after %q", deltas[i].Partial, deltas[i-1].Partial)
		}
	}

	if len(sWhole.blocks) != 1 || sWhole.blocks[0].Type != mica.BlockToolUse {
		t.Fatalf("expected one tool_use block, got %+v", sWhole.blocks)
	}
	if sWhole.blocks[0].Name != "web_search" || string(sWhole.blocks[0].Input) != input {
		t.Errorf("unexpected block: %+v", sWhole.blocks[0])
	}
}

func TestNormalizerToolInputFallback(t *testing.T) {
	cases := []struct {
		name   string
		chunks []string
	}{
		{"empty", nil},
		{"truncated", []string{`{"broken":`}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var s sink
			n := newNormalizer(s.emit, s.block, nopLogger)
			n.handle(scopeRoot, startBlock(0, "tool_use", "tu_9", "mcp__ideas__propose_note"))
			for _, c := range tc.chunks {
				n.handle(scopeRoot, inputDelta(0, c))
			}
			n.handle(scopeRoot, stopBlock(0))

			uses := s.ofType(mica.EventToolUse)
			if len(uses) != 1 {
				t.Fatalf("expected one tool-use event, got %d", len(uses))
			}
			if string(uses[0].Input) != "{}" {
				t.Errorf("expected empty object fallback, got %q", uses[0].Input)
			}
			if !json.Valid(uses[0].Input) {
				t.Error("fallback input must be valid JSON")
			}
		})
	}
}

func TestNormalizerScopeIsolation(t *testing.T) {
	var s sink
	n := newNormalizer(s.emit, s.block, nopLogger)

	// Root and a sub-agent stream concurrently, reusing index 0.
	n.handle(scopeRoot, startBlock(0, "text", "", ""))
	n.handle(scopeRoot, textDelta(0, "root says"))
	n.handle("task-1", startBlock(0, "text", "", ""))
	n.handle("task-1", textDelta(0, "sub says"))

	// Root completion flushes root's open block and nothing else.
	n.handle(scopeRoot, &wireEvent{Type: eventMessageStop})
	if n.open() != 1 {
		t.Fatalf("sub-agent block must survive root completion, open=%d", n.open())
	}
	if len(s.blocks) != 1 || s.scopes[0] != scopeRoot || s.blocks[0].Text != "root says" {
		t.Fatalf("expected root block flushed, got scopes=%v blocks=%+v", s.scopes, s.blocks)
	}

	// The sub-agent continues unharmed.
	n.handle("task-1", textDelta(0, " more"))
	n.handle("task-1", stopBlock(0))
	if len(s.blocks) != 2 || s.scopes[1] != "task-1" || s.blocks[1].Text != "sub says more" {
		t.Errorf("expected sub-agent block intact, got scopes=%v blocks=%+v", s.scopes, s.blocks)
	}
	if n.open() != 0 {
		t.Errorf("expected no open blocks, got %d", n.open())
	}
}

func TestNormalizerOrphanEvents(t *testing.T) {
	var s sink
	n := newNormalizer(s.emit, s.block, nopLogger)

	n.handle(scopeRoot, textDelta(3, "ghost"))
	n.handle(scopeRoot, stopBlock(3))
	n.handle(scopeRoot, nil)

	if len(s.events) != 0 || len(s.blocks) != 0 {
		t.Errorf("orphan events must be dropped, got %d events %d blocks", len(s.events), len(s.blocks))
	}
}

func TestCollectorRootOnly(t *testing.T) {
	var c collector
	c.add(scopeRoot, mica.ThinkingBlock("pondering", "sig-1"))
	c.add("task-1", mica.TextBlock("sub output"))
	c.add(scopeRoot, mica.TextBlock("answer"))
	c.add(scopeRoot, mica.ToolUseBlock("tu_1", "web_search", json.RawMessage(`{"query":"x"}`)))

	r := c.result
	if len(r.AssistantContent) != 3 {
		t.Fatalf("expected 3 root blocks, got %d", len(r.AssistantContent))
	}
	if r.Text != "answer" {
		t.Errorf("expected text from root only, got %q", r.Text)
	}
	if r.Thinking != "pondering" || r.ThinkingSignature != "sig-1" {
		t.Errorf("unexpected thinking: %q sig %q", r.Thinking, r.ThinkingSignature)
	}
	if len(r.ToolCalls) != 1 || r.ToolCalls[0].Name != "web_search" || r.ToolCalls[0].ID != "tu_1" {
		t.Errorf("unexpected tool calls: %+v", r.ToolCalls)
	}
}

func TestMapStopReason(t *testing.T) {
	if got := mapStopReason("end_turn"); got != mica.StopEndTurn {
		t.Errorf("end_turn: got %q", got)
	}
	if got := mapStopReason("tool_use"); got != mica.StopToolUse {
		t.Errorf("tool_use: got %q", got)
	}
	if got := mapStopReason("pause_turn"); got != mica.StopReason("pause_turn") {
		t.Errorf("unknown reasons must pass through, got %q", got)
	}
}
