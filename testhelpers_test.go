package mica

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

// memStore is an in-memory Store for loop tests. It implements only what
// the engine core touches for real (ideas, sessions, snapshots); the
// workspace collections are honest maps so tool-shaped tests can use them
// too.
type memStore struct {
	mu        sync.Mutex
	ideas     map[string]Idea
	notes     map[string]Note
	documents map[string]Document
	nodes     map[string]GraphNode
	edges     map[string]GraphEdge
	snapshots []Snapshot
}

func newMemStore() *memStore {
	return &memStore{
		ideas:     make(map[string]Idea),
		notes:     make(map[string]Note),
		documents: make(map[string]Document),
		nodes:     make(map[string]GraphNode),
		edges:     make(map[string]GraphEdge),
	}
}

func (s *memStore) CreateIdea(_ context.Context, title string) (Idea, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idea := Idea{ID: NewID(), Title: title, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	s.ideas[idea.ID] = idea
	return idea, nil
}

func (s *memStore) GetIdea(_ context.Context, id string) (Idea, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idea, ok := s.ideas[id]
	if !ok {
		return Idea{}, ErrNotFound
	}
	return idea, nil
}

func (s *memStore) ListIdeas(_ context.Context) ([]Idea, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Idea, 0, len(s.ideas))
	for _, idea := range s.ideas {
		out = append(out, idea)
	}
	return out, nil
}

func (s *memStore) GetSessionID(_ context.Context, ideaID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idea, ok := s.ideas[ideaID]
	if !ok {
		return "", ErrNotFound
	}
	return idea.SessionID, nil
}

func (s *memStore) SetSessionID(_ context.Context, ideaID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idea, ok := s.ideas[ideaID]
	if !ok {
		return ErrNotFound
	}
	idea.SessionID = sessionID
	s.ideas[ideaID] = idea
	return nil
}

func (s *memStore) ClearSessionID(ctx context.Context, ideaID string) error {
	return s.SetSessionID(ctx, ideaID, "")
}

func (s *memStore) PutNote(_ context.Context, n Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes[n.ID] = n
	return nil
}

func (s *memStore) GetNote(_ context.Context, id string) (Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notes[id]
	if !ok {
		return Note{}, ErrNotFound
	}
	return n, nil
}

func (s *memStore) ListNotes(_ context.Context, ideaID string) ([]Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Note
	for _, n := range s.notes {
		if n.IdeaID == ideaID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *memStore) PutDocument(_ context.Context, d Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[d.IdeaID+"/"+d.Name] = d
	return nil
}

func (s *memStore) GetDocument(_ context.Context, ideaID, name string) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.documents[ideaID+"/"+name]
	if !ok {
		return Document{}, ErrNotFound
	}
	return d, nil
}

func (s *memStore) ListDocuments(_ context.Context, ideaID string) ([]Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Document
	for _, d := range s.documents {
		if d.IdeaID == ideaID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *memStore) PutNode(_ context.Context, n GraphNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[n.ID] = n
	return nil
}

func (s *memStore) DeleteNode(_ context.Context, ideaID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	if !ok || n.IdeaID != ideaID {
		return ErrNotFound
	}
	delete(s.nodes, id)
	for k, e := range s.edges {
		if e.FromID == id || e.ToID == id {
			delete(s.edges, k)
		}
	}
	return nil
}

func (s *memStore) PutEdge(_ context.Context, e GraphEdge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edges[e.ID] = e
	return nil
}

func (s *memStore) GetGraph(_ context.Context, ideaID string) ([]GraphNode, []GraphEdge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var nodes []GraphNode
	for _, n := range s.nodes {
		if n.IdeaID == ideaID {
			nodes = append(nodes, n)
		}
	}
	var edges []GraphEdge
	for _, e := range s.edges {
		if e.IdeaID == ideaID {
			edges = append(edges, e)
		}
	}
	return nodes, edges, nil
}

func (s *memStore) CreateSnapshot(_ context.Context, ideaID, label string, tools []string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{ID: NewID(), IdeaID: ideaID, Label: label, Tools: tools, CreatedAt: time.Now()}
	s.snapshots = append(s.snapshots, snap)
	return snap, nil
}

func (s *memStore) ListSnapshots(_ context.Context, ideaID string) ([]Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Snapshot
	for _, snap := range s.snapshots {
		if snap.IdeaID == ideaID {
			out = append(out, snap)
		}
	}
	return out, nil
}

func (s *memStore) Init(_ context.Context) error { return nil }
func (s *memStore) Close() error                 { return nil }

func (s *memStore) snapshotCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snapshots)
}

// --- Runner mocks (shared across loop_test.go) ---

// scriptedRound is one provider round a scriptRunner plays back.
type scriptedRound struct {
	events    []StreamEvent
	result    RoundResult
	err       error
	sessionID string // invokes OnSessionID before returning when set
	reset     bool   // invokes OnSessionReset before returning when set
}

// scriptRunner plays scripted rounds in order and records every request
// it saw. Calling Run past the script is a test failure surfaced as an
// error result.
type scriptRunner struct {
	mu       sync.Mutex
	script   []scriptedRound
	requests []Request
}

func (r *scriptRunner) Run(ctx context.Context, req Request, emit func(StreamEvent)) (RoundResult, error) {
	r.mu.Lock()
	n := len(r.requests)
	r.requests = append(r.requests, req)
	if n >= len(r.script) {
		r.mu.Unlock()
		return RoundResult{}, errors.New("script exhausted")
	}
	round := r.script[n]
	r.mu.Unlock()

	for _, ev := range round.events {
		emit(ev)
	}
	if round.sessionID != "" && req.OnSessionID != nil {
		req.OnSessionID(round.sessionID)
	}
	if round.reset && req.OnSessionReset != nil {
		req.OnSessionReset()
	}
	if err := ctx.Err(); err != nil {
		return RoundResult{}, err
	}
	return round.result, round.err
}

func (r *scriptRunner) request(t *testing.T, i int) Request {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if i >= len(r.requests) {
		t.Fatalf("runner saw %d requests, want at least %d", len(r.requests), i+1)
	}
	return r.requests[i]
}

func (r *scriptRunner) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests)
}

// blockingRunner parks until its context is cancelled, for abort tests.
type blockingRunner struct {
	started chan struct{}
}

func (r *blockingRunner) Run(ctx context.Context, _ Request, _ func(StreamEvent)) (RoundResult, error) {
	close(r.started)
	<-ctx.Done()
	return RoundResult{}, ctx.Err()
}

// --- Tool mocks ---

type stubTool struct {
	name    string
	content string
	defn    ToolDefinition
}

func (s *stubTool) Definitions() []ToolDefinition {
	d := s.defn
	if d.Name == "" {
		d.Name = s.name
		d.Description = "stub tool"
	}
	return []ToolDefinition{d}
}

func (s *stubTool) Execute(_ context.Context, name string, _ json.RawMessage) (ToolResult, error) {
	return ToolResult{Content: s.content + " from " + name}, nil
}

type errTool struct{ name string }

func (e *errTool) Definitions() []ToolDefinition {
	return []ToolDefinition{{Name: e.name, Description: "always fails"}}
}

func (e *errTool) Execute(_ context.Context, _ string, _ json.RawMessage) (ToolResult, error) {
	return ToolResult{}, errors.New("tool broken")
}

// ideaEchoTool reports the idea id it saw in its context.
type ideaEchoTool struct{}

func (ideaEchoTool) Definitions() []ToolDefinition {
	return []ToolDefinition{{Name: "whereami", Description: "echo idea scope"}}
}

func (ideaEchoTool) Execute(ctx context.Context, _ string, _ json.RawMessage) (ToolResult, error) {
	return ToolResult{Content: "idea=" + IdeaIDFromContext(ctx)}, nil
}

// --- Event helpers ---

// drain collects the full stream, failing the test if the channel does
// not close in time.
func drain(t *testing.T, ch <-chan StreamEvent) []StreamEvent {
	t.Helper()
	var events []StreamEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("stream did not close; got %d events so far", len(events))
		}
	}
}

func terminalEvent(t *testing.T, events []StreamEvent) StreamEvent {
	t.Helper()
	if len(events) == 0 {
		t.Fatal("no events received")
	}
	return events[len(events)-1]
}

func eventsOfType(events []StreamEvent, typ StreamEventType) []StreamEvent {
	var out []StreamEvent
	for _, ev := range events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

// toolUseRound builds a scripted round that requests the given calls.
func toolUseRound(calls ...ToolCall) scriptedRound {
	content := make([]ContentBlock, 0, len(calls))
	for _, c := range calls {
		content = append(content, ToolUseBlock(c.ID, c.Name, c.Input))
	}
	return scriptedRound{
		result: RoundResult{
			StopReason:       StopToolUse,
			ToolCalls:        calls,
			AssistantContent: content,
		},
	}
}

// textRound builds a scripted round that ends the turn with text.
func textRound(text string, usage Usage) scriptedRound {
	return scriptedRound{
		events: []StreamEvent{{Type: EventText, Text: text}},
		result: RoundResult{
			StopReason:       StopEndTurn,
			Text:             text,
			AssistantContent: []ContentBlock{TextBlock(text)},
			Usage:            usage,
		},
	}
}
