package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	mica "github.com/avelline/mica"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s := New(filepath.Join(t.TempDir(), "test.db"))
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInitIdempotent(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "init.db"))
	ctx := context.Background()
	if err := s.Init(ctx); err != nil {
		t.Fatalf("first Init: %v", err)
	}
	if err := s.Init(ctx); err != nil {
		t.Fatalf("second Init: %v", err)
	}
}

func TestIdeaAndSession(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	idea, err := s.CreateIdea(ctx, "spaced repetition app")
	if err != nil {
		t.Fatalf("CreateIdea: %v", err)
	}
	if idea.ID == "" || idea.Title != "spaced repetition app" {
		t.Fatalf("unexpected idea: %+v", idea)
	}

	got, err := s.GetIdea(ctx, idea.ID)
	if err != nil {
		t.Fatalf("GetIdea: %v", err)
	}
	if got.SessionID != "" {
		t.Errorf("new idea must have no session, got %q", got.SessionID)
	}

	if _, err := s.GetIdea(ctx, "nope"); !errors.Is(err, mica.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	// Session lifecycle: set, read back, clear.
	if err := s.SetSessionID(ctx, idea.ID, "sess-1"); err != nil {
		t.Fatalf("SetSessionID: %v", err)
	}
	sid, err := s.GetSessionID(ctx, idea.ID)
	if err != nil || sid != "sess-1" {
		t.Fatalf("GetSessionID: %q, %v", sid, err)
	}
	if err := s.ClearSessionID(ctx, idea.ID); err != nil {
		t.Fatalf("ClearSessionID: %v", err)
	}
	sid, _ = s.GetSessionID(ctx, idea.ID)
	if sid != "" {
		t.Errorf("expected cleared session, got %q", sid)
	}

	if err := s.SetSessionID(ctx, "nope", "x"); !errors.Is(err, mica.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown idea, got %v", err)
	}

	ideas, err := s.ListIdeas(ctx)
	if err != nil {
		t.Fatalf("ListIdeas: %v", err)
	}
	if len(ideas) != 1 || ideas[0].ID != idea.ID {
		t.Errorf("unexpected list: %+v", ideas)
	}
}

func TestNoteCRUD(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	idea, _ := s.CreateIdea(ctx, "test")
	n := mica.Note{
		ID:        mica.NewID(),
		IdeaID:    idea.ID,
		Title:     "Key insight",
		Content:   "# Key insight\n\nShort feedback loops win.",
		Excerpt:   "Short feedback loops win.",
		Status:    mica.NoteProposed,
		CreatedAt: time.Now(),
	}
	if err := s.PutNote(ctx, n); err != nil {
		t.Fatalf("PutNote: %v", err)
	}

	got, err := s.GetNote(ctx, n.ID)
	if err != nil {
		t.Fatalf("GetNote: %v", err)
	}
	if got.Status != mica.NoteProposed || got.Excerpt != n.Excerpt {
		t.Errorf("unexpected note: %+v", got)
	}

	// Accepting replaces the row under the same id.
	n.Status = mica.NoteAccepted
	if err := s.PutNote(ctx, n); err != nil {
		t.Fatalf("PutNote accept: %v", err)
	}
	notes, err := s.ListNotes(ctx, idea.ID)
	if err != nil {
		t.Fatalf("ListNotes: %v", err)
	}
	if len(notes) != 1 || notes[0].Status != mica.NoteAccepted {
		t.Errorf("expected one accepted note, got %+v", notes)
	}
}

func TestDocumentKeyedByName(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	idea, _ := s.CreateIdea(ctx, "test")
	d := mica.Document{
		ID:        mica.NewID(),
		IdeaID:    idea.ID,
		Name:      "app/main.js",
		Content:   "console.log(1)",
		UpdatedAt: time.Now(),
	}
	if err := s.PutDocument(ctx, d); err != nil {
		t.Fatalf("PutDocument: %v", err)
	}

	// Writing the same name again replaces the content, not adds a row.
	d2 := d
	d2.ID = mica.NewID()
	d2.Content = "console.log(2)"
	if err := s.PutDocument(ctx, d2); err != nil {
		t.Fatalf("PutDocument replace: %v", err)
	}

	got, err := s.GetDocument(ctx, idea.ID, "app/main.js")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if got.Content != "console.log(2)" {
		t.Errorf("expected replaced content, got %q", got.Content)
	}
	docs, _ := s.ListDocuments(ctx, idea.ID)
	if len(docs) != 1 {
		t.Fatalf("expected one document, got %d", len(docs))
	}

	if _, err := s.GetDocument(ctx, idea.ID, "missing.md"); !errors.Is(err, mica.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGraph(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	idea, _ := s.CreateIdea(ctx, "test")
	now := time.Now()
	a := mica.GraphNode{ID: mica.NewID(), IdeaID: idea.ID, Label: "auth", CreatedAt: now}
	b := mica.GraphNode{ID: mica.NewID(), IdeaID: idea.ID, Label: "sessions", CreatedAt: now.Add(time.Millisecond)}
	for _, n := range []mica.GraphNode{a, b} {
		if err := s.PutNode(ctx, n); err != nil {
			t.Fatalf("PutNode: %v", err)
		}
	}
	e := mica.GraphEdge{ID: mica.NewID(), IdeaID: idea.ID, FromID: a.ID, ToID: b.ID, Relation: "requires", CreatedAt: now}
	if err := s.PutEdge(ctx, e); err != nil {
		t.Fatalf("PutEdge: %v", err)
	}

	nodes, edges, err := s.GetGraph(ctx, idea.ID)
	if err != nil {
		t.Fatalf("GetGraph: %v", err)
	}
	if len(nodes) != 2 || len(edges) != 1 {
		t.Fatalf("expected 2 nodes 1 edge, got %d/%d", len(nodes), len(edges))
	}

	// Deleting a node takes its edges with it.
	if err := s.DeleteNode(ctx, idea.ID, a.ID); err != nil {
		t.Fatalf("DeleteNode: %v", err)
	}
	nodes, edges, _ = s.GetGraph(ctx, idea.ID)
	if len(nodes) != 1 || len(edges) != 0 {
		t.Errorf("expected 1 node 0 edges after delete, got %d/%d", len(nodes), len(edges))
	}

	if err := s.DeleteNode(ctx, idea.ID, "nope"); !errors.Is(err, mica.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSnapshots(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	idea, _ := s.CreateIdea(ctx, "test")
	snap, err := s.CreateSnapshot(ctx, idea.ID, "after exchange", []string{"create_document", "propose_note"})
	if err != nil {
		t.Fatalf("CreateSnapshot: %v", err)
	}
	if snap.ID == "" {
		t.Fatal("snapshot id not set")
	}
	if _, err := s.CreateSnapshot(ctx, idea.ID, "after exchange", nil); err != nil {
		t.Fatalf("CreateSnapshot without tools: %v", err)
	}

	snaps, err := s.ListSnapshots(ctx, idea.ID)
	if err != nil {
		t.Fatalf("ListSnapshots: %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(snaps))
	}
	// Newest first; the first created carries the tool tags.
	last := snaps[len(snaps)-1]
	if len(last.Tools) != 2 || last.Tools[0] != "create_document" {
		t.Errorf("tool tags lost: %+v", last)
	}
}
