package mica

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("not found")

// NoteStatus tracks a note through the proposal flow.
type NoteStatus string

const (
	NoteProposed NoteStatus = "proposed"
	NoteAccepted NoteStatus = "accepted"
)

// Idea is one logical conversation plus its workspace state. SessionID is
// the opaque provider session token; empty means no live session.
type Idea struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	SessionID string    `json:"session_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Note is a short capture proposed by the agent and accepted by the user.
type Note struct {
	ID        string     `json:"id"`
	IdeaID    string     `json:"idea_id"`
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	Excerpt   string     `json:"excerpt,omitempty"`
	Status    NoteStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
}

// Document is a named body of text in an idea's workspace. App source
// written by the agent is stored here too, under its file-like name.
type Document struct {
	ID          string    `json:"id"`
	IdeaID      string    `json:"idea_id"`
	Name        string    `json:"name"`
	Content     string    `json:"content"`
	ContentType string    `json:"content_type,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// GraphNode is one concept in an idea's dependency graph.
type GraphNode struct {
	ID        string    `json:"id"`
	IdeaID    string    `json:"idea_id"`
	Label     string    `json:"label"`
	Kind      string    `json:"kind,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// GraphEdge links two concepts with a named relation.
type GraphEdge struct {
	ID        string    `json:"id"`
	IdeaID    string    `json:"idea_id"`
	FromID    string    `json:"from_id"`
	ToID      string    `json:"to_id"`
	Relation  string    `json:"relation,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Snapshot is a version marker created after a successful exchange,
// tagged with the tool names the exchange used.
type Snapshot struct {
	ID        string    `json:"id"`
	IdeaID    string    `json:"idea_id"`
	Label     string    `json:"label"`
	Tools     []string  `json:"tools,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store abstracts workspace persistence. The engine core touches only the
// session-id and snapshot methods; everything else belongs to the tool
// handlers and the HTTP surface.
type Store interface {
	// --- Ideas ---
	CreateIdea(ctx context.Context, title string) (Idea, error)
	GetIdea(ctx context.Context, id string) (Idea, error)
	ListIdeas(ctx context.Context) ([]Idea, error)

	// --- Provider sessions ---
	GetSessionID(ctx context.Context, ideaID string) (string, error)
	SetSessionID(ctx context.Context, ideaID, sessionID string) error
	ClearSessionID(ctx context.Context, ideaID string) error

	// --- Notes ---
	PutNote(ctx context.Context, n Note) error
	GetNote(ctx context.Context, id string) (Note, error)
	ListNotes(ctx context.Context, ideaID string) ([]Note, error)

	// --- Documents ---
	PutDocument(ctx context.Context, d Document) error
	GetDocument(ctx context.Context, ideaID, name string) (Document, error)
	ListDocuments(ctx context.Context, ideaID string) ([]Document, error)

	// --- Graph ---
	PutNode(ctx context.Context, n GraphNode) error
	DeleteNode(ctx context.Context, ideaID, id string) error
	PutEdge(ctx context.Context, e GraphEdge) error
	GetGraph(ctx context.Context, ideaID string) ([]GraphNode, []GraphEdge, error)

	// --- Snapshots ---
	CreateSnapshot(ctx context.Context, ideaID, label string, tools []string) (Snapshot, error)
	ListSnapshots(ctx context.Context, ideaID string) ([]Snapshot, error)

	// --- Lifecycle ---
	Init(ctx context.Context) error
	Close() error
}
