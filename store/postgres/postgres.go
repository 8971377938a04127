// Package postgres implements mica.Store using PostgreSQL.
//
// The Store accepts an externally-owned *pgxpool.Pool via constructor
// injection. The caller creates and closes the pool.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	mica "github.com/avelline/mica"
)

// Store implements mica.Store backed by PostgreSQL. Timestamps are stored
// as Unix milliseconds in BIGINT columns; snapshot tool tags as JSONB.
type Store struct {
	pool *pgxpool.Pool
}

var _ mica.Store = (*Store)(nil)

// New creates a Store using an existing pgxpool.Pool.
// The caller owns the pool and is responsible for closing it.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Init creates all required tables and indexes.
// Safe to call multiple times (all statements are idempotent).
func (s *Store) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ideas (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			session_id TEXT NOT NULL DEFAULT '',
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS notes (
			id TEXT PRIMARY KEY,
			idea_id TEXT NOT NULL,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			excerpt TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			created_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notes_idea ON notes(idea_id)`,

		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			idea_id TEXT NOT NULL,
			name TEXT NOT NULL,
			content TEXT NOT NULL,
			content_type TEXT NOT NULL DEFAULT '',
			updated_at BIGINT NOT NULL,
			UNIQUE(idea_id, name)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_idea ON documents(idea_id)`,

		`CREATE TABLE IF NOT EXISTS graph_nodes (
			id TEXT PRIMARY KEY,
			idea_id TEXT NOT NULL,
			label TEXT NOT NULL,
			kind TEXT NOT NULL DEFAULT '',
			created_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_graph_nodes_idea ON graph_nodes(idea_id)`,

		`CREATE TABLE IF NOT EXISTS graph_edges (
			id TEXT PRIMARY KEY,
			idea_id TEXT NOT NULL,
			from_id TEXT NOT NULL,
			to_id TEXT NOT NULL,
			relation TEXT NOT NULL DEFAULT '',
			created_at BIGINT NOT NULL,
			UNIQUE(idea_id, from_id, to_id, relation)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_graph_edges_idea ON graph_edges(idea_id)`,

		`CREATE TABLE IF NOT EXISTS snapshots (
			id TEXT PRIMARY KEY,
			idea_id TEXT NOT NULL,
			label TEXT NOT NULL,
			tools JSONB,
			created_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_idea ON snapshots(idea_id)`,
	}

	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: init: %w", err)
		}
	}
	return nil
}

// --- Ideas ---

// CreateIdea inserts a new idea with a generated id.
func (s *Store) CreateIdea(ctx context.Context, title string) (mica.Idea, error) {
	now := time.Now()
	idea := mica.Idea{
		ID:        mica.NewID(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ideas (id, title, session_id, created_at, updated_at)
		 VALUES ($1, $2, '', $3, $4)`,
		idea.ID, idea.Title, now.UnixMilli(), now.UnixMilli())
	if err != nil {
		return mica.Idea{}, fmt.Errorf("postgres: create idea: %w", err)
	}
	return idea, nil
}

// GetIdea returns an idea by id.
func (s *Store) GetIdea(ctx context.Context, id string) (mica.Idea, error) {
	var (
		idea    mica.Idea
		created int64
		updated int64
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, title, session_id, created_at, updated_at FROM ideas WHERE id = $1`, id,
	).Scan(&idea.ID, &idea.Title, &idea.SessionID, &created, &updated)
	if err == pgx.ErrNoRows {
		return mica.Idea{}, mica.ErrNotFound
	}
	if err != nil {
		return mica.Idea{}, fmt.Errorf("postgres: get idea: %w", err)
	}
	idea.CreatedAt = time.UnixMilli(created)
	idea.UpdatedAt = time.UnixMilli(updated)
	return idea, nil
}

// ListIdeas returns all ideas, most recently updated first.
func (s *Store) ListIdeas(ctx context.Context) ([]mica.Idea, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, title, session_id, created_at, updated_at
		 FROM ideas
		 ORDER BY updated_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list ideas: %w", err)
	}
	defer rows.Close()

	var ideas []mica.Idea
	for rows.Next() {
		var (
			idea    mica.Idea
			created int64
			updated int64
		)
		if err := rows.Scan(&idea.ID, &idea.Title, &idea.SessionID, &created, &updated); err != nil {
			return nil, fmt.Errorf("postgres: scan idea: %w", err)
		}
		idea.CreatedAt = time.UnixMilli(created)
		idea.UpdatedAt = time.UnixMilli(updated)
		ideas = append(ideas, idea)
	}
	return ideas, rows.Err()
}

// --- Provider sessions ---

// GetSessionID returns the stored provider session token for an idea,
// or "" when no session has been established.
func (s *Store) GetSessionID(ctx context.Context, ideaID string) (string, error) {
	var sid string
	err := s.pool.QueryRow(ctx,
		`SELECT session_id FROM ideas WHERE id = $1`, ideaID).Scan(&sid)
	if err == pgx.ErrNoRows {
		return "", mica.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("postgres: get session id: %w", err)
	}
	return sid, nil
}

// SetSessionID stores the provider session token for an idea.
func (s *Store) SetSessionID(ctx context.Context, ideaID, sessionID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE ideas SET session_id = $1, updated_at = $2 WHERE id = $3`,
		sessionID, time.Now().UnixMilli(), ideaID)
	if err != nil {
		return fmt.Errorf("postgres: set session id: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return mica.ErrNotFound
	}
	return nil
}

// ClearSessionID drops the stored session token so the next exchange
// starts a fresh provider session.
func (s *Store) ClearSessionID(ctx context.Context, ideaID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE ideas SET session_id = '', updated_at = $1 WHERE id = $2`,
		time.Now().UnixMilli(), ideaID)
	if err != nil {
		return fmt.Errorf("postgres: clear session id: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return mica.ErrNotFound
	}
	return nil
}

// --- Notes ---

// PutNote inserts or replaces a note.
func (s *Store) PutNote(ctx context.Context, n mica.Note) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO notes (id, idea_id, title, content, excerpt, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET
		   title = EXCLUDED.title,
		   content = EXCLUDED.content,
		   excerpt = EXCLUDED.excerpt,
		   status = EXCLUDED.status`,
		n.ID, n.IdeaID, n.Title, n.Content, n.Excerpt, string(n.Status), n.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("postgres: put note: %w", err)
	}
	return nil
}

// GetNote returns a note by id.
func (s *Store) GetNote(ctx context.Context, id string) (mica.Note, error) {
	var (
		n       mica.Note
		status  string
		created int64
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, idea_id, title, content, excerpt, status, created_at FROM notes WHERE id = $1`, id,
	).Scan(&n.ID, &n.IdeaID, &n.Title, &n.Content, &n.Excerpt, &status, &created)
	if err == pgx.ErrNoRows {
		return mica.Note{}, mica.ErrNotFound
	}
	if err != nil {
		return mica.Note{}, fmt.Errorf("postgres: get note: %w", err)
	}
	n.Status = mica.NoteStatus(status)
	n.CreatedAt = time.UnixMilli(created)
	return n, nil
}

// ListNotes returns an idea's notes in creation order.
func (s *Store) ListNotes(ctx context.Context, ideaID string) ([]mica.Note, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, idea_id, title, content, excerpt, status, created_at
		 FROM notes WHERE idea_id = $1
		 ORDER BY created_at ASC, id ASC`,
		ideaID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list notes: %w", err)
	}
	defer rows.Close()

	var notes []mica.Note
	for rows.Next() {
		var (
			n       mica.Note
			status  string
			created int64
		)
		if err := rows.Scan(&n.ID, &n.IdeaID, &n.Title, &n.Content, &n.Excerpt, &status, &created); err != nil {
			return nil, fmt.Errorf("postgres: scan note: %w", err)
		}
		n.Status = mica.NoteStatus(status)
		n.CreatedAt = time.UnixMilli(created)
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// --- Documents ---

// PutDocument inserts a document, or replaces its content when the
// (idea, name) pair already exists.
func (s *Store) PutDocument(ctx context.Context, d mica.Document) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO documents (id, idea_id, name, content, content_type, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (idea_id, name) DO UPDATE SET
		   content = EXCLUDED.content,
		   content_type = EXCLUDED.content_type,
		   updated_at = EXCLUDED.updated_at`,
		d.ID, d.IdeaID, d.Name, d.Content, d.ContentType, d.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("postgres: put document: %w", err)
	}
	return nil
}

// GetDocument returns a document by its name within an idea.
func (s *Store) GetDocument(ctx context.Context, ideaID, name string) (mica.Document, error) {
	var (
		d       mica.Document
		updated int64
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, idea_id, name, content, content_type, updated_at
		 FROM documents WHERE idea_id = $1 AND name = $2`,
		ideaID, name,
	).Scan(&d.ID, &d.IdeaID, &d.Name, &d.Content, &d.ContentType, &updated)
	if err == pgx.ErrNoRows {
		return mica.Document{}, mica.ErrNotFound
	}
	if err != nil {
		return mica.Document{}, fmt.Errorf("postgres: get document: %w", err)
	}
	d.UpdatedAt = time.UnixMilli(updated)
	return d, nil
}

// ListDocuments returns an idea's documents ordered by name.
func (s *Store) ListDocuments(ctx context.Context, ideaID string) ([]mica.Document, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, idea_id, name, content, content_type, updated_at
		 FROM documents WHERE idea_id = $1
		 ORDER BY name ASC`,
		ideaID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list documents: %w", err)
	}
	defer rows.Close()

	var docs []mica.Document
	for rows.Next() {
		var (
			d       mica.Document
			updated int64
		)
		if err := rows.Scan(&d.ID, &d.IdeaID, &d.Name, &d.Content, &d.ContentType, &updated); err != nil {
			return nil, fmt.Errorf("postgres: scan document: %w", err)
		}
		d.UpdatedAt = time.UnixMilli(updated)
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// --- Graph ---

// PutNode inserts or replaces a concept node.
func (s *Store) PutNode(ctx context.Context, n mica.GraphNode) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO graph_nodes (id, idea_id, label, kind, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET
		   label = EXCLUDED.label,
		   kind = EXCLUDED.kind`,
		n.ID, n.IdeaID, n.Label, n.Kind, n.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("postgres: put node: %w", err)
	}
	return nil
}

// DeleteNode removes a node and every edge touching it.
func (s *Store) DeleteNode(ctx context.Context, ideaID, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`DELETE FROM graph_edges WHERE idea_id = $1 AND (from_id = $2 OR to_id = $2)`,
		ideaID, id); err != nil {
		return fmt.Errorf("postgres: delete node edges: %w", err)
	}
	tag, err := tx.Exec(ctx,
		`DELETE FROM graph_nodes WHERE idea_id = $1 AND id = $2`, ideaID, id)
	if err != nil {
		return fmt.Errorf("postgres: delete node: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return mica.ErrNotFound
	}
	return nil
}

// PutEdge inserts or replaces a relation between two nodes.
func (s *Store) PutEdge(ctx context.Context, e mica.GraphEdge) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO graph_edges (id, idea_id, from_id, to_id, relation, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (idea_id, from_id, to_id, relation) DO UPDATE SET
		   created_at = graph_edges.created_at`,
		e.ID, e.IdeaID, e.FromID, e.ToID, e.Relation, e.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("postgres: put edge: %w", err)
	}
	return nil
}

// GetGraph returns an idea's full concept graph.
func (s *Store) GetGraph(ctx context.Context, ideaID string) ([]mica.GraphNode, []mica.GraphEdge, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, idea_id, label, kind, created_at
		 FROM graph_nodes WHERE idea_id = $1
		 ORDER BY created_at ASC, id ASC`,
		ideaID)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: list nodes: %w", err)
	}
	defer rows.Close()

	var nodes []mica.GraphNode
	for rows.Next() {
		var (
			n       mica.GraphNode
			created int64
		)
		if err := rows.Scan(&n.ID, &n.IdeaID, &n.Label, &n.Kind, &created); err != nil {
			return nil, nil, fmt.Errorf("postgres: scan node: %w", err)
		}
		n.CreatedAt = time.UnixMilli(created)
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("postgres: iterate nodes: %w", err)
	}

	erows, err := s.pool.Query(ctx,
		`SELECT id, idea_id, from_id, to_id, relation, created_at
		 FROM graph_edges WHERE idea_id = $1
		 ORDER BY created_at ASC, id ASC`,
		ideaID)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: list edges: %w", err)
	}
	defer erows.Close()

	var edges []mica.GraphEdge
	for erows.Next() {
		var (
			e       mica.GraphEdge
			created int64
		)
		if err := erows.Scan(&e.ID, &e.IdeaID, &e.FromID, &e.ToID, &e.Relation, &created); err != nil {
			return nil, nil, fmt.Errorf("postgres: scan edge: %w", err)
		}
		e.CreatedAt = time.UnixMilli(created)
		edges = append(edges, e)
	}
	return nodes, edges, erows.Err()
}

// --- Snapshots ---

// CreateSnapshot records a version marker with a generated id.
func (s *Store) CreateSnapshot(ctx context.Context, ideaID, label string, tools []string) (mica.Snapshot, error) {
	now := time.Now()
	snap := mica.Snapshot{
		ID:        mica.NewID(),
		IdeaID:    ideaID,
		Label:     label,
		Tools:     tools,
		CreatedAt: now,
	}
	var toolsJSON *string
	if len(tools) > 0 {
		data, _ := json.Marshal(tools)
		v := string(data)
		toolsJSON = &v
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO snapshots (id, idea_id, label, tools, created_at)
		 VALUES ($1, $2, $3, $4::jsonb, $5)`,
		snap.ID, ideaID, label, toolsJSON, now.UnixMilli())
	if err != nil {
		return mica.Snapshot{}, fmt.Errorf("postgres: create snapshot: %w", err)
	}
	return snap, nil
}

// ListSnapshots returns an idea's snapshots, newest first.
func (s *Store) ListSnapshots(ctx context.Context, ideaID string) ([]mica.Snapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, idea_id, label, tools, created_at
		 FROM snapshots WHERE idea_id = $1
		 ORDER BY created_at DESC, id DESC`,
		ideaID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []mica.Snapshot
	for rows.Next() {
		var (
			snap      mica.Snapshot
			toolsJSON []byte
			created   int64
		)
		if err := rows.Scan(&snap.ID, &snap.IdeaID, &snap.Label, &toolsJSON, &created); err != nil {
			return nil, fmt.Errorf("postgres: scan snapshot: %w", err)
		}
		if toolsJSON != nil {
			_ = json.Unmarshal(toolsJSON, &snap.Tools)
		}
		snap.CreatedAt = time.UnixMilli(created)
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// Close is a no-op. The caller owns the pool and manages its lifecycle.
func (s *Store) Close() error {
	return nil
}
