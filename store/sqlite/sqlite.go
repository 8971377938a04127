// Package sqlite implements mica.Store using pure-Go SQLite.
// Zero CGO required.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mica "github.com/avelline/mica"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// StoreOption configures a SQLite Store.
type StoreOption func(*Store)

// WithLogger sets a structured logger for the store.
// When set, the store emits debug logs for mutations and multi-row reads
// including timing and key parameters. If not set, no logs are emitted.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// Store implements mica.Store backed by a local SQLite file.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ mica.Store = (*Store)(nil)

// nopLogger is a logger that discards all output.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// New creates a Store using a local SQLite file at dbPath.
// It opens a single shared connection pool with SetMaxOpenConns(1) so that
// all goroutines serialize through one connection, eliminating SQLITE_BUSY
// errors caused by concurrent writers opening independent connections.
func New(dbPath string, opts ...StoreOption) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: nopLogger}
	for _, o := range opts {
		o(s)
	}
	s.logger.Debug("sqlite: store opened", "path", dbPath)
	return s
}

// Init creates all required tables.
func (s *Store) Init(ctx context.Context) error {
	start := time.Now()
	s.logger.Debug("sqlite: init started")
	tables := []string{
		`CREATE TABLE IF NOT EXISTS ideas (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			session_id TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS notes (
			id TEXT PRIMARY KEY,
			idea_id TEXT NOT NULL,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			excerpt TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			idea_id TEXT NOT NULL,
			name TEXT NOT NULL,
			content TEXT NOT NULL,
			content_type TEXT NOT NULL DEFAULT '',
			updated_at INTEGER NOT NULL,
			UNIQUE(idea_id, name)
		)`,
		`CREATE TABLE IF NOT EXISTS graph_nodes (
			id TEXT PRIMARY KEY,
			idea_id TEXT NOT NULL,
			label TEXT NOT NULL,
			kind TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS graph_edges (
			id TEXT PRIMARY KEY,
			idea_id TEXT NOT NULL,
			from_id TEXT NOT NULL,
			to_id TEXT NOT NULL,
			relation TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			UNIQUE(idea_id, from_id, to_id, relation)
		)`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			id TEXT PRIMARY KEY,
			idea_id TEXT NOT NULL,
			label TEXT NOT NULL,
			tools TEXT,
			created_at INTEGER NOT NULL
		)`,
	}

	for _, ddl := range tables {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	// Migrations (best-effort, silent fail if already applied)
	_, _ = s.db.ExecContext(ctx, "ALTER TABLE notes ADD COLUMN excerpt TEXT NOT NULL DEFAULT ''")
	_, _ = s.db.ExecContext(ctx, "ALTER TABLE documents ADD COLUMN content_type TEXT NOT NULL DEFAULT ''")

	// Indexes on frequently queried columns.
	_, _ = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_notes_idea ON notes(idea_id)`)
	_, _ = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_documents_idea ON documents(idea_id)`)
	_, _ = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_graph_nodes_idea ON graph_nodes(idea_id)`)
	_, _ = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_graph_edges_idea ON graph_edges(idea_id)`)
	_, _ = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_snapshots_idea ON snapshots(idea_id)`)

	s.logger.Info("sqlite: init completed", "duration", time.Since(start))
	return nil
}

// --- Ideas ---

// CreateIdea inserts a new idea and returns it with id and timestamps set.
func (s *Store) CreateIdea(ctx context.Context, title string) (mica.Idea, error) {
	start := time.Now()
	now := time.Now()
	idea := mica.Idea{
		ID:        mica.NewID(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.logger.Debug("sqlite: create idea", "id", idea.ID, "title", title)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ideas (id, title, session_id, created_at, updated_at)
		 VALUES (?, ?, '', ?, ?)`,
		idea.ID, idea.Title, idea.CreatedAt.UnixMilli(), idea.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		s.logger.Error("sqlite: create idea failed", "id", idea.ID, "error", err, "duration", time.Since(start))
		return mica.Idea{}, fmt.Errorf("create idea: %w", err)
	}
	s.logger.Debug("sqlite: create idea ok", "id", idea.ID, "duration", time.Since(start))
	return idea, nil
}

// GetIdea returns an idea by ID.
func (s *Store) GetIdea(ctx context.Context, id string) (mica.Idea, error) {
	var (
		idea    mica.Idea
		created int64
		updated int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, session_id, created_at, updated_at FROM ideas WHERE id = ?`, id,
	).Scan(&idea.ID, &idea.Title, &idea.SessionID, &created, &updated)
	if err == sql.ErrNoRows {
		return mica.Idea{}, mica.ErrNotFound
	}
	if err != nil {
		s.logger.Error("sqlite: get idea failed", "id", id, "error", err)
		return mica.Idea{}, fmt.Errorf("get idea: %w", err)
	}
	idea.CreatedAt = time.UnixMilli(created)
	idea.UpdatedAt = time.UnixMilli(updated)
	return idea, nil
}

// ListIdeas returns all ideas, most recently updated first.
func (s *Store) ListIdeas(ctx context.Context) ([]mica.Idea, error) {
	start := time.Now()
	s.logger.Debug("sqlite: list ideas")

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, session_id, created_at, updated_at
		 FROM ideas ORDER BY updated_at DESC, id DESC`)
	if err != nil {
		s.logger.Error("sqlite: list ideas failed", "error", err)
		return nil, fmt.Errorf("list ideas: %w", err)
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
			return nil, fmt.Errorf("scan idea: %w", err)
		}
		idea.CreatedAt = time.UnixMilli(created)
		idea.UpdatedAt = time.UnixMilli(updated)
		ideas = append(ideas, idea)
	}
	s.logger.Debug("sqlite: list ideas ok", "count", len(ideas), "duration", time.Since(start))
	return ideas, rows.Err()
}

// --- Provider sessions ---

// GetSessionID returns the idea's live provider session id, empty when none.
func (s *Store) GetSessionID(ctx context.Context, ideaID string) (string, error) {
	var sid string
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id FROM ideas WHERE id = ?`, ideaID).Scan(&sid)
	if err == sql.ErrNoRows {
		return "", mica.ErrNotFound
	}
	if err != nil {
		s.logger.Error("sqlite: get session id failed", "idea_id", ideaID, "error", err)
		return "", fmt.Errorf("get session id: %w", err)
	}
	return sid, nil
}

// SetSessionID records a confirmed provider session for the idea.
func (s *Store) SetSessionID(ctx context.Context, ideaID, sessionID string) error {
	s.logger.Debug("sqlite: set session id", "idea_id", ideaID)

	res, err := s.db.ExecContext(ctx,
		`UPDATE ideas SET session_id = ?, updated_at = ? WHERE id = ?`,
		sessionID, time.Now().UnixMilli(), ideaID)
	if err != nil {
		s.logger.Error("sqlite: set session id failed", "idea_id", ideaID, "error", err)
		return fmt.Errorf("set session id: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return mica.ErrNotFound
	}
	return nil
}

// ClearSessionID drops the idea's provider session, forcing the next
// exchange to start fresh.
func (s *Store) ClearSessionID(ctx context.Context, ideaID string) error {
	s.logger.Debug("sqlite: clear session id", "idea_id", ideaID)

	res, err := s.db.ExecContext(ctx,
		`UPDATE ideas SET session_id = '', updated_at = ? WHERE id = ?`,
		time.Now().UnixMilli(), ideaID)
	if err != nil {
		s.logger.Error("sqlite: clear session id failed", "idea_id", ideaID, "error", err)
		return fmt.Errorf("clear session id: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return mica.ErrNotFound
	}
	return nil
}

// --- Notes ---

// PutNote inserts or replaces a note.
func (s *Store) PutNote(ctx context.Context, n mica.Note) error {
	start := time.Now()
	s.logger.Debug("sqlite: put note", "id", n.ID, "idea_id", n.IdeaID, "status", n.Status)

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO notes (id, idea_id, title, content, excerpt, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.IdeaID, n.Title, n.Content, n.Excerpt, string(n.Status), n.CreatedAt.UnixMilli(),
	)
	if err != nil {
		s.logger.Error("sqlite: put note failed", "id", n.ID, "error", err, "duration", time.Since(start))
		return fmt.Errorf("put note: %w", err)
	}
	s.logger.Debug("sqlite: put note ok", "id", n.ID, "duration", time.Since(start))
	return nil
}

// GetNote returns a note by ID.
func (s *Store) GetNote(ctx context.Context, id string) (mica.Note, error) {
	var (
		n       mica.Note
		status  string
		created int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, idea_id, title, content, excerpt, status, created_at FROM notes WHERE id = ?`, id,
	).Scan(&n.ID, &n.IdeaID, &n.Title, &n.Content, &n.Excerpt, &status, &created)
	if err == sql.ErrNoRows {
		return mica.Note{}, mica.ErrNotFound
	}
	if err != nil {
		s.logger.Error("sqlite: get note failed", "id", id, "error", err)
		return mica.Note{}, fmt.Errorf("get note: %w", err)
	}
	n.Status = mica.NoteStatus(status)
	n.CreatedAt = time.UnixMilli(created)
	return n, nil
}

// ListNotes returns an idea's notes, oldest first.
func (s *Store) ListNotes(ctx context.Context, ideaID string) ([]mica.Note, error) {
	start := time.Now()
	s.logger.Debug("sqlite: list notes", "idea_id", ideaID)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, idea_id, title, content, excerpt, status, created_at
		 FROM notes WHERE idea_id = ?
		 ORDER BY created_at, id`, ideaID)
	if err != nil {
		s.logger.Error("sqlite: list notes failed", "idea_id", ideaID, "error", err)
		return nil, fmt.Errorf("list notes: %w", err)
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
			return nil, fmt.Errorf("scan note: %w", err)
		}
		n.Status = mica.NoteStatus(status)
		n.CreatedAt = time.UnixMilli(created)
		notes = append(notes, n)
	}
	s.logger.Debug("sqlite: list notes ok", "idea_id", ideaID, "count", len(notes), "duration", time.Since(start))
	return notes, rows.Err()
}

// --- Documents ---

// PutDocument inserts or replaces a document. Documents are keyed by
// (idea, name), so writing an existing name replaces its content.
func (s *Store) PutDocument(ctx context.Context, d mica.Document) error {
	start := time.Now()
	s.logger.Debug("sqlite: put document", "id", d.ID, "idea_id", d.IdeaID, "name", d.Name, "bytes", len(d.Content))

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO documents (id, idea_id, name, content, content_type, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		d.ID, d.IdeaID, d.Name, d.Content, d.ContentType, d.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		s.logger.Error("sqlite: put document failed", "id", d.ID, "error", err, "duration", time.Since(start))
		return fmt.Errorf("put document: %w", err)
	}
	s.logger.Debug("sqlite: put document ok", "id", d.ID, "duration", time.Since(start))
	return nil
}

// GetDocument returns a document by its name within an idea.
func (s *Store) GetDocument(ctx context.Context, ideaID, name string) (mica.Document, error) {
	var (
		d       mica.Document
		updated int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, idea_id, name, content, content_type, updated_at
		 FROM documents WHERE idea_id = ? AND name = ?`, ideaID, name,
	).Scan(&d.ID, &d.IdeaID, &d.Name, &d.Content, &d.ContentType, &updated)
	if err == sql.ErrNoRows {
		return mica.Document{}, mica.ErrNotFound
	}
	if err != nil {
		s.logger.Error("sqlite: get document failed", "idea_id", ideaID, "name", name, "error", err)
		return mica.Document{}, fmt.Errorf("get document: %w", err)
	}
	d.UpdatedAt = time.UnixMilli(updated)
	return d, nil
}

// ListDocuments returns an idea's documents ordered by name.
func (s *Store) ListDocuments(ctx context.Context, ideaID string) ([]mica.Document, error) {
	start := time.Now()
	s.logger.Debug("sqlite: list documents", "idea_id", ideaID)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, idea_id, name, content, content_type, updated_at
		 FROM documents WHERE idea_id = ? ORDER BY name`, ideaID)
	if err != nil {
		s.logger.Error("sqlite: list documents failed", "idea_id", ideaID, "error", err)
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []mica.Document
	for rows.Next() {
		var (
			d       mica.Document
			updated int64
		)
		if err := rows.Scan(&d.ID, &d.IdeaID, &d.Name, &d.Content, &d.ContentType, &updated); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		d.UpdatedAt = time.UnixMilli(updated)
		docs = append(docs, d)
	}
	s.logger.Debug("sqlite: list documents ok", "idea_id", ideaID, "count", len(docs), "duration", time.Since(start))
	return docs, rows.Err()
}

// --- Graph ---

// PutNode inserts or replaces a concept node.
func (s *Store) PutNode(ctx context.Context, n mica.GraphNode) error {
	s.logger.Debug("sqlite: put node", "id", n.ID, "idea_id", n.IdeaID, "label", n.Label)

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO graph_nodes (id, idea_id, label, kind, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		n.ID, n.IdeaID, n.Label, n.Kind, n.CreatedAt.UnixMilli(),
	)
	if err != nil {
		s.logger.Error("sqlite: put node failed", "id", n.ID, "error", err)
		return fmt.Errorf("put node: %w", err)
	}
	return nil
}

// DeleteNode removes a node and every edge touching it.
func (s *Store) DeleteNode(ctx context.Context, ideaID, id string) error {
	start := time.Now()
	s.logger.Debug("sqlite: delete node", "idea_id", ideaID, "id", id)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`DELETE FROM graph_edges WHERE idea_id = ? AND (from_id = ? OR to_id = ?)`, ideaID, id, id)
	if err != nil {
		return fmt.Errorf("delete node edges: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`DELETE FROM graph_nodes WHERE idea_id = ? AND id = ?`, ideaID, id)
	if err != nil {
		return fmt.Errorf("delete node: %w", err)
	}
	n, _ := res.RowsAffected()
	if err := tx.Commit(); err != nil {
		s.logger.Error("sqlite: delete node commit failed", "id", id, "error", err)
		return err
	}
	if n == 0 {
		return mica.ErrNotFound
	}
	s.logger.Debug("sqlite: delete node ok", "id", id, "duration", time.Since(start))
	return nil
}

// PutEdge inserts or replaces an edge between two nodes.
func (s *Store) PutEdge(ctx context.Context, e mica.GraphEdge) error {
	s.logger.Debug("sqlite: put edge", "id", e.ID, "idea_id", e.IdeaID, "from", e.FromID, "to", e.ToID)

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO graph_edges (id, idea_id, from_id, to_id, relation, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.IdeaID, e.FromID, e.ToID, e.Relation, e.CreatedAt.UnixMilli(),
	)
	if err != nil {
		s.logger.Error("sqlite: put edge failed", "id", e.ID, "error", err)
		return fmt.Errorf("put edge: %w", err)
	}
	return nil
}

// GetGraph returns an idea's full concept graph.
func (s *Store) GetGraph(ctx context.Context, ideaID string) ([]mica.GraphNode, []mica.GraphEdge, error) {
	start := time.Now()
	s.logger.Debug("sqlite: get graph", "idea_id", ideaID)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, idea_id, label, kind, created_at
		 FROM graph_nodes WHERE idea_id = ? ORDER BY created_at, id`, ideaID)
	if err != nil {
		s.logger.Error("sqlite: get graph nodes failed", "idea_id", ideaID, "error", err)
		return nil, nil, fmt.Errorf("get graph nodes: %w", err)
	}
	defer rows.Close()

	var nodes []mica.GraphNode
	for rows.Next() {
		var (
			n       mica.GraphNode
			created int64
		)
		if err := rows.Scan(&n.ID, &n.IdeaID, &n.Label, &n.Kind, &created); err != nil {
			return nil, nil, fmt.Errorf("scan graph node: %w", err)
		}
		n.CreatedAt = time.UnixMilli(created)
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate graph nodes: %w", err)
	}

	erows, err := s.db.QueryContext(ctx,
		`SELECT id, idea_id, from_id, to_id, relation, created_at
		 FROM graph_edges WHERE idea_id = ? ORDER BY created_at, id`, ideaID)
	if err != nil {
		s.logger.Error("sqlite: get graph edges failed", "idea_id", ideaID, "error", err)
		return nil, nil, fmt.Errorf("get graph edges: %w", err)
	}
	defer erows.Close()

	var edges []mica.GraphEdge
	for erows.Next() {
		var (
			e       mica.GraphEdge
			created int64
		)
		if err := erows.Scan(&e.ID, &e.IdeaID, &e.FromID, &e.ToID, &e.Relation, &created); err != nil {
			return nil, nil, fmt.Errorf("scan graph edge: %w", err)
		}
		e.CreatedAt = time.UnixMilli(created)
		edges = append(edges, e)
	}
	s.logger.Debug("sqlite: get graph ok", "idea_id", ideaID, "nodes", len(nodes), "edges", len(edges), "duration", time.Since(start))
	return nodes, edges, erows.Err()
}

// --- Snapshots ---

// CreateSnapshot records a version marker for an idea, tagged with the
// tool names the exchange used.
func (s *Store) CreateSnapshot(ctx context.Context, ideaID, label string, tools []string) (mica.Snapshot, error) {
	start := time.Now()
	snap := mica.Snapshot{
		ID:        mica.NewID(),
		IdeaID:    ideaID,
		Label:     label,
		Tools:     tools,
		CreatedAt: time.Now(),
	}
	s.logger.Debug("sqlite: create snapshot", "id", snap.ID, "idea_id", ideaID, "tools", len(tools))

	var toolsJSON *string
	if len(tools) > 0 {
		data, _ := json.Marshal(tools)
		v := string(data)
		toolsJSON = &v
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (id, idea_id, label, tools, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		snap.ID, snap.IdeaID, snap.Label, toolsJSON, snap.CreatedAt.UnixMilli(),
	)
	if err != nil {
		s.logger.Error("sqlite: create snapshot failed", "idea_id", ideaID, "error", err, "duration", time.Since(start))
		return mica.Snapshot{}, fmt.Errorf("create snapshot: %w", err)
	}
	s.logger.Debug("sqlite: create snapshot ok", "id", snap.ID, "duration", time.Since(start))
	return snap, nil
}

// ListSnapshots returns an idea's snapshots, newest first.
func (s *Store) ListSnapshots(ctx context.Context, ideaID string) ([]mica.Snapshot, error) {
	start := time.Now()
	s.logger.Debug("sqlite: list snapshots", "idea_id", ideaID)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, idea_id, label, tools, created_at
		 FROM snapshots WHERE idea_id = ?
		 ORDER BY created_at DESC, id DESC`, ideaID)
	if err != nil {
		s.logger.Error("sqlite: list snapshots failed", "idea_id", ideaID, "error", err)
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []mica.Snapshot
	for rows.Next() {
		var (
			snap      mica.Snapshot
			toolsJSON sql.NullString
			created   int64
		)
		if err := rows.Scan(&snap.ID, &snap.IdeaID, &snap.Label, &toolsJSON, &created); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		if toolsJSON.Valid {
			_ = json.Unmarshal([]byte(toolsJSON.String), &snap.Tools)
		}
		snap.CreatedAt = time.UnixMilli(created)
		snaps = append(snaps, snap)
	}
	s.logger.Debug("sqlite: list snapshots ok", "idea_id", ideaID, "count", len(snaps), "duration", time.Since(start))
	return snaps, rows.Err()
}

// DB returns the underlying *sql.DB for callers that need raw access.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	s.logger.Debug("sqlite: closing store")
	err := s.db.Close()
	if err != nil {
		s.logger.Error("sqlite: close failed", "error", err)
	}
	return err
}
