// Package document manages the idea's named documents. Documents hold
// research writeups and the agent-authored app source that the external
// preview renders; they are keyed by name, so writing an existing name
// replaces its content.
package document

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	mica "github.com/avelline/mica"
	"github.com/avelline/mica/internal/extract"
)

const maxReadLen = 8000

// Tool manages documents for the idea in scope. importRoot bounds
// import_document; when empty, imports are disabled.
type Tool struct {
	store      mica.Store
	importRoot string
}

// New creates a document tool over the store. importRoot is the directory
// import_document may read from; pass "" to disable filesystem imports.
func New(store mica.Store, importRoot string) *Tool {
	return &Tool{store: store, importRoot: importRoot}
}

func (t *Tool) Definitions() []mica.ToolDefinition {
	return []mica.ToolDefinition{
		{
			Name:        "create_document",
			Description: "Create or replace a named document. Use markdown names like 'research.md' for writeups and 'app.html' for the app source shown in the preview. Writing an existing name replaces it.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"name":{"type":"string","description":"Document name, e.g. 'research.md'"},"content":{"type":"string","description":"Full document content"}},"required":["name","content"]}`),
			DoneNotice:  "document saved",
		},
		{
			Name:        "read_document",
			Description: "Read a document by name. Returns the content (truncated to 8000 chars if large).",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"name":{"type":"string","description":"Document name"}},"required":["name"]}`),
		},
		{
			Name:        "update_document",
			Description: "Replace the content of an existing document. Fails if the document does not exist; use create_document for new ones.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"name":{"type":"string","description":"Document name"},"content":{"type":"string","description":"Full replacement content"}},"required":["name","content"]}`),
			DoneNotice:  "document updated",
		},
		{
			Name:        "list_documents",
			Description: "List the idea's documents with their content types and sizes.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{}}`),
		},
		{
			Name:        "import_document",
			Description: "Import a file from the local import directory as a document. Extracts plain text from PDFs; markdown and plain text are stored as-is.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"path":{"type":"string","description":"File path relative to the import directory"}},"required":["path"]}`),
			DoneNotice:  "document imported",
		},
	}
}

func (t *Tool) Execute(ctx context.Context, name string, args json.RawMessage) (mica.ToolResult, error) {
	ideaID := mica.IdeaIDFromContext(ctx)
	if ideaID == "" {
		return mica.ToolResult{Error: "no idea in scope"}, nil
	}

	var params struct {
		Name    string `json:"name"`
		Content string `json:"content"`
		Path    string `json:"path"`
	}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &params); err != nil {
			return mica.ToolResult{Error: "invalid args: " + err.Error()}, nil
		}
	}
	params.Name = strings.TrimSpace(params.Name)

	switch name {
	case "create_document":
		return t.create(ctx, ideaID, params.Name, params.Content)
	case "read_document":
		return t.read(ctx, ideaID, params.Name)
	case "update_document":
		return t.update(ctx, ideaID, params.Name, params.Content)
	case "list_documents":
		return t.list(ctx, ideaID)
	case "import_document":
		return t.importFile(ctx, ideaID, params.Path)
	default:
		return mica.ToolResult{Error: "unknown document tool: " + name}, nil
	}
}

func (t *Tool) create(ctx context.Context, ideaID, name, content string) (mica.ToolResult, error) {
	if name == "" {
		return mica.ToolResult{Error: "name is required"}, nil
	}
	d := mica.Document{
		ID:          mica.NewID(),
		IdeaID:      ideaID,
		Name:        name,
		Content:     content,
		ContentType: contentTypeFor(name),
		UpdatedAt:   time.Now(),
	}
	if err := t.store.PutDocument(ctx, d); err != nil {
		return mica.ToolResult{Error: err.Error()}, nil
	}
	return mica.ToolResult{Content: fmt.Sprintf("Saved document %q (%d bytes).", name, len(content))}, nil
}

func (t *Tool) read(ctx context.Context, ideaID, name string) (mica.ToolResult, error) {
	if name == "" {
		return mica.ToolResult{Error: "name is required"}, nil
	}
	d, err := t.store.GetDocument(ctx, ideaID, name)
	if errors.Is(err, mica.ErrNotFound) {
		return mica.ToolResult{Error: fmt.Sprintf("no document named %q", name)}, nil
	}
	if err != nil {
		return mica.ToolResult{Error: err.Error()}, nil
	}
	content := d.Content
	if len(content) > maxReadLen {
		content = content[:maxReadLen] + "\n... (truncated)"
	}
	return mica.ToolResult{Content: content}, nil
}

func (t *Tool) update(ctx context.Context, ideaID, name, content string) (mica.ToolResult, error) {
	if name == "" {
		return mica.ToolResult{Error: "name is required"}, nil
	}
	existing, err := t.store.GetDocument(ctx, ideaID, name)
	if errors.Is(err, mica.ErrNotFound) {
		return mica.ToolResult{Error: fmt.Sprintf("no document named %q; use create_document first", name)}, nil
	}
	if err != nil {
		return mica.ToolResult{Error: err.Error()}, nil
	}

	existing.Content = content
	existing.UpdatedAt = time.Now()
	if err := t.store.PutDocument(ctx, existing); err != nil {
		return mica.ToolResult{Error: err.Error()}, nil
	}
	return mica.ToolResult{Content: fmt.Sprintf("Updated document %q (%d bytes).", name, len(content))}, nil
}

func (t *Tool) list(ctx context.Context, ideaID string) (mica.ToolResult, error) {
	docs, err := t.store.ListDocuments(ctx, ideaID)
	if err != nil {
		return mica.ToolResult{Error: err.Error()}, nil
	}
	if len(docs) == 0 {
		return mica.ToolResult{Content: "No documents yet."}, nil
	}
	var sb strings.Builder
	for _, d := range docs {
		fmt.Fprintf(&sb, "- %s (%s, %d bytes)\n", d.Name, d.ContentType, len(d.Content))
	}
	return mica.ToolResult{Content: strings.TrimRight(sb.String(), "\n")}, nil
}

func (t *Tool) importFile(ctx context.Context, ideaID, path string) (mica.ToolResult, error) {
	if t.importRoot == "" {
		return mica.ToolResult{Error: "no import directory configured"}, nil
	}
	if path == "" {
		return mica.ToolResult{Error: "path is required"}, nil
	}
	resolved, err := t.resolvePath(path)
	if err != nil {
		return mica.ToolResult{Error: err.Error()}, nil
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return mica.ToolResult{Error: "read error: " + err.Error()}, nil
	}

	docName := filepath.Base(resolved)
	text, contentType, err := extract.Text(data, docName)
	if err != nil {
		return mica.ToolResult{Error: err.Error()}, nil
	}
	d := mica.Document{
		ID:          mica.NewID(),
		IdeaID:      ideaID,
		Name:        docName,
		Content:     text,
		ContentType: contentType,
		UpdatedAt:   time.Now(),
	}
	if err := t.store.PutDocument(ctx, d); err != nil {
		return mica.ToolResult{Error: err.Error()}, nil
	}
	return mica.ToolResult{
		Content: fmt.Sprintf("Imported %s as document %q (%d chars).", path, docName, len(text)),
	}, nil
}

func (t *Tool) resolvePath(path string) (string, error) {
	if filepath.IsAbs(path) {
		return "", fmt.Errorf("absolute paths not allowed: %s", path)
	}
	if strings.Contains(path, "..") {
		return "", fmt.Errorf("path traversal not allowed: %s", path)
	}
	resolved := filepath.Join(t.importRoot, path)
	if !strings.HasPrefix(resolved, t.importRoot) {
		return "", fmt.Errorf("path escapes import directory: %s", path)
	}
	return resolved, nil
}

func contentTypeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".markdown":
		return "text/markdown"
	case ".html", ".htm":
		return "text/html"
	case ".css":
		return "text/css"
	case ".js":
		return "text/javascript"
	case ".json":
		return "application/json"
	case ".csv":
		return "text/csv"
	default:
		return "text/plain"
	}
}
