// Package note lets the agent propose notes for the idea's workspace.
// Proposals stay pending until the user accepts them; the agent never
// accepts its own notes.
package note

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mica "github.com/avelline/mica"
	"github.com/avelline/mica/internal/mdtext"
)

const excerptLen = 160

// Tool proposes and lists workspace notes.
type Tool struct {
	store mica.Store
}

// New creates a note tool over the store.
func New(store mica.Store) *Tool {
	return &Tool{store: store}
}

func (t *Tool) Definitions() []mica.ToolDefinition {
	return []mica.ToolDefinition{
		{
			Name:        "propose_note",
			Description: "Propose a note capturing an insight about the idea. The note is written in markdown and shown to the user for acceptance; it is not part of the workspace until accepted.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"content":{"type":"string","description":"Note body in markdown. The first heading becomes the title unless one is given."},"title":{"type":"string","description":"Optional explicit title"}},"required":["content"]}`),
			DoneNotice:  "note proposed",
		},
		{
			Name:        "list_notes",
			Description: "List the idea's notes with their acceptance status. Check before proposing to avoid duplicates.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{}}`),
		},
	}
}

func (t *Tool) Execute(ctx context.Context, name string, args json.RawMessage) (mica.ToolResult, error) {
	ideaID := mica.IdeaIDFromContext(ctx)
	if ideaID == "" {
		return mica.ToolResult{Error: "no idea in scope"}, nil
	}

	switch name {
	case "propose_note":
		return t.propose(ctx, ideaID, args)
	case "list_notes":
		return t.list(ctx, ideaID)
	default:
		return mica.ToolResult{Error: "unknown note tool: " + name}, nil
	}
}

func (t *Tool) propose(ctx context.Context, ideaID string, args json.RawMessage) (mica.ToolResult, error) {
	var params struct {
		Content string `json:"content"`
		Title   string `json:"title"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return mica.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}
	if strings.TrimSpace(params.Content) == "" {
		return mica.ToolResult{Error: "content is required"}, nil
	}

	title := strings.TrimSpace(params.Title)
	if title == "" {
		title = mdtext.Title(params.Content)
	}
	if title == "" {
		title = "Untitled note"
	}

	n := mica.Note{
		ID:        mica.NewID(),
		IdeaID:    ideaID,
		Title:     title,
		Content:   params.Content,
		Excerpt:   mdtext.Excerpt(params.Content, excerptLen),
		Status:    mica.NoteProposed,
		CreatedAt: time.Now(),
	}
	if err := t.store.PutNote(ctx, n); err != nil {
		return mica.ToolResult{Error: err.Error()}, nil
	}
	return mica.ToolResult{
		Content: fmt.Sprintf("Proposed note %q (id %s). It is pending the user's acceptance.", title, n.ID),
	}, nil
}

func (t *Tool) list(ctx context.Context, ideaID string) (mica.ToolResult, error) {
	notes, err := t.store.ListNotes(ctx, ideaID)
	if err != nil {
		return mica.ToolResult{Error: err.Error()}, nil
	}
	if len(notes) == 0 {
		return mica.ToolResult{Content: "No notes yet."}, nil
	}

	var sb strings.Builder
	for _, n := range notes {
		fmt.Fprintf(&sb, "- [%s] %s (id %s)", n.Status, n.Title, n.ID)
		if n.Excerpt != "" {
			fmt.Fprintf(&sb, ": %s", n.Excerpt)
		}
		sb.WriteByte('\n')
	}
	return mica.ToolResult{Content: strings.TrimRight(sb.String(), "\n")}, nil
}
