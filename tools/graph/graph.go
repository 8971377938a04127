// Package graph maintains the idea's dependency graph: labeled concept
// nodes connected by directed, named relations. The host UI renders the
// graph; this tool only mutates and reads it.
package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mica "github.com/avelline/mica"
)

const defaultRelation = "depends on"

// Tool mutates and reads the concept graph for the idea in scope.
type Tool struct {
	store mica.Store
}

// New creates a graph tool over the store.
func New(store mica.Store) *Tool {
	return &Tool{store: store}
}

func (t *Tool) Definitions() []mica.ToolDefinition {
	return []mica.ToolDefinition{
		{
			Name:        "add_concept",
			Description: "Add a concept node to the idea's dependency graph. Returns the node id for linking.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"label":{"type":"string","description":"Short concept name"},"kind":{"type":"string","description":"Optional node kind, e.g. 'feature' or 'question'; defaults to 'concept'"}},"required":["label"]}`),
			DoneNotice:  "graph updated",
		},
		{
			Name:        "link_concepts",
			Description: "Link two existing concepts with a directed relation. Both node ids must come from add_concept or get_graph.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"from_id":{"type":"string","description":"Source node id"},"to_id":{"type":"string","description":"Target node id"},"relation":{"type":"string","description":"Relation label; defaults to 'depends on'"}},"required":["from_id","to_id"]}`),
			DoneNotice:  "graph updated",
		},
		{
			Name:        "remove_concept",
			Description: "Remove a concept node and every edge touching it.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"id":{"type":"string","description":"Node id to remove"}},"required":["id"]}`),
			DoneNotice:  "graph updated",
		},
		{
			Name:        "get_graph",
			Description: "Read the current graph: all nodes with their ids, and all links.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{}}`),
		},
	}
}

func (t *Tool) Execute(ctx context.Context, name string, args json.RawMessage) (mica.ToolResult, error) {
	ideaID := mica.IdeaIDFromContext(ctx)
	if ideaID == "" {
		return mica.ToolResult{Error: "no idea in scope"}, nil
	}

	var params struct {
		Label    string `json:"label"`
		Kind     string `json:"kind"`
		FromID   string `json:"from_id"`
		ToID     string `json:"to_id"`
		Relation string `json:"relation"`
		ID       string `json:"id"`
	}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &params); err != nil {
			return mica.ToolResult{Error: "invalid args: " + err.Error()}, nil
		}
	}

	switch name {
	case "add_concept":
		return t.add(ctx, ideaID, params.Label, params.Kind)
	case "link_concepts":
		return t.link(ctx, ideaID, params.FromID, params.ToID, params.Relation)
	case "remove_concept":
		return t.remove(ctx, ideaID, params.ID)
	case "get_graph":
		return t.read(ctx, ideaID)
	default:
		return mica.ToolResult{Error: "unknown graph tool: " + name}, nil
	}
}

func (t *Tool) add(ctx context.Context, ideaID, label, kind string) (mica.ToolResult, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return mica.ToolResult{Error: "label is required"}, nil
	}
	if kind == "" {
		kind = "concept"
	}
	n := mica.GraphNode{
		ID:        mica.NewID(),
		IdeaID:    ideaID,
		Label:     label,
		Kind:      kind,
		CreatedAt: time.Now(),
	}
	if err := t.store.PutNode(ctx, n); err != nil {
		return mica.ToolResult{Error: err.Error()}, nil
	}
	return mica.ToolResult{Content: fmt.Sprintf("Added %s %q (id %s).", kind, label, n.ID)}, nil
}

func (t *Tool) link(ctx context.Context, ideaID, fromID, toID, relation string) (mica.ToolResult, error) {
	if fromID == "" || toID == "" {
		return mica.ToolResult{Error: "from_id and to_id are required"}, nil
	}
	if relation == "" {
		relation = defaultRelation
	}

	nodes, _, err := t.store.GetGraph(ctx, ideaID)
	if err != nil {
		return mica.ToolResult{Error: err.Error()}, nil
	}
	byID := make(map[string]mica.GraphNode, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}
	from, ok := byID[fromID]
	if !ok {
		return mica.ToolResult{Error: fmt.Sprintf("unknown node id %q", fromID)}, nil
	}
	to, ok := byID[toID]
	if !ok {
		return mica.ToolResult{Error: fmt.Sprintf("unknown node id %q", toID)}, nil
	}

	e := mica.GraphEdge{
		ID:        mica.NewID(),
		IdeaID:    ideaID,
		FromID:    fromID,
		ToID:      toID,
		Relation:  relation,
		CreatedAt: time.Now(),
	}
	if err := t.store.PutEdge(ctx, e); err != nil {
		return mica.ToolResult{Error: err.Error()}, nil
	}
	return mica.ToolResult{
		Content: fmt.Sprintf("Linked %q %s %q.", from.Label, relation, to.Label),
	}, nil
}

func (t *Tool) remove(ctx context.Context, ideaID, id string) (mica.ToolResult, error) {
	if id == "" {
		return mica.ToolResult{Error: "id is required"}, nil
	}
	err := t.store.DeleteNode(ctx, ideaID, id)
	if errors.Is(err, mica.ErrNotFound) {
		return mica.ToolResult{Error: fmt.Sprintf("no concept with id %q", id)}, nil
	}
	if err != nil {
		return mica.ToolResult{Error: err.Error()}, nil
	}
	return mica.ToolResult{Content: fmt.Sprintf("Removed concept %s and its links.", id)}, nil
}

func (t *Tool) read(ctx context.Context, ideaID string) (mica.ToolResult, error) {
	nodes, edges, err := t.store.GetGraph(ctx, ideaID)
	if err != nil {
		return mica.ToolResult{Error: err.Error()}, nil
	}
	if len(nodes) == 0 {
		return mica.ToolResult{Content: "The graph is empty."}, nil
	}

	labels := make(map[string]string, len(nodes))
	var sb strings.Builder
	sb.WriteString("Concepts:\n")
	for _, n := range nodes {
		labels[n.ID] = n.Label
		fmt.Fprintf(&sb, "- %s [%s] (id %s)\n", n.Label, n.Kind, n.ID)
	}
	if len(edges) > 0 {
		sb.WriteString("Links:\n")
		for _, e := range edges {
			fmt.Fprintf(&sb, "- %s %s %s\n", labels[e.FromID], e.Relation, labels[e.ToID])
		}
	}
	return mica.ToolResult{Content: strings.TrimRight(sb.String(), "\n")}, nil
}
