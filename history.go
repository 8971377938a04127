package mica

import "fmt"

// HistoryBuilder accumulates an exchange's completed rounds and renders
// them into the exact message sequence the provider requires on replay:
// for every tool round exactly one assistant message (signed thinking
// first, then text and tool_use blocks, in stream order) followed by
// exactly one user message holding that round's tool results tagged by
// tool-use id, in call order.
//
// The builder is the correctness backstop for session loss: whenever the
// runner starts a fresh provider session, Render reconstructs the whole
// exchange from here.
type HistoryBuilder struct {
	prompt string
	items  []historyItem
}

type historyItem struct {
	// exactly one of turn / exchange is set
	turn *Turn

	assistant []ContentBlock
	userText  string
}

// NewHistory starts a history anchored on the opening user prompt.
func NewHistory(prompt string) *HistoryBuilder {
	return &HistoryBuilder{prompt: prompt}
}

// Append records a completed tool round. Unsigned thinking blocks are
// dropped before storage; the provider rejects replays that contain them.
// Tool results are reordered to call order, and the result ids must match
// the turn's tool_use ids exactly.
func (h *HistoryBuilder) Append(turn Turn) error {
	content := dropUnsignedThinking(turn.AssistantContent)

	var callIDs []string
	for _, b := range content {
		if b.Type == BlockToolUse {
			callIDs = append(callIDs, b.ID)
		}
	}

	byID := make(map[string]ContentBlock, len(turn.ToolResults))
	for _, r := range turn.ToolResults {
		if r.Type != BlockToolResult {
			return fmt.Errorf("history: non-result block %q in tool results", r.Type)
		}
		if _, dup := byID[r.ToolUseID]; dup {
			return fmt.Errorf("history: duplicate result for tool call %s", r.ToolUseID)
		}
		byID[r.ToolUseID] = r
	}
	if len(byID) != len(callIDs) {
		return fmt.Errorf("history: %d tool calls but %d results", len(callIDs), len(byID))
	}

	ordered := make([]ContentBlock, 0, len(callIDs))
	for _, id := range callIDs {
		r, ok := byID[id]
		if !ok {
			return fmt.Errorf("history: missing result for tool call %s", id)
		}
		ordered = append(ordered, r)
	}

	h.items = append(h.items, historyItem{turn: &Turn{AssistantContent: content, ToolResults: ordered}})
	return nil
}

// AppendExchange records a fix-round exchange: the assistant content of a
// round that produced no tool calls, followed by a synthesized user
// message. Assistant content holding tool_use blocks is rejected; those
// rounds must go through Append so their results pair up.
func (h *HistoryBuilder) AppendExchange(assistant []ContentBlock, userText string) error {
	content := dropUnsignedThinking(assistant)
	for _, b := range content {
		if b.Type == BlockToolUse {
			return fmt.Errorf("history: tool call %s in exchange content", b.ID)
		}
	}
	if len(content) == 0 {
		// The round may have produced only unsigned thinking. The provider
		// rejects empty assistant content, so keep a placeholder block.
		content = []ContentBlock{TextBlock("")}
	}
	h.items = append(h.items, historyItem{assistant: content, userText: userText})
	return nil
}

// Rounds reports how many rounds have been recorded.
func (h *HistoryBuilder) Rounds() int {
	return len(h.items)
}

// Render produces the full provider message list: the opening prompt, then
// one assistant/user pair per recorded round. The result grows append-only
// across an exchange, so callers may deliver suffixes of successive
// renders to a live session.
func (h *HistoryBuilder) Render() []Message {
	msgs := make([]Message, 0, 1+2*len(h.items))
	msgs = append(msgs, UserMessage(h.prompt))
	for _, it := range h.items {
		if it.turn != nil {
			msgs = append(msgs,
				AssistantMessage(it.turn.AssistantContent...),
				ToolResultsMessage(it.turn.ToolResults...),
			)
			continue
		}
		msgs = append(msgs,
			AssistantMessage(it.assistant...),
			UserMessage(it.userText),
		)
	}
	return msgs
}

// dropUnsignedThinking removes reasoning blocks without a provider
// signature, preserving the order of everything else.
func dropUnsignedThinking(blocks []ContentBlock) []ContentBlock {
	out := make([]ContentBlock, 0, len(blocks))
	for _, b := range blocks {
		if b.Type == BlockThinking && b.Signature == "" {
			continue
		}
		out = append(out, b)
	}
	return out
}
