package runner

import (
	"encoding/json"
	"log/slog"
	"sort"
	"strings"

	mica "github.com/avelline/mica"
)

// blockKey identifies an in-progress content block. Scopes stream
// interleaved when a sub-agent runs, and the provider numbers blocks per
// scope, so the index alone is ambiguous.
type blockKey struct {
	scope string
	index int
}

// blockState reassembles one streaming content block.
type blockState struct {
	kind      string
	id        string
	name      string
	text      strings.Builder
	thinking  strings.Builder
	signature strings.Builder
	inputJSON strings.Builder
	started   bool
}

// normalizer translates provider wire events into stream events. Pure
// translation: one event in, zero or more events out, with only
// per-block reassembly state held between calls. Completed blocks are
// also handed to onBlock in stream order, which is how the round
// accumulator sees exactly the provider's block structure.
type normalizer struct {
	emit    func(mica.StreamEvent)
	onBlock func(scope string, b mica.ContentBlock)
	logger  *slog.Logger
	blocks  map[blockKey]*blockState
}

func newNormalizer(emit func(mica.StreamEvent), onBlock func(string, mica.ContentBlock), logger *slog.Logger) *normalizer {
	return &normalizer{
		emit:    emit,
		onBlock: onBlock,
		logger:  logger,
		blocks:  make(map[blockKey]*blockState),
	}
}

// handle consumes one wire event for the given scope.
func (n *normalizer) handle(scope string, ev *wireEvent) {
	if ev == nil {
		return
	}
	key := blockKey{scope: scope, index: ev.Index}

	switch ev.Type {
	case eventBlockStart:
		if ev.ContentBlock == nil {
			n.logger.Warn("block start without content block", "scope", scope, "index", ev.Index)
			return
		}
		bs := &blockState{
			kind: ev.ContentBlock.Type,
			id:   ev.ContentBlock.ID,
			name: stripToolPrefix(ev.ContentBlock.Name),
		}
		n.blocks[key] = bs
		if bs.kind == "tool_use" {
			// Announce the call before any input streams, so consumers can
			// show activity immediately.
			n.emit(mica.StreamEvent{
				Type:     mica.EventToolStart,
				ScopeID:  scope,
				ToolID:   bs.id,
				ToolName: bs.name,
			})
		}

	case eventBlockDelta:
		bs, ok := n.blocks[key]
		if !ok || ev.Delta == nil {
			// Delta for a block we never saw open. Degrade: drop it and
			// keep the stream alive.
			n.logger.Warn("orphan block delta", "scope", scope, "index", ev.Index)
			return
		}
		switch ev.Delta.Type {
		case deltaText:
			bs.text.WriteString(ev.Delta.Text)
			n.emit(mica.StreamEvent{Type: mica.EventText, ScopeID: scope, Text: ev.Delta.Text})
		case deltaThinking:
			if !bs.started {
				bs.started = true
				n.emit(mica.StreamEvent{Type: mica.EventThinkingStart, ScopeID: scope})
			}
			bs.thinking.WriteString(ev.Delta.Thinking)
			n.emit(mica.StreamEvent{Type: mica.EventThinking, ScopeID: scope, Text: ev.Delta.Thinking})
		case deltaSignature:
			// Signatures arrive in fragments and only matter once the block
			// closes; nothing streams out here.
			bs.signature.WriteString(ev.Delta.Signature)
		case deltaInputJSON:
			bs.inputJSON.WriteString(ev.Delta.PartialJSON)
			n.emit(mica.StreamEvent{
				Type:     mica.EventToolInputDelta,
				ScopeID:  scope,
				ToolID:   bs.id,
				ToolName: bs.name,
				Partial:  bs.inputJSON.String(),
			})
		}

	case eventBlockStop:
		bs, ok := n.blocks[key]
		if !ok {
			n.logger.Warn("stop for unknown block", "scope", scope, "index", ev.Index)
			return
		}
		delete(n.blocks, key)
		n.closeBlock(scope, bs)

	case eventMessageStop:
		// The scope's message is complete; anything still open belongs to
		// a stream that ended mid-block. Close what we have and clear only
		// this scope's entries.
		n.finishScope(scope)
	}
}

// closeBlock emits the block's terminal event and hands the assembled
// block to the accumulator.
func (n *normalizer) closeBlock(scope string, bs *blockState) {
	switch bs.kind {
	case "thinking":
		sig := bs.signature.String()
		n.emit(mica.StreamEvent{Type: mica.EventThinkingDone, ScopeID: scope, Signature: sig})
		n.block(scope, mica.ThinkingBlock(bs.thinking.String(), sig))
	case "text":
		n.block(scope, mica.TextBlock(bs.text.String()))
	case "tool_use":
		input := json.RawMessage(bs.inputJSON.String())
		if len(input) == 0 {
			input = json.RawMessage(`{}`)
		} else if !json.Valid(input) {
			// A malformed accumulation must not kill the stream; the tool
			// gets an empty input and fails structurally downstream.
			n.logger.Warn("tool input did not parse, substituting empty object",
				"tool", bs.name, "bytes", bs.inputJSON.Len())
			input = json.RawMessage(`{}`)
		}
		n.emit(mica.StreamEvent{
			Type:     mica.EventToolUse,
			ScopeID:  scope,
			ToolID:   bs.id,
			ToolName: bs.name,
			Input:    input,
		})
		n.block(scope, mica.ToolUseBlock(bs.id, bs.name, input))
	}
}

func (n *normalizer) block(scope string, b mica.ContentBlock) {
	if n.onBlock != nil {
		n.onBlock(scope, b)
	}
}

// finishScope closes any blocks still open in the scope and drops their
// state. Other scopes' entries are untouched; a root completion must not
// discard a sub-agent still streaming.
func (n *normalizer) finishScope(scope string) {
	var keys []blockKey
	for key := range n.blocks {
		if key.scope == scope {
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].index < keys[j].index })
	for _, key := range keys {
		bs := n.blocks[key]
		delete(n.blocks, key)
		n.closeBlock(scope, bs)
	}
}

// open reports how many blocks are mid-stream across all scopes.
func (n *normalizer) open() int {
	return len(n.blocks)
}

// collector builds the round result from completed root-scope blocks.
// Sub-agent scopes stream to the consumer but never enter the round
// result; only the root conversation continues into history.
type collector struct {
	result mica.RoundResult
}

func (c *collector) add(scope string, b mica.ContentBlock) {
	if scope != scopeRoot {
		return
	}
	c.result.AssistantContent = append(c.result.AssistantContent, b)
	switch b.Type {
	case mica.BlockText:
		c.result.Text += b.Text
	case mica.BlockThinking:
		c.result.Thinking += b.Thinking
		if b.Signature != "" {
			c.result.ThinkingSignature = b.Signature
		}
	case mica.BlockToolUse:
		c.result.ToolCalls = append(c.result.ToolCalls, mica.ToolCall{
			ID:    b.ID,
			Name:  b.Name,
			Input: b.Input,
		})
	}
}
