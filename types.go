package mica

import (
	"encoding/json"
	"fmt"
)

// BlockType identifies a content block variant.
type BlockType string

const (
	BlockThinking   BlockType = "thinking"
	BlockText       BlockType = "text"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
)

// ContentBlock is one block of a provider message. Exactly one variant's
// fields are populated, selected by Type. It marshals to the provider's
// content-block JSON, so rendered history can be replayed byte-faithfully.
type ContentBlock struct {
	Type BlockType

	// thinking
	Thinking  string
	Signature string

	// text
	Text string

	// tool_use
	ID    string
	Name  string
	Input json.RawMessage

	// tool_result
	ToolUseID string
	Content   string
	IsError   bool
}

// ThinkingBlock builds a reasoning block. Only blocks with a non-empty
// signature survive history storage; the provider rejects replayed
// conversations containing unsigned reasoning.
func ThinkingBlock(text, signature string) ContentBlock {
	return ContentBlock{Type: BlockThinking, Thinking: text, Signature: signature}
}

// TextBlock builds a response text block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// ToolUseBlock builds a tool call block as the assistant emitted it.
func ToolUseBlock(id, name string, input json.RawMessage) ContentBlock {
	return ContentBlock{Type: BlockToolUse, ID: id, Name: name, Input: input}
}

// ToolResultBlock builds a host-side tool result tagged with the id of the
// tool_use block it answers.
func ToolResultBlock(toolUseID, content string, isError bool) ContentBlock {
	return ContentBlock{Type: BlockToolResult, ToolUseID: toolUseID, Content: content, IsError: isError}
}

type thinkingJSON struct {
	Type      BlockType `json:"type"`
	Thinking  string    `json:"thinking"`
	Signature string    `json:"signature,omitempty"`
}

type textJSON struct {
	Type BlockType `json:"type"`
	Text string    `json:"text"`
}

type toolUseJSON struct {
	Type  BlockType       `json:"type"`
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

type toolResultJSON struct {
	Type      BlockType `json:"type"`
	ToolUseID string    `json:"tool_use_id"`
	Content   string    `json:"content"`
	IsError   bool      `json:"is_error,omitempty"`
}

func (b ContentBlock) MarshalJSON() ([]byte, error) {
	switch b.Type {
	case BlockThinking:
		return json.Marshal(thinkingJSON{b.Type, b.Thinking, b.Signature})
	case BlockText:
		return json.Marshal(textJSON{b.Type, b.Text})
	case BlockToolUse:
		in := b.Input
		if len(in) == 0 {
			in = json.RawMessage(`{}`)
		}
		return json.Marshal(toolUseJSON{b.Type, b.ID, b.Name, in})
	case BlockToolResult:
		return json.Marshal(toolResultJSON{b.Type, b.ToolUseID, b.Content, b.IsError})
	default:
		return nil, fmt.Errorf("marshal content block: unknown type %q", b.Type)
	}
}

func (b *ContentBlock) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type      BlockType       `json:"type"`
		Thinking  string          `json:"thinking"`
		Signature string          `json:"signature"`
		Text      string          `json:"text"`
		ID        string          `json:"id"`
		Name      string          `json:"name"`
		Input     json.RawMessage `json:"input"`
		ToolUseID string          `json:"tool_use_id"`
		Content   string          `json:"content"`
		IsError   bool            `json:"is_error"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*b = ContentBlock{
		Type:      raw.Type,
		Thinking:  raw.Thinking,
		Signature: raw.Signature,
		Text:      raw.Text,
		ID:        raw.ID,
		Name:      raw.Name,
		Input:     raw.Input,
		ToolUseID: raw.ToolUseID,
		Content:   raw.Content,
		IsError:   raw.IsError,
	}
	return nil
}

// Message is one provider conversation message.
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// UserMessage builds a user message with a single text block.
func UserMessage(text string) Message {
	return Message{Role: "user", Content: []ContentBlock{TextBlock(text)}}
}

// AssistantMessage builds an assistant message from content blocks.
func AssistantMessage(blocks ...ContentBlock) Message {
	return Message{Role: "assistant", Content: blocks}
}

// ToolResultsMessage builds the user message that answers a round's tool
// calls. Results must appear in the order the calls were made.
func ToolResultsMessage(results ...ContentBlock) Message {
	return Message{Role: "user", Content: results}
}

// ToolCall is a completed tool invocation extracted from a round.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// Turn is one completed loop round: the assistant content that streamed
// and the host-side results for every tool call in it.
type Turn struct {
	AssistantContent []ContentBlock
	ToolResults      []ContentBlock
}

// RoundResult is the accumulated outcome of one provider round.
type RoundResult struct {
	StopReason        StopReason
	ToolCalls         []ToolCall
	AssistantContent  []ContentBlock
	Text              string
	Thinking          string
	ThinkingSignature string
	Usage             Usage
}
