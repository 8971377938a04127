package mica

import "encoding/json"

// StreamEventType identifies the kind of streaming event.
type StreamEventType string

const (
	// EventThinkingStart marks the start of a reasoning block.
	EventThinkingStart StreamEventType = "thinking-start"
	// EventThinking carries an incremental reasoning text chunk.
	EventThinking StreamEventType = "thinking"
	// EventThinkingDone closes a reasoning block; Signature is set when the
	// provider signed the block (unsigned blocks are display-only and never
	// replayed).
	EventThinkingDone StreamEventType = "thinking-done"
	// EventText carries an incremental response text chunk.
	EventText StreamEventType = "text"
	// EventToolStart announces a tool call as soon as its block opens, before
	// any input has streamed. ToolID and ToolName are set.
	EventToolStart StreamEventType = "tool-start"
	// EventToolInputDelta carries the cumulative partial JSON of a tool call's
	// input as it streams. Partial holds everything received so far, so
	// consumers can render progressively without reassembling fragments.
	EventToolInputDelta StreamEventType = "tool-input-delta"
	// EventToolUse carries a completed tool call with its full parsed input.
	EventToolUse StreamEventType = "tool-use"
	// EventToolResult carries the outcome of a host-executed tool call.
	EventToolResult StreamEventType = "tool-result"
	// EventNotice carries a side-effect notification from the tool router
	// ("search started", "note proposed").
	EventNotice StreamEventType = "notice"
	// EventRoundComplete marks the end of one provider round.
	EventRoundComplete StreamEventType = "round-complete"
	// EventDone terminates a successful exchange. StopReason and Usage are set.
	EventDone StreamEventType = "done"
	// EventAborted terminates a cancelled exchange. Cancellation is a
	// first-class outcome, not an error.
	EventAborted StreamEventType = "aborted"
	// EventError terminates a failed exchange. Err holds the message.
	EventError StreamEventType = "error"
)

// StopReason mirrors the provider's reason for ending a round.
type StopReason string

const (
	StopEndTurn   StopReason = "end_turn"
	StopToolUse   StopReason = "tool_use"
	StopMaxTokens StopReason = "max_tokens"
)

// Usage counts tokens consumed by provider rounds.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Add accumulates u2 into u.
func (u *Usage) Add(u2 Usage) {
	u.InputTokens += u2.InputTokens
	u.OutputTokens += u2.OutputTokens
}

// StreamEvent is a typed event emitted during an exchange. Consumers
// receive these on the channel returned by StartExchange. Exactly one
// terminal event (done, aborted, or error) ends every stream.
//
// ScopeID is empty for the root conversation. Events produced inside a
// nested sub-agent carry that agent's scope id; they are forwarded for
// display but never enter root history.
type StreamEvent struct {
	// Type identifies the event kind.
	Type StreamEventType `json:"type"`
	// ScopeID is the nested sub-agent scope, empty for the root conversation.
	ScopeID string `json:"scope_id,omitempty"`
	// Text carries thinking, text, notice, or tool-result content.
	Text string `json:"text,omitempty"`
	// Signature is the provider signature of a completed thinking block.
	Signature string `json:"signature,omitempty"`
	// ToolID and ToolName identify the tool call for tool events.
	ToolID   string `json:"tool_id,omitempty"`
	ToolName string `json:"tool_name,omitempty"`
	// Partial is the cumulative partial JSON input (tool-input-delta only).
	Partial string `json:"partial,omitempty"`
	// Input is the complete parsed tool input (tool-use only).
	Input json.RawMessage `json:"input,omitempty"`
	// IsError marks a failed tool result.
	IsError bool `json:"is_error,omitempty"`
	// StopReason is set on round-complete and done events.
	StopReason StopReason `json:"stop_reason,omitempty"`
	// Usage is set on done events with the exchange total.
	Usage *Usage `json:"usage,omitempty"`
	// Err is the failure message (error events only).
	Err string `json:"error,omitempty"`
}
