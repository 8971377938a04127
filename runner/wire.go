// Package runner drives the agent CLI subprocess: one invocation per
// provider round, speaking NDJSON on both pipes. It normalizes the
// provider's streaming wire events into mica.StreamEvent values and
// classifies subprocess exits into the engine's error taxonomy.
package runner

import (
	"encoding/json"
	"strings"

	mica "github.com/avelline/mica"
)

// toolPrefix is the routing prefix under which host tools are advertised
// to the provider. The provider echoes it back in tool_use blocks; the
// normalizer strips it so the router sees bare names.
const toolPrefix = "mcp__ideas__"

// scopeRoot is the scope of the root agent's own events. Sub-agent
// events carry the nested task's identifier instead.
const scopeRoot = ""

// requestEnvelope is the single stdin line handed to the subprocess.
// Messages carries only what the targeted session has not yet seen: the
// full conversation for a fresh session, the newest suffix on resume.
type requestEnvelope struct {
	Type         string         `json:"type"`
	SystemPrompt string         `json:"system_prompt,omitempty"`
	SystemAppend string         `json:"system_append,omitempty"`
	Tools        []wireTool     `json:"tools,omitempty"`
	Messages     []mica.Message `json:"messages"`
}

type wireTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// wireLine is one stdout NDJSON line from the subprocess.
//
//	{"type":"init","session_id":"..."}
//	{"type":"event","scope_id":"...","event":{...}}
//	{"type":"result","subtype":"success","stop_reason":"end_turn","usage":{...}}
type wireLine struct {
	Type      string     `json:"type"`
	SessionID string     `json:"session_id,omitempty"`
	ScopeID   string     `json:"scope_id,omitempty"`
	Event     *wireEvent `json:"event,omitempty"`

	Subtype    string     `json:"subtype,omitempty"`
	StopReason string     `json:"stop_reason,omitempty"`
	Usage      *wireUsage `json:"usage,omitempty"`
	Error      string     `json:"error,omitempty"`
}

const (
	lineInit   = "init"
	lineEvent  = "event"
	lineResult = "result"
)

const (
	resultSuccess = "success"
	resultError   = "error"
)

// wireEvent is a raw provider streaming event, forwarded by the
// subprocess unchanged. Only the kinds below are meaningful; anything
// else is ignored.
type wireEvent struct {
	Type         string     `json:"type"`
	Index        int        `json:"index"`
	ContentBlock *wireBlock `json:"content_block,omitempty"`
	Delta        *wireDelta `json:"delta,omitempty"`
	Usage        *wireUsage `json:"usage,omitempty"`
}

const (
	eventBlockStart  = "content_block_start"
	eventBlockDelta  = "content_block_delta"
	eventBlockStop   = "content_block_stop"
	eventMessageStop = "message_stop"
)

type wireBlock struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

type wireDelta struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	Thinking    string `json:"thinking,omitempty"`
	Signature   string `json:"signature,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
}

const (
	deltaText      = "text_delta"
	deltaThinking  = "thinking_delta"
	deltaSignature = "signature_delta"
	deltaInputJSON = "input_json_delta"
)

type wireUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// stripToolPrefix removes the routing prefix from a provider tool name.
// Names under other prefixes pass through untouched; the router turns
// them into structured unknown-tool failures.
func stripToolPrefix(name string) string {
	return strings.TrimPrefix(name, toolPrefix)
}

// prefixTools renders registry definitions into wire form with the
// routing prefix applied.
func prefixTools(defs []mica.ToolDefinition) []wireTool {
	if len(defs) == 0 {
		return nil
	}
	out := make([]wireTool, len(defs))
	for i, d := range defs {
		out[i] = wireTool{
			Name:        toolPrefix + d.Name,
			Description: d.Description,
			Parameters:  d.Parameters,
		}
	}
	return out
}

// mapStopReason converts a wire stop reason, passing unknown values
// through so new provider reasons degrade visibly instead of breaking.
func mapStopReason(s string) mica.StopReason {
	switch s {
	case "end_turn":
		return mica.StopEndTurn
	case "tool_use":
		return mica.StopToolUse
	case "max_tokens":
		return mica.StopMaxTokens
	default:
		return mica.StopReason(s)
	}
}
