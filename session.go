package mica

import "context"

// Request describes one provider round.
type Request struct {
	// Messages is the full rendered conversation. Delivered counts the
	// leading messages the live session has already seen; a runner resuming
	// SessionID sends only Messages[Delivered:], while a fresh session (or
	// a retry that abandoned one) replays everything.
	Messages  []Message
	Delivered int

	// SystemPrompt is the base instruction set; SystemAppend carries
	// per-idea context added behind it.
	SystemPrompt string
	SystemAppend string

	// SessionID resumes a live provider session. Empty starts a new one.
	SessionID string

	// Tools are advertised to the provider with the routing prefix applied
	// on the wire.
	Tools []ToolDefinition

	// WorkDir is the subprocess working directory. Empty inherits the
	// host's.
	WorkDir string

	// OnSessionID fires exactly once per confirmed session start with the
	// provider's session id. Persist it here; ids from failed starts never
	// surface.
	OnSessionID func(sessionID string)

	// OnSessionReset fires when a transient-crash retry abandons the
	// session named by SessionID. Clear any persisted copy here.
	OnSessionReset func()
}

// SessionRunner drives one agent subprocess invocation per call. Events
// are delivered through emit in stream order, on the runner's goroutine;
// the returned RoundResult is accumulated from root-scope events only.
//
// A transient subprocess crash is retried internally (bounded, fixed
// backoff) with the session cleared, so a retried round re-streams from
// its beginning. Upstream provider failures and cancellation are never
// retried.
type SessionRunner interface {
	Run(ctx context.Context, req Request, emit func(StreamEvent)) (RoundResult, error)
}
