package mica

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"
)

// runExchange drives one exchange to its terminal event. It owns the
// event channel: events are forwarded as rounds stream, and exactly one
// terminal event is delivered before the channel closes. The registry
// slot and in-flight session state are released before the terminal
// event, so a caller observing it may start the next exchange
// immediately.
func (e *Engine) runExchange(h *AbortHandle, idea Idea, userMessage string, ch chan<- StreamEvent) {
	ctx := h.Context()

	// safeClose closes the stream exactly once, whatever path exits the
	// loop. The recover guards against a consumer-side close.
	var closeOnce sync.Once
	safeClose := func() {
		closeOnce.Do(func() {
			defer func() { recover() }()
			close(ch)
		})
	}
	defer safeClose()
	defer e.aborts.Release(h)

	send := func(ev StreamEvent) {
		select {
		case ch <- ev:
		case <-ctx.Done():
		}
	}
	// finish releases the exchange, then delivers the terminal event. The
	// send must not hinge on ctx (an aborted exchange still terminates its
	// stream) and must not hang on a consumer that stopped reading.
	finish := func(ev StreamEvent) {
		e.aborts.Release(h)
		select {
		case ch <- ev:
		case <-time.After(terminalSendTimeout):
			e.logger.Warn("terminal event dropped, consumer stopped reading",
				"idea", idea.ID, "event", string(ev.Type))
		}
		safeClose()
	}

	exCtx := WithIdeaID(ctx, idea.ID)
	var exSpan Span
	if e.tracer != nil {
		exCtx, exSpan = e.tracer.Start(exCtx, "engine.exchange",
			StringAttr("idea", idea.ID))
		defer exSpan.End()
	}

	sessionID, err := e.store.GetSessionID(exCtx, idea.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		e.logger.Warn("session lookup failed, starting fresh", "idea", idea.ID, "error", err)
		sessionID = ""
	}

	workDir := ""
	if e.workspace != "" {
		workDir = filepath.Join(e.workspace, idea.ID)
		if err := os.MkdirAll(workDir, 0o755); err != nil {
			e.logger.Warn("workspace dir unavailable", "idea", idea.ID, "error", err)
			workDir = ""
		}
	}

	history := NewHistory(userMessage)
	toolsUsed := make(map[string]struct{})
	var totalUsage Usage
	rounds, fixRounds := 0, 0

	for {
		if h.Aborted() {
			finish(StreamEvent{Type: EventAborted})
			return
		}
		if rounds >= e.maxRounds {
			e.logger.Warn("round cap hit", "idea", idea.ID, "rounds", rounds)
			finish(StreamEvent{Type: EventError, Err: ErrRoundLimit.Error()})
			return
		}

		messages := history.Render()
		delivered := 0
		if sessionID != "" {
			// A live session has seen everything except the newest user
			// message; earlier assistant halves are its own replies.
			delivered = len(messages) - 1
		}

		roundCtx := exCtx
		var roundSpan Span
		if e.tracer != nil {
			roundCtx, roundSpan = e.tracer.Start(exCtx, "engine.round",
				IntAttr("round", rounds),
				BoolAttr("resumed", sessionID != ""))
		}
		endRound := func() {
			if roundSpan != nil {
				roundSpan.End()
			}
		}

		req := Request{
			Messages:     messages,
			Delivered:    delivered,
			SystemPrompt: e.prompt,
			SystemAppend: ideaContext(idea),
			SessionID:    sessionID,
			Tools:        e.tools.Definitions(),
			WorkDir:      workDir,
			OnSessionID: func(sid string) {
				sessionID = sid
				if err := e.store.SetSessionID(roundCtx, idea.ID, sid); err != nil {
					e.logger.Warn("session persist failed", "idea", idea.ID, "error", err)
				}
			},
			OnSessionReset: func() {
				sessionID = ""
				if err := e.store.ClearSessionID(roundCtx, idea.ID); err != nil {
					e.logger.Warn("session clear failed", "idea", idea.ID, "error", err)
				}
			},
		}

		res, err := e.runner.Run(roundCtx, req, send)
		if err != nil {
			if roundSpan != nil {
				roundSpan.Error(err)
			}
			endRound()
			if h.Aborted() {
				finish(StreamEvent{Type: EventAborted})
				return
			}
			var up *ErrUpstream
			if errors.As(err, &up) {
				// Surface the provider's diagnostic verbatim; a generic
				// process error here hides expired credits behind noise.
				e.logger.Error("upstream failure", "idea", idea.ID, "kind", string(up.Kind))
				finish(StreamEvent{Type: EventError, Err: up.Detail})
				return
			}
			e.logger.Error("round failed", "idea", idea.ID, "round", rounds, "error", err)
			finish(StreamEvent{Type: EventError, Err: err.Error()})
			return
		}
		totalUsage.Add(res.Usage)
		rounds++
		send(StreamEvent{Type: EventRoundComplete, StopReason: res.StopReason})
		if roundSpan != nil {
			roundSpan.SetAttr(IntAttr("tool_calls", len(res.ToolCalls)))
		}
		endRound()

		if res.StopReason == StopToolUse && len(res.ToolCalls) > 0 {
			if h.Aborted() {
				finish(StreamEvent{Type: EventAborted})
				return
			}
			results := e.executeTools(exCtx, res.ToolCalls, send, toolsUsed)
			if h.Aborted() {
				finish(StreamEvent{Type: EventAborted})
				return
			}
			turn := Turn{AssistantContent: res.AssistantContent, ToolResults: results}
			if err := history.Append(turn); err != nil {
				e.logger.Error("history append failed", "idea", idea.ID, "error", err)
				finish(StreamEvent{Type: EventError, Err: err.Error()})
				return
			}
			continue
		}

		// No tool calls. Give the preview a beat to run the updated
		// artifact, then check for runtime errors to self-correct.
		select {
		case <-time.After(e.settleDelay):
		case <-ctx.Done():
			finish(StreamEvent{Type: EventAborted})
			return
		}

		if e.feed.HasReports(idea.ID) && fixRounds < e.fixBudget {
			fixMsg := e.feed.FormatForAgent(idea.ID)
			e.feed.Clear(idea.ID)
			if err := history.AppendExchange(res.AssistantContent, fixMsg); err != nil {
				e.logger.Error("history append failed", "idea", idea.ID, "error", err)
				finish(StreamEvent{Type: EventError, Err: err.Error()})
				return
			}
			fixRounds++
			e.logger.Info("fix round", "idea", idea.ID, "attempt", fixRounds)
			send(StreamEvent{Type: EventNotice, Text: "fixing runtime errors"})
			continue
		}

		if len(toolsUsed) > 0 {
			e.snapshot(exCtx, idea.ID, toolsUsed)
		}
		if exSpan != nil {
			exSpan.SetAttr(
				IntAttr("rounds", rounds),
				IntAttr("fix_rounds", fixRounds),
				IntAttr("output_tokens", totalUsage.OutputTokens))
		}
		usage := totalUsage
		finish(StreamEvent{Type: EventDone, StopReason: res.StopReason, Usage: &usage})
		return
	}
}

// executeTools runs a round's calls strictly in order, emitting notices
// and result events as it goes. An abort mid-sequence stops execution;
// the caller discards the partial results and terminates the exchange.
func (e *Engine) executeTools(ctx context.Context, calls []ToolCall, send func(StreamEvent), used map[string]struct{}) []ContentBlock {
	results := make([]ContentBlock, 0, len(calls))
	for _, tc := range calls {
		if ctx.Err() != nil {
			return results
		}

		def, known := e.tools.Definition(tc.Name)
		if known && def.StartNotice != "" {
			send(StreamEvent{Type: EventNotice, Text: def.StartNotice, ToolName: tc.Name})
		}

		toolCtx := ctx
		var span Span
		if e.tracer != nil {
			toolCtx, span = e.tracer.Start(ctx, "engine.tool",
				StringAttr("tool", tc.Name))
		}
		start := time.Now()
		res := e.tools.Execute(toolCtx, tc)
		if span != nil {
			span.SetAttr(BoolAttr("failed", res.Error != ""))
			span.End()
		}

		content := res.Content
		isErr := res.Error != ""
		if isErr {
			content = res.Error
			e.logger.Warn("tool failed", "tool", tc.Name, "error", res.Error)
		} else {
			e.logger.Debug("tool done", "tool", tc.Name, "took", time.Since(start))
			used[tc.Name] = struct{}{}
		}
		send(StreamEvent{Type: EventToolResult, ToolID: tc.ID, ToolName: tc.Name, Text: content, IsError: isErr})
		if known && def.DoneNotice != "" && !isErr {
			send(StreamEvent{Type: EventNotice, Text: def.DoneNotice, ToolName: tc.Name})
		}

		results = append(results, ToolResultBlock(tc.ID, content, isErr))
	}
	return results
}

// ideaContext is the per-idea system prompt appendix.
func ideaContext(idea Idea) string {
	if idea.Title == "" {
		return ""
	}
	return "The current idea is " + strconv.Quote(idea.Title) + "."
}

// snapshot records a best-effort version marker tagged with the tool
// names the exchange used. Failures are logged, never surfaced; losing a
// snapshot must not fail a finished exchange.
func (e *Engine) snapshot(ctx context.Context, ideaID string, used map[string]struct{}) {
	names := make([]string, 0, len(used))
	for n := range used {
		names = append(names, n)
	}
	sort.Strings(names)
	if _, err := e.store.CreateSnapshot(ctx, ideaID, "after exchange", names); err != nil {
		e.logger.Warn("snapshot failed", "idea", ideaID, "error", err)
	}
}
