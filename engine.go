package mica

import (
	"context"
	"log/slog"
	"time"
)

const (
	// defaultMaxRounds caps provider rounds per exchange. The cap exists to
	// stop runaway tool loops, not to shape normal exchanges.
	defaultMaxRounds = 32
	// defaultFixBudget bounds self-correction rounds per exchange. Counted
	// separately from tool rounds.
	defaultFixBudget = 3
	// defaultSettleDelay is how long the loop waits after a no-tool round
	// before polling the error feed, giving the external preview time to
	// run the updated artifact and report.
	defaultSettleDelay = 1500 * time.Millisecond
	// eventBuffer sizes the per-exchange event channel.
	eventBuffer = 64
	// terminalSendTimeout bounds delivery of the final event to a consumer
	// that stopped reading, so an abandoned exchange cannot leak its
	// goroutine.
	terminalSendTimeout = 5 * time.Second
)

// nopLogger discards all output. Used when WithLogger is not set.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// Engine coordinates exchanges: it owns the loop that alternates provider
// rounds with sequential tool execution, the cancellation registry, the
// runtime error feed, and session persistence.
type Engine struct {
	runner SessionRunner
	store  Store

	tools       *Registry
	feed        *ErrorFeed
	aborts      *AbortRegistry
	tracer      Tracer
	logger      *slog.Logger
	prompt      string
	workspace   string
	maxRounds   int
	fixBudget   int
	settleDelay time.Duration
}

// EngineOption configures NewEngine.
type EngineOption func(*Engine)

// WithTools sets the tool registry routed to the agent.
func WithTools(reg *Registry) EngineOption {
	return func(e *Engine) { e.tools = reg }
}

// WithFeed sets the runtime error feed polled between rounds. A fresh
// feed is created when not set; pass one explicitly to share it with the
// report surface.
func WithFeed(f *ErrorFeed) EngineOption {
	return func(e *Engine) { e.feed = f }
}

// WithAbortRegistry sets the cancellation registry. A fresh registry is
// created when not set.
func WithAbortRegistry(r *AbortRegistry) EngineOption {
	return func(e *Engine) { e.aborts = r }
}

// WithTracer sets the tracer. When set, the engine emits spans for
// exchanges, rounds, and tool calls. Use observer.NewTracer() for an
// OTEL-backed implementation.
func WithTracer(t Tracer) EngineOption {
	return func(e *Engine) { e.tracer = t }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithSystemPrompt sets the base instruction set sent on every round.
func WithSystemPrompt(s string) EngineOption {
	return func(e *Engine) { e.prompt = s }
}

// WithWorkspaceRoot sets the directory under which each idea gets its
// subprocess working directory.
func WithWorkspaceRoot(dir string) EngineOption {
	return func(e *Engine) { e.workspace = dir }
}

// WithMaxRounds overrides the runaway-loop round cap.
func WithMaxRounds(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxRounds = n
		}
	}
}

// WithFixBudget overrides the self-correction round budget.
func WithFixBudget(n int) EngineOption {
	return func(e *Engine) {
		if n >= 0 {
			e.fixBudget = n
		}
	}
}

// WithSettleDelay overrides the wait before polling the error feed.
func WithSettleDelay(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.settleDelay = d
		}
	}
}

// NewEngine creates an engine over a session runner and a store.
func NewEngine(runner SessionRunner, store Store, opts ...EngineOption) *Engine {
	e := &Engine{
		runner:      runner,
		store:       store,
		tools:       NewRegistry(),
		feed:        NewErrorFeed(),
		aborts:      NewAbortRegistry(),
		logger:      nopLogger,
		maxRounds:   defaultMaxRounds,
		fixBudget:   defaultFixBudget,
		settleDelay: defaultSettleDelay,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Feed returns the runtime error feed, for wiring the report surface.
func (e *Engine) Feed() *ErrorFeed { return e.feed }

// StartExchange begins an exchange for the idea and returns its event
// stream. Exactly one terminal event (done, aborted, or error) ends the
// stream, and the channel is closed after it. Returns ErrRunActive while
// the idea already has a live exchange.
func (e *Engine) StartExchange(ctx context.Context, ideaID, userMessage string) (<-chan StreamEvent, error) {
	idea, err := e.store.GetIdea(ctx, ideaID)
	if err != nil {
		return nil, err
	}
	h, err := e.aborts.Acquire(ctx, ideaID)
	if err != nil {
		return nil, err
	}
	ch := make(chan StreamEvent, eventBuffer)
	go e.runExchange(h, idea, userMessage, ch)
	return ch, nil
}

// AbortExchange cancels the idea's live exchange. Idempotent; reports
// whether an exchange was live. The exchange winds down through its
// stream with a terminal aborted event; no further provider call is made.
func (e *Engine) AbortExchange(ideaID string) bool {
	return e.aborts.Abort(ideaID)
}
