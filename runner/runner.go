package runner

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	mica "github.com/avelline/mica"
)

// transientExit is the runtime-abort status the agent CLI dies with when
// its runtime hits a recoverable internal fault. Distinct from normal
// completion and from cancellation; the only exit worth retrying.
const transientExit = 134

// Runner launches the agent CLI once per provider round and adapts its
// NDJSON stream to engine events. Implements mica.SessionRunner.
type Runner struct {
	bin string
	cfg runnerConfig
}

// compile-time check
var _ mica.SessionRunner = (*Runner)(nil)

// New creates a Runner that drives the given agent binary (e.g.,
// "mica-agent").
func New(bin string, opts ...Option) *Runner {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return &Runner{bin: bin, cfg: cfg}
}

// Run executes one provider round. A transient crash abandons the session
// and retries fresh after a fixed delay, replaying the full conversation;
// upstream provider failures, hard process failures, and cancellation all
// return without retrying.
func (r *Runner) Run(ctx context.Context, req mica.Request, emit func(mica.StreamEvent)) (mica.RoundResult, error) {
	var lastErr error
	for attempt := 1; attempt <= r.cfg.maxRetries; attempt++ {
		if attempt > 1 {
			// The crashed session may have committed half a message, so
			// resuming it is not safe. Start over and replay everything.
			req.SessionID = ""
			req.Delivered = 0
			if req.OnSessionReset != nil {
				req.OnSessionReset()
			}
			select {
			case <-time.After(r.cfg.retryDelay):
			case <-ctx.Done():
				return mica.RoundResult{}, ctx.Err()
			}
		}

		res, err := r.runOnce(ctx, req, emit)
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return mica.RoundResult{}, err
		}
		var pe *mica.ErrProcess
		if !errors.As(err, &pe) || pe.ExitCode != transientExit {
			return mica.RoundResult{}, err
		}
		lastErr = err
		r.log().Warn("agent process crashed, retrying with a fresh session",
			"attempt", attempt, "exit", pe.ExitCode)
	}
	return mica.RoundResult{}, lastErr
}

// runOnce performs a single subprocess invocation.
func (r *Runner) runOnce(ctx context.Context, req mica.Request, emit func(mica.StreamEvent)) (mica.RoundResult, error) {
	parent := ctx
	if r.cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.timeout)
		defer cancel()
	}

	args := append([]string{}, r.cfg.extraArgs...)
	args = append(args, "--output-format", "ndjson", "--input-format", "ndjson")
	if req.SessionID != "" {
		args = append(args, "--resume", req.SessionID)
	}

	cmd := exec.CommandContext(ctx, r.bin, args...)
	if req.WorkDir != "" {
		cmd.Dir = req.WorkDir
	}
	cmd.Env = sanitizeEnv(os.Environ())
	// Force the pipes shut if a child of the agent outlives it; otherwise a
	// lingering worker process would block the scanner indefinitely.
	cmd.WaitDelay = 3 * time.Second

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return mica.RoundResult{}, fmt.Errorf("runner: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return mica.RoundResult{}, fmt.Errorf("runner: stdout pipe: %w", err)
	}
	sw := &stderrWriter{max: r.cfg.maxOutput}
	cmd.Stderr = sw

	if err := cmd.Start(); err != nil {
		return mica.RoundResult{}, fmt.Errorf("runner: start %s: %w", r.bin, err)
	}

	msgs := req.Messages
	if d := req.Delivered; d > 0 && d <= len(msgs) {
		// A resumed session has already seen the leading messages; send
		// only the suffix that is new to it.
		msgs = msgs[d:]
	}
	envelope := requestEnvelope{
		Type:         "request",
		SystemPrompt: req.SystemPrompt,
		SystemAppend: req.SystemAppend,
		Tools:        prefixTools(req.Tools),
		Messages:     msgs,
	}
	go func() {
		writeJSON(stdin, envelope)
		stdin.Close()
	}()

	var (
		coll    collector
		res     *wireLine
		sawInit bool
	)
	norm := newNormalizer(emit, coll.add, r.log())

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), r.cfg.maxOutput)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var msg wireLine
		if err := json.Unmarshal(line, &msg); err != nil {
			r.log().Warn("skipping malformed agent line", "err", err)
			continue
		}
		switch msg.Type {
		case lineInit:
			// Init lines can arrive redundantly; the first session id wins
			// and later deliveries are suppressed.
			if msg.SessionID != "" && !sawInit {
				sawInit = true
				if req.OnSessionID != nil {
					req.OnSessionID(msg.SessionID)
				}
			}
		case lineEvent:
			norm.handle(msg.ScopeID, msg.Event)
		case lineResult:
			// Root completion. Flush root blocks only; a sub-agent still
			// streaming keeps its state.
			norm.finishScope(scopeRoot)
			cp := msg
			res = &cp
		}
	}
	scanErr := scanner.Err()
	if scanErr != nil {
		// Drain so the child cannot block on a full pipe while we Wait.
		io.Copy(io.Discard, stdout)
	}

	waitErr := cmd.Wait()
	stderr := strings.TrimSpace(sw.String())

	if ctx.Err() != nil {
		if parent.Err() == nil && r.cfg.timeout > 0 {
			return mica.RoundResult{}, fmt.Errorf("runner: round exceeded %s", r.cfg.timeout)
		}
		return mica.RoundResult{}, ctx.Err()
	}

	// A result line reporting an API failure outranks the exit status: the
	// provider's own diagnostic is the actionable one.
	if res != nil && res.Subtype == resultError {
		detail := res.Error
		if detail == "" {
			detail = stderr
		}
		kind, line, ok := detectUpstream(detail)
		if !ok {
			kind, line = mica.UpstreamUnknown, detail
		}
		return mica.RoundResult{}, &mica.ErrUpstream{Kind: kind, Detail: line}
	}

	if waitErr != nil {
		if kind, line, ok := detectUpstream(stderr); ok {
			return mica.RoundResult{}, &mica.ErrUpstream{Kind: kind, Detail: line}
		}
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return mica.RoundResult{}, &mica.ErrProcess{ExitCode: exitErr.ExitCode(), Stderr: tail(stderr, 2048)}
		}
		return mica.RoundResult{}, fmt.Errorf("runner: wait: %w", waitErr)
	}

	if res == nil {
		if scanErr != nil {
			return mica.RoundResult{}, fmt.Errorf("runner: read agent stream: %w", scanErr)
		}
		return mica.RoundResult{}, errors.New("runner: agent stream ended without a result")
	}
	if scanErr != nil {
		// The result already arrived; a ragged tail is not worth failing
		// the round for.
		r.log().Warn("agent stream read error after result", "err", scanErr)
	}

	out := coll.result
	out.StopReason = mapStopReason(res.StopReason)
	if res.Usage != nil {
		out.Usage = mica.Usage{InputTokens: res.Usage.InputTokens, OutputTokens: res.Usage.OutputTokens}
	}
	return out, nil
}

func (r *Runner) log() *slog.Logger {
	if r.cfg.logger != nil {
		return r.cfg.logger
	}
	return nopLogger
}

// envDenied lists inherited variables stripped before spawning.
// Instrumentation flags aimed at the host process crash the agent CLI's
// runtime when they leak into it; everything else passes through.
var envDenied = map[string]bool{
	"NODE_OPTIONS":         true,
	"ELECTRON_RUN_AS_NODE": true,
}

const envDeniedPrefix = "NODE_INSPECT"

func sanitizeEnv(env []string) []string {
	out := make([]string, 0, len(env))
	for _, kv := range env {
		name, _, _ := strings.Cut(kv, "=")
		if envDenied[name] || strings.HasPrefix(name, envDeniedPrefix) {
			continue
		}
		out = append(out, kv)
	}
	return out
}

// upstreamPatterns map recognizable provider failure text to an error
// kind. Matching is case-insensitive substring per diagnostic line.
var upstreamPatterns = []struct {
	needle string
	kind   mica.UpstreamKind
}{
	{"credit balance", mica.UpstreamQuota},
	{"quota exceeded", mica.UpstreamQuota},
	{"invalid x-api-key", mica.UpstreamAuth},
	{"authentication", mica.UpstreamAuth},
	{"rate limit", mica.UpstreamRateLimit},
	{"overloaded", mica.UpstreamOverloaded},
}

// detectUpstream scans a diagnostic blob for a provider API failure and
// returns the matched line verbatim. The last matching line wins; crash
// output ends with the message that mattered.
func detectUpstream(diag string) (mica.UpstreamKind, string, bool) {
	var (
		kind  mica.UpstreamKind
		match string
		found bool
	)
	for _, line := range strings.Split(diag, "\n") {
		lower := strings.ToLower(line)
		for _, p := range upstreamPatterns {
			if strings.Contains(lower, p.needle) {
				kind, match, found = p.kind, strings.TrimSpace(line), true
				break
			}
		}
	}
	return kind, match, found
}

// tail returns at most the last n bytes of s.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}

// writeJSON writes a JSON-encoded message to the writer, followed by a newline.
func writeJSON(w io.Writer, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "%s\n", data)
}

// stderrWriter keeps the newest bytes of stderr up to max. Crash
// diagnostics land at the end of the stream, so the tail is the part
// worth keeping.
type stderrWriter struct {
	buf []byte
	max int
}

func (sw *stderrWriter) Write(p []byte) (int, error) {
	sw.buf = append(sw.buf, p...)
	if len(sw.buf) > sw.max {
		sw.buf = sw.buf[len(sw.buf)-sw.max:]
	}
	return len(p), nil
}

func (sw *stderrWriter) String() string { return string(sw.buf) }

var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (discardHandler) WithAttrs([]slog.Attr) slog.Handler        { return discardHandler{} }
func (discardHandler) WithGroup(string) slog.Handler             { return discardHandler{} }
