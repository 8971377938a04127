package runner

import (
	"log/slog"
	"time"
)

// Option configures a Runner.
type Option func(*runnerConfig)

type runnerConfig struct {
	timeout    time.Duration
	maxOutput  int
	maxRetries int // total attempts on a transient crash (1 = no retry)
	retryDelay time.Duration
	extraArgs  []string
	logger     *slog.Logger
}

func defaultConfig() runnerConfig {
	return runnerConfig{
		timeout:    0,       // no deadline; a round ends when the provider stops
		maxOutput:  4 << 20, // 4MB
		maxRetries: 3,       // 2 retries
		retryDelay: 500 * time.Millisecond,
	}
}

// WithTimeout sets a hard deadline per subprocess invocation. The zero
// default imposes none: a round that legitimately runs long is not cut
// off, and cancellation comes from the caller's context.
func WithTimeout(d time.Duration) Option {
	return func(c *runnerConfig) { c.timeout = d }
}

// WithMaxOutput sets the maximum size in bytes of a single stream line
// and of the captured stderr tail. Default: 4MB.
func WithMaxOutput(bytes int) Option {
	return func(c *runnerConfig) { c.maxOutput = bytes }
}

// WithMaxRetries sets the total number of attempts when the agent process
// dies with the transient crash status. 1 means no retry. Default: 3
// (two retries).
func WithMaxRetries(n int) Option {
	return func(c *runnerConfig) {
		if n < 1 {
			n = 1
		}
		c.maxRetries = n
	}
}

// WithRetryDelay sets the fixed delay before each retry attempt.
// Default: 500ms.
func WithRetryDelay(d time.Duration) Option {
	return func(c *runnerConfig) { c.retryDelay = d }
}

// WithArgs prepends extra command-line arguments to every invocation,
// before the protocol flags. Use it for model or permission selection
// supported by the agent binary.
func WithArgs(args ...string) Option {
	return func(c *runnerConfig) { c.extraArgs = append(c.extraArgs, args...) }
}

// WithLogger sets the logger for subprocess diagnostics. Default: discard.
func WithLogger(l *slog.Logger) Option {
	return func(c *runnerConfig) { c.logger = l }
}
