package research

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

const maxMessageSize = 10 << 20 // 10MB max provider message

// Option configures a Client.
type Option func(*clientConfig)

type clientConfig struct {
	timeout time.Duration // per-call wait for the provider's response
	logger  *slog.Logger
}

func defaultClientConfig() clientConfig {
	return clientConfig{
		timeout: 30 * time.Second,
	}
}

// WithCallTimeout sets how long a single call waits for the provider.
// Default 30s.
func WithCallTimeout(d time.Duration) Option {
	return func(c *clientConfig) { c.timeout = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *clientConfig) { c.logger = l }
}

// Client runs a research provider subprocess and calls its tools over
// newline-delimited JSON-RPC. Calls are serialized; the provider process
// lives for the lifetime of the client.
type Client struct {
	bin  string
	args []string
	cfg  clientConfig

	cmd   *exec.Cmd
	stdin io.WriteCloser

	mu     sync.Mutex // serializes calls
	nextID int64
	respCh chan inbound
	done   chan struct{}
}

var _ Provider = (*Client)(nil)

// NewClient creates a client for the provider binary. Call Start before
// the first Call.
func NewClient(bin string, args []string, opts ...Option) *Client {
	cfg := defaultClientConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Client{bin: bin, args: args, cfg: cfg}
}

// Start launches the provider subprocess and performs the initialize
// handshake. The process is killed when ctx is cancelled.
func (c *Client) Start(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, c.bin, c.args...)
	cmd.WaitDelay = 3 * time.Second

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("research: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("research: stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("research: start %s: %w", c.bin, err)
	}
	c.cmd = cmd
	c.attach(stdin, stdout)

	if err := c.handshake(ctx); err != nil {
		stdin.Close()
		_ = cmd.Wait()
		return err
	}
	return nil
}

// attach wires the transport and starts the read loop. Split from Start
// so tests can drive the client over in-memory pipes.
func (c *Client) attach(stdin io.WriteCloser, stdout io.Reader) {
	c.stdin = stdin
	c.respCh = make(chan inbound, 1)
	c.done = make(chan struct{})
	go c.readLoop(stdout)
}

// handshake sends initialize and the initialized notification.
func (c *Client) handshake(ctx context.Context) error {
	raw, err := c.roundTrip(ctx, "initialize", initializeParams{
		ProtocolVersion: protocolVersion,
		Capabilities:    struct{}{},
		ClientInfo:      clientInfo{Name: "mica", Version: "1"},
	})
	if err != nil {
		return err
	}

	var result initializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Errorf("research: initialize result: %w", err)
	}

	if err := c.write(request{JSONRPC: "2.0", Method: "notifications/initialized"}); err != nil {
		return err
	}

	c.log().Info("research provider ready",
		"name", result.ServerInfo.Name,
		"version", result.ServerInfo.Version)
	return nil
}

// Call invokes one provider tool and returns its text content. A
// provider-side tool failure comes back as an error.
func (c *Client) Call(ctx context.Context, tool string, args any) (string, error) {
	raw, err := c.roundTrip(ctx, "tools/call", toolCallParams{Name: tool, Arguments: args})
	if err != nil {
		return "", err
	}

	var result toolCallResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("research: %s result: %w", tool, err)
	}

	var parts []string
	for _, block := range result.Content {
		if block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	text := strings.Join(parts, "\n")

	if result.IsError {
		if text == "" {
			text = "tool failed"
		}
		return "", fmt.Errorf("research: %s: %s", tool, text)
	}
	return text, nil
}

// Close shuts the provider down by closing its stdin and waiting.
func (c *Client) Close() error {
	if c.stdin != nil {
		c.stdin.Close()
	}
	if c.cmd != nil {
		return c.cmd.Wait()
	}
	return nil
}

// roundTrip sends one request and waits for the matching response.
func (c *Client) roundTrip(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if c.stdin == nil {
		return nil, errors.New("research: provider not started")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := c.nextID
	if err := c.write(request{JSONRPC: "2.0", ID: id, Method: method, Params: params}); err != nil {
		return nil, err
	}

	timer := time.NewTimer(c.cfg.timeout)
	defer timer.Stop()
	want := strconv.FormatInt(id, 10)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, fmt.Errorf("research: %s timed out after %s", method, c.cfg.timeout)
		case <-c.done:
			return nil, errors.New("research: provider exited")
		case resp := <-c.respCh:
			if string(resp.ID) != want {
				// response to an earlier call that already timed out
				continue
			}
			if resp.Error != nil {
				return nil, fmt.Errorf("research: %s: %s (code %d)", method, resp.Error.Message, resp.Error.Code)
			}
			return resp.Result, nil
		}
	}
}

func (c *Client) write(req request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("research: marshal request: %w", err)
	}
	data = append(data, '\n')
	if _, err := c.stdin.Write(data); err != nil {
		return fmt.Errorf("research: write request: %w", err)
	}
	return nil
}

// readLoop consumes provider output until EOF. Responses go to respCh;
// provider-initiated requests and notifications are ignored.
func (c *Client) readLoop(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxMessageSize)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var msg inbound
		if err := json.Unmarshal(line, &msg); err != nil {
			c.log().Warn("research provider sent malformed line", "error", err)
			continue
		}
		if msg.Method != "" {
			continue // not a response to us
		}
		if len(msg.ID) == 0 || string(msg.ID) == "null" {
			continue
		}

		select {
		case c.respCh <- msg:
		default:
			c.log().Warn("dropping unmatched provider response", "id", string(msg.ID))
		}
	}
	close(c.done)
}

func (c *Client) log() *slog.Logger {
	if c.cfg.logger != nil {
		return c.cfg.logger
	}
	return nopLogger
}

var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (discardHandler) WithAttrs([]slog.Attr) slog.Handler        { return discardHandler{} }
func (discardHandler) WithGroup(string) slog.Handler             { return discardHandler{} }
