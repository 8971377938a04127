// Package research talks to an external research tool provider over
// JSON-RPC 2.0, newline-delimited on the provider subprocess's stdio
// (initialize handshake, then tools/call per request). A readability
// based Scraper serves as the fallback when no provider is configured.
package research

import (
	"context"
	"encoding/json"
)

// Provider executes research functions (web search, page scraping, site
// mapping). Client implements it over a provider subprocess.
type Provider interface {
	Call(ctx context.Context, tool string, args any) (string, error)
}

// protocolVersion is the protocol revision the client speaks.
const protocolVersion = "2025-03-26"

// request is an outgoing JSON-RPC 2.0 request. A zero ID marks a
// notification; the field is omitted on the wire.
type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// inbound is any message the provider writes: responses to our calls
// carry Result or Error; provider-initiated traffic carries Method.
type inbound struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError is a JSON-RPC 2.0 error object.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// initializeParams is the client's initialize request payload.
type initializeParams struct {
	ProtocolVersion string     `json:"protocolVersion"`
	Capabilities    any        `json:"capabilities"`
	ClientInfo      clientInfo `json:"clientInfo"`
}

type clientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// initializeResult is the provider's response to initialize.
type initializeResult struct {
	ProtocolVersion string     `json:"protocolVersion"`
	ServerInfo      serverInfo `json:"serverInfo"`
}

type serverInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// toolCallParams is the request payload for tools/call.
type toolCallParams struct {
	Name      string `json:"name"`
	Arguments any    `json:"arguments"`
}

// toolCallResult is the response payload for tools/call.
type toolCallResult struct {
	Content []textContent `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

// textContent is a text content block in provider responses.
type textContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}
