package mica

import (
	"errors"
	"fmt"
)

// ErrRunActive is returned by StartExchange when the idea already has a
// live exchange. Callers abort the running exchange first.
var ErrRunActive = errors.New("exchange already active for idea")

// ErrRoundLimit is returned when the loop hits its hard round cap. The cap
// guards against runaway tool loops only; hitting it is always a bug in
// the prompt or the toolset, so it surfaces as an error rather than a
// silent truncation.
var ErrRoundLimit = errors.New("round limit reached")

// UpstreamKind classifies a provider-side API failure.
type UpstreamKind string

const (
	UpstreamQuota      UpstreamKind = "quota"
	UpstreamAuth       UpstreamKind = "auth"
	UpstreamRateLimit  UpstreamKind = "rate_limit"
	UpstreamOverloaded UpstreamKind = "overloaded"
	UpstreamUnknown    UpstreamKind = "unknown"
)

// ErrUpstream is an API-level failure reported by the provider behind the
// agent subprocess. Detail preserves the provider's diagnostic verbatim so
// the user sees the real reason (expired credits, bad key) instead of a
// generic process failure. Never retried.
type ErrUpstream struct {
	Kind   UpstreamKind
	Detail string
}

func (e *ErrUpstream) Error() string {
	return fmt.Sprintf("upstream %s: %s", e.Kind, e.Detail)
}

// ErrProcess is an agent subprocess failure that is not attributable to
// the upstream API: the process exited with an unexpected status.
type ErrProcess struct {
	ExitCode int
	Stderr   string
}

func (e *ErrProcess) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("agent process exited with status %d", e.ExitCode)
	}
	return fmt.Sprintf("agent process exited with status %d: %s", e.ExitCode, e.Stderr)
}
