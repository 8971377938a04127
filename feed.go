package mica

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// maxReportsPerIdea bounds the feed so a crash-looping preview cannot grow
// memory; older reports are dropped first.
const maxReportsPerIdea = 20

// SourceRef locates a runtime report inside the artifact that raised it.
type SourceRef struct {
	File  string `json:"file,omitempty"`
	Line  int    `json:"line,omitempty"`
	Stack string `json:"stack,omitempty"`
}

// RuntimeReport is one runtime error reported by the external preview
// while running agent-authored code.
type RuntimeReport struct {
	Message string
	Source  *SourceRef
	At      time.Time
}

// ErrorFeed collects runtime error reports per idea. Reporting is
// fire-and-forget; the loop polls between rounds and drains the feed when
// it starts a fix round.
type ErrorFeed struct {
	mu      sync.Mutex
	reports map[string][]RuntimeReport
}

// NewErrorFeed creates an empty feed.
func NewErrorFeed() *ErrorFeed {
	return &ErrorFeed{reports: make(map[string][]RuntimeReport)}
}

// Report records one runtime error for the idea.
func (f *ErrorFeed) Report(ideaID, message string, src *SourceRef) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rs := append(f.reports[ideaID], RuntimeReport{Message: message, Source: src, At: time.Now()})
	if len(rs) > maxReportsPerIdea {
		rs = rs[len(rs)-maxReportsPerIdea:]
	}
	f.reports[ideaID] = rs
}

// HasReports reports whether the idea has undrained runtime errors.
func (f *ErrorFeed) HasReports(ideaID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reports[ideaID]) > 0
}

// Clear drops all pending reports for the idea.
func (f *ErrorFeed) Clear(ideaID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.reports, ideaID)
}

// FormatForAgent renders the pending reports as the corrective user
// message for a fix round. Returns "" when nothing is pending.
func (f *ErrorFeed) FormatForAgent(ideaID string) string {
	f.mu.Lock()
	rs := f.reports[ideaID]
	f.mu.Unlock()
	if len(rs) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "The generated app raised %d runtime error(s) in the preview:\n", len(rs))
	for i, r := range rs {
		fmt.Fprintf(&b, "%d. %s", i+1, r.Message)
		if r.Source != nil && r.Source.File != "" {
			fmt.Fprintf(&b, " (%s", r.Source.File)
			if r.Source.Line > 0 {
				fmt.Fprintf(&b, ":%d", r.Source.Line)
			}
			b.WriteString(")")
		}
		b.WriteString("\n")
		if r.Source != nil && r.Source.Stack != "" {
			b.WriteString(indent(r.Source.Stack, "   "))
			b.WriteString("\n")
		}
	}
	b.WriteString("Fix the underlying code, then stop.")
	return b.String()
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
