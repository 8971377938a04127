package mica

import (
	"fmt"
	"strings"
	"testing"
)

func TestFeedReportAndFormat(t *testing.T) {
	f := NewErrorFeed()
	f.Report("idea-1", "TypeError: deck is undefined", &SourceRef{File: "app.js", Line: 12})
	f.Report("idea-1", "unhandled rejection", nil)

	if !f.HasReports("idea-1") {
		t.Fatal("HasReports = false, want true")
	}

	msg := f.FormatForAgent("idea-1")
	if !strings.HasPrefix(msg, "The generated app raised 2 runtime error(s) in the preview:\n") {
		t.Errorf("header = %q", msg)
	}
	if !strings.Contains(msg, "1. TypeError: deck is undefined (app.js:12)") {
		t.Errorf("first entry missing source ref: %q", msg)
	}
	if !strings.Contains(msg, "2. unhandled rejection\n") {
		t.Errorf("second entry wrong: %q", msg)
	}
	if !strings.HasSuffix(msg, "Fix the underlying code, then stop.") {
		t.Errorf("closing instruction missing: %q", msg)
	}
}

func TestFeedFormatIncludesStack(t *testing.T) {
	f := NewErrorFeed()
	f.Report("idea-1", "boom", &SourceRef{
		File:  "game.js",
		Stack: "at tick (game.js:8)\nat loop (game.js:2)",
	})

	msg := f.FormatForAgent("idea-1")
	if !strings.Contains(msg, "1. boom (game.js)\n") {
		t.Errorf("entry without line number wrong: %q", msg)
	}
	if !strings.Contains(msg, "   at tick (game.js:8)\n   at loop (game.js:2)") {
		t.Errorf("stack not indented: %q", msg)
	}
}

func TestFeedFormatEmpty(t *testing.T) {
	f := NewErrorFeed()
	if got := f.FormatForAgent("idea-1"); got != "" {
		t.Errorf("FormatForAgent on empty feed = %q, want empty", got)
	}
}

func TestFeedClear(t *testing.T) {
	f := NewErrorFeed()
	f.Report("idea-1", "boom", nil)
	f.Clear("idea-1")
	if f.HasReports("idea-1") {
		t.Error("HasReports = true after Clear")
	}
}

func TestFeedIsolatesIdeas(t *testing.T) {
	f := NewErrorFeed()
	f.Report("idea-1", "boom", nil)
	if f.HasReports("idea-2") {
		t.Error("reports leaked across ideas")
	}
	f.Clear("idea-2")
	if !f.HasReports("idea-1") {
		t.Error("clearing one idea dropped another's reports")
	}
}

func TestFeedDropsOldestPastCap(t *testing.T) {
	f := NewErrorFeed()
	for i := 0; i < maxReportsPerIdea+5; i++ {
		f.Report("idea-1", fmt.Sprintf("error %d", i), nil)
	}

	msg := f.FormatForAgent("idea-1")
	if !strings.Contains(msg, fmt.Sprintf("raised %d runtime error(s)", maxReportsPerIdea)) {
		t.Errorf("feed not capped: %q", msg)
	}
	if strings.Contains(msg, "error 4\n") {
		t.Errorf("oldest report survived past the cap: %q", msg)
	}
	if !strings.Contains(msg, fmt.Sprintf("error %d", maxReportsPerIdea+4)) {
		t.Errorf("newest report missing: %q", msg)
	}
}
