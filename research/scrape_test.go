package research

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const articleHTML = `<!DOCTYPE html>
<html>
<head><title>Spaced Repetition</title></head>
<body>
<nav><a href="/">home</a><a href="/about">about</a></nav>
<article>
<h1>Spaced Repetition</h1>
<p>Spaced repetition is a learning technique where review intervals grow
with each successful recall. It exploits the spacing effect, one of the
most replicated findings in memory research. Flashcard systems schedule
the next review based on how easily the item was remembered.</p>
<p>Modern implementations compute intervals per card rather than per
deck, which keeps easy material out of the way.</p>
</article>
<footer>copyright</footer>
</body>
</html>`

func TestScraperFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(articleHTML))
	}))
	defer srv.Close()

	got, err := NewScraper().Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !strings.Contains(got, "spacing effect") {
		t.Errorf("article content missing: %q", got)
	}
	if strings.Contains(got, "<p>") {
		t.Errorf("html leaked: %q", got)
	}
}

func TestScraperFetchPlainText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("just plain text\n"))
	}))
	defer srv.Close()

	got, err := NewScraper().Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got != "just plain text" {
		t.Errorf("got %q", got)
	}
}

func TestScraperFetchStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewScraper().Fetch(context.Background(), srv.URL)
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("expected 404 error, got %v", err)
	}
}

func TestScraperRejectsBadScheme(t *testing.T) {
	if _, err := NewScraper().Fetch(context.Background(), "file:///etc/passwd"); err == nil {
		t.Fatal("expected error for non-http scheme")
	}
}
