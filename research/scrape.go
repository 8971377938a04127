package research

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
)

// Scraper fetches a page directly and extracts its readable text. Used
// when no research provider is configured; search and site mapping have
// no fallback, only page scraping does.
type Scraper struct {
	client *http.Client
}

// NewScraper creates a scraper with a 15-second timeout.
func NewScraper() *Scraper {
	return &Scraper{
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

// Fetch downloads a URL and extracts readable text.
func (s *Scraper) Fetch(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("research: invalid url %q", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("research: invalid url: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; MicaBot/1.0)")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("research: fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("research: HTTP %d from %s", resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20)) // 2MB limit
	if err != nil {
		return "", fmt.Errorf("research: read body: %w", err)
	}

	// Plain text needs no extraction.
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/plain") {
		return strings.TrimSpace(string(body)), nil
	}

	article, err := readability.FromReader(strings.NewReader(string(body)), u)
	if err != nil || strings.TrimSpace(article.TextContent) == "" {
		return "", fmt.Errorf("research: no readable content at %s", rawURL)
	}
	return strings.TrimSpace(article.TextContent), nil
}
