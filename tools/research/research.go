// Package research exposes web search, page scraping, and site mapping to
// the agent. Calls go to the external research provider when one is
// configured; scrape_page falls back to a direct readability fetch.
// Everything returned to the model is normalized and screened for
// instruction-like content first.
package research

import (
	"context"
	"encoding/json"
	"strings"

	mica "github.com/avelline/mica"
	"github.com/avelline/mica/internal/textguard"
	"github.com/avelline/mica/research"
)

const maxResultLen = 8000

// Tool routes research calls to the provider and the fallback scraper.
// provider may be nil; search and mapping then report that research is
// unavailable while scrape_page still works through the scraper.
type Tool struct {
	provider research.Provider
	scraper  *research.Scraper
}

// New creates a research tool. provider may be nil when no subprocess is
// configured; scraper defaults when nil.
func New(provider research.Provider, scraper *research.Scraper) *Tool {
	if scraper == nil {
		scraper = research.NewScraper()
	}
	return &Tool{provider: provider, scraper: scraper}
}

func (t *Tool) Definitions() []mica.ToolDefinition {
	return []mica.ToolDefinition{
		{
			Name:        "web_search",
			Description: "Search the web. Returns result titles, URLs and snippets.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"query":{"type":"string","description":"Search query"}},"required":["query"]}`),
			StartNotice: "search started",
			DoneNotice:  "results found",
		},
		{
			Name:        "scrape_page",
			Description: "Fetch a web page and return its readable text content.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"url":{"type":"string","description":"Page URL (http or https)"}},"required":["url"]}`),
			StartNotice: "scraping page",
		},
		{
			Name:        "site_map",
			Description: "Map a site's structure: list the URLs reachable from the given page.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"url":{"type":"string","description":"Site root URL"}},"required":["url"]}`),
			StartNotice: "mapping site",
		},
	}
}

func (t *Tool) Execute(ctx context.Context, name string, args json.RawMessage) (mica.ToolResult, error) {
	var params struct {
		Query string `json:"query"`
		URL   string `json:"url"`
	}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &params); err != nil {
			return mica.ToolResult{Error: "invalid args: " + err.Error()}, nil
		}
	}

	switch name {
	case "web_search":
		if strings.TrimSpace(params.Query) == "" {
			return mica.ToolResult{Error: "query is required"}, nil
		}
		if t.provider == nil {
			return mica.ToolResult{Error: "no research provider configured"}, nil
		}
		out, err := t.provider.Call(ctx, "web_search", map[string]any{"query": params.Query})
		if err != nil {
			return mica.ToolResult{Error: err.Error()}, nil
		}
		return screened(out), nil

	case "scrape_page":
		if strings.TrimSpace(params.URL) == "" {
			return mica.ToolResult{Error: "url is required"}, nil
		}
		out, err := t.scrape(ctx, params.URL)
		if err != nil {
			return mica.ToolResult{Error: err.Error()}, nil
		}
		return screened(out), nil

	case "site_map":
		if strings.TrimSpace(params.URL) == "" {
			return mica.ToolResult{Error: "url is required"}, nil
		}
		if t.provider == nil {
			return mica.ToolResult{Error: "no research provider configured"}, nil
		}
		out, err := t.provider.Call(ctx, "site_map", map[string]any{"url": params.URL})
		if err != nil {
			return mica.ToolResult{Error: err.Error()}, nil
		}
		return screened(out), nil

	default:
		return mica.ToolResult{Error: "unknown research tool: " + name}, nil
	}
}

// scrape prefers the provider and falls back to the direct scraper when
// the provider is absent or fails.
func (t *Tool) scrape(ctx context.Context, url string) (string, error) {
	if t.provider != nil {
		out, err := t.provider.Call(ctx, "scrape_page", map[string]any{"url": url})
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return "", err
		}
	}
	return t.scraper.Fetch(ctx, url)
}

// screened normalizes and screens provider output, then bounds its size.
func screened(out string) mica.ToolResult {
	cleaned, _ := textguard.Clean(out)
	if len(cleaned) > maxResultLen {
		cleaned = cleaned[:maxResultLen] + "\n... (truncated)"
	}
	if strings.TrimSpace(cleaned) == "" {
		return mica.ToolResult{Error: "empty result"}
	}
	return mica.ToolResult{Content: cleaned}
}
