package helpers

import (
	"fmt"
	"strings"
)

// Citation is one numbered source behind an answer.
type Citation struct {
	Index   int
	Title   string
	URL     string
	Domain  string
	Snippet string
}

type citationConfig struct {
	maxSnippet int
}

// CitationOption configures citation formatting.
type CitationOption func(*citationConfig)

// WithMaxSnippetLength truncates snippets to n bytes (default 180, 0 hides them).
func WithMaxSnippetLength(n int) CitationOption {
	return func(cfg *citationConfig) {
		if n >= 0 {
			cfg.maxSnippet = n
		}
	}
}

// FormatCitation renders a citation as
// [n] Title (domain) <url> "snippet"
// matching the [n] markers used in consolidated answers.
func FormatCitation(c Citation, opts ...CitationOption) string {
	cfg := citationConfig{maxSnippet: 180}
	for _, opt := range opts {
		opt(&cfg)
	}

	parts := []string{fmt.Sprintf("[%d]", c.Index)}
	title := strings.TrimSpace(c.Title)
	domain := strings.TrimSpace(c.Domain)
	if title == "" {
		title = domain
	}
	if title != "" {
		parts = append(parts, title)
	}
	if domain != "" && domain != title {
		parts = append(parts, "("+domain+")")
	}
	if link := strings.TrimSpace(c.URL); link != "" {
		parts = append(parts, "<"+link+">")
	}
	if snippet := formatSnippet(c.Snippet, cfg.maxSnippet); snippet != "" {
		parts = append(parts, snippet)
	}
	return strings.Join(parts, " ")
}

// FormatCitations numbers citations from 1 when their Index is unset.
func FormatCitations(citations []Citation, opts ...CitationOption) []string {
	if len(citations) == 0 {
		return nil
	}
	out := make([]string, 0, len(citations))
	for i, c := range citations {
		if c.Index == 0 {
			c.Index = i + 1
		}
		out = append(out, FormatCitation(c, opts...))
	}
	return out
}

func formatSnippet(snippet string, limit int) string {
	snippet = strings.Join(strings.Fields(snippet), " ")
	if snippet == "" || limit == 0 {
		return ""
	}
	if len(snippet) > limit {
		snippet = strings.TrimSpace(snippet[:limit]) + "…"
	}
	return `"` + snippet + `"`
}
