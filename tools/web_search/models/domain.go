package models

import (
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// RegistrableDomain returns the eTLD+1 of rawURL ("news.bbc.co.uk" -> "bbc.co.uk").
// When the host cannot be resolved against the public suffix list the raw URL is returned.
func RegistrableDomain(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Hostname() == "" {
		return rawURL
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(strings.ToLower(u.Hostname()))
	if err != nil {
		return rawURL
	}
	return domain
}

// NewResult builds a Result, filling the snippet placeholder and domain.
// ok is false for hits without a link.
func NewResult(title, link, snippet string) (Result, bool) {
	link = strings.TrimSpace(link)
	if link == "" {
		return Result{}, false
	}
	if strings.TrimSpace(snippet) == "" {
		snippet = NoSnippet
	}
	return Result{
		Title:   strings.TrimSpace(title),
		URL:     link,
		Snippet: snippet,
		Domain:  RegistrableDomain(link),
	}, true
}
