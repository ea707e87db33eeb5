package web_search

import (
	"context"
	"errors"
	"strings"

	"github.com/mohammad-safakhou/researcher/config"
	"github.com/mohammad-safakhou/researcher/tools/web_search/brave"
	"github.com/mohammad-safakhou/researcher/tools/web_search/models"
	"github.com/mohammad-safakhou/researcher/tools/web_search/serpapi"
	"github.com/mohammad-safakhou/researcher/tools/web_search/serper"
)

// WebSearcher returns up to k organic results for q, in provider rank order.
type WebSearcher interface {
	Discover(ctx context.Context, q string, k int) ([]models.Result, error)
	Name() string
}

type Provider string

const (
	SerpAPIProvider Provider = "serpapi"
	SerperProvider  Provider = "serper"
	BraveProvider   Provider = "brave"
)

var (
	ErrUnsupportedProvider = errors.New("unsupported search provider")
	ErrMissingAPIKey       = errors.New("search api key not configured")
)

// NewWebSearcher builds the configured provider, wrapped in a circuit breaker when enabled.
func NewWebSearcher(cfg config.SearchConfig) (WebSearcher, error) {
	opts := models.Options{
		Endpoint: cfg.Endpoint,
		Timeout:  cfg.Timeout,
		Country:  cfg.Country,
		Language: cfg.Language,
	}
	apiKey := strings.TrimSpace(cfg.APIKey())
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	var s WebSearcher
	switch Provider(strings.ToLower(cfg.Provider)) {
	case SerpAPIProvider, "":
		s = serpapi.New(apiKey, opts)
	case SerperProvider:
		s = serper.New(apiKey, opts)
	case BraveProvider:
		s = brave.New(apiKey, opts)
	default:
		return nil, ErrUnsupportedProvider
	}

	if cfg.Breaker.Enabled {
		s = NewGuarded(s, cfg.Breaker)
	}
	return s, nil
}
