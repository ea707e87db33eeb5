package web_fetch

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mohammad-safakhou/researcher/config"
	"github.com/mohammad-safakhou/researcher/tools/web_fetch/chromedp"
	"github.com/mohammad-safakhou/researcher/tools/web_fetch/httpget"
)

const (
	DefaultTimeout = 15 * time.Second
	DefaultRetries = 2
)

// WebFetcher returns the raw HTML of a page.
type WebFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

type FetcherType string

const (
	HTTPFetcherType     FetcherType = "http"
	ChromedpFetcherType FetcherType = "chromedp"
)

var ErrUnsupportedFetcher = errors.New("unsupported fetcher type")

func NewWebFetcher(cfg config.FetchConfig) (WebFetcher, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	retries := cfg.Retries
	if retries <= 0 {
		retries = DefaultRetries
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = config.DefaultUserAgent
	}

	switch FetcherType(strings.ToLower(cfg.Engine)) {
	case HTTPFetcherType, "":
		return httpget.New(httpget.Options{
			Timeout:    timeout,
			Retries:    retries,
			RetryDelay: cfg.RetryDelay,
			UserAgent:  ua,
			MaxChars:   cfg.MaxChars,
		}), nil
	case ChromedpFetcherType:
		return &chromedp.Fetch{Timeout: timeout, UserAgent: ua, MaxChars: cfg.MaxChars}, nil
	default:
		return nil, ErrUnsupportedFetcher
	}
}
