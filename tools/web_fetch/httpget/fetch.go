package httpget

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/mohammad-safakhou/researcher/internal/passages"
)

var ErrInvalidURL = errors.New("invalid url")

type Options struct {
	Timeout    time.Duration // per attempt
	Retries    int           // total attempts
	RetryDelay time.Duration // fixed pause between attempts
	UserAgent  string
	MaxChars   int // 0 keeps the whole body
}

// Fetch downloads pages with a plain GET, retrying failed attempts after a fixed delay.
type Fetch struct {
	client   *resty.Client
	maxChars int
}

func New(o Options) *Fetch {
	attempts := o.Retries
	if attempts < 1 {
		attempts = 1
	}
	c := resty.New().
		SetTimeout(o.Timeout).
		SetHeader("User-Agent", o.UserAgent).
		SetHeader("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8").
		SetHeader("Accept-Language", "en-US,en;q=0.9").
		SetRetryCount(attempts - 1).
		SetRetryWaitTime(o.RetryDelay).
		SetRetryMaxWaitTime(o.RetryDelay).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.IsError()
		})
	return &Fetch{client: c, maxChars: o.MaxChars}
}

func (f *Fetch) Fetch(ctx context.Context, url string) (string, error) {
	if strings.TrimSpace(url) == "" {
		return "", ErrInvalidURL
	}
	resp, err := f.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("fetch %s: status %d", url, resp.StatusCode())
	}
	return passages.Truncate(resp.String(), f.maxChars), nil
}
