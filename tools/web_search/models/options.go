package models

import (
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Options carries the provider-agnostic knobs shared by every search backend.
type Options struct {
	Endpoint string // overrides the provider's public endpoint
	Timeout  time.Duration
	Country  string // gl
	Language string // lr / search_lang
}

// NewHTTPClient returns the resty client used by the search providers.
// Retries are left to the caller; the breaker in front of providers decides.
func NewHTTPClient(o Options) *resty.Client {
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return resty.New().
		SetHeader("User-Agent", "researcher/1.0").
		SetHeader("Accept", "application/json").
		SetTimeout(timeout).
		SetRetryCount(0)
}

// StatusError is returned when a provider answers with a non-2xx status.
type StatusError struct {
	Provider string
	Status   int
	Body     string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200]
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Provider, e.Status, body)
}
