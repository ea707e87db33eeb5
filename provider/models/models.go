package models

import (
	"errors"
	"time"
)

// ErrEmptyResponse is returned when a model answers with no text.
var ErrEmptyResponse = errors.New("empty response")

// Request is one single-turn completion.
type Request struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
	JSON        bool   // ask for a JSON object response
	Operation   string // metrics label, e.g. "summarize"
}

// Options configures a concrete provider client.
type Options struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}
