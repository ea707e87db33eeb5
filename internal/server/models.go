package server

import (
	"time"

	"github.com/mohammad-safakhou/researcher/internal/store"
)

// HTTPError is a generic error envelope returned by the server.
type HTTPError struct {
	Error string `json:"error"`
}

// SearchRequest is the body of POST /api/search.
type SearchRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

// RunSummary is one history row without the full result document.
type RunSummary struct {
	ID          string    `json:"id"`
	Query       string    `json:"query"`
	Answer      string    `json:"answer"`
	Model       string    `json:"model,omitempty"`
	Error       string    `json:"error,omitempty"`
	SourceCount int       `json:"source_count"`
	DurationMS  int64     `json:"duration_ms"`
	CreatedAt   time.Time `json:"created_at"`
}

// HistoryResponse lists past runs, newest first.
type HistoryResponse struct {
	Runs   []RunSummary `json:"runs"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

func toSummary(r store.Run) RunSummary {
	return RunSummary{
		ID:          r.ID,
		Query:       r.Query,
		Answer:      r.Answer,
		Model:       r.Model,
		Error:       r.Error,
		SourceCount: r.SourceCount,
		DurationMS:  r.Duration.Milliseconds(),
		CreatedAt:   r.CreatedAt,
	}
}
