package agent

import (
	"encoding/json"
	"fmt"

	"github.com/mohammad-safakhou/researcher/internal/store"
)

// ToRun converts a result into its history row.
func ToRun(res *Result) (store.Run, error) {
	doc, err := json.Marshal(res)
	if err != nil {
		return store.Run{}, fmt.Errorf("encode result: %w", err)
	}
	return store.Run{
		ID:          res.ID,
		Query:       res.Query,
		Answer:      res.Answer,
		Model:       res.Model,
		Error:       res.Error,
		Result:      doc,
		SourceCount: len(res.Sources),
		Duration:    res.Duration,
		CreatedAt:   res.CreatedAt,
	}, nil
}

// FromRun restores the full result stored with a history row.
func FromRun(run store.Run) (*Result, error) {
	var res Result
	if len(run.Result) > 0 {
		if err := json.Unmarshal(run.Result, &res); err != nil {
			return nil, fmt.Errorf("decode result %s: %w", run.ID, err)
		}
	}
	if res.ID == "" {
		res.ID = run.ID
		res.Query = run.Query
		res.Answer = run.Answer
		res.Model = run.Model
		res.Error = run.Error
		res.Duration = run.Duration
		res.CreatedAt = run.CreatedAt
	}
	return &res, nil
}
