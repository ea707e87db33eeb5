package serper

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/mohammad-safakhou/researcher/tools/web_search/models"
)

const defaultEndpoint = "https://google.serper.dev/search"

type Search struct {
	apiKey   string
	endpoint string
	country  string
	client   *resty.Client
}

func New(apiKey string, opts models.Options) *Search {
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	return &Search{apiKey: apiKey, endpoint: endpoint, country: opts.Country, client: models.NewHTTPClient(opts)}
}

func (s *Search) Name() string { return "serper" }

func (s *Search) Discover(ctx context.Context, q string, k int) ([]models.Result, error) {
	// https://serper.dev/ docs
	payload := map[string]any{"q": q, "num": k}
	if s.country != "" {
		payload["gl"] = s.country
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("X-API-KEY", s.apiKey).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(s.endpoint)
	if err != nil {
		return nil, fmt.Errorf("serper request: %w", err)
	}
	if resp.IsError() {
		return nil, &models.StatusError{Provider: "serper", Status: resp.StatusCode(), Body: resp.String()}
	}

	var raw struct {
		Organic []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"organic"`
	}
	if err := json.Unmarshal(resp.Body(), &raw); err != nil {
		return nil, fmt.Errorf("serper decode: %w", err)
	}

	var out []models.Result
	for _, it := range raw.Organic {
		if len(out) >= k {
			break
		}
		if res, ok := models.NewResult(it.Title, it.Link, it.Snippet); ok {
			out = append(out, res)
		}
	}
	return out, nil
}
