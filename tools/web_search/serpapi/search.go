package serpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-resty/resty/v2"

	"github.com/mohammad-safakhou/researcher/tools/web_search/models"
)

const defaultEndpoint = "https://serpapi.com/search.json"

// Search queries Google through SerpAPI.
type Search struct {
	apiKey   string
	endpoint string
	country  string
	language string
	client   *resty.Client
}

func New(apiKey string, opts models.Options) *Search {
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	return &Search{
		apiKey:   apiKey,
		endpoint: endpoint,
		country:  opts.Country,
		language: opts.Language,
		client:   models.NewHTTPClient(opts),
	}
}

func (s *Search) Name() string { return "serpapi" }

type organicResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

type response struct {
	Error          string          `json:"error"`
	OrganicResults []organicResult `json:"organic_results"`
}

func (s *Search) Discover(ctx context.Context, q string, k int) ([]models.Result, error) {
	// https://serpapi.com/search-api
	params := map[string]string{
		"engine":  "google",
		"q":       q,
		"api_key": s.apiKey,
		"num":     strconv.Itoa(k),
	}
	if s.country != "" {
		params["gl"] = s.country
	}
	if s.language != "" {
		params["lr"] = s.language
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(s.endpoint)
	if err != nil {
		return nil, fmt.Errorf("serpapi request: %w", err)
	}

	var raw response
	if err := json.Unmarshal(resp.Body(), &raw); err != nil {
		if resp.IsError() {
			return nil, &models.StatusError{Provider: "serpapi", Status: resp.StatusCode(), Body: resp.String()}
		}
		return nil, fmt.Errorf("serpapi decode: %w", err)
	}
	if raw.Error != "" {
		return nil, errors.New("serpapi: " + raw.Error)
	}
	if resp.IsError() {
		return nil, &models.StatusError{Provider: "serpapi", Status: resp.StatusCode(), Body: resp.String()}
	}

	var out []models.Result
	for _, r := range raw.OrganicResults {
		if len(out) >= k {
			break
		}
		if res, ok := models.NewResult(r.Title, r.Link, r.Snippet); ok {
			out = append(out, res)
		}
	}
	return out, nil
}
