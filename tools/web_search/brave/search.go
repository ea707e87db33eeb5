package brave

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/mohammad-safakhou/researcher/tools/web_search/models"
)

const defaultEndpoint = "https://api.search.brave.com/res/v1/web/search"

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
		language: strings.TrimPrefix(opts.Language, "lang_"),
		client:   models.NewHTTPClient(opts),
	}
}

func (s *Search) Name() string { return "brave" }

func (s *Search) Discover(ctx context.Context, q string, k int) ([]models.Result, error) {
	// https://api.search.brave.com/app/documentation/web-search
	params := map[string]string{"q": q, "count": strconv.Itoa(k)}
	if s.country != "" {
		params["country"] = s.country
	}
	if s.language != "" {
		params["search_lang"] = s.language
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("X-Subscription-Token", s.apiKey).
		SetQueryParams(params).
		Get(s.endpoint)
	if err != nil {
		return nil, fmt.Errorf("brave request: %w", err)
	}
	if resp.IsError() {
		return nil, &models.StatusError{Provider: "brave", Status: resp.StatusCode(), Body: resp.String()}
	}

	var raw struct {
		Web struct {
			Results []struct {
				Title   string `json:"title"`
				URL     string `json:"url"`
				Snippet string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.Unmarshal(resp.Body(), &raw); err != nil {
		return nil, fmt.Errorf("brave decode: %w", err)
	}

	var out []models.Result
	for _, r := range raw.Web.Results {
		if len(out) >= k {
			break
		}
		if res, ok := models.NewResult(r.Title, r.URL, r.Snippet); ok {
			out = append(out, res)
		}
	}
	return out, nil
}
