package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/mohammad-safakhou/researcher/config"
	"github.com/mohammad-safakhou/researcher/internal/cache"
	"github.com/mohammad-safakhou/researcher/internal/helpers"
	"github.com/mohammad-safakhou/researcher/internal/logging"
	"github.com/mohammad-safakhou/researcher/internal/passages"
	"github.com/mohammad-safakhou/researcher/internal/store"
	"github.com/mohammad-safakhou/researcher/internal/telemetry"
	"github.com/mohammad-safakhou/researcher/provider"
	web_fetch "github.com/mohammad-safakhou/researcher/tools/web_fetch"
	"github.com/mohammad-safakhou/researcher/tools/web_search/models"
)

var tracer trace.Tracer = otel.Tracer("researcher/internal/agent")

// ErrEmptyQuery is returned by Run for a blank query.
var ErrEmptyQuery = errors.New("empty query")

const (
	MsgNoSearchResults = "Search failed or returned no results. Please check your search API key and query."
	MsgAllFiltered     = "Search results were found, but all usable links were filtered out (e.g., LinkedIn). Try a different query."
	MsgNoContent       = "Could not extract usable content from any sources. Try a broader search or check scraper logs."

	ErrTextNoSearchResults = "No search results"
	ErrTextNoUsableResults = "No usable results"
	ErrTextNoContent       = "No useful content extracted"
)

type Searcher interface {
	Discover(ctx context.Context, q string, k int) ([]models.Result, error)
}

type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Cache stores finished results as JSON; Get returns cache.ErrMiss when absent.
type Cache interface {
	Get(ctx context.Context, key string, v any) error
	Set(ctx context.Context, key string, v any) error
}

type History interface {
	SaveRun(ctx context.Context, run store.Run) error
}

// Agent runs the research pipeline: search, fetch and summarize each hit on a
// bounded pool, then consolidate whatever survived into one answer.
type Agent struct {
	cfg        *config.Config
	searcher   Searcher
	fetcher    Fetcher
	summarizer *Summarizer
	selector   *passages.Selector
	cache      Cache
	history    History
	extract    func(html, pageURL string) string
	logger     zerolog.Logger
}

type Option func(*Agent)

func WithCache(c Cache) Option { return func(a *Agent) { a.cache = c } }

func WithHistory(h History) Option { return func(a *Agent) { a.history = h } }

type skipCacheKey struct{}

// SkipCache marks ctx so Run ignores cached results. The fresh result still
// overwrites the cache entry.
func SkipCache(ctx context.Context) context.Context {
	return context.WithValue(ctx, skipCacheKey{}, true)
}

func skipCache(ctx context.Context) bool {
	v, _ := ctx.Value(skipCacheKey{}).(bool)
	return v
}

func New(cfg *config.Config, searcher Searcher, fetcher Fetcher, llm provider.Provider, opts ...Option) *Agent {
	a := &Agent{
		cfg:        cfg,
		searcher:   searcher,
		fetcher:    fetcher,
		summarizer: NewSummarizer(llm, cfg.LLM),
		selector:   passages.NewSelector(cfg.Agent.Passages, cfg.Agent.MaxSummaryChars),
		extract:    web_fetch.Extract,
		logger:     logging.Component("agent"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run answers query from at most maxResults search hits (0 uses the configured
// default). Pipeline dead ends come back as a Result with Error set; the
// returned error is reserved for a blank query and cancellation.
func (a *Agent) Run(ctx context.Context, query string, maxResults int) (*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if maxResults <= 0 {
		maxResults = a.cfg.Search.MaxResults
	}
	if a.cfg.Agent.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Agent.RunTimeout)
		defer cancel()
	}

	ctx, span := tracer.Start(ctx, "research.run", trace.WithAttributes(
		attribute.String("research.query", query),
		attribute.Int("research.max_results", maxResults),
	))
	defer span.End()

	started := time.Now()
	key := cache.Key(query, maxResults)
	if a.cache != nil && !skipCache(ctx) {
		var cached Result
		err := a.cache.Get(ctx, key, &cached)
		if err == nil {
			cached.Cached = true
			telemetry.RecordRun("cached", time.Since(started))
			span.SetAttributes(attribute.Bool("research.cached", true))
			a.logger.Info().Str("query", query).Msg("served from cache")
			return &cached, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			a.logger.Warn().Err(err).Msg("cache lookup failed")
		}
	}

	a.logger.Info().Str("query", query).Int("max_results", maxResults).Msg("starting research")
	res, outcome := a.research(ctx, query, maxResults)
	if err := ctx.Err(); err != nil {
		telemetry.RecordRun("canceled", time.Since(started))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	res.ID = uuid.NewString()
	res.Query = query
	res.CreatedAt = time.Now().UTC()
	res.Duration = time.Since(started)
	telemetry.RecordRun(outcome, res.Duration)
	span.SetAttributes(
		attribute.String("research.outcome", outcome),
		attribute.Int("research.sources", len(res.Sources)),
	)
	if res.Error != "" {
		span.SetStatus(codes.Error, res.Error)
	} else {
		span.SetStatus(codes.Ok, "completed")
	}

	a.remember(ctx, key, res)
	a.logger.Info().Str("query", query).Str("outcome", outcome).Int("sources", len(res.Sources)).Dur("took", res.Duration).Msg("research finished")
	return res, nil
}

func (a *Agent) research(ctx context.Context, query string, maxResults int) (*Result, string) {
	hits, err := a.search(ctx, query, maxResults)
	if err != nil {
		a.logger.Error().Err(err).Str("query", query).Msg("search failed")
	}
	if len(hits) == 0 {
		return &Result{Answer: MsgNoSearchResults, Sources: []Source{}, PerSource: []SourceSummary{}, Error: ErrTextNoSearchResults}, "no_results"
	}

	hits = a.filter(hits)
	if len(hits) == 0 {
		return &Result{Answer: MsgAllFiltered, Sources: []Source{}, PerSource: []SourceSummary{}, Error: ErrTextNoUsableResults}, "filtered"
	}

	perSource := a.fanOut(ctx, query, hits)
	telemetry.RecordSourcesKept(len(perSource))
	if len(perSource) == 0 {
		return &Result{Answer: MsgNoContent, Sources: []Source{}, PerSource: []SourceSummary{}, Error: ErrTextNoContent}, "no_content"
	}

	a.logger.Info().Int("sources", len(perSource)).Msg("consolidating source summaries")
	cctx, span := tracer.Start(ctx, "research.consolidate", trace.WithAttributes(attribute.Int("research.sources", len(perSource))))
	consolidated := a.summarizer.Consolidate(cctx, perSource, query)
	if consolidated.Parsed == nil {
		span.SetStatus(codes.Error, "consolidation fallback")
	}
	span.End()

	answer := consolidated.Raw
	if consolidated.Parsed != nil && strings.TrimSpace(consolidated.Parsed.Answer) != "" {
		answer = consolidated.Parsed.Answer
	}
	sources := make([]Source, 0, len(perSource))
	for _, s := range perSource {
		title := s.Title
		if title == "" {
			title = s.Domain
		}
		sources = append(sources, Source{URL: s.URL, Title: title, Domain: s.Domain, Snippet: s.Snippet})
	}
	return &Result{
		Answer:    answer,
		Model:     consolidated.Model,
		Sources:   sources,
		PerSource: perSource,
		Parsed:    consolidated.Parsed,
	}, "ok"
}

func (a *Agent) search(ctx context.Context, query string, k int) ([]models.Result, error) {
	ctx, span := tracer.Start(ctx, "research.search")
	defer span.End()
	hits, err := a.searcher.Discover(ctx, query, k)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("search.hits", len(hits)))
	return hits, nil
}

// filter drops blocked domains and repeated pages, keeping provider order.
func (a *Agent) filter(hits []models.Result) []models.Result {
	seen := make(map[string]struct{}, len(hits))
	out := make([]models.Result, 0, len(hits))
	for _, h := range hits {
		if helpers.IsBlocked(h.URL, a.cfg.Search.BlockedDomains) {
			a.logger.Warn().Str("url", h.URL).Msg("skipping blocked domain")
			continue
		}
		if canon, err := helpers.CanonicalURL(h.URL); err == nil {
			if _, dup := seen[canon]; dup {
				continue
			}
			seen[canon] = struct{}{}
		}
		out = append(out, h)
	}
	return out
}

// fanOut runs fetchAndSummarize for every hit on at most cfg.Agent.Workers
// goroutines. Results are appended in completion order.
func (a *Agent) fanOut(ctx context.Context, query string, hits []models.Result) []SourceSummary {
	workers := a.cfg.Agent.Workers
	if workers <= 0 {
		workers = 5
	}
	var (
		mu  sync.Mutex
		out = make([]SourceSummary, 0, len(hits))
		g   errgroup.Group
	)
	g.SetLimit(workers)

	for _, hit := range hits {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					a.logger.Error().Str("url", hit.URL).Interface("panic", r).Msg("source task panicked")
				}
			}()
			src, err := a.fetchAndSummarize(ctx, query, hit)
			if err != nil {
				a.logger.Warn().Err(err).Str("url", hit.URL).Msg("source dropped")
				return nil
			}
			if src == nil {
				return nil
			}
			mu.Lock()
			out = append(out, *src)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// fetchAndSummarize returns nil without error when the page had too little text.
func (a *Agent) fetchAndSummarize(ctx context.Context, query string, hit models.Result) (*SourceSummary, error) {
	ctx, span := tracer.Start(ctx, "research.source", trace.WithAttributes(attribute.String("source.url", hit.URL)))
	defer span.End()

	html, err := a.fetcher.Fetch(ctx, hit.URL)
	if err != nil {
		telemetry.RecordFetch("error")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("fetch: %w", err)
	}
	if html == "" {
		telemetry.RecordFetch("empty")
		return nil, nil
	}

	text := a.extract(html, hit.URL)
	chars := utf8.RuneCountInString(text)
	if text == "" || chars < a.cfg.Agent.MinTextChars {
		telemetry.RecordFetch("short")
		a.logger.Debug().Str("url", hit.URL).Int("chars", chars).Msg("extracted too little text")
		return nil, nil
	}
	telemetry.RecordFetch("ok")

	snippet := text
	if limit := a.cfg.Agent.SnippetChars; limit > 0 && chars > limit {
		snippet = passages.TruncateRunes(text, limit) + "..."
	}
	domain := hit.Domain
	if domain == "" {
		domain = web_fetch.DomainFromURL(hit.URL)
	}

	selected, err := a.selector.Select(query, text)
	if err != nil {
		a.logger.Warn().Err(err).Str("url", hit.URL).Msg("passage ranking failed")
		selected = passages.Truncate(text, a.cfg.Agent.MaxSummaryChars)
	}
	summary := a.summarizer.SummarizeText(ctx, selected)
	span.SetAttributes(attribute.Int("source.chars", chars))

	return &SourceSummary{
		URL:     hit.URL,
		Domain:  domain,
		Title:   hit.Title,
		Snippet: snippet,
		Summary: summary,
	}, nil
}

// remember writes the result to cache and history. Both are best effort.
func (a *Agent) remember(ctx context.Context, key string, res *Result) {
	if a.cache != nil && res.Error == "" {
		if err := a.cache.Set(ctx, key, res); err != nil {
			a.logger.Warn().Err(err).Msg("cache write failed")
		}
	}
	if a.history == nil {
		return
	}
	run, err := ToRun(res)
	if err != nil {
		a.logger.Warn().Err(err).Msg("encode run failed")
		return
	}
	if err := a.history.SaveRun(ctx, run); err != nil {
		a.logger.Warn().Err(err).Str("id", res.ID).Msg("history write failed")
	}
}
