package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mohammad-safakhou/researcher/config"
	"github.com/mohammad-safakhou/researcher/internal/cache"
	"github.com/mohammad-safakhou/researcher/internal/store"
	"github.com/mohammad-safakhou/researcher/provider"
	"github.com/mohammad-safakhou/researcher/tools/web_search/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testConfig() *config.Config {
	return &config.Config{
		LLM: config.LLMConfig{
			Provider:               "gemini",
			SummaryMaxTokens:       250,
			ConsolidateMaxTokens:   600,
			ConsolidateTemperature: 0.1,
		},
		Search: config.SearchConfig{MaxResults: 5, BlockedDomains: []string{"linkedin.com"}},
		Agent: config.AgentConfig{
			Workers:         5,
			MinTextChars:    100,
			SnippetChars:    400,
			MaxSummaryChars: 12000,
		},
	}
}

// page renders an article long enough to pass the minimum text length.
func page(topic string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<html><head><title>%s</title></head><body><article><h1>%s</h1>", topic, topic)
	for i := 0; i < 8; i++ {
		fmt.Fprintf(&b, "<p>Paragraph %d about %s carries enough words, numbers, and commas to read as genuine article prose for extraction.</p>", i, topic)
	}
	b.WriteString("</article></body></html>")
	return b.String()
}

type fakeSearcher struct {
	results []models.Result
	err     error
	calls   atomic.Int32
}

func (f *fakeSearcher) Discover(ctx context.Context, q string, k int) ([]models.Result, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.results) > k {
		return f.results[:k], nil
	}
	return f.results, nil
}

type fakeFetcher struct {
	pages    map[string]string
	panicOn  string
	delay    time.Duration
	delays   map[string]time.Duration
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (string, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if d := f.delay + f.delays[url]; d > 0 {
		time.Sleep(d)
	}
	if url == f.panicOn {
		panic("renderer crashed")
	}
	html, ok := f.pages[url]
	if !ok {
		return "", errors.New("connection refused")
	}
	return html, nil
}

type fakeLLM struct {
	summarizeErr   error
	consolidate    string
	consolidateErr error

	mu   sync.Mutex
	reqs []provider.Request
}

func (f *fakeLLM) Name() string  { return "fake" }
func (f *fakeLLM) Model() string { return "fake-1" }

func (f *fakeLLM) Generate(ctx context.Context, req provider.Request) (string, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	switch req.Operation {
	case "summarize":
		if f.summarizeErr != nil {
			return "", f.summarizeErr
		}
		return "- a key fact", nil
	default:
		return f.consolidate, f.consolidateErr
	}
}

func (f *fakeLLM) requests(op string) []provider.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []provider.Request
	for _, r := range f.reqs {
		if r.Operation == op {
			out = append(out, r)
		}
	}
	return out
}

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache { return &memCache{data: map[string][]byte{}} }

func (c *memCache) Get(ctx context.Context, key string, v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.data[key]
	if !ok {
		return cache.ErrMiss
	}
	return json.Unmarshal(raw, v)
}

func (c *memCache) Set(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = raw
	return nil
}

type memHistory struct {
	mu   sync.Mutex
	runs []store.Run
}

func (h *memHistory) SaveRun(ctx context.Context, run store.Run) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runs = append(h.runs, run)
	return nil
}

const goodConsolidation = `{"answer":"Go 1.22 changed loop variables.","key_points":["Per-iteration variables [1]","Fewer bugs [2]"],"confidence":"High"}`

func TestRunEmptyQuery(t *testing.T) {
	a := New(testConfig(), &fakeSearcher{}, &fakeFetcher{}, &fakeLLM{})
	_, err := a.Run(context.Background(), "   ", 5)
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestRunSearchFailure(t *testing.T) {
	s := &fakeSearcher{err: errors.New("invalid api key")}
	a := New(testConfig(), s, &fakeFetcher{}, &fakeLLM{})

	res, err := a.Run(context.Background(), "go generics", 5)
	require.NoError(t, err)
	assert.Equal(t, MsgNoSearchResults, res.Answer)
	assert.Equal(t, ErrTextNoSearchResults, res.Error)
	assert.Empty(t, res.Sources)
	assert.NotEmpty(t, res.ID)
}

func TestRunAllFiltered(t *testing.T) {
	s := &fakeSearcher{results: []models.Result{{URL: "https://www.linkedin.com/pulse/x"}, {URL: "https://LinkedIn.com/in/y"}}}
	a := New(testConfig(), s, &fakeFetcher{}, &fakeLLM{})

	res, err := a.Run(context.Background(), "q", 5)
	require.NoError(t, err)
	assert.Equal(t, MsgAllFiltered, res.Answer)
	assert.Equal(t, ErrTextNoUsableResults, res.Error)
}

func TestRunNoUsableContent(t *testing.T) {
	s := &fakeSearcher{results: []models.Result{{URL: "https://a.test/1"}, {URL: "https://b.test/2"}}}
	f := &fakeFetcher{pages: map[string]string{"https://b.test/2": "<html><body><p>too short</p></body></html>"}}
	llm := &fakeLLM{}
	a := New(testConfig(), s, f, llm)

	res, err := a.Run(context.Background(), "q", 5)
	require.NoError(t, err)
	assert.Equal(t, MsgNoContent, res.Answer)
	assert.Equal(t, ErrTextNoContent, res.Error)
	assert.Empty(t, llm.requests("consolidate"))
}

func TestRunHappyPath(t *testing.T) {
	s := &fakeSearcher{results: []models.Result{
		{Title: "Loop vars", URL: "https://go.dev/blog/loopvar", Domain: "go.dev"},
		{URL: "https://www.linkedin.com/pulse/go"},
		{Title: "", URL: "https://example.org/go"},
		{Title: "dup", URL: "https://go.dev/blog/loopvar?utm_source=x"},
	}}
	f := &fakeFetcher{pages: map[string]string{
		"https://go.dev/blog/loopvar": page("loop variables"),
		"https://example.org/go":      page("go releases"),
	}}
	llm := &fakeLLM{consolidate: goodConsolidation}
	hist := &memHistory{}
	c := newMemCache()
	a := New(testConfig(), s, f, llm, WithHistory(hist), WithCache(c))

	res, err := a.Run(context.Background(), "What changed in Go 1.22?", 0)
	require.NoError(t, err)
	assert.Equal(t, "Go 1.22 changed loop variables.", res.Answer)
	assert.Equal(t, "fake-1", res.Model)
	assert.Empty(t, res.Error)
	require.Len(t, res.Sources, 2)
	require.Len(t, res.PerSource, 2)
	require.NotNil(t, res.Parsed)
	assert.Equal(t, KeyPoints{"Per-iteration variables [1]", "Fewer bugs [2]"}, res.Parsed.KeyPoints)

	byURL := map[string]Source{}
	for _, src := range res.Sources {
		byURL[src.URL] = src
	}
	assert.Equal(t, "Loop vars", byURL["https://go.dev/blog/loopvar"].Title)
	assert.Equal(t, "example.org", byURL["https://example.org/go"].Title)
	for _, ps := range res.PerSource {
		assert.True(t, strings.HasSuffix(ps.Snippet, "..."))
		assert.Len(t, ps.Snippet, 403)
		assert.Equal(t, "- a key fact", ps.Summary)
	}

	cons := llm.requests("consolidate")
	require.Len(t, cons, 1)
	assert.True(t, cons[0].JSON)
	assert.Equal(t, consolidateSystem, cons[0].System)
	assert.Contains(t, cons[0].User, "User question: What changed in Go 1.22?")
	assert.Len(t, llm.requests("summarize"), 2)

	require.Len(t, hist.runs, 1)
	assert.Equal(t, res.ID, hist.runs[0].ID)
	assert.Equal(t, 2, hist.runs[0].SourceCount)

	again, err := a.Run(context.Background(), "  what changed in go 1.22?", 5)
	require.NoError(t, err)
	assert.True(t, again.Cached)
	assert.Equal(t, res.ID, again.ID)
	assert.Equal(t, int32(1), s.calls.Load())
}

func TestRunFailuresAreNotCached(t *testing.T) {
	s := &fakeSearcher{}
	c := newMemCache()
	a := New(testConfig(), s, &fakeFetcher{}, &fakeLLM{}, WithCache(c))

	for i := 0; i < 2; i++ {
		res, err := a.Run(context.Background(), "q", 5)
		require.NoError(t, err)
		assert.False(t, res.Cached)
	}
	assert.Equal(t, int32(2), s.calls.Load())
}

func TestRunBoundsConcurrency(t *testing.T) {
	cfg := testConfig()
	cfg.Agent.Workers = 2

	var results []models.Result
	pages := map[string]string{}
	for i := 0; i < 6; i++ {
		u := fmt.Sprintf("https://site%d.test/a", i)
		results = append(results, models.Result{URL: u})
		pages[u] = page(fmt.Sprintf("topic %d", i))
	}
	f := &fakeFetcher{pages: pages, delay: 20 * time.Millisecond}
	a := New(cfg, &fakeSearcher{results: results}, f, &fakeLLM{consolidate: goodConsolidation})

	res, err := a.Run(context.Background(), "q", 6)
	require.NoError(t, err)
	assert.Len(t, res.PerSource, 6)
	assert.LessOrEqual(t, f.peak.Load(), int32(2))
	assert.GreaterOrEqual(t, f.peak.Load(), int32(1))
}

func TestRunKeepsCompletionOrder(t *testing.T) {
	s := &fakeSearcher{results: []models.Result{
		{Title: "slow", URL: "https://slow.test/a"},
		{Title: "fast", URL: "https://fast.test/b"},
	}}
	f := &fakeFetcher{
		pages: map[string]string{
			"https://slow.test/a": page("slow"),
			"https://fast.test/b": page("fast"),
		},
		delays: map[string]time.Duration{"https://slow.test/a": 200 * time.Millisecond},
	}
	a := New(testConfig(), s, f, &fakeLLM{consolidate: goodConsolidation})

	res, err := a.Run(context.Background(), "q", 5)
	require.NoError(t, err)
	require.Len(t, res.PerSource, 2)
	require.Len(t, res.Sources, 2)
	assert.Equal(t, "https://fast.test/b", res.PerSource[0].URL)
	assert.Equal(t, "https://slow.test/a", res.PerSource[1].URL)
	assert.Equal(t, "https://fast.test/b", res.Sources[0].URL)
	assert.Equal(t, "https://slow.test/a", res.Sources[1].URL)
}

func TestRunTextLengthCountsCharacters(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		kept    bool
		snippet string
	}{
		{"99 ascii dropped", strings.Repeat("a", 99), false, ""},
		{"100 ascii kept", strings.Repeat("a", 100), true, strings.Repeat("a", 100)},
		{"60 cjk dropped", strings.Repeat("语", 60), false, ""},
		{"100 cjk kept", strings.Repeat("语", 100), true, strings.Repeat("语", 100)},
		{"300 cyrillic untruncated", strings.Repeat("д", 300), true, strings.Repeat("д", 300)},
		{"400 cyrillic untruncated", strings.Repeat("д", 400), true, strings.Repeat("д", 400)},
		{"401 cyrillic truncated", strings.Repeat("д", 401), true, strings.Repeat("д", 400) + "..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &fakeSearcher{results: []models.Result{{URL: "https://text.test/a"}}}
			f := &fakeFetcher{pages: map[string]string{"https://text.test/a": tt.text}}
			a := New(testConfig(), s, f, &fakeLLM{consolidate: goodConsolidation})
			a.extract = func(html, _ string) string { return html }

			res, err := a.Run(context.Background(), "q", 5)
			require.NoError(t, err)
			if !tt.kept {
				assert.Equal(t, ErrTextNoContent, res.Error)
				assert.Empty(t, res.PerSource)
				return
			}
			require.Len(t, res.PerSource, 1)
			assert.Equal(t, tt.snippet, res.PerSource[0].Snippet)
			assert.Equal(t, tt.snippet, res.Sources[0].Snippet)
		})
	}
}

func TestRunRecoversTaskPanic(t *testing.T) {
	s := &fakeSearcher{results: []models.Result{{URL: "https://boom.test"}, {URL: "https://ok.test"}}}
	f := &fakeFetcher{panicOn: "https://boom.test", pages: map[string]string{"https://ok.test": page("ok")}}
	a := New(testConfig(), s, f, &fakeLLM{consolidate: goodConsolidation})

	res, err := a.Run(context.Background(), "q", 5)
	require.NoError(t, err)
	require.Len(t, res.PerSource, 1)
	assert.Equal(t, "https://ok.test", res.PerSource[0].URL)
}

func TestRunCanceled(t *testing.T) {
	s := &fakeSearcher{results: []models.Result{{URL: "https://ok.test"}}}
	f := &fakeFetcher{pages: map[string]string{"https://ok.test": page("ok")}}
	hist := &memHistory{}
	a := New(testConfig(), s, f, &fakeLLM{consolidate: goodConsolidation}, WithHistory(hist))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.Run(ctx, "q", 5)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, hist.runs)
}

func TestRunSummaryAndConsolidationFallbacks(t *testing.T) {
	s := &fakeSearcher{results: []models.Result{{URL: "https://ok.test/a", Domain: "ok.test"}}}
	f := &fakeFetcher{pages: map[string]string{"https://ok.test/a": page("fallbacks")}}
	llm := &fakeLLM{summarizeErr: errors.New("quota exceeded"), consolidateErr: errors.New("unauthorized")}
	a := New(testConfig(), s, f, llm)

	res, err := a.Run(context.Background(), "q", 5)
	require.NoError(t, err)
	require.Len(t, res.PerSource, 1)
	assert.True(t, strings.HasPrefix(res.PerSource[0].Summary, "Error summarizing (fake): quota exceeded... Fallback: "))
	assert.Nil(t, res.Parsed)
	assert.True(t, strings.HasPrefix(res.Answer, "FINAL FAKE CALL FAILED: unauthorized. Check API Key. FALLBACK CONTENT:\n1. Error summarizing"))

	cons := llm.requests("consolidate")
	require.Len(t, cons, 1)
	assert.NotContains(t, cons[0].User, "[1] Source:")
}

func TestRunSkipCacheRefreshes(t *testing.T) {
	s := &fakeSearcher{results: []models.Result{{URL: "https://ok.test"}}}
	f := &fakeFetcher{pages: map[string]string{"https://ok.test": page("ok")}}
	a := New(testConfig(), s, f, &fakeLLM{consolidate: goodConsolidation}, WithCache(newMemCache()))

	first, err := a.Run(context.Background(), "q", 5)
	require.NoError(t, err)
	fresh, err := a.Run(SkipCache(context.Background()), "q", 5)
	require.NoError(t, err)
	assert.False(t, fresh.Cached)
	assert.NotEqual(t, first.ID, fresh.ID)

	cached, err := a.Run(context.Background(), "q", 5)
	require.NoError(t, err)
	assert.True(t, cached.Cached)
	assert.Equal(t, fresh.ID, cached.ID)
}
