package web_fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammad-safakhou/researcher/config"
)

func TestHTTPFetchRetriesThenSucceeds(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("<html><body>ok</body></html>"))
	}))
	defer srv.Close()

	f, err := NewWebFetcher(config.FetchConfig{Engine: "http", Timeout: time.Second, Retries: 2, RetryDelay: time.Millisecond, UserAgent: "test-agent"})
	require.NoError(t, err)

	html, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Contains(t, html, "ok")
	assert.Equal(t, int32(2), hits.Load())
}

func TestHTTPFetchGivesUpAfterAttempts(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f, err := NewWebFetcher(config.FetchConfig{Timeout: time.Second, Retries: 2, RetryDelay: time.Millisecond})
	require.NoError(t, err)

	_, err = f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Equal(t, int32(2), hits.Load())
}

func TestHTTPFetchTruncates(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("a", 100)))
	}))
	defer srv.Close()

	f, err := NewWebFetcher(config.FetchConfig{Timeout: time.Second, Retries: 1, MaxChars: 10})
	require.NoError(t, err)
	html, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, html, 10)
}

func TestHTTPFetchTruncatesOnRuneBoundary(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("é", 10)))
	}))
	defer srv.Close()

	f, err := NewWebFetcher(config.FetchConfig{Timeout: time.Second, Retries: 1, MaxChars: 5})
	require.NoError(t, err)
	html, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "éé", html)
	assert.True(t, utf8.ValidString(html))
}

func TestHTTPFetchEmptyURL(t *testing.T) {
	t.Parallel()
	f, err := NewWebFetcher(config.FetchConfig{})
	require.NoError(t, err)
	_, err = f.Fetch(context.Background(), "  ")
	assert.Error(t, err)
}

func TestNewWebFetcherUnsupported(t *testing.T) {
	t.Parallel()
	_, err := NewWebFetcher(config.FetchConfig{Engine: "curl"})
	assert.ErrorIs(t, err, ErrUnsupportedFetcher)

	f, err := NewWebFetcher(config.FetchConfig{Engine: "chromedp"})
	require.NoError(t, err)
	assert.NotNil(t, f)
}
