// Package passages narrows long page texts down to the chunks most relevant to a query.
package passages

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/blevesearch/bleve"

	"github.com/mohammad-safakhou/researcher/config"
)

type chunk struct {
	Text string `json:"text"`
}

type Selector struct {
	cfg      config.PassageConfig
	maxChars int
}

// NewSelector returns a Selector whose output never exceeds maxChars (0 means no cap).
func NewSelector(cfg config.PassageConfig, maxChars int) *Selector {
	return &Selector{cfg: cfg, maxChars: maxChars}
}

// Select returns text unchanged when it already fits, otherwise the top-ranked chunks
// for query joined in document order. When nothing matches, the head of text is kept.
func (s *Selector) Select(query, text string) (string, error) {
	if s.maxChars <= 0 || len(text) <= s.maxChars {
		return text, nil
	}
	if !s.cfg.Enabled || strings.TrimSpace(query) == "" {
		return Truncate(text, s.maxChars), nil
	}

	chunks := makeChunks(text, s.cfg.ChunkSize, s.cfg.Overlap)
	ids, err := rank(query, chunks, s.cfg.TopK)
	if err != nil {
		return "", err
	}
	if len(ids) == 0 {
		return Truncate(text, s.maxChars), nil
	}
	sort.Ints(ids)

	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strings.TrimSpace(chunks[id]))
	}
	return Truncate(strings.Join(parts, "\n\n"), s.maxChars), nil
}

func rank(query string, chunks []string, k int) ([]int, error) {
	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("passages index: %w", err)
	}
	defer index.Close()

	batch := index.NewBatch()
	for i, c := range chunks {
		if err := batch.Index(strconv.Itoa(i), chunk{Text: c}); err != nil {
			return nil, fmt.Errorf("passages index chunk %d: %w", i, err)
		}
	}
	if err := index.Batch(batch); err != nil {
		return nil, fmt.Errorf("passages batch: %w", err)
	}

	req := bleve.NewSearchRequestOptions(bleve.NewMatchQuery(query), k, 0, false)
	res, err := index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("passages search: %w", err)
	}
	ids := make([]int, 0, len(res.Hits))
	for _, hit := range res.Hits {
		id, err := strconv.Atoi(hit.ID)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func makeChunks(text string, approx, overlap int) []string {
	text = strings.TrimSpace(text)
	if len(text) <= approx {
		return []string{text}
	}
	var chunks []string
	for start := 0; start < len(text); {
		end := start + approx
		if end > len(text) {
			end = len(text)
		}
		end = runeBoundary(text, end)
		chunks = append(chunks, text[start:end])
		if end == len(text) {
			break
		}
		next := runeBoundary(text, end-overlap)
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

// Truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func Truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:runeBoundary(s, n)]
}

// TruncateRunes cuts s to at most n characters.
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

func runeBoundary(s string, i int) int {
	if i <= 0 {
		return 0
	}
	if i >= len(s) {
		return len(s)
	}
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}
