package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mohammad-safakhou/researcher/config"
	"github.com/mohammad-safakhou/researcher/internal/helpers"
	"github.com/mohammad-safakhou/researcher/internal/logging"
	"github.com/mohammad-safakhou/researcher/internal/passages"
	"github.com/mohammad-safakhou/researcher/provider"
)

const (
	fallbackErrChars  = 50
	fallbackTextChars = 600
)

var displayNames = map[string]string{
	"gemini":    "Gemini",
	"openai":    "OpenAI",
	"anthropic": "Anthropic",
}

// Summarizer owns the two model calls of a run: one summary per source and
// the final consolidation.
type Summarizer struct {
	llm    provider.Provider
	cfg    config.LLMConfig
	logger zerolog.Logger
}

func NewSummarizer(llm provider.Provider, cfg config.LLMConfig) *Summarizer {
	return &Summarizer{llm: llm, cfg: cfg, logger: logging.Component("summarizer")}
}

// SummarizeText never fails: on a model error it returns a fallback that
// quotes the error and the head of text.
func (s *Summarizer) SummarizeText(ctx context.Context, text string) string {
	if text == "" {
		return ""
	}
	out, err := s.llm.Generate(ctx, provider.Request{
		User:        summarizePrompt(text),
		Temperature: s.cfg.SummaryTemperature,
		MaxTokens:   s.cfg.SummaryMaxTokens,
		Operation:   "summarize",
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("summarize failed, using fallback")
		return fmt.Sprintf("%s (%s): %s... Fallback: %s...",
			summarizeErrorMarker, displayName(s.llm.Name()),
			passages.TruncateRunes(err.Error(), fallbackErrChars),
			passages.TruncateRunes(text, fallbackTextChars))
	}
	return out
}

// Consolidate asks for the final JSON answer. It never fails either: a model or
// parse error yields Raw with the numbered summaries and a nil Parsed.
func (s *Summarizer) Consolidate(ctx context.Context, summaries []SourceSummary, query string) Consolidation {
	out, err := s.llm.Generate(ctx, provider.Request{
		System:      consolidateSystem,
		User:        consolidatePrompt(query, summaries),
		Temperature: s.cfg.ConsolidateTemperature,
		MaxTokens:   s.cfg.ConsolidateMaxTokens,
		JSON:        true,
		Operation:   "consolidate",
	})
	if err == nil {
		var parsed Parsed
		if err = helpers.UnmarshalObject(out, &parsed); err == nil {
			return Consolidation{Raw: out, Model: s.llm.Model(), Parsed: &parsed}
		}
		err = fmt.Errorf("parse consolidation: %w", err)
	}

	s.logger.Error().Err(err).Int("summaries", len(summaries)).Msg("consolidation failed, using fallback")
	var b strings.Builder
	fmt.Fprintf(&b, "FINAL %s CALL FAILED: %v. Check API Key. FALLBACK CONTENT:\n", strings.ToUpper(s.llm.Name()), err)
	for i, sum := range summaries {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "%d. %s", i+1, sum.Summary)
	}
	return Consolidation{Raw: b.String(), Model: s.llm.Model()}
}

func displayName(name string) string {
	if d, ok := displayNames[name]; ok {
		return d
	}
	return name
}
