package provider

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mohammad-safakhou/researcher/config"
	"github.com/mohammad-safakhou/researcher/internal/telemetry"
	anthropic_provider "github.com/mohammad-safakhou/researcher/provider/anthropic"
	"github.com/mohammad-safakhou/researcher/provider/gemini"
	"github.com/mohammad-safakhou/researcher/provider/models"
	openai_provider "github.com/mohammad-safakhou/researcher/provider/openai"
)

// Client represents different LLM providers
type Client string

const (
	OpenAI    Client = "openai"
	Anthropic Client = "anthropic"
	Gemini    Client = "gemini"
)

type Request = models.Request

var (
	ErrUnsupportedProvider = errors.New("unsupported LLM provider")
	ErrMissingAPIKey       = errors.New("llm api key not configured")
	ErrEmptyResponse       = models.ErrEmptyResponse
)

// Provider is the interface that all LLM implementations must satisfy
type Provider interface {
	Generate(ctx context.Context, req Request) (string, error)
	Name() string
	Model() string
}

// NewProvider creates a new LLM client based on the provided configuration.
// The returned provider applies cfg.Timeout per call and records call metrics.
func NewProvider(ctx context.Context, cfg config.LLMConfig) (Provider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey())
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	opts := models.Options{APIKey: apiKey, Model: cfg.Model, Timeout: cfg.Timeout}

	var p Provider
	switch Client(strings.ToLower(cfg.Provider)) {
	case Gemini, "":
		g, err := gemini.New(ctx, opts)
		if err != nil {
			return nil, err
		}
		p = g
	case OpenAI:
		opts.BaseURL = cfg.OpenAIBaseURL
		p = openai_provider.NewOpenAIClient(opts)
	case Anthropic:
		p = anthropic_provider.New(opts)
	default:
		return nil, ErrUnsupportedProvider
	}
	return Instrument(p, cfg.Timeout), nil
}

// Instrument wraps p with a per-call timeout and LLM metrics.
func Instrument(p Provider, timeout time.Duration) Provider {
	return &instrumented{inner: p, timeout: timeout}
}

type instrumented struct {
	inner   Provider
	timeout time.Duration
}

func (i *instrumented) Name() string  { return i.inner.Name() }
func (i *instrumented) Model() string { return i.inner.Model() }

func (i *instrumented) Generate(ctx context.Context, req Request) (string, error) {
	if i.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}
	op := req.Operation
	if op == "" {
		op = "generate"
	}
	started := time.Now()
	out, err := i.inner.Generate(ctx, req)
	telemetry.RecordLLM(i.inner.Name(), op, started, err)
	return out, err
}
