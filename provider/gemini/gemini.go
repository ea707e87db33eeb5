package gemini

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/mohammad-safakhou/researcher/provider/models"
)

const DefaultModel = "gemini-2.5-flash"

type client struct {
	genai *genai.Client
	model string
}

func New(ctx context.Context, opts models.Options) (*client, error) {
	cc := &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if opts.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}
	g, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	model := opts.Model
	if model == "" {
		model = DefaultModel
	}
	return &client{genai: g, model: model}, nil
}

func (c *client) Name() string  { return "gemini" }
func (c *client) Model() string { return c.model }

// Generate ignores req.MaxTokens: 2.5 models spend thinking tokens from the same
// output budget, and small caps come back empty.
func (c *client) Generate(ctx context.Context, req models.Request) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.JSON {
		cfg.ResponseMIMEType = "application/json"
	}

	resp, err := c.genai.Models.GenerateContent(ctx, c.model, genai.Text(req.User), cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", models.ErrEmptyResponse
	}
	return text, nil
}
