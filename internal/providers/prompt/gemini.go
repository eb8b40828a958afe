package prompt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront/internal/providers/genai"
)

// TextGenerator is the slice of the Gemini client the expander needs.
type TextGenerator interface {
	GenerateText(ctx context.Context, req genai.TextRequest) (string, error)
}

type GeminiOptions struct {
	Client     TextGenerator
	Model      string
	Timeout    time.Duration
	Fallback   Expander
	OnFallback func(reason string, err error)
}

// GeminiExpander asks a Gemini text model for a JSON expansion and falls back
// on any failure.
type GeminiExpander struct {
	client     TextGenerator
	model      string
	timeout    time.Duration
	fallback   Expander
	onFallback func(reason string, err error)
}

func NewGeminiExpander(opts GeminiOptions) (*GeminiExpander, error) {
	if opts.Client == nil {
		return nil, errors.New("prompt: gemini client is required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &GeminiExpander{
		client:     opts.Client,
		model:      strings.TrimSpace(opts.Model),
		timeout:    timeout,
		fallback:   opts.Fallback,
		onFallback: opts.OnFallback,
	}, nil
}

func (g *GeminiExpander) Expand(ctx context.Context, req ExpandRequest) (*Expansion, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, ErrEmptyPrompt
	}
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	text, err := g.client.GenerateText(callCtx, genai.TextRequest{
		Model:       g.model,
		Prompt:      expandInstruction(req),
		Temperature: 0.5,
		JSON:        true,
	})
	if err != nil {
		return g.useFallback(ctx, req, geminiFailureReason(err), err)
	}
	parsed, err := parseExpansion(text)
	if err != nil {
		return g.useFallback(ctx, req, "parse_payload", err)
	}
	parsed.Provider = geminiProviderName
	return parsed, nil
}

func geminiFailureReason(err error) string {
	var apiErr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		return fmt.Sprintf("http_%d", apiErr.StatusCode)
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "request"
	}
}

func (g *GeminiExpander) useFallback(ctx context.Context, req ExpandRequest, reason string, err error) (*Expansion, error) {
	return useFallback(ctx, g.fallback, g.onFallback, geminiProviderName+"_"+reason, err, req)
}

var _ Expander = (*GeminiExpander)(nil)
