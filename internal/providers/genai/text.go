package genai

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"storefront/internal/domain"
)

const defaultTextModel = "gemini-2.5-flash"

// TextRequest asks a text model for one candidate.
type TextRequest struct {
	Model       string
	Prompt      string
	Temperature float64
	// JSON requests an application/json response body from the model.
	JSON bool
}

// GenerateText returns the first non-blank text part of the reply. Text
// generation has no synthetic mode and needs an API key.
func (c *Client) GenerateText(ctx context.Context, req TextRequest) (string, error) {
	if c.Synthetic() {
		return "", fmt.Errorf("genai: text generation needs an api key: %w", domain.ErrProviderPermanent)
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return "", fmt.Errorf("genai: prompt is required: %w", domain.ErrProviderPermanent)
	}
	model := strings.TrimPrefix(strings.TrimSpace(req.Model), "models/")
	if model == "" {
		model = defaultTextModel
	}
	temp := req.Temperature
	cfg := &generationConfig{Temperature: &temp, CandidateCount: 1}
	if req.JSON {
		cfg.ResponseMimeType = "application/json"
	}
	body := GenerateContentRequest{
		Contents:         []content{{Role: "user", Parts: []part{{Text: req.Prompt}}}},
		GenerationConfig: cfg,
	}

	var resp generateContentResponse
	endpoint := c.apiURL(fmt.Sprintf("models/%s:generateContent", url.PathEscape(model)))
	if err := c.doJSON(ctx, http.MethodPost, endpoint, body, &resp); err != nil {
		return "", err
	}
	for _, cand := range resp.Candidates {
		for _, p := range cand.Content.Parts {
			if strings.TrimSpace(p.Text) != "" {
				return p.Text, nil
			}
		}
	}
	return "", fmt.Errorf("genai: empty text reply from %s: %w", model, domain.ErrProviderPermanent)
}
