package genai

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"storefront/internal/domain"
)

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts,omitempty"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type imageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string     `json:"responseModalities,omitempty"`
	ResponseMimeType   string       `json:"responseMimeType,omitempty"`
	Temperature        *float64     `json:"temperature,omitempty"`
	CandidateCount     int          `json:"candidateCount,omitempty"`
	ImageConfig        *imageConfig `json:"imageConfig,omitempty"`
	Seed               *int64       `json:"seed,omitempty"`
}

// GenerateContentRequest is the body of models/{model}:generateContent and of
// each line in a batch input file.
type GenerateContentRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type candidate struct {
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

type generateContentResponse struct {
	Candidates     []candidate `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason,omitempty"`
	} `json:"promptFeedback,omitempty"`
}

// NewImageRequest builds an image-only generation request.
func NewImageRequest(prompt, aspectRatio string, seed *int64) GenerateContentRequest {
	cfg := &generationConfig{ResponseModalities: []string{"IMAGE"}, Seed: seed}
	if aspectRatio = strings.TrimSpace(aspectRatio); aspectRatio != "" {
		cfg.ImageConfig = &imageConfig{AspectRatio: aspectRatio}
	}
	return GenerateContentRequest{
		Contents:         []content{{Role: "user", Parts: []part{{Text: strings.TrimSpace(prompt)}}}},
		GenerationConfig: cfg,
	}
}

// Generate produces a single image for the prompt.
func (c *Client) Generate(ctx context.Context, req domain.GenerateRequest) (*domain.GeneratedImage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("genai: prompt is required: %w", domain.ErrProviderPermanent)
	}
	if c.Synthetic() {
		return c.syntheticImage(req), nil
	}

	var resp generateContentResponse
	endpoint := c.apiURL(fmt.Sprintf("models/%s:generateContent", url.PathEscape(c.model)))
	if err := c.doJSON(ctx, http.MethodPost, endpoint, NewImageRequest(req.Prompt, req.AspectRatio, req.Seed), &resp); err != nil {
		return nil, err
	}

	for _, cand := range resp.Candidates {
		for _, p := range cand.Content.Parts {
			if p.InlineData == nil || p.InlineData.Data == "" {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
			if err != nil {
				return nil, fmt.Errorf("genai: decode inline data: %w: %w", domain.ErrProviderPermanent, err)
			}
			mime := p.InlineData.MimeType
			if mime == "" {
				mime = "image/png"
			}
			c.logger.Debug().
				Str("request_id", req.RequestID).
				Str("model", c.model).
				Int("bytes", len(data)).
				Msg("genai: generated remote image")
			return &domain.GeneratedImage{Data: data, MIMEType: mime}, nil
		}
	}

	reason := "no image returned"
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		reason = "prompt blocked: " + resp.PromptFeedback.BlockReason
	} else if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != "" {
		reason = "no image returned (" + resp.Candidates[0].FinishReason + ")"
	}
	return nil, fmt.Errorf("genai: %s: %w", reason, domain.ErrProviderPermanent)
}
