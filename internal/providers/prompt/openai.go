package prompt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

type OpenAIOptions struct {
	APIKey       string
	Model        string
	BaseURL      string
	Organization string
	HTTPClient   *http.Client
	Fallback     Expander
	OnFallback   func(reason string, err error)
}

type OpenAIExpander struct {
	client     openai.Client
	model      string
	timeout    time.Duration
	fallback   Expander
	onFallback func(reason string, err error)
}

const (
	openAIDefaultTimeout = 15 * time.Second
	defaultOpenAIModel   = "gpt-4o-mini"
)

func NewOpenAIExpander(opts OpenAIOptions) (*OpenAIExpander, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, errors.New("openai api key is required")
	}
	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if base := strings.TrimSpace(opts.BaseURL); base != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(strings.TrimRight(base, "/")+"/"))
	}
	if org := strings.TrimSpace(opts.Organization); org != "" {
		reqOpts = append(reqOpts, option.WithOrganization(org))
	}
	if opts.HTTPClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(opts.HTTPClient))
	}
	return &OpenAIExpander{
		client:     openai.NewClient(reqOpts...),
		model:      coalesce(opts.Model, defaultOpenAIModel),
		timeout:    openAIDefaultTimeout,
		fallback:   opts.Fallback,
		onFallback: opts.OnFallback,
	}, nil
}

func (o *OpenAIExpander) Expand(ctx context.Context, req ExpandRequest) (*Expansion, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, ErrEmptyPrompt
	}
	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage("You are a design prompt assistant that only responds with valid JSON."),
			openai.UserMessage(expandInstruction(req)),
		},
		Temperature: openai.Float(0.6),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{Type: "json_object"},
		},
	}
	completion, err := o.client.Chat.Completions.New(callCtx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return o.useFallback(ctx, req, fmt.Sprintf("http_%d", apiErr.StatusCode), err)
		}
		return o.useFallback(ctx, req, "http_request", err)
	}
	if len(completion.Choices) == 0 {
		return o.useFallback(ctx, req, "empty_choices", errors.New("no choices"))
	}
	text := strings.TrimSpace(completion.Choices[0].Message.Content)
	if text == "" {
		return o.useFallback(ctx, req, "empty_response", errors.New("empty response"))
	}
	parsed, err := parseExpansion(text)
	if err != nil {
		return o.useFallback(ctx, req, "parse_payload", err)
	}
	parsed.Provider = openAIProviderName
	return parsed, nil
}

func (o *OpenAIExpander) useFallback(ctx context.Context, req ExpandRequest, reason string, err error) (*Expansion, error) {
	return useFallback(ctx, o.fallback, o.onFallback, openAIProviderName+"_"+reason, err, req)
}

var _ Expander = (*OpenAIExpander)(nil)
