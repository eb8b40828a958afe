package prompt

import (
	"fmt"
	"strings"
)

// Config selects and configures the primary expander. Remote expanders fall
// back to the next configured provider and finally to the static one.
type Config struct {
	Provider      string
	// Gemini is nil when no Gemini key is configured.
	Gemini        TextGenerator
	GeminiModel   string
	OpenAIKey     string
	OpenAIModel   string
	OpenAIBaseURL string
	OpenAIOrg     string
	OnFallback    func(reason string, err error)
}

// New builds the expander chain named by cfg.Provider.
func New(cfg Config) (Expander, error) {
	static := NewStaticExpander()
	var gemini Expander
	if cfg.Gemini != nil {
		g, err := NewGeminiExpander(GeminiOptions{
			Client:     cfg.Gemini,
			Model:      cfg.GeminiModel,
			Fallback:   static,
			OnFallback: cfg.OnFallback,
		})
		if err != nil {
			return nil, err
		}
		gemini = g
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", staticProviderName:
		return static, nil
	case geminiProviderName:
		if gemini == nil {
			return static, nil
		}
		return gemini, nil
	case openAIProviderName:
		if strings.TrimSpace(cfg.OpenAIKey) == "" {
			if gemini != nil {
				return gemini, nil
			}
			return static, nil
		}
		fallback := Expander(static)
		if gemini != nil {
			fallback = gemini
		}
		return NewOpenAIExpander(OpenAIOptions{
			APIKey:       cfg.OpenAIKey,
			Model:        cfg.OpenAIModel,
			BaseURL:      cfg.OpenAIBaseURL,
			Organization: cfg.OpenAIOrg,
			Fallback:     fallback,
			OnFallback:   cfg.OnFallback,
		})
	default:
		return nil, fmt.Errorf("prompt: unknown provider %q", cfg.Provider)
	}
}
