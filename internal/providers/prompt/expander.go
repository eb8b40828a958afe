// Package prompt rewrites a short design idea into a detailed image prompt.
package prompt

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	staticProviderName = "static"
	geminiProviderName = "gemini"
	openAIProviderName = "openai"
)

// ErrEmptyPrompt is returned when there is nothing to expand.
var ErrEmptyPrompt = errors.New("prompt: empty prompt")

type ExpandRequest struct {
	Prompt    string
	Style     string
	Franchise string
	Locale    string
}

type Expansion struct {
	Prompt   string   `json:"prompt"`
	Keywords []string `json:"keywords,omitempty"`
	Provider string   `json:"-"`
}

type Expander interface {
	Expand(ctx context.Context, req ExpandRequest) (*Expansion, error)
}

// StaticExpander appends deterministic print-design guidance. It never fails
// on a non-empty prompt and backs every remote expander.
type StaticExpander struct{}

func NewStaticExpander() *StaticExpander {
	return &StaticExpander{}
}

func (s *StaticExpander) Expand(ctx context.Context, req ExpandRequest) (*Expansion, error) {
	base := strings.TrimSpace(req.Prompt)
	if base == "" {
		return nil, ErrEmptyPrompt
	}
	tag := language.English
	if req.Locale != "" {
		if parsed, err := language.Parse(req.Locale); err == nil {
			tag = parsed
		}
	}
	title := cases.Title(tag)
	lower := cases.Lower(tag)

	var b strings.Builder
	b.WriteString(strings.TrimRight(base, ". "))
	if style := strings.TrimSpace(req.Style); style != "" {
		fmt.Fprintf(&b, ", rendered in a %s style", lower.String(style))
	}
	if franchise := strings.TrimSpace(req.Franchise); franchise != "" {
		fmt.Fprintf(&b, ", inspired by %s", title.String(franchise))
	}
	b.WriteString(". Print-ready artwork for apparel, centered composition, clean edges, high contrast, no background clutter.")

	keywords := normalizeKeywords(append(strings.Fields(lower.String(req.Style)), lower.String(req.Franchise)), "design")
	return &Expansion{Prompt: b.String(), Keywords: keywords, Provider: staticProviderName}, nil
}

func expandInstruction(req ExpandRequest) string {
	locale := coalesce(req.Locale, "en")
	sb := &strings.Builder{}
	sb.WriteString("You write prompts for an image model that produces print-on-demand apparel designs. Respond strictly with JSON matching this schema: ")
	sb.WriteString(`{"prompt":string,"keywords":string[]}`)
	fmt.Fprintf(sb, ". Keep the prompt under 120 words, in English, and describe subject, composition and palette. The shopper's locale is '%s'. Input: idea=%q, style=%q, franchise=%q.", locale, req.Prompt, req.Style, req.Franchise)
	return sb.String()
}

func useFallback(ctx context.Context, fallback Expander, onFallback func(string, error), reason string, err error, req ExpandRequest) (*Expansion, error) {
	if onFallback != nil {
		onFallback(reason, err)
	}
	if fallback == nil {
		fallback = NewStaticExpander()
	}
	return fallback.Expand(ctx, req)
}

var _ Expander = (*StaticExpander)(nil)
