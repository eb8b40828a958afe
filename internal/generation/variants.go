package generation

import (
	"fmt"
	"strings"

	"storefront/internal/domain"
)

var variantStyles = []string{
	"high-detail illustration",
	"minimalist vector",
	"watercolor",
}

// basePrompt is the text every variant is derived from.
func basePrompt(prompt, expanded, style, franchise string) string {
	if expanded = strings.TrimSpace(expanded); expanded != "" {
		return expanded
	}
	var b strings.Builder
	b.WriteString(strings.TrimSpace(prompt))
	if style = strings.TrimSpace(style); style != "" {
		fmt.Fprintf(&b, ", in a %s style", style)
	}
	if franchise = strings.TrimSpace(franchise); franchise != "" {
		fmt.Fprintf(&b, ", inspired by %s", franchise)
	}
	return b.String()
}

// BuildVariants returns the ordered prompts to generate. Caller supplied
// variants win and are truncated to limit; otherwise one variant per
// built-in style is derived from base.
func BuildVariants(base string, supplied []string, limit int) []string {
	if limit <= 0 || limit > domain.DefaultVariantCount {
		limit = domain.DefaultVariantCount
	}
	var out []string
	for _, v := range supplied {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
		if len(out) == limit {
			break
		}
	}
	if len(out) > 0 {
		return out
	}
	base = strings.TrimRight(strings.TrimSpace(base), ". ")
	for _, style := range variantStyles[:limit] {
		out = append(out, fmt.Sprintf("%s. Rendered as a %s, suitable for printing on apparel.", base, style))
	}
	return out
}
