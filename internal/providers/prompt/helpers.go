package prompt

import (
	"encoding/json"
	"errors"
	"strings"
)

var errNoExpansion = errors.New("reply carries no prompt object")

// parseExpansion returns the first JSON object in a model reply that has a
// non-blank prompt. Code fences and surrounding prose are skipped.
func parseExpansion(raw string) (*Expansion, error) {
	for rest := raw; ; {
		i := strings.IndexByte(rest, '{')
		if i < 0 {
			return nil, errNoExpansion
		}
		rest = rest[i:]
		var e Expansion
		if err := json.NewDecoder(strings.NewReader(rest)).Decode(&e); err == nil {
			if e.Prompt = strings.TrimSpace(e.Prompt); e.Prompt != "" {
				e.Keywords = normalizeKeywords(e.Keywords, "")
				return &e, nil
			}
		}
		rest = rest[1:]
	}
}

// normalizeKeywords drops blanks and case-insensitive duplicates, keeping the
// first spelling. An empty result becomes [fallback] when fallback is set.
func normalizeKeywords(keywords []string, fallback string) []string {
	out := keywords[:0:0]
	seen := make(map[string]bool, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" || seen[strings.ToLower(kw)] {
			continue
		}
		seen[strings.ToLower(kw)] = true
		out = append(out, kw)
	}
	if len(out) == 0 && fallback != "" {
		return []string{fallback}
	}
	return out
}

func coalesce(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
