package generation

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"storefront/internal/domain"
)

// FindImages walks a decoded JSON tree and returns every embedded image in a
// deterministic order. It recognizes inlineData / inline_data parts and
// bytesBase64Encoded predictions at any depth. Map keys are visited in
// sorted order.
func FindImages(tree any) []domain.ImagePayload {
	var out []domain.ImagePayload
	scanNode(tree, &out)
	return out
}

func scanNode(node any, out *[]domain.ImagePayload) {
	switch v := node.(type) {
	case map[string]any:
		if img, ok := imageFromNode(v); ok {
			*out = append(*out, img)
			return
		}
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			scanNode(v[k], out)
		}
	case []any:
		for _, item := range v {
			scanNode(item, out)
		}
	}
}

func imageFromNode(m map[string]any) (domain.ImagePayload, bool) {
	for _, key := range []string{"inlineData", "inline_data"} {
		inner, ok := m[key].(map[string]any)
		if !ok {
			continue
		}
		data, ok := decodeImageData(inner["data"])
		if !ok {
			continue
		}
		mime := firstString(inner, "mimeType", "mime_type")
		if mime != "" && !strings.HasPrefix(mime, "image/") {
			continue
		}
		return domain.ImagePayload{Data: data, MIMEType: defaultMIME(mime)}, true
	}
	if raw, ok := m["bytesBase64Encoded"]; ok {
		if data, ok := decodeImageData(raw); ok {
			return domain.ImagePayload{Data: data, MIMEType: defaultMIME(firstString(m, "mimeType", "mime_type"))}, true
		}
	}
	return domain.ImagePayload{}, false
}

func decodeImageData(v any) ([]byte, bool) {
	s, ok := v.(string)
	if !ok {
		return nil, false
	}
	s = strings.TrimSpace(s)
	if i := strings.Index(s, ";base64,"); i >= 0 && strings.HasPrefix(s, "data:") {
		s = s[i+len(";base64,"):]
	}
	if s == "" {
		return nil, false
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if data, err := enc.DecodeString(s); err == nil && len(data) > 0 {
			return data, true
		}
	}
	return nil, false
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func defaultMIME(m string) string {
	if m == "" {
		return "image/png"
	}
	return m
}

type resultLine struct {
	key   string
	order int
	tree  any
}

// decodeResultFile parses a JSONL batch result file and orders its lines by
// their variant key. Lines that are not valid JSON are skipped.
func decodeResultFile(data []byte) ([]any, error) {
	var lines []resultLine
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64<<10), 64<<20)
	idx := 0
	for scanner.Scan() {
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var tree any
		if err := json.Unmarshal(raw, &tree); err != nil {
			continue
		}
		line := resultLine{tree: tree, order: idx}
		if m, ok := tree.(map[string]any); ok {
			line.key, _ = m["key"].(string)
			if line.key == "" {
				if meta, ok := m["metadata"].(map[string]any); ok {
					line.key, _ = meta["key"].(string)
				}
			}
		}
		lines = append(lines, line)
		idx++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read result file: %w", err)
	}
	sort.SliceStable(lines, func(i, j int) bool {
		return variantOrder(lines[i]) < variantOrder(lines[j])
	})
	out := make([]any, len(lines))
	for i, l := range lines {
		out[i] = l.tree
	}
	return out, nil
}

// variantOrder sorts "variant-<n>" keys numerically and keeps unkeyed lines
// after keyed ones in file order.
func variantOrder(l resultLine) int {
	if n, err := strconv.Atoi(strings.TrimPrefix(l.key, "variant-")); err == nil && strings.HasPrefix(l.key, "variant-") {
		return n
	}
	return 1<<20 + l.order
}
