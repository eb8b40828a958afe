package genai

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"strconv"
	"strings"

	"storefront/internal/domain"
)

const (
	syntheticFilePrefix  = "files/synthetic-"
	syntheticBatchPrefix = "batches/synthetic-"
	syntheticMaxContent  = 8 << 20
)

// syntheticHandle packs data into the handle itself so that any process
// holding the handle, not only the one that created it, can resolve it.
func syntheticHandle(prefix string, data []byte) (string, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return "", fmt.Errorf("genai: pack synthetic handle: %w: %w", domain.ErrProviderPermanent, err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("genai: pack synthetic handle: %w: %w", domain.ErrProviderPermanent, err)
	}
	return prefix + base64.RawURLEncoding.EncodeToString(buf.Bytes()), nil
}

func syntheticContent(prefix, handle string) ([]byte, error) {
	packed, ok := strings.CutPrefix(handle, prefix)
	if !ok || packed == "" {
		return nil, fmt.Errorf("genai: unknown synthetic handle %q: %w", handle, domain.ErrProviderPermanent)
	}
	raw, err := base64.RawURLEncoding.DecodeString(packed)
	if err != nil {
		return nil, fmt.Errorf("genai: malformed synthetic handle: %w: %w", domain.ErrProviderPermanent, err)
	}
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("genai: malformed synthetic handle: %w: %w", domain.ErrProviderPermanent, err)
	}
	defer zr.Close()
	data, err := io.ReadAll(io.LimitReader(zr, syntheticMaxContent))
	if err != nil {
		return nil, fmt.Errorf("genai: malformed synthetic handle: %w: %w", domain.ErrProviderPermanent, err)
	}
	return data, nil
}

func syntheticSubmit(fileHandle string) (string, error) {
	input, err := syntheticContent(syntheticFilePrefix, fileHandle)
	if err != nil {
		return "", err
	}
	return syntheticHandle(syntheticBatchPrefix, input)
}

// syntheticPoll completes a synthetic batch immediately with one inline image per
// input line.
func syntheticPoll(handle string) (*domain.BatchOperation, error) {
	input, err := syntheticContent(syntheticBatchPrefix, handle)
	if err != nil {
		return nil, err
	}
	seedBase := deterministicSeed(string(input))

	var responses []any
	scanner := bufio.NewScanner(bytes.NewReader(input))
	scanner.Buffer(make([]byte, 64<<10), 8<<20)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var entry BatchLine
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		prompt, aspect := "", ""
		if len(entry.Request.Contents) > 0 && len(entry.Request.Contents[0].Parts) > 0 {
			prompt = entry.Request.Contents[0].Parts[0].Text
		}
		if cfg := entry.Request.GenerationConfig; cfg != nil && cfg.ImageConfig != nil {
			aspect = cfg.ImageConfig.AspectRatio
		}
		width, height := normalizeAspect(aspect)
		img := renderSyntheticImage(width/2, height/2, deterministicSeed(seedBase, entry.Key, prompt))
		responses = append(responses, map[string]any{
			"metadata": map[string]any{"key": entry.Key},
			"response": map[string]any{
				"candidates": []any{map[string]any{
					"content": map[string]any{"parts": []any{map[string]any{
						"inlineData": map[string]any{
							"mimeType": "image/png",
							"data":     base64.StdEncoding.EncodeToString(img),
						},
					}}},
				}},
			},
		})
	}

	return &domain.BatchOperation{
		Name:      handle,
		Done:      true,
		Succeeded: true,
		State:     "BATCH_STATE_SUCCEEDED",
		Payload:   map[string]any{"inlinedResponses": responses},
	}, nil
}

func (c *Client) syntheticImage(req domain.GenerateRequest) *domain.GeneratedImage {
	seedPart := ""
	if req.Seed != nil {
		seedPart = strconv.FormatInt(*req.Seed, 10)
	}
	seed := deterministicSeed(req.RequestID, req.Prompt, req.AspectRatio, seedPart)
	width, height := normalizeAspect(req.AspectRatio)
	data := renderSyntheticImage(width/2, height/2, seed)

	c.logger.Debug().
		Str("request_id", req.RequestID).
		Str("model", c.model).
		Msg("genai: generated synthetic image")

	return &domain.GeneratedImage{Data: data, MIMEType: "image/png"}
}

func renderSyntheticImage(width, height int, seed string) []byte {
	if width <= 0 {
		width = 512
	}
	if height <= 0 {
		height = 512
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	base := colorFromSeed(seed, 0)
	accent := colorFromSeed(seed, 1)
	draw.Draw(img, img.Bounds(), &image.Uniform{base}, image.Point{}, draw.Src)

	stripeHeight := max(16, height/12)
	for y := 0; y < height; y += stripeHeight * 2 {
		stripe := image.Rect(0, y, width, min(height, y+stripeHeight))
		draw.Draw(img, stripe, &image.Uniform{accent}, image.Point{}, draw.Over)
	}

	diagonal := colorFromSeed(seed, 2)
	for x := 0; x < max(width, height); x += max(16, width/32) {
		for y := 0; y < height; y++ {
			if x+y >= width {
				break
			}
			img.Set(x+y, y, diagonal)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil
	}
	return buf.Bytes()
}

func colorFromSeed(seed string, shift int) color.RGBA {
	if len(seed) < 6 {
		seed = "000000"
	}
	doubled := seed + seed
	start := (shift * 6) % len(seed)
	segment := doubled[start : start+6]
	return color.RGBA{R: parseHexByte(segment[0:2]), G: parseHexByte(segment[2:4]), B: parseHexByte(segment[4:6]), A: 255}
}

func parseHexByte(s string) uint8 {
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0
	}
	return uint8(v)
}

func deterministicSeed(parts ...string) string {
	hasher := sha256.New()
	for _, p := range parts {
		hasher.Write([]byte(p))
		hasher.Write([]byte{'|'})
	}
	return hex.EncodeToString(hasher.Sum(nil))[:16]
}

// normalizeAspect maps an aspect ratio onto pixel dimensions with a 1024 base.
func normalizeAspect(aspect string) (int, int) {
	parts := strings.Split(strings.TrimSpace(aspect), ":")
	if len(parts) == 2 {
		a, errA := strconv.Atoi(strings.TrimSpace(parts[0]))
		b, errB := strconv.Atoi(strings.TrimSpace(parts[1]))
		if errA == nil && errB == nil && a > 0 && b > 0 {
			if a >= b {
				return 1024, 1024 * b / a
			}
			return 1024 * a / b, 1024
		}
	}
	return 1024, 1024
}
