package generation

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func b64(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

func decodeTree(t *testing.T, raw string) any {
	t.Helper()
	var tree any
	require.NoError(t, json.Unmarshal([]byte(raw), &tree))
	return tree
}

func TestFindImagesAtVariableDepth(t *testing.T) {
	tree := decodeTree(t, `{
		"inlinedResponses": {"inlinedResponses": [
			{"response": {"candidates": [{"content": {"parts": [
				{"text": "caption"},
				{"inlineData": {"mimeType": "image/png", "data": "`+b64("first")+`"}}
			]}}]}},
			{"response": {"candidates": [{"content": {"parts": [
				{"inline_data": {"mime_type": "image/jpeg", "data": "`+b64("second")+`"}}
			]}}]}}
		]},
		"predictions": [{"bytesBase64Encoded": "`+b64("third")+`", "mimeType": "image/webp"}]
	}`)

	images := FindImages(tree)
	require.Len(t, images, 3)
	assert.Equal(t, "first", string(images[0].Data))
	assert.Equal(t, "image/png", images[0].MIMEType)
	assert.Equal(t, "second", string(images[1].Data))
	assert.Equal(t, "image/jpeg", images[1].MIMEType)
	assert.Equal(t, "third", string(images[2].Data))
	assert.Equal(t, "image/webp", images[2].MIMEType)
}

func TestFindImagesSortsMapKeys(t *testing.T) {
	tree := decodeTree(t, `{
		"zeta": {"inlineData": {"data": "`+b64("z")+`"}},
		"alpha": {"inlineData": {"data": "`+b64("a")+`"}}
	}`)
	for i := 0; i < 5; i++ {
		images := FindImages(tree)
		require.Len(t, images, 2)
		assert.Equal(t, "a", string(images[0].Data))
		assert.Equal(t, "z", string(images[1].Data))
	}
}

func TestFindImagesSkipsNonImages(t *testing.T) {
	tree := decodeTree(t, `{"parts": [
		{"inlineData": {"mimeType": "text/plain", "data": "`+b64("txt")+`"}},
		{"inlineData": {"data": 12}},
		{"text": "hello"}
	]}`)
	assert.Empty(t, FindImages(tree))
	assert.Empty(t, FindImages(nil))
	assert.Empty(t, FindImages("string"))
}

func TestFindImagesAcceptsDataURI(t *testing.T) {
	tree := map[string]any{"inlineData": map[string]any{"data": "data:image/png;base64," + b64("uri")}}
	images := FindImages(tree)
	require.Len(t, images, 1)
	assert.Equal(t, "uri", string(images[0].Data))
}

func TestDecodeResultFileOrdersByVariantKey(t *testing.T) {
	line := func(key, payload string) string {
		return `{"key":"` + key + `","response":{"candidates":[{"content":{"parts":[{"inlineData":{"data":"` + b64(payload) + `"}}]}}]}}`
	}
	data := line("variant-10", "ten") + "\n" +
		"not json\n\n" +
		line("variant-2", "two") + "\n" +
		line("variant-0", "zero") + "\n"

	lines, err := decodeResultFile([]byte(data))
	require.NoError(t, err)
	require.Len(t, lines, 3)

	var got []string
	for _, l := range lines {
		for _, img := range FindImages(l) {
			got = append(got, string(img.Data))
		}
	}
	assert.Equal(t, []string{"zero", "two", "ten"}, got)
}
