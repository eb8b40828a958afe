package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"storefront/internal/domain"
)

type fileEnvelope struct {
	File struct {
		Name     string `json:"name"`
		URI      string `json:"uri,omitempty"`
		MimeType string `json:"mimeType,omitempty"`
	} `json:"file"`
}

// UploadFile stores data through the Files API and returns its handle
// ("files/<id>"). The resumable protocol is tried first and a single raw
// media upload is used when any step of it fails.
func (c *Client) UploadFile(ctx context.Context, data []byte, contentType, displayName string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("genai: upload of empty file: %w", domain.ErrProviderPermanent)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if c.Synthetic() {
		return syntheticHandle(syntheticFilePrefix, data)
	}

	handle, err := c.uploadResumable(ctx, data, contentType, displayName)
	if err == nil {
		return handle, nil
	}
	c.logger.Warn().
		Err(err).
		Str("display_name", displayName).
		Msg("genai: resumable upload failed; retrying as raw upload")

	return c.uploadRaw(ctx, data, contentType)
}

func (c *Client) uploadResumable(ctx context.Context, data []byte, contentType, displayName string) (string, error) {
	meta, err := json.Marshal(map[string]any{"file": map[string]string{"display_name": displayName}})
	if err != nil {
		return "", fmt.Errorf("genai: marshal upload metadata: %w: %w", domain.ErrProviderPermanent, err)
	}
	start := http.Header{}
	start.Set("X-Goog-Upload-Protocol", "resumable")
	start.Set("X-Goog-Upload-Command", "start")
	start.Set("X-Goog-Upload-Header-Content-Length", strconv.Itoa(len(data)))
	start.Set("X-Goog-Upload-Header-Content-Type", contentType)
	start.Set("Content-Type", "application/json")

	resp, err := c.do(ctx, http.MethodPost, c.uploadURL(), start, meta)
	if err != nil {
		return "", err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	sessionURL := strings.TrimSpace(resp.Header.Get("X-Goog-Upload-URL"))
	if sessionURL == "" {
		return "", fmt.Errorf("genai: resumable upload returned no session url: %w", domain.ErrProviderPermanent)
	}

	finalize := http.Header{}
	finalize.Set("X-Goog-Upload-Offset", "0")
	finalize.Set("X-Goog-Upload-Command", "upload, finalize")
	finalize.Set("Content-Type", contentType)
	resp, err = c.do(ctx, http.MethodPost, sessionURL, finalize, data)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	return decodeFileHandle(resp.Body)
}

func (c *Client) uploadRaw(ctx context.Context, data []byte, contentType string) (string, error) {
	header := http.Header{}
	header.Set("X-Goog-Upload-Protocol", "raw")
	header.Set("Content-Type", contentType)
	resp, err := c.do(ctx, http.MethodPost, c.uploadURL()+"?uploadType=media", header, data)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	return decodeFileHandle(resp.Body)
}

func decodeFileHandle(r io.Reader) (string, error) {
	var env fileEnvelope
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		return "", fmt.Errorf("genai: decode upload response: %w: %w", domain.ErrProviderPermanent, err)
	}
	if env.File.Name == "" {
		return "", fmt.Errorf("genai: upload response has no file name: %w", domain.ErrProviderPermanent)
	}
	return env.File.Name, nil
}

// DownloadFile fetches the raw content of a file handle such as a batch
// result file.
func (c *Client) DownloadFile(ctx context.Context, fileHandle string) ([]byte, error) {
	fileHandle = strings.TrimSpace(fileHandle)
	if fileHandle == "" {
		return nil, fmt.Errorf("genai: file handle is required: %w", domain.ErrProviderPermanent)
	}
	if c.Synthetic() {
		return syntheticContent(syntheticFilePrefix, fileHandle)
	}

	resp, err := c.do(ctx, http.MethodGet, c.downloadURL(fileHandle), nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("genai: read %s: %w: %w", fileHandle, domain.ErrProviderPermanent, err)
	}
	return data, nil
}
