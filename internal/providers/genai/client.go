package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"storefront/internal/domain"
	"storefront/internal/infra"
)

const (
	defaultHost       = "https://generativelanguage.googleapis.com"
	defaultAPIVersion = "v1beta"
	defaultModel      = "gemini-2.5-flash-image"
)

// Options controls how the Gemini client is configured.
type Options struct {
	APIKey     string
	Host       string
	APIVersion string
	Model      string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client talks to the Gemini REST API for direct image generation, the Files
// API and batch operations. Without an API key it renders deterministic
// synthetic images so local and CI environments run the full pipeline.
type Client struct {
	apiKey     string
	host       string
	apiVersion string
	model      string
	httpClient *http.Client
	logger     *infra.Logger
}

// APIError is a non-2xx response from Gemini. It unwraps to
// domain.ErrProviderTransient for rate limiting and unavailability and to
// domain.ErrProviderPermanent otherwise.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gemini status %d", e.StatusCode)
	}
	return fmt.Sprintf("gemini status %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	if e.Transient() {
		return domain.ErrProviderTransient
	}
	return domain.ErrProviderPermanent
}

// Transient reports whether the call may succeed when repeated.
func (e *APIError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode == http.StatusServiceUnavailable
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, domain.ErrProviderTransient)
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
		Status  string `json:"status,omitempty"`
	} `json:"error"`
}

// NewClient constructs a Gemini client with sane defaults. Callers may provide
// a nil HTTP client; one with a conservative timeout is created.
func NewClient(opts Options) (*Client, error) {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}

	host := strings.TrimRight(strings.TrimSpace(opts.Host), "/")
	if host == "" {
		host = defaultHost
	}
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		return nil, fmt.Errorf("genai: host %q must include a scheme", host)
	}
	version := strings.Trim(strings.TrimSpace(opts.APIVersion), "/")
	if version == "" {
		version = defaultAPIVersion
	}
	model := strings.TrimPrefix(strings.TrimSpace(opts.Model), "models/")
	if model == "" {
		model = defaultModel
	}

	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		l := infra.Logger(zerolog.New(io.Discard))
		logger = &l
	}

	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		host:       host,
		apiVersion: version,
		model:      model,
		httpClient: client,
		logger:     logger,
	}, nil
}

// Model returns the configured Gemini model identifier.
func (c *Client) Model() string {
	return c.model
}

// Synthetic reports whether the client renders placeholder images instead of
// calling the API.
func (c *Client) Synthetic() bool {
	return c.apiKey == ""
}

func (c *Client) apiURL(path string) string {
	return c.host + "/" + c.apiVersion + "/" + strings.TrimLeft(path, "/")
}

func (c *Client) uploadURL() string {
	return c.host + "/upload/" + c.apiVersion + "/files"
}

func (c *Client) downloadURL(fileHandle string) string {
	return c.host + "/download/" + c.apiVersion + "/" + strings.TrimLeft(fileHandle, "/") + ":download?alt=media"
}

// do sends the request with the API key attached and converts error statuses
// into *APIError. The caller owns the returned body.
func (c *Client) do(ctx context.Context, method, endpoint string, header http.Header, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("genai: create request: %w: %w", domain.ErrProviderPermanent, err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if c.apiKey != "" {
		q := req.URL.Query()
		q.Set("key", c.apiKey)
		req.URL.RawQuery = q.Encode()
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("genai: %s %s: %w: %w", method, req.URL.Path, domain.ErrProviderPermanent, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		return nil, readAPIError(resp)
	}
	return resp, nil
}

func (c *Client) doJSON(ctx context.Context, method, endpoint string, payload, out any) error {
	var body []byte
	header := http.Header{}
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("genai: marshal request: %w: %w", domain.ErrProviderPermanent, err)
		}
		body = encoded
		header.Set("Content-Type", "application/json")
	}
	resp, err := c.do(ctx, method, endpoint, header, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("genai: decode response: %w: %w", domain.ErrProviderPermanent, err)
	}
	return nil
}

func readAPIError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var parsed errorResponse
	if err := json.Unmarshal(data, &parsed); err == nil && parsed.Error.Message != "" {
		apiErr.Message = parsed.Error.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	return apiErr
}

var _ domain.ImageProvider = (*Client)(nil)
