package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"storefront/internal/domain"
)

type batchInputConfig struct {
	FileName string `json:"file_name"`
}

type batchSpec struct {
	DisplayName string           `json:"display_name"`
	InputConfig batchInputConfig `json:"input_config"`
}

type batchRequest struct {
	Batch batchSpec `json:"batch"`
}

type operation struct {
	Name     string         `json:"name"`
	Done     bool           `json:"done"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Response map[string]any `json:"response,omitempty"`
	Error    *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// BatchLine is one entry of a batch input file.
type BatchLine struct {
	Key     string                 `json:"key"`
	Request GenerateContentRequest `json:"request"`
}

// EncodeBatchInput renders the JSONL batch input file, one BatchLine per
// request keyed by its RequestID.
func (c *Client) EncodeBatchInput(reqs []domain.GenerateRequest) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, req := range reqs {
		key := strings.TrimSpace(req.RequestID)
		if key == "" {
			return nil, fmt.Errorf("genai: batch request without a key: %w", domain.ErrProviderPermanent)
		}
		if err := enc.Encode(BatchLine{Key: key, Request: NewImageRequest(req.Prompt, req.AspectRatio, req.Seed)}); err != nil {
			return nil, fmt.Errorf("genai: encode batch line %s: %w: %w", key, domain.ErrProviderPermanent, err)
		}
	}
	return buf.Bytes(), nil
}

// SubmitBatch starts an asynchronous batch over a previously uploaded JSONL
// file and returns the operation handle ("batches/<id>").
func (c *Client) SubmitBatch(ctx context.Context, fileHandle string, variantCount int) (string, error) {
	fileHandle = strings.TrimSpace(fileHandle)
	if fileHandle == "" {
		return "", fmt.Errorf("genai: batch input file is required: %w", domain.ErrProviderPermanent)
	}
	if c.Synthetic() {
		return syntheticSubmit(fileHandle)
	}

	payload := batchRequest{Batch: batchSpec{
		DisplayName: fmt.Sprintf("designs-%d-variants-%d", time.Now().UTC().Unix(), variantCount),
		InputConfig: batchInputConfig{FileName: fileHandle},
	}}
	var op operation
	endpoint := c.apiURL(fmt.Sprintf("models/%s:batchGenerateContent", url.PathEscape(c.model)))
	if err := c.doJSON(ctx, http.MethodPost, endpoint, payload, &op); err != nil {
		return "", err
	}
	if op.Name == "" {
		return "", fmt.Errorf("genai: batch submission returned no operation name: %w", domain.ErrProviderPermanent)
	}
	c.logger.Info().
		Str("operation", op.Name).
		Str("file", fileHandle).
		Int("variants", variantCount).
		Msg("genai: batch submitted")
	return op.Name, nil
}

// PollOperation reads the current state of a batch.
func (c *Client) PollOperation(ctx context.Context, handle string) (*domain.BatchOperation, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return nil, fmt.Errorf("genai: operation handle is required: %w", domain.ErrProviderPermanent)
	}
	if c.Synthetic() {
		return syntheticPoll(handle)
	}

	var op operation
	if err := c.doJSON(ctx, http.MethodGet, c.apiURL(handle), nil, &op); err != nil {
		return nil, err
	}
	return op.toDomain(handle), nil
}

var failedStates = map[string]bool{
	"BATCH_STATE_FAILED":    true,
	"BATCH_STATE_CANCELLED": true,
	"BATCH_STATE_EXPIRED":   true,
	"JOB_STATE_FAILED":      true,
	"JOB_STATE_CANCELLED":   true,
	"JOB_STATE_EXPIRED":     true,
}

var succeededStates = map[string]bool{
	"BATCH_STATE_SUCCEEDED": true,
	"JOB_STATE_SUCCEEDED":   true,
}

func (op operation) toDomain(handle string) *domain.BatchOperation {
	out := &domain.BatchOperation{Name: op.Name}
	if out.Name == "" {
		out.Name = handle
	}
	out.State = firstString(lookup(op.Metadata, "state"), lookup(op.Response, "state"))
	out.Done = op.Done || succeededStates[out.State] || failedStates[out.State]
	if op.Error != nil && op.Error.Message != "" {
		out.Error = op.Error.Message
	}

	out.ResultFile = firstString(
		lookup(op.Response, "responsesFile"),
		lookup(op.Response, "output", "responsesFile"),
		lookup(op.Metadata, "output", "responsesFile"),
	)
	for _, candidate := range []any{
		lookup(op.Response, "inlinedResponses"),
		lookup(op.Response, "output", "inlinedResponses"),
		lookup(op.Metadata, "output", "inlinedResponses"),
	} {
		if candidate != nil {
			out.Payload = candidate
			break
		}
	}

	out.Succeeded = out.Done && out.Error == "" && !failedStates[out.State]
	if out.Done && !out.Succeeded && out.Error == "" {
		out.Error = "batch ended in state " + firstString(out.State, "unknown")
	}
	return out
}

func lookup(m map[string]any, path ...string) any {
	var cur any = m
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = obj[key]
	}
	return cur
}

func firstString(values ...any) string {
	for _, v := range values {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}
