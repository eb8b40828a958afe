package domain

import "context"

// GenerateRequest describes a single image generation call.
type GenerateRequest struct {
	Prompt      string
	AspectRatio string
	Seed        *int64
	RequestID   string
}

// GeneratedImage is the raw output of one generation call.
type GeneratedImage struct {
	Data     []byte
	MIMEType string
}

// BatchOperation is the provider's view of a submitted batch.
type BatchOperation struct {
	Name       string
	Done       bool
	Succeeded  bool
	State      string
	Payload    any
	ResultFile string
	Error      string
}

// ImagePayload is an image found inside a provider response tree.
type ImagePayload struct {
	Data     []byte
	MIMEType string
}

// ImageProvider is the generative image API consumed by the orchestrator.
// Transient failures wrap ErrProviderTransient, all others ErrProviderPermanent.
type ImageProvider interface {
	Generate(ctx context.Context, req GenerateRequest) (*GeneratedImage, error)
	// EncodeBatchInput renders a batch input file with one entry per request,
	// keyed by its RequestID.
	EncodeBatchInput(reqs []GenerateRequest) ([]byte, error)
	UploadFile(ctx context.Context, data []byte, contentType, displayName string) (string, error)
	SubmitBatch(ctx context.Context, fileHandle string, variantCount int) (string, error)
	PollOperation(ctx context.Context, handle string) (*BatchOperation, error)
	DownloadFile(ctx context.Context, fileHandle string) ([]byte, error)
	Model() string
}
