package domain

import "context"

// JobStore persists generation jobs. Update applies the patch only while the
// stored job is non-terminal and returns ErrJobFinalized otherwise.
type JobStore interface {
	Insert(ctx context.Context, job *GenerationJob) (string, error)
	Get(ctx context.Context, id string) (*GenerationJob, error)
	Update(ctx context.Context, id string, patch JobPatch) error
	BulkReassign(ctx context.Context, clientToken, owner string) (int64, error)
	ListPendingBatch(ctx context.Context, limit int) ([]*GenerationJob, error)
}

// BlobUploader stores raw bytes and returns a retrievable URL.
type BlobUploader interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}
