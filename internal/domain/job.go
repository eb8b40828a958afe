package domain

import "time"

// JobStatus enumerates generation job lifecycle states.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Execution providers recorded on a job.
const (
	ProviderDirect  = "direct"
	ProviderBatch   = "batch"
	ProviderWebhook = "webhook"
)

// Metadata keys stored in GenerationJob.Metadata.
const (
	MetaClientToken  = "client_token"
	MetaVariantCount = "variant_count"
	MetaSubmittedAt  = "submitted_at"
	MetaProcessingMS = "processing_ms"

	// MetaWebhookResultURL holds a webhook image that arrived after every
	// variant slot was already filled.
	MetaWebhookResultURL = "webhook_result_url"
)

// DefaultVariantCount is the number of designs produced when the caller does
// not supply its own prompt variants.
const DefaultVariantCount = 3

// Terminal reports whether no further transition is possible.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Valid reports whether s is one of the known states.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusQueued, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// CanTransition validates a status write. processing -> processing is allowed
// so executors can persist incremental progress.
func CanTransition(from, to JobStatus) bool {
	switch from {
	case JobStatusQueued:
		return to == JobStatusProcessing || to == JobStatusCompleted || to == JobStatusFailed
	case JobStatusProcessing:
		return to == JobStatusProcessing || to == JobStatusCompleted || to == JobStatusFailed
	default:
		return false
	}
}

// GenerationJob is one user-initiated request to produce designs from a prompt.
type GenerationJob struct {
	ID               string
	Owner            *string
	ClientToken      string
	Prompt           string
	ExpandedPrompt   string
	Style            string
	Franchise        string
	Width            int
	Height           int
	Seed             *int64
	Variants         []string
	Status           JobStatus
	ResultURL        *string
	ExtraURLs        []string
	ErrorMessage     *string
	Provider         string
	Model            string
	OperationHandle  *string
	SourceFileHandle *string
	Metadata         map[string]any
	CreatedAt        time.Time
	StartedAt        *time.Time
	CompletedAt      *time.Time
	UpdatedAt        time.Time
}

// VariantCount returns the number of variants requested for the job.
func (j *GenerationJob) VariantCount() int {
	if j == nil {
		return 0
	}
	switch v := j.Metadata[MetaVariantCount].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	if len(j.Variants) > 0 {
		return len(j.Variants)
	}
	return DefaultVariantCount
}

// OwnerID returns the authenticated owner or an empty string.
func (j *GenerationJob) OwnerID() string {
	if j == nil || j.Owner == nil {
		return ""
	}
	return *j.Owner
}

// AccessibleBy applies the accessor rule: an owned job is visible to its owner
// only, an anonymous job to the holder of its client token.
func (j *GenerationJob) AccessibleBy(userID, clientToken string) bool {
	if j == nil {
		return false
	}
	if j.Owner != nil {
		return userID != "" && *j.Owner == userID
	}
	return clientToken != "" && j.ClientToken == clientToken
}

// JobPatch carries the fields written by a single guarded update. Nil fields
// are left untouched.
type JobPatch struct {
	Status           *JobStatus
	ResultURL        *string
	ExtraURLs        []string
	ErrorMessage     *string
	Provider         *string
	Model            *string
	OperationHandle  *string
	SourceFileHandle *string
	StartedAt        *time.Time
	CompletedAt      *time.Time
	Metadata         map[string]any
}

// Apply mirrors the store's update semantics on an in-memory copy.
func (p JobPatch) Apply(job *GenerationJob) {
	if p.Status != nil {
		job.Status = *p.Status
	}
	if p.ResultURL != nil && job.ResultURL == nil {
		v := *p.ResultURL
		job.ResultURL = &v
	}
	if p.ExtraURLs != nil {
		job.ExtraURLs = append([]string(nil), p.ExtraURLs...)
	}
	if p.ErrorMessage != nil {
		v := *p.ErrorMessage
		job.ErrorMessage = &v
	}
	if p.Provider != nil {
		job.Provider = *p.Provider
	}
	if p.Model != nil {
		job.Model = *p.Model
	}
	if p.OperationHandle != nil {
		v := *p.OperationHandle
		job.OperationHandle = &v
	}
	if p.SourceFileHandle != nil {
		v := *p.SourceFileHandle
		job.SourceFileHandle = &v
	}
	if p.StartedAt != nil {
		v := *p.StartedAt
		job.StartedAt = &v
	}
	if p.CompletedAt != nil {
		v := *p.CompletedAt
		job.CompletedAt = &v
	}
	if len(p.Metadata) > 0 {
		if job.Metadata == nil {
			job.Metadata = map[string]any{}
		}
		for k, v := range p.Metadata {
			job.Metadata[k] = v
		}
	}
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
