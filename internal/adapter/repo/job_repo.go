package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"storefront/internal/domain"
	"storefront/internal/infra"
	"storefront/internal/sqlinline"
)

// JobRepositoryPG implements domain.JobStore on top of the marked-query runner.
type JobRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewJobRepository creates a job repository backed by PostgreSQL.
func NewJobRepository(sql infra.SQLExecutor) *JobRepositoryPG {
	return &JobRepositoryPG{sql: sql}
}

// Insert stores a new job and returns its identifier. The client token is kept
// inside metadata so the claim query can match on it.
func (r *JobRepositoryPG) Insert(ctx context.Context, job *domain.GenerationJob) (string, error) {
	if job == nil {
		return "", fmt.Errorf("insert job: %w", domain.ErrInvalidInput)
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = domain.JobStatusQueued
	}
	if !job.Status.Valid() {
		return "", fmt.Errorf("insert job: status %q: %w", job.Status, domain.ErrInvalidInput)
	}

	meta := make(map[string]any, len(job.Metadata)+2)
	for k, v := range job.Metadata {
		meta[k] = v
	}
	if job.ClientToken != "" {
		meta[domain.MetaClientToken] = job.ClientToken
	}
	if _, ok := meta[domain.MetaVariantCount]; !ok {
		meta[domain.MetaVariantCount] = job.VariantCount()
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("insert job: encode metadata: %w", err)
	}

	var (
		id        string
		createdAt time.Time
	)
	row := r.sql.QueryRow(ctx, sqlinline.QInsertGenerationJob,
		job.ID,
		job.Owner,
		job.Prompt,
		job.ExpandedPrompt,
		job.Style,
		job.Franchise,
		job.Width,
		job.Height,
		job.Seed,
		job.Variants,
		string(job.Status),
		job.Provider,
		job.Model,
		metaJSON,
	)
	if err := row.Scan(&id, &createdAt); err != nil {
		return "", fmt.Errorf("insert job: %w", err)
	}
	job.ID = id
	job.CreatedAt = createdAt
	job.UpdatedAt = createdAt
	job.Metadata = meta
	return id, nil
}

// Get fetches a job by its identifier.
func (r *JobRepositoryPG) Get(ctx context.Context, id string) (*domain.GenerationJob, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}
	job, err := scanJob(r.sql.QueryRow(ctx, sqlinline.QSelectGenerationJob, id))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return job, nil
}

// Update applies patch while the job is still queued or processing. A stored
// terminal job yields domain.ErrJobFinalized.
func (r *JobRepositoryPG) Update(ctx context.Context, id string, patch domain.JobPatch) error {
	if _, err := uuid.Parse(id); err != nil {
		return domain.ErrNotFound
	}
	var status *string
	if patch.Status != nil {
		if !patch.Status.Valid() || *patch.Status == domain.JobStatusQueued {
			return fmt.Errorf("update job %s to %q: %w", id, *patch.Status, domain.ErrInvalidTransition)
		}
		status = domain.Ptr(string(*patch.Status))
	}
	var metaJSON []byte
	if len(patch.Metadata) > 0 {
		encoded, err := json.Marshal(patch.Metadata)
		if err != nil {
			return fmt.Errorf("update job %s: encode metadata: %w", id, err)
		}
		metaJSON = encoded
	}

	tag, err := r.sql.Exec(ctx, sqlinline.QUpdateGenerationJob,
		id,
		status,
		patch.ResultURL,
		patch.ExtraURLs,
		patch.ErrorMessage,
		patch.Provider,
		patch.Model,
		patch.OperationHandle,
		patch.SourceFileHandle,
		patch.StartedAt,
		patch.CompletedAt,
		metaJSON,
	)
	if err != nil {
		return fmt.Errorf("update job %s: %w", id, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var current string
	if err := r.sql.QueryRow(ctx, sqlinline.QSelectGenerationJobStatus, id).Scan(&current); err != nil {
		if infra.IsNoRows(err) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("update job %s: check status: %w", id, err)
	}
	return fmt.Errorf("update job %s (%s): %w", id, current, domain.ErrJobFinalized)
}

// BulkReassign moves every anonymous job created under clientToken to owner.
func (r *JobRepositoryPG) BulkReassign(ctx context.Context, clientToken, owner string) (int64, error) {
	clientToken = strings.TrimSpace(clientToken)
	owner = strings.TrimSpace(owner)
	if clientToken == "" || owner == "" {
		return 0, nil
	}
	tag, err := r.sql.Exec(ctx, sqlinline.QClaimAnonymousJobs, clientToken, owner)
	if err != nil {
		return 0, fmt.Errorf("reassign jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListPendingBatch returns the oldest non-terminal batch jobs.
func (r *JobRepositoryPG) ListPendingBatch(ctx context.Context, limit int) ([]*domain.GenerationJob, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.sql.Query(ctx, sqlinline.QListPendingBatchJobs, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending batch jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*domain.GenerationJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("list pending batch jobs: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list pending batch jobs: %w", err)
	}
	return jobs, nil
}

func scanJob(row pgx.Row) (*domain.GenerationJob, error) {
	var (
		job      domain.GenerationJob
		status   string
		metaJSON []byte
	)
	if err := row.Scan(
		&job.ID,
		&job.Owner,
		&job.Prompt,
		&job.ExpandedPrompt,
		&job.Style,
		&job.Franchise,
		&job.Width,
		&job.Height,
		&job.Seed,
		&job.Variants,
		&status,
		&job.ResultURL,
		&job.ExtraURLs,
		&job.ErrorMessage,
		&job.Provider,
		&job.Model,
		&job.OperationHandle,
		&job.SourceFileHandle,
		&metaJSON,
		&job.CreatedAt,
		&job.StartedAt,
		&job.CompletedAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	job.Status = domain.JobStatus(status)
	job.Metadata = map[string]any{}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &job.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	if token, ok := job.Metadata[domain.MetaClientToken].(string); ok {
		job.ClientToken = token
	}
	return &job, nil
}

var _ domain.JobStore = (*JobRepositoryPG)(nil)
