package generation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"storefront/internal/domain"
	"storefront/internal/retry"
)

// batchRequests keys each variant variant-<i> so results map back to it.
func batchRequests(variants []string, aspectRatio string, seed *int64) []domain.GenerateRequest {
	reqs := make([]domain.GenerateRequest, 0, len(variants))
	for i, v := range variants {
		reqs = append(reqs, domain.GenerateRequest{
			Prompt:      v,
			AspectRatio: aspectRatio,
			Seed:        seed,
			RequestID:   variantLabel(i),
		})
	}
	return reqs
}

// SubmitBatch uploads the variants as a JSONL file and submits one batch for
// them. Any failure marks the job failed so no processing job is left
// without an operation handle.
func (s *Service) SubmitBatch(ctx context.Context, job *domain.GenerationJob) *domain.GenerationJob {
	log := s.logger.With().Str("job_id", job.ID).Str("provider", domain.ProviderBatch).Logger()

	started := s.now()
	if out, ok := s.advance(ctx, job, domain.JobPatch{
		Status:    domain.Ptr(domain.JobStatusProcessing),
		StartedAt: &started,
		Provider:  domain.Ptr(domain.ProviderBatch),
		Model:     domain.Ptr(s.provider.Model()),
	}, "start processing"); !ok {
		return out
	}

	variants := job.Variants
	if len(variants) == 0 {
		variants = BuildVariants(basePrompt(job.Prompt, job.ExpandedPrompt, job.Style, job.Franchise), nil, s.cfg.MaxVariants)
	}
	input, err := s.provider.EncodeBatchInput(batchRequests(variants, ResolveAspectRatio(job.Width, job.Height), job.Seed))
	if err != nil {
		return s.fail(ctx, job, fmt.Sprintf("encode batch input: %v", err))
	}

	policy := s.retry
	policy.OnRetry = func(attempt int, err error, wait time.Duration) {
		log.Warn().Err(err).Int("attempt", attempt).Dur("wait", wait).Msg("transient batch call failure; retrying")
	}

	fileHandle, err := retry.Do(ctx, policy, func(ctx context.Context) (string, error) {
		callCtx, cancel := s.providerCtx(ctx)
		defer cancel()
		return s.provider.UploadFile(callCtx, input, "application/jsonl", "design-job-"+job.ID)
	})
	if err != nil {
		return s.fail(ctx, job, fmt.Sprintf("upload batch input: %v", err))
	}
	if strings.TrimSpace(fileHandle) == "" {
		return s.fail(ctx, job, "upload batch input: provider returned no file handle")
	}
	if out, ok := s.advance(ctx, job, domain.JobPatch{SourceFileHandle: &fileHandle}, "record batch input"); !ok {
		return out
	}

	opHandle, err := retry.Do(ctx, policy, func(ctx context.Context) (string, error) {
		callCtx, cancel := s.providerCtx(ctx)
		defer cancel()
		return s.provider.SubmitBatch(callCtx, fileHandle, len(variants))
	})
	if err != nil {
		return s.fail(ctx, job, fmt.Sprintf("submit batch: %v", err))
	}
	if strings.TrimSpace(opHandle) == "" {
		return s.fail(ctx, job, "submit batch: provider returned no operation handle")
	}

	if out, ok := s.advance(ctx, job, domain.JobPatch{
		OperationHandle: &opHandle,
		Metadata:        map[string]any{domain.MetaSubmittedAt: s.now().Format(time.RFC3339)},
	}, "record batch operation"); !ok {
		return out
	}
	log.Info().Str("operation", opHandle).Str("file", fileHandle).Int("variants", len(variants)).Msg("batch submitted")
	return job
}
