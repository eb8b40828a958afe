package generation

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/domain"
)

// NeedsFinalize reports whether job is an in-flight batch job.
func NeedsFinalize(job *domain.GenerationJob) bool {
	return job != nil && !job.Status.Terminal() && job.Provider == domain.ProviderBatch
}

// Finalize advances an in-flight batch job by polling its operation once. It
// never blocks waiting for the provider; a job that is not ready is returned
// unchanged. Terminal jobs are returned without any provider call or write.
func (s *Service) Finalize(ctx context.Context, job *domain.GenerationJob) (*domain.GenerationJob, error) {
	if !NeedsFinalize(job) {
		return job, nil
	}
	log := s.logger.With().Str("job_id", job.ID).Logger()

	if job.OperationHandle == nil || *job.OperationHandle == "" {
		since := job.CreatedAt
		if job.StartedAt != nil {
			since = *job.StartedAt
		}
		if s.now().Sub(since) > s.cfg.MissingOperationTTL {
			return s.fail(ctx, job, fmt.Sprintf("missing operation; timed out after %s: %v", s.cfg.MissingOperationTTL, domain.ErrTimeout)), nil
		}
		return job, nil
	}

	callCtx, cancel := s.providerCtx(ctx)
	op, err := s.provider.PollOperation(callCtx, *job.OperationHandle)
	cancel()
	if err != nil {
		if isTransient(err) {
			log.Warn().Err(err).Msg("poll operation failed; will retry on next read")
			return job, nil
		}
		return s.fail(ctx, job, fmt.Sprintf("poll operation: %v", err)), nil
	}
	if !op.Done {
		log.Debug().Str("state", op.State).Msg("batch still running")
		return job, nil
	}
	if !op.Succeeded {
		msg := op.Error
		if msg == "" {
			msg = "batch ended in state " + op.State
		}
		return s.fail(ctx, job, "batch failed: "+msg), nil
	}

	images, err := s.collectImages(ctx, op)
	if err != nil {
		return s.fail(ctx, job, err.Error()), nil
	}
	if len(images) == 0 {
		return s.fail(ctx, job, "batch completed without images"), nil
	}
	if limit := min(job.VariantCount(), s.cfg.MaxVariants); limit > 0 && len(images) > limit {
		images = images[:limit]
	}

	urls := make([]string, 0, len(images))
	for i, img := range images {
		url, err := s.blobs.Put(ctx, blobKey(job, variantLabel(i), img.Data, img.MIMEType), img.Data, img.MIMEType)
		if err != nil {
			return s.fail(ctx, job, fmt.Sprintf("store batch image %d: %v", i+1, err)), nil
		}
		urls = append(urls, url)
	}

	now := s.now()
	patch := domain.JobPatch{
		Status:      domain.Ptr(domain.JobStatusCompleted),
		ResultURL:   &urls[0],
		ExtraURLs:   urls[1:],
		CompletedAt: &now,
	}
	if ms, ok := processingMS(job, now); ok {
		patch.Metadata = map[string]any{domain.MetaProcessingMS: ms}
	}
	if err := s.persist(ctx, job, patch); err != nil {
		if errors.Is(err, domain.ErrJobFinalized) {
			return s.reconcile(ctx, job, err), nil
		}
		return job, err
	}
	log.Info().Int("images", len(urls)).Msg("batch job completed")
	return job, nil
}

func (s *Service) collectImages(ctx context.Context, op *domain.BatchOperation) ([]domain.ImagePayload, error) {
	if op.Payload != nil {
		if images := FindImages(op.Payload); len(images) > 0 {
			return images, nil
		}
	}
	if op.ResultFile == "" {
		return nil, nil
	}
	callCtx, cancel := s.providerCtx(ctx)
	defer cancel()
	data, err := s.provider.DownloadFile(callCtx, op.ResultFile)
	if err != nil {
		return nil, fmt.Errorf("download batch results: %v", err)
	}
	lines, err := decodeResultFile(data)
	if err != nil {
		return nil, fmt.Errorf("decode batch results: %v", err)
	}
	var images []domain.ImagePayload
	for _, line := range lines {
		images = append(images, FindImages(line)...)
	}
	return images, nil
}
