package generation

import (
	"context"
	"fmt"
	"time"

	"storefront/internal/domain"
	"storefront/internal/retry"
)

// RunDirect generates every variant in order, persisting after each one so
// readers see designs appear one at a time. The returned job reflects the
// last persisted state.
func (s *Service) RunDirect(ctx context.Context, job *domain.GenerationJob) *domain.GenerationJob {
	log := s.logger.With().Str("job_id", job.ID).Str("provider", domain.ProviderDirect).Logger()

	started := s.now()
	if out, ok := s.advance(ctx, job, domain.JobPatch{
		Status:    domain.Ptr(domain.JobStatusProcessing),
		StartedAt: &started,
		Provider:  domain.Ptr(domain.ProviderDirect),
		Model:     domain.Ptr(s.provider.Model()),
	}, "start processing"); !ok {
		return out
	}

	variants := job.Variants
	if len(variants) == 0 {
		variants = BuildVariants(basePrompt(job.Prompt, job.ExpandedPrompt, job.Style, job.Franchise), nil, s.cfg.MaxVariants)
	}
	ratio := ResolveAspectRatio(job.Width, job.Height)

	for i, variant := range variants {
		policy := s.retry
		policy.OnRetry = func(attempt int, err error, wait time.Duration) {
			log.Warn().Err(err).Int("variant", i).Int("attempt", attempt).Dur("wait", wait).Msg("transient provider failure; retrying")
		}
		img, err := retry.Do(ctx, policy, func(ctx context.Context) (*domain.GeneratedImage, error) {
			callCtx, cancel := s.providerCtx(ctx)
			defer cancel()
			return s.provider.Generate(callCtx, domain.GenerateRequest{
				Prompt:      variant,
				AspectRatio: ratio,
				Seed:        job.Seed,
				RequestID:   fmt.Sprintf("%s/%d", job.ID, i),
			})
		})
		if err != nil {
			return s.fail(ctx, job, fmt.Sprintf("variant %d of %d: generation failed: %v", i+1, len(variants), err))
		}

		url, err := s.blobs.Put(ctx, blobKey(job, variantLabel(i), img.Data, img.MIMEType), img.Data, img.MIMEType)
		if err != nil {
			return s.fail(ctx, job, fmt.Sprintf("variant %d of %d: upload failed: %v", i+1, len(variants), err))
		}

		patch := domain.JobPatch{Status: domain.Ptr(domain.JobStatusProcessing)}
		if i == 0 || job.ResultURL == nil {
			patch.ResultURL = &url
		} else {
			patch.ExtraURLs = append(append([]string(nil), job.ExtraURLs...), url)
		}
		if out, ok := s.advance(ctx, job, patch, fmt.Sprintf("variant %d of %d", i+1, len(variants))); !ok {
			return out
		}
		log.Debug().Int("variant", i).Str("url", url).Msg("variant stored")
	}

	now := s.now()
	patch := domain.JobPatch{
		Status:      domain.Ptr(domain.JobStatusCompleted),
		CompletedAt: &now,
	}
	if ms, ok := processingMS(job, now); ok {
		patch.Metadata = map[string]any{domain.MetaProcessingMS: ms}
	}
	if out, ok := s.advance(ctx, job, patch, "complete"); !ok {
		return out
	}
	log.Info().Int("variants", len(variants)).Msg("generation job completed")
	return job
}
