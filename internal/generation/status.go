package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"storefront/internal/domain"
)

// Get returns the job visible to the caller, finalizing in-flight batch jobs
// on the way. Jobs owned by someone else are reported as not found.
func (s *Service) Get(ctx context.Context, id, userID, clientToken string) (*domain.GenerationJob, error) {
	job, err := s.store.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load job: %w: %w", domain.ErrStorageFailure, err)
	}
	if !job.AccessibleBy(userID, clientToken) {
		return nil, domain.ErrNotFound
	}
	if !NeedsFinalize(job) {
		return job, nil
	}
	finalized, err := s.Finalize(context.WithoutCancel(ctx), job)
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("finalize on read failed")
		return job, nil
	}
	return finalized, nil
}
