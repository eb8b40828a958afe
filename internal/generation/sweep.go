package generation

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// SweepPending finalizes up to limit in-flight batch jobs with at most
// concurrency provider polls in flight, and returns how many reached a
// terminal state. Batch jobs nobody reads still complete this way.
func (s *Service) SweepPending(ctx context.Context, limit, concurrency int) (int, error) {
	jobs, err := s.store.ListPendingBatch(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list pending batch jobs: %w", err)
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	var finalized atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, job := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out, err := s.Finalize(gctx, job)
			if err != nil {
				s.logger.Error().Err(err).Str("job_id", job.ID).Msg("sweep finalize failed")
				return nil
			}
			if out.Status.Terminal() {
				finalized.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(finalized.Load()), err
	}
	if len(jobs) > 0 {
		s.logger.Debug().Int("pending", len(jobs)).Int64("finalized", finalized.Load()).Msg("batch sweep finished")
	}
	return int(finalized.Load()), nil
}
