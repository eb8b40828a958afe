// Package generation orchestrates design generation jobs: creation, direct
// and batch execution, poll-on-read finalization, webhook completion and
// anonymous ownership claims.
package generation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"storefront/internal/domain"
	"storefront/internal/infra"
	"storefront/internal/providers/prompt"
	"storefront/internal/retry"
)

// Mode selects the execution strategy for every job the service creates.
type Mode string

const (
	ModeDirect Mode = "direct"
	ModeBatch  Mode = "batch"
)

// ParseMode converts a configuration value into a Mode.
func ParseMode(v string) (Mode, error) {
	switch Mode(v) {
	case ModeDirect, ModeBatch:
		return Mode(v), nil
	}
	return "", fmt.Errorf("generation: unknown mode %q", v)
}

// Config is the static orchestrator configuration built once in main.
type Config struct {
	Mode                Mode
	AllowAnonymous      bool
	DirectAsync         bool
	MaxVariants         int
	ProviderTimeout     time.Duration
	ExpandTimeout       time.Duration
	MissingOperationTTL time.Duration
	WebhookSecret       string
	// Retry overrides the provider retry policy. IsTransient defaults to
	// domain.ErrProviderTransient matching.
	Retry retry.Policy
}

// Deps are the collaborators the service drives.
type Deps struct {
	Store    domain.JobStore
	Blobs    domain.BlobUploader
	Provider domain.ImageProvider
	Expander prompt.Expander
	Logger   *infra.Logger
	Clock    func() time.Time
}

type Service struct {
	cfg      Config
	store    domain.JobStore
	blobs    domain.BlobUploader
	provider domain.ImageProvider
	expander prompt.Expander
	logger   infra.Logger
	now      func() time.Time
	validate *validator.Validate
	retry    retry.Policy
	wg       sync.WaitGroup
}

func New(cfg Config, deps Deps) (*Service, error) {
	if deps.Store == nil || deps.Blobs == nil || deps.Provider == nil {
		return nil, errors.New("generation: store, blob uploader and provider are required")
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeDirect
	}
	if _, err := ParseMode(string(cfg.Mode)); err != nil {
		return nil, err
	}
	if cfg.MaxVariants <= 0 || cfg.MaxVariants > domain.DefaultVariantCount {
		cfg.MaxVariants = domain.DefaultVariantCount
	}
	if cfg.MissingOperationTTL <= 0 {
		cfg.MissingOperationTTL = 15 * time.Minute
	}
	if cfg.ExpandTimeout <= 0 {
		cfg.ExpandTimeout = 20 * time.Second
	}

	policy := cfg.Retry
	if policy.MaxAttempts == 0 {
		defaults := retry.Default(nil)
		policy.MaxAttempts = defaults.MaxAttempts
		if policy.BaseDelay == 0 {
			policy.BaseDelay = defaults.BaseDelay
		}
		if policy.MaxDelay == 0 {
			policy.MaxDelay = defaults.MaxDelay
		}
	}
	if policy.IsTransient == nil {
		policy.IsTransient = isTransient
	}

	logger := infra.Logger(zerolog.New(io.Discard))
	if deps.Logger != nil {
		logger = infra.Component(*deps.Logger, "generation")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		cfg:      cfg,
		store:    deps.Store,
		blobs:    deps.Blobs,
		provider: deps.Provider,
		expander: deps.Expander,
		logger:   logger,
		now:      func() time.Time { return clock().UTC() },
		validate: validator.New(validator.WithRequiredStructEnabled()),
		retry:    policy,
	}, nil
}

// Mode reports the configured execution strategy.
func (s *Service) Mode() Mode {
	return s.cfg.Mode
}

// Wait blocks until detached direct executions have finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) goDetached(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

func isTransient(err error) bool {
	return errors.Is(err, domain.ErrProviderTransient)
}

// write validates the transition, persists patch and mirrors it onto job.
func (s *Service) write(ctx context.Context, job *domain.GenerationJob, patch domain.JobPatch) error {
	if patch.Status != nil && !domain.CanTransition(job.Status, *patch.Status) {
		return fmt.Errorf("job %s %s -> %s: %w", job.ID, job.Status, *patch.Status, domain.ErrInvalidTransition)
	}
	if err := s.store.Update(ctx, job.ID, patch); err != nil {
		return err
	}
	patch.Apply(job)
	job.UpdatedAt = s.now()
	return nil
}

// fail moves job to failed. When another path already finalized the job the
// stored row is returned instead.
func (s *Service) fail(ctx context.Context, job *domain.GenerationJob, message string) *domain.GenerationJob {
	now := s.now()
	patch := domain.JobPatch{
		Status:       domain.Ptr(domain.JobStatusFailed),
		ErrorMessage: domain.Ptr(message),
		CompletedAt:  &now,
	}
	if ms, ok := processingMS(job, now); ok {
		patch.Metadata = map[string]any{domain.MetaProcessingMS: ms}
	}
	if err := s.persist(ctx, job, patch); err != nil {
		return s.reconcile(ctx, job, err)
	}
	s.logger.Warn().Str("job_id", job.ID).Str("error", message).Msg("generation job failed")
	return job
}

// persist is write with store failures retried under the service policy.
// Lost races and rejected transitions are returned at once.
func (s *Service) persist(ctx context.Context, job *domain.GenerationJob, patch domain.JobPatch) error {
	policy := s.retry
	policy.IsTransient = retryableWrite
	policy.OnRetry = func(attempt int, err error, wait time.Duration) {
		s.logger.Warn().Err(err).Str("job_id", job.ID).Int("attempt", attempt).Dur("wait", wait).Msg("job update failed; retrying")
	}
	_, err := retry.Do(ctx, policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.write(ctx, job, patch)
	})
	return err
}

func retryableWrite(err error) bool {
	switch {
	case errors.Is(err, domain.ErrJobFinalized),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

// advance persists an in-flight step. A store that keeps failing fails the
// job, so an executor never leaves it queued or processing. ok is false when
// the caller must stop and return out.
func (s *Service) advance(ctx context.Context, job *domain.GenerationJob, patch domain.JobPatch, step string) (out *domain.GenerationJob, ok bool) {
	err := s.persist(ctx, job, patch)
	switch {
	case err == nil:
		return job, true
	case errors.Is(err, domain.ErrJobFinalized), errors.Is(err, domain.ErrNotFound):
		return s.reconcile(ctx, job, err), false
	}
	s.logger.Error().Err(err).Str("job_id", job.ID).Str("step", step).Msg("persist job update failed")
	return s.fail(ctx, job, fmt.Sprintf("%s: persist failed: %v", step, err)), false
}

// reconcile handles a failed write: a concurrent terminal write wins and is
// reloaded, anything else is logged and the in-memory job is returned.
func (s *Service) reconcile(ctx context.Context, job *domain.GenerationJob, err error) *domain.GenerationJob {
	if errors.Is(err, domain.ErrJobFinalized) {
		if stored, getErr := s.store.Get(ctx, job.ID); getErr == nil {
			s.logger.Info().Str("job_id", job.ID).Str("status", string(stored.Status)).Msg("job finalized concurrently")
			return stored
		}
	}
	s.logger.Error().Err(err).Str("job_id", job.ID).Msg("persist job update failed")
	return job
}

func processingMS(job *domain.GenerationJob, now time.Time) (int64, bool) {
	if job.StartedAt == nil {
		return 0, false
	}
	return now.Sub(*job.StartedAt).Milliseconds(), true
}

func (s *Service) providerCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.ProviderTimeout > 0 {
		return context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	}
	return context.WithCancel(ctx)
}

func cloneJob(job *domain.GenerationJob) *domain.GenerationJob {
	if job == nil {
		return nil
	}
	c := *job
	c.Variants = append([]string(nil), job.Variants...)
	c.ExtraURLs = append([]string(nil), job.ExtraURLs...)
	if job.Metadata != nil {
		c.Metadata = make(map[string]any, len(job.Metadata))
		for k, v := range job.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}
