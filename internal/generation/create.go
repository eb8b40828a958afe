package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"storefront/internal/domain"
	"storefront/internal/providers/prompt"
)

// CreateRequest carries the generation parameters and the caller identity.
type CreateRequest struct {
	Prompt         string   `json:"prompt" validate:"max=2000"`
	ExpandedPrompt string   `json:"expanded_prompt" validate:"max=4000"`
	Style          string   `json:"style" validate:"max=120"`
	Franchise      string   `json:"franchise" validate:"max=120"`
	Width          int      `json:"width" validate:"gte=0,lte=4096"`
	Height         int      `json:"height" validate:"gte=0,lte=4096"`
	Seed           *int64   `json:"seed"`
	Variants       []string `json:"variants" validate:"max=10,dive,max=2000"`
	Locale         string   `json:"-"`
	UserID         string   `json:"-"`
	ClientToken    string   `json:"-"`
}

// Create inserts a queued job and dispatches it to the configured executor.
// Direct mode runs before returning unless DirectAsync is set; batch mode
// returns once the batch is submitted.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*domain.GenerationJob, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" && !s.cfg.AllowAnonymous {
		return nil, domain.ErrUnauthenticated
	}
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, fmt.Errorf("%s failed %s: %w", strings.ToLower(verrs[0].Field()), verrs[0].Tag(), domain.ErrInvalidInput)
		}
		return nil, fmt.Errorf("%v: %w", err, domain.ErrInvalidInput)
	}
	rawPrompt := strings.TrimSpace(req.Prompt)
	expanded := strings.TrimSpace(req.ExpandedPrompt)
	if rawPrompt == "" && expanded == "" {
		return nil, fmt.Errorf("prompt is required: %w", domain.ErrInvalidInput)
	}

	token := strings.TrimSpace(req.ClientToken)
	if token == "" {
		token = uuid.NewString()
	}
	if expanded == "" {
		expanded = s.expand(ctx, req)
	}

	variants := BuildVariants(basePrompt(rawPrompt, expanded, req.Style, req.Franchise), req.Variants, s.cfg.MaxVariants)
	job := &domain.GenerationJob{
		ClientToken:    token,
		Prompt:         rawPrompt,
		ExpandedPrompt: expanded,
		Style:          strings.TrimSpace(req.Style),
		Franchise:      strings.TrimSpace(req.Franchise),
		Width:          req.Width,
		Height:         req.Height,
		Seed:           req.Seed,
		Variants:       variants,
		Status:         domain.JobStatusQueued,
		Provider:       string(s.cfg.Mode),
		Model:          s.provider.Model(),
		Metadata:       map[string]any{domain.MetaVariantCount: len(variants)},
	}
	if userID != "" {
		job.Owner = &userID
	}

	id, err := s.store.Insert(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w: %w", domain.ErrStorageFailure, err)
	}
	job.ID = id
	if job.CreatedAt.IsZero() {
		job.CreatedAt = s.now()
	}
	s.logger.Info().
		Str("job_id", id).
		Str("mode", string(s.cfg.Mode)).
		Int("variants", len(variants)).
		Bool("anonymous", userID == "").
		Msg("generation job created")

	// Execution outlives the request that triggered it.
	execCtx := context.WithoutCancel(ctx)
	switch s.cfg.Mode {
	case ModeBatch:
		return s.SubmitBatch(execCtx, job), nil
	default:
		if s.cfg.DirectAsync {
			snapshot := cloneJob(job)
			s.goDetached(func() { s.RunDirect(execCtx, job) })
			return snapshot, nil
		}
		return s.RunDirect(execCtx, job), nil
	}
}

// expand rewrites the raw prompt. Failures fall back to the raw prompt.
func (s *Service) expand(ctx context.Context, req CreateRequest) string {
	if s.expander == nil || strings.TrimSpace(req.Prompt) == "" {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ExpandTimeout)
	defer cancel()
	res, err := s.expander.Expand(ctx, prompt.ExpandRequest{
		Prompt:    req.Prompt,
		Style:     req.Style,
		Franchise: req.Franchise,
		Locale:    req.Locale,
	})
	if err != nil || res == nil {
		s.logger.Warn().Err(err).Msg("prompt expansion failed; using raw prompt")
		return ""
	}
	s.logger.Debug().Str("provider", res.Provider).Msg("prompt expanded")
	return strings.TrimSpace(res.Prompt)
}
