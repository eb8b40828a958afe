package generation

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"storefront/internal/domain"
)

// WebhookEvent is the completion callback posted by an external worker.
type WebhookEvent struct {
	JobID        string `json:"job_id" validate:"required"`
	Status       string `json:"status" validate:"required,oneof=completed failed"`
	ImageBase64  string `json:"image_base64"`
	ImageURL     string `json:"image_url" validate:"omitempty,url"`
	ContentType  string `json:"content_type" validate:"omitempty,max=100"`
	Error        string `json:"error" validate:"max=2000"`
	ProcessingMS *int64 `json:"processing_ms" validate:"omitempty,gte=0"`
}

// VerifyWebhookSecret compares the shared secret in constant time. An unset
// secret accepts every caller.
func (s *Service) VerifyWebhookSecret(provided string) bool {
	if s.cfg.WebhookSecret == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(s.cfg.WebhookSecret)) == 1
}

// CompleteFromWebhook applies an external completion. The first terminal
// write wins: a webhook for a job that is already completed or failed returns
// domain.ErrJobFinalized and changes nothing.
func (s *Service) CompleteFromWebhook(ctx context.Context, ev WebhookEvent) (*domain.GenerationJob, error) {
	if err := s.validate.Struct(ev); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, fmt.Errorf("%s failed %s: %w", strings.ToLower(verrs[0].Field()), verrs[0].Tag(), domain.ErrInvalidInput)
		}
		return nil, fmt.Errorf("%v: %w", err, domain.ErrInvalidInput)
	}
	job, err := s.store.Get(ctx, strings.TrimSpace(ev.JobID))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load job: %w: %w", domain.ErrStorageFailure, err)
	}
	if job.Status.Terminal() {
		return job, domain.ErrJobFinalized
	}

	now := s.now()
	patch := domain.JobPatch{CompletedAt: &now}
	if job.StartedAt == nil {
		patch.StartedAt = &now
	}
	meta := map[string]any{"completed_via": domain.ProviderWebhook}
	if ev.ProcessingMS != nil {
		meta[domain.MetaProcessingMS] = *ev.ProcessingMS
	}
	patch.Metadata = meta

	switch domain.JobStatus(ev.Status) {
	case domain.JobStatusCompleted:
		url, err := s.webhookResultURL(ctx, job, ev)
		if err != nil {
			return nil, err
		}
		patch.Status = domain.Ptr(domain.JobStatusCompleted)
		switch {
		case job.ResultURL == nil:
			patch.ResultURL = &url
		case len(job.ExtraURLs) < job.VariantCount()-1:
			// A direct job already has its first variant; the hook's image joins the rest.
			patch.ExtraURLs = append(append([]string(nil), job.ExtraURLs...), url)
		default:
			meta[domain.MetaWebhookResultURL] = url
			s.logger.Warn().Str("job_id", job.ID).Str("url", url).Msg("webhook image kept in metadata; all variant slots are filled")
		}
	default:
		msg := strings.TrimSpace(ev.Error)
		if msg == "" {
			msg = "generation failed in external worker"
		}
		patch.Status = domain.Ptr(domain.JobStatusFailed)
		patch.ErrorMessage = &msg
	}

	if err := s.write(ctx, job, patch); err != nil {
		if errors.Is(err, domain.ErrJobFinalized) {
			return nil, err
		}
		return nil, fmt.Errorf("apply webhook: %w: %w", domain.ErrStorageFailure, err)
	}
	s.logger.Info().Str("job_id", job.ID).Str("status", ev.Status).Msg("webhook applied")
	return job, nil
}

func (s *Service) webhookResultURL(ctx context.Context, job *domain.GenerationJob, ev WebhookEvent) (string, error) {
	if b64 := strings.TrimSpace(ev.ImageBase64); b64 != "" {
		data, ok := decodeImageData(b64)
		if !ok {
			return "", fmt.Errorf("image_base64 is not valid base64: %w", domain.ErrInvalidInput)
		}
		contentType := defaultMIME(strings.TrimSpace(ev.ContentType))
		url, err := s.blobs.Put(ctx, blobKey(job, "webhook", data, contentType), data, contentType)
		if err != nil {
			return "", fmt.Errorf("store webhook image: %w", err)
		}
		return url, nil
	}
	if u := strings.TrimSpace(ev.ImageURL); u != "" {
		return u, nil
	}
	return "", fmt.Errorf("completed webhook needs image_base64 or image_url: %w", domain.ErrInvalidInput)
}
