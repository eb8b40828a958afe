package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"storefront/internal/domain"
	"storefront/internal/generation"
	"storefront/internal/middleware"
)

const (
	maxCreateBody  = 64 << 10
	maxWebhookBody = 20 << 20
)

type jobView struct {
	ID             string         `json:"id"`
	Status         string         `json:"status"`
	Anonymous      bool           `json:"anonymous"`
	Prompt         string         `json:"prompt"`
	ExpandedPrompt string         `json:"expanded_prompt,omitempty"`
	Style          string         `json:"style,omitempty"`
	Franchise      string         `json:"franchise,omitempty"`
	Width          int            `json:"width,omitempty"`
	Height         int            `json:"height,omitempty"`
	VariantCount   int            `json:"variant_count"`
	ResultURL      *string        `json:"result_url"`
	ExtraURLs      []string       `json:"extra_urls"`
	ErrorMessage   *string        `json:"error_message"`
	Provider       string         `json:"provider"`
	Model          string         `json:"model,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	StartedAt      *time.Time     `json:"started_at"`
	CompletedAt    *time.Time     `json:"completed_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func newJobView(job *domain.GenerationJob) jobView {
	extra := job.ExtraURLs
	if extra == nil {
		extra = []string{}
	}
	meta := make(map[string]any, len(job.Metadata))
	for k, v := range job.Metadata {
		if k == domain.MetaClientToken {
			continue
		}
		meta[k] = v
	}
	return jobView{
		ID:             job.ID,
		Status:         string(job.Status),
		Anonymous:      job.Owner == nil,
		Prompt:         job.Prompt,
		ExpandedPrompt: job.ExpandedPrompt,
		Style:          job.Style,
		Franchise:      job.Franchise,
		Width:          job.Width,
		Height:         job.Height,
		VariantCount:   job.VariantCount(),
		ResultURL:      job.ResultURL,
		ExtraURLs:      extra,
		ErrorMessage:   job.ErrorMessage,
		Provider:       job.Provider,
		Model:          job.Model,
		Metadata:       meta,
		CreatedAt:      job.CreatedAt,
		StartedAt:      job.StartedAt,
		CompletedAt:    job.CompletedAt,
		UpdatedAt:      job.UpdatedAt,
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errors.New("payload too large")
		}
		return errors.New("invalid payload")
	}
	return nil
}

// CreateDesignJob handles POST /v1/designs/jobs. Completed and failed jobs
// answer 201; jobs still in flight answer 202 and are read back by id.
func (a *App) CreateDesignJob(w http.ResponseWriter, r *http.Request) {
	var req generation.CreateRequest
	if err := decodeJSON(w, r, maxCreateBody, &req); err != nil {
		a.error(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	req.UserID = middleware.UserIDFromContext(r.Context())
	req.ClientToken = middleware.ClientTokenFromContext(r.Context())
	req.Locale = middleware.LocaleFromContext(r.Context())

	job, err := a.Designs.Create(r.Context(), req)
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	code := http.StatusAccepted
	if job.Status.Terminal() {
		code = http.StatusCreated
	}
	a.json(w, code, newJobView(job))
}

// GetDesignJob handles GET /v1/designs/jobs/{job_id}.
func (a *App) GetDesignJob(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimSpace(chi.URLParam(r, "job_id"))
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "invalid_input", "job_id required")
		return
	}
	job, err := a.Designs.Get(r.Context(), jobID,
		middleware.UserIDFromContext(r.Context()),
		middleware.ClientTokenFromContext(r.Context()))
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, newJobView(job))
}

// DesignWebhook handles POST /v1/designs/webhook from external workers.
func (a *App) DesignWebhook(w http.ResponseWriter, r *http.Request) {
	if !a.Designs.VerifyWebhookSecret(r.Header.Get("X-Webhook-Secret")) {
		a.error(w, http.StatusUnauthorized, "unauthenticated", "invalid webhook secret")
		return
	}
	var ev generation.WebhookEvent
	if err := decodeJSON(w, r, maxWebhookBody, &ev); err != nil {
		a.error(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	job, err := a.Designs.CompleteFromWebhook(r.Context(), ev)
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, newJobView(job))
}

// ClaimDesigns handles POST /v1/designs/claim for a freshly signed-in user.
func (a *App) ClaimDesigns(w http.ResponseWriter, r *http.Request) {
	n, err := a.Designs.Claim(r.Context(),
		middleware.UserIDFromContext(r.Context()),
		middleware.ClientTokenFromContext(r.Context()))
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]int64{"claimed": n})
}
