package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"storefront/internal/domain"
	"storefront/internal/generation"
	"storefront/internal/infra"
	"storefront/internal/middleware"
)

// DesignService is the orchestrator surface the HTTP layer drives.
type DesignService interface {
	Create(ctx context.Context, req generation.CreateRequest) (*domain.GenerationJob, error)
	Get(ctx context.Context, id, userID, clientToken string) (*domain.GenerationJob, error)
	CompleteFromWebhook(ctx context.Context, ev generation.WebhookEvent) (*domain.GenerationJob, error)
	VerifyWebhookSecret(provided string) bool
	Claim(ctx context.Context, userID, clientToken string) (int64, error)
	Mode() generation.Mode
}

type App struct {
	Designs DesignService
	Logger  infra.Logger
	// Ping reports database health; nil skips the check.
	Ping func(ctx context.Context) error
}

func NewApp(designs DesignService, logger *infra.Logger, ping func(ctx context.Context) error) *App {
	l := infra.Logger(zerolog.New(io.Discard))
	if logger != nil {
		l = infra.Component(*logger, "http")
	}
	return &App{Designs: designs, Logger: l, Ping: ping}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	middleware.WriteError(w, code, errCode, message)
}

// serviceError maps orchestrator errors onto HTTP statuses.
func (a *App) serviceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		a.error(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
	case errors.Is(err, domain.ErrInvalidInput):
		a.error(w, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "job not found")
	case errors.Is(err, domain.ErrJobFinalized):
		a.error(w, http.StatusConflict, "job_finalized", "job already completed or failed")
	case errors.Is(err, domain.ErrStorageFailure):
		a.Logger.Error().Err(err).Str("request_id", middleware.RequestIDFromContext(r.Context())).Msg("storage failure")
		a.error(w, http.StatusInternalServerError, "storage_failure", "storage unavailable")
	default:
		a.Logger.Error().Err(err).Str("request_id", middleware.RequestIDFromContext(r.Context())).Msg("unhandled error")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
