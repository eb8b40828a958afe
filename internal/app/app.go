// Package app assembles the generation service from configuration. The API
// server and the batch worker share it so both run the same orchestrator.
package app

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"storefront/internal/adapter/repo"
	"storefront/internal/generation"
	"storefront/internal/infra"
	"storefront/internal/infra/credentials"
	"storefront/internal/providers/genai"
	"storefront/internal/providers/prompt"
	"storefront/internal/retry"
	"storefront/internal/storage"
)

// Components are the long-lived pieces built from configuration.
type Components struct {
	Service *generation.Service
	Store   *storage.FileStore
}

// Build wires store, provider, expander and orchestrator. API keys missing
// from the environment are read from the provider_keys table.
func Build(ctx context.Context, cfg *infra.Config, sql infra.SQLExecutor, logger infra.Logger) (*Components, error) {
	storagePath := cfg.StoragePath
	if !filepath.IsAbs(storagePath) {
		if abs, err := filepath.Abs(storagePath); err == nil {
			storagePath = abs
		}
	}
	fileStore, err := storage.NewFileStore(storagePath, cfg.StorageBaseURL)
	if err != nil {
		return nil, fmt.Errorf("configure storage: %w", err)
	}

	creds := credentials.NewStore(sql)
	geminiKey, err := creds.Resolve(ctx, credentials.ProviderGemini, cfg.GeminiAPIKey)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to load gemini api key from store")
	}
	openAIKey, err := creds.Resolve(ctx, credentials.ProviderOpenAI, cfg.OpenAIAPIKey)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to load openai api key from store")
	}

	providerLogger := infra.Component(logger, "genai")
	client, err := genai.NewClient(genai.Options{
		APIKey:     geminiKey,
		Host:       cfg.GeminiHost,
		Model:      cfg.GeminiImageModel,
		HTTPClient: &http.Client{Timeout: cfg.ProviderTimeout + 10*time.Second},
		Logger:     &providerLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("configure image provider: %w", err)
	}
	if client.Synthetic() {
		logger.Warn().Str("model", client.Model()).Msg("gemini api key missing, using synthetic image generation")
	}

	promptLogger := infra.Component(logger, "prompt")
	var textModel prompt.TextGenerator
	if !client.Synthetic() {
		textModel = client
	}
	expander, err := prompt.New(prompt.Config{
		Provider:      cfg.PromptProvider,
		Gemini:        textModel,
		GeminiModel:   cfg.GeminiModel,
		OpenAIKey:     openAIKey,
		OpenAIModel:   cfg.OpenAIModel,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
		OpenAIOrg:     cfg.OpenAIOrg,
		OnFallback: func(reason string, err error) {
			promptLogger.Warn().Err(err).Str("reason", reason).Msg("prompt expansion fell back")
		},
	})
	if err != nil {
		return nil, fmt.Errorf("configure prompt expander: %w", err)
	}

	mode, err := generation.ParseMode(cfg.GenerationMode)
	if err != nil {
		return nil, err
	}
	svc, err := generation.New(generation.Config{
		Mode:                mode,
		AllowAnonymous:      cfg.AllowAnonymous,
		DirectAsync:         cfg.DirectAsync,
		MaxVariants:         cfg.MaxVariants,
		ProviderTimeout:     cfg.ProviderTimeout,
		MissingOperationTTL: cfg.MissingOperationTTL,
		WebhookSecret:       cfg.WebhookSecret,
		Retry:               retry.Default(genai.IsTransient),
	}, generation.Deps{
		Store:    repo.NewJobRepository(sql),
		Blobs:    fileStore,
		Provider: client,
		Expander: expander,
		Logger:   &logger,
	})
	if err != nil {
		return nil, err
	}
	return &Components{Service: svc, Store: fileStore}, nil
}
