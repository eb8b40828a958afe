package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv           string
	Port             string
	DatabaseURL      string
	JWTSecret        string
	StorageBaseURL   string
	StoragePath      string
	GeoIPDBPath      string
	CORSOrigins      []string
	PromptProvider   string
	GeminiAPIKey     string
	GeminiModel      string
	GeminiImageModel string
	GeminiHost       string
	OpenAIAPIKey     string
	OpenAIModel      string
	OpenAIBaseURL    string
	OpenAIOrg        string
	DefaultLocale    string
	AutoMigrate      bool
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	ProviderTimeout  time.Duration
	RateLimitPerMin  int
	RedisURL         string
	LogLevel         string
	DBMaxConns       int
	DBConnectTries   int

	GenerationMode      string
	AllowAnonymous      bool
	DirectAsync         bool
	WebhookSecret       string
	SessionCookieSecure bool
	MissingOperationTTL time.Duration
	WorkerPollInterval  time.Duration
	WorkerConcurrency   int
	WorkerBatchSize     int
	MaxVariants         int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		Port:             port,
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		StorageBaseURL:   strings.TrimRight(getEnv("STORAGE_BASE_URL", "http://localhost:"+port+"/static"), "/"),
		StoragePath:      getEnv("STORAGE_PATH", "./storage"),
		GeoIPDBPath:      os.Getenv("GEOIP_DB_PATH"),
		CORSOrigins:      getEnvList("CORS_ALLOWED_ORIGINS"),
		PromptProvider:   getEnv("PROMPT_PROVIDER", "static"),
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		GeminiModel:      getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiImageModel: getEnv("GEMINI_IMAGE_MODEL", "gemini-2.5-flash-image"),
		GeminiHost:       strings.TrimRight(getEnv("GEMINI_HOST", "https://generativelanguage.googleapis.com"), "/"),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:      getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:    getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIOrg:        os.Getenv("OPENAI_ORG_ID"),
		DefaultLocale:    getEnv("DEFAULT_LOCALE", "en"),
		AutoMigrate:      getEnvBool("RUN_MIGRATIONS", false),
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		// Direct mode holds the creation request open for up to three provider calls.
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 300)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		ProviderTimeout:  time.Second * time.Duration(getEnvInt("PROVIDER_TIMEOUT_SECONDS", 120)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		RedisURL:         os.Getenv("REDIS_URL"),
		LogLevel:         os.Getenv("LOG_LEVEL"),
		DBMaxConns:       getEnvInt("DB_MAX_CONNS", 10),
		DBConnectTries:   getEnvInt("DB_CONNECT_ATTEMPTS", 5),

		GenerationMode:      strings.ToLower(getEnv("GENERATION_MODE", "direct")),
		AllowAnonymous:      getEnvBool("ALLOW_ANONYMOUS_GENERATION", true),
		DirectAsync:         getEnvBool("GENERATION_DIRECT_ASYNC", false),
		WebhookSecret:       os.Getenv("WEBHOOK_SECRET"),
		SessionCookieSecure: getEnvBool("SESSION_COOKIE_SECURE", false),
		MissingOperationTTL: time.Minute * time.Duration(getEnvInt("BATCH_MISSING_OPERATION_MINUTES", 15)),
		WorkerPollInterval:  time.Second * time.Duration(getEnvInt("WORKER_POLL_INTERVAL_SECONDS", 30)),
		WorkerConcurrency:   getEnvInt("WORKER_CONCURRENCY", 4),
		WorkerBatchSize:     getEnvInt("WORKER_BATCH_SIZE", 50),
		MaxVariants:         getEnvInt("GENERATION_MAX_VARIANTS", 3),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	switch cfg.GenerationMode {
	case "direct", "batch":
	default:
		return nil, fmt.Errorf("GENERATION_MODE must be direct or batch, got %q", cfg.GenerationMode)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvList(key string) []string {
	raw := os.Getenv(key)
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
