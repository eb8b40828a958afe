package httpapi

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"storefront/internal/domain"
	"storefront/internal/generation"
	"storefront/internal/http/handlers"
	"storefront/internal/middleware"
)

const secret = "router-secret"

type recordingDesigns struct {
	lastUser  string
	lastToken string
}

func (d *recordingDesigns) Create(ctx context.Context, req generation.CreateRequest) (*domain.GenerationJob, error) {
	d.lastUser, d.lastToken = req.UserID, req.ClientToken
	return &domain.GenerationJob{ID: "job-1", Status: domain.JobStatusQueued, ClientToken: req.ClientToken}, nil
}

func (d *recordingDesigns) Get(ctx context.Context, id, userID, clientToken string) (*domain.GenerationJob, error) {
	return nil, domain.ErrNotFound
}

func (d *recordingDesigns) CompleteFromWebhook(ctx context.Context, ev generation.WebhookEvent) (*domain.GenerationJob, error) {
	return nil, domain.ErrNotFound
}

func (d *recordingDesigns) VerifyWebhookSecret(string) bool { return true }

func (d *recordingDesigns) Claim(ctx context.Context, userID, clientToken string) (int64, error) {
	d.lastUser, d.lastToken = userID, clientToken
	return 2, nil
}

func (d *recordingDesigns) Mode() generation.Mode { return generation.ModeBatch }

func newTestRouter(t *testing.T, designs handlers.DesignService, staticDir string) http.Handler {
	t.Helper()
	logger := zerolog.New(io.Discard)
	return NewRouter(handlers.NewApp(designs, &logger, nil), Options{
		JWTSecret:       secret,
		RateLimitPerMin: 100,
		DefaultLocale:   "en",
		StaticDir:       staticDir,
		Logger:          logger,
	})
}

func TestAnonymousCreateGetsSessionCookie(t *testing.T) {
	designs := &recordingDesigns{}
	router := newTestRouter(t, designs, "")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/designs/jobs", strings.NewReader(`{"prompt":"a fox"}`)))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == middleware.ClientTokenCookie {
			cookie = c
		}
	}
	if cookie == nil || cookie.Value != designs.lastToken || designs.lastUser != "" {
		t.Fatalf("cookie %v, token %q, user %q", cookie, designs.lastToken, designs.lastUser)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatalf("request id header missing")
	}
}

func TestClaimRequiresAuthentication(t *testing.T) {
	designs := &recordingDesigns{}
	router := newTestRouter(t, designs, "")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/designs/claim", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	token, err := middleware.SignJWT(secret, "user-7", "", time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/designs/claim", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.AddCookie(&http.Cookie{Name: middleware.ClientTokenCookie, Value: "anon-session-1"})
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	if designs.lastUser != "user-7" || designs.lastToken != "anon-session-1" {
		t.Fatalf("claim args user=%q token=%q", designs.lastUser, designs.lastToken)
	}
}

func TestHealthAndStatic(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "designs"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "designs", "a.png"), []byte("png"), 0o644); err != nil {
		t.Fatal(err)
	}
	router := newTestRouter(t, &recordingDesigns{}, dir)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/healthz", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"mode":"batch"`) {
		t.Fatalf("health status = %d body = %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/designs/a.png", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "png" {
		t.Fatalf("static status = %d body = %q", rec.Code, rec.Body.String())
	}
}

type denyLimiter struct{ calls int }

func (l *denyLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	l.calls++
	return false, 30 * time.Second, nil
}

func TestCustomLimiterGuardsCreate(t *testing.T) {
	limiter := &denyLimiter{}
	logger := zerolog.New(io.Discard)
	router := NewRouter(handlers.NewApp(&recordingDesigns{}, &logger, nil), Options{
		JWTSecret:       secret,
		RateLimitPerMin: 100,
		Limiter:         limiter,
		Logger:          logger,
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/designs/jobs", strings.NewReader(`{"prompt":"a fox"}`)))
	if rec.Code != http.StatusTooManyRequests || limiter.calls != 1 {
		t.Fatalf("status = %d calls = %d", rec.Code, limiter.calls)
	}
	if rec.Header().Get("Retry-After") != "30" {
		t.Fatalf("Retry-After = %q", rec.Header().Get("Retry-After"))
	}
}
