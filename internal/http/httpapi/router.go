package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"storefront/internal/http/handlers"
	"storefront/internal/infra"
	"storefront/internal/middleware"
)

// Options configures the middleware stack around the design endpoints.
type Options struct {
	JWTSecret       string
	CORSOrigins     []string
	RateLimitPerMin int
	// Limiter replaces the in-process rate limiter when set.
	Limiter         middleware.Limiter
	SecureCookies   bool
	DefaultLocale   string
	CountryLookup   middleware.CountryLookup
	// StaticDir is served under /static when set; it is the FileStore root.
	StaticDir       string
	Logger          infra.Logger
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.CORSOrigins),
	)

	r.Get("/v1/healthz", app.Health)

	limit := middleware.RateLimit(opts.RateLimitPerMin, time.Minute)
	if opts.Limiter != nil {
		limit = middleware.RateLimitWith(opts.Limiter, opts.Logger)
	}

	session := middleware.ClientSession(opts.SecureCookies)
	r.Route("/v1/designs", func(r chi.Router) {
		r.With(
			session,
			middleware.OptionalAuthJWT(opts.JWTSecret),
			middleware.I18N(opts.DefaultLocale, opts.CountryLookup),
			limit,
		).Post("/jobs", app.CreateDesignJob)

		r.With(session, middleware.OptionalAuthJWT(opts.JWTSecret)).
			Get("/jobs/{job_id}", app.GetDesignJob)

		r.Post("/webhook", app.DesignWebhook)

		r.With(session, middleware.AuthJWT(opts.JWTSecret)).
			Post("/claim", app.ClaimDesigns)
	})

	if dir := strings.TrimSpace(opts.StaticDir); dir != "" {
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(dir))))
	}

	return r
}
