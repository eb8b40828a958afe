package middleware

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// ClientTokenCookie holds the anonymous session token.
	ClientTokenCookie = "design_client_token"
	clientTokenMaxAge = 90 * 24 * time.Hour
)

type clientTokenKey struct{}

var clientTokenPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{8,128}$`)

// ClientSession binds every request to an anonymous client token. An existing
// well-formed cookie is reused; otherwise a fresh token is minted and set.
func ClientSession(secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ""
			if c, err := r.Cookie(ClientTokenCookie); err == nil && clientTokenPattern.MatchString(c.Value) {
				token = c.Value
			}
			if token == "" {
				token = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     ClientTokenCookie,
					Value:    token,
					Path:     "/",
					MaxAge:   int(clientTokenMaxAge / time.Second),
					Expires:  time.Now().Add(clientTokenMaxAge),
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
			}
			next.ServeHTTP(w, r.WithContext(ContextWithClientToken(r.Context(), token)))
		})
	}
}

func ContextWithClientToken(ctx context.Context, token string) context.Context {
	if strings.TrimSpace(token) == "" {
		return ctx
	}
	return context.WithValue(ctx, clientTokenKey{}, token)
}

func ClientTokenFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(clientTokenKey{}).(string); ok {
		return v
	}
	return ""
}
