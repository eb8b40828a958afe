package middleware

import (
	"context"
	"net/http"
	"strings"

	"golang.org/x/text/language"
)

type localeKey struct{}

// tokenLocaleKey carries the locale claim of a verified JWT.
type tokenLocaleKey struct{}

type requestLocale struct {
	lang    string
	country string
}

// Storefront copy exists in English and Indonesian.
var (
	supportedLocales = []language.Tag{language.English, language.Indonesian}
	localeMatcher    = language.NewMatcher(supportedLocales)
	countryLocales   = map[string]string{"ID": "id"}
	countryHeaders   = []string{"CF-IPCountry", "X-Country-Code", "X-IP-Country", "X-Appengine-Country"}
)

// CountryLookup resolves ISO country codes for an IP address.
type CountryLookup func(ip string) (string, error)

// I18N resolves the shopper's language for prompt expansion. Precedence is
// X-Locale, the token's locale claim, Accept-Language, the country, then
// defaultLocale.
func I18N(defaultLocale string, lookup CountryLookup) func(http.Handler) http.Handler {
	fallback := matchLocale(defaultLocale)
	if fallback == "" {
		fallback = "en"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			loc := resolveLocale(r, fallback, lookup)
			w.Header().Set("Content-Language", loc.lang)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), localeKey{}, loc)))
		})
	}
}

func resolveLocale(r *http.Request, fallback string, lookup CountryLookup) requestLocale {
	loc := requestLocale{country: ResolveCountry(r, lookup)}
	claim, _ := r.Context().Value(tokenLocaleKey{}).(string)
	for _, candidate := range []string{
		matchLocale(r.Header.Get("X-Locale")),
		claim,
		matchAcceptLanguage(r.Header.Get("Accept-Language")),
		countryLocales[loc.country],
		fallback,
	} {
		if candidate != "" {
			loc.lang = candidate
			break
		}
	}
	return loc
}

// matchLocale maps a single BCP 47 tag onto a supported base language, or ""
// when nothing supported is close.
func matchLocale(raw string) string {
	tag, err := language.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return bestMatch(tag)
}

func matchAcceptLanguage(header string) string {
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return ""
	}
	return bestMatch(tags...)
}

func bestMatch(tags ...language.Tag) string {
	_, idx, conf := localeMatcher.Match(tags...)
	if conf == language.No {
		return ""
	}
	base, _ := supportedLocales[idx].Base()
	return base.String()
}

// ContextWithLocale stores lang as the resolved language.
func ContextWithLocale(ctx context.Context, lang string) context.Context {
	loc, _ := ctx.Value(localeKey{}).(requestLocale)
	loc.lang = lang
	return context.WithValue(ctx, localeKey{}, loc)
}

// LocaleFromContext returns the resolved base language, "en" outside I18N.
func LocaleFromContext(ctx context.Context) string {
	if loc, ok := ctx.Value(localeKey{}).(requestLocale); ok && loc.lang != "" {
		return loc.lang
	}
	return "en"
}

func CountryFromContext(ctx context.Context) string {
	loc, _ := ctx.Value(localeKey{}).(requestLocale)
	return loc.country
}

// ResolveCountry picks the ISO country from CDN headers, then an explicit
// region in the language headers, then an IP lookup.
func ResolveCountry(r *http.Request, lookup CountryLookup) string {
	for _, h := range countryHeaders {
		// Cloudflare reports XX when the country is unknown.
		if v := strings.ToUpper(strings.TrimSpace(r.Header.Get(h))); len(v) == 2 && v != "XX" {
			return v
		}
	}
	for _, h := range []string{"X-Locale", "Accept-Language"} {
		if region := explicitRegion(r.Header.Get(h)); region != "" {
			return region
		}
	}
	if lookup == nil {
		return ""
	}
	if ip := ClientIP(r); ip != "" {
		if code, err := lookup(ip); err == nil {
			return strings.ToUpper(code)
		}
	}
	return ""
}

// explicitRegion ignores regions a tag only implies ("id" implies ID).
func explicitRegion(header string) string {
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return ""
	}
	region, conf := tags[0].Region()
	if conf != language.Exact {
		return ""
	}
	return region.String()
}
