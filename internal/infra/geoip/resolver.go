// Package geoip maps client IPs to ISO country codes with a MaxMind database.
// The country picks the prompt expansion locale when a request carries no
// language hints.
package geoip

import (
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/oschwald/geoip2-golang"
)

const defaultCacheSize = 4096

type countryDB interface {
	Country(ip net.IP) (*geoip2.Country, error)
	Close() error
}

// Resolver is safe for concurrent use. A nil *Resolver resolves every IP to "".
type Resolver struct {
	db countryDB

	mu    sync.Mutex
	cache map[string]string
	max   int
}

// Open loads the database at path. A blank path returns a nil resolver.
func Open(path string) (*Resolver, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("geoip: open database: %w", err)
	}
	return newResolver(reader, defaultCacheSize), nil
}

func newResolver(db countryDB, cacheSize int) *Resolver {
	return &Resolver{db: db, cache: make(map[string]string), max: cacheSize}
}

// Lookup returns the upper-case country code for ip. Private, loopback and
// unparsable addresses resolve to "" without touching the database.
func (r *Resolver) Lookup(ip string) (string, error) {
	if r == nil || r.db == nil {
		return "", nil
	}
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil || parsed.IsPrivate() || parsed.IsLoopback() || parsed.IsUnspecified() {
		return "", nil
	}
	key := parsed.String()

	r.mu.Lock()
	code, ok := r.cache[key]
	r.mu.Unlock()
	if ok {
		return code, nil
	}

	record, err := r.db.Country(parsed)
	if err != nil {
		return "", fmt.Errorf("geoip: lookup %s: %w", key, err)
	}
	if record != nil {
		code = strings.ToUpper(record.Country.IsoCode)
	}

	r.mu.Lock()
	if len(r.cache) >= r.max {
		// Reset rather than evict.
		clear(r.cache)
	}
	r.cache[key] = code
	r.mu.Unlock()
	return code, nil
}

func (r *Resolver) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}
