// Package credentials stores provider API keys in Postgres so they can be
// rotated without a redeploy. Environment values always take precedence.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront/internal/infra"
	"storefront/internal/sqlinline"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

var ErrUnsupportedProvider = errors.New("credentials: unsupported provider")

// KeyInfo describes a stored key without exposing it.
type KeyInfo struct {
	Provider  string
	SetBy     string
	Suffix    string
	RotatedAt time.Time
}

type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

// ParseProvider normalizes a provider name and rejects unknown ones.
func ParseProvider(raw string) (string, error) {
	p := strings.ToLower(strings.TrimSpace(raw))
	switch p {
	case ProviderGemini, ProviderOpenAI:
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedProvider, raw)
}

// Resolve returns configured when it is non-blank, otherwise the stored key.
// A provider with no key at all resolves to "".
func (s *Store) Resolve(ctx context.Context, provider, configured string) (string, error) {
	if key := strings.TrimSpace(configured); key != "" {
		return key, nil
	}
	return s.Key(ctx, provider)
}

func (s *Store) Key(ctx context.Context, provider string) (string, error) {
	provider, err := ParseProvider(provider)
	if err != nil {
		return "", err
	}
	var key string
	if err := s.sql.QueryRow(ctx, sqlinline.QSelectProviderKey, provider).Scan(&key); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", fmt.Errorf("credentials: load %s key: %w", provider, err)
	}
	return strings.TrimSpace(key), nil
}

// Set stores or rotates the key for provider. setBy records who did it.
func (s *Store) Set(ctx context.Context, provider, key, setBy string) error {
	provider, err := ParseProvider(provider)
	if err != nil {
		return err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("credentials: %s api key is required", provider)
	}
	if _, err := s.sql.Exec(ctx, sqlinline.QUpsertProviderKey, provider, key, strings.TrimSpace(setBy)); err != nil {
		return fmt.Errorf("credentials: store %s key: %w", provider, err)
	}
	return nil
}

// Delete removes the stored key. It reports whether a row existed.
func (s *Store) Delete(ctx context.Context, provider string) (bool, error) {
	provider, err := ParseProvider(provider)
	if err != nil {
		return false, err
	}
	tag, err := s.sql.Exec(ctx, sqlinline.QDeleteProviderKey, provider)
	if err != nil {
		return false, fmt.Errorf("credentials: delete %s key: %w", provider, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) List(ctx context.Context) ([]KeyInfo, error) {
	rows, err := s.sql.Query(ctx, sqlinline.QListProviderKeys)
	if err != nil {
		return nil, fmt.Errorf("credentials: list keys: %w", err)
	}
	defer rows.Close()

	var out []KeyInfo
	for rows.Next() {
		var k KeyInfo
		if err := rows.Scan(&k.Provider, &k.SetBy, &k.Suffix, &k.RotatedAt); err != nil {
			return nil, fmt.Errorf("credentials: scan key: %w", err)
		}
		out = append(out, k)
	}
	return out, rows.Err()
}
