package generation

import (
	"context"
	"fmt"
	"strings"

	"storefront/internal/domain"
)

// Claim assigns every anonymous job created under clientToken to userID. It
// is safe to repeat; a second call reassigns nothing.
func (s *Service) Claim(ctx context.Context, userID, clientToken string) (int64, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, domain.ErrUnauthenticated
	}
	clientToken = strings.TrimSpace(clientToken)
	if clientToken == "" {
		return 0, nil
	}
	n, err := s.store.BulkReassign(ctx, clientToken, userID)
	if err != nil {
		return 0, fmt.Errorf("claim jobs: %w: %w", domain.ErrStorageFailure, err)
	}
	if n > 0 {
		s.logger.Info().Str("user_id", userID).Int64("jobs", n).Msg("anonymous jobs claimed")
	}
	return n, nil
}
