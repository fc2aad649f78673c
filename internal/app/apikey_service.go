package app

import (
	"context"
	"errors"
	"strings"

	"github.com/flowdeckio/api/pkg/domain/apikey"
	"github.com/flowdeckio/api/pkg/domain/shared"
	"github.com/flowdeckio/api/pkg/logger"
)

// ErrInvalidAPIKey is returned when a presented key matches no stored key.
var ErrInvalidAPIKey = errors.New("invalid api key")

// APIKeyService issues and verifies API keys.
type APIKeyService struct {
	repo   apikey.Repository
	logger *logger.Logger
}

// NewAPIKeyService creates an API key service.
func NewAPIKeyService(repo apikey.Repository, log *logger.Logger) *APIKeyService {
	return &APIKeyService{
		repo:   repo,
		logger: log.With("service", "apikey"),
	}
}

// Create issues a new key. The raw key is returned once and never
// stored or logged.
func (s *APIKeyService) Create(ctx context.Context, userID shared.ID, name string) (*apikey.Key, string, error) {
	key, raw, err := apikey.New(userID, name)
	if err != nil {
		return nil, "", err
	}

	if err := s.repo.Create(ctx, key); err != nil {
		return nil, "", err
	}

	s.logger.Info("api key created",
		"key_id", key.ID.String(),
		"user_id", userID.String(),
		"prefix", key.Prefix,
	)
	return key, raw, nil
}

// Verify resolves a raw key to its owner. Candidates are narrowed by
// the stored lookup prefix, then checked against the bcrypt hash.
func (s *APIKeyService) Verify(ctx context.Context, raw string) (*apikey.Key, error) {
	raw = strings.TrimSpace(raw)
	prefix := apikey.LookupPrefix(raw)
	if prefix == "" || !strings.HasPrefix(raw, apikey.RawKeyPrefix) {
		return nil, ErrInvalidAPIKey
	}

	candidates, err := s.repo.ListByPrefix(ctx, prefix)
	if err != nil {
		return nil, err
	}

	for _, key := range candidates {
		if key.Verify(raw) {
			// Usage recording must not block or fail the request.
			if err := s.repo.RecordUsage(ctx, key.ID); err != nil {
				s.logger.Warn("failed to record api key usage",
					"key_id", key.ID.String(),
					"error", err,
				)
			}
			return key, nil
		}
	}

	return nil, ErrInvalidAPIKey
}

// List returns the user's keys. Hashes are stripped from the result.
func (s *APIKeyService) List(ctx context.Context, userID shared.ID) ([]*apikey.Key, error) {
	keys, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, key := range keys {
		key.Hash = ""
	}
	return keys, nil
}

// Delete revokes a key owned by the user.
func (s *APIKeyService) Delete(ctx context.Context, id, userID shared.ID) error {
	key, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !key.UserID.Equals(userID) {
		return shared.NewDomainError("NOT_FOUND", "api key not found", shared.ErrNotFound)
	}
	return s.repo.Delete(ctx, id)
}
