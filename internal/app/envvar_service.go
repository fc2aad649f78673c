package app

import (
	"context"
	"fmt"
	"sort"

	"github.com/flowdeckio/api/pkg/crypto"
	"github.com/flowdeckio/api/pkg/domain/envvar"
	"github.com/flowdeckio/api/pkg/domain/shared"
	"github.com/flowdeckio/api/pkg/logger"
)

// EnvVarService manages a user's encrypted environment variables.
// Plaintext values exist only inside a request: they are encrypted
// before storage and never returned by read endpoints.
type EnvVarService struct {
	repo      envvar.Repository
	encryptor crypto.Encryptor
	logger    *logger.Logger
}

// NewEnvVarService creates the env var service.
func NewEnvVarService(repo envvar.Repository, encryptor crypto.Encryptor, log *logger.Logger) *EnvVarService {
	return &EnvVarService{
		repo:      repo,
		encryptor: encryptor,
		logger:    log.With("component", "envvar_service"),
	}
}

// Upsert encrypts and stores the given variables, replacing existing
// values with the same names and keeping the rest.
func (s *EnvVarService) Upsert(ctx context.Context, userID shared.ID, values map[string]string) error {
	set, err := s.load(ctx, userID)
	if err != nil {
		return err
	}

	for name, plaintext := range values {
		ciphertext, err := s.encryptor.EncryptString(plaintext)
		if err != nil {
			return fmt.Errorf("encrypt %s: %w", name, err)
		}
		set.Put(name, ciphertext)
	}

	if err := s.repo.Save(ctx, set); err != nil {
		return fmt.Errorf("save env vars: %w", err)
	}

	s.logger.Info("env vars updated", "user_id", userID, "count", len(values))
	return nil
}

// Delete removes the named variables. Missing names are ignored.
func (s *EnvVarService) Delete(ctx context.Context, userID shared.ID, names ...string) error {
	set, err := s.load(ctx, userID)
	if err != nil {
		return err
	}

	for _, name := range names {
		set.Remove(name)
	}

	if err := s.repo.Save(ctx, set); err != nil {
		return fmt.Errorf("save env vars: %w", err)
	}
	return nil
}

// ListNames returns the variable names a user has stored, sorted.
// Values are intentionally not exposed.
func (s *EnvVarService) ListNames(ctx context.Context, userID shared.ID) ([]string, error) {
	set, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	names := set.Names()
	sort.Strings(names)
	return names, nil
}

func (s *EnvVarService) load(ctx context.Context, userID shared.ID) (*envvar.Set, error) {
	set, err := s.repo.GetByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}
	if set == nil {
		set = envvar.NewSet(userID)
	}
	return set, nil
}
