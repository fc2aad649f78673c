package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/flowdeckio/api/pkg/domain/envvar"
	"github.com/flowdeckio/api/pkg/domain/shared"
)

// EnvVarRepository is the PostgreSQL implementation of envvar.Repository.
// Each user owns a single row holding all their encrypted values as
// JSONB; values are ciphertext before they ever reach this layer.
type EnvVarRepository struct {
	db *DB
}

// NewEnvVarRepository creates a new EnvVarRepository.
func NewEnvVarRepository(db *DB) *EnvVarRepository {
	return &EnvVarRepository{db: db}
}

var _ envvar.Repository = (*EnvVarRepository)(nil)

// GetByUser returns the user's variable set. A user with no stored
// variables gets an empty set, not an error.
func (r *EnvVarRepository) GetByUser(ctx context.Context, userID shared.ID) (*envvar.Set, error) {
	query := `SELECT values, updated_at FROM env_vars WHERE user_id = $1`

	set := envvar.NewSet(userID)
	var values []byte
	err := r.db.QueryRowContext(ctx, query, userID.String()).Scan(&values, &set.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return set, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get env vars: %w", err)
	}

	if err := fromJSONB(values, &set.Values); err != nil {
		return nil, fmt.Errorf("unmarshal env vars: %w", err)
	}
	return set, nil
}

// Save upserts the user's whole variable set.
func (r *EnvVarRepository) Save(ctx context.Context, set *envvar.Set) error {
	query := `
		INSERT INTO env_vars (user_id, values, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET values = $2, updated_at = $3
	`

	values, err := toJSONB(set.Values)
	if err != nil {
		return fmt.Errorf("marshal env vars: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, set.UserID.String(), values, set.UpdatedAt); err != nil {
		return fmt.Errorf("save env vars: %w", err)
	}
	return nil
}
