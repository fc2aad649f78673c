package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/flowdeckio/api/pkg/domain/apikey"
	"github.com/flowdeckio/api/pkg/domain/shared"
)

const apiKeyColumns = `id, user_id, name, prefix, key_hash, last_used_at, created_at`

// APIKeyRepository is the PostgreSQL implementation of apikey.Repository.
type APIKeyRepository struct {
	db *DB
}

// NewAPIKeyRepository creates a new APIKeyRepository.
func NewAPIKeyRepository(db *DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

var _ apikey.Repository = (*APIKeyRepository)(nil)

func (r *APIKeyRepository) Create(ctx context.Context, key *apikey.Key) error {
	query := `
		INSERT INTO api_keys (id, user_id, name, prefix, key_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.ExecContext(ctx, query,
		key.ID.String(),
		key.UserID.String(),
		key.Name,
		key.Prefix,
		key.Hash,
		key.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return shared.NewDomainError("CONFLICT", "api key already exists", shared.ErrAlreadyExists)
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (r *APIKeyRepository) GetByID(ctx context.Context, id shared.ID) (*apikey.Key, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE id = $1`

	key, err := scanAPIKey(r.db.QueryRowContext(ctx, query, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.NewDomainError("NOT_FOUND", "api key not found", shared.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get api key: %w", err)
	}
	return key, nil
}

func (r *APIKeyRepository) ListByPrefix(ctx context.Context, prefix string) ([]*apikey.Key, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE prefix = $1`

	rows, err := r.db.QueryContext(ctx, query, prefix)
	if err != nil {
		return nil, fmt.Errorf("list api keys by prefix: %w", err)
	}
	defer rows.Close()

	return collectAPIKeys(rows)
}

func (r *APIKeyRepository) ListByUser(ctx context.Context, userID shared.ID) ([]*apikey.Key, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID.String())
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	return collectAPIKeys(rows)
}

func (r *APIKeyRepository) RecordUsage(ctx context.Context, id shared.ID) error {
	query := `UPDATE api_keys SET last_used_at = NOW() WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id.String()); err != nil {
		return fmt.Errorf("record api key usage: %w", err)
	}
	return nil
}

func (r *APIKeyRepository) Delete(ctx context.Context, id shared.ID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM api_keys WHERE id = $1`, id.String())
	if err != nil {
		return fmt.Errorf("delete api key: %w", err)
	}
	return requireRowAffected(result, "api key")
}

func collectAPIKeys(rows *sql.Rows) ([]*apikey.Key, error) {
	var keys []*apikey.Key
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func scanAPIKey(row rowScanner) (*apikey.Key, error) {
	var (
		key        apikey.Key
		lastUsedAt sql.NullTime
	)

	err := row.Scan(
		&key.ID,
		&key.UserID,
		&key.Name,
		&key.Prefix,
		&key.Hash,
		&lastUsedAt,
		&key.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	key.LastUsedAt = nullTimeValue(lastUsedAt)
	return &key, nil
}
