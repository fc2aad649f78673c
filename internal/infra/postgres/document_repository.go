package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/flowdeckio/api/pkg/domain/knowledge"
	"github.com/flowdeckio/api/pkg/domain/shared"
	"github.com/flowdeckio/api/pkg/pagination"
)

// DocumentRepository is the PostgreSQL implementation of knowledge.Repository.
type DocumentRepository struct {
	db *DB
}

// NewDocumentRepository creates a new DocumentRepository.
func NewDocumentRepository(db *DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

var _ knowledge.Repository = (*DocumentRepository)(nil)

const documentColumns = `
	id, knowledge_base_id, user_id, filename, source_kind, source_ref,
	mime_type, size_bytes, status, processing_error, chunk_count, token_count,
	enabled, processing_at, completed_at, created_at, updated_at
`

// Create inserts a new document.
func (r *DocumentRepository) Create(ctx context.Context, doc *knowledge.Document) error {
	query := `
		INSERT INTO documents (` + documentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	_, err := r.db.ExecContext(ctx, query,
		doc.ID.String(),
		doc.KnowledgeBaseID.String(),
		doc.UserID.String(),
		doc.Filename,
		string(doc.SourceKind),
		nullString(doc.SourceRef),
		nullString(doc.MimeType),
		doc.SizeBytes,
		string(doc.Status),
		nullString(doc.ProcessingError),
		doc.ChunkCount,
		doc.TokenCount,
		doc.Enabled,
		nullTime(doc.ProcessingAt),
		nullTime(doc.CompletedAt),
		doc.CreatedAt,
		doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

// GetByID retrieves a document by id.
func (r *DocumentRepository) GetByID(ctx context.Context, id shared.ID) (*knowledge.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	return scanDocument(r.db.QueryRowContext(ctx, query, id.String()))
}

// List lists documents with filters and pagination.
func (r *DocumentRepository) List(ctx context.Context, filter knowledge.Filter, page pagination.Pagination) (pagination.Result[*knowledge.Document], error) {
	conditions := make([]string, 0)
	args := make([]any, 0)
	argIdx := 1

	if filter.KnowledgeBaseID != nil {
		conditions = append(conditions, fmt.Sprintf("knowledge_base_id = $%d", argIdx))
		args = append(args, filter.KnowledgeBaseID.String())
		argIdx++
	}
	if filter.UserID != nil {
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", argIdx))
		args = append(args, filter.UserID.String())
		argIdx++
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, string(*filter.Status))
		argIdx++
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("filename ILIKE $%d", argIdx))
		args = append(args, "%"+filter.Search+"%")
		argIdx++
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`+where, args...).Scan(&total); err != nil {
		return pagination.Result[*knowledge.Document]{}, fmt.Errorf("count documents: %w", err)
	}

	query := `SELECT ` + documentColumns + ` FROM documents` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, page.Limit(), page.Offset())

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return pagination.Result[*knowledge.Document]{}, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	documents := make([]*knowledge.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return pagination.Result[*knowledge.Document]{}, err
		}
		documents = append(documents, doc)
	}
	if err := rows.Err(); err != nil {
		return pagination.Result[*knowledge.Document]{}, fmt.Errorf("iterate documents: %w", err)
	}

	return pagination.NewResult(documents, total, page), nil
}

// Update updates a document's mutable fields.
func (r *DocumentRepository) Update(ctx context.Context, doc *knowledge.Document) error {
	query := `
		UPDATE documents SET
			filename = $2, mime_type = $3, size_bytes = $4,
			status = $5, processing_error = $6, chunk_count = $7, token_count = $8,
			enabled = $9, processing_at = $10, completed_at = $11, updated_at = $12
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		doc.ID.String(),
		doc.Filename,
		nullString(doc.MimeType),
		doc.SizeBytes,
		string(doc.Status),
		nullString(doc.ProcessingError),
		doc.ChunkCount,
		doc.TokenCount,
		doc.Enabled,
		nullTime(doc.ProcessingAt),
		nullTime(doc.CompletedAt),
		doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	return requireRowAffected(result, "document")
}

// Delete deletes a document.
func (r *DocumentRepository) Delete(ctx context.Context, id shared.ID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id.String())
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return requireRowAffected(result, "document")
}

// ListStuckProcessing returns documents that entered processing before
// the cutoff and never reached a terminal status.
func (r *DocumentRepository) ListStuckProcessing(ctx context.Context, cutoff time.Time, limit int) ([]*knowledge.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents
		WHERE status = $1 AND processing_at IS NOT NULL AND processing_at < $2
		ORDER BY processing_at ASC LIMIT $3`

	rows, err := r.db.QueryContext(ctx, query, string(knowledge.StatusProcessing), cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list stuck documents: %w", err)
	}
	defer rows.Close()

	documents := make([]*knowledge.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		documents = append(documents, doc)
	}
	return documents, rows.Err()
}

func scanDocument(row rowScanner) (*knowledge.Document, error) {
	var (
		doc             knowledge.Document
		idStr           string
		kbIDStr         string
		userIDStr       string
		sourceKind      string
		sourceRef       sql.NullString
		mimeType        sql.NullString
		status          string
		processingError sql.NullString
		processingAt    sql.NullTime
		completedAt     sql.NullTime
	)

	err := row.Scan(
		&idStr, &kbIDStr, &userIDStr, &doc.Filename, &sourceKind, &sourceRef,
		&mimeType, &doc.SizeBytes, &status, &processingError, &doc.ChunkCount, &doc.TokenCount,
		&doc.Enabled, &processingAt, &completedAt, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.NewDomainError("NOT_FOUND", "document not found", shared.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan document: %w", err)
	}

	if doc.ID, err = shared.IDFromString(idStr); err != nil {
		return nil, fmt.Errorf("parse document id: %w", err)
	}
	if doc.KnowledgeBaseID, err = shared.IDFromString(kbIDStr); err != nil {
		return nil, fmt.Errorf("parse knowledge base id: %w", err)
	}
	if doc.UserID, err = shared.IDFromString(userIDStr); err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}

	doc.SourceKind = knowledge.SourceKind(sourceKind)
	doc.SourceRef = nullStringValue(sourceRef)
	doc.MimeType = nullStringValue(mimeType)
	doc.Status = knowledge.ProcessingStatus(status)
	doc.ProcessingError = nullStringValue(processingError)
	doc.ProcessingAt = nullTimeValue(processingAt)
	doc.CompletedAt = nullTimeValue(completedAt)

	return &doc, nil
}
