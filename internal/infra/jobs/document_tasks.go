// Package jobs provides background job definitions and handlers using Asynq.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/flowdeckio/api/pkg/domain/shared"
	"github.com/flowdeckio/api/pkg/logger"
)

// Task types for document ingestion jobs
const (
	TypeDocumentProcess      = "document:process"
	TypeDocumentRecoverStale = "document:recover_stale"
)

// DocumentProcessPayload identifies the document to ingest.
type DocumentProcessPayload struct {
	DocumentID string `json:"document_id"`
}

// NewDocumentProcessTask creates a document processing task.
func NewDocumentProcessTask(payload DocumentProcessPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document process payload: %w", err)
	}
	return asynq.NewTask(
		TypeDocumentProcess,
		data,
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
		asynq.Queue("default"),
	), nil
}

// NewDocumentRecoverStaleTask creates a stale-document recovery task.
// The task is deduplicated so overlapping sweeps collapse into one.
func NewDocumentRecoverStaleTask() *asynq.Task {
	return asynq.NewTask(
		TypeDocumentRecoverStale,
		nil,
		asynq.MaxRetry(1),
		asynq.Timeout(2*time.Minute),
		asynq.Queue("low"),
		asynq.TaskID("document:recover_stale:singleton"),
	)
}

// DocumentIngestor is the slice of the document service the handlers need.
type DocumentIngestor interface {
	Process(ctx context.Context, documentID shared.ID) error
	RecoverStale(ctx context.Context) (int, error)
}

// DocumentTaskHandler processes document ingestion tasks.
type DocumentTaskHandler struct {
	ingestor DocumentIngestor
	logger   *logger.Logger
}

// NewDocumentTaskHandler creates a handler for document tasks.
func NewDocumentTaskHandler(ingestor DocumentIngestor, log *logger.Logger) *DocumentTaskHandler {
	return &DocumentTaskHandler{
		ingestor: ingestor,
		logger:   log.With("component", "document_task_handler"),
	}
}

// RegisterHandlers registers the document handlers on the mux.
func (h *DocumentTaskHandler) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeDocumentProcess, h.HandleProcess)
	mux.HandleFunc(TypeDocumentRecoverStale, h.HandleRecoverStale)
}

// HandleProcess runs ingestion for a single document.
func (h *DocumentTaskHandler) HandleProcess(ctx context.Context, t *asynq.Task) error {
	var payload DocumentProcessPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	docID, err := shared.IDFromString(payload.DocumentID)
	if err != nil {
		return fmt.Errorf("invalid document id %q: %w", payload.DocumentID, asynq.SkipRetry)
	}

	h.logger.Info("processing document", "document_id", payload.DocumentID)

	if err := h.ingestor.Process(ctx, docID); err != nil {
		h.logger.Error("document processing failed",
			"document_id", payload.DocumentID,
			"error", err,
		)
		return err
	}
	return nil
}

// HandleRecoverStale fails documents stuck in processing.
func (h *DocumentTaskHandler) HandleRecoverStale(ctx context.Context, t *asynq.Task) error {
	recovered, err := h.ingestor.RecoverStale(ctx)
	if err != nil {
		h.logger.Error("stale document recovery failed", "error", err)
		return err
	}
	if recovered > 0 {
		h.logger.Info("recovered stale documents", "count", recovered)
	}
	return nil
}
