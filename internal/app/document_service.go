package app

import (
	"context"
	"fmt"
	"time"

	"github.com/flowdeckio/api/internal/metrics"
	"github.com/flowdeckio/api/pkg/domain/knowledge"
	"github.com/flowdeckio/api/pkg/domain/shared"
	"github.com/flowdeckio/api/pkg/logger"
	"github.com/flowdeckio/api/pkg/pagination"
)

// ContentFetcher retrieves a document's raw bytes from its source.
type ContentFetcher interface {
	Fetch(ctx context.Context, doc *knowledge.Document) ([]byte, error)
}

// TaskEnqueuer schedules background document processing.
type TaskEnqueuer interface {
	EnqueueDocumentProcessing(ctx context.Context, documentID shared.ID) error
}

// DocumentService manages knowledge documents through their ingestion
// lifecycle. Creation enqueues processing; the worker calls Process.
type DocumentService struct {
	repo      knowledge.Repository
	fetcher   ContentFetcher
	processor DocumentProcessor
	enqueuer  TaskEnqueuer
	logger    *logger.Logger

	staleAfter time.Duration
}

// DocumentServiceOption is a functional option for DocumentService.
type DocumentServiceOption func(*DocumentService)

// WithStaleAfter overrides how long a document may sit in processing
// before recovery force-fails it.
func WithStaleAfter(d time.Duration) DocumentServiceOption {
	return func(s *DocumentService) {
		s.staleAfter = d
	}
}

// NewDocumentService creates the document service.
func NewDocumentService(
	repo knowledge.Repository,
	fetcher ContentFetcher,
	processor DocumentProcessor,
	enqueuer TaskEnqueuer,
	log *logger.Logger,
	opts ...DocumentServiceOption,
) *DocumentService {
	s := &DocumentService{
		repo:       repo,
		fetcher:    fetcher,
		processor:  processor,
		enqueuer:   enqueuer,
		logger:     log.With("component", "document_service"),
		staleAfter: 15 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create registers a document and enqueues its processing.
func (s *DocumentService) Create(ctx context.Context, kbID, userID shared.ID, filename string, kind knowledge.SourceKind, sourceRef string) (*knowledge.Document, error) {
	doc, err := knowledge.NewDocument(kbID, userID, filename, kind, sourceRef)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}

	if err := s.enqueuer.EnqueueDocumentProcessing(ctx, doc.ID); err != nil {
		// The document stays pending; the next retry or recovery pass
		// can pick it up.
		s.logger.Error("enqueue document processing", "error", err, "document_id", doc.ID)
	}

	s.logger.Info("document created", "document_id", doc.ID, "source", kind)
	return doc, nil
}

// DocumentSpec describes one document of a bulk import.
type DocumentSpec struct {
	Filename  string
	Kind      knowledge.SourceKind
	SourceRef string
}

// CreateBulk registers the given documents and drives them through the
// ingestion pipeline in bounded waves. Every spec settles exactly once,
// index-aligned with specs: a document whose fetch or processing fails
// is persisted as failed with the reason and never aborts its siblings.
func (s *DocumentService) CreateBulk(ctx context.Context, kbID, userID shared.ID, specs []DocumentSpec, batch *BatchProcessor) []BatchItemResult[*knowledge.Document] {
	results := RunBatches(ctx, batch, specs, func(ctx context.Context, spec DocumentSpec) (*knowledge.Document, error) {
		doc, err := knowledge.NewDocument(kbID, userID, spec.Filename, spec.Kind, spec.SourceRef)
		if err != nil {
			return nil, err
		}
		if err := s.repo.Create(ctx, doc); err != nil {
			return nil, fmt.Errorf("create document: %w", err)
		}
		if err := s.Process(ctx, doc.ID); err != nil {
			return nil, err
		}
		// Reload so the slot carries the terminal status and error.
		return s.repo.GetByID(ctx, doc.ID)
	})

	failed := 0
	for _, res := range results {
		if res.Err != nil || (res.Value != nil && res.Value.Status == knowledge.StatusFailed) {
			failed++
		}
	}
	s.logger.Info("bulk document import settled",
		"knowledge_base_id", kbID,
		"total", len(specs),
		"failed", failed,
	)
	return results
}

// Get returns a document owned by the user.
func (s *DocumentService) Get(ctx context.Context, id, userID shared.ID) (*knowledge.Document, error) {
	doc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.UserID != userID {
		return nil, shared.NewDomainError("NOT_FOUND", "document not found", shared.ErrNotFound)
	}
	return doc, nil
}

// List returns documents matching the filter.
func (s *DocumentService) List(ctx context.Context, filter knowledge.Filter, page pagination.Pagination) (pagination.Result[*knowledge.Document], error) {
	return s.repo.List(ctx, filter, page)
}

// Delete removes a document.
func (s *DocumentService) Delete(ctx context.Context, id, userID shared.ID) error {
	if _, err := s.Get(ctx, id, userID); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}

// Process runs the ingestion pipeline for one document. Called from
// the background worker.
func (s *DocumentService) Process(ctx context.Context, documentID shared.ID) error {
	doc, err := s.repo.GetByID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}

	if err := doc.StartProcessing(); err != nil {
		// Already picked up elsewhere or in a terminal state.
		s.logger.Warn("document not processable", "document_id", documentID, "status", doc.Status)
		return nil
	}
	if err := s.repo.Update(ctx, doc); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	start := time.Now()
	content, err := s.fetcher.Fetch(ctx, doc)
	if err != nil {
		return s.failProcessing(ctx, doc, fmt.Sprintf("fetch content: %v", err))
	}

	chunks, tokens, err := s.processor.Process(ctx, doc, content)
	if err != nil {
		return s.failProcessing(ctx, doc, fmt.Sprintf("process content: %v", err))
	}

	if err := doc.CompleteProcessing(chunks, tokens); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, doc); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}

	metrics.DocumentsTotal.WithLabelValues(string(knowledge.StatusCompleted)).Inc()
	metrics.DocumentProcessingDuration.Observe(time.Since(start).Seconds())

	s.logger.Info("document processed",
		"document_id", doc.ID,
		"chunks", chunks,
		"tokens", tokens,
	)
	return nil
}

// Retry requeues a failed document.
func (s *DocumentService) Retry(ctx context.Context, id, userID shared.ID) (*knowledge.Document, error) {
	doc, err := s.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if err := doc.Retry(); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, doc); err != nil {
		return nil, fmt.Errorf("reset document: %w", err)
	}
	if err := s.enqueuer.EnqueueDocumentProcessing(ctx, doc.ID); err != nil {
		return nil, fmt.Errorf("enqueue document processing: %w", err)
	}
	s.logger.Info("document retry queued", "document_id", doc.ID)
	return doc, nil
}

// RecoverStale force-fails documents stuck in processing past the
// stale threshold. Returns how many were recovered.
func (s *DocumentService) RecoverStale(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.staleAfter)
	stuck, err := s.repo.ListStuckProcessing(ctx, cutoff, 100)
	if err != nil {
		return 0, fmt.Errorf("list stuck documents: %w", err)
	}

	recovered := 0
	for _, doc := range stuck {
		if err := doc.FailForTimeout(s.staleAfter); err != nil {
			continue
		}
		if err := s.repo.Update(ctx, doc); err != nil {
			s.logger.Error("persist recovered document", "error", err, "document_id", doc.ID)
			continue
		}
		metrics.DocumentsRecoveredTotal.Inc()
		recovered++
		s.logger.Warn("stale document force-failed", "document_id", doc.ID)
	}
	return recovered, nil
}

func (s *DocumentService) failProcessing(ctx context.Context, doc *knowledge.Document, reason string) error {
	if err := doc.FailProcessing(reason); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, doc); err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	metrics.DocumentsTotal.WithLabelValues(string(knowledge.StatusFailed)).Inc()
	s.logger.Error("document processing failed", "document_id", doc.ID, "reason", reason)
	return nil
}
