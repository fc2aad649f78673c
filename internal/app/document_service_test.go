package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowdeckio/api/pkg/domain/knowledge"
	"github.com/flowdeckio/api/pkg/domain/shared"
	"github.com/flowdeckio/api/pkg/logger"
	"github.com/flowdeckio/api/pkg/pagination"
)

type memDocumentRepo struct {
	mu   sync.Mutex
	docs map[shared.ID]*knowledge.Document
}

func newMemDocumentRepo() *memDocumentRepo {
	return &memDocumentRepo{docs: make(map[shared.ID]*knowledge.Document)}
}

func (r *memDocumentRepo) Create(_ context.Context, doc *knowledge.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *doc
	r.docs[doc.ID] = &copied
	return nil
}

func (r *memDocumentRepo) GetByID(_ context.Context, id shared.ID) (*knowledge.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return nil, shared.NewDomainError("NOT_FOUND", "document not found", shared.ErrNotFound)
	}
	copied := *doc
	return &copied, nil
}

func (r *memDocumentRepo) List(_ context.Context, _ knowledge.Filter, page pagination.Pagination) (pagination.Result[*knowledge.Document], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*knowledge.Document, 0, len(r.docs))
	for _, doc := range r.docs {
		copied := *doc
		out = append(out, &copied)
	}
	return pagination.NewResult(out, int64(len(out)), page), nil
}

func (r *memDocumentRepo) Update(_ context.Context, doc *knowledge.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *doc
	r.docs[doc.ID] = &copied
	return nil
}

func (r *memDocumentRepo) Delete(_ context.Context, id shared.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.docs, id)
	return nil
}

func (r *memDocumentRepo) ListStuckProcessing(_ context.Context, cutoff time.Time, limit int) ([]*knowledge.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*knowledge.Document
	for _, doc := range r.docs {
		if doc.Status == knowledge.StatusProcessing && doc.ProcessingAt != nil && doc.ProcessingAt.Before(cutoff) {
			copied := *doc
			out = append(out, &copied)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// stubFetcher returns canned content per sourceRef, or an error when
// the ref is listed as broken.
type stubFetcher struct {
	content map[string][]byte
	broken  map[string]error
}

func (f *stubFetcher) Fetch(_ context.Context, doc *knowledge.Document) ([]byte, error) {
	if err, ok := f.broken[doc.SourceRef]; ok {
		return nil, err
	}
	if content, ok := f.content[doc.SourceRef]; ok {
		return content, nil
	}
	return []byte("default content"), nil
}

type stubProcessor struct{}

func (stubProcessor) Process(_ context.Context, _ *knowledge.Document, content []byte) (int, int, error) {
	return 1, len(content) / 4, nil
}

type stubEnqueuer struct {
	mu  sync.Mutex
	ids []shared.ID
}

func (e *stubEnqueuer) EnqueueDocumentProcessing(_ context.Context, id shared.ID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ids = append(e.ids, id)
	return nil
}

func newTestDocumentService(repo knowledge.Repository, fetcher ContentFetcher) (*DocumentService, *stubEnqueuer) {
	enqueuer := &stubEnqueuer{}
	svc := NewDocumentService(repo, fetcher, stubProcessor{}, enqueuer, logger.NewNop())
	return svc, enqueuer
}

func TestDocumentService_Create_Enqueues(t *testing.T) {
	repo := newMemDocumentRepo()
	svc, enqueuer := newTestDocumentService(repo, &stubFetcher{})

	doc, err := svc.Create(context.Background(), shared.NewID(), shared.NewID(),
		"notes.txt", knowledge.SourceURL, "https://example.com/notes.txt")
	require.NoError(t, err)
	assert.Equal(t, knowledge.StatusPending, doc.Status)
	assert.Equal(t, []shared.ID{doc.ID}, enqueuer.ids)
}

func TestDocumentService_CreateBulk_AllSucceed(t *testing.T) {
	repo := newMemDocumentRepo()
	svc, _ := newTestDocumentService(repo, &stubFetcher{})
	kbID, userID := shared.NewID(), shared.NewID()

	specs := make([]DocumentSpec, 5)
	for i := range specs {
		specs[i] = DocumentSpec{
			Filename:  "doc.txt",
			Kind:      knowledge.SourceURL,
			SourceRef: "https://example.com/doc.txt",
		}
	}

	batch := NewBatchProcessor(BatchOptions{BatchSize: 2, MaxConcurrent: 2}, logger.NewNop())
	results := svc.CreateBulk(context.Background(), kbID, userID, specs, batch)

	require.Len(t, results, 5)
	for i, res := range results {
		require.NoError(t, res.Err)
		assert.Equal(t, i, res.Index)
		assert.Equal(t, knowledge.StatusCompleted, res.Value.Status)
		assert.Positive(t, res.Value.ChunkCount)
		require.NotNil(t, res.Value.CompletedAt)
	}
}

func TestDocumentService_CreateBulk_FailureIsolation(t *testing.T) {
	repo := newMemDocumentRepo()
	fetcher := &stubFetcher{
		broken: map[string]error{"https://example.com/broken": errors.New("connection reset")},
	}
	svc, _ := newTestDocumentService(repo, fetcher)
	kbID, userID := shared.NewID(), shared.NewID()

	specs := []DocumentSpec{
		{Filename: "ok-1.txt", Kind: knowledge.SourceURL, SourceRef: "https://example.com/ok-1"},
		{Filename: "broken.txt", Kind: knowledge.SourceURL, SourceRef: "https://example.com/broken"},
		{Filename: "ok-2.txt", Kind: knowledge.SourceURL, SourceRef: "https://example.com/ok-2"},
	}

	batch := NewBatchProcessor(BatchOptions{BatchSize: 3, MaxConcurrent: 3}, logger.NewNop())
	results := svc.CreateBulk(context.Background(), kbID, userID, specs, batch)

	require.Len(t, results, 3)

	// The broken document settled in its own slot as a persisted
	// failure with reason and completion timestamp.
	require.NoError(t, results[1].Err)
	failed := results[1].Value
	assert.Equal(t, knowledge.StatusFailed, failed.Status)
	assert.Contains(t, failed.ProcessingError, "connection reset")
	require.NotNil(t, failed.CompletedAt)

	// Siblings completed untouched.
	for _, i := range []int{0, 2} {
		require.NoError(t, results[i].Err)
		assert.Equal(t, knowledge.StatusCompleted, results[i].Value.Status)
	}

	stored, err := repo.GetByID(context.Background(), failed.ID)
	require.NoError(t, err)
	assert.Equal(t, knowledge.StatusFailed, stored.Status)
	require.NotNil(t, stored.CompletedAt)
}

func TestDocumentService_CreateBulk_InvalidSpecSettlesWithError(t *testing.T) {
	repo := newMemDocumentRepo()
	svc, _ := newTestDocumentService(repo, &stubFetcher{})

	specs := []DocumentSpec{
		{Filename: "ok.txt", Kind: knowledge.SourceURL, SourceRef: "https://example.com/ok"},
		{Filename: "bad.txt", Kind: "carrier-pigeon", SourceRef: "coop-7"},
	}

	batch := NewBatchProcessor(BatchOptions{BatchSize: 2}, logger.NewNop())
	results := svc.CreateBulk(context.Background(), shared.NewID(), shared.NewID(), specs, batch)

	require.Len(t, results, 2)
	require.NoError(t, results[0].Err)
	assert.Equal(t, knowledge.StatusCompleted, results[0].Value.Status)
	require.Error(t, results[1].Err)
	assert.True(t, shared.IsValidation(results[1].Err))
}
