package knowledge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowdeckio/api/pkg/domain/shared"
)

func newTestDocument(t *testing.T) *Document {
	t.Helper()
	doc, err := NewDocument(shared.NewID(), shared.NewID(), "report.pdf", SourceUpload, "uploads/report.pdf")
	require.NoError(t, err)
	return doc
}

func TestNewDocument(t *testing.T) {
	doc := newTestDocument(t)

	assert.False(t, doc.ID.IsZero())
	assert.Equal(t, StatusPending, doc.Status)
	assert.True(t, doc.Enabled)
	assert.Nil(t, doc.ProcessingAt)
}

func TestNewDocument_Validation(t *testing.T) {
	kbID, userID := shared.NewID(), shared.NewID()

	_, err := NewDocument(kbID, userID, "", SourceUpload, "")
	assert.True(t, shared.IsValidation(err))

	_, err = NewDocument(shared.ID{}, userID, "a.txt", SourceUpload, "")
	assert.True(t, shared.IsValidation(err))

	_, err = NewDocument(kbID, userID, "a.txt", SourceKind("carrier-pigeon"), "")
	assert.True(t, shared.IsValidation(err))
}

func TestDocument_Lifecycle(t *testing.T) {
	doc := newTestDocument(t)

	require.NoError(t, doc.StartProcessing())
	assert.Equal(t, StatusProcessing, doc.Status)
	require.NotNil(t, doc.ProcessingAt)

	require.NoError(t, doc.CompleteProcessing(12, 4096))
	assert.Equal(t, StatusCompleted, doc.Status)
	assert.Equal(t, 12, doc.ChunkCount)
	assert.Equal(t, 4096, doc.TokenCount)
	require.NotNil(t, doc.CompletedAt)

	// Terminal states refuse further transitions, and the rejections
	// carry the invalid-state sentinel the HTTP layer maps to 409.
	assert.ErrorIs(t, doc.StartProcessing(), shared.ErrInvalidState)
	assert.ErrorIs(t, doc.CompleteProcessing(1, 1), shared.ErrInvalidState)
	assert.ErrorIs(t, doc.FailProcessing("too late"), shared.ErrInvalidState)
}

func TestDocument_FailAndRetry(t *testing.T) {
	doc := newTestDocument(t)

	require.NoError(t, doc.StartProcessing())
	require.NoError(t, doc.FailProcessing("parser exploded"))
	assert.Equal(t, StatusFailed, doc.Status)
	assert.Equal(t, "parser exploded", doc.ProcessingError)
	// Failure is terminal, so it stamps a completion time too.
	require.NotNil(t, doc.CompletedAt)

	require.NoError(t, doc.Retry())
	assert.Equal(t, StatusPending, doc.Status)
	assert.Empty(t, doc.ProcessingError)
	assert.Nil(t, doc.ProcessingAt)
	assert.Nil(t, doc.CompletedAt)
}

func TestDocument_Retry_OnlyFromFailed(t *testing.T) {
	doc := newTestDocument(t)

	err := doc.Retry()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Document is not in failed state.")

	require.NoError(t, doc.StartProcessing())
	assert.Error(t, doc.Retry())

	require.NoError(t, doc.CompleteProcessing(1, 1))
	assert.Error(t, doc.Retry())
}

func TestDocument_FailForTimeout(t *testing.T) {
	doc := newTestDocument(t)

	// Not processing yet.
	assert.Error(t, doc.FailForTimeout(time.Minute))

	require.NoError(t, doc.StartProcessing())

	// Started just now, below the minimum age.
	err := doc.FailForTimeout(time.Minute)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has not been processing long enough")
	assert.Equal(t, StatusProcessing, doc.Status)

	// Backdate the start past the threshold.
	started := time.Now().Add(-2 * time.Minute)
	doc.ProcessingAt = &started

	require.NoError(t, doc.FailForTimeout(time.Minute))
	assert.Equal(t, StatusFailed, doc.Status)
	assert.Equal(t, "processing timed out", doc.ProcessingError)
	require.NotNil(t, doc.CompletedAt)
}

func TestNormalizeFilename(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "notes.txt", "notes.txt"},
		{"leading path", "/tmp/evil/../notes.txt", "notes.txt"},
		{"windows path", `C:\Users\me\notes.txt`, "notes.txt"},
		{"collapsed spaces", "  my   file .txt ", "my file .txt"},
		{"control chars stripped", "a\x00b\x1fc.md", "abc.md"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeFilename(tt.input))
		})
	}
}
