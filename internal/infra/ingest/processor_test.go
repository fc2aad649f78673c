package ingest

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowdeckio/api/pkg/domain/knowledge"
	"github.com/flowdeckio/api/pkg/domain/shared"
	"github.com/flowdeckio/api/pkg/logger"
)

func testDoc(t *testing.T) *knowledge.Document {
	t.Helper()
	doc, err := knowledge.NewDocument(shared.NewID(), shared.NewID(), "notes.txt", knowledge.SourceUpload, "uploads/notes.txt")
	require.NoError(t, err)
	return doc
}

func TestProcessor_Process_SingleChunk(t *testing.T) {
	p := NewProcessor(logger.NewNop())

	chunks, tokens, err := p.Process(context.Background(), testDoc(t), []byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, 1, chunks)
	assert.Equal(t, 3, tokens) // ceil(11/4)
}

func TestProcessor_Process_MultipleChunks(t *testing.T) {
	p := NewProcessor(logger.NewNop(), WithChunkSize(100), WithChunkOverlap(10))

	content := strings.Repeat("a", 250)
	chunks, tokens, err := p.Process(context.Background(), testDoc(t), []byte(content))
	require.NoError(t, err)

	// Chunks advance by size-overlap: [0,100) [90,190) [180,250).
	assert.Equal(t, 3, chunks)
	assert.Positive(t, tokens)
}

func TestProcessor_Process_RejectsEmpty(t *testing.T) {
	p := NewProcessor(logger.NewNop())

	_, _, err := p.Process(context.Background(), testDoc(t), nil)
	assert.Error(t, err)

	_, _, err = p.Process(context.Background(), testDoc(t), []byte("   \n\t  "))
	assert.Error(t, err)
}

func TestProcessor_Process_RejectsBinary(t *testing.T) {
	p := NewProcessor(logger.NewNop())

	_, _, err := p.Process(context.Background(), testDoc(t), []byte{0x00, 0x01, 0x02})
	assert.Error(t, err)

	_, _, err = p.Process(context.Background(), testDoc(t), []byte{0xff, 0xfe, 0x41})
	assert.Error(t, err)
}

func TestProcessor_Process_NormalizesLineEndings(t *testing.T) {
	p := NewProcessor(logger.NewNop(), WithChunkSize(10), WithChunkOverlap(0))

	crlf := []byte("ab\r\ncd\r\nef")
	lf := []byte("ab\ncd\nef")

	crlfChunks, crlfTokens, err := p.Process(context.Background(), testDoc(t), crlf)
	require.NoError(t, err)
	lfChunks, lfTokens, err := p.Process(context.Background(), testDoc(t), lf)
	require.NoError(t, err)

	assert.Equal(t, lfChunks, crlfChunks)
	assert.Equal(t, lfTokens, crlfTokens)
}

func TestNewProcessor_OverlapClamped(t *testing.T) {
	p := NewProcessor(logger.NewNop(), WithChunkSize(50), WithChunkOverlap(200))

	// A degenerate overlap would never advance; it gets clamped instead.
	content := strings.Repeat("x", 500)
	chunks, _, err := p.Process(context.Background(), testDoc(t), []byte(content))
	require.NoError(t, err)
	assert.Positive(t, chunks)
}
