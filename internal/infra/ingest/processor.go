// Package ingest turns fetched document content into chunk and token
// counts for the knowledge base.
package ingest

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/flowdeckio/api/pkg/domain/knowledge"
	"github.com/flowdeckio/api/pkg/logger"
)

const (
	// defaultChunkSize is the target chunk length in runes.
	defaultChunkSize = 2000

	// defaultChunkOverlap is how many trailing runes of a chunk repeat
	// at the start of the next one, so sentences cut at a boundary stay
	// searchable.
	defaultChunkOverlap = 200

	// runesPerToken approximates the tokenizer used downstream.
	runesPerToken = 4
)

// Processor chunks plain-text document content.
type Processor struct {
	chunkSize    int
	chunkOverlap int
	logger       *logger.Logger
}

// ProcessorOption configures the processor.
type ProcessorOption func(*Processor)

// WithChunkSize overrides the target chunk length in runes.
func WithChunkSize(size int) ProcessorOption {
	return func(p *Processor) {
		if size > 0 {
			p.chunkSize = size
		}
	}
}

// WithChunkOverlap overrides the chunk overlap in runes.
func WithChunkOverlap(overlap int) ProcessorOption {
	return func(p *Processor) {
		if overlap >= 0 {
			p.chunkOverlap = overlap
		}
	}
}

// NewProcessor creates a document processor.
func NewProcessor(log *logger.Logger, opts ...ProcessorOption) *Processor {
	p := &Processor{
		chunkSize:    defaultChunkSize,
		chunkOverlap: defaultChunkOverlap,
		logger:       log.With("component", "ingest_processor"),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.chunkOverlap >= p.chunkSize {
		p.chunkOverlap = p.chunkSize / 10
	}
	return p
}

// Process splits content into chunks and estimates the token count.
// Content must be valid UTF-8 text; binary uploads are rejected rather
// than indexed as garbage.
func (p *Processor) Process(_ context.Context, doc *knowledge.Document, content []byte) (int, int, error) {
	if len(content) == 0 {
		return 0, 0, fmt.Errorf("document %s has no content", doc.Filename)
	}
	if bytes.ContainsRune(content, 0) || !utf8.Valid(content) {
		return 0, 0, fmt.Errorf("document %s is not valid UTF-8 text", doc.Filename)
	}

	text := normalize(string(content))
	if text == "" {
		return 0, 0, fmt.Errorf("document %s is empty after normalization", doc.Filename)
	}

	runes := []rune(text)
	chunks := 0
	tokens := 0
	step := p.chunkSize - p.chunkOverlap

	for start := 0; start < len(runes); start += step {
		end := start + p.chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks++
		tokens += (end - start + runesPerToken - 1) / runesPerToken
		if end == len(runes) {
			break
		}
	}

	p.logger.Debug("document chunked",
		"document_id", doc.ID,
		"runes", len(runes),
		"chunks", chunks,
		"tokens", tokens,
	)
	return chunks, tokens, nil
}

// normalize applies NFC so visually identical text chunks identically
// regardless of how the source encoded its accents, and collapses
// windows line endings.
func normalize(s string) string {
	s = norm.NFC.String(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.TrimSpace(s)
}
