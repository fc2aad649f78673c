package knowledge

import (
	"fmt"
	"path"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/flowdeckio/api/pkg/domain/shared"
)

// ProcessingStatus tracks a document through ingestion.
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
)

func (s ProcessingStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

func (s ProcessingStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// SourceKind identifies where a document's content comes from.
type SourceKind string

const (
	SourceUpload SourceKind = "upload"
	SourceURL    SourceKind = "url"
	SourceGit    SourceKind = "git"
)

// Document is a knowledge base entry moving through the ingestion
// pipeline. Status transitions are guarded here so repositories never
// have to reason about ordering.
type Document struct {
	ID              shared.ID
	KnowledgeBaseID shared.ID
	UserID          shared.ID
	Filename        string
	SourceKind      SourceKind
	SourceRef       string
	MimeType        string
	SizeBytes       int64
	Status          ProcessingStatus
	ProcessingError string
	ChunkCount      int
	TokenCount      int
	Enabled         bool
	ProcessingAt    *time.Time
	CompletedAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func NewDocument(kbID, userID shared.ID, filename string, kind SourceKind, sourceRef string) (*Document, error) {
	filename = NormalizeFilename(filename)
	if filename == "" {
		return nil, shared.NewDomainError("VALIDATION", "document filename is required", shared.ErrValidation)
	}
	if kbID.IsZero() {
		return nil, shared.NewDomainError("VALIDATION", "knowledge base id is required", shared.ErrValidation)
	}
	if userID.IsZero() {
		return nil, shared.NewDomainError("VALIDATION", "user id is required", shared.ErrValidation)
	}
	switch kind {
	case SourceUpload, SourceURL, SourceGit:
	default:
		return nil, shared.NewDomainError("VALIDATION", fmt.Sprintf("unknown source kind %q", kind), shared.ErrValidation)
	}

	now := time.Now()
	return &Document{
		ID:              shared.NewID(),
		KnowledgeBaseID: kbID,
		UserID:          userID,
		Filename:        filename,
		SourceKind:      kind,
		SourceRef:       sourceRef,
		Status:          StatusPending,
		Enabled:         true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// StartProcessing moves pending to processing and stamps the start
// time used later for timeout detection.
func (d *Document) StartProcessing() error {
	if d.Status != StatusPending {
		return shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("document is %s, expected pending", d.Status), shared.ErrInvalidState)
	}
	now := time.Now()
	d.Status = StatusProcessing
	d.ProcessingAt = &now
	d.ProcessingError = ""
	d.UpdatedAt = now
	return nil
}

func (d *Document) CompleteProcessing(chunkCount, tokenCount int) error {
	if d.Status != StatusProcessing {
		return shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("document is %s, expected processing", d.Status), shared.ErrInvalidState)
	}
	now := time.Now()
	d.Status = StatusCompleted
	d.ChunkCount = chunkCount
	d.TokenCount = tokenCount
	d.CompletedAt = &now
	d.UpdatedAt = now
	return nil
}

func (d *Document) FailProcessing(reason string) error {
	if d.Status != StatusProcessing && d.Status != StatusPending {
		return shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("document is %s, cannot fail", d.Status), shared.ErrInvalidState)
	}
	now := time.Now()
	d.Status = StatusFailed
	d.ProcessingError = reason
	d.CompletedAt = &now
	d.UpdatedAt = now
	return nil
}

// Retry resets a failed document back to pending so the worker picks
// it up again. Only failed documents may be retried.
func (d *Document) Retry() error {
	if d.Status != StatusFailed {
		return shared.NewDomainError("INVALID_STATE",
			"Document is not in failed state.", shared.ErrInvalidState)
	}
	d.Status = StatusPending
	d.ProcessingError = ""
	d.ProcessingAt = nil
	d.CompletedAt = nil
	d.UpdatedAt = time.Now()
	return nil
}

// FailForTimeout force-fails a document stuck in processing. Documents
// that started recently are left alone so a slow but live worker is
// not clobbered.
func (d *Document) FailForTimeout(minAge time.Duration) error {
	if d.Status != StatusProcessing {
		return shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("document is %s, expected processing", d.Status), shared.ErrInvalidState)
	}
	if d.ProcessingAt == nil || time.Since(*d.ProcessingAt) < minAge {
		return shared.NewDomainError("INVALID_STATE",
			"document has not been processing long enough", shared.ErrInvalidState)
	}
	now := time.Now()
	d.Status = StatusFailed
	d.ProcessingError = "processing timed out"
	d.CompletedAt = &now
	d.UpdatedAt = now
	return nil
}

// NormalizeFilename applies NFC normalization, strips any path
// components and control characters, and collapses whitespace.
// Uploaded names come from browsers on every platform and arrive in
// every imaginable shape.
func NormalizeFilename(name string) string {
	name = norm.NFC.String(name)
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(name))
	lastSpace := false
	for _, r := range name {
		if unicode.IsControl(r) {
			continue
		}
		if unicode.IsSpace(r) {
			if !lastSpace && b.Len() > 0 {
				b.WriteRune(' ')
			}
			lastSpace = true
			continue
		}
		lastSpace = false
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}
