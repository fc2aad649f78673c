// Package fetchers retrieves document content from its source (uploads,
// HTTP URLs, Git repositories) ahead of ingestion.
package fetchers

import (
	"context"
	"fmt"
	"time"

	"github.com/flowdeckio/api/pkg/domain/knowledge"
	"github.com/flowdeckio/api/pkg/logger"
)

// ObjectReader reads uploaded document content from the object store.
type ObjectReader interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// Config bounds how much a single fetch may download and how long it
// may run. Zero values fall back to safe defaults.
type Config struct {
	MaxFileSize int64
	Timeout     time.Duration

	// AllowedRoots restricts URL sources to these registrable domains.
	// Empty means any public host is allowed.
	AllowedRoots []string

	// GitToken authenticates clones of private repositories.
	GitToken string
}

const (
	defaultMaxFileSize = 50 * 1024 * 1024
	defaultTimeout     = 60 * time.Second
)

func (c Config) withDefaults() Config {
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = defaultMaxFileSize
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	return c
}

// Dispatcher routes content fetches by the document's source kind.
type Dispatcher struct {
	uploads ObjectReader
	url     *URLFetcher
	git     *GitFetcher
	logger  *logger.Logger
}

// NewDispatcher creates a fetcher covering all document source kinds.
func NewDispatcher(uploads ObjectReader, cfg Config, log *logger.Logger) *Dispatcher {
	cfg = cfg.withDefaults()
	return &Dispatcher{
		uploads: uploads,
		url:     NewURLFetcher(cfg),
		git:     NewGitFetcher(cfg),
		logger:  log,
	}
}

// Fetch downloads the raw content referenced by the document.
func (d *Dispatcher) Fetch(ctx context.Context, doc *knowledge.Document) ([]byte, error) {
	switch doc.SourceKind {
	case knowledge.SourceUpload:
		if d.uploads == nil {
			return nil, fmt.Errorf("upload source not configured")
		}
		return d.uploads.Get(ctx, doc.SourceRef)
	case knowledge.SourceURL:
		return d.url.Fetch(ctx, doc.SourceRef)
	case knowledge.SourceGit:
		return d.git.Fetch(ctx, doc.SourceRef)
	default:
		return nil, fmt.Errorf("unknown source kind %q", doc.SourceKind)
	}
}
