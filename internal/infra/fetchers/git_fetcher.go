package fetchers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
)

const defaultBranch = "main"

// gitRef is a parsed document source reference of the form
// "<repo-url>#<path>" or "<repo-url>#<branch>:<path>".
type gitRef struct {
	URL    string
	Branch string
	Path   string
}

func parseGitRef(ref string) (gitRef, error) {
	idx := strings.LastIndex(ref, "#")
	if idx < 0 || idx == len(ref)-1 {
		return gitRef{}, fmt.Errorf("git source must include a file path after '#': %s", ref)
	}

	parsed := gitRef{
		URL:    ref[:idx],
		Branch: defaultBranch,
	}
	fragment := ref[idx+1:]

	// Branch names cannot contain ':' so the first colon splits
	// branch from path.
	if colon := strings.Index(fragment, ":"); colon >= 0 {
		if colon > 0 {
			parsed.Branch = fragment[:colon]
		}
		parsed.Path = fragment[colon+1:]
	} else {
		parsed.Path = fragment
	}

	if parsed.URL == "" {
		return gitRef{}, fmt.Errorf("git source is missing a repository URL: %s", ref)
	}
	if parsed.Path == "" {
		return gitRef{}, fmt.Errorf("git source is missing a file path: %s", ref)
	}

	cleaned := filepath.Clean(parsed.Path)
	if filepath.IsAbs(cleaned) || strings.HasPrefix(cleaned, "..") {
		return gitRef{}, fmt.Errorf("git source path escapes the repository: %s", parsed.Path)
	}
	parsed.Path = cleaned

	return parsed, nil
}

// GitFetcher reads a single file out of a Git repository using a
// shallow single-branch clone. Safe for concurrent use; each fetch
// clones into its own temp directory.
type GitFetcher struct {
	auth        transport.AuthMethod
	maxFileSize int64
	timeout     time.Duration
}

// NewGitFetcher creates a Git fetcher. A token authenticates clones of
// private repositories using the GitHub/GitLab convention.
func NewGitFetcher(cfg Config) *GitFetcher {
	cfg = cfg.withDefaults()

	f := &GitFetcher{
		maxFileSize: cfg.MaxFileSize,
		timeout:     cfg.Timeout,
	}
	if cfg.GitToken != "" {
		f.auth = &githttp.BasicAuth{
			Username: "x-access-token",
			Password: cfg.GitToken,
		}
	}
	return f
}

// Fetch clones the referenced repository and returns the file's content.
func (f *GitFetcher) Fetch(ctx context.Context, sourceRef string) ([]byte, error) {
	ref, err := parseGitRef(sourceRef)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	tempDir, err := os.MkdirTemp("", "doc-git-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	_, err = git.PlainCloneContext(ctx, tempDir, false, &git.CloneOptions{
		URL:           ref.URL,
		Auth:          f.auth,
		ReferenceName: plumbing.NewBranchReferenceName(ref.Branch),
		SingleBranch:  true,
		Depth:         1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to clone repository: %w", err)
	}

	filePath := filepath.Join(tempDir, ref.Path)
	info, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("file not found in repository: %s", ref.Path)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("git source path is a directory: %s", ref.Path)
	}
	if info.Size() > f.maxFileSize {
		return nil, fmt.Errorf("file exceeds size limit of %d bytes", f.maxFileSize)
	}

	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return content, nil
}
