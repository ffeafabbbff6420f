package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/githighlight/internal/apperr"
)

// MaxReadSize caps the bytes returned by Read. Only the head of a document
// is ever highlighted, so large files are truncated.
const MaxReadSize = 64 << 10

// FS implements Provider over the local worktree.
type FS struct {
	root string // absolute worktree root
}

// NewFS creates a provider rooted at the given directory, which must exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute worktree root.
func (f *FS) Root() string {
	return f.root
}

// safePath resolves path against the root and rejects any result outside it.
// An absolute path inside the worktree is used as is. Anything else is taken
// as repository-relative with leading separators stripped, so "/a.go" and
// `\a.go` name the same file as "a.go". Only ".." segments that climb above
// the root are rejected.
func (f *FS) safePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("%w: empty path", apperr.ErrInvalidPath)
	}
	if filepath.IsAbs(path) {
		if abs := filepath.Clean(path); f.within(abs) {
			return abs, nil
		}
	}
	rel := strings.TrimLeft(strings.ReplaceAll(path, `\`, "/"), "/")
	abs := filepath.Join(f.root, filepath.FromSlash(rel))
	if !f.within(abs) {
		return "", fmt.Errorf("%w: path escapes repository root: %s", apperr.ErrInvalidPath, path)
	}
	return abs, nil
}

func (f *FS) within(abs string) bool {
	return abs == f.root || strings.HasPrefix(abs, f.root+string(os.PathSeparator))
}

// Rel returns the repository-relative slash path for path.
func (f *FS) Rel(path string) (string, error) {
	abs, err := f.safePath(path)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(f.root, abs)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperr.ErrInvalidPath, err)
	}
	if rel == "." {
		return "", fmt.Errorf("%w: path is the repository root", apperr.ErrInvalidPath)
	}
	return filepath.ToSlash(rel), nil
}

// Read returns up to MaxReadSize bytes of the file at path.
func (f *FS) Read(path string) ([]byte, error) {
	abs, err := f.safePath(path)
	if err != nil {
		return nil, err
	}
	fh, err := os.Open(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", path, err)
	}
	defer fh.Close()

	buf := make([]byte, MaxReadSize)
	n, err := io.ReadFull(fh, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("storage: read %s: %w", path, err)
	}
	return buf[:n], nil
}
