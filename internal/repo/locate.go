// Package repo discovers the git repository that contains a project.
package repo

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/githighlight/internal/apperr"
)

// Marker is the metadata entry that identifies a repository root.
const Marker = ".git"

// Handle is a resolved repository. It never changes for a session.
type Handle struct {
	// Root is the absolute worktree root.
	Root string
	// MetaDir is the metadata directory watched for changes.
	MetaDir string
}

// Locate walks startDir and each of its parents until it finds a directory
// containing the .git marker. It returns apperr.ErrRepositoryNotFound when
// the filesystem root is reached, or a *apperr.LocateError when the search
// itself fails.
func Locate(startDir string) (Handle, error) {
	return locate(startDir, os.Stat, os.ReadFile)
}

type statFunc func(string) (fs.FileInfo, error)
type readFunc func(string) ([]byte, error)

func locate(startDir string, stat statFunc, read readFunc) (Handle, error) {
	abs, err := filepath.Abs(startDir)
	if err != nil {
		return Handle{}, &apperr.LocateError{Dir: startDir, Err: err}
	}

	dir := abs
	for {
		marker := filepath.Join(dir, Marker)
		info, err := stat(marker)
		switch {
		case err == nil:
			meta, ok, err := metaDir(dir, marker, info, read)
			if err != nil {
				return Handle{}, &apperr.LocateError{Dir: dir, Err: err}
			}
			if ok {
				return Handle{Root: dir, MetaDir: meta}, nil
			}
		case errors.Is(err, fs.ErrNotExist):
		default:
			return Handle{}, &apperr.LocateError{Dir: dir, Err: err}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return Handle{}, apperr.ErrRepositoryNotFound
		}
		dir = parent
	}
}

// metaDir resolves the metadata directory for a marker. A worktree carries a
// ".git" file pointing at the real metadata directory.
func metaDir(root, marker string, info fs.FileInfo, read readFunc) (string, bool, error) {
	if info.IsDir() {
		return marker, true, nil
	}
	content, err := read(marker)
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", marker, err)
	}
	content = bytes.TrimSpace(content)
	if !bytes.HasPrefix(content, []byte("gitdir:")) {
		return "", false, nil
	}
	target := strings.TrimSpace(string(content[len("gitdir:"):]))
	if !filepath.IsAbs(target) {
		target = filepath.Join(root, target)
	}
	return filepath.Clean(target), true, nil
}
