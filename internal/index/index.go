// Package index answers "was this file touched, and by which commit" for a
// snapshot, and watches the repository metadata for changes.
package index

import (
	"strings"

	"github.com/starford/githighlight/internal/models"
	"github.com/starford/githighlight/internal/parser"
)

// NormalizePath makes a repository-relative path comparable: backslashes
// become slashes, leading separators are stripped and case is folded.
func NormalizePath(p string) string {
	return strings.ToLower(parser.NormalizeSeparators(strings.TrimSpace(p)))
}

// Match scans snap most recent first and returns the message of the first
// commit whose changed files contain relPath. It is pure and needs no index.
func Match(snap *models.Snapshot, relPath string) (string, bool) {
	key := NormalizePath(relPath)
	if key == "" || snap == nil {
		return "", false
	}
	for _, c := range snap.Commits {
		for _, f := range c.ChangedFiles {
			if NormalizePath(f) == key {
				return c.Message, true
			}
		}
	}
	return "", false
}

// Index maps normalised paths to the message of the most recent commit that
// touched them. It is built once per snapshot and never modified.
type Index struct {
	messages map[string]string
}

// Build indexes snap. Earlier commits win, so the result agrees with Match.
func Build(snap *models.Snapshot) *Index {
	idx := &Index{messages: make(map[string]string)}
	if snap == nil {
		return idx
	}
	for _, c := range snap.Commits {
		for _, f := range c.ChangedFiles {
			key := NormalizePath(f)
			if key == "" {
				continue
			}
			if _, seen := idx.messages[key]; !seen {
				idx.messages[key] = c.Message
			}
		}
	}
	return idx
}

// Lookup returns the tooltip for relPath, if any commit touched it.
func (i *Index) Lookup(relPath string) (string, bool) {
	if i == nil {
		return "", false
	}
	key := NormalizePath(relPath)
	if key == "" {
		return "", false
	}
	msg, ok := i.messages[key]
	return msg, ok
}

// Len returns the number of distinct paths indexed.
func (i *Index) Len() int {
	if i == nil {
		return 0
	}
	return len(i.messages)
}
