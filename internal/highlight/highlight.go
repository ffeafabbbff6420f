// Package highlight turns a file match into the range and tooltip an editor
// annotates.
package highlight

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/starford/githighlight/internal/apperr"
	"github.com/starford/githighlight/internal/models"
	"github.com/starford/githighlight/internal/session"
	"github.com/starford/githighlight/internal/storage"
)

// Span is the number of characters annotated after leading whitespace.
const Span = 5

// FallbackTooltip is shown when the matching commit has an empty subject.
const FallbackTooltip = "Recent Change"

// Result is a highlight for one document. Start and End are byte offsets
// into the document text, End exclusive.
type Result struct {
	Path    string `json:"path"`
	Start   int    `json:"start"`
	End     int    `json:"end"`
	Tooltip string `json:"tooltip"`
}

// Range returns the byte range that starts at the first non-whitespace
// character of text and covers up to Span characters. Text that is empty or
// only whitespace yields no range.
func Range(text string) (start, end int, ok bool) {
	start = strings.IndexFunc(text, func(r rune) bool { return !unicode.IsSpace(r) })
	if start < 0 {
		return 0, 0, false
	}
	end = start
	for n := 0; n < Span && end < len(text); n++ {
		_, size := utf8.DecodeRuneInString(text[end:])
		end += size
	}
	return start, end, true
}

// Source is the commit window the service queries. *session.Session
// implements it.
type Source interface {
	Active() bool
	Snapshot() *models.Snapshot
	Match(relPath string) (string, bool)
	RequestRefresh()
	Status() session.Status
}

// Service answers editor queries against the current snapshot.
type Service struct {
	src   Source
	store storage.Provider
}

// NewService creates a service. store may be nil when the session is
// inactive; path queries then fail with apperr.ErrSessionInactive.
func NewService(src Source, store storage.Provider) *Service {
	return &Service{src: src, store: store}
}

// Rel resolves path to a repository-relative slash path.
func (s *Service) Rel(path string) (string, error) {
	if !s.src.Active() || s.store == nil {
		return "", apperr.ErrSessionInactive
	}
	return s.store.Rel(path)
}

// Match returns the tooltip for path, which may be absolute or relative to
// the repository root.
func (s *Service) Match(_ context.Context, path string) (string, bool, error) {
	rel, err := s.Rel(path)
	if err != nil {
		return "", false, err
	}
	msg, ok := s.src.Match(rel)
	if ok && msg == "" {
		msg = FallbackTooltip
	}
	return msg, ok, nil
}

// Highlight returns the annotation for path, or nil when the file was not
// touched in the window or has no text to annotate. When text is nil the
// file's current content is read from the worktree.
func (s *Service) Highlight(ctx context.Context, path string, text *string) (*Result, error) {
	rel, err := s.Rel(path)
	if err != nil {
		return nil, err
	}
	tooltip, ok, err := s.Match(ctx, rel)
	if err != nil || !ok {
		return nil, err
	}

	var body string
	if text != nil {
		body = *text
	} else {
		data, err := s.store.Read(rel)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, nil
			}
			return nil, fmt.Errorf("highlight: %w", err)
		}
		body = string(data)
	}

	start, end, ok := Range(body)
	if !ok {
		return nil, nil
	}
	return &Result{Path: rel, Start: start, End: end, Tooltip: tooltip}, nil
}

// Commits returns the current snapshot.
func (s *Service) Commits(_ context.Context) *models.Snapshot {
	return s.src.Snapshot()
}

// Status reports the session state.
func (s *Service) Status(_ context.Context) session.Status {
	return s.src.Status()
}

// Refresh requests a background refresh.
func (s *Service) Refresh(_ context.Context) error {
	if !s.src.Active() {
		return apperr.ErrSessionInactive
	}
	s.src.RequestRefresh()
	return nil
}
