// Package history reads the recent commit window from git.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/githighlight/internal/models"
	"github.com/starford/githighlight/internal/parser"
)

// DefaultConcurrency bounds parallel diff-tree invocations.
const DefaultConcurrency = 4

// Fetcher lists recent commits and the files they touched by running git.
// It holds no state between calls.
type Fetcher struct {
	// Git is the binary to execute. Defaults to "git".
	Git string
	// Timeout bounds each invocation. Zero means no limit.
	Timeout time.Duration
	// Concurrency bounds the per-commit fan-out.
	Concurrency int
	Logger      *slog.Logger
}

// New creates a Fetcher.
func New(git string, timeout time.Duration, concurrency int, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{Git: git, Timeout: timeout, Concurrency: concurrency, Logger: logger}
}

func (f *Fetcher) binary() string {
	if strings.TrimSpace(f.Git) == "" {
		return "git"
	}
	return f.Git
}

func (f *Fetcher) logger() *slog.Logger {
	if f.Logger == nil {
		return slog.Default()
	}
	return f.Logger
}

// Fetch returns up to limit commits reachable from HEAD, most recent first,
// each reduced to the files allowed by exts. Commits left with no files are
// dropped. Any failing git invocation fails the whole fetch; a nil error
// with an empty slice means the window holds nothing relevant.
func (f *Fetcher) Fetch(ctx context.Context, root string, limit int, exts []string) ([]models.CommitRecord, error) {
	if limit < 1 {
		return nil, fmt.Errorf("history: limit must be at least 1, got %d", limit)
	}

	out, err := f.run(ctx, root, "log", fmt.Sprintf("-n%d", limit), "--pretty=format:"+parser.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("history: list commits: %w", err)
	}
	entries, err := parser.ParseLog(out)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}

	files := make([][]string, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	n := f.Concurrency
	if n <= 0 {
		n = DefaultConcurrency
	}
	g.SetLimit(n)
	for i, e := range entries {
		g.Go(func() error {
			out, err := f.run(gctx, root, "diff-tree", "-z", "--no-commit-id", "--name-only", "-r", "--root", e.Hash)
			if err != nil {
				return fmt.Errorf("history: files of %s: %w", e.Hash, err)
			}
			files[i] = parser.ParseNameOnly(out)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	filter := NewFilter(exts)
	records := make([]models.CommitRecord, 0, len(entries))
	for i, e := range entries {
		kept := filter.Apply(files[i])
		if len(kept) == 0 {
			f.logger().Debug("history: commit has no relevant files", slog.String("hash", e.Hash))
			continue
		}
		records = append(records, models.CommitRecord{
			Hash:         e.Hash,
			Message:      e.Message,
			ChangedFiles: kept,
		})
	}

	f.logger().Debug("history: fetched",
		slog.String("root", root),
		slog.Int("limit", limit),
		slog.Int("commits", len(entries)),
		slog.Int("relevant", len(records)))
	return records, nil
}
