package internal

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/githighlight/internal/history"
	"github.com/starford/githighlight/internal/index"
	"github.com/starford/githighlight/internal/models"
	"github.com/starford/githighlight/internal/repo"
	"github.com/starford/githighlight/internal/storage"
)

// FetchOnce locates the repository and reads the commit window once,
// synchronously, without starting any background work.
func FetchOnce(ctx context.Context, cfg *Config, logger *slog.Logger) (repo.Handle, []models.CommitRecord, error) {
	h, err := repo.Locate(cfg.Project.Root)
	if err != nil {
		return repo.Handle{}, nil, err
	}
	f := history.New(cfg.History.GitBinary, cfg.History.Timeout, cfg.History.Concurrency, logger)
	s := cfg.History.Settings()
	commits, err := f.Fetch(ctx, h.Root, s.Window, s.Extensions)
	if err != nil {
		return h, nil, err
	}
	return h, commits, nil
}

// MatchOnce answers a single match query for path with a fresh fetch.
func MatchOnce(ctx context.Context, cfg *Config, path string, logger *slog.Logger) (string, bool, error) {
	h, commits, err := FetchOnce(ctx, cfg, logger)
	if err != nil {
		return "", false, err
	}
	store, err := storage.NewFS(h.Root)
	if err != nil {
		return "", false, fmt.Errorf("init storage: %w", err)
	}
	rel, err := store.Rel(path)
	if err != nil {
		return "", false, err
	}
	msg, ok := index.Match(&models.Snapshot{Commits: commits}, rel)
	return msg, ok, nil
}
