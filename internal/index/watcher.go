package index

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/githighlight/internal/apperr"
)

// Refresher receives "something changed" signals. The commit cache
// implements it and coalesces bursts, so the watcher does no debouncing.
type Refresher interface {
	RequestRefresh()
}

const refreshOps = fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename

// Watch subscribes to the repository metadata directory, recursively, and
// calls r.RequestRefresh on every create, write, remove or rename until ctx
// is cancelled.
//
// New directories created at runtime are added to the watch list. When the
// notification mechanism reports an error the watch ends with an error
// wrapping apperr.ErrWatcherFailed; re-subscribing is up to the caller.
// A queue overflow only means events were lost, so it triggers a refresh
// and the watch continues.
func Watch(ctx context.Context, metaDir string, r Refresher, logger *slog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrWatcherFailed, err)
	}
	defer w.Close()

	if err := addDirsRecursive(w, metaDir); err != nil {
		return fmt.Errorf("%w: watch %s: %v", apperr.ErrWatcherFailed, metaDir, err)
	}

	logger.Info("watcher: started", slog.String("root", metaDir))

	for {
		select {
		case <-ctx.Done():
			logger.Info("watcher: stopped")
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return fmt.Errorf("%w: event stream closed", apperr.ErrWatcherFailed)
			}
			if ev.Op&refreshOps == 0 {
				continue
			}

			if ev.Op.Has(fsnotify.Create) {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", ev.Name))
					}
				}
			}

			logger.Debug("watcher: change", slog.String("path", ev.Name), slog.String("op", ev.Op.String()))
			r.RequestRefresh()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return fmt.Errorf("%w: error stream closed", apperr.ErrWatcherFailed)
			}
			if errors.Is(watchErr, fsnotify.ErrEventOverflow) {
				logger.Warn("watcher: event overflow, refreshing")
				r.RequestRefresh()
				continue
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
			return fmt.Errorf("%w: %v", apperr.ErrWatcherFailed, watchErr)
		}
	}
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
// Directories that vanish during the walk are skipped.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path != root && errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
