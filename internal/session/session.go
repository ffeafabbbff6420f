// Package session owns the commit cache of one open project: it discovers
// the repository, starts the refresh worker and the metadata watcher, and
// tears both down again.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/githighlight/internal/apperr"
	"github.com/starford/githighlight/internal/cache"
	"github.com/starford/githighlight/internal/history"
	"github.com/starford/githighlight/internal/index"
	"github.com/starford/githighlight/internal/models"
	"github.com/starford/githighlight/internal/repo"
)

// Watcher re-arm defaults.
const (
	DefaultRewatchAttempts = 3
	DefaultRewatchDelay    = time.Second
)

// Config describes the project and how its history is read.
type Config struct {
	// StartDir is where repository discovery begins.
	StartDir    string
	Git         string
	Timeout     time.Duration
	Concurrency int
	Settings    cache.Settings
}

// Status describes the session for diagnostics.
type Status struct {
	Active       bool         `json:"active"`
	Root         string       `json:"root,omitempty"`
	Cache        cache.Status `json:"cache"`
	WatcherError string       `json:"watcher_error,omitempty"`
	// WatcherRestarts counts re-arms after watcher failures.
	WatcherRestarts int `json:"watcher_restarts,omitempty"`
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithFetcher replaces the git-backed history source.
func WithFetcher(f cache.Fetcher) Option {
	return func(s *Session) { s.fetcher = f }
}

// WithRewatch bounds how often a failed repository watcher is re-armed and
// how long to wait before each attempt. attempts 0 leaves it stopped.
func WithRewatch(attempts int, delay time.Duration) Option {
	return func(s *Session) {
		s.rewatchAttempts = attempts
		s.rewatchDelay = delay
	}
}

// WithCacheOptions passes extra options to the commit cache.
func WithCacheOptions(opts ...cache.Option) Option {
	return func(s *Session) { s.cacheOpts = append(s.cacheOpts, opts...) }
}

// Session is one project's cache plus its triggers. An inactive session has
// no repository: it serves the empty snapshot and starts nothing.
type Session struct {
	handle    repo.Handle
	active    bool
	logger    *slog.Logger
	fetcher   cache.Fetcher
	cacheOpts []cache.Option
	cache     *cache.Cache

	rewatchAttempts int
	rewatchDelay    time.Duration

	mu         sync.Mutex
	started    bool
	closed     bool
	cancel     context.CancelFunc
	watcherErr error
	restarts   int
	wg         sync.WaitGroup
}

// Open discovers the repository above cfg.StartDir. When none exists the
// returned session is inactive and the error is nil; a filesystem failure
// during discovery is returned as is.
func Open(cfg Config, opts ...Option) (*Session, error) {
	s := &Session{
		logger:          slog.Default(),
		rewatchAttempts: DefaultRewatchAttempts,
		rewatchDelay:    DefaultRewatchDelay,
	}
	for _, opt := range opts {
		opt(s)
	}

	h, err := repo.Locate(cfg.StartDir)
	switch {
	case errors.Is(err, apperr.ErrRepositoryNotFound):
		s.logger.Info("session: no repository, staying inactive", slog.String("start_dir", cfg.StartDir))
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("session: %w", err)
	}

	s.handle = h
	s.active = true
	if s.fetcher == nil {
		s.fetcher = history.New(cfg.Git, cfg.Timeout, cfg.Concurrency, s.logger)
	}
	s.cache = cache.New(h.Root, s.fetcher, cfg.Settings,
		append([]cache.Option{cache.WithLogger(s.logger)}, s.cacheOpts...)...)

	s.logger.Info("session: repository found",
		slog.String("root", h.Root),
		slog.String("meta_dir", h.MetaDir))
	return s, nil
}

// Active reports whether a repository was found.
func (s *Session) Active() bool {
	return s.active
}

// Root returns the worktree root, or "" for an inactive session.
func (s *Session) Root() string {
	return s.handle.Root
}

// Start launches the refresh worker, requests the startup refresh and
// subscribes to repository changes. The watcher stops when ctx is done or
// the session is closed. It is a no-op for an inactive session.
func (s *Session) Start(ctx context.Context) {
	if !s.active {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.closed {
		return
	}
	s.started = true

	s.cache.Start()
	s.cache.RequestRefresh()

	wctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.watch(wctx)
	}()
}

// watch runs the repository watcher and re-arms it after a failure, up to
// rewatchAttempts times. Each re-arm requests a refresh because changes may
// have been missed while nothing was listening.
func (s *Session) watch(ctx context.Context) {
	for attempt := 0; ; attempt++ {
		err := index.Watch(ctx, s.handle.MetaDir, s.cache, s.logger)
		if err == nil || ctx.Err() != nil {
			return
		}
		s.mu.Lock()
		s.watcherErr = err
		s.mu.Unlock()

		if attempt >= s.rewatchAttempts {
			s.logger.Error("session: repository watcher stopped",
				slog.String("root", s.handle.Root),
				slog.String("error", err.Error()))
			return
		}
		s.logger.Warn("session: repository watcher failed, re-arming",
			slog.String("root", s.handle.Root),
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()))

		timer := time.NewTimer(s.rewatchDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		s.mu.Lock()
		s.restarts++
		s.mu.Unlock()
		s.cache.RequestRefresh()
	}
}

// Snapshot returns the current snapshot. It never blocks and never returns nil.
func (s *Session) Snapshot() *models.Snapshot {
	if !s.active {
		return models.EmptySnapshot()
	}
	return s.cache.Snapshot()
}

// Match returns the tooltip for a repository-relative path.
func (s *Session) Match(relPath string) (string, bool) {
	if !s.active {
		return "", false
	}
	return s.cache.Match(relPath)
}

// RequestRefresh asks for a refresh. It does nothing when inactive.
func (s *Session) RequestRefresh() {
	if s.active {
		s.cache.RequestRefresh()
	}
}

// Reconfigure applies new history settings and requests a refresh that is
// guaranteed to use them.
func (s *Session) Reconfigure(settings cache.Settings) {
	if !s.active {
		return
	}
	s.cache.Configure(settings)
	s.cache.RequestRefresh()
	s.logger.Info("session: reconfigured",
		slog.Int("window", s.cache.Settings().Window),
		slog.Int("extensions", len(settings.Extensions)))
}

// WatcherErr returns the error that stopped the repository watcher, if any.
func (s *Session) WatcherErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watcherErr
}

// Status reports the session state.
func (s *Session) Status() Status {
	st := Status{Active: s.active, Root: s.handle.Root}
	if !s.active {
		return st
	}
	st.Cache = s.cache.Status()
	s.mu.Lock()
	if s.watcherErr != nil {
		st.WatcherError = s.watcherErr.Error()
	}
	st.WatcherRestarts = s.restarts
	s.mu.Unlock()
	return st
}

// Close unsubscribes the watcher and stops the worker. An in-flight fetch is
// abandoned; Close does not wait for it.
func (s *Session) Close() {
	if !s.active {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.cache.Close()
	s.logger.Info("session: closed", slog.String("root", s.handle.Root))
}
