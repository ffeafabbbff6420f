// Package cache keeps the current commit window of a repository and
// refreshes it in the background.
//
// Concurrency model: one worker goroutine runs fetches, one at a time. The
// published snapshot lives in an atomic pointer, so readers never take a
// lock and never wait for a fetch. A mutex guards only the run-state
// transitions (idle, refreshing, refreshing with one more owed); the fetch
// itself runs unlocked.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/starford/githighlight/internal/apperr"
	"github.com/starford/githighlight/internal/checksum"
	"github.com/starford/githighlight/internal/index"
	"github.com/starford/githighlight/internal/models"
)

// DefaultWindow is the number of commits tracked when none is configured.
const DefaultWindow = 5

// Fetcher reads the commit window. *history.Fetcher implements it.
type Fetcher interface {
	Fetch(ctx context.Context, root string, limit int, exts []string) ([]models.CommitRecord, error)
}

// State is the externally observable cache state.
type State int

const (
	// StateEmpty means no snapshot has ever been published.
	StateEmpty State = iota
	// StateReady means a snapshot is available and no fetch is running.
	StateReady
	// StateRefreshing means a fetch is in flight; the previous snapshot, if
	// any, is still served.
	StateRefreshing
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateReady:
		return "ready"
	case StateRefreshing:
		return "refreshing"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "empty":
		*s = StateEmpty
	case "ready":
		*s = StateReady
	case "refreshing":
		*s = StateRefreshing
	default:
		return fmt.Errorf("cache: unknown state %q", b)
	}
	return nil
}

// Settings are read at the start of every fetch.
type Settings struct {
	Window     int
	Extensions []string
}

// Status is a point-in-time view of the cache for diagnostics.
type Status struct {
	State        State         `json:"state"`
	Generation   uint64        `json:"generation"`
	Commits      int           `json:"commits"`
	Pending      bool          `json:"pending"`
	Fetches      uint64        `json:"fetches"`
	Failures     uint64        `json:"failures"`
	LastError    string        `json:"last_error,omitempty"`
	LastRefresh  time.Time     `json:"last_refresh"`
	LastDuration time.Duration `json:"last_duration"`
	Window       int           `json:"window"`
}

type runState int

const (
	idle runState = iota
	refreshing
	refreshingPending
)

// published pairs a snapshot with the index built for it, so both are
// swapped in by one atomic store.
type published struct {
	snap *models.Snapshot
	idx  *index.Index
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithOnPublish registers fn to run on the worker after each new snapshot.
func WithOnPublish(fn func(*models.Snapshot)) Option {
	return func(c *Cache) { c.onPublish = fn }
}

// WithOnFailure registers fn to run on the worker after each failed fetch.
func WithOnFailure(fn func(error)) Option {
	return func(c *Cache) { c.onFailure = fn }
}

// Cache owns the commit window of one repository.
type Cache struct {
	root      string
	fetcher   Fetcher
	logger    *slog.Logger
	onPublish func(*models.Snapshot)
	onFailure func(error)

	settings atomic.Pointer[Settings]
	current  atomic.Pointer[published]

	mu           sync.Mutex
	run          runState
	started      bool
	closed       bool
	fetches      uint64
	failures     uint64
	lastErr      error
	lastRefresh  time.Time
	lastDuration time.Duration

	kick   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a cache for the repository at root. Nothing runs until Start.
func New(root string, f Fetcher, s Settings, opts ...Option) *Cache {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Cache{
		root:    root,
		fetcher: f,
		logger:  slog.Default(),
		kick:    make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.Configure(s)
	return c
}

// Start launches the worker. Calling it more than once, or after Close, has
// no effect.
func (c *Cache) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started || c.closed {
		return
	}
	c.started = true
	go c.loop()
}

// Configure replaces the settings used by the next fetch. It does not
// trigger a refresh by itself.
func (c *Cache) Configure(s Settings) {
	if s.Window < 1 {
		s.Window = DefaultWindow
	}
	s.Extensions = append([]string(nil), s.Extensions...)
	c.settings.Store(&s)
}

// Settings returns the current settings.
func (c *Cache) Settings() Settings {
	return *c.settings.Load()
}

// RequestRefresh asks for a fetch and returns immediately. While a fetch is
// in flight, any number of requests collapse into exactly one follow-up
// fetch that starts when the current one ends.
func (c *Cache) RequestRefresh() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	switch c.run {
	case idle:
		c.run = refreshing
		select {
		case c.kick <- struct{}{}:
		default:
		}
	case refreshing:
		c.run = refreshingPending
	case refreshingPending:
	}
}

// Snapshot returns the latest published snapshot, or an empty one. It never
// blocks and never returns nil. The result must be treated as read-only.
func (c *Cache) Snapshot() *models.Snapshot {
	if p := c.current.Load(); p != nil {
		return p.snap
	}
	return models.EmptySnapshot()
}

// Match returns the tooltip for relPath from the published snapshot. It
// agrees with index.Match(c.Snapshot(), relPath).
func (c *Cache) Match(relPath string) (string, bool) {
	p := c.current.Load()
	if p == nil {
		return "", false
	}
	return p.idx.Lookup(relPath)
}

// Status reports the observable state and refresh counters.
func (c *Cache) Status() Status {
	p := c.current.Load()

	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		Pending:      c.run == refreshingPending,
		Fetches:      c.fetches,
		Failures:     c.failures,
		LastRefresh:  c.lastRefresh,
		LastDuration: c.lastDuration,
		Window:       c.Settings().Window,
	}
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
	}
	if p != nil {
		st.Generation = p.snap.Generation
		st.Commits = len(p.snap.Commits)
	}
	switch {
	case c.run != idle:
		st.State = StateRefreshing
	case p != nil:
		st.State = StateReady
	default:
		st.State = StateEmpty
	}
	return st
}

// Close stops the worker. An in-flight fetch is abandoned, not awaited.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.cancel()
	if !c.started {
		close(c.done)
	}
}

// Done is closed once the worker has exited after Close.
func (c *Cache) Done() <-chan struct{} {
	return c.done
}

func (c *Cache) loop() {
	defer close(c.done)
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.kick:
		}

		for {
			c.refresh()

			c.mu.Lock()
			if c.run == refreshingPending && !c.closed {
				c.run = refreshing
				c.mu.Unlock()
				continue
			}
			c.run = idle
			c.mu.Unlock()
			break
		}
	}
}

// refresh runs one fetch and publishes its result. On failure the previous
// snapshot stays in place.
func (c *Cache) refresh() {
	s := c.Settings()
	start := time.Now()
	commits, err := c.fetch(s)
	elapsed := time.Since(start)

	if c.ctx.Err() != nil {
		return
	}

	c.mu.Lock()
	c.fetches++
	c.lastDuration = elapsed
	if err != nil {
		c.failures++
		c.lastErr = err
		c.mu.Unlock()

		// Tool failures are routine; anything else is logged as an error.
		level := slog.LevelError
		if apperr.IsToolFailure(err) {
			level = slog.LevelWarn
		}
		c.logger.Log(c.ctx, level, "cache: refresh failed",
			slog.String("root", c.root),
			slog.String("error", err.Error()))
		if c.onFailure != nil {
			c.onFailure(err)
		}
		return
	}
	now := time.Now()
	c.lastErr = nil
	c.lastRefresh = now
	c.mu.Unlock()

	if commits == nil {
		commits = []models.CommitRecord{}
	}
	var gen uint64 = 1
	if prev := c.current.Load(); prev != nil {
		gen = prev.snap.Generation + 1
	}
	snap := &models.Snapshot{
		Commits:     commits,
		Generation:  gen,
		Fingerprint: checksum.Fingerprint(commits),
		RefreshedAt: now,
	}
	c.current.Store(&published{snap: snap, idx: index.Build(snap)})

	c.logger.Info("cache: snapshot published",
		slog.Uint64("generation", gen),
		slog.Int("commits", len(commits)),
		slog.Int("window", s.Window),
		slog.Duration("took", elapsed))
	if c.onPublish != nil {
		c.onPublish(snap)
	}
}

func (c *Cache) fetch(s Settings) (commits []models.CommitRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cache: fetch panicked: %v", r)
		}
	}()
	return c.fetcher.Fetch(c.ctx, c.root, s.Window, s.Extensions)
}
