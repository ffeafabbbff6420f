// Package testutil provides shared test helpers for git repositories and
// fetch doubles.
package testutil

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starford/githighlight/internal/models"
)

// Logger returns a logger that only reports errors, to keep test output quiet.
func Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// Eventually polls fn every tick until it returns true or timeout elapses.
func Eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

// GitRepo initialises an empty repository in a temp dir. The test is skipped
// when git is not on PATH.
func GitRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	dir := t.TempDir()
	Git(t, dir, "init", "-q")
	Git(t, dir, "config", "user.email", "test@example.com")
	Git(t, dir, "config", "user.name", "Test User")
	Git(t, dir, "config", "commit.gpgsign", "false")
	return dir
}

// Git runs a git command in dir and returns its combined output.
func Git(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return string(out)
}

// Commit writes files (path -> content) and commits them with message.
// It returns the new commit hash.
func Commit(t *testing.T, dir, message string, files map[string]string) string {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatalf("write file: %v", err)
		}
		Git(t, dir, "add", "--", name)
	}
	Git(t, dir, "commit", "-q", "-m", message)
	return strings.TrimSpace(Git(t, dir, "rev-parse", "HEAD"))
}

// FakeGit writes an executable shell script standing in for git and returns
// its path. Skipped on Windows.
func FakeGit(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported on windows")
	}
	p := filepath.Join(t.TempDir(), "git")
	if err := os.WriteFile(p, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatal(err)
	}
	return p
}

// FakeFetcher is a scriptable history source. It returns its configured
// commits truncated to the requested limit, or its configured error.
type FakeFetcher struct {
	mu        sync.Mutex
	commits   []models.CommitRecord
	err       error
	gate      chan struct{}
	calls     int
	limits    []int
	active    int
	maxActive int
	started   chan int
}

// NewFakeFetcher creates a fetcher serving commits.
func NewFakeFetcher(commits ...models.CommitRecord) *FakeFetcher {
	return &FakeFetcher{commits: commits, started: make(chan int, 256)}
}

// Fetch implements the cache's history source.
func (f *FakeFetcher) Fetch(ctx context.Context, _ string, limit int, _ []string) ([]models.CommitRecord, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.limits = append(f.limits, limit)
	f.active++
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
	gate := f.gate
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	select {
	case f.started <- n:
	default:
	}

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := f.commits
	if limit < len(out) {
		out = out[:limit]
	}
	return append([]models.CommitRecord(nil), out...), nil
}

// SetCommits replaces the served commits.
func (f *FakeFetcher) SetCommits(commits ...models.CommitRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits = commits
	f.err = nil
}

// SetErr makes subsequent fetches fail with err.
func (f *FakeFetcher) SetErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// Hold makes subsequent fetches block until Release.
func (f *FakeFetcher) Hold() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gate == nil {
		f.gate = make(chan struct{})
	}
}

// Release unblocks held fetches.
func (f *FakeFetcher) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gate != nil {
		close(f.gate)
		f.gate = nil
	}
}

// Started delivers the call number of each fetch as it begins.
func (f *FakeFetcher) Started() <-chan int {
	return f.started
}

// Calls returns the number of fetches begun.
func (f *FakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Limits returns the limit passed to each fetch, in call order.
func (f *FakeFetcher) Limits() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.limits...)
}

// MaxConcurrent returns the highest number of overlapping fetches observed.
func (f *FakeFetcher) MaxConcurrent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxActive
}

// Record is shorthand for building a CommitRecord in tests.
func Record(hash, message string, files ...string) models.CommitRecord {
	return models.CommitRecord{Hash: hash, Message: message, ChangedFiles: files}
}
