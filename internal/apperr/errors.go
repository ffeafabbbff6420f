// Package apperr holds the error taxonomy shared across packages.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrRepositoryNotFound is the negative outcome of repository discovery.
	// It is not a failure: the session simply stays inactive.
	ErrRepositoryNotFound = errors.New("repository not found")
	// ErrToolUnavailable means the git binary is missing or cannot be started.
	ErrToolUnavailable = errors.New("version-control tool unavailable")
	// ErrWatcherFailed means the filesystem subscription broke.
	ErrWatcherFailed = errors.New("repository watcher failed")
	// ErrSessionInactive is returned by operations that need a repository.
	ErrSessionInactive = errors.New("session inactive")
	ErrInvalidPath     = errors.New("invalid path")
)

// LocateError is a filesystem failure hit while searching for the repository.
type LocateError struct {
	Dir string
	Err error
}

func (e *LocateError) Error() string {
	return fmt.Sprintf("locate repository at %s: %v", e.Dir, e.Err)
}

func (e *LocateError) Unwrap() error { return e.Err }

// ToolFailedError reports a git invocation that exited non-zero or timed out.
type ToolFailedError struct {
	Args     []string
	ExitCode int
	Stderr   string
	TimedOut bool
}

func (e *ToolFailedError) Error() string {
	cmd := "git " + strings.Join(e.Args, " ")
	if e.TimedOut {
		return fmt.Sprintf("%s: timed out", cmd)
	}
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("%s: exit code %d", cmd, e.ExitCode)
	}
	return fmt.Sprintf("%s: exit code %d: %s", cmd, e.ExitCode, msg)
}

// IsToolFailure reports whether err came from the external tool, either
// because it is missing or because it failed.
func IsToolFailure(err error) bool {
	var tf *ToolFailedError
	return errors.Is(err, ErrToolUnavailable) || errors.As(err, &tf)
}
