package history

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/starford/githighlight/internal/apperr"
)

// run executes git in dir and returns stdout. A missing binary maps to
// apperr.ErrToolUnavailable, a non-zero exit or per-call timeout to
// *apperr.ToolFailedError. Cancellation of the parent context is returned as is.
func (f *Fetcher) run(parent context.Context, dir string, args ...string) (string, error) {
	ctx := parent
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, f.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, f.binary(), args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.String(), nil
	}

	if perr := parent.Err(); perr != nil {
		return "", perr
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "", &apperr.ToolFailedError{Args: args, ExitCode: -1, Stderr: stderr.String(), TimedOut: true}
	}

	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return "", &apperr.ToolFailedError{Args: args, ExitCode: ee.ExitCode(), Stderr: stderr.String()}
	}
	return "", fmt.Errorf("%w: %s: %v", apperr.ErrToolUnavailable, f.binary(), err)
}
