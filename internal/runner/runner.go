// Package runner invokes the external refinement executable as a bounded
// subprocess. It captures both streams in full and classifies the outcome;
// truncating output for responses is the caller's concern.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/strudel-workshops/metfish-gateway/internal/domain/entity"
)

type Runner struct {
	bin     string
	timeout time.Duration
}

func New(bin string, timeout time.Duration) *Runner {
	return &Runner{bin: bin, timeout: timeout}
}

func (r *Runner) Timeout() time.Duration {
	return r.timeout
}

// Run executes the binary with the given arguments and waits for completion
// or the wall-clock bound, whichever comes first. Exactly one of three
// outcomes is reported: a launch failure (non-nil error), a timeout
// (TimedOut set), or a normal exit (ExitCode set).
func (r *Runner) Run(ctx context.Context, args []string) (*entity.RunOutcome, error) {
	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	path, err := exec.LookPath(r.bin)
	if err != nil {
		return nil, fmt.Errorf("locate executable %s: %w", r.bin, err)
	}

	cmd := exec.CommandContext(runCtx, path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", r.bin, err)
	}
	waitErr := cmd.Wait()

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return &entity.RunOutcome{
			ExitCode: -1,
			Stdout:   stdout.Bytes(),
			Stderr:   stderr.Bytes(),
			TimedOut: true,
		}, nil
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return &entity.RunOutcome{
				ExitCode: exitErr.ExitCode(),
				Stdout:   stdout.Bytes(),
				Stderr:   stderr.Bytes(),
			}, nil
		}
		return nil, fmt.Errorf("wait for %s: %w", r.bin, waitErr)
	}
	return &entity.RunOutcome{
		ExitCode: 0,
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
	}, nil
}
