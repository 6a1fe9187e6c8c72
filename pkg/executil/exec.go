// Package executil runs external programs (lvm, btrfs, mkfs.btrfs) and
// captures both output streams in full, so a verbose command never blocks
// on a full pipe.
package executil

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/outscale/bsud/pkg/bsuerrors"
)

// DefaultTimeout bounds a single external command invocation.
const DefaultTimeout = 30 * time.Second

// Result is the captured outcome of running an external command.
type Result struct {
	Cmd      string
	Args     []string
	ExitCode int
	Stdout   string
	Stderr   string
	Success  bool
}

func run(ctx context.Context, timeout time.Duration, name string, args ...string) (Result, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{
		Cmd:    name,
		Args:   args,
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err == nil {
		res.ExitCode = 0
		res.Success = true
		return res, nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		res.ExitCode = exitErr.ExitCode()
		res.Success = false
		return res, err
	}
	// context deadline, binary not found, etc. — still not a clean exit.
	res.ExitCode = -1
	res.Success = false
	return res, err
}

// RunStrict runs name with args and fails if it exits non-zero.
func RunStrict(ctx context.Context, name string, args ...string) (Result, error) {
	return RunStrictTimeout(ctx, DefaultTimeout, name, args...)
}

// RunStrictTimeout is RunStrict with an explicit per-call timeout.
func RunStrictTimeout(ctx context.Context, timeout time.Duration, name string, args ...string) (Result, error) {
	res, err := run(ctx, timeout, name, args...)
	if err != nil {
		return res, bsuerrors.New(bsuerrors.ExternalCommandFailed, name,
			fmt.Errorf("args %q, exit code %d, stderr %q: %w", args, res.ExitCode, res.Stderr, err))
	}
	return res, nil
}

// RunLenient runs name with args and never fails on non-zero exit; it
// reports success via the returned bool. Used for commands where a no-op
// exit (nothing to do) is an acceptable outcome, e.g. pvmove.
func RunLenient(ctx context.Context, name string, args ...string) (Result, bool) {
	res, err := run(ctx, DefaultTimeout, name, args...)
	if err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			return res, false
		}
		return res, false
	}
	return res, true
}
