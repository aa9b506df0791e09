// Package check runs external check scripts and captures their output.
package check

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// HostTarget is the target name meaning "the host itself"; such checks run
// without a positional argument.
const HostTarget = "host"

// ErrNoOutput is reported for a check that produced no stdout.
var ErrNoOutput = errors.New("check produced no output")

// Check is one configured check: a script run against a target, recorded
// under a host and service label.
type Check struct {
	Host    string
	Target  string
	Script  string
	Service string
}

// Args returns the positional arguments for the script: the target, or none
// when the target is the host itself.
func (c Check) Args() []string {
	if c.Target == "" || strings.EqualFold(c.Target, HostTarget) {
		return nil
	}
	return []string{c.Target}
}

func (c Check) String() string {
	return strings.TrimSpace(c.Script + " " + strings.Join(c.Args(), " "))
}

// Output is what a finished check produced. Success is judged by Stdout
// alone; ExitCode is informational.
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes checks.
type Runner interface {
	Run(ctx context.Context, c Check) (Output, error)
}

// ExecRunner runs checks as local processes.
type ExecRunner struct {
	// Timeout bounds a single check. Zero means no limit.
	Timeout time.Duration
}

// NewExecRunner creates an ExecRunner with the given per-check timeout.
func NewExecRunner(timeout time.Duration) *ExecRunner {
	return &ExecRunner{Timeout: timeout}
}

// Run executes the check script and returns its output. A non-zero exit
// status is not an error; failing to start or timing out is.
func (r *ExecRunner) Run(ctx context.Context, c Check) (Output, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.Script, c.Args()...)
	// Grandchildren may keep the output pipes open after the script is killed.
	cmd.WaitDelay = time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := Output{
		Stdout: strings.TrimSpace(stdout.String()),
		Stderr: strings.TrimSpace(stderr.String()),
	}

	if ctx.Err() != nil {
		return out, fmt.Errorf("running %s: %w", c, ctx.Err())
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		out.ExitCode = exitErr.ExitCode()
	default:
		return out, fmt.Errorf("running %s: %w (stderr: %s)", c, err, out.Stderr)
	}
	return out, nil
}
