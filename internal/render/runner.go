package render

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// Runner executes an external renderer. Tests swap in a fake that writes
// the output file itself.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// CommandError is a failed external command with the tail of its stderr.
type CommandError struct {
	Name   string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s: %v", e.Name, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Name, e.Err, e.Stderr)
}

func (e *CommandError) Unwrap() error { return e.Err }

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	Log *slog.Logger
}

func (r ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	log := r.Log
	if log == nil {
		log = slog.Default()
	}
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		tail := lastBytes(strings.TrimSpace(stderr.String()), 512)
		log.Warn("render.exec.failed", "cmd", name, "elapsed_ms", elapsed, "error", err, "stderr", tail)
		return &CommandError{Name: name, Stderr: tail, Err: err}
	}
	log.Debug("render.exec.ok", "cmd", name, "args", strings.Join(args, " "), "elapsed_ms", elapsed)
	return nil
}

// lastBytes keeps the end of s, where tools print the actual error.
func lastBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
