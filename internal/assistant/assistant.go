// Package assistant invokes the Claude CLI as a subprocess: one composed
// prompt in over stdin, terminal output back, within a timeout. At most one
// invocation runs system-wide; a second request is rejected immediately
// rather than queued.
package assistant

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

// BusyMessage is returned when an invocation is already in flight.
const BusyMessage = "Claude is processing another task. Please wait..."

var ansiEscapes = regexp.MustCompile("\x1b(?:[@-Z\\\\-_]|\\[[0-?]*[ -/]*[@-~])")

// Options configures a Runner.
type Options struct {
	CLIPath        string
	WorkingDir     string
	Timeout        time.Duration
	AllowDangerous bool
	MaxOutputChars int
}

// Runner executes Claude CLI calls serialized by a single-slot semaphore
// with try-acquire semantics.
type Runner struct {
	opts Options
	args []string
	slot chan struct{}
	log  zerolog.Logger
}

// New creates a Runner.
func New(opts Options, log zerolog.Logger) *Runner {
	return &Runner{
		opts: opts,
		args: []string{"--print", "--dangerously-skip-permissions"},
		slot: make(chan struct{}, 1),
		log:  log.With().Str("component", "assistant").Logger(),
	}
}

// NewWithArgs creates a Runner with custom CLI arguments (for testing).
func NewWithArgs(opts Options, args []string, log zerolog.Logger) *Runner {
	r := New(opts, log)
	r.args = args
	return r
}

// Busy reports whether an invocation is currently in flight.
func (r *Runner) Busy() bool {
	return len(r.slot) > 0
}

// Execute sends the prompt to the CLI and returns its output, or a
// human-readable message distinguishing busy, timeout, not-found and generic
// execution errors. The busy slot is released on every exit path.
func (r *Runner) Execute(ctx context.Context, prompt string) string {
	select {
	case r.slot <- struct{}{}:
	default:
		return BusyMessage
	}
	defer func() { <-r.slot }()

	r.log.Info().Str("prompt", truncate(prompt, 100)).Msg("executing claude")

	runCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.opts.CLIPath, r.args...)
	if r.opts.WorkingDir != "" {
		cmd.Dir = r.opts.WorkingDir
	}
	cmd.Stdin = strings.NewReader(prompt)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	if runCtx.Err() == context.DeadlineExceeded {
		r.log.Warn().Dur("timeout", r.opts.Timeout).Msg("claude execution timed out")
		return fmt.Sprintf("Execution timeout (%ds)", int(r.opts.Timeout.Seconds()))
	}
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			return "Claude CLI not found. Please ensure Claude Code is installed."
		}
		if stdout.Len() == 0 && stderr.Len() > 0 {
			return "Error:\n" + stderr.String()
		}
		if stdout.Len() == 0 {
			r.log.Error().Err(err).Msg("claude execution failed")
			return fmt.Sprintf("Execution error: %v", err)
		}
	}

	if stdout.Len() == 0 {
		if stderr.Len() > 0 {
			return "Error:\n" + stderr.String()
		}
		return "Task completed (no output)"
	}

	return r.formatOutput(stdout.String())
}

// formatOutput strips ANSI escapes and caps the reply length.
func (r *Runner) formatOutput(output string) string {
	output = ansiEscapes.ReplaceAllString(output, "")
	if max := r.opts.MaxOutputChars; max > 0 && len(output) > max {
		output = truncate(output, max) + "\n\n...(output truncated)"
	}
	return output
}

// FindCLI probes candidate paths with --version and returns the first one
// that responds, or "" if none do.
func FindCLI(configured string) string {
	candidates := []string{configured, "claude"}
	for _, path := range candidates {
		if path == "" {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := exec.CommandContext(ctx, path, "--version").Run()
		cancel()
		if err == nil {
			return path
		}
	}
	return ""
}

// truncate caps s at max bytes without splitting a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	n := max
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
