package assistant

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

func fakeCLI(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "claude")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestRunner(cliPath string) *Runner {
	return NewWithArgs(Options{
		CLIPath:        cliPath,
		Timeout:        5 * time.Second,
		MaxOutputChars: 3500,
	}, nil, zerolog.Nop())
}

func TestExecute_Output(t *testing.T) {
	r := newTestRunner(fakeCLI(t, "cat -"))

	out := r.Execute(context.Background(), "hello there")
	if !strings.Contains(out, "hello there") {
		t.Errorf("Execute() = %q, want prompt echoed back", out)
	}
}

func TestExecute_StripsANSI(t *testing.T) {
	r := newTestRunner(fakeCLI(t, `printf '\033[1mbold\033[0m plain'`))

	out := r.Execute(context.Background(), "x")
	if out != "bold plain" {
		t.Errorf("Execute() = %q, want ANSI stripped", out)
	}
}

func TestExecute_Truncates(t *testing.T) {
	r := NewWithArgs(Options{
		CLIPath:        fakeCLI(t, `printf 'aaaaaaaaaaaaaaaaaaaa'`),
		Timeout:        5 * time.Second,
		MaxOutputChars: 10,
	}, nil, zerolog.Nop())

	out := r.Execute(context.Background(), "x")
	if !strings.HasSuffix(out, "...(output truncated)") {
		t.Errorf("Execute() = %q, want truncation marker", out)
	}
	if !strings.HasPrefix(out, "aaaaaaaaaa") || strings.HasPrefix(out, "aaaaaaaaaaa") {
		t.Errorf("Execute() = %q, want exactly 10 chars kept", out)
	}
}

func TestExecute_TruncatesMultibyteSafe(t *testing.T) {
	r := NewWithArgs(Options{
		CLIPath:        fakeCLI(t, `printf '汉字汉字汉字汉字'`),
		Timeout:        5 * time.Second,
		MaxOutputChars: 10,
	}, nil, zerolog.Nop())

	out := r.Execute(context.Background(), "x")
	if !utf8.ValidString(out) {
		t.Errorf("Execute() = %q, truncation split a rune", out)
	}
	if !strings.HasPrefix(out, "汉字汉") || !strings.HasSuffix(out, "...(output truncated)") {
		t.Errorf("Execute() = %q", out)
	}
}

func TestExecute_Busy(t *testing.T) {
	r := newTestRunner(fakeCLI(t, "sleep 2; echo done"))

	done := make(chan string, 1)
	go func() { done <- r.Execute(context.Background(), "slow") }()

	deadline := time.Now().Add(time.Second)
	for !r.Busy() {
		if time.Now().After(deadline) {
			t.Fatal("runner never became busy")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if out := r.Execute(context.Background(), "second"); out != BusyMessage {
		t.Errorf("concurrent Execute() = %q, want busy message", out)
	}

	if out := <-done; !strings.Contains(out, "done") {
		t.Errorf("first Execute() = %q", out)
	}

	// Slot released: a follow-up call runs normally.
	r2 := newTestRunner(fakeCLI(t, "echo again"))
	r.opts.CLIPath = r2.opts.CLIPath
	if out := r.Execute(context.Background(), "third"); out == BusyMessage {
		t.Error("slot not released after completion")
	}
}

func TestExecute_Timeout(t *testing.T) {
	r := NewWithArgs(Options{
		CLIPath: fakeCLI(t, "sleep 10"),
		Timeout: time.Second,
	}, nil, zerolog.Nop())

	out := r.Execute(context.Background(), "x")
	if out != "Execution timeout (1s)" {
		t.Errorf("Execute() = %q, want timeout message", out)
	}
}

func TestExecute_NotFound(t *testing.T) {
	r := newTestRunner(filepath.Join(t.TempDir(), "no-such-cli"))

	out := r.Execute(context.Background(), "x")
	if !strings.Contains(out, "Claude CLI not found") {
		t.Errorf("Execute() = %q, want not-found message", out)
	}
}

func TestExecute_StderrOnly(t *testing.T) {
	r := newTestRunner(fakeCLI(t, "echo 'boom' >&2; exit 1"))

	out := r.Execute(context.Background(), "x")
	if !strings.HasPrefix(out, "Error:\n") || !strings.Contains(out, "boom") {
		t.Errorf("Execute() = %q, want stderr surfaced", out)
	}
}

func TestExecute_NoOutput(t *testing.T) {
	r := newTestRunner(fakeCLI(t, "exit 0"))

	out := r.Execute(context.Background(), "x")
	if out != "Task completed (no output)" {
		t.Errorf("Execute() = %q", out)
	}
}

func TestFindCLI(t *testing.T) {
	good := fakeCLI(t, "exit 0")
	if got := FindCLI(good); got != good {
		t.Errorf("FindCLI(%q) = %q", good, got)
	}

	bad := filepath.Join(t.TempDir(), "missing")
	if got := FindCLI(bad); got != "" && got != "claude" {
		t.Errorf("FindCLI(%q) = %q, want fallback probing only", bad, got)
	}
}
