// Package bridge routes incoming chat messages: slash commands are handled
// locally, everything else flows through URL enrichment into the assistant,
// with conversation history and fetch audit records maintained around the
// call.
package bridge

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/stefanclaw/clawbridge/internal/config"
	"github.com/stefanclaw/clawbridge/internal/detect"
	"github.com/stefanclaw/clawbridge/internal/history"
)

// Preprocessor runs the URL enrichment pipeline.
type Preprocessor interface {
	Preprocess(ctx context.Context, text string) (string, []string)
}

// Executor invokes the downstream assistant.
type Executor interface {
	Execute(ctx context.Context, prompt string) string
	Busy() bool
}

// Recorder persists fetch audit files.
type Recorder interface {
	Save(url, fetchedContent, response, userNote string) (string, error)
}

// Extractor runs on-demand structured extraction over arbitrary text.
type Extractor interface {
	Extract(ctx context.Context, text, instruction string) string
}

// Options carries the bridge's static configuration.
type Options struct {
	AllowedUserIDs []int64
	MaxRounds      int
	WorkingDir     string
	LogDir         string
	HistoryPath    string
	RetentionDays  int
	AllowDangerous bool
	Caps           config.Capabilities
}

// Bridge composes history, enrichment, the assistant runner, the recorder and
// the extractor behind a single message entry point.
type Bridge struct {
	opts      Options
	hist      *history.History
	pre       Preprocessor
	runner    Executor
	recorder  Recorder
	extractor Extractor
	log       zerolog.Logger
}

// New creates a Bridge around an already-loaded history.
func New(opts Options, hist *history.History, pre Preprocessor, runner Executor, recorder Recorder, extractor Extractor, log zerolog.Logger) *Bridge {
	return &Bridge{
		opts:      opts,
		hist:      hist,
		pre:       pre,
		runner:    runner,
		recorder:  recorder,
		extractor: extractor,
		log:       log.With().Str("component", "bridge").Logger(),
	}
}

// Authorized reports whether the user may talk to the bridge. An empty
// allowlist admits everyone.
func (b *Bridge) Authorized(userID int64) bool {
	if len(b.opts.AllowedUserIDs) == 0 {
		b.log.Warn().Msg("no allowed user ids configured, anyone can use this bot")
		return true
	}
	for _, id := range b.opts.AllowedUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// IsCommand reports whether the text starts with a slash command the bridge
// handles locally. The transport uses this to skip the processing notice.
func (b *Bridge) IsCommand(text string) bool {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		return false
	}
	switch strings.ToLower(fields[0]) {
	case "/start", "/clear", "/history", "/help", "/status", "/extract", "/fetch", "/exec":
		return true
	}
	return false
}

// HandleMessage processes one incoming message and returns the reply plus an
// optional URL-processing status line for the transport to show separately.
func (b *Bridge) HandleMessage(ctx context.Context, chatID int64, text string) (string, string) {
	text = strings.TrimSpace(text)
	cmd := ""
	if fields := strings.Fields(text); len(fields) > 0 {
		cmd = strings.ToLower(fields[0])
	}

	switch cmd {
	case "/start":
		return b.cmdStart(), ""
	case "/exec":
		return b.cmdExec(ctx, strings.TrimSpace(strings.TrimPrefix(text, "/exec"))), ""
	case "/clear":
		return b.cmdClear(), ""
	case "/history":
		return b.cmdHistory(), ""
	case "/help":
		return b.cmdHelp(), ""
	case "/status":
		return b.cmdStatus(), ""
	case "/extract":
		return b.cmdExtract(ctx), ""
	case "/fetch":
		return b.cmdFetch(ctx), ""
	}

	b.log.Info().Int64("chat_id", chatID).Str("text", preview(text, 100)).Msg("message received")

	enhanced, summaries := b.pre.Preprocess(ctx, text)

	status := ""
	if len(summaries) > 0 {
		status = "🔗 URL processing:\n" + strings.Join(summaries, "\n")
	}

	b.hist.AddUser(text)
	response := b.runner.Execute(ctx, b.buildPrompt(enhanced))

	if len(summaries) > 0 {
		if detected := detect.Detect(text); len(detected) > 0 {
			url := detected[0].URL
			note := strings.TrimSpace(strings.ReplaceAll(text, url, ""))
			if _, err := b.recorder.Save(url, enhanced, response, note); err != nil {
				b.log.Error().Err(err).Msg("saving fetch record failed")
			}
		}
	}

	b.hist.AddAssistant(response)
	b.saveHistory()

	return response, status
}

// buildPrompt prepends the conversation context and the safety note.
func (b *Bridge) buildPrompt(message string) string {
	safety := ""
	if !b.opts.AllowDangerous {
		safety = "Safety: Do not delete important files or modify system settings."
	}
	if summary := b.hist.ContextSummary(); summary != "" {
		return fmt.Sprintf("%s\n%s\n\n%s\nPlease understand and execute the current request based on the conversation context above.", summary, message, safety)
	}
	return fmt.Sprintf("%s\n\n%s", message, safety)
}

func (b *Bridge) cmdStart() string {
	return fmt.Sprintf(`Clawbridge - Telegram bridge to Claude Code

Welcome!

Features:
- Auto-keep last %d conversation rounds as context
- Daily logs, auto-cleanup after %d days
- URL auto-fetch: X/Twitter, YouTube, web pages
- 📷 Image analysis: %s
- 🔎 Structured extraction: %s

Type /help for all commands.`,
		b.opts.MaxRounds,
		b.opts.RetentionDays,
		checkmark(b.opts.Caps.Vision),
		checkmark(b.opts.Caps.Extract))
}

// execTimeout bounds /exec shell commands.
const execTimeout = 60 * time.Second

// execOutputCap keeps /exec replies inside one Telegram message.
const execOutputCap = 3500

func (b *Bridge) cmdExec(ctx context.Context, command string) string {
	if command == "" {
		return "Usage: /exec <command>"
	}
	b.log.Info().Str("command", preview(command, 100)).Msg("exec command")

	runCtx, cancel := context.WithTimeout(ctx, execTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	cmd.Dir = b.opts.WorkingDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()

	if runCtx.Err() == context.DeadlineExceeded {
		return "Execution timeout"
	}

	output := strings.TrimSpace(stdout.String())
	if output == "" {
		output = strings.TrimSpace(stderr.String())
	}
	if output == "" {
		output = "(no output)"
	}
	if len(output) > execOutputCap {
		output = cutRunes(output, execOutputCap) + "\n...(truncated)"
	}

	verdict := "Success"
	if err != nil {
		verdict = "Failed"
	}
	return verdict + ":\n" + output
}

func (b *Bridge) cmdClear() string {
	b.hist.Clear()
	b.saveHistory()
	return "Conversation history cleared. New messages will not include previous context."
}

func (b *Bridge) cmdHistory() string {
	msgs := b.hist.Messages()
	if len(msgs) == 0 {
		return "No conversation history."
	}
	lines := []string{fmt.Sprintf("Conversation History (%d messages):", len(msgs))}
	for i, msg := range msgs {
		prefix := "You"
		if msg.Role == "assistant" {
			prefix = "Claude"
		}
		p := strings.ReplaceAll(preview(msg.Content, 100), "\n", " ")
		lines = append(lines, fmt.Sprintf("[%d] %s: %s", i+1, prefix, p))
	}
	return strings.Join(lines, "\n")
}

func (b *Bridge) cmdHelp() string {
	return fmt.Sprintf(`Clawbridge - Help

Commands:
/start - Welcome and feature summary
/clear - Clear conversation history
/history - Show conversation history
/status - Show system status
/extract - Structured extraction of the last reply
/fetch - Re-fetch the last message's URL and analyze it
/exec <command> - Run a shell command in the working directory
/help - Show this help message

Usage:
Just send any message to interact with Claude Code.
Links are fetched and summarized automatically before Claude sees them.
The bot maintains the last %d conversation rounds as context.

Tips:
- Claude understands references like "this" or "that" based on context
- Use /clear to start a fresh conversation`, b.opts.MaxRounds)
}

func (b *Bridge) cmdStatus() string {
	logFiles, _ := filepath.Glob(filepath.Join(b.opts.LogDir, "bridge_*.log"))
	claudeStatus := "Ready"
	if b.runner.Busy() {
		claudeStatus = "Busy"
	}
	return fmt.Sprintf(`System Status

History messages: %d
Max history rounds: %d
Working directory: %s
Log directory: %s
Log files: %d
Log retention: %d days
Claude status: %s

URL processors:
  fxtwitter: ✅
  yt-dlp: %s
  HTTP fallback: ✅

📷 Image analysis: %s
🔎 Structured extraction: %s

Current time: %s`,
		b.hist.Len(),
		b.opts.MaxRounds,
		b.opts.WorkingDir,
		b.opts.LogDir,
		len(logFiles),
		b.opts.RetentionDays,
		claudeStatus,
		checkmark(b.opts.Caps.YtDlp),
		checkmark(b.opts.Caps.Vision),
		checkmark(b.opts.Caps.Extract),
		time.Now().Format("2006-01-02 15:04:05"))
}

func (b *Bridge) cmdExtract(ctx context.Context) string {
	last, ok := b.hist.LastByRole("assistant")
	if !ok {
		return "No assistant reply found."
	}
	result := b.extractor.Extract(ctx, last.Content, "")
	if result == "" {
		return "No extraction result"
	}
	return result
}

func (b *Bridge) cmdFetch(ctx context.Context) string {
	last, ok := b.hist.LastByRole("user")
	if !ok {
		return "No messages. Usage: send a message with a URL, then /fetch"
	}
	urls := detect.Detect(last.Content)
	if len(urls) == 0 {
		return "No URL found in last message."
	}
	url := urls[0].URL
	note := strings.TrimSpace(strings.ReplaceAll(last.Content, url, ""))

	fetched, _ := b.pre.Preprocess(ctx, url)
	if fetched == url {
		fetched = "Could not fetch"
	}

	prompt := "URL content:\n" + fetched + "\n\n"
	if note != "" {
		prompt += "User task: " + note + "\n\n"
	}
	prompt += "Provide comprehensive analysis. Structure clearly."

	response := b.runner.Execute(ctx, prompt)

	saved, err := b.recorder.Save(url, fetched, response, note)
	if err != nil {
		b.log.Error().Err(err).Msg("saving fetch record failed")
		return response
	}
	return response + "\n\n---\nSaved: " + saved
}

func (b *Bridge) saveHistory() {
	if err := b.hist.Save(b.opts.HistoryPath); err != nil {
		b.log.Error().Err(err).Msg("saving history failed")
	}
}

func checkmark(enabled bool) string {
	if enabled {
		return "✅"
	}
	return "❌"
}

// cutRunes shortens s to at most max bytes without splitting a rune.
func cutRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	n := max
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func preview(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return cutRunes(s, max) + "..."
}
