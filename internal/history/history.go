// Package history keeps a bounded FIFO of conversation rounds, persisted to
// a JSON file so context survives restarts.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// Message is one conversation turn.
type Message struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// History holds the most recent conversation rounds. One round is a user
// message plus an assistant reply, so the buffer caps at maxRounds*2 messages.
// Safe for concurrent use: incoming messages may be handled on separate
// goroutines.
type History struct {
	mu          sync.Mutex
	maxMessages int
	messages    []Message
}

// New creates an empty History bounded to maxRounds rounds.
func New(maxRounds int) *History {
	return &History{maxMessages: maxRounds * 2}
}

// Load reads a persisted history from path. A missing file yields an empty
// history, not an error.
func Load(path string, maxRounds int) (*History, error) {
	h := New(maxRounds)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return h, nil
		}
		return h, fmt.Errorf("reading history: %w", err)
	}

	var stored struct {
		Messages []Message `json:"messages"`
	}
	if err := json.Unmarshal(data, &stored); err != nil {
		return h, fmt.Errorf("decoding history: %w", err)
	}
	h.messages = stored.Messages
	h.trim()
	return h, nil
}

// AddUser appends a user message.
func (h *History) AddUser(content string) {
	h.add("user", content)
}

// AddAssistant appends an assistant message.
func (h *History) AddAssistant(content string) {
	h.add("assistant", content)
}

func (h *History) add(role, content string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().Format(time.RFC3339),
	})
	h.trim()
}

// trim is called with the lock held (or before the History is shared).
func (h *History) trim() {
	for len(h.messages) > h.maxMessages {
		h.messages = h.messages[1:]
	}
}

// Len returns the number of stored messages.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages)
}

// Messages returns a copy of the stored messages, oldest first.
func (h *History) Messages() []Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Message(nil), h.messages...)
}

// LastByRole returns the most recent message with the given role.
func (h *History) LastByRole(role string) (Message, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := len(h.messages) - 1; i >= 0; i-- {
		if h.messages[i].Role == role {
			return h.messages[i], true
		}
	}
	return Message{}, false
}

// Clear drops all messages.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = nil
}

// ContextSummary renders the history as a prompt preamble, with long
// messages previewed at 500 characters. Empty history yields "".
func (h *History) ContextSummary() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.messages) == 0 {
		return ""
	}
	lines := []string{"=== Conversation History ==="}
	for i, msg := range h.messages {
		prefix := "User"
		if msg.Role == "assistant" {
			prefix = "Claude"
		}
		lines = append(lines, fmt.Sprintf("[%d] %s: %s", i+1, prefix, previewRunes(msg.Content, 500)))
	}
	lines = append(lines, "=== Current Command ===")
	return strings.Join(lines, "\n")
}

// previewRunes shortens s to at most max bytes without splitting a rune.
func previewRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	n := max
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

// Save persists the history to path.
func (h *History) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating history dir: %w", err)
	}

	h.mu.Lock()
	data, err := json.MarshalIndent(struct {
		Messages []Message `json:"messages"`
		SavedAt  string    `json:"saved_at"`
	}{h.messages, time.Now().Format(time.RFC3339)}, "", "  ")
	h.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encoding history: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}
