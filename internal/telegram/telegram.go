// Package telegram is the transport adapter: a minimal Bot API client plus a
// long-poll loop that feeds incoming messages to the bridge and delivers
// replies, chunked to fit Telegram's message size limit.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/stefanclaw/clawbridge/internal/detect"
)

const defaultBaseURL = "https://api.telegram.org"

// chunkSize is Telegram's practical message limit with headroom for the
// chunk header.
const chunkSize = 4000

// Client is a minimal Telegram Bot API client over plain HTTP.
type Client struct {
	http    *http.Client
	baseURL string
	token   string
}

// NewClient creates a Client for the public Bot API.
func NewClient(token string) *Client {
	return NewClientWithHTTP(&http.Client{Timeout: 60 * time.Second}, defaultBaseURL, token)
}

// NewClientWithHTTP creates a Client with a custom HTTP client and base URL
// (for testing).
func NewClientWithHTTP(httpc *http.Client, baseURL, token string) *Client {
	return &Client{
		http:    httpc,
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
	}
}

// User is the Bot API user object (subset).
type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot,omitempty"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
}

// Chat is the Bot API chat object (subset).
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type,omitempty"`
}

// Message is the Bot API message object (subset).
type Message struct {
	MessageID int64  `json:"message_id"`
	Chat      *Chat  `json:"chat,omitempty"`
	From      *User  `json:"from,omitempty"`
	Text      string `json:"text,omitempty"`
}

// Update is one getUpdates result entry.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

// GetMe fetches the bot's own identity, verifying the token.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var out struct {
		OK     bool `json:"ok"`
		Result User `json:"result"`
	}
	if err := c.call(ctx, "getMe", nil, &out); err != nil {
		return nil, err
	}
	if !out.OK {
		return nil, fmt.Errorf("telegram getMe: ok=false")
	}
	return &out.Result, nil
}

// GetUpdates long-polls for new updates and returns them with the next
// offset to acknowledge.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, int64, error) {
	secs := int(timeout.Seconds())
	if secs < 1 {
		secs = 1
	}
	payload := map[string]any{"timeout": secs}
	if offset > 0 {
		payload["offset"] = offset
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout+5*time.Second)
	defer cancel()

	var out struct {
		OK     bool     `json:"ok"`
		Result []Update `json:"result"`
	}
	if err := c.call(reqCtx, "getUpdates", payload, &out); err != nil {
		return nil, offset, err
	}
	if !out.OK {
		return nil, offset, fmt.Errorf("telegram getUpdates: ok=false")
	}

	next := offset
	for _, u := range out.Result {
		if u.UpdateID >= next {
			next = u.UpdateID + 1
		}
	}
	return out.Result, next, nil
}

// SendMessage sends a plain-text message and returns its message id.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) (int64, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		text = "(empty)"
	}
	var out struct {
		OK     bool `json:"ok"`
		Result struct {
			MessageID int64 `json:"message_id"`
		} `json:"result"`
	}
	payload := map[string]any{"chat_id": chatID, "text": text, "disable_web_page_preview": true}
	if err := c.call(ctx, "sendMessage", payload, &out); err != nil {
		return 0, err
	}
	if !out.OK {
		return 0, fmt.Errorf("telegram sendMessage: ok=false")
	}
	return out.Result.MessageID, nil
}

// DeleteMessage removes a previously sent message. Best-effort; old messages
// may be undeletable.
func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	var out struct {
		OK bool `json:"ok"`
	}
	payload := map[string]any{"chat_id": chatID, "message_id": messageID}
	if err := c.call(ctx, "deleteMessage", payload, &out); err != nil {
		return err
	}
	if !out.OK {
		return fmt.Errorf("telegram deleteMessage: ok=false")
	}
	return nil
}

func (c *Client) call(ctx context.Context, method string, payload any, out any) error {
	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encoding %s request: %w", method, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return json.Unmarshal(raw, out)
}

// Handler processes one incoming message. Implemented by bridge.Bridge.
type Handler interface {
	Authorized(userID int64) bool
	IsCommand(text string) bool
	HandleMessage(ctx context.Context, chatID int64, text string) (reply string, status string)
}

// Poller runs the long-poll loop and relays messages between Telegram and
// the handler.
type Poller struct {
	api         *Client
	handler     Handler
	pollTimeout time.Duration
	log         zerolog.Logger
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewPoller creates a Poller.
func NewPoller(api *Client, handler Handler, pollTimeout time.Duration, log zerolog.Logger) *Poller {
	if pollTimeout <= 0 {
		pollTimeout = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Poller{
		api:         api,
		handler:     handler,
		pollTimeout: pollTimeout,
		log:         log.With().Str("component", "telegram").Logger(),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Name identifies the channel.
func (p *Poller) Name() string { return "telegram" }

// Start runs the poll loop until Stop is called. It blocks.
func (p *Poller) Start() error {
	ctx := p.ctx

	me, err := p.api.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("verifying bot token: %w", err)
	}
	p.log.Info().Str("bot", me.Username).Int64("bot_id", me.ID).Msg("telegram poller started")

	var offset int64
	for {
		updates, next, err := p.api.GetUpdates(ctx, offset, p.pollTimeout)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			p.log.Warn().Err(err).Msg("getUpdates failed")
			time.Sleep(time.Second)
			continue
		}
		offset = next

		// Each update runs on its own goroutine so a message arriving
		// during a long assistant call gets the immediate busy rejection
		// instead of queueing behind the poll loop.
		for _, u := range updates {
			go p.handleUpdate(ctx, u)
		}
	}
}

// Stop cancels the poll loop.
func (p *Poller) Stop() error {
	p.cancel()
	return nil
}

func (p *Poller) handleUpdate(ctx context.Context, u Update) {
	msg := u.Message
	if msg == nil || msg.Chat == nil {
		return
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}
	chatID := msg.Chat.ID

	userID := int64(0)
	if msg.From != nil {
		userID = msg.From.ID
	}
	if !p.handler.Authorized(userID) {
		p.log.Warn().Int64("user_id", userID).Msg("unauthorized user")
		p.send(ctx, chatID, fmt.Sprintf("Unauthorized\nYour User ID: %d", userID))
		return
	}

	// Commands answer fast, no processing notice.
	if p.handler.IsCommand(text) {
		reply, _ := p.handler.HandleMessage(ctx, chatID, text)
		p.send(ctx, chatID, reply)
		return
	}

	notice := "Claude is processing...\n" + preview(text, 50)
	if len(detect.Detect(text)) > 0 {
		notice = "🔗 Link detected, fetching content...\n" + preview(text, 50)
	}
	noticeID, noticeErr := p.api.SendMessage(ctx, chatID, notice)

	reply, status := p.handler.HandleMessage(ctx, chatID, text)

	if noticeErr == nil {
		if err := p.api.DeleteMessage(ctx, chatID, noticeID); err != nil {
			p.log.Debug().Err(err).Msg("deleting processing notice failed")
		}
	}
	if status != "" {
		p.send(ctx, chatID, status)
	}
	p.deliver(ctx, chatID, reply)
}

// deliver sends the assistant reply, splitting into numbered chunks when it
// exceeds Telegram's message limit.
func (p *Poller) deliver(ctx context.Context, chatID int64, reply string) {
	chunks := splitChunks(reply, chunkSize)
	if len(chunks) == 1 {
		p.send(ctx, chatID, "Claude:\n\n"+reply)
		return
	}
	for i, chunk := range chunks {
		p.send(ctx, chatID, fmt.Sprintf("[%d/%d]\n\n%s", i+1, len(chunks), chunk))
	}
}

func (p *Poller) send(ctx context.Context, chatID int64, text string) {
	if _, err := p.api.SendMessage(ctx, chatID, text); err != nil {
		p.log.Warn().Err(err).Int64("chat_id", chatID).Msg("sendMessage failed")
	}
}

// splitChunks cuts s into pieces of at most size bytes, never splitting a
// rune: a chunk that is not valid UTF-8 would be rejected by sendMessage.
func splitChunks(s string, size int) []string {
	var chunks []string
	for len(s) > size {
		n := runeBoundary(s, size)
		chunks = append(chunks, s[:n])
		s = s[n:]
	}
	return append(chunks, s)
}

// runeBoundary returns the largest n <= max such that s[:n] ends on a rune
// boundary.
func runeBoundary(s string, max int) int {
	n := max
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	if n == 0 {
		return max
	}
	return n
}

func preview(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:runeBoundary(s, max)] + "..."
}
