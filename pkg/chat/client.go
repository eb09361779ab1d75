// Package chat implements the outbound client for the chat platform: HTML
// messages, optional inline keyboards, and the reply surface the mirror and
// coordinator publish through.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// SendTimeout bounds a single outbound send attempt.
const SendTimeout = 10 * time.Second

// ErrRetryable marks send failures worth retrying: network errors, 5xx, and
// 429. 4xx responses other than 429 are permanent.
var ErrRetryable = errors.New("retryable send error")

// Button is one inline-keyboard button. Data is the opaque callback payload
// echoed back on press.
type Button struct {
	Text string `json:"text"`
	Data string `json:"callback_data"`
}

// Keyboard is rows of inline buttons.
type Keyboard struct {
	Rows [][]Button `json:"inline_keyboard"`
}

// Message is an outbound chat message. Text is HTML-formatted.
type Message struct {
	ChatID string
	Text   string
	Board  *Keyboard
}

// Sender is the outbound surface. Satisfied by *Client; faked in tests.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Config holds the parameters needed to construct a Client.
type Config struct {
	Endpoint string
	Token    string
}

// Client posts messages to the chat platform.
type Client struct {
	endpoint   string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates an outbound chat client.
func NewClient(cfg Config) *Client {
	return &Client{
		endpoint:   cfg.Endpoint,
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: SendTimeout},
		logger:     slog.Default().With("component", "chat-client"),
	}
}

type sendRequest struct {
	ChatID      string    `json:"chat_id"`
	Text        string    `json:"text"`
	ParseMode   string    `json:"parse_mode"`
	ReplyMarkup *Keyboard `json:"reply_markup,omitempty"`
}

// Send delivers one message. Classifies failures so callers can decide
// whether to retry: errors wrapping ErrRetryable are transient.
func (c *Client) Send(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(sendRequest{
		ChatID:      msg.ChatID,
		Text:        msg.Text,
		ParseMode:   "HTML",
		ReplyMarkup: msg.Board,
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRetryable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("%w: HTTP %d", ErrRetryable, resp.StatusCode)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("send rejected: HTTP %d: %s", resp.StatusCode, body)
	}
}
