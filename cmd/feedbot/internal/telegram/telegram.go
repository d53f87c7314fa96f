// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package telegram is a minimal Telegram Bot API client: it sends HTML
// messages and long polls for updates.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.astrophena.name/feedbot/internal/request"
)

const (
	tgAPI          = "https://api.telegram.org"
	sendRetryLimit = 5 // N attempts to retry message sending

	// MaxMessageLength is the maximum length of a message text in runes.
	MaxMessageLength = 4096
)

// Config configures a Telegram client.
type Config struct {
	// Token is the bot token.
	Token string
	// ChatID is the chat messages are sent to unless a message names another.
	ChatID string
	// HTTPClient is used for requests. If nil, a client with a timeout long
	// enough for long polling is used.
	HTTPClient *http.Client
	// Scrubber removes secrets from error messages. If nil, the token is
	// scrubbed.
	Scrubber *strings.Replacer
	Logger   *slog.Logger
}

// Client talks to the Telegram Bot API.
type Client struct {
	chatID      string
	token       string
	httpc       *http.Client
	scrubber    *strings.Replacer
	slog        *slog.Logger
	apiURL      string
	makeRequest func(context.Context, string, any) error
	sleep       func(context.Context, time.Duration) bool
}

// New returns a Telegram client.
func New(cfg Config) *Client {
	c := &Client{
		chatID:   cfg.ChatID,
		token:    cfg.Token,
		httpc:    cfg.HTTPClient,
		scrubber: cfg.Scrubber,
		slog:     cfg.Logger,
		apiURL:   tgAPI,
	}
	if c.httpc == nil {
		c.httpc = &http.Client{Timeout: time.Minute}
	}
	if c.scrubber == nil && c.token != "" {
		c.scrubber = strings.NewReplacer(c.token, "[EXPUNGED]")
	}
	if c.slog == nil {
		c.slog = slog.Default()
	}
	c.makeRequest = c.makeTelegramRequest
	c.sleep = sleep
	return c
}

// ChatID returns the default chat ID.
func (c *Client) ChatID() string { return c.chatID }

// Message is an outgoing message. Text is HTML in the subset Telegram
// supports.
type Message struct {
	// ChatID overrides the default chat if not empty.
	ChatID string
	// ThreadID is the forum topic to post into. Zero means the main chat.
	ThreadID       int64
	Text           string
	DisablePreview bool
}

type sendMessageArgs struct {
	ChatID             string `json:"chat_id"`
	MessageThreadID    int64  `json:"message_thread_id,omitempty"`
	Text               string `json:"text"`
	ParseMode          string `json:"parse_mode"`
	LinkPreviewOptions struct {
		IsDisabled bool `json:"is_disabled"`
	} `json:"link_preview_options"`
}

var errEmptyMessage = errors.New("telegram: message text is empty")

// Send sends a message, retrying requests when rate limited.
func (c *Client) Send(ctx context.Context, msg Message) error {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return errEmptyMessage
	}

	args := &sendMessageArgs{
		ChatID:          c.chatID,
		MessageThreadID: msg.ThreadID,
		Text:            text,
		ParseMode:       "HTML",
	}
	if msg.ChatID != "" {
		args.ChatID = msg.ChatID
	}
	args.LinkPreviewOptions.IsDisabled = msg.DisablePreview

	var err error
	for range sendRetryLimit {
		err = c.makeRequest(ctx, "sendMessage", args)
		if err == nil {
			return nil
		}

		retryable, wait := isRateLimited(err)
		if !retryable {
			return err
		}

		c.slog.WarnContext(ctx, "sending rate limited, waiting", "chat_id", args.ChatID, "thread_id", args.MessageThreadID, "wait", wait)
		if !c.sleep(ctx, wait) {
			return ctx.Err()
		}
	}
	return err
}

func (c *Client) makeTelegramRequest(ctx context.Context, method string, args any) error {
	_, err := call[json.RawMessage](ctx, c, method, args)
	return err
}

type response[T any] struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Result      T      `json:"result"`
}

func call[T any](ctx context.Context, c *Client, method string, args any) (T, error) {
	var zero T
	resp, err := request.PostJSON[response[T]](ctx, request.Params{
		URL:        c.apiURL + "/bot" + c.token + "/" + method,
		Body:       args,
		HTTPClient: c.httpc,
		Scrubber:   c.scrubber,
	})
	if err != nil {
		return zero, err
	}
	if !resp.OK {
		return zero, fmt.Errorf("telegram: %s: %s", method, resp.Description)
	}
	return resp.Result, nil
}

// Update is an incoming update.
type Update struct {
	UpdateID int64            `json:"update_id"`
	Message  *IncomingMessage `json:"message,omitempty"`
}

// IncomingMessage is a message received by the bot.
type IncomingMessage struct {
	MessageID       int64  `json:"message_id"`
	MessageThreadID int64  `json:"message_thread_id,omitempty"`
	IsTopicMessage  bool   `json:"is_topic_message,omitempty"`
	From            *User  `json:"from,omitempty"`
	Chat            Chat   `json:"chat"`
	Text            string `json:"text"`
}

// User is a Telegram user.
type User struct {
	ID           int64  `json:"id"`
	Username     string `json:"username,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
}

// Chat is a Telegram chat.
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

type getUpdatesArgs struct {
	Offset         int64    `json:"offset,omitempty"`
	Timeout        int      `json:"timeout"`
	AllowedUpdates []string `json:"allowed_updates"`
}

// GetUpdates long polls for updates with IDs starting from offset, waiting up
// to timeout for one to arrive.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	return call[[]Update](ctx, c, "getUpdates", &getUpdatesArgs{
		Offset:         offset,
		Timeout:        int(timeout / time.Second),
		AllowedUpdates: []string{"message"},
	})
}

func isRateLimited(err error) (bool, time.Duration) {
	var statusErr *request.StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusTooManyRequests {
		return false, 0
	}

	var errorResponse struct {
		Parameters struct {
			RetryAfter int `json:"retry_after"`
		} `json:"parameters"`
	}
	if err := json.Unmarshal(statusErr.Body, &errorResponse); err != nil {
		return false, 0
	}

	return true, time.Duration(errorResponse.Parameters.RetryAfter) * time.Second
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
