// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package dispatch formats news items and delivers them to the chat, routing
// each item to the forum topic of its category.
package dispatch

import (
	"cmp"
	"context"
	"errors"
	"time"

	"go.astrophena.name/feedbot/cmd/feedbot/internal/config"
	"go.astrophena.name/feedbot/cmd/feedbot/internal/i18n"
	"go.astrophena.name/feedbot/cmd/feedbot/internal/news"
	"go.astrophena.name/feedbot/cmd/feedbot/internal/telegram"
	"go.astrophena.name/feedbot/internal/logger"

	"golang.org/x/time/rate"
)

const (
	// DefaultDelay is the default minimum delay between two sends.
	DefaultDelay   = 2 * time.Second
	defaultTimeout = 30 * time.Second
)

// Sender sends messages. It is implemented by [telegram.Client].
type Sender interface {
	Send(ctx context.Context, msg telegram.Message) error
}

// Config configures a Dispatcher.
type Config struct {
	// Sender delivers messages. It may be nil only in dry mode.
	Sender Sender
	// Delay is the minimum delay between two sends. If zero, DefaultDelay.
	// Negative means no delay.
	Delay time.Duration
	// Timeout limits a single send. If zero, 30 seconds.
	Timeout time.Duration
	// Language of message labels. If empty, English.
	Language string
	// Dry makes the Dispatcher log messages instead of sending them.
	Dry bool
}

// Dispatcher delivers news items.
type Dispatcher struct {
	sender  Sender
	limiter *rate.Limiter
	timeout time.Duration
	lang    string
	dry     bool
}

var errNoSender = errors.New("dispatch: no sender configured")

// New returns a new Dispatcher.
func New(cfg Config) *Dispatcher {
	delay := cmp.Or(cfg.Delay, DefaultDelay)
	limit := rate.Every(delay)
	if delay < 0 {
		limit = rate.Inf
	}
	return &Dispatcher{
		sender:  cfg.Sender,
		limiter: rate.NewLimiter(limit, 1),
		timeout: cmp.Or(cfg.Timeout, defaultTimeout),
		lang:    cmp.Or(cfg.Language, i18n.English),
		dry:     cfg.Dry,
	}
}

// Dry reports whether d only logs messages.
func (d *Dispatcher) Dry() bool { return d.dry }

// Deliver formats an item with an optional analysis and sends it to the
// topic of its category, or to the main chat if the category has no topic.
func (d *Dispatcher) Deliver(ctx context.Context, it *news.Item, analysis string, topics config.Topics) error {
	threadID, _ := topics.ThreadID(it.Category)
	msg := telegram.Message{
		ThreadID: threadID,
		Text:     Format(d.lang, it, analysis),
	}

	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}

	if d.dry {
		logger.Get(ctx).InfoContext(ctx, "dry run, not sending", "thread_id", threadID, "link", it.Link, "text", msg.Text)
		return nil
	}
	if d.sender == nil {
		return errNoSender
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return d.sender.Send(ctx, msg)
}
