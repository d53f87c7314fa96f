// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package bot implements the interactive commands of the bot.
//
// Updates are received by long polling. Each command has several aliases,
// English and Turkish, and replies in the language of the user.
package bot

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"runtime/debug"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.astrophena.name/feedbot/cmd/feedbot/internal/config"
	"go.astrophena.name/feedbot/cmd/feedbot/internal/i18n"
	"go.astrophena.name/feedbot/cmd/feedbot/internal/telegram"
	"go.astrophena.name/feedbot/internal/logger"
	"go.astrophena.name/feedbot/internal/store"
)

const (
	defaultPollTimeout = 25 * time.Second
	retryDelay         = 5 * time.Second

	latestDefault = 5
	latestMax     = 20
	searchLimit   = 10
)

// Client is the part of the Telegram API used by the bot. It is implemented
// by [telegram.Client].
type Client interface {
	Send(ctx context.Context, msg telegram.Message) error
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]telegram.Update, error)
}

// Subscriber adds feeds. It is implemented by [config.Loader].
type Subscriber interface {
	Subscribe(ctx context.Context, feedURL string) error
}

// Config configures a Bot.
type Config struct {
	Client Client
	// Store serves the archive and user preferences. If nil, archive
	// commands are disabled and everyone gets DefaultLanguage.
	Store store.Store
	// Feeds handles subscriptions. If nil, subscribing is disabled.
	Feeds Subscriber
	// DefaultLanguage is used for users whose language is unknown. If
	// empty, English.
	DefaultLanguage string
	// AllowedChats, if not empty, limits the chats the bot answers in.
	AllowedChats []int64
	// PollTimeout is the long polling timeout. If zero, 25 seconds.
	PollTimeout time.Duration
}

// Bot handles interactive commands.
type Bot struct {
	client      Client
	store       store.Store
	feeds       Subscriber
	defaultLang string
	allowed     []int64
	pollTimeout time.Duration
	commands    map[string]handler
	sleep       func(context.Context, time.Duration) bool
}

type request struct {
	msg  *telegram.IncomingMessage
	args string
	lang string
}

type handler func(ctx context.Context, r *request) (string, error)

// New returns a new Bot.
func New(cfg Config) *Bot {
	b := &Bot{
		client:      cfg.Client,
		store:       cfg.Store,
		feeds:       cfg.Feeds,
		defaultLang: cmp.Or(cfg.DefaultLanguage, i18n.English),
		allowed:     cfg.AllowedChats,
		pollTimeout: cmp.Or(cfg.PollTimeout, defaultPollTimeout),
		sleep:       sleep,
	}
	b.commands = make(map[string]handler)
	for _, c := range []struct {
		aliases []string
		h       handler
	}{
		{[]string{"start", "help", "yardim"}, b.help},
		{[]string{"latest", "son"}, b.latest},
		{[]string{"search", "ara"}, b.search},
		{[]string{"add", "subscribe", "ekle"}, b.add},
		{[]string{"topicid", "konu"}, b.topicID},
		{[]string{"lang", "dil"}, b.language},
	} {
		for _, alias := range c.aliases {
			b.commands[alias] = c.h
		}
	}
	return b
}

// Start polls for updates and handles them until ctx is canceled.
func (b *Bot) Start(ctx context.Context) error {
	l := logger.Get(ctx)
	var offset int64
	for {
		updates, err := b.client.GetUpdates(ctx, offset, b.pollTimeout)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			l.WarnContext(ctx, "getting updates failed", "error", err, "retry_in", retryDelay)
			if !b.sleep(ctx, retryDelay) {
				return nil
			}
			continue
		}
		for _, u := range updates {
			offset = max(offset, u.UpdateID+1)
			b.Handle(ctx, u)
		}
	}
}

// Handle handles one update. A panic in a command is recovered and logged.
func (b *Bot) Handle(ctx context.Context, u telegram.Update) {
	msg := u.Message
	if msg == nil {
		return
	}
	name, args, ok := parseCommand(msg.Text)
	if !ok {
		return
	}
	h, ok := b.commands[name]
	if !ok {
		return
	}
	if len(b.allowed) > 0 && !slices.Contains(b.allowed, msg.Chat.ID) {
		logger.Get(ctx).WarnContext(ctx, "ignoring command from unknown chat", "chat_id", msg.Chat.ID, "command", name)
		return
	}

	ctx = logger.With(ctx, slog.String("command", name), slog.Int64("chat_id", msg.Chat.ID))
	l := logger.Get(ctx)
	r := &request{msg: msg, args: args, lang: b.userLanguage(ctx, msg)}

	reply, err := b.call(ctx, h, r)
	if err != nil {
		l.ErrorContext(ctx, "command failed", "error", err)
		reply = i18n.T(r.lang, i18n.InternalError)
	}
	if reply == "" {
		return
	}
	if err := b.client.Send(ctx, telegram.Message{
		ChatID:         strconv.FormatInt(msg.Chat.ID, 10),
		ThreadID:       msg.MessageThreadID,
		Text:           reply,
		DisablePreview: true,
	}); err != nil {
		l.ErrorContext(ctx, "sending reply failed", "error", err)
	}
}

func (b *Bot) call(ctx context.Context, h handler, r *request) (reply string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v\n%s", rec, debug.Stack())
		}
	}()
	return h(ctx, r)
}

// parseCommand splits "/cmd@bot args" into a lowercase command name and
// arguments.
func parseCommand(text string) (name, args string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	name, args, _ = strings.Cut(text[1:], " ")
	name, _, _ = strings.Cut(name, "@")
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return "", "", false
	}
	return name, strings.TrimSpace(args), true
}

func (b *Bot) userLanguage(ctx context.Context, msg *telegram.IncomingMessage) string {
	fallback := b.defaultLang
	if msg.From == nil || b.store == nil {
		return fallback
	}
	if lang, ok := i18n.Match(msg.From.LanguageCode); ok {
		fallback = lang
	}
	lang, err := b.store.Language(ctx, msg.From.ID, fallback)
	if err != nil {
		logger.Get(ctx).WarnContext(ctx, "reading user language failed", "user_id", msg.From.ID, "error", err)
		return fallback
	}
	return lang
}

func (b *Bot) help(_ context.Context, r *request) (string, error) {
	return html.EscapeString(i18n.T(r.lang, i18n.Help)), nil
}

func (b *Bot) latest(ctx context.Context, r *request) (string, error) {
	if b.store == nil {
		return i18n.T(r.lang, i18n.ArchiveDisabled), nil
	}
	n := latestDefault
	if r.args != "" {
		var err error
		n, err = strconv.Atoi(strings.Fields(r.args)[0])
		if err != nil || n < 1 {
			return html.EscapeString(i18n.T(r.lang, i18n.InvalidNumber, r.args)), nil
		}
	}
	records, err := b.store.Latest(ctx, min(n, latestMax))
	if err != nil {
		return "", err
	}
	return formatRecords(r.lang, i18n.T(r.lang, i18n.LatestHeader), records), nil
}

func (b *Bot) search(ctx context.Context, r *request) (string, error) {
	if r.args == "" {
		return html.EscapeString(i18n.T(r.lang, i18n.SearchUsage)), nil
	}
	if b.store == nil {
		return i18n.T(r.lang, i18n.ArchiveDisabled), nil
	}
	records, err := b.store.Search(ctx, r.args, searchLimit)
	if err != nil {
		return "", err
	}
	return formatRecords(r.lang, i18n.T(r.lang, i18n.SearchHeader, r.args), records), nil
}

func formatRecords(lang, header string, records []store.Record) string {
	if len(records) == 0 {
		return html.EscapeString(i18n.T(lang, i18n.NothingFound))
	}
	var sb strings.Builder
	sb.WriteString("<b>" + html.EscapeString(header) + "</b>\n")
	for _, rec := range records {
		title := html.EscapeString(cmp.Or(rec.Title, rec.Link))
		sb.WriteString("\n• ")
		if rec.Link != "" {
			sb.WriteString(`<a href="` + html.EscapeString(rec.Link) + `">` + title + "</a>")
		} else {
			sb.WriteString(title)
		}
		if rec.Source != "" {
			sb.WriteString(" (" + html.EscapeString(rec.Source) + ")")
		}
	}
	return sb.String()
}

func (b *Bot) add(ctx context.Context, r *request) (string, error) {
	if r.args == "" {
		return html.EscapeString(i18n.T(r.lang, i18n.AddUsage)), nil
	}
	if b.feeds == nil {
		return i18n.T(r.lang, i18n.SubscribeDisabled), nil
	}
	feedURL := strings.Fields(r.args)[0]
	err := b.feeds.Subscribe(ctx, feedURL)
	switch {
	case errors.Is(err, config.ErrDuplicateFeed):
		return html.EscapeString(i18n.T(r.lang, i18n.AddDuplicate, feedURL)), nil
	case errors.Is(err, config.ErrInvalidURL):
		return html.EscapeString(i18n.T(r.lang, i18n.AddInvalid, feedURL)), nil
	case err != nil:
		return "", err
	}
	logger.Get(ctx).InfoContext(ctx, "subscribed to feed", "url", feedURL)
	return html.EscapeString(i18n.T(r.lang, i18n.Added, feedURL)), nil
}

func (b *Bot) topicID(_ context.Context, r *request) (string, error) {
	if !r.msg.IsTopicMessage || r.msg.MessageThreadID == 0 {
		return i18n.T(r.lang, i18n.TopicNone), nil
	}
	return i18n.T(r.lang, i18n.TopicID, r.msg.MessageThreadID), nil
}

func (b *Bot) language(ctx context.Context, r *request) (string, error) {
	available := strings.Join(i18n.Languages, ", ")
	if r.args == "" {
		return html.EscapeString(i18n.T(r.lang, i18n.LangCurrent, r.lang, available)), nil
	}
	lang, ok := i18n.Match(r.args)
	if !ok {
		return html.EscapeString(i18n.T(r.lang, i18n.LangUnsupported, r.args, available)), nil
	}
	if b.store != nil && r.msg.From != nil {
		if err := b.store.SetLanguage(ctx, r.msg.From.ID, lang); err != nil {
			return "", err
		}
	}
	return i18n.T(lang, i18n.LangSet), nil
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
