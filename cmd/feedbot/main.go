// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"golang.org/x/sync/errgroup"

	"go.astrophena.name/feedbot/cmd/feedbot/internal/admin"
	"go.astrophena.name/feedbot/cmd/feedbot/internal/archive"
	"go.astrophena.name/feedbot/cmd/feedbot/internal/bot"
	"go.astrophena.name/feedbot/cmd/feedbot/internal/config"
	"go.astrophena.name/feedbot/cmd/feedbot/internal/dispatch"
	"go.astrophena.name/feedbot/cmd/feedbot/internal/enrich"
	"go.astrophena.name/feedbot/cmd/feedbot/internal/fetch"
	"go.astrophena.name/feedbot/cmd/feedbot/internal/i18n"
	"go.astrophena.name/feedbot/cmd/feedbot/internal/opml"
	"go.astrophena.name/feedbot/cmd/feedbot/internal/pipeline"
	"go.astrophena.name/feedbot/cmd/feedbot/internal/scheduler"
	"go.astrophena.name/feedbot/cmd/feedbot/internal/telegram"
	"go.astrophena.name/feedbot/internal/atomicio"
	"go.astrophena.name/feedbot/internal/cli"
	"go.astrophena.name/feedbot/internal/logger"
	"go.astrophena.name/feedbot/internal/store"
)

const (
	dbFile     = "feedbot.db"
	exportsDir = "exports"
	logLines   = 1000 // kept for /debug/logs
)

var errNoCredentials = errors.New("TELEGRAM_TOKEN and CHAT_ID must be set, or use -dry")

func main() { cli.Main(new(app)) }

type app struct {
	// configuration
	adminAddr     string
	chatID        string
	cooldown      time.Duration
	databaseURL   string
	defaultLang   string
	delay         time.Duration
	dry           bool
	geminiKey     string
	geminiModel   string
	interval      time.Duration
	json          bool
	retentionDays int
	stateDir      string
	tgToken       string

	// for tests
	httpc *http.Client
	now   func() time.Time
	store store.Store
	ready func(addr string) // called when the admin API is listening
}

func (a *app) Flags(fs *flag.FlagSet) {
	fs.BoolVar(&a.dry, "dry", false, "Enable dry-run mode: log messages instead of sending them and don't record deliveries.")
	fs.BoolVar(&a.json, "json", false, "Output in JSON format (honored in supported commands).")
	fs.DurationVar(&a.interval, "interval", scheduler.DefaultInterval, "Time between two runs.")
	fs.DurationVar(&a.cooldown, "cooldown", scheduler.DefaultCooldown, "Time to wait after a failed run.")
	fs.DurationVar(&a.delay, "delay", dispatch.DefaultDelay, "Minimum time between two sent messages.")
}

func (a *app) Run(ctx context.Context) error {
	env := cli.GetEnv(ctx)

	// Load configuration from environment variables.
	a.adminAddr = cmp.Or(a.adminAddr, env.Getenv("ADMIN_ADDR"), "localhost:3000")
	a.chatID = cmp.Or(a.chatID, env.Getenv("CHAT_ID"))
	a.databaseURL = cmp.Or(a.databaseURL, env.Getenv("DATABASE_URL"))
	a.geminiKey = cmp.Or(a.geminiKey, env.Getenv("GEMINI_API_KEY"))
	a.geminiModel = cmp.Or(a.geminiModel, env.Getenv("GEMINI_MODEL"), enrich.DefaultModel)
	a.tgToken = cmp.Or(a.tgToken, env.Getenv("TELEGRAM_TOKEN"))

	lang := cmp.Or(a.defaultLang, env.Getenv("DEFAULT_LANGUAGE"), i18n.English)
	matched, ok := i18n.Match(lang)
	if !ok {
		return fmt.Errorf("%w: unsupported DEFAULT_LANGUAGE %q", cli.ErrInvalidArgs, lang)
	}
	a.defaultLang = matched

	if a.retentionDays == 0 {
		a.retentionDays = archive.DefaultRetentionDays
		if s := env.Getenv("EXPORT_RETENTION_DAYS"); s != "" {
			days, err := strconv.Atoi(s)
			if err != nil || days < 1 {
				return fmt.Errorf("%w: invalid EXPORT_RETENTION_DAYS %q", cli.ErrInvalidArgs, s)
			}
			a.retentionDays = days
		}
	}

	a.stateDir = cmp.Or(a.stateDir, env.Getenv("STATE_DIRECTORY"))
	if a.stateDir == "" {
		xdgStateHome := env.Getenv("XDG_STATE_HOME")
		if xdgStateHome == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			xdgStateHome = filepath.Join(home, ".local", "state")
		}
		a.stateDir = filepath.Join(xdgStateHome, "feedbot")
	}
	if a.now == nil {
		a.now = time.Now
	}

	// Enable debug logging in dry-run mode.
	if a.dry {
		logger.Get(ctx).Level.Set(slog.LevelDebug)
	}

	if len(env.Args) == 0 {
		return fmt.Errorf("%w: command is required, see -help for usage", cli.ErrInvalidArgs)
	}
	command, args := env.Args[0], env.Args[1:]

	switch command {
	case "serve":
		return a.serve(ctx)
	case "run":
		return a.runOnce(ctx)
	case "feeds":
		return a.listFeeds(ctx, env.Stdout)
	case "subscribe", "unsubscribe":
		if len(args) != 1 {
			return fmt.Errorf("%w: %s command expects a feed URL", cli.ErrInvalidArgs, command)
		}
		return a.changeFeeds(ctx, command, args[0])
	case "latest":
		n := 10
		if len(args) > 0 {
			var err error
			n, err = strconv.Atoi(args[0])
			if err != nil || n < 1 {
				return fmt.Errorf("%w: latest command expects a positive number", cli.ErrInvalidArgs)
			}
		}
		return a.queryArchive(ctx, env.Stdout, func(st store.Store) ([]store.Record, error) {
			return st.Latest(ctx, n)
		})
	case "search":
		query := strings.Join(args, " ")
		if strings.TrimSpace(query) == "" {
			return fmt.Errorf("%w: search command expects words to search for", cli.ErrInvalidArgs)
		}
		return a.queryArchive(ctx, env.Stdout, func(st store.Store) ([]store.Record, error) {
			return st.Search(ctx, query, 50)
		})
	case "import":
		if len(args) != 1 {
			return fmt.Errorf("%w: import command expects an OPML file", cli.ErrInvalidArgs)
		}
		return a.importFeeds(ctx, args[0])
	case "export":
		if len(args) != 1 {
			return fmt.Errorf("%w: export command expects an OPML file", cli.ErrInvalidArgs)
		}
		return a.exportFeeds(ctx, args[0])
	default:
		return fmt.Errorf("%w: no such command %q", cli.ErrInvalidArgs, command)
	}
}

func (a *app) checkCredentials() error {
	if a.dry || (a.tgToken != "" && a.chatID != "") {
		return nil
	}
	return errNoCredentials
}

func (a *app) openConfig(ctx context.Context) (*config.Loader, error) {
	return config.Open(ctx, a.stateDir, logger.Get(ctx).Logger)
}

func (a *app) openStore(ctx context.Context) (store.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	if a.databaseURL != "" {
		st, err := store.NewPostgresStore(ctx, a.databaseURL)
		if err != nil {
			return nil, fmt.Errorf("opening PostgreSQL store: %w", err)
		}
		return st, nil
	}
	if err := os.MkdirAll(a.stateDir, 0o700); err != nil {
		return nil, err
	}
	st, err := store.NewSQLiteStore(ctx, filepath.Join(a.stateDir, dbFile))
	if err != nil {
		return nil, fmt.Errorf("opening SQLite store: %w", err)
	}
	return st, nil
}

func (a *app) telegramClient(ctx context.Context) *telegram.Client {
	if a.tgToken == "" {
		return nil
	}
	return telegram.New(telegram.Config{
		Token:      a.tgToken,
		ChatID:     a.chatID,
		HTTPClient: a.httpc,
		Logger:     logger.Get(ctx).Logger,
	})
}

// newPipeline wires the pipeline. The returned function releases its
// resources.
func (a *app) newPipeline(ctx context.Context, loader *config.Loader, st store.Store, tg *telegram.Client) (*pipeline.Pipeline, func(), error) {
	l := logger.Get(ctx)
	var closers []func() error
	cleanup := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				l.WarnContext(ctx, "releasing resources failed", "error", err)
			}
		}
	}

	var analyzer enrich.Analyzer
	if a.geminiKey != "" {
		g, err := enrich.NewGemini(ctx, a.geminiKey, a.geminiModel)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, g.Close)
		analyzer = g
	} else {
		l.InfoContext(ctx, "GEMINI_API_KEY is not set, sending articles without analysis")
	}

	aw, err := archive.New(archive.Config{
		Store:         st,
		Dir:           filepath.Join(a.stateDir, exportsDir),
		RetentionDays: a.retentionDays,
		Logger:        l.Logger,
		Now:           a.now,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	closers = append(closers, aw.Close)

	var sender dispatch.Sender
	if tg != nil {
		sender = tg
	}

	p := pipeline.New(pipeline.Config{
		Config: loader,
		Fetcher: &fetch.Fetcher{
			HTTPClient: a.httpc,
			Logger:     l.Logger,
			Now:        a.now,
		},
		Ledger:   st,
		Analyzer: analyzer,
		Deliverer: dispatch.New(dispatch.Config{
			Sender:   sender,
			Delay:    a.delay,
			Language: a.defaultLang,
			Dry:      a.dry,
		}),
		Archive: aw,
		Dry:     a.dry,
		Now:     a.now,
	})
	return p, cleanup, nil
}

func (a *app) runOnce(ctx context.Context) error {
	if err := a.checkCredentials(); err != nil {
		return err
	}
	loader, err := a.openConfig(ctx)
	if err != nil {
		return err
	}
	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	p, cleanup, err := a.newPipeline(ctx, loader, st, a.telegramClient(ctx))
	if err != nil {
		return err
	}
	defer cleanup()

	stats, err := p.Run(ctx)
	if err != nil {
		return err
	}
	if a.json {
		return printJSON(cli.GetEnv(ctx).Stdout, stats)
	}
	return nil
}

func (a *app) serve(ctx context.Context) error {
	env := cli.GetEnv(ctx)
	if err := a.checkCredentials(); err != nil {
		return err
	}

	// Copy log lines to a ring buffer served by the admin API.
	logs := logger.NewStreamer(logLines)
	l := logger.New(env.Stderr, logs)
	l.Level.Set(logger.Get(ctx).Level.Level())
	ctx = logger.Put(ctx, l)

	loader, err := a.openConfig(ctx)
	if err != nil {
		return err
	}
	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	tg := a.telegramClient(ctx)
	p, cleanup, err := a.newPipeline(ctx, loader, st, tg)
	if err != nil {
		return err
	}
	defer cleanup()

	sched := scheduler.New(scheduler.Config{
		Run: func(ctx context.Context) error {
			_, err := p.Run(ctx)
			return err
		},
		Interval: a.interval,
		Cooldown: a.cooldown,
	})

	if tg != nil && !a.dry {
		text := i18n.T(a.defaultLang, i18n.Started, len(loader.Current().Feeds))
		if err := tg.Send(ctx, telegram.Message{Text: text}); err != nil {
			l.WarnContext(ctx, "sending startup notification failed", "error", err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Start(ctx) })
	if tg != nil {
		b := bot.New(bot.Config{
			Client:          tg,
			Store:           st,
			Feeds:           loader,
			DefaultLanguage: a.defaultLang,
			AllowedChats:    allowedChats(a.chatID),
		})
		g.Go(func() error { return b.Start(ctx) })
	} else {
		l.InfoContext(ctx, "TELEGRAM_TOKEN is not set, interactive commands disabled")
	}
	g.Go(func() error {
		return admin.Run(ctx, a.adminAddr, admin.Config{
			Feeds:   loader,
			Store:   st,
			Trigger: sched.Trigger,
			Stats:   p.LastStats,
			Logs:    logs,
			Logger:  l.Logger,
		}, a.ready)
	})
	return g.Wait()
}

// allowedChats limits the bot to the main chat when its ID is numeric.
func allowedChats(chatID string) []int64 {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil
	}
	return []int64{id}
}

func (a *app) listFeeds(ctx context.Context, w io.Writer) error {
	loader, err := a.openConfig(ctx)
	if err != nil {
		return err
	}
	feeds := loader.Current().Feeds
	if a.json {
		if feeds == nil {
			feeds = []string{}
		}
		return printJSON(w, feeds)
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"#", "URL"})
	table.SetAutoWrapText(false)
	for i, u := range feeds {
		table.Append([]string{strconv.Itoa(i + 1), u})
	}
	table.Render()
	return nil
}

func (a *app) changeFeeds(ctx context.Context, command, feedURL string) error {
	loader, err := a.openConfig(ctx)
	if err != nil {
		return err
	}
	env := cli.GetEnv(ctx)
	if command == "subscribe" {
		if err := loader.Subscribe(ctx, feedURL); err != nil {
			return err
		}
		env.Logf("Subscribed to %s.", feedURL)
		return nil
	}
	if err := loader.Unsubscribe(ctx, feedURL); err != nil {
		return err
	}
	env.Logf("Unsubscribed from %s.", feedURL)
	return nil
}

func (a *app) queryArchive(ctx context.Context, w io.Writer, query func(store.Store) ([]store.Record, error)) error {
	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	records, err := query(st)
	if err != nil {
		return err
	}
	if a.json {
		if records == nil {
			records = []store.Record{}
		}
		return printJSON(w, records)
	}
	if len(records) == 0 {
		cli.GetEnv(ctx).Logf("Nothing found.")
		return nil
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Date", "Source", "Title", "Link"})
	table.SetAutoWrapText(false)
	for _, r := range records {
		table.Append([]string{r.CreatedAt.Format(time.DateTime), r.Source, r.Title, r.Link})
	}
	table.Render()
	return nil
}

func (a *app) importFeeds(ctx context.Context, path string) error {
	env := cli.GetEnv(ctx)
	var r io.Reader = env.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	urls, err := opml.Parse(r)
	if err != nil {
		return err
	}

	loader, err := a.openConfig(ctx)
	if err != nil {
		return err
	}
	added, err := loader.AddFeeds(ctx, urls)
	if err != nil {
		return err
	}
	env.Logf("Imported %d new feeds out of %d.", added, len(urls))
	return nil
}

func (a *app) exportFeeds(ctx context.Context, path string) error {
	loader, err := a.openConfig(ctx)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := opml.Write(&buf, loader.Current().Feeds, a.now()); err != nil {
		return err
	}
	if path == "-" {
		_, err := buf.WriteTo(cli.GetEnv(ctx).Stdout)
		return err
	}
	return atomicio.WriteFile(path, buf.Bytes(), 0o644)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
