// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package pipeline implements one run of the bot: fetch feeds, skip items
// already delivered, filter, enrich, deliver and archive.
package pipeline

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"time"

	"go.astrophena.name/feedbot/cmd/feedbot/internal/classify"
	"go.astrophena.name/feedbot/cmd/feedbot/internal/config"
	"go.astrophena.name/feedbot/cmd/feedbot/internal/dispatch"
	"go.astrophena.name/feedbot/cmd/feedbot/internal/enrich"
	"go.astrophena.name/feedbot/cmd/feedbot/internal/fetch"
	"go.astrophena.name/feedbot/cmd/feedbot/internal/news"
	"go.astrophena.name/feedbot/internal/logger"
	"go.astrophena.name/feedbot/internal/store"
	"go.astrophena.name/feedbot/internal/syncx"

	"github.com/google/uuid"
)

// Fetcher fetches feeds. It is implemented by [fetch.Fetcher].
type Fetcher interface {
	Fetch(ctx context.Context, sources []string) ([]*news.Item, fetch.Result)
}

// Deliverer delivers items. It is implemented by [dispatch.Dispatcher].
type Deliverer interface {
	Deliver(ctx context.Context, it *news.Item, analysis string, topics config.Topics) error
}

// Archiver archives delivered items. It is implemented by [archive.Writer].
type Archiver interface {
	Write(ctx context.Context, r store.Record) error
}

// Configurer returns a fresh configuration snapshot. It is implemented by
// [config.Loader]. On error it may still return the last good snapshot.
type Configurer interface {
	Reload(ctx context.Context) (*config.Snapshot, error)
}

// Config configures a Pipeline. Analyzer and Archive are optional.
type Config struct {
	Config    Configurer
	Fetcher   Fetcher
	Ledger    store.Store
	Analyzer  enrich.Analyzer
	Deliverer Deliverer
	Archive   Archiver
	// EnrichTimeout limits a single enrichment call.
	EnrichTimeout time.Duration
	// Dry disables recording of delivered items.
	Dry bool
	// Now acts as time.Now, but can be mocked for testing.
	Now func() time.Time
}

// Stats describes one run.
type Stats struct {
	RunID       string        `json:"run_id"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
	Feeds       int           `json:"feeds"`
	FailedFeeds int           `json:"failed_feeds"`
	Fetched     int           `json:"fetched"`
	Duplicates  int           `json:"duplicates"`
	Filtered    int           `json:"filtered"`
	Delivered   int           `json:"delivered"`
	Failed      int           `json:"failed"`
	Error       string        `json:"error,omitempty"`
}

// Pipeline runs the bot.
type Pipeline struct {
	cfg  Config
	last *syncx.Protected[*Stats]
}

var errNoConfig = errors.New("pipeline: no configuration loaded")

// recordTimeout limits the ledger and archive writes after a send.
const recordTimeout = 10 * time.Second

// New returns a new Pipeline.
func New(cfg Config) *Pipeline {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Pipeline{cfg: cfg, last: syncx.Protect[*Stats](nil)}
}

// LastStats returns statistics of the last finished run, or nil if nothing
// ran yet.
func (p *Pipeline) LastStats() *Stats { return p.last.Load() }

// Run runs the pipeline once.
//
// A failing source, enrichment or delivery doesn't fail the run. A failure
// to read the ledger does, since without it items could be delivered twice.
func (p *Pipeline) Run(ctx context.Context) (stats Stats, err error) {
	stats = Stats{RunID: uuid.NewString(), StartedAt: p.cfg.Now()}
	ctx = logger.With(ctx, "run_id", stats.RunID)
	l := logger.Get(ctx)

	defer func() {
		stats.Duration = p.cfg.Now().Sub(stats.StartedAt)
		if err != nil {
			stats.Error = err.Error()
		}
		l.InfoContext(ctx, "run finished",
			"feeds", stats.Feeds,
			"failed_feeds", stats.FailedFeeds,
			"fetched", stats.Fetched,
			"duplicates", stats.Duplicates,
			"filtered", stats.Filtered,
			"delivered", stats.Delivered,
			"failed", stats.Failed,
			"duration", stats.Duration,
		)
		p.last.Store(&stats)
	}()

	snap, err := p.cfg.Config.Reload(ctx)
	if snap == nil {
		return stats, cmp.Or(err, errNoConfig)
	}

	items, res := p.cfg.Fetcher.Fetch(ctx, snap.Feeds)
	stats.Feeds, stats.FailedFeeds, stats.Fetched = res.Feeds, res.Failed, len(items)
	classify.Apply(snap.Classifier, items)

	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if err := p.process(ctx, snap, it, &stats); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

func (p *Pipeline) process(ctx context.Context, snap *config.Snapshot, it *news.Item, stats *Stats) error {
	l := logger.Get(ctx)
	fp := it.Fingerprint()

	sent, err := p.cfg.Ledger.Exists(ctx, fp)
	if err != nil {
		return fmt.Errorf("checking ledger: %w", err)
	}
	if sent {
		stats.Duplicates++
		return nil
	}

	summary := dispatch.PlainText(it.SummaryRaw)
	if !snap.Filter.Accept(it.Title, summary) {
		stats.Filtered++
		l.DebugContext(ctx, "filtered out", "title", it.Title, "link", it.Link)
		return nil
	}

	analysis := enrich.Best(ctx, p.cfg.Analyzer, p.cfg.EnrichTimeout, it.Title, summary, it.SourceName)

	if err := p.cfg.Deliverer.Deliver(ctx, it, analysis, snap.Topics); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		stats.Failed++
		l.ErrorContext(ctx, "delivery failed", "title", it.Title, "link", it.Link, "error", err)
		return nil
	}
	stats.Delivered++
	l.InfoContext(ctx, "delivered", "title", it.Title, "link", it.Link, "category", it.Category)

	if p.cfg.Dry {
		return nil
	}

	// Past this point failures are logged, not returned. The message is
	// already sent, so the writes outlive a canceled run.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	now := p.cfg.Now()
	if err := p.cfg.Ledger.Record(wctx, store.Delivery{
		Fingerprint: fp,
		Title:       it.Title,
		Link:        it.Link,
		SentAt:      now,
	}); err != nil {
		l.ErrorContext(ctx, "failed to record delivery, item may be sent again", "link", it.Link, "error", err)
	}
	if p.cfg.Archive != nil {
		if err := p.cfg.Archive.Write(wctx, store.Record{
			Fingerprint: fp,
			Source:      it.SourceName,
			Category:    it.Category,
			Title:       it.Title,
			Summary:     summary,
			Link:        it.Link,
			PublishedAt: it.PublishedAt,
			Analysis:    analysis,
			CreatedAt:   now,
		}); err != nil {
			l.ErrorContext(ctx, "failed to archive item", "link", it.Link, "error", err)
		}
	}
	return nil
}
