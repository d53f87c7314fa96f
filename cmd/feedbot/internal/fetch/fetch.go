// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package fetch downloads and parses feeds.
package fetch

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"go.astrophena.name/feedbot/cmd/feedbot/internal/news"
	"go.astrophena.name/feedbot/internal/request"

	"github.com/araddon/dateparse"
	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/errgroup"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultConcurrency = 10 // N fetches that can run at the same time
)

// Fetcher fetches feeds concurrently. The zero value is ready to use.
type Fetcher struct {
	// HTTPClient is used for requests. If nil, request.DefaultClient is
	// used.
	HTTPClient *http.Client
	// Timeout limits a single feed fetch. If zero, 30 seconds.
	Timeout time.Duration
	// Concurrency limits the number of feeds fetched at the same time. If
	// zero, 10.
	Concurrency int
	// Window is the maximum age of returned items. If zero, news.Window.
	Window time.Duration
	// Logger is used to report failing feeds. If nil, slog.Default is used.
	Logger *slog.Logger
	// Now acts as time.Now, but can be mocked for testing.
	Now func() time.Time
}

// Result describes the outcome of [Fetcher.Fetch].
type Result struct {
	Feeds  int `json:"feeds"`  // feeds attempted
	Failed int `json:"failed"` // feeds that failed to fetch or parse
	Parsed int `json:"parsed"` // items parsed from all feeds
	Fresh  int `json:"fresh"`  // items that passed the freshness window
}

// Fetch fetches all sources. A failing source is logged and skipped. The
// returned items are fresh and sorted by publication time, newest first.
func (f *Fetcher) Fetch(ctx context.Context, sources []string) ([]*news.Item, Result) {
	var (
		mu    sync.Mutex
		items []*news.Item
		res   = Result{Feeds: len(sources)}
	)

	var g errgroup.Group
	g.SetLimit(cmp.Or(f.Concurrency, defaultConcurrency))
	for _, src := range sources {
		g.Go(func() error {
			got, err := f.fetchOne(ctx, src)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failed++
				f.logger().WarnContext(ctx, "failed to fetch feed", "feed", src, "error", err)
				return nil
			}
			res.Parsed += len(got)
			items = append(items, got...)
			return nil
		})
	}
	g.Wait()

	now := f.now()
	window := cmp.Or(f.Window, news.Window)
	items = slices.DeleteFunc(items, func(it *news.Item) bool {
		return !news.Fresh(it.PublishedAt, now, window)
	})
	res.Fresh = len(items)

	// Feeds finish in random order; sort by link too so that equal
	// timestamps come out the same on every run.
	slices.SortStableFunc(items, func(a, b *news.Item) int {
		if c := b.PublishedAt.Compare(a.PublishedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Link, b.Link)
	})

	return items, res
}

func (f *Fetcher) fetchOne(ctx context.Context, src string) ([]*news.Item, error) {
	ctx, cancel := context.WithTimeout(ctx, cmp.Or(f.Timeout, defaultTimeout))
	defer cancel()

	body, err := request.Get(ctx, f.HTTPClient, src)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	feed, err := gofeed.NewParser().Parse(body)
	if err != nil {
		return nil, fmt.Errorf("parsing feed: %w", err)
	}

	source := SourceName(src, feed.Title)
	now := f.now()

	items := make([]*news.Item, 0, len(feed.Items))
	for _, fi := range feed.Items {
		title := strings.TrimSpace(fi.Title)
		link := strings.TrimSpace(fi.Link)
		if title == "" && link == "" {
			continue
		}
		items = append(items, &news.Item{
			Title:       title,
			Link:        link,
			SummaryRaw:  cmp.Or(fi.Description, fi.Content),
			PublishedAt: publishedAt(fi, now),
			SourceName:  source,
			FeedURL:     src,
		})
	}
	f.logger().DebugContext(ctx, "fetched feed", "feed", src, "items", len(items))
	return items, nil
}

// publishedAt returns the publication time of an item: the parsed timestamp,
// or the raw timestamp parsed leniently, or now.
func publishedAt(fi *gofeed.Item, now time.Time) time.Time {
	if fi.PublishedParsed != nil {
		return fi.PublishedParsed.UTC()
	}
	if raw := strings.TrimSpace(fi.Published); raw != "" {
		if t, err := dateparse.ParseIn(raw, time.UTC); err == nil {
			return t.UTC()
		}
	}
	return now
}

var knownSources = map[string]string{
	"techcrunch.com":     "TechCrunch",
	"wired.com":          "WIRED",
	"techrepublic.com":   "TechRepublic",
	"computerweekly.com": "Computer Weekly",
	"arstechnica.com":    "Ars Technica",
	"theverge.com":       "The Verge",
	"engadget.com":       "Engadget",
	"webtekno.com":       "Webtekno",
	"technopat.net":      "Technopat",
	"shiftdelete.net":    "ShiftDelete",
	"donanimgunlugu.com": "Donanım Günlüğü",
	"pchocasi.com.tr":    "PC Hocası",
	"teknoblog.com":      "Teknoblog",
	"megabayt.com":       "Megabayt",
	"sozcu.com.tr":       "Sözcü",
}

// SourceName returns a human-readable name of a feed: a well-known site name,
// the feed title, or the host of the feed URL without "www.".
func SourceName(feedURL, feedTitle string) string {
	u, err := url.Parse(feedURL)
	if err != nil || u.Host == "" {
		return cmp.Or(strings.TrimSpace(feedTitle), feedURL)
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	for domain, name := range knownSources {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return name
		}
	}
	return cmp.Or(strings.TrimSpace(feedTitle), host)
}

func (f *Fetcher) logger() *slog.Logger {
	if f.Logger == nil {
		return slog.Default()
	}
	return f.Logger
}

func (f *Fetcher) now() time.Time {
	if f.Now == nil {
		return time.Now()
	}
	return f.Now()
}
