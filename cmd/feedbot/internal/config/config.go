// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package config loads the bot configuration from the state directory.
//
// The state directory contains:
//
//   - feeds.json: a JSON array of feed URLs;
//   - filters.yaml: keyword filter with denylist and allowlist keys;
//   - topics.yaml: mapping of category to forum topic (thread) ID;
//   - categories.star: classification script, see [classify.Script].
//
// Only feeds.json is required; it is created with [DefaultFeeds] on first
// start.
package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"go.astrophena.name/feedbot/cmd/feedbot/internal/classify"
	"go.astrophena.name/feedbot/cmd/feedbot/internal/filter"
	"go.astrophena.name/feedbot/internal/atomicio"
	"go.astrophena.name/feedbot/internal/syncx"

	"gopkg.in/yaml.v3"
)

// File names inside the state directory.
const (
	FeedsFile      = "feeds.json"
	FiltersFile    = "filters.yaml"
	TopicsFile     = "topics.yaml"
	CategoriesFile = "categories.star"
)

// feedBackups is how many previous versions of feeds.json are kept.
const feedBackups = 5

// Errors returned when changing the feed list.
var (
	ErrInvalidURL    = errors.New("feed URL must be an absolute http(s) URL")
	ErrDuplicateFeed = errors.New("already subscribed to this feed")
	ErrNoFeed        = errors.New("no such feed")
)

// DefaultFeeds is the feed list written on first start.
var DefaultFeeds = []string{
	"https://techcrunch.com/feed",
	"https://www.wired.com/feed/rss",
	"https://www.techrepublic.com/index.rss",
	"https://www.computerweekly.com/rss/All-Computer-Weekly-content.xml",
	"http://feeds.arstechnica.com/arstechnica/index",
	"https://www.theverge.com/rss/index.xml",
	"https://www.engadget.com/rss.xml",
	"https://www.webtekno.com/rss.xml",
	"https://www.technopat.net/feed",
	"https://shiftdelete.net/feed",
	"https://donanimgunlugu.com/feed",
	"https://pchocasi.com.tr/feed",
	"https://www.teknoblog.com/feed",
	"https://www.megabayt.com/rss/categorynews/teknoloji",
	"https://www.sozcu.com.tr/feeds-rss-category-bilim-teknoloji",
}

// Topics maps a category to a forum topic ID. Categories are matched ignoring
// case.
type Topics map[string]int64

// ThreadID returns the topic ID for category. The second result is false if
// the category has no topic and the main chat should be used.
func (t Topics) ThreadID(category string) (int64, bool) {
	if category == "" {
		return 0, false
	}
	id, ok := t[strings.ToLower(category)]
	return id, ok
}

// Snapshot is an immutable view of the configuration.
type Snapshot struct {
	Feeds      []string
	Filter     filter.Policy
	Topics     Topics
	Classifier classify.Policy
}

// Loader loads configuration snapshots from a state directory.
type Loader struct {
	dir    string
	logger *slog.Logger

	mu  sync.Mutex // serializes changes of feeds.json
	cur *syncx.Protected[*Snapshot]
}

// Open returns a Loader for the state directory dir, creating dir and
// feeds.json if necessary, and loads the first snapshot.
func Open(ctx context.Context, dir string, logger *slog.Logger) (*Loader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	l := &Loader{dir: dir, logger: logger, cur: syncx.Protect[*Snapshot](nil)}

	feedsPath := l.path(FeedsFile)
	if _, err := os.Stat(feedsPath); errors.Is(err, fs.ErrNotExist) {
		logger.Info("creating feed list with default feeds", "path", feedsPath, "count", len(DefaultFeeds))
		if err := atomicio.WriteJSON(feedsPath, DefaultFeeds, 0o600); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	if _, err := l.Reload(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

// Dir returns the state directory.
func (l *Loader) Dir() string { return l.dir }

func (l *Loader) path(name string) string { return filepath.Join(l.dir, name) }

// Current returns the last successfully loaded snapshot.
func (l *Loader) Current() *Snapshot { return l.cur.Load() }

// Reload reads all configuration files. On failure it keeps and returns the
// last good snapshot together with the error.
func (l *Loader) Reload(ctx context.Context) (*Snapshot, error) {
	snap, err := l.load()
	if err != nil {
		prev := l.Current()
		if prev != nil {
			l.logger.WarnContext(ctx, "failed to reload configuration, keeping previous", "error", err)
		}
		return prev, err
	}
	l.cur.Store(snap)
	return snap, nil
}

func (l *Loader) load() (*Snapshot, error) {
	feeds, err := l.readFeeds()
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{Feeds: feeds, Topics: Topics{}}

	if err := readYAML(l.path(FiltersFile), &snap.Filter); err != nil {
		return nil, err
	}

	var topics map[string]int64
	if err := readYAML(l.path(TopicsFile), &topics); err != nil {
		return nil, err
	}
	for category, id := range topics {
		snap.Topics[strings.ToLower(category)] = id
	}

	script := classify.DefaultScript
	if b, err := os.ReadFile(l.path(CategoriesFile)); err == nil {
		script = string(b)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	snap.Classifier, err = classify.Load(CategoriesFile, script, l.logger)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", CategoriesFile, err)
	}

	return snap, nil
}

func (l *Loader) readFeeds() ([]string, error) {
	b, err := os.ReadFile(l.path(FeedsFile))
	if err != nil {
		return nil, err
	}
	var feeds []string
	if err := json.Unmarshal(b, &feeds); err != nil {
		return nil, fmt.Errorf("%s: %w", FeedsFile, err)
	}
	return feeds, nil
}

func readYAML(path string, v any) error {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(b, v); err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return nil
}

// ValidateURL checks that u is an absolute http(s) URL.
func ValidateURL(u string) error {
	parsed, err := url.Parse(u)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("%q: %w", u, ErrInvalidURL)
	}
	return nil
}

// Subscribe adds a feed to the feed list.
func (l *Loader) Subscribe(ctx context.Context, feedURL string) error {
	feedURL = strings.TrimSpace(feedURL)
	if err := ValidateURL(feedURL); err != nil {
		return err
	}
	return l.updateFeeds(ctx, func(feeds []string) ([]string, error) {
		if slices.Contains(feeds, feedURL) {
			return nil, fmt.Errorf("%q: %w", feedURL, ErrDuplicateFeed)
		}
		return append(feeds, feedURL), nil
	})
}

// Unsubscribe removes a feed from the feed list.
func (l *Loader) Unsubscribe(ctx context.Context, feedURL string) error {
	feedURL = strings.TrimSpace(feedURL)
	return l.updateFeeds(ctx, func(feeds []string) ([]string, error) {
		i := slices.Index(feeds, feedURL)
		if i == -1 {
			return nil, fmt.Errorf("%q: %w", feedURL, ErrNoFeed)
		}
		return slices.Delete(feeds, i, i+1), nil
	})
}

// AddFeeds adds every valid URL from urls that is not in the feed list yet
// and returns how many were added. Invalid URLs are logged and skipped.
func (l *Loader) AddFeeds(ctx context.Context, urls []string) (added int, err error) {
	err = l.updateFeeds(ctx, func(feeds []string) ([]string, error) {
		for _, u := range urls {
			u = strings.TrimSpace(u)
			if err := ValidateURL(u); err != nil {
				l.logger.WarnContext(ctx, "skipping feed", "error", err)
				continue
			}
			if slices.Contains(feeds, u) {
				continue
			}
			feeds = append(feeds, u)
			added++
		}
		return feeds, nil
	})
	return added, err
}

func (l *Loader) updateFeeds(ctx context.Context, update func([]string) ([]string, error)) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	old, err := l.readFeeds()
	if err != nil {
		return err
	}
	feeds, err := update(slices.Clone(old))
	if err != nil {
		return err
	}
	if slices.Equal(old, feeds) {
		return nil
	}
	if err := atomicio.Backup(l.path(FeedsFile), feedBackups); err != nil {
		return err
	}
	if err := atomicio.WriteJSON(l.path(FeedsFile), feeds, 0o600); err != nil {
		return err
	}

	if prev := l.Current(); prev != nil {
		next := *prev
		next.Feeds = slices.Clone(feeds)
		l.cur.Store(&next)
	}
	l.logger.InfoContext(ctx, "feed list updated", "count", len(feeds))
	return nil
}
