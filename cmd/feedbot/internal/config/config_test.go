// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"go.astrophena.name/feedbot/cmd/feedbot/internal/filter"
	"go.astrophena.name/feedbot/cmd/feedbot/internal/news"
	"go.astrophena.name/feedbot/internal/testutil"

	"golang.org/x/tools/txtar"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestOpenSeedsDefaultFeeds(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "state")
	l, err := Open(t.Context(), dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	snap := l.Current()
	testutil.AssertEqual(t, snap.Feeds, DefaultFeeds)
	testutil.AssertEqual(t, snap.Filter, filter.Policy{})
	testutil.AssertEqual(t, snap.Topics, Topics{})
	if snap.Classifier == nil {
		t.Fatal("default classifier must be loaded")
	}
	if _, err := os.Stat(filepath.Join(dir, FeedsFile)); err != nil {
		t.Fatal(err)
	}
}

const stateTxtar = `
-- feeds.json --
["https://example.com/feed.xml"]
-- filters.yaml --
denylist:
  - sponsored
allowlist:
  - go
-- topics.yaml --
Programming: 42
security: 7
-- categories.star --
rules = [rule(category = "programming", keywords = ["example.com"])]
`

func TestOpenReadsAllFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.ExtractTxtar(t, txtar.Parse([]byte(stateTxtar)), dir)

	l, err := Open(t.Context(), dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	snap := l.Current()
	testutil.AssertEqual(t, snap.Feeds, []string{"https://example.com/feed.xml"})
	testutil.AssertEqual(t, snap.Filter, filter.Policy{Denylist: []string{"sponsored"}, Allowlist: []string{"go"}})
	testutil.AssertEqual(t, snap.Topics, Topics{"programming": 42, "security": 7})

	id, ok := snap.Topics.ThreadID("PROGRAMMING")
	testutil.AssertEqual(t, ok, true)
	testutil.AssertEqual(t, id, int64(42))
	_, ok = snap.Topics.ThreadID("")
	testutil.AssertEqual(t, ok, false)
	_, ok = snap.Topics.ThreadID("unknown")
	testutil.AssertEqual(t, ok, false)

	testutil.AssertEqual(t, snap.Classifier.Classify(&news.Item{FeedURL: "https://example.com/feed.xml"}), "programming")
}

func TestReloadKeepsLastGoodSnapshot(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.ExtractTxtar(t, txtar.Parse([]byte(stateTxtar)), dir)
	l, err := Open(t.Context(), dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	good := l.Current()

	writeFile(t, dir, TopicsFile, "programming: [not a number")
	snap, err := l.Reload(t.Context())
	if err == nil {
		t.Fatal("Reload must fail on broken topics.yaml")
	}
	if snap != good || l.Current() != good {
		t.Fatal("Reload must keep the last good snapshot")
	}

	writeFile(t, dir, TopicsFile, "programming: 43")
	snap, err = l.Reload(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, snap.Topics, Topics{"programming": 43})
	testutil.AssertEqual(t, good.Topics, Topics{"programming": 42, "security": 7})
}

func TestOpenFailsOnBrokenScript(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, FeedsFile, "[]")
	writeFile(t, dir, CategoriesFile, "rules = [")
	if _, err := Open(t.Context(), dir, nil); err == nil {
		t.Fatal("Open must fail on a broken classification script")
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, FeedsFile, `["https://example.com/feed.xml"]`)
	l, err := Open(t.Context(), dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	before := l.Current()

	const feedURL = "https://example.com/feed2.xml"
	if err := l.Subscribe(t.Context(), " "+feedURL+" "); err != nil {
		t.Fatal(err)
	}
	testutil.AssertContains(t, l.Current().Feeds, feedURL)
	testutil.AssertNotContains(t, before.Feeds, feedURL)
	backups, err := filepath.Glob(filepath.Join(dir, FeedsFile) + ".*.bak")
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, len(backups), 1)

	testutil.AssertErrorIs(t, l.Subscribe(t.Context(), feedURL), ErrDuplicateFeed)
	testutil.AssertErrorIs(t, l.Subscribe(t.Context(), "ftp://example.com/feed"), ErrInvalidURL)
	testutil.AssertErrorIs(t, l.Subscribe(t.Context(), "example.com/feed"), ErrInvalidURL)

	// Changes survive reload.
	snap, err := l.Reload(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, snap.Feeds, []string{"https://example.com/feed.xml", feedURL})

	if err := l.Unsubscribe(t.Context(), feedURL); err != nil {
		t.Fatal(err)
	}
	testutil.AssertNotContains(t, l.Current().Feeds, feedURL)
	testutil.AssertErrorIs(t, l.Unsubscribe(t.Context(), feedURL), ErrNoFeed)
}

func TestAddFeeds(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, FeedsFile, `["https://example.com/a.xml"]`)
	l, err := Open(t.Context(), dir, nil)
	if err != nil {
		t.Fatal(err)
	}

	added, err := l.AddFeeds(t.Context(), []string{
		"https://example.com/a.xml",
		"https://example.com/b.xml",
		"not a url",
		"https://example.com/b.xml",
		"https://example.com/c.xml",
	})
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, added, 2)
	testutil.AssertEqual(t, l.Current().Feeds, []string{
		"https://example.com/a.xml",
		"https://example.com/b.xml",
		"https://example.com/c.xml",
	})

	added, err = l.AddFeeds(t.Context(), []string{"https://example.com/c.xml"})
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, added, 0)
}
