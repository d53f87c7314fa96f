// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package admin

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.astrophena.name/feedbot/cmd/feedbot/internal/config"
	"go.astrophena.name/feedbot/cmd/feedbot/internal/pipeline"
	"go.astrophena.name/feedbot/internal/logger"
	"go.astrophena.name/feedbot/internal/store"
	"go.astrophena.name/feedbot/internal/testutil"
)

func setup(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, config.FeedsFile), []byte(`["https://example.com/feed.xml"]`), 0o600); err != nil {
		t.Fatal(err)
	}
	l, err := config.Open(t.Context(), dir, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}
	s := store.NewMemStore()
	for _, rec := range []store.Record{
		{Fingerprint: "a", Title: "Go generics", Source: "Blog", Link: "https://example.com/a"},
		{Fingerprint: "b", Title: "Tea time", Source: "Blog", Link: "https://example.com/b"},
	} {
		if err := s.Archive(t.Context(), rec); err != nil {
			t.Fatal(err)
		}
	}
	return Config{
		Feeds:   l,
		Store:   s,
		Trigger: func() bool { return true },
		Stats:   func() *pipeline.Stats { return &pipeline.Stats{RunID: "run-1", Delivered: 3} },
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func serve(t *testing.T, cfg Config, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	w := httptest.NewRecorder()
	Handler(cfg).ServeHTTP(w, httptest.NewRequest(method, target, r))
	return w
}

func TestAdmin(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		method   string
		target   string
		body     string
		mod      func(*Config)
		wantCode int
		wantBody string
	}{
		"health":               {method: http.MethodGet, target: "/health", wantCode: http.StatusOK, wantBody: `"store"`},
		"list feeds":           {method: http.MethodGet, target: "/api/feeds", wantCode: http.StatusOK, wantBody: `"https://example.com/feed.xml"`},
		"add feed":             {method: http.MethodPost, target: "/api/feeds", body: `{"url": "https://example.com/new.xml"}`, wantCode: http.StatusOK, wantBody: `"https://example.com/new.xml"`},
		"add duplicate":        {method: http.MethodPost, target: "/api/feeds", body: `{"url": "https://example.com/feed.xml"}`, wantCode: http.StatusConflict},
		"add invalid":          {method: http.MethodPost, target: "/api/feeds", body: `{"url": "ftp://example.com"}`, wantCode: http.StatusBadRequest},
		"add malformed":        {method: http.MethodPost, target: "/api/feeds", body: `{`, wantCode: http.StatusBadRequest},
		"remove feed":          {method: http.MethodDelete, target: "/api/feeds?url=https://example.com/feed.xml", wantCode: http.StatusOK, wantBody: `"feeds": []`},
		"remove missing":       {method: http.MethodDelete, target: "/api/feeds?url=https://example.com/other.xml", wantCode: http.StatusNotFound},
		"remove no url":        {method: http.MethodDelete, target: "/api/feeds", wantCode: http.StatusBadRequest},
		"latest":               {method: http.MethodGet, target: "/api/latest?n=1", wantCode: http.StatusOK, wantBody: `"Tea time"`},
		"latest invalid":       {method: http.MethodGet, target: "/api/latest?n=x", wantCode: http.StatusBadRequest},
		"latest without store": {method: http.MethodGet, target: "/api/latest", mod: func(c *Config) { c.Store = nil }, wantCode: http.StatusNotFound},
		"search":               {method: http.MethodGet, target: "/api/search?q=GENERICS", wantCode: http.StatusOK, wantBody: `"Go generics"`},
		"search nothing":       {method: http.MethodGet, target: "/api/search?q=coffee", wantCode: http.StatusOK, wantBody: `"records": []`},
		"search empty":         {method: http.MethodGet, target: "/api/search", wantCode: http.StatusBadRequest},
		"run":                  {method: http.MethodPost, target: "/api/run", wantCode: http.StatusOK, wantBody: `"triggered": true`},
		"run busy":             {method: http.MethodPost, target: "/api/run", mod: func(c *Config) { c.Trigger = func() bool { return false } }, wantCode: http.StatusOK, wantBody: `"triggered": false`},
		"stats":                {method: http.MethodGet, target: "/api/stats", wantCode: http.StatusOK, wantBody: `"run_id": "run-1"`},
		"no stats":             {method: http.MethodGet, target: "/api/stats", mod: func(c *Config) { c.Stats = func() *pipeline.Stats { return nil } }, wantCode: http.StatusNotFound},
		"not found":            {method: http.MethodGet, target: "/nope", wantCode: http.StatusNotFound},
		"method not allowed":   {method: http.MethodPut, target: "/api/feeds", wantCode: http.StatusMethodNotAllowed},
		"no logs":              {method: http.MethodGet, target: "/debug/logs", wantCode: http.StatusNotFound},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			cfg := setup(t)
			if tc.mod != nil {
				tc.mod(&cfg)
			}
			w := serve(t, cfg, tc.method, tc.target, tc.body)
			testutil.AssertEqual(t, w.Code, tc.wantCode)
			if !strings.Contains(w.Body.String(), tc.wantBody) {
				t.Errorf("response body = %q, want to contain %q", w.Body.String(), tc.wantBody)
			}
		})
	}
}

func TestAddFeedPersists(t *testing.T) {
	t.Parallel()

	cfg := setup(t)
	w := serve(t, cfg, http.MethodPost, "/api/feeds", `{"url": " https://example.com/new.xml "}`)
	testutil.AssertEqual(t, w.Code, http.StatusOK)

	var resp feedsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, resp.Feeds, []string{"https://example.com/feed.xml", "https://example.com/new.xml"})
	testutil.AssertEqual(t, cfg.Feeds.Current().Feeds, resp.Feeds)
}

func TestLogs(t *testing.T) {
	t.Parallel()

	cfg := setup(t)
	cfg.Logs = logger.NewStreamer(10)

	// The log stream ends when the client goes away.
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	w := httptest.NewRecorder()
	Handler(cfg).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/debug/logs", nil).WithContext(ctx))
	testutil.AssertEqual(t, w.Code, http.StatusOK)
	testutil.AssertEqual(t, w.Header().Get("Cache-Control"), "no-cache")
}
