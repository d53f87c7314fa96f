// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package admin implements the HTTP admin API of feedbot.
package admin

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"go.astrophena.name/feedbot/cmd/feedbot/internal/config"
	"go.astrophena.name/feedbot/cmd/feedbot/internal/pipeline"
	"go.astrophena.name/feedbot/internal/logger"
	"go.astrophena.name/feedbot/internal/store"
	"go.astrophena.name/feedbot/internal/web"
)

const (
	latestDefault = 10
	latestMax     = 100
	searchLimit   = 50
)

// Feeds manages the feed list. It is implemented by [config.Loader].
type Feeds interface {
	Current() *config.Snapshot
	Subscribe(ctx context.Context, feedURL string) error
	Unsubscribe(ctx context.Context, feedURL string) error
}

// Config configures the admin API.
type Config struct {
	Feeds Feeds
	// Store serves the archive. If nil, archive endpoints respond with 404.
	Store store.Store
	// Trigger requests an immediate run and reports whether it was queued.
	Trigger func() bool
	// Stats returns the statistics of the last run, or nil.
	Stats func() *pipeline.Stats
	// Logs, if not nil, is served at /debug/logs.
	Logs   logger.Streamer
	Logger *slog.Logger
}

type api struct {
	Config
}

// Handler returns an HTTP handler serving the admin API.
func Handler(cfg Config) http.Handler {
	cfg.Logger = cmp.Or(cfg.Logger, slog.Default())
	a := &api{cfg}

	health := web.NewHealth()
	if cfg.Store != nil {
		health.RegisterFunc("store", cfg.Store.Ping)
	}

	r := chi.NewRouter()
	r.Method(http.MethodGet, "/health", health)
	r.Route("/api", func(r chi.Router) {
		r.Get("/feeds", a.listFeeds)
		r.Post("/feeds", a.addFeed)
		r.Delete("/feeds", a.removeFeed)
		r.Get("/latest", a.latest)
		r.Get("/search", a.search)
		r.Post("/run", a.run)
		r.Get("/stats", a.stats)
	})
	if cfg.Logs != nil {
		r.Method(http.MethodGet, "/debug/logs", cfg.Logs)
	}
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		web.RespondJSONError(cfg.Logger, w, web.ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		web.RespondJSONError(cfg.Logger, w, web.ErrMethodNotAllowed)
	})
	return r
}

// Run serves the admin API on addr until ctx is canceled.
func Run(ctx context.Context, addr string, cfg Config, ready func(addr string)) error {
	return web.ListenAndServe(ctx, &web.ServerConfig{
		Addr:    addr,
		Handler: Handler(cfg),
		Logger:  cmp.Or(cfg.Logger, slog.Default()),
		Ready:   ready,
	})
}

type feedsResponse struct {
	Feeds []string `json:"feeds"`
}

func (a *api) feeds() []string {
	if snap := a.Feeds.Current(); snap != nil && snap.Feeds != nil {
		return snap.Feeds
	}
	return []string{}
}

func (a *api) listFeeds(w http.ResponseWriter, _ *http.Request) {
	web.RespondJSON(w, feedsResponse{Feeds: a.feeds()})
}

type feedRequest struct {
	URL string `json:"url"`
}

func (a *api) addFeed(w http.ResponseWriter, r *http.Request) {
	var req feedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		web.RespondJSONError(a.Logger, w, fmt.Errorf("%w: %w", web.ErrBadRequest, err))
		return
	}
	if err := a.Feeds.Subscribe(r.Context(), strings.TrimSpace(req.URL)); err != nil {
		web.RespondJSONError(a.Logger, w, feedError(err))
		return
	}
	a.Logger.Info("subscribed to feed", "url", req.URL)
	web.RespondJSON(w, feedsResponse{Feeds: a.feeds()})
}

func (a *api) removeFeed(w http.ResponseWriter, r *http.Request) {
	feedURL := r.URL.Query().Get("url")
	if feedURL == "" {
		web.RespondJSONError(a.Logger, w, fmt.Errorf("%w: missing url parameter", web.ErrBadRequest))
		return
	}
	if err := a.Feeds.Unsubscribe(r.Context(), feedURL); err != nil {
		web.RespondJSONError(a.Logger, w, feedError(err))
		return
	}
	a.Logger.Info("unsubscribed from feed", "url", feedURL)
	web.RespondJSON(w, feedsResponse{Feeds: a.feeds()})
}

func feedError(err error) error {
	switch {
	case errors.Is(err, config.ErrInvalidURL):
		return fmt.Errorf("%w: %w", web.ErrBadRequest, err)
	case errors.Is(err, config.ErrDuplicateFeed):
		return fmt.Errorf("%w: %w", web.ErrConflict, err)
	case errors.Is(err, config.ErrNoFeed):
		return fmt.Errorf("%w: %w", web.ErrNotFound, err)
	}
	return err
}

type recordsResponse struct {
	Records []store.Record `json:"records"`
}

func (a *api) latest(w http.ResponseWriter, r *http.Request) {
	if a.Store == nil {
		web.RespondJSONError(a.Logger, w, web.ErrNotFound)
		return
	}
	n := latestDefault
	if s := r.URL.Query().Get("n"); s != "" {
		var err error
		n, err = strconv.Atoi(s)
		if err != nil || n < 1 {
			web.RespondJSONError(a.Logger, w, fmt.Errorf("%w: invalid n %q", web.ErrBadRequest, s))
			return
		}
	}
	records, err := a.Store.Latest(r.Context(), min(n, latestMax))
	if err != nil {
		web.RespondJSONError(a.Logger, w, err)
		return
	}
	respondRecords(w, records)
}

func (a *api) search(w http.ResponseWriter, r *http.Request) {
	if a.Store == nil {
		web.RespondJSONError(a.Logger, w, web.ErrNotFound)
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		web.RespondJSONError(a.Logger, w, fmt.Errorf("%w: missing q parameter", web.ErrBadRequest))
		return
	}
	records, err := a.Store.Search(r.Context(), q, searchLimit)
	if err != nil {
		web.RespondJSONError(a.Logger, w, err)
		return
	}
	respondRecords(w, records)
}

func respondRecords(w http.ResponseWriter, records []store.Record) {
	if records == nil {
		records = []store.Record{}
	}
	web.RespondJSON(w, recordsResponse{Records: records})
}

type runResponse struct {
	Triggered bool `json:"triggered"`
}

func (a *api) run(w http.ResponseWriter, _ *http.Request) {
	if a.Trigger == nil {
		web.RespondJSONError(a.Logger, w, web.ErrNotFound)
		return
	}
	web.RespondJSON(w, runResponse{Triggered: a.Trigger()})
}

func (a *api) stats(w http.ResponseWriter, _ *http.Request) {
	var st *pipeline.Stats
	if a.Stats != nil {
		st = a.Stats()
	}
	if st == nil {
		web.RespondJSONError(a.Logger, w, fmt.Errorf("%w: no runs yet", web.ErrNotFound))
		return
	}
	web.RespondJSON(w, st)
}
