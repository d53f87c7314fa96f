// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package archive records delivered news items in the store and in daily CSV
// exports.
package archive

import (
	"cmp"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.astrophena.name/feedbot/internal/store"
)

// DefaultRetentionDays is the default number of days exports are kept.
const DefaultRetentionDays = 7

const (
	exportPrefix = "news-"
	exportSuffix = ".csv"
	dayLayout    = "2006-01-02"
)

var header = []string{"created_at", "source", "category", "title", "summary", "link", "published_at", "analysis"}

// ExportName returns the name of the export file for the day of t.
func ExportName(t time.Time) string {
	return exportPrefix + t.Format(dayLayout) + exportSuffix
}

// Config configures a Writer.
type Config struct {
	// Store receives archive records. If nil, only exports are written.
	Store store.Store
	// Dir is the directory of CSV exports. If empty, exports are disabled.
	Dir string
	// RetentionDays is how many days exports are kept. If zero,
	// DefaultRetentionDays.
	RetentionDays int
	Logger        *slog.Logger
	// Now acts as time.Now, but can be mocked for testing.
	Now func() time.Time
}

// Writer writes archive records.
type Writer struct {
	store     store.Store
	dir       string
	retention int
	logger    *slog.Logger
	now       func() time.Time

	mu  sync.Mutex
	day string // day of the open export
	f   *os.File
	w   *csv.Writer
}

// New returns a Writer. It creates the export directory and purges old
// exports.
func New(cfg Config) (*Writer, error) {
	w := &Writer{
		store:     cfg.Store,
		dir:       cfg.Dir,
		retention: cmp.Or(cfg.RetentionDays, DefaultRetentionDays),
		logger:    cfg.Logger,
		now:       cfg.Now,
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	if w.now == nil {
		w.now = time.Now
	}
	if w.dir == "" {
		return w, nil
	}
	if err := os.MkdirAll(w.dir, 0o700); err != nil {
		return nil, err
	}
	if _, err := w.Purge(); err != nil {
		return nil, err
	}
	return w, nil
}

// Write archives a delivered item. Both the store insert and the export are
// attempted; their errors are joined.
func (w *Writer) Write(ctx context.Context, r store.Record) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = w.now()
	}
	var errs []error
	if w.store != nil {
		if err := w.store.Archive(ctx, r); err != nil {
			errs = append(errs, fmt.Errorf("archiving to store: %w", err))
		}
	}
	if w.dir != "" {
		if err := w.export(r); err != nil {
			errs = append(errs, fmt.Errorf("exporting: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (w *Writer) export(r store.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	if day := now.Format(dayLayout); day != w.day {
		if err := w.rotate(now); err != nil {
			return err
		}
	}

	if err := w.w.Write([]string{
		r.CreatedAt.UTC().Format(time.RFC3339),
		r.Source,
		r.Category,
		r.Title,
		r.Summary,
		r.Link,
		r.PublishedAt.UTC().Format(time.RFC3339),
		r.Analysis,
	}); err != nil {
		return err
	}
	w.w.Flush()
	return w.w.Error()
}

// rotate closes the open export and opens the one for the day of now. It
// must be called with mu held.
func (w *Writer) rotate(now time.Time) error {
	if err := w.closeFile(); err != nil {
		w.logger.Warn("failed to close export", "error", err)
	}

	path := filepath.Join(w.dir, ExportName(now))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}

	cw := csv.NewWriter(f)
	if fi.Size() == 0 {
		if err := cw.Write(header); err != nil {
			f.Close()
			return err
		}
	}
	w.f, w.w, w.day = f, cw, now.Format(dayLayout)
	w.logger.Info("writing export", "path", path)

	if _, err := w.purge(now); err != nil {
		w.logger.Warn("failed to purge old exports", "error", err)
	}
	return nil
}

// Purge removes exports older than the retention period and returns the
// names of removed files.
func (w *Writer) Purge() ([]string, error) {
	return w.purge(w.now())
}

func (w *Writer) purge(now time.Time) ([]string, error) {
	entries, err := os.ReadDir(w.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	today, err := time.ParseInLocation(dayLayout, now.Format(dayLayout), now.Location())
	if err != nil {
		return nil, err
	}
	cutoff := today.AddDate(0, 0, -w.retention)

	var removed []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, exportPrefix) || !strings.HasSuffix(name, exportSuffix) {
			continue
		}
		day, err := time.ParseInLocation(dayLayout, strings.TrimSuffix(strings.TrimPrefix(name, exportPrefix), exportSuffix), now.Location())
		if err != nil {
			continue
		}
		if !day.Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(w.dir, name)); err != nil {
			return removed, err
		}
		w.logger.Info("removed old export", "name", name)
		removed = append(removed, name)
	}
	return removed, nil
}

// Close closes the open export.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeFile()
}

func (w *Writer) closeFile() error {
	if w.f == nil {
		return nil
	}
	w.w.Flush()
	err := errors.Join(w.w.Error(), w.f.Close())
	w.f, w.w, w.day = nil, nil, ""
	return err
}
