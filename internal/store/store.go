// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package store implements persistent state of the bot: the ledger of
// delivered items, the news archive and user preferences. It is backed
// in-memory, by SQLite or by PostgreSQL.
package store

import (
	"context"
	"time"
)

// Store is the persistent state of the bot.
//
// Inserts are idempotent: recording the same fingerprint twice keeps the first
// row and returns no error.
type Store interface {
	// Exists reports whether an item with the fingerprint was delivered.
	Exists(ctx context.Context, fingerprint string) (bool, error)
	// Record marks an item as delivered.
	Record(ctx context.Context, d Delivery) error
	// Archive saves a delivered item to the searchable archive.
	Archive(ctx context.Context, r Record) error
	// Latest returns up to n most recently archived items, newest first.
	Latest(ctx context.Context, n int) ([]Record, error)
	// Search returns up to limit archived items whose title or summary
	// contains query, ignoring case, newest first.
	Search(ctx context.Context, query string, limit int) ([]Record, error)
	// Language returns the language of a user. On first contact it stores
	// and returns fallback.
	Language(ctx context.Context, userID int64, fallback string) (string, error)
	// SetLanguage changes the language of a user.
	SetLanguage(ctx context.Context, userID int64, lang string) error
	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error
	// Close closes the store and releases any resources.
	Close() error
}

// Delivery is a row of the ledger of delivered items.
type Delivery struct {
	Fingerprint string
	Title       string
	Link        string
	SentAt      time.Time
}

// Record is a row of the news archive. It is never edited after insert.
type Record struct {
	Fingerprint string    `json:"fingerprint"`
	Source      string    `json:"source"`
	Category    string    `json:"category"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	Link        string    `json:"link"`
	PublishedAt time.Time `json:"published_at"`
	Analysis    string    `json:"analysis,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
