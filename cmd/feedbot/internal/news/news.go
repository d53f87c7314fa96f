// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package news defines a news item and its identity.
package news

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"time"
)

// Window is how old an item may be to still be considered for delivery.
const Window = 24 * time.Hour

// Item is a single entry of a feed.
type Item struct {
	Title       string    `json:"title"`
	Link        string    `json:"link"`
	SummaryRaw  string    `json:"summary_raw"` // may contain HTML
	PublishedAt time.Time `json:"published_at"`
	SourceName  string    `json:"source_name"`
	Category    string    `json:"category"`
	FeedURL     string    `json:"feed_url"`
}

// Fingerprint returns the identity of the item.
func (it *Item) Fingerprint() string { return Fingerprint(it.Title, it.Link) }

// Fingerprint returns the hex-encoded SHA-256 of title and link. Two items
// with the same title and link are the same item. Each field is prefixed
// with its length, so no other pair hashes the same bytes.
func Fingerprint(title, link string) string {
	h := sha256.New()
	for _, field := range []string{title, link} {
		h.Write(binary.AppendUvarint(nil, uint64(len(field))))
		h.Write([]byte(field))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Fresh reports whether an item published at published is at most window old
// at now. Items from the future are fresh.
func Fresh(published, now time.Time, window time.Duration) bool {
	return now.Sub(published) <= window
}
