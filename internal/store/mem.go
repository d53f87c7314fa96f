// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package store

import (
	"context"
	"slices"
	"strings"
	"sync"
)

// MemStore is an in-memory implementation of the [Store] interface.
type MemStore struct {
	mu        sync.RWMutex
	delivered map[string]Delivery
	archive   []Record // in insertion order
	archived  map[string]bool
	langs     map[int64]string
}

// NewMemStore creates a new empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		delivered: make(map[string]Delivery),
		archived:  make(map[string]bool),
		langs:     make(map[int64]string),
	}
}

// Exists reports whether an item with the fingerprint was delivered.
func (s *MemStore) Exists(_ context.Context, fingerprint string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.delivered[fingerprint]
	return ok, nil
}

// Record marks an item as delivered.
func (s *MemStore) Record(_ context.Context, d Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.delivered[d.Fingerprint]; !ok {
		s.delivered[d.Fingerprint] = d
	}
	return nil
}

// Archive saves a delivered item to the archive.
func (s *MemStore) Archive(_ context.Context, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.archived[r.Fingerprint] {
		return nil
	}
	s.archived[r.Fingerprint] = true
	s.archive = append(s.archive, r)
	return nil
}

// Latest returns up to n most recently archived items.
func (s *MemStore) Latest(_ context.Context, n int) ([]Record, error) {
	return s.newest(n, func(Record) bool { return true }), nil
}

// Search returns archived items matching query.
func (s *MemStore) Search(_ context.Context, query string, limit int) ([]Record, error) {
	q := strings.ToLower(query)
	return s.newest(limit, func(r Record) bool {
		return strings.Contains(strings.ToLower(r.Title), q) || strings.Contains(strings.ToLower(r.Summary), q)
	}), nil
}

func (s *MemStore) newest(n int, match func(Record) bool) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Record
	for _, r := range slices.Backward(s.archive) {
		if len(out) >= n {
			break
		}
		if match(r) {
			out = append(out, r)
		}
	}
	return out
}

// Language returns the language of a user, storing fallback on first contact.
func (s *MemStore) Language(_ context.Context, userID int64, fallback string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lang, ok := s.langs[userID]
	if !ok {
		s.langs[userID] = fallback
		return fallback, nil
	}
	return lang, nil
}

// SetLanguage changes the language of a user.
func (s *MemStore) SetLanguage(_ context.Context, userID int64, lang string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.langs[userID] = lang
	return nil
}

// Ping always succeeds.
func (s *MemStore) Ping(context.Context) error { return nil }

// Close is a no-op for MemStore.
func (s *MemStore) Close() error { return nil }

var _ Store = (*MemStore)(nil)
