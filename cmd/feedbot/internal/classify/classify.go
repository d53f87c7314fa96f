// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package classify assigns categories to news items.
//
// The category decides which forum topic of the chat an item goes to. An
// empty category means the main chat.
package classify

import (
	"strings"

	"go.astrophena.name/feedbot/cmd/feedbot/internal/news"
)

// Policy assigns a category to an item. It must be safe for concurrent use.
type Policy interface {
	Classify(it *news.Item) string
}

// Rule maps an item to Category if any of Keywords occurs, ignoring case, in
// the source name or the feed URL of the item.
type Rule struct {
	Category string   `json:"category"`
	Keywords []string `json:"keywords"`
}

func (r Rule) match(it *news.Item) bool {
	haystack := strings.ToLower(it.SourceName + " " + it.FeedURL)
	for _, kw := range r.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(haystack, kw) {
			return true
		}
	}
	return false
}

// Rules is an ordered list of rules. The first matching rule wins.
type Rules []Rule

// Classify returns the category of the first matching rule or an empty
// string.
func (rs Rules) Classify(it *news.Item) string {
	for _, r := range rs {
		if r.match(it) {
			return r.Category
		}
	}
	return ""
}

// Apply sets the category of every item using p. A nil p leaves items
// unchanged.
func Apply(p Policy, items []*news.Item) {
	if p == nil {
		return
	}
	for _, it := range items {
		it.Category = p.Classify(it)
	}
}
