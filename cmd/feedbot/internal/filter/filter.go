// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package filter implements keyword filtering of news items.
package filter

import "strings"

// Policy is a keyword filter. Keywords match case-insensitively anywhere in
// the title or anywhere in the summary of an item, never across the two.
type Policy struct {
	// Denylist rejects items that contain any of the keywords. It takes
	// precedence over Allowlist.
	Denylist []string `yaml:"denylist" json:"denylist"`
	// Allowlist, if it has any non-blank keyword, rejects items that contain none of the
	// keywords.
	Allowlist []string `yaml:"allowlist" json:"allowlist"`
}

// Accept reports whether an item with title and summary passes the policy.
func (p Policy) Accept(title, summary string) bool {
	fields := []string{strings.ToLower(title), strings.ToLower(summary)}
	if containsAny(fields, p.Denylist) {
		return false
	}
	if hasKeywords(p.Allowlist) && !containsAny(fields, p.Allowlist) {
		return false
	}
	return true
}

func containsAny(fields []string, keywords []string) bool {
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		for _, f := range fields {
			if strings.Contains(f, kw) {
				return true
			}
		}
	}
	return false
}

func hasKeywords(keywords []string) bool {
	for _, kw := range keywords {
		if strings.TrimSpace(kw) != "" {
			return true
		}
	}
	return false
}
