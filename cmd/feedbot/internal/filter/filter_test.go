// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package filter

import (
	"testing"

	"go.astrophena.name/feedbot/internal/testutil"
)

func TestAccept(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		policy  Policy
		title   string
		summary string
		want    bool
	}{
		"empty policy": {
			title: "Anything goes",
			want:  true,
		},
		"denylist hit in title": {
			policy: Policy{Denylist: []string{"crypto"}},
			title:  "Crypto prices fall",
			want:   false,
		},
		"denylist hit in summary": {
			policy:  Policy{Denylist: []string{"sponsored"}},
			title:   "New laptop",
			summary: "This post is SPONSORED by a vendor.",
			want:    false,
		},
		"allowlist miss": {
			policy: Policy{Allowlist: []string{"linux", "kernel"}},
			title:  "New phone announced",
			want:   false,
		},
		"allowlist hit": {
			policy:  Policy{Allowlist: []string{"linux", "kernel"}},
			title:   "Release notes",
			summary: "The Linux 6.10 release is out.",
			want:    true,
		},
		"denylist wins over allowlist": {
			policy: Policy{Denylist: []string{"rumor"}, Allowlist: []string{"apple"}},
			title:  "Apple rumor roundup",
			want:   false,
		},
		"denylist phrase does not span title and summary": {
			policy:  Policy{Denylist: []string{"go beta"}},
			title:   "Go",
			summary: "Beta news from the team.",
			want:    true,
		},
		"allowlist phrase does not span title and summary": {
			policy:  Policy{Allowlist: []string{"release notes"}},
			title:   "Release",
			summary: "Notes are below.",
			want:    false,
		},
		"blank keywords are ignored": {
			policy: Policy{Denylist: []string{"", "  "}, Allowlist: []string{" "}},
			title:  "Plain title",
			want:   true,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			testutil.AssertEqual(t, tc.policy.Accept(tc.title, tc.summary), tc.want)
		})
	}
}
