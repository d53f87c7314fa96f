// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package news

import (
	"testing"
	"time"

	"go.astrophena.name/feedbot/internal/testutil"
)

func TestFingerprint(t *testing.T) {
	t.Parallel()

	a := Fingerprint("Go 1.25 is released", "https://go.dev/blog/go1.25")
	testutil.AssertEqual(t, len(a), 64)
	testutil.AssertEqual(t, a, Fingerprint("Go 1.25 is released", "https://go.dev/blog/go1.25"))

	it := &Item{Title: "Go 1.25 is released", Link: "https://go.dev/blog/go1.25", SummaryRaw: "different", PublishedAt: time.Now()}
	testutil.AssertEqual(t, it.Fingerprint(), a)

	for name, other := range map[string]string{
		"title": Fingerprint("Go 1.26 is released", "https://go.dev/blog/go1.25"),
		"link":  Fingerprint("Go 1.25 is released", "https://go.dev/blog/go1.26"),
	} {
		if other == a {
			t.Errorf("changing %s must change the fingerprint", name)
		}
	}
}

func TestFingerprintFieldBoundary(t *testing.T) {
	t.Parallel()

	cases := map[string][2][2]string{
		"underscore moved between fields": {
			{"Deal_https://a.example", "/x"},
			{"Deal", "https://a.example_/x"},
		},
		"text moved between fields": {
			{"Deal", "https://a.example/x"},
			{"Dealhttps://a.example", "/x"},
		},
		"empty title": {
			{"", "https://a.example/x"},
			{"https://a.example/x", ""},
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			a := Fingerprint(tc[0][0], tc[0][1])
			b := Fingerprint(tc[1][0], tc[1][1])
			if a == b {
				t.Fatalf("(%q, %q) and (%q, %q) share fingerprint %s", tc[0][0], tc[0][1], tc[1][0], tc[1][1], a)
			}
		})
	}
}

func TestFresh(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cases := map[string]struct {
		age  time.Duration
		want bool
	}{
		"just published":  {age: 0, want: true},
		"23h59m":          {age: 23*time.Hour + 59*time.Minute, want: true},
		"exactly 24h":     {age: 24 * time.Hour, want: true},
		"24h01m":          {age: 24*time.Hour + time.Minute, want: false},
		"week old":        {age: 7 * 24 * time.Hour, want: false},
		"from the future": {age: -time.Hour, want: true},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			testutil.AssertEqual(t, Fresh(now.Add(-tc.age), now, Window), tc.want)
		})
	}
}
