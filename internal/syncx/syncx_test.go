// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package syncx

import (
	"sync"
	"testing"

	"go.astrophena.name/feedbot/internal/testutil"
)

func TestProtected(t *testing.T) {
	t.Parallel()

	counts := Protect(map[string]int{})
	var wg sync.WaitGroup
	for range 100 {
		wg.Go(func() {
			counts.WriteAccess(func(m map[string]int) { m["runs"]++ })
		})
	}
	wg.Wait()

	var got int
	counts.ReadAccess(func(m map[string]int) { got = m["runs"] })
	testutil.AssertEqual(t, got, 100)

	p := Protect("old")
	p.Store("new")
	testutil.AssertEqual(t, p.Load(), "new")
}

func TestLazy(t *testing.T) {
	t.Parallel()

	var (
		l     Lazy[int]
		calls int
	)
	for range 3 {
		testutil.AssertEqual(t, l.Get(func() int { calls++; return 42 }), 42)
	}
	testutil.AssertEqual(t, calls, 1)
}
