// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package web

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.astrophena.name/feedbot/internal/syncx"
)

// healthCheckTimeout limits a single health check.
const healthCheckTimeout = 5 * time.Second

// HealthHandler is an HTTP handler that reports whether the subsystems of
// the running service are healthy.
type HealthHandler struct{ checks *syncx.Protected[checksMap] }

type checksMap = map[string]HealthFunc

// HealthFunc checks a subsystem. A nil error means it is healthy. It must be
// safe for concurrent use.
type HealthFunc func(ctx context.Context) error

// NewHealth returns a HealthHandler without checks.
func NewHealth() *HealthHandler {
	return &HealthHandler{checks: syncx.Protect(make(checksMap))}
}

// RegisterFunc registers a check under name. It panics if name is already
// taken.
func (h *HealthHandler) RegisterFunc(name string, f HealthFunc) {
	h.checks.WriteAccess(func(checks checksMap) {
		if _, dup := checks[name]; dup {
			panic("web: health check " + name + " is already registered")
		}
		checks[name] = f
	})
}

// HealthResponse is the body of a health response.
type HealthResponse struct {
	OK     bool                     `json:"ok"`
	Checks map[string]CheckResponse `json:"checks"`
}

// CheckResponse is the result of a single check.
type CheckResponse struct {
	Status string `json:"status"`
	OK     bool   `json:"ok"`
}

// ServeHTTP runs all checks concurrently. It responds with 500 Internal
// Server Error if any of them fails.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	var checks checksMap
	h.checks.ReadAccess(func(m checksMap) {
		checks = make(checksMap, len(m))
		for name, f := range m {
			checks[name] = f
		}
	})

	hr := &HealthResponse{OK: true, Checks: make(map[string]CheckResponse, len(checks))}
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for name, check := range checks {
		wg.Go(func() {
			res := CheckResponse{Status: "ok", OK: true}
			if err := check(ctx); err != nil {
				res = CheckResponse{Status: err.Error()}
			}
			mu.Lock()
			defer mu.Unlock()
			hr.Checks[name] = res
			hr.OK = hr.OK && res.OK
		})
	}
	wg.Wait()

	code := http.StatusOK
	if !hr.OK {
		code = http.StatusInternalServerError
	}
	respondJSON(w, code, hr)
}
