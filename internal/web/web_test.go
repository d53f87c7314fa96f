// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.astrophena.name/feedbot/internal/testutil"
)

func TestRespondJSONError(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		err      error
		wantCode int
		wantBody string
	}{
		"not found": {
			err:      fmt.Errorf("feed %w", ErrNotFound),
			wantCode: http.StatusNotFound,
			wantBody: "{\n  \"status\": \"error\",\n  \"error\": \"feed not found\"\n}\n",
		},
		"plain error": {
			err:      io.EOF,
			wantCode: http.StatusInternalServerError,
			wantBody: "{\n  \"status\": \"error\",\n  \"error\": \"EOF\"\n}\n",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			w := httptest.NewRecorder()
			RespondJSONError(nil, w, tc.err)
			testutil.AssertEqual(t, w.Code, tc.wantCode)
			testutil.AssertEqual(t, w.Body.String(), tc.wantBody)
			testutil.AssertEqual(t, w.Header().Get("Content-Type"), "application/json")
		})
	}
}

func TestRespondJSON(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	RespondJSON(w, map[string]string{"link": "https://example.com/?a=1&b=<2>"})
	testutil.AssertEqual(t, w.Code, http.StatusOK)
	testutil.AssertEqual(t, w.Body.String(), "{\n  \"link\": \"https://example.com/?a=1&b=<2>\"\n}\n")

	w = httptest.NewRecorder()
	RespondJSON(w, map[string]any{"bad": make(chan int)})
	testutil.AssertEqual(t, w.Code, http.StatusInternalServerError)
}

func TestHealth(t *testing.T) {
	t.Parallel()

	h := NewHealth()
	h.RegisterFunc("store", func(context.Context) error { return nil })

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	testutil.AssertEqual(t, w.Code, http.StatusOK)
	got := testutil.UnmarshalJSON[HealthResponse](t, w.Body.Bytes())
	testutil.AssertEqual(t, got, HealthResponse{OK: true, Checks: map[string]CheckResponse{"store": {Status: "ok", OK: true}}})

	h.RegisterFunc("bot", func(context.Context) error { return errors.New("polling failed") })
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	testutil.AssertEqual(t, w.Code, http.StatusInternalServerError)
	got = testutil.UnmarshalJSON[HealthResponse](t, w.Body.Bytes())
	testutil.AssertEqual(t, got, HealthResponse{OK: false, Checks: map[string]CheckResponse{
		"store": {Status: "ok", OK: true},
		"bot":   {Status: "polling failed", OK: false},
	}})

	defer func() {
		if recover() == nil {
			t.Fatal("duplicate RegisterFunc must panic")
		}
	}()
	h.RegisterFunc("bot", nil)
}

func TestListenAndServe(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ready := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- ListenAndServe(ctx, &ServerConfig{
			Addr: "localhost:0",
			Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				RespondJSON(w, map[string]string{"hello": "world"})
			}),
			Ready: func(addr string) { ready <- addr },
		})
	}()

	addr := <-ready
	res, err := http.Get("http://" + addr + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	testutil.AssertEqual(t, res.StatusCode, http.StatusOK)

	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("ListenAndServe() = %v", err)
	}
}

func TestListenAndServeInvalidConfig(t *testing.T) {
	t.Parallel()

	testutil.AssertErrorIs(t, ListenAndServe(context.Background(), &ServerConfig{}), errNoAddr)
	testutil.AssertErrorIs(t, ListenAndServe(context.Background(), &ServerConfig{Addr: "localhost:0"}), errNilHandler)
}
