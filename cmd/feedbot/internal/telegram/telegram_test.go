// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.astrophena.name/feedbot/internal/request"
	"go.astrophena.name/feedbot/internal/testutil"
)

const testToken = "123:secret"

type roundTripFunc func(r *http.Request) (*http.Response, error)

func (s roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return s(r)
}

func testClient(mux *http.ServeMux) *Client {
	return New(Config{
		Token:  testToken,
		ChatID: "-100",
		HTTPClient: &http.Client{
			Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, r)
				return w.Result(), nil
			}),
		},
	})
}

func TestSend(t *testing.T) {
	t.Parallel()

	var got []map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("POST api.telegram.org/bot"+testToken+"/sendMessage", func(w http.ResponseWriter, r *http.Request) {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, testutil.UnmarshalJSON[map[string]any](t, b))
		w.Write([]byte(`{"ok":true,"result":{}}`))
	})

	c := testClient(mux)
	if err := c.Send(t.Context(), Message{Text: " <b>hello</b> ", ThreadID: 42}); err != nil {
		t.Fatal(err)
	}
	if err := c.Send(t.Context(), Message{ChatID: "777", Text: "hi", DisablePreview: true}); err != nil {
		t.Fatal(err)
	}

	testutil.AssertEqual(t, got, []map[string]any{
		{
			"chat_id":              "-100",
			"message_thread_id":    float64(42),
			"text":                 "<b>hello</b>",
			"parse_mode":           "HTML",
			"link_preview_options": map[string]any{"is_disabled": false},
		},
		{
			"chat_id":              "777",
			"text":                 "hi",
			"parse_mode":           "HTML",
			"link_preview_options": map[string]any{"is_disabled": true},
		},
	})
}

func TestSendEmpty(t *testing.T) {
	t.Parallel()

	c := New(Config{ChatID: "chat", Token: "token"})
	c.makeRequest = func(context.Context, string, any) error {
		t.Fatal("makeRequest must not be called for empty messages")
		return nil
	}
	testutil.AssertErrorIs(t, c.Send(t.Context(), Message{Text: " \n "}), errEmptyMessage)
}

func TestSendScrubsToken(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("POST api.telegram.org/bot"+testToken+"/sendMessage", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"ok":false,"description":"Bad Request: chat not found"}`, http.StatusBadRequest)
	})

	err := testClient(mux).Send(t.Context(), Message{Text: "hello"})
	if err == nil {
		t.Fatal("Send() error = nil, want non-nil")
	}
	if strings.Contains(err.Error(), "secret") {
		t.Fatalf("error %q leaks the token", err)
	}
	var statusErr *request.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("error %v must wrap *request.StatusError", err)
	}
	testutil.AssertEqual(t, statusErr.StatusCode, http.StatusBadRequest)
}

func TestSendRateLimitRetry(t *testing.T) {
	t.Parallel()

	c := New(Config{ChatID: "chat", Token: "token"})
	var calls int
	c.makeRequest = func(context.Context, string, any) error {
		calls++
		if calls == 1 {
			return &request.StatusError{StatusCode: 429, Body: []byte(`{"parameters":{"retry_after":1}}`)}
		}
		return nil
	}
	var waits []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) bool {
		waits = append(waits, d)
		return true
	}

	err := c.Send(t.Context(), Message{Text: "hello"})
	testutil.AssertEqual(t, err, nil)
	testutil.AssertEqual(t, calls, 2)
	testutil.AssertEqual(t, waits, []time.Duration{time.Second})
}

func TestSendRateLimitGiveUp(t *testing.T) {
	t.Parallel()

	c := New(Config{ChatID: "chat", Token: "token"})
	var calls int
	limited := &request.StatusError{StatusCode: 429, Body: []byte(`{"parameters":{"retry_after":2}}`)}
	c.makeRequest = func(context.Context, string, any) error {
		calls++
		return limited
	}
	c.sleep = func(context.Context, time.Duration) bool { return true }

	testutil.AssertErrorIs(t, c.Send(t.Context(), Message{Text: "hello"}), limited)
	testutil.AssertEqual(t, calls, sendRetryLimit)
}

func TestSendRateLimitCanceled(t *testing.T) {
	t.Parallel()

	c := New(Config{ChatID: "chat", Token: "token"})
	c.makeRequest = func(context.Context, string, any) error {
		return &request.StatusError{StatusCode: 429, Body: []byte(`{"parameters":{"retry_after":30}}`)}
	}
	ctx, cancel := context.WithCancel(t.Context())
	c.sleep = func(context.Context, time.Duration) bool {
		cancel()
		return false
	}

	testutil.AssertErrorIs(t, c.Send(ctx, Message{Text: "hello"}), context.Canceled)
}

func TestSendNonRetryableError(t *testing.T) {
	t.Parallel()

	c := New(Config{ChatID: "chat", Token: "token"})
	wantErr := errors.New("boom")
	c.makeRequest = func(context.Context, string, any) error { return wantErr }
	c.sleep = func(context.Context, time.Duration) bool {
		t.Fatal("sleep should not be called for non-retryable errors")
		return false
	}

	testutil.AssertErrorIs(t, c.Send(t.Context(), Message{Text: "hello"}), wantErr)
}

func TestIsRateLimited(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		err      error
		retry    bool
		waitTime time.Duration
	}{
		"rate-limited": {
			err:      &request.StatusError{StatusCode: 429, Body: []byte(`{"parameters":{"retry_after":3}}`)},
			retry:    true,
			waitTime: 3 * time.Second,
		},
		"wrapped": {
			err:      fmt.Errorf("POST: %w", &request.StatusError{StatusCode: 429, Body: []byte(`{"parameters":{"retry_after":5}}`)}),
			retry:    true,
			waitTime: 5 * time.Second,
		},
		"bad body": {
			err:   &request.StatusError{StatusCode: 429, Body: []byte(`oops`)},
			retry: false,
		},
		"other status": {
			err:   &request.StatusError{StatusCode: 500, Body: []byte(`{}`)},
			retry: false,
		},
		"other error": {
			err:   fmt.Errorf("network"),
			retry: false,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			retry, wait := isRateLimited(tc.err)
			testutil.AssertEqual(t, retry, tc.retry)
			testutil.AssertEqual(t, wait, tc.waitTime)
		})
	}
}

func TestGetUpdates(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("POST api.telegram.org/bot"+testToken+"/getUpdates", func(w http.ResponseWriter, r *http.Request) {
		var args getUpdatesArgs
		if err := json.NewDecoder(r.Body).Decode(&args); err != nil {
			t.Fatal(err)
		}
		testutil.AssertEqual(t, args, getUpdatesArgs{Offset: 10, Timeout: 25, AllowedUpdates: []string{"message"}})
		w.Write([]byte(`{"ok":true,"result":[
			{"update_id":10,"message":{"message_id":1,"from":{"id":5,"language_code":"tr"},"chat":{"id":-100,"type":"supergroup"},"message_thread_id":3,"text":"/son 3"}},
			{"update_id":11}
		]}`))
	})

	updates, err := testClient(mux).GetUpdates(t.Context(), 10, 25*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, updates, []Update{
		{
			UpdateID: 10,
			Message: &IncomingMessage{
				MessageID:       1,
				MessageThreadID: 3,
				From:            &User{ID: 5, LanguageCode: "tr"},
				Chat:            Chat{ID: -100, Type: "supergroup"},
				Text:            "/son 3",
			},
		},
		{UpdateID: 11},
	})
}

func TestGetUpdatesNotOK(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("POST api.telegram.org/bot"+testToken+"/getUpdates", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":false,"description":"Conflict: terminated by other getUpdates request"}`))
	})

	_, err := testClient(mux).GetUpdates(t.Context(), 0, 0)
	if err == nil || !strings.Contains(err.Error(), "Conflict") {
		t.Fatalf("GetUpdates() error = %v, want a Conflict error", err)
	}
}
