// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package request makes outgoing HTTP requests to feeds and JSON APIs.
package request

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.astrophena.name/feedbot/internal/version"
)

// DefaultClient is used when no client is given.
var DefaultClient = &http.Client{
	Timeout: 30 * time.Second,
}

// maxErrorBody limits how much of an unexpected response is kept in a
// StatusError.
const maxErrorBody = 16 << 10

// StatusError is returned when a server responds with a status other than
// 200 OK. Body holds the start of the response body.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	body := bytes.TrimSpace(e.Body)
	if len(body) == 0 {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, body)
}

func do(httpc *http.Client, req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", version.UserAgent())
	if httpc == nil {
		httpc = DefaultClient
	}
	res, err := httpc.Do(req)
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusOK {
		defer res.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Redacted(), &StatusError{StatusCode: res.StatusCode, Body: body})
	}
	return res, nil
}

// Get fetches url and returns the response body, which the caller must
// close.
func Get(ctx context.Context, httpc *http.Client, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	res, err := do(httpc, req)
	if err != nil {
		return nil, err
	}
	return res.Body, nil
}

// Params describe a JSON request made by [PostJSON].
type Params struct {
	URL string
	// Body is marshaled to JSON. A nil Body sends an empty object.
	Body       any
	HTTPClient *http.Client
	// Scrubber, if set, removes secrets such as tokens embedded in the URL
	// from returned errors.
	Scrubber *strings.Replacer
}

// PostJSON posts p.Body as JSON and decodes the response into a Response.
func PostJSON[Response any](ctx context.Context, p Params) (Response, error) {
	resp, err := postJSON[Response](ctx, p)
	if err != nil && p.Scrubber != nil {
		err = &scrubbedError{err: err, scrubber: p.Scrubber}
	}
	return resp, err
}

func postJSON[Response any](ctx context.Context, p Params) (Response, error) {
	var resp Response

	body := p.Body
	if body == nil {
		body = struct{}{}
	}
	data, err := json.Marshal(body)
	if err != nil {
		return resp, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL, bytes.NewReader(data))
	if err != nil {
		return resp, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := do(p.HTTPClient, req)
	if err != nil {
		return resp, err
	}
	defer res.Body.Close()

	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return resp, fmt.Errorf("decoding response: %w", err)
	}
	return resp, nil
}

type scrubbedError struct {
	err      error
	scrubber *strings.Replacer
}

func (e *scrubbedError) Error() string { return e.scrubber.Replace(e.err.Error()) }

func (e *scrubbedError) Unwrap() error { return e.err }
