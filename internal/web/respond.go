// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

type errorResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

// RespondJSON writes v to w as indented JSON with the 200 OK status code.
// HTML characters are not escaped, so links come out as they are.
func RespondJSON(w http.ResponseWriter, v any) {
	respondJSON(w, http.StatusOK, v)
}

func respondJSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		code = http.StatusInternalServerError
		buf.Reset()
		enc.Encode(&errorResponse{Status: "error", Error: "encoding response: " + err.Error()})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(buf.Bytes())
}

// RespondJSONError writes err to w as a JSON error response. The status code
// comes from the [StatusErr] that err wraps. Any other error is a 500 and is
// logged to l, if l is not nil.
func RespondJSONError(l *slog.Logger, w http.ResponseWriter, err error) {
	var se StatusErr
	if !errors.As(err, &se) {
		se = ErrInternalServerError
	}
	if se == ErrInternalServerError && l != nil {
		l.Error("internal server error", "error", err)
	}
	respondJSON(w, int(se), &errorResponse{Status: "error", Error: err.Error()})
}
