// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package web contains the pieces shared by HTTP handlers: JSON responses,
// status errors, health checks and a server that shuts down with its context.
package web

import (
	"net/http"
	"strings"
)

// StatusErr is an error that carries an HTTP status code. Wrap it to give
// the status a more specific message:
//
//	fmt.Errorf("feed %q %w", url, web.ErrNotFound)
type StatusErr int

func (se StatusErr) Error() string { return strings.ToLower(http.StatusText(int(se))) }

// Status codes handlers use as errors.
const (
	ErrBadRequest          StatusErr = http.StatusBadRequest
	ErrNotFound            StatusErr = http.StatusNotFound
	ErrMethodNotAllowed    StatusErr = http.StatusMethodNotAllowed
	ErrConflict            StatusErr = http.StatusConflict
	ErrInternalServerError StatusErr = http.StatusInternalServerError
)
