// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package web

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

const defaultShutdownTimeout = 10 * time.Second

// ServerConfig configures [ListenAndServe].
type ServerConfig struct {
	// Addr is the "host:port" to listen on. Port 0 picks a free port.
	Addr    string
	Handler http.Handler
	// Logger defaults to slog.Default.
	Logger *slog.Logger
	// Ready, if set, is called with the bound address once the server
	// accepts connections.
	Ready func(addr string)
	// ShutdownTimeout bounds the wait for in-flight requests after the
	// context is canceled. Defaults to 10 seconds.
	ShutdownTimeout time.Duration
}

var (
	errNoAddr     = errors.New("web: no address to listen on")
	errNilHandler = errors.New("web: nil handler")
)

// ListenAndServe serves c.Handler until ctx is canceled, then shuts the
// server down gracefully. Streaming handlers must watch their request
// context, since no write timeout is set.
func ListenAndServe(ctx context.Context, c *ServerConfig) error {
	if c.Addr == "" {
		return errNoAddr
	}
	if c.Handler == nil {
		return errNilHandler
	}
	l := cmp.Or(c.Logger, slog.Default())

	ln, err := net.Listen("tcp", c.Addr)
	if err != nil {
		return fmt.Errorf("web: listening on %s: %w", c.Addr, err)
	}
	defer ln.Close()
	addr := ln.Addr().String()
	l.Info("listening", "addr", addr)

	s := &http.Server{
		Handler:           c.Handler,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(l.Handler(), slog.LevelError),
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if c.Ready != nil {
		c.Ready(addr)
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		l.Info("shutting down", "addr", addr)
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cmp.Or(c.ShutdownTimeout, defaultShutdownTimeout))
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}
