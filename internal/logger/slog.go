// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package logger

import (
	"context"
	"io"
	"log/slog"
)

// Logger is a structured logger together with the level variable that
// controls it.
type Logger struct {
	*slog.Logger
	Level *slog.LevelVar
}

// New returns a Logger that writes text records to w. Records are also
// copied to every extra writer, which is how a [Streamer] gets its lines.
func New(w io.Writer, extra ...io.Writer) *Logger {
	if len(extra) > 0 {
		w = io.MultiWriter(append([]io.Writer{w}, extra...)...)
	}
	level := new(slog.LevelVar)
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})),
		Level:  level,
	}
}

type ctxKey struct{}

// Put returns a copy of ctx that carries l.
func Put(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// Lookup returns the Logger stored in ctx, if any.
func Lookup(ctx context.Context) (*Logger, bool) {
	l, ok := ctx.Value(ctxKey{}).(*Logger)
	return l, ok
}

// Get returns the Logger stored in ctx. If there is none, it returns a Logger
// backed by [slog.Default].
func Get(ctx context.Context) *Logger {
	if l, ok := Lookup(ctx); ok {
		return l
	}
	level := new(slog.LevelVar)
	return &Logger{Logger: slog.Default(), Level: level}
}

// With returns a copy of ctx whose Logger has args added to every record.
func With(ctx context.Context, args ...any) context.Context {
	l := Get(ctx)
	return Put(ctx, &Logger{Logger: l.Logger.With(args...), Level: l.Level})
}
