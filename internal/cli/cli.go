// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package cli runs command-line applications with an environment that tests
// can replace.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.astrophena.name/feedbot/internal/logger"
	"go.astrophena.name/feedbot/internal/syncx"
	"go.astrophena.name/feedbot/internal/version"
)

// Main runs app in the operating system environment until it returns or the
// process is interrupted, then exits. Invalid arguments exit with status 2,
// other errors with status 1.
func Main(app App) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := Run(WithEnv(ctx, OSEnv()), app)
	cancel()
	if err == nil {
		return
	}
	if isPrintableError(err) {
		fmt.Fprintln(os.Stderr, err)
	}
	code := exitCode(err)
	if code == 2 && !errors.Is(err, flag.ErrHelp) {
		fmt.Fprintf(os.Stderr, "Run '%s -help' for usage.\n", version.CmdName())
	}
	os.Exit(code)
}

func exitCode(err error) int {
	var ue *unprintableError
	switch {
	case errors.Is(err, ErrExitVersion):
		return 0
	case errors.Is(err, ErrInvalidArgs), errors.Is(err, flag.ErrHelp), errors.As(err, &ue) && ue.usage:
		return 2
	default:
		return 1
	}
}

// unprintableError is an error that was already reported to the user.
type unprintableError struct {
	err   error
	usage bool // caused by bad flags
}

func (e *unprintableError) Error() string { return e.err.Error() }
func (e *unprintableError) Unwrap() error { return e.err }

func isPrintableError(err error) bool {
	if errors.Is(err, flag.ErrHelp) {
		return false
	}
	var ue *unprintableError
	return !errors.As(err, &ue)
}

// ErrExitVersion is returned by [Run] after printing the version.
var ErrExitVersion = &unprintableError{err: errors.New("version printed")}

// ErrInvalidArgs means the command line doesn't make sense. Wrap it with a
// message that tells what is wrong:
//
//	return fmt.Errorf("%w: latest takes a positive number", cli.ErrInvalidArgs)
var ErrInvalidArgs = errors.New("invalid arguments")

// App is a command-line application.
type App interface {
	// Run runs the application. The environment is available through
	// [GetEnv] and a logger through logger.Get.
	Run(context.Context) error
}

// HasFlags is an App with flags.
type HasFlags interface {
	App
	Flags(*flag.FlagSet)
}

// Env is what an application sees of the outside world.
type Env struct {
	Args   []string
	Getenv func(string) string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Logf prints a message for the user to standard error, adding a newline.
func (e *Env) Logf(format string, args ...any) {
	fmt.Fprintf(e.Stderr, format+"\n", args...)
}

// OSEnv returns the environment of the current process.
func OSEnv() *Env {
	return &Env{
		Args:   os.Args[1:],
		Getenv: os.Getenv,
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

type envKey struct{}

// WithEnv returns a copy of ctx that carries env.
func WithEnv(ctx context.Context, env *Env) context.Context {
	return context.WithValue(ctx, envKey{}, env)
}

// GetEnv returns the environment stored in ctx by [WithEnv] or the
// environment of the current process if there is none.
func GetEnv(ctx context.Context) *Env {
	if env, ok := ctx.Value(envKey{}).(*Env); ok {
		return env
	}
	return OSEnv()
}

// Run parses flags from the environment, puts a logger writing to its
// standard error into ctx unless there is one already, and runs app with
// the remaining arguments.
func Run(ctx context.Context, app App) error {
	env := GetEnv(ctx)

	flags := flag.NewFlagSet(version.CmdName(), flag.ContinueOnError)
	if fa, ok := app.(HasFlags); ok {
		fa.Flags(flags)
	}
	var showVersion bool
	if flags.Lookup("version") == nil {
		flags.BoolVar(&showVersion, "version", false, "Show version.")
	}
	flags.Usage = func() {
		if doc := docComment.Get(parseDocComment); doc != "" {
			fmt.Fprintln(env.Stderr, doc)
		}
		fmt.Fprint(env.Stderr, "Flags:\n\n")
		flags.PrintDefaults()
	}
	flags.SetOutput(env.Stderr)
	if err := flags.Parse(env.Args); err != nil {
		// The flag package has printed the error already.
		return &unprintableError{err: err, usage: true}
	}

	if showVersion {
		fmt.Fprint(env.Stderr, version.Version())
		return ErrExitVersion
	}

	// The caller's Env keeps its arguments.
	sub := *env
	sub.Args = flags.Args()

	if _, ok := logger.Lookup(ctx); !ok {
		ctx = logger.Put(ctx, logger.New(env.Stderr))
	}
	return app.Run(WithEnv(ctx, &sub))
}

var (
	docSrc     []byte
	docComment syncx.Lazy[string]
)

// SetDocComment sets the source of the package doc comment that is printed
// in the help message. It must be a Go file, usually the embedded doc.go
// itself, with the doc comment in a /* */ block whose delimiters are on
// their own lines:
//
//	//go:embed doc.go
//	var doc []byte
//
//	func init() { cli.SetDocComment(doc) }
func SetDocComment(src []byte) { docSrc = src }

func parseDocComment() string {
	_, rest, ok := strings.Cut(string(docSrc), "/*\n")
	if !ok {
		return ""
	}
	doc, _, _ := strings.Cut(rest, "\n*/")
	return strings.TrimRight(doc, "\n") + "\n"
}
