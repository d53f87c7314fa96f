// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package clitest runs command-line applications built with package cli in
// tests.
package clitest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"go.astrophena.name/feedbot/internal/cli"
)

// Case describes one invocation of an application and what it should print.
type Case[App cli.App] struct {
	Args  []string
	Stdin io.Reader
	Env   map[string]string

	// WantErr is matched with errors.Is. A nil WantErr means the run must
	// succeed.
	WantErr error
	// WantStdout and WantStderr list substrings the output must contain.
	WantStdout []string
	WantStderr []string
	// CheckFunc, if set, runs after the application with the same instance.
	CheckFunc func(*testing.T, App)
}

// Output is what an application printed.
type Output struct {
	Stdout, Stderr string
}

// Exec runs app once with args and env, reading stdin if it is not nil.
func Exec(ctx context.Context, app cli.App, args []string, env map[string]string, stdin io.Reader) (Output, error) {
	if stdin == nil {
		stdin = strings.NewReader("")
	}
	var stdout, stderr bytes.Buffer
	err := cli.Run(cli.WithEnv(ctx, &cli.Env{
		Args:   args,
		Getenv: func(name string) string { return env[name] },
		Stdin:  stdin,
		Stdout: &stdout,
		Stderr: &stderr,
	}), app)
	return Output{Stdout: stdout.String(), Stderr: stderr.String()}, err
}

// Run runs each case in a parallel subtest against a fresh application
// returned by setup.
func Run[App cli.App](t *testing.T, setup func(*testing.T) App, cases map[string]Case[App]) {
	t.Helper()
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			app := setup(t)
			out, err := Exec(t.Context(), app, tc.Args, tc.Env, tc.Stdin)

			switch {
			case tc.WantErr == nil && err != nil:
				t.Fatalf("unexpected error: %v\nstderr: %s", err, out.Stderr)
			case tc.WantErr != nil && !errors.Is(err, tc.WantErr):
				t.Fatalf("got error %v, want %v", err, tc.WantErr)
			}

			check(t, "stdout", out.Stdout, tc.WantStdout)
			check(t, "stderr", out.Stderr, tc.WantStderr)

			if tc.CheckFunc != nil {
				tc.CheckFunc(t, app)
			}
		})
	}
}

func check(t *testing.T, stream, got string, want []string) {
	t.Helper()
	for _, w := range want {
		if !strings.Contains(got, w) {
			t.Errorf("%s must contain %q, got: %q", stream, w, got)
		}
	}
}
