// Package shell runs external commands through the mvdan.cc/sh interpreter so that PATH
// lookup, environment handling and exit codes behave the same on every platform.
package shell

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// Invocation describes a single command execution.
type Invocation struct {
	Args []string
	Dir  string
	// Env overrides variables of the parent environment.
	Env map[string]string
	// Unset removes variables from the parent environment.
	Unset  []string
	Stdout io.Writer
	Stderr io.Writer
	// ReadOnly marks probes that do not change anything on disk. Dry runs still execute them.
	ReadOnly bool
}

// Runner executes invocations.
type Runner interface {
	Run(ctx context.Context, inv Invocation) error
}

// ExitError is returned when a command ran but exited with a non-zero status.
type ExitError struct {
	Args   []string
	Status int
}

var _ error = (*ExitError)(nil)

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with status %d", Format(e.Args), e.Status)
}

// NotFound reports whether the shell could not find the executable.
func (e *ExitError) NotFound() bool {
	return e.Status == 127
}

// ExitCode extracts the exit status from an error returned by a Runner.
func ExitCode(err error) (int, bool) {
	var exitErr *ExitError
	if eris.As(err, &exitErr) {
		return exitErr.Status, true
	}
	return 0, false
}

// InterpRunner runs commands with the mvdan.cc/sh interpreter.
type InterpRunner struct {
	// KillTimeout is how long a cancelled command gets between SIGINT and SIGKILL.
	KillTimeout time.Duration
}

var _ Runner = (*InterpRunner)(nil)

func NewInterpRunner() *InterpRunner {
	return &InterpRunner{KillTimeout: 2 * time.Second}
}

func (r *InterpRunner) Run(ctx context.Context, inv Invocation) error {
	if len(inv.Args) == 0 {
		return eris.New("empty command")
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}

	call, err := BuildCall(inv.Args)
	if err != nil {
		return err
	}

	stdout := inv.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := inv.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	dir := inv.Dir
	if dir == "" {
		dir, err = os.Getwd()
		if err != nil {
			return eris.Wrap(err, "Failed to retrieve the current working directory")
		}
	}

	runner, err := interp.New(
		interp.Dir(dir),
		interp.Env(expand.ListEnviron(Environ(os.Environ(), inv.Env, inv.Unset)...)),
		interp.ExecHandler(interp.DefaultExecHandler(r.KillTimeout)),
		interp.StdIO(nil, stdout, stderr),
	)
	if err != nil {
		return eris.Wrap(err, "Failed to initialize runner")
	}

	err = runner.Run(ctx, &syntax.Stmt{Cmd: call})
	if err != nil {
		if status, ok := interp.IsExitStatus(err); ok {
			return &ExitError{Args: inv.Args, Status: int(status)}
		}

		if ctx.Err() != nil {
			return eris.Wrapf(ctx.Err(), "%s was interrupted", inv.Args[0])
		}
		return eris.Wrapf(err, "Failed to run %s", inv.Args[0])
	}

	return nil
}

// Output runs inv and returns the combined stdout and stderr.
func Output(ctx context.Context, r Runner, inv Invocation) (string, error) {
	var buffer bytes.Buffer
	inv.Stdout = &buffer
	inv.Stderr = &buffer

	err := r.Run(ctx, inv)
	return buffer.String(), err
}

// Environ merges overrides into base and drops the unset names. On Windows, names are
// compared case-insensitively.
func Environ(base []string, overrides map[string]string, unset []string) []string {
	normalize := func(name string) string {
		if runtime.GOOS == "windows" {
			return strings.ToUpper(name)
		}
		return name
	}

	skip := make(map[string]bool, len(overrides)+len(unset))
	for name := range overrides {
		skip[normalize(name)] = true
	}
	for _, name := range unset {
		skip[normalize(name)] = true
	}

	result := make([]string, 0, len(base)+len(overrides))
	for _, item := range base {
		parts := strings.SplitN(item, "=", 2)
		if skip[normalize(parts[0])] {
			continue
		}
		result = append(result, item)
	}

	for name, value := range overrides {
		result = append(result, name+"="+value)
	}

	return result
}
