// Package shelltest provides a scripted shell.Runner for tests.
package shelltest

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/mpe-exporter/mpe-setup/pkg/shell"
)

// Response describes what a faked command does.
type Response struct {
	Output string
	Status int
	// Do runs before the response is returned, i.e. to create directories.
	Do func(inv shell.Invocation)
}

// Call is a recorded invocation.
type Call struct {
	Command string
	Env     map[string]string
	Unset   []string
}

// Runner answers invocations by their formatted command line. Unknown commands behave
// like a missing executable (status 127).
type Runner struct {
	lock      sync.Mutex
	responses map[string]Response
	prefixes  map[string]Response
	Calls     []Call
}

var _ shell.Runner = (*Runner)(nil)

func New() *Runner {
	return &Runner{
		responses: make(map[string]Response),
		prefixes:  make(map[string]Response),
	}
}

// On registers the response for an exact command line.
func (r *Runner) On(command string, resp Response) *Runner {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.responses[command] = resp
	return r
}

// OnPrefix registers the response for every command line starting with prefix.
func (r *Runner) OnPrefix(prefix string, resp Response) *Runner {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.prefixes[prefix] = resp
	return r
}

func (r *Runner) Run(ctx context.Context, inv shell.Invocation) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	command := shell.Format(inv.Args)

	r.lock.Lock()
	env := make(map[string]string, len(inv.Env))
	for k, v := range inv.Env {
		env[k] = v
	}
	r.Calls = append(r.Calls, Call{Command: command, Env: env, Unset: inv.Unset})

	resp, ok := r.responses[command]
	if !ok {
		best := ""
		for prefix, candidate := range r.prefixes {
			if strings.HasPrefix(command, prefix) && len(prefix) > len(best) {
				best = prefix
				resp = candidate
				ok = true
			}
		}
	}
	r.lock.Unlock()

	if !ok {
		resp = Response{Output: inv.Args[0] + ": command not found\n", Status: 127}
	}

	if resp.Do != nil {
		resp.Do(inv)
	}

	if resp.Output != "" && inv.Stdout != nil {
		if _, err := io.WriteString(inv.Stdout, resp.Output); err != nil {
			return err
		}
	}

	if resp.Status != 0 {
		return &shell.ExitError{Args: inv.Args, Status: resp.Status}
	}
	return nil
}

// Commands returns the recorded command lines in order.
func (r *Runner) Commands() []string {
	r.lock.Lock()
	defer r.lock.Unlock()

	result := make([]string, len(r.Calls))
	for idx, call := range r.Calls {
		result[idx] = call.Command
	}
	return result
}

// Ran reports whether a command line starting with prefix was executed.
func (r *Runner) Ran(prefix string) bool {
	for _, command := range r.Commands() {
		if strings.HasPrefix(command, prefix) {
			return true
		}
	}
	return false
}
