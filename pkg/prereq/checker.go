// Package prereq probes the tools the setup flow depends on: the interpreter, its package
// manager, the venv module and the optional GUI binding.
package prereq

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/rotisserie/eris"

	"github.com/mpe-exporter/mpe-setup/pkg/logging"
	"github.com/mpe-exporter/mpe-setup/pkg/platform"
	"github.com/mpe-exporter/mpe-setup/pkg/shell"
)

// Result is the outcome of one probe.
type Result struct {
	Requirement platform.Requirement
	// Name is what was probed, i.e. the command or module name.
	Name     string
	Required bool
	OK       bool
	Version  string
	Remedy   string
	Err      error
}

// Checker runs the probes. Python and Pip are command names resolved through PATH.
type Checker struct {
	Runner     shell.Runner
	Platform   platform.Platform
	Dir        string
	Python     string
	Pip        string
	GUIModule  string
	MinVersion string
}

var (
	pythonVersionPattern = regexp.MustCompile(`Python\s+(\d+\.\d+(?:\.\d+)?)`)
	pipVersionPattern    = regexp.MustCompile(`pip\s+(\d+(?:\.\d+)*)`)
)

func (c *Checker) probe(ctx context.Context, args ...string) (string, error) {
	logging.Log(ctx).Debug().Str("stage", "check").Msgf("running %s", shell.Format(args))
	return shell.Output(ctx, c.Runner, shell.Invocation{
		Args:     args,
		Dir:      c.Dir,
		ReadOnly: true,
	})
}

func (c *Checker) failed(r Result, err error) Result {
	r.OK = false
	r.Err = err
	if r.Remedy == "" {
		r.Remedy = c.Platform.Remedy(r.Requirement)
	}
	return r
}

// Runtime checks that the interpreter can be started and, if MinVersion is set, that its
// version satisfies the constraint.
func (c *Checker) Runtime(ctx context.Context) Result {
	r := Result{Requirement: platform.RequireRuntime, Name: c.Python, Required: true}

	out, err := c.probe(ctx, c.Python, "--version")
	if err != nil {
		return c.failed(r, eris.Wrapf(err, "%s is not available", c.Python))
	}

	if m := pythonVersionPattern.FindStringSubmatch(out); m != nil {
		r.Version = m[1]
	}

	if c.MinVersion != "" {
		constraint, err := semver.NewConstraint(c.MinVersion)
		if err != nil {
			return c.failed(r, eris.Wrapf(err, "invalid version constraint %s", c.MinVersion))
		}

		if r.Version == "" {
			return c.failed(r, eris.Errorf("could not determine the version of %s from %q", c.Python, strings.TrimSpace(out)))
		}

		version, err := semver.NewVersion(r.Version)
		if err != nil {
			return c.failed(r, eris.Wrapf(err, "could not parse version %s", r.Version))
		}

		if !constraint.Check(version) {
			r.Remedy = fmt.Sprintf("Found %s %s but %s is required. %s", c.Python, r.Version, c.MinVersion, c.Platform.Remedy(r.Requirement))
			return c.failed(r, eris.Errorf("%s %s does not satisfy %s", c.Python, r.Version, c.MinVersion))
		}
	}

	r.OK = true
	return r
}

// PackageManager checks for pip, first as a module of the interpreter, then as a
// standalone command.
func (c *Checker) PackageManager(ctx context.Context) Result {
	r := Result{Requirement: platform.RequirePackageManager, Name: "pip", Required: true}

	out, err := c.probe(ctx, c.Python, "-m", "pip", "--version")
	if err != nil && c.Pip != "" {
		logging.Log(ctx).Debug().Str("stage", "check").Msgf("%s -m pip failed, trying %s", c.Python, c.Pip)
		r.Name = c.Pip
		out, err = c.probe(ctx, c.Pip, "--version")
	}

	if err != nil {
		return c.failed(r, eris.Wrap(err, "pip is not available"))
	}

	if m := pipVersionPattern.FindStringSubmatch(out); m != nil {
		r.Version = m[1]
	}

	r.OK = true
	return r
}

// Isolation checks that the interpreter ships the venv module.
func (c *Checker) Isolation(ctx context.Context) Result {
	return c.importProbe(ctx, platform.RequireIsolation, "venv", true)
}

// GUIBinding checks for the optional GUI module. A missing module is not an error for
// the setup flow.
func (c *Checker) GUIBinding(ctx context.Context) Result {
	return c.importProbe(ctx, platform.RequireGUIBinding, c.GUIModule, false)
}

func (c *Checker) importProbe(ctx context.Context, req platform.Requirement, module string, required bool) Result {
	r := Result{Requirement: req, Name: module, Required: required}

	if _, err := c.probe(ctx, c.Python, "-c", "import "+module); err != nil {
		return c.failed(r, eris.Wrapf(err, "module %s can not be imported", module))
	}

	r.OK = true
	return r
}

// All runs every probe in order without stopping at failures.
func (c *Checker) All(ctx context.Context) []Result {
	return []Result{
		c.Runtime(ctx),
		c.PackageManager(ctx),
		c.Isolation(ctx),
		c.GUIBinding(ctx),
	}
}

// Failed returns the first required probe that failed.
func Failed(results []Result) (Result, bool) {
	for _, r := range results {
		if r.Required && !r.OK {
			return r, true
		}
	}
	return Result{}, false
}
