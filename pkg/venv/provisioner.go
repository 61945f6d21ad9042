package venv

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/mpe-exporter/mpe-setup/pkg/logging"
	"github.com/mpe-exporter/mpe-setup/pkg/shell"
)

// Provisioner creates environments with "<python> -m venv".
type Provisioner struct {
	Runner shell.Runner
	Python string
	Dir    string
	// DryRun skips the check that the directory exists after creation.
	DryRun bool
}

// Ensure creates env unless its directory already exists. It reports whether the
// environment was created by this call.
func (p *Provisioner) Ensure(ctx context.Context, env *Environment) (bool, error) {
	exists, err := env.Exists()
	if err != nil {
		return false, err
	}

	if exists {
		logging.Log(ctx).Info().
			Str("stage", "environment").
			Str("path", env.Path).
			Msgf("%s already exists, skipping creation", env.Name)
		return false, nil
	}

	args := []string{p.Python, "-m", "venv", env.Path}
	logging.Log(ctx).Info().
		Str("stage", "environment").
		Bool("command", true).
		Msg(shell.Format(args))

	out, err := shell.Output(ctx, p.Runner, shell.Invocation{Args: args, Dir: p.Dir})
	if err != nil {
		return false, eris.Wrapf(err, "Failed to create environment %s:\n%s", env.Name, out)
	}

	if p.DryRun {
		return true, nil
	}

	exists, err = env.Exists()
	if err != nil {
		return false, err
	}

	if !exists {
		return false, eris.Errorf("%s finished but %s was not created", shell.Format(args), env.Path)
	}

	return true, nil
}
