package cmd

import (
	"context"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mpe-exporter/mpe-setup/pkg"
	"github.com/mpe-exporter/mpe-setup/pkg/config"
	"github.com/mpe-exporter/mpe-setup/pkg/logging"
	"github.com/mpe-exporter/mpe-setup/pkg/platform"
	"github.com/mpe-exporter/mpe-setup/pkg/setup"
	"github.com/mpe-exporter/mpe-setup/pkg/shell"
)

type globalFlags struct {
	workDir       string
	configFile    string
	envDir        string
	manifest      string
	python        string
	verbose       bool
	logJSON       bool
	dryRun        bool
	skipUnchanged bool
}

// session bundles everything a command needs after flags and config have been merged.
type session struct {
	ctx      context.Context
	logger   *zerolog.Logger
	cfg      *config.Config
	flags    *globalFlags
	workDir  string
	platform platform.Platform
	runner   shell.Runner
}

func newSession(cmd *cobra.Command, flags *globalFlags, newRunner runnerFactory) (*session, error) {
	workDir, err := pkg.WorkDir(flags.workDir)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(workDir, flags.configFile)
	if err != nil {
		return nil, err
	}

	changed := cmd.Flags().Changed
	if changed("env-dir") {
		cfg.Env.Dir = flags.envDir
	}
	if changed("manifest") {
		cfg.Manifest = flags.manifest
	}
	if changed("python") {
		cfg.Python.Runtime = flags.python
	}
	if changed("log-json") {
		cfg.Log.JSON = flags.logJSON
	}
	if flags.verbose {
		cfg.Log.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := logging.New(cmd.ErrOrStderr(), cfg.LogLevel(), cfg.Log.JSON)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = logging.WithLogger(ctx, &logger)

	sess := &session{
		ctx:      ctx,
		logger:   &logger,
		cfg:      cfg,
		flags:    flags,
		workDir:  workDir,
		platform: platform.Current(),
	}

	if newRunner != nil {
		sess.runner = newRunner()
		if flags.dryRun {
			sess.runner = &shell.DryRunner{Next: sess.runner, Out: discardIfNil(cmd.OutOrStdout())}
		}
	}

	logger.Debug().
		Str("dir", workDir).
		Str("env", cfg.Env.Dir).
		Str("manifest", cfg.Manifest).
		Str("os", sess.platform.OS).
		Msg("configuration loaded")

	return sess, nil
}

func (s *session) options(out io.Writer) setup.Options {
	pipArgs := s.cfg.Pip.Args
	if len(pipArgs) == 1 && pipArgs[0] == "" {
		pipArgs = nil
	}

	return setup.Options{
		WorkDir:       s.workDir,
		EnvDir:        s.cfg.Env.Dir,
		Manifest:      s.cfg.Manifest,
		Python:        s.cfg.RuntimeCommand(s.platform),
		Pip:           s.cfg.PipCommand(s.platform),
		GUIModule:     s.cfg.GUI.Module,
		MinVersion:    s.cfg.Python.MinVersion,
		PipArgs:       pipArgs,
		SkipUnchanged: s.flags.skipUnchanged,
		DryRun:        s.flags.dryRun,
		Verbose:       s.flags.verbose,
		Out:           discardIfNil(out),
	}
}
