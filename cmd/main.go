package cmd

import (
	"context"
	"io"
	"os"
	"os/signal"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/mpe-exporter/mpe-setup/pkg"
	"github.com/mpe-exporter/mpe-setup/pkg/logging"
	"github.com/mpe-exporter/mpe-setup/pkg/setup"
	"github.com/mpe-exporter/mpe-setup/pkg/shell"
)

// runnerFactory builds the runner used for every external command. Tests replace it.
type runnerFactory func() shell.Runner

func defaultRunner() shell.Runner {
	return shell.NewInterpRunner()
}

// NewRootCmd builds the command tree. A nil factory uses the shell interpreter.
func NewRootCmd(newRunner runnerFactory) *cobra.Command {
	if newRunner == nil {
		newRunner = defaultRunner
	}

	flags := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:   "mpe-setup",
		Short: "Prepare the Python environment for the MPE exporter",
		Long: `mpe-setup checks that Python 3, pip, venv and tkinter are available, creates the
virtual environment (venv by default) if it does not exist yet and installs everything listed
in requirements.txt into it.

Run it again at any time: an existing environment is reused.`,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSetup(cmd, flags, newRunner)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.workDir, "directory", "C", "", "run in this directory instead of the current one")
	pf.StringVar(&flags.configFile, "config", "", "config file (default: ./mpe-setup.toml if present)")
	pf.StringVar(&flags.envDir, "env-dir", "", "directory of the virtual environment")
	pf.StringVar(&flags.manifest, "manifest", "", "requirements file passed to pip install -r")
	pf.StringVar(&flags.python, "python", "", "Python interpreter to use")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "show the full pip output and debug messages")
	pf.BoolVar(&flags.logJSON, "log-json", false, "write log messages as JSON lines")
	pf.BoolVarP(&flags.dryRun, "dry-run", "n", false, "only print the commands that change something, don't execute them")

	rootCmd.Flags().BoolVar(&flags.skipUnchanged, "skip-unchanged", false, "skip pip when requirements.txt did not change since the last successful install")

	rootCmd.AddCommand(newCheckCmd(flags, newRunner))
	rootCmd.AddCommand(newStatusCmd(flags))
	rootCmd.AddCommand(newCleanCmd(flags))

	return rootCmd
}

// Execute runs the CLI and exits with status 1 on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := NewRootCmd(nil).ExecuteContext(ctx)
	stop()

	if err != nil {
		reportError(err)
		os.Exit(1)
	}
}

func reportError(err error) {
	var setupErr *setup.Error
	if eris.As(err, &setupErr) {
		pkg.PrintError(setupErr.Error())
		if setupErr.Remedy != "" {
			pkg.PrintHint("%s", setupErr.Remedy)
		}
	} else {
		pkg.PrintError(err.Error())
	}

	if os.Getenv(logging.DebugEnv) != "" {
		pkg.PrintHint("%s", eris.ToString(err, true))
	}
}

func runSetup(cmd *cobra.Command, flags *globalFlags, newRunner runnerFactory) error {
	sess, err := newSession(cmd, flags, newRunner)
	if err != nil {
		return err
	}

	pkg.PrintTask("Setting up " + sess.cfg.Env.Dir + " in " + sess.workDir)

	s := &setup.Setup{
		Runner:   sess.runner,
		Platform: sess.platform,
		Options:  sess.options(cmd.OutOrStdout()),
	}

	report, err := s.Run(sess.ctx)
	setup.LogReport(sess.logger, report)
	if err != nil {
		return err
	}

	if report.Skipped {
		pkg.PrintSubtask(sess.cfg.Manifest + " is unchanged, nothing to install")
	}
	if len(report.Warnings) > 0 {
		pkg.PrintWarning("Setup finished with warnings")
	}

	if flags.dryRun {
		pkg.PrintTask("Dry run finished, nothing was changed")
		return nil
	}

	pkg.PrintTask("Environment ready. Activate it with:")
	for _, hint := range report.ActivationHints {
		pkg.PrintSubtask(hint)
	}
	return nil
}

func discardIfNil(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}
