package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/mpe-exporter/mpe-setup/pkg"
	"github.com/mpe-exporter/mpe-setup/pkg/installer"
	"github.com/mpe-exporter/mpe-setup/pkg/manifest"
	"github.com/mpe-exporter/mpe-setup/pkg/state"
	"github.com/mpe-exporter/mpe-setup/pkg/venv"
)

const timeFormat = "2006-01-02 15:04:05 MST"

func newStatusCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the environment, the requirements and the last setup run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := newSession(cmd, flags, nil)
			if err != nil {
				return err
			}

			env := venv.New(sess.workDir, sess.cfg.Env.Dir, sess.platform)
			exists, err := env.Exists()
			if err != nil {
				return err
			}

			pkg.PrintTask("Environment")
			switch {
			case !exists:
				pkg.PrintWarning(env.Name + " does not exist yet, run mpe-setup to create it")
			case env.IsVenv():
				pkg.PrintSubtask(env.Name + " exists (" + env.Path + ")")
			default:
				pkg.PrintWarning(env.Name + " exists but is not a virtual environment (no pyvenv.cfg)")
			}

			pkg.PrintTask("Requirements")
			manifestPath := sess.cfg.Manifest
			if !filepath.IsAbs(manifestPath) {
				manifestPath = filepath.Join(sess.workDir, manifestPath)
			}

			m, err := manifest.Load(manifestPath)
			if err != nil {
				pkg.PrintError(fmt.Sprintf("Could not read %s: %s", sess.cfg.Manifest, err))
			} else {
				pkg.PrintSubtask(sess.cfg.Manifest + " lists " + m.Summary(8))
			}

			if !exists {
				return nil
			}

			dbPath := filepath.Join(env.Path, state.FileName)
			if _, err := os.Stat(dbPath); err != nil {
				if !eris.Is(err, os.ErrNotExist) {
					return eris.Wrapf(err, "Could not stat %s", dbPath)
				}

				pkg.PrintTask("Last run")
				pkg.PrintSubtask("no setup run recorded")
				return nil
			}

			store, err := state.Open(env.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			pkg.PrintTask("Last run")
			last, err := store.LastRun()
			if err != nil {
				return err
			}

			if last == nil {
				pkg.PrintSubtask("no setup run recorded")
			} else {
				printRun(last)
			}

			stamp, err := store.Stamp()
			if err != nil {
				return err
			}

			pkg.PrintTask("Installed requirements")
			switch {
			case stamp == nil:
				pkg.PrintWarning("no successful install recorded")
			case m != nil && stamp.Digest != installer.Digest(m, sess.options(nil).PipArgs):
				pkg.PrintWarning(fmt.Sprintf("%s changed since the install at %s, run mpe-setup again", sess.cfg.Manifest, stamp.Time.Local().Format(timeFormat)))
			default:
				pkg.PrintSubtask(fmt.Sprintf("%d packages installed at %s", len(stamp.Packages), stamp.Time.Local().Format(timeFormat)))
			}

			return nil
		},
	}
}

func printRun(run *state.Run) {
	line := fmt.Sprintf("%s %s at %s", run.ID, run.Outcome, run.Started.Local().Format(timeFormat))
	if !run.Finished.IsZero() {
		line += fmt.Sprintf(" (%s)", run.Finished.Sub(run.Started).Round(time.Millisecond))
	}

	switch run.Outcome {
	case state.OutcomeFailed:
		pkg.PrintError(line + ", stage " + run.Stage)
		if run.Error != "" {
			pkg.PrintHint("%s", run.Error)
		}
	case state.OutcomeDone:
		if run.Skipped {
			line += ", install skipped"
		}
		pkg.PrintSubtask(line)
	default:
		pkg.PrintWarning(line + ", did not finish")
	}
}
