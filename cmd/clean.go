package cmd

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/mpe-exporter/mpe-setup/pkg"
	"github.com/mpe-exporter/mpe-setup/pkg/shell"
	"github.com/mpe-exporter/mpe-setup/pkg/venv"
)

func newCleanCmd(flags *globalFlags) *cobra.Command {
	var force bool

	cleanCmd := &cobra.Command{
		Use:   "clean",
		Short: "Delete the virtual environment",
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

			if !exists {
				pkg.PrintSubtask(env.Name + " does not exist, nothing to delete")
				return nil
			}

			if !env.IsVenv() && !force {
				return eris.Errorf("%s does not look like a virtual environment (no pyvenv.cfg), pass --force to delete it anyway", env.Path)
			}

			if flags.dryRun {
				fmt.Fprintf(cmd.OutOrStdout(), "+ %s\n", shell.Format([]string{"rm", "-r", env.Path}))
				return nil
			}

			sess.logger.Info().Str("stage", "clean").Str("path", env.Path).Msgf("deleting %s", env.Name)
			err = os.RemoveAll(env.Path)
			if err != nil {
				return eris.Wrapf(err, "Could not delete %s", env.Path)
			}

			pkg.PrintTask("Deleted " + env.Name)
			return nil
		},
	}

	cleanCmd.Flags().BoolVarP(&force, "force", "f", false, "delete the directory even if it lacks pyvenv.cfg")
	return cleanCmd
}
