package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mpe-exporter/mpe-setup/pkg"
	"github.com/mpe-exporter/mpe-setup/pkg/prereq"
	"github.com/mpe-exporter/mpe-setup/pkg/setup"
)

func newCheckCmd(flags *globalFlags, newRunner runnerFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Only check the prerequisites",
		Long:  `Probes the Python interpreter, pip, the venv module and the GUI binding without changing anything.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := newSession(cmd, flags, newRunner)
			if err != nil {
				return err
			}

			opts := sess.options(nil)
			checker := &prereq.Checker{
				Runner:     sess.runner,
				Platform:   sess.platform,
				Dir:        sess.workDir,
				Python:     opts.Python,
				Pip:        opts.Pip,
				GUIModule:  opts.GUIModule,
				MinVersion: opts.MinVersion,
			}

			results := checker.All(sess.ctx)
			printChecks(cmd, results)

			for _, result := range results {
				if !result.OK && !result.Required {
					pkg.PrintWarning(fmt.Sprintf("%s is optional but missing. %s", result.Name, result.Remedy))
				}
			}

			if failed, ok := prereq.Failed(results); ok {
				return setup.CheckError(failed)
			}

			pkg.PrintTask("All required prerequisites are available")
			return nil
		},
	}
}

func printChecks(cmd *cobra.Command, results []prereq.Result) {
	out := cmd.OutOrStdout()

	maxNameLen := 0
	for _, result := range results {
		if l := len(result.Requirement.String()); l > maxNameLen {
			maxNameLen = l
		}
	}

	lineFmt := fmt.Sprintf(" * %%-%ds %%-8s %%s\n", maxNameLen+1)
	for _, result := range results {
		status := "ok"
		switch {
		case !result.OK && result.Required:
			status = "missing"
		case !result.OK:
			status = "optional"
		}

		detail := result.Name
		if result.Version != "" {
			detail += " " + result.Version
		}

		fmt.Fprintf(out, lineFmt, result.Requirement.String()+":", status, detail)
	}
}
