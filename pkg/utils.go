package pkg

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mitchellh/colorstring"
	"github.com/rotisserie/eris"
)

// WorkDir resolves dir (or the process working directory when dir is empty) to an absolute
// path and makes sure it is a directory.
func WorkDir(dir string) (string, error) {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", eris.Wrap(err, "Failed to retrieve the current working directory")
		}
		dir = wd
	}

	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", eris.Wrapf(err, "Failed to resolve %s", dir)
	}

	info, err := os.Stat(dir)
	if err != nil {
		return "", eris.Wrapf(err, "Could not find working directory %s", dir)
	}

	if !info.IsDir() {
		return "", eris.Errorf("%s is not a directory!", dir)
	}

	return dir, nil
}

// Stdout receives the Print* helpers' output.
var Stdout io.Writer = os.Stdout

func PrintTask(msg string) {
	colorstring.Fprintf(Stdout, "[blue][bold]==>[default] %s\n", msg)
}

func PrintSubtask(msg string) {
	colorstring.Fprintf(Stdout, "[green][bold]  ->[reset] %s\n", msg)
}

func PrintWarning(msg string) {
	colorstring.Fprintf(Stdout, "[yellow][bold]  ->[reset] %s\n", msg)
}

func PrintError(msg string) {
	colorstring.Fprintf(Stdout, "[red][bold]  ->[reset] %s\n", msg)
}

// PrintHint prints an indented remediation line below an error or warning.
func PrintHint(format string, args ...interface{}) {
	colorstring.Fprintf(Stdout, "     [bold]%s[reset]\n", fmt.Sprintf(format, args...))
}
