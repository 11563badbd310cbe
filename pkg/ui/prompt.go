package ui

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pterm/pterm"

	"github.com/arthur-debert/dotdeploy/pkg/errors"
)

// maxListed bounds how many items a confirmation prints
const maxListed = 20

// Confirmer asks the user to approve an action over a list of items
type Confirmer interface {
	Confirm(question string, items []string) (bool, error)
}

// Console confirms on the terminal. AssumeYes approves without asking.
type Console struct {
	In          io.Reader
	Out         io.Writer
	Interactive bool
	AssumeYes   bool
}

// NewConsole creates a console prompt bound to stdin and stderr
func NewConsole(assumeYes bool) *Console {
	return &Console{
		In:          os.Stdin,
		Out:         os.Stderr,
		Interactive: IsTerminal(os.Stdin),
		AssumeYes:   assumeYes,
	}
}

// Confirm lists the items and asks question, defaulting to no
func (c *Console) Confirm(question string, items []string) (bool, error) {
	if len(items) > 0 {
		fmt.Fprintln(c.Out, pterm.Warning.Sprint(question))
		for i, item := range items {
			if i == maxListed {
				fmt.Fprintf(c.Out, "  ... and %d more\n", len(items)-maxListed)
				break
			}
			fmt.Fprintf(c.Out, "  %s\n", item)
		}
	}
	if c.AssumeYes {
		return true, nil
	}

	if c.Interactive {
		ok, err := pterm.DefaultInteractiveConfirm.
			WithDefaultValue(false).
			Show("Continue?")
		if err != nil {
			return false, errors.Wrap(err, errors.ErrAborted, "failed to read confirmation")
		}
		return ok, nil
	}

	fmt.Fprint(c.Out, "Continue? [y/N]: ")
	line, err := bufio.NewReader(c.In).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, errors.Wrap(err, errors.ErrAborted, "failed to read confirmation")
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}
