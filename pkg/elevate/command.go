package elevate

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"os"
	"os/exec"

	"github.com/arthur-debert/dotdeploy/pkg/errors"
	"github.com/arthur-debert/dotdeploy/pkg/logging"
)

// Command describes one subprocess invocation
type Command struct {
	Name string
	Args []string
	Dir  string
	// Env is appended to the current environment
	Env []string
	// Interactive connects the terminal instead of capturing output
	Interactive bool
	Stdin       io.Reader
}

// Result is the outcome of a finished command
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Success reports a zero exit status
func (r *Result) Success() bool {
	return r != nil && r.ExitCode == 0
}

// Execute runs c and returns its result.
// A non-zero exit yields both the populated Result and an error.
func Execute(ctx context.Context, c Command) (*Result, error) {
	logger := logging.GetLogger("elevate.exec")

	if c.Name == "" {
		return nil, errors.New(errors.ErrInvalidInput, "command name is empty")
	}

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = append(os.Environ(), c.Env...)

	var stdout, stderr bytes.Buffer
	if c.Interactive {
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	} else {
		cmd.Stdin = c.Stdin
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	}

	logging.LogCommand(c.Name, c.Args)

	err := cmd.Run()
	result := &Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if stderrors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			return nil, errors.Wrapf(err, errors.ErrTaskFailed, "failed to start %s", c.Name).
				WithDetail("command", c.Name)
		}

		logger.Debug().
			Str("command", c.Name).
			Int("exit_code", result.ExitCode).
			Str("stderr", result.Stderr).
			Msg("Command failed")

		return result, errors.Newf(errors.ErrTaskFailed, "%s exited with status %d", c.Name, result.ExitCode).
			WithDetails(map[string]interface{}{
				"command":   c.Name,
				"args":      c.Args,
				"exit_code": result.ExitCode,
				"stderr":    result.Stderr,
			})
	}

	return result, nil
}
