package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/arthur-debert/dotdeploy/pkg/elevate"
	"github.com/arthur-debert/dotdeploy/pkg/errors"
	"github.com/arthur-debert/dotdeploy/pkg/logging"
	"github.com/arthur-debert/dotdeploy/pkg/paths"
	"github.com/arthur-debert/dotdeploy/pkg/render"
	"github.com/arthur-debert/dotdeploy/pkg/types"
)

// UUID returns the content identifier of t
func UUID(t types.Task) (uuid.UUID, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return uuid.Nil, errors.Wrapf(err, errors.ErrInternal, "failed to encode task of %s", t.Module)
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, data), nil
}

// Describe returns a short human readable label for t
func Describe(t types.Task) string {
	if t.Description != "" {
		return t.Description
	}
	cmd := t.Shell
	if cmd == "" {
		cmd = strings.TrimSpace(t.Exec + " " + strings.Join(t.Args, " "))
	}
	cmd = strings.NewReplacer("\n", " ", "\r", " ").Replace(cmd)
	if r := []rune(cmd); len(r) > 50 {
		cmd = string(r[:50]) + "..."
	}
	return cmd
}

// Executor runs a command without elevation
type Executor func(ctx context.Context, c elevate.Command) (*elevate.Result, error)

// Runner executes tasks
type Runner struct {
	elevator elevate.Runner
	execute  Executor
	dryRun   bool
	logger   zerolog.Logger
}

// Option configures a Runner
type Option func(*Runner)

// WithExecutor replaces the unprivileged executor
func WithExecutor(e Executor) Option {
	return func(r *Runner) { r.execute = e }
}

// WithDryRun makes the Runner log tasks instead of running them
func WithDryRun(dryRun bool) Option {
	return func(r *Runner) { r.dryRun = dryRun }
}

// NewRunner returns a Runner; elevator serves tasks marked sudo
func NewRunner(elevator elevate.Runner, opts ...Option) *Runner {
	r := &Runner{
		elevator: elevator,
		execute:  elevate.Execute,
		logger:   logging.GetLogger("tasks"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes one task
func (r *Runner) Run(ctx context.Context, t types.Task) error {
	name, args, err := commandLine(t)
	if err != nil {
		return err
	}
	label := Describe(t)
	env := []string{render.KeyCurrentModule + "=" + t.ModuleDir}

	logEvent := r.logger.Info()
	if t.Sudo {
		logEvent = r.logger.Warn()
	}
	logEvent.
		Str("module", t.Module).
		Str("phase", string(t.Phase)).
		Str("hook", string(t.Hook)).
		Bool("sudo", t.Sudo).
		Msg(label)

	if r.dryRun {
		return nil
	}

	var res *elevate.Result
	if t.Sudo {
		if r.elevator == nil {
			return errors.Newf(errors.ErrElevation, "task %q needs elevation but none is configured", label)
		}
		// env carries the module variable past the elevation tool
		envArgs := append(append([]string{}, env...), name)
		res, err = r.elevator.Run(ctx, "env", append(envArgs, args...), "run task "+label)
	} else {
		res, err = r.execute(ctx, elevate.Command{Name: name, Args: args, Dir: t.ModuleDir, Env: env})
	}

	if res != nil {
		logOutput(r.logger, label, "stdout", res.Stdout)
		logOutput(r.logger, label, "stderr", res.Stderr)
	}
	if err != nil {
		return errors.Wrapf(err, errors.ErrTaskFailed, "failed to execute %s from module %s", label, t.Module).
			WithDetail("module", t.Module)
	}
	return nil
}

// RunAll executes tasks in order and stops at the first failure
func (r *Runner) RunAll(ctx context.Context, tasks []types.Task) error {
	for _, t := range tasks {
		if err := r.Run(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

func commandLine(t types.Task) (string, []string, error) {
	if t.Shell != "" {
		return "sh", []string{"-c", t.Shell}, nil
	}
	if t.Exec == "" {
		return "", nil, errors.Newf(errors.ErrInvalidInput, "task of module %s has nothing to run", t.Module)
	}
	if !t.ExpandArgs {
		return t.Exec, t.Args, nil
	}

	vars := paths.MapLookup(map[string]string{render.KeyCurrentModule: t.ModuleDir})
	args := make([]string, len(t.Args))
	for i, arg := range t.Args {
		expanded, err := paths.Expand(arg, vars)
		if err != nil {
			return "", nil, errors.Wrapf(err, errors.ErrTaskFailed, "failed to expand argument %q", arg)
		}
		args[i] = expanded
	}
	return t.Exec, args, nil
}

func logOutput(logger zerolog.Logger, label, stream, out string) {
	for _, line := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
		if line == "" {
			continue
		}
		logger.Info().Str("task", label).Str("stream", stream).Msg(fmt.Sprintf("  %s", line))
	}
}
