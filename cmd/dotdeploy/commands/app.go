package commands

import (
	"context"
	"fmt"
	"os"
	"os/user"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/arthur-debert/dotdeploy/pkg/config"
	"github.com/arthur-debert/dotdeploy/pkg/elevate"
	"github.com/arthur-debert/dotdeploy/pkg/errors"
	"github.com/arthur-debert/dotdeploy/pkg/filesystem"
	"github.com/arthur-debert/dotdeploy/pkg/orchestrator"
	"github.com/arthur-debert/dotdeploy/pkg/packages"
	"github.com/arthur-debert/dotdeploy/pkg/paths"
	"github.com/arthur-debert/dotdeploy/pkg/render"
	"github.com/arthur-debert/dotdeploy/pkg/store"
	"github.com/arthur-debert/dotdeploy/pkg/tasks"
	"github.com/arthur-debert/dotdeploy/pkg/ui"
)

// globals holds the persistent flags and what PersistentPreRunE derives from them
type globals struct {
	verbosity      int
	dryRun         bool
	force          bool
	noConfirm      bool
	skipPkgInstall bool
	configFile     string
	format         string

	cfg *config.Config
}

// overrides maps the flags given on the command line onto config keys
func (g *globals) overrides(cmd *cobra.Command) map[string]interface{} {
	flags := cmd.Flags()
	out := map[string]interface{}{}
	if flags.Changed("dry-run") {
		out["dry_run"] = g.dryRun
	}
	if flags.Changed("force") {
		out["force"] = g.force
	}
	if flags.Changed("noconfirm") {
		out["noconfirm"] = g.noConfirm
	}
	if flags.Changed("skip-pkg-install") {
		out["skip_pkg_install"] = g.skipPkgInstall
	}
	return out
}

// load reads the configuration and sets up logging from it
func (g *globals) load(cmd *cobra.Command) error {
	p, err := paths.New()
	if err != nil {
		return err
	}
	cfg, err := config.Load(config.LoadOptions{
		Paths:     p,
		File:      g.configFile,
		Overrides: g.overrides(cmd),
	})
	if err != nil {
		return err
	}
	g.cfg = cfg
	return nil
}

// app is the wired dependency graph behind one command run
type app struct {
	cfg      *config.Config
	store    *store.Store
	elevator *elevate.Manager
	engine   *orchestrator.Engine
	output   ui.Renderer
	format   ui.Format
}

func currentUser() string {
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return os.Getenv("USER")
}

// outputFormat resolves the --format flag against the command's stdout
func outputFormat(cmd *cobra.Command, flag string) (ui.Format, error) {
	format, err := ui.ParseFormat(flag)
	if err != nil {
		return format, err
	}
	if f, ok := cmd.OutOrStdout().(*os.File); ok {
		return format.Resolve(f), nil
	}
	if format == ui.FormatAuto {
		return ui.FormatText, nil
	}
	return format, nil
}

func openApp(ctx context.Context, cmd *cobra.Command, g *globals) (*app, error) {
	cfg := g.cfg
	format, err := outputFormat(cmd, g.format)
	if err != nil {
		return nil, err
	}
	output, err := ui.NewRenderer(format, cmd.OutOrStdout())
	if err != nil {
		return nil, err
	}

	tool, err := elevate.ToolByName(cfg.SudoCmd)
	if err != nil {
		return nil, err
	}
	elevator := elevate.NewManager(tool,
		elevate.WithEnabled(cfg.UseSudo),
		elevate.WithKeepalive(cfg.ElevateKeepalive),
	)

	ops := filesystem.NewOps(elevator)
	st, err := store.Open(ctx, cfg.StorePath, ops)
	if err != nil {
		_ = elevator.Close(ctx)
		return nil, err
	}

	fsys := filesystem.NewOS()
	install, remove := cfg.InstallPkgCmd, cfg.RemovePkgCmd
	if len(install) == 0 {
		distro := packages.DetectDistro(fsys)
		if defInstall, defRemove, ok := packages.DefaultCommands(distro); ok {
			install = defInstall
			if len(remove) == 0 {
				remove = defRemove
			}
			log.Debug().Str("distro", distro).Msg("Using default package commands")
		}
	}

	home, err := paths.HomeDir()
	if err != nil {
		_ = st.Close(ctx)
		_ = elevator.Close(ctx)
		return nil, err
	}

	console := ui.NewConsole(cfg.NoConfirm)
	console.Out = cmd.ErrOrStderr()
	if in := cmd.InOrStdin(); in != os.Stdin {
		console.In = in
		console.Interactive = false
	}

	engine := orchestrator.New(orchestrator.Options{
		ConfigRoot:     cfg.ConfigRoot,
		ModulesRoot:    cfg.ModulesRoot,
		HostsRoot:      cfg.HostsRoot,
		Hostname:       cfg.Hostname,
		Home:           home,
		User:           currentUser(),
		DeploySysFiles: cfg.DeploySysFiles,
		SkipPkgInstall: cfg.SkipPkgInstall,
		Concurrency:    cfg.Concurrency,
		Force:          cfg.Force,
		NoConfirm:      cfg.NoConfirm,
		DryRun:         cfg.DryRun,
	}, orchestrator.Deps{
		Store:     st,
		FS:        fsys,
		Ops:       ops,
		Renderer:  render.New(),
		Tasks:     tasks.NewRunner(elevator, tasks.WithDryRun(cfg.DryRun)),
		Packages:  packages.NewManager(install, remove, elevator, packages.WithDryRun(cfg.DryRun)),
		Output:    output,
		Confirmer: console,
	})

	return &app{
		cfg:      cfg,
		store:    st,
		elevator: elevator,
		engine:   engine,
		output:   output,
		format:   format,
	}, nil
}

// Close releases the store, compacts it and ends the elevation session
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if err := a.store.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf(MsgErrCloseStore, err))
	} else if !a.cfg.DryRun {
		if err := store.Compact(ctx, a.cfg.StorePath); err != nil {
			log.Warn().Err(err).Msg("Store compaction failed")
		}
	}
	if err := a.elevator.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Aggregate(errs)
}

// withEngine opens the app, runs fn and always closes it again
func withEngine(cmd *cobra.Command, g *globals, errFormat string, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := openApp(ctx, cmd, g)
	if err != nil {
		return err
	}
	runErr := fn(ctx, a)
	closeErr := a.Close(ctx)
	if runErr != nil {
		if errors.IsErrorCode(runErr, errors.ErrAborted) {
			return runErr
		}
		return fmt.Errorf(errFormat, runErr)
	}
	if closeErr != nil {
		return closeErr
	}
	if a.cfg.DryRun && (a.format == ui.FormatText || a.format == ui.FormatTerminal) {
		fmt.Fprintln(cmd.ErrOrStderr(), MsgDryRunNotice)
	}
	return nil
}
