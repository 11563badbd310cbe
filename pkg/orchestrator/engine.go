package orchestrator

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/arthur-debert/dotdeploy/pkg/errors"
	"github.com/arthur-debert/dotdeploy/pkg/filesystem"
	"github.com/arthur-debert/dotdeploy/pkg/generate"
	"github.com/arthur-debert/dotdeploy/pkg/logging"
	"github.com/arthur-debert/dotdeploy/pkg/modules"
	"github.com/arthur-debert/dotdeploy/pkg/packages"
	"github.com/arthur-debert/dotdeploy/pkg/phases"
	"github.com/arthur-debert/dotdeploy/pkg/reconcile"
	"github.com/arthur-debert/dotdeploy/pkg/render"
	"github.com/arthur-debert/dotdeploy/pkg/store"
	"github.com/arthur-debert/dotdeploy/pkg/types"
	"github.com/arthur-debert/dotdeploy/pkg/ui"
)

// TaskRunner executes module tasks
type TaskRunner interface {
	Run(ctx context.Context, t types.Task) error
	// RunAll runs tasks in order and stops at the first failure
	RunAll(ctx context.Context, tasks []types.Task) error
}

// Options are the settings of a run
type Options struct {
	ConfigRoot  string
	ModulesRoot string
	HostsRoot   string
	Hostname    string
	Home        string
	User        string

	DeploySysFiles bool
	SkipPkgInstall bool
	Concurrency    int

	// Force and NoConfirm skip every confirmation gate
	Force     bool
	NoConfirm bool
	// DryRun reports pending changes without mutating anything
	DryRun bool
}

// Deps are the collaborators of an Engine
type Deps struct {
	Store     *store.Store
	FS        filesystem.FS
	Ops       *filesystem.Ops
	Renderer  render.Renderer
	Tasks     TaskRunner
	Packages  packages.Installer
	Output    ui.Renderer
	Confirmer ui.Confirmer
}

// Engine runs deploy, sync, remove, update and status
type Engine struct {
	opts       Options
	store      *store.Store
	fs         filesystem.FS
	ops        *filesystem.Ops
	renderer   render.Renderer
	loader     *modules.Loader
	reconciler *reconcile.Reconciler
	generator  *generate.Generator
	tasks      TaskRunner
	packages   packages.Installer
	out        ui.Renderer
	confirmer  ui.Confirmer
	logger     zerolog.Logger

	// promptMu serializes prompts raised from concurrent jobs
	promptMu sync.Mutex
}

// New wires an Engine
func New(opts Options, deps Deps) *Engine {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Engine{
		opts:       opts,
		store:      deps.Store,
		fs:         deps.FS,
		ops:        deps.Ops,
		renderer:   deps.Renderer,
		loader:     modules.NewLoader(deps.FS, opts.ModulesRoot, opts.HostsRoot),
		reconciler: reconcile.New(deps.Store, deps.Ops, deps.Renderer),
		generator:  generate.New(deps.Store, deps.Ops, deps.FS, deps.Renderer, opts.ModulesRoot),
		tasks:      deps.Tasks,
		packages:   deps.Packages,
		out:        deps.Output,
		confirmer:  deps.Confirmer,
		logger:     logging.GetLogger("orchestrator"),
	}
}

// baseContext is the render context shared by every module of a run
func (e *Engine) baseContext(names []string) render.Context {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	return render.Context{
		render.KeyModules:     sorted,
		render.KeyHostname:    e.opts.Hostname,
		render.KeyUser:        e.opts.User,
		render.KeyHome:        e.opts.Home,
		render.KeyRoot:        e.opts.ConfigRoot,
		render.KeyModulesRoot: e.opts.ModulesRoot,
		render.KeyHostsRoot:   e.opts.HostsRoot,
	}
}

func (e *Engine) processor(rctx render.Context) *phases.Processor {
	return phases.NewProcessor(phases.Options{
		FS:             e.fs,
		Renderer:       e.renderer,
		Context:        rctx,
		Home:           e.opts.Home,
		DeploySysFiles: e.opts.DeploySysFiles,
		Concurrency:    e.opts.Concurrency,
	})
}

// gate asks before a destructive step. Declining aborts with ErrAborted.
func (e *Engine) gate(warning, question string, items []string) error {
	e.logger.Warn().Strs("items", items).Msg(warning)
	if e.opts.Force || e.opts.NoConfirm || e.confirmer == nil {
		return nil
	}
	ok, err := e.confirmer.Confirm(warning+"\n"+question, items)
	if err != nil {
		return err
	}
	if !ok {
		return errors.Newf(errors.ErrAborted, "aborted: %s", strings.ToLower(question))
	}
	return nil
}

// confirmParent approves deleting an empty parent directory
func (e *Engine) confirmParent(path string) bool {
	if e.opts.Force || e.opts.NoConfirm || e.confirmer == nil {
		return true
	}
	e.promptMu.Lock()
	defer e.promptMu.Unlock()
	ok, err := e.confirmer.Confirm("Directory "+path+" is empty. Delete it?", nil)
	if err != nil {
		e.logger.Warn().Err(err).Str("path", path).Msg("Keeping empty directory")
		return false
	}
	return ok
}

// withHostModule appends the host module when one exists for this host
func (e *Engine) withHostModule(names []string) []string {
	host := modules.HostModule(e.opts.Hostname)
	for _, n := range names {
		if n == host {
			return names
		}
	}
	if e.opts.Hostname != "" && e.loader.Exists(host) {
		e.logger.Debug().Str("module", host).Msg("Adding host module")
		return append(append([]string(nil), names...), host)
	}
	return names
}

// runTasks runs tasks in order and stops at the first failure
func (e *Engine) runTasks(ctx context.Context, tasks []types.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	return e.tasks.RunAll(ctx, tasks)
}

// splitHooks separates cached tasks into pre and post hooks
func splitHooks(stored []store.StoredTask) (pre, post []types.Task) {
	for _, st := range stored {
		if st.Task.Hook == types.HookPre {
			pre = append(pre, st.Task)
		} else {
			post = append(post, st.Task)
		}
	}
	return pre, post
}
