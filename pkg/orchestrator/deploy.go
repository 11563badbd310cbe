package orchestrator

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/arthur-debert/dotdeploy/pkg/errors"
	"github.com/arthur-debert/dotdeploy/pkg/graph"
	"github.com/arthur-debert/dotdeploy/pkg/internal/batch"
	"github.com/arthur-debert/dotdeploy/pkg/logging"
	"github.com/arthur-debert/dotdeploy/pkg/packages"
	"github.com/arthur-debert/dotdeploy/pkg/phases"
	"github.com/arthur-debert/dotdeploy/pkg/store"
	"github.com/arthur-debert/dotdeploy/pkg/tasks"
	"github.com/arthur-debert/dotdeploy/pkg/types"
)

// Component is a part of a sync that can be run on its own
type Component string

const (
	ComponentFiles    Component = "files"
	ComponentTasks    Component = "tasks"
	ComponentPackages Component = "packages"
)

// Components selects what a sync touches; an empty set selects everything
type Components map[Component]bool

// ParseComponents parses names such as "files,tasks"
func ParseComponents(values []string) (Components, error) {
	out := make(Components)
	for _, v := range values {
		for _, name := range strings.Split(v, ",") {
			name = strings.TrimSpace(strings.ToLower(name))
			switch Component(name) {
			case ComponentFiles, ComponentTasks, ComponentPackages:
				out[Component(name)] = true
			case "", "all":
			default:
				return nil, errors.Newf(errors.ErrInvalidInput, "unknown component %q (expected files, tasks or packages)", name)
			}
		}
	}
	return out, nil
}

// Has reports whether c selects comp
func (c Components) Has(comp Component) bool {
	return len(c) == 0 || c[comp]
}

// Deploy deploys the named modules, the host module and their dependencies
func (e *Engine) Deploy(ctx context.Context, names []string) error {
	names = e.withHostModule(names)
	if len(names) == 0 {
		return errors.New(errors.ErrInvalidInput, "no modules to deploy")
	}
	return e.sync(ctx, names, nil)
}

// Sync redeploys already deployed modules. Without names every manually
// deployed module is synced.
func (e *Engine) Sync(ctx context.Context, names []string, only Components) error {
	stored, err := e.storedModules(ctx)
	if err != nil {
		return err
	}

	if len(names) == 0 {
		for _, m := range stored {
			if m.Reason == types.ReasonManual {
				names = append(names, m.Name)
			}
		}
		if len(names) == 0 {
			e.logger.Info().Msg("No modules deployed, nothing to sync")
			return nil
		}
	}

	var unknown []string
	for _, name := range names {
		if _, ok := stored[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		return errors.Newf(errors.ErrModuleNotDeployed, "modules not deployed yet: %s", strings.Join(unknown, ", ")).
			WithDetail("modules", unknown)
	}
	return e.sync(ctx, names, only)
}

func (e *Engine) sync(ctx context.Context, requested []string, only Components) error {
	g, err := graph.Build(ctx, e.loader, requested, e.opts.Concurrency)
	if err != nil {
		return err
	}
	nodes, err := g.Order()
	if err != nil {
		return err
	}
	names := nodeNames(nodes)
	e.logger.Info().Strs("modules", names).Msg("Resolved modules")

	plan, err := e.processor(e.baseContext(names)).Expand(ctx, nodes)
	if err != nil {
		return err
	}

	if e.opts.DryRun {
		return e.report(ctx, nodes, plan, only)
	}

	if err := e.registerModules(ctx, nodes); err != nil {
		return err
	}
	if err := e.pruneModules(ctx, nodes); err != nil {
		return err
	}
	if only.Has(ComponentTasks) {
		if err := e.pruneTasks(ctx, names, plan.Tasks); err != nil {
			return err
		}
	}
	if only.Has(ComponentFiles) {
		if err := e.validateFiles(ctx, plan); err != nil {
			return err
		}
	}

	e.logger.Debug().Msg("Running setup phase")
	if err := e.runPhase(ctx, types.PhaseSetup, &plan.Setup, only); err != nil {
		return err
	}

	if only.Has(ComponentPackages) {
		if err := e.reconcilePackages(ctx, nodes, plan); err != nil {
			return err
		}
	}

	e.logger.Debug().Msg("Running config phase")
	if err := e.runPhase(ctx, types.PhaseConfig, &plan.Config, only); err != nil {
		return err
	}

	if only.Has(ComponentFiles) {
		if err := e.regenerate(ctx); err != nil {
			return err
		}
	}

	if err := e.handleMessages(ctx, names, plan.Messages); err != nil {
		return err
	}

	if only.Has(ComponentTasks) {
		return e.cacheTasks(ctx, plan.Tasks)
	}
	return nil
}

func nodeNames(nodes []graph.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Name()
	}
	return out
}

func (e *Engine) storedModules(ctx context.Context) (map[string]store.Module, error) {
	all, err := e.store.GetAllModules(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]store.Module, len(all))
	for _, m := range all {
		if m.Name != types.GeneratedModule {
			out[m.Name] = m
		}
	}
	return out, nil
}

// registerModules records every module of the run. Stored rows are never
// rewritten; differences are reported and an explicit request promotes.
func (e *Engine) registerModules(ctx context.Context, nodes []graph.Node) error {
	return batch.Run(ctx, len(nodes), e.opts.Concurrency, func(ctx context.Context, i int) error {
		n := nodes[i]
		old, err := e.store.GetModule(ctx, n.Name())
		if err != nil {
			return err
		}
		if old != nil {
			if old.Location != n.Module.Location {
				e.logger.Warn().
					Str("module", n.Name()).
					Str("from", old.Location).
					Str("to", n.Module.Location).
					Msg("Module location changed")
			}
			if old.Reason != n.Reason {
				e.logger.Warn().
					Str("module", n.Name()).
					Str("from", string(old.Reason)).
					Str("to", string(n.Reason)).
					Msg("Module reason changed")
			}
		}
		return e.store.AddModule(ctx, store.Module{
			Name:     n.Name(),
			Location: n.Module.Location,
			User:     e.opts.User,
			Reason:   n.Reason,
			Depends:  n.Module.Declaration.Depends,
		})
	})
}

// pruneModules removes automatic modules no manual module depends on
func (e *Engine) pruneModules(ctx context.Context, nodes []graph.Node) error {
	stored, err := e.storedModules(ctx)
	if err != nil {
		return err
	}

	current := make(map[string][]string, len(nodes))
	for _, n := range nodes {
		current[n.Name()] = n.Module.Declaration.Depends
	}

	deps := make(map[string][]string, len(stored))
	var roots []string
	for name, m := range stored {
		deps[name] = m.Depends
		if d, ok := current[name]; ok {
			deps[name] = d
		}
		if m.Reason == types.ReasonManual {
			roots = append(roots, name)
		}
	}

	reachable := graph.Reachable(roots, deps)
	var obsolete []string
	for name := range stored {
		if !reachable[name] {
			obsolete = append(obsolete, name)
		}
	}
	if len(obsolete) == 0 {
		return nil
	}
	sort.Strings(obsolete)

	err = e.gate("Automatically deployed modules are no longer needed as dependencies", "Remove these modules?", obsolete)
	if errors.IsErrorCode(err, errors.ErrAborted) {
		e.logger.Warn().Strs("modules", obsolete).Msg("Keeping obsolete modules")
		return nil
	}
	if err != nil {
		return err
	}
	return e.removeModules(ctx, obsolete)
}

// pruneTasks drops cached tasks of the run's modules whose definition is
// not produced anymore. Obsolete remove tasks run before being dropped.
func (e *Engine) pruneTasks(ctx context.Context, names []string, current []types.Task) error {
	wanted := make(map[string]bool, len(current))
	for _, t := range current {
		id, err := tasks.UUID(t)
		if err != nil {
			return err
		}
		wanted[id.String()] = true
	}

	var (
		stale    []uuid.UUID
		obsolete []store.StoredTask
	)
	for _, name := range names {
		ids, err := e.store.GetTaskUUIDs(ctx, name)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if wanted[id.String()] {
				continue
			}
			st, err := e.store.GetTask(ctx, id)
			if err != nil {
				return err
			}
			stale = append(stale, id)
			if st != nil && st.Task.Phase == types.PhaseRemove {
				obsolete = append(obsolete, *st)
			}
		}
	}

	// Hooks run while their tasks are still cached so a failure is retried
	if len(obsolete) > 0 {
		e.logger.Warn().Int("count", len(obsolete)).Msg("Tasks removed or changed, running their remove hooks")
		pre, post := splitHooks(obsolete)
		if err := e.runTasks(ctx, pre); err != nil {
			return err
		}
		if err := e.runTasks(ctx, post); err != nil {
			return err
		}
	}

	for _, id := range stale {
		if err := e.store.RemoveTask(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// validateFiles undeploys stored files whose source vanished and gates on
// drift of files this run will overwrite
func (e *Engine) validateFiles(ctx context.Context, plan *phases.Plan) error {
	files, err := e.allStoredFiles(ctx)
	if err != nil {
		return err
	}

	overwritten := make(map[string]bool)
	for _, target := range plan.Targets() {
		overwritten[target] = true
	}

	drifted, err := batch.Map(ctx, files, e.opts.Concurrency, func(ctx context.Context, f store.File) (string, error) {
		if f.Source != "" {
			ok, err := e.ops.Exists(ctx, f.Source)
			if err != nil {
				return "", err
			}
			if !ok {
				e.logger.Info().Str("source", f.Source).Str("target", f.Destination).Msg("Source vanished, undeploying")
				if err := e.reconciler.Remove(ctx, f); err != nil {
					return "", err
				}
				return "", e.ops.DeleteParents(ctx, f.Destination, e.confirmParent)
			}
		}
		if !overwritten[f.Destination] && f.Module != types.GeneratedModule {
			return "", nil
		}
		d, err := e.reconciler.Drifted(ctx, f)
		if err != nil || !d {
			return "", err
		}
		return f.Destination, nil
	})
	if err != nil {
		return err
	}

	var modified []string
	for _, target := range drifted {
		if target != "" {
			modified = append(modified, target)
		}
	}
	if len(modified) == 0 {
		return nil
	}
	sort.Strings(modified)
	return e.gate("Files were modified outside of dotdeploy; changes will be overwritten", "Continue?", modified)
}

func (e *Engine) allStoredFiles(ctx context.Context) ([]store.File, error) {
	mods, err := e.store.GetAllModules(ctx)
	if err != nil {
		return nil, err
	}
	perModule, err := batch.Map(ctx, mods, e.opts.Concurrency, func(ctx context.Context, m store.Module) ([]store.File, error) {
		return e.store.GetAllFiles(ctx, m.Name)
	})
	if err != nil {
		return nil, err
	}
	var out []store.File
	for _, files := range perModule {
		out = append(out, files...)
	}
	return out, nil
}

// runPhase runs pre tasks, deploys the phase's files concurrently and
// runs post tasks
func (e *Engine) runPhase(ctx context.Context, phase types.Phase, p *phases.Phase, only Components) error {
	defer logging.LogOperationStart(e.logger, string(phase)+" phase")()

	if only.Has(ComponentTasks) {
		if err := e.runTasks(ctx, p.PreTasks); err != nil {
			return err
		}
	}

	if only.Has(ComponentFiles) && len(p.Files) > 0 {
		results, err := e.reconciler.DeployAll(ctx, p.Files, e.opts.Concurrency)
		if err != nil {
			return err
		}
		changed := 0
		for _, r := range results {
			if r.Changed {
				changed++
			}
		}
		e.logger.Info().
			Str("phase", string(phase)).
			Int("files", len(results)).
			Int("changed", changed).
			Msg("Files deployed")
	}

	if only.Has(ComponentTasks) {
		return e.runTasks(ctx, p.PostTasks)
	}
	return nil
}

// reconcilePackages hands every module of the run to the package
// reconciler, modules without packages included so stale ones go
func (e *Engine) reconcilePackages(ctx context.Context, nodes []graph.Node, plan *phases.Plan) error {
	requested := make(map[string][]string, len(nodes))
	for _, n := range nodes {
		requested[n.Name()] = plan.Packages[n.Name()]
	}
	return packages.Reconcile(ctx, e.store, e.packages, requested, e.opts.SkipPkgInstall)
}

// regenerate rebuilds generated files from the generators of every
// stored module. Modules that fail to load or expand are skipped.
func (e *Engine) regenerate(ctx context.Context) error {
	defer logging.LogOperationStart(e.logger, "regenerate")()

	stored, err := e.storedModules(ctx)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(stored))
	for name := range stored {
		names = append(names, name)
	}
	sort.Strings(names)

	rctx := e.baseContext(names)
	proc := e.processor(rctx)

	var mu sync.Mutex
	perModule := make(map[string][]types.Generator, len(names))
	_ = batch.Run(ctx, len(names), e.opts.Concurrency, func(ctx context.Context, i int) error {
		m, err := e.loader.Load(names[i])
		if err != nil {
			e.logger.Warn().Err(err).Str("module", names[i]).Msg("Skipping generators of module")
			return nil
		}
		plan, err := proc.Expand(ctx, []graph.Node{{Module: m, Reason: stored[names[i]].Reason}})
		if err != nil {
			e.logger.Warn().Err(err).Str("module", names[i]).Msg("Skipping generators of module")
			return nil
		}
		mu.Lock()
		perModule[names[i]] = plan.Generators
		mu.Unlock()
		return nil
	})

	seen := make(map[string]bool)
	var gens []types.Generator
	for _, name := range names {
		for _, g := range perModule[name] {
			if !seen[g.Target] {
				seen[g.Target] = true
				gens = append(gens, g)
			}
		}
	}
	return e.generator.Generate(ctx, gens, rctx, e.opts.Concurrency)
}

// handleMessages shows deploy messages and replaces the cached update and
// remove messages of the run's modules
func (e *Engine) handleMessages(ctx context.Context, names []string, messages []types.Message) error {
	for _, name := range names {
		for _, cmd := range []types.Command{types.CommandUpdate, types.CommandRemove} {
			if err := e.store.RemoveCachedMessages(ctx, name, cmd); err != nil {
				return err
			}
		}
	}

	var show []types.Message
	for _, msg := range messages {
		if msg.Command == types.CommandDeploy {
			show = append(show, msg)
			continue
		}
		if err := e.store.CacheMessage(ctx, msg); err != nil {
			return err
		}
	}
	return e.out.RenderMessages(show)
}

// cacheTasks records every task of the run under its content identifier
func (e *Engine) cacheTasks(ctx context.Context, current []types.Task) error {
	for _, t := range current {
		id, err := tasks.UUID(t)
		if err != nil {
			return err
		}
		if err := e.store.AddTask(ctx, id, t); err != nil {
			return err
		}
	}
	return nil
}
