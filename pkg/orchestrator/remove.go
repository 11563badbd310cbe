package orchestrator

import (
	"context"
	"sort"
	"strings"

	"github.com/arthur-debert/dotdeploy/pkg/errors"
	"github.com/arthur-debert/dotdeploy/pkg/graph"
	"github.com/arthur-debert/dotdeploy/pkg/internal/batch"
	"github.com/arthur-debert/dotdeploy/pkg/packages"
	"github.com/arthur-debert/dotdeploy/pkg/store"
	"github.com/arthur-debert/dotdeploy/pkg/types"
)

// Remove undeploys the named modules together with the automatic
// dependencies nothing else needs
func (e *Engine) Remove(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return errors.New(errors.ErrInvalidInput, "no modules to remove")
	}
	stored, err := e.storedModules(ctx)
	if err != nil {
		return err
	}

	requested := make(map[string]bool, len(names))
	var unknown []string
	for _, name := range names {
		requested[name] = true
		if _, ok := stored[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		return errors.Newf(errors.ErrModuleNotDeployed, "modules not deployed: %s", strings.Join(unknown, ", ")).
			WithDetail("modules", unknown)
	}

	deps := make(map[string][]string, len(stored))
	var remainingRoots []string
	for name, m := range stored {
		deps[name] = m.Depends
		if m.Reason == types.ReasonManual && !requested[name] {
			remainingRoots = append(remainingRoots, name)
		}
	}
	stillNeeded := graph.Reachable(remainingRoots, deps)

	var targets, explicit, required []string
	for name := range graph.Reachable(names, deps) {
		m, ok := stored[name]
		switch {
		case !ok:
			continue
		case requested[name] && stillNeeded[name]:
			required = append(required, name)
		case !requested[name] && m.Reason == types.ReasonManual:
			explicit = append(explicit, name)
		case stillNeeded[name]:
			e.logger.Debug().Str("module", name).Msg("Dependency still needed, keeping it")
		default:
			targets = append(targets, name)
		}
	}
	sort.Strings(required)
	sort.Strings(explicit)
	sort.Strings(targets)

	if len(required) > 0 {
		return errors.Newf(errors.ErrInvalidInput, "modules still required by other deployed modules: %s",
			strings.Join(required, ", ")).WithDetail("modules", required)
	}
	if len(explicit) > 0 {
		return errors.Newf(errors.ErrInvalidInput, "modules deployed explicitly must be removed explicitly: %s",
			strings.Join(explicit, ", ")).WithDetail("modules", explicit)
	}

	if e.opts.DryRun {
		return e.reportRemoval(ctx, targets)
	}

	if err := e.gate("The following modules will be removed", "Remove these modules?", targets); err != nil {
		return err
	}
	return e.removeModules(ctx, targets)
}

// removeModules runs remove tasks, purges packages, undeploys files and
// forgets the modules, then regenerates generated files
func (e *Engine) removeModules(ctx context.Context, names []string) error {
	var pre, post []types.Task
	var messages []types.Message
	var files []store.File
	for _, name := range names {
		cached, err := e.store.GetTasks(ctx, name, types.CommandRemove)
		if err != nil {
			return err
		}
		p, q := splitHooks(cached)
		pre = append(pre, p...)
		post = append(post, q...)

		msgs, err := e.store.GetCachedMessages(ctx, name, types.CommandRemove)
		if err != nil {
			return err
		}
		messages = append(messages, msgs...)

		modFiles, err := e.store.GetAllFiles(ctx, name)
		if err != nil {
			return err
		}
		files = append(files, modFiles...)
	}

	if err := e.runTasks(ctx, pre); err != nil {
		return err
	}

	for _, name := range names {
		if err := packages.Purge(ctx, e.store, e.packages, name, e.opts.SkipPkgInstall); err != nil {
			return err
		}
	}

	err := batch.Run(ctx, len(files), e.opts.Concurrency, func(ctx context.Context, i int) error {
		if err := e.reconciler.Remove(ctx, files[i]); err != nil {
			return err
		}
		return e.ops.DeleteParents(ctx, files[i].Destination, e.confirmParent)
	})
	if err != nil {
		return err
	}

	if err := e.runTasks(ctx, post); err != nil {
		return err
	}

	for _, name := range names {
		if err := e.store.RemoveModule(ctx, name); err != nil {
			return err
		}
		e.logger.Info().Str("module", name).Msg("Module removed")
	}

	if err := e.regenerate(ctx); err != nil {
		return err
	}
	return e.out.RenderMessages(messages)
}
