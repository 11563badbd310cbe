package orchestrator

import (
	"context"
	"sort"
	"strings"

	"github.com/arthur-debert/dotdeploy/pkg/errors"
	"github.com/arthur-debert/dotdeploy/pkg/store"
	"github.com/arthur-debert/dotdeploy/pkg/tasks"
	"github.com/arthur-debert/dotdeploy/pkg/types"
)

// Update runs the cached update tasks, pre hooks first, and shows the
// cached update messages. Without names every deployed module is updated.
func (e *Engine) Update(ctx context.Context, names []string) error {
	stored, err := e.storedModules(ctx)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		for name := range stored {
			names = append(names, name)
		}
		sort.Strings(names)
	}

	var unknown []string
	var cached []store.StoredTask
	var messages []types.Message
	for _, name := range names {
		if _, ok := stored[name]; !ok {
			unknown = append(unknown, name)
			continue
		}
		t, err := e.store.GetTasks(ctx, name, types.CommandUpdate)
		if err != nil {
			return err
		}
		cached = append(cached, t...)

		msgs, err := e.store.GetCachedMessages(ctx, name, types.CommandUpdate)
		if err != nil {
			return err
		}
		messages = append(messages, msgs...)
	}
	if len(unknown) > 0 {
		return errors.Newf(errors.ErrModuleNotDeployed, "modules not deployed: %s", strings.Join(unknown, ", ")).
			WithDetail("modules", unknown)
	}

	pre, post := splitHooks(cached)
	if e.opts.DryRun {
		var changes []types.Change
		for _, t := range append(pre, post...) {
			changes = append(changes, types.Change{Module: t.Module, Kind: "task", Subject: tasks.Describe(t), Action: "run"})
		}
		return e.out.RenderChanges(changes)
	}

	if err := e.runTasks(ctx, pre); err != nil {
		return err
	}
	if err := e.runTasks(ctx, post); err != nil {
		return err
	}
	return e.out.RenderMessages(messages)
}
