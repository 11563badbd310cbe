package orchestrator

import (
	"context"
	"sort"

	"github.com/arthur-debert/dotdeploy/pkg/graph"
	"github.com/arthur-debert/dotdeploy/pkg/phases"
	"github.com/arthur-debert/dotdeploy/pkg/reconcile"
	"github.com/arthur-debert/dotdeploy/pkg/tasks"
	"github.com/arthur-debert/dotdeploy/pkg/types"
)

// report renders what a sync would do without changing anything
func (e *Engine) report(ctx context.Context, nodes []graph.Node, plan *phases.Plan, only Components) error {
	var changes []types.Change
	add := func(module, kind, subject, action string) {
		changes = append(changes, types.Change{Module: module, Kind: kind, Subject: subject, Action: action})
	}

	for _, n := range nodes {
		m, err := e.store.GetModule(ctx, n.Name())
		if err != nil {
			return err
		}
		if m == nil {
			add(n.Name(), "module", n.Name(), "register "+string(n.Reason))
		}
	}

	if only.Has(ComponentFiles) {
		for _, f := range plan.Files() {
			state, err := e.reconciler.State(ctx, f)
			if err != nil {
				return err
			}
			if state != reconcile.UpToDate {
				add(f.Module, "file", f.Target, state.String())
			}
		}
		for _, g := range plan.Generators {
			add(g.Module, "generate", g.Target, "write")
		}
	}

	if only.Has(ComponentTasks) {
		for _, t := range plan.Tasks {
			if t.Phase.IsFilePhase() {
				add(t.Module, "task", tasks.Describe(t), "run")
			}
		}
	}

	if only.Has(ComponentPackages) {
		for _, n := range nodes {
			storedPkgs, err := e.store.GetModulePackages(ctx, n.Name())
			if err != nil {
				return err
			}
			for _, p := range missing(plan.Packages[n.Name()], storedPkgs) {
				add(n.Name(), "package", p, "install")
			}
			for _, p := range missing(storedPkgs, plan.Packages[n.Name()]) {
				add(n.Name(), "package", p, "remove")
			}
		}
	}

	sort.SliceStable(changes, func(i, j int) bool { return changes[i].Module < changes[j].Module })
	return e.out.RenderChanges(changes)
}

// reportRemoval renders what removing modules would do
func (e *Engine) reportRemoval(ctx context.Context, names []string) error {
	var changes []types.Change
	for _, name := range names {
		changes = append(changes, types.Change{Module: name, Kind: "module", Subject: name, Action: "remove"})
		files, err := e.store.GetAllFiles(ctx, name)
		if err != nil {
			return err
		}
		for _, f := range files {
			changes = append(changes, types.Change{Module: name, Kind: "file", Subject: f.Destination, Action: "remove"})
		}
		pkgs, err := e.store.GetModulePackages(ctx, name)
		if err != nil {
			return err
		}
		for _, p := range pkgs {
			changes = append(changes, types.Change{Module: name, Kind: "package", Subject: p, Action: "remove"})
		}
	}
	return e.out.RenderChanges(changes)
}

// missing returns the elements of a not in b
func missing(a, b []string) []string {
	in := make(map[string]bool, len(b))
	for _, s := range b {
		in[s] = true
	}
	var out []string
	for _, s := range a {
		if !in[s] {
			out = append(out, s)
		}
	}
	return out
}
