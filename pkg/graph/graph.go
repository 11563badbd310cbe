package graph

import (
	"context"
	"sort"
	"strings"

	"github.com/arthur-debert/dotdeploy/pkg/errors"
	"github.com/arthur-debert/dotdeploy/pkg/internal/batch"
	"github.com/arthur-debert/dotdeploy/pkg/logging"
	"github.com/arthur-debert/dotdeploy/pkg/modules"
	"github.com/arthur-debert/dotdeploy/pkg/types"
)

// Source loads a module by name
type Source interface {
	Load(name string) (*modules.Module, error)
}

// Node is one module in resolution order
type Node struct {
	Module *modules.Module
	Reason types.Reason
}

// Name returns the module name
func (n Node) Name() string {
	return n.Module.Name
}

// Graph is the loaded dependency graph of a run
type Graph struct {
	modules   map[string]*modules.Module
	requested []string
	manual    map[string]bool
}

// Build loads the requested modules and their transitive dependencies,
// one dependency level at a time with at most limit loads in flight
func Build(ctx context.Context, src Source, requested []string, limit int) (*Graph, error) {
	logger := logging.GetLogger("graph")

	g := &Graph{
		modules: make(map[string]*modules.Module),
		manual:  make(map[string]bool),
	}
	for _, name := range requested {
		if !g.manual[name] {
			g.manual[name] = true
			g.requested = append(g.requested, name)
		}
	}

	pending := append([]string(nil), g.requested...)
	for len(pending) > 0 {
		loaded, err := batch.Map(ctx, pending, limit, func(_ context.Context, name string) (*modules.Module, error) {
			return src.Load(name)
		})
		if err != nil {
			return nil, err
		}

		seen := make(map[string]bool)
		var next []string
		for _, m := range loaded {
			g.modules[m.Name] = m
		}
		for _, m := range loaded {
			for _, dep := range m.Declaration.Depends {
				if _, ok := g.modules[dep]; ok || seen[dep] {
					continue
				}
				seen[dep] = true
				next = append(next, dep)
			}
		}
		sort.Strings(next)
		pending = next
	}

	logger.Debug().
		Strs("requested", g.requested).
		Int("modules", len(g.modules)).
		Msg("Dependency graph built")
	return g, nil
}

// Len returns the number of modules in the graph
func (g *Graph) Len() int {
	return len(g.modules)
}

// Module returns a loaded module by name
func (g *Graph) Module(name string) (*modules.Module, bool) {
	m, ok := g.modules[name]
	return m, ok
}

// Order returns every module with dependencies ahead of their dependents.
// Requested modules keep their relative order where dependencies allow.
func (g *Graph) Order() ([]Node, error) {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(g.modules))
	order := make([]Node, 0, len(g.modules))
	var path []string

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			start := 0
			for i, p := range path {
				if p == name {
					start = i
					break
				}
			}
			cycle := append(append([]string(nil), path[start:]...), name)
			return errors.Newf(errors.ErrDependencyCycle, "dependency cycle: %s", strings.Join(cycle, " -> ")).
				WithDetail("cycle", cycle)
		}

		m, ok := g.modules[name]
		if !ok {
			return errors.Newf(errors.ErrModuleNotFound, "module %s not loaded", name).
				WithDetail("module", name)
		}

		state[name] = visiting
		path = append(path, name)
		for _, dep := range m.Declaration.Depends {
			if err := visit(dep); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		state[name] = done

		reason := types.ReasonAutomatic
		if g.manual[name] {
			reason = types.ReasonManual
		}
		order = append(order, Node{Module: m, Reason: reason})
		return nil
	}

	for _, name := range g.requested {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// Reachable returns every name reachable from roots through deps,
// roots included
func Reachable(roots []string, deps map[string][]string) map[string]bool {
	seen := make(map[string]bool)
	stack := append([]string(nil), roots...)
	for len(stack) > 0 {
		name := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[name] {
			continue
		}
		seen[name] = true
		stack = append(stack, deps[name]...)
	}
	return seen
}
