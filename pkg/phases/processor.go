package phases

import (
	"context"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/arthur-debert/dotdeploy/pkg/errors"
	"github.com/arthur-debert/dotdeploy/pkg/filesystem"
	"github.com/arthur-debert/dotdeploy/pkg/graph"
	"github.com/arthur-debert/dotdeploy/pkg/internal/batch"
	"github.com/arthur-debert/dotdeploy/pkg/logging"
	"github.com/arthur-debert/dotdeploy/pkg/modules"
	"github.com/arthur-debert/dotdeploy/pkg/paths"
	"github.com/arthur-debert/dotdeploy/pkg/render"
	"github.com/arthur-debert/dotdeploy/pkg/types"
)

// dotEscape in a target stands for a literal dot
const dotEscape = "##dot##"

// Options configures a Processor
type Options struct {
	FS       filesystem.FS
	Renderer render.Renderer
	// Context is the render context shared by every module
	Context render.Context
	// Home is the user's home directory
	Home string
	// DeploySysFiles allows targets outside Home
	DeploySysFiles bool
	Concurrency    int
}

// Processor expands modules into a Plan
type Processor struct {
	opts   Options
	logger zerolog.Logger
}

// NewProcessor returns a Processor
func NewProcessor(opts Options) *Processor {
	if opts.Context == nil {
		opts.Context = render.Context{}
	}
	return &Processor{
		opts:   opts,
		logger: logging.GetLogger("phases"),
	}
}

// ModuleContext returns the render context of one module
func (p *Processor) ModuleContext(m *modules.Module) render.Context {
	return p.opts.Context.
		With(m.Declaration.ContextVars).
		With(map[string]string{render.KeyCurrentModule: m.Location})
}

// Expand expands every module concurrently and merges the results. Every
// module is expanded even when others fail; the failures are aggregated.
func (p *Processor) Expand(ctx context.Context, nodes []graph.Node) (*Plan, error) {
	results, err := batch.Map(ctx, nodes, p.opts.Concurrency, func(_ context.Context, n graph.Node) (*moduleResult, error) {
		return p.expandModule(n.Module)
	})
	if err != nil {
		return nil, err
	}
	return p.merge(results)
}

func (p *Processor) expandModule(m *modules.Module) (*moduleResult, error) {
	mctx := p.ModuleContext(m)
	decl := m.Declaration.Filter(p.opts.Renderer, mctx)
	vars := paths.MapLookup(mctx.Strings())

	res := &moduleResult{module: m.Name}

	for i := range decl.Files {
		files, err := p.expandFile(m, &decl.Files[i], vars, mctx)
		if err != nil {
			return nil, errors.Wrapf(err, errors.GetErrorCode(err), "module %s", m.Name).
				WithDetail("module", m.Name)
		}
		res.files = append(res.files, files...)
	}

	for _, t := range decl.Tasks {
		res.tasks = append(res.tasks, types.Task{
			Module:      m.Name,
			ModuleDir:   m.Location,
			Description: t.Description,
			Shell:       t.Shell,
			Exec:        t.Exec,
			Args:        t.Args,
			ExpandArgs:  *t.ExpandArgs,
			Sudo:        t.Sudo,
			Phase:       types.Phase(t.Phase),
			Hook:        types.Hook(t.Hook),
		})
	}

	seen := make(map[string]bool)
	for _, pkg := range decl.Packages {
		for _, name := range pkg.Install {
			if !seen[name] {
				seen[name] = true
				res.packages = append(res.packages, name)
			}
		}
	}

	for _, g := range decl.Generate {
		target, err := p.expandTarget(g.Target, vars)
		if err != nil {
			return nil, errors.Wrapf(err, errors.GetErrorCode(err), "module %s: generator", m.Name).
				WithDetail("module", m.Name)
		}
		res.generators = append(res.generators, types.Generator{
			Module:  m.Name,
			Target:  target,
			Source:  g.Source,
			Prepend: g.Prepend,
			Append:  g.Append,
		})
	}

	for _, msg := range decl.Messages {
		text, err := p.opts.Renderer.Render(msg.Message, mctx)
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrTemplate, "module %s: message", m.Name).
				WithDetail("module", m.Name)
		}
		res.messages = append(res.messages, types.Message{
			Module:  m.Name,
			Command: types.Command(msg.OnCommand),
			Text:    text,
		})
	}

	p.logger.Debug().
		Str("module", m.Name).
		Int("files", len(res.files)).
		Int("tasks", len(res.tasks)).
		Int("packages", len(res.packages)).
		Msg("Module expanded")
	return res, nil
}

func (p *Processor) expandFile(m *modules.Module, f *modules.FileDecl, vars paths.Lookup, mctx render.Context) ([]types.PhaseFile, error) {
	target, err := p.expandTarget(f.Target, vars)
	if err != nil {
		return nil, err
	}

	var source string
	if f.Source != "" {
		source, err = expandSource(f.Source, m.Location, vars)
		if err != nil {
			return nil, err
		}
	}

	base := types.PhaseFile{
		Module:      m.Name,
		Source:      source,
		Target:      target,
		Content:     f.ContentValue(),
		Operation:   f.Operation(),
		Phase:       f.PhaseValue(),
		Template:    f.Template,
		Owner:       f.Owner,
		Group:       f.Group,
		Permissions: f.Permissions,
		Vars:        mctx,
	}

	pairs, err := p.expandWildcard(source, target)
	if err != nil {
		return nil, err
	}
	if pairs == nil {
		return []types.PhaseFile{base}, nil
	}

	out := make([]types.PhaseFile, 0, len(pairs))
	for _, pair := range pairs {
		pf := base
		pf.Source, pf.Target = pair[0], pair[1]
		out = append(out, pf)
	}
	return out, nil
}

// expandSource resolves source against the module directory
func expandSource(source, location string, vars paths.Lookup) (string, error) {
	expanded, err := paths.Expand(source, vars)
	if err != nil {
		return "", err
	}
	if filepath.IsAbs(expanded) {
		return filepath.Clean(expanded), nil
	}
	return filepath.Join(location, expanded), nil
}

// expandTarget resolves target, which must end up absolute
func (p *Processor) expandTarget(target string, vars paths.Lookup) (string, error) {
	expanded, err := paths.Expand(target, vars)
	if err != nil {
		return "", err
	}
	expanded = strings.ReplaceAll(expanded, dotEscape, ".")
	if !filepath.IsAbs(expanded) {
		return "", errors.Newf(errors.ErrPathInvalid, "invalid target %s: %s is not absolute", target, expanded).
			WithDetail("target", target)
	}
	expanded = filepath.Clean(expanded)

	if !p.opts.DeploySysFiles && p.opts.Home != "" && !paths.IsUnder(expanded, p.opts.Home) {
		return "", errors.Newf(errors.ErrPathInvalid, "%s is outside of your home directory and deploy_sys_files is disabled", expanded).
			WithDetail("target", expanded)
	}
	return expanded, nil
}

func isWildcard(path string) bool {
	return strings.HasSuffix(path, "*")
}

// expandWildcard returns the source/target pairs of a wildcard
// declaration, or nil when neither side is a wildcard
func (p *Processor) expandWildcard(source, target string) ([][2]string, error) {
	srcWild, tgtWild := isWildcard(source), isWildcard(target)
	switch {
	case !srcWild && !tgtWild:
		return nil, nil
	case srcWild != tgtWild:
		return nil, errors.Newf(errors.ErrWildcardInvalid,
			"both source and target must end with '*' for wildcard expansion: source=%s, target=%s", source, target).
			WithDetail("source", source).
			WithDetail("target", target)
	case filepath.Base(source) != "*" || filepath.Base(target) != "*":
		return nil, errors.Newf(errors.ErrWildcardInvalid,
			"wildcards must be a whole path component: source=%s, target=%s", source, target)
	}

	srcDir, tgtDir := filepath.Dir(source), filepath.Dir(target)
	entries, err := p.opts.FS.ReadDir(srcDir)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrWildcardInvalid, "failed to read source directory %s", srcDir).
			WithDetail("source", srcDir)
	}

	var pairs [][2]string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		pairs = append(pairs, [2]string{
			filepath.Join(srcDir, e.Name()),
			filepath.Join(tgtDir, e.Name()),
		})
	}
	if len(pairs) == 0 {
		return nil, errors.Newf(errors.ErrWildcardInvalid, "no files found in %s", srcDir).
			WithDetail("source", srcDir)
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i][0] < pairs[j][0] })
	return pairs, nil
}

// merge folds module results in module order and rejects targets
// declared more than once
func (p *Processor) merge(results []*moduleResult) (*Plan, error) {
	plan := &Plan{Packages: make(map[string][]string)}
	claimed := make(map[string]string)
	var errs []error

	claim := func(target, module string) {
		if _, ok := claimed[target]; ok {
			errs = append(errs, errors.Newf(errors.ErrDeclaredTwice, "%s declared multiple times", target).
				WithDetail("target", target).
				WithDetail("modules", []string{claimed[target], module}))
			return
		}
		claimed[target] = module
	}

	for _, r := range results {
		for _, f := range r.files {
			claim(f.Target, r.module)
			bucket := plan.Phase(f.Phase)
			bucket.Files = append(bucket.Files, f)
		}
		for _, t := range r.tasks {
			plan.Tasks = append(plan.Tasks, t)
			if t.Phase.IsFilePhase() {
				plan.Phase(t.Phase).addTask(t)
			}
		}
		if len(r.packages) > 0 {
			plan.Packages[r.module] = r.packages
		}
		plan.Messages = append(plan.Messages, r.messages...)
	}

	generated := make(map[string]bool)
	for _, r := range results {
		for _, g := range r.generators {
			if owner, ok := claimed[g.Target]; ok {
				errs = append(errs, errors.Newf(errors.ErrDeclaredTwice, "%s declared multiple times", g.Target).
					WithDetail("target", g.Target).
					WithDetail("modules", []string{owner, r.module}))
				continue
			}
			if generated[g.Target] {
				p.logger.Debug().Str("target", g.Target).Str("module", r.module).Msg("Generator already declared")
				continue
			}
			generated[g.Target] = true
			plan.Generators = append(plan.Generators, g)
		}
	}

	if err := errors.Aggregate(errs); err != nil {
		return nil, err
	}
	return plan, nil
}
