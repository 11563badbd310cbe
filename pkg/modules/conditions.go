package modules

import (
	"github.com/arthur-debert/dotdeploy/pkg/logging"
	"github.com/arthur-debert/dotdeploy/pkg/render"
)

// Filter returns a copy of d holding only the entries whose "if" condition
// holds in ctx. A condition that fails to evaluate drops its entry.
func (d *Declaration) Filter(r render.Renderer, ctx render.Context) *Declaration {
	logger := logging.GetLogger("modules.conditions")

	keep := func(kind, name, cond string) bool {
		if cond == "" {
			return true
		}
		ok, err := render.EvalCondition(r, cond, ctx)
		if err != nil {
			logger.Warn().Err(err).
				Str("kind", kind).
				Str("entry", name).
				Str("condition", cond).
				Msg("Condition failed to evaluate, skipping entry")
			return false
		}
		if !ok {
			logger.Debug().Str("kind", kind).Str("entry", name).Msg("Condition false, skipping entry")
		}
		return ok
	}

	out := &Declaration{
		Depends:     append([]string(nil), d.Depends...),
		ContextVars: d.ContextVars,
	}
	for _, f := range d.Files {
		if keep("file", f.Target, f.If) {
			out.Files = append(out.Files, f)
		}
	}
	for _, t := range d.Tasks {
		name := t.Description
		if name == "" {
			name = t.Shell + t.Exec
		}
		if keep("task", name, t.If) {
			out.Tasks = append(out.Tasks, t)
		}
	}
	for _, p := range d.Packages {
		if len(p.Install) > 0 && keep("packages", p.Install[0], p.If) {
			out.Packages = append(out.Packages, p)
		}
	}
	for _, m := range d.Messages {
		if keep("message", m.OnCommand, m.If) {
			out.Messages = append(out.Messages, m)
		}
	}
	for _, g := range d.Generate {
		if keep("generate", g.Target, g.If) {
			out.Generate = append(out.Generate, g)
		}
	}
	return out
}
