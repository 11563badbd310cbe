package phases

import (
	"sort"

	"github.com/arthur-debert/dotdeploy/pkg/types"
)

// Phase is the work of one deploy phase
type Phase struct {
	Files     []types.PhaseFile
	PreTasks  []types.Task
	PostTasks []types.Task
}

// Empty reports whether the phase has nothing to do
func (p *Phase) Empty() bool {
	return len(p.Files) == 0 && len(p.PreTasks) == 0 && len(p.PostTasks) == 0
}

func (p *Phase) addTask(t types.Task) {
	if t.Hook == types.HookPre {
		p.PreTasks = append(p.PreTasks, t)
	} else {
		p.PostTasks = append(p.PostTasks, t)
	}
}

// Plan is the merged expansion of every module in a run
type Plan struct {
	Setup  Phase
	Config Phase
	// Packages maps a module name to the packages it requests
	Packages   map[string][]string
	Generators []types.Generator
	Messages   []types.Message
	// Tasks holds every task of every phase, in module order
	Tasks []types.Task
}

// Files returns the files of both phases
func (p *Plan) Files() []types.PhaseFile {
	out := make([]types.PhaseFile, 0, len(p.Setup.Files)+len(p.Config.Files))
	out = append(out, p.Setup.Files...)
	return append(out, p.Config.Files...)
}

// Targets returns every declared target path, sorted
func (p *Plan) Targets() []string {
	files := p.Files()
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.Target)
	}
	sort.Strings(out)
	return out
}

// Phase returns the bucket of a file phase
func (p *Plan) Phase(phase types.Phase) *Phase {
	if phase == types.PhaseSetup {
		return &p.Setup
	}
	return &p.Config
}

// moduleResult is the local expansion of one module
type moduleResult struct {
	module     string
	files      []types.PhaseFile
	tasks      []types.Task
	packages   []string
	generators []types.Generator
	messages   []types.Message
}
