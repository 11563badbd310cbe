package modules

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"strconv"

	"github.com/pelletier/go-toml/v2"

	"github.com/arthur-debert/dotdeploy/pkg/errors"
	"github.com/arthur-debert/dotdeploy/pkg/types"
)

// Declaration is the parsed config.toml of a module
type Declaration struct {
	Depends     []string          `toml:"depends"`
	Files       []FileDecl        `toml:"files"`
	Tasks       []TaskDecl        `toml:"tasks"`
	Packages    []PackageDecl     `toml:"packages"`
	Messages    []MessageDecl     `toml:"messages"`
	Generate    []GenerateDecl    `toml:"generate"`
	ContextVars map[string]string `toml:"context_vars"`
}

// FileDecl declares one managed file or, with trailing *, a directory of them
type FileDecl struct {
	Target      string  `toml:"target"`
	Source      string  `toml:"source"`
	Content     *string `toml:"content"`
	Phase       string  `toml:"phase"`
	Type        string  `toml:"type"`
	If          string  `toml:"if"`
	Template    bool    `toml:"template"`
	Owner       string  `toml:"owner"`
	Group       string  `toml:"group"`
	Permissions string  `toml:"permissions"`
}

// TaskDecl declares a command run around a phase
type TaskDecl struct {
	Description string   `toml:"description"`
	Shell       string   `toml:"shell"`
	Exec        string   `toml:"exec"`
	Args        []string `toml:"args"`
	ExpandArgs  *bool    `toml:"expand_args"`
	Sudo        bool     `toml:"sudo"`
	Phase       string   `toml:"phase"`
	Hook        string   `toml:"hook"`
	If          string   `toml:"if"`
}

// PackageDecl declares packages to install
type PackageDecl struct {
	Install []string `toml:"install"`
	If      string   `toml:"if"`
}

// MessageDecl declares text shown for a command
type MessageDecl struct {
	Message   string `toml:"message"`
	OnCommand string `toml:"on_command"`
	If        string `toml:"if"`
}

// GenerateDecl declares a file assembled from every module's snippet
type GenerateDecl struct {
	Target  string `toml:"target"`
	Source  string `toml:"source"`
	Prepend string `toml:"prepend"`
	Append  string `toml:"append"`
	If      string `toml:"if"`
}

// Parse decodes and validates a declaration; origin names it in errors
func Parse(data []byte, origin string) (*Declaration, error) {
	var d Declaration
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&d); err != nil {
		var strict *toml.StrictMissingError
		if stderrors.As(err, &strict) {
			return nil, errors.Wrapf(err, errors.ErrConfigInvalid, "unknown keys in %s: %s", origin, strict.String()).
				WithDetail("path", origin)
		}
		var decErr *toml.DecodeError
		if stderrors.As(err, &decErr) {
			row, col := decErr.Position()
			return nil, errors.Wrapf(err, errors.ErrConfigParse, "invalid TOML in %s at line %d column %d", origin, row, col).
				WithDetail("path", origin)
		}
		return nil, errors.Wrapf(err, errors.ErrConfigParse, "failed to decode %s", origin).
			WithDetail("path", origin)
	}

	if err := d.normalize(origin); err != nil {
		return nil, err
	}
	return &d, nil
}

func invalid(origin, format string, args ...interface{}) error {
	return errors.Newf(errors.ErrConfigInvalid, "%s: %s", origin, fmt.Sprintf(format, args...)).
		WithDetail("path", origin)
}

// normalize validates every entry and fills in defaults
func (d *Declaration) normalize(origin string) error {
	for i := range d.Files {
		if err := d.Files[i].normalize(origin); err != nil {
			return err
		}
	}
	for i := range d.Tasks {
		if err := d.Tasks[i].normalize(origin); err != nil {
			return err
		}
	}
	for i, p := range d.Packages {
		if len(p.Install) == 0 {
			return invalid(origin, "packages entry %d installs nothing", i+1)
		}
	}
	for i := range d.Messages {
		m := &d.Messages[i]
		if m.OnCommand == "" {
			m.OnCommand = string(types.CommandDeploy)
		}
		if _, err := types.ParseCommand(m.OnCommand); err != nil {
			return invalid(origin, "message %d: %v", i+1, err)
		}
	}
	for i, g := range d.Generate {
		if g.Target == "" || g.Source == "" {
			return invalid(origin, "generate entry %d needs target and source", i+1)
		}
	}
	for i, dep := range d.Depends {
		if dep == "" {
			return invalid(origin, "depends entry %d is empty", i+1)
		}
	}
	return nil
}

func (f *FileDecl) normalize(origin string) error {
	if f.Target == "" {
		return invalid(origin, "file without target")
	}
	if f.Phase == "" {
		f.Phase = string(types.PhaseConfig)
	}
	phase, err := types.ParsePhase(f.Phase)
	if err != nil || !phase.IsFilePhase() {
		return invalid(origin, "file %s: phase must be setup or config, got %q", f.Target, f.Phase)
	}

	if f.Type == "" {
		f.Type = types.OperationLink.String()
	}
	op, err := types.ParseOperation(f.Type)
	if err != nil || op == types.OperationGenerate {
		return invalid(origin, "file %s: type must be link, copy or create, got %q", f.Target, f.Type)
	}

	switch op {
	case types.OperationLink, types.OperationCopy:
		if f.Source == "" {
			return invalid(origin, "file %s: %s requires a source", f.Target, op)
		}
		if f.Content != nil {
			return invalid(origin, "file %s: content is only valid for create", f.Target)
		}
	case types.OperationCreate:
		if f.Content == nil {
			return invalid(origin, "file %s: create requires content", f.Target)
		}
		if f.Source != "" {
			return invalid(origin, "file %s: create takes content, not a source", f.Target)
		}
	}

	if f.Template && op == types.OperationLink {
		return invalid(origin, "file %s: links cannot be templated", f.Target)
	}
	if op == types.OperationLink && f.Permissions != "" {
		return invalid(origin, "file %s: links have no permissions", f.Target)
	}
	if f.Permissions != "" {
		if _, err := ParsePermissions(f.Permissions); err != nil {
			return errors.Wrapf(err, errors.ErrInvalidPermissions, "%s: file %s", origin, f.Target)
		}
	}
	return nil
}

// Operation returns the validated operation
func (f *FileDecl) Operation() types.Operation {
	op, _ := types.ParseOperation(f.Type)
	return op
}

// PhaseValue returns the validated phase
func (f *FileDecl) PhaseValue() types.Phase {
	return types.Phase(f.Phase)
}

// ContentValue returns the literal content, empty when unset
func (f *FileDecl) ContentValue() string {
	if f.Content == nil {
		return ""
	}
	return *f.Content
}

func (t *TaskDecl) normalize(origin string) error {
	switch {
	case t.Shell == "" && t.Exec == "":
		return invalid(origin, "task needs shell or exec")
	case t.Shell != "" && t.Exec != "":
		return invalid(origin, "task %q sets both shell and exec", t.Shell)
	case t.Shell != "" && len(t.Args) > 0:
		return invalid(origin, "task %q: args are only valid with exec", t.Shell)
	}

	if t.Phase == "" {
		t.Phase = string(types.PhaseConfig)
	}
	if _, err := types.ParsePhase(t.Phase); err != nil {
		return invalid(origin, "task: %v", err)
	}
	if t.Hook == "" {
		t.Hook = string(types.HookPost)
	}
	if _, err := types.ParseHook(t.Hook); err != nil {
		return invalid(origin, "task: %v", err)
	}
	if t.ExpandArgs == nil {
		expand := true
		t.ExpandArgs = &expand
	}
	return nil
}

// ParsePermissions parses an octal mode such as "0644" or "755"
func ParsePermissions(s string) (uint32, error) {
	mode, err := strconv.ParseUint(s, 8, 32)
	if err != nil || mode > 0o7777 {
		return 0, errors.Newf(errors.ErrInvalidPermissions, "invalid permissions %q", s)
	}
	return uint32(mode), nil
}
