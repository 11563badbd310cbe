package modules

import (
	stderrors "errors"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/arthur-debert/dotdeploy/pkg/errors"
	"github.com/arthur-debert/dotdeploy/pkg/filesystem"
	"github.com/arthur-debert/dotdeploy/pkg/logging"
	"github.com/arthur-debert/dotdeploy/pkg/paths"
)

// HostsPrefix marks module names resolved against hosts_root
const HostsPrefix = "hosts"

// Module is a located, parsed module
type Module struct {
	Name        string
	Location    string
	Declaration *Declaration
}

// Loader locates and parses modules
type Loader struct {
	fs          filesystem.FS
	modulesRoot string
	hostsRoot   string
	logger      zerolog.Logger
}

// NewLoader returns a Loader reading from fsys
func NewLoader(fsys filesystem.FS, modulesRoot, hostsRoot string) *Loader {
	return &Loader{
		fs:          fsys,
		modulesRoot: modulesRoot,
		hostsRoot:   hostsRoot,
		logger:      logging.GetLogger("modules.loader"),
	}
}

// Locate returns the directory of the named module
func (l *Loader) Locate(name string) string {
	if name == HostsPrefix || strings.HasPrefix(name, HostsPrefix+"/") {
		rest := strings.TrimPrefix(strings.TrimPrefix(name, HostsPrefix), "/")
		return filepath.Join(l.hostsRoot, rest)
	}
	return filepath.Join(l.modulesRoot, name)
}

// HostModule returns the module name of a host's own module
func HostModule(hostname string) string {
	return HostsPrefix + "/" + hostname
}

// Exists reports whether the named module has a declaration
func (l *Loader) Exists(name string) bool {
	info, err := l.fs.Stat(filepath.Join(l.Locate(name), paths.ModuleConfigFile))
	return err == nil && !info.IsDir()
}

// Load reads and parses the named module
func (l *Loader) Load(name string) (*Module, error) {
	if err := validName(name); err != nil {
		return nil, err
	}

	location := l.Locate(name)
	file := filepath.Join(location, paths.ModuleConfigFile)
	data, err := l.fs.ReadFile(file)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, errors.Newf(errors.ErrModuleNotFound, "module %s not found", name).
				WithDetail("module", name).
				WithDetail("path", file)
		}
		return nil, errors.Wrapf(err, errors.ErrConfigLoad, "failed to read %s", file).
			WithDetail("module", name)
	}

	decl, err := Parse(data, file)
	if err != nil {
		return nil, err
	}

	l.logger.Debug().
		Str("module", name).
		Str("location", location).
		Int("files", len(decl.Files)).
		Int("tasks", len(decl.Tasks)).
		Strs("depends", decl.Depends).
		Msg("Module loaded")

	return &Module{Name: name, Location: location, Declaration: decl}, nil
}

// List returns the names of every module under modules_root
func (l *Loader) List() ([]string, error) {
	entries, err := l.fs.ReadDir(l.modulesRoot)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, errors.ErrFilesystem, "failed to list %s", l.modulesRoot)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if l.Exists(e.Name()) {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

func validName(name string) error {
	if name == "" {
		return errors.New(errors.ErrInvalidInput, "module name is empty")
	}
	clean := filepath.Clean(name)
	if filepath.IsAbs(name) || clean != name || clean == ".." || strings.HasPrefix(clean, "../") {
		return errors.Newf(errors.ErrInvalidInput, "invalid module name %q", name).
			WithDetail("module", name)
	}
	return nil
}
