package packages

import (
	"bufio"
	"bytes"
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/arthur-debert/dotdeploy/pkg/elevate"
	"github.com/arthur-debert/dotdeploy/pkg/errors"
	"github.com/arthur-debert/dotdeploy/pkg/filesystem"
	"github.com/arthur-debert/dotdeploy/pkg/logging"
)

// OSReleasePath identifies the running distribution
const OSReleasePath = "/etc/os-release"

var elevationTools = map[string]bool{"sudo": true, "doas": true}

var defaultInstall = map[string][]string{
	"gentoo": {"sudo", "emerge", "--verbose", "--changed-use", "--deep"},
	"ubuntu": {"sudo", "DEBIAN_FRONTEND=noninteractive", "apt-get", "install", "-q", "-y"},
	"debian": {"sudo", "DEBIAN_FRONTEND=noninteractive", "apt-get", "install", "-q", "-y"},
	"arch":   {"sudo", "pacman", "-S", "--needed", "--noconfirm"},
	"fedora": {"sudo", "dnf", "install", "-y"},
}

var defaultRemove = map[string][]string{
	"gentoo": {"sudo", "emerge", "--deselect"},
	"ubuntu": {"sudo", "apt-get", "autoremove", "--purge", "-y"},
	"debian": {"sudo", "apt-get", "autoremove", "--purge", "-y"},
	"arch":   {"sudo", "pacman", "-Rns", "--noconfirm"},
	"fedora": {"sudo", "dnf", "remove", "-y"},
}

// DefaultCommands returns the install and remove vectors known for distro
func DefaultCommands(distro string) (install, remove []string, ok bool) {
	install, ok = defaultInstall[distro]
	if !ok {
		return nil, nil, false
	}
	return install, defaultRemove[distro], true
}

// DetectDistro returns the ID field of os-release, empty when unknown
func DetectDistro(fsys filesystem.FS) string {
	data, err := fsys.ReadFile(OSReleasePath)
	if err != nil {
		return ""
	}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if v, ok := strings.CutPrefix(line, "ID="); ok {
			return strings.Trim(v, `"'`)
		}
	}
	return ""
}

// Executor runs a command without elevation
type Executor func(ctx context.Context, c elevate.Command) (*elevate.Result, error)

// Manager runs the configured package commands
type Manager struct {
	install  []string
	remove   []string
	elevator elevate.Runner
	execute  Executor
	dryRun   bool
	logger   zerolog.Logger
}

// Option configures a Manager
type Option func(*Manager)

// WithExecutor replaces the unprivileged executor
func WithExecutor(e Executor) Option {
	return func(m *Manager) { m.execute = e }
}

// WithDryRun logs commands instead of running them
func WithDryRun(dryRun bool) Option {
	return func(m *Manager) { m.dryRun = dryRun }
}

// NewManager returns a Manager for the given install and remove vectors
func NewManager(install, remove []string, elevator elevate.Runner, opts ...Option) *Manager {
	m := &Manager{
		install:  install,
		remove:   remove,
		elevator: elevator,
		execute:  elevate.Execute,
		logger:   logging.GetLogger("packages"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Install installs pkgs
func (m *Manager) Install(ctx context.Context, pkgs []string) error {
	return m.run(ctx, "install", m.install, pkgs)
}

// Remove uninstalls pkgs
func (m *Manager) Remove(ctx context.Context, pkgs []string) error {
	return m.run(ctx, "remove", m.remove, pkgs)
}

func (m *Manager) run(ctx context.Context, action string, argv, pkgs []string) error {
	if len(pkgs) == 0 {
		return nil
	}
	if len(argv) == 0 {
		return errors.Newf(errors.ErrPackageCmdMissing, "no %s_pkg_cmd configured for packages %s",
			action, strings.Join(pkgs, ", ")).
			WithDetail("packages", pkgs)
	}

	m.logger.Info().Str("action", action).Strs("packages", pkgs).Msg("Running package manager")
	if m.dryRun {
		return nil
	}

	var err error
	if elevationTools[argv[0]] && m.elevator != nil && len(argv) > 1 {
		args := append(append([]string{}, argv[1:]...), pkgs...)
		_, err = m.elevator.Run(ctx, "env", args, action+" packages "+strings.Join(pkgs, " "))
	} else {
		args := append(append([]string{}, argv[1:]...), pkgs...)
		_, err = m.execute(ctx, elevate.Command{Name: argv[0], Args: args, Interactive: true})
	}
	if err != nil {
		return errors.Wrapf(err, errors.ErrPackageCmd, "failed to %s packages %s", action, strings.Join(pkgs, ", ")).
			WithDetail("packages", pkgs)
	}
	return nil
}
