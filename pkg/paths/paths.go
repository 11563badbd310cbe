package paths

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/arthur-debert/dotdeploy/pkg/errors"
)

// Environment variable names
const (
	// EnvDataDir overrides the XDG data directory for dotdeploy
	EnvDataDir = "DOTDEPLOY_DATA_DIR"

	// EnvConfigDir overrides the XDG config directory for dotdeploy
	EnvConfigDir = "DOTDEPLOY_CONFIG_DIR"

	// EnvStateDir overrides the XDG state directory for dotdeploy
	EnvStateDir = "DOTDEPLOY_STATE_DIR"

	// EnvHome is the standard home directory variable
	EnvHome = "HOME"
)

// Fixed names inside the XDG directories
const (
	// AppDirName is the directory name used under every XDG base directory
	AppDirName = "dotdeploy"

	// ConfigFileBase is the base name of the user configuration file
	ConfigFileBase = "config"

	// StoreFileName is the name of the SQLite store
	StoreFileName = "store.sqlite"

	// ModuleConfigFile is the declaration file inside every module directory
	ModuleConfigFile = "config.toml"

	// DefaultConfigRoot holds modules/ and hosts/ unless configured otherwise
	DefaultConfigRoot = "~/.dotfiles"
)

// Paths provides centralized path management for dotdeploy
type Paths interface {
	DataDir() string
	ConfigDir() string
	StateDir() string
	CacheDir() string
	// ConfigFiles lists the candidate user configuration files in load order
	ConfigFiles() []string
	StorePath() string
	LogDir() string
}

type paths struct {
	xdgData   string
	xdgConfig string
	xdgState  string
	xdgCache  string
}

// New creates a Paths instance honoring DOTDEPLOY_* overrides
func New() (Paths, error) {
	p := &paths{}

	if dir := os.Getenv(EnvDataDir); dir != "" {
		p.xdgData = ExpandHome(dir)
	} else {
		p.xdgData = filepath.Join(xdg.DataHome, AppDirName)
	}

	if dir := os.Getenv(EnvConfigDir); dir != "" {
		p.xdgConfig = ExpandHome(dir)
	} else {
		p.xdgConfig = filepath.Join(xdg.ConfigHome, AppDirName)
	}

	if dir := os.Getenv(EnvStateDir); dir != "" {
		p.xdgState = ExpandHome(dir)
	} else {
		p.xdgState = filepath.Join(xdg.StateHome, AppDirName)
	}

	p.xdgCache = filepath.Join(xdg.CacheHome, AppDirName)

	for _, dir := range []*string{&p.xdgData, &p.xdgConfig, &p.xdgState} {
		abs, err := filepath.Abs(*dir)
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrFilesystem, "failed to get absolute path for %s", *dir)
		}
		*dir = abs
	}

	return p, nil
}

// DataDir returns the XDG data directory for dotdeploy
func (p *paths) DataDir() string {
	return p.xdgData
}

// ConfigDir returns the XDG config directory for dotdeploy
func (p *paths) ConfigDir() string {
	return p.xdgConfig
}

// StateDir returns the XDG state directory for dotdeploy
func (p *paths) StateDir() string {
	return p.xdgState
}

// CacheDir returns the XDG cache directory for dotdeploy
func (p *paths) CacheDir() string {
	return p.xdgCache
}

// ConfigFiles returns config.toml and config.yaml in the config directory
func (p *paths) ConfigFiles() []string {
	return []string{
		filepath.Join(p.xdgConfig, ConfigFileBase+".toml"),
		filepath.Join(p.xdgConfig, ConfigFileBase+".yaml"),
	}
}

// StorePath returns the default location of the SQLite store
func (p *paths) StorePath() string {
	return filepath.Join(p.xdgData, StoreFileName)
}

// LogDir returns the directory holding dotdeploy.log
func (p *paths) LogDir() string {
	return p.xdgState
}

// HomeDir returns the user's home directory with HOME as a fallback
func HomeDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		if home := os.Getenv(EnvHome); home != "" {
			return home, nil
		}
		return "", errors.Wrapf(err, errors.ErrFilesystem, "failed to get home directory")
	}
	return homeDir, nil
}
