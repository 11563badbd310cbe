package config

import (
	"bytes"
	_ "embed"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	gotoml "github.com/pelletier/go-toml/v2"

	derrors "github.com/arthur-debert/dotdeploy/pkg/errors"
	"github.com/arthur-debert/dotdeploy/pkg/logging"
	"github.com/arthur-debert/dotdeploy/pkg/paths"
)

// EnvPrefix is the prefix of environment variables mapped onto config keys
const EnvPrefix = "DOTDEPLOY_"

// Supported elevation tools
const (
	SudoCmdSudo = "sudo"
	SudoCmdDoas = "doas"
)

//go:embed embedded/defaults.toml
var defaultConfig []byte

// Config is the effective dotdeploy configuration
type Config struct {
	ConfigRoot  string `koanf:"config_root" toml:"config_root"`
	ModulesRoot string `koanf:"modules_root" toml:"modules_root"`
	HostsRoot   string `koanf:"hosts_root" toml:"hosts_root"`
	Hostname    string `koanf:"hostname" toml:"hostname"`

	UseSudo          bool          `koanf:"use_sudo" toml:"use_sudo"`
	SudoCmd          string        `koanf:"sudo_cmd" toml:"sudo_cmd"`
	ElevateKeepalive time.Duration `koanf:"elevate_keepalive" toml:"elevate_keepalive"`
	DeploySysFiles   bool          `koanf:"deploy_sys_files" toml:"deploy_sys_files"`

	InstallPkgCmd  []string `koanf:"install_pkg_cmd" toml:"install_pkg_cmd"`
	RemovePkgCmd   []string `koanf:"remove_pkg_cmd" toml:"remove_pkg_cmd"`
	SkipPkgInstall bool     `koanf:"skip_pkg_install" toml:"skip_pkg_install"`

	StorePath   string `koanf:"store_path" toml:"store_path"`
	Concurrency int    `koanf:"concurrency" toml:"concurrency"`
	LogsMax     int    `koanf:"logs_max" toml:"logs_max"`

	Force     bool `koanf:"force" toml:"force"`
	NoConfirm bool `koanf:"noconfirm" toml:"noconfirm"`
	DryRun    bool `koanf:"dry_run" toml:"dry_run"`
}

// LoadOptions controls where Load reads from
type LoadOptions struct {
	// Paths supplies the XDG locations; nil means paths.New()
	Paths paths.Paths
	// File replaces the config files found in the XDG config directory
	File string
	// Overrides are applied last, keyed by config key
	Overrides map[string]interface{}
}

type rawBytesProvider struct{ bytes []byte }

func (r *rawBytesProvider) ReadBytes() ([]byte, error) { return r.bytes, nil }
func (r *rawBytesProvider) Read() (map[string]interface{}, error) {
	return nil, errors.New("not implemented")
}

// Load builds the effective configuration
func Load(opts LoadOptions) (*Config, error) {
	logger := logging.GetLogger("config")

	p := opts.Paths
	if p == nil {
		var err error
		if p, err = paths.New(); err != nil {
			return nil, err
		}
	}

	k := koanf.New(".")

	// 1. Embedded defaults
	if err := k.Load(&rawBytesProvider{bytes: defaultConfig}, toml.Parser()); err != nil {
		return nil, derrors.Wrap(err, derrors.ErrConfigLoad, "failed to load defaults")
	}

	// 2. User config file
	candidates := p.ConfigFiles()
	if opts.File != "" {
		candidates = []string{opts.File}
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			if opts.File != "" {
				return nil, derrors.Wrapf(err, derrors.ErrConfigLoad, "config file %s not readable", path)
			}
			continue
		}
		parser := koanf.Parser(toml.Parser())
		if ext := strings.ToLower(filepath.Ext(path)); ext == ".yaml" || ext == ".yml" {
			parser = yaml.Parser()
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, derrors.Wrapf(err, derrors.ErrConfigParse, "failed to load config from %s", path).
				WithDetail("path", path)
		}
		logger.Debug().Str("path", path).Msg("loaded user config")
		break
	}

	// 3. Environment
	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil)
	if err != nil {
		return nil, derrors.Wrap(err, derrors.ErrConfigLoad, "failed to load environment")
	}

	// 4. Overrides
	if len(opts.Overrides) > 0 {
		if err := k.Load(confmap.Provider(opts.Overrides, "."), nil); err != nil {
			return nil, derrors.Wrap(err, derrors.ErrConfigLoad, "failed to apply overrides")
		}
	}

	var cfg Config
	unmarshalConf := koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           &cfg,
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
		},
	}
	if err := k.UnmarshalWithConf("", &cfg, unmarshalConf); err != nil {
		return nil, derrors.Wrap(err, derrors.ErrConfigParse, "failed to unmarshal configuration")
	}

	if err := postProcess(&cfg, p); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func postProcess(cfg *Config, p paths.Paths) error {
	if cfg.ConfigRoot == "" {
		cfg.ConfigRoot = paths.DefaultConfigRoot
	}
	cfg.ConfigRoot = paths.ExpandHome(cfg.ConfigRoot)

	if cfg.ModulesRoot == "" {
		cfg.ModulesRoot = filepath.Join(cfg.ConfigRoot, "modules")
	}
	cfg.ModulesRoot = paths.ExpandHome(cfg.ModulesRoot)

	if cfg.HostsRoot == "" {
		cfg.HostsRoot = filepath.Join(cfg.ConfigRoot, "hosts")
	}
	cfg.HostsRoot = paths.ExpandHome(cfg.HostsRoot)

	if cfg.StorePath == "" {
		cfg.StorePath = p.StorePath()
	}
	cfg.StorePath = paths.ExpandHome(cfg.StorePath)

	if cfg.Hostname == "" {
		host, err := os.Hostname()
		if err != nil {
			return derrors.Wrap(err, derrors.ErrConfigInvalid, "hostname not configured and not detectable")
		}
		cfg.Hostname = host
	}

	return cfg.Validate()
}

// Validate checks values that cannot be repaired with a default
func (c *Config) Validate() error {
	switch c.SudoCmd {
	case SudoCmdSudo, SudoCmdDoas:
	default:
		return derrors.Newf(derrors.ErrConfigInvalid, "sudo_cmd must be %q or %q, got %q",
			SudoCmdSudo, SudoCmdDoas, c.SudoCmd).WithDetail("key", "sudo_cmd")
	}
	if c.Concurrency < 1 {
		return derrors.Newf(derrors.ErrConfigInvalid, "concurrency must be at least 1, got %d", c.Concurrency).
			WithDetail("key", "concurrency")
	}
	if c.LogsMax < 1 {
		return derrors.Newf(derrors.ErrConfigInvalid, "logs_max must be at least 1, got %d", c.LogsMax).
			WithDetail("key", "logs_max")
	}
	if c.ElevateKeepalive <= 0 {
		return derrors.New(derrors.ErrConfigInvalid, "elevate_keepalive must be positive").
			WithDetail("key", "elevate_keepalive")
	}
	return nil
}

// Dump renders the configuration as TOML
func (c *Config) Dump() (string, error) {
	var buf bytes.Buffer
	enc := gotoml.NewEncoder(&buf)
	if err := enc.Encode(dumpView(c)); err != nil {
		return "", derrors.Wrap(err, derrors.ErrInternal, "failed to encode configuration")
	}
	return buf.String(), nil
}

// dumpView renders durations as strings so the dump round-trips through Load
func dumpView(c *Config) map[string]interface{} {
	return map[string]interface{}{
		"config_root":       c.ConfigRoot,
		"modules_root":      c.ModulesRoot,
		"hosts_root":        c.HostsRoot,
		"hostname":          c.Hostname,
		"use_sudo":          c.UseSudo,
		"sudo_cmd":          c.SudoCmd,
		"elevate_keepalive": c.ElevateKeepalive.String(),
		"deploy_sys_files":  c.DeploySysFiles,
		"install_pkg_cmd":   nonNil(c.InstallPkgCmd),
		"remove_pkg_cmd":    nonNil(c.RemovePkgCmd),
		"skip_pkg_install":  c.SkipPkgInstall,
		"store_path":        c.StorePath,
		"concurrency":       c.Concurrency,
		"logs_max":          c.LogsMax,
		"force":             c.Force,
		"noconfirm":         c.NoConfirm,
		"dry_run":           c.DryRun,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
