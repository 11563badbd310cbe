// Package config loads dotdeploy's runtime configuration.
//
// Values are layered with koanf, later sources overriding earlier ones:
//
//  1. embedded defaults (embedded/defaults.toml)
//  2. the user file config.toml or config.yaml in the XDG config directory
//  3. DOTDEPLOY_* environment variables
//  4. explicit overrides, usually command-line flags
//
// The result is decoded into Config and post-processed so every path is
// absolute and every derived default is filled in.
package config
