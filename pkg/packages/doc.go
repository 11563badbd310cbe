// Package packages installs and removes the system packages modules ask for.
//
// Commands are argument vectors from configuration with package names
// appended. A vector led by sudo or doas runs through the elevation
// session instead of spawning the tool directly. When no command is
// configured, defaults are picked from the ID in /etc/os-release.
package packages
