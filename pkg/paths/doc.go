// Package paths provides centralized path handling for dotdeploy.
// It implements XDG Base Directory specification compliance for the
// store, configuration and log locations, and the shell-style expansion
// used when resolving module source and target paths.
package paths
