// Package tasks runs module tasks and identifies them by content.
//
// A task's UUID is derived from its full definition, so editing a task in
// a module yields a new identifier and the cached old one becomes
// obsolete.
package tasks
