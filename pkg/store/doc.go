// Package store persists dotdeploy's managed state in SQLite.
//
// The store records deployed modules, the files they own, backups of
// whatever occupied a target before it was first touched, the packages
// each module installed, and cached tasks and messages keyed by module
// and command. Every method is a self-contained query; no transaction
// spans calls, so callers may retry any of them.
//
// Queries go through bun with the SQLite dialect over the cgo-free
// modernc.org/sqlite driver. The database runs in WAL mode with normal
// synchronous durability.
package store
