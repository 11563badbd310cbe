// Package filesystem provides filesystem access for dotdeploy.
//
// FS is a small read/write abstraction with OS and afero implementations,
// used wherever declarations are read so tests can run in memory. Ops is
// the deployment layer: every call tries the unprivileged path first and
// retries through an elevation Runner when the OS answers permission
// denied.
package filesystem
