// Package types defines the domain values shared across dotdeploy:
// operation kinds, module reasons, deployment phases and hooks, and the
// phase-scoped work items (files, tasks, packages, generators, messages)
// produced by module expansion and consumed by the reconciler and the
// orchestrator.
package types
