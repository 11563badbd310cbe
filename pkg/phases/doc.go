// Package phases expands module declarations into phase work lists.
//
// Every module is expanded on its own goroutine into a local result:
// source and target paths are resolved, wildcards enumerated, conditions
// evaluated and tasks, packages, generators and messages collected. The
// coordinator merges the local results once every module has finished and
// only then checks that no target is declared twice, so no state is shared
// while modules expand.
//
// Files and tasks are bucketed into the setup and config phases. Tasks of
// the update and remove phases are only cached for later commands.
package phases
