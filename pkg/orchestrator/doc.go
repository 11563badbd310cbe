// Package orchestrator drives dotdeploy's commands.
//
// A deploy or sync run resolves the requested modules and their
// dependencies, records them in the store, prunes modules nothing depends
// on anymore, expands every module into a phase plan and then executes it
// stage by stage:
//
//	setup:    pre tasks -> files -> post tasks
//	packages: reconcile recorded and requested package sets
//	config:   pre tasks -> files -> post tasks
//	generate: regenerate generated files from every stored module
//	messages: show deploy messages, cache update and remove messages
//
// Every stage is a barrier; the next starts only when the previous one has
// finished. Files within a stage are deployed concurrently.
package orchestrator
