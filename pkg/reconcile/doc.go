// Package reconcile brings one declared file in line with its declaration.
//
// Before touching anything the Reconciler classifies a file:
//
//	NotDeployed       the store has no entry for the target
//	UpToDate          the live target matches the declaration and the store
//	Stale             the target is managed but out of date
//	OperationChanged  the store recorded a different operation kind
//
// An OperationChanged target is first undeployed completely (target
// deleted, backup restored and dropped, entry removed) and then deployed
// fresh. Every first mutation of a target records a backup of what was
// there, or a dummy backup when nothing was.
package reconcile
