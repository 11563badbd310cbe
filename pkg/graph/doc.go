// Package graph orders modules by their dependencies.
//
// Resolution runs in two passes. Build loads every requested module and,
// transitively, everything it depends on into an immutable graph. Order
// then walks that graph depth first and emits dependencies before their
// dependents. Requested modules are reported as manual, everything pulled
// in only as a dependency as automatic. A dependency cycle is an error.
package graph
