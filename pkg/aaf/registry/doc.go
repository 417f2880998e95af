// Package registry provides a generic, thread-safe, insertion-ordered
// registry for values indexed by key.
//
// It backs the node registry of package aaf and the workflow catalog of
// the HTTP service. Keys are reported in first-registration order, which
// gives listings a stable, declaration-like order:
//
//	r := registry.New[string, int]()
//	r.Register("b", 2)
//	r.Register("a", 1)
//	r.Register("b", 3) // replaces the value, keeps position
//	r.Keys()           // [b a]
//
// All methods are safe for concurrent use. Range and Snapshot operate on a
// copy, so callers may mutate the registry while iterating.
package registry
