// Package sema resolves the input tree: it binds every name, types every
// expression, recognizes intrinsic calls, and specializes generic functions
// per concrete type-argument tuple.
//
// Check runs in phases. Declarations are processed sequentially (classes,
// then functions, then globals with their initializers, in declaration
// order), producing the shared symbol tables. Function bodies are
// independent once declarations exist, so they are checked in parallel;
// each body gets its own side tables (expression types, identifier
// bindings, call targets) so downstream phases never touch the tree
// itself. Calls to generic functions intern an instantiation into a shared
// cache; newly discovered instantiations are checked in waves until no new
// ones appear.
//
// All diagnostics are accumulated across the whole program before the
// caller decides to stop. Check only fails outright on context
// cancellation.
package sema
