// Package main hosts the docpipe CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into document
// store queries, retry and replay operations against the isolation sink, and
// configuration scaffolding. Commands open the shared SQLite databases
// directly, so they work whether or not the daemon is running.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
