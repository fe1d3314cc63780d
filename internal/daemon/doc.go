// Package daemon composes the stores, event router, pipeline manager, and
// status API into a single lifecycle with flock-based locking to prevent
// multiple instances from processing the same inbox.
package daemon
