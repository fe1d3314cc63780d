// Package sink persists documents that exhausted their retries or hit a
// permanent error, isolating them from the live pipeline. Parked entries are
// inert until an operator lists them and explicitly triggers a replay; the
// pipeline never pulls from the sink on its own.
package sink
