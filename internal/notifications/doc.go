// Package notifications delivers user-facing pipeline outcome messages over
// ntfy. The service is a boundary: stages publish events and payloads, and
// delivery failures are tagged for the caller's retry policy rather than
// retried here.
package notifications
