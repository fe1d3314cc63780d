// Package docstore persists document records in SQLite and owns the status
// state machine the pipeline coordinator is built on.
//
// Every status change flows through Transition, a single-record conditional
// update keyed on the expected prior status. There is no other mutual
// exclusion: concurrent duplicate deliveries race on that update and the
// loser receives services.ErrConflict, which stage executors treat as an
// idempotent skip. Records never regress except into the terminal failed
// status, and are never deleted by the pipeline itself.
package docstore
