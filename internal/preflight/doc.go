// Package preflight provides readiness checks for the filesystem paths and
// external services docpipe depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll at startup and logs failures before the lanes
//     begin processing, so a misconfigured inbox surfaces immediately.
//   - The CLI "docpipe status" command uses the individual check functions to
//     display environment health.
//
// Checks for optional features are skipped when the feature is not configured.
package preflight
