// Package preflight provides readiness checks for the filesystem paths and
// external services narrator depends on.
//
// These checks run in two contexts:
//   - The worker calls CheckDiskSpace before step 1 and refuses to start a
//     run on a nearly full disk.
//   - "narrator status" and the daemon's /api/health endpoint call RunAll to
//     display workspace, model endpoint and tool health.
package preflight
