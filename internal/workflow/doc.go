// Package workflow runs the document-to-dialogue pipeline as a jobs.WorkerFunc.
//
// A run has three fixed steps (extract and clean, write the script, rewrite
// it for speech through the overlap engine) plus optional audio synthesis and
// summary artifacts. Each step writes its output under the workspace
// directory before the Job advances, so a failed run leaves every completed
// step's files behind. The Worker checks for cancellation between steps and
// records one history entry per run through its HistoryRecorder.
//
// Hint maps common failure messages to advice shown next to the error.
package workflow
