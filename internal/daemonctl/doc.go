// Package daemonctl starts, stops and restarts narratord from the CLI.
//
// The daemon is reached over its HTTP API. Stopping sends SIGTERM to the PID
// recorded in the log directory so running jobs can reach a step boundary;
// a daemon still alive after the grace period is killed.
package daemonctl
