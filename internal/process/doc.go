// Package process starts the external scripts that panels delegate work to.
//
// A started Cmd exposes its stdout and stderr as plain readers, a Wait that
// reports the exit status as *ExitError, and a best-effort Kill that takes
// down the whole process group on unix. Nothing here enforces a timeout;
// callers cancel by killing.
package process
