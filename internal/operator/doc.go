// Package operator runs the reconciliation engine of Theia Cloud.
//
// The engine keeps one watch and one cache per resource kind. On start it
// lists every app definition, workspace and session and replays an ADDED
// event for each before watching from the listed resource version, so
// handlers see the existing state before any live change.
//
// Next to the watches the engine runs three periodic tasks:
//
//   - the idle monitor ends the run when a watch stayed silent for longer
//     than the configured maximum, so that leader election can hand over
//     to a replica with fresh watches
//   - the timeout sweeper deletes sessions older than the timeout of their
//     app definition
//   - the activity tracker polls session monitors and deletes sessions that
//     stayed inactive (only when the monitor is enabled)
//
// Everything that requires a restart is returned as *FatalError. The
// package never exits the process itself.
package operator
