// Package logging provides the structured logger used by the theiacloud
// operator and CLI.
//
// It wraps Go's slog package with subsystem-first helpers so every line
// carries the component that produced it:
//
//	logging.Init(logging.FormatJSON, logging.LevelInfo, os.Stderr)
//
//	logging.Info("SessionHandler", "[%s] Session %s handled", correlationID, name)
//	logging.Error("Operator", err, "[%s] Watch failed", correlationID)
//
// Init also installs a controller-runtime logger backed by the same handler,
// so informer and cache diagnostics end up in the same stream.
//
// # Correlation ids
//
// Handler and engine log lines are prefixed with a correlation id in square
// brackets. NewCorrelationID builds one from a prefix naming the origin
// (a watch event, a timeout sweep, a launch) and a random UUID.
package logging
