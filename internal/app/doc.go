// Package app wires the operator together and runs it.
//
// Bootstrap happens in two phases. NewApplication loads and validates the
// configuration and creates every service: the cluster client, the
// template renderer, the handler set for the configured start mode, the
// engine, and the metrics server. Run then starts the long running parts
// and blocks until the context is cancelled, SIGINT or SIGTERM arrive, or
// the engine stops with an error.
//
// With leader election enabled only the replica holding the
// theia-cloud-operator-leader Lease runs the engine. The metrics server
// runs on every replica. Losing the lease is reported as an
// *operator.FatalError so the process exits and the pod is restarted as a
// follower.
package app
