// Package handler provisions the Kubernetes children of app definitions,
// sessions and workspaces.
//
// Two policies exist for app definitions and sessions. The eager policy
// pre-starts minInstances instances per app definition and hands an unused
// instance to every new session. The lazy policy creates a dedicated
// deployment and services per session. Workspaces are handled the same way
// under both policies.
//
// Handlers never trust local state. Every run lists the children that
// already exist through their owner references and only creates what is
// missing, so replaying an event after a partial failure is safe.
package handler
