// Package launch lets request/response callers treat the asynchronous
// operator as synchronous.
//
// A launch gets or creates a Session or Workspace and blocks until the
// operator wrote a terminal outcome: a url or an error for sessions, a
// storage name or an error for workspaces. Waiters are registered as
// (predicate, channel) pairs in a registry that one informer per kind
// feeds with every observed version, so concurrent launches share a single
// watch. Concurrent launches of the same name are collapsed into one.
//
// If no outcome arrives in time the launch itself writes the launch
// timeout error onto the resource. This is the only place outside the
// operator that writes terminal fields.
package launch
