// Package template renders the Kubernetes child resources of app
// definitions, sessions and workspaces.
//
// The built-in templates are embedded in the binary. An override directory
// may replace any of them by file name; it is watched and reloaded while the
// operator runs, so template changes do not require a restart.
package template
