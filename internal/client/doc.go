// Package client wraps a controller-runtime client with the typed operations
// the operator needs on its own resources (AppDefinition, Session,
// Workspace) and on the child resources it creates for them.
//
// # Writes
//
// Spec and metadata writes go through the Edit* helpers, which re-read the
// object, apply a mutation and write it back, retrying on optimistic
// concurrency conflicts:
//
//	_, err := c.EditService(ctx, name, func(svc *corev1.Service) error {
//	    svc.Labels[naming.LabelKeyUser] = user
//	    return nil
//	})
//
// Status writes use the status subresource through the Update*Status
// helpers. The caller's object is refreshed with the stored status so later
// steps of a handler observe their own writes.
//
// # Ownership
//
// Child resources are found through their owner references
// (ListServicesOwnedBy, FindIngressOwnedBy, ...), never through local state,
// so every handler run re-derives what already exists from the cluster.
package client
