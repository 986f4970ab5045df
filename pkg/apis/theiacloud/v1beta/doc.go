// Package v1beta contains API Schema definitions for the theia.cloud v1beta API group.
//
// # API Group: theia.cloud/v1beta
//
// ## AppDefinition
//
// AppDefinition declares a launchable application template: the container
// image, the port it serves on, resource requests and limits, instance bounds
// and the inactivity policy applied to its sessions.
//
//	apiVersion: theia.cloud/v1beta
//	kind: AppDefinition
//	metadata:
//	  name: theia-cloud-demo
//	spec:
//	  name: theia-cloud-demo
//	  image: theiacloud/theia-cloud-demo:latest
//	  port: 3000
//	  uid: 101
//	  ingressname: theia-cloud-demo-ws-ingress
//	  minInstances: 0
//	  maxInstances: 10
//	  timeout:
//	    limit: 30
//	    strategy: FIXEDTIME
//
// ## Session
//
// Session is a running (or pending) instance of an AppDefinition for one
// user. A Session without a workspace is ephemeral. The operator reports the
// outcome in status.url or status.error.
//
// ## Workspace
//
// Workspace binds persistent storage to a user. The operator writes the claim
// name into spec.storage once provisioned.
//
// +kubebuilder:object:generate=true
// +groupName=theia.cloud
package v1beta
