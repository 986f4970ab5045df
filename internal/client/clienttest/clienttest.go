// Package clienttest builds operator clients backed by the controller-runtime
// fake client for use in tests.
package clienttest

import (
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	theiaclient "theiacloud/internal/client"
	"theiacloud/pkg/apis/theiacloud/v1beta"
)

// Namespace is the namespace fake clients are scoped to.
const Namespace = "theia-cloud"

// New returns a client over an in-memory cluster seeded with objs.
func New(objs ...client.Object) *theiaclient.Client {
	return theiaclient.New(Fake(objs...), Namespace)
}

// Fake returns the bare fake client, for tests that wrap it.
func Fake(objs ...client.Object) client.WithWatch {
	return fake.NewClientBuilder().
		WithScheme(theiaclient.NewScheme()).
		WithStatusSubresource(&v1beta.AppDefinition{}, &v1beta.Session{}, &v1beta.Workspace{}).
		WithObjects(objs...).
		Build()
}
