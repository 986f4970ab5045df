package client_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"

	"theiacloud/internal/client"
	"theiacloud/internal/client/clienttest"
	"theiacloud/pkg/apis/theiacloud/v1beta"
)

func newSession(name, user string) *v1beta.Session {
	return &v1beta.Session{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: clienttest.Namespace, UID: types.UID("uid-" + name)},
		Spec: v1beta.SessionSpec{
			Name:          name,
			AppDefinition: "theia",
			User:          user,
		},
	}
}

func TestSessionCRUD(t *testing.T) {
	ctx := context.Background()
	c := clienttest.New()

	require.NoError(t, c.CreateSession(ctx, newSession("a", "foo@example.com")))
	require.NoError(t, c.CreateSession(ctx, newSession("b", "bar@example.com")))
	require.NoError(t, c.CreateSession(ctx, newSession("c", "foo@example.com")))

	sessions, err := c.ListSessions(ctx)
	require.NoError(t, err)
	assert.Len(t, sessions, 3)

	ofFoo, err := c.ListSessionsOfUser(ctx, "foo@example.com")
	require.NoError(t, err)
	assert.Len(t, ofFoo, 2)

	got, err := c.GetSession(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "bar@example.com", got.Spec.User)

	require.NoError(t, c.DeleteSession(ctx, "b"))
	require.NoError(t, c.DeleteSession(ctx, "b"), "deleting a missing session is not an error")

	_, err = c.GetSession(ctx, "b")
	require.Error(t, err)
	assert.True(t, apierrors.IsNotFound(err))
}

func TestEditSession(t *testing.T) {
	ctx := context.Background()
	c := clienttest.New(newSession("a", "foo@example.com"))

	edited, err := c.EditSession(ctx, "a", func(s *v1beta.Session) error {
		s.Spec.Workspace = "ws-a"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ws-a", edited.Spec.Workspace)

	stored, err := c.GetSession(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "ws-a", stored.Spec.Workspace)

	_, err = c.EditSession(ctx, "missing", func(*v1beta.Session) error { return nil })
	assert.Error(t, err)
}

func TestUpdateSessionStatusRefreshesCaller(t *testing.T) {
	ctx := context.Background()
	c := clienttest.New(newSession("a", "foo@example.com"))

	session, err := c.GetSession(ctx, "a")
	require.NoError(t, err)

	err = c.UpdateSessionStatus(ctx, session, func(status *v1beta.SessionStatus) {
		status.OperatorStatus = v1beta.StatusHandled
		status.URL = "instances.example.com/a/"
	})
	require.NoError(t, err)
	assert.Equal(t, v1beta.StatusHandled, session.Status.OperatorStatus)
	assert.Equal(t, "instances.example.com/a/", session.Status.URL)

	stored, err := c.GetSession(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "instances.example.com/a/", stored.Status.URL)
	assert.Equal(t, "theia", stored.Spec.AppDefinition)
}

func TestWorkspaceStatusSteps(t *testing.T) {
	ctx := context.Background()
	c := clienttest.New(&v1beta.Workspace{
		ObjectMeta: metav1.ObjectMeta{Name: "ws", Namespace: clienttest.Namespace},
		Spec:       v1beta.WorkspaceSpec{Name: "ws", User: "foo@example.com"},
	})

	workspace, err := c.GetWorkspace(ctx, "ws")
	require.NoError(t, err)
	require.NoError(t, c.UpdateWorkspaceStatus(ctx, workspace, func(status *v1beta.WorkspaceStatus) {
		status.VolumeClaim = v1beta.NewStatusStep("started", "")
	}))

	stored, err := c.GetWorkspace(ctx, "ws")
	require.NoError(t, err)
	require.NotNil(t, stored.Status.VolumeClaim)
	assert.Equal(t, "started", stored.Status.VolumeClaim.Status)
}

func TestOwnerReferences(t *testing.T) {
	ctx := context.Background()
	appDefinition := &v1beta.AppDefinition{
		ObjectMeta: metav1.ObjectMeta{Name: "theia", Namespace: clienttest.Namespace, UID: "appdef-uid"},
	}
	owned := &corev1.Service{ObjectMeta: metav1.ObjectMeta{
		Name:      "owned",
		Namespace: clienttest.Namespace,
		OwnerReferences: []metav1.OwnerReference{
			{APIVersion: v1beta.GroupVersion.String(), Kind: "AppDefinition", Name: "theia", UID: "appdef-uid"},
		},
	}}
	other := &corev1.Service{ObjectMeta: metav1.ObjectMeta{Name: "other", Namespace: clienttest.Namespace}}
	c := clienttest.New(appDefinition, owned, other)

	services, err := c.ListServicesOwnedBy(ctx, "theia", "appdef-uid")
	require.NoError(t, err)
	require.Len(t, services, 1)
	assert.Equal(t, "owned", services[0].Name)

	ref, err := c.OwnerReference(appDefinition)
	require.NoError(t, err)
	assert.Equal(t, "AppDefinition", ref.Kind)
	assert.Equal(t, v1beta.GroupVersion.String(), ref.APIVersion)

	svc := other.DeepCopy()
	assert.True(t, client.AddOwnerReference(svc, ref))
	assert.False(t, client.AddOwnerReference(svc, ref), "duplicate owner is not added")
	assert.True(t, client.HasOwnerReference(svc, "theia", "appdef-uid"))
	assert.True(t, client.RemoveOwnerReference(svc, "appdef-uid"))
	assert.False(t, client.RemoveOwnerReference(svc, "appdef-uid"))
	assert.Empty(t, svc.OwnerReferences)
}

func TestFindIngressOwnedBy(t *testing.T) {
	ctx := context.Background()
	c := clienttest.New()

	ingress, err := c.FindIngressOwnedBy(ctx, "theia", "appdef-uid")
	require.NoError(t, err)
	assert.Nil(t, ingress)
}

func TestPersistentVolumeClaimExists(t *testing.T) {
	ctx := context.Background()
	c := clienttest.New(&corev1.PersistentVolumeClaim{
		ObjectMeta: metav1.ObjectMeta{Name: "claim", Namespace: clienttest.Namespace},
	})

	exists, err := c.PersistentVolumeClaimExists(ctx, "claim")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = c.PersistentVolumeExists(ctx, "claim")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRecordEvent(t *testing.T) {
	ctx := context.Background()
	session := newSession("a", "foo@example.com")
	c := clienttest.New(session)

	require.NoError(t, c.RecordEvent(ctx, session, "LaunchFailed", "boom", corev1.EventTypeWarning))

	events := &corev1.EventList{}
	require.NoError(t, c.List(ctx, events))
	require.Len(t, events.Items, 1)
	assert.Equal(t, "Session", events.Items[0].InvolvedObject.Kind)
	assert.Equal(t, client.EventSourceComponent, events.Items[0].Source.Component)
}
