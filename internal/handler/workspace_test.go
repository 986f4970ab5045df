package handler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"

	theiaclient "theiacloud/internal/client"
	"theiacloud/internal/client/clienttest"
	"theiacloud/internal/config"
	"theiacloud/internal/naming"
	"theiacloud/pkg/apis/theiacloud/v1beta"
)

func testWorkspace(name, user string) *v1beta.Workspace {
	return &v1beta.Workspace{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: clienttest.Namespace, UID: types.UID("9d8c7b6a-5f4e-3d2c-1b0a-" + name + "00000000")},
		Spec: v1beta.WorkspaceSpec{
			Name:          name,
			AppDefinition: "theia",
			User:          user,
		},
	}
}

func TestWorkspaceAdded(t *testing.T) {
	ctx := context.Background()
	ws := testWorkspace("ws1", "foo@example.com")
	deps := newDeps(t, testConfig(), ws)
	h := NewWorkspaceHandler(deps)

	require.NoError(t, h.Added(ctx, ws, "cid"))

	stored, err := deps.Client.GetWorkspace(ctx, "ws1")
	require.NoError(t, err)
	storageName := naming.StorageName(ws)
	assert.Equal(t, storageName, stored.Spec.Storage)
	assert.Equal(t, v1beta.StatusHandled, stored.Status.OperatorStatus)
	require.NotNil(t, stored.Status.VolumeClaim)
	require.NotNil(t, stored.Status.VolumeAttach)
	assert.Equal(t, "finished", stored.Status.VolumeClaim.Status)
	assert.Equal(t, "finished", stored.Status.VolumeAttach.Status)

	claim := &corev1.PersistentVolumeClaim{}
	require.NoError(t, deps.Client.Get(ctx, client.ObjectKey{Namespace: clienttest.Namespace, Name: storageName}, claim))
	assert.True(t, theiaclient.HasOwnerReference(claim, ws.Name, ws.UID))
	assert.Equal(t, "250Mi", claim.Spec.Resources.Requests.Storage().String())

	exists, err := deps.Client.PersistentVolumeExists(ctx, storageName)
	require.NoError(t, err)
	assert.False(t, exists, "dynamic provisioning does not create volumes")

	// Handled workspaces are skipped.
	require.NoError(t, h.Added(ctx, stored, "cid2"))
}

func TestWorkspaceAddedOnMinikube(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.CloudProvider = config.CloudProviderMinikube
	ws := testWorkspace("ws1", "foo@example.com")
	deps := newDeps(t, cfg, ws)

	require.NoError(t, NewWorkspaceHandler(deps).Added(ctx, ws, "cid"))

	volume := &corev1.PersistentVolume{}
	require.NoError(t, deps.Client.Get(ctx, client.ObjectKey{Name: naming.StorageName(ws)}, volume))
	require.NotNil(t, volume.Spec.HostPath)
	assert.Contains(t, volume.Spec.HostPath.Path, clienttest.Namespace)
}

func TestWorkspaceAddedInterrupted(t *testing.T) {
	ctx := context.Background()
	ws := testWorkspace("ws1", "foo@example.com")
	ws.Status.OperatorStatus = v1beta.StatusHandling
	deps := newDeps(t, testConfig(), ws)

	require.NoError(t, NewWorkspaceHandler(deps).Added(ctx, ws, "cid"))

	stored, err := deps.Client.GetWorkspace(ctx, "ws1")
	require.NoError(t, err)
	assert.Equal(t, v1beta.StatusError, stored.Status.OperatorStatus)
	assert.Equal(t, MessageInterrupted+"cid", stored.Status.OperatorMessage)
	assert.Empty(t, stored.Spec.Storage)
}

func TestWorkspaceDeleted(t *testing.T) {
	ctx := context.Background()
	ws := testWorkspace("ws1", "foo@example.com")
	session := testSession(naming.WorkspaceSessionName("ws1"), "foo@example.com")
	storageName := naming.StorageName(ws)
	claim := &corev1.PersistentVolumeClaim{ObjectMeta: metav1.ObjectMeta{Name: storageName, Namespace: clienttest.Namespace}}
	deps := newDeps(t, testConfig(), ws, session, claim)

	require.NoError(t, NewWorkspaceHandler(deps).Deleted(ctx, ws, "cid"))

	sessions, err := deps.Client.ListSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, sessions)
	exists, err := deps.Client.PersistentVolumeClaimExists(ctx, storageName)
	require.NoError(t, err)
	assert.False(t, exists)

	// Deleting again tolerates missing children.
	require.NoError(t, NewWorkspaceHandler(deps).Deleted(ctx, ws, "cid"))
}
