package handler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"

	theiaclient "theiacloud/internal/client"
	"theiacloud/internal/client/clienttest"
	"theiacloud/internal/config"
	"theiacloud/internal/naming"
	"theiacloud/pkg/apis/theiacloud/v1beta"
)

// ownedIngress returns the ingress already claimed by ad.
func ownedIngress(ad *v1beta.AppDefinition) client.Object {
	ingress := testIngress()
	ingress.OwnerReferences = []metav1.OwnerReference{{
		APIVersion: v1beta.GroupVersion.String(),
		Kind:       "AppDefinition",
		Name:       ad.Name,
		UID:        ad.UID,
	}}
	return ingress
}

func TestLazySessionAdded(t *testing.T) {
	ctx := context.Background()
	ad := testAppDefinition()
	ad.Spec.IngressHostnamePrefixes = []string{"api."}
	session := testSession("a", "foo@example.com")
	session.Spec.EnvVars = map[string]string{"B": "2", "A": "1"}
	deps := newDeps(t, testConfig(), ad, ownedIngress(ad), session)

	require.NoError(t, NewLazySessionHandler(deps).Added(ctx, session, "cid"))

	stored, err := deps.Client.GetSession(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, v1beta.StatusHandled, stored.Status.OperatorStatus)
	assert.Equal(t, "ws.example.com/"+string(session.UID)+"/", stored.Status.URL)
	assert.Equal(t, fixedNow.UnixMilli(), stored.Status.LastActivity)
	finished := v1beta.NewStatusStep(stepFinished, "")
	assert.Equal(t, finished, stored.Status.ServiceCreation)
	assert.Equal(t, finished, stored.Status.DeploymentCreation)
	assert.Equal(t, finished, stored.Status.IngressUpdate)
	assert.Nil(t, stored.Status.ConfigMapCreation, "config maps are only created with keycloak")

	services, err := deps.Client.ListServicesOwnedBy(ctx, session.Name, session.UID)
	require.NoError(t, err)
	require.Len(t, services, 2)
	names := []string{services[0].Name, services[1].Name}
	assert.Contains(t, names, naming.ForSession(session, ""))
	assert.Contains(t, names, naming.ForSessionWithSuffix(session, naming.SuffixInternalService))
	assert.Equal(t, "foo_at_example_com", services[0].Labels[naming.LabelKeyUser])

	deployments, err := deps.Client.ListDeploymentsOwnedBy(ctx, session.Name, session.UID)
	require.NoError(t, err)
	require.Len(t, deployments, 1)
	deployment := deployments[0]
	assert.Equal(t, naming.ForSession(session, naming.IdentifierDeployment), deployment.Name)
	assert.Equal(t, "a", deployment.Spec.Template.Labels[naming.LabelKeySessionName])
	container := deployment.Spec.Template.Spec.Containers[0]
	env := map[string]string{}
	for _, e := range container.Env {
		env[e.Name] = e.Value
	}
	assert.Equal(t, "1", env["A"])
	assert.Equal(t, "foo@example.com", env["THEIACLOUD_SESSION_USER"])
	assert.Empty(t, deployment.Spec.Template.Spec.Volumes, "ephemeral sessions have no storage")

	ingress, err := deps.Client.GetIngress(ctx, "theia-ingress")
	require.NoError(t, err)
	require.Len(t, ingress.Spec.Rules, 2)
	assert.Equal(t, "ws.example.com", ingress.Spec.Rules[0].Host)
	assert.Equal(t, "api.ws.example.com", ingress.Spec.Rules[1].Host)
}

func TestLazySessionAddedWithWorkspace(t *testing.T) {
	ctx := context.Background()
	ad := testAppDefinition()
	ws := testWorkspace("ws1", "foo@example.com")
	ws.Spec.AppDefinition = "old"
	claim := &corev1.PersistentVolumeClaim{ObjectMeta: metav1.ObjectMeta{Name: naming.StorageName(ws), Namespace: clienttest.Namespace}}
	session := testSession("a", "foo@example.com")
	session.Spec.Workspace = "ws1"
	deps := newDeps(t, testConfig(), ad, ownedIngress(ad), ws, claim, session)

	require.NoError(t, NewLazySessionHandler(deps).Added(ctx, session, "cid"))

	storedWs, err := deps.Client.GetWorkspace(ctx, "ws1")
	require.NoError(t, err)
	assert.Equal(t, "theia", storedWs.Spec.AppDefinition)

	deployment := &appsv1.Deployment{}
	key := client.ObjectKey{Namespace: clienttest.Namespace, Name: naming.ForSession(session, naming.IdentifierDeployment)}
	require.NoError(t, deps.Client.Get(ctx, key, deployment))
	require.Len(t, deployment.Spec.Template.Spec.Volumes, 1)
	volume := deployment.Spec.Template.Spec.Volumes[0]
	assert.Equal(t, userDataVolume, volume.Name)
	assert.Equal(t, naming.StorageName(ws), volume.PersistentVolumeClaim.ClaimName)
	mounts := deployment.Spec.Template.Spec.Containers[0].VolumeMounts
	require.Len(t, mounts, 1)
	assert.Equal(t, defaultMountPath, mounts[0].MountPath)
}

func TestLazySessionAddedWithKeycloak(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.Keycloak = true
	ad := testAppDefinition()
	session := testSession("a", "foo@example.com")
	deps := newDeps(t, cfg, ad, ownedIngress(ad), session, proxyConfigSource())

	require.NoError(t, NewLazySessionHandler(deps).Added(ctx, session, "cid"))

	emails, err := deps.Client.GetConfigMap(ctx, naming.ForSession(session, naming.IdentifierEmailConfig))
	require.NoError(t, err)
	assert.Equal(t, "foo@example.com", emails.Data[authenticatedEmailsKey])

	proxy, err := deps.Client.GetConfigMap(ctx, naming.ForSession(session, naming.IdentifierProxyConfig))
	require.NoError(t, err)
	cfgText := proxy.Data[oauth2ProxyConfigKey]
	assert.Contains(t, cfgText, "https://ws.example.com/"+string(session.UID)+"/oauth2/callback")
	assert.Contains(t, cfgText, "127.0.0.1:3000")

	svc := &corev1.Service{}
	require.NoError(t, deps.Client.Get(ctx, client.ObjectKey{Namespace: clienttest.Namespace, Name: naming.ForSession(session, "")}, svc))
	assert.Equal(t, int32(5000), svc.Spec.Ports[0].TargetPort.IntVal)
}

func TestLazySessionAddedFailures(t *testing.T) {
	ctx := context.Background()
	limit := func(n int) *int { return &n }

	tests := []struct {
		name        string
		setup       func(cfg *config.OperatorConfig, ad *v1beta.AppDefinition) []client.Object
		wantMessage string
		wantError   string
	}{
		{
			name: "app definition missing",
			setup: func(_ *config.OperatorConfig, _ *v1beta.AppDefinition) []client.Object {
				return nil
			},
			wantMessage: MessageAppDefNotFound,
		},
		{
			name: "ingress missing",
			setup: func(_ *config.OperatorConfig, ad *v1beta.AppDefinition) []client.Object {
				return []client.Object{ad, testIngress()}
			},
			wantMessage: MessageIngressMissing,
		},
		{
			name: "max instances",
			setup: func(_ *config.OperatorConfig, ad *v1beta.AppDefinition) []client.Object {
				ad.Spec.MaxInstances = limit(1)
				return []client.Object{ad, ownedIngress(ad), testSession("other", "bar@example.com")}
			},
			wantMessage: MessageMaxInstances,
			wantError:   v1beta.ErrSessionServerLimitReached.String(),
		},
		{
			name: "no sessions for users",
			setup: func(cfg *config.OperatorConfig, ad *v1beta.AppDefinition) []client.Object {
				cfg.SessionsPerUser = limit(0)
				return []client.Object{ad, ownedIngress(ad)}
			},
			wantMessage: MessageMaxSessions,
			wantError:   v1beta.ErrSessionUserNoSessions.String(),
		},
		{
			name: "sessions per user",
			setup: func(cfg *config.OperatorConfig, ad *v1beta.AppDefinition) []client.Object {
				cfg.SessionsPerUser = limit(1)
				return []client.Object{ad, ownedIngress(ad), testSession("other", "foo@example.com")}
			},
			wantMessage: MessageMaxSessions,
			wantError:   v1beta.ErrSessionUserLimitReached.String(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			ad := testAppDefinition()
			session := testSession("a", "foo@example.com")
			objs := append(tt.setup(&cfg, ad), session)
			deps := newDeps(t, cfg, objs...)

			require.NoError(t, NewLazySessionHandler(deps).Added(ctx, session, "cid"))

			stored, err := deps.Client.GetSession(ctx, "a")
			require.NoError(t, err)
			assert.Equal(t, v1beta.StatusError, stored.Status.OperatorStatus)
			assert.Equal(t, tt.wantMessage, stored.Status.OperatorMessage)
			assert.Equal(t, tt.wantError, stored.Status.Error)
			assert.Nil(t, stored.Status.ServiceCreation, "no provisioning step was started")
			assert.Nil(t, stored.Status.DeploymentCreation)
			assert.Nil(t, stored.Status.IngressUpdate)

			services, err := deps.Client.ListServices(ctx, nil)
			require.NoError(t, err)
			assert.Empty(t, services)
		})
	}
}

func TestLazySessionAddedRecordsFailedStep(t *testing.T) {
	ctx := context.Background()
	ad := testAppDefinition()
	session := testSession("a", "foo@example.com")
	taken := &corev1.Service{ObjectMeta: metav1.ObjectMeta{
		Name:      naming.ForSession(session, ""),
		Namespace: clienttest.Namespace,
	}}
	deps := newDeps(t, testConfig(), ad, ownedIngress(ad), session, taken)

	require.NoError(t, NewLazySessionHandler(deps).Added(ctx, session, "cid"))

	stored, err := deps.Client.GetSession(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, v1beta.StatusError, stored.Status.OperatorStatus)
	assert.Equal(t, MessageServiceFailed, stored.Status.OperatorMessage)
	assert.Equal(t, v1beta.NewStatusStep(stepError, MessageServiceFailed), stored.Status.ServiceCreation)
	assert.Nil(t, stored.Status.DeploymentCreation)
	assert.Nil(t, stored.Status.IngressUpdate)
	assert.Empty(t, stored.Status.URL)
}

func TestLazySessionAddedSkipsExistingService(t *testing.T) {
	ctx := context.Background()
	ad := testAppDefinition()
	session := testSession("a", "foo@example.com")
	existing := &corev1.Service{ObjectMeta: metav1.ObjectMeta{
		Name:      naming.ForSession(session, ""),
		Namespace: clienttest.Namespace,
		OwnerReferences: []metav1.OwnerReference{{
			APIVersion: v1beta.GroupVersion.String(), Kind: "Session", Name: session.Name, UID: session.UID,
		}},
	}}
	deps := newDeps(t, testConfig(), ad, ownedIngress(ad), session, existing)

	require.NoError(t, NewLazySessionHandler(deps).Added(ctx, session, "cid"))

	stored, err := deps.Client.GetSession(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, v1beta.StatusHandled, stored.Status.OperatorStatus)
	assert.Equal(t, MessageServiceExists, stored.Status.OperatorMessage)

	deployments, err := deps.Client.ListDeploymentsOwnedBy(ctx, session.Name, session.UID)
	require.NoError(t, err)
	assert.Empty(t, deployments)
}

func TestLazySessionDeleted(t *testing.T) {
	ctx := context.Background()
	ad := testAppDefinition()
	session := testSession("a", "foo@example.com")
	other := testSession("b", "bar@example.com")
	deps := newDeps(t, testConfig(), ad, ownedIngress(ad), session, other)
	h := NewLazySessionHandler(deps)

	require.NoError(t, h.Added(ctx, session, "cid"))
	require.NoError(t, h.Added(ctx, other, "cid"))

	require.NoError(t, h.Deleted(ctx, session, "cid"))

	ingress, err := deps.Client.GetIngress(ctx, "theia-ingress")
	require.NoError(t, err)
	require.Len(t, ingress.Spec.Rules, 1)
	assert.Equal(t, h.paths.ForSession(other)+ingressRewritePath, ingress.Spec.Rules[0].HTTP.Paths[0].Path)
	assert.True(t, theiaclient.HasOwnerReference(ingress, ad.Name, ad.UID))
}
