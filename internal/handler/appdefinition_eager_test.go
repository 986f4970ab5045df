package handler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	theiaclient "theiacloud/internal/client"
	"theiacloud/internal/client/clienttest"
	"theiacloud/internal/naming"
	"theiacloud/pkg/apis/theiacloud/v1beta"
)

func countOwned(t *testing.T, deps Deps, ad *v1beta.AppDefinition) (services, deployments, configMaps int) {
	t.Helper()
	ctx := context.Background()
	serviceList, err := deps.Client.ListServicesOwnedBy(ctx, ad.Name, ad.UID)
	require.NoError(t, err)
	deploymentList, err := deps.Client.ListDeploymentsOwnedBy(ctx, ad.Name, ad.UID)
	require.NoError(t, err)
	configMapList, err := deps.Client.ListConfigMapsOwnedBy(ctx, ad.Name, ad.UID)
	require.NoError(t, err)
	return len(serviceList), len(deploymentList), len(configMapList)
}

func TestEagerAppDefinitionAdded(t *testing.T) {
	ctx := context.Background()
	ad := testAppDefinition()
	deps := newDeps(t, testConfig(), ad, testIngress())
	h := NewEagerAppDefinitionHandler(deps)

	require.NoError(t, h.Added(ctx, ad, "cid"))

	services, deployments, configMaps := countOwned(t, deps, ad)
	assert.Equal(t, 4, services, "one service and one internal service per instance")
	assert.Equal(t, 2, deployments)
	assert.Zero(t, configMaps)

	stored, err := deps.Client.GetAppDefinition(ctx, "theia")
	require.NoError(t, err)
	assert.Equal(t, v1beta.StatusHandled, stored.Status.OperatorStatus)

	ingress, err := deps.Client.GetIngress(ctx, "theia-ingress")
	require.NoError(t, err)
	assert.True(t, theiaclient.HasOwnerReference(ingress, ad.Name, ad.UID))

	t.Run("adding again creates nothing new", func(t *testing.T) {
		require.NoError(t, h.Added(ctx, stored, "cid2"))
		services, deployments, _ := countOwned(t, deps, ad)
		assert.Equal(t, 4, services)
		assert.Equal(t, 2, deployments)
	})

	t.Run("raising min instances fills the gap", func(t *testing.T) {
		stored.Spec.MinInstances = 3
		require.NoError(t, h.Modified(ctx, stored, "cid3"))
		services, deployments, _ := countOwned(t, deps, ad)
		assert.Equal(t, 6, services)
		assert.Equal(t, 3, deployments)
	})
}

func TestEagerAppDefinitionRecreatesMissingInstance(t *testing.T) {
	ctx := context.Background()
	ad := testAppDefinition()
	deps := newDeps(t, testConfig(), ad, testIngress())
	h := NewEagerAppDefinitionHandler(deps)
	require.NoError(t, h.Added(ctx, ad, "cid"))

	name := naming.ForAppDefinition(ad, 2, "")
	svc := &corev1.Service{ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: clienttest.Namespace}}
	require.NoError(t, deps.Client.DeleteIgnoreNotFound(ctx, svc))

	require.NoError(t, h.Added(ctx, ad, "cid2"))

	recreated := &corev1.Service{}
	require.NoError(t, deps.Client.Get(ctx, clientKey(name), recreated))
	assert.Equal(t, naming.AppSelector("theia", 2), recreated.Spec.Selector["app"])
	services, _, _ := countOwned(t, deps, ad)
	assert.Equal(t, 4, services)
}

func TestEagerAppDefinitionWithKeycloak(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.Keycloak = true
	ad := testAppDefinition()
	deps := newDeps(t, cfg, ad, testIngress(), proxyConfigSource())

	require.NoError(t, NewEagerAppDefinitionHandler(deps).Added(ctx, ad, "cid"))

	_, _, configMaps := countOwned(t, deps, ad)
	assert.Equal(t, 4, configMaps)

	proxy, err := deps.Client.GetConfigMap(ctx, naming.ForAppDefinition(ad, 1, naming.IdentifierProxyConfig))
	require.NoError(t, err)
	assert.Contains(t, proxy.Data[oauth2ProxyConfigKey], "https://ws.example.com/theia-1/oauth2/callback")
	assert.Equal(t, templatePurposeProxy, proxy.Labels[naming.LabelKeyTemplatePurpose])
}

func TestEagerAppDefinitionWithoutIngress(t *testing.T) {
	ctx := context.Background()
	ad := testAppDefinition()
	deps := newDeps(t, testConfig(), ad)

	require.NoError(t, NewEagerAppDefinitionHandler(deps).Added(ctx, ad, "cid"))

	stored, err := deps.Client.GetAppDefinition(ctx, "theia")
	require.NoError(t, err)
	assert.Equal(t, v1beta.StatusError, stored.Status.OperatorStatus)
	assert.Equal(t, MessageIngressMissing, stored.Status.OperatorMessage)
	services, _, _ := countOwned(t, deps, ad)
	assert.Zero(t, services)
}

func TestLazyAppDefinitionAdded(t *testing.T) {
	ctx := context.Background()
	ad := testAppDefinition()
	deps := newDeps(t, testConfig(), ad, testIngress())

	require.NoError(t, NewLazyAppDefinitionHandler(deps).Added(ctx, ad, "cid"))

	stored, err := deps.Client.GetAppDefinition(ctx, "theia")
	require.NoError(t, err)
	assert.Equal(t, v1beta.StatusHandled, stored.Status.OperatorStatus)
	services, deployments, _ := countOwned(t, deps, ad)
	assert.Zero(t, services)
	assert.Zero(t, deployments)
}
