package handler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	networkingv1 "k8s.io/api/networking/v1"

	theiaclient "theiacloud/internal/client"
)

func TestPathProvider(t *testing.T) {
	cfg := testConfig()
	ad := testAppDefinition()
	session := testSession("a", "foo@example.com")

	paths := NewPathProvider(cfg)
	assert.Equal(t, "/theia-2", paths.ForInstance(ad, 2))
	assert.Equal(t, "/"+string(session.UID), paths.ForSession(session))

	cfg.UsePaths = true
	cfg.InstancesPath = "instances"
	paths = NewPathProvider(cfg)
	assert.Equal(t, "/instances/theia-2", paths.ForInstance(ad, 2))
}

func TestIngressHosts(t *testing.T) {
	ad := testAppDefinition()
	assert.Equal(t, []string{"ws.example.com"}, ingressHosts("ws.example.com", ad))

	ad.Spec.IngressHostnamePrefixes = []string{"*.webview.", "api."}
	assert.Equal(t, []string{"ws.example.com", "*.webview.ws.example.com", "api.ws.example.com"}, ingressHosts("ws.example.com", ad))
}

func TestEnsureIngressOwnership(t *testing.T) {
	ctx := context.Background()
	ad := testAppDefinition()

	t.Run("missing ingress", func(t *testing.T) {
		deps := newDeps(t, testConfig(), ad)
		ok, err := ensureIngressOwnership(ctx, deps.Client, ad, "cid")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("adds owner once", func(t *testing.T) {
		deps := newDeps(t, testConfig(), ad, testIngress())
		for i := 0; i < 2; i++ {
			ok, err := ensureIngressOwnership(ctx, deps.Client, ad, "cid")
			require.NoError(t, err)
			assert.True(t, ok)
		}
		ingress, err := deps.Client.GetIngress(ctx, "theia-ingress")
		require.NoError(t, err)
		require.Len(t, ingress.OwnerReferences, 1)
		assert.True(t, theiaclient.HasOwnerReference(ingress, ad.Name, ad.UID))
	})
}

func TestAddAndRemoveIngressRules(t *testing.T) {
	ctx := context.Background()
	deps := newDeps(t, testConfig(), testIngress())
	hosts := []string{"ws.example.com", "api.ws.example.com"}

	url, err := addIngressRules(ctx, deps.Client, "theia-ingress", hosts, "/abc", "svc", 3000)
	require.NoError(t, err)
	assert.Equal(t, "ws.example.com/abc/", url)

	_, err = addIngressRules(ctx, deps.Client, "theia-ingress", hosts, "/abc", "svc", 3000)
	require.NoError(t, err)
	_, err = addIngressRules(ctx, deps.Client, "theia-ingress", hosts[:1], "/other", "svc2", 3000)
	require.NoError(t, err)

	ingress, err := deps.Client.GetIngress(ctx, "theia-ingress")
	require.NoError(t, err)
	require.Len(t, ingress.Spec.Rules, 3, "adding the same rules twice must not duplicate them")

	rule := ingress.Spec.Rules[0]
	path := rule.HTTP.Paths[0]
	assert.Equal(t, "ws.example.com", rule.Host)
	assert.Equal(t, "/abc(/|$)(.*)", path.Path)
	assert.Equal(t, networkingv1.PathTypeImplementationSpecific, *path.PathType)
	assert.Equal(t, "svc", path.Backend.Service.Name)
	assert.Equal(t, int32(3000), path.Backend.Service.Port.Number)

	removed, err := removeIngressRules(ctx, deps.Client, "theia-ingress", "/abc", nil, "cid")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	removed, err = removeIngressRules(ctx, deps.Client, "theia-ingress", "/abc", nil, "cid")
	require.NoError(t, err)
	assert.Zero(t, removed)

	ingress, err = deps.Client.GetIngress(ctx, "theia-ingress")
	require.NoError(t, err)
	require.Len(t, ingress.Spec.Rules, 1)
	assert.Equal(t, "/other(/|$)(.*)", ingress.Spec.Rules[0].HTTP.Paths[0].Path)
}
