package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/client-go/kubernetes/fake"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	fakeclient "sigs.k8s.io/controller-runtime/pkg/client/fake"

	theiaclient "theiacloud/internal/client"
	"theiacloud/internal/client/clienttest"
	"theiacloud/internal/config"
	"theiacloud/internal/operator"
)

func testOperatorConfig(leaderElection bool) config.OperatorConfig {
	cfg := config.GetDefaultConfig()
	cfg.Namespace = clienttest.Namespace
	cfg.InstancesHost = "ws.example.com"
	cfg.MetricsAddress = "127.0.0.1:0"
	cfg.LeaderElection = leaderElection
	cfg.LeaderLeaseDuration = time.Second
	cfg.LeaderRenewDeadline = 500 * time.Millisecond
	cfg.LeaderRetryPeriod = 100 * time.Millisecond
	return cfg
}

func startOperator(t *testing.T, cfg config.OperatorConfig, services *Services) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- runOperator(ctx, cfg, services)
	}()
	return cancel, done
}

func waitStopped(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(10 * time.Second):
		t.Fatal("operator did not stop")
		return nil
	}
}

func engineStarted(services *Services) func() bool {
	return func() bool {
		_, ok := services.Engine.IdleMonitor().LastEvent(operator.KindSession)
		return ok
	}
}

func TestNewServices(t *testing.T) {
	cfg := testOperatorConfig(false)
	services, err := newServices(cfg, clienttest.New(), fake.NewClientset())
	require.NoError(t, err)
	assert.NotNil(t, services.Engine)
	assert.NotNil(t, services.MetricsServer)

	cfg.MetricsAddress = ""
	cfg.EagerStart = true
	services, err = newServices(cfg, clienttest.New(), fake.NewClientset())
	require.NoError(t, err)
	assert.Nil(t, services.MetricsServer, "no metrics server without an address")
}

func TestRunOperatorWithoutLeaderElection(t *testing.T) {
	cfg := testOperatorConfig(false)
	services, err := newServices(cfg, clienttest.New(), fake.NewClientset())
	require.NoError(t, err)

	cancel, done := startOperator(t, cfg, services)
	defer cancel()

	require.Eventually(t, engineStarted(services), 5*time.Second, 10*time.Millisecond)
	cancel()
	assert.NoError(t, waitStopped(t, done))
}

func TestRunOperatorWithLeaderElection(t *testing.T) {
	cfg := testOperatorConfig(true)
	clientset := fake.NewClientset()
	services, err := newServices(cfg, clienttest.New(), clientset)
	require.NoError(t, err)

	cancel, done := startOperator(t, cfg, services)
	defer cancel()

	require.Eventually(t, engineStarted(services), 5*time.Second, 10*time.Millisecond)
	assert.NotEmpty(t, leaseHolder(t, clientset), "the engine only runs while holding the lease")
	cancel()
	assert.NoError(t, waitStopped(t, done))
}

func TestRunOperatorRequiresCRDs(t *testing.T) {
	cfg := testOperatorConfig(false)
	withoutCRDs := theiaclient.New(fakeclient.NewClientBuilder().WithScheme(clientgoscheme.Scheme).Build(), clienttest.Namespace)
	services, err := newServices(cfg, withoutCRDs, fake.NewClientset())
	require.NoError(t, err)

	err = runOperator(context.Background(), cfg, services)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CRDs are not installed")
	assert.False(t, operator.IsFatal(err))
}
