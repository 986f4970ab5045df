package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/fake"

	"theiacloud/internal/client/clienttest"
)

func testElection(clientset kubernetes.Interface) *leaderElection {
	return &leaderElection{
		client:        clientset,
		namespace:     clienttest.Namespace,
		identity:      candidateIdentity(),
		leaseDuration: time.Second,
		renewDeadline: 500 * time.Millisecond,
		retryPeriod:   100 * time.Millisecond,
	}
}

func leaseHolder(t *testing.T, clientset kubernetes.Interface) string {
	t.Helper()
	lease, err := clientset.CoordinationV1().Leases(clienttest.Namespace).Get(context.Background(), LeaseName, metav1.GetOptions{})
	if err != nil || lease.Spec.HolderIdentity == nil {
		return ""
	}
	return *lease.Spec.HolderIdentity
}

func TestLeaderElectionReturnsLeadError(t *testing.T) {
	clientset := fake.NewClientset()
	election := testElection(clientset)
	broken := errors.New("engine broke")

	var holder string
	err := election.run(context.Background(), func(context.Context) error {
		holder = leaseHolder(t, clientset)
		return broken
	})

	assert.ErrorIs(t, err, broken)
	assert.Equal(t, election.identity, holder, "lead runs while holding the lease")
}

func TestLeaderElectionStopsCleanlyOnShutdown(t *testing.T) {
	clientset := fake.NewClientset()
	election := testElection(clientset)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- election.run(ctx, func(leaderCtx context.Context) error {
			close(started)
			<-leaderCtx.Done()
			return nil
		})
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("lease was not acquired")
	}
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("leader election did not stop")
	}
}

func TestLeaderElectionWithoutLeaseOnShutdown(t *testing.T) {
	clientset := fake.NewClientset()
	holder := testElection(clientset)
	follower := testElection(clientset)

	holderCtx, stopHolder := context.WithCancel(context.Background())
	defer stopHolder()
	leading := make(chan struct{})
	go func() {
		_ = holder.run(holderCtx, func(leaderCtx context.Context) error {
			close(leading)
			<-leaderCtx.Done()
			return nil
		})
	}()
	<-leading

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	err := follower.run(ctx, func(context.Context) error {
		t.Error("follower must not lead while the lease is held")
		return nil
	})
	assert.NoError(t, err)
}

func TestCandidateIdentityIsUnique(t *testing.T) {
	assert.NotEqual(t, candidateIdentity(), candidateIdentity())
}
