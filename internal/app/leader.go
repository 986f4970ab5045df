package app

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/leaderelection"
	"k8s.io/client-go/tools/leaderelection/resourcelock"

	"theiacloud/internal/config"
	"theiacloud/internal/operator"
	"theiacloud/pkg/logging"
)

// LeaseName is the coordination.k8s.io Lease the operator replicas compete for.
const LeaseName = "theia-cloud-operator-leader"

// leaderStopGrace bounds the wait for the leading function after the lease ended.
const leaderStopGrace = 10 * time.Second

type leaderElection struct {
	client    kubernetes.Interface
	namespace string
	identity  string

	leaseDuration time.Duration
	renewDeadline time.Duration
	retryPeriod   time.Duration
}

func newLeaderElection(clientset kubernetes.Interface, cfg config.OperatorConfig) *leaderElection {
	return &leaderElection{
		client:        clientset,
		namespace:     cfg.Namespace,
		identity:      candidateIdentity(),
		leaseDuration: cfg.LeaderLeaseDuration,
		renewDeadline: cfg.LeaderRenewDeadline,
		retryPeriod:   cfg.LeaderRetryPeriod,
	}
}

// candidateIdentity is unique per process so that a restarted pod with the
// same host name does not inherit the previous lease.
func candidateIdentity() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "theia-cloud-operator"
	}
	return host + "_" + uuid.NewString()
}

// run competes for the lease and calls lead while holding it. It returns
// when ctx is cancelled, when lead fails, or with a *operator.FatalError
// when the lease is lost.
func (l *leaderElection) run(ctx context.Context, lead func(context.Context) error) error {
	electionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var leading atomic.Bool
	result := make(chan error, 1)

	elector, err := leaderelection.NewLeaderElector(leaderelection.LeaderElectionConfig{
		Lock: &resourcelock.LeaseLock{
			LeaseMeta: metav1.ObjectMeta{
				Name:      LeaseName,
				Namespace: l.namespace,
			},
			Client: l.client.CoordinationV1(),
			LockConfig: resourcelock.ResourceLockConfig{
				Identity: l.identity,
			},
		},
		LeaseDuration:   l.leaseDuration,
		RenewDeadline:   l.renewDeadline,
		RetryPeriod:     l.retryPeriod,
		ReleaseOnCancel: true,
		Name:            LeaseName,
		Callbacks: leaderelection.LeaderCallbacks{
			OnStartedLeading: func(leaderCtx context.Context) {
				leading.Store(true)
				logging.Info("LeaderElection", "Acquired lease %s as %s", LeaseName, l.identity)
				result <- lead(leaderCtx)
				cancel()
			},
			OnStoppedLeading: func() {
				logging.Info("LeaderElection", "%s stopped leading", l.identity)
			},
			OnNewLeader: func(identity string) {
				if identity != l.identity {
					logging.Info("LeaderElection", "Lease %s is held by %s", LeaseName, identity)
				}
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to set up leader election: %w", err)
	}

	logging.Info("LeaderElection", "Waiting for lease %s/%s as %s", l.namespace, LeaseName, l.identity)
	elector.Run(electionCtx)

	if !leading.Load() {
		if ctx.Err() != nil {
			return nil
		}
		return &operator.FatalError{Reason: "leader election ended before the lease " + LeaseName + " was acquired"}
	}

	select {
	case err := <-result:
		if err != nil {
			return err
		}
	case <-time.After(leaderStopGrace):
		logging.Warn("LeaderElection", "Operator did not stop within %s after the lease ended", leaderStopGrace)
	}
	if ctx.Err() != nil {
		return nil
	}
	return &operator.FatalError{Reason: "lost lease " + LeaseName}
}
