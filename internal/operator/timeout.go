package operator

import (
	"context"
	"time"

	theiaclient "theiacloud/internal/client"
	"theiacloud/internal/metrics"
	"theiacloud/pkg/apis/theiacloud/v1beta"
	"theiacloud/pkg/logging"
)

// TimeoutSweeper deletes sessions that outlived the timeout of their app
// definition.
type TimeoutSweeper struct {
	client         *theiaclient.Client
	appDefinitions *Store[*v1beta.AppDefinition]
	interval       time.Duration
	now            func() time.Time
	metrics        *metrics.Metrics
}

// NewTimeoutSweeper creates a sweeper. App definitions are read from the
// store and fetched from the cluster when the store does not know them yet.
func NewTimeoutSweeper(c *theiaclient.Client, appDefinitions *Store[*v1beta.AppDefinition], interval time.Duration, m *metrics.Metrics) *TimeoutSweeper {
	return &TimeoutSweeper{
		client:         c,
		appDefinitions: appDefinitions,
		interval:       interval,
		now:            time.Now,
		metrics:        m,
	}
}

// Run sweeps every interval until ctx is cancelled. Sweep failures are
// logged and retried on the next tick.
func (s *TimeoutSweeper) Run(ctx context.Context) error {
	if s.interval <= 0 {
		logging.Info("TimeoutSweeper", "Session timeout sweeping disabled")
		<-ctx.Done()
		return nil
	}
	logging.Info("TimeoutSweeper", "Sweeping timed out sessions every %s", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep deletes every timed out session once and returns their names.
func (s *TimeoutSweeper) Sweep(ctx context.Context) []string {
	correlationID := logging.NewCorrelationID(logging.PrefixTimeout)

	sessions, err := s.client.ListSessions(ctx)
	if err != nil {
		logging.Error("TimeoutSweeper", err, "[%s] Failed to list sessions", correlationID)
		return nil
	}

	now := s.now()
	var deleted []string
	for i := range sessions {
		session := &sessions[i]
		appDefinition, ok := s.appDefinition(ctx, session.Spec.AppDefinition, correlationID)
		if !ok {
			continue
		}
		limit := appDefinition.Spec.TimeoutLimit()
		if limit == 0 {
			continue
		}

		elapsed := minutesBetween(sessionStart(session, appDefinition), now)
		logging.Debug("TimeoutSweeper", "[%s] Checking %s: %d minutes, limit %d", correlationID, session.Name, elapsed, limit)
		if elapsed <= limit {
			continue
		}

		logging.Info("TimeoutSweeper", "[%s] Deleting session %s as timeout of %d minutes was reached", correlationID, session.Name, limit)
		if err := s.client.DeleteSession(ctx, session.Name); err != nil {
			logging.Error("TimeoutSweeper", err, "[%s] Failed to delete session %s", correlationID, session.Name)
			continue
		}
		s.metrics.RecordSweep(metrics.ReasonTimeout)
		deleted = append(deleted, session.Name)
	}
	return deleted
}

// appDefinition resolves the app definition a session references by
// resource name, the same key the session handlers use.
func (s *TimeoutSweeper) appDefinition(ctx context.Context, name, correlationID string) (*v1beta.AppDefinition, bool) {
	if s.appDefinitions != nil {
		cached, ok := s.appDefinitions.Find(func(ad *v1beta.AppDefinition) bool {
			return ad.Name == name
		})
		if ok {
			return cached, true
		}
	}
	appDefinition, err := s.client.GetAppDefinition(ctx, name)
	if err != nil {
		logging.Warn("TimeoutSweeper", "[%s] App definition %s not found: %v", correlationID, name, err)
		return nil, false
	}
	return appDefinition, true
}

// sessionStart is the creation time, or the last reported activity when
// the app definition times out on inactivity.
func sessionStart(session *v1beta.Session, appDefinition *v1beta.AppDefinition) time.Time {
	timeout := appDefinition.Spec.Timeout
	if timeout != nil && timeout.Strategy == v1beta.TimeoutStrategyInactivity && session.Status.LastActivity > 0 {
		return time.UnixMilli(session.Status.LastActivity)
	}
	return session.CreationTimestamp.Time
}

// minutesBetween counts the whole minutes passed from start to end.
func minutesBetween(start, end time.Time) int {
	return int(end.Sub(start) / time.Minute)
}
