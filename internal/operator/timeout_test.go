package operator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"theiacloud/internal/client/clienttest"
	"theiacloud/pkg/apis/theiacloud/v1beta"
)

var sweepNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func sessionCreatedAgo(name, appDefinition string, age time.Duration) *v1beta.Session {
	session := testSession(name)
	session.Spec.AppDefinition = appDefinition
	session.CreationTimestamp = metav1.NewTime(sweepNow.Add(-age))
	return session
}

func appDefinitionWithTimeout(name string, timeout *v1beta.Timeout) *v1beta.AppDefinition {
	appDefinition := testAppDefinition(name)
	appDefinition.Spec.Timeout = timeout
	return appDefinition
}

func TestTimeoutSweep(t *testing.T) {
	c := clienttest.New(
		appDefinitionWithTimeout("limited", &v1beta.Timeout{Limit: 10, Strategy: v1beta.TimeoutStrategyFixedTime}),
		appDefinitionWithTimeout("zero", &v1beta.Timeout{Limit: 0}),
		appDefinitionWithTimeout("unset", nil),
		sessionCreatedAgo("expired", "limited", 11*time.Minute),
		sessionCreatedAgo("fresh", "limited", 5*time.Minute),
		sessionCreatedAgo("at-limit", "limited", 10*time.Minute+30*time.Second),
		sessionCreatedAgo("zero-old", "zero", 72*time.Hour),
		sessionCreatedAgo("unset-old", "unset", 72*time.Hour),
		sessionCreatedAgo("orphan", "missing", 72*time.Hour),
	)
	sweeper := NewTimeoutSweeper(c, nil, time.Minute, nil)
	sweeper.now = func() time.Time { return sweepNow }

	deleted := sweeper.Sweep(context.Background())
	assert.Equal(t, []string{"expired"}, deleted)

	_, err := c.GetSession(context.Background(), "expired")
	assert.True(t, apierrors.IsNotFound(err))
	for _, kept := range []string{"fresh", "at-limit", "zero-old", "unset-old", "orphan"} {
		_, err := c.GetSession(context.Background(), kept)
		assert.NoError(t, err, kept)
	}

	assert.Empty(t, sweeper.Sweep(context.Background()), "sweeping again deletes nothing")
}

func TestTimeoutSweepPrefersCachedAppDefinition(t *testing.T) {
	c := clienttest.New(sessionCreatedAgo("expired", "cached", 20*time.Minute))
	store := NewStore[*v1beta.AppDefinition]()
	store.Put(appDefinitionWithTimeout("cached", &v1beta.Timeout{Limit: 15}))

	sweeper := NewTimeoutSweeper(c, store, time.Minute, nil)
	sweeper.now = func() time.Time { return sweepNow }

	assert.Equal(t, []string{"expired"}, sweeper.Sweep(context.Background()))
}

func TestTimeoutSweepResolvesAppDefinitionByResourceName(t *testing.T) {
	c := clienttest.New(sessionCreatedAgo("expired", "cached", 20*time.Minute))
	limited := appDefinitionWithTimeout("cached", &v1beta.Timeout{Limit: 15})
	limited.Spec.Name = "Cached IDE"
	unlimited := appDefinitionWithTimeout("other", nil)
	unlimited.Spec.Name = "cached"
	store := NewStore[*v1beta.AppDefinition]()
	store.Put(unlimited)
	store.Put(limited)

	sweeper := NewTimeoutSweeper(c, store, time.Minute, nil)
	sweeper.now = func() time.Time { return sweepNow }

	assert.Equal(t, []string{"expired"}, sweeper.Sweep(context.Background()))
}

func TestTimeoutSweepInactivityStrategy(t *testing.T) {
	active := sessionCreatedAgo("active", "idle", 3*time.Hour)
	active.Status.LastActivity = sweepNow.Add(-5 * time.Minute).UnixMilli()
	inactive := sessionCreatedAgo("inactive", "idle", 3*time.Hour)
	inactive.Status.LastActivity = sweepNow.Add(-45 * time.Minute).UnixMilli()

	c := clienttest.New(
		appDefinitionWithTimeout("idle", &v1beta.Timeout{Limit: 30, Strategy: v1beta.TimeoutStrategyInactivity}),
		active,
		inactive,
	)
	sweeper := NewTimeoutSweeper(c, nil, time.Minute, nil)
	sweeper.now = func() time.Time { return sweepNow }

	assert.Equal(t, []string{"inactive"}, sweeper.Sweep(context.Background()))
}

func TestMinutesBetween(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, 0, minutesBetween(start, start.Add(59*time.Second)))
	assert.Equal(t, 10, minutesBetween(start, start.Add(10*time.Minute+59*time.Second)))
	assert.Equal(t, 11, minutesBetween(start, start.Add(11*time.Minute)))
}

func TestTimeoutSweeperRunDisabled(t *testing.T) {
	sweeper := NewTimeoutSweeper(clienttest.New(), nil, 0, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, sweeper.Run(ctx))
}
