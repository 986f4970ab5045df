package operator

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"theiacloud/internal/client/clienttest"
	"theiacloud/internal/naming"
	"theiacloud/pkg/apis/theiacloud/v1beta"
)

type fakeProbe struct {
	reported int64
	err      error
	targets  []ProbeTarget
	notified int
}

func (p *fakeProbe) LastActivity(_ context.Context, target ProbeTarget) (int64, error) {
	p.targets = append(p.targets, target)
	return p.reported, p.err
}

func (p *fakeProbe) Notify(context.Context, ProbeTarget) error {
	p.notified++
	return nil
}

func trackedSession(lastActivity time.Time) *v1beta.Session {
	session := testSession("tracked")
	session.Spec.SessionSecret = "secret"
	session.CreationTimestamp = metav1.NewTime(sweepNow.Add(-2 * time.Hour))
	session.Status.LastActivity = lastActivity.UnixMilli()
	return session
}

func newTracker(probe ActivityProbe, session *v1beta.Session) (*ActivityTracker, func() *v1beta.Session) {
	c := clienttest.New(session)
	tracker := NewActivityTracker(c, probe, time.Minute, nil)
	tracker.now = func() time.Time { return sweepNow }
	current := func() *v1beta.Session {
		stored, err := c.GetSession(context.Background(), session.Name)
		if err != nil {
			return nil
		}
		return stored
	}
	return tracker, current
}

var thresholds = v1beta.ActivityTracker{NotifyAfter: 25, TimeoutAfter: 30}

func TestActivityTrackerRecordsNewerActivity(t *testing.T) {
	session := trackedSession(sweepNow.Add(-40 * time.Minute))
	reported := sweepNow.Add(-time.Minute).UnixMilli()
	probe := &fakeProbe{reported: reported}
	tracker, current := newTracker(probe, session)

	tracker.Ping(context.Background(), session, ProbeTarget{Host: "10.0.0.1", Port: 3001}, thresholds)

	stored := current()
	require.NotNil(t, stored, "recent activity keeps the session")
	assert.Equal(t, reported, stored.Status.LastActivity)
	assert.Zero(t, probe.notified)
}

func TestActivityTrackerNeverMovesActivityBack(t *testing.T) {
	last := sweepNow.Add(-2 * time.Minute)
	session := trackedSession(last)
	probe := &fakeProbe{reported: sweepNow.Add(-time.Hour).UnixMilli()}
	tracker, current := newTracker(probe, session)

	tracker.Ping(context.Background(), session, ProbeTarget{Host: "10.0.0.1", Port: 3001}, thresholds)

	stored := current()
	require.NotNil(t, stored)
	assert.Equal(t, last.UnixMilli(), stored.Status.LastActivity)
}

func TestActivityTrackerThresholds(t *testing.T) {
	tests := []struct {
		name         string
		inactive     time.Duration
		wantNotified int
		wantDeleted  bool
	}{
		{name: "active", inactive: 5 * time.Minute},
		{name: "notify", inactive: 26 * time.Minute, wantNotified: 1},
		{name: "timeout", inactive: 31 * time.Minute, wantDeleted: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := trackedSession(sweepNow.Add(-tt.inactive))
			probe := &fakeProbe{err: errors.New("connection refused")}
			tracker, current := newTracker(probe, session)

			tracker.Ping(context.Background(), session, ProbeTarget{Host: "10.0.0.1", Port: 3001}, thresholds)

			assert.Equal(t, tt.wantNotified, probe.notified)
			assert.Equal(t, tt.wantDeleted, current() == nil)
		})
	}
}

func TestActivityTrackerPingAll(t *testing.T) {
	appDefinition := testAppDefinition("theia")
	appDefinition.Spec.Monitor = &v1beta.Monitor{Port: 3001, ActivityTracker: &thresholds}
	session := trackedSession(sweepNow.Add(-time.Minute))
	internal := &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{
			Name:      naming.ForSessionWithSuffix(session, naming.SuffixInternalService),
			Namespace: clienttest.Namespace,
			Labels: map[string]string{
				naming.LabelKeySessionName: session.Spec.Name,
				naming.LabelKeySessionUID:  string(session.UID),
			},
		},
		Spec: corev1.ServiceSpec{ClusterIP: "10.0.0.7"},
	}
	external := internal.DeepCopy()
	external.Name = naming.ForSession(session, "")
	external.Spec.ClusterIP = "10.0.0.8"

	c := clienttest.New(appDefinition, session, internal, external)
	probe := &fakeProbe{reported: sweepNow.UnixMilli()}
	tracker := NewActivityTracker(c, probe, time.Minute, nil)
	tracker.now = func() time.Time { return sweepNow }

	tracker.PingAll(context.Background())

	require.Len(t, probe.targets, 1)
	assert.Equal(t, ProbeTarget{Host: "10.0.0.7", Port: 3001, Secret: "secret"}, probe.targets[0])
}

func TestActivityTrackerSkipsSessionsWithoutMonitor(t *testing.T) {
	session := trackedSession(sweepNow.Add(-time.Hour))
	c := clienttest.New(testAppDefinition("theia"), session)
	probe := &fakeProbe{}
	tracker := NewActivityTracker(c, probe, time.Minute, nil)
	tracker.now = func() time.Time { return sweepNow }

	tracker.PingAll(context.Background())

	assert.Empty(t, probe.targets)
	_, err := c.GetSession(context.Background(), session.Name)
	assert.False(t, apierrors.IsNotFound(err))
}

func TestServiceHost(t *testing.T) {
	service := &corev1.Service{ObjectMeta: metav1.ObjectMeta{Name: "svc", Namespace: "ns"}}
	assert.Equal(t, "svc.ns.svc", serviceHost(service))
	service.Spec.ClusterIP = corev1.ClusterIPNone
	assert.Equal(t, "svc.ns.svc", serviceHost(service))
	service.Spec.ClusterIP = "10.1.2.3"
	assert.Equal(t, "10.1.2.3", serviceHost(service))
}

func TestHTTPProbe(t *testing.T) {
	var popups int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch {
		case r.Method == http.MethodGet && r.URL.Path == lastActivityPath:
			_, _ = io.WriteString(w, "1714564800000\n")
		case r.Method == http.MethodPost && r.URL.Path == popupPath:
			popups++
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	target := ProbeTarget{Host: u.Hostname(), Port: port, Secret: "secret"}

	probe := NewHTTPProbe()
	reported, err := probe.LastActivity(context.Background(), target)
	require.NoError(t, err)
	assert.Equal(t, int64(1714564800000), reported)

	require.NoError(t, probe.Notify(context.Background(), target))
	assert.Equal(t, 1, popups)

	target.Secret = "wrong"
	_, err = probe.LastActivity(context.Background(), target)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
