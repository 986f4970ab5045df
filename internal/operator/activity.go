package operator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"

	theiaclient "theiacloud/internal/client"
	"theiacloud/internal/metrics"
	"theiacloud/internal/naming"
	"theiacloud/pkg/apis/theiacloud/v1beta"
	"theiacloud/pkg/logging"
)

const (
	activityBasePath = "/monitor/activity"
	lastActivityPath = activityBasePath + "/lastActivity"
	popupPath        = activityBasePath + "/popup"

	probeTimeout = 10 * time.Second
)

// ProbeTarget addresses the monitor endpoint of one session.
type ProbeTarget struct {
	Host   string
	Port   int
	Secret string
}

func (t ProbeTarget) url(path string) string {
	return "http://" + net.JoinHostPort(t.Host, strconv.Itoa(t.Port)) + path
}

// ActivityProbe talks to the monitor running next to a session.
type ActivityProbe interface {
	// LastActivity returns the last user activity in epoch milliseconds.
	LastActivity(ctx context.Context, target ProbeTarget) (int64, error)
	// Notify asks the session to warn its user about the upcoming timeout.
	Notify(ctx context.Context, target ProbeTarget) error
}

// HTTPProbe implements ActivityProbe over the monitor's HTTP API.
type HTTPProbe struct {
	client *http.Client
}

// NewHTTPProbe returns a probe with a bounded request timeout.
func NewHTTPProbe() *HTTPProbe {
	return &HTTPProbe{client: &http.Client{Timeout: probeTimeout}}
}

func (p *HTTPProbe) LastActivity(ctx context.Context, target ProbeTarget) (int64, error) {
	body, err := p.do(ctx, http.MethodGet, target, lastActivityPath)
	if err != nil {
		return 0, err
	}
	reported, err := strconv.ParseInt(strings.TrimSpace(body), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid last activity %q: %w", body, err)
	}
	return reported, nil
}

func (p *HTTPProbe) Notify(ctx context.Context, target ProbeTarget) error {
	_, err := p.do(ctx, http.MethodPost, target, popupPath)
	return err
}

func (p *HTTPProbe) do(ctx context.Context, method string, target ProbeTarget, path string) (string, error) {
	url := target.url(path)
	req, err := http.NewRequestWithContext(ctx, method, url, strings.NewReader(""))
	if err != nil {
		return "", fmt.Errorf("failed to create request %s %s: %w", method, url, err)
	}
	req.Header.Set("Authorization", "Bearer "+target.Secret)
	req.Header.Set("Content-Type", "text/plain")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request %s %s failed: %w", method, url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", fmt.Errorf("failed to read response of %s %s: %w", method, url, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("request %s %s returned %d", method, url, resp.StatusCode)
	}
	return string(body), nil
}

var errNoMonitorService = errors.New("no monitor service found")

// ActivityTracker polls the monitor of every session, records reported
// activity and removes sessions that stayed inactive for too long.
type ActivityTracker struct {
	client   *theiaclient.Client
	probe    ActivityProbe
	interval time.Duration
	now      func() time.Time
	metrics  *metrics.Metrics
}

// NewActivityTracker creates a tracker polling every interval.
func NewActivityTracker(c *theiaclient.Client, probe ActivityProbe, interval time.Duration, m *metrics.Metrics) *ActivityTracker {
	return &ActivityTracker{
		client:   c,
		probe:    probe,
		interval: interval,
		now:      time.Now,
		metrics:  m,
	}
}

// Run polls immediately and then every interval until ctx is cancelled.
func (t *ActivityTracker) Run(ctx context.Context) error {
	logging.Info("ActivityTracker", "Polling session activity every %s", t.interval)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		t.PingAll(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// PingAll polls every session once.
func (t *ActivityTracker) PingAll(ctx context.Context) {
	sessions, err := t.client.ListSessions(ctx)
	if err != nil {
		logging.Error("ActivityTracker", err, "Failed to list sessions")
		return
	}

	for i := range sessions {
		session := &sessions[i]
		appDefinition, err := t.client.GetAppDefinition(ctx, session.Spec.AppDefinition)
		if err != nil {
			logging.Warn("ActivityTracker", "[%s] App definition %s not found: %v", session.Name, session.Spec.AppDefinition, err)
			continue
		}
		monitor := appDefinition.Spec.Monitor
		if monitor == nil || monitor.ActivityTracker == nil || monitor.Port <= 0 {
			continue
		}
		host, err := t.monitorHost(ctx, session)
		if err != nil {
			logging.Warn("ActivityTracker", "[%s] %v", session.Name, err)
			continue
		}
		target := ProbeTarget{Host: host, Port: monitor.Port, Secret: session.Spec.SessionSecret}
		t.Ping(ctx, session, target, *monitor.ActivityTracker)
	}
}

// Ping polls one session and acts on the inactivity thresholds.
func (t *ActivityTracker) Ping(ctx context.Context, session *v1beta.Session, target ProbeTarget, thresholds v1beta.ActivityTracker) {
	reported, err := t.probe.LastActivity(ctx, target)
	if err != nil {
		logging.Info("ActivityTracker", "[%s] Failed to get last activity: %v", session.Name, err)
	} else if err := t.recordActivity(ctx, session, reported); err != nil {
		logging.Error("ActivityTracker", err, "[%s] Failed to update last activity", session.Name)
	}

	last := session.CreationTimestamp.Time
	if session.Status.LastActivity > 0 {
		last = time.UnixMilli(session.Status.LastActivity)
	}
	inactive := minutesBetween(last, t.now())
	logging.Debug("ActivityTracker", "[%s] Last reported activity %s (%d minutes ago)", session.Name, last.UTC().Format(time.RFC3339), inactive)

	if thresholds.TimeoutAfter > 0 && inactive >= thresholds.TimeoutAfter {
		t.stop(ctx, session, thresholds.TimeoutAfter)
		return
	}
	if thresholds.NotifyAfter > 0 && inactive >= thresholds.NotifyAfter {
		logging.Info("ActivityTracker", "[%s] Notifying session as %d minutes of inactivity were reached", session.Name, thresholds.NotifyAfter)
		if err := t.probe.Notify(ctx, target); err != nil {
			logging.Info("ActivityTracker", "[%s] Failed to notify session: %v", session.Name, err)
		}
	}
}

// recordActivity only ever moves the recorded activity forward.
func (t *ActivityTracker) recordActivity(ctx context.Context, session *v1beta.Session, reported int64) error {
	if reported <= session.Status.LastActivity {
		return nil
	}
	return t.client.UpdateSessionStatus(ctx, session, func(status *v1beta.SessionStatus) {
		if reported > status.LastActivity {
			status.LastActivity = reported
		}
	})
}

func (t *ActivityTracker) stop(ctx context.Context, session *v1beta.Session, timeoutAfter int) {
	correlationID := logging.NewCorrelationID(logging.PrefixNoActivity)
	logging.Info("ActivityTracker", "[%s] Deleting session %s as timeout of %d minutes of inactivity was reached", correlationID, session.Name, timeoutAfter)
	if err := t.client.DeleteSession(ctx, session.Name); err != nil {
		logging.Error("ActivityTracker", err, "[%s] Failed to delete session %s", correlationID, session.Name)
		return
	}
	t.metrics.RecordSweep(metrics.ReasonNoActivity)
}

// monitorHost resolves the internal service of session. The cluster IP is
// preferred, the service DNS name is the fallback.
func (t *ActivityTracker) monitorHost(ctx context.Context, session *v1beta.Session) (string, error) {
	services, err := t.client.ListServices(ctx, map[string]string{
		naming.LabelKeySessionName: session.Spec.Name,
		naming.LabelKeySessionUID:  string(session.UID),
	})
	if err != nil {
		return "", err
	}
	for i := range services {
		if strings.HasSuffix(services[i].Name, "-"+naming.SuffixInternalService) {
			return serviceHost(&services[i]), nil
		}
	}
	return "", errNoMonitorService
}

func serviceHost(service *corev1.Service) string {
	ip := service.Spec.ClusterIP
	if ip != "" && ip != corev1.ClusterIPNone {
		return ip
	}
	return service.Name + "." + service.Namespace + ".svc"
}
