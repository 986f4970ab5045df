package launch

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"

	theiaclient "theiacloud/internal/client"
	"theiacloud/internal/metrics"
	"theiacloud/pkg/apis/theiacloud/v1beta"
	"theiacloud/pkg/logging"
)

// DefaultTimeout bounds a launch when the caller passes no timeout.
const DefaultTimeout = time.Minute

const (
	kindSession   = "Session"
	kindWorkspace = "Workspace"
)

// Launcher creates sessions and workspaces and blocks until the operator
// reported their outcome. The outcome is observed through a feed calling
// ObserveSession and ObserveWorkspace for every version seen.
type Launcher struct {
	client     *theiaclient.Client
	sessions   *registry[*v1beta.Session]
	workspaces *registry[*v1beta.Workspace]
	inflight   singleflight.Group
	metrics    *metrics.Metrics
	now        func() time.Time
}

// New creates a launcher. m may be nil.
func New(c *theiaclient.Client, m *metrics.Metrics) *Launcher {
	return &Launcher{
		client:     c,
		sessions:   newRegistry[*v1beta.Session](),
		workspaces: newRegistry[*v1beta.Workspace](),
		metrics:    m,
		now:        time.Now,
	}
}

// ObserveSession releases the launches waiting for session.
func (l *Launcher) ObserveSession(session *v1beta.Session) {
	l.sessions.observe(session)
}

// ObserveWorkspace releases the launches waiting for workspace.
func (l *Launcher) ObserveWorkspace(workspace *v1beta.Workspace) {
	l.workspaces.observe(workspace)
}

// SessionCompleted reports whether the operator finished handling session.
func SessionCompleted(session *v1beta.Session) bool {
	return session.Status.URL != "" || session.Status.Error != ""
}

// WorkspaceCompleted reports whether storage was bound or provisioning failed.
func WorkspaceCompleted(workspace *v1beta.Workspace) bool {
	return workspace.Spec.HasStorage() || workspace.Status.Error != ""
}

// LaunchSession gets or creates the session named by spec and waits until
// its url or error is set. A failed session is deleted so that it can be
// launched again. When the wait times out the launch timeout error is
// written to the session. The returned error is reserved for failures to
// talk to the cluster; launch failures are reported in Status.Error.
//
// Concurrent launches of the same name share one create, but each wait is
// bounded by its own ctx and timeout.
func (l *Launcher) LaunchSession(ctx context.Context, correlationID string, spec v1beta.SessionSpec, timeout time.Duration) (*v1beta.Session, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return nil, v1beta.ErrMissingSessionName
	}

	start := l.now()
	id, done := l.sessions.register(spec.Name, SessionCompleted)
	defer l.sessions.deregister(id)

	session, err := createOnce(ctx, &l.inflight, kindSession+"/"+spec.Name, correlationID, func(ctx context.Context) (*v1beta.Session, error) {
		return l.getOrCreateSession(ctx, correlationID, spec)
	})
	if err != nil {
		return nil, err
	}

	if !SessionCompleted(session) {
		logging.Info("Launch", "[%s] Waiting up to %s for session %s", correlationID, timeoutOrDefault(timeout), spec.Name)
		timer := time.NewTimer(timeoutOrDefault(timeout))
		defer timer.Stop()

		select {
		case completed := <-done:
			session.Status.URL = completed.Status.URL
			session.Status.Error = completed.Status.Error
		case <-timer.C:
			logging.Warn("Launch", "[%s] Timeout while waiting for url of session %s", correlationID, spec.Name)
			if err := l.client.UpdateSessionStatus(ctx, session, func(status *v1beta.SessionStatus) {
				if status.URL == "" && status.Error == "" {
					status.Error = v1beta.ErrSessionLaunchTimeout.String()
				}
			}); err != nil {
				return nil, err
			}
			if session.Status.URL == "" && session.Status.Error == v1beta.ErrSessionLaunchTimeout.String() {
				l.metrics.RecordLaunch(kindSession, metrics.OutcomeTimeout, l.now().Sub(start))
				return session, nil
			}
			logging.Debug("Launch", "[%s] Session %s completed while the timeout was written", correlationID, spec.Name)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if session.Status.URL != "" {
		logging.Info("Launch", "[%s] Session %s available at %s", correlationID, spec.Name, session.Status.URL)
		l.metrics.RecordLaunch(kindSession, metrics.OutcomeSuccess, l.now().Sub(start))
		return session, nil
	}

	logging.Info("Launch", "[%s] Session %s failed with %q, deleting it", correlationID, spec.Name, session.Status.Error)
	if err := l.client.DeleteSession(ctx, spec.Name); err != nil {
		logging.Error("Launch", err, "[%s] Failed to delete failed session %s", correlationID, spec.Name)
	}
	l.metrics.RecordLaunch(kindSession, metrics.OutcomeError, l.now().Sub(start))
	return session, nil
}

func (l *Launcher) getOrCreateSession(ctx context.Context, correlationID string, spec v1beta.SessionSpec) (*v1beta.Session, error) {
	existing, err := l.client.GetSession(ctx, spec.Name)
	if err == nil {
		logging.Debug("Launch", "[%s] Session %s exists already", correlationID, spec.Name)
		return existing, nil
	}
	if !apierrors.IsNotFound(err) {
		return nil, err
	}

	if spec.SessionSecret == "" {
		spec.SessionSecret = uuid.NewString()
	}
	session := &v1beta.Session{
		ObjectMeta: metav1.ObjectMeta{Name: spec.Name},
		Spec:       spec,
	}
	logging.Info("Launch", "[%s] Creating session %s of app definition %s for %s", correlationID, spec.Name, spec.AppDefinition, spec.User)
	if err := l.client.CreateSession(ctx, session); err != nil {
		if apierrors.IsAlreadyExists(err) {
			return l.client.GetSession(ctx, spec.Name)
		}
		return nil, err
	}
	return session, nil
}

// LaunchWorkspace gets or creates the workspace named by spec and waits
// until storage is bound or provisioning failed. A failed workspace is kept
// so the caller can decide whether to delete it. When the wait times out
// the launch timeout error is written to the workspace.
func (l *Launcher) LaunchWorkspace(ctx context.Context, correlationID string, spec v1beta.WorkspaceSpec, timeout time.Duration) (*v1beta.Workspace, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return nil, v1beta.ErrMissingWorkspaceName
	}

	start := l.now()
	id, done := l.workspaces.register(spec.Name, WorkspaceCompleted)
	defer l.workspaces.deregister(id)

	workspace, err := createOnce(ctx, &l.inflight, kindWorkspace+"/"+spec.Name, correlationID, func(ctx context.Context) (*v1beta.Workspace, error) {
		return l.getOrCreateWorkspace(ctx, correlationID, spec)
	})
	if err != nil {
		return nil, err
	}

	if !WorkspaceCompleted(workspace) {
		logging.Info("Launch", "[%s] Waiting up to %s for storage of workspace %s", correlationID, timeoutOrDefault(timeout), spec.Name)
		timer := time.NewTimer(timeoutOrDefault(timeout))
		defer timer.Stop()

		select {
		case completed := <-done:
			workspace.Spec.Storage = completed.Spec.Storage
			workspace.Status.Error = completed.Status.Error
		case <-timer.C:
			logging.Warn("Launch", "[%s] Timeout while waiting for storage of workspace %s", correlationID, spec.Name)
			timedOut, err := l.workspaceTimedOut(ctx, workspace)
			if err != nil {
				return nil, err
			}
			if timedOut {
				l.metrics.RecordLaunch(kindWorkspace, metrics.OutcomeTimeout, l.now().Sub(start))
				return workspace, nil
			}
			logging.Debug("Launch", "[%s] Workspace %s completed while the timeout was written", correlationID, spec.Name)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if workspace.Spec.HasStorage() {
		logging.Info("Launch", "[%s] Workspace %s bound to %s", correlationID, spec.Name, workspace.Spec.Storage)
		l.metrics.RecordLaunch(kindWorkspace, metrics.OutcomeSuccess, l.now().Sub(start))
		return workspace, nil
	}

	logging.Info("Launch", "[%s] Workspace %s failed with %q", correlationID, spec.Name, workspace.Status.Error)
	l.metrics.RecordLaunch(kindWorkspace, metrics.OutcomeError, l.now().Sub(start))
	return workspace, nil
}

// workspaceTimedOut writes the launch timeout error unless the stored
// workspace completed in the meantime. workspace is updated to the stored
// version either way.
func (l *Launcher) workspaceTimedOut(ctx context.Context, workspace *v1beta.Workspace) (bool, error) {
	fresh, err := l.client.GetWorkspace(ctx, workspace.Name)
	if err != nil {
		return false, err
	}
	if WorkspaceCompleted(fresh) {
		*workspace = *fresh
		return false, nil
	}

	if err := l.client.UpdateWorkspaceStatus(ctx, fresh, func(status *v1beta.WorkspaceStatus) {
		if status.Error == "" {
			status.Error = v1beta.ErrWorkspaceLaunchTimeout.String()
		}
	}); err != nil {
		return false, err
	}
	*workspace = *fresh
	return workspace.Status.Error == v1beta.ErrWorkspaceLaunchTimeout.String(), nil
}

func (l *Launcher) getOrCreateWorkspace(ctx context.Context, correlationID string, spec v1beta.WorkspaceSpec) (*v1beta.Workspace, error) {
	existing, err := l.client.GetWorkspace(ctx, spec.Name)
	if err == nil {
		logging.Debug("Launch", "[%s] Workspace %s exists already", correlationID, spec.Name)
		return existing, nil
	}
	if !apierrors.IsNotFound(err) {
		return nil, err
	}

	workspace := &v1beta.Workspace{
		ObjectMeta: metav1.ObjectMeta{Name: spec.Name},
		Spec:       spec,
	}
	logging.Info("Launch", "[%s] Creating workspace %s for %s", correlationID, spec.Name, spec.User)
	if err := l.client.CreateWorkspace(ctx, workspace); err != nil {
		if apierrors.IsAlreadyExists(err) {
			return l.client.GetWorkspace(ctx, spec.Name)
		}
		return nil, err
	}
	return workspace, nil
}

// createOnce runs create once for all concurrent callers of key and hands
// each caller its own copy of the result. The shared create is detached
// from the cancellation of the caller that started it; every caller stops
// waiting when its own ctx is done.
func createOnce[T client.Object](ctx context.Context, group *singleflight.Group, key, correlationID string, create func(context.Context) (T, error)) (T, error) {
	var zero T
	results := group.DoChan(key, func() (interface{}, error) {
		return create(context.WithoutCancel(ctx))
	})

	select {
	case res := <-results:
		if res.Shared {
			logging.Debug("Launch", "[%s] Shared get-or-create of %s", correlationID, key)
		}
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T).DeepCopyObject().(T), nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func timeoutOrDefault(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return DefaultTimeout
	}
	return timeout
}
