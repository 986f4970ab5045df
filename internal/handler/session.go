package handler

import (
	"context"
	"errors"

	"theiacloud/pkg/apis/theiacloud/v1beta"
	"theiacloud/pkg/logging"
)

// sessionStatus bundles the status writes shared by both session handlers.
type sessionStatus struct {
	deps Deps
}

func (s sessionStatus) set(ctx context.Context, session *v1beta.Session, status v1beta.OperatorStatus, message string) error {
	return s.deps.Client.UpdateSessionStatus(ctx, session, func(st *v1beta.SessionStatus) {
		st.OperatorStatus = status
		st.OperatorMessage = message
	})
}

// handled marks the session as running and stamps its last activity.
func (s sessionStatus) handled(ctx context.Context, session *v1beta.Session, message string) error {
	now := s.deps.now().UnixMilli()
	return s.deps.Client.UpdateSessionStatus(ctx, session, func(st *v1beta.SessionStatus) {
		st.OperatorStatus = v1beta.StatusHandled
		st.OperatorMessage = message
		st.LastActivity = now
	})
}

// fail records a domain failure. A non-zero code is surfaced to launchers
// through the error field.
func (s sessionStatus) fail(ctx context.Context, session *v1beta.Session, message string, code *v1beta.TheiaCloudError) error {
	return s.deps.Client.UpdateSessionStatus(ctx, session, func(st *v1beta.SessionStatus) {
		st.OperatorStatus = v1beta.StatusError
		st.OperatorMessage = message
		if code != nil {
			st.Error = code.String()
		}
	})
}

func (s sessionStatus) setURL(ctx context.Context, session *v1beta.Session, url string) error {
	return s.deps.Client.UpdateSessionStatus(ctx, session, func(st *v1beta.SessionStatus) {
		st.URL = url
	})
}

// sessionStep selects one provisioning sub-step of a session status.
type sessionStep func(*v1beta.SessionStatus) **v1beta.StatusStep

func serviceCreation(st *v1beta.SessionStatus) **v1beta.StatusStep {
	return &st.ServiceCreation
}

func configMapCreation(st *v1beta.SessionStatus) **v1beta.StatusStep {
	return &st.ConfigMapCreation
}

func deploymentCreation(st *v1beta.SessionStatus) **v1beta.StatusStep {
	return &st.DeploymentCreation
}

func ingressUpdate(st *v1beta.SessionStatus) **v1beta.StatusStep {
	return &st.IngressUpdate
}

func (s sessionStatus) step(ctx context.Context, session *v1beta.Session, step sessionStep, status, message string) error {
	return s.deps.Client.UpdateSessionStatus(ctx, session, func(st *v1beta.SessionStatus) {
		*step(st) = v1beta.NewStatusStep(status, message)
	})
}

// failStep marks step as failed and records the domain failure in one write.
func (s sessionStatus) failStep(ctx context.Context, session *v1beta.Session, step sessionStep, message string) error {
	return s.deps.Client.UpdateSessionStatus(ctx, session, func(st *v1beta.SessionStatus) {
		*step(st) = v1beta.NewStatusStep(stepError, message)
		st.OperatorStatus = v1beta.StatusError
		st.OperatorMessage = message
	})
}

// stepFailed records an unexpected failure of step before err is handed
// to guard.
func (s sessionStatus) stepFailed(ctx context.Context, session *v1beta.Session, step sessionStep, err error, correlationID string) error {
	if statusErr := s.step(ctx, session, step, stepError, err.Error()); statusErr != nil {
		logging.Error("SessionHandler", statusErr, "[%s] Failed to record failed step of session %s", correlationID, session.Name)
	}
	return err
}

// guard runs add and turns unexpected failures into an ERROR status.
func (s sessionStatus) guard(ctx context.Context, session *v1beta.Session, correlationID string, add func() error) error {
	err := add()
	if err == nil || errors.Is(err, errSkip) {
		return nil
	}
	logging.Error("SessionHandler", err, "[%s] An unexpected error occurred while adding session %s", correlationID, session.Name)
	if statusErr := s.set(ctx, session, v1beta.StatusError, MessageUnexpectedError+correlationID); statusErr != nil {
		logging.Error("SessionHandler", statusErr, "[%s] Failed to update status of session %s", correlationID, session.Name)
	}
	return wrapUnexpected("session", session.Name, err)
}

// gate applies the shared status protocol to session.
func (s sessionStatus) gate(ctx context.Context, session *v1beta.Session, correlationID string) error {
	return gate(session.Status.ResourceStatus, "Session", session.Name, correlationID, func(message string) error {
		return s.set(ctx, session, v1beta.StatusError, message)
	})
}
