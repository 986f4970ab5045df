package handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"

	theiaclient "theiacloud/internal/client"
	"theiacloud/internal/config"
	"theiacloud/internal/template"
	"theiacloud/pkg/apis/theiacloud/v1beta"
	"theiacloud/pkg/logging"
)

// Handler reacts to the watch events of one resource kind. A returned error
// means the handler failed unexpectedly; domain failures are recorded on the
// resource status instead and return nil.
type Handler[T client.Object] interface {
	Added(ctx context.Context, obj T, correlationID string) error
	Modified(ctx context.Context, obj T, correlationID string) error
	Deleted(ctx context.Context, obj T, correlationID string) error
	Errored(ctx context.Context, obj T, correlationID string) error
	Bookmarked(ctx context.Context, obj T, correlationID string) error
}

// NoOps provides empty implementations for the events most handlers ignore.
type NoOps[T client.Object] struct{}

func (NoOps[T]) Modified(context.Context, T, string) error   { return nil }
func (NoOps[T]) Errored(context.Context, T, string) error    { return nil }
func (NoOps[T]) Bookmarked(context.Context, T, string) error { return nil }

// Deps are the collaborators shared by all handlers.
type Deps struct {
	Client   *theiaclient.Client
	Renderer *template.Renderer
	Config   config.OperatorConfig
	// Now defaults to time.Now.
	Now func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// values fills the template values shared by every instance of appDefinition.
func (d Deps) values(appDefinition *v1beta.AppDefinition) template.Values {
	values := template.ForAppDefinition(d.Client.Namespace(), appDefinition, d.Config.EnableMonitor)
	values.ActivityTrackerEnabled = values.ActivityTrackerEnabled && d.Config.ActivityTrackingEnabled()
	values.AppID = d.Config.AppID
	values.ServiceURL = d.Config.ServiceURL
	values.OAuth2ProxyVersion = d.Config.OAuth2ProxyVersion
	return values
}

// Set bundles the handlers selected for one operator run.
type Set struct {
	AppDefinitions Handler[*v1beta.AppDefinition]
	Sessions       Handler[*v1beta.Session]
	Workspaces     Handler[*v1beta.Workspace]
}

// NewSet selects the eager or lazy policy according to the configuration.
func NewSet(deps Deps) Set {
	set := Set{Workspaces: NewWorkspaceHandler(deps)}
	if deps.Config.EagerStart {
		set.AppDefinitions = NewEagerAppDefinitionHandler(deps)
		set.Sessions = NewEagerSessionHandler(deps)
	} else {
		set.AppDefinitions = NewLazyAppDefinitionHandler(deps)
		set.Sessions = NewLazySessionHandler(deps)
	}
	return set
}

// Status messages written by the handlers.
const (
	MessageUnexpectedError  = "Unexpected error. Please check the logs for correlationId: "
	MessageInterrupted      = "Handling was unexpectedly interrupted before. CorrelationId: "
	MessageAppDefNotFound   = "App Definition not found."
	MessageMaxInstances     = "Max instances reached."
	MessageMaxSessions      = "Max sessions reached."
	MessageIngressMissing   = "Ingress not available."
	MessageServiceExists    = "Service already exists."
	MessageConfigMapsExist  = "Configmaps already exist."
	MessageDeploymentExists = "Deployment already exists."
	MessageServiceFailed    = "Failed to create service."
	MessageInternalFailed   = "Failed to create internal service."
	MessageIngressFailed    = "Failed to edit ingress"
	MessageURLFailed        = "Failed to set session URL."
	MessageNoInstance       = "No pre-started instance available."
)

// errSkip signals that a resource was handled or failed before and is left alone.
var errSkip = errors.New("skip")

// gate applies the shared status protocol before handling an added
// resource. It returns errSkip when the resource must not be handled again
// and marks interrupted resources as failed.
func gate(status v1beta.ResourceStatus, kind, name, correlationID string, markInterrupted func(message string) error) error {
	switch status.Current() {
	case v1beta.StatusHandled:
		logging.Debug(kind+"Handler", "[%s] %s %s was successfully handled before and is skipped now", correlationID, kind, name)
		return errSkip
	case v1beta.StatusHandling:
		logging.Warn(kind+"Handler", "[%s] Handling of %s %s was unexpectedly interrupted before, setting status to ERROR", correlationID, kind, name)
		if err := markInterrupted(MessageInterrupted + correlationID); err != nil {
			return err
		}
		return errSkip
	case v1beta.StatusError:
		logging.Warn(kind+"Handler", "[%s] %s %s could not be handled before and is skipped now", correlationID, kind, name)
		return errSkip
	default:
		return nil
	}
}

// recordWarning emits a warning event on obj and only logs when that fails.
func recordWarning(ctx context.Context, c *theiaclient.Client, obj client.Object, reason, message, correlationID string) {
	if err := c.RecordEvent(ctx, obj, reason, message, corev1.EventTypeWarning); err != nil {
		logging.Debug("Handler", "[%s] Failed to record event %s on %s: %v", correlationID, reason, obj.GetName(), err)
	}
}

func wrapUnexpected(kind, name string, err error) error {
	return fmt.Errorf("unexpected error while handling %s %s: %w", kind, name, err)
}
