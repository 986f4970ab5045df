package handler

import (
	"context"

	"theiacloud/pkg/apis/theiacloud/v1beta"
	"theiacloud/pkg/logging"
)

// LazyAppDefinitionHandler only claims the ingress of an app definition;
// resources are created per session.
type LazyAppDefinitionHandler struct {
	NoOps[*v1beta.AppDefinition]
	deps Deps
}

// NewLazyAppDefinitionHandler creates the lazy app definition handler.
func NewLazyAppDefinitionHandler(deps Deps) *LazyAppDefinitionHandler {
	return &LazyAppDefinitionHandler{deps: deps}
}

func (h *LazyAppDefinitionHandler) Added(ctx context.Context, appDefinition *v1beta.AppDefinition, correlationID string) error {
	logging.Info("AppDefinitionHandler", "[%s] Handling app definition %s", correlationID, appDefinition.Name)
	return claimIngress(ctx, h.deps, appDefinition, correlationID)
}

func (h *LazyAppDefinitionHandler) Deleted(_ context.Context, appDefinition *v1beta.AppDefinition, correlationID string) error {
	// Owned resources are garbage collected.
	logging.Info("AppDefinitionHandler", "[%s] App definition %s deleted", correlationID, appDefinition.Name)
	return nil
}

// claimIngress adds the owner reference to the app definition's ingress
// and reports the outcome on the app definition status.
func claimIngress(ctx context.Context, deps Deps, appDefinition *v1beta.AppDefinition, correlationID string) error {
	c := deps.Client
	available, err := ensureIngressOwnership(ctx, c, appDefinition, correlationID)
	if err != nil {
		return wrapUnexpected("app definition", appDefinition.Name, err)
	}
	if !available {
		logging.Error("AppDefinitionHandler", nil, "[%s] No ingress named %s available for app definition %s",
			correlationID, appDefinition.Spec.IngressName, appDefinition.Name)
		recordWarning(ctx, c, appDefinition, "IngressMissing", MessageIngressMissing, correlationID)
		return c.UpdateAppDefinitionStatus(ctx, appDefinition, func(s *v1beta.AppDefinitionStatus) {
			s.OperatorStatus = v1beta.StatusError
			s.OperatorMessage = MessageIngressMissing
		})
	}
	return c.UpdateAppDefinitionStatus(ctx, appDefinition, func(s *v1beta.AppDefinitionStatus) {
		s.OperatorStatus = v1beta.StatusHandled
		s.OperatorMessage = ""
	})
}
