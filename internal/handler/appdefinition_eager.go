package handler

import (
	"context"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"theiacloud/internal/naming"
	"theiacloud/internal/template"
	"theiacloud/pkg/apis/theiacloud/v1beta"
	"theiacloud/pkg/logging"
)

const (
	templatePurposeProxy  = "proxy"
	templatePurposeEmails = "emails"
)

// EagerAppDefinitionHandler keeps minInstances pre-started instances of
// every app definition running.
type EagerAppDefinitionHandler struct {
	NoOps[*v1beta.AppDefinition]
	deps      Deps
	paths     PathProvider
	bandwidth BandwidthLimiter
}

// NewEagerAppDefinitionHandler creates the eager app definition handler.
func NewEagerAppDefinitionHandler(deps Deps) *EagerAppDefinitionHandler {
	return &EagerAppDefinitionHandler{
		deps:      deps,
		paths:     NewPathProvider(deps.Config),
		bandwidth: NewBandwidthLimiter(deps.Config),
	}
}

// Added creates every missing resource of the app definition's instances.
// Running it again only fills gaps.
func (h *EagerAppDefinitionHandler) Added(ctx context.Context, appDefinition *v1beta.AppDefinition, correlationID string) error {
	logging.Info("AppDefinitionHandler", "[%s] Handling app definition %s", correlationID, appDefinition.Name)

	available, err := ensureIngressOwnership(ctx, h.deps.Client, appDefinition, correlationID)
	if err != nil {
		return wrapUnexpected("app definition", appDefinition.Name, err)
	}
	if !available {
		return claimIngress(ctx, h.deps, appDefinition, correlationID)
	}

	steps := []func(context.Context, *v1beta.AppDefinition, string) error{
		h.ensureServices,
		h.ensureConfigMaps,
		h.ensureDeployments,
	}
	for _, step := range steps {
		if err := step(ctx, appDefinition, correlationID); err != nil {
			return wrapUnexpected("app definition", appDefinition.Name, err)
		}
	}

	return h.deps.Client.UpdateAppDefinitionStatus(ctx, appDefinition, func(s *v1beta.AppDefinitionStatus) {
		s.OperatorStatus = v1beta.StatusHandled
		s.OperatorMessage = ""
	})
}

// Modified reconciles like Added so raised minInstances take effect.
func (h *EagerAppDefinitionHandler) Modified(ctx context.Context, appDefinition *v1beta.AppDefinition, correlationID string) error {
	return h.Added(ctx, appDefinition, correlationID)
}

func (h *EagerAppDefinitionHandler) Deleted(_ context.Context, appDefinition *v1beta.AppDefinition, correlationID string) error {
	logging.Info("AppDefinitionHandler", "[%s] App definition %s deleted, instances are garbage collected", correlationID, appDefinition.Name)
	return nil
}

func (h *EagerAppDefinitionHandler) ensureServices(ctx context.Context, appDefinition *v1beta.AppDefinition, correlationID string) error {
	c := h.deps.Client
	services, err := c.ListServicesOwnedBy(ctx, appDefinition.Name, appDefinition.UID)
	if err != nil {
		return err
	}
	var external, internal []string
	for _, svc := range services {
		if isInternalServiceName(svc.Name) {
			internal = append(internal, svc.Name)
		} else {
			external = append(external, svc.Name)
		}
	}

	for _, instance := range MissingIndices(appDefinition.Spec.MinInstances, external, correlationID) {
		values := h.instanceValues(appDefinition, instance, naming.ForAppDefinition(appDefinition, instance, ""))
		svc, err := h.deps.Renderer.Service(values, h.deps.Config.KeycloakEnabled())
		if err != nil {
			return err
		}
		if err := h.createOwned(ctx, appDefinition, svc); err != nil {
			return err
		}
		logging.Info("AppDefinitionHandler", "[%s] Created service %s", correlationID, svc.Name)
	}

	for _, instance := range MissingIndices(appDefinition.Spec.MinInstances, internal, correlationID) {
		values := h.instanceValues(appDefinition, instance, naming.ForAppDefinitionWithSuffix(appDefinition, instance, naming.SuffixInternalService))
		svc, err := h.deps.Renderer.InternalService(values)
		if err != nil {
			return err
		}
		if err := h.createOwned(ctx, appDefinition, svc); err != nil {
			return err
		}
		logging.Info("AppDefinitionHandler", "[%s] Created internal service %s", correlationID, svc.Name)
	}
	return nil
}

func (h *EagerAppDefinitionHandler) ensureConfigMaps(ctx context.Context, appDefinition *v1beta.AppDefinition, correlationID string) error {
	if !h.deps.Config.KeycloakEnabled() {
		return nil
	}
	c := h.deps.Client
	configMaps, err := c.ListConfigMapsOwnedBy(ctx, appDefinition.Name, appDefinition.UID)
	if err != nil {
		return err
	}
	var proxies, emails []string
	for _, configMap := range configMaps {
		switch configMap.Labels[naming.LabelKeyTemplatePurpose] {
		case templatePurposeProxy:
			proxies = append(proxies, configMap.Name)
		case templatePurposeEmails:
			emails = append(emails, configMap.Name)
		}
	}

	for _, instance := range MissingIndices(appDefinition.Spec.MinInstances, proxies, correlationID) {
		values := h.instanceValues(appDefinition, instance, naming.ForAppDefinition(appDefinition, instance, naming.IdentifierProxyConfig))
		configMap, err := h.deps.Renderer.ProxyConfigMap(values)
		if err != nil {
			return err
		}
		host := h.deps.Config.InstancesHost + h.paths.ForInstance(appDefinition, instance)
		if err := fillProxyConfig(ctx, c, configMap, host, appDefinition.Spec.Port); err != nil {
			return err
		}
		if err := h.createOwned(ctx, appDefinition, configMap); err != nil {
			return err
		}
		logging.Info("AppDefinitionHandler", "[%s] Created proxy config map %s", correlationID, configMap.Name)
	}

	for _, instance := range MissingIndices(appDefinition.Spec.MinInstances, emails, correlationID) {
		values := h.instanceValues(appDefinition, instance, naming.ForAppDefinition(appDefinition, instance, naming.IdentifierEmailConfig))
		configMap, err := h.deps.Renderer.EmailsConfigMap(values)
		if err != nil {
			return err
		}
		if err := h.createOwned(ctx, appDefinition, configMap); err != nil {
			return err
		}
		logging.Info("AppDefinitionHandler", "[%s] Created emails config map %s", correlationID, configMap.Name)
	}
	return nil
}

func (h *EagerAppDefinitionHandler) ensureDeployments(ctx context.Context, appDefinition *v1beta.AppDefinition, correlationID string) error {
	c := h.deps.Client
	deployments, err := c.ListDeploymentsOwnedBy(ctx, appDefinition.Name, appDefinition.UID)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(deployments))
	for _, deployment := range deployments {
		names = append(names, deployment.Name)
	}

	for _, instance := range MissingIndices(appDefinition.Spec.MinInstances, names, correlationID) {
		values := h.instanceValues(appDefinition, instance, naming.ForAppDefinition(appDefinition, instance, naming.IdentifierDeployment))
		values.ProxyConfigName = naming.ForAppDefinition(appDefinition, instance, naming.IdentifierProxyConfig)
		values.EmailsConfigName = naming.ForAppDefinition(appDefinition, instance, naming.IdentifierEmailConfig)
		deployment, err := h.deps.Renderer.Deployment(values, h.deps.Config.KeycloakEnabled())
		if err != nil {
			return err
		}
		h.bandwidth.Limit(deployment, appDefinition.Spec.DownlinkLimit, appDefinition.Spec.UplinkLimit)
		removeEmptyResources(deployment)
		addImagePullSecret(deployment, appDefinition)
		if err := h.createOwned(ctx, appDefinition, deployment); err != nil {
			return err
		}
		logging.Info("AppDefinitionHandler", "[%s] Created deployment %s", correlationID, deployment.Name)
	}
	return nil
}

func (h *EagerAppDefinitionHandler) instanceValues(appDefinition *v1beta.AppDefinition, instance int, name string) template.Values {
	values := h.deps.values(appDefinition)
	values.Name = name
	values.AppSelector = naming.AppSelector(appDefinition.Spec.Name, instance)
	return values
}

func (h *EagerAppDefinitionHandler) createOwned(ctx context.Context, appDefinition *v1beta.AppDefinition, obj client.Object) error {
	ref, err := h.deps.Client.OwnerReference(appDefinition)
	if err != nil {
		return err
	}
	obj.SetOwnerReferences([]metav1.OwnerReference{ref})
	return h.deps.Client.CreateNamespaced(ctx, obj)
}
