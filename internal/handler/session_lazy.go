package handler

import (
	"context"
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"theiacloud/internal/naming"
	"theiacloud/internal/template"
	"theiacloud/pkg/apis/theiacloud/v1beta"
	"theiacloud/pkg/logging"
)

// LazySessionHandler starts a dedicated deployment for every session.
type LazySessionHandler struct {
	NoOps[*v1beta.Session]
	deps      Deps
	status    sessionStatus
	paths     PathProvider
	bandwidth BandwidthLimiter
}

// NewLazySessionHandler creates the lazy session handler.
func NewLazySessionHandler(deps Deps) *LazySessionHandler {
	return &LazySessionHandler{
		deps:      deps,
		status:    sessionStatus{deps: deps},
		paths:     NewPathProvider(deps.Config),
		bandwidth: NewBandwidthLimiter(deps.Config),
	}
}

// Added creates the services, config maps, deployment and ingress rules of
// the session.
func (h *LazySessionHandler) Added(ctx context.Context, session *v1beta.Session, correlationID string) error {
	return h.status.guard(ctx, session, correlationID, func() error {
		return h.added(ctx, session, correlationID)
	})
}

func (h *LazySessionHandler) added(ctx context.Context, session *v1beta.Session, correlationID string) error {
	c := h.deps.Client
	logging.Info("SessionHandler", "[%s] Handling session %s", correlationID, session.Name)

	if err := h.status.gate(ctx, session, correlationID); err != nil {
		return err
	}
	if err := h.status.set(ctx, session, v1beta.StatusHandling, ""); err != nil {
		return err
	}

	appDefinition, err := c.GetAppDefinition(ctx, session.Spec.AppDefinition)
	if err != nil {
		if !isNotFound(err) {
			return err
		}
		logging.Error("SessionHandler", nil, "[%s] No app definition with name %s found", correlationID, session.Spec.AppDefinition)
		return h.status.fail(ctx, session, MessageAppDefNotFound, nil)
	}

	if reached, err := h.maxInstancesReached(ctx, appDefinition); err != nil {
		return err
	} else if reached {
		logging.Info("SessionHandler", "[%s] Max instances reached for %s", correlationID, appDefinition.Spec.Name)
		return h.status.fail(ctx, session, MessageMaxInstances, &v1beta.ErrSessionServerLimitReached)
	}

	if code, err := h.userLimitReached(ctx, session); err != nil {
		return err
	} else if code != nil {
		logging.Info("SessionHandler", "[%s] No more sessions allowed for user %s", correlationID, session.Spec.User)
		return h.status.fail(ctx, session, MessageMaxSessions, code)
	}

	ingress, err := c.FindIngressOwnedBy(ctx, appDefinition.Name, appDefinition.UID)
	if err != nil {
		return err
	}
	if ingress == nil {
		logging.Error("SessionHandler", nil, "[%s] No ingress for app definition %s found", correlationID, appDefinition.Name)
		return h.status.fail(ctx, session, MessageIngressMissing, nil)
	}

	h.syncWorkspace(ctx, session, correlationID)

	services, err := c.ListServicesOwnedBy(ctx, session.Name, session.UID)
	if err != nil {
		return err
	}
	if len(services) > 0 {
		logging.Warn("SessionHandler", "[%s] Service for session %s already exists", correlationID, session.Name)
		return h.status.handled(ctx, session, MessageServiceExists)
	}

	path := h.paths.ForSession(session)
	values := h.sessionValues(session, appDefinition, path)

	if err := h.status.step(ctx, session, serviceCreation, stepStarted, ""); err != nil {
		return err
	}
	serviceName := naming.ForSession(session, "")
	service, err := h.deps.Renderer.Service(withName(values, serviceName), h.deps.Config.KeycloakEnabled())
	if err == nil {
		err = h.createOwned(ctx, session, appDefinition, service)
	}
	if err != nil {
		logging.Error("SessionHandler", err, "[%s] Unable to create service for session %s", correlationID, session.Name)
		return h.status.failStep(ctx, session, serviceCreation, MessageServiceFailed)
	}

	internal, err := h.deps.Renderer.InternalService(withName(values, naming.ForSessionWithSuffix(session, naming.SuffixInternalService)))
	if err == nil {
		err = h.createOwned(ctx, session, appDefinition, internal)
	}
	if err != nil {
		logging.Error("SessionHandler", err, "[%s] Unable to create internal service for session %s", correlationID, session.Name)
		return h.status.failStep(ctx, session, serviceCreation, MessageInternalFailed)
	}
	if err := h.status.step(ctx, session, serviceCreation, stepFinished, ""); err != nil {
		return err
	}

	if h.deps.Config.KeycloakEnabled() {
		configMaps, err := c.ListConfigMapsOwnedBy(ctx, session.Name, session.UID)
		if err != nil {
			return err
		}
		if len(configMaps) > 0 {
			logging.Warn("SessionHandler", "[%s] Config maps for session %s already exist", correlationID, session.Name)
			return h.status.handled(ctx, session, MessageConfigMapsExist)
		}
		if err := h.status.step(ctx, session, configMapCreation, stepStarted, ""); err != nil {
			return err
		}
		if err := h.createConfigMaps(ctx, session, appDefinition, values, path); err != nil {
			return h.status.stepFailed(ctx, session, configMapCreation, err, correlationID)
		}
		if err := h.status.step(ctx, session, configMapCreation, stepFinished, ""); err != nil {
			return err
		}
	}

	deployments, err := c.ListDeploymentsOwnedBy(ctx, session.Name, session.UID)
	if err != nil {
		return err
	}
	if len(deployments) > 0 {
		logging.Warn("SessionHandler", "[%s] Deployment for session %s already exists", correlationID, session.Name)
		return h.status.handled(ctx, session, MessageDeploymentExists)
	}

	if err := h.status.step(ctx, session, deploymentCreation, stepStarted, ""); err != nil {
		return err
	}
	storageName, err := h.storageName(ctx, session, correlationID)
	if err != nil {
		return h.status.stepFailed(ctx, session, deploymentCreation, err, correlationID)
	}
	if err := h.createDeployment(ctx, session, appDefinition, values, storageName, correlationID); err != nil {
		return h.status.stepFailed(ctx, session, deploymentCreation, err, correlationID)
	}
	if err := h.status.step(ctx, session, deploymentCreation, stepFinished, ""); err != nil {
		return err
	}

	if err := h.status.step(ctx, session, ingressUpdate, stepStarted, ""); err != nil {
		return err
	}
	hosts := ingressHosts(h.deps.Config.InstancesHost, appDefinition)
	url, err := addIngressRules(ctx, c, ingress.Name, hosts, path, serviceName, appDefinition.Spec.Port)
	if err != nil {
		logging.Error("SessionHandler", err, "[%s] Error while editing ingress %s", correlationID, ingress.Name)
		return h.status.failStep(ctx, session, ingressUpdate, MessageIngressFailed)
	}
	if err := h.status.step(ctx, session, ingressUpdate, stepFinished, ""); err != nil {
		return err
	}

	if err := h.status.setURL(ctx, session, url); err != nil {
		logging.Error("SessionHandler", err, "[%s] Error while setting url of session %s", correlationID, session.Name)
		return h.status.fail(ctx, session, MessageURLFailed, nil)
	}
	return h.status.handled(ctx, session, "")
}

// Deleted removes the session's ingress rules. Everything else is owned by
// the session and garbage collected.
func (h *LazySessionHandler) Deleted(ctx context.Context, session *v1beta.Session, correlationID string) error {
	appDefinition, err := h.deps.Client.GetAppDefinition(ctx, session.Spec.AppDefinition)
	if err != nil {
		if isNotFound(err) {
			logging.Warn("SessionHandler", "[%s] App definition %s of deleted session %s is gone, no ingress rules to remove",
				correlationID, session.Spec.AppDefinition, session.Name)
			return nil
		}
		return err
	}
	_, err = removeIngressRules(ctx, h.deps.Client, appDefinition.Spec.IngressName, h.paths.ForSession(session), nil, correlationID)
	if isNotFound(err) {
		logging.Warn("SessionHandler", "[%s] Ingress %s not found", correlationID, appDefinition.Spec.IngressName)
		return nil
	}
	return err
}

// maxInstancesReached counts the sessions of the app definition that did
// not fail, including the one being handled.
func (h *LazySessionHandler) maxInstancesReached(ctx context.Context, appDefinition *v1beta.AppDefinition) (bool, error) {
	limit, ok := appDefinition.Spec.MaxInstancesLimit()
	if !ok {
		return false, nil
	}
	sessions, err := h.deps.Client.ListSessions(ctx)
	if err != nil {
		return false, err
	}
	count := 0
	for _, s := range sessions {
		if s.Spec.AppDefinition == appDefinition.Name && s.Status.Current() != v1beta.StatusError {
			count++
		}
	}
	return count > limit, nil
}

// userLimitReached returns the error code when the user may not start
// another session.
func (h *LazySessionHandler) userLimitReached(ctx context.Context, session *v1beta.Session) (*v1beta.TheiaCloudError, error) {
	limit := h.deps.Config.SessionsPerUser
	if limit == nil || *limit < 0 {
		return nil, nil
	}
	if *limit == 0 {
		return &v1beta.ErrSessionUserNoSessions, nil
	}
	sessions, err := h.deps.Client.ListSessionsOfUser(ctx, session.Spec.User)
	if err != nil {
		return nil, err
	}
	if len(sessions) > *limit {
		return &v1beta.ErrSessionUserLimitReached, nil
	}
	return nil, nil
}

// syncWorkspace remembers the app definition last used with a workspace.
func (h *LazySessionHandler) syncWorkspace(ctx context.Context, session *v1beta.Session, correlationID string) {
	if session.Spec.IsEphemeral() || session.Spec.AppDefinition == "" {
		return
	}
	_, err := h.deps.Client.EditWorkspace(ctx, session.Spec.Workspace, func(workspace *v1beta.Workspace) error {
		workspace.Spec.AppDefinition = session.Spec.AppDefinition
		return nil
	})
	if err != nil {
		logging.Warn("SessionHandler", "[%s] Could not update app definition of workspace %s: %v", correlationID, session.Spec.Workspace, err)
	}
}

// storageName returns the claim to mount, or "" when the session has no
// usable workspace storage.
func (h *LazySessionHandler) storageName(ctx context.Context, session *v1beta.Session, correlationID string) (string, error) {
	if session.Spec.IsEphemeral() {
		return "", nil
	}
	workspace, err := h.deps.Client.GetWorkspace(ctx, session.Spec.Workspace)
	if err != nil {
		if isNotFound(err) {
			logging.Warn("SessionHandler", "[%s] Workspace %s of session %s not found, starting without storage",
				correlationID, session.Spec.Workspace, session.Name)
			return "", nil
		}
		return "", err
	}
	if workspace.Spec.User != session.Spec.User {
		logging.Error("SessionHandler", nil, "[%s] Workspace %s is owned by %s, but requested by %s",
			correlationID, workspace.Name, workspace.Spec.User, session.Spec.User)
		return "", nil
	}
	storageName := naming.StorageName(workspace)
	exists, err := h.deps.Client.PersistentVolumeClaimExists(ctx, storageName)
	if err != nil || !exists {
		return "", err
	}
	return storageName, nil
}

func (h *LazySessionHandler) createConfigMaps(ctx context.Context, session *v1beta.Session, appDefinition *v1beta.AppDefinition, values template.Values, path string) error {
	emails, err := h.deps.Renderer.EmailsConfigMap(withName(values, naming.ForSession(session, naming.IdentifierEmailConfig)))
	if err != nil {
		return err
	}
	if err := h.createOwned(ctx, session, appDefinition, emails); err != nil {
		return err
	}

	proxy, err := h.deps.Renderer.ProxyConfigMap(withName(values, naming.ForSession(session, naming.IdentifierProxyConfig)))
	if err != nil {
		return err
	}
	host := h.deps.Config.InstancesHost + path
	if err := fillProxyConfig(ctx, h.deps.Client, proxy, host, appDefinition.Spec.Port); err != nil {
		return err
	}
	return h.createOwned(ctx, session, appDefinition, proxy)
}

func (h *LazySessionHandler) createDeployment(ctx context.Context, session *v1beta.Session, appDefinition *v1beta.AppDefinition, values template.Values, storageName, correlationID string) error {
	values = withName(values, naming.ForSession(session, naming.IdentifierDeployment))
	values.ProxyConfigName = naming.ForSession(session, naming.IdentifierProxyConfig)
	values.EmailsConfigName = naming.ForSession(session, naming.IdentifierEmailConfig)

	deployment, err := h.deps.Renderer.Deployment(values, h.deps.Config.KeycloakEnabled())
	if err != nil {
		return err
	}
	addPodLabels(deployment, naming.SessionLabels(session, appDefinition))
	if storageName != "" {
		if err := addUserDataVolume(deployment, storageName, appDefinition); err != nil {
			return err
		}
	}
	h.bandwidth.Limit(deployment, appDefinition.Spec.DownlinkLimit, appDefinition.Spec.UplinkLimit)
	removeEmptyResources(deployment)
	addSessionEnv(deployment, session, appDefinition, correlationID)
	addImagePullSecret(deployment, appDefinition)

	if err := h.createOwned(ctx, session, appDefinition, deployment); err != nil {
		return fmt.Errorf("failed to create deployment for session %s: %w", session.Name, err)
	}
	logging.Info("SessionHandler", "[%s] Created deployment %s", correlationID, deployment.Name)
	return nil
}

func (h *LazySessionHandler) sessionValues(session *v1beta.Session, appDefinition *v1beta.AppDefinition, path string) template.Values {
	values := h.deps.values(appDefinition)
	values.AppSelector = naming.SessionAppSelector(session.Name, string(session.UID))
	values.SessionUID = string(session.UID)
	values.SessionName = session.Spec.Name
	values.SessionUser = session.Spec.User
	values.SessionSecret = session.Spec.SessionSecret
	values.SessionURL = h.deps.Config.InstancesHost + path + "/"
	return values
}

// createOwned creates obj owned by session and carrying its labels.
func (h *LazySessionHandler) createOwned(ctx context.Context, session *v1beta.Session, appDefinition *v1beta.AppDefinition, obj client.Object) error {
	ref, err := h.deps.Client.OwnerReference(session)
	if err != nil {
		return err
	}
	obj.SetOwnerReferences([]metav1.OwnerReference{ref})
	labels := obj.GetLabels()
	if labels == nil {
		labels = map[string]string{}
	}
	for k, v := range naming.SessionLabels(session, appDefinition) {
		labels[k] = v
	}
	obj.SetLabels(labels)
	return h.deps.Client.CreateNamespaced(ctx, obj)
}

func withName(values template.Values, name string) template.Values {
	values.Name = name
	return values
}
