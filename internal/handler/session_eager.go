package handler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"

	theiaclient "theiacloud/internal/client"
	"theiacloud/internal/naming"
	"theiacloud/pkg/apis/theiacloud/v1beta"
	"theiacloud/pkg/logging"
)

// releaseAttempts bounds how often handing back an instance is tried.
const releaseAttempts = 3

// errTaken reports that another session reserved a service concurrently.
var errTaken = errors.New("service already reserved")

// EagerSessionHandler assigns sessions to pre-started instances.
type EagerSessionHandler struct {
	NoOps[*v1beta.Session]
	deps   Deps
	status sessionStatus
	paths  PathProvider
}

// NewEagerSessionHandler creates the eager session handler.
func NewEagerSessionHandler(deps Deps) *EagerSessionHandler {
	return &EagerSessionHandler{
		deps:   deps,
		status: sessionStatus{deps: deps},
		paths:  NewPathProvider(deps.Config),
	}
}

// Added reserves a free instance of the app definition for the session.
func (h *EagerSessionHandler) Added(ctx context.Context, session *v1beta.Session, correlationID string) error {
	return h.status.guard(ctx, session, correlationID, func() error {
		return h.added(ctx, session, correlationID)
	})
}

func (h *EagerSessionHandler) added(ctx context.Context, session *v1beta.Session, correlationID string) error {
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

	if err := h.status.step(ctx, session, serviceCreation, stepStarted, ""); err != nil {
		return err
	}
	services, err := c.ListServicesOwnedBy(ctx, appDefinition.Name, appDefinition.UID)
	if err != nil {
		return err
	}
	external, reused, err := h.reserve(ctx, session, services, func(name string) bool {
		return !isInternalServiceName(name)
	})
	if err != nil {
		return err
	}
	if external == nil {
		logging.Error("SessionHandler", nil, "[%s] No pre-started instance of %s available for session %s",
			correlationID, appDefinition.Spec.Name, session.Name)
		return h.status.failStep(ctx, session, serviceCreation, MessageNoInstance)
	}
	if reused {
		logging.Info("SessionHandler", "[%s] Session %s already owns service %s, completing its assignment", correlationID, session.Name, external.Name)
	}

	instance, err := naming.InstanceIndex(external.Name)
	if err != nil {
		return err
	}
	internalName := naming.ForAppDefinitionWithSuffix(appDefinition, instance, naming.SuffixInternalService)
	internal, _, err := h.reserve(ctx, session, services, func(name string) bool {
		return name == internalName
	})
	if err != nil {
		return err
	}
	if internal == nil {
		logging.Error("SessionHandler", nil, "[%s] Internal service %s not available for session %s",
			correlationID, internalName, session.Name)
		return h.status.failStep(ctx, session, serviceCreation, MessageNoInstance)
	}
	logging.Info("SessionHandler", "[%s] Assigned instance %d of %s to session %s", correlationID, instance, appDefinition.Spec.Name, session.Name)

	labels := naming.SessionLabels(session, appDefinition)
	for _, name := range []string{external.Name, internal.Name} {
		_, err := c.EditService(ctx, name, func(svc *corev1.Service) error {
			if svc.Labels == nil {
				svc.Labels = map[string]string{}
			}
			for k, v := range labels {
				svc.Labels[k] = v
			}
			return nil
		})
		if err != nil {
			return h.status.stepFailed(ctx, session, serviceCreation, err, correlationID)
		}
	}
	if err := h.status.step(ctx, session, serviceCreation, stepFinished, ""); err != nil {
		return err
	}

	if err := h.status.step(ctx, session, deploymentCreation, stepStarted, ""); err != nil {
		return err
	}
	ref, err := c.OwnerReference(session)
	if err != nil {
		return err
	}
	deploymentName := naming.ForAppDefinition(appDefinition, instance, naming.IdentifierDeployment)
	_, err = c.EditDeployment(ctx, deploymentName, func(deployment *appsv1.Deployment) error {
		theiaclient.AddOwnerReference(deployment, ref)
		return nil
	})
	if err != nil {
		return h.status.stepFailed(ctx, session, deploymentCreation, err, correlationID)
	}
	if err := h.status.step(ctx, session, deploymentCreation, stepFinished, ""); err != nil {
		return err
	}

	if h.deps.Config.KeycloakEnabled() {
		if err := h.status.step(ctx, session, configMapCreation, stepStarted, ""); err != nil {
			return err
		}
		if err := h.setEmails(ctx, appDefinition, instance, session.Spec.User); err != nil {
			return h.status.stepFailed(ctx, session, configMapCreation, err, correlationID)
		}
		if err := h.refreshPods(ctx, deploymentName, correlationID); err != nil {
			return h.status.stepFailed(ctx, session, configMapCreation, err, correlationID)
		}
		if err := h.status.step(ctx, session, configMapCreation, stepFinished, ""); err != nil {
			return err
		}
	}

	if err := h.status.step(ctx, session, ingressUpdate, stepStarted, ""); err != nil {
		return err
	}
	hosts := ingressHosts(h.deps.Config.InstancesHost, appDefinition)
	path := h.paths.ForInstance(appDefinition, instance)
	url, err := addIngressRules(ctx, c, appDefinition.Spec.IngressName, hosts, path, external.Name, appDefinition.Spec.Port)
	if err != nil {
		logging.Error("SessionHandler", err, "[%s] Error while editing ingress %s", correlationID, appDefinition.Spec.IngressName)
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

// reserve adds the session as owner of the first unused service whose
// name matches. A matching service already owned by the session is returned
// with reused set.
func (h *EagerSessionHandler) reserve(ctx context.Context, session *v1beta.Session, services []corev1.Service, match func(name string) bool) (*corev1.Service, bool, error) {
	for i := range services {
		svc := &services[i]
		if match(svc.Name) && theiaclient.HasOwnerReference(svc, session.Name, session.UID) {
			return svc, true, nil
		}
	}

	ref, err := h.deps.Client.OwnerReference(session)
	if err != nil {
		return nil, false, err
	}
	sort.Slice(services, func(i, j int) bool { return services[i].Name < services[j].Name })
	for i := range services {
		svc := &services[i]
		if !match(svc.Name) || len(svc.OwnerReferences) != 1 {
			continue
		}
		reserved, err := h.deps.Client.EditService(ctx, svc.Name, func(stored *corev1.Service) error {
			if len(stored.OwnerReferences) != 1 {
				return errTaken
			}
			theiaclient.AddOwnerReference(stored, ref)
			return nil
		})
		if errors.Is(err, errTaken) {
			continue
		}
		if err != nil {
			return nil, false, err
		}
		return reserved, false, nil
	}
	return nil, false, nil
}

// Deleted hands the session's instance back to the pool.
func (h *EagerSessionHandler) Deleted(ctx context.Context, session *v1beta.Session, correlationID string) error {
	c := h.deps.Client
	services, err := c.ListServices(ctx, map[string]string{
		naming.LabelKeySessionName: session.Spec.Name,
		naming.LabelKeySessionUID:  string(session.UID),
	})
	if err != nil {
		return err
	}
	var external, internal []corev1.Service
	for _, svc := range services {
		if isInternalServiceName(svc.Name) {
			internal = append(internal, svc)
		} else {
			external = append(external, svc)
		}
	}
	if len(external) != 1 || len(internal) != 1 {
		logging.Error("SessionHandler", nil, "[%s] Expected one service and one internal service for session %s, found %d and %d",
			correlationID, session.Name, len(external), len(internal))
		return nil
	}

	for _, svc := range []corev1.Service{external[0], internal[0]} {
		if err := h.release(ctx, svc.Name, session, correlationID); err != nil {
			return err
		}
	}

	instance, err := naming.InstanceIndex(external[0].Name)
	if err != nil {
		return err
	}
	appDefinition, err := c.GetAppDefinition(ctx, session.Spec.AppDefinition)
	if err != nil {
		return err
	}

	path := h.paths.ForInstance(appDefinition, instance)
	if _, err := removeIngressRules(ctx, c, appDefinition.Spec.IngressName, path, nil, correlationID); err != nil && !isNotFound(err) {
		return err
	}

	deploymentName := naming.ForAppDefinition(appDefinition, instance, naming.IdentifierDeployment)
	_, err = c.EditDeployment(ctx, deploymentName, func(deployment *appsv1.Deployment) error {
		theiaclient.RemoveOwnerReference(deployment, session.UID)
		return nil
	})
	if err != nil {
		return err
	}

	if h.deps.Config.KeycloakEnabled() {
		if err := h.setEmails(ctx, appDefinition, instance, ""); err != nil {
			return err
		}
	}

	pods, err := c.ListPods(ctx)
	if err != nil {
		return err
	}
	for i := range pods {
		if !strings.HasPrefix(pods[i].Name, deploymentName) {
			continue
		}
		if err := c.DeleteIgnoreNotFound(ctx, &pods[i]); err != nil {
			return err
		}
		logging.Info("SessionHandler", "[%s] Deleted pod %s to restart instance %d", correlationID, pods[i].Name, instance)
	}
	return nil
}

// release removes the session owner and labels from a service.
func (h *EagerSessionHandler) release(ctx context.Context, name string, session *v1beta.Session, correlationID string) error {
	var err error
	for attempt := 1; attempt <= releaseAttempts; attempt++ {
		_, err = h.deps.Client.EditService(ctx, name, func(svc *corev1.Service) error {
			theiaclient.RemoveOwnerReference(svc, session.UID)
			for _, key := range naming.SessionSpecificLabelKeys() {
				delete(svc.Labels, key)
			}
			return nil
		})
		if err == nil {
			return nil
		}
		logging.Warn("SessionHandler", "[%s] Attempt %d to release service %s failed: %v", correlationID, attempt, name, err)
	}
	return fmt.Errorf("failed to release service %s after %d attempts: %w", name, releaseAttempts, err)
}

func (h *EagerSessionHandler) setEmails(ctx context.Context, appDefinition *v1beta.AppDefinition, instance int, user string) error {
	name := naming.ForAppDefinition(appDefinition, instance, naming.IdentifierEmailConfig)
	_, err := h.deps.Client.EditConfigMap(ctx, name, func(configMap *corev1.ConfigMap) error {
		if configMap.Data == nil {
			configMap.Data = map[string]string{}
		}
		configMap.Data[authenticatedEmailsKey] = user
		return nil
	})
	return err
}

// refreshPods touches the instance pods so the mounted emails list is
// picked up without waiting for the kubelet sync period.
func (h *EagerSessionHandler) refreshPods(ctx context.Context, deploymentName, correlationID string) error {
	pods, err := h.deps.Client.ListPods(ctx)
	if err != nil {
		return err
	}
	stamp := h.deps.now().Format(time.RFC3339)
	for _, pod := range pods {
		if !strings.HasPrefix(pod.Name, deploymentName) {
			continue
		}
		_, err := h.deps.Client.EditPod(ctx, pod.Name, func(p *corev1.Pod) error {
			if p.Annotations == nil {
				p.Annotations = map[string]string{}
			}
			p.Annotations[annotationEagerRefreshed] = stamp
			return nil
		})
		if err != nil {
			return err
		}
		logging.Debug("SessionHandler", "[%s] Refreshed pod %s", correlationID, pod.Name)
	}
	return nil
}
