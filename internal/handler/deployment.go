package handler

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"

	theiaclient "theiacloud/internal/client"
	"theiacloud/pkg/apis/theiacloud/v1beta"
	"theiacloud/pkg/logging"
)

const (
	userDataVolume   = "user-data"
	defaultMountPath = "/home/project/persisted"

	// oauth2ProxyConfigMap is installed with the platform and holds the
	// proxy configuration every session copy starts from.
	oauth2ProxyConfigMap     = "oauth2-proxy-config"
	oauth2ProxyConfigKey     = "oauth2-proxy.cfg"
	authenticatedEmailsKey   = "authenticated-emails-list"
	placeholderHost          = "https://placeholder"
	placeholderPort          = "placeholder-port"
	annotationEagerRefreshed = "theia-cloud.io/eager-start-refresh"
)

func isNotFound(err error) bool {
	return apierrors.IsNotFound(err)
}

// theiaContainer finds the application container of a session pod.
func theiaContainer(podSpec *corev1.PodSpec, appDefinition *v1beta.AppDefinition) (*corev1.Container, bool) {
	for i := range podSpec.Containers {
		if podSpec.Containers[i].Name == appDefinition.Spec.Name {
			return &podSpec.Containers[i], true
		}
	}
	for i := range podSpec.Containers {
		if strings.HasPrefix(podSpec.Containers[i].Image, appDefinition.Spec.Image) {
			return &podSpec.Containers[i], true
		}
	}
	return nil, false
}

func mountPath(appDefinition *v1beta.AppDefinition) string {
	if appDefinition.Spec.MountPath == "" {
		return defaultMountPath
	}
	return appDefinition.Spec.MountPath
}

// addPodLabels merges labels into the pod template labels.
func addPodLabels(deployment *appsv1.Deployment, labels map[string]string) {
	meta := &deployment.Spec.Template.ObjectMeta
	if meta.Labels == nil {
		meta.Labels = map[string]string{}
	}
	for k, v := range labels {
		meta.Labels[k] = v
	}
}

// addUserDataVolume mounts the workspace claim into the application container.
func addUserDataVolume(deployment *appsv1.Deployment, claimName string, appDefinition *v1beta.AppDefinition) error {
	podSpec := &deployment.Spec.Template.Spec
	container, ok := theiaContainer(podSpec, appDefinition)
	if !ok {
		return fmt.Errorf("deployment %s has no container for app definition %s", deployment.Name, appDefinition.Spec.Name)
	}
	podSpec.Volumes = append(podSpec.Volumes, corev1.Volume{
		Name: userDataVolume,
		VolumeSource: corev1.VolumeSource{
			PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{ClaimName: claimName},
		},
	})
	container.VolumeMounts = append(container.VolumeMounts, corev1.VolumeMount{
		Name:      userDataVolume,
		MountPath: mountPath(appDefinition),
	})
	return nil
}

// removeEmptyResources drops zero quantities so they do not pin a resource to 0.
func removeEmptyResources(deployment *appsv1.Deployment) {
	for i := range deployment.Spec.Template.Spec.Containers {
		resources := &deployment.Spec.Template.Spec.Containers[i].Resources
		for name, quantity := range resources.Limits {
			if quantity.IsZero() {
				delete(resources.Limits, name)
			}
		}
		for name, quantity := range resources.Requests {
			if quantity.IsZero() {
				delete(resources.Requests, name)
			}
		}
	}
}

// addSessionEnv appends the session's environment to the application container.
func addSessionEnv(deployment *appsv1.Deployment, session *v1beta.Session, appDefinition *v1beta.AppDefinition, correlationID string) {
	container, ok := theiaContainer(&deployment.Spec.Template.Spec, appDefinition)
	if !ok {
		logging.Error("SessionHandler", nil, "[%s] Could not find the container %s in deployment %s to add session env vars",
			correlationID, appDefinition.Spec.Name, deployment.Name)
		return
	}
	for _, key := range sortedKeys(session.Spec.EnvVars) {
		container.Env = append(container.Env, corev1.EnvVar{Name: key, Value: session.Spec.EnvVars[key]})
	}
	for _, name := range session.Spec.EnvVarsFromConfigMaps {
		container.EnvFrom = append(container.EnvFrom, corev1.EnvFromSource{
			ConfigMapRef: &corev1.ConfigMapEnvSource{LocalObjectReference: corev1.LocalObjectReference{Name: name}},
		})
	}
	for _, name := range session.Spec.EnvVarsFromSecrets {
		container.EnvFrom = append(container.EnvFrom, corev1.EnvFromSource{
			SecretRef: &corev1.SecretEnvSource{LocalObjectReference: corev1.LocalObjectReference{Name: name}},
		})
	}
}

func addImagePullSecret(deployment *appsv1.Deployment, appDefinition *v1beta.AppDefinition) {
	if appDefinition.Spec.PullSecret == "" {
		return
	}
	podSpec := &deployment.Spec.Template.Spec
	podSpec.ImagePullSecrets = append(podSpec.ImagePullSecrets, corev1.LocalObjectReference{Name: appDefinition.Spec.PullSecret})
}

// fillProxyConfig copies the platform oauth2-proxy configuration into
// configMap, pointing it at host and port.
func fillProxyConfig(ctx context.Context, c *theiaclient.Client, configMap *corev1.ConfigMap, host string, port int) error {
	source, err := c.GetConfigMap(ctx, oauth2ProxyConfigMap)
	if err != nil {
		return err
	}
	data := make(map[string]string, len(source.Data))
	for k, v := range source.Data {
		data[k] = v
	}
	cfg := data[oauth2ProxyConfigKey]
	cfg = strings.ReplaceAll(cfg, placeholderHost, hostProtocol+host)
	cfg = strings.ReplaceAll(cfg, placeholderPort, strconv.Itoa(port))
	data[oauth2ProxyConfigKey] = cfg
	configMap.Data = data
	return nil
}
