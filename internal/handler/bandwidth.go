package handler

import (
	"strconv"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"

	"theiacloud/internal/config"
)

const (
	annotationIngressBandwidth = "kubernetes.io/ingress-bandwidth"
	annotationEgressBandwidth  = "kubernetes.io/egress-bandwidth"
	wondershaperContainerName  = "wondershaper-init"
)

// BandwidthLimiter applies the app definition's bandwidth limits to a
// deployment using the configured strategy.
type BandwidthLimiter struct {
	strategy string
	image    string
}

// NewBandwidthLimiter creates a limiter for the configuration.
func NewBandwidthLimiter(cfg config.OperatorConfig) BandwidthLimiter {
	return BandwidthLimiter{strategy: cfg.BandwidthLimiter, image: cfg.WondershaperImage}
}

// Limit adds the annotations or the init container. Limits are kbit/s and
// non-positive values are ignored.
func (b BandwidthLimiter) Limit(deployment *appsv1.Deployment, downlink, uplink int) {
	switch b.strategy {
	case config.BandwidthLimiterAnnotation:
		addBandwidthAnnotations(deployment, downlink, uplink)
	case config.BandwidthLimiterAnnotationAndWondershaper:
		addBandwidthAnnotations(deployment, downlink, uplink)
		b.addWondershaper(deployment, downlink, uplink)
	case config.BandwidthLimiterWondershaper:
		b.addWondershaper(deployment, downlink, uplink)
	}
}

func addBandwidthAnnotations(deployment *appsv1.Deployment, downlink, uplink int) {
	meta := &deployment.Spec.Template.ObjectMeta
	if meta.Annotations == nil {
		meta.Annotations = map[string]string{}
	}
	if downlink > 0 {
		meta.Annotations[annotationIngressBandwidth] = strconv.Itoa(downlink) + "k"
	}
	if uplink > 0 {
		meta.Annotations[annotationEgressBandwidth] = strconv.Itoa(uplink) + "k"
	}
}

// The wondershaper needs both directions.
func (b BandwidthLimiter) addWondershaper(deployment *appsv1.Deployment, downlink, uplink int) {
	if downlink <= 0 || uplink <= 0 {
		return
	}
	deployment.Spec.Template.Spec.InitContainers = append(deployment.Spec.Template.Spec.InitContainers, corev1.Container{
		Name:  wondershaperContainerName,
		Image: b.image,
		SecurityContext: &corev1.SecurityContext{
			Capabilities: &corev1.Capabilities{Add: []corev1.Capability{"NET_ADMIN"}},
		},
		Env: []corev1.EnvVar{
			{Name: "DOWNLINK", Value: strconv.Itoa(downlink)},
			{Name: "UPLINK", Value: strconv.Itoa(uplink)},
		},
	})
}
