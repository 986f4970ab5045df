package client

import (
	"context"
	"fmt"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// OwnerReference builds a controller-less owner reference pointing at owner.
func (c *Client) OwnerReference(owner client.Object) (metav1.OwnerReference, error) {
	gvk, err := c.GroupVersionKindFor(owner)
	if err != nil {
		return metav1.OwnerReference{}, fmt.Errorf("failed to get GroupVersionKind for owner %s: %w", owner.GetName(), err)
	}
	return metav1.OwnerReference{
		APIVersion: gvk.GroupVersion().String(),
		Kind:       gvk.Kind,
		Name:       owner.GetName(),
		UID:        owner.GetUID(),
	}, nil
}

// HasOwnerReference reports whether obj is owned by the object with the given name and UID.
func HasOwnerReference(obj metav1.Object, name string, uid types.UID) bool {
	for _, ref := range obj.GetOwnerReferences() {
		if ref.UID == uid && ref.Name == name {
			return true
		}
	}
	return false
}

// AddOwnerReference appends ref unless an owner with the same UID is present.
func AddOwnerReference(obj metav1.Object, ref metav1.OwnerReference) bool {
	for _, existing := range obj.GetOwnerReferences() {
		if existing.UID == ref.UID {
			return false
		}
	}
	obj.SetOwnerReferences(append(obj.GetOwnerReferences(), ref))
	return true
}

// RemoveOwnerReference drops every owner reference with the given UID.
func RemoveOwnerReference(obj metav1.Object, uid types.UID) bool {
	refs := obj.GetOwnerReferences()
	kept := refs[:0:0]
	for _, ref := range refs {
		if ref.UID != uid {
			kept = append(kept, ref)
		}
	}
	obj.SetOwnerReferences(kept)
	return len(kept) != len(refs)
}

// ListServices lists the services in the namespace, optionally filtered by labels.
func (c *Client) ListServices(ctx context.Context, labels map[string]string) ([]corev1.Service, error) {
	list := &corev1.ServiceList{}
	opts := []client.ListOption{client.InNamespace(c.namespace)}
	if len(labels) > 0 {
		opts = append(opts, client.MatchingLabels(labels))
	}
	if err := c.List(ctx, list, opts...); err != nil {
		return nil, fmt.Errorf("failed to list Services in namespace %s: %w", c.namespace, err)
	}
	return list.Items, nil
}

// ListServicesOwnedBy lists the services carrying an owner reference to (name, uid).
func (c *Client) ListServicesOwnedBy(ctx context.Context, name string, uid types.UID) ([]corev1.Service, error) {
	services, err := c.ListServices(ctx, nil)
	if err != nil {
		return nil, err
	}
	var owned []corev1.Service
	for _, svc := range services {
		if HasOwnerReference(&svc, name, uid) {
			owned = append(owned, svc)
		}
	}
	return owned, nil
}

// EditService applies mutate to the stored Service, retrying on conflicts.
func (c *Client) EditService(ctx context.Context, name string, mutate func(*corev1.Service) error) (*corev1.Service, error) {
	return edit[corev1.Service](ctx, c, name, mutate)
}

// ListDeploymentsOwnedBy lists the deployments carrying an owner reference to (name, uid).
func (c *Client) ListDeploymentsOwnedBy(ctx context.Context, name string, uid types.UID) ([]appsv1.Deployment, error) {
	list := &appsv1.DeploymentList{}
	if err := c.List(ctx, list, client.InNamespace(c.namespace)); err != nil {
		return nil, fmt.Errorf("failed to list Deployments in namespace %s: %w", c.namespace, err)
	}
	var owned []appsv1.Deployment
	for _, deployment := range list.Items {
		if HasOwnerReference(&deployment, name, uid) {
			owned = append(owned, deployment)
		}
	}
	return owned, nil
}

// EditDeployment applies mutate to the stored Deployment, retrying on conflicts.
func (c *Client) EditDeployment(ctx context.Context, name string, mutate func(*appsv1.Deployment) error) (*appsv1.Deployment, error) {
	return edit[appsv1.Deployment](ctx, c, name, mutate)
}

// GetConfigMap retrieves a ConfigMap by name.
func (c *Client) GetConfigMap(ctx context.Context, name string) (*corev1.ConfigMap, error) {
	configMap := &corev1.ConfigMap{}
	if err := c.Get(ctx, c.key(name), configMap); err != nil {
		return nil, fmt.Errorf("failed to get ConfigMap %s/%s: %w", c.namespace, name, err)
	}
	return configMap, nil
}

// ListConfigMapsOwnedBy lists the config maps carrying an owner reference to (name, uid).
func (c *Client) ListConfigMapsOwnedBy(ctx context.Context, name string, uid types.UID) ([]corev1.ConfigMap, error) {
	list := &corev1.ConfigMapList{}
	if err := c.List(ctx, list, client.InNamespace(c.namespace)); err != nil {
		return nil, fmt.Errorf("failed to list ConfigMaps in namespace %s: %w", c.namespace, err)
	}
	var owned []corev1.ConfigMap
	for _, configMap := range list.Items {
		if HasOwnerReference(&configMap, name, uid) {
			owned = append(owned, configMap)
		}
	}
	return owned, nil
}

// EditConfigMap applies mutate to the stored ConfigMap, retrying on conflicts.
func (c *Client) EditConfigMap(ctx context.Context, name string, mutate func(*corev1.ConfigMap) error) (*corev1.ConfigMap, error) {
	return edit[corev1.ConfigMap](ctx, c, name, mutate)
}

// GetIngress retrieves an Ingress by name.
func (c *Client) GetIngress(ctx context.Context, name string) (*networkingv1.Ingress, error) {
	ingress := &networkingv1.Ingress{}
	if err := c.Get(ctx, c.key(name), ingress); err != nil {
		return nil, fmt.Errorf("failed to get Ingress %s/%s: %w", c.namespace, name, err)
	}
	return ingress, nil
}

// FindIngressOwnedBy returns the first ingress owned by (name, uid), or nil when there is none.
func (c *Client) FindIngressOwnedBy(ctx context.Context, name string, uid types.UID) (*networkingv1.Ingress, error) {
	list := &networkingv1.IngressList{}
	if err := c.List(ctx, list, client.InNamespace(c.namespace)); err != nil {
		return nil, fmt.Errorf("failed to list Ingresses in namespace %s: %w", c.namespace, err)
	}
	for i := range list.Items {
		if HasOwnerReference(&list.Items[i], name, uid) {
			return &list.Items[i], nil
		}
	}
	return nil, nil
}

// EditIngress applies mutate to the stored Ingress, retrying on conflicts.
func (c *Client) EditIngress(ctx context.Context, name string, mutate func(*networkingv1.Ingress) error) (*networkingv1.Ingress, error) {
	return edit[networkingv1.Ingress](ctx, c, name, mutate)
}

// ListPods lists all pods in the namespace.
func (c *Client) ListPods(ctx context.Context) ([]corev1.Pod, error) {
	list := &corev1.PodList{}
	if err := c.List(ctx, list, client.InNamespace(c.namespace)); err != nil {
		return nil, fmt.Errorf("failed to list Pods in namespace %s: %w", c.namespace, err)
	}
	return list.Items, nil
}

// EditPod applies mutate to the stored Pod, retrying on conflicts.
func (c *Client) EditPod(ctx context.Context, name string, mutate func(*corev1.Pod) error) (*corev1.Pod, error) {
	return edit[corev1.Pod](ctx, c, name, mutate)
}

// PersistentVolumeClaimExists reports whether the named claim exists.
func (c *Client) PersistentVolumeClaimExists(ctx context.Context, name string) (bool, error) {
	return c.exists(ctx, client.ObjectKey{Namespace: c.namespace, Name: name}, &corev1.PersistentVolumeClaim{})
}

// PersistentVolumeExists reports whether the named cluster-scoped volume exists.
func (c *Client) PersistentVolumeExists(ctx context.Context, name string) (bool, error) {
	return c.exists(ctx, client.ObjectKey{Name: name}, &corev1.PersistentVolume{})
}

func (c *Client) exists(ctx context.Context, key client.ObjectKey, obj client.Object) (bool, error) {
	err := c.Get(ctx, key, obj)
	switch {
	case err == nil:
		return true, nil
	case apierrors.IsNotFound(err):
		return false, nil
	default:
		return false, fmt.Errorf("failed to get %s: %w", key, err)
	}
}

// CreateNamespaced sets the client namespace on obj and creates it.
func (c *Client) CreateNamespaced(ctx context.Context, obj client.Object) error {
	obj.SetNamespace(c.namespace)
	if err := c.Create(ctx, obj); err != nil {
		return fmt.Errorf("failed to create %T %s/%s: %w", obj, c.namespace, obj.GetName(), err)
	}
	return nil
}

// DeleteIgnoreNotFound deletes obj and treats an already missing object as success.
func (c *Client) DeleteIgnoreNotFound(ctx context.Context, obj client.Object) error {
	if err := client.IgnoreNotFound(c.Delete(ctx, obj)); err != nil {
		return fmt.Errorf("failed to delete %T %s: %w", obj, obj.GetName(), err)
	}
	return nil
}

// RecordEvent creates a Kubernetes Event on obj. Failures are returned but
// callers usually only log them.
func (c *Client) RecordEvent(ctx context.Context, obj client.Object, reason, message, eventType string) error {
	gvk, err := c.GroupVersionKindFor(obj)
	if err != nil {
		return fmt.Errorf("failed to get GroupVersionKind for object: %w", err)
	}

	now := metav1.NewTime(time.Now())
	event := &corev1.Event{
		ObjectMeta: metav1.ObjectMeta{
			GenerateName: obj.GetName() + "-",
			Namespace:    c.namespace,
		},
		InvolvedObject: corev1.ObjectReference{
			APIVersion: gvk.GroupVersion().String(),
			Kind:       gvk.Kind,
			Name:       obj.GetName(),
			Namespace:  obj.GetNamespace(),
			UID:        obj.GetUID(),
		},
		Reason:         reason,
		Message:        message,
		Type:           eventType,
		Source:         corev1.EventSource{Component: EventSourceComponent},
		FirstTimestamp: now,
		LastTimestamp:  now,
		Count:          1,
	}

	if err := c.Create(ctx, event); err != nil {
		return fmt.Errorf("failed to create Kubernetes Event: %w", err)
	}
	return nil
}

// EventSourceComponent identifies the operator as the source of recorded events.
const EventSourceComponent = "theia-cloud-operator"
