package handler

import (
	"context"

	"theiacloud/internal/config"
	"theiacloud/internal/naming"
	"theiacloud/internal/template"
	"theiacloud/pkg/apis/theiacloud/v1beta"
	"theiacloud/pkg/logging"
)

// PersistentVolumeCreator provisions the volume behind a workspace claim.
type PersistentVolumeCreator interface {
	CreatePersistentVolume(ctx context.Context, workspace *v1beta.Workspace, correlationID string) error
}

// NewPersistentVolumeCreator picks the volume strategy of the cloud provider.
// Only minikube lacks a dynamic provisioner.
func NewPersistentVolumeCreator(deps Deps) PersistentVolumeCreator {
	if deps.Config.CloudProvider == config.CloudProviderMinikube {
		return minikubeVolumeCreator{deps: deps}
	}
	return dynamicVolumeCreator{}
}

type dynamicVolumeCreator struct{}

func (dynamicVolumeCreator) CreatePersistentVolume(context.Context, *v1beta.Workspace, string) error {
	return nil
}

type minikubeVolumeCreator struct {
	deps Deps
}

func (m minikubeVolumeCreator) CreatePersistentVolume(ctx context.Context, workspace *v1beta.Workspace, correlationID string) error {
	values := template.Values{
		Name:             naming.StorageName(workspace),
		Namespace:        m.deps.Client.Namespace(),
		StorageClassName: m.deps.Config.StorageClassName,
		RequestedStorage: m.deps.Config.RequestedStorage,
	}
	volume, err := m.deps.Renderer.MinikubePersistentVolume(values)
	if err != nil {
		return err
	}
	logging.Debug("WorkspaceHandler", "[%s] Creating hostPath volume %s", correlationID, volume.Name)
	return m.deps.Client.Create(ctx, volume)
}
