package handler

import (
	"context"
	"errors"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"theiacloud/internal/naming"
	"theiacloud/internal/template"
	"theiacloud/pkg/apis/theiacloud/v1beta"
	"theiacloud/pkg/logging"
)

const (
	stepStarted  = "started"
	stepFinished = "finished"
	stepClaimed  = "claimed"
	stepError    = "error"
)

// WorkspaceHandler provisions the persistent storage of workspaces. It is
// used with both the eager and the lazy policy.
type WorkspaceHandler struct {
	NoOps[*v1beta.Workspace]
	deps    Deps
	volumes PersistentVolumeCreator
}

// NewWorkspaceHandler creates a workspace handler.
func NewWorkspaceHandler(deps Deps) *WorkspaceHandler {
	return &WorkspaceHandler{deps: deps, volumes: NewPersistentVolumeCreator(deps)}
}

// Added creates the volume and claim of the workspace and records the
// storage name on its spec.
func (h *WorkspaceHandler) Added(ctx context.Context, workspace *v1beta.Workspace, correlationID string) error {
	err := h.added(ctx, workspace, correlationID)
	if err == nil || errors.Is(err, errSkip) {
		return nil
	}
	logging.Error("WorkspaceHandler", err, "[%s] An unexpected error occurred while adding workspace %s", correlationID, workspace.Name)
	if statusErr := h.setStatus(ctx, workspace, v1beta.StatusError, MessageUnexpectedError+correlationID); statusErr != nil {
		logging.Error("WorkspaceHandler", statusErr, "[%s] Failed to update status of workspace %s", correlationID, workspace.Name)
	}
	return wrapUnexpected("workspace", workspace.Name, err)
}

func (h *WorkspaceHandler) added(ctx context.Context, workspace *v1beta.Workspace, correlationID string) error {
	c := h.deps.Client
	logging.Info("WorkspaceHandler", "[%s] Handling workspace %s", correlationID, workspace.Name)

	err := gate(workspace.Status.ResourceStatus, "Workspace", workspace.Name, correlationID, func(message string) error {
		return h.setStatus(ctx, workspace, v1beta.StatusError, message)
	})
	if err != nil {
		return err
	}
	if err := h.setStatus(ctx, workspace, v1beta.StatusHandling, ""); err != nil {
		return err
	}

	storageName := naming.StorageName(workspace)
	if err := h.setSteps(ctx, workspace, v1beta.NewStatusStep(stepStarted, ""), nil); err != nil {
		return err
	}

	exists, err := c.PersistentVolumeExists(ctx, storageName)
	if err != nil {
		return err
	}
	if !exists {
		logging.Debug("WorkspaceHandler", "[%s] Creating new persistent volume named %s", correlationID, storageName)
		if err := h.volumes.CreatePersistentVolume(ctx, workspace, correlationID); err != nil {
			return err
		}
	}

	if err := h.setSteps(ctx, workspace, v1beta.NewStatusStep(stepFinished, ""), v1beta.NewStatusStep(stepStarted, "")); err != nil {
		return err
	}

	exists, err = c.PersistentVolumeClaimExists(ctx, storageName)
	if err != nil {
		return err
	}
	if !exists {
		logging.Debug("WorkspaceHandler", "[%s] Creating new persistent volume claim named %s", correlationID, storageName)
		if err := h.createClaim(ctx, workspace, storageName); err != nil {
			return err
		}
	}

	if err := h.setSteps(ctx, workspace, nil, v1beta.NewStatusStep(stepClaimed, "")); err != nil {
		return err
	}

	logging.Debug("WorkspaceHandler", "[%s] Set workspace storage %s", correlationID, storageName)
	_, err = c.EditWorkspace(ctx, workspace.Name, func(toEdit *v1beta.Workspace) error {
		toEdit.Spec.Storage = storageName
		return nil
	})
	if err != nil {
		return err
	}

	if err := h.setSteps(ctx, workspace, nil, v1beta.NewStatusStep(stepFinished, "")); err != nil {
		return err
	}
	return h.setStatus(ctx, workspace, v1beta.StatusHandled, "")
}

func (h *WorkspaceHandler) createClaim(ctx context.Context, workspace *v1beta.Workspace, storageName string) error {
	c := h.deps.Client
	claim, err := h.deps.Renderer.PersistentVolumeClaim(template.Values{
		Name:             storageName,
		Namespace:        c.Namespace(),
		StorageClassName: h.deps.Config.StorageClassName,
		RequestedStorage: h.deps.Config.RequestedStorage,
	})
	if err != nil {
		return err
	}
	ref, err := c.OwnerReference(workspace)
	if err != nil {
		return err
	}
	claim.OwnerReferences = []metav1.OwnerReference{ref}
	return c.CreateNamespaced(ctx, claim)
}

// Deleted removes the workspace session and its storage.
func (h *WorkspaceHandler) Deleted(ctx context.Context, workspace *v1beta.Workspace, correlationID string) error {
	c := h.deps.Client
	sessionName := naming.WorkspaceSessionName(workspace.Spec.Name)
	if err := c.DeleteSession(ctx, sessionName); err != nil {
		return err
	}

	storageName := naming.StorageName(workspace)
	claim := &corev1.PersistentVolumeClaim{ObjectMeta: metav1.ObjectMeta{Name: storageName, Namespace: c.Namespace()}}
	if err := c.DeleteIgnoreNotFound(ctx, claim); err != nil {
		return err
	}
	volume := &corev1.PersistentVolume{ObjectMeta: metav1.ObjectMeta{Name: storageName}}
	if err := c.DeleteIgnoreNotFound(ctx, volume); err != nil {
		return err
	}
	logging.Info("WorkspaceHandler", "[%s] Deleted session %s and storage %s of workspace %s", correlationID, sessionName, storageName, workspace.Name)
	return nil
}

func (h *WorkspaceHandler) setStatus(ctx context.Context, workspace *v1beta.Workspace, status v1beta.OperatorStatus, message string) error {
	return h.deps.Client.UpdateWorkspaceStatus(ctx, workspace, func(s *v1beta.WorkspaceStatus) {
		s.OperatorStatus = status
		s.OperatorMessage = message
	})
}

// setSteps updates the storage sub-steps; nil leaves a step unchanged.
func (h *WorkspaceHandler) setSteps(ctx context.Context, workspace *v1beta.Workspace, claim, attach *v1beta.StatusStep) error {
	return h.deps.Client.UpdateWorkspaceStatus(ctx, workspace, func(s *v1beta.WorkspaceStatus) {
		if claim != nil {
			s.VolumeClaim = claim
		}
		if attach != nil {
			s.VolumeAttach = attach
		}
	})
}
