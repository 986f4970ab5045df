package client

import (
	"context"
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/util/retry"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"theiacloud/pkg/apis/theiacloud/v1beta"
)

// Client is the operator's view of the cluster, scoped to one namespace.
type Client struct {
	client.WithWatch
	namespace string
}

// NewScheme returns a scheme holding the client-go types and the theia.cloud CRDs.
func NewScheme() *runtime.Scheme {
	scheme := runtime.NewScheme()
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	utilruntime.Must(v1beta.AddToScheme(scheme))
	return scheme
}

// NewForConfig creates a watch capable client for the given REST config.
func NewForConfig(config *rest.Config, namespace string) (*Client, error) {
	k8sClient, err := client.NewWithWatch(config, client.Options{Scheme: NewScheme()})
	if err != nil {
		return nil, fmt.Errorf("failed to create Kubernetes client: %w", err)
	}
	return New(k8sClient, namespace), nil
}

// New wraps an existing controller-runtime client, e.g. a fake client in tests.
func New(c client.WithWatch, namespace string) *Client {
	return &Client{WithWatch: c, namespace: namespace}
}

// Namespace returns the namespace all operations are scoped to.
func (c *Client) Namespace() string {
	return c.namespace
}

func (c *Client) key(name string) client.ObjectKey {
	return client.ObjectKey{Namespace: c.namespace, Name: name}
}

// ValidateCRDs checks that the theia.cloud CRDs are installed.
func (c *Client) ValidateCRDs(ctx context.Context) error {
	if _, err := c.ListAppDefinitions(ctx); err != nil {
		return fmt.Errorf("AppDefinition CRD not available: %w", err)
	}
	if _, err := c.ListSessions(ctx); err != nil {
		return fmt.Errorf("Session CRD not available: %w", err)
	}
	if _, err := c.ListWorkspaces(ctx); err != nil {
		return fmt.Errorf("Workspace CRD not available: %w", err)
	}
	return nil
}

// GetAppDefinition retrieves an AppDefinition by resource name.
func (c *Client) GetAppDefinition(ctx context.Context, name string) (*v1beta.AppDefinition, error) {
	appDefinition := &v1beta.AppDefinition{}
	if err := c.Get(ctx, c.key(name), appDefinition); err != nil {
		return nil, fmt.Errorf("failed to get AppDefinition %s/%s: %w", c.namespace, name, err)
	}
	return appDefinition, nil
}

// ListAppDefinitions lists all AppDefinitions in the namespace.
func (c *Client) ListAppDefinitions(ctx context.Context) ([]v1beta.AppDefinition, error) {
	list := &v1beta.AppDefinitionList{}
	if err := c.List(ctx, list, client.InNamespace(c.namespace)); err != nil {
		return nil, fmt.Errorf("failed to list AppDefinitions in namespace %s: %w", c.namespace, err)
	}
	return list.Items, nil
}

// UpdateAppDefinitionStatus writes the status of appDefinition.
func (c *Client) UpdateAppDefinitionStatus(ctx context.Context, appDefinition *v1beta.AppDefinition, mutate func(*v1beta.AppDefinitionStatus)) error {
	stored, err := updateStatus[v1beta.AppDefinition](ctx, c, appDefinition.Name, func(fresh *v1beta.AppDefinition) {
		mutate(&fresh.Status)
	})
	if err != nil {
		return fmt.Errorf("failed to update status of AppDefinition %s: %w", appDefinition.Name, err)
	}
	appDefinition.Status = stored.Status
	appDefinition.ResourceVersion = stored.ResourceVersion
	return nil
}

// GetSession retrieves a Session by resource name.
func (c *Client) GetSession(ctx context.Context, name string) (*v1beta.Session, error) {
	session := &v1beta.Session{}
	if err := c.Get(ctx, c.key(name), session); err != nil {
		return nil, fmt.Errorf("failed to get Session %s/%s: %w", c.namespace, name, err)
	}
	return session, nil
}

// ListSessions lists all Sessions in the namespace.
func (c *Client) ListSessions(ctx context.Context) ([]v1beta.Session, error) {
	list := &v1beta.SessionList{}
	if err := c.List(ctx, list, client.InNamespace(c.namespace)); err != nil {
		return nil, fmt.Errorf("failed to list Sessions in namespace %s: %w", c.namespace, err)
	}
	return list.Items, nil
}

// ListSessionsOfUser lists the Sessions whose spec names user.
func (c *Client) ListSessionsOfUser(ctx context.Context, user string) ([]v1beta.Session, error) {
	sessions, err := c.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	var result []v1beta.Session
	for _, session := range sessions {
		if session.Spec.User == user {
			result = append(result, session)
		}
	}
	return result, nil
}

// CreateSession creates session in the namespace.
func (c *Client) CreateSession(ctx context.Context, session *v1beta.Session) error {
	session.Namespace = c.namespace
	if err := c.Create(ctx, session); err != nil {
		return fmt.Errorf("failed to create Session %s/%s: %w", c.namespace, session.Name, err)
	}
	return nil
}

// DeleteSession deletes the named Session. A missing Session is not an error.
func (c *Client) DeleteSession(ctx context.Context, name string) error {
	session := &v1beta.Session{ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: c.namespace}}
	if err := client.IgnoreNotFound(c.Delete(ctx, session)); err != nil {
		return fmt.Errorf("failed to delete Session %s/%s: %w", c.namespace, name, err)
	}
	return nil
}

// EditSession applies mutate to the stored Session, retrying on conflicts.
func (c *Client) EditSession(ctx context.Context, name string, mutate func(*v1beta.Session) error) (*v1beta.Session, error) {
	return edit[v1beta.Session](ctx, c, name, mutate)
}

// UpdateSessionStatus writes the status of session.
func (c *Client) UpdateSessionStatus(ctx context.Context, session *v1beta.Session, mutate func(*v1beta.SessionStatus)) error {
	stored, err := updateStatus[v1beta.Session](ctx, c, session.Name, func(fresh *v1beta.Session) {
		mutate(&fresh.Status)
	})
	if err != nil {
		return fmt.Errorf("failed to update status of Session %s: %w", session.Name, err)
	}
	session.Status = stored.Status
	session.ResourceVersion = stored.ResourceVersion
	return nil
}

// GetWorkspace retrieves a Workspace by resource name.
func (c *Client) GetWorkspace(ctx context.Context, name string) (*v1beta.Workspace, error) {
	workspace := &v1beta.Workspace{}
	if err := c.Get(ctx, c.key(name), workspace); err != nil {
		return nil, fmt.Errorf("failed to get Workspace %s/%s: %w", c.namespace, name, err)
	}
	return workspace, nil
}

// ListWorkspaces lists all Workspaces in the namespace.
func (c *Client) ListWorkspaces(ctx context.Context) ([]v1beta.Workspace, error) {
	list := &v1beta.WorkspaceList{}
	if err := c.List(ctx, list, client.InNamespace(c.namespace)); err != nil {
		return nil, fmt.Errorf("failed to list Workspaces in namespace %s: %w", c.namespace, err)
	}
	return list.Items, nil
}

// CreateWorkspace creates workspace in the namespace.
func (c *Client) CreateWorkspace(ctx context.Context, workspace *v1beta.Workspace) error {
	workspace.Namespace = c.namespace
	if err := c.Create(ctx, workspace); err != nil {
		return fmt.Errorf("failed to create Workspace %s/%s: %w", c.namespace, workspace.Name, err)
	}
	return nil
}

// DeleteWorkspace deletes the named Workspace. A missing Workspace is not an error.
func (c *Client) DeleteWorkspace(ctx context.Context, name string) error {
	workspace := &v1beta.Workspace{ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: c.namespace}}
	if err := client.IgnoreNotFound(c.Delete(ctx, workspace)); err != nil {
		return fmt.Errorf("failed to delete Workspace %s/%s: %w", c.namespace, name, err)
	}
	return nil
}

// EditWorkspace applies mutate to the stored Workspace, retrying on conflicts.
func (c *Client) EditWorkspace(ctx context.Context, name string, mutate func(*v1beta.Workspace) error) (*v1beta.Workspace, error) {
	return edit[v1beta.Workspace](ctx, c, name, mutate)
}

// UpdateWorkspaceStatus writes the status of workspace.
func (c *Client) UpdateWorkspaceStatus(ctx context.Context, workspace *v1beta.Workspace, mutate func(*v1beta.WorkspaceStatus)) error {
	stored, err := updateStatus[v1beta.Workspace](ctx, c, workspace.Name, func(fresh *v1beta.Workspace) {
		mutate(&fresh.Status)
	})
	if err != nil {
		return fmt.Errorf("failed to update status of Workspace %s: %w", workspace.Name, err)
	}
	workspace.Status = stored.Status
	workspace.ResourceVersion = stored.ResourceVersion
	return nil
}

// object is satisfied by pointers to API structs, e.g. *corev1.Service.
type object[E any] interface {
	*E
	client.Object
}

// edit re-reads the named object, applies mutate and updates it, retrying
// the whole cycle on conflicts.
func edit[E any, T object[E]](ctx context.Context, c *Client, name string, mutate func(T) error) (T, error) {
	var stored T
	err := retry.RetryOnConflict(retry.DefaultRetry, func() error {
		obj := T(new(E))
		if err := c.Get(ctx, c.key(name), obj); err != nil {
			return err
		}
		if err := mutate(obj); err != nil {
			return err
		}
		if err := c.Update(ctx, obj); err != nil {
			return err
		}
		stored = obj
		return nil
	})
	if err != nil {
		return stored, fmt.Errorf("failed to edit %s/%s: %w", c.namespace, name, err)
	}
	return stored, nil
}

func updateStatus[E any, T object[E]](ctx context.Context, c *Client, name string, mutate func(T)) (T, error) {
	var stored T
	err := retry.RetryOnConflict(retry.DefaultRetry, func() error {
		obj := T(new(E))
		if err := c.Get(ctx, c.key(name), obj); err != nil {
			return err
		}
		mutate(obj)
		if err := c.Status().Update(ctx, obj); err != nil {
			return err
		}
		stored = obj
		return nil
	})
	return stored, err
}
