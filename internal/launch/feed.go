package launch

import (
	"context"
	"fmt"

	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/rest"
	toolscache "k8s.io/client-go/tools/cache"
	"sigs.k8s.io/controller-runtime/pkg/cache"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"theiacloud/pkg/apis/theiacloud/v1beta"
	"theiacloud/pkg/logging"
)

// InformerFeed watches sessions and workspaces through one shared informer
// per kind and forwards every added or updated version to a Launcher.
type InformerFeed struct {
	cache cache.Cache
}

// NewInformerFeed creates the informer cache for namespace.
func NewInformerFeed(restConfig *rest.Config, scheme *runtime.Scheme, namespace string) (*InformerFeed, error) {
	c, err := cache.New(restConfig, cache.Options{
		Scheme: scheme,
		DefaultNamespaces: map[string]cache.Config{
			namespace: {},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create informer cache: %w", err)
	}
	return &InformerFeed{cache: c}, nil
}

// Start registers l with the informers, starts them and waits for the
// initial sync. The informers stop when ctx is cancelled.
func (f *InformerFeed) Start(ctx context.Context, l *Launcher) error {
	if err := f.register(ctx, &v1beta.Session{}, func(obj interface{}) {
		if session, ok := obj.(*v1beta.Session); ok {
			l.ObserveSession(session)
		}
	}); err != nil {
		return err
	}
	if err := f.register(ctx, &v1beta.Workspace{}, func(obj interface{}) {
		if workspace, ok := obj.(*v1beta.Workspace); ok {
			l.ObserveWorkspace(workspace)
		}
	}); err != nil {
		return err
	}

	go func() {
		if err := f.cache.Start(ctx); err != nil {
			logging.Error("LaunchFeed", err, "Informer cache stopped with error")
		}
	}()

	if !f.cache.WaitForCacheSync(ctx) {
		return fmt.Errorf("failed to sync informer cache")
	}
	logging.Debug("LaunchFeed", "Informers for sessions and workspaces synced")
	return nil
}

func (f *InformerFeed) register(ctx context.Context, obj client.Object, observe func(interface{})) error {
	informer, err := f.cache.GetInformer(ctx, obj)
	if err != nil {
		return fmt.Errorf("failed to get informer for %T: %w", obj, err)
	}
	_, err = informer.AddEventHandler(toolscache.ResourceEventHandlerFuncs{
		AddFunc: observe,
		UpdateFunc: func(_, newObj interface{}) {
			observe(newObj)
		},
	})
	if err != nil {
		return fmt.Errorf("failed to register handler for %T: %w", obj, err)
	}
	return nil
}
