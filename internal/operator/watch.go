package operator

import (
	"context"
	"fmt"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/watch"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"theiacloud/internal/handler"
	"theiacloud/internal/metrics"
	"theiacloud/pkg/logging"
)

// maxWatchRestarts bounds how often a closed watch is reopened in a row
// before the operator gives up.
const maxWatchRestarts = 10

// watcher replays and watches the resources of one kind and dispatches
// every event to the kind's handler.
type watcher[T client.Object] struct {
	kind    string
	prefix  string
	handler handler.Handler[T]
	store   *Store[T]

	// bestEffort swallows handler failures instead of ending the run.
	bestEffort bool

	newList func() client.ObjectList
	items   func(client.ObjectList) []T

	client    client.WithWatch
	namespace string
	idle      *IdleMonitor
	metrics   *metrics.Metrics
}

// replay lists all resources, seeds the store and dispatches an ADDED event
// for each. It returns the resource version to start watching from.
func (w *watcher[T]) replay(ctx context.Context) (string, error) {
	list := w.newList()
	if err := w.client.List(ctx, list, client.InNamespace(w.namespace)); err != nil {
		return "", fatalf(err, "failed to list %s resources", w.kind)
	}

	items := w.items(list)
	logging.Info(w.logSubsystem(), "Replaying %d existing %s resources", len(items), w.kind)
	w.idle.Touch(w.kind)

	for _, obj := range items {
		w.store.Put(obj)
		if err := w.handle(ctx, watch.Added, obj); err != nil {
			return "", err
		}
	}
	return list.GetResourceVersion(), nil
}

// watch consumes events until ctx is cancelled. A watch closed by the
// server is reopened from the last seen resource version.
func (w *watcher[T]) watch(ctx context.Context, resourceVersion string) error {
	restarts := 0
	for {
		events, err := w.open(ctx, resourceVersion)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if restarts == 0 {
				return fatalf(err, "failed to open %s watch", w.kind)
			}
			logging.Error(w.logSubsystem(), err, "Failed to reopen %s watch", w.kind)
		} else {
			logging.Info(w.logSubsystem(), "Watching %s resources from resource version %q", w.kind, resourceVersion)
			received, rv, err := w.consume(ctx, events, resourceVersion)
			if err != nil || ctx.Err() != nil {
				return err
			}
			resourceVersion = rv
			if received {
				restarts = 0
			}
		}

		restarts++
		if restarts > maxWatchRestarts {
			return fatalf(nil, "%s watch closed %d times in a row", w.kind, restarts-1)
		}
		w.metrics.RecordWatchRestart(w.kind)
		logging.Warn(w.logSubsystem(), "%s watch closed, reopening (attempt %d/%d)", w.kind, restarts, maxWatchRestarts)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(restartDelay(restarts)):
		}
	}
}

func (w *watcher[T]) open(ctx context.Context, resourceVersion string) (watch.Interface, error) {
	return w.client.Watch(ctx, w.newList(), &client.ListOptions{
		Namespace: w.namespace,
		Raw: &metav1.ListOptions{
			ResourceVersion:     resourceVersion,
			AllowWatchBookmarks: true,
		},
	})
}

// consume handles events until the watch closes. It reports whether any
// event arrived and the resource version to resume from.
func (w *watcher[T]) consume(ctx context.Context, events watch.Interface, resourceVersion string) (bool, string, error) {
	defer events.Stop()

	received := false
	for {
		select {
		case <-ctx.Done():
			return received, resourceVersion, nil
		case event, ok := <-events.ResultChan():
			if !ok {
				return received, resourceVersion, nil
			}
			received = true
			w.idle.Touch(w.kind)

			if event.Type == watch.Error {
				rv, err := w.watchError(ctx, event, resourceVersion)
				if err != nil {
					return received, rv, err
				}
				resourceVersion = rv
				continue
			}

			obj, ok := event.Object.(T)
			if !ok {
				logging.Warn(w.logSubsystem(), "Ignoring %s event with unexpected object %T", event.Type, event.Object)
				continue
			}
			resourceVersion = obj.GetResourceVersion()

			switch event.Type {
			case watch.Added, watch.Modified:
				w.store.Put(obj)
			case watch.Deleted:
				w.store.Delete(obj.GetUID())
			}

			if err := w.handle(ctx, event.Type, obj); err != nil {
				return received, resourceVersion, err
			}
		}
	}
}

// watchError logs an error event. Errors carrying a resource of the
// watched kind are dispatched like any other event; expired resource
// versions restart the watch from the current state.
func (w *watcher[T]) watchError(ctx context.Context, event watch.Event, resourceVersion string) (string, error) {
	if obj, ok := event.Object.(T); ok {
		return resourceVersion, w.handle(ctx, watch.Error, obj)
	}

	err := apierrors.FromObject(event.Object)
	if apierrors.IsResourceExpired(err) || apierrors.IsGone(err) {
		logging.Warn(w.logSubsystem(), "%s watch resource version %q expired, restarting from current state", w.kind, resourceVersion)
		return "", nil
	}
	logging.Error(w.logSubsystem(), err, "%s watch reported an error", w.kind)
	return resourceVersion, nil
}

// handle dispatches one event. It returns a *FatalError only when the
// handler failed and the kind is not handled best effort.
func (w *watcher[T]) handle(ctx context.Context, action watch.EventType, obj T) error {
	correlationID := logging.NewCorrelationID(w.prefix)
	err := w.dispatch(ctx, action, obj, correlationID)
	if err == nil {
		return nil
	}

	logging.Error(w.logSubsystem(), err, "[%s] Failed to handle %s event of %s %s", correlationID, action, w.kind, obj.GetName())
	if w.bestEffort {
		return nil
	}
	return fatalf(err, "handling %s event of %s %s failed (correlationId %s)", action, w.kind, obj.GetName(), correlationID)
}

func (w *watcher[T]) dispatch(ctx context.Context, action watch.EventType, obj T, correlationID string) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
		w.metrics.RecordDispatch(w.kind, string(action), time.Since(start), err)
	}()

	logging.Debug(w.logSubsystem(), "[%s] %s %s %s", correlationID, w.kind, obj.GetName(), action)

	switch action {
	case watch.Added:
		return w.handler.Added(ctx, obj, correlationID)
	case watch.Modified:
		return w.handler.Modified(ctx, obj, correlationID)
	case watch.Deleted:
		return w.handler.Deleted(ctx, obj, correlationID)
	case watch.Error:
		return w.handler.Errored(ctx, obj, correlationID)
	case watch.Bookmark:
		return w.handler.Bookmarked(ctx, obj, correlationID)
	default:
		logging.Warn(w.logSubsystem(), "[%s] Unknown action %s for %s %s", correlationID, action, w.kind, obj.GetName())
		return nil
	}
}

func (w *watcher[T]) logSubsystem() string {
	return w.kind + "Watch"
}

// restartDelay backs off linearly, capped at ten seconds.
var restartDelay = func(attempt int) time.Duration {
	delay := time.Duration(attempt) * time.Second
	if delay > 10*time.Second {
		return 10 * time.Second
	}
	return delay
}
