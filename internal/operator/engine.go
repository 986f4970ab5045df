package operator

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
	"sigs.k8s.io/controller-runtime/pkg/client"

	theiaclient "theiacloud/internal/client"
	"theiacloud/internal/config"
	"theiacloud/internal/handler"
	"theiacloud/internal/metrics"
	"theiacloud/pkg/apis/theiacloud/v1beta"
	"theiacloud/pkg/logging"
)

// Resource kinds as used in logs and metrics.
const (
	KindAppDefinition = "AppDefinition"
	KindSession       = "Session"
	KindWorkspace     = "Workspace"
)

// Engine watches app definitions, sessions and workspaces and dispatches
// their events to the handlers. It also runs the periodic session sweeps
// and the idle watch detection.
type Engine struct {
	client   *theiaclient.Client
	handlers handler.Set
	config   config.OperatorConfig
	metrics  *metrics.Metrics

	appDefinitions *Store[*v1beta.AppDefinition]
	sessions       *Store[*v1beta.Session]
	workspaces     *Store[*v1beta.Workspace]

	idle    *IdleMonitor
	sweeper *TimeoutSweeper
	tracker *ActivityTracker
}

// Option customizes an Engine.
type Option func(*Engine)

// WithActivityProbe replaces the HTTP probe used by the activity tracker.
func WithActivityProbe(probe ActivityProbe) Option {
	return func(e *Engine) {
		if e.tracker != nil {
			e.tracker.probe = probe
		}
	}
}

// WithClock replaces time.Now in the monitors and sweepers.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.idle.now = now
		e.sweeper.now = now
		if e.tracker != nil {
			e.tracker.now = now
		}
	}
}

// New creates an engine. m may be nil.
func New(c *theiaclient.Client, handlers handler.Set, cfg config.OperatorConfig, m *metrics.Metrics, opts ...Option) *Engine {
	e := &Engine{
		client:         c,
		handlers:       handlers,
		config:         cfg,
		metrics:        m,
		appDefinitions: NewStore[*v1beta.AppDefinition](),
		sessions:       NewStore[*v1beta.Session](),
		workspaces:     NewStore[*v1beta.Workspace](),
		idle:           NewIdleMonitor(cfg.MaxWatchIdleTime, cfg.IdleCheckInterval, nil),
	}
	e.sweeper = NewTimeoutSweeper(c, e.appDefinitions, cfg.SweepInterval, m)
	if cfg.ActivityTrackingEnabled() && cfg.MonitorInterval > 0 {
		e.tracker = NewActivityTracker(c, NewHTTPProbe(), cfg.MonitorInterval, m)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// IdleMonitor exposes the idle watch detection, e.g. for health checks.
func (e *Engine) IdleMonitor() *IdleMonitor {
	return e.idle
}

// AppDefinitions returns the app definition cache.
func (e *Engine) AppDefinitions() *Store[*v1beta.AppDefinition] {
	return e.appDefinitions
}

// Sessions returns the session cache.
func (e *Engine) Sessions() *Store[*v1beta.Session] {
	return e.sessions
}

// Workspaces returns the workspace cache.
func (e *Engine) Workspaces() *Store[*v1beta.Workspace] {
	return e.workspaces
}

// Run replays the existing resources of every kind, then watches all kinds
// and runs the periodic tasks until ctx is cancelled. Conditions that
// require a restart are returned as *FatalError.
func (e *Engine) Run(ctx context.Context) error {
	appDefinitions := e.appDefinitionWatcher()
	workspaces := e.workspaceWatcher()
	sessions := e.sessionWatcher()

	logging.Info("Engine", "Starting operator engine in namespace %s (eager start: %t)", e.client.Namespace(), e.config.EagerStart)

	// App definitions first so that sessions find their ingress and instances.
	appDefinitionsRV, err := appDefinitions.replay(ctx)
	if err != nil {
		return err
	}
	workspacesRV, err := workspaces.replay(ctx)
	if err != nil {
		return err
	}
	sessionsRV, err := sessions.replay(ctx)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return appDefinitions.watch(gctx, appDefinitionsRV) })
	g.Go(func() error { return workspaces.watch(gctx, workspacesRV) })
	g.Go(func() error { return sessions.watch(gctx, sessionsRV) })
	g.Go(func() error { return e.idle.Run(gctx) })
	g.Go(func() error { return e.sweeper.Run(gctx) })
	if e.tracker != nil {
		g.Go(func() error { return e.tracker.Run(gctx) })
	}

	err = g.Wait()
	logging.Info("Engine", "Operator engine stopped")
	return err
}

func (e *Engine) appDefinitionWatcher() *watcher[*v1beta.AppDefinition] {
	return &watcher[*v1beta.AppDefinition]{
		kind:       KindAppDefinition,
		prefix:     logging.PrefixAppDefinitionWatch,
		handler:    e.handlers.AppDefinitions,
		store:      e.appDefinitions,
		bestEffort: true,
		newList:    func() client.ObjectList { return &v1beta.AppDefinitionList{} },
		items: func(list client.ObjectList) []*v1beta.AppDefinition {
			items := list.(*v1beta.AppDefinitionList).Items
			out := make([]*v1beta.AppDefinition, 0, len(items))
			for i := range items {
				out = append(out, &items[i])
			}
			return out
		},
		client:    e.client,
		namespace: e.client.Namespace(),
		idle:      e.idle,
		metrics:   e.metrics,
	}
}

func (e *Engine) sessionWatcher() *watcher[*v1beta.Session] {
	return &watcher[*v1beta.Session]{
		kind:       KindSession,
		prefix:     logging.PrefixSessionWatch,
		handler:    e.handlers.Sessions,
		store:      e.sessions,
		bestEffort: e.config.ContinueOnException,
		newList:    func() client.ObjectList { return &v1beta.SessionList{} },
		items: func(list client.ObjectList) []*v1beta.Session {
			items := list.(*v1beta.SessionList).Items
			out := make([]*v1beta.Session, 0, len(items))
			for i := range items {
				out = append(out, &items[i])
			}
			return out
		},
		client:    e.client,
		namespace: e.client.Namespace(),
		idle:      e.idle,
		metrics:   e.metrics,
	}
}

func (e *Engine) workspaceWatcher() *watcher[*v1beta.Workspace] {
	return &watcher[*v1beta.Workspace]{
		kind:       KindWorkspace,
		prefix:     logging.PrefixWorkspaceWatch,
		handler:    e.handlers.Workspaces,
		store:      e.workspaces,
		bestEffort: e.config.ContinueOnException,
		newList:    func() client.ObjectList { return &v1beta.WorkspaceList{} },
		items: func(list client.ObjectList) []*v1beta.Workspace {
			items := list.(*v1beta.WorkspaceList).Items
			out := make([]*v1beta.Workspace, 0, len(items))
			for i := range items {
				out = append(out, &items[i])
			}
			return out
		},
		client:    e.client,
		namespace: e.client.Namespace(),
		idle:      e.idle,
		metrics:   e.metrics,
	}
}
