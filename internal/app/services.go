package app

import (
	"fmt"

	"k8s.io/client-go/kubernetes"
	ctrl "sigs.k8s.io/controller-runtime"

	theiaclient "theiacloud/internal/client"
	"theiacloud/internal/config"
	"theiacloud/internal/handler"
	"theiacloud/internal/metrics"
	"theiacloud/internal/operator"
	"theiacloud/internal/template"
	"theiacloud/pkg/logging"
)

// Services holds everything the operator process runs.
type Services struct {
	// Client is the namespaced client shared by the handlers and the engine.
	Client *theiaclient.Client

	// Clientset backs the leader election lease.
	Clientset kubernetes.Interface

	Renderer *template.Renderer
	Metrics  *metrics.Metrics
	Engine   *operator.Engine

	// MetricsServer is nil when no metrics address is configured.
	MetricsServer *metrics.Server
}

// InitializeServices connects to the cluster and creates the services for cfg.Operator.
func InitializeServices(cfg *Config) (*Services, error) {
	restConfig := cfg.RestConfig
	if restConfig == nil {
		var err error
		restConfig, err = ctrl.GetConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to get Kubernetes config: %w", err)
		}
	}

	c, err := theiaclient.NewForConfig(restConfig, cfg.Operator.Namespace)
	if err != nil {
		return nil, err
	}
	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kubernetes clientset: %w", err)
	}
	return newServices(cfg.Operator, c, clientset)
}

func newServices(operatorConfig config.OperatorConfig, c *theiaclient.Client, clientset kubernetes.Interface) (*Services, error) {
	renderer, err := template.NewRenderer(operatorConfig.TemplatesDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}

	m := metrics.New()
	handlers := handler.NewSet(handler.Deps{
		Client:   c,
		Renderer: renderer,
		Config:   operatorConfig,
	})
	engine := operator.New(c, handlers, operatorConfig, m)

	services := &Services{
		Client:    c,
		Clientset: clientset,
		Renderer:  renderer,
		Metrics:   m,
		Engine:    engine,
	}
	if operatorConfig.MetricsAddress != "" {
		services.MetricsServer = metrics.NewServer(operatorConfig.MetricsAddress, m, engine.IdleMonitor().Healthy)
	}

	mode := "lazy"
	if operatorConfig.EagerStart {
		mode = "eager"
	}
	logging.Info("Bootstrap", "Initialized services for namespace %s with %s start", c.Namespace(), mode)
	return services, nil
}
