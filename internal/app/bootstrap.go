package app

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"theiacloud/pkg/logging"
)

// Application bootstraps and runs the operator.
//
// Example usage:
//
//	cfg := app.NewConfig("/etc/theia-cloud/operator.yaml")
//	application, err := app.NewApplication(cfg)
//	if err != nil {
//	    return fmt.Errorf("failed to create application: %w", err)
//	}
//	return application.Run(ctx)
type Application struct {
	config   *Config
	services *Services
}

// NewApplication loads and validates the configuration and creates all
// services. Nothing is started yet.
func NewApplication(cfg *Config) (*Application, error) {
	if err := cfg.load(); err != nil {
		logging.Error("Bootstrap", err, "Failed to load operator configuration")
		return nil, fmt.Errorf("failed to load operator configuration: %w", err)
	}

	services, err := InitializeServices(cfg)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to initialize services")
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return &Application{
		config:   cfg,
		services: services,
	}, nil
}

// Run blocks until ctx is cancelled, SIGINT or SIGTERM arrive, or the
// operator fails. Conditions that require a restart are returned as
// *operator.FatalError.
func (a *Application) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return runOperator(ctx, a.config.Operator, a.services)
}
