package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"theiacloud/internal/config"
	"theiacloud/pkg/logging"
)

// runOperator runs the metrics server, the template watcher and the engine
// until ctx is cancelled or one of them fails.
func runOperator(ctx context.Context, cfg config.OperatorConfig, services *Services) error {
	if err := services.Client.ValidateCRDs(ctx); err != nil {
		return fmt.Errorf("theia.cloud CRDs are not installed: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	if services.MetricsServer != nil {
		g.Go(func() error { return services.MetricsServer.Run(gctx) })
	}

	g.Go(func() error {
		if err := services.Renderer.Watch(gctx); err != nil {
			logging.Warn("Templates", "Template reloading disabled: %v", err)
		}
		return nil
	})

	g.Go(func() error {
		if !cfg.LeaderElection {
			logging.Info("Operator", "Leader election disabled, starting engine")
			return services.Engine.Run(gctx)
		}
		return newLeaderElection(services.Clientset, cfg).run(gctx, services.Engine.Run)
	})

	err := g.Wait()
	if err != nil {
		logging.Error("Operator", err, "Operator stopped")
		return err
	}
	logging.Info("Operator", "Operator shut down")
	return nil
}
