// The worker drives the periodic machinery: discovery cycles, monitor alert
// sweeps, and graph mirror reconciliation.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"opsbrain/infrastructure/config"
	"opsbrain/infrastructure/di"

	"go.uber.org/zap"
)

const (
	alertSweepInterval     = time.Minute
	reconciliationInterval = 5 * time.Minute
	reconciliationLookback = 15 * time.Minute
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	container, err := di.InitializeContainer(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to initialize container: %v", err)
	}
	defer container.Shutdown()

	logger := container.Logger
	logger.Info("Worker started",
		zap.Duration("discoveryInterval", cfg.DiscoveryInterval),
	)

	go runDiscovery(ctx, container, cfg.DiscoveryInterval, logger)
	go runAlertSweep(ctx, container, logger)
	go runMirrorReconciliation(ctx, container, logger)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("Worker shutting down")
	cancel()
}

func runDiscovery(ctx context.Context, c *di.Container, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			created, err := c.Discovery.RunCycle(ctx)
			if err != nil {
				logger.Error("Discovery cycle failed", zap.Error(err))
				continue
			}
			logger.Info("Discovery cycle done", zap.Int("proposalsCreated", created))
		}
	}
}

func runAlertSweep(ctx context.Context, c *di.Container, logger *zap.Logger) {
	ticker := time.NewTicker(alertSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Monitor.EvaluateAlerts(ctx); err != nil {
				logger.Error("Alert sweep failed", zap.Error(err))
			}
		}
	}
}

func runMirrorReconciliation(ctx context.Context, c *di.Container, logger *zap.Logger) {
	ticker := time.NewTicker(reconciliationInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			projected, err := c.Graph.ReconcileMirror(ctx, time.Now().UTC().Add(-reconciliationLookback))
			if err != nil {
				logger.Error("Mirror reconciliation failed", zap.Error(err))
				continue
			}
			if projected > 0 {
				logger.Debug("Mirror reconciled", zap.Int("linksProjected", projected))
			}
		}
	}
}
