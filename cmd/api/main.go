package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"opsbrain/infrastructure/config"
	"opsbrain/infrastructure/di"
	"opsbrain/interfaces/http/rest"
	"opsbrain/interfaces/http/rest/handlers"

	"go.uber.org/zap"
)

const version = "1.0.0"

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

	router := rest.NewRouter(cfg, rest.Handlers{
		Agent:     handlers.NewAgentHandler(container.Gateway, logger),
		Knowledge: handlers.NewKnowledgeHandler(container.Retrieval, container.Graph, logger),
		Proposal:  handlers.NewProposalHandler(container.ProposalService, logger),
		Workflow:  handlers.NewWorkflowHandler(container.Engine, container.Monitor, container.Exec, logger),
		Schedule:  handlers.NewScheduleHandler(container.Schedules, logger),
		Health:    handlers.NewHealthHandler(version),
	}, logger)

	server := &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("API server listening",
			zap.String("address", cfg.ServerAddress),
			zap.String("environment", cfg.Environment),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}
}
