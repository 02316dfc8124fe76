package di

import (
	"opsbrain/application/ports"
	"opsbrain/application/services"
	"opsbrain/infrastructure/config"
	"opsbrain/pkg/async"
	"opsbrain/pkg/observability"

	"go.uber.org/zap"
)

// Container holds all application dependencies
type Container struct {
	Config    *config.Config
	Logger    *zap.Logger
	Pool      *async.Pool
	Metrics   *observability.MetricsPublisher
	Mirror    ports.GraphMirror
	Links     ports.LinkRepository
	Chunks    ports.ChunkRepository
	Exec      ports.ExecutionRepository
	Proposals ports.ProposalRepository

	Retrieval       *services.RetrievalService
	Graph           *services.GraphService
	Cache           *services.SemanticCache
	Governance      *services.Governance
	Catalog         *services.ModelCatalog
	Gateway         *services.Gateway
	Engine          *services.Engine
	Monitor         *services.Monitor
	Discovery       *services.Discovery
	Schedules       *services.ScheduleManager
	ProposalService *services.ProposalService
}

// Shutdown stops background machinery and flushes logs
func (c *Container) Shutdown() {
	if c.Pool != nil {
		c.Pool.Stop()
	}
	if c.Logger != nil {
		_ = c.Logger.Sync()
	}
}
