//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"opsbrain/infrastructure/config"

	"github.com/google/wire"
)

// SuperSet is the main provider set containing all providers
var SuperSet = wire.NewSet(
	ProvideLogger,
	ProvideAWSConfig,
	ProvideDynamoDBClient,
	ProvideEventBridgeClient,
	ProvideCloudWatchClient,
	ProvideSSMClient,
	ProvidePool,
	ProvideChunkRepository,
	ProvideLinkRepository,
	ProvideCacheRepository,
	ProvideProposalRepository,
	ProvideExecutionRepository,
	ProvideBudgetRepository,
	ProvideTelemetryReader,
	ProvideCycleLocker,
	ProvideGraphMirror,
	ProvideAlertPublisher,
	ProvideScheduleBackend,
	ProvideSecretStore,
	ProvideMetrics,
	ProvideAgentRunner,
	ProvideEmbeddingProvider,
	ProvideExternalConnector,
	ProvideGraphService,
	ProvideRetrievalService,
	ProvideSemanticCache,
	ProvideGovernance,
	ProvideModelCatalog,
	ProvideGateway,
	ProvideMonitor,
	ProvideEngine,
	ProvideDiscovery,
	ProvideScheduleManager,
	ProvideProposalService,
	wire.Struct(new(Container), "*"),
)

// InitializeContainer creates a fully wired container
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	wire.Build(SuperSet)
	return nil, nil // Wire will replace this
}
