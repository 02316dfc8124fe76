// Package di wires the application together.
package di

import (
	"context"
	"time"

	"opsbrain/application/ports"
	"opsbrain/application/services"
	"opsbrain/infrastructure/agents"
	"opsbrain/infrastructure/config"
	"opsbrain/infrastructure/connectors"
	"opsbrain/infrastructure/embeddings"
	"opsbrain/infrastructure/graph"
	"opsbrain/infrastructure/messaging/eventbridge"
	"opsbrain/infrastructure/persistence/dynamodb"
	"opsbrain/infrastructure/secrets"
	"opsbrain/pkg/async"
	"opsbrain/pkg/observability"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscloudwatch "github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"go.uber.org/zap"
)

// ProvideLogger creates the process logger
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsProduction() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// ProvideAWSConfig loads the AWS SDK configuration
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWSRegion),
	)
}

// ProvideDynamoDBClient creates a DynamoDB client
func ProvideDynamoDBClient(awsCfg aws.Config) *awsdynamodb.Client {
	return awsdynamodb.NewFromConfig(awsCfg)
}

// ProvideEventBridgeClient creates an EventBridge client
func ProvideEventBridgeClient(awsCfg aws.Config) *awseventbridge.Client {
	return awseventbridge.NewFromConfig(awsCfg)
}

// ProvideCloudWatchClient creates a CloudWatch client
func ProvideCloudWatchClient(awsCfg aws.Config) *awscloudwatch.Client {
	return awscloudwatch.NewFromConfig(awsCfg)
}

// ProvideSSMClient creates an SSM client
func ProvideSSMClient(awsCfg aws.Config) *awsssm.Client {
	return awsssm.NewFromConfig(awsCfg)
}

// ProvidePool creates and starts the background worker pool
func ProvidePool(ctx context.Context, cfg *config.Config, logger *zap.Logger) *async.Pool {
	pool := async.NewPool(cfg.WorkerCount, cfg.WorkerQueueDepth, cfg.WorkerTaskTimeout, logger)
	pool.Start(ctx)
	return pool
}

// ProvideChunkRepository creates the chunk store
func ProvideChunkRepository(client *awsdynamodb.Client, cfg *config.Config, logger *zap.Logger) ports.ChunkRepository {
	return dynamodb.NewChunkRepository(client, cfg.DynamoDBTable, logger)
}

// ProvideLinkRepository creates the link source of truth
func ProvideLinkRepository(client *awsdynamodb.Client, cfg *config.Config, logger *zap.Logger) ports.LinkRepository {
	return dynamodb.NewLinkRepository(client, cfg.DynamoDBTable, cfg.EntityIndex, logger)
}

// ProvideCacheRepository creates the semantic cache store
func ProvideCacheRepository(client *awsdynamodb.Client, cfg *config.Config, logger *zap.Logger) ports.CacheRepository {
	return dynamodb.NewCacheRepository(client, cfg.DynamoDBTable, logger)
}

// ProvideProposalRepository creates the proposal store
func ProvideProposalRepository(client *awsdynamodb.Client, cfg *config.Config, logger *zap.Logger) ports.ProposalRepository {
	return dynamodb.NewProposalRepository(client, cfg.DynamoDBTable, cfg.EntityIndex, logger)
}

// ProvideExecutionRepository creates the execution store
func ProvideExecutionRepository(client *awsdynamodb.Client, cfg *config.Config, logger *zap.Logger) ports.ExecutionRepository {
	return dynamodb.NewExecutionRepository(client, cfg.DynamoDBTable, cfg.EntityIndex, cfg.WorkflowIndex, logger)
}

// ProvideBudgetRepository creates the budget ledger
func ProvideBudgetRepository(client *awsdynamodb.Client, cfg *config.Config, logger *zap.Logger) ports.BudgetRepository {
	return dynamodb.NewBudgetRepository(client, cfg.DynamoDBTable, cfg.DefaultTenantBudget, logger)
}

// ProvideTelemetryReader creates the telemetry aggregation reader
func ProvideTelemetryReader(client *awsdynamodb.Client, cfg *config.Config, logger *zap.Logger) ports.TelemetryReader {
	return dynamodb.NewTelemetryReader(client, cfg.DynamoDBTable, logger)
}

// ProvideCycleLocker adapts the DynamoDB distributed lock to the service port
func ProvideCycleLocker(client *awsdynamodb.Client, cfg *config.Config, logger *zap.Logger) services.CycleLocker {
	return &cycleLockAdapter{inner: dynamodb.NewDistributedLock(client, cfg.DynamoDBTable, logger)}
}

type cycleLockAdapter struct {
	inner *dynamodb.DistributedLock
}

func (a *cycleLockAdapter) Acquire(ctx context.Context, resourceName, ownerID string, lockDuration time.Duration) (services.LockHandle, error) {
	lock, err := a.inner.Acquire(ctx, resourceName, ownerID, lockDuration)
	if err != nil {
		return nil, err
	}
	return lock, nil
}

// ProvideGraphMirror creates the in-process graph fast store
func ProvideGraphMirror() ports.GraphMirror {
	return graph.NewMemoryMirror()
}

// ProvideAlertPublisher creates the admin notification channel
func ProvideAlertPublisher(client *awseventbridge.Client, cfg *config.Config, logger *zap.Logger) ports.AlertPublisher {
	return eventbridge.NewAlertPublisher(client, cfg.EventBusName, logger)
}

// ProvideScheduleBackend creates the EventBridge schedule backend
func ProvideScheduleBackend(client *awseventbridge.Client, cfg *config.Config, logger *zap.Logger) ports.ScheduleBackend {
	return eventbridge.NewScheduleBackend(client, cfg.EventBusName, cfg.RulePrefix, logger)
}

// ProvideSecretStore creates the SSM-backed secret store
func ProvideSecretStore(client *awsssm.Client, logger *zap.Logger) ports.SecretStore {
	return secrets.NewSSMStore(client, logger)
}

// ProvideMetrics creates the CloudWatch metrics publisher
func ProvideMetrics(client *awscloudwatch.Client, cfg *config.Config, logger *zap.Logger) *observability.MetricsPublisher {
	return observability.NewMetricsPublisher(client, cfg.MetricsNamespace, cfg.EnableMetrics, logger)
}

// ProvideAgentRunner creates the agent-execution backend client
func ProvideAgentRunner(cfg *config.Config, logger *zap.Logger) ports.AgentRunner {
	return agents.NewClient(cfg.AgentBackendURL, cfg.AgentBackendAPIKey, logger)
}

// ProvideEmbeddingProvider creates the embeddings client
func ProvideEmbeddingProvider(cfg *config.Config, logger *zap.Logger) ports.EmbeddingProvider {
	return embeddings.NewHTTPProvider(cfg.EmbeddingsURL, cfg.EmbeddingsAPIKey, cfg.EmbeddingDimensions, logger)
}

// ProvideExternalConnector creates the connector hub client
func ProvideExternalConnector(cfg *config.Config, logger *zap.Logger) ports.ExternalConnector {
	return connectors.NewHubClient(cfg.ConnectorHubURL, logger)
}

// ProvideGraphService creates the knowledge graph service. Its agent caller
// is attached when the gateway is built.
func ProvideGraphService(links ports.LinkRepository, chunks ports.ChunkRepository, mirror ports.GraphMirror, pool *async.Pool, logger *zap.Logger) *services.GraphService {
	return services.NewGraphService(links, chunks, mirror, pool, logger)
}

// ProvideRetrievalService creates the retrieval service
func ProvideRetrievalService(chunks ports.ChunkRepository, embedder ports.EmbeddingProvider, graphSvc *services.GraphService, pool *async.Pool, logger *zap.Logger) *services.RetrievalService {
	return services.NewRetrievalService(chunks, embedder, graphSvc, pool, logger)
}

// ProvideSemanticCache creates the semantic cache service
func ProvideSemanticCache(repo ports.CacheRepository, cfg *config.Config, logger *zap.Logger) *services.SemanticCache {
	return services.NewSemanticCache(repo, cfg.CacheTTL, logger)
}

// ProvideGovernance creates the governance service
func ProvideGovernance(budget ports.BudgetRepository, logger *zap.Logger) *services.Governance {
	return services.NewGovernance(budget, nil, logger)
}

// ProvideModelCatalog creates the model catalog
func ProvideModelCatalog(store ports.SecretStore, cfg *config.Config, logger *zap.Logger) *services.ModelCatalog {
	return services.NewModelCatalog(store, cfg.SecretPrefix, cfg.ModelFast, cfg.ModelReasoning, cfg.ModelDefault, logger)
}

// ProvideGateway creates the intelligence gateway and closes the loop back
// into the graph service for relation extraction
func ProvideGateway(
	runner ports.AgentRunner,
	retrieval *services.RetrievalService,
	graphSvc *services.GraphService,
	cache *services.SemanticCache,
	governance *services.Governance,
	catalog *services.ModelCatalog,
	pool *async.Pool,
	cfg *config.Config,
	logger *zap.Logger,
) *services.Gateway {
	gateway := services.NewGateway(
		runner, retrieval, graphSvc, cache, governance, catalog,
		nil, pool,
		cfg.AgentPollInterval, cfg.AgentPollAttempts, cfg.AgentMaxConcurrency,
		logger,
	)
	graphSvc.SetAgentCaller(gateway)
	return gateway
}

// ProvideMonitor creates the workflow monitor
func ProvideMonitor(executions ports.ExecutionRepository, alerts ports.AlertPublisher, metrics *observability.MetricsPublisher, logger *zap.Logger) *services.Monitor {
	return services.NewMonitor(executions, alerts, metrics, logger)
}

// ProvideEngine creates the workflow execution engine
func ProvideEngine(
	executions ports.ExecutionRepository,
	gateway *services.Gateway,
	connector ports.ExternalConnector,
	alerts ports.AlertPublisher,
	monitor *services.Monitor,
	logger *zap.Logger,
) *services.Engine {
	return services.NewEngine(executions, gateway, connector, alerts, monitor, logger)
}

// ProvideDiscovery creates the workflow discovery agent
func ProvideDiscovery(proposals ports.ProposalRepository, telemetry ports.TelemetryReader, locker services.CycleLocker, logger *zap.Logger) *services.Discovery {
	return services.NewDiscovery(proposals, telemetry, locker, logger)
}

// ProvideScheduleManager creates the schedule manager
func ProvideScheduleManager(backend ports.ScheduleBackend, logger *zap.Logger) *services.ScheduleManager {
	return services.NewScheduleManager(backend, logger)
}

// ProvideProposalService creates the proposal review service
func ProvideProposalService(proposals ports.ProposalRepository, schedules *services.ScheduleManager, engine *services.Engine, logger *zap.Logger) *services.ProposalService {
	return services.NewProposalService(proposals, schedules, engine, logger)
}
