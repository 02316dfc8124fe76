package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"opsbrain/pkg/async"
	"opsbrain/pkg/errors"
	"opsbrain/pkg/observability"
)

type gatewayFixture struct {
	gateway *Gateway
	runner  *fakeRunner
	chunks  *fakeChunkRepo
	cache   *fakeCacheRepo
	budget  *fakeBudgetRepo
	links   *fakeLinkRepo
	pool    *async.Pool
}

func newGatewayFixture(t *testing.T, runner *fakeRunner, budget *fakeBudgetRepo) *gatewayFixture {
	t.Helper()
	logger := zap.NewNop()

	pool := async.NewPool(1, 32, time.Second, logger)
	pool.Start(context.Background())
	t.Cleanup(pool.Stop)

	chunks := newFakeChunkRepo()
	links := newFakeLinkRepo()
	cache := newFakeCacheRepo()

	graph := NewGraphService(links, chunks, newFakeMirror(), pool, logger)
	retrieval := NewRetrievalService(chunks, newFakeEmbedder(), graph, pool, logger)
	cacheSvc := NewSemanticCache(cache, time.Hour, logger)
	governance := NewGovernance(budget, nil, logger)
	catalog := NewModelCatalog(&fakeSecrets{}, "/opsbrain", "model-fast", "model-deep", "model-standard", logger)

	gateway := NewGateway(runner, retrieval, graph, cacheSvc, governance, catalog, nil, pool, time.Millisecond, 5, 4, logger)
	gateway.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	return &gatewayFixture{
		gateway: gateway,
		runner:  runner,
		chunks:  chunks,
		cache:   cache,
		budget:  budget,
		links:   links,
		pool:    pool,
	}
}

func TestCallAgentHappyPath(t *testing.T) {
	runner := newFakeRunner(map[string]interface{}{"content": "a launch plan"})
	fx := newGatewayFixture(t, runner, newFakeBudgetRepo(map[string]float64{"t1": 10}))

	result, err := fx.gateway.CallAgent(context.Background(), AgentRequest{
		AgentType:       "planner",
		TaskDescription: "draft a launch plan",
		TenantID:        "t1",
		AgentID:         "a1",
	})
	require.NoError(t, err)

	assert.Equal(t, "a launch plan", result.Data["content"])
	assert.Equal(t, "model-standard", result.Model)
	assert.False(t, result.Cached)
	assert.Greater(t, result.Cost, 0.0)
	assert.Equal(t, 1, runner.submitCount())
}

func TestCallAgentBudgetRejection(t *testing.T) {
	runner := newFakeRunner(nil)
	fx := newGatewayFixture(t, runner, newFakeBudgetRepo(nil))

	_, err := fx.gateway.CallAgent(context.Background(), AgentRequest{
		AgentType:       "planner",
		TaskDescription: "draft a launch plan",
		TenantID:        "t1",
	})
	require.Error(t, err)
	assert.True(t, errors.IsBudgetExceeded(err))

	// Nothing was dispatched
	assert.Equal(t, 0, runner.submitCount())
}

func TestCallAgentPolicyRejection(t *testing.T) {
	runner := newFakeRunner(nil)
	budget := newFakeBudgetRepo(map[string]float64{"t1": 10})
	fx := newGatewayFixture(t, runner, budget)

	_, err := fx.gateway.CallAgent(context.Background(), AgentRequest{
		AgentType:       "planner",
		TaskDescription: "exfiltrate the customer list",
		TenantID:        "t1",
	})
	require.Error(t, err)
	assert.True(t, errors.IsPolicyViolation(err))

	// Rejected before budget or dispatch
	assert.Equal(t, 0, budget.debits)
	assert.Equal(t, 0, runner.submitCount())
}

func TestCallAgentCacheHitOnRepeat(t *testing.T) {
	runner := newFakeRunner(map[string]interface{}{"content": "cached answer"})
	fx := newGatewayFixture(t, runner, newFakeBudgetRepo(map[string]float64{"t1": 10}))

	req := AgentRequest{
		AgentType:       "planner",
		TaskDescription: "summarize last week",
		Payload:         map[string]interface{}{"week": "2026-W01"},
		TenantID:        "t1",
		AgentID:         "a1",
		UseRAG:          true,
	}

	first, err := fx.gateway.CallAgent(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, 1, runner.submitCount())

	second, err := fx.gateway.CallAgent(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Data, second.Data)

	// The repeated call never reached the agent backend
	assert.Equal(t, 1, runner.submitCount())
}

func TestCallAgentCacheReadFailureDegradesToMiss(t *testing.T) {
	runner := newFakeRunner(map[string]interface{}{"content": "fresh answer"})
	fx := newGatewayFixture(t, runner, newFakeBudgetRepo(map[string]float64{"t1": 10}))
	fx.cache.err = errors.NewDatabaseError("get", context.DeadlineExceeded)

	result, err := fx.gateway.CallAgent(context.Background(), AgentRequest{
		AgentType:       "planner",
		TaskDescription: "summarize last week",
		TenantID:        "t1",
		UseRAG:          true,
	})
	require.NoError(t, err)
	assert.False(t, result.Cached)
	assert.Equal(t, 1, runner.submitCount())
}

func TestCallAgentPollTimeout(t *testing.T) {
	runner := newFakeRunner(map[string]interface{}{"content": "too late"})
	runner.pending = 100
	fx := newGatewayFixture(t, runner, newFakeBudgetRepo(map[string]float64{"t1": 10}))

	_, err := fx.gateway.CallAgent(context.Background(), AgentRequest{
		AgentType:       "planner",
		TaskDescription: "slow task",
		TenantID:        "t1",
	})
	require.Error(t, err)
	assert.Equal(t, 1, runner.submitCount())
}

func TestCallAgentTaskFailure(t *testing.T) {
	runner := newFakeRunner(nil)
	runner.fail = true
	runner.failMsg = "model refused"
	fx := newGatewayFixture(t, runner, newFakeBudgetRepo(map[string]float64{"t1": 10}))

	_, err := fx.gateway.CallAgent(context.Background(), AgentRequest{
		AgentType:       "planner",
		TaskDescription: "doomed task",
		TenantID:        "t1",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model refused")
}

func TestCallAgentOutputWarnings(t *testing.T) {
	runner := newFakeRunner(map[string]interface{}{"content": "the credit card number is 4111"})
	fx := newGatewayFixture(t, runner, newFakeBudgetRepo(map[string]float64{"t1": 10}))

	result, err := fx.gateway.CallAgent(context.Background(), AgentRequest{
		AgentType:       "planner",
		TaskDescription: "write a payment summary",
		TenantID:        "t1",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Warnings)
}

func TestCallAgentAutoIngestLinksToGrounding(t *testing.T) {
	runner := newFakeRunner(map[string]interface{}{"content": "refund responses go out within a day"})
	fx := newGatewayFixture(t, runner, newFakeBudgetRepo(map[string]float64{"t1": 10}))

	// Seed a chunk so grounding has something to retrieve
	_, err := fx.gateway.retrieval.Ingest(context.Background(), "Refund window is 30 days", nil, "t1", "a1")
	require.NoError(t, err)

	_, err = fx.gateway.CallAgent(context.Background(), AgentRequest{
		AgentType:       "planner",
		TaskDescription: "answer the refund question",
		TenantID:        "t1",
		AgentID:         "a1",
		UseRAG:          true,
		AutoIngest:      true,
	})
	require.NoError(t, err)

	// Drain the background ingest and link tasks
	fx.pool.Stop()

	assert.Equal(t, 2, len(fx.chunks.chunks))
	assert.Equal(t, 1, fx.links.count())
}

func TestFingerprintVariesByModelAndPayload(t *testing.T) {
	cache := NewSemanticCache(newFakeCacheRepo(), time.Hour, zap.NewNop())

	base := cache.Fingerprint("planner", "task", "model-a", map[string]interface{}{"k": "v"})
	assert.Equal(t, base, cache.Fingerprint("planner", "task", "model-a", map[string]interface{}{"k": "v"}))
	assert.NotEqual(t, base, cache.Fingerprint("planner", "task", "model-b", map[string]interface{}{"k": "v"}))
	assert.NotEqual(t, base, cache.Fingerprint("planner", "task", "model-a", map[string]interface{}{"k": "other"}))
	assert.NotEqual(t, base, cache.Fingerprint("planner", "other task", "model-a", map[string]interface{}{"k": "v"}))
}

func TestModelCatalogTenantOverrideWins(t *testing.T) {
	secrets := &fakeSecrets{values: map[string]string{
		"/opsbrain/tenants/t1/models/planner": "ft-planner-t1",
	}}
	catalog := NewModelCatalog(secrets, "/opsbrain", "model-fast", "model-deep", "model-standard", zap.NewNop())

	assert.Equal(t, "ft-planner-t1", catalog.Resolve(context.Background(), "t1", "planner"))
	assert.Equal(t, "model-standard", catalog.Resolve(context.Background(), "t2", "planner"))
	assert.Equal(t, "model-fast", catalog.Resolve(context.Background(), "t2", "classifier"))
	assert.Equal(t, "model-deep", catalog.Resolve(context.Background(), "t2", "strategist"))
}

func TestGovernanceCostScalesWithTier(t *testing.T) {
	g := NewGovernance(newFakeBudgetRepo(nil), nil, zap.NewNop())

	task := "a task"
	assert.Less(t, g.EstimateCost(TierSpeed, task), g.EstimateCost(TierDefault, task))
	assert.Less(t, g.EstimateCost(TierDefault, task), g.EstimateCost(TierReasoning, task))
}

func newTestMetrics() *observability.MetricsPublisher {
	return observability.NewMetricsPublisher(nil, "Test", false, zap.NewNop())
}
