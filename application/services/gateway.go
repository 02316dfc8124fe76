package services

import (
	"context"
	"fmt"
	"time"

	"opsbrain/application/ports"
	"opsbrain/pkg/async"
	"opsbrain/pkg/errors"

	"go.uber.org/zap"
)

// knowledgeContextKey is the reserved payload key retrieval grounding
// writes into. Caller payloads must not use it.
const knowledgeContextKey = "knowledge_context"

// AgentRequest is one call through the gateway
type AgentRequest struct {
	AgentType       string                 `json:"agent_type"`
	TaskDescription string                 `json:"task_description"`
	Payload         map[string]interface{} `json:"payload"`
	TenantID        string                 `json:"tenant_id"`
	AgentID         string                 `json:"agent_id"`
	Priority        string                 `json:"priority,omitempty"`
	UseRAG          bool                   `json:"use_rag"`
	AutoIngest      bool                   `json:"auto_ingest"`
}

// AgentResult is the gateway's answer: the raw agent output plus whatever
// governance attached on the way out
type AgentResult struct {
	Data     map[string]interface{} `json:"data"`
	Model    string                 `json:"model"`
	Cached   bool                   `json:"cached"`
	Cost     float64                `json:"cost_estimate"`
	Warnings []string               `json:"warnings,omitempty"`
}

// PromptEnhancer may rewrite the task and payload before dispatch
type PromptEnhancer interface {
	Enhance(ctx context.Context, agentType, taskDescription string, payload map[string]interface{}) (string, map[string]interface{})
}

// Gateway is the single chokepoint every agent call goes through:
// governance, budget, model selection, prompt enhancement, retrieval
// grounding, cache, dispatch/poll, and post-processing.
type Gateway struct {
	runner       ports.AgentRunner
	retrieval    *RetrievalService
	graph        *GraphService
	cache        *SemanticCache
	governance   *Governance
	catalog      *ModelCatalog
	enhancer     PromptEnhancer
	pool         *async.Pool
	logger       *zap.Logger
	pollInterval time.Duration
	pollAttempts int
	dispatchSlot chan struct{}

	// sleep is swapped out by tests
	sleep func(ctx context.Context, d time.Duration) error
}

// NewGateway creates a new Gateway. enhancer may be nil.
func NewGateway(
	runner ports.AgentRunner,
	retrieval *RetrievalService,
	graph *GraphService,
	cache *SemanticCache,
	governance *Governance,
	catalog *ModelCatalog,
	enhancer PromptEnhancer,
	pool *async.Pool,
	pollInterval time.Duration,
	pollAttempts int,
	maxConcurrency int,
	logger *zap.Logger,
) *Gateway {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &Gateway{
		runner:       runner,
		retrieval:    retrieval,
		graph:        graph,
		cache:        cache,
		governance:   governance,
		catalog:      catalog,
		enhancer:     enhancer,
		pool:         pool,
		logger:       logger,
		pollInterval: pollInterval,
		pollAttempts: pollAttempts,
		dispatchSlot: make(chan struct{}, maxConcurrency),
		sleep:        sleepWithContext,
	}
}

// CallAgent runs the full pipeline for one agent call. Policy and budget
// rejections abort before anything is dispatched; retrieval and cache
// problems degrade, never abort.
func (g *Gateway) CallAgent(ctx context.Context, req AgentRequest) (*AgentResult, error) {
	if err := g.governance.ReviewInput(req.TaskDescription, req.Payload); err != nil {
		return nil, err
	}

	model := g.catalog.Resolve(ctx, req.TenantID, req.AgentType)
	tier := g.catalog.Tier(req.AgentType)
	cost := g.governance.EstimateCost(tier, req.TaskDescription)
	if err := g.governance.ChargeBudget(ctx, req.TenantID, cost); err != nil {
		return nil, err
	}

	task := req.TaskDescription
	payload := clonePayload(req.Payload)
	if g.enhancer != nil {
		task, payload = g.enhancer.Enhance(ctx, req.AgentType, task, payload)
	}

	// Fingerprint before grounding is injected, so a repeated identical
	// call hits the cache even when the knowledge store moved underneath it
	fingerprint := g.cache.Fingerprint(req.AgentType, task, model, payload)

	var groundingIDs []string
	if req.UseRAG {
		payload, groundingIDs = g.ground(ctx, req, task, payload)

		if cached, ok := g.cache.Get(ctx, fingerprint); ok {
			g.logger.Debug("Semantic cache hit",
				zap.String("agentType", req.AgentType),
				zap.String("model", model),
			)
			return &AgentResult{Data: cached, Model: model, Cached: true, Cost: cost}, nil
		}
	}

	data, err := g.dispatchAndPoll(ctx, ports.AgentTask{
		AgentType:       req.AgentType,
		TaskDescription: task,
		InputData:       payload,
		Priority:        req.Priority,
		Config:          map[string]interface{}{"model": model},
	})
	if err != nil {
		return nil, err
	}

	result := &AgentResult{Data: data, Model: model, Cost: cost}
	result.Warnings = g.governance.ReviewOutput(data)

	if req.AutoIngest {
		g.ingestResult(req, data, groundingIDs)
	}
	if req.UseRAG {
		g.cache.Put(ctx, fingerprint, data, map[string]string{
			"agent_type": req.AgentType,
			"tenant_id":  req.TenantID,
			"model":      model,
		})
	}

	return result, nil
}

// ground injects retrieved context under the reserved payload key. Failures
// degrade to no context.
func (g *Gateway) ground(ctx context.Context, req AgentRequest, task string, payload map[string]interface{}) (map[string]interface{}, []string) {
	retrieved, err := g.retrieval.Retrieve(ctx, task, req.TenantID, req.AgentID, 5, nil)
	if err != nil {
		g.logger.Warn("Retrieval grounding failed, continuing without context",
			zap.String("agentType", req.AgentType),
			zap.Error(err),
		)
		return payload, nil
	}
	if len(retrieved) == 0 {
		return payload, nil
	}

	contents := make([]string, 0, len(retrieved))
	ids := make([]string, 0, len(retrieved))
	for _, chunk := range retrieved {
		contents = append(contents, chunk.Content)
		ids = append(ids, chunk.ChunkID)
	}
	payload[knowledgeContextKey] = contents
	return payload, ids
}

// dispatchAndPoll submits the task and polls until a terminal status or the
// attempt bound runs out. A slot on the dispatch semaphore bounds how many
// calls hit the agent backend at once.
func (g *Gateway) dispatchAndPoll(ctx context.Context, task ports.AgentTask) (map[string]interface{}, error) {
	select {
	case g.dispatchSlot <- struct{}{}:
		defer func() { <-g.dispatchSlot }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	taskID, err := g.runner.Submit(ctx, task)
	if err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= g.pollAttempts; attempt++ {
		if err := g.sleep(ctx, g.pollInterval); err != nil {
			return nil, err
		}

		status, err := g.runner.Status(ctx, taskID)
		if err != nil {
			g.logger.Warn("Task status poll failed",
				zap.String("taskID", taskID),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			continue
		}

		switch status.Status {
		case ports.TaskStatusCompleted:
			return status.ResultData, nil
		case ports.TaskStatusFailed:
			return nil, errors.NewTaskFailedError(taskID, status.ErrorMessage)
		case ports.TaskStatusCancelled:
			return nil, errors.NewTaskCancelledError(taskID)
		}
	}

	return nil, errors.NewTaskTimeoutError(taskID, g.pollAttempts)
}

// ingestResult stores a successful agent result as knowledge and links it
// to the chunks that grounded the call. Fire-and-forget.
func (g *Gateway) ingestResult(req AgentRequest, data map[string]interface{}, groundingIDs []string) {
	text := resultText(data)
	if text == "" {
		return
	}

	g.pool.Submit("result-auto-ingest", func(taskCtx context.Context) error {
		chunkID, err := g.retrieval.Ingest(taskCtx, text, map[string]string{
			"source":     "agent_result",
			"agent_type": req.AgentType,
		}, req.TenantID, req.AgentID)
		if err != nil {
			g.logger.Warn("Auto-ingest of agent result failed",
				zap.String("agentType", req.AgentType),
				zap.Error(err),
			)
			return nil
		}

		for _, sourceID := range groundingIDs {
			if err := g.graph.Link(taskCtx, chunkID, sourceID, "grounded_on", 1.0, nil); err != nil {
				g.logger.Warn("Failed to link result to grounding context",
					zap.String("chunkID", chunkID),
					zap.String("groundingID", sourceID),
					zap.Error(err),
				)
			}
		}
		return nil
	})
}

// resultText pulls the primary text out of an agent result
func resultText(data map[string]interface{}) string {
	for _, key := range []string{"content", "text", "result", "output"} {
		if s, ok := data[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func clonePayload(payload map[string]interface{}) map[string]interface{} {
	cloned := make(map[string]interface{}, len(payload)+1)
	for k, v := range payload {
		cloned[k] = v
	}
	return cloned
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait interrupted: %w", ctx.Err())
	}
}
