package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"opsbrain/application/ports"
	"opsbrain/domain/knowledge"
	"opsbrain/domain/workflow"
	"opsbrain/pkg/errors"
)

// ---- chunk repository ----

type fakeChunkRepo struct {
	mu     sync.Mutex
	chunks map[string]*knowledge.Chunk
}

func newFakeChunkRepo() *fakeChunkRepo {
	return &fakeChunkRepo{chunks: make(map[string]*knowledge.Chunk)}
}

func (r *fakeChunkRepo) Save(ctx context.Context, chunk *knowledge.Chunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunks[chunk.ID] = chunk
	return nil
}

func (r *fakeChunkRepo) GetByID(ctx context.Context, tenantID, chunkID string) (*knowledge.Chunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	chunk, ok := r.chunks[chunkID]
	if !ok || chunk.TenantID != tenantID {
		return nil, errors.NewNotFoundError("chunk not found")
	}
	return chunk, nil
}

func (r *fakeChunkRepo) ListByScope(ctx context.Context, tenantID, agentID string) ([]*knowledge.Chunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*knowledge.Chunk
	for _, chunk := range r.chunks {
		if chunk.TenantID == tenantID && chunk.VisibleTo(agentID) {
			out = append(out, chunk)
		}
	}
	return out, nil
}

func (r *fakeChunkRepo) Delete(ctx context.Context, tenantID, chunkID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.chunks, chunkID)
	return nil
}

// ---- link repository ----

type fakeLinkRepo struct {
	mu    sync.Mutex
	links map[string]*knowledge.Link
	err   error
}

func newFakeLinkRepo() *fakeLinkRepo {
	return &fakeLinkRepo{links: make(map[string]*knowledge.Link)}
}

func linkKey(l *knowledge.Link) string {
	return l.SourceID + "|" + l.TargetID + "|" + l.Relation
}

func (r *fakeLinkRepo) Upsert(ctx context.Context, link *knowledge.Link) error {
	if r.err != nil {
		return r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.links[linkKey(link)]; ok {
		existing.Weight = link.Weight
		existing.Metadata = link.Metadata
		return nil
	}
	copied := *link
	r.links[linkKey(link)] = &copied
	return nil
}

func (r *fakeLinkRepo) GetBySource(ctx context.Context, sourceID string) ([]*knowledge.Link, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*knowledge.Link
	for _, link := range r.links {
		if link.SourceID == sourceID {
			out = append(out, link)
		}
	}
	return out, nil
}

func (r *fakeLinkRepo) ListRecent(ctx context.Context, since time.Time, limit int32) ([]*knowledge.Link, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*knowledge.Link
	for _, link := range r.links {
		if link.CreatedAt.After(since) {
			out = append(out, link)
		}
	}
	return out, nil
}

func (r *fakeLinkRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.links)
}

// ---- cache repository ----

type fakeCacheRepo struct {
	mu      sync.Mutex
	entries map[string]*knowledge.CacheEntry
	err     error
}

func newFakeCacheRepo() *fakeCacheRepo {
	return &fakeCacheRepo{entries: make(map[string]*knowledge.CacheEntry)}
}

func (r *fakeCacheRepo) Get(ctx context.Context, fingerprint string) (*knowledge.CacheEntry, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[fingerprint]
	if !ok {
		return nil, nil
	}
	return entry, nil
}

func (r *fakeCacheRepo) Put(ctx context.Context, entry *knowledge.CacheEntry) error {
	if r.err != nil {
		return r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[entry.Fingerprint] = entry
	return nil
}

// ---- proposal repository ----

type fakeProposalRepo struct {
	mu        sync.Mutex
	proposals map[string]*workflow.Proposal
}

func newFakeProposalRepo() *fakeProposalRepo {
	return &fakeProposalRepo{proposals: make(map[string]*workflow.Proposal)}
}

func (r *fakeProposalRepo) Create(ctx context.Context, proposal *workflow.Proposal) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.proposals[proposal.Name]; exists {
		return false, nil
	}
	copied := *proposal
	r.proposals[proposal.Name] = &copied
	return true, nil
}

func (r *fakeProposalRepo) GetByName(ctx context.Context, name string) (*workflow.Proposal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	proposal, ok := r.proposals[name]
	if !ok {
		return nil, errors.NewNotFoundError("proposal not found")
	}
	copied := *proposal
	return &copied, nil
}

func (r *fakeProposalRepo) List(ctx context.Context, status workflow.ProposalStatus) ([]*workflow.Proposal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*workflow.Proposal
	for _, p := range r.proposals {
		if status == "" || p.Status == status {
			copied := *p
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeProposalRepo) Update(ctx context.Context, proposal *workflow.Proposal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.proposals[proposal.Name]; !ok {
		return errors.NewNotFoundError("proposal not found")
	}
	copied := *proposal
	r.proposals[proposal.Name] = &copied
	return nil
}

func (r *fakeProposalRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.proposals)
}

// ---- execution repository ----

type fakeExecutionRepo struct {
	mu          sync.Mutex
	executions  map[string]*workflow.Execution
	checkpoints map[string]map[int]map[string]interface{}
}

func newFakeExecutionRepo() *fakeExecutionRepo {
	return &fakeExecutionRepo{
		executions:  make(map[string]*workflow.Execution),
		checkpoints: make(map[string]map[int]map[string]interface{}),
	}
}

func (r *fakeExecutionRepo) Save(ctx context.Context, e *workflow.Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *e
	r.executions[e.ID] = &copied
	return nil
}

func (r *fakeExecutionRepo) Update(ctx context.Context, e *workflow.Execution) error {
	return r.Save(ctx, e)
}

func (r *fakeExecutionRepo) GetByID(ctx context.Context, executionID string) (*workflow.Execution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.executions[executionID]
	if !ok {
		return nil, errors.NewNotFoundError("execution not found")
	}
	copied := *e
	return &copied, nil
}

func (r *fakeExecutionRepo) ListByWorkflow(ctx context.Context, workflowID string, since time.Time) ([]*workflow.Execution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*workflow.Execution
	for _, e := range r.executions {
		if e.WorkflowID == workflowID && e.StartedAt.After(since) {
			copied := *e
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeExecutionRepo) ListSince(ctx context.Context, since time.Time) ([]*workflow.Execution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*workflow.Execution
	for _, e := range r.executions {
		if e.StartedAt.After(since) {
			copied := *e
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeExecutionRepo) MarkStepCompleted(ctx context.Context, executionID string, stepIndex int, result map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.checkpoints[executionID] == nil {
		r.checkpoints[executionID] = make(map[int]map[string]interface{})
	}
	r.checkpoints[executionID][stepIndex] = result
	return nil
}

func (r *fakeExecutionRepo) CompletedSteps(ctx context.Context, executionID string) (map[int]map[string]interface{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[int]map[string]interface{})
	for k, v := range r.checkpoints[executionID] {
		out[k] = v
	}
	return out, nil
}

// ---- budget repository ----

type fakeBudgetRepo struct {
	mu       sync.Mutex
	balances map[string]float64
	debits   int
}

func newFakeBudgetRepo(initial map[string]float64) *fakeBudgetRepo {
	if initial == nil {
		initial = make(map[string]float64)
	}
	return &fakeBudgetRepo{balances: initial}
}

func (r *fakeBudgetRepo) Debit(ctx context.Context, tenantID string, amount float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.debits++
	balance, ok := r.balances[tenantID]
	if !ok || balance < amount {
		return errors.NewBudgetExceededError(tenantID, amount)
	}
	r.balances[tenantID] = balance - amount
	return nil
}

func (r *fakeBudgetRepo) Remaining(ctx context.Context, tenantID string) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.balances[tenantID], nil
}

// ---- embedding provider ----

// fakeEmbedder builds bag-of-words vectors over a per-instance vocabulary,
// so texts sharing words score a positive cosine similarity and unrelated
// texts score zero.
type fakeEmbedder struct {
	mu    sync.Mutex
	vocab map[string]int
	err   error
}

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{vocab: make(map[string]int)}
}

const fakeDims = 64

func (e *fakeEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if e.err != nil {
		return nil, e.err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	vec := make([]float64, fakeDims)
	for _, word := range splitWords(text) {
		idx, ok := e.vocab[word]
		if !ok {
			idx = len(e.vocab) % fakeDims
			e.vocab[word] = idx
		}
		vec[idx]++
	}
	return vec, nil
}

func (e *fakeEmbedder) Dimensions() int { return fakeDims }

func splitWords(text string) []string {
	var words []string
	current := ""
	for _, r := range text {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			current += string(r | 0x20)
			continue
		}
		if current != "" {
			words = append(words, current)
			current = ""
		}
	}
	if current != "" {
		words = append(words, current)
	}
	return words
}

// ---- agent runner ----

// fakeRunner counts submissions and serves scripted responses per agent type
type fakeRunner struct {
	mu       sync.Mutex
	submits  int
	statuses map[string]*ports.AgentTaskStatus
	response map[string]interface{}
	fail     bool
	failMsg  string
	cancel   bool
	pending  int // polls that report running before the terminal status
}

func newFakeRunner(response map[string]interface{}) *fakeRunner {
	return &fakeRunner{
		statuses: make(map[string]*ports.AgentTaskStatus),
		response: response,
	}
}

func (r *fakeRunner) Submit(ctx context.Context, task ports.AgentTask) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.submits++
	taskID := fmt.Sprintf("task-%d", r.submits)

	status := &ports.AgentTaskStatus{TaskID: taskID, Status: ports.TaskStatusCompleted, ResultData: r.response}
	if r.fail {
		status = &ports.AgentTaskStatus{TaskID: taskID, Status: ports.TaskStatusFailed, ErrorMessage: r.failMsg}
	}
	if r.cancel {
		status = &ports.AgentTaskStatus{TaskID: taskID, Status: ports.TaskStatusCancelled}
	}
	r.statuses[taskID] = status
	return taskID, nil
}

func (r *fakeRunner) Status(ctx context.Context, taskID string) (*ports.AgentTaskStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending > 0 {
		r.pending--
		return &ports.AgentTaskStatus{TaskID: taskID, Status: ports.TaskStatusRunning}, nil
	}
	status, ok := r.statuses[taskID]
	if !ok {
		return nil, errors.NewNotFoundError("task not found")
	}
	return status, nil
}

func (r *fakeRunner) submitCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.submits
}

// ---- secret store ----

type fakeSecrets struct {
	values map[string]string
}

func (s *fakeSecrets) Get(ctx context.Context, keyPath string) (string, error) {
	if v, ok := s.values[keyPath]; ok {
		return v, nil
	}
	return "", errors.NewNotFoundError("parameter not found")
}

// ---- graph mirror ----

type fakeMirror struct {
	mu    sync.Mutex
	edges map[string][]knowledge.Related
	err   error
}

func newFakeMirror() *fakeMirror {
	return &fakeMirror{edges: make(map[string][]knowledge.Related)}
}

func (m *fakeMirror) Project(ctx context.Context, link *knowledge.Link) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edges[link.SourceID] = append(m.edges[link.SourceID], knowledge.Related{
		ChunkID:  link.TargetID,
		Relation: link.Relation,
		Weight:   link.Weight,
		Depth:    1,
	})
	return nil
}

func (m *fakeMirror) Traverse(ctx context.Context, chunkID string, depth int) ([]knowledge.Related, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.edges[chunkID], nil
}

// ---- alert publisher ----

type fakeAlerts struct {
	mu     sync.Mutex
	alerts []ports.Alert
	err    error
}

func (a *fakeAlerts) Publish(ctx context.Context, alert ports.Alert) error {
	if a.err != nil {
		return a.err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, alert)
	return nil
}

func (a *fakeAlerts) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.alerts)
}

// ---- external connector ----

type fakeConnector struct {
	mu         sync.Mutex
	published  []string
	fetched    []string
	updated    []string
	publishErr error
	fetchState map[string]interface{}
}

func (c *fakeConnector) Publish(ctx context.Context, target string, payload map[string]interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, target)
	return c.publishErr
}

func (c *fakeConnector) Fetch(ctx context.Context, target string, query map[string]interface{}) (map[string]interface{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetched = append(c.fetched, target)
	if c.fetchState == nil {
		return map[string]interface{}{}, nil
	}
	return c.fetchState, nil
}

func (c *fakeConnector) Update(ctx context.Context, target string, payload map[string]interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updated = append(c.updated, target)
	return nil
}

func (c *fakeConnector) publishCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.published)
}

// ---- telemetry reader ----

type fakeTelemetry struct {
	themes    []ports.SupportTheme
	sequences []ports.ActionSequence
	usage     []ports.TenantToolUsage
	pairs     []ports.ToolPair
}

func (t *fakeTelemetry) SupportThemes(ctx context.Context, since time.Time) ([]ports.SupportTheme, error) {
	return t.themes, nil
}

func (t *fakeTelemetry) FrequentSequences(ctx context.Context, since time.Time) ([]ports.ActionSequence, error) {
	return t.sequences, nil
}

func (t *fakeTelemetry) ToolUsageByTenant(ctx context.Context, since time.Time) ([]ports.TenantToolUsage, error) {
	return t.usage, nil
}

func (t *fakeTelemetry) CoUsedTools(ctx context.Context, since time.Time) ([]ports.ToolPair, error) {
	return t.pairs, nil
}

// ---- cycle locker ----

type fakeLockHandle struct{}

func (h *fakeLockHandle) Release(ctx context.Context) error { return nil }

type fakeLocker struct {
	held     bool
	acquires int
}

func (l *fakeLocker) Acquire(ctx context.Context, resourceName, ownerID string, lockDuration time.Duration) (LockHandle, error) {
	l.acquires++
	if l.held {
		return nil, fmt.Errorf("resource %s: lock already held", resourceName)
	}
	return &fakeLockHandle{}, nil
}

// ---- schedule backend ----

type fakeScheduleBackend struct {
	mu       sync.Mutex
	records  map[string]ports.ScheduleRecord
	putCalls int
	emits    []string
}

func newFakeScheduleBackend() *fakeScheduleBackend {
	return &fakeScheduleBackend{records: make(map[string]ports.ScheduleRecord)}
}

func (b *fakeScheduleBackend) Put(ctx context.Context, record ports.ScheduleRecord, nativeExpression string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.putCalls++
	b.records[record.ID] = record
	return nil
}

func (b *fakeScheduleBackend) Get(ctx context.Context, scheduleID string) (*ports.ScheduleRecord, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	record, ok := b.records[scheduleID]
	if !ok {
		return nil, false, nil
	}
	return &record, true, nil
}

func (b *fakeScheduleBackend) List(ctx context.Context) ([]ports.ScheduleRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]ports.ScheduleRecord, 0, len(b.records))
	for _, r := range b.records {
		out = append(out, r)
	}
	return out, nil
}

func (b *fakeScheduleBackend) SetEnabled(ctx context.Context, scheduleID string, enabled bool, note string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	record, ok := b.records[scheduleID]
	if !ok {
		return errors.NewNotFoundError("schedule not found")
	}
	record.Enabled = enabled
	if note != "" {
		record.Note = note
	}
	b.records[scheduleID] = record
	return nil
}

func (b *fakeScheduleBackend) Delete(ctx context.Context, scheduleID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.records, scheduleID)
	return nil
}

func (b *fakeScheduleBackend) Emit(ctx context.Context, scheduleID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.records[scheduleID]; !ok {
		return errors.NewNotFoundError("schedule not found")
	}
	b.emits = append(b.emits, scheduleID)
	return nil
}
