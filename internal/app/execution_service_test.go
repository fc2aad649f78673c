package app

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowdeckio/api/pkg/crypto"
	"github.com/flowdeckio/api/pkg/domain/envvar"
	"github.com/flowdeckio/api/pkg/domain/execution"
	"github.com/flowdeckio/api/pkg/domain/shared"
	"github.com/flowdeckio/api/pkg/domain/usage"
	"github.com/flowdeckio/api/pkg/domain/workflow"
	"github.com/flowdeckio/api/pkg/logger"
	"github.com/flowdeckio/api/pkg/pagination"
)

// In-memory fakes.

type memWorkflowRepo struct {
	mu        sync.Mutex
	workflows map[shared.ID]*workflow.Workflow
	runCounts map[shared.ID]int
}

func newMemWorkflowRepo() *memWorkflowRepo {
	return &memWorkflowRepo{
		workflows: make(map[shared.ID]*workflow.Workflow),
		runCounts: make(map[shared.ID]int),
	}
}

func (r *memWorkflowRepo) Create(_ context.Context, wf *workflow.Workflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workflows[wf.ID] = wf
	return nil
}

func (r *memWorkflowRepo) GetByID(_ context.Context, id shared.ID) (*workflow.Workflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wf, ok := r.workflows[id]
	if !ok {
		return nil, shared.NewDomainError("NOT_FOUND", "workflow not found", shared.ErrNotFound)
	}
	return wf, nil
}

func (r *memWorkflowRepo) List(_ context.Context, _ workflow.Filter, page pagination.Pagination) (pagination.Result[*workflow.Workflow], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*workflow.Workflow, 0, len(r.workflows))
	for _, wf := range r.workflows {
		out = append(out, wf)
	}
	return pagination.NewResult(out, int64(len(out)), page), nil
}

func (r *memWorkflowRepo) ListScheduled(_ context.Context) ([]*workflow.Workflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*workflow.Workflow
	for _, wf := range r.workflows {
		if wf.HasSchedule() && wf.IsDeployed {
			out = append(out, wf)
		}
	}
	return out, nil
}

func (r *memWorkflowRepo) Update(_ context.Context, wf *workflow.Workflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workflows[wf.ID] = wf
	return nil
}

func (r *memWorkflowRepo) IncrementRunCount(_ context.Context, id shared.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runCounts[id]++
	return nil
}

func (r *memWorkflowRepo) Delete(_ context.Context, id shared.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.workflows, id)
	return nil
}

func (r *memWorkflowRepo) runCount(id shared.ID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runCounts[id]
}

type memExecutionRepo struct {
	mu      sync.Mutex
	records map[shared.ID]*execution.Record
}

func newMemExecutionRepo() *memExecutionRepo {
	return &memExecutionRepo{records: make(map[shared.ID]*execution.Record)}
}

func (r *memExecutionRepo) Create(_ context.Context, record *execution.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[record.ID] = record
	return nil
}

func (r *memExecutionRepo) GetByID(_ context.Context, id shared.ID) (*execution.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[id]
	if !ok {
		return nil, shared.NewDomainError("NOT_FOUND", "execution not found", shared.ErrNotFound)
	}
	return record, nil
}

func (r *memExecutionRepo) ListByWorkflow(_ context.Context, workflowID shared.ID, page pagination.Pagination) (pagination.Result[*execution.Record], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*execution.Record
	for _, record := range r.records {
		if record.WorkflowID == workflowID {
			out = append(out, record)
		}
	}
	return pagination.NewResult(out, int64(len(out)), page), nil
}

func (r *memExecutionRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

type memEnvVarRepo struct {
	mu   sync.Mutex
	sets map[shared.ID]*envvar.Set
}

func newMemEnvVarRepo() *memEnvVarRepo {
	return &memEnvVarRepo{sets: make(map[shared.ID]*envvar.Set)}
}

func (r *memEnvVarRepo) GetByUser(_ context.Context, userID shared.ID) (*envvar.Set, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if set, ok := r.sets[userID]; ok {
		return set, nil
	}
	return envvar.NewSet(userID), nil
}

func (r *memEnvVarRepo) Save(_ context.Context, set *envvar.Set) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sets[set.UserID] = set
	return nil
}

type jsonSerializer struct{}

func (jsonSerializer) Serialize(snapshot *workflow.GraphSnapshot) (json.RawMessage, error) {
	return json.Marshal(snapshot)
}

type fakeEngine struct {
	mu      sync.Mutex
	calls   int
	lastReq *EngineRequest
	result  *EngineResult
	err     error
}

func (e *fakeEngine) Execute(_ context.Context, req *EngineRequest) (*EngineResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	e.lastReq = req
	if e.err != nil {
		return nil, e.err
	}
	if e.result != nil {
		return e.result, nil
	}
	return &EngineResult{Success: true, Output: map[string]any{"done": true}}, nil
}

func (e *fakeEngine) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type memUsageStore struct {
	mu     sync.Mutex
	totals map[shared.ID]float64
}

func newMemUsageStore() *memUsageStore {
	return &memUsageStore{totals: make(map[shared.ID]float64)}
}

func (s *memUsageStore) Increment(_ context.Context, userID shared.ID, cost float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totals[userID] += cost
	return s.totals[userID], nil
}

func (s *memUsageStore) Current(_ context.Context, userID shared.ID) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totals[userID], nil
}

func (s *memUsageStore) Reset(_ context.Context, userID shared.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.totals, userID)
	return nil
}

// Test harness.

type executionFixture struct {
	workflows  *memWorkflowRepo
	executions *memExecutionRepo
	envVars    *memEnvVarRepo
	engine     *fakeEngine
	usageStore *memUsageStore
	checker    *stubUsageChecker
	service    *ExecutionService
}

func newExecutionFixture(t *testing.T) *executionFixture {
	t.Helper()
	f := &executionFixture{
		workflows:  newMemWorkflowRepo(),
		executions: newMemExecutionRepo(),
		envVars:    newMemEnvVarRepo(),
		engine:     &fakeEngine{},
		usageStore: newMemUsageStore(),
		checker:    &stubUsageChecker{},
	}
	log := logger.NewNop()
	guard := NewAdmissionGuard(f.checker, log)
	resolver := envvar.NewResolver(crypto.NewNoOpEncryptor())
	f.service = NewExecutionService(
		f.workflows, f.executions, f.envVars,
		guard, resolver, jsonSerializer{}, f.engine, log,
		WithExecutionUsageStore(f.usageStore),
	)
	return f
}

func liveSnapshot(apiKeyValue string) *workflow.GraphSnapshot {
	s := workflow.NewGraphSnapshot()
	s.Blocks["start"] = &workflow.Block{
		ID: "start", Type: "starter", Name: "Start", Enabled: true,
		SubBlocks: map[string]any{"input": "hello"},
	}
	s.Blocks["agent"] = &workflow.Block{
		ID: "agent", Type: "agent", Name: "Agent", Enabled: true,
		SubBlocks: map[string]any{
			"apiKey": apiKeyValue,
			"model":  "gpt-4o",
		},
	}
	s.Edges = append(s.Edges, &workflow.Edge{ID: "e1", Source: "start", Target: "agent"})
	return s
}

func (f *executionFixture) createWorkflow(t *testing.T, snapshot *workflow.GraphSnapshot) *workflow.Workflow {
	t.Helper()
	wf, err := workflow.New(shared.NewID(), "test workflow", "")
	require.NoError(t, err)
	require.NoError(t, wf.UpdateLive(snapshot))
	require.NoError(t, f.workflows.Create(context.Background(), wf))
	return wf
}

func TestExecutionService_Execute_Success(t *testing.T) {
	f := newExecutionFixture(t)
	wf := f.createWorkflow(t, liveSnapshot("{{OPENAI_KEY}}"))

	set := envvar.NewSet(wf.UserID)
	set.Put("OPENAI_KEY", "sk-test-123")
	require.NoError(t, f.envVars.Save(context.Background(), set))

	record, err := f.service.Execute(context.Background(), ExecuteRequest{
		WorkflowID: wf.ID,
		UserID:     wf.UserID,
		Trigger:    execution.TriggerManual,
	})
	require.NoError(t, err)

	assert.Equal(t, execution.StatusCompleted, record.Status)
	require.NotNil(t, record.Result)
	assert.True(t, record.Result.Success)

	// The engine saw the resolved value, not the placeholder.
	var engineSnapshot workflow.GraphSnapshot
	require.NoError(t, json.Unmarshal(f.engine.lastReq.Snapshot, &engineSnapshot))
	assert.Equal(t, "sk-test-123", engineSnapshot.Blocks["agent"].SubBlocks["apiKey"])
	assert.Equal(t, map[string]string{"OPENAI_KEY": "sk-test-123"}, f.engine.lastReq.EnvVars)

	// Success-only side effects all fired.
	assert.Equal(t, 1, f.workflows.runCount(wf.ID))
	total, _ := f.usageStore.Current(context.Background(), wf.UserID)
	assert.Equal(t, float64(1), total)
	assert.Equal(t, 1, f.executions.count())

	// The stored workflow still holds the placeholder.
	stored, _ := f.workflows.GetByID(context.Background(), wf.ID)
	assert.Equal(t, "{{OPENAI_KEY}}", stored.Live.Blocks["agent"].SubBlocks["apiKey"])
}

func TestExecutionService_Execute_DeployedSnapshotWins(t *testing.T) {
	f := newExecutionFixture(t)
	wf := f.createWorkflow(t, liveSnapshot("deployed-value"))
	require.NoError(t, wf.Deploy())

	// Live drifts after deployment.
	require.NoError(t, wf.UpdateLive(liveSnapshot("live-value")))
	require.NoError(t, f.workflows.Update(context.Background(), wf))

	_, err := f.service.Execute(context.Background(), ExecuteRequest{
		WorkflowID: wf.ID, UserID: wf.UserID, Trigger: execution.TriggerAPI,
	})
	require.NoError(t, err)

	var engineSnapshot workflow.GraphSnapshot
	require.NoError(t, json.Unmarshal(f.engine.lastReq.Snapshot, &engineSnapshot))
	assert.Equal(t, "deployed-value", engineSnapshot.Blocks["agent"].SubBlocks["apiKey"])
}

func TestExecutionService_Execute_UndefinedVariableStopsBeforeEngine(t *testing.T) {
	f := newExecutionFixture(t)
	wf := f.createWorkflow(t, liveSnapshot("{{MISSING_KEY}}"))

	_, err := f.service.Execute(context.Background(), ExecuteRequest{
		WorkflowID: wf.ID, UserID: wf.UserID, Trigger: execution.TriggerManual,
	})
	require.Error(t, err)

	var undefErr *envvar.UndefinedVariableError
	require.True(t, errors.As(err, &undefErr))
	assert.Equal(t, "MISSING_KEY", undefErr.Name)

	// The engine never ran, counters never moved, but a failed record
	// was persisted.
	assert.Equal(t, 0, f.engine.callCount())
	assert.Equal(t, 0, f.workflows.runCount(wf.ID))
	assert.Equal(t, 1, f.executions.count())
}

func TestExecutionService_Execute_EngineFailure(t *testing.T) {
	f := newExecutionFixture(t)
	f.engine.result = &EngineResult{Success: false, Error: "block agent exploded"}
	wf := f.createWorkflow(t, liveSnapshot("plain"))

	record, err := f.service.Execute(context.Background(), ExecuteRequest{
		WorkflowID: wf.ID, UserID: wf.UserID, Trigger: execution.TriggerManual,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "block agent exploded")

	assert.Equal(t, execution.StatusFailed, record.Status)
	assert.Equal(t, 0, f.workflows.runCount(wf.ID))
	total, _ := f.usageStore.Current(context.Background(), wf.UserID)
	assert.Zero(t, total)
	assert.Equal(t, 1, f.executions.count())
}

func TestExecutionService_Execute_GuardReleasedAfterFailure(t *testing.T) {
	f := newExecutionFixture(t)
	f.engine.err = errors.New("engine unreachable")
	wf := f.createWorkflow(t, liveSnapshot("plain"))

	_, err := f.service.Execute(context.Background(), ExecuteRequest{
		WorkflowID: wf.ID, UserID: wf.UserID, Trigger: execution.TriggerManual,
	})
	require.Error(t, err)

	// A second attempt is admitted; the failed run released its
	// ticket.
	f.engine.err = nil
	_, err = f.service.Execute(context.Background(), ExecuteRequest{
		WorkflowID: wf.ID, UserID: wf.UserID, Trigger: execution.TriggerManual,
	})
	require.NoError(t, err)
}

func TestExecutionService_Execute_UsageLimit(t *testing.T) {
	f := newExecutionFixture(t)
	f.checker.check = usage.NewCheck(200, 100)
	wf := f.createWorkflow(t, liveSnapshot("plain"))

	_, err := f.service.Execute(context.Background(), ExecuteRequest{
		WorkflowID: wf.ID, UserID: wf.UserID, Trigger: execution.TriggerAPI,
	})
	require.Error(t, err)
	assert.True(t, shared.IsUsageLimit(err))
	assert.Equal(t, 0, f.engine.callCount())
	assert.Equal(t, 0, f.executions.count())
}

func TestExecutionService_Execute_MergesSubBlockValues(t *testing.T) {
	f := newExecutionFixture(t)
	wf := f.createWorkflow(t, liveSnapshot("stored"))

	_, err := f.service.Execute(context.Background(), ExecuteRequest{
		WorkflowID: wf.ID,
		UserID:     wf.UserID,
		Trigger:    execution.TriggerManual,
		SubBlockValues: map[string]map[string]any{
			"agent":   {"apiKey": "editor-override"},
			"unknown": {"x": 1},
		},
	})
	require.NoError(t, err)

	var engineSnapshot workflow.GraphSnapshot
	require.NoError(t, json.Unmarshal(f.engine.lastReq.Snapshot, &engineSnapshot))
	assert.Equal(t, "editor-override", engineSnapshot.Blocks["agent"].SubBlocks["apiKey"])
	// Unmerged values survive.
	assert.Equal(t, "gpt-4o", engineSnapshot.Blocks["agent"].SubBlocks["model"])
}

func TestExecutionService_Execute_SequentialBatchSameWorkflow(t *testing.T) {
	f := newExecutionFixture(t)
	wf := f.createWorkflow(t, liveSnapshot("plain"))

	p := NewBatchProcessor(BatchOptions{BatchSize: 10}, logger.NewNop()).Sequential()

	inputs := make([]map[string]any, 10)
	for i := range inputs {
		inputs[i] = map[string]any{"n": i}
	}

	results := RunBatches(context.Background(), p, inputs,
		func(ctx context.Context, input map[string]any) (*execution.Record, error) {
			return f.service.Execute(ctx, ExecuteRequest{
				WorkflowID: wf.ID,
				UserID:     wf.UserID,
				Trigger:    execution.TriggerAPI,
				Input:      input,
			})
		})

	// Items run one at a time, so none of them trips over the
	// admission ticket held by a sibling.
	require.Len(t, results, len(inputs))
	for _, res := range results {
		require.NoError(t, res.Err)
		assert.Equal(t, execution.StatusCompleted, res.Value.Status)
	}
	assert.Equal(t, len(inputs), f.engine.callCount())
	assert.Equal(t, len(inputs), f.workflows.runCount(wf.ID))
}

func TestExecutionService_Execute_WorkflowVariablesReachEngine(t *testing.T) {
	f := newExecutionFixture(t)
	wf := f.createWorkflow(t, liveSnapshot("plain"))
	wf.Variables = map[string]any{"region": "eu-west-1", "retries": float64(3)}
	require.NoError(t, f.workflows.Update(context.Background(), wf))

	_, err := f.service.Execute(context.Background(), ExecuteRequest{
		WorkflowID: wf.ID, UserID: wf.UserID, Trigger: execution.TriggerManual,
	})
	require.NoError(t, err)

	require.NotNil(t, f.engine.lastReq)
	assert.Equal(t, wf.Variables, f.engine.lastReq.Variables)
}

func TestExecutionService_Execute_ResponseFormatBestEffort(t *testing.T) {
	f := newExecutionFixture(t)
	snapshot := liveSnapshot("plain")
	snapshot.Blocks["agent"].SubBlocks["responseFormat"] = `{"type":"object","properties":{"answer":{"type":"string"}}}`
	snapshot.Blocks["start"].SubBlocks["responseFormat"] = `{not json`
	wf := f.createWorkflow(t, snapshot)

	_, err := f.service.Execute(context.Background(), ExecuteRequest{
		WorkflowID: wf.ID, UserID: wf.UserID, Trigger: execution.TriggerManual,
	})
	require.NoError(t, err)

	var engineSnapshot workflow.GraphSnapshot
	require.NoError(t, json.Unmarshal(f.engine.lastReq.Snapshot, &engineSnapshot))

	parsed, ok := engineSnapshot.Blocks["agent"].SubBlocks["responseFormat"].(map[string]any)
	require.True(t, ok, "valid responseFormat must be parsed to an object")
	assert.Equal(t, "object", parsed["type"])

	// Invalid JSON passes through untouched rather than failing the run.
	assert.Equal(t, `{not json`, engineSnapshot.Blocks["start"].SubBlocks["responseFormat"])
}

func TestExecutionService_Execute_WrongUser(t *testing.T) {
	f := newExecutionFixture(t)
	wf := f.createWorkflow(t, liveSnapshot("plain"))

	_, err := f.service.Execute(context.Background(), ExecuteRequest{
		WorkflowID: wf.ID, UserID: shared.NewID(), Trigger: execution.TriggerManual,
	})
	require.Error(t, err)
	assert.True(t, shared.IsNotFound(err))
	assert.Equal(t, 0, f.engine.callCount())
}
