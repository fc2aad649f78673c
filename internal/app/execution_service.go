package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/flowdeckio/api/internal/metrics"
	"github.com/flowdeckio/api/pkg/domain/envvar"
	"github.com/flowdeckio/api/pkg/domain/execution"
	"github.com/flowdeckio/api/pkg/domain/shared"
	"github.com/flowdeckio/api/pkg/domain/usage"
	"github.com/flowdeckio/api/pkg/domain/workflow"
	"github.com/flowdeckio/api/pkg/logger"
	"github.com/flowdeckio/api/pkg/pagination"
	"github.com/flowdeckio/api/pkg/telemetry"
)

// ExecuteRequest asks for one workflow execution.
type ExecuteRequest struct {
	WorkflowID shared.ID
	UserID     shared.ID
	Trigger    string
	Input      map[string]any

	// SubBlockValues carries editor state keyed by block id, merged
	// over the snapshot's stored sub-block values before resolution.
	SubBlockValues map[string]map[string]any
}

// ExecutionService drives a workflow execution from admission through
// engine handoff to persisted result.
type ExecutionService struct {
	workflows  workflow.Repository
	executions execution.Repository
	envVars    envvar.Repository
	guard      *AdmissionGuard
	resolver   *envvar.Resolver
	serializer GraphSerializer
	engine     GraphEngine
	usageStore usage.Store
	events     EventPublisher
	tracer     trace.Tracer
	logger     *logger.Logger
}

// ExecutionServiceOption is a functional option for ExecutionService.
type ExecutionServiceOption func(*ExecutionService)

// WithExecutionEvents sets the event publisher.
func WithExecutionEvents(pub EventPublisher) ExecutionServiceOption {
	return func(s *ExecutionService) {
		s.events = pub
	}
}

// WithExecutionTracer sets the tracer used for execution spans.
func WithExecutionTracer(tracer trace.Tracer) ExecutionServiceOption {
	return func(s *ExecutionService) {
		s.tracer = tracer
	}
}

// WithExecutionUsageStore sets the billing counter store.
func WithExecutionUsageStore(store usage.Store) ExecutionServiceOption {
	return func(s *ExecutionService) {
		s.usageStore = store
	}
}

// NewExecutionService creates the execution orchestrator.
func NewExecutionService(
	workflows workflow.Repository,
	executions execution.Repository,
	envVars envvar.Repository,
	guard *AdmissionGuard,
	resolver *envvar.Resolver,
	serializer GraphSerializer,
	engine GraphEngine,
	log *logger.Logger,
	opts ...ExecutionServiceOption,
) *ExecutionService {
	s := &ExecutionService{
		workflows:  workflows,
		executions: executions,
		envVars:    envVars,
		guard:      guard,
		resolver:   resolver,
		serializer: serializer,
		engine:     engine,
		events:     NopEventPublisher(),
		tracer:     telemetry.NoopTracer(),
		logger:     log.With("component", "execution_service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Execute runs a workflow once. The admission ticket is held for the
// whole call and released on every path out, including panics in the
// engine client.
func (s *ExecutionService) Execute(ctx context.Context, req ExecuteRequest) (*execution.Record, error) {
	release, err := s.guard.Admit(ctx, req.WorkflowID, req.UserID)
	if err != nil {
		return nil, err
	}
	defer release()

	metrics.ExecutionsInProgress.Inc()
	defer metrics.ExecutionsInProgress.Dec()

	wf, err := s.workflows.GetByID(ctx, req.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("load workflow: %w", err)
	}
	if wf.UserID != req.UserID {
		return nil, shared.NewDomainError("NOT_FOUND", "workflow not found", shared.ErrNotFound)
	}

	record := execution.NewRecord(wf.ID, req.UserID, req.Trigger)

	ctx, span := telemetry.StartSpan(ctx, s.tracer, "workflow.execute",
		attribute.String(telemetry.WorkflowIDKey, wf.ID.String()),
		attribute.String(telemetry.ExecutionIDKey, record.ID.String()),
		attribute.String(telemetry.TriggerKey, req.Trigger),
	)
	defer span.End()

	s.events.PublishExecutionEvent(wf.ID, ExecutionEvent{
		Type:        EventExecutionStarted,
		ExecutionID: record.ID.String(),
		WorkflowID:  wf.ID.String(),
		Status:      string(execution.StatusRunning),
		Timestamp:   time.Now().UnixMilli(),
	})

	result, runErr := s.run(ctx, wf, record, req)
	if runErr != nil {
		telemetry.SetError(span, runErr)
		s.recordFailure(ctx, record, runErr, req.Trigger)
		s.events.PublishExecutionEvent(wf.ID, ExecutionEvent{
			Type:        EventExecutionFailed,
			ExecutionID: record.ID.String(),
			WorkflowID:  wf.ID.String(),
			Status:      string(execution.StatusFailed),
			Error:       runErr.Error(),
			Timestamp:   time.Now().UnixMilli(),
		})
		return record, runErr
	}

	s.recordSuccess(ctx, wf, record, result, req.Trigger)
	s.events.PublishExecutionEvent(wf.ID, ExecutionEvent{
		Type:        EventExecutionCompleted,
		ExecutionID: record.ID.String(),
		WorkflowID:  wf.ID.String(),
		Status:      string(record.Status),
		Timestamp:   time.Now().UnixMilli(),
	})
	return record, nil
}

// run performs the pre-flight pipeline and the engine handoff. The
// admission ticket is already held.
func (s *ExecutionService) run(ctx context.Context, wf *workflow.Workflow, record *execution.Record, req ExecuteRequest) (*EngineResult, error) {
	// Deployed snapshot wins over live state when present.
	snapshot := wf.ExecutionSnapshot().Clone()

	mergeSubBlockValues(snapshot, req.SubBlockValues)

	// A user without stored variables gets an empty set, not an error.
	set, err := s.envVars.GetByUser(ctx, wf.UserID)
	if err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}
	if set == nil {
		set = envvar.NewSet(wf.UserID)
	}

	plainVars, err := s.resolveSnapshot(snapshot, set)
	if err != nil {
		return nil, err
	}

	parseResponseFormats(snapshot)

	serialized, err := s.serializer.Serialize(snapshot)
	if err != nil {
		return nil, fmt.Errorf("serialize graph: %w", err)
	}

	engineReq := &EngineRequest{
		ExecutionID: record.ID.String(),
		WorkflowID:  wf.ID.String(),
		Snapshot:    serialized,
		Input:       req.Input,
		Variables:   wf.Variables,
		EnvVars:     plainVars,
		Trigger:     req.Trigger,
	}

	result, err := s.engine.Execute(ctx, engineReq)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	if !result.Success {
		if result.Error == "" {
			result.Error = "execution failed"
		}
		return nil, fmt.Errorf("engine: %s", result.Error)
	}
	return result, nil
}

// resolveSnapshot substitutes {{NAME}} references in every string
// sub-block value, in place, and returns the decrypted variables the
// engine needs at runtime. Resolution is fail-fast: the first
// undefined reference aborts the execution before the engine sees it.
func (s *ExecutionService) resolveSnapshot(snapshot *workflow.GraphSnapshot, set *envvar.Set) (map[string]string, error) {
	for _, block := range snapshot.Blocks {
		resolved, err := s.resolver.ResolveFields(block.SubBlocks, set)
		if err != nil {
			return nil, err
		}
		block.SubBlocks = resolved
	}

	// Hand the engine every stored variable in plaintext; blocks added
	// by loops at runtime may reference names the static graph does
	// not.
	plain := make(map[string]string, len(set.Values))
	for name := range set.Values {
		value, err := s.resolver.Decrypt(name, set)
		if err != nil {
			return nil, err
		}
		plain[name] = value
	}
	return plain, nil
}

func (s *ExecutionService) recordSuccess(ctx context.Context, wf *workflow.Workflow, record *execution.Record, result *EngineResult, trigger string) {
	spans := result.TraceSpans
	if len(spans) == 0 {
		spans = execution.BuildTraceSpans(result.Logs)
	}

	res := &execution.Result{
		Success:       true,
		Output:        result.Output,
		Logs:          result.Logs,
		Metadata:      result.Metadata,
		TraceSpans:    spans,
		TotalDuration: time.Since(record.StartedAt).Milliseconds(),
	}
	if err := record.Complete(res); err != nil {
		s.logger.Error("finalize execution record", "error", err, "execution_id", record.ID)
		return
	}

	// Counters move only on success.
	if err := s.workflows.IncrementRunCount(ctx, wf.ID); err != nil {
		s.logger.Error("increment run count", "error", err, "workflow_id", wf.ID)
	}
	if s.usageStore != nil {
		if _, err := s.usageStore.Increment(ctx, wf.UserID, 1); err != nil {
			s.logger.Error("increment usage counter", "error", err, "user_id", wf.UserID)
		}
	}

	if err := s.executions.Create(ctx, record); err != nil {
		s.logger.Error("persist execution record", "error", err, "execution_id", record.ID)
	}

	metrics.ExecutionsTotal.WithLabelValues(trigger, string(execution.StatusCompleted)).Inc()
	metrics.ExecutionDuration.WithLabelValues(trigger).Observe(time.Since(record.StartedAt).Seconds())

	s.logger.Info("workflow execution completed",
		"workflow_id", wf.ID,
		"execution_id", record.ID,
		"duration_ms", res.TotalDuration,
	)
}

func (s *ExecutionService) recordFailure(ctx context.Context, record *execution.Record, runErr error, trigger string) {
	if err := record.Fail(runErr.Error()); err != nil {
		s.logger.Error("finalize execution record", "error", err, "execution_id", record.ID)
		return
	}
	if err := s.executions.Create(ctx, record); err != nil {
		s.logger.Error("persist execution record", "error", err, "execution_id", record.ID)
	}

	metrics.ExecutionsTotal.WithLabelValues(trigger, string(execution.StatusFailed)).Inc()

	s.logger.Error("workflow execution failed",
		"workflow_id", record.WorkflowID,
		"execution_id", record.ID,
		"error", runErr,
	)
}

// GetExecution returns a persisted execution record.
func (s *ExecutionService) GetExecution(ctx context.Context, id, userID shared.ID) (*execution.Record, error) {
	record, err := s.executions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.UserID != userID {
		return nil, shared.NewDomainError("NOT_FOUND", "execution not found", shared.ErrNotFound)
	}
	return record, nil
}

// ListExecutions returns the recent executions of a workflow, newest
// first.
func (s *ExecutionService) ListExecutions(ctx context.Context, workflowID, userID shared.ID, page pagination.Pagination) (pagination.Result[*execution.Record], error) {
	wf, err := s.workflows.GetByID(ctx, workflowID)
	if err != nil {
		return pagination.Result[*execution.Record]{}, err
	}
	if wf.UserID != userID {
		return pagination.Result[*execution.Record]{}, shared.NewDomainError("NOT_FOUND", "workflow not found", shared.ErrNotFound)
	}
	return s.executions.ListByWorkflow(ctx, workflowID, page)
}

// mergeSubBlockValues overlays editor-held sub-block values onto the
// snapshot. Unknown block ids are ignored.
func mergeSubBlockValues(snapshot *workflow.GraphSnapshot, values map[string]map[string]any) {
	if len(values) == 0 {
		return
	}
	for blockID, subBlocks := range values {
		block, ok := snapshot.Blocks[blockID]
		if !ok {
			continue
		}
		if block.SubBlocks == nil {
			block.SubBlocks = make(map[string]any, len(subBlocks))
		}
		for key, value := range subBlocks {
			block.SubBlocks[key] = value
		}
	}
}

// parseResponseFormats upgrades responseFormat sub-block values from
// JSON text to structured objects. Parsing is best effort: values that
// are not valid JSON stay as strings and the engine treats them as
// absent.
func parseResponseFormats(snapshot *workflow.GraphSnapshot) {
	for _, block := range snapshot.Blocks {
		raw, ok := block.SubBlocks["responseFormat"]
		if !ok {
			continue
		}
		str, ok := raw.(string)
		if !ok || strings.TrimSpace(str) == "" {
			continue
		}
		var parsed map[string]any
		if err := json.Unmarshal([]byte(str), &parsed); err != nil {
			continue
		}
		block.SubBlocks["responseFormat"] = parsed
	}
}
