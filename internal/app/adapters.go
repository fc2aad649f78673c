// Package app contains the application services that sit between the
// HTTP layer and the domain. Outbound dependencies are expressed as
// small interfaces here so services can be tested against fakes and so
// infra packages stay swappable.
package app

import (
	"context"
	"encoding/json"

	"github.com/flowdeckio/api/pkg/domain/execution"
	"github.com/flowdeckio/api/pkg/domain/knowledge"
	"github.com/flowdeckio/api/pkg/domain/shared"
	"github.com/flowdeckio/api/pkg/domain/usage"
	"github.com/flowdeckio/api/pkg/domain/workflow"
)

// EngineRequest is the serialized payload handed to the graph engine.
type EngineRequest struct {
	ExecutionID    string            `json:"executionId"`
	WorkflowID     string            `json:"workflowId"`
	Snapshot       json.RawMessage   `json:"snapshot"`
	Input          map[string]any    `json:"input,omitempty"`
	Variables      map[string]any    `json:"variables,omitempty"`
	EnvVars        map[string]string `json:"envVars"`
	ResponseFormat json.RawMessage   `json:"responseFormat,omitempty"`
	Trigger        string            `json:"trigger"`
}

// EngineResult is what the engine reports back after a run.
type EngineResult struct {
	Success    bool                    `json:"success"`
	Output     map[string]any          `json:"output,omitempty"`
	Error      string                  `json:"error,omitempty"`
	Logs       []*execution.BlockLog   `json:"logs,omitempty"`
	Metadata   map[string]any          `json:"metadata,omitempty"`
	TraceSpans []*execution.TraceSpan  `json:"traceSpans,omitempty"`
}

// GraphEngine runs a serialized workflow graph to completion.
type GraphEngine interface {
	Execute(ctx context.Context, req *EngineRequest) (*EngineResult, error)
}

// GraphSerializer converts a graph snapshot into the engine's wire
// format.
type GraphSerializer interface {
	Serialize(snapshot *workflow.GraphSnapshot) (json.RawMessage, error)
}

// UsageChecker reports whether a user may start another execution.
type UsageChecker interface {
	Check(ctx context.Context, userID shared.ID) (usage.Check, error)
}

// DocumentProcessor turns a fetched document into indexed chunks.
type DocumentProcessor interface {
	Process(ctx context.Context, doc *knowledge.Document, content []byte) (chunks int, tokens int, err error)
}

// EventPublisher pushes execution lifecycle events to connected
// clients.
type EventPublisher interface {
	PublishExecutionEvent(workflowID shared.ID, event ExecutionEvent)
}

// ExecutionEvent is a lifecycle notification for a workflow execution.
type ExecutionEvent struct {
	Type        string `json:"type"`
	ExecutionID string `json:"executionId"`
	WorkflowID  string `json:"workflowId"`
	Status      string `json:"status,omitempty"`
	Error       string `json:"error,omitempty"`
	Timestamp   int64  `json:"timestamp"`
}

// Execution event types.
const (
	EventExecutionStarted   = "execution.started"
	EventExecutionCompleted = "execution.completed"
	EventExecutionFailed    = "execution.failed"
)

// nopEventPublisher drops all events.
type nopEventPublisher struct{}

func (nopEventPublisher) PublishExecutionEvent(shared.ID, ExecutionEvent) {}

// NopEventPublisher returns a publisher that discards events.
func NopEventPublisher() EventPublisher {
	return nopEventPublisher{}
}
