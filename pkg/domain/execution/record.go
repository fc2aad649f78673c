// Package execution defines the execution-record domain: one immutable
// record per run attempt, enriched with per-block trace spans.
package execution

import (
	"time"

	"github.com/flowdeckio/api/pkg/domain/shared"
)

// Status represents the status of an execution record.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsTerminal checks if the status is a terminal state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Trigger sources.
const (
	TriggerAPI      = "api"
	TriggerManual   = "manual"
	TriggerSchedule = "schedule"
)

// TraceSpan is a structured record of one block's execution, used for
// observability and debugging of a run.
type TraceSpan struct {
	ID         string         `json:"id"`
	BlockID    string         `json:"blockId"`
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Status     string         `json:"status"`
	StartedAt  time.Time      `json:"startedAt"`
	EndedAt    time.Time      `json:"endedAt"`
	DurationMS int64          `json:"duration"`
	Input      map[string]any `json:"input,omitempty"`
	Output     map[string]any `json:"output,omitempty"`
	Children   []*TraceSpan   `json:"children,omitempty"`
}

// BlockLog is one raw engine log entry for a block, the source material
// trace spans are built from.
type BlockLog struct {
	BlockID    string         `json:"blockId"`
	BlockName  string         `json:"blockName"`
	BlockType  string         `json:"blockType"`
	Success    bool           `json:"success"`
	Error      string         `json:"error,omitempty"`
	StartedAt  time.Time      `json:"startedAt"`
	EndedAt    time.Time      `json:"endedAt"`
	DurationMS int64          `json:"durationMs"`
	Input      map[string]any `json:"input,omitempty"`
	Output     map[string]any `json:"output,omitempty"`
}

// Result is the outcome of a run as surfaced to API callers. Field names
// follow the public execution API contract.
type Result struct {
	Success       bool           `json:"success"`
	Output        map[string]any `json:"output,omitempty"`
	Error         string         `json:"error,omitempty"`
	Logs          []*BlockLog    `json:"logs,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	TraceSpans    []*TraceSpan   `json:"traceSpans,omitempty"`
	TotalDuration int64          `json:"totalDuration"`
}

// Record identifies one execution attempt. Created at the start of the
// attempt, finalized exactly once, then persisted and never mutated.
type Record struct {
	ID         shared.ID
	WorkflowID shared.ID
	UserID     shared.ID

	// Trigger is where the run came from: api, manual, schedule.
	Trigger string

	Status Status
	Result *Result

	StartedAt   time.Time
	CompletedAt *time.Time

	finalized bool
}

// NewRecord creates a record for a fresh execution attempt with a newly
// generated execution id.
func NewRecord(workflowID, userID shared.ID, trigger string) *Record {
	return &Record{
		ID:         shared.NewID(),
		WorkflowID: workflowID,
		UserID:     userID,
		Trigger:    trigger,
		Status:     StatusRunning,
		StartedAt:  time.Now(),
	}
}

// Complete finalizes the record with a successful result.
func (r *Record) Complete(result *Result) error {
	return r.finalize(StatusCompleted, result)
}

// Fail finalizes the record with an error.
func (r *Record) Fail(errMessage string) error {
	return r.finalize(StatusFailed, &Result{Success: false, Error: errMessage})
}

func (r *Record) finalize(status Status, result *Result) error {
	if r.finalized {
		return shared.NewDomainError("INVALID_STATE", "execution record already finalized", shared.ErrInvalidState)
	}
	now := time.Now()
	r.Status = status
	r.Result = result
	r.CompletedAt = &now
	r.finalized = true
	if result != nil && result.TotalDuration == 0 {
		result.TotalDuration = now.Sub(r.StartedAt).Milliseconds()
	}
	return nil
}

// Duration returns the elapsed execution time.
func (r *Record) Duration() time.Duration {
	if r.CompletedAt != nil {
		return r.CompletedAt.Sub(r.StartedAt)
	}
	return time.Since(r.StartedAt)
}

// BuildTraceSpans converts raw engine block logs into trace spans.
func BuildTraceSpans(logs []*BlockLog) []*TraceSpan {
	spans := make([]*TraceSpan, 0, len(logs))
	for _, l := range logs {
		status := "success"
		if !l.Success {
			status = "error"
		}
		spans = append(spans, &TraceSpan{
			ID:         shared.NewID().String(),
			BlockID:    l.BlockID,
			Name:       l.BlockName,
			Type:       l.BlockType,
			Status:     status,
			StartedAt:  l.StartedAt,
			EndedAt:    l.EndedAt,
			DurationMS: l.DurationMS,
			Input:      l.Input,
			Output:     l.Output,
		})
	}
	return spans
}
