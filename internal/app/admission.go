package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/flowdeckio/api/internal/metrics"
	"github.com/flowdeckio/api/pkg/domain/shared"
	"github.com/flowdeckio/api/pkg/domain/usage"
	"github.com/flowdeckio/api/pkg/logger"
)

// AlreadyRunningError rejects a second concurrent execution of the
// same workflow. Callers get an immediate rejection, never a wait.
type AlreadyRunningError struct {
	WorkflowID shared.ID
}

func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("workflow %s is already running", e.WorkflowID)
}

func (e *AlreadyRunningError) Unwrap() error {
	return shared.ErrAlreadyRunning
}

// UsageLimitExceededError rejects an execution because the user's
// billing-period usage is at or over their plan limit.
type UsageLimitExceededError struct {
	Check usage.Check
}

func (e *UsageLimitExceededError) Error() string {
	if e.Check.Message != "" {
		return e.Check.Message
	}
	return "usage limit exceeded"
}

func (e *UsageLimitExceededError) Unwrap() error {
	return shared.ErrUsageLimit
}

// AdmissionGuard enforces single-flight execution per workflow and the
// user's usage quota. At most one ticket exists per workflow id at any
// time; a held ticket means that workflow is executing somewhere in
// this process.
type AdmissionGuard struct {
	usage  UsageChecker
	logger *logger.Logger

	mu      sync.Mutex
	running map[shared.ID]struct{}
}

// NewAdmissionGuard creates a guard backed by the given quota checker.
func NewAdmissionGuard(checker UsageChecker, log *logger.Logger) *AdmissionGuard {
	return &AdmissionGuard{
		usage:   checker,
		logger:  log.With("component", "admission_guard"),
		running: make(map[shared.ID]struct{}),
	}
}

// Admit reserves the workflow's execution ticket and then verifies the
// user's quota. The ticket is taken before the quota lookup so two
// racing requests cannot both pass; if the quota check rejects or
// fails, the ticket is returned immediately.
//
// On success the returned release function gives the ticket back. It
// is safe to call more than once.
func (g *AdmissionGuard) Admit(ctx context.Context, workflowID, userID shared.ID) (func(), error) {
	g.mu.Lock()
	if _, held := g.running[workflowID]; held {
		g.mu.Unlock()
		metrics.AdmissionRejectionsTotal.WithLabelValues("already_running").Inc()
		g.logger.Warn("execution rejected, workflow already running", "workflow_id", workflowID)
		return nil, &AlreadyRunningError{WorkflowID: workflowID}
	}
	g.running[workflowID] = struct{}{}
	g.mu.Unlock()

	release := g.releaseFunc(workflowID)

	check, err := g.usage.Check(ctx, userID)
	if err != nil {
		release()
		return nil, fmt.Errorf("usage check: %w", err)
	}
	if check.Exceeded {
		release()
		metrics.AdmissionRejectionsTotal.WithLabelValues("usage_limit").Inc()
		g.logger.Warn("execution rejected, usage limit exceeded",
			"workflow_id", workflowID,
			"user_id", userID,
			"current_usage", check.CurrentUsage,
			"limit", check.Limit,
		)
		return nil, &UsageLimitExceededError{Check: check}
	}

	return release, nil
}

// IsRunning reports whether a ticket is currently held for the
// workflow.
func (g *AdmissionGuard) IsRunning(workflowID shared.ID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, held := g.running[workflowID]
	return held
}

func (g *AdmissionGuard) releaseFunc(workflowID shared.ID) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.running, workflowID)
			g.mu.Unlock()
		})
	}
}
