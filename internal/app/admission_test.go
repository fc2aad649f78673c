package app

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowdeckio/api/pkg/domain/shared"
	"github.com/flowdeckio/api/pkg/domain/usage"
	"github.com/flowdeckio/api/pkg/logger"
)

type stubUsageChecker struct {
	mu    sync.Mutex
	check usage.Check
	err   error
	calls int
}

func (s *stubUsageChecker) Check(_ context.Context, _ shared.ID) (usage.Check, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.check, s.err
}

func TestAdmissionGuard_AdmitAndRelease(t *testing.T) {
	guard := NewAdmissionGuard(&stubUsageChecker{}, logger.NewNop())
	workflowID, userID := shared.NewID(), shared.NewID()

	release, err := guard.Admit(context.Background(), workflowID, userID)
	require.NoError(t, err)
	assert.True(t, guard.IsRunning(workflowID))

	release()
	assert.False(t, guard.IsRunning(workflowID))

	// Released workflows can run again.
	release2, err := guard.Admit(context.Background(), workflowID, userID)
	require.NoError(t, err)
	release2()
}

func TestAdmissionGuard_RejectsConcurrentExecution(t *testing.T) {
	guard := NewAdmissionGuard(&stubUsageChecker{}, logger.NewNop())
	workflowID, userID := shared.NewID(), shared.NewID()

	release, err := guard.Admit(context.Background(), workflowID, userID)
	require.NoError(t, err)
	defer release()

	_, err = guard.Admit(context.Background(), workflowID, userID)
	require.Error(t, err)

	var alreadyErr *AlreadyRunningError
	require.True(t, errors.As(err, &alreadyErr))
	assert.Equal(t, workflowID, alreadyErr.WorkflowID)
	assert.True(t, shared.IsAlreadyRunning(err))

	// A different workflow is unaffected.
	otherRelease, err := guard.Admit(context.Background(), shared.NewID(), userID)
	require.NoError(t, err)
	otherRelease()
}

func TestAdmissionGuard_SingleFlightUnderRace(t *testing.T) {
	guard := NewAdmissionGuard(&stubUsageChecker{}, logger.NewNop())
	workflowID, userID := shared.NewID(), shared.NewID()

	const attempts = 50
	var wg sync.WaitGroup
	var admitted, rejected int64
	var mu sync.Mutex
	releases := make([]func(), 0, 1)

	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := guard.Admit(context.Background(), workflowID, userID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				rejected++
				return
			}
			admitted++
			releases = append(releases, release)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), admitted)
	assert.Equal(t, int64(attempts-1), rejected)
	for _, r := range releases {
		r()
	}
}

func TestAdmissionGuard_UsageLimitRejection(t *testing.T) {
	checker := &stubUsageChecker{check: usage.NewCheck(120, 100)}
	guard := NewAdmissionGuard(checker, logger.NewNop())
	workflowID, userID := shared.NewID(), shared.NewID()

	_, err := guard.Admit(context.Background(), workflowID, userID)
	require.Error(t, err)

	var limitErr *UsageLimitExceededError
	require.True(t, errors.As(err, &limitErr))
	assert.Equal(t, float64(120), limitErr.Check.CurrentUsage)
	assert.Equal(t, float64(100), limitErr.Check.Limit)
	assert.True(t, shared.IsUsageLimit(err))

	// Ticket was returned on rejection.
	assert.False(t, guard.IsRunning(workflowID))
}

func TestAdmissionGuard_TicketCheckedBeforeQuota(t *testing.T) {
	checker := &stubUsageChecker{}
	guard := NewAdmissionGuard(checker, logger.NewNop())
	workflowID, userID := shared.NewID(), shared.NewID()

	release, err := guard.Admit(context.Background(), workflowID, userID)
	require.NoError(t, err)
	defer release()

	callsBefore := checker.calls
	_, err = guard.Admit(context.Background(), workflowID, userID)
	require.Error(t, err)

	// The single-flight rejection fires before any quota lookup.
	assert.Equal(t, callsBefore, checker.calls)
}

func TestAdmissionGuard_QuotaErrorReturnsTicket(t *testing.T) {
	checker := &stubUsageChecker{err: errors.New("billing backend down")}
	guard := NewAdmissionGuard(checker, logger.NewNop())
	workflowID, userID := shared.NewID(), shared.NewID()

	_, err := guard.Admit(context.Background(), workflowID, userID)
	require.Error(t, err)
	assert.False(t, guard.IsRunning(workflowID))
}

func TestAdmissionGuard_ReleaseIsIdempotent(t *testing.T) {
	guard := NewAdmissionGuard(&stubUsageChecker{}, logger.NewNop())
	workflowID, userID := shared.NewID(), shared.NewID()

	release, err := guard.Admit(context.Background(), workflowID, userID)
	require.NoError(t, err)

	release()
	release()

	// A second admit must still work after double release.
	release2, err := guard.Admit(context.Background(), workflowID, userID)
	require.NoError(t, err)

	// Stale release handles must not free the new ticket.
	release()
	assert.True(t, guard.IsRunning(workflowID))
	release2()
	assert.False(t, guard.IsRunning(workflowID))
}
