package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowdeckio/api/pkg/domain/shared"
	"github.com/flowdeckio/api/pkg/domain/workflow"
	"github.com/flowdeckio/api/pkg/logger"
)

func newTestWorkflowService(repo workflow.Repository) *WorkflowService {
	return NewWorkflowService(repo, logger.NewNop())
}

func graphWithStartBlock() *workflow.GraphSnapshot {
	snapshot := workflow.NewGraphSnapshot()
	snapshot.Blocks["start"] = &workflow.Block{
		ID:      "start",
		Type:    "starter",
		Name:    "Start",
		Enabled: true,
	}
	return snapshot
}

func TestWorkflowService_Create(t *testing.T) {
	repo := newMemWorkflowRepo()
	svc := newTestWorkflowService(repo)
	userID := shared.NewID()

	wf, err := svc.Create(context.Background(), userID, "My Flow", "first flow")
	require.NoError(t, err)
	assert.Equal(t, "My Flow", wf.Name)
	assert.Equal(t, userID, wf.UserID)
	assert.NotNil(t, wf.Live)
	assert.False(t, wf.IsDeployed)

	stored, err := repo.GetByID(context.Background(), wf.ID)
	require.NoError(t, err)
	assert.Equal(t, wf.ID, stored.ID)
}

func TestWorkflowService_Create_EmptyName(t *testing.T) {
	svc := newTestWorkflowService(newMemWorkflowRepo())

	_, err := svc.Create(context.Background(), shared.NewID(), "", "")
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
}

func TestWorkflowService_Get_OtherUsersWorkflowIsHidden(t *testing.T) {
	repo := newMemWorkflowRepo()
	svc := newTestWorkflowService(repo)
	owner := shared.NewID()

	wf, err := svc.Create(context.Background(), owner, "Private", "")
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), wf.ID, shared.NewID())
	require.Error(t, err)
	assert.True(t, shared.IsNotFound(err), "ownership mismatch must read as not found, not forbidden")
}

func TestWorkflowService_UpdateLive_RejectsDanglingEdge(t *testing.T) {
	repo := newMemWorkflowRepo()
	svc := newTestWorkflowService(repo)
	userID := shared.NewID()

	wf, err := svc.Create(context.Background(), userID, "Flow", "")
	require.NoError(t, err)

	snapshot := graphWithStartBlock()
	snapshot.Edges = append(snapshot.Edges, &workflow.Edge{
		ID:     "e1",
		Source: "start",
		Target: "missing",
	})

	_, err = svc.UpdateLive(context.Background(), wf.ID, userID, snapshot)
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))

	// The stored live graph must be untouched by the rejected update.
	stored, err := repo.GetByID(context.Background(), wf.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Live.Edges)
}

func TestWorkflowService_DeployAndStatus(t *testing.T) {
	repo := newMemWorkflowRepo()
	svc := newTestWorkflowService(repo)
	userID := shared.NewID()

	wf, err := svc.Create(context.Background(), userID, "Flow", "")
	require.NoError(t, err)

	// An empty workflow cannot be deployed.
	_, err = svc.Deploy(context.Background(), wf.ID, userID)
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))

	_, err = svc.UpdateLive(context.Background(), wf.ID, userID, graphWithStartBlock())
	require.NoError(t, err)

	deployed, err := svc.Deploy(context.Background(), wf.ID, userID)
	require.NoError(t, err)
	assert.True(t, deployed.IsDeployed)
	require.NotNil(t, deployed.Deployed)
	require.NotNil(t, deployed.DeployedAt)

	status, err := svc.Status(context.Background(), wf.ID, userID)
	require.NoError(t, err)
	assert.True(t, status.IsDeployed)
	assert.False(t, status.NeedsRedeployment)
}

func TestWorkflowService_DeployedSnapshotIsFrozen(t *testing.T) {
	repo := newMemWorkflowRepo()
	svc := newTestWorkflowService(repo)
	userID := shared.NewID()

	wf, err := svc.Create(context.Background(), userID, "Flow", "")
	require.NoError(t, err)
	_, err = svc.UpdateLive(context.Background(), wf.ID, userID, graphWithStartBlock())
	require.NoError(t, err)
	_, err = svc.Deploy(context.Background(), wf.ID, userID)
	require.NoError(t, err)

	// Edit the live graph after deployment.
	edited := graphWithStartBlock()
	edited.Blocks["agent"] = &workflow.Block{ID: "agent", Type: "agent", Name: "Agent", Enabled: true}
	updated, err := svc.UpdateLive(context.Background(), wf.ID, userID, edited)
	require.NoError(t, err)

	assert.Len(t, updated.Live.Blocks, 2)
	assert.Len(t, updated.Deployed.Blocks, 1, "deployed snapshot must not see later edits")
	assert.Len(t, updated.ExecutionSnapshot().Blocks, 1, "execution runs the frozen snapshot while deployed")

	status, err := svc.Status(context.Background(), wf.ID, userID)
	require.NoError(t, err)
	assert.True(t, status.NeedsRedeployment)
}

func TestWorkflowService_Undeploy(t *testing.T) {
	repo := newMemWorkflowRepo()
	svc := newTestWorkflowService(repo)
	userID := shared.NewID()

	wf, err := svc.Create(context.Background(), userID, "Flow", "")
	require.NoError(t, err)
	_, err = svc.UpdateLive(context.Background(), wf.ID, userID, graphWithStartBlock())
	require.NoError(t, err)
	_, err = svc.Deploy(context.Background(), wf.ID, userID)
	require.NoError(t, err)

	undeployed, err := svc.Undeploy(context.Background(), wf.ID, userID)
	require.NoError(t, err)
	assert.False(t, undeployed.IsDeployed)
	assert.Nil(t, undeployed.Deployed)
	assert.Nil(t, undeployed.DeployedAt)
	assert.Len(t, undeployed.ExecutionSnapshot().Blocks, 1, "execution falls back to the live graph")
}

func TestWorkflowService_SetSchedule(t *testing.T) {
	repo := newMemWorkflowRepo()
	svc := newTestWorkflowService(repo)
	userID := shared.NewID()

	wf, err := svc.Create(context.Background(), userID, "Flow", "")
	require.NoError(t, err)

	before := wf.UpdatedAt
	time.Sleep(time.Millisecond)

	scheduled, err := svc.SetSchedule(context.Background(), wf.ID, userID, "*/5 * * * *")
	require.NoError(t, err)
	assert.Equal(t, "*/5 * * * *", scheduled.Schedule)
	assert.True(t, scheduled.HasSchedule())
	assert.True(t, scheduled.UpdatedAt.After(before))

	cleared, err := svc.SetSchedule(context.Background(), wf.ID, userID, "")
	require.NoError(t, err)
	assert.False(t, cleared.HasSchedule())
}

func TestWorkflowService_Delete(t *testing.T) {
	repo := newMemWorkflowRepo()
	svc := newTestWorkflowService(repo)
	userID := shared.NewID()

	wf, err := svc.Create(context.Background(), userID, "Flow", "")
	require.NoError(t, err)

	// Non-owners cannot delete.
	err = svc.Delete(context.Background(), wf.ID, shared.NewID())
	require.Error(t, err)

	require.NoError(t, svc.Delete(context.Background(), wf.ID, userID))
	_, err = svc.Get(context.Background(), wf.ID, userID)
	assert.True(t, shared.IsNotFound(err))
}
