package visionlinesdk

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visionline/internal/config"
	"visionline/internal/db"
	"visionline/internal/engine"
	"visionline/internal/migrate"
	"visionline/internal/server"
)

const visionYAML = `
target_audience: platform teams
unique_value_proposition: faster delivery
strategic_alignment_score: 0.8
objectives:
  - id: obj-1
    title: Grow adoption
    current_value: 25
    target_value: 100
    deadline_in_days: 90
`

const branchYAML = `
branch_id: feature/login
branch_objectives: [ship login]
alignment_with_project: 0.9
contributes_to_objectives: [obj-1]
`

const taskYAML = `
task_id: task-1
branch_id: feature/login
contributes_to_objectives: [ship login]
business_value: 9
user_impact: 8.5
innovation_score: 7
technical_debt_impact: 2
strategic_importance: high
success_criteria: [login works]
strategic_rationale: adoption
`

func newTestClient(t *testing.T) *Client {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, migrate.Migrate(conn))
	e := engine.New(conn, config.Default("demo"))
	e.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	handler, err := server.New(server.Config{Engine: e})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		srv.Close()
		conn.Close()
	})
	c := New(srv.URL+"/", "demo")
	c.ActorID = "alice"
	return c
}

func TestClientHierarchy(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	vision, err := c.CreateVision(ctx, "Demo", []byte(visionYAML))
	require.NoError(t, err)
	assert.Equal(t, "demo", vision.ProjectID)
	require.Len(t, vision.Objectives, 1)

	branch, err := c.AddBranch(ctx, []byte(branchYAML))
	require.NoError(t, err)
	assert.Equal(t, "feature/login", branch.BranchID)

	got, err := c.GetBranch(ctx, "feature/login")
	require.NoError(t, err)
	assert.Equal(t, 0.9, got.AlignmentWithProject)

	_, err = c.AddTask(ctx, []byte(taskYAML))
	require.NoError(t, err)
	five := 5.0
	task, err := c.UpdateTaskScores(ctx, "task-1", ScoreUpdate{InnovationScore: &five})
	require.NoError(t, err)
	assert.Equal(t, 5.0, task.InnovationScore)

	tasks, err := c.ListTasks(ctx, "feature/login")
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	vision, err = c.UpdateObjective(ctx, "obj-1", 50)
	require.NoError(t, err)
	assert.InDelta(t, 50.0, vision.OverallProgress, 1e-9)

	health, err := c.Health(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.9, health["branch_alignment"], 1e-9)

	audit, err := c.RunAudit(ctx)
	require.NoError(t, err)
	assert.Equal(t, "passed", audit.Status)
	assert.Equal(t, "alice", audit.CreatedBy)
	stored, err := c.GetAudit(ctx, audit.ID)
	require.NoError(t, err)
	assert.Equal(t, audit.ID, stored.ID)
	audits, err := c.ListAudits(ctx)
	require.NoError(t, err)
	assert.Len(t, audits, 1)

	page, err := c.EventsPage(ctx, 2, "")
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.NotEmpty(t, page.NextCursor)
	next, err := c.EventsPage(ctx, 50, page.NextCursor)
	require.NoError(t, err)
	assert.NotEmpty(t, next.Items)
	assert.Greater(t, page.Items[1].ID, next.Items[0].ID)
}

func TestClientAPIError(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)
	_, err := c.CreateVision(ctx, "", []byte(visionYAML))
	require.NoError(t, err)

	_, err = c.AddBranch(ctx, []byte(`
branch_id: weak
alignment_with_project: 0.2
contributes_to_objectives: [obj-9]
`))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, "aggregate_validation", apiErr.Code)
	assert.Len(t, apiErr.Violations, 2)

	_, err = c.GetTask(ctx, "missing")
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestScoreAlignment(t *testing.T) {
	c := newTestClient(t)
	score, err := c.ScoreAlignment(context.Background(), Alignment{Objective: 0.9, Strategic: 0.8, Value: 0.6})
	require.NoError(t, err)
	assert.InDelta(t, 0.795, score.Overall, 1e-9)
	assert.Equal(t, "good", score.Level)
	assert.Equal(t, []string{"Value Alignment"}, score.ImprovementAreas)
}
