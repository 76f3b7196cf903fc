package engine_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visionline/internal/config"
	"visionline/internal/db"
	"visionline/internal/domain"
	"visionline/internal/engine"
	"visionline/internal/metrics"
	"visionline/internal/migrate"
	"visionline/internal/repo"
	"visionline/internal/visionfile"
)

const projectID = "proj-1"

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	eng := engine.New(conn, config.Default(projectID))
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	eng.Metrics = metrics.New()
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func projectDoc() visionfile.ProjectDoc {
	return visionfile.ProjectDoc{
		TargetAudience:          "platform teams",
		UniqueValueProposition:  "faster delivery",
		StrategicAlignmentScore: 0.8,
		InnovationPriorities:    []string{"ai", "automation"},
		Objectives: []visionfile.ObjectiveDoc{
			{ID: "obj-1", Title: "Grow adoption", CurrentValue: 25, TargetValue: 100, DeadlineInDays: 90},
			{ID: "obj-2", Title: "Reduce churn", CurrentValue: 5, TargetValue: 10, DeadlineInDays: 90},
		},
	}
}

func branchDoc(id string, objectives ...string) visionfile.BranchDoc {
	return visionfile.BranchDoc{
		BranchID:                id,
		BranchObjectives:        []string{"ship onboarding"},
		Deliverables:            []string{"wizard"},
		AlignmentWithProject:    0.9,
		ContributesToObjectives: objectives,
		InnovationPriorities:    []string{"ai"},
	}
}

func taskDoc(id, branchID string, business float64) visionfile.TaskDoc {
	return visionfile.TaskDoc{
		TaskID:                  id,
		BranchID:                branchID,
		ContributesToObjectives: []string{"ship onboarding"},
		BusinessValue:           business,
		UserImpact:              8.5,
		InnovationScore:         7,
		TechnicalDebtImpact:     2,
		StrategicImportance:     domain.PriorityHigh,
		SuccessCriteria:         []string{"flow completes"},
		StrategicRationale:      "adoption",
	}
}

func seedVision(t *testing.T, env testEnv) {
	t.Helper()
	_, err := env.Engine.CreateVision(env.Ctx, engine.CreateVisionInput{
		ProjectID: projectID,
		Name:      "Demo",
		ActorID:   "alice",
		Vision:    projectDoc(),
	})
	require.NoError(t, err)
}

func eventsOfType(t *testing.T, env testEnv, typ string) []repo.EventRecord {
	t.Helper()
	evts, _, err := env.Engine.ListEvents(env.Ctx, repo.EventFilter{ProjectID: projectID, Type: typ}, 100, 0)
	require.NoError(t, err)
	return evts
}

func TestCreateVision(t *testing.T) {
	env := newTestEnv(t)
	seedVision(t, env)

	view, err := env.Engine.GetVision(env.Ctx, projectID)
	require.NoError(t, err)
	assert.Equal(t, 1, view.Version)
	require.Len(t, view.Objectives, 2)
	assert.InDelta(t, 37.5, view.OverallProgress, 1e-9)
	assert.Len(t, eventsOfType(t, env, engine.EventVisionCreated), 1)

	_, err = env.Engine.CreateVision(env.Ctx, engine.CreateVisionInput{ProjectID: projectID, ActorID: "alice", Vision: projectDoc()})
	assert.Equal(t, domain.CodeConflict, domain.CodeOf(err))
}

func TestCreateVisionRejectsInvalidDocument(t *testing.T) {
	env := newTestEnv(t)
	doc := projectDoc()
	doc.TargetAudience = ""
	doc.Objectives = nil
	_, err := env.Engine.CreateVision(env.Ctx, engine.CreateVisionInput{ProjectID: projectID, ActorID: "alice", Vision: doc})
	require.Error(t, err)
	assert.Equal(t, domain.CodeAggregateValidation, domain.CodeOf(err))
	assert.GreaterOrEqual(t, len(domain.ViolationsOf(err)), 2)

	_, err = env.Engine.Repo.GetProject(env.Ctx, projectID)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestUnknownProject(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.GetVision(env.Ctx, "missing")
	assert.Equal(t, domain.CodeNotFound, domain.CodeOf(err))
	_, err = env.Engine.UpdateObjective(env.Ctx, "missing", "alice", "obj-1", 10)
	assert.Equal(t, domain.CodeNotFound, domain.CodeOf(err))
}

func TestUpdateObjective(t *testing.T) {
	env := newTestEnv(t)
	seedVision(t, env)

	view, err := env.Engine.UpdateObjective(env.Ctx, projectID, "alice", "obj-1", 50)
	require.NoError(t, err)
	assert.InDelta(t, 50.0, view.Objectives[0].Progress, 1e-9)
	evts := eventsOfType(t, env, domain.EventObjectiveUpdated)
	require.Len(t, evts, 1)
	assert.Equal(t, "alice", evts[0].ActorID)

	_, err = env.Engine.UpdateObjective(env.Ctx, projectID, "alice", "nope", 1)
	assert.Equal(t, domain.CodeNotFound, domain.CodeOf(err))
	assert.Len(t, eventsOfType(t, env, domain.EventObjectiveUpdated), 1)
}

func TestAddObjectiveRejectsDuplicate(t *testing.T) {
	env := newTestEnv(t)
	seedVision(t, env)

	o, err := env.Engine.AddObjective(env.Ctx, projectID, "alice", visionfile.ObjectiveDoc{Title: "Expand", TargetValue: 3, DeadlineInDays: 30})
	require.NoError(t, err)
	assert.NotEmpty(t, o.ID)

	_, err = env.Engine.AddObjective(env.Ctx, projectID, "alice", visionfile.ObjectiveDoc{ID: "obj-1", Title: "Again", TargetValue: 3, DeadlineInDays: 30})
	assert.Equal(t, domain.CodeDuplicateObjective, domain.CodeOf(err))

	view, err := env.Engine.GetVision(env.Ctx, projectID)
	require.NoError(t, err)
	assert.Len(t, view.Objectives, 3)
	assert.Equal(t, 2, view.Version)
}

func TestRejectedBranchRecordsFailureEvent(t *testing.T) {
	env := newTestEnv(t)
	seedVision(t, env)

	_, err := env.Engine.AddBranch(env.Ctx, projectID, "bob", branchDoc("feature/x", "obj-404"))
	require.Error(t, err)
	assert.Equal(t, domain.CodeAggregateValidation, domain.CodeOf(err))
	assert.Contains(t, domain.ViolationsOf(err), "contributing to non-existent objective: obj-404")

	branches, err := env.Engine.ListBranches(env.Ctx, projectID)
	require.NoError(t, err)
	assert.Empty(t, branches)

	failed := eventsOfType(t, env, domain.EventVisionValidationFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, domain.EntityBranchVision, failed[0].EntityKind)
	assert.Equal(t, "feature/x", failed[0].EntityID)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.Engine.Metrics.ValidationFailures.WithLabelValues(domain.EntityBranchVision)))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.Engine.Metrics.Commands.WithLabelValues("add_branch", "error")))
}

func TestBranchAndTaskCommands(t *testing.T) {
	env := newTestEnv(t)
	seedVision(t, env)

	_, err := env.Engine.AddBranch(env.Ctx, projectID, "bob", branchDoc("feature/x", "obj-1"))
	require.NoError(t, err)
	_, err = env.Engine.AddBranch(env.Ctx, projectID, "bob", branchDoc("feature/x", "obj-1"))
	assert.Equal(t, domain.CodeConflict, domain.CodeOf(err))

	b, err := env.Engine.UpdateBranchAlignment(env.Ctx, projectID, "bob", "feature/x", 0.7)
	require.NoError(t, err)
	assert.Equal(t, 0.7, b.AlignmentWithProject)
	_, err = env.Engine.UpdateBranchAlignment(env.Ctx, projectID, "bob", "feature/x", 1.2)
	assert.Equal(t, domain.CodeRange, domain.CodeOf(err))
	_, err = env.Engine.UpdateBranchAlignment(env.Ctx, projectID, "bob", "feature/x", 0.2)
	assert.Equal(t, domain.CodeAggregateValidation, domain.CodeOf(err))
	assert.Len(t, eventsOfType(t, env, domain.EventVisionValidationFailed), 1)
	b, err = env.Engine.GetBranch(env.Ctx, projectID, "feature/x")
	require.NoError(t, err)
	assert.Equal(t, 0.7, b.AlignmentWithProject)

	b, err = env.Engine.AddDeliverable(env.Ctx, projectID, "bob", "feature/x", "docs")
	require.NoError(t, err)
	assert.Equal(t, []string{"wizard", "docs"}, b.Deliverables)
	b, err = env.Engine.CompleteDeliverable(env.Ctx, projectID, "bob", "feature/x", "wizard")
	require.NoError(t, err)
	assert.Contains(t, b.Deliverables, "wizard")
	assert.Len(t, eventsOfType(t, env, domain.EventDeliverableCompleted), 1)
	assert.Len(t, eventsOfType(t, env, domain.EventBranchAlignmentUpdated), 1)

	_, err = env.Engine.AddTask(env.Ctx, projectID, "carol", taskDoc("task-1", "feature/missing", 9))
	assert.Equal(t, domain.CodeReference, domain.CodeOf(err))

	task, err := env.Engine.AddTask(env.Ctx, projectID, "carol", taskDoc("task-1", "feature/x", 9))
	require.NoError(t, err)
	assert.InDelta(t, 7.29, task.PriorityScore, 1e-9)
	_, err = env.Engine.AddTask(env.Ctx, projectID, "carol", taskDoc("task-2", "feature/x", 2))
	require.NoError(t, err)

	low := 1.0
	bad := 11.0
	_, err = env.Engine.UpdateTaskScores(env.Ctx, projectID, "carol", "task-1", domain.ScoreUpdate{BusinessValue: &low, UserImpact: &bad})
	assert.Equal(t, domain.CodeRange, domain.CodeOf(err))
	got, err := env.Engine.GetTask(env.Ctx, projectID, "task-1")
	require.NoError(t, err)
	assert.Equal(t, 9.0, got.BusinessValue)

	tasks, err := env.Engine.ListTasks(env.Ctx, projectID, "feature/x")
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "task-1", tasks[0].TaskID)

	got, err = env.Engine.AddTaskOutcome(env.Ctx, projectID, "carol", "task-1", domain.MeasurableOutcome{Description: "signups", MetricName: "signups", TargetValue: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, got.MeasurableOutcomes)
	got, err = env.Engine.ValidateTask(env.Ctx, projectID, "dave", "task-1")
	require.NoError(t, err)
	assert.Equal(t, "dave", got.ValidatedBy)

	_, err = env.Engine.GetTask(env.Ctx, projectID, "task-9")
	assert.Equal(t, domain.CodeNotFound, domain.CodeOf(err))
}

func TestHealthAndAudit(t *testing.T) {
	env := newTestEnv(t)
	seedVision(t, env)
	_, err := env.Engine.AddBranch(env.Ctx, projectID, "bob", branchDoc("feature/x", "obj-1"))
	require.NoError(t, err)
	_, err = env.Engine.AddTask(env.Ctx, projectID, "carol", taskDoc("task-1", "feature/x", 9))
	require.NoError(t, err)

	h, err := env.Engine.Health(env.Ctx, projectID)
	require.NoError(t, err)
	assert.True(t, h.HasProject)
	assert.InDelta(t, 37.5, h.ObjectiveProgress, 1e-9)
	assert.InDelta(t, 0.9, h.BranchAlignment, 1e-9)
	assert.Greater(t, testutil.ToFloat64(env.Engine.Metrics.VisionHealth.WithLabelValues(projectID, "overall")), 0.0)

	audit, err := env.Engine.ValidateVision(env.Ctx, projectID, "alice")
	require.NoError(t, err)
	assert.Equal(t, repo.AuditPassed, audit.Status)
	assert.Empty(t, audit.Issues)

	audits, err := env.Engine.ListAudits(env.Ctx, projectID, 10)
	require.NoError(t, err)
	require.Len(t, audits, 1)
	assert.Equal(t, audit.ID, audits[0].ID)
	got, err := env.Engine.GetAudit(env.Ctx, projectID, audit.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.CreatedBy)
	_, err = env.Engine.GetAudit(env.Ctx, "other", audit.ID)
	assert.Equal(t, domain.CodeNotFound, domain.CodeOf(err))
	assert.Len(t, eventsOfType(t, env, engine.EventVisionAudited), 1)
}

func TestApproveVision(t *testing.T) {
	env := newTestEnv(t)
	seedVision(t, env)

	_, err := env.Engine.ApproveVision(env.Ctx, projectID, " ")
	assert.Equal(t, domain.CodeValueConstruction, domain.CodeOf(err))
	_, err = env.Engine.ApproveVision(env.Ctx, projectID, "ceo")
	require.NoError(t, err)
	pv, err := env.Engine.Repo.GetProjectVision(env.Ctx, projectID)
	require.NoError(t, err)
	assert.Equal(t, "ceo", pv.ApprovedBy)
	assert.Len(t, eventsOfType(t, env, engine.EventVisionApproved), 1)
}

func TestListEventsPaginates(t *testing.T) {
	env := newTestEnv(t)
	seedVision(t, env)
	for _, v := range []float64{30, 40, 50} {
		_, err := env.Engine.UpdateObjective(env.Ctx, projectID, "alice", "obj-1", v)
		require.NoError(t, err)
	}

	page, next, err := env.Engine.ListEvents(env.Ctx, repo.EventFilter{ProjectID: projectID}, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.NotZero(t, next)
	assert.Equal(t, domain.EventObjectiveUpdated, page[0].Type)

	rest, next, err := env.Engine.ListEvents(env.Ctx, repo.EventFilter{ProjectID: projectID}, 2, next)
	require.NoError(t, err)
	require.Len(t, rest, 2)
	assert.Equal(t, engine.EventVisionCreated, rest[1].Type)
	assert.NotZero(t, next)

	last, next, err := env.Engine.ListEvents(env.Ctx, repo.EventFilter{ProjectID: projectID}, 2, next)
	require.NoError(t, err)
	assert.Empty(t, last)
	assert.Zero(t, next)
}

func TestImportStopsAtFirstRejection(t *testing.T) {
	env := newTestEnv(t)
	seedVision(t, env)
	res, err := env.Engine.Import(env.Ctx, projectID, "bob", visionfile.Document{
		Branches: []visionfile.BranchDoc{branchDoc("feature/a", "obj-1"), branchDoc("feature/b", "obj-9")},
		Tasks:    []visionfile.TaskDoc{taskDoc("task-1", "feature/a", 5)},
	})
	require.Error(t, err)
	assert.Equal(t, []string{"feature/a"}, res.Branches)
	assert.Empty(t, res.Tasks)
}

func TestConcurrentCommandsAreSerialized(t *testing.T) {
	env := newTestEnv(t)
	seedVision(t, env)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := env.Engine.UpdateObjective(env.Ctx, projectID, "alice", "obj-2", float64(n))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	assert.Len(t, eventsOfType(t, env, domain.EventObjectiveUpdated), 8)
}

func TestScoreAlignment(t *testing.T) {
	score, err := engine.ScoreAlignment(visionfile.AlignmentDoc{Objective: 0.9, Strategic: 0.8, Value: 0.6})
	require.NoError(t, err)
	assert.InDelta(t, 0.795, score.Overall, 1e-9)
	assert.Equal(t, domain.AlignmentGood, score.Level)
	assert.True(t, score.Aligned)
	assert.Equal(t, []string{"Value Alignment"}, score.ImprovementAreas)

	_, err = engine.ScoreAlignment(visionfile.AlignmentDoc{Objective: 2})
	assert.Equal(t, domain.CodeValueConstruction, domain.CodeOf(err))
}
