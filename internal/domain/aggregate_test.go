package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visionline/internal/domain"
)

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestSetProjectVisionRejectsInvalid(t *testing.T) {
	agg := domain.NewVisionAggregate("proj-1", fixedClock(t0))

	err := agg.SetProjectVision(domain.NewProjectVision(domain.ProjectVision{ProjectID: "proj-1"}, t0))
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.CodeAggregateValidation))
	assert.Len(t, domain.ViolationsOf(err), 3)
	assert.Nil(t, agg.Project())

	err = agg.SetProjectVision(domain.NewProjectVision(domain.ProjectVision{ProjectID: "other"}, t0))
	assert.True(t, domain.IsCode(err, domain.CodeReference))
}

func TestSetProjectVisionHarvestsEvents(t *testing.T) {
	agg := domain.NewVisionAggregate("proj-1", fixedClock(t0))
	p := newProject(t, newObjective(t, "o1", 0, 100))
	require.NoError(t, p.AddObjective(newObjective(t, "o2", 0, 100), t0))

	require.NoError(t, agg.SetProjectVision(p))
	assert.Empty(t, p.PendingEvents())
	assert.Equal(t, []string{domain.EventObjectiveAdded}, eventTypes(agg.DrainEvents()))
	assert.Empty(t, agg.DrainEvents(), "drain is single-shot")
}

func TestAddBranchVisionRequiresProject(t *testing.T) {
	agg := domain.NewVisionAggregate("proj-1", fixedClock(t0))
	err := agg.AddBranchVision("feature/x", newBranch("o1"))
	assert.True(t, domain.IsCode(err, domain.CodeReference))
	assert.Zero(t, agg.PendingEventCount())
}

func TestAddBranchVisionFailureRecordsEvent(t *testing.T) {
	agg := domain.NewVisionAggregate("proj-1", fixedClock(t0))
	require.NoError(t, agg.SetProjectVision(newProject(t, newObjective(t, "o1", 0, 100))))

	bad := newBranch("o9")
	bad.AlignmentWithProject = 0.2
	err := agg.AddBranchVision("feature/x", bad)
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.CodeAggregateValidation))
	_, installed := agg.Branch("feature/x")
	assert.False(t, installed)

	evts := agg.DrainEvents()
	require.Len(t, evts, 1)
	failed, ok := evts[0].(domain.VisionValidationFailed)
	require.True(t, ok)
	assert.Equal(t, domain.EntityBranchVision, failed.EntityType)
	assert.Equal(t, "feature/x", failed.FailedEntityID)
	assert.Equal(t, domain.ViolationsOf(err), failed.ValidationErrors)
}

func TestAddBranchVisionIdentity(t *testing.T) {
	agg := domain.NewVisionAggregate("proj-1", fixedClock(t0))
	require.NoError(t, agg.SetProjectVision(newProject(t, newObjective(t, "o1", 0, 100))))

	err := agg.AddBranchVision("feature/y", newBranch("o1"))
	assert.True(t, domain.IsCode(err, domain.CodeReference))

	foreign := newBranch("o1")
	foreign.ProjectID = "other"
	err = agg.AddBranchVision("feature/x", foreign)
	assert.True(t, domain.IsCode(err, domain.CodeReference))

	require.NoError(t, agg.AddBranchVision("feature/x", newBranch("o1")))
	err = agg.AddBranchVision("feature/x", newBranch("o1"))
	assert.True(t, domain.IsCode(err, domain.CodeConflict))
}

func TestAddTaskAlignment(t *testing.T) {
	agg := domain.NewVisionAggregate("proj-1", fixedClock(t0))
	require.NoError(t, agg.SetProjectVision(newProject(t, newObjective(t, "o1", 0, 100))))

	err := agg.AddTaskAlignment("task-1", newTask("feature/x"))
	assert.True(t, domain.IsCode(err, domain.CodeReference))

	require.NoError(t, agg.AddBranchVision("feature/x", newBranch("o1")))

	stray := newTask("feature/x")
	stray.ContributesToObjectives = []string{"ship onboarding", "rewrite billing"}
	stray.StrategicRationale = ""
	err = agg.AddTaskAlignment("task-1", stray)
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.CodeAggregateValidation))
	assert.Equal(t, []string{
		"objective not found in branch feature/x: rewrite billing",
		"strategic rationale must be provided",
	}, domain.ViolationsOf(err))
	_, installed := agg.Task("task-1")
	assert.False(t, installed)

	require.NoError(t, agg.AddTaskAlignment("task-1", newTask("feature/x")))
	assert.Len(t, agg.Tasks(), 1)
}

func TestVisionHealthWithoutProject(t *testing.T) {
	agg := domain.NewVisionAggregate("proj-1", nil)
	h := agg.CalculateVisionHealth()
	assert.False(t, h.HasProject)
	assert.Equal(t, map[string]float64{"overall": 0}, h.Map())
}

func TestVisionHealthProjectOnly(t *testing.T) {
	agg := domain.NewVisionAggregate("proj-1", fixedClock(t0))
	require.NoError(t, agg.SetProjectVision(newProject(t, newObjective(t, "o1", 30, 100))))

	h := agg.CalculateVisionHealth()
	assert.Zero(t, h.BranchAlignment)
	assert.Zero(t, h.TaskCoverage)
	assert.InDelta(t, h.ObjectiveProgress/100*0.4, h.Overall, 1e-9)
	assert.Len(t, h.Map(), 4)
}

func TestEndToEndVisionHierarchy(t *testing.T) {
	agg := domain.NewVisionAggregate("proj-1", fixedClock(t0))

	require.NoError(t, agg.SetProjectVision(newProject(t, newObjective(t, "o1", 1000, 500))))
	require.NoError(t, agg.AddBranchVision("feature/x", newBranch("o1")))
	require.NoError(t, agg.AddTaskAlignment("task-1", newTask("feature/x")))

	h := agg.CalculateVisionHealth()
	assert.Greater(t, h.Overall, 0.0)
	assert.Less(t, h.Overall, 1.0)
	// 100/100*.4 + .9*.3 + .729*.3
	assert.InDelta(t, 0.8887, h.Overall, 1e-9)
	assert.Empty(t, agg.Project().AtRiskObjectives(t0))
	assert.Empty(t, agg.AtRiskObjectives())
	assert.True(t, agg.Audit().Valid())
}

func TestAggregateMutatorsHarvestEvents(t *testing.T) {
	agg := domain.NewVisionAggregate("proj-1", fixedClock(t0.Add(days(1))))
	require.NoError(t, agg.SetProjectVision(newProject(t, newObjective(t, "o1", 0, 100))))
	require.NoError(t, agg.AddBranchVision("feature/x", newBranch("o1")))
	require.NoError(t, agg.AddTaskAlignment("task-1", newTask("feature/x")))

	require.NoError(t, agg.AddObjective(newObjective(t, "o2", 0, 10)))
	require.NoError(t, agg.UpdateObjective("o1", 40))
	require.NoError(t, agg.UpdateBranchAlignment("feature/x", 0.6))
	require.NoError(t, agg.AddBranchDeliverable("feature/x", "wizard"))
	require.NoError(t, agg.CompleteBranchDeliverable("feature/x", "wizard"))
	bv := 5.0
	require.NoError(t, agg.UpdateTaskScores("task-1", domain.ScoreUpdate{BusinessValue: &bv}))
	require.NoError(t, agg.AddTaskOutcome("task-1", domain.MeasurableOutcome{MetricName: "activation"}))
	require.NoError(t, agg.MarkTaskValidated("task-1", "lead"))
	require.NoError(t, agg.ApproveVision("cto"))

	assert.Equal(t, []string{
		domain.EventObjectiveAdded,
		domain.EventObjectiveUpdated,
		domain.EventBranchAlignmentUpdated,
		domain.EventDeliverableCompleted,
	}, eventTypes(agg.DrainEvents()))

	assert.True(t, domain.IsCode(agg.UpdateObjective("o9", 1), domain.CodeNotFound))
	assert.True(t, domain.IsCode(agg.UpdateBranchAlignment("nope", 0.5), domain.CodeNotFound))
	assert.True(t, domain.IsCode(agg.UpdateTaskScores("nope", domain.ScoreUpdate{}), domain.CodeNotFound))
	assert.True(t, domain.IsCode(agg.UpdateBranchAlignment("feature/x", 2), domain.CodeRange))
	assert.Zero(t, agg.PendingEventCount())

	empty := domain.NewVisionAggregate("proj-2", nil)
	assert.True(t, domain.IsCode(empty.AddObjective(newObjective(t, "o1", 0, 1)), domain.CodeNotFound))
}

func TestRestoreAndAudit(t *testing.T) {
	p := newProject(t, newObjective(t, "o1", 0, 100))
	require.NoError(t, p.UpdateObjective("o1", 10, t0))
	branch := newBranch("o1")
	branch.AlignmentWithProject = 0.3
	task := newTask("feature/x")
	task.ContributesToObjectives = []string{"unknown"}

	agg := domain.RestoreAggregate("proj-1", p, []*domain.BranchVision{branch}, []*domain.TaskVisionAlignment{task}, fixedClock(t0))
	assert.Zero(t, agg.PendingEventCount())
	assert.Empty(t, p.PendingEvents())

	report := agg.Audit()
	assert.False(t, report.Valid())
	require.Len(t, report.Entries, 2)
	assert.Equal(t, domain.EntityBranchVision, report.Entries[0].EntityKind)
	assert.Equal(t, domain.EntityTaskAlignment, report.Entries[1].EntityKind)
	assert.Contains(t, report.Violations(), "task_alignment/task-1: objective not found in branch feature/x: unknown")

	missing := domain.RestoreAggregate("proj-2", nil, nil, nil, nil).Audit()
	assert.Equal(t, []string{"project_vision/proj-2: project vision is not set"}, missing.Violations())
}

func TestUpdateBranchAlignmentKeepsProjectMinimum(t *testing.T) {
	agg := domain.NewVisionAggregate("proj-1", fixedClock(t0))
	require.NoError(t, agg.SetProjectVision(newProject(t, newObjective(t, "o1", 0, 100))))
	require.NoError(t, agg.AddBranchVision("feature/x", newBranch("o1")))
	agg.DrainEvents()

	err := agg.UpdateBranchAlignment("feature/x", 0.1)
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.CodeAggregateValidation))
	assert.Equal(t, []string{"alignment with project too low: 0.1 (minimum 0.5)"}, domain.ViolationsOf(err))
	b, _ := agg.Branch("feature/x")
	assert.Equal(t, 0.9, b.AlignmentWithProject)
	assert.True(t, agg.Audit().Valid())

	evts := agg.DrainEvents()
	require.Len(t, evts, 1)
	failed, ok := evts[0].(domain.VisionValidationFailed)
	require.True(t, ok)
	assert.Equal(t, "feature/x", failed.FailedEntityID)
}

func TestRejectedSubmissionLeavesInputUntouched(t *testing.T) {
	agg := domain.NewVisionAggregate("proj-1", fixedClock(t0))
	require.NoError(t, agg.SetProjectVision(newProject(t, newObjective(t, "o1", 0, 100))))

	bad := newBranch("o9")
	bad.BranchID = ""
	bad.ProjectID = ""
	require.Error(t, agg.AddBranchVision("feature/x", bad))
	assert.Empty(t, bad.BranchID)
	assert.Empty(t, bad.ProjectID)

	good := newBranch("o1")
	good.BranchID = ""
	good.ProjectID = ""
	require.NoError(t, agg.AddBranchVision("feature/x", good))
	assert.Equal(t, "feature/x", good.BranchID)
	assert.Equal(t, "proj-1", good.ProjectID)

	stray := newTask("feature/x")
	stray.TaskID = ""
	stray.SuccessCriteria = nil
	require.Error(t, agg.AddTaskAlignment("task-1", stray))
	assert.Empty(t, stray.TaskID)

	task := newTask("feature/x")
	task.TaskID = ""
	require.NoError(t, agg.AddTaskAlignment("task-1", task))
	assert.Equal(t, "task-1", task.TaskID)
}
