package domain_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visionline/internal/domain"
)

func TestProjectAddObjective(t *testing.T) {
	p := newProject(t, newObjective(t, "o1", 0, 100))
	require.Equal(t, 1, p.Version)

	require.NoError(t, p.AddObjective(newObjective(t, "o2", 0, 10), t0.Add(days(1))))
	assert.Equal(t, 2, p.Version)
	assert.Equal(t, t0.Add(days(1)), p.UpdatedAt)

	err := p.AddObjective(newObjective(t, "o2", 3, 10), t0.Add(days(2)))
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.CodeDuplicateObjective))
	assert.Len(t, p.Objectives, 2)
	assert.Equal(t, 2, p.Version)

	evts := p.PullEvents()
	require.Len(t, evts, 1)
	added, ok := evts[0].(domain.ObjectiveAdded)
	require.True(t, ok)
	assert.Equal(t, "o2", added.ObjectiveID)
	assert.NotEmpty(t, added.EventID())
	assert.Empty(t, p.PendingEvents())
}

func TestProjectUpdateObjectiveReplacesValue(t *testing.T) {
	p := newProject(t, newObjective(t, "o1", 10, 100))
	before := p.Objectives[0]

	require.NoError(t, p.UpdateObjective("o1", 60, t0.Add(days(3))))
	assert.Equal(t, 60.0, p.Objectives[0].CurrentValue)
	assert.Equal(t, 10.0, before.CurrentValue)
	assert.Equal(t, 1, p.Version, "value updates do not bump the version")

	evts := p.PullEvents()
	require.Len(t, evts, 1)
	updated := evts[0].(domain.ObjectiveUpdated)
	assert.Equal(t, 10.0, updated.OldValue)
	assert.Equal(t, 60.0, updated.NewValue)

	err := p.UpdateObjective("missing", 1, t0)
	assert.True(t, domain.IsCode(err, domain.CodeNotFound))

	err = p.UpdateObjective("o1", -5, t0)
	assert.True(t, domain.IsCode(err, domain.CodeValueConstruction))
	assert.Equal(t, 60.0, p.Objectives[0].CurrentValue)
	assert.Empty(t, p.PendingEvents())
}

func TestProjectValidateListsEveryViolation(t *testing.T) {
	p := domain.NewProjectVision(domain.ProjectVision{ProjectID: "proj-1", StrategicAlignmentScore: 1.5}, t0)
	assert.Equal(t, []string{
		"project vision must have at least one objective",
		"target audience must be defined",
		"unique value proposition must be defined",
		"strategic alignment score must be between 0 and 1",
	}, p.Validate())

	dup := newProject(t, newObjective(t, "o1", 0, 1), newObjective(t, "o1", 0, 1))
	assert.Equal(t, []string{"duplicate objective id: o1"}, dup.Validate())
}

func TestProjectProgressAndRisk(t *testing.T) {
	p := newProject(t, newObjective(t, "o1", 50, 100), newObjective(t, "o2", 0, 100))
	assert.InDelta(t, 25.0, p.OverallProgress(), 1e-9)

	atRisk := p.AtRiskObjectives(t0.Add(days(45)))
	require.Len(t, atRisk, 1)
	assert.Equal(t, "o2", atRisk[0].ID)

	empty := domain.NewProjectVision(domain.ProjectVision{ProjectID: "p"}, t0)
	assert.Zero(t, empty.OverallProgress())
}

func TestProjectApproveAndProjection(t *testing.T) {
	p := newProject(t, newObjective(t, "o1", 250, 500))
	require.Error(t, p.Approve(" ", t0))
	require.NoError(t, p.Approve("cto", t0.Add(days(1))))
	assert.Equal(t, "cto", p.ApprovedBy)
	require.NotNil(t, p.ApprovalDate)

	view := p.Projection()
	assert.Equal(t, "proj-1", view.ProjectID)
	require.Len(t, view.Objectives, 1)
	assert.Equal(t, 50.0, view.Objectives[0].Progress)
	assert.Equal(t, 50.0, view.OverallProgress)
	assert.NotNil(t, view.KeyFeatures)
}

func TestBranchValidateAgainstProject(t *testing.T) {
	p := newProject(t, newObjective(t, "o1", 0, 100))

	assert.Empty(t, newBranch("o1").ValidateAgainstProject(p))

	orphan := newBranch()
	assert.Contains(t, orphan.ValidateAgainstProject(p), "branch must contribute to at least one project objective")

	bad := newBranch("o1", "o9")
	bad.InnovationPriorities = []string{"blockchain"}
	bad.AlignmentWithProject = 0.4
	violations := bad.ValidateAgainstProject(p)
	assert.Len(t, violations, 3)
	assert.Contains(t, violations, "contributing to non-existent objective: o9")
	assert.Contains(t, violations, "innovation priority not in project priorities: blockchain")

	assert.Equal(t, []string{"project vision is required"}, newBranch("o1").ValidateAgainstProject(nil))
}

func TestBranchMutators(t *testing.T) {
	b := newBranch("o1")

	err := b.UpdateAlignment(1.2, t0)
	assert.True(t, domain.IsCode(err, domain.CodeRange))
	assert.Equal(t, 0.9, b.AlignmentWithProject)

	require.NoError(t, b.UpdateAlignment(0.75, t0.Add(days(1))))
	assert.Equal(t, 0.75, b.AlignmentWithProject)

	require.NoError(t, b.AddDeliverable("wizard", t0))
	require.NoError(t, b.AddDeliverable("wizard", t0))
	assert.Equal(t, []string{"wizard"}, b.Deliverables)
	assert.Equal(t, 2, b.Version)
	assert.Error(t, b.AddDeliverable("  ", t0))

	b.CompleteDeliverable("wizard", t0)
	assert.Equal(t, []string{"wizard"}, b.Deliverables, "completion is tracked through events only")

	assert.Equal(t, []string{
		domain.EventBranchAlignmentUpdated,
		domain.EventDeliverableCompleted,
	}, eventTypes(b.PullEvents()))
}

func TestBranchMeasurableOutcomes(t *testing.T) {
	b := newBranch("o1")
	b.ExpectedOutcomes = []domain.ExpectedOutcome{
		{Description: "faster onboarding", SuccessIndicator: "time to value", MeasurementMethod: "analytics"},
		{Description: "happier users"},
	}
	assert.Len(t, b.MeasurableOutcomes(), 1)
	assert.Equal(t, 1, b.Projection().MeasurableOutcomes)
}

func TestTaskDefaults(t *testing.T) {
	task := domain.NewTaskVisionAlignment(domain.TaskVisionAlignment{TaskID: "t"}, t0)
	assert.Equal(t, domain.DefaultUrgencyFactor, task.UrgencyFactor)
	assert.Equal(t, domain.PriorityMedium, task.StrategicImportance)
	assert.Equal(t, 1, task.Version)
}

func TestTaskPriorityScore(t *testing.T) {
	maxed := domain.NewTaskVisionAlignment(domain.TaskVisionAlignment{
		BusinessValue:       10,
		UserImpact:          10,
		InnovationScore:     10,
		TechnicalDebtImpact: 10,
		StrategicImportance: domain.PriorityCritical,
		UrgencyFactor:       1.0,
	}, t0)
	assert.Equal(t, 10.0, maxed.PriorityScore())

	// (9*.30 + 8.5*.25 + 7*.15 + 2*.10) * 1.2
	assert.InDelta(t, 7.29, newTask("feature/x").PriorityScore(), 1e-9)

	debt := newTask("feature/x")
	debt.TechnicalDebtImpact = -8
	debt.StrategicImportance = domain.PriorityMedium
	assert.InDelta(t, 5.875, debt.PriorityScore(), 1e-9)
}

func TestTaskUpdateScoresIsAllOrNothing(t *testing.T) {
	task := newTask("feature/x")
	bv, ui := 11.0, 4.0
	err := task.UpdateScores(domain.ScoreUpdate{BusinessValue: &bv, UserImpact: &ui}, t0)
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.CodeRange))
	assert.Equal(t, 8.5, task.UserImpact)
	assert.Equal(t, 1, task.Version)

	require.NoError(t, task.UpdateScores(domain.ScoreUpdate{}, t0))
	assert.Equal(t, 1, task.Version)

	bv = 3
	require.NoError(t, task.UpdateScores(domain.ScoreUpdate{BusinessValue: &bv, UserImpact: &ui}, t0.Add(days(1))))
	assert.Equal(t, 3.0, task.BusinessValue)
	assert.Equal(t, 4.0, task.UserImpact)
	assert.Equal(t, 7.0, task.InnovationScore)
	assert.Equal(t, 2, task.Version)
}

func TestTaskValidate(t *testing.T) {
	assert.Empty(t, newTask("feature/x").Validate())

	task := domain.NewTaskVisionAlignment(domain.TaskVisionAlignment{
		BusinessValue:       12,
		UserImpact:          -1,
		TechnicalDebtImpact: -11,
	}, t0)
	assert.Len(t, task.Validate(), 6)
}

func TestTaskOutcomesAndValidation(t *testing.T) {
	task := newTask("feature/x")
	task.AddMeasurableOutcome(domain.MeasurableOutcome{MetricName: "activation", BaselineValue: 0.2, TargetValue: 0.4}, t0.Add(days(2)))
	assert.Len(t, task.MeasurableOutcomes, 1)
	assert.Equal(t, t0.Add(days(2)), task.UpdatedAt)

	assert.Error(t, task.MarkValidated("", t0))
	require.NoError(t, task.MarkValidated("lead", t0))
	assert.Equal(t, "lead", task.Projection().ValidatedBy)
}

func TestRangeChecksRejectNaN(t *testing.T) {
	nan := math.NaN()
	p := newProject(t, newObjective(t, "o1", 0, 100))

	b := newBranch("o1")
	assert.True(t, domain.IsCode(b.UpdateAlignment(nan, t0), domain.CodeRange))
	assert.Equal(t, 0.9, b.AlignmentWithProject)

	b.AlignmentWithProject = nan
	assert.Equal(t, []string{"alignment with project must be a number"}, b.ValidateAgainstProject(p))

	p.StrategicAlignmentScore = nan
	assert.Contains(t, p.Validate(), "strategic alignment score must be between 0 and 1")

	task := newTask("feature/x")
	err := task.UpdateScores(domain.ScoreUpdate{BusinessValue: &nan}, t0)
	assert.True(t, domain.IsCode(err, domain.CodeRange))
	assert.Equal(t, 9.0, task.BusinessValue)
	assert.False(t, math.IsNaN(task.PriorityScore()))

	task.UserImpact = nan
	task.InnovationScore = nan
	task.TechnicalDebtImpact = nan
	task.UrgencyFactor = nan
	assert.Len(t, task.Validate(), 4)
}
