package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"visionline/internal/domain"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func days(n int) time.Duration { return time.Duration(n) * 24 * time.Hour }

func newObjective(t *testing.T, id string, current, target float64) domain.VisionObjective {
	t.Helper()
	o, err := domain.NewVisionObjective(domain.VisionObjective{
		ID:           id,
		Title:        "Objective " + id,
		TargetMetric: "signups",
		CurrentValue: current,
		TargetValue:  target,
		Deadline:     t0.Add(days(90)),
		CreatedAt:    t0,
	})
	require.NoError(t, err)
	return o
}

func newProject(t *testing.T, objectives ...domain.VisionObjective) *domain.ProjectVision {
	t.Helper()
	return domain.NewProjectVision(domain.ProjectVision{
		ProjectID:               "proj-1",
		Objectives:              objectives,
		TargetAudience:          "platform teams",
		UniqueValueProposition:  "one view of strategy",
		StrategicAlignmentScore: 0.8,
		InnovationPriorities:    []string{"ai", "automation"},
		CreatedBy:               "alice",
	}, t0)
}

func newBranch(objectiveIDs ...string) *domain.BranchVision {
	return domain.NewBranchVision(domain.BranchVision{
		BranchID:                "feature/x",
		ProjectID:               "proj-1",
		BranchObjectives:        []string{"ship onboarding"},
		ContributesToObjectives: objectiveIDs,
		InnovationPriorities:    []string{"ai"},
		AlignmentWithProject:    0.9,
		TechnicalApproach:       "incremental",
	}, t0)
}

func newTask(branchID string) *domain.TaskVisionAlignment {
	return domain.NewTaskVisionAlignment(domain.TaskVisionAlignment{
		TaskID:                  "task-1",
		BranchID:                branchID,
		ContributesToObjectives: []string{"ship onboarding"},
		BusinessValue:           9,
		UserImpact:              8.5,
		InnovationScore:         7,
		TechnicalDebtImpact:     2,
		StrategicImportance:     domain.PriorityHigh,
		UrgencyFactor:           1.0,
		SuccessCriteria:         []string{"wizard completes in < 2 min"},
		StrategicRationale:      "onboarding drives activation",
	}, t0)
}

func eventTypes(evts []domain.Event) []string {
	out := make([]string, 0, len(evts))
	for _, e := range evts {
		out = append(out, e.EventType())
	}
	return out
}
