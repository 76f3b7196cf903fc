package domain

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"
)

// BranchVision describes how a branch contributes to its project's objectives.
type BranchVision struct {
	BranchID                string            `json:"branch_id"`
	ProjectID               string            `json:"project_id"`
	Version                 int               `json:"version"`
	BranchObjectives        []string          `json:"branch_objectives"`
	Deliverables            []string          `json:"branch_deliverables"`
	ExpectedOutcomes        []ExpectedOutcome `json:"expected_outcomes"`
	AlignmentWithProject    float64           `json:"alignment_with_project"`
	ContributesToObjectives []string          `json:"contributes_to_objectives"`
	InnovationPriorities    []string          `json:"innovation_priorities"`
	TechnicalApproach       string            `json:"technical_approach"`
	RiskFactors             []RiskFactor      `json:"risk_factors"`
	Constraints             []string          `json:"constraints"`
	Assumptions             []string          `json:"assumptions"`
	AcceptanceCriteria      []string          `json:"acceptance_criteria"`
	QualityStandards        []QualityStandard `json:"quality_standards"`
	DefinitionOfDone        []string          `json:"definition_of_done"`
	CreatedAt               time.Time         `json:"created_at"`
	UpdatedAt               time.Time         `json:"updated_at"`
	CreatedBy               string            `json:"created_by"`

	events eventRecorder
}

func NewBranchVision(v BranchVision, now time.Time) *BranchVision {
	bv := v
	bv.events = eventRecorder{}
	bv.Version = 1
	if bv.CreatedAt.IsZero() {
		bv.CreatedAt = now.UTC()
	}
	bv.UpdatedAt = bv.CreatedAt
	bv.BranchObjectives = append([]string(nil), v.BranchObjectives...)
	bv.Deliverables = append([]string(nil), v.Deliverables...)
	bv.ExpectedOutcomes = append([]ExpectedOutcome(nil), v.ExpectedOutcomes...)
	bv.ContributesToObjectives = append([]string(nil), v.ContributesToObjectives...)
	bv.InnovationPriorities = append([]string(nil), v.InnovationPriorities...)
	bv.RiskFactors = append([]RiskFactor(nil), v.RiskFactors...)
	bv.Constraints = append([]string(nil), v.Constraints...)
	bv.Assumptions = append([]string(nil), v.Assumptions...)
	bv.AcceptanceCriteria = append([]string(nil), v.AcceptanceCriteria...)
	bv.QualityStandards = append([]QualityStandard(nil), v.QualityStandards...)
	bv.DefinitionOfDone = append([]string(nil), v.DefinitionOfDone...)
	return &bv
}

// UpdateAlignment sets the alignment with the project; it must lie in [0,1].
func (b *BranchVision) UpdateAlignment(newValue float64, now time.Time) error {
	if !inRange(newValue, 0, 1) {
		return newError(CodeRange, "update_alignment", fmt.Sprintf("alignment must be between 0.0 and 1.0, got %g", newValue))
	}
	old := b.AlignmentWithProject
	b.AlignmentWithProject = newValue
	b.UpdatedAt = now.UTC()
	b.events.record(BranchAlignmentUpdated{
		EventMeta:    newEventMeta(now),
		Project:      b.ProjectID,
		BranchID:     b.BranchID,
		OldAlignment: old,
		NewAlignment: newValue,
	})
	return nil
}

// AddDeliverable appends a deliverable unless it is already listed.
func (b *BranchVision) AddDeliverable(deliverable string, now time.Time) error {
	deliverable = strings.TrimSpace(deliverable)
	if deliverable == "" {
		return newError(CodeValueConstruction, "add_deliverable", "deliverable cannot be empty")
	}
	if slices.Contains(b.Deliverables, deliverable) {
		return nil
	}
	b.Deliverables = append(b.Deliverables, deliverable)
	b.UpdatedAt = now.UTC()
	b.Version++
	return nil
}

// CompleteDeliverable records completion as an event; the deliverable list is left as is.
func (b *BranchVision) CompleteDeliverable(deliverable string, now time.Time) {
	b.events.record(DeliverableCompleted{
		EventMeta:   newEventMeta(now),
		Project:     b.ProjectID,
		BranchID:    b.BranchID,
		Deliverable: deliverable,
	})
}

// ValidateAgainstProject lists every way the branch fails to support project.
func (b *BranchVision) ValidateAgainstProject(project *ProjectVision) []string {
	if project == nil {
		return []string{"project vision is required"}
	}
	var violations []string
	for _, id := range b.ContributesToObjectives {
		if _, ok := project.Objective(id); !ok {
			violations = append(violations, fmt.Sprintf("contributing to non-existent objective: %s", id))
		}
	}
	if len(b.ContributesToObjectives) == 0 {
		violations = append(violations, "branch must contribute to at least one project objective")
	}
	for _, priority := range b.InnovationPriorities {
		if !slices.Contains(project.InnovationPriorities, priority) {
			violations = append(violations, fmt.Sprintf("innovation priority not in project priorities: %s", priority))
		}
	}
	return append(violations, alignmentViolations(b.AlignmentWithProject)...)
}

// alignmentViolations checks a branch alignment against the project minimum.
func alignmentViolations(alignment float64) []string {
	switch {
	case math.IsNaN(alignment):
		return []string{"alignment with project must be a number"}
	case alignment < MinBranchProjectAlignment:
		return []string{fmt.Sprintf("alignment with project too low: %g (minimum %g)", alignment, MinBranchProjectAlignment)}
	case alignment > 1:
		return []string{fmt.Sprintf("alignment with project must not exceed 1.0, got %g", alignment)}
	}
	return nil
}

// MeasurableOutcomes returns the expected outcomes that can be measured.
func (b *BranchVision) MeasurableOutcomes() []ExpectedOutcome {
	var out []ExpectedOutcome
	for _, o := range b.ExpectedOutcomes {
		if o.IsMeasurable() {
			out = append(out, o)
		}
	}
	return out
}

func (b *BranchVision) PendingEvents() []Event { return b.events.peek() }
func (b *BranchVision) PullEvents() []Event    { return b.events.drain() }

type BranchVisionView struct {
	BranchID                string    `json:"branch_id"`
	ProjectID               string    `json:"project_id"`
	Version                 int       `json:"version"`
	BranchObjectives        []string  `json:"branch_objectives"`
	Deliverables            []string  `json:"branch_deliverables"`
	AlignmentWithProject    float64   `json:"alignment_with_project"`
	ContributesToObjectives []string  `json:"contributes_to_objectives"`
	InnovationPriorities    []string  `json:"innovation_priorities"`
	TechnicalApproach       string    `json:"technical_approach"`
	MeasurableOutcomes      int       `json:"measurable_outcomes"`
	UpdatedAt               time.Time `json:"updated_at"`
}

func (b *BranchVision) Projection() BranchVisionView {
	return BranchVisionView{
		BranchID:                b.BranchID,
		ProjectID:               b.ProjectID,
		Version:                 b.Version,
		BranchObjectives:        nonNil(b.BranchObjectives),
		Deliverables:            nonNil(b.Deliverables),
		AlignmentWithProject:    b.AlignmentWithProject,
		ContributesToObjectives: nonNil(b.ContributesToObjectives),
		InnovationPriorities:    nonNil(b.InnovationPriorities),
		TechnicalApproach:       b.TechnicalApproach,
		MeasurableOutcomes:      len(b.MeasurableOutcomes()),
		UpdatedAt:               b.UpdatedAt,
	}
}
