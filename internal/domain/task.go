package domain

import (
	"fmt"
	"strings"
	"time"
)

// PriorityLevel expresses how strategically important a task is.
type PriorityLevel string

const (
	PriorityLow      PriorityLevel = "low"
	PriorityMedium   PriorityLevel = "medium"
	PriorityHigh     PriorityLevel = "high"
	PriorityUrgent   PriorityLevel = "urgent"
	PriorityCritical PriorityLevel = "critical"
)

var priorityModifiers = map[PriorityLevel]float64{
	PriorityCritical: 2.0,
	PriorityUrgent:   1.5,
	PriorityHigh:     1.2,
	PriorityMedium:   1.0,
	PriorityLow:      0.8,
}

func (p PriorityLevel) IsValid() bool {
	_, ok := priorityModifiers[p]
	return ok
}

// Modifier is the multiplier applied to a task's base priority.
func (p PriorityLevel) Modifier() float64 {
	if m, ok := priorityModifiers[p]; ok {
		return m
	}
	return 1.0
}

// TaskVisionAlignment scores how a task advances its branch objectives.
type TaskVisionAlignment struct {
	TaskID                  string              `json:"task_id"`
	BranchID                string              `json:"branch_id"`
	Version                 int                 `json:"version"`
	ContributesToObjectives []string            `json:"contributes_to_objectives"`
	ExpectedImpact          string              `json:"expected_impact"`
	BusinessValue           float64             `json:"business_value"`
	UserImpact              float64             `json:"user_impact"`
	InnovationScore         float64             `json:"innovation_score"`
	TechnicalDebtImpact     float64             `json:"technical_debt_impact"`
	StrategicImportance     PriorityLevel       `json:"strategic_importance"`
	UrgencyFactor           float64             `json:"urgency_factor"`
	SuccessCriteria         []string            `json:"success_criteria"`
	AcceptanceCriteria      []string            `json:"acceptance_criteria"`
	MeasurableOutcomes      []MeasurableOutcome `json:"measurable_outcomes"`
	StrategicRationale      string              `json:"strategic_rationale"`
	UserValueRationale      string              `json:"user_value_rationale"`
	BusinessRationale       string              `json:"business_rationale"`
	InnovationOpportunities []string            `json:"innovation_opportunities"`
	IdentifiedRisks         []string            `json:"identified_risks"`
	CreatedAt               time.Time           `json:"created_at"`
	UpdatedAt               time.Time           `json:"updated_at"`
	ValidatedBy             string              `json:"validated_by,omitempty"`
	ValidationDate          *time.Time          `json:"validation_date,omitempty"`

	events eventRecorder
}

// NewTaskVisionAlignment starts a task alignment at version 1. A zero urgency
// factor becomes DefaultUrgencyFactor and an empty importance becomes medium.
func NewTaskVisionAlignment(t TaskVisionAlignment, now time.Time) *TaskVisionAlignment {
	ta := t
	ta.events = eventRecorder{}
	ta.Version = 1
	if ta.UrgencyFactor == 0 {
		ta.UrgencyFactor = DefaultUrgencyFactor
	}
	if ta.StrategicImportance == "" {
		ta.StrategicImportance = PriorityMedium
	}
	if ta.CreatedAt.IsZero() {
		ta.CreatedAt = now.UTC()
	}
	ta.UpdatedAt = ta.CreatedAt
	ta.ContributesToObjectives = append([]string(nil), t.ContributesToObjectives...)
	ta.SuccessCriteria = append([]string(nil), t.SuccessCriteria...)
	ta.AcceptanceCriteria = append([]string(nil), t.AcceptanceCriteria...)
	ta.MeasurableOutcomes = append([]MeasurableOutcome(nil), t.MeasurableOutcomes...)
	ta.InnovationOpportunities = append([]string(nil), t.InnovationOpportunities...)
	ta.IdentifiedRisks = append([]string(nil), t.IdentifiedRisks...)
	return &ta
}

// PriorityScore ranks the task on a 0-10 scale. Only debt reduction (positive
// technical debt impact) raises the score.
func (t *TaskVisionAlignment) PriorityScore() float64 {
	base := t.BusinessValue*BusinessValueWeight +
		t.UserImpact*UserImpactWeight +
		t.InnovationScore*InnovationPriorityWeight +
		max(t.TechnicalDebtImpact, 0)*TechnicalDebtWeight
	return clamp(base*t.StrategicImportance.Modifier()*t.UrgencyFactor, 0, MaxTaskScore)
}

// ScoreUpdate is a partial update; nil fields are left untouched.
type ScoreUpdate struct {
	BusinessValue   *float64 `json:"business_value,omitempty"`
	UserImpact      *float64 `json:"user_impact,omitempty"`
	InnovationScore *float64 `json:"innovation_score,omitempty"`
}

func (u ScoreUpdate) IsEmpty() bool {
	return u.BusinessValue == nil && u.UserImpact == nil && u.InnovationScore == nil
}

// UpdateScores range-checks every provided score before assigning any of them.
func (t *TaskVisionAlignment) UpdateScores(u ScoreUpdate, now time.Time) error {
	if u.IsEmpty() {
		return nil
	}
	var violations []string
	check := func(name string, v *float64) {
		if v != nil && !inRange(*v, 0, MaxTaskScore) {
			violations = append(violations, fmt.Sprintf("%s must be between 0 and 10, got %g", name, *v))
		}
	}
	check("business_value", u.BusinessValue)
	check("user_impact", u.UserImpact)
	check("innovation_score", u.InnovationScore)
	if len(violations) > 0 {
		return &Error{Code: CodeRange, Op: "update_scores", Message: "invalid scores", Violations: violations}
	}
	if u.BusinessValue != nil {
		t.BusinessValue = *u.BusinessValue
	}
	if u.UserImpact != nil {
		t.UserImpact = *u.UserImpact
	}
	if u.InnovationScore != nil {
		t.InnovationScore = *u.InnovationScore
	}
	t.UpdatedAt = now.UTC()
	t.Version++
	return nil
}

func (t *TaskVisionAlignment) AddMeasurableOutcome(o MeasurableOutcome, now time.Time) {
	t.MeasurableOutcomes = append(t.MeasurableOutcomes, o)
	t.UpdatedAt = now.UTC()
}

// MarkValidated records who confirmed the alignment.
func (t *TaskVisionAlignment) MarkValidated(validator string, now time.Time) error {
	if strings.TrimSpace(validator) == "" {
		return newError(CodeValueConstruction, "mark_validated", "validator cannot be empty")
	}
	at := now.UTC()
	t.ValidatedBy = validator
	t.ValidationDate = &at
	t.UpdatedAt = at
	return nil
}

func (t *TaskVisionAlignment) Validate() []string {
	var violations []string
	if len(t.ContributesToObjectives) == 0 {
		violations = append(violations, "task must contribute to at least one objective")
	}
	if len(t.SuccessCriteria) == 0 {
		violations = append(violations, "task must have success criteria")
	}
	if strings.TrimSpace(t.StrategicRationale) == "" {
		violations = append(violations, "strategic rationale must be provided")
	}
	if !inRange(t.BusinessValue, 0, MaxTaskScore) {
		violations = append(violations, "business value must be between 0 and 10")
	}
	if !inRange(t.UserImpact, 0, MaxTaskScore) {
		violations = append(violations, "user impact must be between 0 and 10")
	}
	if !inRange(t.InnovationScore, 0, MaxTaskScore) {
		violations = append(violations, "innovation score must be between 0 and 10")
	}
	if !inRange(t.TechnicalDebtImpact, MinTechnicalDebtImpact, MaxTaskScore) {
		violations = append(violations, "technical debt impact must be between -10 and 10")
	}
	if !(t.UrgencyFactor >= 0) {
		violations = append(violations, "urgency factor must be a non-negative number")
	}
	return violations
}

func (t *TaskVisionAlignment) PendingEvents() []Event { return t.events.peek() }
func (t *TaskVisionAlignment) PullEvents() []Event    { return t.events.drain() }

type TaskAlignmentView struct {
	TaskID                  string        `json:"task_id"`
	BranchID                string        `json:"branch_id"`
	Version                 int           `json:"version"`
	ContributesToObjectives []string      `json:"contributes_to_objectives"`
	BusinessValue           float64       `json:"business_value"`
	UserImpact              float64       `json:"user_impact"`
	InnovationScore         float64       `json:"innovation_score"`
	TechnicalDebtImpact     float64       `json:"technical_debt_impact"`
	StrategicImportance     PriorityLevel `json:"strategic_importance"`
	UrgencyFactor           float64       `json:"urgency_factor"`
	PriorityScore           float64       `json:"priority_score"`
	MeasurableOutcomes      int           `json:"measurable_outcomes"`
	ValidatedBy             string        `json:"validated_by,omitempty"`
	UpdatedAt               time.Time     `json:"updated_at"`
}

func (t *TaskVisionAlignment) Projection() TaskAlignmentView {
	return TaskAlignmentView{
		TaskID:                  t.TaskID,
		BranchID:                t.BranchID,
		Version:                 t.Version,
		ContributesToObjectives: nonNil(t.ContributesToObjectives),
		BusinessValue:           t.BusinessValue,
		UserImpact:              t.UserImpact,
		InnovationScore:         t.InnovationScore,
		TechnicalDebtImpact:     t.TechnicalDebtImpact,
		StrategicImportance:     t.StrategicImportance,
		UrgencyFactor:           t.UrgencyFactor,
		PriorityScore:           t.PriorityScore(),
		MeasurableOutcomes:      len(t.MeasurableOutcomes),
		ValidatedBy:             t.ValidatedBy,
		UpdatedAt:               t.UpdatedAt,
	}
}
