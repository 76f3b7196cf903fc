package domain

import (
	"fmt"
	"strings"
	"time"
)

// ProjectVision holds the strategic objectives of one project.
//
// Invariants (checked by Validate):
//   - at least one objective, with unique ids
//   - TargetAudience and UniqueValueProposition are non-empty
//   - StrategicAlignmentScore is in [0,1]
type ProjectVision struct {
	ProjectID               string            `json:"project_id"`
	Version                 int               `json:"version"`
	Objectives              []VisionObjective `json:"objectives"`
	TargetAudience          string            `json:"target_audience"`
	KeyFeatures             []string          `json:"key_features"`
	UniqueValueProposition  string            `json:"unique_value_proposition"`
	CompetitiveAdvantages   []string          `json:"competitive_advantages"`
	SuccessMetrics          []VisionMetric    `json:"success_metrics"`
	StrategicAlignmentScore float64           `json:"strategic_alignment_score"`
	InnovationPriorities    []string          `json:"innovation_priorities"`
	RiskFactors             []RiskFactor      `json:"risk_factors"`
	CreatedAt               time.Time         `json:"created_at"`
	UpdatedAt               time.Time         `json:"updated_at"`
	CreatedBy               string            `json:"created_by"`
	ApprovedBy              string            `json:"approved_by,omitempty"`
	ApprovalDate            *time.Time        `json:"approval_date,omitempty"`

	events eventRecorder
}

// NewProjectVision starts the lifecycle of v at version 1.
func NewProjectVision(v ProjectVision, now time.Time) *ProjectVision {
	pv := v
	pv.events = eventRecorder{}
	pv.Version = 1
	if pv.CreatedAt.IsZero() {
		pv.CreatedAt = now.UTC()
	}
	pv.UpdatedAt = pv.CreatedAt
	pv.Objectives = append([]VisionObjective(nil), v.Objectives...)
	pv.KeyFeatures = append([]string(nil), v.KeyFeatures...)
	pv.CompetitiveAdvantages = append([]string(nil), v.CompetitiveAdvantages...)
	pv.SuccessMetrics = append([]VisionMetric(nil), v.SuccessMetrics...)
	pv.InnovationPriorities = append([]string(nil), v.InnovationPriorities...)
	pv.RiskFactors = append([]RiskFactor(nil), v.RiskFactors...)
	return &pv
}

func (p *ProjectVision) objectiveIndex(id string) int {
	for i, o := range p.Objectives {
		if o.ID == id {
			return i
		}
	}
	return -1
}

// Objective looks up an objective by id.
func (p *ProjectVision) Objective(id string) (VisionObjective, bool) {
	if i := p.objectiveIndex(id); i >= 0 {
		return p.Objectives[i], true
	}
	return VisionObjective{}, false
}

func (p *ProjectVision) ObjectiveIDs() []string {
	ids := make([]string, 0, len(p.Objectives))
	for _, o := range p.Objectives {
		ids = append(ids, o.ID)
	}
	return ids
}

// UpdateObjective replaces the objective with a copy carrying newValue.
func (p *ProjectVision) UpdateObjective(objectiveID string, newValue float64, now time.Time) error {
	i := p.objectiveIndex(objectiveID)
	if i < 0 {
		return newError(CodeNotFound, "update_objective", fmt.Sprintf("objective not found: %s", objectiveID))
	}
	old := p.Objectives[i]
	next, err := old.WithCurrentValue(newValue)
	if err != nil {
		return err
	}
	p.Objectives[i] = next
	p.UpdatedAt = now.UTC()
	p.events.record(ObjectiveUpdated{
		EventMeta:   newEventMeta(now),
		Project:     p.ProjectID,
		ObjectiveID: objectiveID,
		OldValue:    old.CurrentValue,
		NewValue:    newValue,
	})
	return nil
}

// AddObjective appends a new objective and bumps the version.
func (p *ProjectVision) AddObjective(o VisionObjective, now time.Time) error {
	if p.objectiveIndex(o.ID) >= 0 {
		return newError(CodeDuplicateObjective, "add_objective", fmt.Sprintf("objective %s already exists", o.ID))
	}
	checked, err := NewVisionObjective(o)
	if err != nil {
		return err
	}
	p.Objectives = append(p.Objectives, checked)
	p.UpdatedAt = now.UTC()
	p.Version++
	p.events.record(ObjectiveAdded{
		EventMeta:   newEventMeta(now),
		Project:     p.ProjectID,
		ObjectiveID: checked.ID,
		Title:       checked.Title,
	})
	return nil
}

// Approve records who signed off the vision.
func (p *ProjectVision) Approve(approver string, now time.Time) error {
	if strings.TrimSpace(approver) == "" {
		return newError(CodeValueConstruction, "approve_vision", "approver cannot be empty")
	}
	at := now.UTC()
	p.ApprovedBy = approver
	p.ApprovalDate = &at
	p.UpdatedAt = at
	return nil
}

// OverallProgress is the mean objective progress, 0 without objectives.
func (p *ProjectVision) OverallProgress() float64 {
	if len(p.Objectives) == 0 {
		return 0
	}
	var sum float64
	for _, o := range p.Objectives {
		sum += o.Progress()
	}
	return sum / float64(len(p.Objectives))
}

func (p *ProjectVision) AtRiskObjectives(now time.Time) []VisionObjective {
	var out []VisionObjective
	for _, o := range p.Objectives {
		if o.IsAtRisk(now) {
			out = append(out, o)
		}
	}
	return out
}

// Validate lists every violated invariant; an empty result means valid.
func (p *ProjectVision) Validate() []string {
	var violations []string
	if len(p.Objectives) == 0 {
		violations = append(violations, "project vision must have at least one objective")
	}
	if strings.TrimSpace(p.TargetAudience) == "" {
		violations = append(violations, "target audience must be defined")
	}
	if strings.TrimSpace(p.UniqueValueProposition) == "" {
		violations = append(violations, "unique value proposition must be defined")
	}
	if !inRange(p.StrategicAlignmentScore, 0, 1) {
		violations = append(violations, "strategic alignment score must be between 0 and 1")
	}
	seen := make(map[string]struct{}, len(p.Objectives))
	for _, o := range p.Objectives {
		if _, ok := seen[o.ID]; ok {
			violations = append(violations, fmt.Sprintf("duplicate objective id: %s", o.ID))
			continue
		}
		seen[o.ID] = struct{}{}
	}
	return violations
}

// PendingEvents returns the events not yet pulled, without clearing them.
func (p *ProjectVision) PendingEvents() []Event { return p.events.peek() }

// PullEvents returns and clears the pending events.
func (p *ProjectVision) PullEvents() []Event { return p.events.drain() }

type ObjectiveView struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Progress    float64   `json:"progress"`
	Deadline    time.Time `json:"deadline"`
}

// ProjectVisionView is the read-only projection handed to presentation layers.
type ProjectVisionView struct {
	ProjectID               string          `json:"project_id"`
	Version                 int             `json:"version"`
	Objectives              []ObjectiveView `json:"objectives"`
	TargetAudience          string          `json:"target_audience"`
	KeyFeatures             []string        `json:"key_features"`
	UniqueValueProposition  string          `json:"unique_value_proposition"`
	CompetitiveAdvantages   []string        `json:"competitive_advantages"`
	StrategicAlignmentScore float64         `json:"strategic_alignment_score"`
	InnovationPriorities    []string        `json:"innovation_priorities"`
	OverallProgress         float64         `json:"overall_progress"`
	CreatedAt               time.Time       `json:"created_at"`
	UpdatedAt               time.Time       `json:"updated_at"`
}

func (p *ProjectVision) Projection() ProjectVisionView {
	objectives := make([]ObjectiveView, 0, len(p.Objectives))
	for _, o := range p.Objectives {
		objectives = append(objectives, ObjectiveView{
			ID:          o.ID,
			Title:       o.Title,
			Description: o.Description,
			Progress:    o.Progress(),
			Deadline:    o.Deadline,
		})
	}
	return ProjectVisionView{
		ProjectID:               p.ProjectID,
		Version:                 p.Version,
		Objectives:              objectives,
		TargetAudience:          p.TargetAudience,
		KeyFeatures:             nonNil(p.KeyFeatures),
		UniqueValueProposition:  p.UniqueValueProposition,
		CompetitiveAdvantages:   nonNil(p.CompetitiveAdvantages),
		StrategicAlignmentScore: p.StrategicAlignmentScore,
		InnovationPriorities:    nonNil(p.InnovationPriorities),
		OverallProgress:         p.OverallProgress(),
		CreatedAt:               p.CreatedAt,
		UpdatedAt:               p.UpdatedAt,
	}
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return append([]string(nil), in...)
}
