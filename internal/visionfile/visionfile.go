// Package visionfile reads vision documents (YAML or JSON) and turns them into
// domain values through their validating constructors.
package visionfile

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"visionline/internal/domain"
)

// Document is a whole hierarchy: one project vision plus optional branches and tasks.
type Document struct {
	Project  *ProjectDoc `yaml:"project" json:"project"`
	Branches []BranchDoc `yaml:"branches,omitempty" json:"branches,omitempty"`
	Tasks    []TaskDoc   `yaml:"tasks,omitempty" json:"tasks,omitempty"`
}

type ObjectiveDoc struct {
	ID                string     `yaml:"id,omitempty" json:"id,omitempty"`
	Title             string     `yaml:"title" json:"title"`
	Description       string     `yaml:"description,omitempty" json:"description,omitempty"`
	TargetMetric      string     `yaml:"target_metric,omitempty" json:"target_metric,omitempty"`
	CurrentValue      float64    `yaml:"current_value" json:"current_value"`
	TargetValue       float64    `yaml:"target_value" json:"target_value"`
	Deadline          *time.Time `yaml:"deadline,omitempty" json:"deadline,omitempty"`
	DeadlineInDays    int        `yaml:"deadline_in_days,omitempty" json:"deadline_in_days,omitempty"`
	MeasurementMethod string     `yaml:"measurement_method,omitempty" json:"measurement_method,omitempty"`
	CreatedAt         *time.Time `yaml:"created_at,omitempty" json:"created_at,omitempty"`
}

type ProjectDoc struct {
	Objectives              []ObjectiveDoc        `yaml:"objectives" json:"objectives"`
	TargetAudience          string                `yaml:"target_audience" json:"target_audience"`
	KeyFeatures             []string              `yaml:"key_features,omitempty" json:"key_features,omitempty"`
	UniqueValueProposition  string                `yaml:"unique_value_proposition" json:"unique_value_proposition"`
	CompetitiveAdvantages   []string              `yaml:"competitive_advantages,omitempty" json:"competitive_advantages,omitempty"`
	SuccessMetrics          []domain.VisionMetric `yaml:"success_metrics,omitempty" json:"success_metrics,omitempty"`
	StrategicAlignmentScore float64               `yaml:"strategic_alignment_score" json:"strategic_alignment_score"`
	InnovationPriorities    []string              `yaml:"innovation_priorities,omitempty" json:"innovation_priorities,omitempty"`
	RiskFactors             []domain.RiskFactor   `yaml:"risk_factors,omitempty" json:"risk_factors,omitempty"`
}

type BranchDoc struct {
	BranchID                string                   `yaml:"branch_id" json:"branch_id"`
	BranchObjectives        []string                 `yaml:"branch_objectives,omitempty" json:"branch_objectives,omitempty"`
	Deliverables            []string                 `yaml:"deliverables,omitempty" json:"deliverables,omitempty"`
	ExpectedOutcomes        []domain.ExpectedOutcome `yaml:"expected_outcomes,omitempty" json:"expected_outcomes,omitempty"`
	AlignmentWithProject    float64                  `yaml:"alignment_with_project" json:"alignment_with_project"`
	ContributesToObjectives []string                 `yaml:"contributes_to_objectives" json:"contributes_to_objectives"`
	InnovationPriorities    []string                 `yaml:"innovation_priorities,omitempty" json:"innovation_priorities,omitempty"`
	TechnicalApproach       string                   `yaml:"technical_approach,omitempty" json:"technical_approach,omitempty"`
	RiskFactors             []domain.RiskFactor      `yaml:"risk_factors,omitempty" json:"risk_factors,omitempty"`
	Constraints             []string                 `yaml:"constraints,omitempty" json:"constraints,omitempty"`
	Assumptions             []string                 `yaml:"assumptions,omitempty" json:"assumptions,omitempty"`
	AcceptanceCriteria      []string                 `yaml:"acceptance_criteria,omitempty" json:"acceptance_criteria,omitempty"`
	QualityStandards        []domain.QualityStandard `yaml:"quality_standards,omitempty" json:"quality_standards,omitempty"`
	DefinitionOfDone        []string                 `yaml:"definition_of_done,omitempty" json:"definition_of_done,omitempty"`
}

type TaskDoc struct {
	TaskID                  string                     `yaml:"task_id" json:"task_id"`
	BranchID                string                     `yaml:"branch_id" json:"branch_id"`
	ContributesToObjectives []string                   `yaml:"contributes_to_objectives" json:"contributes_to_objectives"`
	ExpectedImpact          string                     `yaml:"expected_impact,omitempty" json:"expected_impact,omitempty"`
	BusinessValue           float64                    `yaml:"business_value" json:"business_value"`
	UserImpact              float64                    `yaml:"user_impact" json:"user_impact"`
	InnovationScore         float64                    `yaml:"innovation_score" json:"innovation_score"`
	TechnicalDebtImpact     float64                    `yaml:"technical_debt_impact" json:"technical_debt_impact"`
	StrategicImportance     domain.PriorityLevel       `yaml:"strategic_importance,omitempty" json:"strategic_importance,omitempty"`
	UrgencyFactor           float64                    `yaml:"urgency_factor,omitempty" json:"urgency_factor,omitempty"`
	SuccessCriteria         []string                   `yaml:"success_criteria" json:"success_criteria"`
	AcceptanceCriteria      []string                   `yaml:"acceptance_criteria,omitempty" json:"acceptance_criteria,omitempty"`
	MeasurableOutcomes      []domain.MeasurableOutcome `yaml:"measurable_outcomes,omitempty" json:"measurable_outcomes,omitempty"`
	StrategicRationale      string                     `yaml:"strategic_rationale" json:"strategic_rationale"`
	UserValueRationale      string                     `yaml:"user_value_rationale,omitempty" json:"user_value_rationale,omitempty"`
	BusinessRationale       string                     `yaml:"business_rationale,omitempty" json:"business_rationale,omitempty"`
	InnovationOpportunities []string                   `yaml:"innovation_opportunities,omitempty" json:"innovation_opportunities,omitempty"`
	IdentifiedRisks         []string                   `yaml:"identified_risks,omitempty" json:"identified_risks,omitempty"`
}

// AlignmentDoc holds the sub-scores of a stateless alignment calculation.
// Missing innovation and risk scores take the domain defaults.
type AlignmentDoc struct {
	Objective  float64  `yaml:"objective_alignment" json:"objective_alignment"`
	Strategic  float64  `yaml:"strategic_alignment" json:"strategic_alignment"`
	Value      float64  `yaml:"value_alignment" json:"value_alignment"`
	Innovation *float64 `yaml:"innovation_alignment,omitempty" json:"innovation_alignment,omitempty"`
	Risk       *float64 `yaml:"risk_alignment,omitempty" json:"risk_alignment,omitempty"`
}

var ErrInvalidDocument = errors.New("invalid vision document")

// Decode reads one YAML or JSON value of type T. JSON is accepted as a YAML subset.
func Decode[T any](data []byte) (T, error) {
	var out T
	if len(strings.TrimSpace(string(data))) == 0 {
		return out, fmt.Errorf("%w: empty body", ErrInvalidDocument)
	}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return out, nil
}

// Parse decodes a whole hierarchy document.
func Parse(data []byte) (Document, error) {
	doc, err := Decode[Document](data)
	if err != nil {
		return Document{}, err
	}
	if doc.Project == nil && len(doc.Branches) == 0 && len(doc.Tasks) == 0 {
		return Document{}, fmt.Errorf("%w: nothing to import", ErrInvalidDocument)
	}
	return doc, nil
}

func Load(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, err
	}
	return Parse(data)
}

// violations collects nested construction failures under a path prefix.
type violations []string

func (v *violations) add(prefix string, err error) {
	if err == nil {
		return
	}
	nested := domain.ViolationsOf(err)
	if len(nested) == 0 {
		nested = []string{err.Error()}
	}
	for _, msg := range nested {
		*v = append(*v, prefix+": "+msg)
	}
}

func (v violations) err(op string) error {
	if len(v) == 0 {
		return nil
	}
	return domain.NewError(domain.CodeValueConstruction, op, "invalid document", v...)
}

func (d ObjectiveDoc) ToDomain(now time.Time) (domain.VisionObjective, error) {
	created := now.UTC()
	if d.CreatedAt != nil {
		created = d.CreatedAt.UTC()
	}
	var deadline time.Time
	switch {
	case d.Deadline != nil:
		deadline = d.Deadline.UTC()
	case d.DeadlineInDays > 0:
		deadline = created.AddDate(0, 0, d.DeadlineInDays)
	}
	id := strings.TrimSpace(d.ID)
	if id == "" {
		id = uuid.NewString()
	}
	return domain.NewVisionObjective(domain.VisionObjective{
		ID:                id,
		Title:             strings.TrimSpace(d.Title),
		Description:       d.Description,
		TargetMetric:      d.TargetMetric,
		CurrentValue:      d.CurrentValue,
		TargetValue:       d.TargetValue,
		Deadline:          deadline,
		MeasurementMethod: d.MeasurementMethod,
		CreatedAt:         created,
	})
}

// ToDomain checks every nested value and reports all failures together.
func (d ProjectDoc) ToDomain(projectID, createdBy string, now time.Time) (*domain.ProjectVision, error) {
	var bad violations
	objectives := make([]domain.VisionObjective, 0, len(d.Objectives))
	for i, od := range d.Objectives {
		o, err := od.ToDomain(now)
		bad.add(fmt.Sprintf("objectives[%d]", i), err)
		objectives = append(objectives, o)
	}
	metrics := make([]domain.VisionMetric, 0, len(d.SuccessMetrics))
	for i, md := range d.SuccessMetrics {
		if strings.TrimSpace(md.ID) == "" {
			md.ID = uuid.NewString()
		}
		if md.LastUpdated.IsZero() {
			md.LastUpdated = now.UTC()
		}
		m, err := domain.NewVisionMetric(md)
		bad.add(fmt.Sprintf("success_metrics[%d]", i), err)
		metrics = append(metrics, m)
	}
	risks, riskBad := riskFactors(d.RiskFactors)
	bad = append(bad, riskBad...)
	if err := bad.err("import_project_vision"); err != nil {
		return nil, err
	}
	return domain.NewProjectVision(domain.ProjectVision{
		ProjectID:               projectID,
		Objectives:              objectives,
		TargetAudience:          strings.TrimSpace(d.TargetAudience),
		KeyFeatures:             d.KeyFeatures,
		UniqueValueProposition:  strings.TrimSpace(d.UniqueValueProposition),
		CompetitiveAdvantages:   d.CompetitiveAdvantages,
		SuccessMetrics:          metrics,
		StrategicAlignmentScore: d.StrategicAlignmentScore,
		InnovationPriorities:    d.InnovationPriorities,
		RiskFactors:             risks,
		CreatedBy:               createdBy,
	}, now), nil
}

func riskFactors(in []domain.RiskFactor) ([]domain.RiskFactor, violations) {
	var bad violations
	out := make([]domain.RiskFactor, 0, len(in))
	for i, rd := range in {
		if strings.TrimSpace(rd.ID) == "" {
			rd.ID = uuid.NewString()
		}
		r, err := domain.NewRiskFactor(rd)
		bad.add(fmt.Sprintf("risk_factors[%d]", i), err)
		out = append(out, r)
	}
	return out, bad
}

func (d BranchDoc) ToDomain(projectID, createdBy string, now time.Time) (*domain.BranchVision, error) {
	risks, bad := riskFactors(d.RiskFactors)
	if strings.TrimSpace(d.BranchID) == "" {
		bad = append(bad, "branch_id: branch id cannot be empty")
	}
	if err := bad.err("import_branch_vision"); err != nil {
		return nil, err
	}
	return domain.NewBranchVision(domain.BranchVision{
		BranchID:                strings.TrimSpace(d.BranchID),
		ProjectID:               projectID,
		BranchObjectives:        d.BranchObjectives,
		Deliverables:            d.Deliverables,
		ExpectedOutcomes:        d.ExpectedOutcomes,
		AlignmentWithProject:    d.AlignmentWithProject,
		ContributesToObjectives: d.ContributesToObjectives,
		InnovationPriorities:    d.InnovationPriorities,
		TechnicalApproach:       d.TechnicalApproach,
		RiskFactors:             risks,
		Constraints:             d.Constraints,
		Assumptions:             d.Assumptions,
		AcceptanceCriteria:      d.AcceptanceCriteria,
		QualityStandards:        d.QualityStandards,
		DefinitionOfDone:        d.DefinitionOfDone,
		CreatedBy:               createdBy,
	}, now), nil
}

func (d TaskDoc) ToDomain(now time.Time) (*domain.TaskVisionAlignment, error) {
	var bad violations
	if strings.TrimSpace(d.TaskID) == "" {
		bad = append(bad, "task_id: task id cannot be empty")
	}
	if strings.TrimSpace(d.BranchID) == "" {
		bad = append(bad, "branch_id: branch id cannot be empty")
	}
	if d.StrategicImportance != "" && !d.StrategicImportance.IsValid() {
		bad = append(bad, fmt.Sprintf("strategic_importance: unknown priority level %q", d.StrategicImportance))
	}
	if d.UrgencyFactor < 0 {
		bad = append(bad, "urgency_factor: cannot be negative")
	}
	if err := bad.err("import_task_alignment"); err != nil {
		return nil, err
	}
	return domain.NewTaskVisionAlignment(domain.TaskVisionAlignment{
		TaskID:                  strings.TrimSpace(d.TaskID),
		BranchID:                strings.TrimSpace(d.BranchID),
		ContributesToObjectives: d.ContributesToObjectives,
		ExpectedImpact:          d.ExpectedImpact,
		BusinessValue:           d.BusinessValue,
		UserImpact:              d.UserImpact,
		InnovationScore:         d.InnovationScore,
		TechnicalDebtImpact:     d.TechnicalDebtImpact,
		StrategicImportance:     d.StrategicImportance,
		UrgencyFactor:           d.UrgencyFactor,
		SuccessCriteria:         d.SuccessCriteria,
		AcceptanceCriteria:      d.AcceptanceCriteria,
		MeasurableOutcomes:      d.MeasurableOutcomes,
		StrategicRationale:      d.StrategicRationale,
		UserValueRationale:      d.UserValueRationale,
		BusinessRationale:       d.BusinessRationale,
		InnovationOpportunities: d.InnovationOpportunities,
		IdentifiedRisks:         d.IdentifiedRisks,
	}, now), nil
}

func (d AlignmentDoc) ToDomain() (domain.VisionAlignment, error) {
	innovation, risk := domain.DefaultInnovationAlignment, domain.DefaultRiskAlignment
	if d.Innovation != nil {
		innovation = *d.Innovation
	}
	if d.Risk != nil {
		risk = *d.Risk
	}
	return domain.NewVisionAlignment(d.Objective, d.Strategic, d.Value, innovation, risk)
}
