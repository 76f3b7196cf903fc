package domain

import (
	"fmt"
	"slices"
	"sort"
	"time"
)

// VisionAggregate is the consistency boundary of one project's vision
// hierarchy. It owns the project vision, its branch visions (by branch id) and
// task alignments (by task id), and collects their events into one outbound
// queue. Mutators are not reentrant: callers serialize access per project.
type VisionAggregate struct {
	projectID string
	project   *ProjectVision
	branches  map[string]*BranchVision
	tasks     map[string]*TaskVisionAlignment
	events    eventBuffer
	now       func() time.Time
}

// NewVisionAggregate creates an empty aggregate. A nil clock means time.Now.
func NewVisionAggregate(projectID string, now func() time.Time) *VisionAggregate {
	if now == nil {
		now = time.Now
	}
	return &VisionAggregate{
		projectID: projectID,
		branches:  make(map[string]*BranchVision),
		tasks:     make(map[string]*TaskVisionAlignment),
		now:       now,
	}
}

// RestoreAggregate rebuilds an aggregate from persisted entities without
// admission checks. Pending entity events are discarded.
func RestoreAggregate(projectID string, project *ProjectVision, branches []*BranchVision, tasks []*TaskVisionAlignment, now func() time.Time) *VisionAggregate {
	a := NewVisionAggregate(projectID, now)
	if project != nil {
		project.PullEvents()
		a.project = project
	}
	for _, b := range branches {
		b.PullEvents()
		a.branches[b.BranchID] = b
	}
	for _, t := range tasks {
		t.PullEvents()
		a.tasks[t.TaskID] = t
	}
	return a
}

func (a *VisionAggregate) ProjectID() string { return a.projectID }

// Project returns the installed project vision, or nil.
func (a *VisionAggregate) Project() *ProjectVision { return a.project }

func (a *VisionAggregate) Branch(branchID string) (*BranchVision, bool) {
	b, ok := a.branches[branchID]
	return b, ok
}

func (a *VisionAggregate) Task(taskID string) (*TaskVisionAlignment, bool) {
	t, ok := a.tasks[taskID]
	return t, ok
}

// Branches returns installed branch visions ordered by branch id.
func (a *VisionAggregate) Branches() []*BranchVision {
	ids := make([]string, 0, len(a.branches))
	for id := range a.branches {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*BranchVision, 0, len(ids))
	for _, id := range ids {
		out = append(out, a.branches[id])
	}
	return out
}

// Tasks returns installed task alignments ordered by task id.
func (a *VisionAggregate) Tasks() []*TaskVisionAlignment {
	ids := make([]string, 0, len(a.tasks))
	for id := range a.tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*TaskVisionAlignment, 0, len(ids))
	for _, id := range ids {
		out = append(out, a.tasks[id])
	}
	return out
}

// SetProjectVision installs v when it satisfies its own invariants.
func (a *VisionAggregate) SetProjectVision(v *ProjectVision) error {
	const op = "set_project_vision"
	if v == nil {
		return newError(CodeAggregateValidation, op, "project vision is required")
	}
	if v.ProjectID != a.projectID {
		return newError(CodeReference, op, fmt.Sprintf("project vision %s does not belong to project %s", v.ProjectID, a.projectID))
	}
	if violations := v.Validate(); len(violations) > 0 {
		return newError(CodeAggregateValidation, op, "invalid project vision", violations...)
	}
	a.project = v
	a.events.append(v.PullEvents()...)
	return nil
}

// AddBranchVision installs v under branchID after checking it against the
// project vision. A rejected branch still leaves a VisionValidationFailed event.
func (a *VisionAggregate) AddBranchVision(branchID string, v *BranchVision) error {
	const op = "add_branch_vision"
	if a.project == nil {
		return newError(CodeReference, op, "project vision must be set before adding branches")
	}
	if v == nil {
		return newError(CodeAggregateValidation, op, "branch vision is required")
	}
	if v.BranchID != "" && v.BranchID != branchID {
		return newError(CodeReference, op, fmt.Sprintf("branch vision %s submitted as %s", v.BranchID, branchID))
	}
	if v.ProjectID != "" && v.ProjectID != a.projectID {
		return newError(CodeReference, op, fmt.Sprintf("branch %s belongs to project %s, not %s", branchID, v.ProjectID, a.projectID))
	}
	if _, exists := a.branches[branchID]; exists {
		return newError(CodeConflict, op, fmt.Sprintf("branch vision %s already exists", branchID))
	}
	if violations := v.ValidateAgainstProject(a.project); len(violations) > 0 {
		a.events.append(VisionValidationFailed{
			EventMeta:        newEventMeta(a.now()),
			Project:          a.projectID,
			EntityType:       EntityBranchVision,
			FailedEntityID:   branchID,
			ValidationErrors: append([]string(nil), violations...),
		})
		return newError(CodeAggregateValidation, op, "branch vision validation failed", violations...)
	}
	v.BranchID = branchID
	v.ProjectID = a.projectID
	a.branches[branchID] = v
	a.events.append(v.PullEvents()...)
	return nil
}

// AddTaskAlignment installs t under taskID once its branch exists and every
// contributed objective is one of the branch objectives.
func (a *VisionAggregate) AddTaskAlignment(taskID string, t *TaskVisionAlignment) error {
	const op = "add_task_alignment"
	if t == nil {
		return newError(CodeAggregateValidation, op, "task alignment is required")
	}
	if t.TaskID != "" && t.TaskID != taskID {
		return newError(CodeReference, op, fmt.Sprintf("task alignment %s submitted as %s", t.TaskID, taskID))
	}
	branch, ok := a.branches[t.BranchID]
	if !ok {
		return newError(CodeReference, op, fmt.Sprintf("branch not found: %s", t.BranchID))
	}
	if _, exists := a.tasks[taskID]; exists {
		return newError(CodeConflict, op, fmt.Sprintf("task alignment %s already exists", taskID))
	}
	violations := unknownBranchObjectives(branch, t)
	violations = append(violations, t.Validate()...)
	if len(violations) > 0 {
		return newError(CodeAggregateValidation, op, "task alignment validation failed", violations...)
	}
	t.TaskID = taskID
	a.tasks[taskID] = t
	a.events.append(t.PullEvents()...)
	return nil
}

func unknownBranchObjectives(branch *BranchVision, t *TaskVisionAlignment) []string {
	var violations []string
	for _, objective := range t.ContributesToObjectives {
		if !slices.Contains(branch.BranchObjectives, objective) {
			violations = append(violations, fmt.Sprintf("objective not found in branch %s: %s", branch.BranchID, objective))
		}
	}
	return violations
}

func (a *VisionAggregate) requireProject(op string) error {
	if a.project == nil {
		return newError(CodeNotFound, op, fmt.Sprintf("no project vision for %s", a.projectID))
	}
	return nil
}

func (a *VisionAggregate) requireBranch(op, branchID string) (*BranchVision, error) {
	b, ok := a.branches[branchID]
	if !ok {
		return nil, newError(CodeNotFound, op, fmt.Sprintf("branch not found: %s", branchID))
	}
	return b, nil
}

func (a *VisionAggregate) requireTask(op, taskID string) (*TaskVisionAlignment, error) {
	t, ok := a.tasks[taskID]
	if !ok {
		return nil, newError(CodeNotFound, op, fmt.Sprintf("task alignment not found: %s", taskID))
	}
	return t, nil
}

func (a *VisionAggregate) AddObjective(o VisionObjective) error {
	if err := a.requireProject("add_objective"); err != nil {
		return err
	}
	if err := a.project.AddObjective(o, a.now()); err != nil {
		return err
	}
	a.events.append(a.project.PullEvents()...)
	return nil
}

func (a *VisionAggregate) UpdateObjective(objectiveID string, newValue float64) error {
	if err := a.requireProject("update_objective"); err != nil {
		return err
	}
	if err := a.project.UpdateObjective(objectiveID, newValue, a.now()); err != nil {
		return err
	}
	a.events.append(a.project.PullEvents()...)
	return nil
}

func (a *VisionAggregate) ApproveVision(approver string) error {
	if err := a.requireProject("approve_vision"); err != nil {
		return err
	}
	return a.project.Approve(approver, a.now())
}

func (a *VisionAggregate) UpdateBranchAlignment(branchID string, alignment float64) error {
	b, err := a.requireBranch("update_branch_alignment", branchID)
	if err != nil {
		return err
	}
	// Out-of-range values are left to UpdateAlignment's range error.
	violations := alignmentViolations(alignment)
	if inRange(alignment, 0, 1) && len(violations) > 0 {
		a.events.append(VisionValidationFailed{
			EventMeta:        newEventMeta(a.now()),
			Project:          a.projectID,
			EntityType:       EntityBranchVision,
			FailedEntityID:   branchID,
			ValidationErrors: violations,
		})
		return newError(CodeAggregateValidation, "update_branch_alignment", "branch alignment validation failed", violations...)
	}
	if err := b.UpdateAlignment(alignment, a.now()); err != nil {
		return err
	}
	a.events.append(b.PullEvents()...)
	return nil
}

func (a *VisionAggregate) AddBranchDeliverable(branchID, deliverable string) error {
	b, err := a.requireBranch("add_branch_deliverable", branchID)
	if err != nil {
		return err
	}
	return b.AddDeliverable(deliverable, a.now())
}

func (a *VisionAggregate) CompleteBranchDeliverable(branchID, deliverable string) error {
	b, err := a.requireBranch("complete_branch_deliverable", branchID)
	if err != nil {
		return err
	}
	b.CompleteDeliverable(deliverable, a.now())
	a.events.append(b.PullEvents()...)
	return nil
}

func (a *VisionAggregate) UpdateTaskScores(taskID string, u ScoreUpdate) error {
	t, err := a.requireTask("update_task_scores", taskID)
	if err != nil {
		return err
	}
	return t.UpdateScores(u, a.now())
}

func (a *VisionAggregate) AddTaskOutcome(taskID string, o MeasurableOutcome) error {
	t, err := a.requireTask("add_task_outcome", taskID)
	if err != nil {
		return err
	}
	t.AddMeasurableOutcome(o, a.now())
	return nil
}

func (a *VisionAggregate) MarkTaskValidated(taskID, validator string) error {
	t, err := a.requireTask("mark_task_validated", taskID)
	if err != nil {
		return err
	}
	return t.MarkValidated(validator, a.now())
}

// AtRiskObjectives evaluates the project's objectives at the aggregate clock.
func (a *VisionAggregate) AtRiskObjectives() []VisionObjective {
	if a.project == nil {
		return nil
	}
	return a.project.AtRiskObjectives(a.now())
}

// VisionHealth summarizes the hierarchy. Without a project vision only Overall
// is meaningful and it is 0.
type VisionHealth struct {
	HasProject        bool    `json:"-"`
	ObjectiveProgress float64 `json:"objective_progress"`
	BranchAlignment   float64 `json:"branch_alignment"`
	TaskCoverage      float64 `json:"task_coverage"`
	Overall           float64 `json:"overall"`
}

// Map renders the health the way dashboards consume it.
func (h VisionHealth) Map() map[string]float64 {
	if !h.HasProject {
		return map[string]float64{"overall": 0}
	}
	return map[string]float64{
		"objective_progress": h.ObjectiveProgress,
		"branch_alignment":   h.BranchAlignment,
		"task_coverage":      h.TaskCoverage,
		"overall":            h.Overall,
	}
}

func (a *VisionAggregate) CalculateVisionHealth() VisionHealth {
	if a.project == nil {
		return VisionHealth{}
	}
	h := VisionHealth{
		HasProject:        true,
		ObjectiveProgress: a.project.OverallProgress(),
	}
	if len(a.branches) > 0 {
		var sum float64
		for _, b := range a.branches {
			sum += b.AlignmentWithProject
		}
		h.BranchAlignment = sum / float64(len(a.branches))
	}
	if len(a.tasks) > 0 {
		var sum float64
		for _, t := range a.tasks {
			sum += t.PriorityScore()
		}
		h.TaskCoverage = sum / float64(len(a.tasks)) / MaxTaskScore
	}
	h.Overall = h.ObjectiveProgress/100*HealthObjectiveWeight +
		h.BranchAlignment*HealthBranchWeight +
		h.TaskCoverage*HealthTaskWeight
	return h
}

// AuditEntry lists the violations found on one entity.
type AuditEntry struct {
	EntityKind string   `json:"entity_kind"`
	EntityID   string   `json:"entity_id"`
	Violations []string `json:"violations"`
}

type AuditReport struct {
	ProjectID string       `json:"project_id"`
	Entries   []AuditEntry `json:"entries"`
}

func (r AuditReport) Valid() bool { return len(r.Entries) == 0 }

// Violations flattens the report into "kind/id: message" lines.
func (r AuditReport) Violations() []string {
	var out []string
	for _, e := range r.Entries {
		for _, v := range e.Violations {
			out = append(out, fmt.Sprintf("%s/%s: %s", e.EntityKind, e.EntityID, v))
		}
	}
	return out
}

// Audit re-runs every validation against the current state of the hierarchy.
func (a *VisionAggregate) Audit() AuditReport {
	report := AuditReport{ProjectID: a.projectID}
	add := func(kind, id string, violations []string) {
		if len(violations) > 0 {
			report.Entries = append(report.Entries, AuditEntry{EntityKind: kind, EntityID: id, Violations: violations})
		}
	}
	if a.project == nil {
		add(EntityProjectVision, a.projectID, []string{"project vision is not set"})
		return report
	}
	add(EntityProjectVision, a.projectID, a.project.Validate())
	for _, b := range a.Branches() {
		add(EntityBranchVision, b.BranchID, b.ValidateAgainstProject(a.project))
	}
	for _, t := range a.Tasks() {
		var violations []string
		if b, ok := a.branches[t.BranchID]; ok {
			violations = unknownBranchObjectives(b, t)
		} else {
			violations = []string{fmt.Sprintf("branch not found: %s", t.BranchID)}
		}
		add(EntityTaskAlignment, t.TaskID, append(violations, t.Validate()...))
	}
	return report
}

// DrainEvents returns and clears the outbound queue. Each event is handed out once.
func (a *VisionAggregate) DrainEvents() []Event {
	return a.events.drain()
}

func (a *VisionAggregate) PendingEventCount() int {
	return a.events.len()
}
