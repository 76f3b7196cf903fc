package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"visionline/internal/config"
	"visionline/internal/domain"
	"visionline/internal/events"
	"visionline/internal/logger"
	"visionline/internal/metrics"
	"visionline/internal/repo"
	"visionline/internal/visionfile"
)

// Application event types written next to the domain events.
const (
	EventVisionCreated  = "vision.created"
	EventVisionApproved = "vision.approved"
	EventVisionAudited  = "vision.audited"
)

type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	Events  events.Writer
	Config  *config.Config
	Log     *logger.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time

	locks *projectLocks
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Log:    logger.Nop(),
		Now:    time.Now,
		locks:  newProjectLocks(),
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) log() *logger.Logger {
	if e.Log != nil {
		return e.Log
	}
	return logger.Nop()
}

// projectLocks serializes commands per project so each one sees the
// snapshot left by the previous one.
type projectLocks struct {
	mu    sync.Mutex
	byKey map[string]*sync.Mutex
}

func newProjectLocks() *projectLocks {
	return &projectLocks{byKey: map[string]*sync.Mutex{}}
}

func (l *projectLocks) lock(projectID string) func() {
	if l == nil {
		return func() {}
	}
	l.mu.Lock()
	m, ok := l.byKey[projectID]
	if !ok {
		m = &sync.Mutex{}
		l.byKey[projectID] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock
}

func projectNotFound(op, projectID string) error {
	return domain.NewError(domain.CodeNotFound, op, "project not found: "+projectID)
}

// command loads the project's aggregate, applies fn and persists the
// resulting snapshots and drained events in one transaction. When fn fails
// but the aggregate still recorded events, those events are committed and
// fn's error is returned.
func (e Engine) command(ctx context.Context, op, projectID, actorID string, fn func(*domain.VisionAggregate) error) (*domain.VisionAggregate, error) {
	start := time.Now()
	unlock := e.locks.lock(projectID)
	defer unlock()

	agg, recorded, err := e.apply(ctx, op, projectID, actorID, fn)
	e.Metrics.ObserveCommand(op, start, err)
	for _, evt := range recorded {
		e.Metrics.IncEvent(evt.EventType())
		if evt.EventType() == domain.EventVisionValidationFailed {
			e.Metrics.IncValidationFailure(evt.EntityKind())
		}
	}
	if err != nil {
		e.log().Warn("command rejected", "project_id", projectID, "op", op, "code", string(domain.CodeOf(err)), "violations", domain.ViolationsOf(err), "error", err.Error())
		return nil, err
	}
	e.Metrics.SetHealth(projectID, agg.CalculateVisionHealth().Map())
	version := 0
	if p := agg.Project(); p != nil {
		version = p.Version
	}
	e.log().Info("command applied", "project_id", projectID, "op", op, "version", version, "events", len(recorded))
	return agg, nil
}

func (e Engine) apply(ctx context.Context, op, projectID, actorID string, fn func(*domain.VisionAggregate) error) (*domain.VisionAggregate, []domain.Event, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	agg, err := e.Repo.LoadAggregateTx(ctx, tx, projectID, e.now)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil, projectNotFound(op, projectID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load aggregate: %w", err)
	}
	cmdErr := fn(agg)
	evts := agg.DrainEvents()
	if cmdErr != nil && len(evts) == 0 {
		return nil, nil, cmdErr
	}
	if cmdErr == nil {
		if err := e.Repo.SaveAggregateTx(ctx, tx, agg); err != nil {
			return nil, nil, err
		}
	}
	for _, evt := range evts {
		if err := e.Events.AppendDomain(ctx, tx, actorID, evt); err != nil {
			return nil, nil, fmt.Errorf("append %s: %w", evt.EventType(), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return agg, evts, cmdErr
}

// view loads the aggregate for reading; nothing is written.
func (e Engine) view(ctx context.Context, op, projectID string) (*domain.VisionAggregate, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	agg, err := e.Repo.LoadAggregateTx(ctx, tx, projectID, e.now)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, projectNotFound(op, projectID)
	}
	return agg, err
}

func (e Engine) viewProject(ctx context.Context, op, projectID string) (*domain.VisionAggregate, error) {
	agg, err := e.view(ctx, op, projectID)
	if err != nil {
		return nil, err
	}
	if agg.Project() == nil {
		return nil, domain.NewError(domain.CodeNotFound, op, "project vision not set: "+projectID)
	}
	return agg, nil
}

// CreateVisionInput registers a project and installs its first vision.
type CreateVisionInput struct {
	ProjectID string
	Name      string
	ActorID   string
	Vision    visionfile.ProjectDoc
}

func (e Engine) CreateVision(ctx context.Context, in CreateVisionInput) (domain.ProjectVisionView, error) {
	const op = "create_vision"
	if in.ProjectID == "" {
		return domain.ProjectVisionView{}, domain.NewError(domain.CodeAggregateValidation, op, "project id is required")
	}
	start := time.Now()
	unlock := e.locks.lock(in.ProjectID)
	defer unlock()

	view, err := e.createVision(ctx, op, in)
	e.Metrics.ObserveCommand(op, start, err)
	if err != nil {
		e.log().Warn("command rejected", "project_id", in.ProjectID, "op", op, "violations", domain.ViolationsOf(err), "error", err.Error())
		return domain.ProjectVisionView{}, err
	}
	e.Metrics.IncEvent(EventVisionCreated)
	e.log().Info("vision created", "project_id", in.ProjectID, "objectives", len(view.Objectives))
	return view, nil
}

func (e Engine) createVision(ctx context.Context, op string, in CreateVisionInput) (domain.ProjectVisionView, error) {
	now := e.now()
	pv, err := in.Vision.ToDomain(in.ProjectID, in.ActorID, now)
	if err != nil {
		return domain.ProjectVisionView{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ProjectVisionView{}, err
	}
	defer tx.Rollback()

	if _, err := e.Repo.GetProjectTx(ctx, tx, in.ProjectID); err == nil {
		return domain.ProjectVisionView{}, domain.NewError(domain.CodeConflict, op, "project already exists: "+in.ProjectID)
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.ProjectVisionView{}, err
	}
	if err := e.Repo.InsertProjectTx(ctx, tx, repo.Project{
		ID:        in.ProjectID,
		Name:      in.Name,
		CreatedBy: in.ActorID,
		CreatedAt: now.UTC().Format(time.RFC3339),
	}); err != nil {
		return domain.ProjectVisionView{}, fmt.Errorf("insert project: %w", err)
	}
	agg := domain.NewVisionAggregate(in.ProjectID, e.now)
	if err := agg.SetProjectVision(pv); err != nil {
		return domain.ProjectVisionView{}, err
	}
	if err := e.Repo.SaveAggregateTx(ctx, tx, agg); err != nil {
		return domain.ProjectVisionView{}, err
	}
	for _, evt := range agg.DrainEvents() {
		if err := e.Events.AppendDomain(ctx, tx, in.ActorID, evt); err != nil {
			return domain.ProjectVisionView{}, err
		}
	}
	if err := e.Events.Append(ctx, tx, EventVisionCreated, in.ProjectID, domain.EntityProjectVision, in.ProjectID, in.ActorID,
		events.EventPayload{"version": pv.Version, "objectives": pv.ObjectiveIDs()}); err != nil {
		return domain.ProjectVisionView{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ProjectVisionView{}, err
	}
	return agg.Project().Projection(), nil
}

// ImportResult lists what an import admitted before it stopped.
type ImportResult struct {
	Branches []string `json:"branches"`
	Tasks    []string `json:"tasks"`
}

// Import admits the branches and then the tasks of doc, one command each.
// It stops at the first rejection and reports what was admitted so far.
func (e Engine) Import(ctx context.Context, projectID, actorID string, doc visionfile.Document) (ImportResult, error) {
	res := ImportResult{Branches: []string{}, Tasks: []string{}}
	for _, b := range doc.Branches {
		view, err := e.AddBranch(ctx, projectID, actorID, b)
		if err != nil {
			return res, err
		}
		res.Branches = append(res.Branches, view.BranchID)
	}
	for _, t := range doc.Tasks {
		view, err := e.AddTask(ctx, projectID, actorID, t)
		if err != nil {
			return res, err
		}
		res.Tasks = append(res.Tasks, view.TaskID)
	}
	return res, nil
}

func (e Engine) GetVision(ctx context.Context, projectID string) (domain.ProjectVisionView, error) {
	agg, err := e.viewProject(ctx, "get_vision", projectID)
	if err != nil {
		return domain.ProjectVisionView{}, err
	}
	return agg.Project().Projection(), nil
}

func (e Engine) Health(ctx context.Context, projectID string) (domain.VisionHealth, error) {
	agg, err := e.view(ctx, "health", projectID)
	if err != nil {
		return domain.VisionHealth{}, err
	}
	h := agg.CalculateVisionHealth()
	e.Metrics.SetHealth(projectID, h.Map())
	return h, nil
}

func (e Engine) AtRisk(ctx context.Context, projectID string) ([]domain.VisionObjective, error) {
	agg, err := e.viewProject(ctx, "at_risk", projectID)
	if err != nil {
		return nil, err
	}
	out := agg.AtRiskObjectives()
	if out == nil {
		out = []domain.VisionObjective{}
	}
	return out, nil
}

func (e Engine) AddObjective(ctx context.Context, projectID, actorID string, doc visionfile.ObjectiveDoc) (domain.VisionObjective, error) {
	o, err := doc.ToDomain(e.now())
	if err != nil {
		return domain.VisionObjective{}, err
	}
	if _, err := e.command(ctx, "add_objective", projectID, actorID, func(agg *domain.VisionAggregate) error {
		return agg.AddObjective(o)
	}); err != nil {
		return domain.VisionObjective{}, err
	}
	return o, nil
}

func (e Engine) UpdateObjective(ctx context.Context, projectID, actorID, objectiveID string, value float64) (domain.ProjectVisionView, error) {
	agg, err := e.command(ctx, "update_objective", projectID, actorID, func(agg *domain.VisionAggregate) error {
		return agg.UpdateObjective(objectiveID, value)
	})
	if err != nil {
		return domain.ProjectVisionView{}, err
	}
	return agg.Project().Projection(), nil
}

// ApproveVision records the approver. The domain emits no event for it, so
// an application event is appended to the log.
func (e Engine) ApproveVision(ctx context.Context, projectID, approver string) (domain.ProjectVisionView, error) {
	const op = "approve_vision"
	start := time.Now()
	unlock := e.locks.lock(projectID)
	defer unlock()

	view, err := e.approve(ctx, op, projectID, approver)
	e.Metrics.ObserveCommand(op, start, err)
	if err != nil {
		e.log().Warn("command rejected", "project_id", projectID, "op", op, "error", err.Error())
		return domain.ProjectVisionView{}, err
	}
	e.Metrics.IncEvent(EventVisionApproved)
	e.log().Info("vision approved", "project_id", projectID, "approver", approver)
	return view, nil
}

func (e Engine) approve(ctx context.Context, op, projectID, approver string) (domain.ProjectVisionView, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ProjectVisionView{}, err
	}
	defer tx.Rollback()
	agg, err := e.Repo.LoadAggregateTx(ctx, tx, projectID, e.now)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.ProjectVisionView{}, projectNotFound(op, projectID)
	}
	if err != nil {
		return domain.ProjectVisionView{}, err
	}
	if err := agg.ApproveVision(approver); err != nil {
		return domain.ProjectVisionView{}, err
	}
	if err := e.Repo.SaveAggregateTx(ctx, tx, agg); err != nil {
		return domain.ProjectVisionView{}, err
	}
	if err := e.Events.Append(ctx, tx, EventVisionApproved, projectID, domain.EntityProjectVision, projectID, approver,
		events.EventPayload{"approved_by": approver, "version": agg.Project().Version}); err != nil {
		return domain.ProjectVisionView{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ProjectVisionView{}, err
	}
	return agg.Project().Projection(), nil
}

func (e Engine) AddBranch(ctx context.Context, projectID, actorID string, doc visionfile.BranchDoc) (domain.BranchVisionView, error) {
	bv, err := doc.ToDomain(projectID, actorID, e.now())
	if err != nil {
		return domain.BranchVisionView{}, err
	}
	if _, err := e.command(ctx, "add_branch", projectID, actorID, func(agg *domain.VisionAggregate) error {
		return agg.AddBranchVision(bv.BranchID, bv)
	}); err != nil {
		return domain.BranchVisionView{}, err
	}
	return bv.Projection(), nil
}

func (e Engine) branchCommand(ctx context.Context, op, projectID, actorID, branchID string, fn func(*domain.VisionAggregate) error) (domain.BranchVisionView, error) {
	agg, err := e.command(ctx, op, projectID, actorID, fn)
	if err != nil {
		return domain.BranchVisionView{}, err
	}
	b, _ := agg.Branch(branchID)
	return b.Projection(), nil
}

func (e Engine) UpdateBranchAlignment(ctx context.Context, projectID, actorID, branchID string, alignment float64) (domain.BranchVisionView, error) {
	return e.branchCommand(ctx, "update_branch_alignment", projectID, actorID, branchID, func(agg *domain.VisionAggregate) error {
		return agg.UpdateBranchAlignment(branchID, alignment)
	})
}

func (e Engine) AddDeliverable(ctx context.Context, projectID, actorID, branchID, deliverable string) (domain.BranchVisionView, error) {
	return e.branchCommand(ctx, "add_deliverable", projectID, actorID, branchID, func(agg *domain.VisionAggregate) error {
		return agg.AddBranchDeliverable(branchID, deliverable)
	})
}

func (e Engine) CompleteDeliverable(ctx context.Context, projectID, actorID, branchID, deliverable string) (domain.BranchVisionView, error) {
	return e.branchCommand(ctx, "complete_deliverable", projectID, actorID, branchID, func(agg *domain.VisionAggregate) error {
		return agg.CompleteBranchDeliverable(branchID, deliverable)
	})
}

func (e Engine) GetBranch(ctx context.Context, projectID, branchID string) (domain.BranchVisionView, error) {
	agg, err := e.view(ctx, "get_branch", projectID)
	if err != nil {
		return domain.BranchVisionView{}, err
	}
	b, ok := agg.Branch(branchID)
	if !ok {
		return domain.BranchVisionView{}, domain.NewError(domain.CodeNotFound, "get_branch", "branch not found: "+branchID)
	}
	return b.Projection(), nil
}

func (e Engine) ListBranches(ctx context.Context, projectID string) ([]domain.BranchVisionView, error) {
	agg, err := e.view(ctx, "list_branches", projectID)
	if err != nil {
		return nil, err
	}
	out := []domain.BranchVisionView{}
	for _, b := range agg.Branches() {
		out = append(out, b.Projection())
	}
	return out, nil
}

func (e Engine) AddTask(ctx context.Context, projectID, actorID string, doc visionfile.TaskDoc) (domain.TaskAlignmentView, error) {
	t, err := doc.ToDomain(e.now())
	if err != nil {
		return domain.TaskAlignmentView{}, err
	}
	if _, err := e.command(ctx, "add_task", projectID, actorID, func(agg *domain.VisionAggregate) error {
		return agg.AddTaskAlignment(t.TaskID, t)
	}); err != nil {
		return domain.TaskAlignmentView{}, err
	}
	return t.Projection(), nil
}

func (e Engine) taskCommand(ctx context.Context, op, projectID, actorID, taskID string, fn func(*domain.VisionAggregate) error) (domain.TaskAlignmentView, error) {
	agg, err := e.command(ctx, op, projectID, actorID, fn)
	if err != nil {
		return domain.TaskAlignmentView{}, err
	}
	t, _ := agg.Task(taskID)
	return t.Projection(), nil
}

func (e Engine) UpdateTaskScores(ctx context.Context, projectID, actorID, taskID string, u domain.ScoreUpdate) (domain.TaskAlignmentView, error) {
	return e.taskCommand(ctx, "update_task_scores", projectID, actorID, taskID, func(agg *domain.VisionAggregate) error {
		return agg.UpdateTaskScores(taskID, u)
	})
}

func (e Engine) AddTaskOutcome(ctx context.Context, projectID, actorID, taskID string, o domain.MeasurableOutcome) (domain.TaskAlignmentView, error) {
	if o.MeasurementDate.IsZero() {
		o.MeasurementDate = e.now().UTC()
	}
	return e.taskCommand(ctx, "add_task_outcome", projectID, actorID, taskID, func(agg *domain.VisionAggregate) error {
		return agg.AddTaskOutcome(taskID, o)
	})
}

func (e Engine) ValidateTask(ctx context.Context, projectID, validator, taskID string) (domain.TaskAlignmentView, error) {
	return e.taskCommand(ctx, "validate_task", projectID, validator, taskID, func(agg *domain.VisionAggregate) error {
		return agg.MarkTaskValidated(taskID, validator)
	})
}

func (e Engine) GetTask(ctx context.Context, projectID, taskID string) (domain.TaskAlignmentView, error) {
	agg, err := e.view(ctx, "get_task", projectID)
	if err != nil {
		return domain.TaskAlignmentView{}, err
	}
	t, ok := agg.Task(taskID)
	if !ok {
		return domain.TaskAlignmentView{}, domain.NewError(domain.CodeNotFound, "get_task", "task not found: "+taskID)
	}
	return t.Projection(), nil
}

// ListTasks returns tasks ordered by priority score, highest first. A
// non-empty branchID restricts the list to that branch.
func (e Engine) ListTasks(ctx context.Context, projectID, branchID string) ([]domain.TaskAlignmentView, error) {
	agg, err := e.view(ctx, "list_tasks", projectID)
	if err != nil {
		return nil, err
	}
	out := []domain.TaskAlignmentView{}
	for _, t := range agg.Tasks() {
		if branchID != "" && t.BranchID != branchID {
			continue
		}
		out = append(out, t.Projection())
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PriorityScore > out[j].PriorityScore })
	return out, nil
}

// ValidateVision audits the whole hierarchy and stores the report.
func (e Engine) ValidateVision(ctx context.Context, projectID, actorID string) (repo.VisionAudit, error) {
	const op = "validate_vision"
	start := time.Now()
	unlock := e.locks.lock(projectID)
	defer unlock()

	audit, err := e.validate(ctx, op, projectID, actorID)
	e.Metrics.ObserveCommand(op, start, err)
	if err != nil {
		return repo.VisionAudit{}, err
	}
	e.Metrics.IncEvent(EventVisionAudited)
	e.Metrics.SetHealth(projectID, audit.Health)
	for _, issue := range audit.Issues {
		e.Metrics.IncValidationFailure(issue.EntityKind)
	}
	if audit.Status == repo.AuditFailed {
		e.log().Warn("vision audit failed", "project_id", projectID, "audit_id", audit.ID, "issues", len(audit.Issues))
	} else {
		e.log().Info("vision audit passed", "project_id", projectID, "audit_id", audit.ID)
	}
	return audit, nil
}

func (e Engine) validate(ctx context.Context, op, projectID, actorID string) (repo.VisionAudit, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return repo.VisionAudit{}, err
	}
	defer tx.Rollback()
	agg, err := e.Repo.LoadAggregateTx(ctx, tx, projectID, e.now)
	if errors.Is(err, repo.ErrNotFound) {
		return repo.VisionAudit{}, projectNotFound(op, projectID)
	}
	if err != nil {
		return repo.VisionAudit{}, err
	}
	report := agg.Audit()
	status := repo.AuditPassed
	if !report.Valid() {
		status = repo.AuditFailed
	}
	audit, err := e.Repo.CreateAuditTx(ctx, tx, repo.VisionAudit{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Status:    status,
		Issues:    report.Entries,
		Health:    agg.CalculateVisionHealth().Map(),
		CreatedBy: actorID,
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return repo.VisionAudit{}, fmt.Errorf("store audit: %w", err)
	}
	if err := e.Events.Append(ctx, tx, EventVisionAudited, projectID, domain.EntityProjectVision, projectID, actorID,
		events.EventPayload{"audit_id": audit.ID, "status": status, "violations": report.Violations()}); err != nil {
		return repo.VisionAudit{}, err
	}
	if err := tx.Commit(); err != nil {
		return repo.VisionAudit{}, err
	}
	return audit, nil
}

// GetAudit returns one stored audit of the project.
func (e Engine) GetAudit(ctx context.Context, projectID, auditID string) (repo.VisionAudit, error) {
	a, err := e.Repo.GetAudit(ctx, auditID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return repo.VisionAudit{}, domain.NewError(domain.CodeNotFound, "get_audit", fmt.Sprintf("audit %s not found", auditID))
		}
		return repo.VisionAudit{}, err
	}
	if a.ProjectID != projectID {
		return repo.VisionAudit{}, domain.NewError(domain.CodeNotFound, "get_audit", fmt.Sprintf("audit %s not found", auditID))
	}
	return a, nil
}

func (e Engine) ListAudits(ctx context.Context, projectID string, limit int) ([]repo.VisionAudit, error) {
	return e.Repo.ListAudits(ctx, projectID, limit)
}

// ListEvents pages through the log newest first. The returned cursor is
// passed back to fetch the next page; zero means there are no more.
func (e Engine) ListEvents(ctx context.Context, f repo.EventFilter, limit int, cursor int64) ([]repo.EventRecord, int64, error) {
	if limit <= 0 {
		limit = 50
	}
	evts, err := e.Repo.LatestEvents(ctx, f, limit, cursor)
	if err != nil {
		return nil, 0, err
	}
	var next int64
	if len(evts) == limit {
		next = evts[len(evts)-1].ID
	}
	if evts == nil {
		evts = []repo.EventRecord{}
	}
	return evts, next, nil
}

// AlignmentScore is the result of a stateless alignment calculation.
type AlignmentScore struct {
	Alignment        domain.VisionAlignment `json:"alignment"`
	Overall          float64                `json:"overall"`
	Level            domain.AlignmentLevel  `json:"level"`
	Aligned          bool                   `json:"aligned"`
	ImprovementAreas []string               `json:"improvement_areas"`
}

func ScoreAlignment(doc visionfile.AlignmentDoc) (AlignmentScore, error) {
	a, err := doc.ToDomain()
	if err != nil {
		return AlignmentScore{}, err
	}
	areas := a.ImprovementAreas()
	if areas == nil {
		areas = []string{}
	}
	return AlignmentScore{
		Alignment:        a,
		Overall:          a.OverallScore(),
		Level:            a.Level(),
		Aligned:          a.IsAligned(domain.DefaultAlignedThreshold),
		ImprovementAreas: areas,
	}, nil
}
