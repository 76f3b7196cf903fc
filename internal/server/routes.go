package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"visionline/internal/domain"
	"visionline/internal/engine"
	"visionline/internal/repo"
	"visionline/internal/visionfile"
)

type output[T any] struct {
	Body T `json:"body"`
}

func respond[T any](v T) *output[T] {
	return &output[T]{Body: v}
}

type projectPath struct {
	ProjectID string `path:"project_id"`
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*output[map[string]string], error) {
		return respond(map[string]string{"status": "ok"}), nil
	})
}

func registerVision(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "create-vision",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/vision",
		Summary:     "Register a project and install its vision (YAML or JSON body)",
		Errors:      []int{http.StatusBadRequest, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Name      string `query:"name"`
		RawBody   []byte `contentType:"application/json"`
	}) (*output[domain.ProjectVisionView], error) {
		doc, err := visionfile.Decode[visionfile.ProjectDoc](input.RawBody)
		if err != nil {
			return nil, handleError(err)
		}
		view, err := e.CreateVision(ctx, engine.CreateVisionInput{
			ProjectID: input.ProjectID,
			Name:      input.Name,
			ActorID:   actorFromRequest(ctx, ""),
			Vision:    doc,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(view), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-vision",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/vision",
		Summary:     "Read-only projection of the project vision",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*output[domain.ProjectVisionView], error) {
		view, err := e.GetVision(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(view), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "approve-vision",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/vision/approve",
		Summary:     "Approve the project vision",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Body      ApproveRequest
	}) (*output[domain.ProjectVisionView], error) {
		view, err := e.ApproveVision(ctx, input.ProjectID, actorFromRequest(ctx, input.Body.Approver))
		if err != nil {
			return nil, handleError(err)
		}
		return respond(view), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "import-hierarchy",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/import",
		Summary:     "Admit the branches and tasks of a vision document",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		RawBody   []byte `contentType:"application/json"`
	}) (*output[engine.ImportResult], error) {
		doc, err := visionfile.Parse(input.RawBody)
		if err != nil {
			return nil, handleError(err)
		}
		res, err := e.Import(ctx, input.ProjectID, actorFromRequest(ctx, ""), doc)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "vision-health",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/health",
		Summary:     "Vision health of the hierarchy",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*output[map[string]float64], error) {
		h, err := e.Health(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(h.Map()), nil
	})
}

func registerObjectives(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "at-risk-objectives",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/objectives/at-risk",
		Summary:     "Objectives trailing their expected progress",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*output[[]ObjectiveResponse], error) {
		items, err := e.AtRisk(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(objectiveResponses(items, e.Now)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "add-objective",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/objectives",
		Summary:     "Add an objective to the project vision",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		RawBody   []byte `contentType:"application/json"`
	}) (*output[ObjectiveResponse], error) {
		doc, err := visionfile.Decode[visionfile.ObjectiveDoc](input.RawBody)
		if err != nil {
			return nil, handleError(err)
		}
		o, err := e.AddObjective(ctx, input.ProjectID, actorFromRequest(ctx, ""), doc)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(objectiveResponse(o, e.Now)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-objective",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}/objectives/{objective_id}",
		Summary:     "Record a new current value for an objective",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID   string `path:"project_id"`
		ObjectiveID string `path:"objective_id"`
		Body        UpdateObjectiveRequest
	}) (*output[domain.ProjectVisionView], error) {
		view, err := e.UpdateObjective(ctx, input.ProjectID, actorFromRequest(ctx, ""), pathID(input.ObjectiveID), input.Body.CurrentValue)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(view), nil
	})
}

func registerBranches(api huma.API, e engine.Engine) {
	type branchPath struct {
		ProjectID string `path:"project_id"`
		BranchID  string `path:"branch_id"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "list-branches",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/branches",
		Summary:     "List branch visions",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*output[[]domain.BranchVisionView], error) {
		items, err := e.ListBranches(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(items), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "add-branch",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/branches",
		Summary:     "Admit a branch vision",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		RawBody   []byte `contentType:"application/json"`
	}) (*output[domain.BranchVisionView], error) {
		doc, err := visionfile.Decode[visionfile.BranchDoc](input.RawBody)
		if err != nil {
			return nil, handleError(err)
		}
		view, err := e.AddBranch(ctx, input.ProjectID, actorFromRequest(ctx, ""), doc)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(view), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-branch",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/branches/{branch_id}",
		Summary:     "Get a branch vision",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *branchPath) (*output[domain.BranchVisionView], error) {
		view, err := e.GetBranch(ctx, input.ProjectID, pathID(input.BranchID))
		if err != nil {
			return nil, handleError(err)
		}
		return respond(view), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-branch-alignment",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}/branches/{branch_id}/alignment",
		Summary:     "Set the branch's alignment with the project",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		BranchID  string `path:"branch_id"`
		Body      AlignmentRequest
	}) (*output[domain.BranchVisionView], error) {
		view, err := e.UpdateBranchAlignment(ctx, input.ProjectID, actorFromRequest(ctx, ""), pathID(input.BranchID), input.Body.Alignment)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(view), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "add-deliverable",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/branches/{branch_id}/deliverables",
		Summary:     "Add a deliverable (idempotent)",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		BranchID  string `path:"branch_id"`
		Body      DeliverableRequest
	}) (*output[domain.BranchVisionView], error) {
		view, err := e.AddDeliverable(ctx, input.ProjectID, actorFromRequest(ctx, ""), pathID(input.BranchID), input.Body.Deliverable)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(view), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-deliverable",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/branches/{branch_id}/deliverables/complete",
		Summary:     "Record completion of a deliverable",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		BranchID  string `path:"branch_id"`
		Body      DeliverableRequest
	}) (*output[domain.BranchVisionView], error) {
		view, err := e.CompleteDeliverable(ctx, input.ProjectID, actorFromRequest(ctx, ""), pathID(input.BranchID), input.Body.Deliverable)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(view), nil
	})
}

func registerTasks(api huma.API, e engine.Engine) {
	type taskPath struct {
		ProjectID string `path:"project_id"`
		TaskID    string `path:"task_id"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/tasks",
		Summary:     "List task alignments, highest priority first",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		BranchID  string `query:"branch_id"`
	}) (*output[[]domain.TaskAlignmentView], error) {
		items, err := e.ListTasks(ctx, input.ProjectID, input.BranchID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(items), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "add-task",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/tasks",
		Summary:     "Admit a task alignment",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		RawBody   []byte `contentType:"application/json"`
	}) (*output[domain.TaskAlignmentView], error) {
		doc, err := visionfile.Decode[visionfile.TaskDoc](input.RawBody)
		if err != nil {
			return nil, handleError(err)
		}
		view, err := e.AddTask(ctx, input.ProjectID, actorFromRequest(ctx, ""), doc)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(view), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/tasks/{task_id}",
		Summary:     "Get a task alignment with its priority score",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *taskPath) (*output[domain.TaskAlignmentView], error) {
		view, err := e.GetTask(ctx, input.ProjectID, pathID(input.TaskID))
		if err != nil {
			return nil, handleError(err)
		}
		return respond(view), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task-scores",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}/tasks/{task_id}/scores",
		Summary:     "Partially update task scores; all provided scores are checked first",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		TaskID    string `path:"task_id"`
		Body      domain.ScoreUpdate
	}) (*output[domain.TaskAlignmentView], error) {
		view, err := e.UpdateTaskScores(ctx, input.ProjectID, actorFromRequest(ctx, ""), pathID(input.TaskID), input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(view), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "add-task-outcome",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/tasks/{task_id}/outcomes",
		Summary:     "Append a measurable outcome",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		TaskID    string `path:"task_id"`
		Body      OutcomeRequest
	}) (*output[domain.TaskAlignmentView], error) {
		view, err := e.AddTaskOutcome(ctx, input.ProjectID, actorFromRequest(ctx, ""), pathID(input.TaskID), input.Body.toDomain())
		if err != nil {
			return nil, handleError(err)
		}
		return respond(view), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "validate-task",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/tasks/{task_id}/validate",
		Summary:     "Mark a task alignment as validated",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		TaskID    string `path:"task_id"`
		Body      ValidateTaskRequest
	}) (*output[domain.TaskAlignmentView], error) {
		view, err := e.ValidateTask(ctx, input.ProjectID, actorFromRequest(ctx, input.Body.Validator), pathID(input.TaskID))
		if err != nil {
			return nil, handleError(err)
		}
		return respond(view), nil
	})
}

func registerAudits(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "run-audit",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/audits",
		Summary:     "Validate the whole hierarchy and store the report",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*output[repo.VisionAudit], error) {
		audit, err := e.ValidateVision(ctx, input.ProjectID, actorFromRequest(ctx, ""))
		if err != nil {
			return nil, handleError(err)
		}
		return respond(audit), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-audits",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/audits",
		Summary:     "List stored audit reports, newest first",
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Limit     int    `query:"limit" default:"20"`
	}) (*output[[]repo.VisionAudit], error) {
		items, err := e.ListAudits(ctx, input.ProjectID, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []repo.VisionAudit{}
		}
		return respond(items), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-audit",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/audits/{audit_id}",
		Summary:     "Get a stored audit report",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		AuditID   string `path:"audit_id"`
	}) (*output[repo.VisionAudit], error) {
		audit, err := e.GetAudit(ctx, input.ProjectID, input.AuditID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(audit), nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		ProjectID  string `path:"project_id"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"project_vision,branch_vision,task_alignment"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*output[paginatedEvents], error) {
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, next, err := e.ListEvents(ctx, repo.EventFilter{
			ProjectID:  input.ProjectID,
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
		}, normalizeLimit(input.Limit), cursorID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if next > 0 {
			resp.NextCursor = strconv.FormatInt(next, 10)
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return respond(resp), nil
	})
}

func registerAlignment(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "score-alignment",
		Method:      http.MethodPost,
		Path:        "/alignment/score",
		Summary:     "Compute a weighted alignment score from its sub-scores",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body visionfile.AlignmentDoc
	}) (*output[engine.AlignmentScore], error) {
		score, err := engine.ScoreAlignment(input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(score), nil
	})
}
