package visionlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Visionline HTTP API client.
type Client struct {
	BaseURL    string
	ProjectID  string
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, projectID string) *Client {
	return &Client{
		BaseURL:   baseURL,
		ProjectID: projectID,
		Timeout:   10 * time.Second,
	}
}

type Objective struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Progress    float64   `json:"progress"`
	Deadline    time.Time `json:"deadline"`
}

type AtRiskObjective struct {
	Objective
	TargetMetric  string  `json:"target_metric,omitempty"`
	CurrentValue  float64 `json:"current_value"`
	TargetValue   float64 `json:"target_value"`
	DaysRemaining int     `json:"days_remaining"`
	Overdue       bool    `json:"overdue"`
}

type Vision struct {
	ProjectID               string      `json:"project_id"`
	Version                 int         `json:"version"`
	Objectives              []Objective `json:"objectives"`
	TargetAudience          string      `json:"target_audience"`
	KeyFeatures             []string    `json:"key_features"`
	UniqueValueProposition  string      `json:"unique_value_proposition"`
	CompetitiveAdvantages   []string    `json:"competitive_advantages"`
	StrategicAlignmentScore float64     `json:"strategic_alignment_score"`
	InnovationPriorities    []string    `json:"innovation_priorities"`
	OverallProgress         float64     `json:"overall_progress"`
	CreatedAt               time.Time   `json:"created_at"`
	UpdatedAt               time.Time   `json:"updated_at"`
}

type Branch struct {
	BranchID                string   `json:"branch_id"`
	ProjectID               string   `json:"project_id"`
	Version                 int      `json:"version"`
	BranchObjectives        []string `json:"branch_objectives"`
	Deliverables            []string `json:"branch_deliverables"`
	AlignmentWithProject    float64  `json:"alignment_with_project"`
	ContributesToObjectives []string `json:"contributes_to_objectives"`
}

type Task struct {
	TaskID                  string    `json:"task_id"`
	BranchID                string    `json:"branch_id"`
	Version                 int       `json:"version"`
	ContributesToObjectives []string  `json:"contributes_to_objectives"`
	BusinessValue           float64   `json:"business_value"`
	UserImpact              float64   `json:"user_impact"`
	InnovationScore         float64   `json:"innovation_score"`
	TechnicalDebtImpact     float64   `json:"technical_debt_impact"`
	StrategicImportance     string    `json:"strategic_importance"`
	UrgencyFactor           float64   `json:"urgency_factor"`
	PriorityScore           float64   `json:"priority_score"`
	MeasurableOutcomes      int       `json:"measurable_outcomes"`
	ValidatedBy             string    `json:"validated_by,omitempty"`
	UpdatedAt               time.Time `json:"updated_at"`
}

// ScoreUpdate changes only the scores that are set.
type ScoreUpdate struct {
	BusinessValue   *float64 `json:"business_value,omitempty"`
	UserImpact      *float64 `json:"user_impact,omitempty"`
	InnovationScore *float64 `json:"innovation_score,omitempty"`
}

type AuditEntry struct {
	EntityKind string   `json:"entity_kind"`
	EntityID   string   `json:"entity_id"`
	Violations []string `json:"violations"`
}

type Audit struct {
	ID        string             `json:"id"`
	ProjectID string             `json:"project_id"`
	Status    string             `json:"status"`
	Issues    []AuditEntry       `json:"issues"`
	Health    map[string]float64 `json:"health"`
	CreatedBy string             `json:"created_by"`
	CreatedAt string             `json:"created_at"`
}

type Event struct {
	ID         int64          `json:"id"`
	EventID    string         `json:"event_id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	ProjectID  string         `json:"project_id"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor,omitempty"`
}

type ImportResult struct {
	Branches []string `json:"branches"`
	Tasks    []string `json:"tasks"`
}

// Alignment carries the five sub-scores; nil innovation and risk default server-side.
type Alignment struct {
	Objective  float64  `json:"objective_alignment"`
	Strategic  float64  `json:"strategic_alignment"`
	Value      float64  `json:"value_alignment"`
	Innovation *float64 `json:"innovation_alignment,omitempty"`
	Risk       *float64 `json:"risk_alignment,omitempty"`
}

type AlignmentScore struct {
	Overall          float64  `json:"overall"`
	Level            string   `json:"level"`
	Aligned          bool     `json:"aligned"`
	ImprovementAreas []string `json:"improvement_areas"`
}

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Violations []string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateVision registers the client's project from a YAML or JSON vision document.
func (c *Client) CreateVision(ctx context.Context, name string, document []byte) (Vision, error) {
	endpoint := c.projectPath("vision")
	if name != "" {
		endpoint += "?name=" + url.QueryEscape(name)
	}
	var resp Vision
	err := c.doRaw(ctx, http.MethodPost, endpoint, document, &resp)
	return resp, err
}

func (c *Client) GetVision(ctx context.Context) (Vision, error) {
	var resp Vision
	err := c.do(ctx, http.MethodGet, c.projectPath("vision"), nil, &resp)
	return resp, err
}

// ApproveVision approves the vision; an empty approver falls back to ActorID.
func (c *Client) ApproveVision(ctx context.Context, approver string) (Vision, error) {
	var resp Vision
	body := map[string]any{}
	if approver != "" {
		body["approver"] = approver
	}
	err := c.do(ctx, http.MethodPost, c.projectPath("vision/approve"), body, &resp)
	return resp, err
}

// Import admits the branches and tasks of a vision document.
func (c *Client) Import(ctx context.Context, document []byte) (ImportResult, error) {
	var resp ImportResult
	err := c.doRaw(ctx, http.MethodPost, c.projectPath("import"), document, &resp)
	return resp, err
}

func (c *Client) Health(ctx context.Context) (map[string]float64, error) {
	var resp map[string]float64
	err := c.do(ctx, http.MethodGet, c.projectPath("health"), nil, &resp)
	return resp, err
}

func (c *Client) AtRisk(ctx context.Context) ([]AtRiskObjective, error) {
	var resp []AtRiskObjective
	err := c.do(ctx, http.MethodGet, c.projectPath("objectives/at-risk"), nil, &resp)
	return resp, err
}

func (c *Client) UpdateObjective(ctx context.Context, objectiveID string, currentValue float64) (Vision, error) {
	var resp Vision
	endpoint := c.projectPath("objectives/" + url.PathEscape(objectiveID))
	err := c.do(ctx, http.MethodPatch, endpoint, map[string]any{"current_value": currentValue}, &resp)
	return resp, err
}

// AddBranch submits a branch vision document (YAML or JSON).
func (c *Client) AddBranch(ctx context.Context, document []byte) (Branch, error) {
	var resp Branch
	err := c.doRaw(ctx, http.MethodPost, c.projectPath("branches"), document, &resp)
	return resp, err
}

func (c *Client) GetBranch(ctx context.Context, branchID string) (Branch, error) {
	var resp Branch
	err := c.do(ctx, http.MethodGet, c.projectPath("branches/"+url.PathEscape(branchID)), nil, &resp)
	return resp, err
}

func (c *Client) ListBranches(ctx context.Context) ([]Branch, error) {
	var resp []Branch
	err := c.do(ctx, http.MethodGet, c.projectPath("branches"), nil, &resp)
	return resp, err
}

// AddTask submits a task alignment document (YAML or JSON).
func (c *Client) AddTask(ctx context.Context, document []byte) (Task, error) {
	var resp Task
	err := c.doRaw(ctx, http.MethodPost, c.projectPath("tasks"), document, &resp)
	return resp, err
}

func (c *Client) GetTask(ctx context.Context, taskID string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodGet, c.projectPath("tasks/"+url.PathEscape(taskID)), nil, &resp)
	return resp, err
}

// ListTasks returns tasks by descending priority, optionally for one branch.
func (c *Client) ListTasks(ctx context.Context, branchID string) ([]Task, error) {
	endpoint := c.projectPath("tasks")
	if branchID != "" {
		endpoint += "?branch_id=" + url.QueryEscape(branchID)
	}
	var resp []Task
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) UpdateTaskScores(ctx context.Context, taskID string, update ScoreUpdate) (Task, error) {
	var resp Task
	endpoint := c.projectPath(fmt.Sprintf("tasks/%s/scores", url.PathEscape(taskID)))
	err := c.do(ctx, http.MethodPatch, endpoint, update, &resp)
	return resp, err
}

// RunAudit validates the whole hierarchy and returns the stored report.
func (c *Client) RunAudit(ctx context.Context) (Audit, error) {
	var resp Audit
	err := c.do(ctx, http.MethodPost, c.projectPath("audits"), nil, &resp)
	return resp, err
}

func (c *Client) GetAudit(ctx context.Context, auditID string) (Audit, error) {
	var resp Audit
	err := c.do(ctx, http.MethodGet, c.projectPath("audits/"+url.PathEscape(auditID)), nil, &resp)
	return resp, err
}

// ListAudits returns stored audits, newest first.
func (c *Client) ListAudits(ctx context.Context) ([]Audit, error) {
	var resp []Audit
	err := c.do(ctx, http.MethodGet, c.projectPath("audits"), nil, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context) ([]Event, error) {
	resp, err := c.EventsPage(ctx, 0, "")
	return resp.Items, err
}

// EventsPage returns a page of events with an optional cursor.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := c.projectPath("events")
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// ScoreAlignment asks the server to weigh a set of sub-scores.
func (c *Client) ScoreAlignment(ctx context.Context, a Alignment) (AlignmentScore, error) {
	var resp AlignmentScore
	err := c.do(ctx, http.MethodPost, "v0/alignment/score", a, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	var buf []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		buf = b
	}
	return c.doRaw(ctx, method, endpoint, buf, out)
}

func (c *Client) doRaw(ctx context.Context, method, endpoint string, body []byte, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.ActorID != "" {
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	b, _ := io.ReadAll(resp.Body)
	apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
			Details struct {
				Violations []string `json:"violations"`
			} `json:"details"`
		} `json:"error"`
	}
	if json.Unmarshal(b, &envelope) == nil {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
		apiErr.Violations = envelope.Error.Details.Violations
	}
	return apiErr
}

func (c *Client) projectPath(p string) string {
	project := url.PathEscape(c.ProjectID)
	return fmt.Sprintf("v0/projects/%s/%s", project, strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
