package server

import (
	"encoding/json"
	"time"

	"visionline/internal/domain"
	"visionline/internal/repo"
)

// Request payloads

type ApproveRequest struct {
	Approver string `json:"approver,omitempty" doc:"Defaults to the X-Actor-Id header"`
}

type UpdateObjectiveRequest struct {
	CurrentValue float64 `json:"current_value" minimum:"0"`
}

type AlignmentRequest struct {
	Alignment float64 `json:"alignment"`
}

type DeliverableRequest struct {
	Deliverable string `json:"deliverable"`
}

type ValidateTaskRequest struct {
	Validator string `json:"validator,omitempty" doc:"Defaults to the X-Actor-Id header"`
}

type OutcomeRequest struct {
	Description     string     `json:"description"`
	MetricName      string     `json:"metric_name"`
	BaselineValue   float64    `json:"baseline_value,omitempty"`
	TargetValue     float64    `json:"target_value"`
	MeasurementDate *time.Time `json:"measurement_date,omitempty"`
}

func (r OutcomeRequest) toDomain() domain.MeasurableOutcome {
	o := domain.MeasurableOutcome{
		Description:   r.Description,
		MetricName:    r.MetricName,
		BaselineValue: r.BaselineValue,
		TargetValue:   r.TargetValue,
	}
	if r.MeasurementDate != nil {
		o.MeasurementDate = r.MeasurementDate.UTC()
	}
	return o
}

// Responses

type ObjectiveResponse struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	TargetMetric  string    `json:"target_metric,omitempty"`
	CurrentValue  float64   `json:"current_value"`
	TargetValue   float64   `json:"target_value"`
	Progress      float64   `json:"progress"`
	Deadline      time.Time `json:"deadline"`
	DaysRemaining int       `json:"days_remaining"`
	Overdue       bool      `json:"overdue"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	EventID    string         `json:"event_id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	ProjectID  string         `json:"project_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Conversion helpers

func objectiveResponse(o domain.VisionObjective, clock func() time.Time) ObjectiveResponse {
	now := time.Now()
	if clock != nil {
		now = clock()
	}
	return ObjectiveResponse{
		ID:            o.ID,
		Title:         o.Title,
		TargetMetric:  o.TargetMetric,
		CurrentValue:  o.CurrentValue,
		TargetValue:   o.TargetValue,
		Progress:      o.Progress(),
		Deadline:      o.Deadline,
		DaysRemaining: o.DaysRemaining(now),
		Overdue:       o.IsOverdue(now),
	}
}

func objectiveResponses(items []domain.VisionObjective, clock func() time.Time) []ObjectiveResponse {
	out := make([]ObjectiveResponse, 0, len(items))
	for _, o := range items {
		out = append(out, objectiveResponse(o, clock))
	}
	return out
}

func eventResponse(e repo.EventRecord) EventResponse {
	return EventResponse{
		ID:         e.ID,
		EventID:    e.EventID,
		TS:         e.TS,
		Type:       e.Type,
		ProjectID:  e.ProjectID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil || obj == nil {
		return map[string]any{}
	}
	return obj
}
