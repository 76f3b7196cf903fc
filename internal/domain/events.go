package domain

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event type names as written to the event log.
const (
	EventObjectiveAdded         = "objective.added"
	EventObjectiveUpdated       = "objective.updated"
	EventBranchAlignmentUpdated = "branch.alignment.updated"
	EventDeliverableCompleted   = "deliverable.completed"
	EventVisionValidationFailed = "vision.validation.failed"
)

// Entity kinds used by events and validation reports.
const (
	EntityProjectVision = "project_vision"
	EntityBranchVision  = "branch_vision"
	EntityTaskAlignment = "task_alignment"
)

// Event is an immutable fact about a vision state transition.
type Event interface {
	EventID() string
	OccurredAt() time.Time
	EventType() string
	ProjectID() string
	EntityKind() string
	EntityID() string
	Payload() map[string]any
}

// EventMeta is the identity shared by every event.
type EventMeta struct {
	ID        string    `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`
}

func newEventMeta(now time.Time) EventMeta {
	return EventMeta{ID: uuid.NewString(), Timestamp: now.UTC()}
}

func (m EventMeta) EventID() string       { return m.ID }
func (m EventMeta) OccurredAt() time.Time { return m.Timestamp }

type ObjectiveAdded struct {
	EventMeta
	Project     string `json:"project_id"`
	ObjectiveID string `json:"objective_id"`
	Title       string `json:"title"`
}

func (e ObjectiveAdded) EventType() string  { return EventObjectiveAdded }
func (e ObjectiveAdded) ProjectID() string  { return e.Project }
func (e ObjectiveAdded) EntityKind() string { return EntityProjectVision }
func (e ObjectiveAdded) EntityID() string   { return e.Project }
func (e ObjectiveAdded) Payload() map[string]any {
	return map[string]any{"objective_id": e.ObjectiveID, "title": e.Title}
}

type ObjectiveUpdated struct {
	EventMeta
	Project     string  `json:"project_id"`
	ObjectiveID string  `json:"objective_id"`
	OldValue    float64 `json:"old_value"`
	NewValue    float64 `json:"new_value"`
}

func (e ObjectiveUpdated) EventType() string  { return EventObjectiveUpdated }
func (e ObjectiveUpdated) ProjectID() string  { return e.Project }
func (e ObjectiveUpdated) EntityKind() string { return EntityProjectVision }
func (e ObjectiveUpdated) EntityID() string   { return e.Project }
func (e ObjectiveUpdated) Payload() map[string]any {
	return map[string]any{"objective_id": e.ObjectiveID, "old_value": e.OldValue, "new_value": e.NewValue}
}

type BranchAlignmentUpdated struct {
	EventMeta
	Project      string  `json:"project_id"`
	BranchID     string  `json:"branch_id"`
	OldAlignment float64 `json:"old_alignment"`
	NewAlignment float64 `json:"new_alignment"`
}

func (e BranchAlignmentUpdated) EventType() string  { return EventBranchAlignmentUpdated }
func (e BranchAlignmentUpdated) ProjectID() string  { return e.Project }
func (e BranchAlignmentUpdated) EntityKind() string { return EntityBranchVision }
func (e BranchAlignmentUpdated) EntityID() string   { return e.BranchID }
func (e BranchAlignmentUpdated) Payload() map[string]any {
	return map[string]any{"old_alignment": e.OldAlignment, "new_alignment": e.NewAlignment}
}

type DeliverableCompleted struct {
	EventMeta
	Project     string `json:"project_id"`
	BranchID    string `json:"branch_id"`
	Deliverable string `json:"deliverable"`
}

func (e DeliverableCompleted) EventType() string  { return EventDeliverableCompleted }
func (e DeliverableCompleted) ProjectID() string  { return e.Project }
func (e DeliverableCompleted) EntityKind() string { return EntityBranchVision }
func (e DeliverableCompleted) EntityID() string   { return e.BranchID }
func (e DeliverableCompleted) Payload() map[string]any {
	return map[string]any{"deliverable": e.Deliverable}
}

type VisionValidationFailed struct {
	EventMeta
	Project          string   `json:"project_id"`
	EntityType       string   `json:"entity_type"`
	FailedEntityID   string   `json:"entity_id"`
	ValidationErrors []string `json:"validation_errors"`
}

func (e VisionValidationFailed) EventType() string  { return EventVisionValidationFailed }
func (e VisionValidationFailed) ProjectID() string  { return e.Project }
func (e VisionValidationFailed) EntityKind() string { return e.EntityType }
func (e VisionValidationFailed) EntityID() string   { return e.FailedEntityID }
func (e VisionValidationFailed) Payload() map[string]any {
	return map[string]any{"validation_errors": append([]string(nil), e.ValidationErrors...)}
}

// eventRecorder accumulates events raised by an entity until they are pulled.
type eventRecorder struct {
	pending []Event
}

func (r *eventRecorder) record(e Event) {
	r.pending = append(r.pending, e)
}

func (r *eventRecorder) peek() []Event {
	return append([]Event(nil), r.pending...)
}

func (r *eventRecorder) drain() []Event {
	out := r.pending
	r.pending = nil
	return out
}

// eventBuffer is the mutex-guarded outbound queue owned by an aggregate.
type eventBuffer struct {
	mu      sync.Mutex
	pending []Event
}

func (b *eventBuffer) append(evts ...Event) {
	if len(evts) == 0 {
		return
	}
	b.mu.Lock()
	b.pending = append(b.pending, evts...)
	b.mu.Unlock()
}

func (b *eventBuffer) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *eventBuffer) drain() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.pending
	b.pending = nil
	return out
}
