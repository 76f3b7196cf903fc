package events

import (
	"context"
	"encoding/json"
	"strings"

	"visionline/internal/repo"
)

// Publisher delivers logged events to one external consumer.
type Publisher interface {
	// Name identifies the publisher's cursor; it must be stable across restarts.
	Name() string
	Publish(ctx context.Context, evt repo.EventRecord) error
	Close()
}

// Envelope is the wire form shared by every publisher.
type Envelope struct {
	ID         int64           `json:"id"`
	EventID    string          `json:"event_id"`
	Type       string          `json:"type"`
	ProjectID  string          `json:"project_id"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	ActorID    string          `json:"actor_id"`
	TS         string          `json:"ts"`
	Payload    json.RawMessage `json:"payload"`
	PayloadRaw string          `json:"payload_raw,omitempty"`
}

func NewEnvelope(evt repo.EventRecord) Envelope {
	payload := json.RawMessage("{}")
	var raw string
	if evt.Payload != "" {
		if json.Valid([]byte(evt.Payload)) {
			payload = json.RawMessage(evt.Payload)
		} else {
			raw = evt.Payload
		}
	}
	return Envelope{
		ID:         evt.ID,
		EventID:    evt.EventID,
		Type:       evt.Type,
		ProjectID:  evt.ProjectID,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
		TS:         evt.TS,
		Payload:    payload,
		PayloadRaw: raw,
	}
}

type eventFilter struct {
	all bool
	set map[string]struct{}
}

func newEventFilter(events []string) eventFilter {
	set := make(map[string]struct{}, len(events))
	for _, evt := range events {
		if key := strings.TrimSpace(evt); key != "" {
			set[key] = struct{}{}
		}
	}
	if len(set) == 0 {
		return eventFilter{all: true}
	}
	return eventFilter{set: set}
}

func (f eventFilter) match(evt string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[evt]
	return ok
}
