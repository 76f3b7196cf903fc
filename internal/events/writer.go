package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"visionline/internal/domain"
)

// Writer appends rows to the event log inside the caller's transaction.
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Append writes an event that did not originate from a domain entity.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, projectID, entityKind, entityID, actorID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	return insert(ctx, tx, uuid.NewString(), w.Now(), evtType, projectID, entityKind, entityID, actorID, payload)
}

// AppendDomain writes a domain event, keeping its id and timestamp.
func (w Writer) AppendDomain(ctx context.Context, tx *sql.Tx, actorID string, evt domain.Event) error {
	return insert(ctx, tx, evt.EventID(), evt.OccurredAt(), evt.EventType(), evt.ProjectID(), evt.EntityKind(), evt.EntityID(), actorID, evt.Payload())
}

func insert(ctx context.Context, tx *sql.Tx, eventID string, at time.Time, evtType, projectID, entityKind, entityID, actorID string, payload map[string]any) error {
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(event_id,ts,type,project_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?,?)`,
		eventID, at.UTC().Format(time.RFC3339Nano), evtType, projectID, entityKind, nullable(entityID), actorID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
