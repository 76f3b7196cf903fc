package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// EventRecord is one row of the append-only event log.
type EventRecord struct {
	ID         int64  `json:"id"`
	EventID    string `json:"event_id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload"`
}

type EventFilter struct {
	ProjectID  string
	Type       string
	EntityKind string
	EntityID   string
}

const eventColumns = `id,event_id,ts,type,project_id,entity_kind,COALESCE(entity_id,''),actor_id,payload_json`

func scanEvents(rows *sql.Rows) ([]EventRecord, error) {
	defer rows.Close()
	var res []EventRecord
	for rows.Next() {
		var e EventRecord
		if err := rows.Scan(&e.ID, &e.EventID, &e.TS, &e.Type, &e.ProjectID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestEvents lists events newest first. A non-zero cursor returns events
// strictly older than it.
func (r Repo) LatestEvents(ctx context.Context, f EventFilter, limit int, cursor int64) ([]EventRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	clauses := []string{"1=1"}
	var args []any
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.EntityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, f.EntityKind)
	}
	if f.EntityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, f.EntityID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, cursor)
	}
	query := fmt.Sprintf(`SELECT %s FROM events WHERE %s ORDER BY id DESC LIMIT ?`, eventColumns, strings.Join(clauses, " AND "))
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// EventsAfter lists events with id greater than cursor in log order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64, projectID string) ([]EventRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"id>?"}
	args := []any{cursor}
	if projectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, projectID)
	}
	query := fmt.Sprintf(`SELECT %s FROM events WHERE %s ORDER BY id ASC LIMIT ?`, eventColumns, strings.Join(clauses, " AND "))
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

func (r Repo) LatestEventID(ctx context.Context, projectID string) (int64, error) {
	var id sql.NullInt64
	query := `SELECT MAX(id) FROM events`
	var args []any
	if projectID != "" {
		query += ` WHERE project_id=?`
		args = append(args, projectID)
	}
	if err := r.DB.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}
	return id.Int64, nil
}

// Cursor returns the last event id handed to a consumer.
func (r Repo) Cursor(ctx context.Context, consumer string) (int64, error) {
	var id int64
	err := r.DB.QueryRowContext(ctx, `SELECT last_event_id FROM publish_cursors WHERE consumer=?`, consumer).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	return id, err
}

func (r Repo) SetCursor(ctx context.Context, consumer string, eventID int64, now time.Time) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO publish_cursors(consumer,last_event_id,updated_at) VALUES (?,?,?)
ON CONFLICT(consumer) DO UPDATE SET last_event_id=excluded.last_event_id, updated_at=excluded.updated_at`,
		consumer, eventID, ts(now))
	return err
}
