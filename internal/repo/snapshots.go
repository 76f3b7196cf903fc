package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"visionline/internal/domain"
)

func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func (r Repo) UpsertProjectVisionTx(ctx context.Context, tx *sql.Tx, v *domain.ProjectVision) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal project vision: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO project_visions(project_id,version,snapshot_json,approved_by,created_at,updated_at) VALUES (?,?,?,?,?,?)
ON CONFLICT(project_id) DO UPDATE SET version=excluded.version, snapshot_json=excluded.snapshot_json, approved_by=excluded.approved_by, updated_at=excluded.updated_at`,
		v.ProjectID, v.Version, string(data), nullable(v.ApprovedBy), ts(v.CreatedAt), ts(v.UpdatedAt))
	return err
}

func (r Repo) GetProjectVision(ctx context.Context, projectID string) (*domain.ProjectVision, error) {
	return getProjectVision(ctx, r.DB, projectID)
}

func getProjectVision(ctx context.Context, q querier, projectID string) (*domain.ProjectVision, error) {
	var payload string
	err := q.QueryRowContext(ctx, `SELECT snapshot_json FROM project_visions WHERE project_id=?`, projectID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var v domain.ProjectVision
	if err := json.Unmarshal([]byte(payload), &v); err != nil {
		return nil, fmt.Errorf("decode project vision %s: %w", projectID, err)
	}
	return &v, nil
}

func (r Repo) UpsertBranchVisionTx(ctx context.Context, tx *sql.Tx, b *domain.BranchVision) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal branch vision: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO branch_visions(project_id,branch_id,version,alignment,snapshot_json,created_at,updated_at) VALUES (?,?,?,?,?,?,?)
ON CONFLICT(project_id,branch_id) DO UPDATE SET version=excluded.version, alignment=excluded.alignment, snapshot_json=excluded.snapshot_json, updated_at=excluded.updated_at`,
		b.ProjectID, b.BranchID, b.Version, b.AlignmentWithProject, string(data), ts(b.CreatedAt), ts(b.UpdatedAt))
	return err
}

func listBranchVisions(ctx context.Context, q querier, projectID string) ([]*domain.BranchVision, error) {
	rows, err := q.QueryContext(ctx, `SELECT snapshot_json FROM branch_visions WHERE project_id=? ORDER BY branch_id ASC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []*domain.BranchVision
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var b domain.BranchVision
		if err := json.Unmarshal([]byte(payload), &b); err != nil {
			return nil, fmt.Errorf("decode branch vision: %w", err)
		}
		res = append(res, &b)
	}
	return res, rows.Err()
}

func (r Repo) UpsertTaskAlignmentTx(ctx context.Context, tx *sql.Tx, projectID string, t *domain.TaskVisionAlignment) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal task alignment: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO task_alignments(project_id,task_id,branch_id,version,priority_score,snapshot_json,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?)
ON CONFLICT(project_id,task_id) DO UPDATE SET version=excluded.version, priority_score=excluded.priority_score, snapshot_json=excluded.snapshot_json, updated_at=excluded.updated_at`,
		projectID, t.TaskID, t.BranchID, t.Version, t.PriorityScore(), string(data), ts(t.CreatedAt), ts(t.UpdatedAt))
	return err
}

func listTaskAlignments(ctx context.Context, q querier, projectID string) ([]*domain.TaskVisionAlignment, error) {
	rows, err := q.QueryContext(ctx, `SELECT snapshot_json FROM task_alignments WHERE project_id=? ORDER BY priority_score DESC, task_id ASC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []*domain.TaskVisionAlignment
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var t domain.TaskVisionAlignment
		if err := json.Unmarshal([]byte(payload), &t); err != nil {
			return nil, fmt.Errorf("decode task alignment: %w", err)
		}
		res = append(res, &t)
	}
	return res, rows.Err()
}

// LoadAggregateTx rebuilds the aggregate of a registered project. A project
// without a vision yields an empty aggregate.
func (r Repo) LoadAggregateTx(ctx context.Context, tx *sql.Tx, projectID string, now func() time.Time) (*domain.VisionAggregate, error) {
	if _, err := getProject(ctx, tx, projectID); err != nil {
		return nil, err
	}
	project, err := getProjectVision(ctx, tx, projectID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	branches, err := listBranchVisions(ctx, tx, projectID)
	if err != nil {
		return nil, err
	}
	tasks, err := listTaskAlignments(ctx, tx, projectID)
	if err != nil {
		return nil, err
	}
	return domain.RestoreAggregate(projectID, project, branches, tasks, now), nil
}

// SaveAggregateTx writes a snapshot of every entity in the aggregate.
func (r Repo) SaveAggregateTx(ctx context.Context, tx *sql.Tx, agg *domain.VisionAggregate) error {
	if p := agg.Project(); p != nil {
		if err := r.UpsertProjectVisionTx(ctx, tx, p); err != nil {
			return fmt.Errorf("save project vision: %w", err)
		}
	}
	for _, b := range agg.Branches() {
		if err := r.UpsertBranchVisionTx(ctx, tx, b); err != nil {
			return fmt.Errorf("save branch vision %s: %w", b.BranchID, err)
		}
	}
	for _, t := range agg.Tasks() {
		if err := r.UpsertTaskAlignmentTx(ctx, tx, agg.ProjectID(), t); err != nil {
			return fmt.Errorf("save task alignment %s: %w", t.TaskID, err)
		}
	}
	return nil
}
