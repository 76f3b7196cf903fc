package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"visionline/internal/domain"
)

const (
	AuditPassed = "passed"
	AuditFailed = "failed"
)

// VisionAudit is a persisted run of VisionAggregate.Audit.
type VisionAudit struct {
	ID        string              `json:"id"`
	ProjectID string              `json:"project_id"`
	Status    string              `json:"status"`
	Issues    []domain.AuditEntry `json:"issues"`
	Health    map[string]float64  `json:"health"`
	CreatedBy string              `json:"created_by"`
	CreatedAt string              `json:"created_at"`
}

func (r Repo) CreateAuditTx(ctx context.Context, tx *sql.Tx, a VisionAudit) (VisionAudit, error) {
	if a.Issues == nil {
		a.Issues = []domain.AuditEntry{}
	}
	issues, err := json.Marshal(a.Issues)
	if err != nil {
		return VisionAudit{}, err
	}
	health, err := json.Marshal(a.Health)
	if err != nil {
		return VisionAudit{}, err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO vision_audits(id,project_id,status,issues_json,health_json,created_by,created_at) VALUES (?,?,?,?,?,?,?)`,
		a.ID, a.ProjectID, a.Status, string(issues), string(health), a.CreatedBy, a.CreatedAt)
	if err != nil {
		return VisionAudit{}, err
	}
	return a, nil
}

const auditColumns = `id,project_id,status,issues_json,health_json,created_by,created_at`

func scanAudit(scan func(dest ...any) error) (VisionAudit, error) {
	var a VisionAudit
	var issuesJSON, healthJSON string
	if err := scan(&a.ID, &a.ProjectID, &a.Status, &issuesJSON, &healthJSON, &a.CreatedBy, &a.CreatedAt); err != nil {
		return a, err
	}
	if err := json.Unmarshal([]byte(issuesJSON), &a.Issues); err != nil {
		return a, fmt.Errorf("decode audit issues: %w", err)
	}
	if err := json.Unmarshal([]byte(healthJSON), &a.Health); err != nil {
		return a, fmt.Errorf("decode audit health: %w", err)
	}
	return a, nil
}

func (r Repo) GetAudit(ctx context.Context, id string) (VisionAudit, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+auditColumns+` FROM vision_audits WHERE id=?`, id)
	a, err := scanAudit(row.Scan)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	return a, err
}

// ListAudits returns the audits of a project, newest first.
func (r Repo) ListAudits(ctx context.Context, projectID string, limit int) ([]VisionAudit, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+auditColumns+` FROM vision_audits WHERE project_id=? ORDER BY created_at DESC, id DESC LIMIT ?`, projectID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []VisionAudit
	for rows.Next() {
		a, err := scanAudit(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}
