package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Project is the registry row that owns one vision hierarchy.
type Project struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	CreatedBy string `json:"created_by"`
	CreatedAt string `json:"created_at"`
}

func scanProject(row *sql.Row) (Project, error) {
	var p Project
	var name sql.NullString
	err := row.Scan(&p.ID, &name, &p.CreatedBy, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if name.Valid {
		p.Name = name.String
	}
	return p, err
}

func (r Repo) InsertProjectTx(ctx context.Context, tx *sql.Tx, p Project) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO projects(id,name,created_by,created_at) VALUES (?,?,?,?)`,
		p.ID, nullable(p.Name), p.CreatedBy, p.CreatedAt)
	return err
}

func (r Repo) GetProject(ctx context.Context, id string) (Project, error) {
	return getProject(ctx, r.DB, id)
}

func (r Repo) GetProjectTx(ctx context.Context, tx *sql.Tx, id string) (Project, error) {
	return getProject(ctx, tx, id)
}

func getProject(ctx context.Context, q querier, id string) (Project, error) {
	return scanProject(q.QueryRowContext(ctx, `SELECT id,name,created_by,created_at FROM projects WHERE id=?`, id))
}

// SingleProject returns the only project in the workspace.
func (r Repo) SingleProject(ctx context.Context) (Project, error) {
	projects, err := r.ListProjects(ctx)
	if err != nil {
		return Project{}, err
	}
	if len(projects) == 0 {
		return Project{}, ErrNotFound
	}
	if len(projects) > 1 {
		return Project{}, fmt.Errorf("multiple projects exist; specify --project")
	}
	return projects[0], nil
}

func (r Repo) ListProjects(ctx context.Context) ([]Project, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,COALESCE(name,''),created_by,created_at FROM projects ORDER BY created_at DESC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Name, &p.CreatedBy, &p.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) DeleteProject(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM projects WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
