package app

import (
	"context"
	"errors"
	"fmt"

	"visionline/internal/config"
	"visionline/internal/repo"
)

var ErrNoProject = errors.New("project not specified; use --project or set project.id in visionline.yml")

// ResolveProject picks the active project id. It prefers the explicit
// override, then the configured project, then the only project in the DB.
func ResolveProject(ctx context.Context, override string, cfg *config.Config, r repo.Repo) (string, error) {
	if override != "" {
		return override, nil
	}
	if cfg != nil && cfg.Project.ID != "" {
		return cfg.Project.ID, nil
	}
	p, err := r.SingleProject(ctx)
	if err == nil {
		return p.ID, nil
	}
	if errors.Is(err, repo.ErrNotFound) {
		return "", ErrNoProject
	}
	return "", fmt.Errorf("resolve project: %w", err)
}

// LoadConfig reads visionline.yml from the workspace, falling back to
// defaults for projectID when the file is absent.
func LoadConfig(workspace, projectID string) (*config.Config, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default(projectID)
	}
	if projectID != "" {
		cfg.Project.ID = projectID
	}
	return cfg, nil
}
