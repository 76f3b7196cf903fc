package app

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visionline/internal/config"
	"visionline/internal/db"
	"visionline/internal/migrate"
	"visionline/internal/repo"
)

func newRepo(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	return repo.Repo{DB: conn}
}

func insertProject(t *testing.T, r repo.Repo, id string) {
	t.Helper()
	ctx := context.Background()
	tx, err := r.DB.BeginTx(ctx, nil)
	require.NoError(t, err)
	defer tx.Rollback()
	require.NoError(t, r.InsertProjectTx(ctx, tx, repo.Project{ID: id, CreatedBy: "tester", CreatedAt: time.Now().UTC().Format(time.RFC3339)}))
	require.NoError(t, tx.Commit())
}

func TestResolveProjectPrecedence(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t)

	_, err := ResolveProject(ctx, "", nil, r)
	assert.ErrorIs(t, err, ErrNoProject)

	insertProject(t, r, "from-db")
	id, err := ResolveProject(ctx, "", nil, r)
	require.NoError(t, err)
	assert.Equal(t, "from-db", id)

	id, err = ResolveProject(ctx, "", config.Default("from-config"), r)
	require.NoError(t, err)
	assert.Equal(t, "from-config", id)

	id, err = ResolveProject(ctx, "flag", config.Default("from-config"), r)
	require.NoError(t, err)
	assert.Equal(t, "flag", id)

	insertProject(t, r, "second")
	_, err = ResolveProject(ctx, "", nil, r)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoProject)
}

func TestLoadConfigFallsBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadConfig(dir, "proj-1")
	require.NoError(t, err)
	assert.Equal(t, "proj-1", cfg.Project.ID)
	assert.Equal(t, config.DefaultServerAddr, cfg.Server.Addr)

	require.NoError(t, os.WriteFile(config.Path(dir), []byte(config.GenerateDefault("proj-2")), 0o644))
	cfg, err = LoadConfig(dir, "")
	require.NoError(t, err)
	assert.Equal(t, "proj-2", cfg.Project.ID)
}
