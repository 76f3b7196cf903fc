package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenPragmas(t *testing.T) {
	workspace := t.TempDir()
	conn, err := Open(Config{Workspace: workspace})
	require.NoError(t, err)
	defer conn.Close()

	var fk, busy int
	require.NoError(t, conn.QueryRow("PRAGMA foreign_keys").Scan(&fk))
	require.NoError(t, conn.QueryRow("PRAGMA busy_timeout").Scan(&busy))
	assert.Equal(t, 1, fk)
	assert.Equal(t, 5000, busy)
	assert.FileExists(t, Path(workspace))
}

func TestOpenCustomBusyTimeout(t *testing.T) {
	conn, err := Open(Config{Workspace: t.TempDir(), BusyTimeout: 250 * time.Millisecond})
	require.NoError(t, err)
	defer conn.Close()

	var busy int
	require.NoError(t, conn.QueryRow("PRAGMA busy_timeout").Scan(&busy))
	assert.Equal(t, 250, busy)
}
