package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolcrib/internal/apperr"
	"toolcrib/internal/db"
	"toolcrib/internal/models"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestAdminCommands(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CONFIG_FILE", "")
	dsn := filepath.Join(t.TempDir(), "toolcrib.db")
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("DATABASE_DSN", dsn)
	t.Setenv("LOGS_LEVEL", "error")

	_, err := run(t, "migrate")
	require.NoError(t, err)

	out, err := run(t, "user", "add", "--json", "--username", "sup", "--password", "pw", "--role", "supervisor", "--full-name", "S. Upervisor")
	require.NoError(t, err)
	var u models.User
	require.NoError(t, json.Unmarshal([]byte(out), &u))
	assert.Equal(t, models.RoleSupervisor, u.Role)

	_, err = run(t, "user", "add", "--json=false", "--username", "x", "--password", "pw", "--role", "janitor")
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	out, err = run(t, "tool", "add", "--json", "--name", "Caliper", "--quantity", "2", "--attr", "least_count=0.02")
	require.NoError(t, err)
	var tool models.Tool
	require.NoError(t, json.Unmarshal([]byte(out), &tool))
	require.NotZero(t, tool.ID)

	out, err = run(t, "tool", "restock", "--json=false", "--id", "1", "--delta", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "Caliper now has 5")

	_, err = run(t, "tool", "restock", "--id", "1", "--delta", "0")
	assert.ErrorIs(t, err, apperr.ErrInvalidQuantity)

	d, err := db.Open(db.Options{Driver: "sqlite", DSN: dsn})
	require.NoError(t, err)
	defer closeDB(d)
	var stored models.Tool
	require.NoError(t, d.First(&stored, tool.ID).Error)
	assert.Equal(t, 5, stored.Quantity)
	assert.Equal(t, "0.02", stored.Attributes["least_count"])
}

func TestAdminCommands_NeedDatabase(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("DATABASE_DRIVER", "")
	t.Setenv("LOGS_LEVEL", "error")

	_, err := run(t, "migrate")
	assert.ErrorContains(t, err, "needs a database")
}
