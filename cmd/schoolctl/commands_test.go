package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academy-admin-api/internal/app"
)

func stubContainer(t *testing.T) *int {
	t.Helper()
	calls := 0
	original := containerFactory
	containerFactory = func() (*app.Container, error) {
		calls++
		return nil, errors.New("database unavailable")
	}
	t.Cleanup(func() { containerFactory = original })
	return &calls
}

func execute(args ...string) error {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	return cmd.Execute()
}

func TestResetValidatesBeforeConnecting(t *testing.T) {
	calls := stubContainer(t)

	err := execute("backup", "reset")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scope")

	err = execute("backup", "reset", "--scope", "grades", "--yes")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown scope")

	err = execute("backup", "reset", "--scope", "students")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--yes")

	assert.Equal(t, 0, *calls)

	err = execute("backup", "reset", "--scope", "students", "--yes")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database unavailable")
	assert.Equal(t, 1, *calls)
}

func TestAdminCreateValidatesFlags(t *testing.T) {
	calls := stubContainer(t)

	require.Error(t, execute("admin", "create", "--username", "root"))
	require.Error(t, execute("admin", "create", "--username", "ab", "--password", "secret1"))
	require.Error(t, execute("admin", "create", "--username", "root", "--password", "123"))
	assert.Equal(t, 0, *calls)
}

func TestRestoreRequiresInput(t *testing.T) {
	stubContainer(t)

	err := execute("backup", "restore")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "in")
}

func TestReadInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"students":[]}`), 0o600))

	raw, err := readInput(path)
	require.NoError(t, err)
	assert.Equal(t, `{"students":[]}`, string(raw))

	_, err = readInput(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printJSON(&buf, map[string]int{"students": 2}))
	assert.Equal(t, "{\n  \"students\": 2\n}\n", buf.String())
}
