package storage

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func age(t *testing.T, root, name string, d time.Duration) {
	t.Helper()
	when := time.Now().Add(-d)
	require.NoError(t, os.Chtimes(filepath.Join(root, filepath.FromSlash(name)), when, when))
}

func TestLocalStorageSaveOpenList(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalStorage(root)
	require.NoError(t, err)

	name, err := store.Save("snapshots/a.json", []byte(`{"students":[]}`))
	require.NoError(t, err)
	assert.Equal(t, "snapshots/a.json", name)
	_, err = store.Save("snapshots/b.json", []byte(`{}`))
	require.NoError(t, err)
	age(t, root, "snapshots/a.json", time.Hour)

	files, err := store.List("snapshots")
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "snapshots/b.json", files[0].Name)
	assert.Equal(t, int64(2), files[0].Size)

	f, err := store.Open("snapshots/a.json")
	require.NoError(t, err)
	defer f.Close()
	body, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, `{"students":[]}`, string(body))
}

func TestLocalStorageSaveLeavesNoTempFiles(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalStorage(root)
	require.NoError(t, err)
	_, err = store.Save("snapshots/a.json", []byte("x"))
	require.NoError(t, err)
	_, err = store.Save("snapshots/a.json", []byte("xy"))
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(root, "snapshots"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a.json", entries[0].Name())
}

func TestLocalStorageListMissingDir(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	files, err := store.List("snapshots")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestLocalStorageRejectsEscape(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	_, err = store.Save("../outside.json", []byte("x"))
	assert.ErrorIs(t, err, ErrOutsideRoot)
	_, err = store.Open("/etc/passwd")
	assert.ErrorIs(t, err, ErrOutsideRoot)
	_, err = store.Open("snapshots/../../etc/passwd")
	assert.ErrorIs(t, err, ErrOutsideRoot)
}

func TestLocalStoragePruneKeepsNewest(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalStorage(root)
	require.NoError(t, err)
	for _, name := range []string{"old.json", "older.json", "new.json"} {
		_, err := store.Save("snapshots/"+name, []byte("x"))
		require.NoError(t, err)
	}
	age(t, root, "snapshots/old.json", 48*time.Hour)
	age(t, root, "snapshots/older.json", 72*time.Hour)

	removed, err := store.Prune("snapshots", 24*time.Hour, 1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"snapshots/old.json", "snapshots/older.json"}, removed)

	age(t, root, "snapshots/new.json", 96*time.Hour)
	removed, err = store.Prune("snapshots", 24*time.Hour, 1)
	require.NoError(t, err)
	assert.Empty(t, removed)
}
