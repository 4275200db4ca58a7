package manifest

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dreamware/msscs/internal/engine"
	"github.com/dreamware/msscs/internal/ids"
)

func TestPutGetRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	m := New(path)

	cid := ids.Hash([]byte("chunk zero"))
	require.NoError(t, m.Put("/hello.txt", cid))

	got, err := m.Get("/hello.txt")
	require.NoError(t, err)
	require.Equal(t, cid, got)
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	m := New(filepath.Join(t.TempDir(), "manifest.json"))
	_, err := m.Get("/missing.txt")
	require.True(t, errors.Is(err, engine.ErrNotFound))
}

func TestDeleteRemovesEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	m := New(path)
	cid := ids.Hash([]byte("data"))
	require.NoError(t, m.Put("/a.bin", cid))

	require.NoError(t, m.Delete("/a.bin"))
	_, err := m.Get("/a.bin")
	require.True(t, errors.Is(err, engine.ErrNotFound))
}

func TestDeleteMissingReturnsNotFound(t *testing.T) {
	m := New(filepath.Join(t.TempDir(), "manifest.json"))
	err := m.Delete("/missing.txt")
	require.True(t, errors.Is(err, engine.ErrNotFound))
}

func TestLoadSurvivesProcessRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	m := New(path)
	cid := ids.Hash([]byte("persisted chunk"))
	require.NoError(t, m.Put("/persisted.bin", cid))

	reloaded, err := Load(path)
	require.NoError(t, err)

	got, err := reloaded.Get("/persisted.bin")
	require.NoError(t, err)
	require.Equal(t, cid, got)
}

func TestLoadMissingFileReturnsEmptyManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.json")
	m, err := Load(path)
	require.NoError(t, err)
	require.Empty(t, m.Paths())
}

func TestPutOverwritesExistingPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	m := New(path)

	first := ids.Hash([]byte("v1"))
	second := ids.Hash([]byte("v2"))
	require.NoError(t, m.Put("/a.bin", first))
	require.NoError(t, m.Put("/a.bin", second))

	got, err := m.Get("/a.bin")
	require.NoError(t, err)
	require.Equal(t, second, got)
}
