package history

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amd-agi/genforge/internal/sidecar"
)

func writeOutput(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("fake-png"), 0o644))
}

func TestListOrdersNewestFirstAcrossFlatAndDateDirs(t *testing.T) {
	dir := t.TempDir()
	writeOutput(t, filepath.Join(dir, "2026-07-30_10-00-00_0.png"))
	writeOutput(t, filepath.Join(dir, "2026-07-30", "2026-07-30_12-00-00_0.png"))
	writeOutput(t, filepath.Join(dir, "2026-07-31_09-00-00_0.png"))

	r := New(dir, nil)
	page, err := r.List(10, 0)
	require.NoError(t, err)
	require.Len(t, page.Items, 3)

	assert.Equal(t, "2026-07-31_09-00-00_0.png", page.Items[0].Filename)
	assert.Equal(t, "2026-07-30_12-00-00_0.png", page.Items[1].Filename)
	assert.Equal(t, "2026-07-30_10-00-00_0.png", page.Items[2].Filename)
}

func TestListHonorsLimitMinimumOfOne(t *testing.T) {
	dir := t.TempDir()
	writeOutput(t, filepath.Join(dir, "a.png"))
	writeOutput(t, filepath.Join(dir, "b.png"))

	r := New(dir, nil)
	page, err := r.List(0, 0)
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
	assert.Equal(t, 1, page.Limit)
}

func TestListPaginatesWithOffset(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 5; i++ {
		writeOutput(t, filepath.Join(dir, "2026-07-2"+string(rune('0'+i))+"_10-00-00_0.png"))
	}

	r := New(dir, nil)
	page, err := r.List(2, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, 2, page.Page)
}

func TestListFallsBackToModTimeWhenNoTimestampPrefix(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "untimestamped.png")
	writeOutput(t, path)
	mt := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(path, mt, mt))

	r := New(dir, nil)
	page, err := r.List(10, 0)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, mt.Unix(), page.Items[0].CreatedEpochSeconds)
}

func TestListJoinsSidecarMetadataWhenPresent(t *testing.T) {
	dir := t.TempDir()
	writeOutput(t, filepath.Join(dir, "a.png"))

	store, err := sidecar.Open(filepath.Join(t.TempDir(), "metadata.db"))
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.Put("a.png", json.RawMessage(`{"seed":42}`)))

	r := New(dir, store)
	page, err := r.List(10, 0)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.JSONEq(t, `{"seed":42}`, string(page.Items[0].Metadata))
}

func TestListLeavesMetadataNullWhenSidecarMissingKey(t *testing.T) {
	dir := t.TempDir()
	writeOutput(t, filepath.Join(dir, "a.png"))

	store, err := sidecar.Open(filepath.Join(t.TempDir(), "metadata.db"))
	require.NoError(t, err)
	defer store.Close()

	r := New(dir, store)
	page, err := r.List(10, 0)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Nil(t, page.Items[0].Metadata)
}

func TestListOnMissingOutputsDirReturnsEmptyPage(t *testing.T) {
	r := New(filepath.Join(t.TempDir(), "does-not-exist"), nil)
	page, err := r.List(10, 0)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Equal(t, 0, page.Total)
}
