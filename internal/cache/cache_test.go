package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hamnet/maptile/internal/config"
	"github.com/hamnet/maptile/internal/tile"
)

func newTestStore(t *testing.T, connected bool, lifetime time.Duration) (*Store, *config.Settings) {
	t.Helper()
	settings := config.NewSettings(t.TempDir(), "", connected, 14, lifetime)
	store, err := New(settings)
	require.NoError(t, err)
	return store, settings
}

func TestNew_CreatesBaseDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "tiles")
	settings := config.NewSettings(dir, "", true, 14, 0)

	store, err := New(settings)
	require.NoError(t, err)
	assert.Equal(t, dir, store.BaseDir())
	assert.DirExists(t, dir)
}

func TestNew_EmptyBaseDir(t *testing.T) {
	settings := config.NewSettings("", "", true, 14, 0)
	_, err := New(settings)
	assert.Error(t, err)
}

func TestLocalPath_Layout(t *testing.T) {
	store, _ := newTestStore(t, true, 0)
	tl := tile.XY(4, 4, 3)

	path, err := store.LocalPath(tl)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(store.BaseDir(), "3", "4", "4.png"), path)
	assert.DirExists(t, filepath.Dir(path))

	badPath, err := store.BadMarkerPath(tl)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(store.BaseDir(), "3", "4", "4.bad"), badPath)
}

func TestHasValid_MissingTile(t *testing.T) {
	store, _ := newTestStore(t, true, 0)
	assert.False(t, store.HasValid(tile.XY(1, 2, 3)))
}

func TestHasValid_ExistingTileNoLifetime(t *testing.T) {
	store, _ := newTestStore(t, true, 0)
	tl := tile.XY(1, 2, 3)
	_, err := store.Write(tl, []byte("png-bytes"))
	require.NoError(t, err)

	assert.True(t, store.HasValid(tl))
}

func TestHasValid_OfflineAcceptsAnyAge(t *testing.T) {
	// When offline, stale data beats no data.
	store, _ := newTestStore(t, false, 60*time.Second)
	tl := tile.XY(1, 2, 3)
	path, err := store.Write(tl, []byte("png-bytes"))
	require.NoError(t, err)

	old := time.Now().Add(-24 * time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))

	assert.True(t, store.HasValid(tl))
}

func TestHasValid_ExpiredWhenConnected(t *testing.T) {
	store, _ := newTestStore(t, true, 60*time.Second)
	tl := tile.XY(1, 2, 3)
	path, err := store.Write(tl, []byte("png-bytes"))
	require.NoError(t, err)

	old := time.Now().Add(-61 * time.Second)
	require.NoError(t, os.Chtimes(path, old, old))

	assert.False(t, store.HasValid(tl))
}

func TestHasValid_FreshWhenConnected(t *testing.T) {
	store, _ := newTestStore(t, true, 60*time.Second)
	tl := tile.XY(1, 2, 3)
	_, err := store.Write(tl, []byte("png-bytes"))
	require.NoError(t, err)

	assert.True(t, store.HasValid(tl))
}

func TestHasValid_BadMarkerCounts(t *testing.T) {
	store, _ := newTestStore(t, true, 0)
	tl := tile.XY(1, 2, 3)
	_, err := store.MarkBad(tl)
	require.NoError(t, err)

	assert.True(t, store.HasValid(tl))
}

func TestWrite_Overwrites(t *testing.T) {
	store, _ := newTestStore(t, true, 0)
	tl := tile.XY(1, 2, 3)

	_, err := store.Write(tl, []byte("old"))
	require.NoError(t, err)
	path, err := store.Write(tl, []byte("new"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))

	// No temp file left behind.
	assert.NoFileExists(t, path+".tmp")
}

func TestClear(t *testing.T) {
	store, _ := newTestStore(t, true, 0)
	tl := tile.XY(1, 2, 3)
	path, err := store.Write(tl, []byte("png-bytes"))
	require.NoError(t, err)

	require.NoError(t, store.Clear())

	assert.NoFileExists(t, path)
	assert.DirExists(t, store.BaseDir())
}

func TestStats(t *testing.T) {
	store, _ := newTestStore(t, true, 0)
	_, err := store.Write(tile.XY(1, 2, 3), []byte("12345"))
	require.NoError(t, err)
	_, err = store.Write(tile.XY(2, 2, 3), []byte("123"))
	require.NoError(t, err)
	_, err = store.MarkBad(tile.XY(3, 2, 3))
	require.NoError(t, err)

	stats, err := store.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Tiles)
	assert.Equal(t, 1, stats.BadMarkers)
	assert.Equal(t, int64(8), stats.Bytes)
}

func TestLifetimeChangeAppliesToExistingEntries(t *testing.T) {
	store, settings := newTestStore(t, true, 0)
	tl := tile.XY(1, 2, 3)
	path, err := store.Write(tl, []byte("png-bytes"))
	require.NoError(t, err)

	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))

	assert.True(t, store.HasValid(tl), "lifetime 0 accepts any age")

	settings.SetTileLifetime(time.Hour)
	assert.False(t, store.HasValid(tl), "stale once a lifetime is set")
}
